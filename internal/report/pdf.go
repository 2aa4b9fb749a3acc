package report

import (
	"context"
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
)

const defaultPDFTimeout = 30 * time.Second

// Kind selects the page layout of a printed report.
type Kind string

const (
	KindDigest      Kind = "digest"
	KindQuarterly   Kind = "quarterly"
	KindOpportunity Kind = "opportunity"
)

// Paper sizes in inches, portrait.
type Paper struct {
	Width, Height float64
}

var papers = map[string]Paper{
	"letter": {Width: 8.5, Height: 11},
	"a4":     {Width: 8.27, Height: 11.69},
}

// LookupPaper returns the named paper size. Names are case-insensitive and
// empty means letter.
func LookupPaper(name string) (Paper, bool) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		name = "letter"
	}
	p, ok := papers[name]
	return p, ok
}

type layout struct {
	label     string
	landscape bool
	margin    float64
}

// Quarterly syntheses carry the wide factor distribution table, so they
// print landscape.
var layouts = map[Kind]layout{
	KindDigest:      {label: "Signal Digest", margin: 0.6},
	KindQuarterly:   {label: "Quarterly Synthesis", landscape: true, margin: 0.5},
	KindOpportunity: {label: "Opportunity Brief", margin: 0.75},
}

// PDFRenderer prints reports through a headless Chromium.
type PDFRenderer struct {
	chromePath string
	paper      Paper
	timeout    time.Duration
	now        func() time.Time
}

// NewPDFRenderer prints on paper. An empty chromePath lets chromedp find
// the browser itself.
func NewPDFRenderer(chromePath string, paper Paper) *PDFRenderer {
	if paper.Width <= 0 || paper.Height <= 0 {
		paper = papers["letter"]
	}
	return &PDFRenderer{chromePath: chromePath, paper: paper, timeout: defaultPDFTimeout, now: time.Now}
}

// Render prints markdown as a report of kind, with title and the print date
// in the page header.
func (r *PDFRenderer) Render(ctx context.Context, kind Kind, title, markdown string) ([]byte, error) {
	doc, err := Document(title, markdown)
	if err != nil {
		return nil, err
	}
	params := printParams(kind, r.paper, title, r.now())

	timeoutCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	opts := chromedp.DefaultExecAllocatorOptions[:]
	opts = append(opts, chromedp.DisableGPU, chromedp.Flag("disable-dev-shm-usage", true), chromedp.NoSandbox)
	if r.chromePath != "" {
		opts = append(opts, chromedp.ExecPath(r.chromePath))
	}
	allocCtx, allocCancel := chromedp.NewExecAllocator(timeoutCtx, opts...)
	defer allocCancel()
	taskCtx, taskCancel := chromedp.NewContext(allocCtx)
	defer taskCancel()

	var pdf []byte
	err = chromedp.Run(taskCtx,
		chromedp.Navigate("about:blank"),
		chromedp.ActionFunc(func(ctx context.Context) error {
			tree, err := page.GetFrameTree().Do(ctx)
			if err != nil {
				return err
			}
			return page.SetDocumentContent(tree.Frame.ID, doc).Do(ctx)
		}),
		chromedp.WaitReady("main.report", chromedp.ByQuery),
		chromedp.ActionFunc(func(ctx context.Context) error {
			out, _, err := params.Do(ctx)
			pdf = out
			return err
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("print %s: %w", kind, err)
	}
	return pdf, nil
}

func printParams(kind Kind, paper Paper, title string, printed time.Time) *page.PrintToPDFParams {
	l, ok := layouts[kind]
	if !ok {
		l = layouts[KindDigest]
	}
	header := `<div style="width:100%;margin:0 0.4in;display:flex;justify-content:space-between;font-size:8px;color:#0f766e;">` +
		`<span>` + html.EscapeString(l.label+" | "+title) + `</span>` +
		`<span>` + printed.Format("2006-01-02") + `</span></div>`
	footer := `<div style="width:100%;text-align:right;margin-right:0.4in;font-size:8px;color:#78716c;">` +
		`<span class="pageNumber"></span>/<span class="totalPages"></span></div>`
	return page.PrintToPDF().
		WithPrintBackground(true).
		WithLandscape(l.landscape).
		WithDisplayHeaderFooter(true).
		WithHeaderTemplate(header).
		WithFooterTemplate(footer).
		WithPaperWidth(paper.Width).
		WithPaperHeight(paper.Height).
		WithMarginTop(l.margin + 0.15).
		WithMarginBottom(l.margin).
		WithMarginLeft(l.margin).
		WithMarginRight(l.margin)
}

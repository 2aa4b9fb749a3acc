package report

import (
	"fmt"
	"html"
	"regexp"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
)

var (
	md = goldmark.New(goldmark.WithExtensions(extension.GFM))

	reVerdict    = regexp.MustCompile(`<strong>Verdict: (BUILD NOW|EXPLORE|MONITOR|PASS)</strong>`)
	reIdeaHeader = regexp.MustCompile(`<h3>([0-9]+)\. `)
)

// HTML converts GitHub-flavoured markdown to an HTML fragment.
func HTML(markdown string) (string, error) {
	var out strings.Builder
	if err := md.Convert([]byte(markdown), &out); err != nil {
		return "", fmt.Errorf("markdown convert: %w", err)
	}
	return out.String(), nil
}

// Document wraps the rendered markdown in a standalone printable page.
func Document(title, markdown string) (string, error) {
	body, err := HTML(markdown)
	if err != nil {
		return "", err
	}
	return "<!doctype html><html><head><meta charset='utf-8'><title>" + html.EscapeString(title) + "</title>" +
		"<style>" + documentCSS + "</style></head><body><main class='report'>" +
		applyPrintLayoutHooks(body) + "</main></body></html>", nil
}

// applyPrintLayoutHooks tags verdict lines as badges and starts each
// numbered idea on a fresh page after the first.
func applyPrintLayoutHooks(body string) string {
	out := reVerdict.ReplaceAllStringFunc(body, func(m string) string {
		v := reVerdict.FindStringSubmatch(m)[1]
		return `<span class="verdict verdict-` + strings.ToLower(strings.ReplaceAll(v, " ", "-")) + `">` + v + `</span>`
	})
	return reIdeaHeader.ReplaceAllStringFunc(out, func(m string) string {
		if strings.HasPrefix(m, "<h3>1. ") {
			return m
		}
		return `<h3 data-page-break-before="true">` + strings.TrimPrefix(m, "<h3>")
	})
}

const documentCSS = `html,body,*{-webkit-print-color-adjust:exact !important;print-color-adjust:exact !important;}
body{font-family:-apple-system,"Segoe UI",Helvetica,Arial,sans-serif;color:#1c1917;background:#fff;padding:0.6rem;line-height:1.45;}
.report{max-width:900px;margin:0 auto;}
h1{border-bottom:3px solid #0f766e;padding-bottom:0.3rem;}
h2{color:#0f766e;margin-top:1.6rem;}
table{width:100%;border-collapse:collapse;border:1px solid #a8a29e;font-size:0.85rem;}
th,td{border:1px solid #a8a29e;padding:0.35rem 0.45rem;text-align:left;vertical-align:top;}
thead th{background:#f1f5f9;font-weight:700;}
blockquote{border-left:4px solid #f59e0b;background:#fffbeb;margin:0;padding:0.4rem 0.8rem;}
.verdict{display:inline-block;border-radius:4px;padding:0.1rem 0.5rem;font-weight:700;}
.verdict-build-now{background:#dcfce7;color:#166534;}
.verdict-explore{background:#dbeafe;color:#1e40af;}
.verdict-monitor{background:#fef3c7;color:#92400e;}
.verdict-pass{background:#fee2e2;color:#991b1b;}
h3[data-page-break-before="true"]{break-before:page;page-break-before:always;}
@media print{@page{size:auto;margin:12mm;} body{padding:0;} .report{max-width:none;}}`

package collector

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/joelkehle/opportunity-radar/internal/logging"
	"github.com/joelkehle/opportunity-radar/internal/model"
	"github.com/joelkehle/opportunity-radar/internal/ratelimit"
)

const (
	HackerNewsName     = "hacker_news"
	hnAPIBase          = "https://hacker-news.firebaseio.com/v0"
	hnItemURL          = "https://news.ycombinator.com/item?id=%d"
	hnTextLimit        = 500
	hnFetchWorkers     = 8
	defaultHTTPTimeout = 30 * time.Second
)

type hnList struct {
	endpoint string
	kind     string
	url      string
	limit    int
}

var hnLists = []hnList{
	{"topstories", "top_stories", "https://news.ycombinator.com/", 50},
	{"showstories", "show_hn", "https://news.ycombinator.com/show", 30},
	{"askstories", "ask_hn", "https://news.ycombinator.com/ask", 30},
	{"beststories", "best_stories", "https://news.ycombinator.com/best", 30},
}

type hnItem struct {
	ID          int64  `json:"id"`
	Type        string `json:"type"`
	Title       string `json:"title"`
	URL         string `json:"url"`
	Text        string `json:"text"`
	Score       int    `json:"score"`
	By          string `json:"by"`
	Time        int64  `json:"time"`
	Descendants int    `json:"descendants"`
	Deleted     bool   `json:"deleted"`
	Dead        bool   `json:"dead"`
}

type hnStory struct {
	ID          int64  `json:"id"`
	Title       string `json:"title"`
	URL         string `json:"url"`
	Text        string `json:"text"`
	Score       int    `json:"score"`
	By          string `json:"by"`
	Time        int64  `json:"time"`
	Descendants int    `json:"descendants"`
	HNURL       string `json:"hn_url"`
}

// HackerNews reads the public Firebase API. Each list becomes one raw
// signal; a story already emitted under an earlier list is skipped.
type HackerNews struct {
	client  *http.Client
	baseURL string
	limiter *ratelimit.Limiter
	log     logrus.FieldLogger
	now     func() time.Time
}

func NewHackerNews(client *http.Client, limiter *ratelimit.Limiter, log logrus.FieldLogger) *HackerNews {
	if client == nil {
		client = &http.Client{Timeout: defaultHTTPTimeout}
	}
	return &HackerNews{client: client, baseURL: hnAPIBase, limiter: limiter, log: logging.OrDiscard(log), now: time.Now}
}

func (h *HackerNews) Name() string     { return HackerNewsName }
func (h *HackerNews) Category() string { return CategoryBuilder }

func (h *HackerNews) Collect(ctx context.Context) ([]model.RawSignal, error) {
	seen := map[int64]bool{}
	var out []model.RawSignal
	failed := 0
	for _, list := range hnLists {
		stories, err := h.stories(ctx, list, seen)
		if err != nil {
			if ctx.Err() != nil {
				return out, ctx.Err()
			}
			failed++
			h.log.WithError(err).WithField("list", list.endpoint).Warn("hacker news list failed")
			continue
		}
		if len(stories) == 0 {
			continue
		}
		content, err := json.Marshal(map[string]any{"type": list.kind, "stories": stories})
		if err != nil {
			return nil, fmt.Errorf("encode %s: %w", list.kind, err)
		}
		day := h.now().UTC().Truncate(24 * time.Hour)
		out = append(out, model.RawSignal{
			SourceType:     HackerNewsName,
			SourceCategory: CategoryBuilder,
			SourceURL:      list.url,
			RawContent:     content,
			SignalDate:     &day,
			Geography:      geographyGlobal,
		})
	}
	if failed == len(hnLists) {
		return nil, fmt.Errorf("hacker news: all %d lists failed", failed)
	}
	return out, nil
}

func (h *HackerNews) stories(ctx context.Context, list hnList, seen map[int64]bool) ([]hnStory, error) {
	var ids []int64
	if err := h.getJSON(ctx, "/"+list.endpoint+".json", &ids); err != nil {
		return nil, err
	}
	ids = ids[:min(list.limit, len(ids))]

	items := make([]*hnItem, len(ids))
	jobs := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < hnFetchWorkers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				var it hnItem
				if err := h.getJSON(ctx, fmt.Sprintf("/item/%d.json", ids[i]), &it); err != nil {
					h.log.WithError(err).WithField("item", ids[i]).Debug("hacker news item failed")
					continue
				}
				items[i] = &it
			}
		}()
	}
	for i := range ids {
		if ctx.Err() != nil {
			break
		}
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	var out []hnStory
	for _, it := range items {
		if it == nil || it.ID == 0 || it.Type != "story" || it.Deleted || it.Dead || seen[it.ID] {
			continue
		}
		seen[it.ID] = true
		out = append(out, hnStory{
			ID:          it.ID,
			Title:       it.Title,
			URL:         it.URL,
			Text:        model.Truncate(it.Text, hnTextLimit),
			Score:       it.Score,
			By:          it.By,
			Time:        it.Time,
			Descendants: it.Descendants,
			HNURL:       fmt.Sprintf(hnItemURL, it.ID),
		})
	}
	return out, nil
}

func (h *HackerNews) getJSON(ctx context.Context, path string, out any) error {
	if err := h.limiter.Wait(ctx); err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimRight(h.baseURL, "/")+path, nil)
	if err != nil {
		return err
	}
	resp, err := h.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("GET %s: status %d", path, resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

package collector

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	readability "github.com/go-shiori/go-readability"
	"github.com/sirupsen/logrus"

	"github.com/joelkehle/opportunity-radar/internal/logging"
	"github.com/joelkehle/opportunity-radar/internal/model"
	"github.com/joelkehle/opportunity-radar/internal/ratelimit"
)

const (
	ArticlesName     = "articles"
	articleTextLimit = 5000
)

// Articles extracts the readable body of a fixed list of pages, such as
// forum threads or review pages where people describe problems.
type Articles struct {
	client  *http.Client
	urls    []string
	limiter *ratelimit.Limiter
	log     logrus.FieldLogger
}

func NewArticles(client *http.Client, urls []string, limiter *ratelimit.Limiter, log logrus.FieldLogger) *Articles {
	if client == nil {
		client = &http.Client{Timeout: defaultHTTPTimeout}
	}
	return &Articles{client: client, urls: urls, limiter: limiter, log: logging.OrDiscard(log)}
}

func (a *Articles) Name() string     { return ArticlesName }
func (a *Articles) Category() string { return CategoryDemand }

func (a *Articles) Collect(ctx context.Context) ([]model.RawSignal, error) {
	var out []model.RawSignal
	var errs []error
	for _, u := range a.urls {
		sig, err := a.fetch(ctx, u)
		if err != nil {
			if ctx.Err() != nil {
				return out, ctx.Err()
			}
			errs = append(errs, err)
			a.log.WithError(err).WithField("url", u).Warn("article extraction failed")
			continue
		}
		out = append(out, sig)
	}
	if len(out) == 0 && len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return out, nil
}

func (a *Articles) fetch(ctx context.Context, raw string) (model.RawSignal, error) {
	pageURL, err := url.Parse(raw)
	if err != nil {
		return model.RawSignal{}, fmt.Errorf("parse %s: %w", raw, err)
	}
	if err := a.limiter.Wait(ctx); err != nil {
		return model.RawSignal{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, raw, nil)
	if err != nil {
		return model.RawSignal{}, err
	}
	resp, err := a.client.Do(req)
	if err != nil {
		return model.RawSignal{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return model.RawSignal{}, fmt.Errorf("GET %s: status %d", raw, resp.StatusCode)
	}
	article, err := readability.FromReader(resp.Body, pageURL)
	if err != nil {
		return model.RawSignal{}, fmt.Errorf("extract %s: %w", raw, err)
	}
	content, err := json.Marshal(map[string]any{
		"type":      "article",
		"title":     article.Title,
		"byline":    article.Byline,
		"site_name": article.SiteName,
		"excerpt":   article.Excerpt,
		"text":      model.Truncate(article.TextContent, articleTextLimit),
	})
	if err != nil {
		return model.RawSignal{}, err
	}
	return model.RawSignal{
		SourceType:     ArticlesName,
		SourceCategory: CategoryDemand,
		SourceURL:      raw,
		RawContent:     content,
	}, nil
}

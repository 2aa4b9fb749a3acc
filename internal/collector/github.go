package collector

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/go-github/v71/github"
	"github.com/sirupsen/logrus"

	"github.com/joelkehle/opportunity-radar/internal/logging"
	"github.com/joelkehle/opportunity-radar/internal/model"
	"github.com/joelkehle/opportunity-radar/internal/ratelimit"
)

const (
	GitHubName          = "github"
	defaultGitHubStars  = 50
	defaultGitHubWindow = 7
	githubPerPage       = 30
)

// RepoSearcher is the part of the go-github search service the collector
// uses.
type RepoSearcher interface {
	Repositories(ctx context.Context, query string, opts *github.SearchOptions) (*github.RepositoriesSearchResult, *github.Response, error)
}

type GitHubConfig struct {
	Token     string
	Languages []string
	MinStars  int
	// WindowDays limits the search to repositories created this recently.
	WindowDays int
}

// GitHub finds young repositories that collected stars quickly, one raw
// signal per language.
type GitHub struct {
	search  RepoSearcher
	cfg     GitHubConfig
	limiter *ratelimit.Limiter
	log     logrus.FieldLogger
	now     func() time.Time
}

func NewGitHub(cfg GitHubConfig, limiter *ratelimit.Limiter, log logrus.FieldLogger) *GitHub {
	client := github.NewClient(nil)
	if cfg.Token != "" {
		client = client.WithAuthToken(cfg.Token)
	}
	return NewGitHubWith(client.Search, cfg, limiter, log)
}

func NewGitHubWith(search RepoSearcher, cfg GitHubConfig, limiter *ratelimit.Limiter, log logrus.FieldLogger) *GitHub {
	if cfg.MinStars <= 0 {
		cfg.MinStars = defaultGitHubStars
	}
	if cfg.WindowDays <= 0 {
		cfg.WindowDays = defaultGitHubWindow
	}
	if len(cfg.Languages) == 0 {
		cfg.Languages = []string{""}
	}
	return &GitHub{search: search, cfg: cfg, limiter: limiter, log: logging.OrDiscard(log), now: time.Now}
}

func (g *GitHub) Name() string     { return GitHubName }
func (g *GitHub) Category() string { return CategoryBuilder }

type repoBrief struct {
	Name        string   `json:"name"`
	URL         string   `json:"url"`
	Description string   `json:"description"`
	Language    string   `json:"language"`
	Stars       int      `json:"stars"`
	Topics      []string `json:"topics,omitempty"`
	CreatedAt   string   `json:"created_at"`
}

func (g *GitHub) Query(language string) string {
	since := g.now().UTC().AddDate(0, 0, -g.cfg.WindowDays).Format("2006-01-02")
	q := fmt.Sprintf("created:>%s stars:>=%d", since, g.cfg.MinStars)
	if language != "" {
		q += " language:" + language
	}
	return q
}

func (g *GitHub) Collect(ctx context.Context) ([]model.RawSignal, error) {
	var out []model.RawSignal
	var lastErr error
	for _, lang := range g.cfg.Languages {
		if err := g.limiter.Wait(ctx); err != nil {
			return out, err
		}
		res, _, err := g.search.Repositories(ctx, g.Query(lang), &github.SearchOptions{
			Sort:        "stars",
			Order:       "desc",
			ListOptions: github.ListOptions{PerPage: githubPerPage},
		})
		if err != nil {
			lastErr = err
			g.log.WithError(err).WithField("language", lang).Warn("github search failed")
			continue
		}
		repos := make([]repoBrief, 0, len(res.Repositories))
		for _, r := range res.Repositories {
			repos = append(repos, repoBrief{
				Name:        r.GetFullName(),
				URL:         r.GetHTMLURL(),
				Description: r.GetDescription(),
				Language:    r.GetLanguage(),
				Stars:       r.GetStargazersCount(),
				Topics:      r.Topics,
				CreatedAt:   r.GetCreatedAt().UTC().Format(time.RFC3339),
			})
		}
		if len(repos) == 0 {
			continue
		}
		label := lang
		if label == "" {
			label = "all"
		}
		content, err := json.Marshal(map[string]any{"type": "new_repositories", "language": label, "repositories": repos})
		if err != nil {
			return nil, fmt.Errorf("encode repositories: %w", err)
		}
		out = append(out, model.RawSignal{
			SourceType:     GitHubName,
			SourceCategory: CategoryBuilder,
			SourceURL:      "https://github.com/search?q=" + strings.ReplaceAll(g.Query(lang), " ", "+"),
			RawContent:     content,
			Geography:      geographyGlobal,
		})
	}
	if len(out) == 0 && lastErr != nil {
		return nil, fmt.Errorf("github: %w", lastErr)
	}
	return out, nil
}

// Package ratelimit provides one cooperative limiter per external dependency
// class. Waiting may suspend the caller; requests are never dropped.
package ratelimit

import (
	"context"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	ClassAnthropic    = "anthropic"
	ClassOpenAI       = "openai"
	ClassGitHub       = "github"
	ClassHackerNews   = "hacker_news"
	ClassReddit       = "reddit"
	ClassProductHunt  = "product_hunt"
	ClassGoogleTrends = "google_trends"
	ClassYouTube      = "youtube"
	ClassArticles     = "articles"
	ClassStore        = "store"
	ClassDefault      = "default"
)

// Limit describes the allowance of one class. Zero windows are unlimited.
type Limit struct {
	PerMinute int `yaml:"per_minute"`
	PerHour   int `yaml:"per_hour"`
	PerDay    int `yaml:"per_day"`
	Burst     int `yaml:"burst"`
}

var DefaultLimits = map[string]Limit{
	ClassAnthropic:    {PerMinute: 50},
	ClassOpenAI:       {PerMinute: 60},
	ClassGitHub:       {PerMinute: 30, PerHour: 5000},
	ClassHackerNews:   {PerMinute: 30},
	ClassReddit:       {PerMinute: 60},
	ClassProductHunt:  {PerMinute: 20},
	ClassGoogleTrends: {PerMinute: 10, PerHour: 100},
	ClassYouTube:      {PerMinute: 100, PerDay: 10000},
	ClassArticles:     {PerMinute: 30},
	ClassStore:        {PerMinute: 600, Burst: 50},
	ClassDefault:      {PerMinute: 30},
}

// Limiter enforces every window of a Limit at once.
type Limiter struct {
	name    string
	buckets []*rate.Limiter
}

func New(name string, l Limit) *Limiter {
	lim := &Limiter{name: name}
	burst := l.Burst
	if burst <= 0 {
		burst = 1
	}
	add := func(n int, window time.Duration, b int) {
		if n <= 0 {
			return
		}
		if b > n {
			b = n
		}
		lim.buckets = append(lim.buckets, rate.NewLimiter(rate.Every(window/time.Duration(n)), b))
	}
	add(l.PerMinute, time.Minute, burst)
	// Longer windows allow their whole allowance as burst so that they only
	// bite once the window is exhausted.
	add(l.PerHour, time.Hour, l.PerHour)
	add(l.PerDay, 24*time.Hour, l.PerDay)
	return lim
}

func (l *Limiter) Name() string { return l.name }

// Wait blocks until every window admits one request or ctx is done.
func (l *Limiter) Wait(ctx context.Context) error {
	if l == nil {
		return nil
	}
	for _, b := range l.buckets {
		if err := b.Wait(ctx); err != nil {
			return err
		}
	}
	return nil
}

// Registry hands out one shared Limiter per class.
type Registry struct {
	mu       sync.Mutex
	limits   map[string]Limit
	limiters map[string]*Limiter
}

// NewRegistry starts from DefaultLimits and applies overrides on top.
func NewRegistry(overrides map[string]Limit) *Registry {
	limits := make(map[string]Limit, len(DefaultLimits)+len(overrides))
	for k, v := range DefaultLimits {
		limits[k] = v
	}
	for k, v := range overrides {
		limits[strings.ToLower(k)] = v
	}
	return &Registry{limits: limits, limiters: map[string]*Limiter{}}
}

// Get returns the limiter for class, falling back to the default limit for
// unknown classes. Each class gets its own limiter instance.
func (r *Registry) Get(class string) *Limiter {
	class = strings.ToLower(strings.TrimSpace(class))
	r.mu.Lock()
	defer r.mu.Unlock()
	if l, ok := r.limiters[class]; ok {
		return l
	}
	limit, ok := r.limits[class]
	if !ok {
		limit = r.limits[ClassDefault]
	}
	l := New(class, limit)
	r.limiters[class] = l
	return l
}

// Package embedding turns text into vectors for similarity work downstream.
// Failures never propagate: an absent (nil) vector is returned instead.
package embedding

import (
	"context"
	"strings"

	"github.com/cloudwego/eino/components/embedding"
	"github.com/sirupsen/logrus"

	"github.com/joelkehle/opportunity-radar/internal/logging"
	"github.com/joelkehle/opportunity-radar/internal/model"
	"github.com/joelkehle/opportunity-radar/internal/ratelimit"
	"github.com/joelkehle/opportunity-radar/internal/retry"
)

const (
	DefaultMaxChars  = 30000
	DefaultBatchSize = 100
)

type Service struct {
	embedder  embedding.Embedder
	limiter   *ratelimit.Limiter
	retrier   *retry.Retrier
	log       logrus.FieldLogger
	maxChars  int
	batchSize int
}

type Option func(*Service)

func WithLimiter(l *ratelimit.Limiter) Option { return func(s *Service) { s.limiter = l } }
func WithRetrier(r *retry.Retrier) Option     { return func(s *Service) { s.retrier = r } }
func WithMaxChars(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.maxChars = n
		}
	}
}
func WithBatchSize(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.batchSize = n
		}
	}
}

// NewService wraps e. A nil e disables embedding and every vector is absent.
func NewService(e embedding.Embedder, log logrus.FieldLogger, opts ...Option) *Service {
	log = logging.OrDiscard(log)
	s := &Service{
		embedder:  e,
		retrier:   retry.New(retry.DefaultPolicy, log),
		log:       log,
		maxChars:  DefaultMaxChars,
		batchSize: DefaultBatchSize,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Embed returns the vector for text, or nil when text is blank or the call
// fails.
func (s *Service) Embed(ctx context.Context, text string) []float64 {
	if s.embedder == nil || strings.TrimSpace(text) == "" {
		return nil
	}
	out, err := s.call(ctx, []string{s.truncate(text)})
	if err != nil {
		s.log.WithError(err).Warn("embedding failed")
		return nil
	}
	if len(out) == 0 {
		return nil
	}
	return out[0]
}

// EmbedBatch returns one entry per input, in input order. Blank inputs and
// members of a failed batch are nil.
func (s *Service) EmbedBatch(ctx context.Context, texts []string) [][]float64 {
	results := make([][]float64, len(texts))
	if s.embedder == nil {
		return results
	}
	var idx []int
	var batch []string
	for i, t := range texts {
		if strings.TrimSpace(t) == "" {
			continue
		}
		idx = append(idx, i)
		batch = append(batch, s.truncate(t))
	}
	for start := 0; start < len(batch); start += s.batchSize {
		end := start + s.batchSize
		if end > len(batch) {
			end = len(batch)
		}
		vecs, err := s.call(ctx, batch[start:end])
		if err != nil {
			s.log.WithError(err).WithField("batch_start", start).Warn("batch embedding failed")
			continue
		}
		for j, v := range vecs {
			if start+j >= end {
				break
			}
			results[idx[start+j]] = v
		}
	}
	return results
}

func (s *Service) call(ctx context.Context, texts []string) ([][]float64, error) {
	var out [][]float64
	err := s.retrier.Do(ctx, "embed", func(ctx context.Context) error {
		if err := s.limiter.Wait(ctx); err != nil {
			return err
		}
		var err error
		out, err = s.embedder.EmbedStrings(ctx, texts)
		return err
	})
	return out, err
}

func (s *Service) truncate(text string) string {
	return model.Truncate(text, s.maxChars)
}

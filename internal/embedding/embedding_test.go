package embedding

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/cloudwego/eino/components/embedding"

	"github.com/joelkehle/opportunity-radar/internal/retry"
)

type fakeEmbedder struct {
	mu      sync.Mutex
	calls   [][]string
	failOn  map[int]bool
	callNum int
}

func (f *fakeEmbedder) EmbedStrings(_ context.Context, texts []string, _ ...embedding.Option) ([][]float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.callNum++
	f.calls = append(f.calls, append([]string(nil), texts...))
	if f.failOn[f.callNum] {
		return nil, retry.WithStatus(400, errBad)
	}
	out := make([][]float64, len(texts))
	for i, t := range texts {
		out[i] = []float64{float64(len(t)), 1}
	}
	return out, nil
}

type constErr string

func (e constErr) Error() string { return string(e) }

const errBad = constErr("bad input")

func noSleepRetrier() *retry.Retrier {
	r := retry.New(retry.DefaultPolicy, nil)
	r.Sleep = func(context.Context, time.Duration) error { return nil }
	return r
}

func TestEmbedBlankIsAbsentWithoutCall(t *testing.T) {
	f := &fakeEmbedder{}
	s := NewService(f, nil)
	for _, in := range []string{"", "   ", "\n\t"} {
		if v := s.Embed(context.Background(), in); v != nil {
			t.Fatalf("Embed(%q) = %v, want nil", in, v)
		}
	}
	if len(f.calls) != 0 {
		t.Fatalf("calls = %d, want 0", len(f.calls))
	}
}

func TestNilEmbedderDisablesEmbedding(t *testing.T) {
	s := NewService(nil, nil)
	if v := s.Embed(context.Background(), "groomers want booking"); v != nil {
		t.Fatalf("Embed = %v, want nil", v)
	}
	got := s.EmbedBatch(context.Background(), []string{"a", "b"})
	if len(got) != 2 || got[0] != nil || got[1] != nil {
		t.Fatalf("EmbedBatch = %v", got)
	}
}

func TestEmbedTruncatesInput(t *testing.T) {
	f := &fakeEmbedder{}
	s := NewService(f, nil, WithMaxChars(10))
	v := s.Embed(context.Background(), strings.Repeat("x", 50))
	if v == nil || v[0] != 10 {
		t.Fatalf("vector = %v", v)
	}
}

func TestEmbedFailureIsAbsent(t *testing.T) {
	f := &fakeEmbedder{failOn: map[int]bool{1: true}}
	s := NewService(f, nil, WithRetrier(noSleepRetrier()))
	if v := s.Embed(context.Background(), "hello"); v != nil {
		t.Fatalf("vector = %v, want nil", v)
	}
}

func TestEmbedBatchPreservesPositions(t *testing.T) {
	f := &fakeEmbedder{}
	s := NewService(f, nil)
	out := s.EmbedBatch(context.Background(), []string{"aa", "", "bbbb", "  ", "c"})
	if len(out) != 5 {
		t.Fatalf("len = %d", len(out))
	}
	if out[1] != nil || out[3] != nil {
		t.Fatalf("blank inputs must map to nil: %v", out)
	}
	if out[0][0] != 2 || out[2][0] != 4 || out[4][0] != 1 {
		t.Fatalf("out = %v", out)
	}
	if len(f.calls) != 1 || len(f.calls[0]) != 3 {
		t.Fatalf("calls = %v", f.calls)
	}
}

func TestEmbedBatchIsolatesFailedBatch(t *testing.T) {
	f := &fakeEmbedder{failOn: map[int]bool{1: true}}
	s := NewService(f, nil, WithBatchSize(2), WithRetrier(noSleepRetrier()))
	out := s.EmbedBatch(context.Background(), []string{"a", "bb", "ccc"})
	if out[0] != nil || out[1] != nil {
		t.Fatalf("first batch should be absent: %v", out)
	}
	if out[2] == nil || out[2][0] != 3 {
		t.Fatalf("second batch should succeed: %v", out)
	}
}

func TestOpenAIEmbedderOrdersByIndex(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/embeddings") {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"object": "list",
			"model":  DefaultModel,
			"data": []map[string]any{
				{"object": "embedding", "index": 1, "embedding": []float32{0, 1}},
				{"object": "embedding", "index": 0, "embedding": []float32{1, 0}},
			},
		})
	}))
	defer srv.Close()

	e, err := NewOpenAIEmbedder("test-key", srv.URL+"/v1", "")
	if err != nil {
		t.Fatalf("NewOpenAIEmbedder: %v", err)
	}
	out, err := e.EmbedStrings(context.Background(), []string{"first", "second"})
	if err != nil {
		t.Fatalf("EmbedStrings: %v", err)
	}
	if out[0][0] != 1 || out[1][1] != 1 {
		t.Fatalf("out = %v", out)
	}
}

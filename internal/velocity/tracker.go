package velocity

import (
	"sort"
	"strings"
	"sync"
	"time"
)

const (
	Window          = 30 * 24 * time.Hour
	DefaultBucket   = time.Hour
	DefaultMinCount = 5
)

// series is a ring of fixed-width buckets covering Window. slot i holds the
// mentions of bucket number stamps[i]; a stale stamp means the slot is empty.
type series struct {
	counts []int32
	stamps []int64
	latest int64
}

// Tracker keeps per-keyword mention counts over the trailing 30 days. Memory
// per keyword is fixed and keywords without a mention inside the window are
// pruned.
type Tracker struct {
	mu        sync.Mutex
	bucket    time.Duration
	slots     int
	baseline  float64
	now       func() time.Time
	keywords  map[string]*series
	lastPrune time.Time
}

type TrackerOption func(*Tracker)

// WithBucket sets the bucket width. Narrower buckets count windows more
// precisely at the cost of memory.
func WithBucket(d time.Duration) TrackerOption {
	return func(t *Tracker) {
		if d > 0 && d <= Window {
			t.bucket = d
		}
	}
}

func WithClock(now func() time.Time) TrackerOption {
	return func(t *Tracker) { t.now = now }
}

func WithBaseline(b float64) TrackerOption {
	return func(t *Tracker) {
		if b > 0 {
			t.baseline = b
		}
	}
}

func NewTracker(opts ...TrackerOption) *Tracker {
	t := &Tracker{bucket: DefaultBucket, baseline: DefaultBaseline, now: time.Now, keywords: map[string]*series{}}
	for _, o := range opts {
		o(t)
	}
	t.slots = int(Window / t.bucket)
	return t
}

func normalize(keyword string) string {
	return strings.ToLower(strings.TrimSpace(keyword))
}

func (t *Tracker) bucketOf(at time.Time) int64 {
	return at.UnixNano() / int64(t.bucket)
}

// Record counts one mention of keyword at the given time. Mentions older than
// the window are ignored.
func (t *Tracker) Record(keyword string, at time.Time) {
	k := normalize(keyword)
	if k == "" {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	now := t.now()
	if at.IsZero() {
		at = now
	}
	if now.Sub(at) >= Window {
		return
	}
	b := t.bucketOf(at)
	s, ok := t.keywords[k]
	if !ok {
		s = &series{counts: make([]int32, t.slots), stamps: make([]int64, t.slots)}
		for i := range s.stamps {
			s.stamps[i] = -1
		}
		t.keywords[k] = s
	}
	slot := int(b % int64(t.slots))
	if s.stamps[slot] != b {
		s.stamps[slot] = b
		s.counts[slot] = 0
	}
	s.counts[slot]++
	if b > s.latest {
		s.latest = b
	}
	if now.Sub(t.lastPrune) > 24*time.Hour {
		t.pruneLocked(now)
	}
}

// Mention is one stored keyword occurrence, used to warm a tracker.
type Mention struct {
	Keyword string
	At      time.Time
}

// Seed replays stored mentions.
func (t *Tracker) Seed(mentions []Mention) {
	for _, m := range mentions {
		t.Record(m.Keyword, m.At)
	}
}

// Counts returns the trailing 7/14/30 day counts for keyword as of now.
func (t *Tracker) Counts(keyword string) Counts {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.keywords[normalize(keyword)]
	if !ok {
		return Counts{}
	}
	return t.countsLocked(s, t.now())
}

func (t *Tracker) countsLocked(s *series, now time.Time) Counts {
	cur := t.bucketOf(now)
	per := func(d time.Duration) int64 { return int64(d / t.bucket) }
	w7, w14, w30 := per(7*24*time.Hour), per(14*24*time.Hour), int64(t.slots)
	var c Counts
	for i, stamp := range s.stamps {
		if stamp < 0 {
			continue
		}
		age := cur - stamp
		if age < 0 || age >= w30 {
			continue
		}
		n := int(s.counts[i])
		c.Last30 += n
		if age < w14 {
			c.Last14 += n
		}
		if age < w7 {
			c.Last7 += n
		}
	}
	return c
}

// Score returns the velocity score for keyword as of now.
func (t *Tracker) Score(keyword string) float64 {
	return Score(t.Counts(keyword), t.baseline)
}

// KeywordVelocity is one ranked keyword.
type KeywordVelocity struct {
	Keyword  string  `json:"keyword"`
	Velocity float64 `json:"velocity"`
	Counts   Counts  `json:"counts"`
}

func (t *Tracker) ranked(minMentions int, keep func(float64) bool) []KeywordVelocity {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := t.now()
	var out []KeywordVelocity
	for k, s := range t.keywords {
		c := t.countsLocked(s, now)
		if c.Last30 < minMentions {
			continue
		}
		v := Score(c, t.baseline)
		if keep != nil && !keep(v) {
			continue
		}
		out = append(out, KeywordVelocity{Keyword: k, Velocity: v, Counts: c})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Velocity != out[j].Velocity {
			return out[i].Velocity > out[j].Velocity
		}
		return out[i].Keyword < out[j].Keyword
	})
	return out
}

// TopAccelerating returns up to topK keywords with at least minMentions in the
// trailing 30 days, fastest first.
func (t *Tracker) TopAccelerating(minMentions, topK int) []KeywordVelocity {
	out := t.ranked(minMentions, nil)
	if topK > 0 && len(out) > topK {
		out = out[:topK]
	}
	return out
}

// Spikes returns keywords whose velocity is at least threshold.
func (t *Tracker) Spikes(threshold float64, minMentions int) []KeywordVelocity {
	return t.ranked(minMentions, func(v float64) bool { return v >= threshold })
}

// Len reports how many keywords are tracked.
func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.keywords)
}

// Prune drops keywords with no mention inside the window.
func (t *Tracker) Prune() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.pruneLocked(t.now())
}

func (t *Tracker) pruneLocked(now time.Time) {
	cur := t.bucketOf(now)
	for k, s := range t.keywords {
		if cur-s.latest >= int64(t.slots) {
			delete(t.keywords, k)
		}
	}
	t.lastPrune = now
}

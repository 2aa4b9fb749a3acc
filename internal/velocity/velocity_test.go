package velocity

import (
	"fmt"
	"math"
	"testing"
	"time"
)

func TestScoreBounds(t *testing.T) {
	for c7 := 0; c7 <= 40; c7 += 3 {
		for extra14 := 0; extra14 <= 40; extra14 += 7 {
			for extra30 := 0; extra30 <= 60; extra30 += 11 {
				c := Counts{Last7: c7, Last14: c7 + extra14, Last30: c7 + extra14 + extra30}
				v := Score(c, DefaultBaseline)
				if v < 0 || v > 1 || math.IsNaN(v) {
					t.Fatalf("Score(%+v) = %v", c, v)
				}
			}
		}
	}
	if got := Score(Counts{}, DefaultBaseline); got != 0 {
		t.Fatalf("all-zero counts = %v", got)
	}
}

func TestScoreFormula(t *testing.T) {
	cases := []struct {
		name string
		c    Counts
		want float64
	}{
		// growth 10/5 = 2, accel (10/20)/0.25 = 2, raw = (2/2)*sqrt2, score = sqrt2/2
		{"prior week present", Counts{Last7: 10, Last14: 15, Last30: 20}, math.Sqrt2 / 2},
		// proxy min(5/5,3) = 1, accel (5/5)/0.25 = 4, raw = 0.5*2 = 1, score = 0.5
		{"no prior week uses proxy", Counts{Last7: 5, Last14: 5, Last30: 5}, 0.5},
		{"saturates", Counts{Last7: 50, Last14: 51, Last30: 52}, 1},
		{"inconsistent windows stay bounded", Counts{Last7: 3, Last14: 0, Last30: 0}, (0.6 / 2) / 2},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Score(tc.c, DefaultBaseline); math.Abs(got-tc.want) > 1e-9 {
				t.Fatalf("Score(%+v) = %v, want %v", tc.c, got, tc.want)
			}
		})
	}
}

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

func TestTrackerWindows(t *testing.T) {
	clk := &clock{t: time.Date(2026, 3, 31, 12, 0, 0, 0, time.UTC)}
	tr := NewTracker(WithClock(clk.now))
	day := 24 * time.Hour
	for _, ago := range []time.Duration{1 * day, 2 * day, 9 * day, 20 * day, 40 * day} {
		tr.Record("Invoicing", clk.t.Add(-ago))
	}
	got := tr.Counts("invoicing")
	want := Counts{Last7: 2, Last14: 3, Last30: 4}
	if got != want {
		t.Fatalf("counts = %+v, want %+v", got, want)
	}
	if tr.Score("INVOICING") != Score(want, DefaultBaseline) {
		t.Fatal("score should use lowercased keyword counts")
	}
}

func TestTrackerPrunesExpiredKeywords(t *testing.T) {
	clk := &clock{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	tr := NewTracker(WithClock(clk.now))
	for i := 0; i < 100; i++ {
		tr.Record(fmt.Sprintf("kw-%d", i), clk.t)
	}
	if tr.Len() != 100 {
		t.Fatalf("len = %d", tr.Len())
	}
	clk.t = clk.t.Add(31 * 24 * time.Hour)
	tr.Record("fresh", clk.t)
	if tr.Len() != 1 {
		t.Fatalf("len after prune = %d, want 1", tr.Len())
	}
	if c := tr.Counts("kw-3"); c != (Counts{}) {
		t.Fatalf("expired keyword counts = %+v", c)
	}
}

func TestTrackerIgnoresBlankAndStale(t *testing.T) {
	clk := &clock{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	tr := NewTracker(WithClock(clk.now))
	tr.Record("  ", clk.t)
	tr.Record("old", clk.t.Add(-45*24*time.Hour))
	if tr.Len() != 0 {
		t.Fatalf("len = %d", tr.Len())
	}
}

func TestTopAcceleratingAndSpikes(t *testing.T) {
	clk := &clock{t: time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)}
	tr := NewTracker(WithClock(clk.now))
	hour := time.Hour
	var seed []Mention
	for i := 0; i < 12; i++ {
		seed = append(seed, Mention{Keyword: "agents", At: clk.t.Add(-time.Duration(i) * hour)})
	}
	for i := 0; i < 6; i++ {
		seed = append(seed, Mention{Keyword: "crm", At: clk.t.Add(-time.Duration(i*4) * 24 * hour)})
	}
	seed = append(seed, Mention{Keyword: "rare", At: clk.t})
	tr.Seed(seed)

	top := tr.TopAccelerating(DefaultMinCount, 20)
	if len(top) != 2 || top[0].Keyword != "agents" {
		t.Fatalf("top = %+v", top)
	}
	if top[0].Velocity < top[1].Velocity {
		t.Fatalf("not sorted: %+v", top)
	}
	spikes := tr.Spikes(0.8, DefaultMinCount)
	if len(spikes) != 1 || spikes[0].Keyword != "agents" {
		t.Fatalf("spikes = %+v", spikes)
	}
}

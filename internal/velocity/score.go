// Package velocity measures how quickly mentions of a keyword accelerate.
package velocity

import "math"

const (
	DefaultBaseline = 2.0

	// evenShare is the share of 30-day mentions expected in any 7-day slice
	// when mentions are spread evenly.
	evenShare = 0.25
	// proxyDivisor and proxyCap bound the growth ratio when the prior week
	// had no mentions.
	proxyDivisor = 5.0
	proxyCap     = 3.0
	// rawScale maps the raw ratio onto [0,1] before clamping; a raw value of
	// 2 (twice the baseline growth at even distribution) saturates.
	rawScale = 2.0
)

// Counts holds trailing mention counts. The windows nest: Last7 <= Last14 <= Last30.
type Counts struct {
	Last7  int
	Last14 int
	Last30 int
}

// Score combines week-over-week growth with recent acceleration into a value
// in [0,1]. A baseline <= 0 uses DefaultBaseline.
func Score(c Counts, baseline float64) float64 {
	if baseline <= 0 {
		baseline = DefaultBaseline
	}
	if c.Last7 <= 0 {
		return 0
	}
	c7 := float64(c.Last7)
	prior := float64(c.Last14 - c.Last7)
	var growth float64
	if prior > 0 {
		growth = c7 / prior
	} else {
		growth = math.Min(c7/proxyDivisor, proxyCap)
	}
	accel := 1.0
	if c.Last30 > 0 {
		accel = (c7 / float64(c.Last30)) / evenShare
	}
	raw := (growth / baseline) * math.Sqrt(math.Max(accel, 0))
	return clamp01(raw / rawScale)
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

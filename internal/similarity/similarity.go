// Package similarity holds the vector math used for novelty and clustering.
// Nothing here performs I/O.
package similarity

import (
	"math"
	"sort"
)

const (
	DefaultNoveltyThreshold = 0.85
	DefaultClusterThreshold = 0.75
	DefaultMinClusterSize   = 2
	DefaultTopK             = 10

	// AbsentNovelty is reported when the new record has no vector.
	AbsentNovelty = 0.5
)

// Cosine returns the cosine similarity of a and b. It is 0 when either vector
// is empty, has zero norm, or the lengths differ.
func Cosine(a, b []float64) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += a[i] * b[i]
		na += a[i] * a[i]
		nb += b[i] * b[i]
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// Novelty scores how unlike vec is to recent. An empty history is fully novel
// (1.0) and an absent vec is AbsentNovelty. A max similarity above threshold
// is a duplicate (0.0); below it novelty falls linearly as 1 - max/threshold.
func Novelty(vec []float64, recent [][]float64, threshold float64) float64 {
	if len(recent) == 0 {
		return 1.0
	}
	if vec == nil {
		return AbsentNovelty
	}
	if threshold <= 0 {
		threshold = DefaultNoveltyThreshold
	}
	maxSim := math.Inf(-1)
	for _, r := range recent {
		if r == nil {
			continue
		}
		if s := Cosine(vec, r); s > maxSim {
			maxSim = s
		}
	}
	if math.IsInf(maxSim, -1) {
		return 1.0
	}
	if maxSim > threshold {
		return 0
	}
	n := 1 - maxSim/threshold
	if n > 1 {
		return 1
	}
	return n
}

// Match is one hit from FindSimilar.
type Match struct {
	Index      int
	Similarity float64
}

// FindSimilar returns the candidates whose similarity to query is at least
// threshold, best first, capped at topK.
func FindSimilar(query []float64, candidates [][]float64, threshold float64, topK int) []Match {
	if query == nil {
		return nil
	}
	var out []Match
	for i, c := range candidates {
		if c == nil {
			continue
		}
		if s := Cosine(query, c); s >= threshold {
			out = append(out, Match{Index: i, Similarity: s})
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Similarity > out[j].Similarity })
	if topK > 0 && len(out) > topK {
		out = out[:topK]
	}
	return out
}

// Mean averages the non-nil vectors that share the first vector's length.
// It returns nil when there is nothing to average.
func Mean(vectors [][]float64) []float64 {
	var sum []float64
	n := 0
	for _, v := range vectors {
		if v == nil {
			continue
		}
		if sum == nil {
			sum = make([]float64, len(v))
		}
		if len(v) != len(sum) {
			continue
		}
		for i, x := range v {
			sum[i] += x
		}
		n++
	}
	if n == 0 {
		return nil
	}
	for i := range sum {
		sum[i] /= float64(n)
	}
	return sum
}

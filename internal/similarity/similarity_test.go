package similarity

import (
	"math"
	"math/rand"
	"testing"
)

const eps = 1e-9

func randomVector(r *rand.Rand, n int) []float64 {
	v := make([]float64, n)
	for i := range v {
		v[i] = r.Float64()*2 - 1
	}
	return v
}

func TestCosineSymmetricAndZeroSafe(t *testing.T) {
	r := rand.New(rand.NewSource(7))
	for i := 0; i < 200; i++ {
		a, b := randomVector(r, 16), randomVector(r, 16)
		if math.Abs(Cosine(a, b)-Cosine(b, a)) > eps {
			t.Fatalf("asymmetric for %v %v", a, b)
		}
	}
	zero := make([]float64, 4)
	if got := Cosine(zero, []float64{1, 2, 3, 4}); got != 0 {
		t.Fatalf("zero vector similarity = %v", got)
	}
	if got := Cosine([]float64{1, 2, 3, 4}, zero); got != 0 {
		t.Fatalf("zero vector similarity = %v", got)
	}
	if got := Cosine([]float64{1, 2}, []float64{1, 2, 3}); got != 0 {
		t.Fatalf("mismatched lengths = %v", got)
	}
	if got := Cosine([]float64{1, 0}, []float64{2, 0}); math.Abs(got-1) > eps {
		t.Fatalf("parallel vectors = %v", got)
	}
}

func TestNoveltyEmptyHistoryIsOne(t *testing.T) {
	r := rand.New(rand.NewSource(11))
	for i := 0; i < 20; i++ {
		if got := Novelty(randomVector(r, 8), nil, DefaultNoveltyThreshold); got != 1.0 {
			t.Fatalf("got %v", got)
		}
	}
	if got := Novelty(nil, nil, DefaultNoveltyThreshold); got != 1.0 {
		t.Fatalf("absent vector with empty history = %v", got)
	}
}

func TestNoveltyAbsentVectorSentinel(t *testing.T) {
	got := Novelty(nil, [][]float64{{1, 0}}, DefaultNoveltyThreshold)
	if got != AbsentNovelty {
		t.Fatalf("got %v", got)
	}
}

func TestNoveltyDuplicateAndLinear(t *testing.T) {
	recent := [][]float64{{1, 0}}
	if got := Novelty([]float64{1, 0.01}, recent, 0.85); got != 0 {
		t.Fatalf("duplicate novelty = %v", got)
	}
	// sim([1,1],[1,0]) = 1/sqrt2
	want := 1 - (1/math.Sqrt2)/0.85
	if got := Novelty([]float64{1, 1}, recent, 0.85); math.Abs(got-want) > eps {
		t.Fatalf("got %v want %v", got, want)
	}
	if got := Novelty([]float64{1, 0}, [][]float64{nil, nil}, 0.85); got != 1.0 {
		t.Fatalf("all-absent history = %v", got)
	}
}

func TestNoveltyMonotoneInMaxSimilarity(t *testing.T) {
	recent := [][]float64{{1, 0}}
	prev := math.Inf(1)
	for deg := 0.0; deg <= 180; deg += 5 {
		rad := deg * math.Pi / 180
		n := Novelty([]float64{math.Cos(rad), math.Sin(rad)}, recent, 0.85)
		// similarity decreases as the angle grows, so novelty must not drop.
		if n < 0 || n > 1 {
			t.Fatalf("novelty %v out of range at %v degrees", n, deg)
		}
		if prev != math.Inf(1) && n < prev-eps {
			t.Fatalf("novelty decreased from %v to %v at %v degrees", prev, n, deg)
		}
		prev = n
	}
}

func TestFindSimilar(t *testing.T) {
	q := []float64{1, 0}
	cands := [][]float64{{0, 1}, {1, 0.1}, nil, {1, 0}, {1, 0.5}}
	got := FindSimilar(q, cands, 0.75, 2)
	if len(got) != 2 {
		t.Fatalf("got %+v", got)
	}
	if got[0].Index != 3 || got[1].Index != 1 {
		t.Fatalf("order = %+v", got)
	}
	if FindSimilar(nil, cands, 0.1, 10) != nil {
		t.Fatal("absent query should find nothing")
	}
}

func TestMean(t *testing.T) {
	got := Mean([][]float64{{1, 2}, nil, {3, 4}, {9}})
	if len(got) != 2 || got[0] != 2 || got[1] != 3 {
		t.Fatalf("got %v", got)
	}
	if Mean(nil) != nil || Mean([][]float64{nil}) != nil {
		t.Fatal("empty mean should be nil")
	}
}

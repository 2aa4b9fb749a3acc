package similarity

import (
	"math"
	"math/rand"
	"testing"
)

func unit(deg float64) []float64 {
	rad := deg * math.Pi / 180
	return []float64{math.Cos(rad), math.Sin(rad)}
}

func TestClusterIsSeedBasedNotTransitive(t *testing.T) {
	// B and C are each about 36 degrees from seed A (cos ~0.81) but 72
	// degrees from each other (cos ~0.31). They still share A's cluster.
	vectors := [][]float64{unit(0), unit(36), unit(-36)}
	if Cosine(vectors[1], vectors[2]) >= DefaultClusterThreshold {
		t.Fatal("fixture: B and C should not match each other")
	}
	got := Cluster(vectors, DefaultClusterThreshold, 2)
	if len(got) != 1 || len(got[0]) != 3 {
		t.Fatalf("clusters = %v", got)
	}
}

func TestClusterDoesNotChainThroughMembers(t *testing.T) {
	// C matches B but not seed A, so it is left for a later seed.
	vectors := [][]float64{unit(0), unit(36), unit(72)}
	got := Cluster(vectors, DefaultClusterThreshold, 1)
	if len(got) != 2 || len(got[0]) != 2 || got[1][0] != 2 {
		t.Fatalf("clusters = %v", got)
	}
}

func TestClusterInvariants(t *testing.T) {
	r := rand.New(rand.NewSource(3))
	for trial := 0; trial < 50; trial++ {
		vectors := make([][]float64, 40)
		for i := range vectors {
			if r.Intn(10) == 0 {
				continue
			}
			vectors[i] = randomVector(r, 3)
		}
		minSize := 1 + r.Intn(4)
		clusters := Cluster(vectors, 0.6, minSize)
		seen := map[int]bool{}
		for _, c := range clusters {
			if len(c) < minSize {
				t.Fatalf("cluster %v smaller than %d", c, minSize)
			}
			for _, idx := range c {
				if seen[idx] {
					t.Fatalf("index %d in two clusters", idx)
				}
				if vectors[idx] == nil {
					t.Fatalf("nil vector %d clustered", idx)
				}
				seen[idx] = true
			}
		}
	}
}

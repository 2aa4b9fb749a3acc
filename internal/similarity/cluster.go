package similarity

// Cluster groups vectors greedily in one pass. Each unassigned vector, in
// input order, seeds a cluster and absorbs every later unassigned vector whose
// similarity to the seed is at least threshold. Membership is judged against
// the seed only, so two members need not be similar to each other; this finds
// many items near one centre rather than maximal cliques. The opportunity
// score formulas assume these small, tight clusters, so this is not
// connected-components clustering.
//
// Nil vectors never join a cluster. Clusters smaller than minSize are
// dropped. Each index appears in at most one returned cluster.
func Cluster(vectors [][]float64, threshold float64, minSize int) [][]int {
	if minSize < 1 {
		minSize = 1
	}
	assigned := make([]bool, len(vectors))
	var clusters [][]int
	for i, seed := range vectors {
		if assigned[i] || seed == nil {
			continue
		}
		assigned[i] = true
		members := []int{i}
		for j := i + 1; j < len(vectors); j++ {
			if assigned[j] || vectors[j] == nil {
				continue
			}
			if Cosine(seed, vectors[j]) >= threshold {
				assigned[j] = true
				members = append(members, j)
			}
		}
		if len(members) >= minSize {
			clusters = append(clusters, members)
		}
	}
	return clusters
}

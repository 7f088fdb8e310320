package graph

import (
	"math"

	"github.com/roder/stroma/pkg/models"
)

// ClusterStability compares two successive ClusterResult snapshots over
// the same member set and reports how much the partition shifted: the
// Adjusted Rand Index (1.0 = identical partitions, 0.0 = no better than
// random, negative = worse than random) and the Variation of Information
// distance (0.0 = identical, larger = more disagreement). A group whose
// stability drops sharply between two Analyze calls is a signal worth
// surfacing alongside NeedsAnnouncement, since it means the bridge
// structure moved even if no single member's cluster assignment alone
// looks alarming.
func ClusterStability(prev, next *ClusterResult) (ari, vi float64) {
	members := sortedHashes(commonMembers(prev, next))
	if len(members) < 2 {
		return 1.0, 0.0
	}

	prevLabels := make([]int, len(members))
	nextLabels := make([]int, len(members))
	prevIdx := labelIndex(prev)
	nextIdx := labelIndex(next)
	for i, m := range members {
		prevLabels[i] = prevIdx[prev.ClusterOf[m]]
		nextLabels[i] = nextIdx[next.ClusterOf[m]]
	}

	return adjustedRandIndex(prevLabels, nextLabels), variationOfInformation(prevLabels, nextLabels)
}

func commonMembers(a, b *ClusterResult) []models.MemberHash {
	out := make([]models.MemberHash, 0, len(a.ClusterOf))
	for m := range a.ClusterOf {
		if _, ok := b.ClusterOf[m]; ok {
			out = append(out, m)
		}
	}
	return out
}

func labelIndex(r *ClusterResult) map[ClusterID]int {
	idx := map[ClusterID]int{}
	for id := range r.Members {
		if _, ok := idx[id]; !ok {
			idx[id] = len(idx)
		}
	}
	return idx
}

// adjustedRandIndex is the standard pairwise-agreement partition
// comparison: RI corrected for chance agreement.
func adjustedRandIndex(predicted, groundTruth []int) float64 {
	n := len(predicted)
	if n != len(groundTruth) || n < 2 {
		return 0.0
	}

	nij, rowSums, colSums := contingency(predicted, groundTruth)

	sumNijC2 := 0.0
	for i := range nij {
		for j := range nij[i] {
			sumNijC2 += comb2(nij[i][j])
		}
	}
	sumAiC2 := 0.0
	for _, a := range rowSums {
		sumAiC2 += comb2(a)
	}
	sumBjC2 := 0.0
	for _, b := range colSums {
		sumBjC2 += comb2(b)
	}

	nC2 := comb2(float64(n))
	if nC2 == 0 {
		return 0.0
	}

	expectedIndex := (sumAiC2 * sumBjC2) / nC2
	maxIndex := 0.5 * (sumAiC2 + sumBjC2)

	denominator := maxIndex - expectedIndex
	if math.Abs(denominator) < 1e-12 {
		return 1.0
	}
	return (sumNijC2 - expectedIndex) / denominator
}

// variationOfInformation is the information-theoretic distance between
// two partitions: the sum of conditional entropies H(C|C') + H(C'|C).
func variationOfInformation(predicted, groundTruth []int) float64 {
	n := len(predicted)
	if n != len(groundTruth) || n < 2 {
		return 0.0
	}
	nf := float64(n)

	nij, rowSums, colSums := contingency(predicted, groundTruth)

	hCgivenCp := 0.0
	for i := range nij {
		for j := range nij[i] {
			if nij[i][j] > 0 && colSums[j] > 0 {
				pij := float64(nij[i][j]) / nf
				hCgivenCp -= pij * math.Log2(float64(nij[i][j])/float64(colSums[j]))
			}
		}
	}

	hCpgivenC := 0.0
	for i := range nij {
		for j := range nij[i] {
			if nij[i][j] > 0 && rowSums[i] > 0 {
				pij := float64(nij[i][j]) / nf
				hCpgivenC -= pij * math.Log2(float64(nij[i][j])/float64(rowSums[i]))
			}
		}
	}

	return hCgivenCp + hCpgivenC
}

func contingency(predicted, groundTruth []int) (nij [][]float64, rowSums, colSums []float64) {
	predLabels := uniqueLabels(predicted)
	gtLabels := uniqueLabels(groundTruth)

	predMap := make(map[int]int, len(predLabels))
	for i, l := range predLabels {
		predMap[l] = i
	}
	gtMap := make(map[int]int, len(gtLabels))
	for i, l := range gtLabels {
		gtMap[l] = i
	}

	nij = make([][]float64, len(predLabels))
	for i := range nij {
		nij[i] = make([]float64, len(gtLabels))
	}
	for k := range predicted {
		nij[predMap[predicted[k]]][gtMap[groundTruth[k]]]++
	}

	rowSums = make([]float64, len(predLabels))
	colSums = make([]float64, len(gtLabels))
	for i := range nij {
		for j := range nij[i] {
			rowSums[i] += nij[i][j]
			colSums[j] += nij[i][j]
		}
	}
	return nij, rowSums, colSums
}

func comb2(n float64) float64 {
	if n < 2 {
		return 0
	}
	return n * (n - 1) / 2.0
}

func uniqueLabels(labels []int) []int {
	seen := make(map[int]bool)
	var result []int
	for _, l := range labels {
		if !seen[l] {
			seen[l] = true
			result = append(result, l)
		}
	}
	return result
}

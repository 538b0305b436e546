package vector

import (
	"github.com/viterin/vek/vek32"
)

// kmeansIterations bounds Lloyd's algorithm. Convergence past a handful
// of iterations barely moves recall for this use.
const kmeansIterations = 10

// kmeans fits k centroids to the samples with Lloyd's algorithm.
// Initial centroids are evenly strided samples, which keeps training
// deterministic for a given input order.
func kmeans(samples [][]float32, k, iterations int) [][]float32 {
	if k > len(samples) {
		k = len(samples)
	}

	dim := len(samples[0])
	centroids := make([][]float32, k)
	stride := len(samples) / k
	for i := 0; i < k; i++ {
		c := make([]float32, dim)
		copy(c, samples[i*stride])
		centroids[i] = c
	}

	assignments := make([]int, len(samples))
	for iter := 0; iter < iterations; iter++ {
		changed := false
		for i, s := range samples {
			best := nearestCentroid(s, centroids)
			if best != assignments[i] {
				assignments[i] = best
				changed = true
			}
		}
		if iter > 0 && !changed {
			break
		}

		// Recompute centroids as cluster means
		sums := make([][]float64, k)
		counts := make([]int, k)
		for i := range sums {
			sums[i] = make([]float64, dim)
		}
		for i, s := range samples {
			c := assignments[i]
			counts[c]++
			for j, v := range s {
				sums[c][j] += float64(v)
			}
		}
		for i := range centroids {
			if counts[i] == 0 {
				continue // empty cluster keeps its previous centroid
			}
			for j := range centroids[i] {
				centroids[i][j] = float32(sums[i][j] / float64(counts[i]))
			}
		}
	}

	return centroids
}

// nearestCentroid returns the index of the closest centroid to v.
func nearestCentroid(v []float32, centroids [][]float32) int {
	best := 0
	bestDist := vek32.Distance(v, centroids[0])
	for i := 1; i < len(centroids); i++ {
		if d := vek32.Distance(v, centroids[i]); d < bestDist {
			best = i
			bestDist = d
		}
	}
	return best
}

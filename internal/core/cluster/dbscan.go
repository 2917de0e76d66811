// Package cluster groups embedded objects with DBSCAN over cosine distance.
package cluster

import (
	"github.com/agenthands/moralgraph/internal/core/similarity"
)

const (
	CardEps        = 0.11
	CardMinSamples = 3

	ContextEps        = 0.25
	ContextMinSamples = 1
)

// DBSCAN clusters objects whose embeddings are returned by vec. A point's
// neighborhood holds every object within eps of it, itself included; core
// points have at least minSamples neighbors. Noise is dropped. Objects are
// visited in input order so the output is deterministic, clusters ordered
// by their first member.
func DBSCAN[T any](objects []T, vec func(T) []float32, eps float64, minSamples int) [][]T {
	n := len(objects)
	if n == 0 {
		return nil
	}

	dist := distanceMatrix(objects, vec)
	neighbors := func(i int) []int {
		var out []int
		for j := 0; j < n; j++ {
			if i == j || (dist[i][j] >= 0 && dist[i][j] <= eps) {
				out = append(out, j)
			}
		}
		return out
	}

	const unvisited = -2
	const noise = -1
	labels := make([]int, n)
	for i := range labels {
		labels[i] = unvisited
	}

	cluster := 0
	for i := 0; i < n; i++ {
		if labels[i] != unvisited {
			continue
		}
		seeds := neighbors(i)
		if len(seeds) < minSamples {
			labels[i] = noise
			continue
		}

		labels[i] = cluster
		queue := append([]int(nil), seeds...)
		for len(queue) > 0 {
			j := queue[0]
			queue = queue[1:]
			if labels[j] == noise {
				labels[j] = cluster
			}
			if labels[j] != unvisited {
				continue
			}
			labels[j] = cluster
			if more := neighbors(j); len(more) >= minSamples {
				queue = append(queue, more...)
			}
		}
		cluster++
	}

	out := make([][]T, cluster)
	for i, l := range labels {
		if l >= 0 {
			out[l] = append(out[l], objects[i])
		}
	}
	return out
}

// distanceMatrix holds -1 where the distance is undefined.
func distanceMatrix[T any](objects []T, vec func(T) []float32) [][]float64 {
	n := len(objects)
	vecs := make([][]float32, n)
	for i, o := range objects {
		vecs[i] = vec(o)
	}
	dist := make([][]float64, n)
	for i := range dist {
		dist[i] = make([]float64, n)
	}
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			d, ok := similarity.CosineDistance(vecs[i], vecs[j])
			if !ok {
				d = -1
			}
			dist[i][j], dist[j][i] = d, d
		}
	}
	return dist
}

package cluster

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type point struct {
	ID  int
	Vec []float32
}

func at(id int, deg float64) point {
	r := deg * math.Pi / 180
	return point{ID: id, Vec: []float32{float32(math.Cos(r)), float32(math.Sin(r))}}
}

func vecOf(p point) []float32 { return p.Vec }

func ids(c []point) []int {
	out := make([]int, len(c))
	for i, p := range c {
		out[i] = p.ID
	}
	return out
}

func TestDBSCANSizeFloor(t *testing.T) {
	points := []point{
		at(1, 0), at(2, 1), at(3, 2),
		at(4, 90), at(5, 91),
		at(6, 180),
	}
	clusters := DBSCAN(points, vecOf, CardEps, CardMinSamples)
	require.Len(t, clusters, 1)
	assert.Equal(t, []int{1, 2, 3}, ids(clusters[0]))
}

func TestDBSCANMinOneKeepsSingletons(t *testing.T) {
	points := []point{at(1, 0), at(2, 90), at(3, 1)}
	clusters := DBSCAN(points, vecOf, ContextEps, ContextMinSamples)
	require.Len(t, clusters, 2)
	assert.Equal(t, []int{1, 3}, ids(clusters[0]))
	assert.Equal(t, []int{2}, ids(clusters[1]))
}

func TestDBSCANEpsAdjacency(t *testing.T) {
	// A chain with 20 degree steps: each neighbor is within eps of the
	// next, the ends are not within eps of each other.
	points := []point{at(1, 0), at(2, 20), at(3, 40), at(4, 60)}
	eps := 1 - math.Cos(21*math.Pi/180)

	clusters := DBSCAN(points, vecOf, eps, 2)
	require.Len(t, clusters, 1)
	assert.Equal(t, []int{1, 2, 3, 4}, ids(clusters[0]))

	tight := 1 - math.Cos(19*math.Pi/180)
	assert.Empty(t, DBSCAN(points, vecOf, tight, 2))
}

func TestDBSCANBorderJoinsFirstCluster(t *testing.T) {
	// 6 is reachable from both dense groups but is not core itself; it
	// joins the group found first.
	points := []point{
		at(1, 0), at(2, 0.5), at(3, 1), at(4, 1.5), at(5, 2),
		at(6, 11),
		at(7, 20), at(8, 20.5), at(9, 21), at(10, 21.5), at(11, 22),
	}
	eps := 1 - math.Cos(9.2*math.Pi/180)
	clusters := DBSCAN(points, vecOf, eps, 4)
	require.Len(t, clusters, 2)
	assert.Equal(t, []int{1, 2, 3, 4, 5, 6}, ids(clusters[0]))
	assert.Equal(t, []int{7, 8, 9, 10, 11}, ids(clusters[1]))
}

func TestDBSCANSkipsMissingEmbeddings(t *testing.T) {
	points := []point{at(1, 0), {ID: 2}, at(3, 0.5)}
	clusters := DBSCAN(points, vecOf, CardEps, 2)
	require.Len(t, clusters, 1)
	assert.Equal(t, []int{1, 3}, ids(clusters[0]))
	assert.Empty(t, DBSCAN([]point{}, vecOf, CardEps, 1))
}

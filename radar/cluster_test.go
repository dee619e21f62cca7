package radar

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestClusterPointsEmpty(t *testing.T) {
	assert.Nil(t, ClusterPoints(nil, nil, nil, 1, 0.2))
}

func TestClusterPointsSingle(t *testing.T) {
	reps := ClusterPoints([]float32{10}, []float32{0.5}, []float32{0}, 1, 0.2)
	require.Equal(t, []uint32{0}, reps)
}

// Two nearby returns and one far one: the near pair collapses into a single
// detection represented by the first point, the far one stands alone.
func TestClusterPointsTwoGroups(t *testing.T) {
	distance := []float32{5, 5.2, 50}
	azimuth := []float32{0, 0.1, 2}
	elevation := []float32{0, 0, 0}

	reps := ClusterPoints(distance, azimuth, elevation, 1, 0.2)
	require.Len(t, reps, 2)
	// Both members of the near pair are equidistant from the bounding
	// midpoint; the tie keeps the earlier index.
	assert.Equal(t, uint32(0), reps[0])
	assert.Equal(t, uint32(2), reps[1])
}

func TestAssignCoversEveryPoint(t *testing.T) {
	distance := []float32{1, 1.5, 30, 1.2, 31}
	azimuth := []float32{0, 0.05, 1, 0.02, 1.01}
	elevation := []float32{0, 0, 0, 0, 0}

	clusters := Assign(distance, azimuth, elevation, 1, 0.2)
	seen := map[uint32]bool{}
	for _, c := range clusters {
		for _, i := range c.Indices {
			require.False(t, seen[i], "index %d assigned twice", i)
			seen[i] = true
		}
	}
	assert.Len(t, seen, len(distance))
}

func TestMergeCombinesAdjacentClusters(t *testing.T) {
	// Two narrow clusters whose union still fits inside the separations in
	// both dimensions must collapse into one.
	a := newCluster(0, 5, 0, 0)
	b := newCluster(1, 5.5, 0.1, 0.05)
	c := newCluster(2, 50, 2, 0)

	merged := Merge([]Cluster{a, b, c}, 1, 0.2)
	require.Len(t, merged, 2)
	assert.ElementsMatch(t, []uint32{0, 1}, merged[0].Indices)
	assert.Equal(t, [2]float32{5, 5.5}, merged[0].MinMaxDistance)
	assert.Equal(t, [2]float32{0, 0.05}, merged[0].MinMaxElevation)
	assert.Equal(t, []uint32{2}, merged[1].Indices)
}

func TestMergeIsFixedPoint(t *testing.T) {
	distance := []float32{1, 2, 10, 11, 30}
	azimuth := []float32{0, 0, 0, 0, 0}
	elevation := []float32{0, 0, 0, 0, 0}

	merged := Merge(Assign(distance, azimuth, elevation, 1, 0.2), 1, 0.2)
	again := Merge(append([]Cluster(nil), merged...), 1, 0.2)
	assert.Equal(t, len(merged), len(again))

	for i := range merged {
		for j := i + 1; j < len(merged); j++ {
			assert.False(t, merged[i].canMergeWith(&merged[j], 1, 0.2),
				"clusters %d and %d still mergeable", i, j)
		}
	}
}

func TestDirectionalCenterPrefersBoundingMidpoint(t *testing.T) {
	// Azimuths 0, 0.1 and 1.0: the member centroid would favor the low end,
	// the bounding midpoint 0.5 is closest to the outlier-adjacent middle.
	azimuth := []float32{0, 0.4, 1.0}
	elevation := []float32{0, 0, 0}
	c := newCluster(0, 5, azimuth[0], elevation[0])
	c.addPoint(1, 5, azimuth[1], elevation[1])
	c.addPoint(2, 5, azimuth[2], elevation[2])

	assert.Equal(t, uint32(1), c.directionalCenterIndex(azimuth, elevation))
}

func TestClusterPointsProperties(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		n := rapid.IntRange(1, 64).Draw(t, "n")
		distance := make([]float32, n)
		azimuth := make([]float32, n)
		elevation := make([]float32, n)
		for i := 0; i < n; i++ {
			distance[i] = rapid.Float32Range(0, 100).Draw(t, "d")
			azimuth[i] = rapid.Float32Range(-3, 3).Draw(t, "a")
			elevation[i] = rapid.Float32Range(-1, 1).Draw(t, "e")
		}
		distSep := rapid.Float32Range(0.01, 10).Draw(t, "distSep")
		azSep := rapid.Float32Range(0.01, 1).Draw(t, "azSep")

		reps := ClusterPoints(distance, azimuth, elevation, distSep, azSep)
		if len(reps) == 0 || len(reps) > n {
			t.Fatalf("got %d representatives for %d points", len(reps), n)
		}
		seen := map[uint32]bool{}
		for _, r := range reps {
			if int(r) >= n {
				t.Fatalf("representative %d out of range", r)
			}
			if seen[r] {
				t.Fatalf("representative %d repeated", r)
			}
			seen[r] = true
		}

		// Every input point must land in exactly one cluster.
		clusters := Merge(Assign(distance, azimuth, elevation, distSep, azSep), distSep, azSep)
		total := 0
		for _, c := range clusters {
			total += len(c.Indices)
		}
		if total != n {
			t.Fatalf("clusters cover %d of %d points", total, n)
		}
	})
}

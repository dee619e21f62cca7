// Package radar collapses multiple radar detections of one physical target
// into a single representative point. The algorithm is stateless and runs
// on host-mirrored field data.
package radar

import (
	"math"
)

// Cluster is a transient aggregate of point indices. The min/max bounds
// always cover every index currently assigned to the cluster. Elevation is
// tracked for representative selection but plays no part in membership.
type Cluster struct {
	Indices         []uint32
	MinMaxDistance  [2]float32
	MinMaxAzimuth   [2]float32
	MinMaxElevation [2]float32
}

func newCluster(index uint32, distance, azimuth, elevation float32) Cluster {
	return Cluster{
		Indices:         []uint32{index},
		MinMaxDistance:  [2]float32{distance, distance},
		MinMaxAzimuth:   [2]float32{azimuth, azimuth},
		MinMaxElevation: [2]float32{elevation, elevation},
	}
}

func (c *Cluster) addPoint(index uint32, distance, azimuth, elevation float32) {
	c.Indices = append(c.Indices, index)
	c.MinMaxDistance[0] = min(c.MinMaxDistance[0], distance)
	c.MinMaxDistance[1] = max(c.MinMaxDistance[1], distance)
	c.MinMaxAzimuth[0] = min(c.MinMaxAzimuth[0], azimuth)
	c.MinMaxAzimuth[1] = max(c.MinMaxAzimuth[1], azimuth)
	c.MinMaxElevation[0] = min(c.MinMaxElevation[0], elevation)
	c.MinMaxElevation[1] = max(c.MinMaxElevation[1], elevation)
}

// isCandidate reports whether a point falls within the cluster's bounds
// widened by the separation thresholds.
func (c *Cluster) isCandidate(distance, azimuth, distSep, azSep float32) bool {
	return distance >= c.MinMaxDistance[0]-distSep && distance <= c.MinMaxDistance[1]+distSep &&
		azimuth >= c.MinMaxAzimuth[0]-azSep && azimuth <= c.MinMaxAzimuth[1]+azSep
}

func (c *Cluster) canMergeWith(other *Cluster, distSep, azSep float32) bool {
	distanceGood := abs32(c.MinMaxDistance[0]-other.MinMaxDistance[1]) <= distSep &&
		abs32(c.MinMaxDistance[1]-other.MinMaxDistance[0]) <= distSep
	azimuthGood := abs32(c.MinMaxAzimuth[0]-other.MinMaxAzimuth[1]) <= azSep &&
		abs32(c.MinMaxAzimuth[1]-other.MinMaxAzimuth[0]) <= azSep
	return distanceGood && azimuthGood
}

func (c *Cluster) takeIndicesFrom(other Cluster) {
	c.MinMaxDistance[0] = min(c.MinMaxDistance[0], other.MinMaxDistance[0])
	c.MinMaxDistance[1] = max(c.MinMaxDistance[1], other.MinMaxDistance[1])
	c.MinMaxAzimuth[0] = min(c.MinMaxAzimuth[0], other.MinMaxAzimuth[0])
	c.MinMaxAzimuth[1] = max(c.MinMaxAzimuth[1], other.MinMaxAzimuth[1])
	c.MinMaxElevation[0] = min(c.MinMaxElevation[0], other.MinMaxElevation[0])
	c.MinMaxElevation[1] = max(c.MinMaxElevation[1], other.MinMaxElevation[1])
	c.Indices = append(c.Indices, other.Indices...)
}

// directionalCenterIndex picks the member closest (L1, azimuth/elevation)
// to the midpoint of the cluster's bounding ranges. This is deliberately
// the bounding midpoint, not the centroid of the members. Ties keep the
// first index encountered.
func (c *Cluster) directionalCenterIndex(azimuths, elevations []float32) uint32 {
	meanAzimuth := (c.MinMaxAzimuth[0] + c.MinMaxAzimuth[1]) / 2
	meanElevation := (c.MinMaxElevation[0] + c.MinMaxElevation[1]) / 2

	minDistance := float32(math.MaxFloat32)
	minIndex := c.Indices[0]
	for _, i := range c.Indices {
		distance := abs32(azimuths[i]-meanAzimuth) + abs32(elevations[i]-meanElevation)
		if distance < minDistance {
			minDistance = distance
			minIndex = i
		}
	}
	return minIndex
}

// Assign greedily groups points into clusters in a single pass over input
// order. Each point joins the first cluster (in list order) whose widened
// bounds admit it, or starts a new one.
func Assign(distance, azimuth, elevation []float32, distSep, azSep float32) []Cluster {
	if len(distance) == 0 {
		return nil
	}
	clusters := []Cluster{newCluster(0, distance[0], azimuth[0], elevation[0])}
	for i := 1; i < len(distance); i++ {
		clustered := false
		for c := range clusters {
			if clusters[c].isCandidate(distance[i], azimuth[i], distSep, azSep) {
				clusters[c].addPoint(uint32(i), distance[i], azimuth[i], elevation[i])
				clustered = true
				break
			}
		}
		if !clustered {
			clusters = append(clusters, newCluster(uint32(i), distance[i], azimuth[i], elevation[i]))
		}
	}
	return clusters
}

// Merge repeatedly combines mergeable cluster pairs until a full scan finds
// none. After every merge the double scan restarts from the beginning.
// Worst case is cubic in cluster count; cluster counts are expected to be
// small relative to point counts and no safeguard exists for pathological
// inputs.
func Merge(clusters []Cluster, distSep, azSep float32) []Cluster {
	allGood := false
	for len(clusters) > 1 && !allGood {
		allGood = true
	scan:
		for i := 0; i < len(clusters); i++ {
			for j := i + 1; j < len(clusters); j++ {
				if clusters[i].canMergeWith(&clusters[j], distSep, azSep) {
					clusters[i].takeIndicesFrom(clusters[j])
					clusters = append(clusters[:j], clusters[j+1:]...)
					allGood = false
					break scan
				}
			}
		}
	}
	return clusters
}

// ClusterPoints runs the full pipeline: greedy assignment, merge pass and
// representative selection. It returns one representative index per
// surviving cluster, in final cluster-list order. Empty input yields an
// empty result.
func ClusterPoints(distance, azimuth, elevation []float32, distSep, azSep float32) []uint32 {
	if len(distance) == 0 {
		return nil
	}
	clusters := Merge(Assign(distance, azimuth, elevation, distSep, azSep), distSep, azSep)
	out := make([]uint32, 0, len(clusters))
	for c := range clusters {
		out = append(out, clusters[c].directionalCenterIndex(azimuth, elevation))
	}
	return out
}

func abs32(v float32) float32 {
	if v < 0 {
		return -v
	}
	return v
}

package graph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gekko3d/rangesim/core"
	"github.com/gekko3d/rangesim/gpu"
)

func radarInput(distance, azimuth, elevation []float32) *FromArrayNode {
	return NewFromArrayNode(len(distance), map[core.Field][]byte{
		core.FieldDistance:  gpu.Float32sToBytes(distance),
		core.FieldAzimuth:   gpu.Float32sToBytes(azimuth),
		core.FieldElevation: gpu.Float32sToBytes(elevation),
	})
}

func TestRadarPostprocessCollapsesNearbyReturns(t *testing.T) {
	ctx := newTestContext(t)
	src := radarInput(
		[]float32{5, 5.2, 50},
		[]float32{0, 0.1, 2},
		[]float32{0, 0, 0},
	)
	radar := NewRadarPostprocessNode(1, 0.2)

	g := New(nil)
	require.NoError(t, g.AddChild(src, radar))
	require.NoError(t, g.Run(ctx))
	require.NoError(t, g.Synchronize(ctx))

	require.Equal(t, 2, radar.PointCount())
	v, err := radar.FieldData(core.FieldDistance)
	require.NoError(t, err)
	// The near pair is represented by its first point.
	assert.Equal(t, []float32{5, 50}, readFloats(t, ctx, v))
}

func TestRadarPostprocessEmptyInput(t *testing.T) {
	ctx := newTestContext(t)
	src := radarInput(nil, nil, nil)
	radar := NewRadarPostprocessNode(1, 0.2)

	g := New(nil)
	require.NoError(t, g.AddChild(src, radar))
	require.NoError(t, g.Run(ctx))
	require.NoError(t, g.Synchronize(ctx))

	assert.Zero(t, radar.PointCount())
	v, err := radar.FieldData(core.FieldDistance)
	require.NoError(t, err)
	assert.Zero(t, v.Count)
}

func TestRadarPostprocessRequiresSphericalFields(t *testing.T) {
	n := 3
	xyz, distance, _ := makePointCloud(n)
	src := NewFromArrayNode(n, map[core.Field][]byte{
		core.FieldXYZ:      gpu.Vec3sToBytes(xyz),
		core.FieldDistance: gpu.Float32sToBytes(distance),
	})
	radar := NewRadarPostprocessNode(1, 0.2)

	g := New(nil)
	require.NoError(t, g.AddChild(src, radar))
	assert.ErrorIs(t, g.Validate(), core.ErrMissingInput)
}

func TestRadarPostprocessHostOnlyGatherFails(t *testing.T) {
	ctx := newTestContext(t)
	src := radarInput(
		[]float32{5, 50},
		[]float32{0, 2},
		[]float32{0, 0},
	).KeepOnHost()
	radar := NewRadarPostprocessNode(1, 0.2)

	g := New(nil)
	require.NoError(t, g.AddChild(src, radar))
	// Clustering itself runs on the host and tolerates host input; the
	// gather of an output field is what needs device residency.
	require.NoError(t, g.Run(ctx))

	_, err := radar.FieldData(core.FieldDistance)
	require.ErrorIs(t, err, core.ErrInvalidPipeline)
	assert.Contains(t, err.Error(), core.FieldDistance.String())
}

func TestRadarPostprocessRefreshesRequestedFields(t *testing.T) {
	ctx := newTestContext(t)
	src := radarInput(
		[]float32{5, 5.2, 50},
		[]float32{0, 0.1, 2},
		[]float32{0, 0, 0},
	)
	radar := NewRadarPostprocessNode(1, 0.2)

	g := New(nil)
	require.NoError(t, g.AddChild(src, radar))
	require.NoError(t, g.Run(ctx))
	_, err := radar.FieldData(core.FieldAzimuth)
	require.NoError(t, err)

	// A second tick recomputes previously requested fields eagerly; they
	// must be current as soon as the run returns.
	require.NoError(t, g.Run(ctx))
	assert.True(t, radar.cache.IsLatest(core.FieldAzimuth))
}

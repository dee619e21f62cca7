package graph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gekko3d/rangesim/core"
	"github.com/gekko3d/rangesim/gpu"
)

func readFloats(t *testing.T, ctx *ExecContext, v gpu.FieldView) []float32 {
	t.Helper()
	if v.Count == 0 {
		return nil
	}
	raw := make([]byte, v.Count*v.Elem)
	require.NoError(t, v.Buf.Read(ctx.Queue, 0, raw))
	return gpu.BytesToFloat32s(raw)
}

func TestCompactKeepsHitsOnly(t *testing.T) {
	ctx := newTestContext(t)
	const n = 9
	xyz, distance, isHit := makePointCloud(n)

	src := NewFromArrayNode(n, map[core.Field][]byte{
		core.FieldXYZ:      gpu.Vec3sToBytes(xyz),
		core.FieldDistance: gpu.Float32sToBytes(distance),
		core.FieldIsHit:    gpu.Int32sToBytes(isHit),
	})
	compact := NewCompactNode()

	g := New(nil)
	require.NoError(t, g.AddChild(src, compact))
	require.NoError(t, g.Run(ctx))
	require.NoError(t, g.Synchronize(ctx))

	want := []float32{}
	for i, h := range isHit {
		if h != 0 {
			want = append(want, distance[i])
		}
	}
	assert.Equal(t, len(want), compact.PointCount())

	v, err := compact.FieldData(core.FieldDistance)
	require.NoError(t, err)
	assert.Equal(t, want, readFloats(t, ctx, v))
}

func TestCompactFieldDataIsCachedPerTick(t *testing.T) {
	ctx := newTestContext(t)
	const n = 6
	xyz, distance, isHit := makePointCloud(n)

	src := NewFromArrayNode(n, map[core.Field][]byte{
		core.FieldXYZ:      gpu.Vec3sToBytes(xyz),
		core.FieldDistance: gpu.Float32sToBytes(distance),
		core.FieldIsHit:    gpu.Int32sToBytes(isHit),
	})
	compact := NewCompactNode()
	g := New(nil)
	require.NoError(t, g.AddChild(src, compact))
	require.NoError(t, g.Run(ctx))

	v1, err := compact.FieldData(core.FieldDistance)
	require.NoError(t, err)
	v2, err := compact.FieldData(core.FieldDistance)
	require.NoError(t, err)
	assert.Same(t, v1.Buf, v2.Buf, "repeat request within a tick reuses the buffer")
	assert.True(t, compact.cache.IsLatest(core.FieldDistance))

	// The next tick marks everything stale again.
	require.NoError(t, g.Run(ctx))
	assert.False(t, compact.cache.IsLatest(core.FieldDistance))
}

func TestCompactUnknownField(t *testing.T) {
	ctx := newTestContext(t)
	const n = 3
	xyz, _, isHit := makePointCloud(n)

	src := NewFromArrayNode(n, map[core.Field][]byte{
		core.FieldXYZ:   gpu.Vec3sToBytes(xyz),
		core.FieldIsHit: gpu.Int32sToBytes(isHit),
	})
	compact := NewCompactNode()
	g := New(nil)
	require.NoError(t, g.AddChild(src, compact))
	require.NoError(t, g.Run(ctx))

	_, err := compact.FieldData(core.FieldIntensity)
	assert.ErrorIs(t, err, core.ErrMissingInput)
}

func TestCompactHostOnlyInputFails(t *testing.T) {
	ctx := newTestContext(t)
	const n = 3
	xyz, _, isHit := makePointCloud(n)

	src := NewFromArrayNode(n, map[core.Field][]byte{
		core.FieldXYZ:   gpu.Vec3sToBytes(xyz),
		core.FieldIsHit: gpu.Int32sToBytes(isHit),
	}).KeepOnHost()
	compact := NewCompactNode()
	g := New(nil)
	require.NoError(t, g.AddChild(src, compact))

	err := g.Run(ctx)
	require.ErrorIs(t, err, core.ErrInvalidPipeline)
	assert.Contains(t, err.Error(), core.FieldIsHit.String())
}

func TestCompactEmptyInput(t *testing.T) {
	ctx := newTestContext(t)
	src := NewFromArrayNode(0, map[core.Field][]byte{
		core.FieldIsHit:    nil,
		core.FieldDistance: nil,
	})
	compact := NewCompactNode()
	g := New(nil)
	require.NoError(t, g.AddChild(src, compact))
	require.NoError(t, g.Run(ctx))

	assert.Zero(t, compact.PointCount())
	v, err := compact.FieldData(core.FieldDistance)
	require.NoError(t, err)
	assert.Zero(t, v.Count)
}

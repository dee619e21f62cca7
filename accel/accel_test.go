package accel

import (
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gekko3d/rangesim/core"
	"github.com/gekko3d/rangesim/gpu"
)

func quadVerts(z float32) []mgl32.Vec3 {
	return []mgl32.Vec3{
		{-1, -1, z}, {1, -1, z}, {1, 1, z}, {-1, 1, z},
	}
}

var quadIndices = []uint32{0, 1, 2, 0, 2, 3}

func newTestAccel(t *testing.T) (*GeometryAccel, *CPUBackend, *gpu.Queue) {
	t.Helper()
	dev := gpu.NewCPUDevice()
	q := gpu.NewQueue("accel-test")
	t.Cleanup(q.Release)
	backend := NewCPUBackend()
	ga := NewGeometryAccel(dev, backend, nil)
	t.Cleanup(ga.Release)
	return ga, backend, q
}

func TestGASBuildsOnce(t *testing.T) {
	ga, backend, q := newTestAccel(t)
	require.NoError(t, ga.SetIndices(q, quadIndices))
	require.NoError(t, ga.SetVertices(q, quadVerts(5)))

	h1, err := ga.GAS(q)
	require.NoError(t, err)
	h2, err := ga.GAS(q)
	require.NoError(t, err)
	assert.Same(t, h1.(*bvhTree), h2.(*bvhTree))
	assert.Equal(t, 1, backend.Builds())
	assert.Zero(t, backend.Refits())
}

func TestVertexUpdateRefits(t *testing.T) {
	ga, backend, q := newTestAccel(t)
	require.NoError(t, ga.SetIndices(q, quadIndices))
	require.NoError(t, ga.SetVertices(q, quadVerts(5)))
	_, err := ga.GAS(q)
	require.NoError(t, err)

	// Same vertex count: marked for update, refit on next acquisition.
	require.NoError(t, ga.SetVertices(q, quadVerts(8)))
	assert.True(t, ga.Built())
	assert.True(t, ga.NeedsUpdate())

	_, err = ga.GAS(q)
	require.NoError(t, err)
	assert.False(t, ga.NeedsUpdate())
	assert.Equal(t, 1, backend.Builds())
	assert.Equal(t, 1, backend.Refits())
}

func TestVertexCountChangeRebuilds(t *testing.T) {
	ga, backend, q := newTestAccel(t)
	require.NoError(t, ga.SetIndices(q, quadIndices))
	require.NoError(t, ga.SetVertices(q, quadVerts(5)))
	_, err := ga.GAS(q)
	require.NoError(t, err)

	verts := append(quadVerts(5), mgl32.Vec3{0, 2, 5})
	require.NoError(t, ga.SetVertices(q, verts))
	assert.False(t, ga.Built())

	_, err = ga.GAS(q)
	require.NoError(t, err)
	assert.Equal(t, 2, backend.Builds())
	assert.Zero(t, backend.Refits())
}

func TestIndexUpdateForcesRebuild(t *testing.T) {
	ga, backend, q := newTestAccel(t)
	require.NoError(t, ga.SetIndices(q, quadIndices))
	require.NoError(t, ga.SetVertices(q, quadVerts(5)))
	_, err := ga.GAS(q)
	require.NoError(t, err)

	// New topology over the same vertices: never a refit.
	require.NoError(t, ga.SetIndices(q, []uint32{0, 1, 2}))
	assert.False(t, ga.Built())
	_, err = ga.GAS(q)
	require.NoError(t, err)
	assert.Equal(t, 2, backend.Builds())
	assert.Zero(t, backend.Refits())
}

func TestGASWithoutGeometry(t *testing.T) {
	ga, _, q := newTestAccel(t)
	_, err := ga.GAS(q)
	assert.ErrorIs(t, err, core.ErrMissingInput)
}

func TestSetIndicesRejectsPartialTriangle(t *testing.T) {
	ga, _, q := newTestAccel(t)
	assert.ErrorIs(t, ga.SetIndices(q, []uint32{0, 1}), core.ErrInvalidPipeline)
}

func TestIntersectQuad(t *testing.T) {
	ga, backend, q := newTestAccel(t)
	require.NoError(t, ga.SetIndices(q, quadIndices))
	require.NoError(t, ga.SetVertices(q, quadVerts(5)))
	tr, err := ga.GAS(q)
	require.NoError(t, err)

	hit, ok := backend.Intersect(tr, mgl32.Vec3{0, 0, 0}, mgl32.Vec3{0, 0, 1}, 0, 100)
	require.True(t, ok)
	assert.InDelta(t, 5.0, hit.T, 1e-5)
	assert.GreaterOrEqual(t, hit.Prim, int32(0))

	// Aim past the quad's edge.
	_, ok = backend.Intersect(tr, mgl32.Vec3{5, 0, 0}, mgl32.Vec3{0, 0, 1}, 0, 100)
	assert.False(t, ok)

	// Beyond the range cap.
	_, ok = backend.Intersect(tr, mgl32.Vec3{0, 0, 0}, mgl32.Vec3{0, 0, 1}, 0, 4)
	assert.False(t, ok)
}

func TestIntersectAfterRefitTracksGeometry(t *testing.T) {
	ga, backend, q := newTestAccel(t)
	require.NoError(t, ga.SetIndices(q, quadIndices))
	require.NoError(t, ga.SetVertices(q, quadVerts(5)))
	_, err := ga.GAS(q)
	require.NoError(t, err)

	require.NoError(t, ga.SetVertices(q, quadVerts(9)))
	tr, err := ga.GAS(q)
	require.NoError(t, err)

	hit, ok := backend.Intersect(tr, mgl32.Vec3{0, 0, 0}, mgl32.Vec3{0, 0, 1}, 0, 100)
	require.True(t, ok)
	assert.InDelta(t, 9.0, hit.T, 1e-5)
	assert.Equal(t, 1, backend.Refits())
}

func TestTriangleAccessor(t *testing.T) {
	ga, _, q := newTestAccel(t)
	require.NoError(t, ga.SetIndices(q, quadIndices))
	require.NoError(t, ga.SetVertices(q, quadVerts(5)))
	require.NoError(t, q.Synchronize())

	tri, ok := ga.Triangle(1)
	require.True(t, ok)
	assert.Equal(t, [3]uint32{0, 2, 3}, tri)

	_, ok = ga.Triangle(2)
	assert.False(t, ok)
	_, ok = ga.Triangle(-1)
	assert.False(t, ok)
}

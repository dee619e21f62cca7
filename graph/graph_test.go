package graph

import (
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gekko3d/rangesim/accel"
	"github.com/gekko3d/rangesim/core"
	"github.com/gekko3d/rangesim/gpu"
	"github.com/gekko3d/rangesim/scene"
)

func newTestContext(t *testing.T) *ExecContext {
	t.Helper()
	dev := gpu.NewCPUDevice()
	q := gpu.NewQueue("graph-test")
	t.Cleanup(q.Release)
	sc := scene.NewScene(dev, accel.NewCPUBackend(), nil)
	t.Cleanup(sc.Release)
	return &ExecContext{Device: dev, Queue: q, Scene: sc}
}

// quadScene puts a unit quad at the given z into the context's scene and
// returns the mesh and entity handles.
func quadScene(t *testing.T, ctx *ExecContext, z float32) (mesh, ent core.Handle) {
	t.Helper()
	verts := []mgl32.Vec3{{-1, -1, z}, {1, -1, z}, {1, 1, z}, {-1, 1, z}}
	mesh, err := ctx.Scene.CreateMesh(ctx.Queue, verts, []uint32{0, 1, 2, 0, 2, 3})
	require.NoError(t, err)
	ent, err = ctx.Scene.CreateEntity(mesh)
	require.NoError(t, err)
	return mesh, ent
}

func TestGraphRejectsCycle(t *testing.T) {
	a := NewRaysRangeNode(0, 10)
	b := NewRaysRangeNode(0, 10)
	g := New(nil)
	require.NoError(t, g.AddChild(a, b))
	require.NoError(t, g.AddChild(b, a))

	err := g.Validate()
	assert.ErrorIs(t, err, core.ErrInvalidPipeline)
	assert.Contains(t, err.Error(), "cycle")
}

func TestGraphMissingInput(t *testing.T) {
	g := New(nil)
	rays := NewRaysFromMat3x4Node([]mgl32.Mat4{mgl32.Ident4()})
	format := NewFormatNode([]core.Field{core.FieldXYZ})
	// format consumes point-cloud fields; rays alone cannot feed it.
	require.NoError(t, g.AddChild(rays, format))
	assert.ErrorIs(t, g.Validate(), core.ErrMissingInput)
}

type foreignNode struct{}

func (foreignNode) Name() string                { return "foreign" }
func (foreignNode) Validate() error             { return nil }
func (foreignNode) Schedule(*ExecContext) error { return nil }

func TestGraphRejectsForeignNode(t *testing.T) {
	g := New(nil)
	rays := NewRaysFromMat3x4Node([]mgl32.Mat4{mgl32.Ident4()})
	assert.ErrorIs(t, g.AddChild(rays, foreignNode{}), core.ErrInvalidPipeline)
}

func TestGraphRemoveChild(t *testing.T) {
	ctx := newTestContext(t)
	quadScene(t, ctx, 5)

	rays := NewRaysFromMat3x4Node([]mgl32.Mat4{mgl32.Ident4()})
	trace := NewRaytraceNode()
	g := New(nil)
	require.NoError(t, g.AddChild(rays, trace))
	require.NoError(t, g.Validate())

	require.NoError(t, g.RemoveChild(rays, trace))
	assert.ErrorIs(t, g.Validate(), core.ErrMissingInput)
}

func TestGraphRunsInTopologicalOrder(t *testing.T) {
	ctx := newTestContext(t)
	quadScene(t, ctx, 5)

	rays := NewRaysFromMat3x4Node([]mgl32.Mat4{mgl32.Ident4()})
	trace := NewRaytraceNode()
	compact := NewCompactNode()
	format := NewFormatNode([]core.Field{core.FieldXYZ, core.FieldDistance})

	g := New(nil)
	require.NoError(t, g.AddChild(rays, trace))
	require.NoError(t, g.AddChild(trace, compact))
	require.NoError(t, g.AddChild(compact, format))

	require.NoError(t, g.Run(ctx))
	require.NoError(t, g.Synchronize(ctx))

	packed, err := format.ReadOutput(ctx.Queue)
	require.NoError(t, err)
	require.Len(t, packed, 16)
	rec := gpu.BytesToFloat32s(packed)
	assert.InDelta(t, 0.0, rec[0], 1e-5)
	assert.InDelta(t, 0.0, rec[1], 1e-5)
	assert.InDelta(t, 5.0, rec[2], 1e-5)
	assert.InDelta(t, 5.0, rec[3], 1e-5)
}

func TestEmptyRaysFailValidation(t *testing.T) {
	g := New(nil)
	rays := NewRaysFromMat3x4Node(nil)
	trace := NewRaytraceNode()
	require.NoError(t, g.AddChild(rays, trace))
	assert.ErrorIs(t, g.Validate(), core.ErrMissingInput)
}

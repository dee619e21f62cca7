package accel

import (
	"github.com/go-gl/mathgl/mgl32"

	"github.com/gekko3d/rangesim/core"
	"github.com/gekko3d/rangesim/gpu"
)

// GeometryAccel owns the acceleration structure of one mesh: its build
// scratch memory, the shared build descriptor and the cached traversable
// handle. It decides rebuild vs. in-place update: vertex-only changes are a
// cheap refit, index changes always force a full rebuild.
type GeometryAccel struct {
	backend Backend
	log     core.Logger

	in      BuildInput
	scratch *gpu.BufferPair

	handle      Traversable
	built       bool
	needsUpdate bool
}

func NewGeometryAccel(dev gpu.Device, backend Backend, log core.Logger) *GeometryAccel {
	return &GeometryAccel{
		backend: backend,
		log:     core.OrNop(log),
		in: BuildInput{
			Vertices:    gpu.NewBufferPair(dev, "accel-vertices", 12),
			Indices:     gpu.NewBufferPair(dev, "accel-indices", 4),
			AllowUpdate: true,
		},
		scratch: gpu.NewBufferPair(dev, "accel-scratch", 1),
	}
}

// SetVertices replaces the vertex data. When a structure already exists and
// the topology is unchanged, the structure is only marked for an in-place
// update; the refit itself happens lazily on the next GAS call.
func (g *GeometryAccel) SetVertices(q *gpu.Queue, verts []mgl32.Vec3) error {
	refit := g.built && g.in.VertexCount == len(verts)
	if err := g.in.Vertices.SetData(q, gpu.Vec3sToBytes(verts)); err != nil {
		return err
	}
	g.in.VertexCount = len(verts)
	if refit {
		g.needsUpdate = true
	} else {
		g.built = false
		g.handle = nil
		g.needsUpdate = false
	}
	return nil
}

// SetIndices replaces the triangle topology. Topology changes cannot be
// satisfied by an in-place update, so the cached handle is invalidated.
func (g *GeometryAccel) SetIndices(q *gpu.Queue, indices []uint32) error {
	if len(indices)%3 != 0 {
		return core.InvalidPipelinef("accel: %d indices is not a whole number of triangles", len(indices))
	}
	if err := g.in.Indices.SetData(q, gpu.Uint32sToBytes(indices)); err != nil {
		return err
	}
	g.in.TriangleCount = len(indices) / 3
	g.built = false
	g.handle = nil
	g.needsUpdate = false
	return nil
}

// GAS returns a valid traversable handle, building or refitting first if
// required. With a clean cached structure this is O(1). A backend failure
// is fatal for the current call; the resource keeps its dirty state so a
// caller may retry.
func (g *GeometryAccel) GAS(q *gpu.Queue) (Traversable, error) {
	if g.in.VertexCount == 0 || g.in.TriangleCount == 0 {
		return nil, core.MissingInputf("accel: no geometry submitted")
	}
	if g.built && !g.needsUpdate {
		return g.handle, nil
	}
	if g.built {
		// Refit in place using the retained scratch memory.
		if err := g.backend.Refit(q, &g.in, g.handle, g.scratch); err != nil {
			return nil, core.BackendFailure(err, "acceleration structure refit")
		}
		g.needsUpdate = false
		g.log.Debugf("accel: refit %d vertices", g.in.VertexCount)
		return g.handle, nil
	}
	if err := g.scratch.Resize(q, g.backend.ScratchSize(&g.in), false, false); err != nil {
		return nil, err
	}
	handle, err := g.backend.Build(q, &g.in, g.scratch)
	if err != nil {
		return nil, core.BackendFailure(err, "acceleration structure build")
	}
	g.handle = handle
	g.built = true
	g.needsUpdate = false
	g.log.Debugf("accel: built structure over %d triangles", g.in.TriangleCount)
	return g.handle, nil
}

// Built reports whether a structure exists, clean or not.
func (g *GeometryAccel) Built() bool { return g.built }

// NeedsUpdate reports whether the cached handle is awaiting a refit.
func (g *GeometryAccel) NeedsUpdate() bool { return g.needsUpdate }

func (g *GeometryAccel) VertexCount() int   { return g.in.VertexCount }
func (g *GeometryAccel) TriangleCount() int { return g.in.TriangleCount }

// Triangle returns the vertex indices of one triangle, for hit attribute
// interpolation. Only available on host-visible devices.
func (g *GeometryAccel) Triangle(prim int32) ([3]uint32, bool) {
	if prim < 0 || int(prim) >= g.in.TriangleCount {
		return [3]uint32{}, false
	}
	raw, ok := gpu.BufferBytes(g.in.Indices.View().Buf)
	if !ok {
		return [3]uint32{}, false
	}
	flat := gpu.BytesToUint32s(raw[prim*12 : prim*12+12])
	return [3]uint32{flat[0], flat[1], flat[2]}, true
}

func (g *GeometryAccel) Release() {
	g.in.Vertices.Release()
	g.in.Indices.Release()
	g.scratch.Release()
	g.handle = nil
	g.built = false
	g.needsUpdate = false
}

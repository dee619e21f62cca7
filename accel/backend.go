// Package accel owns the geometry acceleration resource and the ray
// tracing backend contract. The backend's internal structure layout is
// opaque; this package only drives its build/update lifecycle.
package accel

import (
	"github.com/go-gl/mathgl/mgl32"

	"github.com/gekko3d/rangesim/gpu"
)

// Traversable is an opaque handle to a built acceleration structure. It is
// valid only while the owning GeometryAccel reports a clean build.
type Traversable any

// Hit is one ray-triangle intersection. U and V are the barycentric
// coordinates of the hit inside triangle Prim.
type Hit struct {
	T    float32
	Prim int32
	U, V float32
}

// BuildInput is the build descriptor shared between full builds and
// in-place updates, so geometry never has to be re-derived between the two.
type BuildInput struct {
	Vertices      *gpu.BufferPair // 3x float32 per vertex
	Indices       *gpu.BufferPair // uint32, 3 per triangle
	VertexCount   int
	TriangleCount int
	AllowUpdate   bool
}

// Backend is the opaque ray tracing backend. Build and Refit are distinct
// entry points on purpose: a refit reuses the existing structure and only
// repositions it, a build starts over.
type Backend interface {
	// ScratchSize declares how much scratch memory a build of in needs.
	ScratchSize(in *BuildInput) int
	Build(q *gpu.Queue, in *BuildInput, scratch *gpu.BufferPair) (Traversable, error)
	Refit(q *gpu.Queue, in *BuildInput, tr Traversable, scratch *gpu.BufferPair) error
	// Intersect traces a single object-space ray and reports the nearest
	// hit within (tMin, tMax).
	Intersect(tr Traversable, origin, dir mgl32.Vec3, tMin, tMax float32) (Hit, bool)
}

package accel

import (
	"encoding/binary"
	"math"
	"sort"
	"sync"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/gekko3d/rangesim/core"
	"github.com/gekko3d/rangesim/gpu"
)

// CPUBackend is a host-side ray tracing backend: a median-split BVH over
// triangles with in-place refit support. It requires the CPU device, whose
// buffers are host-visible. Build/refit invocation counters are exposed so
// callers can observe which entry point was taken.
type CPUBackend struct {
	mu     sync.Mutex
	builds int
	refits int
}

func NewCPUBackend() *CPUBackend { return &CPUBackend{} }

func (b *CPUBackend) Builds() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.builds
}

func (b *CPUBackend) Refits() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.refits
}

const bvhNodeSize = 64

func (b *CPUBackend) ScratchSize(in *BuildInput) int {
	// Worst case: a full binary tree over one-triangle leaves.
	return bvhNodeSize * (2*in.TriangleCount - 1)
}

type bvhNode struct {
	min, max             mgl32.Vec3
	left, right          int32
	leafFirst, leafCount int32
}

func (n *bvhNode) toBytes() []byte {
	buf := make([]byte, bvhNodeSize)
	for i := 0; i < 3; i++ {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(n.min[i]))
		binary.LittleEndian.PutUint32(buf[16+i*4:], math.Float32bits(n.max[i]))
	}
	binary.LittleEndian.PutUint32(buf[32:], uint32(n.left))
	binary.LittleEndian.PutUint32(buf[36:], uint32(n.right))
	binary.LittleEndian.PutUint32(buf[40:], uint32(n.leafFirst))
	binary.LittleEndian.PutUint32(buf[44:], uint32(n.leafCount))
	return buf
}

type bvhTree struct {
	nodes []bvhNode
	order []int32 // leafFirst indexes here; values are triangle ids
	tris  [][3]uint32
	verts []mgl32.Vec3
}

type bvhItem struct {
	min, max, centroid mgl32.Vec3
	index              int32
}

func readGeometry(q *gpu.Queue, in *BuildInput) ([]mgl32.Vec3, [][3]uint32, error) {
	if q != nil {
		if err := q.Synchronize(); err != nil {
			return nil, nil, err
		}
	}
	vb, ok := gpu.BufferBytes(in.Vertices.View().Buf)
	if !ok {
		return nil, nil, core.BackendFailuref("cpu backend requires host-visible vertex buffers")
	}
	ib, ok := gpu.BufferBytes(in.Indices.View().Buf)
	if !ok {
		return nil, nil, core.BackendFailuref("cpu backend requires host-visible index buffers")
	}
	verts := gpu.BytesToVec3s(vb[:in.VertexCount*12])
	flat := gpu.BytesToUint32s(ib[:in.TriangleCount*12])
	tris := make([][3]uint32, in.TriangleCount)
	for i := range tris {
		tris[i] = [3]uint32{flat[i*3], flat[i*3+1], flat[i*3+2]}
		for _, vi := range tris[i] {
			if int(vi) >= in.VertexCount {
				return nil, nil, core.BackendFailuref("triangle %d references vertex %d of %d", i, vi, in.VertexCount)
			}
		}
	}
	return verts, tris, nil
}

func (b *CPUBackend) Build(q *gpu.Queue, in *BuildInput, scratch *gpu.BufferPair) (Traversable, error) {
	verts, tris, err := readGeometry(q, in)
	if err != nil {
		return nil, err
	}

	items := make([]bvhItem, len(tris))
	for i, t := range tris {
		lo, hi := triBounds(verts, t)
		items[i] = bvhItem{min: lo, max: hi, centroid: lo.Add(hi).Mul(0.5), index: int32(i)}
	}

	tree := &bvhTree{tris: tris, verts: verts}
	buildRecursive(items, tree)

	// Mirror the linearized nodes into the retained scratch buffer.
	out := make([]byte, 0, len(tree.nodes)*bvhNodeSize)
	for i := range tree.nodes {
		out = append(out, tree.nodes[i].toBytes()...)
	}
	if v := scratch.View(); v.Mem == gpu.MemDevice {
		if err := v.Buf.Write(0, out); err != nil {
			return nil, err
		}
	}

	b.mu.Lock()
	b.builds++
	b.mu.Unlock()
	return tree, nil
}

func buildRecursive(items []bvhItem, tree *bvhTree) int32 {
	idx := int32(len(tree.nodes))
	tree.nodes = append(tree.nodes, bvhNode{left: -1, right: -1, leafFirst: -1})

	lo := mgl32.Vec3{inf32, inf32, inf32}
	hi := mgl32.Vec3{-inf32, -inf32, -inf32}
	for _, it := range items {
		lo = vecMin(lo, it.min)
		hi = vecMax(hi, it.max)
	}
	tree.nodes[idx].min = lo
	tree.nodes[idx].max = hi

	if len(items) == 1 {
		tree.nodes[idx].leafFirst = int32(len(tree.order))
		tree.nodes[idx].leafCount = 1
		tree.order = append(tree.order, items[0].index)
		return idx
	}

	extent := hi.Sub(lo)
	axis := 0
	if extent.Y() > extent.X() {
		axis = 1
	}
	if extent.Z() > extent[axis] {
		axis = 2
	}
	sort.Slice(items, func(i, j int) bool {
		return items[i].centroid[axis] < items[j].centroid[axis]
	})

	mid := len(items) / 2
	left := buildRecursive(items[:mid], tree)
	right := buildRecursive(items[mid:], tree)
	tree.nodes[idx].left = left
	tree.nodes[idx].right = right
	return idx
}

// Refit keeps the tree topology and only recomputes node bounds from the
// current vertex data. Children are always appended after their parent, so
// a reverse scan sees children before parents.
func (b *CPUBackend) Refit(q *gpu.Queue, in *BuildInput, tr Traversable, scratch *gpu.BufferPair) error {
	tree, ok := tr.(*bvhTree)
	if !ok {
		return core.BackendFailuref("refit: foreign traversable handle")
	}
	verts, tris, err := readGeometry(q, in)
	if err != nil {
		return err
	}
	if len(tris) != len(tree.tris) {
		return core.BackendFailuref("refit: triangle count changed from %d to %d", len(tree.tris), len(tris))
	}
	tree.verts = verts

	for i := len(tree.nodes) - 1; i >= 0; i-- {
		n := &tree.nodes[i]
		if n.leafCount > 0 {
			lo := mgl32.Vec3{inf32, inf32, inf32}
			hi := mgl32.Vec3{-inf32, -inf32, -inf32}
			for k := n.leafFirst; k < n.leafFirst+n.leafCount; k++ {
				tlo, thi := triBounds(verts, tree.tris[tree.order[k]])
				lo = vecMin(lo, tlo)
				hi = vecMax(hi, thi)
			}
			n.min, n.max = lo, hi
			continue
		}
		n.min = vecMin(tree.nodes[n.left].min, tree.nodes[n.right].min)
		n.max = vecMax(tree.nodes[n.left].max, tree.nodes[n.right].max)
	}

	b.mu.Lock()
	b.refits++
	b.mu.Unlock()
	return nil
}

func (b *CPUBackend) Intersect(tr Traversable, origin, dir mgl32.Vec3, tMin, tMax float32) (Hit, bool) {
	tree, ok := tr.(*bvhTree)
	if !ok || len(tree.nodes) == 0 {
		return Hit{}, false
	}

	invDir := mgl32.Vec3{1 / dir.X(), 1 / dir.Y(), 1 / dir.Z()}
	best := Hit{T: tMax, Prim: -1}

	stack := make([]int32, 0, 64)
	stack = append(stack, 0)
	for len(stack) > 0 {
		ni := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		n := &tree.nodes[ni]
		if !slabTest(n.min, n.max, origin, invDir, tMin, best.T) {
			continue
		}
		if n.leafCount > 0 {
			for k := n.leafFirst; k < n.leafFirst+n.leafCount; k++ {
				prim := tree.order[k]
				t := tree.tris[prim]
				v0, v1, v2 := tree.verts[t[0]], tree.verts[t[1]], tree.verts[t[2]]
				if tt, u, v, hit := triIntersect(origin, dir, v0, v1, v2, tMin, best.T); hit {
					best = Hit{T: tt, Prim: prim, U: u, V: v}
				}
			}
			continue
		}
		stack = append(stack, n.left, n.right)
	}
	return best, best.Prim >= 0
}

var inf32 = float32(math.Inf(1))

func triBounds(verts []mgl32.Vec3, t [3]uint32) (mgl32.Vec3, mgl32.Vec3) {
	lo := vecMin(vecMin(verts[t[0]], verts[t[1]]), verts[t[2]])
	hi := vecMax(vecMax(verts[t[0]], verts[t[1]]), verts[t[2]])
	return lo, hi
}

func vecMin(a, b mgl32.Vec3) mgl32.Vec3 {
	return mgl32.Vec3{min(a.X(), b.X()), min(a.Y(), b.Y()), min(a.Z(), b.Z())}
}

func vecMax(a, b mgl32.Vec3) mgl32.Vec3 {
	return mgl32.Vec3{max(a.X(), b.X()), max(a.Y(), b.Y()), max(a.Z(), b.Z())}
}

func slabTest(lo, hi, origin, invDir mgl32.Vec3, tMin, tMax float32) bool {
	for a := 0; a < 3; a++ {
		t0 := (lo[a] - origin[a]) * invDir[a]
		t1 := (hi[a] - origin[a]) * invDir[a]
		if t0 > t1 {
			t0, t1 = t1, t0
		}
		if t0 > tMin {
			tMin = t0
		}
		if t1 < tMax {
			tMax = t1
		}
		if tMin > tMax {
			return false
		}
	}
	return true
}

// Moller-Trumbore.
func triIntersect(origin, dir, v0, v1, v2 mgl32.Vec3, tMin, tMax float32) (t, u, v float32, ok bool) {
	const epsilon = 1e-7

	e1 := v1.Sub(v0)
	e2 := v2.Sub(v0)
	p := dir.Cross(e2)
	det := e1.Dot(p)
	if det > -epsilon && det < epsilon {
		return 0, 0, 0, false
	}
	invDet := 1 / det
	s := origin.Sub(v0)
	u = s.Dot(p) * invDet
	if u < 0 || u > 1 {
		return 0, 0, 0, false
	}
	qv := s.Cross(e1)
	v = dir.Dot(qv) * invDet
	if v < 0 || u+v > 1 {
		return 0, 0, 0, false
	}
	t = e2.Dot(qv) * invDet
	if t <= tMin || t >= tMax {
		return 0, 0, 0, false
	}
	return t, u, v, true
}

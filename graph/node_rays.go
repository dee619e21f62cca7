package graph

import (
	"github.com/go-gl/mathgl/mgl32"

	"github.com/gekko3d/rangesim/core"
)

// RaysFromMat3x4Node is the usual graph entry point: a fixed batch of ray
// transforms. Each ray fires from the transform's translation along its
// rotated +Z axis.
type RaysFromMat3x4Node struct {
	baseNode
	rays []mgl32.Mat4
}

func NewRaysFromMat3x4Node(rays []mgl32.Mat4) *RaysFromMat3x4Node {
	return &RaysFromMat3x4Node{
		baseNode: baseNode{name: "rays-from-mat3x4"},
		rays:     rays,
	}
}

// SetRays replaces the ray batch. Takes effect on the next Run.
func (n *RaysFromMat3x4Node) SetRays(rays []mgl32.Mat4) { n.rays = rays }

func (n *RaysFromMat3x4Node) Validate() error {
	if len(n.rays) == 0 {
		return core.MissingInputf("%s: no rays set", n.name)
	}
	return nil
}

func (n *RaysFromMat3x4Node) Schedule(ctx *ExecContext) error { return nil }

func (n *RaysFromMat3x4Node) Rays() []mgl32.Mat4 { return n.rays }

func (n *RaysFromMat3x4Node) RayRange() (float32, float32) { return 0, 0 }

// RaysRangeNode overrides the distance range of the rays flowing through
// it.
type RaysRangeNode struct {
	baseNode
	input    RaysProvider
	min, max float32
}

func NewRaysRangeNode(minRange, maxRange float32) *RaysRangeNode {
	return &RaysRangeNode{
		baseNode: baseNode{name: "rays-set-range"},
		min:      minRange,
		max:      maxRange,
	}
}

func (n *RaysRangeNode) SetRange(minRange, maxRange float32) {
	n.min, n.max = minRange, maxRange
}

func (n *RaysRangeNode) Validate() error {
	in, err := findInput[RaysProvider](&n.baseNode, "rays")
	if err != nil {
		return err
	}
	n.input = in
	if n.max <= n.min {
		return core.InvalidPipelinef("%s: range [%g, %g] is empty", n.name, n.min, n.max)
	}
	return nil
}

func (n *RaysRangeNode) Schedule(ctx *ExecContext) error { return nil }

func (n *RaysRangeNode) Rays() []mgl32.Mat4 { return n.input.Rays() }

func (n *RaysRangeNode) RayRange() (float32, float32) { return n.min, n.max }

// RaysTransformNode applies one rigid transform to every ray, e.g. the
// sensor's pose in the world.
type RaysTransformNode struct {
	baseNode
	input RaysProvider
	tf    mgl32.Mat4
}

func NewRaysTransformNode(tf mgl32.Mat4) *RaysTransformNode {
	return &RaysTransformNode{
		baseNode: baseNode{name: "rays-transform"},
		tf:       tf,
	}
}

func (n *RaysTransformNode) SetTransform(tf mgl32.Mat4) { n.tf = tf }

func (n *RaysTransformNode) Validate() error {
	in, err := findInput[RaysProvider](&n.baseNode, "rays")
	if err != nil {
		return err
	}
	n.input = in
	return nil
}

func (n *RaysTransformNode) Schedule(ctx *ExecContext) error { return nil }

func (n *RaysTransformNode) Rays() []mgl32.Mat4 {
	in := n.input.Rays()
	out := make([]mgl32.Mat4, len(in))
	for i, r := range in {
		out[i] = n.tf.Mul4(r)
	}
	return out
}

func (n *RaysTransformNode) RayRange() (float32, float32) { return n.input.RayRange() }

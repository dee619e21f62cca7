package graph

import (
	"math"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/gekko3d/rangesim/core"
	"github.com/gekko3d/rangesim/gpu"
)

// GaussianNoiseDistanceNode perturbs each hit's measured distance with
// additive Gaussian noise and moves the hit point along its ray direction
// to match. Non-hit points pass through untouched. The noise step runs on
// the host over mirrored data.
type GaussianNoiseDistanceNode struct {
	baseNode
	input PointsProvider
	dist  distuv.Normal

	hostDistance *gpu.BufferPair
	hostXYZ      *gpu.BufferPair
	outDistance  *gpu.BufferPair
	outXYZ       *gpu.BufferPair
	width        int
}

func NewGaussianNoiseDistanceNode(mean, stddev float64, seed uint64) *GaussianNoiseDistanceNode {
	return &GaussianNoiseDistanceNode{
		baseNode: baseNode{name: "gaussian-noise-distance"},
		dist: distuv.Normal{
			Mu:    mean,
			Sigma: stddev,
			Src:   rand.NewSource(seed),
		},
		hostDistance: gpu.NewHostMirror("noise-distance-in", core.FieldDistance.Size()),
		hostXYZ:      gpu.NewHostMirror("noise-xyz-in", core.FieldXYZ.Size()),
	}
}

func (n *GaussianNoiseDistanceNode) Validate() error {
	in, err := findInput[PointsProvider](&n.baseNode, "point-cloud fields")
	if err != nil {
		return err
	}
	n.input = in
	if n.dist.Sigma < 0 {
		return core.InvalidPipelinef("%s: negative standard deviation", n.name)
	}
	for _, f := range []core.Field{core.FieldDistance, core.FieldXYZ} {
		if !in.Provides(f) {
			return core.MissingInputf("%s requires %s from its input", n.name, f)
		}
	}
	return nil
}

func (n *GaussianNoiseDistanceNode) Schedule(ctx *ExecContext) error {
	if n.outDistance == nil {
		n.outDistance = gpu.NewBufferPair(ctx.Device, n.name+"-distance", core.FieldDistance.Size())
		n.outXYZ = gpu.NewBufferPair(ctx.Device, n.name+"-xyz", core.FieldXYZ.Size())
	}
	n.width = n.input.PointCount()
	if n.width == 0 {
		if err := n.outDistance.Resize(ctx.Queue, 0, false, false); err != nil {
			return err
		}
		return n.outXYZ.Resize(ctx.Queue, 0, false, false)
	}

	src, err := n.input.FieldData(core.FieldDistance)
	if err != nil {
		return err
	}
	if err := n.hostDistance.CopyFrom(ctx.Queue, src); err != nil {
		return err
	}
	src, err = n.input.FieldData(core.FieldXYZ)
	if err != nil {
		return err
	}
	if err := n.hostXYZ.CopyFrom(ctx.Queue, src); err != nil {
		return err
	}

	distance := n.hostDistance.Float32s()
	xyz := gpu.BytesToVec3s(n.hostXYZ.HostBytes())
	for i := range distance {
		d := distance[i]
		if math.IsInf(float64(d), 0) || d <= 0 {
			continue
		}
		noisy := d + float32(n.dist.Rand())
		scale := noisy / d
		distance[i] = noisy
		xyz[i] = xyz[i].Mul(scale)
	}

	if err := n.outDistance.SetData(ctx.Queue, gpu.Float32sToBytes(distance)); err != nil {
		return err
	}
	return n.outXYZ.SetData(ctx.Queue, gpu.Vec3sToBytes(xyz))
}

func (n *GaussianNoiseDistanceNode) PointCount() int { return n.width }

func (n *GaussianNoiseDistanceNode) Provides(f core.Field) bool {
	return n.input != nil && n.input.Provides(f)
}

func (n *GaussianNoiseDistanceNode) FieldData(f core.Field) (gpu.FieldView, error) {
	switch {
	case n.input == nil:
		return gpu.FieldView{}, core.MissingInputf("%s: not validated", n.name)
	case n.outDistance == nil:
		return gpu.FieldView{}, core.InvalidPipelinef("%s: field requested before first execution", n.name)
	case f == core.FieldDistance:
		return n.outDistance.View(), nil
	case f == core.FieldXYZ:
		return n.outXYZ.View(), nil
	}
	return n.input.FieldData(f)
}

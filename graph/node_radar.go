package graph

import (
	"github.com/gekko3d/rangesim/core"
	"github.com/gekko3d/rangesim/gpu"
	"github.com/gekko3d/rangesim/radar"
)

// RadarPostprocessNode collapses groups of radar returns that belong to one
// physical target into a single representative point per group. Clustering
// runs on the host against mirrored distance, azimuth and elevation data;
// the surviving indices then drive the usual filtered-field gathers.
type RadarPostprocessNode struct {
	filteredNode
	distSep float32
	azSep   float32

	hostDistance  *gpu.BufferPair
	hostAzimuth   *gpu.BufferPair
	hostElevation *gpu.BufferPair
}

func NewRadarPostprocessNode(distanceSeparation, azimuthSeparation float32) *RadarPostprocessNode {
	return &RadarPostprocessNode{
		filteredNode:  newFilteredNode("radar-postprocess"),
		distSep:       distanceSeparation,
		azSep:         azimuthSeparation,
		hostDistance:  gpu.NewHostMirror("radar-distance", core.FieldDistance.Size()),
		hostAzimuth:   gpu.NewHostMirror("radar-azimuth", core.FieldAzimuth.Size()),
		hostElevation: gpu.NewHostMirror("radar-elevation", core.FieldElevation.Size()),
	}
}

func (n *RadarPostprocessNode) Validate() error {
	if err := n.resolveInput(); err != nil {
		return err
	}
	for _, f := range []core.Field{core.FieldDistance, core.FieldAzimuth, core.FieldElevation} {
		if !n.input.Provides(f) {
			return core.MissingInputf("%s requires %s from its input", n.name, f)
		}
	}
	return nil
}

func (n *RadarPostprocessNode) Schedule(ctx *ExecContext) error {
	indices := n.ensureIndices(ctx)
	n.cache.Trigger()

	if n.input.PointCount() == 0 {
		n.width = 0
		return indices.Resize(ctx.Queue, 0, false, false)
	}

	if err := n.mirror(ctx, core.FieldDistance, n.hostDistance); err != nil {
		return err
	}
	if err := n.mirror(ctx, core.FieldAzimuth, n.hostAzimuth); err != nil {
		return err
	}
	if err := n.mirror(ctx, core.FieldElevation, n.hostElevation); err != nil {
		return err
	}
	if err := ctx.Queue.Synchronize(); err != nil {
		return err
	}

	reps := radar.ClusterPoints(
		n.hostDistance.Float32s(),
		n.hostAzimuth.Float32s(),
		n.hostElevation.Float32s(),
		n.distSep, n.azSep)
	if err := indices.SetData(ctx.Queue, gpu.Uint32sToBytes(reps)); err != nil {
		return err
	}
	n.width = len(reps)
	ctx.Log.Debugf("%s: %d returns clustered into %d detections",
		n.name, n.input.PointCount(), n.width)

	// Refresh previously requested fields eagerly so the results of this
	// tick are complete once the node returns.
	for _, f := range n.cache.Keys() {
		if _, err := n.FieldData(f); err != nil {
			return err
		}
	}
	return nil
}

func (n *RadarPostprocessNode) mirror(ctx *ExecContext, f core.Field, dst *gpu.BufferPair) error {
	src, err := n.input.FieldData(f)
	if err != nil {
		return err
	}
	return dst.CopyFrom(ctx.Queue, src)
}

package graph

import (
	"sync"

	"github.com/gekko3d/rangesim/core"
	"github.com/gekko3d/rangesim/gpu"
)

// filteredNode is the shared machinery of nodes that reduce their input to
// a subset of point indices. Every requested field is re-derived lazily by
// a device-side indexed gather at those indices, cached per field kind and
// recomputed at most once per tick.
type filteredNode struct {
	baseNode
	input   PointsProvider
	cache   *CacheManager
	indices *gpu.BufferPair
	width   int

	// fieldDataMu guards against two callers racing to recompute fields
	// in the same tick.
	fieldDataMu sync.Mutex
	ctx         *ExecContext
}

func newFilteredNode(name string) filteredNode {
	return filteredNode{
		baseNode: baseNode{name: name},
		cache:    NewCacheManager(),
	}
}

func (n *filteredNode) PointCount() int { return n.width }

func (n *filteredNode) Provides(f core.Field) bool {
	return n.input != nil && n.input.Provides(f)
}

// resolveInput wires the upstream point source and clears the cache: the
// producible field set follows the input, so buffers from a prior shape
// must never be reused.
func (n *filteredNode) resolveInput() error {
	in, err := findInput[PointsProvider](&n.baseNode, "point-cloud fields")
	if err != nil {
		return err
	}
	n.input = in
	n.cache.Clear()
	return nil
}

// ensureIndices lazily allocates the filtered-index buffer.
func (n *filteredNode) ensureIndices(ctx *ExecContext) *gpu.BufferPair {
	n.ctx = ctx
	if n.indices == nil {
		n.indices = gpu.NewBufferPair(ctx.Device, n.name+"-indices", 4)
	}
	return n.indices
}

// FieldData returns the filtered column for f, recomputing it first when
// it is stale. Never returns a non-latest entry.
func (n *filteredNode) FieldData(f core.Field) (gpu.FieldView, error) {
	n.fieldDataMu.Lock()
	defer n.fieldDataMu.Unlock()

	if n.input == nil || !n.input.Provides(f) {
		return gpu.FieldView{}, core.MissingInputf("%s does not provide %s", n.name, f)
	}
	if n.ctx == nil {
		return gpu.FieldView{}, core.InvalidPipelinef("%s: field requested before first execution", n.name)
	}

	if !n.cache.Contains(f) {
		buf := gpu.NewBufferPair(n.ctx.Device, n.name+"-"+f.String(), f.Size())
		if err := buf.Resize(n.ctx.Queue, n.width, false, false); err != nil {
			return gpu.FieldView{}, err
		}
		n.cache.Insert(f, buf, true)
	}

	if !n.cache.IsLatest(f) {
		buf := n.cache.Value(f)
		if err := buf.Resize(n.ctx.Queue, n.width, false, false); err != nil {
			return gpu.FieldView{}, err
		}
		if n.width > 0 {
			src, err := n.input.FieldData(f)
			if err != nil {
				return gpu.FieldView{}, err
			}
			if src.Mem != gpu.MemDevice {
				return gpu.FieldView{}, core.InvalidPipelinef(
					"%s requires its input to be device-accessible, %s is not", n.name, f)
			}
			kernels := n.ctx.Device.Kernels()
			if err := kernels.Gather(n.ctx.Queue, n.indices.View().Buf, n.width, f.Size(), src.Buf, buf.View().Buf); err != nil {
				return gpu.FieldView{}, err
			}
			if err := n.ctx.Queue.Synchronize(); err != nil {
				return gpu.FieldView{}, err
			}
		}
		n.cache.SetUpdated(f)
	}
	return n.cache.Value(f).View(), nil
}

// CompactNode drops non-hit points and re-indexes the cloud by the hit
// mask. Determining the surviving count is a documented synchronization
// point.
type CompactNode struct {
	filteredNode
}

func NewCompactNode() *CompactNode {
	return &CompactNode{filteredNode: newFilteredNode("compact-points")}
}

func (n *CompactNode) Validate() error {
	return n.resolveInput()
}

func (n *CompactNode) Schedule(ctx *ExecContext) error {
	indices := n.ensureIndices(ctx)
	n.cache.Trigger()

	count := n.input.PointCount()
	if count == 0 {
		n.width = 0
		return indices.Resize(ctx.Queue, 0, false, false)
	}

	mask, err := n.input.FieldData(core.FieldIsHit)
	if err != nil {
		return err
	}
	if mask.Mem != gpu.MemDevice {
		return core.InvalidPipelinef("%s requires its input to be device-accessible, %s is not",
			n.name, core.FieldIsHit)
	}
	// Capacity for the worst case: everything hit.
	if err := indices.Resize(ctx.Queue, count, false, false); err != nil {
		return err
	}
	hits, err := ctx.Device.Kernels().MaskIndices(ctx.Queue, mask.Buf, count, indices.View().Buf)
	if err != nil {
		return err
	}
	if err := indices.Resize(ctx.Queue, hits, true, false); err != nil {
		return err
	}
	n.width = hits
	return nil
}

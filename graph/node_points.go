package graph

import (
	"github.com/gekko3d/rangesim/core"
	"github.com/gekko3d/rangesim/gpu"
)

// FromArrayNode injects externally produced point data into the graph,
// mainly for tests and replay. Data is uploaded to the device on the first
// Run unless KeepOnHost is set.
type FromArrayNode struct {
	baseNode
	count    int
	data     map[core.Field][]byte
	hostOnly bool
	device   map[core.Field]*gpu.BufferPair
}

func NewFromArrayNode(count int, data map[core.Field][]byte) *FromArrayNode {
	return &FromArrayNode{
		baseNode: baseNode{name: "from-array"},
		count:    count,
		data:     data,
	}
}

// KeepOnHost leaves the injected data in host memory. Downstream device
// kernels will reject such fields; useful for exercising host-side
// consumers and failure paths.
func (n *FromArrayNode) KeepOnHost() *FromArrayNode {
	n.hostOnly = true
	return n
}

func (n *FromArrayNode) Validate() error {
	for f, raw := range n.data {
		if f.IsPadding() {
			return core.InvalidPipelinef("%s: padding field %s carries no data", n.name, f)
		}
		if len(raw) != n.count*f.Size() {
			return core.InvalidPipelinef("%s: %s holds %d bytes, want %d for %d points",
				n.name, f, len(raw), n.count*f.Size(), n.count)
		}
	}
	return nil
}

func (n *FromArrayNode) Schedule(ctx *ExecContext) error {
	if n.hostOnly {
		return nil
	}
	if n.device == nil {
		n.device = make(map[core.Field]*gpu.BufferPair, len(n.data))
	}
	for f, raw := range n.data {
		buf := n.device[f]
		if buf == nil {
			buf = gpu.NewBufferPair(ctx.Device, n.name+"-"+f.String(), f.Size())
			n.device[f] = buf
		}
		if err := buf.SetData(ctx.Queue, raw); err != nil {
			return err
		}
	}
	return nil
}

func (n *FromArrayNode) PointCount() int { return n.count }

func (n *FromArrayNode) Provides(f core.Field) bool {
	_, ok := n.data[f]
	return ok
}

func (n *FromArrayNode) FieldData(f core.Field) (gpu.FieldView, error) {
	raw, ok := n.data[f]
	if !ok {
		return gpu.FieldView{}, core.MissingInputf("%s does not provide %s", n.name, f)
	}
	if n.hostOnly {
		return gpu.FieldView{Mem: gpu.MemHost, Host: raw, Count: n.count, Elem: f.Size()}, nil
	}
	buf, ok := n.device[f]
	if !ok {
		return gpu.FieldView{}, core.InvalidPipelinef("%s: field requested before first execution", n.name)
	}
	return buf.View(), nil
}

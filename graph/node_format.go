package graph

import (
	"github.com/gekko3d/rangesim/core"
	"github.com/gekko3d/rangesim/gpu"
)

// FormatNode packs a chosen field list into one contiguous array of
// fixed-size point records. Padding fields contribute layout offset only;
// their bytes are never written and their prior device contents are
// whatever the allocation held.
type FormatNode struct {
	baseNode
	input  PointsProvider
	fields []core.Field
	out    *gpu.BufferPair
	width  int
}

func NewFormatNode(fields []core.Field) *FormatNode {
	return &FormatNode{
		baseNode: baseNode{name: "format-points"},
		fields:   append([]core.Field(nil), fields...),
	}
}

// SetFields replaces the requested layout. Takes effect on the next Run;
// the graph must be re-validated first.
func (n *FormatNode) SetFields(fields []core.Field) {
	n.fields = append([]core.Field(nil), fields...)
}

// PointSize is the packed record size in bytes.
func (n *FormatNode) PointSize() int {
	size := 0
	for _, f := range n.fields {
		size += f.Size()
	}
	return size
}

func (n *FormatNode) Validate() error {
	in, err := findInput[PointsProvider](&n.baseNode, "point-cloud fields")
	if err != nil {
		return err
	}
	n.input = in
	if len(n.fields) == 0 {
		return core.InvalidPipelinef("%s: empty field list", n.name)
	}
	for _, f := range n.fields {
		if !f.IsPadding() && !in.Provides(f) {
			return core.MissingInputf("%s: input does not provide %s", n.name, f)
		}
	}
	return nil
}

func (n *FormatNode) Schedule(ctx *ExecContext) error {
	if n.out == nil {
		n.out = gpu.NewBufferPair(ctx.Device, n.name+"-output", n.PointSize())
	}
	n.width = n.input.PointCount()
	if err := n.out.Resize(ctx.Queue, n.width, false, false); err != nil {
		return err
	}
	if n.width == 0 {
		return nil
	}

	slots := make([]gpu.FieldSlot, 0, len(n.fields))
	offset := 0
	for _, f := range n.fields {
		if f.IsPadding() {
			offset += f.Size()
			continue
		}
		src, err := n.input.FieldData(f)
		if err != nil {
			return err
		}
		if src.Mem != gpu.MemDevice {
			return core.InvalidPipelinef("%s requires its input to be device-accessible, %s is not",
				n.name, f)
		}
		slots = append(slots, gpu.FieldSlot{Src: src.Buf, Size: f.Size(), DstOffset: offset})
		offset += f.Size()
	}
	return ctx.Device.Kernels().Format(ctx.Queue, n.width, n.PointSize(), slots, n.out.View().Buf)
}

// Output returns the packed record array. The view's element size is the
// record size, not any single field's.
func (n *FormatNode) Output() gpu.FieldView {
	if n.out == nil {
		return gpu.FieldView{}
	}
	return n.out.View()
}

// ReadOutput drains the queue and copies the packed records to the host.
func (n *FormatNode) ReadOutput(q *gpu.Queue) ([]byte, error) {
	if n.out == nil || n.width == 0 {
		return nil, nil
	}
	data := make([]byte, n.width*n.PointSize())
	if err := n.out.View().Buf.Read(q, 0, data); err != nil {
		return nil, err
	}
	return data, nil
}

// FormatNode passes the unpacked fields through untouched, so downstream
// nodes can keep consuming individual columns.
func (n *FormatNode) PointCount() int { return n.width }

func (n *FormatNode) Provides(f core.Field) bool {
	return n.input != nil && n.input.Provides(f)
}

func (n *FormatNode) FieldData(f core.Field) (gpu.FieldView, error) {
	if n.input == nil {
		return gpu.FieldView{}, core.MissingInputf("%s: not validated", n.name)
	}
	return n.input.FieldData(f)
}

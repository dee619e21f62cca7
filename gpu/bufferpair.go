package gpu

import (
	"github.com/gekko3d/rangesim/core"
)

// BufferPair is a device-resident array with an optional host mirror.
// The device side is exclusively owned by the pair; downstream consumers
// only ever receive a borrowed FieldView. Not safe for concurrent resize.
type BufferPair struct {
	label string
	dev   Device
	elem  int

	buf      DeviceBuffer
	capBytes int
	count    int

	host []byte
}

func NewBufferPair(dev Device, label string, elemSize int) *BufferPair {
	return &BufferPair{label: label, dev: dev, elem: elemSize}
}

// NewHostMirror creates a pair with no device side, used for host-side
// algorithm input filled via CopyFrom.
func NewHostMirror(label string, elemSize int) *BufferPair {
	return &BufferPair{label: label, elem: elemSize}
}

func (p *BufferPair) Count() int    { return p.count }
func (p *BufferPair) ElemSize() int { return p.elem }
func (p *BufferPair) Label() string { return p.label }

// Resize sets the logical element count. Device storage is reallocated only
// when the requested capacity exceeds the current one; shrinking and
// re-growing within capacity costs nothing. preserve copies prior contents
// forward across a reallocation; zero clears the exposed region.
func (p *BufferPair) Resize(q *Queue, count int, preserve, zero bool) error {
	if p.dev == nil {
		return core.InvalidPipelinef("buffer %q: resize on a host-only mirror", p.label)
	}
	needed := count * p.elem
	if needed > p.capBytes {
		nb, err := p.dev.NewBuffer(p.label, needed)
		if err != nil {
			return core.Exhaustedf("buffer %q: grow to %d bytes: %v", p.label, needed, err)
		}
		if preserve && p.buf != nil && p.count > 0 {
			old := make([]byte, p.count*p.elem)
			if err := p.buf.Read(q, 0, old); err != nil {
				nb.Release()
				return err
			}
			if err := nb.Write(0, old); err != nil {
				nb.Release()
				return err
			}
		}
		if p.buf != nil {
			p.buf.Release()
		}
		p.buf = nb
		p.capBytes = needed
		// fresh allocations start zeroed, nothing more to do for zero
	} else if zero && needed > 0 {
		from := 0
		if preserve {
			from = p.count * p.elem
		}
		if from < needed {
			if err := p.buf.Write(from, make([]byte, needed-from)); err != nil {
				return err
			}
		}
	}
	p.count = count
	return nil
}

// SetData replaces the device contents with data, resizing as needed.
func (p *BufferPair) SetData(q *Queue, data []byte) error {
	if p.elem == 0 || len(data)%p.elem != 0 {
		return core.InvalidPipelinef("buffer %q: %d bytes is not a whole number of %d-byte elements",
			p.label, len(data), p.elem)
	}
	if err := p.Resize(q, len(data)/p.elem, false, false); err != nil {
		return err
	}
	if len(data) == 0 {
		return nil
	}
	return p.buf.Write(0, data)
}

// CopyFrom transfers a source field into the host mirror. Required before
// any host-side algorithm may read the values; synchronizes the queue when
// the source is device-resident.
func (p *BufferPair) CopyFrom(q *Queue, src FieldView) error {
	if src.Elem != p.elem {
		return core.InvalidPipelinef("buffer %q: element size %d does not match source %d",
			p.label, p.elem, src.Elem)
	}
	n := src.Count * src.Elem
	if cap(p.host) < n {
		p.host = make([]byte, n)
	}
	p.host = p.host[:n]
	p.count = src.Count
	if src.Mem == MemDevice {
		return src.Buf.Read(q, 0, p.host)
	}
	copy(p.host, src.Host[:n])
	return nil
}

// View returns a borrowed read handle to the pair's primary storage.
func (p *BufferPair) View() FieldView {
	if p.buf != nil {
		return FieldView{Mem: MemDevice, Buf: p.buf, Count: p.count, Elem: p.elem}
	}
	return FieldView{Mem: MemHost, Host: p.host, Count: p.count, Elem: p.elem}
}

// HostBytes returns the host mirror contents. Valid after CopyFrom.
func (p *BufferPair) HostBytes() []byte { return p.host }

// Float32s decodes the host mirror as float32 values.
func (p *BufferPair) Float32s() []float32 { return BytesToFloat32s(p.host) }

// Uint32s decodes the host mirror as uint32 values.
func (p *BufferPair) Uint32s() []uint32 { return BytesToUint32s(p.host) }

// Release frees the device side. The pair may be resized again afterwards.
func (p *BufferPair) Release() {
	if p.buf != nil {
		p.buf.Release()
		p.buf = nil
	}
	p.capBytes = 0
	p.count = 0
	p.host = nil
}

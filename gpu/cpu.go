package gpu

import (
	"encoding/binary"

	"github.com/gekko3d/rangesim/core"
)

// CPUDevice is the reference device: buffers live in process memory and the
// kernel library runs on the queue worker. It exists so the whole graph can
// execute and be tested without GPU hardware, and it is the device the
// host-side ray tracing backend requires.
type CPUDevice struct{}

func NewCPUDevice() *CPUDevice { return &CPUDevice{} }

func (d *CPUDevice) Name() string { return "cpu-reference" }

func (d *CPUDevice) NewBuffer(label string, size int) (DeviceBuffer, error) {
	if size < 0 {
		return nil, core.Exhaustedf("buffer %q: negative size %d", label, size)
	}
	return &cpuBuffer{label: label, data: make([]byte, size)}, nil
}

func (d *CPUDevice) Kernels() Kernels { return cpuKernels{} }

type cpuBuffer struct {
	label string
	data  []byte
}

func (b *cpuBuffer) Label() string { return b.label }
func (b *cpuBuffer) Size() int     { return len(b.data) }

func (b *cpuBuffer) Write(offset int, p []byte) error {
	if offset < 0 || offset+len(p) > len(b.data) {
		return core.BackendFailuref("buffer %q: write of %d bytes at %d exceeds size %d",
			b.label, len(p), offset, len(b.data))
	}
	copy(b.data[offset:], p)
	return nil
}

func (b *cpuBuffer) Read(q *Queue, offset int, p []byte) error {
	if q != nil {
		if err := q.Synchronize(); err != nil {
			return err
		}
	}
	if offset < 0 || offset+len(p) > len(b.data) {
		return core.BackendFailuref("buffer %q: read of %d bytes at %d exceeds size %d",
			b.label, len(p), offset, len(b.data))
	}
	copy(p, b.data[offset:])
	return nil
}

func (b *cpuBuffer) Release() { b.data = nil }

// BufferBytes exposes the storage of a host-visible device buffer. Only CPU
// device buffers support it; it is how host-side kernels and backends reach
// device data without a copy.
func BufferBytes(b DeviceBuffer) ([]byte, bool) {
	cb, ok := b.(*cpuBuffer)
	if !ok || cb.data == nil {
		return nil, false
	}
	return cb.data, true
}

type cpuKernels struct{}

func hostBytes(b DeviceBuffer, op string) ([]byte, error) {
	p, ok := BufferBytes(b)
	if !ok {
		return nil, core.BackendFailuref("%s: buffer %q is not visible to the cpu kernel library", op, b.Label())
	}
	return p, nil
}

func (cpuKernels) Format(q *Queue, count, pointSize int, slots []FieldSlot, out DeviceBuffer) error {
	q.Enqueue(func() error {
		dst, err := hostBytes(out, "format")
		if err != nil {
			return err
		}
		if len(dst) < count*pointSize {
			return core.BackendFailuref("format: output %q holds %d bytes, need %d",
				out.Label(), len(dst), count*pointSize)
		}
		for _, slot := range slots {
			src, err := hostBytes(slot.Src, "format")
			if err != nil {
				return err
			}
			for i := 0; i < count; i++ {
				copy(dst[i*pointSize+slot.DstOffset:], src[i*slot.Size:(i+1)*slot.Size])
			}
		}
		return nil
	})
	return nil
}

func (cpuKernels) Gather(q *Queue, indices DeviceBuffer, count, elemSize int, src, out DeviceBuffer) error {
	q.Enqueue(func() error {
		idx, err := hostBytes(indices, "gather")
		if err != nil {
			return err
		}
		in, err := hostBytes(src, "gather")
		if err != nil {
			return err
		}
		dst, err := hostBytes(out, "gather")
		if err != nil {
			return err
		}
		for k := 0; k < count; k++ {
			i := int(binary.LittleEndian.Uint32(idx[k*4:]))
			if (i+1)*elemSize > len(in) {
				return core.BackendFailuref("gather: index %d out of range for %q", i, src.Label())
			}
			copy(dst[k*elemSize:], in[i*elemSize:(i+1)*elemSize])
		}
		return nil
	})
	return nil
}

func (cpuKernels) MaskIndices(q *Queue, mask DeviceBuffer, count int, out DeviceBuffer) (int, error) {
	hits := 0
	q.Enqueue(func() error {
		in, err := hostBytes(mask, "mask-indices")
		if err != nil {
			return err
		}
		dst, err := hostBytes(out, "mask-indices")
		if err != nil {
			return err
		}
		for i := 0; i < count; i++ {
			if binary.LittleEndian.Uint32(in[i*4:]) == 0 {
				continue
			}
			binary.LittleEndian.PutUint32(dst[hits*4:], uint32(i))
			hits++
		}
		return nil
	})
	// The caller needs the count on the host; this is a documented
	// synchronization point.
	if err := q.Synchronize(); err != nil {
		return 0, err
	}
	return hits, nil
}

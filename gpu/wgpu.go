//go:build cgo

package gpu

import (
	"github.com/cogentcore/webgpu/wgpu"

	"github.com/gekko3d/rangesim/core"
)

// WGPUDevice adapts a headless wgpu device. Kernels are expressed with
// copy commands only, so no shader modules are required; a production
// deployment would swap in compute-shader kernels behind the same
// interface.
type WGPUDevice struct {
	dev   *wgpu.Device
	queue *wgpu.Queue
}

func NewWGPUDevice() (*WGPUDevice, error) {
	instance := wgpu.CreateInstance(nil)
	defer instance.Release()

	adapter, err := instance.RequestAdapter(&wgpu.RequestAdapterOptions{
		PowerPreference: wgpu.PowerPreferenceHighPerformance,
	})
	if err != nil {
		return nil, core.BackendFailure(err, "no suitable wgpu adapter")
	}
	device, err := adapter.RequestDevice(&wgpu.DeviceDescriptor{
		Label: "rangesim",
	})
	if err != nil {
		return nil, core.BackendFailure(err, "wgpu device request failed")
	}
	return &WGPUDevice{dev: device, queue: device.GetQueue()}, nil
}

func (d *WGPUDevice) Name() string { return "wgpu" }

func (d *WGPUDevice) NewBuffer(label string, size int) (DeviceBuffer, error) {
	// wgpu requires 4-byte aligned sizes
	padded := uint64(size)
	if padded%4 != 0 {
		padded += 4 - padded%4
	}
	buf, err := d.dev.CreateBuffer(&wgpu.BufferDescriptor{
		Label: label,
		Size:  padded,
		Usage: wgpu.BufferUsageStorage | wgpu.BufferUsageCopyDst | wgpu.BufferUsageCopySrc,
	})
	if err != nil {
		return nil, core.Exhaustedf("buffer %q: wgpu allocation of %d bytes failed: %v", label, size, err)
	}
	return &wgpuBuffer{dev: d, label: label, size: size, buf: buf}, nil
}

func (d *WGPUDevice) Kernels() Kernels { return wgpuKernels{dev: d} }

func (d *WGPUDevice) Release() {
	d.dev.Release()
}

type wgpuBuffer struct {
	dev   *WGPUDevice
	label string
	size  int
	buf   *wgpu.Buffer
}

func (b *wgpuBuffer) Label() string { return b.label }
func (b *wgpuBuffer) Size() int     { return b.size }

func (b *wgpuBuffer) Write(offset int, p []byte) error {
	if offset < 0 || offset+len(p) > b.size {
		return core.BackendFailuref("buffer %q: write of %d bytes at %d exceeds size %d",
			b.label, len(p), offset, b.size)
	}
	if len(p) == 0 {
		return nil
	}
	// WriteBuffer wants 4-byte multiples; bounce the tail if needed.
	if len(p)%4 != 0 {
		padded := make([]byte, len(p)+4-len(p)%4)
		copy(padded, p)
		p = padded
	}
	b.dev.queue.WriteBuffer(b.buf, uint64(offset), p)
	return nil
}

func (b *wgpuBuffer) Read(q *Queue, offset int, p []byte) error {
	if q != nil {
		if err := q.Synchronize(); err != nil {
			return err
		}
	}
	if offset < 0 || offset+len(p) > b.size {
		return core.BackendFailuref("buffer %q: read of %d bytes at %d exceeds size %d",
			b.label, len(p), offset, b.size)
	}
	if len(p) == 0 {
		return nil
	}
	n := uint64(len(p))
	if n%4 != 0 {
		n += 4 - n%4
	}
	staging, err := b.dev.dev.CreateBuffer(&wgpu.BufferDescriptor{
		Label: b.label + "-readback",
		Size:  n,
		Usage: wgpu.BufferUsageMapRead | wgpu.BufferUsageCopyDst,
	})
	if err != nil {
		return core.Exhaustedf("buffer %q: readback staging: %v", b.label, err)
	}
	defer staging.Release()

	encoder, err := b.dev.dev.CreateCommandEncoder(nil)
	if err != nil {
		return core.BackendFailure(err, "readback encoder")
	}
	encoder.CopyBufferToBuffer(b.buf, uint64(offset), staging, 0, n)
	cmdBuf, err := encoder.Finish(nil)
	if err != nil {
		return core.BackendFailure(err, "readback encoder finish")
	}
	b.dev.queue.Submit(cmdBuf)

	mapped := make(chan wgpu.BufferMapAsyncStatus, 1)
	staging.MapAsync(wgpu.MapModeRead, 0, n, func(status wgpu.BufferMapAsyncStatus) {
		mapped <- status
	})
	var status wgpu.BufferMapAsyncStatus
	for {
		b.dev.dev.Poll(true, nil)
		select {
		case status = <-mapped:
		default:
			continue
		}
		break
	}
	if status != wgpu.BufferMapAsyncStatusSuccess {
		return core.BackendFailuref("buffer %q: map for read failed: %v", b.label, status)
	}
	copy(p, staging.GetMappedRange(0, uint(n)))
	staging.Unmap()
	return nil
}

func (b *wgpuBuffer) Release() {
	if b.buf != nil {
		b.buf.Release()
		b.buf = nil
	}
}

// wgpuKernels implements the kernel library with buffer copy commands.
// Gather and MaskIndices need control data on the host, so they read it
// back first; both are documented synchronization points on this device.
type wgpuKernels struct {
	dev *WGPUDevice
}

func (k wgpuKernels) copyRanges(ranges []bufCopy) error {
	encoder, err := k.dev.dev.CreateCommandEncoder(nil)
	if err != nil {
		return core.BackendFailure(err, "kernel encoder")
	}
	for _, c := range ranges {
		encoder.CopyBufferToBuffer(c.src, c.srcOff, c.dst, c.dstOff, c.n)
	}
	cmdBuf, err := encoder.Finish(nil)
	if err != nil {
		return core.BackendFailure(err, "kernel encoder finish")
	}
	k.dev.queue.Submit(cmdBuf)
	return nil
}

type bufCopy struct {
	src, dst       *wgpu.Buffer
	srcOff, dstOff uint64
	n              uint64
}

func wgpuBuf(b DeviceBuffer, op string) (*wgpu.Buffer, error) {
	wb, ok := b.(*wgpuBuffer)
	if !ok || wb.buf == nil {
		return nil, core.BackendFailuref("%s: buffer %q is foreign to the wgpu device", op, b.Label())
	}
	return wb.buf, nil
}

func (k wgpuKernels) Format(q *Queue, count, pointSize int, slots []FieldSlot, out DeviceBuffer) error {
	q.Enqueue(func() error {
		dst, err := wgpuBuf(out, "format")
		if err != nil {
			return err
		}
		var ranges []bufCopy
		for _, slot := range slots {
			src, err := wgpuBuf(slot.Src, "format")
			if err != nil {
				return err
			}
			for i := 0; i < count; i++ {
				ranges = append(ranges, bufCopy{
					src: src, srcOff: uint64(i * slot.Size),
					dst: dst, dstOff: uint64(i*pointSize + slot.DstOffset),
					n: uint64(slot.Size),
				})
			}
		}
		return k.copyRanges(ranges)
	})
	return nil
}

func (k wgpuKernels) Gather(q *Queue, indices DeviceBuffer, count, elemSize int, src, out DeviceBuffer) error {
	q.Enqueue(func() error {
		idx := make([]byte, count*4)
		if err := indices.Read(nil, 0, idx); err != nil {
			return err
		}
		srcBuf, err := wgpuBuf(src, "gather")
		if err != nil {
			return err
		}
		dstBuf, err := wgpuBuf(out, "gather")
		if err != nil {
			return err
		}
		ids := BytesToUint32s(idx)
		ranges := make([]bufCopy, 0, count)
		for kk, i := range ids {
			ranges = append(ranges, bufCopy{
				src: srcBuf, srcOff: uint64(int(i) * elemSize),
				dst: dstBuf, dstOff: uint64(kk * elemSize),
				n: uint64(elemSize),
			})
		}
		return k.copyRanges(ranges)
	})
	return nil
}

func (k wgpuKernels) MaskIndices(q *Queue, mask DeviceBuffer, count int, out DeviceBuffer) (int, error) {
	hits := 0
	q.Enqueue(func() error {
		raw := make([]byte, count*4)
		if err := mask.Read(nil, 0, raw); err != nil {
			return err
		}
		var idx []uint32
		for i, v := range BytesToUint32s(raw) {
			if v != 0 {
				idx = append(idx, uint32(i))
			}
		}
		hits = len(idx)
		if hits == 0 {
			return nil
		}
		return out.Write(0, Uint32sToBytes(idx))
	})
	if err := q.Synchronize(); err != nil {
		return 0, err
	}
	return hits, nil
}

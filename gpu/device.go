package gpu

// MemoryKind tells which compute paths can reach a piece of storage.
type MemoryKind int

const (
	// MemHost: pageable host memory, not reachable by device kernels.
	MemHost MemoryKind = iota
	// MemDevice: device-resident, reachable by the kernel library.
	MemDevice
)

func (m MemoryKind) String() string {
	if m == MemDevice {
		return "device"
	}
	return "host"
}

// Device owns device-resident storage and the kernel library that operates
// on it. Implementations: the CPU reference device and the wgpu adapter.
type Device interface {
	Name() string
	NewBuffer(label string, size int) (DeviceBuffer, error)
	Kernels() Kernels
}

// DeviceBuffer is a raw device allocation. Write copies host bytes in
// immediately; Read drains the queue first and is therefore a
// synchronization point. A buffer is exclusively owned by whoever allocated
// it; everyone else gets borrowed FieldViews.
type DeviceBuffer interface {
	Label() string
	Size() int
	Write(offset int, p []byte) error
	Read(q *Queue, offset int, p []byte) error
	Release()
}

// FieldView is a borrowed, read-only handle to one field's storage. It
// never carries ownership.
type FieldView struct {
	Mem   MemoryKind
	Buf   DeviceBuffer // set when Mem == MemDevice
	Host  []byte       // set when Mem == MemHost
	Count int
	Elem  int
}

// FieldSlot describes one source column of a packed point layout.
type FieldSlot struct {
	Src       DeviceBuffer
	Size      int
	DstOffset int
}

// Kernels is the elementwise kernel library. All operations are enqueued on
// the given queue and run asynchronously in issue order, except MaskIndices
// which must return a host-side count and therefore synchronizes.
type Kernels interface {
	// Format packs count points from SoA columns into one AoS buffer of
	// pointSize-byte records. Slots cover only emitted fields; padding
	// contributes offset, never written data.
	Format(q *Queue, count, pointSize int, slots []FieldSlot, out DeviceBuffer) error

	// Gather writes src[indices[k]] to out[k] for k in [0, count), elemSize
	// bytes per element. indices holds uint32 values.
	Gather(q *Queue, indices DeviceBuffer, count, elemSize int, src, out DeviceBuffer) error

	// MaskIndices scans count int32 mask values and writes the indices of
	// the nonzero ones as uint32 into out. Returns how many were written.
	// Synchronization point.
	MaskIndices(q *Queue, mask DeviceBuffer, count int, out DeviceBuffer) (int, error)
}

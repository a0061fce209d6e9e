// Package device defines the narrow compute-device contract the dispatch
// layer is written against: raw buffers addressed by 64-bit device pointers,
// ordered streams, and name-keyed kernel launches. Backends (host, cuda)
// implement Device; everything above this package is backend agnostic.
package device

// Dim3 is a launch extent in grid or block units.
type Dim3 struct {
	X, Y, Z uint32
}

// Stream is an ordered queue of device work. Operations enqueued on the same
// stream execute in enqueue order; distinct streams are unordered relative to
// each other.
type Stream interface {
	// Handle returns the backend handle for the stream. Zero identifies the
	// device's default stream.
	Handle() uint64

	// Synchronize blocks until all work enqueued on the stream has completed.
	Synchronize() error
}

// Buffer is a device allocation. Addr is stable for the buffer's lifetime and
// usable as a kernel parameter.
type Buffer interface {
	Addr() uint64
	Bytes() int64
	Free() error
}

// Device is the minimal surface a backend must provide. All copy and launch
// calls are stream ordered and may return before the work has executed; host
// memory passed to MemcpyH2D must stay valid until the stream is synchronized.
type Device interface {
	Name() string

	Alloc(bytes int64) (Buffer, error)

	// FreeAsync releases the buffer once all prior work on the stream has
	// completed. The buffer must not be used after the call returns.
	FreeAsync(b Buffer, s Stream) error

	MemcpyH2D(dst Buffer, dstOff int64, src []byte, s Stream) error
	MemcpyD2H(dst []byte, src Buffer, srcOff int64, s Stream) error
	MemcpyD2D(dst Buffer, dstOff int64, src Buffer, srcOff int64, bytes int64, s Stream) error

	// Launch enqueues the named kernel. Every parameter is passed as one
	// 64-bit word; pointer parameters carry Buffer addresses.
	Launch(kernel string, grid, block Dim3, s Stream, params []uint64) error

	DefaultStream() Stream
	NewStream() (Stream, error)

	Close() error
}

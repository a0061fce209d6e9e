// Package host implements the device contract on anonymous mapped pages.
// Buffers live outside the Go heap so their addresses are stable and can be
// treated exactly like device pointers; launches run the kernel semantics
// synchronously on the CPU. The backend exists for development, tests and
// machines without a GPU, and shares every code path above the device
// boundary with the cuda backend.
package host

import (
	"fmt"
	"sort"
	"sync"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/mkleiven/rowwise/pkg/device"
)

type region struct {
	base uint64
	mem  []byte
}

// Device is a synchronous in-process device. All copies and launches complete
// before the call returns, so stream synchronization is a no-op.
type Device struct {
	mu         sync.Mutex
	regions    []region // sorted by base
	nextStream uint64
	closed     bool
}

func New() *Device {
	return &Device{nextStream: 1}
}

func (d *Device) Name() string { return "host" }

func (d *Device) Alloc(bytes int64) (device.Buffer, error) {
	if bytes <= 0 {
		return nil, fmt.Errorf("alloc size must be > 0, got %d", bytes)
	}
	page := int64(unix.Getpagesize())
	mapped := (bytes + page - 1) / page * page
	mem, err := unix.Mmap(-1, 0, int(mapped),
		unix.PROT_READ|unix.PROT_WRITE,
		unix.MAP_PRIVATE|unix.MAP_ANON)
	if err != nil {
		return nil, fmt.Errorf("mmap %d bytes: %w", mapped, err)
	}
	base := uint64(uintptr(unsafe.Pointer(&mem[0])))

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		_ = unix.Munmap(mem)
		return nil, fmt.Errorf("device is closed")
	}
	i := sort.Search(len(d.regions), func(i int) bool { return d.regions[i].base >= base })
	d.regions = append(d.regions, region{})
	copy(d.regions[i+1:], d.regions[i:])
	d.regions[i] = region{base: base, mem: mem}
	return &buffer{d: d, base: base, size: bytes}, nil
}

func (d *Device) FreeAsync(b device.Buffer, s device.Stream) error {
	// Synchronous device: all prior work on any stream has already run.
	return b.Free()
}

func (d *Device) MemcpyH2D(dst device.Buffer, dstOff int64, src []byte, s device.Stream) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	mem, err := d.resolve(dst.Addr()+uint64(dstOff), int64(len(src)))
	if err != nil {
		return err
	}
	copy(mem, src)
	return nil
}

func (d *Device) MemcpyD2H(dst []byte, src device.Buffer, srcOff int64, s device.Stream) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	mem, err := d.resolve(src.Addr()+uint64(srcOff), int64(len(dst)))
	if err != nil {
		return err
	}
	copy(dst, mem)
	return nil
}

func (d *Device) MemcpyD2D(dst device.Buffer, dstOff int64, src device.Buffer, srcOff int64, bytes int64, s device.Stream) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	to, err := d.resolve(dst.Addr()+uint64(dstOff), bytes)
	if err != nil {
		return err
	}
	from, err := d.resolve(src.Addr()+uint64(srcOff), bytes)
	if err != nil {
		return err
	}
	copy(to, from)
	return nil
}

func (d *Device) DefaultStream() device.Stream { return stream{} }

func (d *Device) NewStream() (device.Stream, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	h := d.nextStream
	d.nextStream++
	return stream{handle: h}, nil
}

func (d *Device) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil
	}
	d.closed = true
	var first error
	for _, r := range d.regions {
		if err := unix.Munmap(r.mem); err != nil && first == nil {
			first = err
		}
	}
	d.regions = nil
	return first
}

// resolve maps [addr, addr+n) to the backing bytes. Callers hold d.mu.
func (d *Device) resolve(addr uint64, n int64) ([]byte, error) {
	if n < 0 {
		return nil, fmt.Errorf("negative span %d", n)
	}
	i := sort.Search(len(d.regions), func(i int) bool { return d.regions[i].base > addr })
	if i == 0 {
		return nil, fmt.Errorf("address %#x is not device memory", addr)
	}
	r := d.regions[i-1]
	off := addr - r.base
	if off+uint64(n) > uint64(len(r.mem)) {
		return nil, fmt.Errorf("span [%#x,+%d) exceeds allocation at %#x", addr, n, r.base)
	}
	return r.mem[off : off+uint64(n)], nil
}

func (d *Device) free(base uint64) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	i := sort.Search(len(d.regions), func(i int) bool { return d.regions[i].base >= base })
	if i == len(d.regions) || d.regions[i].base != base {
		return fmt.Errorf("double free of %#x", base)
	}
	mem := d.regions[i].mem
	d.regions = append(d.regions[:i], d.regions[i+1:]...)
	return unix.Munmap(mem)
}

type buffer struct {
	d    *Device
	base uint64
	size int64

	mu    sync.Mutex
	freed bool
}

func (b *buffer) Addr() uint64 { return b.base }
func (b *buffer) Bytes() int64 { return b.size }

func (b *buffer) Free() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.freed {
		return nil
	}
	b.freed = true
	return b.d.free(b.base)
}

type stream struct {
	handle uint64
}

func (s stream) Handle() uint64     { return s.handle }
func (s stream) Synchronize() error { return nil }

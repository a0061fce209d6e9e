package cuda

import (
	"errors"
	"fmt"
	"runtime"
	"sync"
	"unsafe"

	"github.com/mkleiven/rowwise/pkg/device"
)

var errClosed = errors.New("cuda: device is closed")

// Device owns one GPU: the retained primary context, the loaded kernel
// module, and every stream created through it.
type Device struct {
	mu       sync.Mutex
	dev      int32
	ctx      uintptr
	mod      uintptr
	hardware string
	fns      map[string]uintptr
	streams  []uintptr
	closed   bool
}

// New opens device 0 and loads the kernel image (a cubin or fatbin built for
// the installed GPU) that provides the gemm and setup symbols.
func New(kernelImage string) (*Device, error) {
	if kernelImage == "" {
		return nil, errors.New("cuda: kernel image path required")
	}
	if err := initDriver(); err != nil {
		return nil, err
	}
	if rc := drv.cuInit(0); rc != cudaSuccess {
		return nil, cuErr("cuInit", rc)
	}
	var count int32
	if rc := drv.cuDeviceGetCount(&count); rc != cudaSuccess {
		return nil, cuErr("cuDeviceGetCount", rc)
	}
	if count < 1 {
		return nil, errors.New("cuda: no devices detected")
	}

	var dev int32
	if rc := drv.cuDeviceGet(&dev, 0); rc != cudaSuccess {
		return nil, cuErr("cuDeviceGet", rc)
	}
	var nameBuf [256]byte
	hardware := "unknown gpu"
	if rc := drv.cuDeviceGetName(&nameBuf[0], int32(len(nameBuf)), dev); rc == cudaSuccess {
		n := 0
		for n < len(nameBuf) && nameBuf[n] != 0 {
			n++
		}
		hardware = string(nameBuf[:n])
	}

	var ctx uintptr
	if rc := drv.cuDevicePrimaryCtxRetain(&ctx, dev); rc != cudaSuccess {
		return nil, cuErr("cuDevicePrimaryCtxRetain", rc)
	}

	d := &Device{
		dev:      dev,
		ctx:      ctx,
		hardware: hardware,
		fns:      make(map[string]uintptr),
	}
	err := d.withCtx(func() error {
		var mod uintptr
		if rc := drv.cuModuleLoad(&mod, kernelImage); rc != cudaSuccess {
			return fmt.Errorf("load kernel image %s: %w", kernelImage, cuErr("cuModuleLoad", rc))
		}
		d.mod = mod
		return nil
	})
	if err != nil {
		drv.cuDevicePrimaryCtxRelease(dev)
		return nil, err
	}
	return d, nil
}

// withCtx pins the goroutine to its OS thread and makes the device context
// current there for the duration of f. The driver ties the current context
// to the calling thread, which the scheduler may otherwise switch under us.
func (d *Device) withCtx(f func() error) error {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	if rc := drv.cuCtxSetCurrent(d.ctx); rc != cudaSuccess {
		return cuErr("cuCtxSetCurrent", rc)
	}
	return f()
}

func (d *Device) Name() string { return "cuda" }

// Hardware returns the GPU model string reported by the driver.
func (d *Device) Hardware() string { return d.hardware }

func (d *Device) Alloc(bytes int64) (device.Buffer, error) {
	if bytes <= 0 {
		return nil, fmt.Errorf("cuda: invalid allocation size %d", bytes)
	}
	d.mu.Lock()
	closed := d.closed
	d.mu.Unlock()
	if closed {
		return nil, errClosed
	}
	var ptr uintptr
	err := d.withCtx(func() error {
		return cuErr("cuMemAlloc", drv.cuMemAlloc(&ptr, uintptr(bytes)))
	})
	if err != nil {
		return nil, fmt.Errorf("alloc %d bytes: %w", bytes, err)
	}
	return &buffer{d: d, ptr: ptr, size: bytes}, nil
}

func (d *Device) FreeAsync(b device.Buffer, s device.Stream) error {
	buf, ok := b.(*buffer)
	if !ok {
		return fmt.Errorf("cuda: foreign buffer %T", b)
	}
	buf.mu.Lock()
	defer buf.mu.Unlock()
	if buf.freed {
		return nil
	}
	buf.freed = true
	if !drv.hasMemFreeAsync {
		return d.withCtx(func() error {
			if rc := drv.cuStreamSynchronize(streamHandle(s)); rc != cudaSuccess {
				return cuErr("cuStreamSynchronize", rc)
			}
			return cuErr("cuMemFree", drv.cuMemFree(buf.ptr))
		})
	}
	return d.withCtx(func() error {
		return cuErr("cuMemFreeAsync", drv.cuMemFreeAsync(buf.ptr, streamHandle(s)))
	})
}

func (d *Device) MemcpyH2D(dst device.Buffer, dstOff int64, src []byte, s device.Stream) error {
	if len(src) == 0 {
		return nil
	}
	if err := checkSpan(dst, dstOff, int64(len(src))); err != nil {
		return err
	}
	err := d.withCtx(func() error {
		rc := drv.cuMemcpyHtoDAsync(uintptr(dst.Addr())+uintptr(dstOff), &src[0], uintptr(len(src)), streamHandle(s))
		return cuErr("cuMemcpyHtoDAsync", rc)
	})
	runtime.KeepAlive(src)
	return err
}

func (d *Device) MemcpyD2H(dst []byte, src device.Buffer, srcOff int64, s device.Stream) error {
	if len(dst) == 0 {
		return nil
	}
	if err := checkSpan(src, srcOff, int64(len(dst))); err != nil {
		return err
	}
	err := d.withCtx(func() error {
		rc := drv.cuMemcpyDtoHAsync(&dst[0], uintptr(src.Addr())+uintptr(srcOff), uintptr(len(dst)), streamHandle(s))
		return cuErr("cuMemcpyDtoHAsync", rc)
	})
	runtime.KeepAlive(dst)
	return err
}

func (d *Device) MemcpyD2D(dst device.Buffer, dstOff int64, src device.Buffer, srcOff int64, bytes int64, s device.Stream) error {
	if bytes == 0 {
		return nil
	}
	if err := checkSpan(dst, dstOff, bytes); err != nil {
		return err
	}
	if err := checkSpan(src, srcOff, bytes); err != nil {
		return err
	}
	return d.withCtx(func() error {
		rc := drv.cuMemcpyDtoDAsync(uintptr(dst.Addr())+uintptr(dstOff), uintptr(src.Addr())+uintptr(srcOff), uintptr(bytes), streamHandle(s))
		return cuErr("cuMemcpyDtoDAsync", rc)
	})
}

func (d *Device) Launch(kernel string, grid, block device.Dim3, s device.Stream, params []uint64) error {
	fn, err := d.function(kernel)
	if err != nil {
		return err
	}

	// The driver reads parameter values during the launch call, so local
	// copies are enough.
	words := append([]uint64(nil), params...)
	ptrs := make([]unsafe.Pointer, len(words))
	for i := range words {
		ptrs[i] = unsafe.Pointer(&words[i])
	}
	var pp *unsafe.Pointer
	if len(ptrs) > 0 {
		pp = &ptrs[0]
	}
	err = d.withCtx(func() error {
		rc := drv.cuLaunchKernel(fn,
			grid.X, grid.Y, grid.Z,
			block.X, block.Y, block.Z,
			0, streamHandle(s), pp, nil)
		if rc != cudaSuccess {
			return fmt.Errorf("launch %s: %w", kernel, cuErr("cuLaunchKernel", rc))
		}
		return nil
	})
	runtime.KeepAlive(words)
	runtime.KeepAlive(ptrs)
	return err
}

// function resolves and caches a kernel symbol from the loaded module.
func (d *Device) function(kernel string) (uintptr, error) {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return 0, errClosed
	}
	if fn, ok := d.fns[kernel]; ok {
		d.mu.Unlock()
		return fn, nil
	}
	d.mu.Unlock()

	var fn uintptr
	err := d.withCtx(func() error {
		if rc := drv.cuModuleGetFunction(&fn, d.mod, kernel); rc != cudaSuccess {
			return fmt.Errorf("kernel %s not present in image: %w", kernel, cuErr("cuModuleGetFunction", rc))
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	d.mu.Lock()
	d.fns[kernel] = fn
	d.mu.Unlock()
	return fn, nil
}

func (d *Device) DefaultStream() device.Stream {
	return stream{d: d, h: 0}
}

func (d *Device) NewStream() (device.Stream, error) {
	d.mu.Lock()
	closed := d.closed
	d.mu.Unlock()
	if closed {
		return nil, errClosed
	}
	var h uintptr
	err := d.withCtx(func() error {
		return cuErr("cuStreamCreate", drv.cuStreamCreate(&h, streamNonBlocking))
	})
	if err != nil {
		return nil, err
	}
	d.mu.Lock()
	d.streams = append(d.streams, h)
	d.mu.Unlock()
	return stream{d: d, h: h}, nil
}

func (d *Device) Close() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	streams := d.streams
	d.streams = nil
	d.mu.Unlock()

	return d.withCtx(func() error {
		var first error
		if rc := drv.cuCtxSynchronize(); rc != cudaSuccess {
			first = cuErr("cuCtxSynchronize", rc)
		}
		for _, h := range streams {
			if rc := drv.cuStreamDestroy(h); rc != cudaSuccess && first == nil {
				first = cuErr("cuStreamDestroy", rc)
			}
		}
		if d.mod != 0 {
			if rc := drv.cuModuleUnload(d.mod); rc != cudaSuccess && first == nil {
				first = cuErr("cuModuleUnload", rc)
			}
		}
		if rc := drv.cuDevicePrimaryCtxRelease(d.dev); rc != cudaSuccess && first == nil {
			first = cuErr("cuDevicePrimaryCtxRelease", rc)
		}
		return first
	})
}

func checkSpan(b device.Buffer, off, n int64) error {
	if off < 0 || n < 0 || off+n > b.Bytes() {
		return fmt.Errorf("cuda: copy of %d bytes at offset %d exceeds buffer of %d", n, off, b.Bytes())
	}
	return nil
}

func streamHandle(s device.Stream) uintptr {
	if s == nil {
		return 0
	}
	return uintptr(s.Handle())
}

type buffer struct {
	d     *Device
	ptr   uintptr
	size  int64
	mu    sync.Mutex
	freed bool
}

func (b *buffer) Addr() uint64 { return uint64(b.ptr) }
func (b *buffer) Bytes() int64 { return b.size }

func (b *buffer) Free() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.freed {
		return nil
	}
	b.freed = true
	return b.d.withCtx(func() error {
		return cuErr("cuMemFree", drv.cuMemFree(b.ptr))
	})
}

type stream struct {
	d *Device
	h uintptr
}

func (s stream) Handle() uint64 { return uint64(s.h) }

func (s stream) Synchronize() error {
	return s.d.withCtx(func() error {
		return cuErr("cuStreamSynchronize", drv.cuStreamSynchronize(s.h))
	})
}

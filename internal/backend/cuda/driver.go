// Package cuda implements the device contract on top of the CUDA driver API.
// The driver library is loaded at runtime with purego, so binaries built
// without CUDA still run and report the backend as unavailable.
package cuda

import (
	"fmt"
	"sync"
	"unsafe"

	"github.com/ebitengine/purego"
)

const libName = "libcuda.so.1"

const (
	cudaSuccess       = 0
	streamNonBlocking = 1
)

// drv holds the loaded driver library and resolved entry points. The _v2
// symbols are the 64-bit entry points; the unsuffixed ones predate them and
// take 32-bit sizes.
var drv struct {
	once sync.Once
	err  error
	lib  uintptr

	cuInit                    func(flags uint32) int32
	cuDriverGetVersion        func(version *int32) int32
	cuDeviceGetCount          func(count *int32) int32
	cuDeviceGet               func(dev *int32, ordinal int32) int32
	cuDeviceGetName           func(name *byte, size int32, dev int32) int32
	cuDevicePrimaryCtxRetain  func(ctx *uintptr, dev int32) int32
	cuDevicePrimaryCtxRelease func(dev int32) int32
	cuCtxSetCurrent           func(ctx uintptr) int32
	cuCtxSynchronize          func() int32
	cuModuleLoad              func(mod *uintptr, path string) int32
	cuModuleUnload            func(mod uintptr) int32
	cuModuleGetFunction       func(fn *uintptr, mod uintptr, name string) int32
	cuMemAlloc                func(ptr *uintptr, bytes uintptr) int32
	cuMemFree                 func(ptr uintptr) int32
	cuMemFreeAsync            func(ptr uintptr, stream uintptr) int32
	cuMemcpyHtoDAsync         func(dst uintptr, src *byte, bytes uintptr, stream uintptr) int32
	cuMemcpyDtoHAsync         func(dst *byte, src uintptr, bytes uintptr, stream uintptr) int32
	cuMemcpyDtoDAsync         func(dst uintptr, src uintptr, bytes uintptr, stream uintptr) int32
	cuStreamCreate            func(stream *uintptr, flags uint32) int32
	cuStreamDestroy           func(stream uintptr) int32
	cuStreamSynchronize       func(stream uintptr) int32
	cuLaunchKernel            func(fn uintptr, gridX, gridY, gridZ, blockX, blockY, blockZ uint32, sharedBytes uint32, stream uintptr, params *unsafe.Pointer, extra *unsafe.Pointer) int32
	cuGetErrorString          func(code int32, str *uintptr) int32

	hasMemFreeAsync bool
}

// initDriver loads libcuda and resolves symbols.
func initDriver() error {
	drv.once.Do(func() {
		lib, err := purego.Dlopen(libName, purego.RTLD_LAZY|purego.RTLD_GLOBAL)
		if err != nil {
			drv.err = fmt.Errorf("cuda: dlopen %s: %w", libName, err)
			return
		}
		drv.lib = lib

		purego.RegisterLibFunc(&drv.cuInit, lib, "cuInit")
		purego.RegisterLibFunc(&drv.cuDriverGetVersion, lib, "cuDriverGetVersion")
		purego.RegisterLibFunc(&drv.cuDeviceGetCount, lib, "cuDeviceGetCount")
		purego.RegisterLibFunc(&drv.cuDeviceGet, lib, "cuDeviceGet")
		purego.RegisterLibFunc(&drv.cuDeviceGetName, lib, "cuDeviceGetName")
		purego.RegisterLibFunc(&drv.cuDevicePrimaryCtxRetain, lib, "cuDevicePrimaryCtxRetain")
		purego.RegisterLibFunc(&drv.cuDevicePrimaryCtxRelease, lib, "cuDevicePrimaryCtxRelease_v2")
		purego.RegisterLibFunc(&drv.cuCtxSetCurrent, lib, "cuCtxSetCurrent")
		purego.RegisterLibFunc(&drv.cuCtxSynchronize, lib, "cuCtxSynchronize")
		purego.RegisterLibFunc(&drv.cuModuleLoad, lib, "cuModuleLoad")
		purego.RegisterLibFunc(&drv.cuModuleUnload, lib, "cuModuleUnload")
		purego.RegisterLibFunc(&drv.cuModuleGetFunction, lib, "cuModuleGetFunction")
		purego.RegisterLibFunc(&drv.cuMemAlloc, lib, "cuMemAlloc_v2")
		purego.RegisterLibFunc(&drv.cuMemFree, lib, "cuMemFree_v2")
		purego.RegisterLibFunc(&drv.cuMemcpyHtoDAsync, lib, "cuMemcpyHtoDAsync_v2")
		purego.RegisterLibFunc(&drv.cuMemcpyDtoHAsync, lib, "cuMemcpyDtoHAsync_v2")
		purego.RegisterLibFunc(&drv.cuMemcpyDtoDAsync, lib, "cuMemcpyDtoDAsync_v2")
		purego.RegisterLibFunc(&drv.cuStreamCreate, lib, "cuStreamCreate")
		purego.RegisterLibFunc(&drv.cuStreamDestroy, lib, "cuStreamDestroy_v2")
		purego.RegisterLibFunc(&drv.cuStreamSynchronize, lib, "cuStreamSynchronize")
		purego.RegisterLibFunc(&drv.cuLaunchKernel, lib, "cuLaunchKernel")
		purego.RegisterLibFunc(&drv.cuGetErrorString, lib, "cuGetErrorString")

		// Stream-ordered frees need CUDA 11.2; older drivers fall back to a
		// synchronizing free.
		if _, err := purego.Dlsym(lib, "cuMemFreeAsync"); err == nil {
			purego.RegisterLibFunc(&drv.cuMemFreeAsync, lib, "cuMemFreeAsync")
			drv.hasMemFreeAsync = true
		}
	})
	return drv.err
}

// Available reports whether the driver can be loaded and at least one CUDA
// device is present.
func Available() bool {
	if initDriver() != nil {
		return false
	}
	if drv.cuInit(0) != cudaSuccess {
		return false
	}
	var count int32
	if drv.cuDeviceGetCount(&count) != cudaSuccess {
		return false
	}
	return count > 0
}

// cuErr wraps a non-success driver result with the call name and the
// driver's own error string.
func cuErr(call string, code int32) error {
	if code == cudaSuccess {
		return nil
	}
	var p uintptr
	if drv.cuGetErrorString(code, &p) == cudaSuccess && p != 0 {
		return fmt.Errorf("cuda: %s: %s (%d)", call, goString(p), code)
	}
	return fmt.Errorf("cuda: %s: error %d", call, code)
}

// goString copies a NUL-terminated C string.
func goString(p uintptr) string {
	if p == 0 {
		return ""
	}
	var n int
	for *(*byte)(unsafe.Pointer(p + uintptr(n))) != 0 {
		n++
	}
	b := make([]byte, n)
	for i := range b {
		b[i] = *(*byte)(unsafe.Pointer(p + uintptr(i)))
	}
	return string(b)
}

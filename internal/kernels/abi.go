package kernels

import (
	"encoding/binary"
	"fmt"

	"github.com/mkleiven/rowwise/pkg/device"
)

// Device-side argument ABI for the grouped kernels. Each group is described
// by one 64-byte little-endian record; the grouped GEMM kernel reads the
// record array from device memory. The two setup kernels below write records
// device-side for the launch paths that cannot build them on the host.
const (
	// GroupArgsBytes is the stride of one record in the argument buffer.
	GroupArgsBytes = 64

	// SymArgsSet writes a single prebuilt record at a given index.
	// Parameters: args_ptr, index, a, b, a_scale, b_scale, out, m, n, k.
	SymArgsSet = "f8f8bf16_rowwise_grouped_args_set"

	// SymArgsSetDynamic derives all records from base pointers and a device
	// resident row-count vector, and zero-fills output rows past each
	// group's row count. Parameters: args_ptr, a_base, b_base, a_scale_base,
	// b_scale_base, out_base, row_counts_ptr, group_count, m, n, k.
	SymArgsSetDynamic = "f8f8bf16_rowwise_grouped_args_set_dynamic"
)

// GroupArgs is the host image of one argument record.
//
//	offset 0   a_ptr        u64
//	offset 8   b_ptr        u64
//	offset 16  a_scale_ptr  u64
//	offset 24  b_scale_ptr  u64
//	offset 32  out_ptr      u64
//	offset 40  m            i32
//	offset 44  n            i32
//	offset 48  k            i32
//	offset 52  ld_out       i32
//	offset 56  reserved, zero
type GroupArgs struct {
	APtr, BPtr, AScalePtr, BScalePtr, OutPtr uint64
	M, N, K, LdOut                           int32
}

// Encode writes the record into dst, which must hold GroupArgsBytes bytes.
func (a GroupArgs) Encode(dst []byte) {
	_ = dst[GroupArgsBytes-1]
	binary.LittleEndian.PutUint64(dst[0:], a.APtr)
	binary.LittleEndian.PutUint64(dst[8:], a.BPtr)
	binary.LittleEndian.PutUint64(dst[16:], a.AScalePtr)
	binary.LittleEndian.PutUint64(dst[24:], a.BScalePtr)
	binary.LittleEndian.PutUint64(dst[32:], a.OutPtr)
	binary.LittleEndian.PutUint32(dst[40:], uint32(a.M))
	binary.LittleEndian.PutUint32(dst[44:], uint32(a.N))
	binary.LittleEndian.PutUint32(dst[48:], uint32(a.K))
	binary.LittleEndian.PutUint32(dst[52:], uint32(a.LdOut))
	binary.LittleEndian.PutUint64(dst[56:], 0)
}

// DecodeGroupArgs reads one record from src.
func DecodeGroupArgs(src []byte) GroupArgs {
	_ = src[GroupArgsBytes-1]
	return GroupArgs{
		APtr:      binary.LittleEndian.Uint64(src[0:]),
		BPtr:      binary.LittleEndian.Uint64(src[8:]),
		AScalePtr: binary.LittleEndian.Uint64(src[16:]),
		BScalePtr: binary.LittleEndian.Uint64(src[24:]),
		OutPtr:    binary.LittleEndian.Uint64(src[32:]),
		M:         int32(binary.LittleEndian.Uint32(src[40:])),
		N:         int32(binary.LittleEndian.Uint32(src[44:])),
		K:         int32(binary.LittleEndian.Uint32(src[48:])),
		LdOut:     int32(binary.LittleEndian.Uint32(src[52:])),
	}
}

// BatchedLaunch carries the parameters of one batched GEMM launch. Addresses
// are device pointers; Bias may be zero for no bias.
type BatchedLaunch struct {
	A, B, AScale, BScale, Bias, Out uint64
	Batch, M, N, K                  int
}

// LaunchBatched enqueues the batched kernel for this entry.
func (e Entry) LaunchBatched(dev device.Device, s device.Stream, p BatchedLaunch) error {
	if e.Kind != Batched {
		return fmt.Errorf("kernel %s is not a batched kernel", e.Name)
	}
	params := []uint64{
		p.A, p.B, p.AScale, p.BScale, p.Bias, p.Out,
		uint64(uint32(p.Batch)), uint64(uint32(p.M)), uint64(uint32(p.N)), uint64(uint32(p.K)),
	}
	return dev.Launch(e.Name, e.LaunchGrid(p.M, p.N, p.Batch), e.BlockDim(), s, params)
}

// GroupedLaunch carries the parameters of one grouped GEMM launch. MaxM and
// MaxN size the launch grid; per-group extents come from the argument buffer.
type GroupedLaunch struct {
	Args               uint64
	Groups, MaxM, MaxN int
}

// LaunchGrouped enqueues the grouped kernel for this entry. All groups run
// under a single launch.
func (e Entry) LaunchGrouped(dev device.Device, s device.Stream, p GroupedLaunch) error {
	if e.Kind != Grouped {
		return fmt.Errorf("kernel %s is not a grouped kernel", e.Name)
	}
	params := []uint64{p.Args, uint64(uint32(p.Groups))}
	return dev.Launch(e.Name, e.LaunchGrid(p.MaxM, p.MaxN, p.Groups), e.BlockDim(), s, params)
}

// LaunchArgsSet enqueues a device-side write of one record.
func LaunchArgsSet(dev device.Device, s device.Stream, args uint64, index int, rec GroupArgs) error {
	params := []uint64{
		args, uint64(uint32(index)),
		rec.APtr, rec.BPtr, rec.AScalePtr, rec.BScalePtr, rec.OutPtr,
		uint64(uint32(rec.M)), uint64(uint32(rec.N)), uint64(uint32(rec.K)),
	}
	one := device.Dim3{X: 1, Y: 1, Z: 1}
	return dev.Launch(SymArgsSet, one, one, s, params)
}

// DynamicArgs carries the parameters of the dynamic setup kernel. RowCounts
// is a device pointer to group_count little-endian int64 values; zero means
// every group takes its full M rows.
type DynamicArgs struct {
	Args       uint64
	ABase      uint64
	BBase      uint64
	AScaleBase uint64
	BScaleBase uint64
	OutBase    uint64
	RowCounts  uint64
	Groups     int
	M, N, K    int
}

// LaunchArgsSetDynamic enqueues record derivation plus tail zero-fill. The
// kernel walks the flattened output in a grid-stride loop two elements per
// thread, so the grid only needs to cover the range once.
func LaunchArgsSetDynamic(dev device.Device, s device.Stream, p DynamicArgs) error {
	params := []uint64{
		p.Args,
		p.ABase, p.BBase, p.AScaleBase, p.BScaleBase, p.OutBase,
		p.RowCounts,
		uint64(uint32(p.Groups)), uint64(uint32(p.M)), uint64(uint32(p.N)), uint64(uint32(p.K)),
	}
	pairs := (p.Groups*p.M*p.N + 1) / 2
	blocks := ceilDiv(pairs, 256)
	if blocks > 65535 {
		blocks = 65535
	}
	grid := device.Dim3{X: blocks, Y: 1, Z: 1}
	block := device.Dim3{X: 256, Y: 1, Z: 1}
	return dev.Launch(SymArgsSetDynamic, grid, block, s, params)
}

// LaunchGrid returns the grid that covers an m x n tile space, replicated z
// times on the z axis (batch count for batched, group count for grouped).
func (e Entry) LaunchGrid(m, n, z int) device.Dim3 {
	return device.Dim3{
		X: ceilDiv(n, e.Cfg.TileN),
		Y: ceilDiv(m, e.Cfg.TileM),
		Z: uint32(z),
	}
}

// BlockDim returns the thread block the entry's schedule was compiled for.
func (e Entry) BlockDim() device.Dim3 {
	if e.Cfg.Pingpong {
		return device.Dim3{X: 256, Y: 1, Z: 1}
	}
	return device.Dim3{X: 384, Y: 1, Z: 1}
}

func ceilDiv(n, d int) uint32 {
	if n <= 0 {
		return 1
	}
	return uint32((n + d - 1) / d)
}

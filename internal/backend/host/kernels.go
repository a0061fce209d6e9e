package host

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/mkleiven/rowwise/internal/kernels"
	"github.com/mkleiven/rowwise/pkg/device"
)

// Launch runs the named kernel synchronously. The host backend understands
// the same symbols the compiled kernel image exports: the two argument setup
// kernels plus every registered GEMM variant. Tiling fields in a GEMM name
// only affect device scheduling, so all variants share one reference
// implementation here.
func (d *Device) Launch(kernel string, grid, block device.Dim3, s device.Stream, params []uint64) error {
	if grid.X == 0 || grid.Y == 0 || grid.Z == 0 || block.X == 0 || block.Y == 0 || block.Z == 0 {
		return fmt.Errorf("kernel %s: zero launch dimension", kernel)
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	switch kernel {
	case kernels.SymArgsSet:
		return d.runArgsSet(params)
	case kernels.SymArgsSetDynamic:
		return d.runArgsSetDynamic(params)
	}
	kind, _, err := kernels.ParseName(kernel)
	if err != nil {
		return fmt.Errorf("unknown kernel symbol %q", kernel)
	}
	if _, err := kernels.Lookup(kind, kernel); err != nil {
		return fmt.Errorf("unknown kernel symbol %q", kernel)
	}
	switch kind {
	case kernels.Batched:
		return d.runBatched(kernel, params)
	default:
		return d.runGrouped(kernel, params)
	}
}

func (d *Device) runArgsSet(params []uint64) error {
	if len(params) != 10 {
		return fmt.Errorf("%s: got %d parameters, want 10", kernels.SymArgsSet, len(params))
	}
	args, index := params[0], int(uint32(params[1]))
	rec := kernels.GroupArgs{
		APtr:      params[2],
		BPtr:      params[3],
		AScalePtr: params[4],
		BScalePtr: params[5],
		OutPtr:    params[6],
		M:         int32(uint32(params[7])),
		N:         int32(uint32(params[8])),
		K:         int32(uint32(params[9])),
	}
	rec.LdOut = rec.N
	dst, err := d.resolve(args+uint64(index)*kernels.GroupArgsBytes, kernels.GroupArgsBytes)
	if err != nil {
		return fmt.Errorf("%s: %w", kernels.SymArgsSet, err)
	}
	rec.Encode(dst)
	return nil
}

func (d *Device) runArgsSetDynamic(params []uint64) error {
	if len(params) != 11 {
		return fmt.Errorf("%s: got %d parameters, want 11", kernels.SymArgsSetDynamic, len(params))
	}
	args := params[0]
	aBase, bBase := params[1], params[2]
	saBase, sbBase := params[3], params[4]
	outBase := params[5]
	rowsPtr := params[6]
	groups := int(uint32(params[7]))
	m := int(uint32(params[8]))
	n := int(uint32(params[9]))
	k := int(uint32(params[10]))

	rows := make([]int64, groups)
	if rowsPtr == 0 {
		for g := range rows {
			rows[g] = int64(m)
		}
	} else {
		raw, err := d.resolve(rowsPtr, int64(groups)*8)
		if err != nil {
			return fmt.Errorf("%s: row counts: %w", kernels.SymArgsSetDynamic, err)
		}
		for g := range rows {
			rows[g] = int64(binary.LittleEndian.Uint64(raw[g*8:]))
		}
	}

	argBytes, err := d.resolve(args, int64(groups)*kernels.GroupArgsBytes)
	if err != nil {
		return fmt.Errorf("%s: argument buffer: %w", kernels.SymArgsSetDynamic, err)
	}
	for g := 0; g < groups; g++ {
		rec := kernels.GroupArgs{
			APtr:      aBase + uint64(g)*uint64(m)*uint64(k),
			BPtr:      bBase + uint64(g)*uint64(n)*uint64(k),
			AScalePtr: saBase + uint64(g)*uint64(m)*4,
			BScalePtr: sbBase + uint64(g)*uint64(n)*4,
			OutPtr:    outBase + uint64(g)*uint64(m)*uint64(n)*2,
			M:         int32(rows[g]),
			N:         int32(n),
			K:         int32(k),
			LdOut:     int32(n),
		}
		rec.Encode(argBytes[g*kernels.GroupArgsBytes:])
	}

	out, err := d.resolve(outBase, int64(groups)*int64(m)*int64(n)*2)
	if err != nil {
		return fmt.Errorf("%s: output buffer: %w", kernels.SymArgsSetDynamic, err)
	}
	zeroFillTail(out, groups, m, n, rows)
	return nil
}

// zeroFillTail zeroes output rows at or beyond each group's row count. It
// walks the flattened [groups, m, n] element range in pairs the way the
// device kernel's two-element stores do, splitting a pair when its halves
// disagree, and finishes with a scalar tail when the total count is odd.
func zeroFillTail(out []byte, groups, m, n int, rows []int64) {
	mn := m * n
	if mn == 0 {
		return
	}
	total := groups * mn
	dead := func(e int) bool {
		g := e / mn
		r := (e % mn) / n
		return int64(r) >= rows[g]
	}
	for e := 0; e+1 < total; e += 2 {
		d0, d1 := dead(e), dead(e+1)
		switch {
		case d0 && d1:
			out[2*e] = 0
			out[2*e+1] = 0
			out[2*e+2] = 0
			out[2*e+3] = 0
		case d0:
			out[2*e] = 0
			out[2*e+1] = 0
		case d1:
			out[2*e+2] = 0
			out[2*e+3] = 0
		}
	}
	if total%2 == 1 && dead(total-1) {
		out[2*total-2] = 0
		out[2*total-1] = 0
	}
}

func (d *Device) runBatched(name string, params []uint64) error {
	if len(params) != 10 {
		return fmt.Errorf("%s: got %d parameters, want 10", name, len(params))
	}
	batch := int(uint32(params[6]))
	m := int(uint32(params[7]))
	n := int(uint32(params[8]))
	k := int(uint32(params[9]))

	a, err := d.resolve(params[0], int64(batch)*int64(m)*int64(k))
	if err != nil {
		return fmt.Errorf("%s: a: %w", name, err)
	}
	b, err := d.resolve(params[1], int64(batch)*int64(n)*int64(k))
	if err != nil {
		return fmt.Errorf("%s: b: %w", name, err)
	}
	sa, err := d.resolve(params[2], int64(batch)*int64(m)*4)
	if err != nil {
		return fmt.Errorf("%s: a_scale: %w", name, err)
	}
	sb, err := d.resolve(params[3], int64(batch)*int64(n)*4)
	if err != nil {
		return fmt.Errorf("%s: b_scale: %w", name, err)
	}
	var bias []byte
	if params[4] != 0 {
		bias, err = d.resolve(params[4], int64(n)*4)
		if err != nil {
			return fmt.Errorf("%s: bias: %w", name, err)
		}
	}
	out, err := d.resolve(params[5], int64(batch)*int64(m)*int64(n)*2)
	if err != nil {
		return fmt.Errorf("%s: out: %w", name, err)
	}

	for i := 0; i < batch; i++ {
		gemmRowwise(
			a[i*m*k:(i+1)*m*k],
			b[i*n*k:(i+1)*n*k],
			sa[i*m*4:(i+1)*m*4],
			sb[i*n*4:(i+1)*n*4],
			bias,
			out[i*m*n*2:(i+1)*m*n*2],
			m, n, k, n,
		)
	}
	return nil
}

func (d *Device) runGrouped(name string, params []uint64) error {
	if len(params) != 2 {
		return fmt.Errorf("%s: got %d parameters, want 2", name, len(params))
	}
	groups := int(uint32(params[1]))
	argBytes, err := d.resolve(params[0], int64(groups)*kernels.GroupArgsBytes)
	if err != nil {
		return fmt.Errorf("%s: argument buffer: %w", name, err)
	}
	for g := 0; g < groups; g++ {
		rec := kernels.DecodeGroupArgs(argBytes[g*kernels.GroupArgsBytes:])
		m, n, k := int(rec.M), int(rec.N), int(rec.K)
		ldOut := int(rec.LdOut)
		if m == 0 || n == 0 {
			continue
		}
		a, err := d.resolve(rec.APtr, int64(m)*int64(k))
		if err != nil {
			return fmt.Errorf("%s: group %d a: %w", name, g, err)
		}
		b, err := d.resolve(rec.BPtr, int64(n)*int64(k))
		if err != nil {
			return fmt.Errorf("%s: group %d b: %w", name, g, err)
		}
		sa, err := d.resolve(rec.AScalePtr, int64(m)*4)
		if err != nil {
			return fmt.Errorf("%s: group %d a_scale: %w", name, g, err)
		}
		sb, err := d.resolve(rec.BScalePtr, int64(n)*4)
		if err != nil {
			return fmt.Errorf("%s: group %d b_scale: %w", name, g, err)
		}
		out, err := d.resolve(rec.OutPtr, (int64(m-1)*int64(ldOut)+int64(n))*2)
		if err != nil {
			return fmt.Errorf("%s: group %d out: %w", name, g, err)
		}
		gemmRowwise(a, b, sa, sb, nil, out, m, n, k, ldOut)
	}
	return nil
}

// gemmRowwise is the reference semantics all tile variants share:
// out[i,j] = bf16(sum_k a[i,k]*b[j,k] * a_scale[i] * b_scale[j] + bias[j])
// with the accumulation in float32 over dequantized FP8 operands. b is the
// [N,K] operand, so the kernel contracts along the fast axis of both inputs.
func gemmRowwise(a, b, saRaw, sbRaw, biasRaw, out []byte, m, n, k, ldOut int) {
	sa := f32Slice(saRaw)
	sb := f32Slice(sbRaw)
	var bias []float32
	if biasRaw != nil {
		bias = f32Slice(biasRaw)
	}
	for i := 0; i < m; i++ {
		ar := a[i*k : (i+1)*k]
		for j := 0; j < n; j++ {
			br := b[j*k : (j+1)*k]
			var acc float32
			for kk := 0; kk < k; kk++ {
				acc += device.F8E4M3ToF32(ar[kk]) * device.F8E4M3ToF32(br[kk])
			}
			v := acc * sa[i] * sb[j]
			if bias != nil {
				v += bias[j]
			}
			u := device.BF16FromF32(v)
			off := (i*ldOut + j) * 2
			out[off] = byte(u)
			out[off+1] = byte(u >> 8)
		}
	}
}

func f32Slice(raw []byte) []float32 {
	out := make([]float32, len(raw)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(raw[i*4:]))
	}
	return out
}

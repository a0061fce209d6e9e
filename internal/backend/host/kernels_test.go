package host

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/mkleiven/rowwise/internal/kernels"
	"github.com/mkleiven/rowwise/pkg/device"
)

func devAlloc(t *testing.T, d *Device, data []byte) device.Buffer {
	t.Helper()
	buf, err := d.Alloc(int64(len(data)))
	if err != nil {
		t.Fatal(err)
	}
	if err := d.MemcpyH2D(buf, 0, data, d.DefaultStream()); err != nil {
		t.Fatal(err)
	}
	return buf
}

func devRead(t *testing.T, d *Device, buf device.Buffer, n int) []byte {
	t.Helper()
	out := make([]byte, n)
	if err := d.MemcpyD2H(out, buf, 0, d.DefaultStream()); err != nil {
		t.Fatal(err)
	}
	return out
}

func f8Bytes(vals ...float32) []byte {
	out := make([]byte, len(vals))
	for i, v := range vals {
		out[i] = device.F8E4M3FromF32(v)
	}
	return out
}

func f32Bytes(vals ...float32) []byte {
	out := make([]byte, len(vals)*4)
	for i, v := range vals {
		binary.LittleEndian.PutUint32(out[i*4:], math.Float32bits(v))
	}
	return out
}

func i64Bytes(vals ...int64) []byte {
	out := make([]byte, len(vals)*8)
	for i, v := range vals {
		binary.LittleEndian.PutUint64(out[i*8:], uint64(v))
	}
	return out
}

func repeat(v float32, n int) []float32 {
	out := make([]float32, n)
	for i := range out {
		out[i] = v
	}
	return out
}

func TestZeroFillTailEven(t *testing.T) {
	const groups, m, n = 2, 3, 2
	out := make([]byte, groups*m*n*2)
	for i := range out {
		out[i] = 0xAB
	}
	zeroFillTail(out, groups, m, n, []int64{1, 2})

	// Group 0 keeps row 0 (elements 0,1), group 1 keeps rows 0,1
	// (elements 6..9); everything else is zeroed.
	live := map[int]bool{0: true, 1: true, 6: true, 7: true, 8: true, 9: true}
	for e := 0; e < groups*m*n; e++ {
		b0, b1 := out[2*e], out[2*e+1]
		if live[e] && (b0 != 0xAB || b1 != 0xAB) {
			t.Errorf("element %d overwritten: %02x%02x", e, b0, b1)
		}
		if !live[e] && (b0 != 0 || b1 != 0) {
			t.Errorf("element %d not zeroed: %02x%02x", e, b0, b1)
		}
	}
}

func TestZeroFillTailOddTotal(t *testing.T) {
	// 15 elements: pair (4,5) straddles the row boundary and element 14 is
	// the scalar tail.
	const groups, m, n = 1, 3, 5
	out := make([]byte, groups*m*n*2)
	for i := range out {
		out[i] = 0xCD
	}
	zeroFillTail(out, groups, m, n, []int64{1})

	for e := 0; e < groups*m*n; e++ {
		b0, b1 := out[2*e], out[2*e+1]
		if e < 5 && (b0 != 0xCD || b1 != 0xCD) {
			t.Errorf("live element %d overwritten: %02x%02x", e, b0, b1)
		}
		if e >= 5 && (b0 != 0 || b1 != 0) {
			t.Errorf("dead element %d not zeroed: %02x%02x", e, b0, b1)
		}
	}
}

func TestZeroFillTailZeroRows(t *testing.T) {
	out := make([]byte, 4*4*2)
	for i := range out {
		out[i] = 0xEE
	}
	zeroFillTail(out, 1, 4, 4, []int64{0})
	for i, b := range out {
		if b != 0 {
			t.Fatalf("byte %d = %02x, want 0", i, b)
		}
	}
}

func TestArgsSetWritesRecord(t *testing.T) {
	d := New()
	defer d.Close()
	s := d.DefaultStream()

	args, err := d.Alloc(2 * kernels.GroupArgsBytes)
	if err != nil {
		t.Fatal(err)
	}
	rec := kernels.GroupArgs{
		APtr: 0x100, BPtr: 0x200, AScalePtr: 0x300, BScalePtr: 0x400, OutPtr: 0x500,
		M: 12, N: 640, K: 1024,
	}
	if err := kernels.LaunchArgsSet(d, s, args.Addr(), 1, rec); err != nil {
		t.Fatal(err)
	}

	raw := devRead(t, d, args, 2*kernels.GroupArgsBytes)
	got := kernels.DecodeGroupArgs(raw[kernels.GroupArgsBytes:])
	rec.LdOut = rec.N // the setup kernel derives ld_out from n
	if got != rec {
		t.Fatalf("record = %+v, want %+v", got, rec)
	}
	// Slot 0 untouched.
	if got0 := kernels.DecodeGroupArgs(raw); got0 != (kernels.GroupArgs{}) {
		t.Fatalf("slot 0 written: %+v", got0)
	}
}

func TestBatchedKernel(t *testing.T) {
	d := New()
	defer d.Close()
	s := d.DefaultStream()
	const batch, m, n, k = 2, 2, 3, 4

	aVals := []float32{
		1, 2, -1, 0.5,
		0.25, -2, 1, 1,
		3, 0.5, -0.5, 2,
		1, 1, 1, 1,
	}
	bVals := []float32{
		0.5, 1, 2, -1,
		1, 1, -2, 0.5,
		2, -1, 0.25, 1,
		-0.5, 2, 1, 0.5,
		1, 0.25, -1, 2,
		0.5, 0.5, 0.5, 0.5,
	}
	saVals := []float32{1, 0.5, 2, 0.25}
	sbVals := []float32{1, 2, 0.5, 0.25, 1, 4}

	a := devAlloc(t, d, f8Bytes(aVals...))
	b := devAlloc(t, d, f8Bytes(bVals...))
	sa := devAlloc(t, d, f32Bytes(saVals...))
	sb := devAlloc(t, d, f32Bytes(sbVals...))
	out, err := d.Alloc(batch * m * n * 2)
	if err != nil {
		t.Fatal(err)
	}

	e := kernels.SelectBatched(batch, m, n, k)
	err = e.LaunchBatched(d, s, kernels.BatchedLaunch{
		A: a.Addr(), B: b.Addr(), AScale: sa.Addr(), BScale: sb.Addr(), Out: out.Addr(),
		Batch: batch, M: m, N: n, K: k,
	})
	if err != nil {
		t.Fatal(err)
	}

	got := devRead(t, d, out, batch*m*n*2)
	for bi := 0; bi < batch; bi++ {
		for i := 0; i < m; i++ {
			for j := 0; j < n; j++ {
				var acc float32
				for kk := 0; kk < k; kk++ {
					av := device.F8E4M3ToF32(device.F8E4M3FromF32(aVals[(bi*m+i)*k+kk]))
					bv := device.F8E4M3ToF32(device.F8E4M3FromF32(bVals[(bi*n+j)*k+kk]))
					acc += av * bv
				}
				want := device.BF16FromF32(acc * saVals[bi*m+i] * sbVals[bi*n+j])
				off := ((bi*m+i)*n + j) * 2
				if u := binary.LittleEndian.Uint16(got[off:]); u != want {
					t.Errorf("out[%d,%d,%d] = %#04x, want %#04x", bi, i, j, u, want)
				}
			}
		}
	}
}

func TestBatchedKernelBiasAfterScaling(t *testing.T) {
	d := New()
	defer d.Close()
	s := d.DefaultStream()
	const batch, m, n, k = 1, 1, 2, 2

	// acc = 1*1 + 1*1 = 2; scaled by 0.5*0.5 = 0.5; +bias.
	// If bias were applied before scaling the result would be 1.25, not 1.5.
	a := devAlloc(t, d, f8Bytes(1, 1))
	b := devAlloc(t, d, f8Bytes(1, 1, 1, 1))
	sa := devAlloc(t, d, f32Bytes(0.5))
	sb := devAlloc(t, d, f32Bytes(0.5, 0.5))
	bias := devAlloc(t, d, f32Bytes(1, 2))
	out, err := d.Alloc(batch * m * n * 2)
	if err != nil {
		t.Fatal(err)
	}

	e := kernels.SelectBatched(batch, m, n, k)
	err = e.LaunchBatched(d, s, kernels.BatchedLaunch{
		A: a.Addr(), B: b.Addr(), AScale: sa.Addr(), BScale: sb.Addr(),
		Bias: bias.Addr(), Out: out.Addr(),
		Batch: batch, M: m, N: n, K: k,
	})
	if err != nil {
		t.Fatal(err)
	}

	got := devRead(t, d, out, batch*m*n*2)
	want0 := device.BF16FromF32(1.5)
	want1 := device.BF16FromF32(2.5)
	if u := binary.LittleEndian.Uint16(got[0:]); u != want0 {
		t.Errorf("out[0] = %#04x, want %#04x", u, want0)
	}
	if u := binary.LittleEndian.Uint16(got[2:]); u != want1 {
		t.Errorf("out[1] = %#04x, want %#04x", u, want1)
	}
}

func TestGroupedKernelHeterogeneousShapes(t *testing.T) {
	d := New()
	defer d.Close()
	s := d.DefaultStream()

	type group struct {
		m, n, k int
		a, b    []float32
		sa, sb  []float32
	}
	gs := []group{
		{m: 2, n: 3, k: 4,
			a:  []float32{1, 2, 3, 4, 0.5, -1, 2, 1},
			b:  []float32{1, 1, 1, 1, 2, 0.5, -1, 1, 0.25, 2, 2, -2},
			sa: []float32{1, 0.5}, sb: []float32{2, 1, 0.25}},
		{m: 1, n: 2, k: 8,
			a:  repeat(0.5, 8),
			b:  append(repeat(1, 8), repeat(2, 8)...),
			sa: []float32{4}, sb: []float32{1, 0.5}},
	}

	argsHost := make([]byte, len(gs)*kernels.GroupArgsBytes)
	outs := make([]device.Buffer, len(gs))
	var maxM, maxN int
	for gi, g := range gs {
		a := devAlloc(t, d, f8Bytes(g.a...))
		b := devAlloc(t, d, f8Bytes(g.b...))
		sa := devAlloc(t, d, f32Bytes(g.sa...))
		sb := devAlloc(t, d, f32Bytes(g.sb...))
		out, err := d.Alloc(int64(g.m * g.n * 2))
		if err != nil {
			t.Fatal(err)
		}
		outs[gi] = out
		rec := kernels.GroupArgs{
			APtr: a.Addr(), BPtr: b.Addr(), AScalePtr: sa.Addr(), BScalePtr: sb.Addr(),
			OutPtr: out.Addr(),
			M:      int32(g.m), N: int32(g.n), K: int32(g.k), LdOut: int32(g.n),
		}
		rec.Encode(argsHost[gi*kernels.GroupArgsBytes:])
		if g.m > maxM {
			maxM = g.m
		}
		if g.n > maxN {
			maxN = g.n
		}
	}
	args := devAlloc(t, d, argsHost)

	e := kernels.SelectGrouped(maxM, maxN, 8)
	err := e.LaunchGrouped(d, s, kernels.GroupedLaunch{
		Args: args.Addr(), Groups: len(gs), MaxM: maxM, MaxN: maxN,
	})
	if err != nil {
		t.Fatal(err)
	}

	for gi, g := range gs {
		got := devRead(t, d, outs[gi], g.m*g.n*2)
		for i := 0; i < g.m; i++ {
			for j := 0; j < g.n; j++ {
				var acc float32
				for kk := 0; kk < g.k; kk++ {
					av := device.F8E4M3ToF32(device.F8E4M3FromF32(g.a[i*g.k+kk]))
					bv := device.F8E4M3ToF32(device.F8E4M3FromF32(g.b[j*g.k+kk]))
					acc += av * bv
				}
				want := device.BF16FromF32(acc * g.sa[i] * g.sb[j])
				if u := binary.LittleEndian.Uint16(got[(i*g.n+j)*2:]); u != want {
					t.Errorf("group %d out[%d,%d] = %#04x, want %#04x", gi, i, j, u, want)
				}
			}
		}
	}
}

func TestDynamicSetupThenGroupedGEMM(t *testing.T) {
	d := New()
	defer d.Close()
	s := d.DefaultStream()
	const groups, m, n, k = 2, 4, 6, 8

	// Uniform inputs make every live output element 0.5*1*k = 4.0.
	a := devAlloc(t, d, f8Bytes(repeat(0.5, groups*m*k)...))
	b := devAlloc(t, d, f8Bytes(repeat(1, groups*n*k)...))
	sa := devAlloc(t, d, f32Bytes(repeat(1, groups*m)...))
	sb := devAlloc(t, d, f32Bytes(repeat(1, groups*n)...))
	rowCounts := devAlloc(t, d, i64Bytes(2, 0))

	outSentinel := make([]byte, groups*m*n*2)
	for i := range outSentinel {
		outSentinel[i] = 0xAB
	}
	out := devAlloc(t, d, outSentinel)

	args, err := d.Alloc(groups * kernels.GroupArgsBytes)
	if err != nil {
		t.Fatal(err)
	}
	err = kernels.LaunchArgsSetDynamic(d, s, kernels.DynamicArgs{
		Args:  args.Addr(),
		ABase: a.Addr(), BBase: b.Addr(),
		AScaleBase: sa.Addr(), BScaleBase: sb.Addr(),
		OutBase:   out.Addr(),
		RowCounts: rowCounts.Addr(),
		Groups:    groups, M: m, N: n, K: k,
	})
	if err != nil {
		t.Fatal(err)
	}

	// Records carry per-group row counts and strided base pointers.
	raw := devRead(t, d, args, groups*kernels.GroupArgsBytes)
	rec0 := kernels.DecodeGroupArgs(raw)
	rec1 := kernels.DecodeGroupArgs(raw[kernels.GroupArgsBytes:])
	if rec0.M != 2 || rec1.M != 0 {
		t.Fatalf("record row counts = %d, %d, want 2, 0", rec0.M, rec1.M)
	}
	if rec1.APtr != a.Addr()+m*k {
		t.Errorf("group 1 a_ptr = %#x, want %#x", rec1.APtr, a.Addr()+m*k)
	}
	if rec1.OutPtr != out.Addr()+m*n*2 {
		t.Errorf("group 1 out_ptr = %#x, want %#x", rec1.OutPtr, out.Addr()+m*n*2)
	}

	e := kernels.SelectGrouped(m, n, k)
	if err := e.LaunchGrouped(d, s, kernels.GroupedLaunch{Args: args.Addr(), Groups: groups, MaxM: m, MaxN: n}); err != nil {
		t.Fatal(err)
	}

	got := devRead(t, d, out, groups*m*n*2)
	wantLive := device.BF16FromF32(4)
	for g := 0; g < groups; g++ {
		for i := 0; i < m; i++ {
			for j := 0; j < n; j++ {
				u := binary.LittleEndian.Uint16(got[((g*m+i)*n+j)*2:])
				live := g == 0 && i < 2
				if live && u != wantLive {
					t.Errorf("group %d out[%d,%d] = %#04x, want %#04x", g, i, j, u, wantLive)
				}
				if !live && u != 0 {
					t.Errorf("group %d out[%d,%d] = %#04x, want zero fill", g, i, j, u)
				}
			}
		}
	}
}

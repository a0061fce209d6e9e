package fp8

import (
	"strconv"

	"github.com/mkleiven/rowwise/internal/kernels"
	"github.com/mkleiven/rowwise/pkg/device"
)

func (o *Ops) checkOperand(name string, t device.Tensor, dt device.DType, rank int) error {
	if t.Dev != o.dev {
		return argErrorf("%s is not resident on device %s", name, o.dev.Name())
	}
	if t.DType != dt {
		return argErrorf("%s must be %s, got %s", name, dt, t.DType)
	}
	if t.Rank() != rank {
		return argErrorf("%s must be rank %d, got rank %d", name, rank, t.Rank())
	}
	for _, d := range t.Shape {
		if d <= 0 {
			return argErrorf("%s has an empty dimension in shape %v", name, t.Shape)
		}
	}
	if !t.IsContiguous() {
		return argErrorf("%s must be contiguous", name)
	}
	return nil
}

func checkDims(name string, t device.Tensor, want ...int) error {
	for i, w := range want {
		if t.Shape[i] != w {
			return argErrorf("%s must have shape %v, got %v", name, want, t.Shape)
		}
	}
	return nil
}

type batchedDims struct {
	b, m, n, k int
}

func (o *Ops) validateBatched(a, b, aScale, bScale device.Tensor, bias, out *device.Tensor) (batchedDims, error) {
	if err := o.checkOperand("a", a, device.F8E4M3, 3); err != nil {
		return batchedDims{}, err
	}
	if err := o.checkOperand("b", b, device.F8E4M3, 3); err != nil {
		return batchedDims{}, err
	}
	d := batchedDims{b: a.Dim(0), m: a.Dim(1), k: a.Dim(2), n: b.Dim(1)}
	if b.Dim(0) != d.b {
		return batchedDims{}, argErrorf("batch mismatch: a has %d, b has %d", d.b, b.Dim(0))
	}
	if b.Dim(2) != d.k {
		return batchedDims{}, argErrorf("k mismatch: a has %d, b has %d", d.k, b.Dim(2))
	}
	if err := o.checkOperand("a_scale", aScale, device.F32, 2); err != nil {
		return batchedDims{}, err
	}
	if err := checkDims("a_scale", aScale, d.b, d.m); err != nil {
		return batchedDims{}, err
	}
	if err := o.checkOperand("b_scale", bScale, device.F32, 2); err != nil {
		return batchedDims{}, err
	}
	if err := checkDims("b_scale", bScale, d.b, d.n); err != nil {
		return batchedDims{}, err
	}
	if bias != nil {
		if err := o.checkOperand("bias", *bias, device.F32, 1); err != nil {
			return batchedDims{}, err
		}
		if err := checkDims("bias", *bias, d.n); err != nil {
			return batchedDims{}, err
		}
	}
	if out != nil {
		if err := o.checkOperand("out", *out, device.BF16, 3); err != nil {
			return batchedDims{}, err
		}
		if err := checkDims("out", *out, d.b, d.m, d.n); err != nil {
			return batchedDims{}, err
		}
	}
	return d, nil
}

type groupDims struct {
	m, n, k int
}

// validateGrouped checks the per-group operand lists shared by both grouped
// entry points and returns per-group dims plus the component maxima that
// drive kernel selection.
func (o *Ops) validateGrouped(a, b, aScale, bScale []device.Tensor, out []device.Tensor) ([]groupDims, groupDims, error) {
	groups := len(a)
	if groups == 0 {
		return nil, groupDims{}, argErrorf("grouped gemm requires at least one group")
	}
	if len(b) != groups || len(aScale) != groups || len(bScale) != groups {
		return nil, groupDims{}, argErrorf("operand lists disagree on group count: a=%d b=%d a_scale=%d b_scale=%d",
			groups, len(b), len(aScale), len(bScale))
	}
	if out != nil && len(out) != groups {
		return nil, groupDims{}, argErrorf("out list has %d entries for %d groups", len(out), groups)
	}

	dims := make([]groupDims, groups)
	var max groupDims
	for g := 0; g < groups; g++ {
		if err := o.checkOperand(groupName("a", g), a[g], device.F8E4M3, 2); err != nil {
			return nil, groupDims{}, err
		}
		if err := o.checkOperand(groupName("b", g), b[g], device.F8E4M3, 2); err != nil {
			return nil, groupDims{}, err
		}
		d := groupDims{m: a[g].Dim(0), n: b[g].Dim(0), k: a[g].Dim(1)}
		if b[g].Dim(1) != d.k {
			return nil, groupDims{}, argErrorf("group %d k mismatch: a has %d, b has %d", g, d.k, b[g].Dim(1))
		}
		if d.n < kernels.MinGroupedN || d.k < kernels.MinGroupedK {
			return nil, groupDims{}, argErrorf("group %d shape n=%d k=%d below grouped kernel minimum n>=%d k>=%d",
				g, d.n, d.k, kernels.MinGroupedN, kernels.MinGroupedK)
		}
		if err := o.checkOperand(groupName("a_scale", g), aScale[g], device.F32, 1); err != nil {
			return nil, groupDims{}, err
		}
		if err := checkDims(groupName("a_scale", g), aScale[g], d.m); err != nil {
			return nil, groupDims{}, err
		}
		if err := o.checkOperand(groupName("b_scale", g), bScale[g], device.F32, 1); err != nil {
			return nil, groupDims{}, err
		}
		if err := checkDims(groupName("b_scale", g), bScale[g], d.n); err != nil {
			return nil, groupDims{}, err
		}
		if out != nil {
			if err := o.checkOperand(groupName("out", g), out[g], device.BF16, 2); err != nil {
				return nil, groupDims{}, err
			}
			if err := checkDims(groupName("out", g), out[g], d.m, d.n); err != nil {
				return nil, groupDims{}, err
			}
		}
		dims[g] = d
		if d.m > max.m {
			max.m = d.m
		}
		if d.n > max.n {
			max.n = d.n
		}
		if d.k > max.k {
			max.k = d.k
		}
	}
	return dims, max, nil
}

// validateGroupedDynamic adds the single-launch constraints: uniform group
// shapes, operands stacked in one contiguous allocation per list, and a
// well-formed row-count vector.
func (o *Ops) validateGroupedDynamic(a, b, aScale, bScale []device.Tensor, rowCounts *device.Tensor) (groupDims, error) {
	dims, _, err := o.validateGrouped(a, b, aScale, bScale, nil)
	if err != nil {
		return groupDims{}, err
	}
	d := dims[0]
	for g, gd := range dims {
		if gd != d {
			return groupDims{}, argErrorf("dynamic grouped gemm requires uniform group shapes; group %d is %dx%dx%d, group 0 is %dx%dx%d",
				g, gd.m, gd.n, gd.k, d.m, d.n, d.k)
		}
	}
	for _, l := range []struct {
		name string
		ts   []device.Tensor
	}{
		{"a", a}, {"b", b}, {"a_scale", aScale}, {"b_scale", bScale},
	} {
		if err := checkStacked(l.name, l.ts); err != nil {
			return groupDims{}, err
		}
	}
	if rowCounts != nil {
		if rowCounts.Dev != o.dev {
			return groupDims{}, argErrorf("row_counts is not resident on device %s", o.dev.Name())
		}
		if rowCounts.DType != device.I64 {
			return groupDims{}, argErrorf("row_counts must be i64, got %s", rowCounts.DType)
		}
		if rowCounts.Rank() != 1 || rowCounts.Dim(0) != len(a) {
			return groupDims{}, argErrorf("row_counts must have shape [%d], got %v", len(a), rowCounts.Shape)
		}
		if !rowCounts.IsContiguous() {
			return groupDims{}, argErrorf("row_counts must be contiguous")
		}
	}
	return d, nil
}

// checkStacked verifies that consecutive group views tile one allocation
// with no gaps, which is what lets the setup kernel derive every group
// pointer from the first.
func checkStacked(name string, ts []device.Tensor) error {
	base := ts[0].Addr()
	slab := uint64(ts[0].Bytes())
	for g := 1; g < len(ts); g++ {
		want := base + slab*uint64(g)
		if ts[g].Addr() != want {
			return argErrorf("%s group %d does not abut group %d; dynamic grouped gemm requires stacked views of one allocation", name, g, g-1)
		}
	}
	return nil
}

func groupName(base string, g int) string {
	return base + "[" + strconv.Itoa(g) + "]"
}

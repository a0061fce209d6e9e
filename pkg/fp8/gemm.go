// Package fp8 is the public entry point for FP8 row-wise scaled matrix
// multiplication. Operands are E4M3 tensors with one float32 scale per row
// of each operand; outputs are BF16. The package validates shapes on the
// host, picks a compiled kernel variant by shape heuristics (or an explicit
// override for the grouped forms), marshals the grouped argument buffer and
// enqueues the launch. All failures surface before any work is enqueued.
package fp8

import (
	"github.com/mkleiven/rowwise/internal/kernels"
	"github.com/mkleiven/rowwise/internal/logger"
	"github.com/mkleiven/rowwise/pkg/device"
)

// Ops binds the gemm entry points to a device and a stream. Methods are safe
// for concurrent use as long as the underlying device is.
type Ops struct {
	dev    device.Device
	stream device.Stream
	log    logger.Logger
}

// New returns Ops enqueueing on the given stream. A nil stream means the
// device's default stream.
func New(dev device.Device, stream device.Stream) *Ops {
	if stream == nil {
		stream = dev.DefaultStream()
	}
	return &Ops{dev: dev, stream: stream, log: logger.Default()}
}

// SetLogger replaces the logger used for dispatch traces.
func (o *Ops) SetLogger(log logger.Logger) {
	if log != nil {
		o.log = log
	}
}

// ListGroupedKernels returns the names of every compiled grouped kernel
// variant, sorted. Any returned name is a valid explicit override for
// GroupedGEMM and GroupedGEMMDynamic.
func ListGroupedKernels() []string {
	return kernels.Names(kernels.Grouped)
}

// BatchedGEMM computes out[b] = a[b] @ b[b]^T for every batch entry, scaled
// per row: a is [B,M,K] E4M3 with aScale [B,M], b is [B,N,K] E4M3 with
// bScale [B,N]. bias, when present, is a [N] float32 vector added after
// scaling. out may be nil, in which case a [B,M,N] BF16 tensor is allocated.
// useFastAccum false is rejected: the kernel image only carries fast
// accumulation variants.
func (o *Ops) BatchedGEMM(a, b, aScale, bScale device.Tensor, bias *device.Tensor, useFastAccum bool, out *device.Tensor) (device.Tensor, error) {
	d, err := o.validateBatched(a, b, aScale, bScale, bias, out)
	if err != nil {
		return device.Tensor{}, err
	}
	if !useFastAccum {
		return device.Tensor{}, configErrorf("use_fast_accumulation=false requested, but only fast-accumulation kernels are compiled")
	}

	dst, err := o.ensureOut3(out, d.b, d.m, d.n)
	if err != nil {
		return device.Tensor{}, err
	}

	e := kernels.SelectBatched(d.b, d.m, d.n, d.k)
	o.log.Debug("dispatch batched gemm", "kernel", e.Name, "b", d.b, "m", d.m, "n", d.n, "k", d.k)

	var biasAddr uint64
	if bias != nil {
		biasAddr = bias.Addr()
	}
	err = e.LaunchBatched(o.dev, o.stream, kernels.BatchedLaunch{
		A:      a.Addr(),
		B:      b.Addr(),
		AScale: aScale.Addr(),
		BScale: bScale.Addr(),
		Bias:   biasAddr,
		Out:    dst.Addr(),
		Batch:  d.b,
		M:      d.m,
		N:      d.n,
		K:      d.k,
	})
	if err != nil {
		return device.Tensor{}, err
	}
	return dst, nil
}

// GroupedGEMM runs one independently shaped gemm per group under a single
// kernel launch. Each group g computes out[g] = a[g] @ b[g]^T with a[g]
// [M_g,K_g] E4M3, b[g] [N_g,K_g] E4M3, aScale[g] [M_g] and bScale[g] [N_g]
// float32. out may be nil to allocate per-group [M_g,N_g] BF16 outputs.
// kernel selects an explicit variant by name; empty means the shape
// heuristic over the per-group maxima.
func (o *Ops) GroupedGEMM(a, b, aScale, bScale []device.Tensor, out []device.Tensor, kernel string) ([]device.Tensor, error) {
	dims, max, err := o.validateGrouped(a, b, aScale, bScale, out)
	if err != nil {
		return nil, err
	}
	e, err := o.groupedEntry(kernel, max)
	if err != nil {
		return nil, err
	}

	outs := out
	if outs == nil {
		outs = make([]device.Tensor, len(a))
		for g, d := range dims {
			outs[g], err = device.NewTensor(o.dev, device.BF16, d.m, d.n)
			if err != nil {
				return nil, err
			}
		}
	}

	recs := make([]kernels.GroupArgs, len(a))
	for g, d := range dims {
		recs[g] = kernels.GroupArgs{
			APtr:      a[g].Addr(),
			BPtr:      b[g].Addr(),
			AScalePtr: aScale[g].Addr(),
			BScalePtr: bScale[g].Addr(),
			OutPtr:    outs[g].Addr(),
			M:         int32(d.m),
			N:         int32(d.n),
			K:         int32(d.k),
			LdOut:     int32(d.n),
		}
	}
	args, err := o.buildArgs(recs)
	if err != nil {
		return nil, err
	}

	o.log.Debug("dispatch grouped gemm", "kernel", e.Name, "groups", len(a), "max_m", max.m, "max_n", max.n, "max_k", max.k)
	err = e.LaunchGrouped(o.dev, o.stream, kernels.GroupedLaunch{
		Args:   args.Addr(),
		Groups: len(a),
		MaxM:   max.m,
		MaxN:   max.n,
	})
	if ferr := o.dev.FreeAsync(args, o.stream); err == nil {
		err = ferr
	}
	if err != nil {
		return nil, err
	}
	return outs, nil
}

// GroupedGEMMDynamic is the grouped form for uniform group shapes whose
// effective row counts are only known device-side. Operand lists must be
// stacked views of single contiguous allocations. rowCounts, when non-nil,
// is a device [groups] i64 vector; rows at or beyond a group's count are
// zero in the output. A nil rowCounts runs every group at full M. The result
// is one stacked [groups,M,N] BF16 tensor. Row counts are only ever read
// device-side, so the launch can be captured into a graph and replayed as
// the counts change.
func (o *Ops) GroupedGEMMDynamic(a, b, aScale, bScale []device.Tensor, rowCounts *device.Tensor, kernel string) (device.Tensor, error) {
	d, err := o.validateGroupedDynamic(a, b, aScale, bScale, rowCounts)
	if err != nil {
		return device.Tensor{}, err
	}
	groups := len(a)
	e, err := o.groupedEntry(kernel, d)
	if err != nil {
		return device.Tensor{}, err
	}

	out, err := device.NewTensor(o.dev, device.BF16, groups, d.m, d.n)
	if err != nil {
		return device.Tensor{}, err
	}

	var rowsAddr uint64
	if rowCounts != nil {
		rowsAddr = rowCounts.Addr()
	}
	args, err := o.buildArgsDynamic(d, groups,
		a[0].Addr(), b[0].Addr(), aScale[0].Addr(), bScale[0].Addr(), out.Addr(), rowsAddr)
	if err != nil {
		return device.Tensor{}, err
	}

	o.log.Debug("dispatch dynamic grouped gemm", "kernel", e.Name, "groups", groups, "m", d.m, "n", d.n, "k", d.k)
	err = e.LaunchGrouped(o.dev, o.stream, kernels.GroupedLaunch{
		Args:   args.Addr(),
		Groups: groups,
		MaxM:   d.m,
		MaxN:   d.n,
	})
	if ferr := o.dev.FreeAsync(args, o.stream); err == nil {
		err = ferr
	}
	if err != nil {
		return device.Tensor{}, err
	}
	return out, nil
}

// groupedEntry resolves the kernel for the grouped forms: an explicit name
// must exist in the grouped registry, empty falls back to the heuristic.
func (o *Ops) groupedEntry(kernel string, max groupDims) (kernels.Entry, error) {
	if kernel == "" {
		return kernels.SelectGrouped(max.m, max.n, max.k), nil
	}
	return kernels.Lookup(kernels.Grouped, kernel)
}

func (o *Ops) ensureOut3(out *device.Tensor, b, m, n int) (device.Tensor, error) {
	if out != nil {
		return *out, nil
	}
	return device.NewTensor(o.dev, device.BF16, b, m, n)
}

package fp8

import (
	"fmt"

	"github.com/mkleiven/rowwise/internal/kernels"
	"github.com/mkleiven/rowwise/pkg/device"
)

// hostArgsMinGroups is the crossover between one bulk host-to-device copy
// of the argument buffer and per-record device-side writes.
const hostArgsMinGroups = 16

// buildArgs materializes the grouped argument buffer. Both strategies
// produce byte-identical buffers. The bulk host copy is restricted to large
// group counts on the default stream: off the default stream the launch may
// be inside a graph capture, and captured work must produce the argument
// bytes through enqueued kernels. The caller owns the returned buffer and
// releases it with FreeAsync once the consuming launch is enqueued.
func (o *Ops) buildArgs(recs []kernels.GroupArgs) (device.Buffer, error) {
	args, err := o.dev.Alloc(int64(len(recs)) * kernels.GroupArgsBytes)
	if err != nil {
		return nil, fmt.Errorf("allocate argument buffer: %w", err)
	}
	if len(recs) >= hostArgsMinGroups && o.stream.Handle() == 0 {
		staged := make([]byte, len(recs)*kernels.GroupArgsBytes)
		for i, rec := range recs {
			rec.Encode(staged[i*kernels.GroupArgsBytes:])
		}
		if err := o.dev.MemcpyH2D(args, 0, staged, o.stream); err != nil {
			_ = o.dev.FreeAsync(args, o.stream)
			return nil, fmt.Errorf("upload argument buffer: %w", err)
		}
		return args, nil
	}
	for i, rec := range recs {
		if err := kernels.LaunchArgsSet(o.dev, o.stream, args.Addr(), i, rec); err != nil {
			_ = o.dev.FreeAsync(args, o.stream)
			return nil, fmt.Errorf("write argument record %d: %w", i, err)
		}
	}
	return args, nil
}

// buildArgsDynamic allocates the argument buffer and enqueues the setup
// kernel that derives per-group records from the stacked bases and zero
// fills the tail rows. rowCounts zero means every group runs its full M.
func (o *Ops) buildArgsDynamic(d groupDims, groups int, aBase, bBase, saBase, sbBase, outBase, rowCounts uint64) (device.Buffer, error) {
	args, err := o.dev.Alloc(int64(groups) * kernels.GroupArgsBytes)
	if err != nil {
		return nil, fmt.Errorf("allocate argument buffer: %w", err)
	}
	err = kernels.LaunchArgsSetDynamic(o.dev, o.stream, kernels.DynamicArgs{
		Args:       args.Addr(),
		ABase:      aBase,
		BBase:      bBase,
		AScaleBase: saBase,
		BScaleBase: sbBase,
		OutBase:    outBase,
		RowCounts:  rowCounts,
		Groups:     groups,
		M:          d.m,
		N:          d.n,
		K:          d.k,
	})
	if err != nil {
		_ = o.dev.FreeAsync(args, o.stream)
		return nil, fmt.Errorf("enqueue dynamic argument setup: %w", err)
	}
	return args, nil
}

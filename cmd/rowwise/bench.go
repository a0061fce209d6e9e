package main

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"math/rand"
	"runtime"
	"time"

	"github.com/google/uuid"
	"github.com/urfave/cli/v3"

	"github.com/mkleiven/rowwise/internal/backend"
	"github.com/mkleiven/rowwise/pkg/device"
	"github.com/mkleiven/rowwise/pkg/fp8"
)

func benchCmd() *cli.Command {
	var (
		b, m, n, k int64
		groups     int64
		warmupRuns int64
		benchRuns  int64
		seed       int64
	)

	flags := append(backendFlags(), loggingFlags()...)
	flags = append(flags,
		&cli.Int64Flag{Name: "b", Usage: "batch count", Value: 1, Destination: &b},
		&cli.Int64Flag{Name: "m", Usage: "output rows", Value: 512, Destination: &m},
		&cli.Int64Flag{Name: "n", Usage: "output columns", Value: 4096, Destination: &n},
		&cli.Int64Flag{Name: "k", Usage: "reduction depth", Value: 4096, Destination: &k},
		&cli.Int64Flag{
			Name:        "groups",
			Usage:       "benchmark the grouped entry point with this many uniform groups (0 = batched)",
			Destination: &groups,
		},
		&cli.Int64Flag{Name: "warmup", Usage: "number of warmup runs", Value: 1, Destination: &warmupRuns},
		&cli.Int64Flag{Name: "runs", Usage: "number of benchmark runs", Value: 3, Destination: &benchRuns},
		&cli.Int64Flag{Name: "seed", Usage: "data generation seed", Value: 42, Destination: &seed},
	)

	return &cli.Command{
		Name:  "bench",
		Usage: "Run a synthetic quantize-dispatch benchmark on a backend",
		Flags: flags,
		Action: func(ctx context.Context, cmd *cli.Command) error {
			log := newLogger()
			applyBackendConfig(cmd, LoadConfig())

			if b <= 0 || m <= 0 || n <= 0 || k <= 0 {
				return cli.Exit(fmt.Sprintf("error: b, m, n and k must be positive, got b=%d m=%d n=%d k=%d", b, m, n, k), 1)
			}

			dev, err := backend.Open(backendName, kernelImage)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: open backend: %v", err), 1)
			}
			defer func() { _ = dev.Close() }()

			ops := fp8.New(dev, nil)
			ops.SetLogger(log)

			runID := uuid.NewString()
			fmt.Println("=== Rowwise Benchmark ===")
			fmt.Printf("Run ID:   %s\n", runID)
			fmt.Printf("Backend:  %s\n", dev.Name())
			if hw, ok := dev.(interface{ Hardware() string }); ok {
				fmt.Printf("Device:   %s\n", hw.Hardware())
			}
			if groups > 0 {
				fmt.Printf("Shape:    %d group(s) of %dx%dx%d\n", groups, m, n, k)
			} else {
				fmt.Printf("Shape:    b=%d m=%d n=%d k=%d\n", b, m, n, k)
			}
			fmt.Printf("Warmup:   %d runs\n", warmupRuns)
			fmt.Printf("Runs:     %d\n", benchRuns)
			fmt.Println()

			var step func() error
			var flops float64
			rng := rand.New(rand.NewSource(seed))

			prepStart := time.Now()
			if groups > 0 {
				step, err = prepareGrouped(dev, ops, rng, int(groups), int(m), int(n), int(k))
				flops = 2 * float64(groups) * float64(m) * float64(n) * float64(k)
			} else {
				step, err = prepareBatched(dev, ops, rng, int(b), int(m), int(n), int(k))
				flops = 2 * float64(b) * float64(m) * float64(n) * float64(k)
			}
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: prepare operands: %v", err), 1)
			}
			fmt.Printf("Prepare:  %s (quantize + upload)\n\n", time.Since(prepStart).Round(time.Millisecond))

			for i := range int(warmupRuns) {
				log.Info("warmup run", "run", i+1)
				if err := step(); err != nil {
					return cli.Exit(fmt.Sprintf("error: warmup run %d: %v", i+1, err), 1)
				}
			}

			type runResult struct {
				GFLOPS   float64
				Duration time.Duration
			}
			results := make([]runResult, 0, benchRuns)

			for i := range int(benchRuns) {
				log.Info("benchmark run", "run", i+1)
				start := time.Now()
				if err := step(); err != nil {
					return cli.Exit(fmt.Sprintf("error: benchmark run %d: %v", i+1, err), 1)
				}
				elapsed := time.Since(start)
				results = append(results, runResult{
					GFLOPS:   flops / elapsed.Seconds() / 1e9,
					Duration: elapsed,
				})
			}

			fmt.Println("=== Results ===")
			fmt.Printf("%-6s %12s %12s\n", "Run", "GFLOP/s", "Duration")
			var sum float64
			for i, r := range results {
				fmt.Printf("%-6d %12.2f %12s\n", i+1, r.GFLOPS, r.Duration.Round(time.Microsecond))
				sum += r.GFLOPS
			}
			fmt.Printf("\n%-6s %12.2f\n", "Avg", sum/float64(len(results)))

			var mem runtime.MemStats
			runtime.ReadMemStats(&mem)
			fmt.Printf("\nMemory: %.1f MB alloc, %.1f MB sys\n",
				float64(mem.Alloc)/(1024*1024),
				float64(mem.Sys)/(1024*1024))

			return nil
		},
	}
}

// quantizeUpload quantizes rows x cols float32 data row-wise and uploads the
// codes and scales as device tensors with the given logical shapes.
func quantizeUpload(dev device.Device, data []float32, rows, cols int, shape, scaleShape []int) (device.Tensor, device.Tensor, error) {
	codes, scales, err := fp8.QuantizeRowwise(data, rows, cols)
	if err != nil {
		return device.Tensor{}, device.Tensor{}, err
	}
	stream := dev.DefaultStream()
	t, err := device.NewTensor(dev, device.F8E4M3, shape...)
	if err != nil {
		return device.Tensor{}, device.Tensor{}, err
	}
	if err := t.CopyFromHost(codes, stream); err != nil {
		return device.Tensor{}, device.Tensor{}, err
	}
	st, err := device.NewTensor(dev, device.F32, scaleShape...)
	if err != nil {
		return device.Tensor{}, device.Tensor{}, err
	}
	buf := make([]byte, len(scales)*4)
	for i, s := range scales {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(s))
	}
	if err := st.CopyFromHost(buf, stream); err != nil {
		return device.Tensor{}, device.Tensor{}, err
	}
	// The staged slices may be reclaimed once this returns; drain the
	// uploads first.
	if err := stream.Synchronize(); err != nil {
		return device.Tensor{}, device.Tensor{}, err
	}
	return t, st, nil
}

func randData(rng *rand.Rand, n int) []float32 {
	data := make([]float32, n)
	for i := range data {
		data[i] = float32(rng.NormFloat64())
	}
	return data
}

func prepareBatched(dev device.Device, ops *fp8.Ops, rng *rand.Rand, b, m, n, k int) (func() error, error) {
	a, aScale, err := quantizeUpload(dev, randData(rng, b*m*k), b*m, k, []int{b, m, k}, []int{b, m})
	if err != nil {
		return nil, err
	}
	bT, bScale, err := quantizeUpload(dev, randData(rng, b*n*k), b*n, k, []int{b, n, k}, []int{b, n})
	if err != nil {
		return nil, err
	}
	out, err := device.NewTensor(dev, device.BF16, b, m, n)
	if err != nil {
		return nil, err
	}

	return func() error {
		if _, err := ops.BatchedGEMM(a, bT, aScale, bScale, nil, true, &out); err != nil {
			return err
		}
		return dev.DefaultStream().Synchronize()
	}, nil
}

func prepareGrouped(dev device.Device, ops *fp8.Ops, rng *rand.Rand, g, m, n, k int) (func() error, error) {
	aList := make([]device.Tensor, g)
	bList := make([]device.Tensor, g)
	aScales := make([]device.Tensor, g)
	bScales := make([]device.Tensor, g)
	outs := make([]device.Tensor, g)
	for i := 0; i < g; i++ {
		var err error
		aList[i], aScales[i], err = quantizeUpload(dev, randData(rng, m*k), m, k, []int{m, k}, []int{m})
		if err != nil {
			return nil, err
		}
		bList[i], bScales[i], err = quantizeUpload(dev, randData(rng, n*k), n, k, []int{n, k}, []int{n})
		if err != nil {
			return nil, err
		}
		outs[i], err = device.NewTensor(dev, device.BF16, m, n)
		if err != nil {
			return nil, err
		}
	}

	return func() error {
		if _, err := ops.GroupedGEMM(aList, bList, aScales, bScales, outs, ""); err != nil {
			return err
		}
		return dev.DefaultStream().Synchronize()
	}, nil
}

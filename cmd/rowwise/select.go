package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	json "github.com/goccy/go-json"
	"github.com/urfave/cli/v3"

	"github.com/mkleiven/rowwise/internal/kernels"
)

type selectionRow struct {
	Kernel kernelRow `json:"kernel"`
	Grid   [3]uint32 `json:"grid"`
	Block  [3]uint32 `json:"block"`
}

func selectCmd() *cli.Command {
	return &cli.Command{
		Name:  "select",
		Usage: "Query the shape heuristics for a kernel pick",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return cli.ShowAppHelp(cmd)
		},
		Commands: []*cli.Command{
			selectBatchedCmd(),
			selectGroupedCmd(),
		},
	}
}

func selectBatchedCmd() *cli.Command {
	var (
		b, m, n, k int64
		asJSON     bool
	)

	return &cli.Command{
		Name:  "batched",
		Usage: "Pick a batched kernel for a [B,M,K]x[B,N,K] problem",
		Flags: []cli.Flag{
			&cli.Int64Flag{Name: "b", Usage: "batch count", Value: 1, Destination: &b},
			&cli.Int64Flag{Name: "m", Usage: "output rows per batch", Destination: &m},
			&cli.Int64Flag{Name: "n", Usage: "output columns per batch", Destination: &n},
			&cli.Int64Flag{Name: "k", Usage: "reduction depth", Destination: &k},
			&cli.BoolFlag{Name: "json", Usage: "emit the selection as JSON", Destination: &asJSON},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			if b <= 0 || m <= 0 || n <= 0 || k <= 0 {
				return cli.Exit(fmt.Sprintf("error: b, m, n and k must be positive, got b=%d m=%d n=%d k=%d", b, m, n, k), 1)
			}
			entry := kernels.SelectBatched(int(b), int(m), int(n), int(k))
			return printSelection(entry, int(m), int(n), int(b), asJSON)
		},
	}
}

func selectGroupedCmd() *cli.Command {
	var (
		shapesArg string
		kernelArg string
		asJSON    bool
	)

	return &cli.Command{
		Name:  "grouped",
		Usage: "Pick a grouped kernel for a set of per-group shapes",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "shapes",
				Usage:       "per-group shapes as MxNxK, comma separated (e.g. 64x512x512,128x1024x512)",
				Destination: &shapesArg,
			},
			&cli.StringFlag{
				Name:        "kernel",
				Usage:       "bypass the heuristic with an explicit kernel name",
				Destination: &kernelArg,
			},
			&cli.BoolFlag{Name: "json", Usage: "emit the selection as JSON", Destination: &asJSON},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			shapes, err := parseShapes(shapesArg)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}

			var maxM, maxN, maxK int
			for i, s := range shapes {
				if s[1] < kernels.MinGroupedN || s[2] < kernels.MinGroupedK {
					return cli.Exit(fmt.Sprintf("error: shape %d: n=%d k=%d below grouped kernel minimum n>=%d k>=%d",
						i, s[1], s[2], kernels.MinGroupedN, kernels.MinGroupedK), 1)
				}
				maxM = max(maxM, s[0])
				maxN = max(maxN, s[1])
				maxK = max(maxK, s[2])
			}

			var entry kernels.Entry
			if kernelArg != "" {
				entry, err = kernels.Lookup(kernels.Grouped, kernelArg)
				if err != nil {
					return cli.Exit(fmt.Sprintf("error: %v", err), 1)
				}
			} else {
				entry = kernels.SelectGrouped(maxM, maxN, maxK)
			}
			return printSelection(entry, maxM, maxN, len(shapes), asJSON)
		},
	}
}

// parseShapes parses "MxNxK,MxNxK,..." into [m n k] triples.
func parseShapes(arg string) ([][3]int, error) {
	arg = strings.TrimSpace(arg)
	if arg == "" {
		return nil, errors.New("--shapes is required (e.g. --shapes 64x512x512,128x1024x512)")
	}
	var shapes [][3]int
	for _, part := range strings.Split(arg, ",") {
		fields := strings.Split(strings.TrimSpace(part), "x")
		if len(fields) != 3 {
			return nil, fmt.Errorf("shape %q: want MxNxK", part)
		}
		var s [3]int
		for i, f := range fields {
			v, err := strconv.Atoi(f)
			if err != nil || v <= 0 {
				return nil, fmt.Errorf("shape %q: bad dimension %q", part, f)
			}
			s[i] = v
		}
		shapes = append(shapes, s)
	}
	return shapes, nil
}

func printSelection(entry kernels.Entry, m, n, z int, asJSON bool) error {
	grid := entry.LaunchGrid(m, n, z)
	block := entry.BlockDim()

	if asJSON {
		row := selectionRow{
			Kernel: kernelRowFromEntry(entry),
			Grid:   [3]uint32{grid.X, grid.Y, grid.Z},
			Block:  [3]uint32{block.X, block.Y, block.Z},
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(row)
	}

	fmt.Printf("kernel: %s\n", entry.Name)
	fmt.Printf("grid:   %dx%dx%d\n", grid.X, grid.Y, grid.Z)
	fmt.Printf("block:  %dx%dx%d\n", block.X, block.Y, block.Z)
	return nil
}

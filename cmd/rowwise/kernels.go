package main

import (
	"context"
	"fmt"
	"os"

	json "github.com/goccy/go-json"
	"github.com/urfave/cli/v3"

	"github.com/mkleiven/rowwise/internal/kernels"
)

type kernelRow struct {
	Name     string `json:"name"`
	Kind     string `json:"kind"`
	TileM    int    `json:"tile_m"`
	TileN    int    `json:"tile_n"`
	TileK    int    `json:"tile_k"`
	ClusterM int    `json:"cluster_m"`
	ClusterN int    `json:"cluster_n"`
	ClusterK int    `json:"cluster_k"`
	Schedule string `json:"schedule"`
}

func kernelRowFromEntry(e kernels.Entry) kernelRow {
	schedule := "cooperative"
	if e.Cfg.Pingpong {
		schedule = "pingpong"
	}
	return kernelRow{
		Name:     e.Name,
		Kind:     e.Kind.String(),
		TileM:    e.Cfg.TileM,
		TileN:    e.Cfg.TileN,
		TileK:    e.Cfg.TileK,
		ClusterM: e.Cfg.ClusterM,
		ClusterN: e.Cfg.ClusterN,
		ClusterK: e.Cfg.ClusterK,
		Schedule: schedule,
	}
}

func kernelsCmd() *cli.Command {
	var (
		kindName string
		asJSON   bool
	)

	return &cli.Command{
		Name:  "kernels",
		Usage: "List the compiled kernel catalogue",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "kind",
				Usage:       "filter by kernel kind (batched, grouped)",
				Destination: &kindName,
			},
			&cli.BoolFlag{
				Name:        "json",
				Usage:       "emit the catalogue as JSON",
				Destination: &asJSON,
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			kinds := []kernels.Kind{kernels.Batched, kernels.Grouped}
			if kindName != "" {
				kind, err := kernels.ParseKind(kindName)
				if err != nil {
					return cli.Exit(fmt.Sprintf("error: %v", err), 1)
				}
				kinds = []kernels.Kind{kind}
			}

			var rows []kernelRow
			for _, kind := range kinds {
				for _, e := range kernels.Entries(kind) {
					rows = append(rows, kernelRowFromEntry(e))
				}
			}

			if asJSON {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(rows)
			}

			fmt.Printf("%-52s %-8s %-12s %-8s %s\n", "NAME", "KIND", "TILE", "CLUSTER", "SCHEDULE")
			for _, r := range rows {
				tile := fmt.Sprintf("%dx%dx%d", r.TileM, r.TileN, r.TileK)
				cluster := fmt.Sprintf("%dx%dx%d", r.ClusterM, r.ClusterN, r.ClusterK)
				fmt.Printf("%-52s %-8s %-12s %-8s %s\n", r.Name, r.Kind, tile, cluster, r.Schedule)
			}
			fmt.Printf("\n%d kernel(s)\n", len(rows))
			return nil
		},
	}
}

// Package kernels owns the static catalogue of compiled FP8 GEMM kernel
// variants, the shape heuristics that pick one, and the argument ABI shared
// with the device-side code. Kernel identity is the symbol name; the launch
// layer resolves names against the loaded kernel image.
package kernels

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Kind separates the two kernel families. Batched kernels take one dense
// [B,M,K]x[B,N,K] problem; grouped kernels consume a device-side argument
// buffer with one record per group.
type Kind uint8

const (
	Batched Kind = iota
	Grouped
)

func (k Kind) String() string {
	switch k {
	case Batched:
		return "batched"
	case Grouped:
		return "grouped"
	default:
		return "invalid"
	}
}

// ParseKind maps the wire spelling back to a Kind.
func ParseKind(s string) (Kind, error) {
	switch s {
	case "batched":
		return Batched, nil
	case "grouped":
		return Grouped, nil
	default:
		return 0, fmt.Errorf("unknown kernel kind %q (expected batched or grouped)", s)
	}
}

// Config is one compiled tiling variant. TileK is fixed at 128 for the FP8
// pipeline; cluster dims describe the thread-block cluster launch shape.
// Pingpong selects the latency-optimized schedule, the alternative being the
// cooperative schedule used for large tiles.
type Config struct {
	TileM, TileN, TileK          int
	ClusterM, ClusterN, ClusterK int
	Pingpong                     bool
}

// Entry is one registered kernel.
type Entry struct {
	Name string
	Kind Kind
	Cfg  Config
}

// ErrNotFound reports a kernel name with no registered entry. Errors carry
// the offending name; match with errors.Is.
var ErrNotFound = errors.New("kernel not found")

// Grouped kernels read whole operand tiles; problems shallower than one tile
// in N or K are rejected before launch rather than guarded device-side.
const (
	MinGroupedN = 512
	MinGroupedK = 512
)

const namePrefix = "f8f8bf16_rowwise"

// Name builds the canonical symbol name for a variant:
//
//	f8f8bf16_rowwise_<kind>_<tm>_<tn>_<tk>_<cm>_<cn>_<ck>_<t|f>
//
// The trailing flag encodes the pingpong schedule.
func Name(kind Kind, cfg Config) string {
	flag := "f"
	if cfg.Pingpong {
		flag = "t"
	}
	return fmt.Sprintf("%s_%s_%d_%d_%d_%d_%d_%d_%s",
		namePrefix, kind,
		cfg.TileM, cfg.TileN, cfg.TileK,
		cfg.ClusterM, cfg.ClusterN, cfg.ClusterK,
		flag)
}

// ParseName inverts Name. It accepts any well-formed name, registered or not;
// registry membership is Lookup's concern.
func ParseName(name string) (Kind, Config, error) {
	rest, ok := strings.CutPrefix(name, namePrefix+"_")
	if !ok {
		return 0, Config{}, fmt.Errorf("kernel name %q does not start with %s", name, namePrefix)
	}
	parts := strings.Split(rest, "_")
	if len(parts) != 8 {
		return 0, Config{}, fmt.Errorf("kernel name %q has %d fields, want 8", name, len(parts))
	}
	kind, err := ParseKind(parts[0])
	if err != nil {
		return 0, Config{}, fmt.Errorf("kernel name %q: %w", name, err)
	}
	var dims [6]int
	for i := 0; i < 6; i++ {
		v, err := strconv.Atoi(parts[1+i])
		if err != nil || v <= 0 {
			return 0, Config{}, fmt.Errorf("kernel name %q: bad dimension field %q", name, parts[1+i])
		}
		dims[i] = v
	}
	var pingpong bool
	switch parts[7] {
	case "t":
		pingpong = true
	case "f":
		pingpong = false
	default:
		return 0, Config{}, fmt.Errorf("kernel name %q: bad schedule flag %q", name, parts[7])
	}
	cfg := Config{
		TileM: dims[0], TileN: dims[1], TileK: dims[2],
		ClusterM: dims[3], ClusterN: dims[4], ClusterK: dims[5],
		Pingpong: pingpong,
	}
	return kind, cfg, nil
}

package main

import (
	"testing"

	"github.com/mkleiven/rowwise/internal/kernels"
)

func TestParseShapes(t *testing.T) {
	t.Parallel()

	got, err := parseShapes("64x512x512, 128x1024x512")
	if err != nil {
		t.Fatalf("parseShapes: %v", err)
	}
	want := [][3]int{{64, 512, 512}, {128, 1024, 512}}
	if len(got) != len(want) {
		t.Fatalf("got %d shapes, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("shape %d = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestParseShapesErrors(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		arg  string
	}{
		{"empty", ""},
		{"blank", "   "},
		{"two fields", "64x512"},
		{"four fields", "64x512x512x1"},
		{"non numeric", "64xbigx512"},
		{"zero dim", "64x0x512"},
		{"negative dim", "-64x512x512"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if _, err := parseShapes(tc.arg); err == nil {
				t.Fatalf("parseShapes(%q) succeeded, want error", tc.arg)
			}
		})
	}
}

func TestKernelRowFromEntry(t *testing.T) {
	t.Parallel()

	for _, kind := range []kernels.Kind{kernels.Batched, kernels.Grouped} {
		for _, e := range kernels.Entries(kind) {
			row := kernelRowFromEntry(e)
			if row.Name != e.Name || row.Kind != kind.String() {
				t.Fatalf("row %+v does not match entry %+v", row, e)
			}
			wantSchedule := "cooperative"
			if e.Cfg.Pingpong {
				wantSchedule = "pingpong"
			}
			if row.Schedule != wantSchedule {
				t.Fatalf("kernel %s: schedule %q, want %q", e.Name, row.Schedule, wantSchedule)
			}
		}
	}
}

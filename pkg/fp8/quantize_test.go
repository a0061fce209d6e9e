package fp8

import (
	"math"
	"testing"

	"github.com/mkleiven/rowwise/pkg/device"
)

func TestQuantizeRowwiseScales(t *testing.T) {
	src := []float32{
		1, -3, 2, 0.5,
		0, 0, 0, 0,
		-0.125, 0.0625, -0.03125, 0.015625,
	}
	q, scales, err := QuantizeRowwise(src, 3, 4)
	if err != nil {
		t.Fatal(err)
	}
	if len(q) != 12 || len(scales) != 3 {
		t.Fatalf("got %d bytes and %d scales", len(q), len(scales))
	}
	if want := float32(3) / maxE4M3; scales[0] != want {
		t.Errorf("scales[0] = %g, want amax/%d = %g", scales[0], maxE4M3, want)
	}
	if scales[1] != 1 {
		t.Errorf("zero row scale = %g, want 1", scales[1])
	}
	for c := 4; c < 8; c++ {
		if q[c] != 0 {
			t.Errorf("zero row byte %d = %#x, want 0", c, q[c])
		}
	}
	// The row maximum always quantizes to the FP8 maximum.
	if q[1] != 0xFE {
		t.Errorf("row amax encoded as %#x, want 0xfe (-448)", q[1])
	}
}

func TestQuantizeRowwiseRoundTrip(t *testing.T) {
	src := make([]float32, 2*64)
	for i := range src {
		src[i] = float32(math.Sin(float64(i)*0.7)) * float32(100+i)
	}
	q, scales, err := QuantizeRowwise(src, 2, 64)
	if err != nil {
		t.Fatal(err)
	}
	got, err := DequantizeRowwise(q, scales, 2, 64)
	if err != nil {
		t.Fatal(err)
	}
	for i, want := range src {
		diff := math.Abs(float64(got[i] - want))
		// One E4M3 mantissa step relative to the row amax.
		tol := float64(scales[i/64]) * maxE4M3 / 16
		if diff > tol {
			t.Fatalf("element %d: got %g, want %g (tolerance %g)", i, got[i], want, tol)
		}
	}
}

func TestQuantizeRowwiseExactValues(t *testing.T) {
	// amax 448 gives scale 1, so representable values survive untouched.
	src := []float32{448, -240, 1.75, 0.5, -0.0625, 0}
	q, scales, err := QuantizeRowwise(src, 1, 6)
	if err != nil {
		t.Fatal(err)
	}
	if scales[0] != 1 {
		t.Fatalf("scale = %g, want 1", scales[0])
	}
	got, err := DequantizeRowwise(q, scales, 1, 6)
	if err != nil {
		t.Fatal(err)
	}
	for i, want := range src {
		if got[i] != want {
			t.Errorf("element %d: got %g, want %g", i, got[i], want)
		}
	}
}

func TestQuantizeRowwiseNonFinite(t *testing.T) {
	src := []float32{float32(math.Inf(1)), 1}
	q, scales, err := QuantizeRowwise(src, 1, 2)
	if err != nil {
		t.Fatal(err)
	}
	if scales[0] != 1 {
		t.Fatalf("infinite amax scale = %g, want fallback 1", scales[0])
	}
	if q[0] != 0x7E {
		t.Errorf("infinity encodes to %#x, want saturated 0x7e", q[0])
	}
	if got := device.F8E4M3ToF32(q[1]); got != 1 {
		t.Errorf("finite neighbor decoded to %g, want 1", got)
	}
}

func TestQuantizeRowwiseShapeErrors(t *testing.T) {
	if _, _, err := QuantizeRowwise([]float32{1, 2, 3}, 2, 2); err == nil {
		t.Error("length mismatch accepted")
	}
	if _, _, err := QuantizeRowwise(nil, -1, 4); err == nil {
		t.Error("negative shape accepted")
	}
	if _, err := DequantizeRowwise([]byte{0}, []float32{1}, 1, 2); err == nil {
		t.Error("dequantize length mismatch accepted")
	}
	if _, err := DequantizeRowwise([]byte{0, 0}, []float32{1, 1}, 1, 2); err == nil {
		t.Error("dequantize scale count mismatch accepted")
	}
}

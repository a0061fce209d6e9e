package device

import (
	"math"
	"testing"
)

func TestDTypeSize(t *testing.T) {
	cases := []struct {
		dt   DType
		size int
		name string
	}{
		{F8E4M3, 1, "f8e4m3"},
		{BF16, 2, "bf16"},
		{F32, 4, "f32"},
		{I64, 8, "i64"},
	}
	for _, tc := range cases {
		if got := tc.dt.Size(); got != tc.size {
			t.Errorf("%s.Size() = %d, want %d", tc.name, got, tc.size)
		}
		if got := tc.dt.String(); got != tc.name {
			t.Errorf("String() = %q, want %q", got, tc.name)
		}
	}
	if DType(200).Size() != 0 {
		t.Errorf("invalid dtype should have size 0")
	}
}

func TestF8E4M3Exact(t *testing.T) {
	cases := []struct {
		f float32
		u uint8
	}{
		{0, 0x00},
		{0.5, 0x30},
		{1.0, 0x38},
		{1.75, 0x3E},
		{-1.0, 0xB8},
		{240, 0x77},
		{448, 0x7E},
		{-448, 0xFE},
		{0.001953125, 0x01}, // 2^-9, smallest subnormal
		{0.015625, 0x08},    // 2^-6, smallest normal
	}
	for _, tc := range cases {
		if got := F8E4M3FromF32(tc.f); got != tc.u {
			t.Errorf("encode(%v) = %#02x, want %#02x", tc.f, got, tc.u)
		}
		if got := F8E4M3ToF32(tc.u); got != tc.f {
			t.Errorf("decode(%#02x) = %v, want %v", tc.u, got, tc.f)
		}
	}
}

func TestF8E4M3Saturation(t *testing.T) {
	cases := []struct {
		f float32
		u uint8
	}{
		{500, 0x7E},
		{464, 0x7E}, // halfway above the max finite value
		{1e9, 0x7E},
		{-500, 0xFE},
		{float32(math.Inf(1)), 0x7E},
		{float32(math.Inf(-1)), 0xFE},
	}
	for _, tc := range cases {
		if got := F8E4M3FromF32(tc.f); got != tc.u {
			t.Errorf("encode(%v) = %#02x, want %#02x", tc.f, got, tc.u)
		}
	}
}

func TestF8E4M3NaN(t *testing.T) {
	if got := F8E4M3FromF32(float32(math.NaN())); got != 0x7F {
		t.Fatalf("encode(NaN) = %#02x, want 0x7f", got)
	}
	for _, u := range []uint8{0x7F, 0xFF} {
		f := F8E4M3ToF32(u)
		if !math.IsNaN(float64(f)) {
			t.Errorf("decode(%#02x) = %v, want NaN", u, f)
		}
	}
}

func TestF8E4M3RoundToNearestEven(t *testing.T) {
	cases := []struct {
		f float32
		u uint8
	}{
		{1.0625, 0x38},       // tie between 1.0 and 1.125, even mantissa wins
		{1.1875, 0x3A},       // tie between 1.125 and 1.25
		{0.0009765625, 0x00}, // 2^-10, tie between 0 and the smallest subnormal
		{0.0029296875, 0x02}, // 1.5*2^-9, tie between subnormal 1 and 2
	}
	for _, tc := range cases {
		if got := F8E4M3FromF32(tc.f); got != tc.u {
			t.Errorf("encode(%v) = %#02x, want %#02x", tc.f, got, tc.u)
		}
	}
}

func TestF8E4M3RoundTripAllPatterns(t *testing.T) {
	for i := 0; i < 256; i++ {
		u := uint8(i)
		f := F8E4M3ToF32(u)
		if math.IsNaN(float64(f)) {
			continue
		}
		if got := F8E4M3FromF32(f); got != u {
			t.Errorf("encode(decode(%#02x)) = %#02x (value %v)", u, got, f)
		}
	}
}

func TestBF16RoundTrip(t *testing.T) {
	cases := []struct {
		f float32
		u uint16
	}{
		{0, 0x0000},
		{1.0, 0x3F80},
		{-2.0, 0xC000},
		{0.5, 0x3F00},
	}
	for _, tc := range cases {
		if got := BF16FromF32(tc.f); got != tc.u {
			t.Errorf("encode(%v) = %#04x, want %#04x", tc.f, got, tc.u)
		}
		if got := BF16ToF32(tc.u); got != tc.f {
			t.Errorf("decode(%#04x) = %v, want %v", tc.u, got, tc.f)
		}
	}
}

func TestBF16RoundToNearestEven(t *testing.T) {
	cases := []struct {
		bits uint32
		u    uint16
	}{
		{0x3F808000, 0x3F80}, // halfway, low bit even: round down
		{0x3F818000, 0x3F82}, // halfway, low bit odd: round up
		{0x3F808001, 0x3F81}, // just above halfway
	}
	for _, tc := range cases {
		if got := BF16FromF32(math.Float32frombits(tc.bits)); got != tc.u {
			t.Errorf("encode(%#08x) = %#04x, want %#04x", tc.bits, got, tc.u)
		}
	}
}

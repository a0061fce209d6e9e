package device

import "math"

// DType identifies the element encoding of a Tensor.
type DType uint8

const (
	F8E4M3 DType = iota // 8-bit float, 4 exponent bits, 3 mantissa bits, no infinities
	BF16
	F32
	I64
)

// Size returns the element size in bytes.
func (d DType) Size() int {
	switch d {
	case F8E4M3:
		return 1
	case BF16:
		return 2
	case F32:
		return 4
	case I64:
		return 8
	default:
		return 0
	}
}

func (d DType) String() string {
	switch d {
	case F8E4M3:
		return "f8e4m3"
	case BF16:
		return "bf16"
	case F32:
		return "f32"
	case I64:
		return "i64"
	default:
		return "invalid"
	}
}

// f8Table maps every possible E4M3 bit-pattern to float32.
var f8Table = func() [256]float32 {
	var tbl [256]float32
	for i := range tbl {
		tbl[i] = f8ToF32(uint8(i))
	}
	return tbl
}()

func f8ToF32(u uint8) float32 {
	sign := uint32(u>>7) & 0x1
	exp := uint32(u>>3) & 0xF
	frac := uint32(u & 0x7)
	var f uint32
	switch {
	case exp == 0xF && frac == 0x7:
		f = (sign << 31) | 0x7FC00000 // the single NaN encoding per sign
	case exp == 0:
		if frac == 0 {
			f = sign << 31
		} else {
			e := uint32(127 - 7 + 1)
			for (frac & 0x8) == 0 {
				frac <<= 1
				e--
			}
			frac &= 0x7
			f = (sign << 31) | (e << 23) | (frac << 20)
		}
	default:
		e := exp + (127 - 7)
		f = (sign << 31) | (e << 23) | (frac << 20)
	}
	return math.Float32frombits(f)
}

// F8E4M3ToF32 decodes one E4M3 byte.
func F8E4M3ToF32(u uint8) float32 {
	return f8Table[u]
}

// F8E4M3FromF32 encodes with round-to-nearest-even. Values beyond the finite
// range saturate to +-448 rather than producing the NaN pattern; NaN inputs
// encode as NaN.
func F8E4M3FromF32(f float32) uint8 {
	return f8FromF32Bits(math.Float32bits(f))
}

func f8FromF32Bits(u uint32) uint8 {
	sign := uint8((u >> 24) & 0x80)
	exp := int((u >> 23) & 0xFF)
	frac := u & 0x7FFFFF

	if exp == 0xFF {
		if frac != 0 {
			return sign | 0x7F
		}
		return sign | 0x7E // inf saturates to the max finite value
	}

	e := exp - 127
	if e > 8 {
		return sign | 0x7E
	}
	if e < -6 {
		// subnormal or zero
		if e < -10 {
			return sign
		}
		frac |= 0x800000
		shift := uint32(-6-e) + 20
		rnd := uint32(1<<(shift-1)) - 1 + ((frac >> shift) & 1)
		frac = (frac + rnd) >> shift
		return sign | uint8(frac)
	}

	exp8 := uint32(e + 7)
	rnd := uint32(0x7FFFF + ((frac >> 20) & 1))
	frac += rnd
	if frac&0x800000 != 0 {
		exp8++
		frac = 0
	}
	if exp8 > 0xF || (exp8 == 0xF && (frac>>20) > 6) {
		return sign | 0x7E
	}
	return sign | uint8(exp8<<3) | uint8(frac>>20)
}

// BF16ToF32 decodes one BF16 value.
func BF16ToF32(u uint16) float32 {
	return math.Float32frombits(uint32(u) << 16)
}

// BF16FromF32 encodes with round-to-nearest-even on the truncated 16 bits.
func BF16FromF32(f float32) uint16 {
	return bf16FromF32Bits(math.Float32bits(f))
}

func bf16FromF32Bits(u uint32) uint16 {
	rnd := uint32(0x7FFF + ((u >> 16) & 1))
	return uint16((u + rnd) >> 16)
}

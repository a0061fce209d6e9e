package fp8

import (
	"fmt"
	"math"

	"github.com/mkleiven/rowwise/pkg/device"
)

// maxE4M3 is the largest finite E4M3 magnitude.
const maxE4M3 = 448

// QuantizeRowwise encodes a row-major float32 matrix as E4M3 with one scale
// per row, chosen so the row's absolute maximum lands on the FP8 maximum.
// Dequantization is q[i,j] * scale[i]. Rows of zeros get scale 1.
func QuantizeRowwise(src []float32, rows, cols int) ([]byte, []float32, error) {
	if rows < 0 || cols < 0 {
		return nil, nil, fmt.Errorf("negative shape %dx%d", rows, cols)
	}
	if len(src) != rows*cols {
		return nil, nil, fmt.Errorf("quantize %dx%d needs %d values, got %d", rows, cols, rows*cols, len(src))
	}
	q := make([]byte, rows*cols)
	scales := make([]float32, rows)
	for r := 0; r < rows; r++ {
		row := src[r*cols : (r+1)*cols]
		var amax float32
		for _, v := range row {
			if a := float32(math.Abs(float64(v))); a > amax {
				amax = a
			}
		}
		scale := amax / maxE4M3
		if scale == 0 || math.IsInf(float64(scale), 0) || math.IsNaN(float64(scale)) {
			scale = 1
		}
		inv := 1 / scale
		for c, v := range row {
			q[r*cols+c] = device.F8E4M3FromF32(v * inv)
		}
		scales[r] = scale
	}
	return q, scales, nil
}

// DequantizeRowwise inverts QuantizeRowwise up to FP8 rounding.
func DequantizeRowwise(q []byte, scales []float32, rows, cols int) ([]float32, error) {
	if len(q) != rows*cols {
		return nil, fmt.Errorf("dequantize %dx%d needs %d bytes, got %d", rows, cols, rows*cols, len(q))
	}
	if len(scales) != rows {
		return nil, fmt.Errorf("dequantize %d rows needs %d scales, got %d", rows, rows, len(scales))
	}
	out := make([]float32, rows*cols)
	for r := 0; r < rows; r++ {
		s := scales[r]
		for c := 0; c < cols; c++ {
			out[r*cols+c] = device.F8E4M3ToF32(q[r*cols+c]) * s
		}
	}
	return out, nil
}

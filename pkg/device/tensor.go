package device

import "fmt"

// Tensor couples a device buffer with a shape, element strides and a dtype.
// Strides are in elements, row-major for tensors allocated here. A Tensor is
// a view: copying the struct aliases the same device memory.
type Tensor struct {
	Dev    Device
	Buf    Buffer
	Off    int64 // byte offset into Buf
	Shape  []int
	Stride []int
	DType  DType
}

// NewTensor allocates a contiguous row-major tensor on dev.
func NewTensor(dev Device, dt DType, shape ...int) (Tensor, error) {
	elems, err := checkShape(shape)
	if err != nil {
		return Tensor{}, err
	}
	esz := dt.Size()
	if esz == 0 {
		return Tensor{}, fmt.Errorf("invalid dtype %d", dt)
	}
	bytes := int64(elems) * int64(esz)
	if bytes == 0 {
		bytes = int64(esz) // zero-elem tensors still get a valid address
	}
	buf, err := dev.Alloc(bytes)
	if err != nil {
		return Tensor{}, err
	}
	return Tensor{
		Dev:    dev,
		Buf:    buf,
		Shape:  append([]int(nil), shape...),
		Stride: ContiguousStride(shape),
		DType:  dt,
	}, nil
}

// NewTensorView wraps an existing buffer region without allocating. A nil
// stride means contiguous row-major. The view must fit inside the buffer.
func NewTensorView(dev Device, buf Buffer, off int64, dt DType, shape, stride []int) (Tensor, error) {
	if _, err := checkShape(shape); err != nil {
		return Tensor{}, err
	}
	esz := dt.Size()
	if esz == 0 {
		return Tensor{}, fmt.Errorf("invalid dtype %d", dt)
	}
	if stride == nil {
		stride = ContiguousStride(shape)
	}
	if len(stride) != len(shape) {
		return Tensor{}, fmt.Errorf("stride rank %d does not match shape rank %d", len(stride), len(shape))
	}
	span := int64(1)
	for i, n := range shape {
		if n == 0 {
			span = 0
			break
		}
		if stride[i] < 0 {
			return Tensor{}, fmt.Errorf("negative stride %d", stride[i])
		}
		span += int64(n-1) * int64(stride[i])
	}
	if off < 0 || off+span*int64(esz) > buf.Bytes() {
		return Tensor{}, fmt.Errorf("view of %d bytes at offset %d exceeds buffer of %d bytes", span*int64(esz), off, buf.Bytes())
	}
	return Tensor{
		Dev:    dev,
		Buf:    buf,
		Off:    off,
		Shape:  append([]int(nil), shape...),
		Stride: append([]int(nil), stride...),
		DType:  dt,
	}, nil
}

// ContiguousStride returns the row-major strides for shape, in elements.
func ContiguousStride(shape []int) []int {
	st := make([]int, len(shape))
	acc := 1
	for i := len(shape) - 1; i >= 0; i-- {
		st[i] = acc
		acc *= shape[i]
	}
	return st
}

func checkShape(shape []int) (int, error) {
	elems := 1
	for _, n := range shape {
		if n < 0 {
			return 0, fmt.Errorf("negative dimension %d", n)
		}
		if n != 0 && elems > int(^uint(0)>>1)/n {
			return 0, fmt.Errorf("tensor too large")
		}
		elems *= n
	}
	return elems, nil
}

func (t Tensor) Rank() int { return len(t.Shape) }

func (t Tensor) Dim(i int) int { return t.Shape[i] }

// Elems returns the number of elements addressed by the view.
func (t Tensor) Elems() int {
	n := 1
	for _, d := range t.Shape {
		n *= d
	}
	return n
}

// Bytes returns the payload size of the view assuming dense packing.
func (t Tensor) Bytes() int64 {
	return int64(t.Elems()) * int64(t.DType.Size())
}

// Addr returns the device address of the first element.
func (t Tensor) Addr() uint64 {
	return t.Buf.Addr() + uint64(t.Off)
}

// IsContiguous reports whether the view is dense row-major.
func (t Tensor) IsContiguous() bool {
	want := ContiguousStride(t.Shape)
	for i := range want {
		if t.Shape[i] > 1 && t.Stride[i] != want[i] {
			return false
		}
	}
	return true
}

// Index returns the subview selecting index i along the leading dimension.
// The result shares device memory with t.
func (t Tensor) Index(i int) (Tensor, error) {
	if t.Rank() == 0 {
		return Tensor{}, fmt.Errorf("cannot index a rank-0 tensor")
	}
	if i < 0 || i >= t.Shape[0] {
		return Tensor{}, fmt.Errorf("index %d out of range [0,%d)", i, t.Shape[0])
	}
	off := t.Off + int64(i)*int64(t.Stride[0])*int64(t.DType.Size())
	return Tensor{
		Dev:    t.Dev,
		Buf:    t.Buf,
		Off:    off,
		Shape:  append([]int(nil), t.Shape[1:]...),
		Stride: append([]int(nil), t.Stride[1:]...),
		DType:  t.DType,
	}, nil
}

// CopyFromHost uploads len(src) bytes into the view. The view must be
// contiguous and src must match its payload size.
func (t Tensor) CopyFromHost(src []byte, s Stream) error {
	if !t.IsContiguous() {
		return fmt.Errorf("upload target must be contiguous")
	}
	if int64(len(src)) != t.Bytes() {
		return fmt.Errorf("upload of %d bytes into tensor of %d bytes", len(src), t.Bytes())
	}
	return t.Dev.MemcpyH2D(t.Buf, t.Off, src, s)
}

// CopyToHost downloads the view into dst. The view must be contiguous and dst
// must match its payload size.
func (t Tensor) CopyToHost(dst []byte, s Stream) error {
	if !t.IsContiguous() {
		return fmt.Errorf("download source must be contiguous")
	}
	if int64(len(dst)) != t.Bytes() {
		return fmt.Errorf("download of %d bytes from tensor of %d bytes", len(dst), t.Bytes())
	}
	return t.Dev.MemcpyD2H(dst, t.Buf, t.Off, s)
}

// Free releases the underlying buffer. Only the owner of the allocation
// should call it; views share the owner's buffer.
func (t Tensor) Free() error {
	if t.Buf == nil {
		return nil
	}
	return t.Buf.Free()
}

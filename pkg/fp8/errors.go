package fp8

import (
	"errors"
	"fmt"

	"github.com/mkleiven/rowwise/internal/kernels"
)

var (
	// ErrValidation covers malformed operands: wrong dtype, rank, shape,
	// layout or device placement.
	ErrValidation = errors.New("invalid gemm arguments")

	// ErrConfig covers well-formed operands asking for a configuration the
	// kernel image does not provide.
	ErrConfig = errors.New("unsupported gemm configuration")

	// ErrKernelNotFound reports an explicit kernel override naming no
	// registered variant. It is the registry's sentinel, so errors.Is works
	// on values from either package.
	ErrKernelNotFound = kernels.ErrNotFound
)

type argError struct {
	msg string
}

func (e argError) Error() string { return e.msg }
func (e argError) Unwrap() error { return ErrValidation }

func argErrorf(format string, args ...any) error {
	return argError{msg: fmt.Sprintf(format, args...)}
}

type configError struct {
	msg string
}

func (e configError) Error() string { return e.msg }
func (e configError) Unwrap() error { return ErrConfig }

func configErrorf(format string, args ...any) error {
	return configError{msg: fmt.Sprintf(format, args...)}
}

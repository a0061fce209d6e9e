// Package backend resolves a backend name to an open compute device. The
// host backend is always available; cuda depends on a loadable driver and a
// kernel image built for the installed GPU.
package backend

import (
	"fmt"
	"strings"

	"github.com/mkleiven/rowwise/internal/backend/cuda"
	"github.com/mkleiven/rowwise/internal/backend/host"
	"github.com/mkleiven/rowwise/pkg/device"
)

const (
	Host = "host"
	CUDA = "cuda"
	Auto = "auto"
)

func Normalize(name string) (string, error) {
	backend := strings.ToLower(strings.TrimSpace(name))
	if backend == "" {
		return Auto, nil
	}
	switch backend {
	case Host, CUDA, Auto:
		return backend, nil
	default:
		return "", fmt.Errorf("unknown backend %q (expected auto, host, or cuda)", backend)
	}
}

// Open normalizes name and opens the selected device. Auto picks cuda when
// the driver reports a device and a kernel image was given, and falls back
// to host otherwise.
func Open(name, kernelImage string) (device.Device, error) {
	backend, err := Normalize(name)
	if err != nil {
		return nil, err
	}
	if backend == Auto {
		if kernelImage != "" && cuda.Available() {
			backend = CUDA
		} else {
			backend = Host
		}
	}
	switch backend {
	case CUDA:
		return cuda.New(kernelImage)
	default:
		return host.New(), nil
	}
}

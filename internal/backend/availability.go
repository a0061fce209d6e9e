package backend

import (
	"strings"

	"github.com/mkleiven/rowwise/internal/backend/cuda"
)

// Available returns a comma-separated list of available backends.
func Available() string {
	entries := []string{Host}
	if cuda.Available() {
		entries = append(entries, CUDA)
	}
	return strings.Join(entries, ",")
}

// Package kerneltext loads OpenCL kernel source for the GPU backend,
// mirroring the Liquid Engine's _get_cl_code: a kernel lives in a ".cl"
// file sitting next to the Go source that declares the operation, and its
// double-precision arithmetic is downgraded to float when the probed
// device has no double support.
package kerneltext

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrKernelSourceMissing is returned when no ".cl" file can be found for
// the given source path.
var ErrKernelSourceMissing = errors.New("kerneltext: kernel source file not found")

// Load reads the OpenCL kernel source co-located with sourcePath (the Go
// file of the operation that owns the kernel), replacing sourcePath's
// extension with ".cl". When doublePrecision is false, every occurrence of
// the text "double" (including inside longer identifiers) is rewritten to
// "float", matching devices that only expose single-precision float support.
func Load(sourcePath string, doublePrecision bool) (string, error) {
	clPath := strings.TrimSuffix(sourcePath, filepath.Ext(sourcePath)) + ".cl"

	data, err := os.ReadFile(clPath)
	if err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("%w: %s", ErrKernelSourceMissing, clPath)
		}
		return "", fmt.Errorf("kerneltext: reading %s: %w", clPath, err)
	}

	kernel := string(data)
	if !doublePrecision {
		kernel = strings.ReplaceAll(kernel, "double", "float")
	}
	return kernel, nil
}

//go:build !opencl

package waveguide

import "errors"

// ErrOpenCLUnavailable is returned when the binary was built without OpenCL.
var ErrOpenCLUnavailable = errors.New("waveguide: OpenCL support is not enabled; rebuild with -tags opencl")

func newOpenCLKernel(*program) (Kernel, error) {
	return nil, ErrOpenCLUnavailable
}

package waveguide

import (
	"math"

	"acousticir/internal/mesh"
)

// Physical constants used by the solver and its postprocessors.
const (
	SpeedOfSound      = 340.0
	AirDensity        = 1.225
	AcousticImpedance = 400.0
)

// courantSquared and halfCourant are the λ² and λ/2 terms of the update equation
// in the precision the kernels work in.
var (
	courantSquared = float32(mesh.CourantSquared)
	halfCourant    = float32(math.Sqrt(mesh.CourantSquared) / 2)
)

// Device selects the kernel implementation.
type Device int

const (
	DeviceCPU Device = iota
	DeviceOpenCL
)

func (d Device) String() string {
	if d == DeviceOpenCL {
		return "opencl"
	}
	return "cpu"
}

// Config controls how a Waveguide executes its steps.
type Config struct {
	Device Device
	// Workers is the CPU worker count. Zero means one per logical CPU.
	Workers int
}

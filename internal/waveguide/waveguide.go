// Package waveguide runs the rectilinear finite-difference mesh that models
// low-frequency sound propagation in a closed room.
package waveguide

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/GeoffreyPlitt/debuggo"
	"github.com/go-gl/mathgl/mgl32"

	"acousticir/internal/boundary"
	"acousticir/internal/geom"
	"acousticir/internal/mesh"
)

var waveDebug = debuggo.Debug("acousticir:waveguide")

// ErrInvalidNode is returned when a run addresses a node that is not
// simulated.
var ErrInvalidNode = errors.New("waveguide: node is not inside the mesh")

// Waveguide owns a mesh, its boundary filters and the pressure buffers of
// one simulation. Runs on the same Waveguide must not overlap.
type Waveguide struct {
	mesh       *mesh.Mesh
	sampleRate float64
	prog       *program
	kernel     Kernel
	field      *Field

	// steps counts completed steps of the current or last run.
	steps atomic.Int64
}

// New prepares a waveguide for an existing mesh. coeffs are the admittance
// filters indexed by surface material.
func New(m *mesh.Mesh, sampleRate float64, coeffs []boundary.Coefficients, cfg Config) (*Waveguide, error) {
	if !(sampleRate > 0) {
		return nil, fmt.Errorf("waveguide: invalid sample rate %v", sampleRate)
	}
	prog, err := newProgram(m, coeffs)
	if err != nil {
		return nil, err
	}
	var kernel Kernel
	switch cfg.Device {
	case DeviceOpenCL:
		kernel, err = newOpenCLKernel(prog)
		if err != nil {
			return nil, fmt.Errorf("waveguide: %w", err)
		}
	default:
		kernel = newCPUKernel(prog, cfg.Workers)
	}
	waveDebug("%s kernel: %d nodes (%d inside, %d boundary), order %d, %d materials",
		kernel.Name(), m.Size(), m.InsideCount(), m.BoundaryCount(), prog.order, prog.materials)
	return &Waveguide{
		mesh:       m,
		sampleRate: sampleRate,
		prog:       prog,
		kernel:     kernel,
		field:      NewField(m.Size()),
	}, nil
}

// NewFromBoundary voxelises b at the grid spacing for sampleRate and fits
// admittance filters for surfaces.
func NewFromBoundary(b geom.Boundary, surfaces []boundary.Surface, anchor mgl32.Vec3, sampleRate float64, cfg Config) (*Waveguide, error) {
	spacing := mesh.GridSpacing(SpeedOfSound, sampleRate)
	m, err := mesh.Build(b, float32(spacing), anchor)
	if err != nil {
		return nil, err
	}
	coeffs, err := boundary.ToCoefficients(surfaces, sampleRate, boundary.DefaultOrder)
	if err != nil {
		return nil, err
	}
	return New(m, sampleRate, coeffs, cfg)
}

// Close releases the kernel.
func (w *Waveguide) Close() error { return w.kernel.Close() }

// Mesh returns the lattice.
func (w *Waveguide) Mesh() *mesh.Mesh { return w.mesh }

// SampleRate returns the rate at which the mesh is stepped.
func (w *Waveguide) SampleRate() float64 { return w.sampleRate }

// IndexForCoordinate returns the node nearest to v.
func (w *Waveguide) IndexForCoordinate(v mgl32.Vec3) int { return w.mesh.IndexForCoordinate(v) }

// CoordinateForIndex returns the position of a node.
func (w *Waveguide) CoordinateForIndex(index int) mgl32.Vec3 { return w.mesh.CoordinateForIndex(index) }

// Inside reports whether index is a simulated node.
func (w *Waveguide) Inside(index int) bool { return w.mesh.Inside(index) }

// Steps returns how many steps the current or most recent run completed.
// It may be read from any goroutine.
func (w *Waveguide) Steps() int { return int(w.steps.Load()) }

// KernelName describes the kernel in use.
func (w *Waveguide) KernelName() string { return w.kernel.Name() }

// RunConfig describes one run.
type RunConfig struct {
	// Source is the node that receives the input signal.
	Source int
	// Input is added to the source node, one sample per step. It is zero
	// padded to Steps.
	Input []float32
	// Steps defaults to len(Input).
	Steps          int
	Postprocessors []Postprocessor
	// OnStep is called after the postprocessors of every step.
	OnStep func(step, total int)
	// Cancel is polled once per step alongside the context.
	Cancel *atomic.Bool
}

// Run steps the mesh from silence. It returns false with a nil error when
// cancelled, a *FaultError when a kernel raises a fault and true once every
// step has completed.
func (w *Waveguide) Run(ctx context.Context, rc RunConfig) (bool, error) {
	if !w.mesh.Inside(rc.Source) {
		return false, fmt.Errorf("%w: source %d", ErrInvalidNode, rc.Source)
	}
	total := rc.Steps
	if total <= 0 {
		total = len(rc.Input)
	}
	w.field.Reset()
	w.steps.Store(0)
	if err := w.kernel.Reset(); err != nil {
		return false, fmt.Errorf("waveguide: %w", err)
	}
	waveDebug("run: %d steps, source %d, %d postprocessors", total, rc.Source, len(rc.Postprocessors))

	for step := 0; step < total; step++ {
		if ctx.Err() != nil || (rc.Cancel != nil && rc.Cancel.Load()) {
			waveDebug("run cancelled at step %d", step)
			return false, nil
		}
		current := w.field.Current()
		if step < len(rc.Input) {
			current[rc.Source] += rc.Input[step]
		}

		fault, err := w.kernel.Step(w.field)
		if err != nil {
			return false, fmt.Errorf("waveguide: step %d: %w", step, err)
		}
		if fault != 0 {
			return false, &FaultError{Step: step, Faults: fault}
		}

		for _, p := range rc.Postprocessors {
			p.Process(current, step)
		}
		w.steps.Add(1)
		if rc.OnStep != nil {
			rc.OnStep(step, total)
		}
		w.field.Rotate()
	}
	return true, nil
}

package waveguide

import (
	"fmt"

	"github.com/go-gl/mathgl/mgl32"

	"acousticir/internal/mesh"
)

// Postprocessor observes the pressure field once per step. field is only
// valid for the duration of the call and must not be modified.
type Postprocessor interface {
	Process(field []float32, step int)
}

// PostprocessorFunc adapts a function to the Postprocessor interface.
type PostprocessorFunc func(field []float32, step int)

// Process calls f.
func (f PostprocessorFunc) Process(field []float32, step int) { f(field, step) }

// RunStepOutput is what a microphone records at one step.
type RunStepOutput struct {
	Intensity mgl32.Vec3
	Pressure  float32
}

// Microphone records pressure at one node and estimates acoustic intensity
// by integrating the local pressure gradient into a particle velocity.
type Microphone struct {
	index      int
	neighbours [mesh.NumDirections]int
	scale      float32
	velocity   mgl32.Vec3
	output     func(RunStepOutput)
}

// NewMicrophone attaches a microphone to an inside node of m.
func NewMicrophone(m *mesh.Mesh, index int, sampleRate float64, output func(RunStepOutput)) (*Microphone, error) {
	if !m.Inside(index) {
		return nil, fmt.Errorf("%w: microphone %d", ErrInvalidNode, index)
	}
	d := m.Descriptor()
	mic := &Microphone{
		index:  index,
		scale:  float32(-1 / (sampleRate * AirDensity * float64(d.Spacing))),
		output: output,
	}
	for dir := mesh.Direction(0); dir < mesh.NumDirections; dir++ {
		n := d.Neighbor(index, dir)
		if !m.Inside(n) {
			n = -1
		}
		mic.neighbours[dir] = n
	}
	return mic, nil
}

// Process samples the field.
func (m *Microphone) Process(field []float32, _ int) {
	p := field[m.index]
	var gradient mgl32.Vec3
	for axis := 0; axis < 3; axis++ {
		lo, hi := m.neighbours[2*axis], m.neighbours[2*axis+1]
		switch {
		case lo >= 0 && hi >= 0:
			gradient[axis] = (field[hi] - field[lo]) / 2
		case hi >= 0:
			gradient[axis] = field[hi] - p
		case lo >= 0:
			gradient[axis] = p - field[lo]
		}
	}
	m.velocity = m.velocity.Add(gradient.Mul(m.scale))
	m.output(RunStepOutput{Intensity: m.velocity.Mul(p), Pressure: p})
}

// Index returns the observed node.
func (m *Microphone) Index() int { return m.index }

// Visualiser hands a copy of every field to a callback.
type Visualiser struct {
	output func(field []float32, step int)
}

// NewVisualiser wraps output.
func NewVisualiser(output func(field []float32, step int)) *Visualiser {
	return &Visualiser{output: output}
}

// Process copies the field and forwards it.
func (v *Visualiser) Process(field []float32, step int) {
	frame := make([]float32, len(field))
	copy(frame, field)
	v.output(frame, step)
}

// Accumulator collects one sample per step into a slice the caller can read
// after the run.
type Accumulator[T any] struct {
	sample func(field []float32, step int) T
	output []T
}

// NewAccumulator returns an accumulator that stores sample's result.
func NewAccumulator[T any](sample func(field []float32, step int) T) *Accumulator[T] {
	return &Accumulator[T]{sample: sample}
}

// Process appends one sample.
func (a *Accumulator[T]) Process(field []float32, step int) {
	a.output = append(a.output, a.sample(field, step))
}

// Output returns everything sampled so far.
func (a *Accumulator[T]) Output() []T { return a.output }

// NodePressure samples the pressure at one node.
func NodePressure(index int) func(field []float32, step int) float32 {
	return func(field []float32, _ int) float32 { return field[index] }
}

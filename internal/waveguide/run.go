package waveguide

import (
	"context"
	"sync/atomic"
)

// MicrophoneRun describes a run that records one receiver.
type MicrophoneRun struct {
	Source   int
	Receiver int
	Input    []float32
	Steps    int
	Cancel   *atomic.Bool
	OnStep   func(step, total int)
	// Postprocessors run after the receiver's microphone on every step.
	Postprocessors []Postprocessor
}

// RunMicrophone drives w with the input at the source node and returns one
// RunStepOutput per step for the receiver. It returns nil and no error when
// the run was cancelled.
func RunMicrophone(ctx context.Context, w *Waveguide, r MicrophoneRun) ([]RunStepOutput, error) {
	return RunMicrophoneVisualised(ctx, w, r, nil)
}

// RunMicrophoneVisualised is RunMicrophone with an extra callback that
// receives a copy of every field.
func RunMicrophoneVisualised(ctx context.Context, w *Waveguide, r MicrophoneRun, visual func(field []float32, step int)) ([]RunStepOutput, error) {
	steps := r.Steps
	if steps <= 0 {
		steps = len(r.Input)
	}
	out := make([]RunStepOutput, 0, steps)
	mic, err := NewMicrophone(w.Mesh(), r.Receiver, w.SampleRate(), func(o RunStepOutput) {
		out = append(out, o)
	})
	if err != nil {
		return nil, err
	}
	post := append([]Postprocessor{mic}, r.Postprocessors...)
	if visual != nil {
		post = append(post, NewVisualiser(visual))
	}
	done, err := w.Run(ctx, RunConfig{
		Source:         r.Source,
		Input:          r.Input,
		Steps:          steps,
		Postprocessors: post,
		OnStep:         r.OnStep,
		Cancel:         r.Cancel,
	})
	if err != nil || !done {
		return nil, err
	}
	return out, nil
}

// Pressures extracts the pressure channel of a recording.
func Pressures(outputs []RunStepOutput) []float32 {
	p := make([]float32, len(outputs))
	for i, o := range outputs {
		p[i] = o.Pressure
	}
	return p
}

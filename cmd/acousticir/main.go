// Command acousticir renders room impulse responses for a rectangular room:
// the low-frequency part with a waveguide mesh and the late diffuse tail with
// the stochastic histogram engine.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"os"
	"os/signal"

	"github.com/go-gl/mathgl/mgl32"

	"acousticir/internal/boundary"
	"acousticir/internal/geom"
	"acousticir/internal/stochastic"
	"acousticir/internal/waveguide"
)

type options struct {
	room, source, receiver mgl32.Vec3
	sampleRate             int
	steps                  int
	reflectance            float64
	input                  string
	transparent            bool
	output                 string
	stochasticOutput       string
	outputRate             int
	workers                int
	openCL                 bool
	imageOrder             int
	micPointing            mgl32.Vec3
	micShape               float64
	seed                   int64
	snapshot               string
	snapshotEvery          int
	// onStep, when set, is called after every waveguide step.
	onStep func(step, total int)
}

func main() {
	flag.Parse()
	stop, err := startProfiling(*cpuProfileFlag, *heapProfileFlag)
	if err != nil {
		log.Fatal(err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	err = run(ctx, optionsFromFlags())
	cancel()
	if perr := stop(); perr != nil {
		log.Print(perr)
	}
	if err != nil {
		log.Fatal(err)
	}
}

func run(ctx context.Context, o options) error {
	if !(o.room[0] > 0 && o.room[1] > 0 && o.room[2] > 0) {
		return fmt.Errorf("room size %v must be positive", o.room)
	}
	room := geom.Box{Min: o.room.Mul(-0.5), Max: o.room.Mul(0.5)}
	for name, p := range map[string]mgl32.Vec3{"source": o.source, "receiver": o.receiver} {
		if !room.Contains(p) {
			return fmt.Errorf("%s %v is outside the room %v", name, p, room)
		}
	}

	ir, err := renderWaveguide(ctx, room, o)
	if err != nil {
		return err
	}
	if ir == nil {
		log.Print("cancelled")
		return nil
	}
	if err := writeWAV(o.output, o.sampleRate, normalise(removeDC(ir))); err != nil {
		return err
	}
	log.Printf("wrote %s: %d samples at %d Hz", o.output, len(ir), o.sampleRate)

	if o.imageOrder <= 0 {
		return nil
	}
	tail, err := renderStochastic(ctx, room, o)
	if errors.Is(err, context.Canceled) {
		log.Print("cancelled")
		return nil
	}
	if err != nil {
		return err
	}
	if err := writeWAV(o.stochasticOutput, o.outputRate, normalise(tail)); err != nil {
		return err
	}
	log.Printf("wrote %s: %d samples at %d Hz", o.stochasticOutput, len(tail), o.outputRate)
	return nil
}

// renderWaveguide returns the pressure at the receiver, or nil when ctx was
// cancelled before the run finished.
func renderWaveguide(ctx context.Context, room geom.Box, o options) ([]float32, error) {
	b, err := geom.NewBoxBoundary(room, 0)
	if err != nil {
		return nil, err
	}
	cfg := waveguide.Config{Workers: o.workers}
	if o.openCL {
		cfg.Device = waveguide.DeviceOpenCL
	}
	fs := float64(o.sampleRate)
	w, err := waveguide.NewFromBoundary(b, []boundary.Surface{boundary.UniformSurface(o.reflectance)}, mgl32.Vec3{}, fs, cfg)
	if err != nil {
		return nil, err
	}
	defer w.Close()
	m := w.Mesh()
	log.Printf("mesh: %d nodes, %d inside, %d boundary, spacing %.4fm, %s kernel",
		m.Size(), m.InsideCount(), m.BoundaryCount(), m.Descriptor().Spacing, w.KernelName())

	input, err := excitation(o.sampleRate, o.input)
	if err != nil {
		return nil, err
	}
	steps := o.steps
	if steps <= 0 {
		steps = len(input) + int(defaultTail.Seconds()*fs)
	}
	if o.transparent {
		input = transparentExcitation(input, steps)
	}

	var post []waveguide.Postprocessor
	if o.snapshot != "" {
		snap, err := newSnapshotWriter(o.snapshot, m.Descriptor().Dim, o.snapshotEvery)
		if err != nil {
			return nil, err
		}
		defer func() {
			if cerr := snap.Close(); cerr != nil {
				log.Printf("snapshot: %v", cerr)
				return
			}
			log.Printf("wrote %s: %d frames", o.snapshot, snap.frames)
		}()
		post = append(post, snap.postprocessor())
	}

	progressEvery := max(steps/progressUpdates, 1)
	out, err := waveguide.RunMicrophone(ctx, w, waveguide.MicrophoneRun{
		Source:         w.IndexForCoordinate(o.source),
		Receiver:       w.IndexForCoordinate(o.receiver),
		Input:          input,
		Steps:          steps,
		Postprocessors: post,
		OnStep: func(step, total int) {
			if (step+1)%progressEvery == 0 {
				log.Printf("waveguide: step %d/%d", step+1, total)
			}
			if o.onStep != nil {
				o.onStep(step, total)
			}
		},
	})
	if err != nil {
		var fe *waveguide.FaultError
		if errors.As(err, &fe) {
			return nil, fmt.Errorf("waveguide diverged at step %d (%v): %w", fe.Step, fe.Faults, err)
		}
		return nil, err
	}
	if out == nil {
		return nil, nil
	}
	return waveguide.Pressures(out), nil
}

// transparentExcitation deconvolves the first steps samples of input, capped
// at maxTransparentLength. The run zero pads the rest.
func transparentExcitation(input []float32, steps int) []float32 {
	length := min(steps, maxTransparentLength)
	if len(input) > length {
		log.Printf("transparent source: truncating excitation from %d to %d samples", len(input), length)
		input = input[:length]
	}
	return waveguide.MakeTransparent(input, length)
}

// renderStochastic shapes a dirac sequence with the energy of a synthetic
// ray stream heard through the receiver's polar pattern.
func renderStochastic(ctx context.Context, room geom.Box, o options) ([]float32, error) {
	batches := imageSourceReflections(room, o.source, o.receiver, o.reflectance, waveguide.SpeedOfSound, o.imageOrder)
	h, err := stochastic.AccumulateDirectionalParallel(ctx, azimuthCells, elevationCells, histogramRate, batches)
	if err != nil {
		return nil, err
	}
	seq, err := stochastic.GenerateDiracSequence(waveguide.SpeedOfSound, room.Volume(), float64(o.outputRate), h.MaxTime(), rand.New(rand.NewSource(o.seed)))
	if err != nil {
		return nil, err
	}
	mic := stochastic.Microphone{Pointing: o.micPointing, Shape: o.micShape}
	return stochastic.PostprocessDirectional(h, mic, seq, waveguide.AcousticImpedance)
}

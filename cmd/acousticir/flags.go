package main

import (
	"flag"
	"fmt"
	"strconv"
	"strings"

	"github.com/go-gl/mathgl/mgl32"
)

// Command-line flags that describe the room, the excitation and where the
// rendered impulse responses go.
var (
	// sampleRateFlag sets the waveguide rate, and with it the grid spacing.
	sampleRateFlag = flag.Int("sample-rate", defaultWaveguideRate, "waveguide sample rate in Hz")

	stepsFlag = flag.Int("steps", 0, "waveguide steps (0 runs the excitation plus a 500ms tail)")

	// reflectanceFlag applies to every wall in every band.
	reflectanceFlag = flag.Float64("reflectance", defaultReflectance, "pressure reflectance of the walls (0-1)")

	inputFlag = flag.String("input", "", "excitation WAV; a unit impulse is used when empty")

	// transparentFlag removes the free-field response of the source node from
	// the excitation so the mesh reproduces it at the source.
	transparentFlag = flag.Bool("transparent", false, "deconvolve the excitation for a transparent source")

	outputFlag           = flag.String("output", "waveguide.wav", "waveguide impulse response WAV")
	stochasticOutputFlag = flag.String("stochastic-output", "stochastic.wav", "stochastic impulse response WAV")
	outputRateFlag       = flag.Int("output-rate", defaultOutputRate, "sample rate of the stochastic impulse response")

	// workersFlag sizes the CPU kernel pool.
	workersFlag = flag.Int("workers", 0, "CPU kernel workers (0 uses one per CPU)")

	openCLFlag = flag.Bool("opencl", false, "step the mesh with OpenCL (needs a build with -tags opencl)")

	// imageOrderFlag bounds the synthetic ray stream fed to the histogram
	// engine. Zero skips the stochastic render.
	imageOrderFlag = flag.Int("image-order", defaultImageOrder, "reflection order of the synthetic ray stream (0 disables it)")

	micShapeFlag = flag.Float64("mic-shape", 0, "receiver polar pattern: 0 omni, 0.5 cardioid, 1 figure-of-eight")
	seedFlag     = flag.Int64("seed", 1, "seed of the dirac sequence")

	// snapshotFlag exports the pressure field as binary16 frames.
	snapshotFlag      = flag.String("snapshot", "", "write binary16 pressure field frames to this file")
	snapshotEveryFlag = flag.Int("snapshot-every", 10, "steps between field snapshots")

	cpuProfileFlag  = flag.String("cpuprofile", "", "write a CPU profile to this file")
	heapProfileFlag = flag.String("memprofile", "", "write a heap profile to this file on exit")

	roomFlag        = vec3Value{4, 3, 5}
	sourceFlag      = vec3Value{-0.8, 0.2, 0.5}
	receiverFlag    = vec3Value{0.9, -0.3, -1.1}
	micPointingFlag = vec3Value{1, 0, 0}
)

func init() {
	flag.Var(&roomFlag, "room", "room size x,y,z in metres, centred on the origin")
	flag.Var(&sourceFlag, "source", "source position x,y,z")
	flag.Var(&receiverFlag, "receiver", "receiver position x,y,z")
	flag.Var(&micPointingFlag, "mic-pointing", "receiver axis x,y,z")
}

// vec3Value parses "x,y,z".
type vec3Value mgl32.Vec3

func (v *vec3Value) String() string {
	return fmt.Sprintf("%g,%g,%g", v[0], v[1], v[2])
}

func (v *vec3Value) Set(s string) error {
	parts := strings.Split(s, ",")
	if len(parts) != 3 {
		return fmt.Errorf("want x,y,z, got %q", s)
	}
	var out vec3Value
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 32)
		if err != nil {
			return fmt.Errorf("component %d of %q: %w", i, s, err)
		}
		out[i] = float32(f)
	}
	*v = out
	return nil
}

func optionsFromFlags() options {
	return options{
		room:             mgl32.Vec3(roomFlag),
		source:           mgl32.Vec3(sourceFlag),
		receiver:         mgl32.Vec3(receiverFlag),
		sampleRate:       *sampleRateFlag,
		steps:            *stepsFlag,
		reflectance:      *reflectanceFlag,
		input:            *inputFlag,
		transparent:      *transparentFlag,
		output:           *outputFlag,
		stochasticOutput: *stochasticOutputFlag,
		outputRate:       *outputRateFlag,
		workers:          *workersFlag,
		openCL:           *openCLFlag,
		imageOrder:       *imageOrderFlag,
		micPointing:      mgl32.Vec3(micPointingFlag),
		micShape:         *micShapeFlag,
		seed:             *seedFlag,
		snapshot:         *snapshotFlag,
		snapshotEvery:    *snapshotEveryFlag,
	}
}

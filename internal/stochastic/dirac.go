// Package stochastic turns ray-traced reflections into the late part of an
// impulse response by shaping a random dirac sequence with energy histograms.
package stochastic

import (
	"errors"
	"fmt"
	"math"
	"math/rand"

	"github.com/GeoffreyPlitt/debuggo"
)

var stochasticDebug = debuggo.Debug("acousticir:stochastic")

// ErrDomain is returned for parameters outside the domain of the model.
var ErrDomain = errors.New("stochastic: parameter out of domain")

// maxMeanOccurrence caps the density of reflections per second.
const maxMeanOccurrence = 10000

// ConstantMeanEventOccurrence returns 4πc³/V, the growth constant of the
// reflection density in a room of the given volume.
func ConstantMeanEventOccurrence(speedOfSound, roomVolume float64) float64 {
	return 4 * math.Pi * math.Pow(speedOfSound, 3) / roomVolume
}

// MeanEventOccurrence is the expected number of reflections per second at
// time t.
func MeanEventOccurrence(constant, t float64) float64 {
	return math.Min(constant*t*t, maxMeanOccurrence)
}

// T0 is the time at which the first reflection is expected.
func T0(constant float64) float64 {
	return math.Cbrt(2 * math.Ln2 / constant)
}

// intervalSize draws an exponential inter-arrival time.
func intervalSize(rng *rand.Rand, meanOccurrence float64) float64 {
	// 1 - Float64 lies in (0, 1], keeping the log finite.
	return math.Log(1/(1-rng.Float64())) / meanOccurrence
}

// DiracSequence is a train of ±1 impulses whose density grows with time the
// way reflections do in a room.
type DiracSequence struct {
	Samples    []float32
	SampleRate float64
}

// Duration returns the length of the sequence in seconds.
func (d DiracSequence) Duration() float64 {
	if d.SampleRate == 0 {
		return 0
	}
	return float64(len(d.Samples)) / d.SampleRate
}

// GenerateDiracSequence builds a sequence of ⌈maxTime·sampleRate⌉ samples.
func GenerateDiracSequence(speedOfSound, roomVolume, sampleRate, maxTime float64, rng *rand.Rand) (DiracSequence, error) {
	for _, p := range []struct {
		name string
		v    float64
	}{
		{"speed of sound", speedOfSound},
		{"room volume", roomVolume},
		{"sample rate", sampleRate},
		{"max time", maxTime},
	} {
		if !(p.v > 0) || math.IsInf(p.v, 0) {
			return DiracSequence{}, fmt.Errorf("%w: %s = %v", ErrDomain, p.name, p.v)
		}
	}
	if rng == nil {
		return DiracSequence{}, fmt.Errorf("%w: nil random source", ErrDomain)
	}

	constant := ConstantMeanEventOccurrence(speedOfSound, roomVolume)
	samples := make([]float32, int(math.Ceil(maxTime*sampleRate)))
	count := 0
	for t := T0(constant); t < maxTime; t += intervalSize(rng, MeanEventOccurrence(constant, t)) {
		idx := int(t * sampleRate)
		if idx >= len(samples) {
			break
		}
		_, frac := math.Modf(2 * t * sampleRate)
		if frac < 0.5 {
			samples[idx] = -1
		} else {
			samples[idx] = 1
		}
		count++
	}
	stochasticDebug("dirac sequence: %d samples, %d impulses, t0 %.5fs", len(samples), count, T0(constant))
	return DiracSequence{Samples: samples, SampleRate: sampleRate}, nil
}

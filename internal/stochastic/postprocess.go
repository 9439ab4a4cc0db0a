package stochastic

import (
	"fmt"
	"math"

	"github.com/mjibson/go-dsp/fft"

	"acousticir/internal/bands"
)

// crossoverWidth is the half width of each band crossover as a fraction of
// the log2 distance between adjacent band edges.
const crossoverWidth = 0.3

// WeightSequence scales the impulses of seq so that the energy of each
// histogram bin is reproduced in every band. The weight of a bin is
// sqrt(E/Σs² · z) over the dirac samples it covers, zero when those samples
// hold no impulse. Samples past the end of the histogram get zero weight.
func WeightSequence(h *EnergyHistogram, seq DiracSequence, acousticImpedance float64) ([]bands.Energies, error) {
	if !(h.SampleRate > 0) || !(seq.SampleRate > 0) {
		return nil, fmt.Errorf("%w: histogram rate %v, sequence rate %v", ErrDomain, h.SampleRate, seq.SampleRate)
	}
	binOf := func(sample int) int {
		return int(float64(sample) * h.SampleRate / seq.SampleRate)
	}

	squared := make([]float64, len(h.Bins))
	for i, s := range seq.Samples {
		if b := binOf(i); b < len(squared) {
			squared[b] += float64(s) * float64(s)
		}
	}
	weights := make([]bands.Energies, len(h.Bins))
	for b, energy := range h.Bins {
		if squared[b] == 0 {
			continue
		}
		for band, e := range energy {
			weights[b][band] = math.Sqrt(e / squared[b] * acousticImpedance)
		}
	}

	out := make([]bands.Energies, len(seq.Samples))
	for i, s := range seq.Samples {
		b := binOf(i)
		if s == 0 || b >= len(weights) {
			continue
		}
		out[i] = weights[b].Scale(float64(s))
	}
	return out, nil
}

// Postprocess weights seq by the histogram and mixes the bands down into a
// single broadband pressure signal.
func Postprocess(h *EnergyHistogram, seq DiracSequence, acousticImpedance float64) ([]float32, error) {
	weighted, err := WeightSequence(h, seq, acousticImpedance)
	if err != nil {
		return nil, err
	}
	return Mixdown(weighted, seq.SampleRate), nil
}

// PostprocessDirectional collapses h for the receiver response att and
// postprocesses the result.
func PostprocessDirectional(h *DirectionalHistogram, att Attenuator, seq DiracSequence, acousticImpedance float64) ([]float32, error) {
	return Postprocess(h.Sum(att), seq, acousticImpedance)
}

// Mixdown band-pass filters each band of signal with amplitude
// complementary crossovers and sums the results.
func Mixdown(signal []bands.Energies, sampleRate float64) []float32 {
	out := make([]float32, len(signal))
	if len(signal) == 0 {
		return out
	}
	n := nextPowerOfTwo(2 * len(signal))
	gains := bandGains(n, sampleRate)
	sum := make([]float64, len(signal))
	band := make([]float64, n)
	for b := 0; b < bands.Count; b++ {
		silent := true
		for i, v := range signal {
			band[i] = v[b]
			silent = silent && v[b] == 0
		}
		if silent {
			continue
		}
		spectrum := fft.FFTReal(band)
		for k := range spectrum {
			spectrum[k] *= complex(gains[b][k], 0)
		}
		filtered := fft.IFFT(spectrum)
		for i := range sum {
			sum[i] += real(filtered[i])
		}
	}
	for i, v := range sum {
		out[i] = float32(v)
	}
	return out
}

// bandGains returns the gain of every band at every bin of an n-point FFT.
// At any frequency the gains sum to one.
func bandGains(n int, sampleRate float64) [bands.Count][]float64 {
	edges := bands.Edges()
	halfWidth := crossoverWidth * math.Log2(edges[1]/edges[0])
	var gains [bands.Count][]float64
	for b := range gains {
		gains[b] = make([]float64, n)
	}
	for k := 0; k < n; k++ {
		m := k
		if m > n/2 {
			m = n - k
		}
		f := float64(m) * sampleRate / float64(n)
		// lows[i] is the share of frequency f below interior edge i+1.
		var lows [bands.Count - 1]float64
		for i := range lows {
			lows[i] = lowShare(f, edges[i+1], halfWidth)
		}
		for b := range gains {
			g := 1.0
			if b > 0 {
				g *= 1 - lows[b-1]
			}
			if b < bands.Count-1 {
				g *= lows[b]
			}
			gains[b][k] = g
		}
	}
	return gains
}

// lowShare is a raised-cosine step in log frequency centred on edge.
func lowShare(f, edge, halfWidth float64) float64 {
	if f <= 0 {
		return 1
	}
	x := math.Log2(f/edge) / halfWidth
	switch {
	case x <= -1:
		return 1
	case x >= 1:
		return 0
	}
	return 0.5 * (1 + math.Cos(math.Pi*(x+1)/2))
}

func nextPowerOfTwo(n int) int {
	p := 1
	for p < n {
		p <<= 1
	}
	return p
}

// Energy returns the summed squared amplitude of a signal.
func Energy(signal []float32) float64 {
	var e float64
	for _, v := range signal {
		e += float64(v) * float64(v)
	}
	return e
}

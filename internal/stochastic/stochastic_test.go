package stochastic

import (
	"context"
	"math"
	"math/rand"
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"acousticir/internal/bands"
)

func TestGenerateDiracSequenceDomain(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	tests := []struct {
		name                string
		c, v, rate, maxTime float64
	}{
		{"zero volume", 340, 0, 1000, 1},
		{"negative volume", 340, -3, 1000, 1},
		{"zero sample rate", 340, 8, 0, 1},
		{"nan time", 340, 8, 1000, math.NaN()},
		{"infinite speed", math.Inf(1), 8, 1000, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := GenerateDiracSequence(tt.c, tt.v, tt.rate, tt.maxTime, rng)
			assert.ErrorIs(t, err, ErrDomain)
		})
	}
	_, err := GenerateDiracSequence(340, 8, 1000, 1, nil)
	assert.ErrorIs(t, err, ErrDomain)
}

func TestGenerateDiracSequence(t *testing.T) {
	const rate, maxTime = 8000.0, 0.5
	seq, err := GenerateDiracSequence(340, 1000, rate, maxTime, rand.New(rand.NewSource(42)))
	require.NoError(t, err)
	require.Len(t, seq.Samples, int(math.Ceil(maxTime*rate)))
	assert.InDelta(t, maxTime, seq.Duration(), 1e-9)

	start := int(T0(ConstantMeanEventOccurrence(340, 1000)) * rate)
	var early, late int
	for i, s := range seq.Samples {
		require.Contains(t, []float32{-1, 0, 1}, s)
		if s == 0 {
			continue
		}
		require.GreaterOrEqual(t, i, start)
		if i < len(seq.Samples)/10 {
			early++
		} else if i >= len(seq.Samples)*9/10 {
			late++
		}
	}
	assert.Greater(t, late, early)

	again, err := GenerateDiracSequence(340, 1000, rate, maxTime, rand.New(rand.NewSource(42)))
	require.NoError(t, err)
	assert.Equal(t, seq.Samples, again.Samples)
}

func TestMeanEventOccurrenceIsCapped(t *testing.T) {
	c := ConstantMeanEventOccurrence(340, 8)
	assert.InDelta(t, 4*math.Pi*340*340*340/8, c, 1e-6)
	assert.Equal(t, float64(maxMeanOccurrence), MeanEventOccurrence(c, 10))
	assert.InDelta(t, c*0.0001, MeanEventOccurrence(c, 0.01), 1e-9)
}

func randomHistogram(rng *rand.Rand, rate float64, n int) *EnergyHistogram {
	h := &EnergyHistogram{SampleRate: rate, Bins: make([]bands.Energies, n)}
	for i := range h.Bins {
		for b := range h.Bins[i] {
			h.Bins[i][b] = rng.Float64()
		}
	}
	return h
}

func clone(h *EnergyHistogram) *EnergyHistogram {
	return &EnergyHistogram{SampleRate: h.SampleRate, Bins: append([]bands.Energies(nil), h.Bins...)}
}

func assertBinsNear(t *testing.T, want, got []bands.Energies) {
	t.Helper()
	require.Len(t, got, len(want))
	for i := range want {
		for b := range want[i] {
			assert.InDelta(t, want[i][b], got[i][b], 1e-12)
		}
	}
}

func TestMergeCommutativeAndAssociative(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	a := randomHistogram(rng, 1000, 5)
	b := randomHistogram(rng, 1000, 9)
	c := randomHistogram(rng, 1000, 2)

	ab := clone(a)
	ab.Merge(b)
	ba := clone(b)
	ba.Merge(a)
	assertBinsNear(t, ab.Bins, ba.Bins)

	left := clone(ab)
	left.Merge(c)
	bc := clone(b)
	bc.Merge(c)
	right := clone(a)
	right.Merge(bc)
	assertBinsNear(t, left.Bins, right.Bins)
}

func TestMergeTakesOtherSampleRate(t *testing.T) {
	a := &EnergyHistogram{SampleRate: 100, Bins: []bands.Energies{bands.Uniform(1)}}
	b := &EnergyHistogram{SampleRate: 200, Bins: []bands.Energies{bands.Uniform(2), bands.Uniform(3)}}
	a.Merge(b)
	assert.Equal(t, 200.0, a.SampleRate)
	assert.Equal(t, []bands.Energies{bands.Uniform(3), bands.Uniform(3)}, a.Bins)
}

func TestHistogramAdd(t *testing.T) {
	h, err := NewEnergyHistogram(100)
	require.NoError(t, err)
	require.NoError(t, h.Add(0.034, bands.Uniform(1)))
	require.NoError(t, h.AddReflection(Reflection{Time: 0.031, Energy: bands.Uniform(2)}))
	require.Len(t, h.Bins, 4)
	assert.Equal(t, bands.Uniform(3), h.Bins[3])
	assert.InDelta(t, 0.04, h.MaxTime(), 1e-12)
	assert.InDelta(t, 3*bands.Count, h.Total().Sum(), 1e-12)

	assert.ErrorIs(t, h.Add(-1, bands.Uniform(1)), ErrDomain)
	_, err = NewEnergyHistogram(0)
	assert.ErrorIs(t, err, ErrDomain)
}

func TestDirectionalCells(t *testing.T) {
	h, err := NewDirectionalHistogram(8, 4, 100)
	require.NoError(t, err)
	for az := 0; az < h.Azimuth; az++ {
		for el := 0; el < h.Elevation; el++ {
			p := h.Pointing(az, el)
			assert.InDelta(t, 1, p.Len(), 1e-6)
			gotAz, gotEl := h.Cell(p)
			assert.Equal(t, az, gotAz)
			assert.Equal(t, el, gotEl)
		}
	}
	az, el := h.Cell(mgl32.Vec3{0, 1, 0})
	assert.Equal(t, h.Elevation-1, el)
	assert.True(t, az >= 0 && az < h.Azimuth)

	_, err = NewDirectionalHistogram(0, 4, 100)
	assert.ErrorIs(t, err, ErrDomain)
}

func TestDirectionalSum(t *testing.T) {
	h, err := NewDirectionalHistogram(8, 4, 100)
	require.NoError(t, err)
	front := h.Pointing(4, 2)
	back := h.Pointing(0, 1)
	require.NoError(t, h.AddReflection(Reflection{Time: 0.015, Direction: front, Energy: bands.Uniform(2)}))
	require.NoError(t, h.AddReflection(Reflection{Time: 0.055, Direction: back, Energy: bands.Uniform(1)}))
	assert.InDelta(t, 0.06, h.MaxTime(), 1e-12)

	plain := h.Sum(nil)
	require.Len(t, plain.Bins, 6)
	assert.Equal(t, bands.Uniform(2), plain.Bins[1])
	assert.Equal(t, bands.Uniform(1), plain.Bins[5])
	assert.Equal(t, plain.Bins, h.Sum(Omnidirectional{}).Bins)

	mic := Microphone{Pointing: front, Shape: 0.5}
	weighted := h.Sum(mic)
	gainFront := float64(mic.Attenuation(front)[0])
	gainBack := float64(mic.Attenuation(back)[0])
	assert.InDelta(t, 1, gainFront, 1e-6)
	assert.InDelta(t, 2*gainFront*gainFront, weighted.Bins[1][0], 1e-9)
	assert.InDelta(t, gainBack*gainBack, weighted.Bins[5][0], 1e-9)
	assert.Less(t, weighted.Bins[5][0], plain.Bins[5][0])
}

func TestMicrophonePattern(t *testing.T) {
	fig8 := Microphone{Pointing: mgl32.Vec3{1, 0, 0}, Shape: 1}
	assert.InDelta(t, 1, fig8.Attenuation(mgl32.Vec3{2, 0, 0})[3], 1e-6)
	assert.InDelta(t, 0, fig8.Attenuation(mgl32.Vec3{0, 1, 0})[3], 1e-6)
	assert.InDelta(t, -1, fig8.Attenuation(mgl32.Vec3{-1, 0, 0})[3], 1e-6)
	omni := Microphone{Pointing: mgl32.Vec3{1, 0, 0}}
	assert.Equal(t, bands.Uniform(1), omni.Attenuation(mgl32.Vec3{0, 0, -1}))
}

func TestWeightSequence(t *testing.T) {
	seq := DiracSequence{SampleRate: 10, Samples: []float32{1, 0, -1, 0, 0, 0, 1, 0, 0, 0, 1, 1}}
	h := &EnergyHistogram{SampleRate: 2, Bins: []bands.Energies{bands.Uniform(8), bands.Uniform(5)}}
	w, err := WeightSequence(h, seq, 2)
	require.NoError(t, err)
	require.Len(t, w, len(seq.Samples))

	// Bin 0 covers samples 0..4 with two impulses, bin 1 covers 5..9 with one.
	first := math.Sqrt(8.0 / 2 * 2)
	second := math.Sqrt(5.0 / 1 * 2)
	assert.InDelta(t, first, w[0][0], 1e-12)
	assert.InDelta(t, -first, w[2][7], 1e-12)
	assert.InDelta(t, second, w[6][4], 1e-12)
	assert.Equal(t, bands.Energies{}, w[1])
	assert.Equal(t, bands.Energies{}, w[10])
	assert.Equal(t, bands.Energies{}, w[11])
}

func TestEmptyStreamGivesSilence(t *testing.T) {
	seq, err := GenerateDiracSequence(340, 8, 8000, 0.1, rand.New(rand.NewSource(5)))
	require.NoError(t, err)
	h, err := Accumulate(1000, nil)
	require.NoError(t, err)
	assert.Empty(t, h.Bins)

	out, err := Postprocess(h, seq, 400)
	require.NoError(t, err)
	require.Len(t, out, len(seq.Samples))
	assert.Zero(t, Energy(out))
}

func TestFlatMixdownMatchesWeightedSequence(t *testing.T) {
	seq, err := GenerateDiracSequence(340, 8, 8000, 0.2, rand.New(rand.NewSource(9)))
	require.NoError(t, err)
	h := &EnergyHistogram{SampleRate: 100}
	for i := 0; i < 20; i++ {
		require.NoError(t, h.Add(float64(i)/100, bands.Uniform(math.Exp(-float64(i)/5))))
	}
	weighted, err := WeightSequence(h, seq, 400)
	require.NoError(t, err)
	out, err := Postprocess(h, seq, 400)
	require.NoError(t, err)
	require.Len(t, out, len(seq.Samples))
	for i := range out {
		assert.InDelta(t, weighted[i][0], out[i], 1e-4, "sample %d", i)
	}
	assert.Greater(t, Energy(out), 0.0)
}

func TestBandGainsSumToOne(t *testing.T) {
	gains := bandGains(256, 44100)
	for k := 0; k < 256; k++ {
		var sum float64
		for b := range gains {
			assert.GreaterOrEqual(t, gains[b][k], 0.0)
			sum += gains[b][k]
		}
		assert.InDelta(t, 1, sum, 1e-12, "bin %d", k)
	}
	assert.Equal(t, 1.0, gains[0][0])
}

func TestAccumulateParallelMatchesSequential(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	var all []Reflection
	batches := make([][]Reflection, 6)
	for i := range batches {
		for j := 0; j < 50; j++ {
			r := Reflection{
				Time:      rng.Float64() * 0.3,
				Direction: mgl32.Vec3{rng.Float32() - 0.5, rng.Float32() - 0.5, rng.Float32() - 0.5},
				Energy:    bands.Uniform(rng.Float64()),
			}
			batches[i] = append(batches[i], r)
			all = append(all, r)
		}
	}
	want, err := Accumulate(1000, all)
	require.NoError(t, err)
	got, err := AccumulateParallel(context.Background(), 1000, batches)
	require.NoError(t, err)
	assertBinsNear(t, want.Bins, got.Bins)

	wantDir, err := AccumulateDirectional(6, 3, 1000, all)
	require.NoError(t, err)
	gotDir, err := AccumulateDirectionalParallel(context.Background(), 6, 3, 1000, batches)
	require.NoError(t, err)
	assertBinsNear(t, wantDir.Sum(nil).Bins, gotDir.Sum(nil).Bins)

	empty, err := AccumulateParallel(context.Background(), 1000, nil)
	require.NoError(t, err)
	assert.Empty(t, empty.Bins)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = AccumulateParallel(ctx, 1000, batches)
	assert.ErrorIs(t, err, context.Canceled)

	batches[2] = append(batches[2], Reflection{Time: -1})
	_, err = AccumulateParallel(context.Background(), 1000, batches)
	assert.ErrorIs(t, err, ErrDomain)
}

func TestDirectionalMerge(t *testing.T) {
	a, err := NewDirectionalHistogram(4, 2, 100)
	require.NoError(t, err)
	b, err := NewDirectionalHistogram(4, 2, 200)
	require.NoError(t, err)
	dir := a.Pointing(1, 1)
	require.NoError(t, a.AddReflection(Reflection{Time: 0.005, Direction: dir, Energy: bands.Uniform(1)}))
	require.NoError(t, b.AddReflection(Reflection{Time: 0.012, Direction: dir, Energy: bands.Uniform(2)}))

	a.Merge(b)
	assert.Equal(t, 200.0, a.SampleRate)
	assert.Equal(t, []bands.Energies{bands.Uniform(1), {}, bands.Uniform(2)}, a.Segment(1, 1))

	other, err := NewDirectionalHistogram(4, 3, 100)
	require.NoError(t, err)
	assert.Panics(t, func() { a.Merge(other) })
}

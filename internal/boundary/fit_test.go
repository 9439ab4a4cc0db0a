package boundary

import (
	"math"
	"math/cmplx"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"acousticir/internal/bands"
)

func delayed(amplitudes, omegas []float64, delay float64) []complex128 {
	out := make([]complex128, len(omegas))
	for i, w := range omegas {
		out[i] = complex(amplitudes[i], 0) * cmplx.Exp(complex(0, -w*delay))
	}
	return out
}

func TestEquationErrorUnitDelay(t *testing.T) {
	omegas := []float64{0.2, 0.4, 0.6}
	response := delayed([]float64{1, 1, 1}, omegas, 1)
	b, a, err := EquationError(omegas, response, []float64{1, 1, 1}, 2)
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{0, 1, 0}, b, 1e-8)
	assert.InDeltaSlice(t, []float64{1, 0, 0}, a, 1e-8)
}

func TestEquationErrorDimension(t *testing.T) {
	omegas := []float64{0.2, 0.4}
	_, _, err := EquationError(omegas, delayed([]float64{1, 1}, omegas, 0), []float64{1, 1}, 2)
	assert.ErrorIs(t, err, ErrDimension)

	_, _, err = EquationError(omegas, delayed([]float64{1, 1}, omegas, 0), []float64{1}, 1)
	assert.ErrorIs(t, err, ErrMismatch)
}

func TestEquationErrorMatchesKnownFilter(t *testing.T) {
	wantB := []float64{0.5, -0.2, 0.1}
	wantA := []float64{1, -0.3, 0.2}
	omegas := make([]float64, 32)
	weights := make([]float64, len(omegas))
	response := make([]complex128, len(omegas))
	for i := range omegas {
		omegas[i] = math.Pi * float64(i) / float64(len(omegas)-1)
		weights[i] = 1
		response[i] = FrequencyResponse(wantB, wantA, omegas[i])
	}
	b, a, err := EquationError(omegas, response, weights, 2)
	require.NoError(t, err)
	assert.InDeltaSlice(t, wantB, b, 1e-8)
	assert.InDeltaSlice(t, wantA, a, 1e-8)
}

func TestArbitraryMagnitudeConstantOne(t *testing.T) {
	centres := []float64{0.1, 0.3, 0.5, 0.9}
	magnitudes := []float64{1, 1, 1, 1}
	for _, order := range []int{1, 2, 4} {
		b, a, err := ArbitraryMagnitude(centres, magnitudes, order, DefaultIterations)
		require.NoError(t, err)
		wantB := make([]float64, order+1)
		wantB[0] = 1
		assert.InDeltaSlice(t, wantB, b, 1e-6)
		assert.InDeltaSlice(t, wantB, a, 1e-6)
	}
}

func TestArbitraryMagnitudeTracksTarget(t *testing.T) {
	centres := []float64{0.05, 0.2, 0.5, 0.8}
	magnitudes := []float64{0.9, 0.8, 0.6, 0.5}
	b, a, err := ArbitraryMagnitude(centres, magnitudes, 4, DefaultIterations)
	require.NoError(t, err)
	for i, c := range centres {
		got := cmplx.Abs(FrequencyResponse(b, a, c*math.Pi))
		assert.InDelta(t, magnitudes[i], got, 0.1, "centre %v", c)
	}
}

func TestStable(t *testing.T) {
	tests := []struct {
		name string
		a    []float64
		want bool
	}{
		{"constant", []float64{1}, true},
		{"trailing zeros", []float64{1, 0, 0}, true},
		{"single pole inside", []float64{1, -0.5}, true},
		{"single pole outside", []float64{1, -1.5}, false},
		{"just outside", []float64{1, 0, 1.0001}, false},
		{"resonator", []float64{1, -1.8 * math.Cos(0.3), 0.81}, true},
		{"zero leading", []float64{0, 1}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Stable(tt.a))
		})
	}
}

func TestAdmittanceOfPerfectReflector(t *testing.T) {
	coeffs, err := ToCoefficients([]Surface{UniformSurface(1), UniformSurface(0.999)}, 8000, DefaultOrder)
	require.NoError(t, err)
	require.Len(t, coeffs, 2)

	assert.Equal(t, DefaultOrder, coeffs[0].Order())
	assert.InDeltaSlice(t, []float64{0, 0, 0}, coeffs[0].B, 1e-6)
	assert.InDeltaSlice(t, []float64{1, 0, 0}, coeffs[0].A, 1e-6)

	assert.InDelta(t, 0.001/1.999, coeffs[1].B[0], 1e-6)
	assert.InDelta(t, 1, coeffs[1].A[0], 1e-12)
}

func TestAdmittanceRejectsUnstable(t *testing.T) {
	_, err := AdmittanceCoefficients(Coefficients{B: []float64{-1, 0}, A: []float64{1, 0}})
	assert.ErrorIs(t, err, ErrUnstable)

	_, err = AdmittanceCoefficients(Coefficients{B: []float64{0.5}, A: []float64{1, 0}})
	assert.ErrorIs(t, err, ErrMismatch)
}

func TestBandCentresInsideRange(t *testing.T) {
	e := bands.Edges()
	assert.InDelta(t, bands.Lowest, e[0], 1e-9)
	assert.InDelta(t, bands.Highest, e[bands.Count], 1e-6)
	for i, c := range bands.Centres() {
		assert.Greater(t, c, e[i])
		assert.Less(t, c, e[i+1])
	}
}

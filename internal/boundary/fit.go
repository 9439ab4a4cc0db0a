// Package boundary designs the recursive filters that model frequency
// dependent absorption at the walls of the waveguide mesh.
package boundary

import (
	"errors"
	"fmt"
	"math"
	"math/cmplx"

	"github.com/GeoffreyPlitt/debuggo"
	"github.com/mjibson/go-dsp/fft"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

var fitDebug = debuggo.Debug("acousticir:boundary")

var (
	// ErrDimension is returned when a fit has fewer equations than unknowns.
	ErrDimension = errors.New("boundary: not enough frequency samples for filter order")
	// ErrUnstable is returned when a fitted denominator has a pole on or
	// outside the unit circle.
	ErrUnstable = errors.New("boundary: filter is unstable")
	// ErrMismatch is returned for inconsistent argument lengths.
	ErrMismatch = errors.New("boundary: mismatched input lengths")
)

// rcond is the relative singular value cutoff of the least-squares solve.
const rcond = 1e-10

// gridSize is the FFT length used to build minimum-phase targets.
const gridSize = 512

// minMagnitude keeps the log spectrum finite for bands with zero reflectance.
const minMagnitude = 1e-5

// FrequencyResponse evaluates B(z)/A(z) at z = e^{jω}.
func FrequencyResponse(b, a []float64, omega float64) complex128 {
	return polyval(b, omega) / polyval(a, omega)
}

// polyval evaluates Σ c[i]·e^{-jωi}.
func polyval(c []float64, omega float64) complex128 {
	var sum complex128
	for i, v := range c {
		sum += complex(v, 0) * cmplx.Exp(complex(0, -omega*float64(i)))
	}
	return sum
}

// EquationError fits B(z)/A(z) of the given order to response sampled at the
// normalised angular frequencies omegas by minimising the weighted equation
// error |B − H·A|². The returned a has a[0] = 1. When the system is rank
// deficient the minimum-norm solution is returned.
func EquationError(omegas []float64, response []complex128, weights []float64, order int) (b, a []float64, err error) {
	if len(response) != len(omegas) || len(weights) != len(omegas) {
		return nil, nil, fmt.Errorf("%w: %d frequencies, %d responses, %d weights", ErrMismatch, len(omegas), len(response), len(weights))
	}
	if order < 0 {
		return nil, nil, fmt.Errorf("%w: negative order %d", ErrDimension, order)
	}
	unknowns := 2*order + 1
	if rows := 2 * len(omegas); rows < unknowns {
		return nil, nil, fmt.Errorf("%w: %d equations for %d unknowns", ErrDimension, rows, unknowns)
	}

	rows := 2 * len(omegas)
	lhs := mat.NewDense(rows, unknowns, nil)
	rhs := mat.NewDense(rows, 1, nil)
	for k, omega := range omegas {
		w := weights[k]
		h := response[k]
		re, im := 2*k, 2*k+1
		for i := 0; i <= order; i++ {
			z := cmplx.Exp(complex(0, -omega*float64(i)))
			lhs.Set(re, i, w*real(z))
			lhs.Set(im, i, w*imag(z))
			if i == 0 {
				continue
			}
			hz := h * z
			lhs.Set(re, order+i, -w*real(hz))
			lhs.Set(im, order+i, -w*imag(hz))
		}
		rhs.Set(re, 0, w*real(h))
		rhs.Set(im, 0, w*imag(h))
	}

	var svd mat.SVD
	if ok := svd.Factorize(lhs, mat.SVDThin); !ok {
		return nil, nil, fmt.Errorf("%w: singular value decomposition failed", ErrDimension)
	}
	var x mat.Dense
	svd.SolveTo(&x, rhs, svd.Rank(rcond))

	b = make([]float64, order+1)
	a = make([]float64, order+1)
	a[0] = 1
	for i := 0; i <= order; i++ {
		b[i] = x.At(i, 0)
	}
	for i := 1; i <= order; i++ {
		a[i] = x.At(order+i, 0)
	}
	return b, a, nil
}

// ArbitraryMagnitude designs a filter of the given order whose magnitude
// follows the band magnitudes. centres are band centres as a fraction of the
// Nyquist frequency, in ascending order. The target is made minimum phase and
// refined by a fixed number of reweighted equation-error solves.
func ArbitraryMagnitude(centres, magnitudes []float64, order, iterations int) (b, a []float64, err error) {
	if len(centres) != len(magnitudes) || len(centres) == 0 {
		return nil, nil, fmt.Errorf("%w: %d centres, %d magnitudes", ErrMismatch, len(centres), len(magnitudes))
	}
	target := minimumPhase(interpolateMagnitudes(centres, magnitudes))

	half := gridSize/2 + 1
	omegas := make([]float64, half)
	floats.Span(omegas, 0, math.Pi)
	weights := make([]float64, half)
	for i := range weights {
		weights[i] = 1
	}

	for it := 0; it <= iterations; it++ {
		b, a, err = EquationError(omegas, target, weights, order)
		if err != nil {
			return nil, nil, err
		}
		for i, omega := range omegas {
			weights[i] = 1 / math.Max(cmplx.Abs(polyval(a, omega)), minMagnitude)
		}
	}
	fitDebug("order %d fit after %d iterations: b=%v a=%v", order, iterations, b, a)
	return b, a, nil
}

// interpolateMagnitudes samples the band magnitudes linearly on the
// non-negative half of the FFT grid, holding the end values flat.
func interpolateMagnitudes(centres, magnitudes []float64) []float64 {
	half := gridSize/2 + 1
	out := make([]float64, half)
	for k := range out {
		f := float64(k) / float64(gridSize/2)
		out[k] = math.Max(interpolate(centres, magnitudes, f), minMagnitude)
	}
	return out
}

func interpolate(xs, ys []float64, x float64) float64 {
	if x <= xs[0] {
		return ys[0]
	}
	last := len(xs) - 1
	if x >= xs[last] {
		return ys[last]
	}
	for i := 1; i <= last; i++ {
		if x <= xs[i] {
			t := (x - xs[i-1]) / (xs[i] - xs[i-1])
			return ys[i-1] + t*(ys[i]-ys[i-1])
		}
	}
	return ys[last]
}

// minimumPhase builds the minimum-phase spectrum with the given magnitude on
// the non-negative frequencies using the folded real cepstrum.
func minimumPhase(magnitude []float64) []complex128 {
	logSpectrum := make([]float64, gridSize)
	for k := 0; k < gridSize; k++ {
		m := k
		if m > gridSize/2 {
			m = gridSize - k
		}
		logSpectrum[k] = math.Log(magnitude[m])
	}
	cepstrum := fft.IFFTReal(logSpectrum)

	folded := make([]complex128, gridSize)
	folded[0] = complex(real(cepstrum[0]), 0)
	for n := 1; n < gridSize/2; n++ {
		folded[n] = complex(2*real(cepstrum[n]), 0)
	}
	folded[gridSize/2] = complex(real(cepstrum[gridSize/2]), 0)

	spectrum := fft.FFT(folded)
	out := make([]complex128, len(magnitude))
	for k := range out {
		out[k] = cmplx.Exp(spectrum[k])
	}
	return out
}

// Stable reports whether every root of the denominator a lies strictly inside
// the unit circle.
func Stable(a []float64) bool {
	if len(a) == 0 || a[0] == 0 {
		return false
	}
	n := len(a) - 1
	for n > 0 && a[n] == 0 {
		n--
	}
	if n == 0 {
		return true
	}
	companion := mat.NewDense(n, n, nil)
	for j := 0; j < n; j++ {
		companion.Set(0, j, -a[j+1]/a[0])
	}
	for i := 1; i < n; i++ {
		companion.Set(i, i-1, 1)
	}
	var eig mat.Eigen
	if ok := eig.Factorize(companion, mat.EigenNone); !ok {
		return false
	}
	for _, root := range eig.Values(nil) {
		if cmplx.Abs(root) >= 1 {
			return false
		}
	}
	return true
}

package boundary

import (
	"fmt"

	"acousticir/internal/bands"
)

// Fit defaults for wall filters.
const (
	DefaultOrder      = 2
	DefaultIterations = 10
)

// Surface describes a wall material across the shared frequency bands.
type Surface struct {
	// Specular is the pressure reflectance magnitude of the wall per band.
	Specular bands.Energies
	// Diffuse is the fraction of reflected energy that is scattered.
	Diffuse bands.Energies
}

// UniformSurface returns a surface with the same reflectance in every band
// and no scattering.
func UniformSurface(reflectance float64) Surface {
	return Surface{Specular: bands.Uniform(reflectance)}
}

// Coefficients are a canonical recursive filter, A[0] == 1.
type Coefficients struct {
	B []float64
	A []float64
}

// Order returns the filter order.
func (c Coefficients) Order() int { return len(c.A) - 1 }

// ReflectanceCoefficients fits a filter to the specular reflectance of s.
// Bands centred above the Nyquist frequency are ignored.
func ReflectanceCoefficients(s Surface, sampleRate float64, order int) (Coefficients, error) {
	if !(sampleRate > 0) {
		return Coefficients{}, fmt.Errorf("%w: sample rate %v", ErrDimension, sampleRate)
	}
	nyquist := sampleRate / 2
	var centres, magnitudes []float64
	for i, c := range bands.Centres() {
		if c >= nyquist {
			break
		}
		centres = append(centres, c/nyquist)
		magnitudes = append(magnitudes, s.Specular[i])
	}
	if len(centres) == 0 {
		centres = []float64{0}
		magnitudes = []float64{s.Specular[0]}
	}
	b, a, err := ArbitraryMagnitude(centres, magnitudes, order, DefaultIterations)
	if err != nil {
		return Coefficients{}, err
	}
	if !Stable(a) {
		return Coefficients{}, fmt.Errorf("%w: reflectance fit a=%v", ErrUnstable, a)
	}
	return Coefficients{B: b, A: a}, nil
}

// AdmittanceCoefficients converts a reflectance filter R = B/A into the wall
// admittance Y = (A − B)/(A + B), renormalised so that the new A[0] == 1.
func AdmittanceCoefficients(r Coefficients) (Coefficients, error) {
	if len(r.A) != len(r.B) || len(r.A) == 0 {
		return Coefficients{}, fmt.Errorf("%w: b has %d taps, a has %d", ErrMismatch, len(r.B), len(r.A))
	}
	num := make([]float64, len(r.A))
	den := make([]float64, len(r.A))
	for i := range r.A {
		num[i] = r.A[i] - r.B[i]
		den[i] = r.A[i] + r.B[i]
	}
	if den[0] == 0 {
		return Coefficients{}, fmt.Errorf("%w: admittance has a zero leading denominator", ErrUnstable)
	}
	norm := den[0]
	for i := range den {
		num[i] /= norm
		den[i] /= norm
	}
	if !Stable(den) {
		return Coefficients{}, fmt.Errorf("%w: admittance a=%v", ErrUnstable, den)
	}
	return Coefficients{B: num, A: den}, nil
}

// ToCoefficients fits admittance filters for a list of materials. The index
// of each surface is the material index used by the mesh.
func ToCoefficients(surfaces []Surface, sampleRate float64, order int) ([]Coefficients, error) {
	out := make([]Coefficients, len(surfaces))
	for i, s := range surfaces {
		r, err := ReflectanceCoefficients(s, sampleRate, order)
		if err != nil {
			return nil, fmt.Errorf("material %d: %w", i, err)
		}
		y, err := AdmittanceCoefficients(r)
		if err != nil {
			return nil, fmt.Errorf("material %d: %w", i, err)
		}
		out[i] = y
	}
	return out, nil
}

// Package bands defines the octave-like frequency bands shared by the boundary
// fitter and the histogram engine.
package bands

import "math"

// Count is the number of frequency bands carried per surface and per
// histogram bin.
const Count = 8

// Range of the band set in Hz.
const (
	Lowest  = 20.0
	Highest = 20000.0
)

// Energies holds one value per band.
type Energies [Count]float64

// Edges returns the Count+1 log-spaced band edges.
func Edges() [Count + 1]float64 {
	var e [Count + 1]float64
	ratio := Highest / Lowest
	for i := range e {
		e[i] = Lowest * math.Pow(ratio, float64(i)/Count)
	}
	return e
}

// Centres returns the geometric centre of every band.
func Centres() [Count]float64 {
	e := Edges()
	var c [Count]float64
	for i := range c {
		c[i] = math.Sqrt(e[i] * e[i+1])
	}
	return c
}

// Uniform returns a value repeated across all bands.
func Uniform(v float64) Energies {
	var e Energies
	for i := range e {
		e[i] = v
	}
	return e
}

// Add returns the band-wise sum.
func (e Energies) Add(o Energies) Energies {
	for i := range e {
		e[i] += o[i]
	}
	return e
}

// Mul returns the band-wise product.
func (e Energies) Mul(o Energies) Energies {
	for i := range e {
		e[i] *= o[i]
	}
	return e
}

// Scale multiplies every band by s.
func (e Energies) Scale(s float64) Energies {
	for i := range e {
		e[i] *= s
	}
	return e
}

// Sum returns the total over all bands.
func (e Energies) Sum() float64 {
	var s float64
	for _, v := range e {
		s += v
	}
	return s
}

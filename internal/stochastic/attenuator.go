package stochastic

import (
	"github.com/go-gl/mathgl/mgl32"

	"acousticir/internal/bands"
)

// Attenuator is a receiver's directional response: the band-wise pressure
// gain for sound arriving from direction.
type Attenuator interface {
	Attenuation(direction mgl32.Vec3) bands.Energies
}

// Omnidirectional passes sound from every direction unchanged.
type Omnidirectional struct{}

// Attenuation returns unit gain.
func (Omnidirectional) Attenuation(mgl32.Vec3) bands.Energies { return bands.Uniform(1) }

// Microphone has a first-order polar pattern. Shape 0 is omnidirectional,
// 0.5 cardioid and 1 figure-of-eight.
type Microphone struct {
	Pointing mgl32.Vec3
	Shape    float64
}

// Attenuation returns (1 − shape) + shape·cosθ for the angle θ between the
// microphone axis and direction.
func (m Microphone) Attenuation(direction mgl32.Vec3) bands.Energies {
	cos := float64(m.Pointing.Normalize().Dot(direction.Normalize()))
	return bands.Uniform((1 - m.Shape) + m.Shape*cos)
}

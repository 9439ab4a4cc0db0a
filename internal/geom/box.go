package geom

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

// Box is an axis-aligned bounding box.
type Box struct {
	Min mgl32.Vec3
	Max mgl32.Vec3
}

// NewBoxFromPoints returns the smallest box enclosing every point.
func NewBoxFromPoints(points ...mgl32.Vec3) Box {
	if len(points) == 0 {
		return Box{}
	}
	b := Box{Min: points[0], Max: points[0]}
	for _, p := range points[1:] {
		for i := 0; i < 3; i++ {
			b.Min[i] = float32(math.Min(float64(b.Min[i]), float64(p[i])))
			b.Max[i] = float32(math.Max(float64(b.Max[i]), float64(p[i])))
		}
	}
	return b
}

// Valid reports whether the box is finite and has positive extent on every axis.
func (b Box) Valid() bool {
	for i := 0; i < 3; i++ {
		lo, hi := float64(b.Min[i]), float64(b.Max[i])
		if math.IsNaN(lo) || math.IsNaN(hi) || math.IsInf(lo, 0) || math.IsInf(hi, 0) {
			return false
		}
		if hi <= lo {
			return false
		}
	}
	return true
}

// Size returns the edge lengths of the box.
func (b Box) Size() mgl32.Vec3 {
	return b.Max.Sub(b.Min)
}

// Centre returns the midpoint of the box.
func (b Box) Centre() mgl32.Vec3 {
	return b.Min.Add(b.Max).Mul(0.5)
}

// Contains reports whether p lies inside or on the box.
func (b Box) Contains(p mgl32.Vec3) bool {
	for i := 0; i < 3; i++ {
		if p[i] < b.Min[i] || p[i] > b.Max[i] {
			return false
		}
	}
	return true
}

// Pad grows the box by d on every side.
func (b Box) Pad(d float32) Box {
	pad := mgl32.Vec3{d, d, d}
	return Box{Min: b.Min.Sub(pad), Max: b.Max.Add(pad)}
}

// Volume returns the enclosed volume.
func (b Box) Volume() float64 {
	s := b.Size()
	return float64(s[0]) * float64(s[1]) * float64(s[2])
}

// overlapsSegment uses the slab test to reject segments that miss the box.
func (b Box) overlapsSegment(from, to mgl32.Vec3) bool {
	tMin, tMax := 0.0, 1.0
	for i := 0; i < 3; i++ {
		o := float64(from[i])
		d := float64(to[i] - from[i])
		lo, hi := float64(b.Min[i]), float64(b.Max[i])
		if math.Abs(d) < 1e-12 {
			if o < lo || o > hi {
				return false
			}
			continue
		}
		inv := 1 / d
		t0 := (lo - o) * inv
		t1 := (hi - o) * inv
		if inv < 0 {
			t0, t1 = t1, t0
		}
		if t0 > tMin {
			tMin = t0
		}
		if t1 < tMax {
			tMax = t1
		}
		if tMax < tMin {
			return false
		}
	}
	return true
}

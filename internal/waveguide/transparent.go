package waveguide

import "acousticir/internal/mesh"

// MakeTransparent returns the signal that, added to a single mesh node each
// step, makes the pressure at that node follow input while no reflection has
// returned. It deconvolves input by the free-field response of the mesh at
// its own excitation point. The result has max(length, len(input)) samples.
//
// The free-field response costs O(length⁴) to compute, so length should
// cover the excitation rather than a whole run.
func MakeTransparent(input []float32, length int) []float32 {
	length = max(length, len(input))
	h := freeFieldResponse(length)
	u := make([]float64, length)
	for n := range u {
		var s float64
		if n < len(input) {
			s = float64(input[n])
		}
		for k := 0; k < n; k++ {
			s -= h[n-k] * u[k]
		}
		u[n] = s / h[0]
	}
	out := make([]float32, length)
	for i, v := range u {
		out[i] = float32(v)
	}
	return out
}

// freeFieldResponse simulates one octant of an unbounded mesh excited by a
// unit impulse at the origin and records the origin for steps samples. The
// planes through the origin are mirrors and the far faces sit beyond the
// reach of any disturbance that could return to the origin in time.
func freeFieldResponse(steps int) []float64 {
	out := make([]float64, steps)
	if steps == 0 {
		return out
	}
	dim := steps/2 + 2
	plane := dim * dim
	size := plane * dim
	previous := make([]float64, size)
	current := make([]float64, size)
	next := make([]float64, size)
	current[0] = 1

	at := func(buf []float64, x, y, z int) float64 {
		if x < 0 {
			x = 1
		}
		if y < 0 {
			y = 1
		}
		if z < 0 {
			z = 1
		}
		if x >= dim || y >= dim || z >= dim {
			return 0
		}
		return buf[x+y*dim+z*plane]
	}

	c2 := mesh.CourantSquared
	for step := 0; step < steps; step++ {
		out[step] = current[0]
		// Beyond L1 distance step+1 the field is still silent.
		reach := min(step+1, 3*(dim-1))
		for z := 0; z < dim && z <= reach; z++ {
			for y := 0; y < dim && y+z <= reach; y++ {
				for x := 0; x < dim && x+y+z <= reach; x++ {
					sum := at(current, x-1, y, z) + at(current, x+1, y, z) +
						at(current, x, y-1, z) + at(current, x, y+1, z) +
						at(current, x, y, z-1) + at(current, x, y, z+1)
					i := x + y*dim + z*plane
					next[i] = (2-6*c2)*current[i] + c2*sum - previous[i]
				}
			}
		}
		previous, current, next = current, next, previous
	}
	return out
}

package waveguide

import (
	"errors"
	"fmt"
	"math"

	"acousticir/internal/boundary"
	"acousticir/internal/mesh"
)

// ErrCoefficients is returned when boundary filters cannot be laid out for
// the kernels.
var ErrCoefficients = errors.New("waveguide: inconsistent boundary coefficients")

// program is the flattened, kernel-ready form of a mesh and its boundary
// filters. It is shared by the CPU and OpenCL kernels.
type program struct {
	size      int
	dim       mesh.Locator
	strides   [mesh.NumDirections]int
	flags     []uint32
	firstFace []int32
	faceMat   []int32
	order     int
	materials int
	// coeffB and coeffA hold order+1 taps per material.
	coeffB []float32
	coeffA []float32
	// state holds order filter memories per boundary face.
	state []float32
}

func newProgram(m *mesh.Mesh, coeffs []boundary.Coefficients) (*program, error) {
	order := 0
	if len(coeffs) > 0 {
		order = coeffs[0].Order()
	}
	p := &program{
		size:      m.Size(),
		dim:       m.Descriptor().Dim,
		strides:   m.Descriptor().Strides(),
		flags:     make([]uint32, m.Size()),
		firstFace: make([]int32, m.Size()),
		order:     order,
		materials: len(coeffs),
		coeffB:    make([]float32, 0, len(coeffs)*(order+1)),
		coeffA:    make([]float32, 0, len(coeffs)*(order+1)),
	}
	for i, c := range coeffs {
		if len(c.B) != order+1 || len(c.A) != order+1 {
			return nil, fmt.Errorf("%w: material %d has %d/%d taps, want %d", ErrCoefficients, i, len(c.B), len(c.A), order+1)
		}
		if c.A[0] != 1 {
			return nil, fmt.Errorf("%w: material %d is not canonical (a[0] = %v)", ErrCoefficients, i, c.A[0])
		}
		for k := 0; k <= order; k++ {
			p.coeffB = append(p.coeffB, float32(c.B[k]))
			p.coeffA = append(p.coeffA, float32(c.A[k]))
		}
	}
	for i, c := range m.CondensedNodes() {
		p.flags[i] = c.Flags
		p.firstFace[i] = c.FirstFace
	}
	faces := m.BoundaryFaces()
	p.faceMat = make([]int32, len(faces))
	for i, f := range faces {
		p.faceMat[i] = f.Material
	}
	p.state = make([]float32, len(faces)*order)
	return p, nil
}

func (p *program) resetState() { clear(p.state) }

func (p *program) inside(i int) bool { return p.flags[i]&mesh.FlagInside != 0 }

// update computes next[i] for one inside node and advances the filters of its
// boundary faces.
func (p *program) update(i int, previous, current, next []float32) Fault {
	flags := p.flags[i]
	mask := (flags >> 1) & 0x3f
	c := current[i]
	pm := previous[i]

	var present float32
	faces := 0
	for d := 0; d < int(mesh.NumDirections); d++ {
		if mask&(1<<uint(d)) != 0 {
			faces++
			continue
		}
		n := i + p.strides[d]
		if n < 0 || n >= p.size || !p.inside(n) {
			return FaultOutsideMesh
		}
		present += current[n]
	}

	var result float32
	if faces == 0 {
		result = (2-6*courantSquared)*c + courantSquared*present - pm
	} else {
		first := int(p.firstFace[i])
		if first < 0 || first+faces > len(p.faceMat) {
			return FaultSuspiciousBoundary
		}
		var sumB0, sumS1 float32
		for k := 0; k < faces; k++ {
			m := int(p.faceMat[first+k])
			if m < 0 || m >= p.materials {
				return FaultSuspiciousBoundary
			}
			sumB0 += p.coeffB[m*(p.order+1)]
			if p.order > 0 {
				sumS1 += p.state[(first+k)*p.order]
			}
		}
		result = ((2-float32(6-faces)*courantSquared)*c +
			courantSquared*present +
			(halfCourant*sumB0-1)*pm -
			halfCourant*sumS1) / (1 + halfCourant*sumB0)

		x := result - pm
		for k := 0; k < faces; k++ {
			p.filter(first+k, x)
		}
	}

	next[i] = result
	var fault Fault
	if result != result {
		fault |= FaultNaN
	} else if math.IsInf(float64(result), 0) {
		fault |= FaultInf
	}
	return fault
}

// filter feeds x through the transposed direct form II filter of one face
// and returns its output.
func (p *program) filter(face int, x float32) float32 {
	base := int(p.faceMat[face]) * (p.order + 1)
	b := p.coeffB[base : base+p.order+1]
	a := p.coeffA[base : base+p.order+1]
	if p.order == 0 {
		return b[0] * x
	}
	s := p.state[face*p.order : (face+1)*p.order]
	g := b[0]*x + s[0]
	for j := 0; j < p.order; j++ {
		var carry float32
		if j+1 < p.order {
			carry = s[j+1]
		}
		s[j] = b[j+1]*x - a[j+1]*g + carry
	}
	return g
}

package geom

import (
	"errors"
	"fmt"
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

var (
	// ErrMalformedGeometry is returned when boundary geometry cannot be evaluated.
	ErrMalformedGeometry = errors.New("geom: malformed geometry")
)

// Boundary is a closed region that can be queried for containment and for the
// surface separating an inside point from an outside point.
type Boundary interface {
	// Bounds returns the axis-aligned extent of the region.
	Bounds() Box
	// Inside reports whether p lies within the region.
	Inside(p mgl32.Vec3) bool
	// Crossing finds the nearest surface on the segment from inside to
	// outside. dist is measured from inside along the segment.
	Crossing(inside, outside mgl32.Vec3) (dist float32, material int, ok bool)
}

// Triangle indexes three vertices of a TriangleBoundary and carries the
// material index of its surface.
type Triangle struct {
	Material   int
	V0, V1, V2 int
}

// TriangleBoundary is a closed triangle soup. Containment is decided by ray
// parity, so the soup must be watertight.
type TriangleBoundary struct {
	vertices  []mgl32.Vec3
	triangles []Triangle
	bounds    Box
	tribox    []Box
}

// parityDirections are skewed away from the axes; Inside takes a majority vote
// so that a ray grazing a shared edge cannot flip the result.
var parityDirections = [3]mgl32.Vec3{
	mgl32.Vec3{0.5772157, 0.6180340, 0.5345225}.Normalize(),
	mgl32.Vec3{-0.7071068, 0.3141593, 0.2718282}.Normalize(),
	mgl32.Vec3{0.1414214, -0.5291503, -0.8366600}.Normalize(),
}

// NewTriangleBoundary validates the soup and precomputes per-triangle bounds.
func NewTriangleBoundary(vertices []mgl32.Vec3, triangles []Triangle) (*TriangleBoundary, error) {
	if len(triangles) < 4 {
		return nil, fmt.Errorf("%w: a closed surface needs at least 4 triangles, got %d", ErrMalformedGeometry, len(triangles))
	}
	for i, v := range vertices {
		for _, c := range v {
			if math.IsNaN(float64(c)) || math.IsInf(float64(c), 0) {
				return nil, fmt.Errorf("%w: vertex %d is not finite", ErrMalformedGeometry, i)
			}
		}
	}
	tb := &TriangleBoundary{
		vertices:  vertices,
		triangles: triangles,
		tribox:    make([]Box, len(triangles)),
	}
	for i, t := range triangles {
		if t.V0 < 0 || t.V1 < 0 || t.V2 < 0 || t.V0 >= len(vertices) || t.V1 >= len(vertices) || t.V2 >= len(vertices) {
			return nil, fmt.Errorf("%w: triangle %d references a missing vertex", ErrMalformedGeometry, i)
		}
		if t.Material < 0 {
			return nil, fmt.Errorf("%w: triangle %d has negative material %d", ErrMalformedGeometry, i, t.Material)
		}
		v0, v1, v2 := vertices[t.V0], vertices[t.V1], vertices[t.V2]
		if v1.Sub(v0).Cross(v2.Sub(v0)).Len() == 0 {
			return nil, fmt.Errorf("%w: triangle %d is degenerate", ErrMalformedGeometry, i)
		}
		tb.tribox[i] = NewBoxFromPoints(v0, v1, v2)
	}
	tb.bounds = NewBoxFromPoints(vertices...)
	if !tb.bounds.Valid() {
		return nil, fmt.Errorf("%w: bounds %v have no volume", ErrMalformedGeometry, tb.bounds)
	}
	return tb, nil
}

// Bounds returns the extent of the vertex set.
func (tb *TriangleBoundary) Bounds() Box { return tb.bounds }

// Triangles returns the number of triangles in the soup.
func (tb *TriangleBoundary) Triangles() int { return len(tb.triangles) }

// Inside casts a ray from p and counts surface crossings.
func (tb *TriangleBoundary) Inside(p mgl32.Vec3) bool {
	if !tb.bounds.Contains(p) {
		return false
	}
	votes := 0
	for _, dir := range parityDirections {
		crossings := 0
		for _, t := range tb.triangles {
			if _, ok := tb.hit(t, p, dir, math.MaxFloat32); ok {
				crossings++
			}
		}
		if crossings%2 == 1 {
			votes++
		}
	}
	return votes >= 2
}

// Crossing returns the closest triangle crossed by the segment.
func (tb *TriangleBoundary) Crossing(inside, outside mgl32.Vec3) (float32, int, bool) {
	dir := outside.Sub(inside)
	length := dir.Len()
	if length == 0 {
		return 0, 0, false
	}
	dir = dir.Mul(1 / length)
	const slack = 1e-4
	best := float32(math.MaxFloat32)
	material := 0
	found := false
	for i, t := range tb.triangles {
		if !tb.tribox[i].Pad(slack).overlapsSegment(inside, outside) {
			continue
		}
		d, ok := tb.hit(t, inside, dir, length*(1+slack))
		if !ok || d >= best {
			continue
		}
		best = d
		material = t.Material
		found = true
	}
	if !found {
		return 0, 0, false
	}
	return best, material, true
}

// hit is the Möller–Trumbore ray/triangle test.
func (tb *TriangleBoundary) hit(t Triangle, origin, dir mgl32.Vec3, tMax float32) (float32, bool) {
	const epsilon = 1e-8
	v0 := tb.vertices[t.V0]
	edge1 := tb.vertices[t.V1].Sub(v0)
	edge2 := tb.vertices[t.V2].Sub(v0)

	h := dir.Cross(edge2)
	a := edge1.Dot(h)
	if a > -epsilon && a < epsilon {
		return 0, false
	}
	f := 1 / a
	s := origin.Sub(v0)
	u := f * s.Dot(h)
	if u < 0 || u > 1 {
		return 0, false
	}
	q := s.Cross(edge1)
	v := f * dir.Dot(q)
	if v < 0 || u+v > 1 {
		return 0, false
	}
	d := f * edge2.Dot(q)
	if d < -1e-6 || d > tMax {
		return 0, false
	}
	if d < 0 {
		d = 0
	}
	return d, true
}

// BoxTriangles returns a closed, outward-wound triangle soup for b. Faces are
// emitted in the order -x, +x, -y, +y, -z, +z with the given materials.
func BoxTriangles(b Box, materials [6]int) ([]mgl32.Vec3, []Triangle) {
	lo, hi := b.Min, b.Max
	vertices := []mgl32.Vec3{
		{lo[0], lo[1], lo[2]},
		{hi[0], lo[1], lo[2]},
		{lo[0], hi[1], lo[2]},
		{hi[0], hi[1], lo[2]},
		{lo[0], lo[1], hi[2]},
		{hi[0], lo[1], hi[2]},
		{lo[0], hi[1], hi[2]},
		{hi[0], hi[1], hi[2]},
	}
	quads := [6][4]int{
		{0, 4, 6, 2}, // -x
		{1, 3, 7, 5}, // +x
		{0, 1, 5, 4}, // -y
		{2, 6, 7, 3}, // +y
		{0, 2, 3, 1}, // -z
		{4, 5, 7, 6}, // +z
	}
	triangles := make([]Triangle, 0, 12)
	for face, q := range quads {
		m := materials[face]
		triangles = append(triangles,
			Triangle{Material: m, V0: q[0], V1: q[1], V2: q[2]},
			Triangle{Material: m, V0: q[0], V1: q[2], V2: q[3]},
		)
	}
	return vertices, triangles
}

// NewBoxBoundary builds a triangle boundary for an axis-aligned room where
// every face uses the same material.
func NewBoxBoundary(b Box, material int) (*TriangleBoundary, error) {
	if !b.Valid() {
		return nil, fmt.Errorf("%w: box %v has no volume", ErrMalformedGeometry, b)
	}
	vertices, triangles := BoxTriangles(b, [6]int{material, material, material, material, material, material})
	return NewTriangleBoundary(vertices, triangles)
}

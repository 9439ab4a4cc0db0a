package mesh

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

// Direction enumerates the six axis-aligned neighbours of a lattice node.
type Direction int

const (
	NegX Direction = iota
	PosX
	NegY
	PosY
	NegZ
	PosZ
	NumDirections
)

var directionNames = [NumDirections]string{"-x", "+x", "-y", "+y", "-z", "+z"}

func (d Direction) String() string {
	if d < 0 || d >= NumDirections {
		return "invalid"
	}
	return directionNames[d]
}

// Opposite returns the direction pointing the other way along the same axis.
func (d Direction) Opposite() Direction { return d ^ 1 }

var directionOffsets = [NumDirections]Locator{
	{X: -1}, {X: 1}, {Y: -1}, {Y: 1}, {Z: -1}, {Z: 1},
}

// Locator is an integer lattice coordinate.
type Locator struct {
	X, Y, Z int
}

// Add returns the component-wise sum of two locators.
func (l Locator) Add(o Locator) Locator {
	return Locator{X: l.X + o.X, Y: l.Y + o.Y, Z: l.Z + o.Z}
}

// Descriptor fixes the placement of the lattice in world space.
type Descriptor struct {
	Min     mgl32.Vec3
	Dim     Locator
	Spacing float32
}

// Size returns the total number of lattice nodes.
func (d Descriptor) Size() int {
	return d.Dim.X * d.Dim.Y * d.Dim.Z
}

// InGrid reports whether l addresses a node of the lattice.
func (d Descriptor) InGrid(l Locator) bool {
	return l.X >= 0 && l.X < d.Dim.X && l.Y >= 0 && l.Y < d.Dim.Y && l.Z >= 0 && l.Z < d.Dim.Z
}

// ComputeIndex flattens a locator, x fastest.
func (d Descriptor) ComputeIndex(l Locator) int {
	return l.X + l.Y*d.Dim.X + l.Z*d.Dim.X*d.Dim.Y
}

// LocatorForIndex is the inverse of ComputeIndex.
func (d Descriptor) LocatorForIndex(index int) Locator {
	plane := d.Dim.X * d.Dim.Y
	z := index / plane
	rem := index - z*plane
	y := rem / d.Dim.X
	return Locator{X: rem - y*d.Dim.X, Y: y, Z: z}
}

// ComputeLocator returns the lattice point nearest to v, clamped to the grid.
func (d Descriptor) ComputeLocator(v mgl32.Vec3) Locator {
	rel := v.Sub(d.Min).Mul(1 / d.Spacing)
	return Locator{
		X: clampCoord(int(math.Round(float64(rel[0]))), 0, d.Dim.X-1),
		Y: clampCoord(int(math.Round(float64(rel[1]))), 0, d.Dim.Y-1),
		Z: clampCoord(int(math.Round(float64(rel[2]))), 0, d.Dim.Z-1),
	}
}

// ComputePosition returns the world-space position of a locator.
func (d Descriptor) ComputePosition(l Locator) mgl32.Vec3 {
	return d.Min.Add(mgl32.Vec3{float32(l.X), float32(l.Y), float32(l.Z)}.Mul(d.Spacing))
}

// Neighbor returns the flat index of the node next to index in direction dir,
// or -1 when that node would fall off the grid.
func (d Descriptor) Neighbor(index int, dir Direction) int {
	l := d.LocatorForIndex(index).Add(directionOffsets[dir])
	if !d.InGrid(l) {
		return -1
	}
	return d.ComputeIndex(l)
}

// Strides returns the flat index offsets for each direction.
func (d Descriptor) Strides() [NumDirections]int {
	plane := d.Dim.X * d.Dim.Y
	return [NumDirections]int{-1, 1, -d.Dim.X, d.Dim.X, -plane, plane}
}

// clampCoord constrains v to lie within the inclusive [min, max] range.
func clampCoord(v, min, max int) int {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}

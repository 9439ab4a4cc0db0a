package mesh

import (
	"errors"
	"fmt"
	"math"
	"runtime"

	"github.com/GeoffreyPlitt/debuggo"
	"github.com/go-gl/mathgl/mgl32"
	"golang.org/x/sync/errgroup"

	"acousticir/internal/geom"
)

var meshDebug = debuggo.Debug("acousticir:mesh")

// Construction errors. All are returned wrapped; match with errors.Is.
var (
	ErrInvalidSpacing    = errors.New("mesh: grid spacing must be positive and finite")
	ErrInvalidBounds     = errors.New("mesh: boundary has no finite volume")
	ErrTooLarge          = errors.New("mesh: lattice exceeds the node limit")
	ErrMalformedBoundary = errors.New("mesh: boundary could not be evaluated")
)

// MaxNodes bounds the lattice size so that a bad spacing fails fast instead of
// exhausting memory.
const MaxNodes = 1 << 27

// CourantSquared is λ² for the six-neighbour stencil at its stability limit.
const CourantSquared = 1.0 / 3.0

// GridSpacing returns the node spacing that makes the six-neighbour stencil
// run at Courant number 1/√3 for the given sample rate.
func GridSpacing(speedOfSound, sampleRate float64) float64 {
	return speedOfSound * math.Sqrt(3) / sampleRate
}

// SampleRateForSpacing is the inverse of GridSpacing.
func SampleRateForSpacing(speedOfSound, spacing float64) float64 {
	return speedOfSound * math.Sqrt(3) / spacing
}

// Classification of a lattice node.
type Classification uint8

const (
	Outside Classification = iota
	Inside
	Boundary
)

func (c Classification) String() string {
	switch c {
	case Outside:
		return "outside"
	case Inside:
		return "inside"
	case Boundary:
		return "boundary"
	}
	return "unknown"
}

// NoMaterial marks a direction without a surface crossing.
const NoMaterial = -1

// Node is one lattice point.
type Node struct {
	Position     mgl32.Vec3
	Class        Classification
	BoundaryMask uint8
	Materials    [NumDirections]int32
	Distances    [NumDirections]float32
}

// InsideRegion reports whether the node belongs to the simulated volume.
func (n Node) InsideRegion() bool { return n.Class != Outside }

// Condensed node flag bits. Bit 0 marks the simulated region, bits 1..6 the
// boundary directions in Direction order.
const (
	FlagInside        uint32 = 1
	flagBoundaryShift        = 1
)

// CondensedNode is the device-friendly node record.
type CondensedNode struct {
	Flags uint32
	// FirstFace indexes BoundaryFaces for boundary nodes and is -1 otherwise.
	// Faces are stored consecutively in Direction order of the set bits.
	FirstFace int32
}

// BoundaryMask extracts the direction bits.
func (c CondensedNode) BoundaryMask() uint8 {
	return uint8((c.Flags >> flagBoundaryShift) & 0x3f)
}

// Inside reports whether the node is simulated.
func (c CondensedNode) Inside() bool { return c.Flags&FlagInside != 0 }

// BoundaryFace ties one boundary direction of a node to a surface material.
type BoundaryFace struct {
	Node      int32
	Direction int32
	Material  int32
}

// Mesh is an immutable classified lattice.
type Mesh struct {
	desc      Descriptor
	nodes     []Node
	condensed []CondensedNode
	faces     []BoundaryFace
	inside    int
	boundary  int
}

// Build voxelises b onto a lattice of the given spacing that has a node at
// anchor and covers the bounds of b plus one padding layer.
func Build(b geom.Boundary, spacing float32, anchor mgl32.Vec3) (*Mesh, error) {
	if !(spacing > 0) || math.IsInf(float64(spacing), 0) {
		return nil, fmt.Errorf("%w: got %v", ErrInvalidSpacing, spacing)
	}
	bounds := b.Bounds()
	if !bounds.Valid() {
		return nil, fmt.Errorf("%w: %v", ErrInvalidBounds, bounds)
	}
	desc, err := describe(bounds, spacing, anchor)
	if err != nil {
		return nil, err
	}
	meshDebug("lattice %dx%dx%d spacing %.4f origin %v", desc.Dim.X, desc.Dim.Y, desc.Dim.Z, spacing, desc.Min)

	m := &Mesh{desc: desc, nodes: make([]Node, desc.Size())}
	if err := m.classify(b); err != nil {
		return nil, err
	}
	if err := m.markBoundaries(b); err != nil {
		return nil, err
	}
	m.condense()
	meshDebug("%d nodes, %d inside, %d boundary, %d faces", len(m.nodes), m.inside, m.boundary, len(m.faces))
	return m, nil
}

func describe(bounds geom.Box, spacing float32, anchor mgl32.Vec3) (Descriptor, error) {
	var lo, hi [3]int
	for i := 0; i < 3; i++ {
		lo[i] = int(math.Floor(float64((bounds.Min[i]-anchor[i])/spacing))) - 1
		hi[i] = int(math.Ceil(float64((bounds.Max[i]-anchor[i])/spacing))) + 1
	}
	dim := Locator{X: hi[0] - lo[0] + 1, Y: hi[1] - lo[1] + 1, Z: hi[2] - lo[2] + 1}
	total := float64(dim.X) * float64(dim.Y) * float64(dim.Z)
	if total > MaxNodes {
		return Descriptor{}, fmt.Errorf("%w: %dx%dx%d nodes", ErrTooLarge, dim.X, dim.Y, dim.Z)
	}
	origin := anchor.Add(mgl32.Vec3{float32(lo[0]), float32(lo[1]), float32(lo[2])}.Mul(spacing))
	return Descriptor{Min: origin, Dim: dim, Spacing: spacing}, nil
}

// classify runs the containment test slice by slice in parallel.
func (m *Mesh) classify(b geom.Boundary) error {
	d := m.desc
	plane := d.Dim.X * d.Dim.Y
	var g errgroup.Group
	g.SetLimit(runtime.NumCPU())
	for z := 0; z < d.Dim.Z; z++ {
		g.Go(func() error {
			base := z * plane
			for i := base; i < base+plane; i++ {
				pos := d.ComputePosition(d.LocatorForIndex(i))
				n := Node{Position: pos}
				for k := range n.Materials {
					n.Materials[k] = NoMaterial
				}
				if b.Inside(pos) {
					n.Class = Inside
				}
				m.nodes[i] = n
			}
			return nil
		})
	}
	return g.Wait()
}

// markBoundaries flags inside nodes that touch an outside node and records the
// surface between them.
func (m *Mesh) markBoundaries(b geom.Boundary) error {
	d := m.desc
	for i := range m.nodes {
		n := &m.nodes[i]
		if n.Class == Outside {
			continue
		}
		m.inside++
		for dir := Direction(0); dir < NumDirections; dir++ {
			j := d.Neighbor(i, dir)
			if j >= 0 && m.nodes[j].Class != Outside {
				continue
			}
			outside := n.Position.Add(directionVector(dir).Mul(d.Spacing))
			dist, material, ok := b.Crossing(n.Position, outside)
			if !ok {
				return fmt.Errorf("%w: no surface between node %d at %v and its %s neighbour", ErrMalformedBoundary, i, n.Position, dir)
			}
			n.BoundaryMask |= 1 << uint(dir)
			n.Materials[dir] = int32(material)
			n.Distances[dir] = dist
		}
		if n.BoundaryMask != 0 {
			n.Class = Boundary
			m.boundary++
		}
	}
	return nil
}

func (m *Mesh) condense() {
	m.condensed = make([]CondensedNode, len(m.nodes))
	m.faces = make([]BoundaryFace, 0, m.boundary)
	for i, n := range m.nodes {
		c := CondensedNode{FirstFace: -1}
		if n.Class != Outside {
			c.Flags = FlagInside | uint32(n.BoundaryMask)<<flagBoundaryShift
		}
		if n.BoundaryMask != 0 {
			c.FirstFace = int32(len(m.faces))
			for dir := Direction(0); dir < NumDirections; dir++ {
				if n.BoundaryMask&(1<<uint(dir)) == 0 {
					continue
				}
				m.faces = append(m.faces, BoundaryFace{
					Node:      int32(i),
					Direction: int32(dir),
					Material:  n.Materials[dir],
				})
			}
		}
		m.condensed[i] = c
	}
}

func directionVector(d Direction) mgl32.Vec3 {
	o := directionOffsets[d]
	return mgl32.Vec3{float32(o.X), float32(o.Y), float32(o.Z)}
}

// Descriptor returns the lattice placement.
func (m *Mesh) Descriptor() Descriptor { return m.desc }

// Nodes returns the node array. Callers must not modify it.
func (m *Mesh) Nodes() []Node { return m.nodes }

// CondensedNodes returns the device-friendly node records.
func (m *Mesh) CondensedNodes() []CondensedNode { return m.condensed }

// BoundaryFaces returns one record per boundary direction of every boundary node.
func (m *Mesh) BoundaryFaces() []BoundaryFace { return m.faces }

// Size returns the number of lattice nodes.
func (m *Mesh) Size() int { return len(m.nodes) }

// InsideCount returns the number of simulated nodes, boundary nodes included.
func (m *Mesh) InsideCount() int { return m.inside }

// BoundaryCount returns the number of boundary nodes.
func (m *Mesh) BoundaryCount() int { return m.boundary }

// Inside reports whether index addresses a simulated node.
func (m *Mesh) Inside(index int) bool {
	return index >= 0 && index < len(m.nodes) && m.nodes[index].Class != Outside
}

// IndexForCoordinate returns the node nearest to v.
func (m *Mesh) IndexForCoordinate(v mgl32.Vec3) int {
	return m.desc.ComputeIndex(m.desc.ComputeLocator(v))
}

// CoordinateForIndex returns the world position of a node.
func (m *Mesh) CoordinateForIndex(index int) mgl32.Vec3 {
	return m.nodes[index].Position
}

// MaxMaterial returns the largest material index referenced by a face, or -1.
func (m *Mesh) MaxMaterial() int {
	highest := -1
	for _, f := range m.faces {
		highest = max(highest, int(f.Material))
	}
	return highest
}

package waveguide

import "acousticir/internal/mesh"

// FieldEnergy returns the discrete energy carried between two consecutive
// fields of a lossless mesh:
//
//	E = ½Σ(p − p⁻)² + (λ²/2)Σ_edges (p_i − p_j)(p⁻_i − p⁻_j)
//
// where edges join pairs of inside nodes. It is constant while every wall
// has zero admittance and no input is applied.
func FieldEnergy(m *mesh.Mesh, previous, current []float32) float64 {
	d := m.Descriptor()
	strides := d.Strides()
	var kinetic, potential float64
	for i, n := range m.Nodes() {
		if n.Class == mesh.Outside {
			continue
		}
		dp := float64(current[i]) - float64(previous[i])
		kinetic += dp * dp
		for _, dir := range []mesh.Direction{mesh.PosX, mesh.PosY, mesh.PosZ} {
			if n.BoundaryMask&(1<<uint(dir)) != 0 {
				continue
			}
			j := i + strides[dir]
			if !m.Inside(j) {
				continue
			}
			potential += (float64(current[i]) - float64(current[j])) *
				(float64(previous[i]) - float64(previous[j]))
		}
	}
	return kinetic/2 + mesh.CourantSquared/2*potential
}

// EnergyMonitor is a postprocessor that records FieldEnergy between each
// field and the one before it.
type EnergyMonitor struct {
	mesh   *mesh.Mesh
	last   []float32
	seen   bool
	output []float64
}

// NewEnergyMonitor tracks the energy of fields on m.
func NewEnergyMonitor(m *mesh.Mesh) *EnergyMonitor {
	return &EnergyMonitor{mesh: m, last: make([]float32, m.Size())}
}

// Process records the energy once two fields have been seen.
func (e *EnergyMonitor) Process(field []float32, _ int) {
	if e.seen {
		e.output = append(e.output, FieldEnergy(e.mesh, e.last, field))
	}
	copy(e.last, field)
	e.seen = true
}

// Output returns one energy value per step after the first.
func (e *EnergyMonitor) Output() []float64 { return e.output }

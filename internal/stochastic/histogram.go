package stochastic

import (
	"fmt"
	"math"

	"github.com/go-gl/mathgl/mgl32"

	"acousticir/internal/bands"
)

// Reflection is one ray arriving at the receiver.
type Reflection struct {
	// Time of arrival in seconds.
	Time float64
	// Direction the energy arrives from, in world space.
	Direction mgl32.Vec3
	Energy    bands.Energies
}

// EnergyHistogram sums band energies into bins of width 1/SampleRate.
type EnergyHistogram struct {
	SampleRate float64
	Bins       []bands.Energies
}

// NewEnergyHistogram returns an empty histogram.
func NewEnergyHistogram(sampleRate float64) (*EnergyHistogram, error) {
	if !(sampleRate > 0) || math.IsInf(sampleRate, 0) {
		return nil, fmt.Errorf("%w: histogram sample rate %v", ErrDomain, sampleRate)
	}
	return &EnergyHistogram{SampleRate: sampleRate}, nil
}

func binIndex(time, sampleRate float64) (int, error) {
	if !(time >= 0) || math.IsInf(time, 0) {
		return 0, fmt.Errorf("%w: arrival time %v", ErrDomain, time)
	}
	return int(time * sampleRate), nil
}

// grow returns bins extended with zeros to hold index.
func grow(bins []bands.Energies, index int) []bands.Energies {
	if index < len(bins) {
		return bins
	}
	return append(bins, make([]bands.Energies, index+1-len(bins))...)
}

// Add sums energy into the bin containing time.
func (h *EnergyHistogram) Add(time float64, energy bands.Energies) error {
	i, err := binIndex(time, h.SampleRate)
	if err != nil {
		return err
	}
	h.Bins = grow(h.Bins, i)
	h.Bins[i] = h.Bins[i].Add(energy)
	return nil
}

// AddReflection adds the energy of r at its arrival time.
func (h *EnergyHistogram) AddReflection(r Reflection) error {
	return h.Add(r.Time, r.Energy)
}

// Merge adds other into h bin by bin. The sample rate of other is kept.
func (h *EnergyHistogram) Merge(other *EnergyHistogram) {
	h.Bins = sumBins(h.Bins, other.Bins)
	h.SampleRate = other.SampleRate
}

// MaxTime returns the time covered by the histogram.
func (h *EnergyHistogram) MaxTime() float64 {
	return float64(len(h.Bins)) / h.SampleRate
}

// Total returns the summed energy in every band.
func (h *EnergyHistogram) Total() bands.Energies {
	var total bands.Energies
	for _, b := range h.Bins {
		total = total.Add(b)
	}
	return total
}

func sumBins(a, b []bands.Energies) []bands.Energies {
	if len(b) > len(a) {
		a = grow(a, len(b)-1)
	}
	for i, v := range b {
		a[i] = a[i].Add(v)
	}
	return a
}

// DirectionalHistogram keeps a separate histogram per arrival direction,
// quantised into Azimuth×Elevation cells.
type DirectionalHistogram struct {
	SampleRate float64
	Azimuth    int
	Elevation  int
	table      [][]bands.Energies
}

// NewDirectionalHistogram returns an empty az×el table.
func NewDirectionalHistogram(azimuth, elevation int, sampleRate float64) (*DirectionalHistogram, error) {
	if azimuth < 1 || elevation < 1 {
		return nil, fmt.Errorf("%w: direction table %dx%d", ErrDomain, azimuth, elevation)
	}
	if !(sampleRate > 0) || math.IsInf(sampleRate, 0) {
		return nil, fmt.Errorf("%w: histogram sample rate %v", ErrDomain, sampleRate)
	}
	return &DirectionalHistogram{
		SampleRate: sampleRate,
		Azimuth:    azimuth,
		Elevation:  elevation,
		table:      make([][]bands.Energies, azimuth*elevation),
	}, nil
}

// Cell returns the table indices for a direction. Azimuth is measured in the
// x-z plane from +x towards +z, elevation towards +y.
func (h *DirectionalHistogram) Cell(direction mgl32.Vec3) (az, el int) {
	d := direction.Normalize()
	azimuth := math.Atan2(float64(d[2]), float64(d[0]))
	elevation := math.Asin(math.Max(-1, math.Min(1, float64(d[1]))))
	az = int((azimuth + math.Pi) / (2 * math.Pi) * float64(h.Azimuth))
	el = int((elevation + math.Pi/2) / math.Pi * float64(h.Elevation))
	return min(max(az, 0), h.Azimuth-1), min(max(el, 0), h.Elevation-1)
}

// Pointing returns the unit direction at the centre of a cell.
func (h *DirectionalHistogram) Pointing(az, el int) mgl32.Vec3 {
	azimuth := (float64(az)+0.5)/float64(h.Azimuth)*2*math.Pi - math.Pi
	elevation := (float64(el)+0.5)/float64(h.Elevation)*math.Pi - math.Pi/2
	return mgl32.Vec3{
		float32(math.Cos(elevation) * math.Cos(azimuth)),
		float32(math.Sin(elevation)),
		float32(math.Cos(elevation) * math.Sin(azimuth)),
	}
}

// Segment returns the bins of one cell.
func (h *DirectionalHistogram) Segment(az, el int) []bands.Energies {
	return h.table[az*h.Elevation+el]
}

// AddReflection sums r into the cell of its arrival direction.
func (h *DirectionalHistogram) AddReflection(r Reflection) error {
	i, err := binIndex(r.Time, h.SampleRate)
	if err != nil {
		return err
	}
	az, el := h.Cell(r.Direction)
	cell := az*h.Elevation + el
	h.table[cell] = grow(h.table[cell], i)
	h.table[cell][i] = h.table[cell][i].Add(r.Energy)
	return nil
}

// Merge adds other cell by cell. The sample rate of other is kept. Both
// tables must have the same Azimuth and Elevation; merging tables of
// different shapes is a programming error and panics.
func (h *DirectionalHistogram) Merge(other *DirectionalHistogram) {
	if other.Azimuth != h.Azimuth || other.Elevation != h.Elevation {
		panic(fmt.Sprintf("stochastic: merging %dx%d table into %dx%d", other.Azimuth, other.Elevation, h.Azimuth, h.Elevation))
	}
	for i := range h.table {
		h.table[i] = sumBins(h.table[i], other.table[i])
	}
	h.SampleRate = other.SampleRate
}

// MaxTime returns the time covered by the longest cell.
func (h *DirectionalHistogram) MaxTime() float64 {
	longest := 0
	for _, c := range h.table {
		longest = max(longest, len(c))
	}
	return float64(longest) / h.SampleRate
}

// Sum collapses the table into one histogram. With a nil attenuator cells
// are summed as they are; otherwise every cell is weighted by the squared
// attenuation of the receiver towards the centre of that cell.
func (h *DirectionalHistogram) Sum(att Attenuator) *EnergyHistogram {
	out := &EnergyHistogram{SampleRate: h.SampleRate}
	for az := 0; az < h.Azimuth; az++ {
		for el := 0; el < h.Elevation; el++ {
			segment := h.Segment(az, el)
			if att == nil {
				out.Bins = sumBins(out.Bins, segment)
				continue
			}
			a := att.Attenuation(h.Pointing(az, el))
			factor := a.Mul(a)
			out.Bins = grow(out.Bins, len(segment)-1)
			for i, v := range segment {
				out.Bins[i] = out.Bins[i].Add(v.Mul(factor))
			}
		}
	}
	return out
}

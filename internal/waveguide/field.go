package waveguide

// role names one of the three pressure buffers of the leapfrog update.
type role int

const (
	rolePrevious role = iota
	roleCurrent
	roleNext
)

// Field stores the three pressure buffers of the solver. Buffers are
// allocated once and addressed through a role table, so rotation swaps
// indices and never copies or reallocates.
type Field struct {
	buffers [3][]float32
	slots   [3]int
}

// NewField allocates a field of size nodes with the identity role table.
func NewField(size int) *Field {
	f := &Field{slots: [3]int{0, 1, 2}}
	for i := range f.buffers {
		f.buffers[i] = make([]float32, size)
	}
	return f
}

// Size returns the number of nodes per buffer.
func (f *Field) Size() int { return len(f.buffers[0]) }

// Previous returns the buffer holding the field one step back.
func (f *Field) Previous() []float32 { return f.buffers[f.slots[rolePrevious]] }

// Current returns the buffer holding the field of this step.
func (f *Field) Current() []float32 { return f.buffers[f.slots[roleCurrent]] }

// Next returns the buffer the kernel writes into.
func (f *Field) Next() []float32 { return f.buffers[f.slots[roleNext]] }

// slot returns the buffer index currently bound to r.
func (f *Field) slot(r role) int { return f.slots[r] }

// Rotate advances the roles so that next becomes current, current becomes
// previous and the old previous buffer is reused as next.
func (f *Field) Rotate() {
	f.slots[rolePrevious], f.slots[roleCurrent], f.slots[roleNext] =
		f.slots[roleCurrent], f.slots[roleNext], f.slots[rolePrevious]
}

// Reset zeroes every buffer and restores the identity role table.
func (f *Field) Reset() {
	for _, b := range f.buffers {
		clear(b)
	}
	f.slots = [3]int{0, 1, 2}
}

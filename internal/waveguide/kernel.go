package waveguide

// Kernel advances a Field by one step. Implementations read the previous and
// current buffers, write the next buffer and report any faults raised while
// doing so. A Kernel is driven by a single goroutine.
type Kernel interface {
	Step(f *Field) (Fault, error)
	// Reset clears boundary filter memory before a run.
	Reset() error
	Name() string
	Close() error
}

package waveguide

import (
	"runtime"
	"sync"

	"acousticir/internal/mesh"
)

// span is an inclusive range of consecutive inside nodes.
type span struct{ start, end int }

// workerSpans collects the spans assigned to one worker goroutine.
type workerSpans struct {
	spans []span
}

// CPUKernel updates nodes on a pool of persistent worker goroutines. Every
// step is a barrier: Step wakes all workers and returns once each has
// finished its spans.
type CPUKernel struct {
	prog    *program
	workers int
	masks   []workerSpans

	mu      sync.Mutex
	cond    *sync.Cond
	step    int
	pending int
	stopped bool
	faults  []Fault
	field   *Field
}

// newCPUKernel starts workers goroutines over the inside nodes of p. A
// non-positive count uses one worker per logical CPU.
func newCPUKernel(p *program, workers int) *CPUKernel {
	if workers < 1 {
		workers = runtime.NumCPU()
	}
	k := &CPUKernel{
		prog:    p,
		workers: workers,
		masks:   assignSpans(workers, insideSpans(p)),
		faults:  make([]Fault, workers),
	}
	k.cond = sync.NewCond(&k.mu)
	for i := 0; i < workers; i++ {
		go k.workerLoop(i)
	}
	return k
}

// insideSpans splits the node array into runs of consecutive inside nodes,
// breaking runs at the end of each lattice row.
func insideSpans(p *program) []span {
	rowLen := max(p.strides[mesh.PosY], 1)
	spans := make([]span, 0, p.size/rowLen+1)
	in := false
	start := 0
	for i := 0; i < p.size; i++ {
		inside := p.inside(i)
		if inside && !in {
			in = true
			start = i
		}
		rowEnd := (i+1)%rowLen == 0
		if in && (!inside || rowEnd) {
			end := i - 1
			if inside {
				end = i
			}
			spans = append(spans, span{start: start, end: end})
			in = false
		}
	}
	return spans
}

// assignSpans distributes spans across workers in round robin fashion.
func assignSpans(workerCount int, spans []span) []workerSpans {
	if workerCount < 1 {
		workerCount = 1
	}
	masks := make([]workerSpans, workerCount)
	for idx, sp := range spans {
		w := idx % workerCount
		masks[w].spans = append(masks[w].spans, sp)
	}
	return masks
}

func (k *CPUKernel) workerLoop(index int) {
	lastStep := 0
	k.mu.Lock()
	for {
		for k.step == lastStep && !k.stopped {
			k.cond.Wait()
		}
		if k.stopped {
			k.mu.Unlock()
			return
		}
		lastStep = k.step
		mask := k.masks[index]
		f := k.field
		k.mu.Unlock()

		fault := processSpans(k.prog, f, mask.spans)

		k.mu.Lock()
		k.faults[index] = fault
		k.pending--
		if k.pending == 0 {
			k.cond.Broadcast()
		}
	}
}

func processSpans(p *program, f *Field, spans []span) Fault {
	previous, current, next := f.Previous(), f.Current(), f.Next()
	var fault Fault
	for _, sp := range spans {
		for i := sp.start; i <= sp.end; i++ {
			fault |= p.update(i, previous, current, next)
		}
	}
	return fault
}

// Step runs one barrier-synchronised update of the whole field.
func (k *CPUKernel) Step(f *Field) (Fault, error) {
	k.mu.Lock()
	k.field = f
	k.pending = k.workers
	k.step++
	k.cond.Broadcast()
	for k.pending > 0 {
		k.cond.Wait()
	}
	var fault Fault
	for i, w := range k.faults {
		fault |= w
		k.faults[i] = 0
	}
	k.field = nil
	k.mu.Unlock()
	return fault, nil
}

// Reset clears boundary filter memory.
func (k *CPUKernel) Reset() error {
	k.prog.resetState()
	return nil
}

// Name describes the kernel.
func (k *CPUKernel) Name() string { return "cpu" }

// Close stops the worker goroutines.
func (k *CPUKernel) Close() error {
	k.mu.Lock()
	k.stopped = true
	k.cond.Broadcast()
	k.mu.Unlock()
	return nil
}

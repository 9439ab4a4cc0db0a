package waveguide

import (
	"errors"
	"fmt"
	"strings"
)

// ErrNumericalFault is wrapped by every FaultError.
var ErrNumericalFault = errors.New("waveguide: numerical fault")

// Fault is a set of conditions raised by a kernel during one step.
type Fault uint32

const (
	FaultInf Fault = 1 << iota
	FaultNaN
	FaultOutsideMesh
	FaultSuspiciousBoundary
)

var faultMessages = []struct {
	fault Fault
	msg   string
}{
	{FaultInf, "pressure value is inf, check filter coefficients"},
	{FaultNaN, "pressure value is nan, check filter coefficients"},
	{FaultOutsideMesh, "tried to read a node outside the mesh"},
	{FaultSuspiciousBoundary, "suspicious boundary read"},
}

func (f Fault) String() string {
	if f == 0 {
		return "none"
	}
	var parts []string
	for _, m := range faultMessages {
		if f&m.fault != 0 {
			parts = append(parts, m.msg)
		}
	}
	if rest := f &^ (FaultInf | FaultNaN | FaultOutsideMesh | FaultSuspiciousBoundary); rest != 0 {
		parts = append(parts, fmt.Sprintf("unknown fault bits %#x", uint32(rest)))
	}
	return strings.Join(parts, "; ")
}

// FaultError aborts a run. It names every fault raised by the failing step.
type FaultError struct {
	Step   int
	Faults Fault
}

func (e *FaultError) Error() string {
	return fmt.Sprintf("waveguide: step %d: %s", e.Step, e.Faults)
}

func (e *FaultError) Unwrap() error { return ErrNumericalFault }

// Has reports whether f was raised.
func (e *FaultError) Has(f Fault) bool { return e.Faults&f != 0 }

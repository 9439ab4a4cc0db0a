package waveguide

import "github.com/x448/float16"

// HalfVisualiser emits every field as IEEE 754 binary16 values, halving the
// size of exported frames.
type HalfVisualiser struct {
	output func(frame []uint16, step int)
}

// NewHalfVisualiser wraps output.
func NewHalfVisualiser(output func(frame []uint16, step int)) *HalfVisualiser {
	return &HalfVisualiser{output: output}
}

// Process converts and forwards the field.
func (v *HalfVisualiser) Process(field []float32, step int) {
	frame := make([]uint16, len(field))
	EncodeHalf(frame, field)
	v.output(frame, step)
}

// EncodeHalf rounds src to binary16 into dst. dst must be at least len(src).
func EncodeHalf(dst []uint16, src []float32) {
	for i, v := range src {
		dst[i] = float16.Fromfloat32(v).Bits()
	}
}

// DecodeHalf expands binary16 data into float32 values. dst must be at least
// len(src).
func DecodeHalf(dst []float32, src []uint16) {
	for i, v := range src {
		dst[i] = float16.Frombits(v).Float32()
	}
}

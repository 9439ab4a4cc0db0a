package main

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"

	"acousticir/internal/bands"
	"acousticir/internal/geom"
	"acousticir/internal/stochastic"
)

// imageCoordinate mirrors x through the walls at lo and hi n times along one
// axis, returning the image position.
func imageCoordinate(x, lo, hi float32, n int) float32 {
	width := hi - lo
	rel := x - lo
	if n%2 == 0 {
		return lo + float32(n)*width + rel
	}
	return lo + float32(n+1)*width - rel
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}

// imageSourceReflections is a synthetic ray stream for a rectangular room:
// every image source up to maxOrder reflections, batched by order. Each
// arrival carries the inverse-square energy of a unit source scaled by the
// energy reflectance of the walls it met.
func imageSourceReflections(room geom.Box, source, receiver mgl32.Vec3, reflectance float64, speedOfSound float64, maxOrder int) [][]stochastic.Reflection {
	batches := make([][]stochastic.Reflection, maxOrder+1)
	for nx := -maxOrder; nx <= maxOrder; nx++ {
		for ny := -maxOrder; ny <= maxOrder; ny++ {
			for nz := -maxOrder; nz <= maxOrder; nz++ {
				order := abs(nx) + abs(ny) + abs(nz)
				if order > maxOrder {
					continue
				}
				image := mgl32.Vec3{
					imageCoordinate(source[0], room.Min[0], room.Max[0], nx),
					imageCoordinate(source[1], room.Min[1], room.Max[1], ny),
					imageCoordinate(source[2], room.Min[2], room.Max[2], nz),
				}
				arrival := image.Sub(receiver)
				if arrival.Len() < 1e-6 {
					arrival = mgl32.Vec3{1, 0, 0}
				}
				dist := math.Max(float64(arrival.Len()), 1e-3)
				energy := math.Pow(reflectance, 2*float64(order)) / (4 * math.Pi * dist * dist)
				batches[order] = append(batches[order], stochastic.Reflection{
					Time:      dist / speedOfSound,
					Direction: arrival,
					Energy:    bands.Uniform(energy),
				})
			}
		}
	}
	return batches
}

package stochastic

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"
)

// Accumulate builds a histogram from one stream of reflections. An empty
// stream yields an empty histogram.
func Accumulate(sampleRate float64, reflections []Reflection) (*EnergyHistogram, error) {
	h, err := NewEnergyHistogram(sampleRate)
	if err != nil {
		return nil, err
	}
	for i, r := range reflections {
		if err := h.AddReflection(r); err != nil {
			return nil, fmt.Errorf("reflection %d: %w", i, err)
		}
	}
	return h, nil
}

// AccumulateDirectional builds a directional histogram from one stream.
func AccumulateDirectional(azimuth, elevation int, sampleRate float64, reflections []Reflection) (*DirectionalHistogram, error) {
	h, err := NewDirectionalHistogram(azimuth, elevation, sampleRate)
	if err != nil {
		return nil, err
	}
	for i, r := range reflections {
		if err := h.AddReflection(r); err != nil {
			return nil, fmt.Errorf("reflection %d: %w", i, err)
		}
	}
	return h, nil
}

type mergeable[H any] interface {
	Merge(other H)
}

// accumulateParallel builds one histogram per batch concurrently and merges
// them in batch order once every batch has finished.
func accumulateParallel[H mergeable[H]](ctx context.Context, batches [][]Reflection, build func([]Reflection) (H, error)) (H, error) {
	var zero H
	parts := make([]H, len(batches))
	g, gctx := errgroup.WithContext(ctx)
	for i, batch := range batches {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			h, err := build(batch)
			if err != nil {
				return fmt.Errorf("batch %d: %w", i, err)
			}
			parts[i] = h
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return zero, err
	}
	if len(parts) == 0 {
		return build(nil)
	}
	out := parts[0]
	for _, p := range parts[1:] {
		out.Merge(p)
	}
	stochasticDebug("merged %d reflection batches", len(parts))
	return out, nil
}

// AccumulateParallel accumulates each batch on its own goroutine and merges
// the results in batch order.
func AccumulateParallel(ctx context.Context, sampleRate float64, batches [][]Reflection) (*EnergyHistogram, error) {
	return accumulateParallel(ctx, batches, func(rs []Reflection) (*EnergyHistogram, error) {
		return Accumulate(sampleRate, rs)
	})
}

// AccumulateDirectionalParallel is AccumulateParallel for directional
// histograms.
func AccumulateDirectionalParallel(ctx context.Context, azimuth, elevation int, sampleRate float64, batches [][]Reflection) (*DirectionalHistogram, error) {
	return accumulateParallel(ctx, batches, func(rs []Reflection) (*DirectionalHistogram, error) {
		return AccumulateDirectional(azimuth, elevation, sampleRate, rs)
	})
}

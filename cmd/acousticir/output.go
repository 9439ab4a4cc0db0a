package main

import (
	"fmt"
	"math"
	"os"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// removeDC AC-couples a signal by subtracting a slowly tracking DC estimate.
// The waveguide leaves a pressure offset behind every impulse in a closed
// room.
func removeDC(samples []float32) []float32 {
	out := make([]float32, len(samples))
	var dc float32
	for i, v := range samples {
		dc += dcAlpha * (v - dc)
		out[i] = v - dc
	}
	return out
}

// normalise scales samples to a peak of one. Silence is returned unchanged.
func normalise(samples []float32) []float32 {
	var peak float64
	for _, v := range samples {
		peak = math.Max(peak, math.Abs(float64(v)))
	}
	out := make([]float32, len(samples))
	if peak == 0 {
		copy(out, samples)
		return out
	}
	gain := float32(1 / peak)
	for i, v := range samples {
		out[i] = v * gain
	}
	return out
}

// toPCM16 converts samples to 16-bit integers, clipping to full scale.
func toPCM16(samples []float32) []int {
	out := make([]int, len(samples))
	for i, v := range samples {
		s := int(math.Round(float64(v) * pcm16MaxValue))
		out[i] = min(max(s, pcm16MinValue), pcm16MaxValue)
	}
	return out
}

// writeWAV writes a mono 16-bit WAV.
func writeWAV(path string, sampleRate int, samples []float32) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	enc := wav.NewEncoder(f, sampleRate, 16, 1, 1)
	buf := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: 1, SampleRate: sampleRate},
		Data:           toPCM16(samples),
		SourceBitDepth: 16,
	}
	if err := enc.Write(buf); err != nil {
		f.Close()
		return fmt.Errorf("encoding %q: %w", path, err)
	}
	if err := enc.Close(); err != nil {
		f.Close()
		return fmt.Errorf("encoding %q: %w", path, err)
	}
	return f.Close()
}

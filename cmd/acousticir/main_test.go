package main

import (
	"context"
	"encoding/binary"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-audio/wav"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"acousticir/internal/geom"
	"acousticir/internal/waveguide"
)

func TestVec3ValueSet(t *testing.T) {
	var v vec3Value
	require.NoError(t, v.Set("1, -2.5,3"))
	assert.Equal(t, vec3Value{1, -2.5, 3}, v)
	assert.Equal(t, "1,-2.5,3", v.String())

	assert.Error(t, v.Set("1,2"))
	assert.Error(t, v.Set("1,x,3"))
	assert.Equal(t, vec3Value{1, -2.5, 3}, v)
}

func TestRemoveDC(t *testing.T) {
	in := make([]float32, 20000)
	for i := range in {
		in[i] = 0.5
	}
	out := removeDC(in)
	require.Len(t, out, len(in))
	assert.InDelta(t, 0.5, out[0], 1e-3)
	assert.InDelta(t, 0, out[len(out)-1], 1e-4)
}

func TestNormalise(t *testing.T) {
	assert.Equal(t, []float32{0.5, -1, 0.25}, normalise([]float32{1, -2, 0.5}))
	assert.Equal(t, []float32{0, 0}, normalise([]float32{0, 0}))
}

func TestToPCM16Clips(t *testing.T) {
	assert.Equal(t, []int{0, pcm16MaxValue, pcm16MaxValue, pcm16MinValue, -16384}, toPCM16([]float32{0, 1, 2, -3, -0.5}))
}

func decodeWAV(t *testing.T, path string) (int, []int) {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	dec := wav.NewDecoder(f)
	require.True(t, dec.IsValidFile())
	buf, err := dec.FullPCMBuffer()
	require.NoError(t, err)
	return int(dec.SampleRate), buf.Data
}

func TestWriteWAVRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ir.wav")
	samples := []float32{0, 0.25, -0.5, 0.999, -1}
	require.NoError(t, writeWAV(path, 8000, samples))

	rate, data := decodeWAV(t, path)
	assert.Equal(t, 8000, rate)
	assert.Equal(t, toPCM16(samples), data)

	loaded, err := loadExcitation(8000, path)
	require.NoError(t, err)
	require.Len(t, loaded, len(samples))
	for i := range samples {
		assert.InDelta(t, samples[i], loaded[i], 1e-4, "sample %d", i)
	}
}

func TestExcitationDefaultsToImpulse(t *testing.T) {
	in, err := excitation(8000, "")
	require.NoError(t, err)
	assert.Equal(t, []float32{1}, in)

	_, err = excitation(8000, filepath.Join(t.TempDir(), "missing.wav"))
	assert.Error(t, err)
}

func TestDecodeStereo(t *testing.T) {
	pcm := []byte{0x00, 0x40, 0x00, 0xc0, 0xff, 0x7f, 0xff, 0x7f, 0x01}
	assert.Equal(t, []float32{0, 32767.0 / 32768}, decodeStereoI16ToFloat(pcm))
	assert.Nil(t, decodeStereoI16ToFloat([]byte{1, 2}))
}

func TestImageCoordinate(t *testing.T) {
	assert.Equal(t, float32(0.5), imageCoordinate(0.5, -1, 2, 0))
	assert.Equal(t, float32(3.5), imageCoordinate(0.5, -1, 2, 1))
	assert.Equal(t, float32(-2.5), imageCoordinate(0.5, -1, 2, -1))
	assert.Equal(t, float32(6.5), imageCoordinate(0.5, -1, 2, 2))
}

func TestImageSourceReflections(t *testing.T) {
	room := geom.Box{Min: mgl32.Vec3{-2, -1.5, -1}, Max: mgl32.Vec3{2, 1.5, 1}}
	source := mgl32.Vec3{0.5, 0, 0}
	receiver := mgl32.Vec3{-0.5, 0, 0}
	batches := imageSourceReflections(room, source, receiver, 0.8, 340, 3)
	require.Len(t, batches, 4)
	assert.Len(t, batches[0], 1)
	assert.Len(t, batches[1], 6)
	assert.Len(t, batches[2], 18)
	assert.Len(t, batches[3], 38)

	direct := batches[0][0]
	assert.InDelta(t, 1.0/340, direct.Time, 1e-7)
	assert.InDelta(t, 1/(4*math.Pi), direct.Energy[0], 1e-6)
	assert.InDelta(t, 1, direct.Direction.Normalize()[0], 1e-6)

	for _, r := range batches[1] {
		assert.Greater(t, r.Time, direct.Time)
		assert.Less(t, r.Energy[0], direct.Energy[0]*0.64)
	}
}

func smallRoom(dir string) options {
	return options{
		room:             mgl32.Vec3{1, 1, 1},
		source:           mgl32.Vec3{0.2, 0, 0},
		receiver:         mgl32.Vec3{-0.2, 0.1, 0},
		sampleRate:       4000,
		steps:            40,
		reflectance:      0.9,
		output:           filepath.Join(dir, "waveguide.wav"),
		stochasticOutput: filepath.Join(dir, "stochastic.wav"),
		outputRate:       8000,
		workers:          2,
		imageOrder:       3,
		micPointing:      mgl32.Vec3{1, 0, 0},
		micShape:         0.5,
		seed:             7,
	}
}

func TestRunWritesImpulseResponses(t *testing.T) {
	o := smallRoom(t.TempDir())
	require.NoError(t, run(context.Background(), o))

	rate, data := decodeWAV(t, o.output)
	assert.Equal(t, 4000, rate)
	assert.Len(t, data, 40)

	rate, data = decodeWAV(t, o.stochasticOutput)
	assert.Equal(t, 8000, rate)
	assert.NotEmpty(t, data)
	var peak int
	for _, v := range data {
		peak = max(peak, abs(v))
	}
	assert.Equal(t, pcm16MaxValue, peak)
}

func TestRunTransparentSource(t *testing.T) {
	o := smallRoom(t.TempDir())
	o.transparent = true
	o.imageOrder = 0
	require.NoError(t, run(context.Background(), o))
	_, data := decodeWAV(t, o.output)
	assert.Len(t, data, 40)
	assert.NoFileExists(t, o.stochasticOutput)
}

func TestRunCancelledWritesNothing(t *testing.T) {
	o := smallRoom(t.TempDir())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, run(ctx, o))
	assert.NoFileExists(t, o.output)
	assert.NoFileExists(t, o.stochasticOutput)
}

func TestRunRejectsBadScene(t *testing.T) {
	o := smallRoom(t.TempDir())
	o.receiver = mgl32.Vec3{2, 0, 0}
	assert.ErrorContains(t, run(context.Background(), o), "receiver")

	o = smallRoom(t.TempDir())
	o.room = mgl32.Vec3{1, 0, 1}
	assert.Error(t, run(context.Background(), o))
}

func TestTransparentExcitationIsBounded(t *testing.T) {
	long := make([]float32, 1000)
	long[0] = 1
	assert.Len(t, transparentExcitation(long, 2001), maxTransparentLength)
	assert.Len(t, transparentExcitation([]float32{1}, 40), 40)
}

func TestRunTransparentSourceDefaultSteps(t *testing.T) {
	o := smallRoom(t.TempDir())
	o.transparent = true
	o.steps = 0
	o.imageOrder = 0
	require.NoError(t, run(context.Background(), o))
	_, data := decodeWAV(t, o.output)
	assert.Len(t, data, 1+int(defaultTail.Seconds()*float64(o.sampleRate)))
}

func TestRunCancelledDuringStochasticRender(t *testing.T) {
	o := smallRoom(t.TempDir())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	o.onStep = func(step, total int) {
		if step == total-1 {
			cancel()
		}
	}
	require.NoError(t, run(ctx, o))
	assert.FileExists(t, o.output)
	assert.NoFileExists(t, o.stochasticOutput)
}

func TestRunWritesFieldSnapshots(t *testing.T) {
	o := smallRoom(t.TempDir())
	o.imageOrder = 0
	o.snapshot = filepath.Join(t.TempDir(), "field.f16")
	o.snapshotEvery = 10
	require.NoError(t, run(context.Background(), o))

	raw, err := os.ReadFile(o.snapshot)
	require.NoError(t, err)
	require.Greater(t, len(raw), 12)
	x := binary.LittleEndian.Uint32(raw[0:])
	y := binary.LittleEndian.Uint32(raw[4:])
	z := binary.LittleEndian.Uint32(raw[8:])
	size := int(x * y * z)
	frameBytes := 4 + 2*size
	require.Equal(t, 12+4*frameBytes, len(raw))

	for i, want := range []uint32{0, 10, 20, 30} {
		frame := raw[12+i*frameBytes:]
		assert.Equal(t, want, binary.LittleEndian.Uint32(frame))
	}

	halves := make([]uint16, size)
	for i := range halves {
		halves[i] = binary.LittleEndian.Uint16(raw[16+2*i:])
	}
	field := make([]float32, size)
	waveguide.DecodeHalf(field, halves)
	var peak float32
	nonzero := 0
	for _, v := range field {
		peak = max(peak, v)
		if v != 0 {
			nonzero++
		}
	}
	assert.Equal(t, float32(1), peak)
	assert.Equal(t, 1, nonzero)
}

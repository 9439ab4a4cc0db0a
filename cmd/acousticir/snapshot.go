package main

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"os"

	"acousticir/internal/mesh"
	"acousticir/internal/waveguide"
)

// snapshotWriter streams pressure fields to a file as binary16. The file
// starts with the lattice dimensions as three little-endian uint32 values;
// each frame is its step as a uint32 followed by one uint16 per node.
type snapshotWriter struct {
	f      *os.File
	w      *bufio.Writer
	every  int
	frames int
	err    error
}

func newSnapshotWriter(path string, dim mesh.Locator, every int) (*snapshotWriter, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	s := &snapshotWriter{f: f, w: bufio.NewWriter(f), every: max(every, 1)}
	header := [3]uint32{uint32(dim.X), uint32(dim.Y), uint32(dim.Z)}
	if err := binary.Write(s.w, binary.LittleEndian, header); err != nil {
		f.Close()
		return nil, fmt.Errorf("snapshot %q: %w", path, err)
	}
	return s, nil
}

// postprocessor returns the waveguide hook that feeds every s.every-th field
// through a HalfVisualiser into the file.
func (s *snapshotWriter) postprocessor() waveguide.Postprocessor {
	half := waveguide.NewHalfVisualiser(s.write)
	return waveguide.PostprocessorFunc(func(field []float32, step int) {
		if step%s.every == 0 {
			half.Process(field, step)
		}
	})
}

func (s *snapshotWriter) write(frame []uint16, step int) {
	if s.err != nil {
		return
	}
	if s.err = binary.Write(s.w, binary.LittleEndian, uint32(step)); s.err != nil {
		return
	}
	if s.err = binary.Write(s.w, binary.LittleEndian, frame); s.err == nil {
		s.frames++
	}
}

// Close flushes the file and reports the first write error, if any.
func (s *snapshotWriter) Close() error {
	return errors.Join(s.err, s.w.Flush(), s.f.Close())
}

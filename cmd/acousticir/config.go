package main

import "time"

// Defaults for the command line and fixed parameters of the render.
const (
	defaultWaveguideRate = 4000
	defaultOutputRate    = 44100
	defaultReflectance   = 0.9
	defaultImageOrder    = 12
	defaultTail          = 500 * time.Millisecond
	// Deconvolution cost grows with the fourth power of its length, so the
	// transparent source only covers the start of a run.
	maxTransparentLength = 256
	histogramRate        = 1000
	azimuthCells         = 16
	elevationCells       = 8
	progressUpdates      = 10
	pcm16MaxValue        = 32767
	pcm16MinValue        = -32768
	dcAlpha              = 0.001
)

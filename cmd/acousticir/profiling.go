package main

import (
	"errors"
	"fmt"
	"os"
	"runtime"
	"runtime/pprof"
	"sync"
)

// startProfiling begins a CPU profile at cpuPath and arranges for a heap
// profile to be written to heapPath when the returned stop function runs.
// Either path may be empty. stop is safe to call more than once.
func startProfiling(cpuPath, heapPath string) (func() error, error) {
	var cpu *os.File
	if cpuPath != "" {
		f, err := os.Create(cpuPath)
		if err != nil {
			return nil, fmt.Errorf("cpu profile: %w", err)
		}
		if err := pprof.StartCPUProfile(f); err != nil {
			f.Close()
			return nil, fmt.Errorf("cpu profile: %w", err)
		}
		cpu = f
	}

	var (
		once    sync.Once
		stopErr error
	)
	stop := func() error {
		once.Do(func() {
			if cpu != nil {
				pprof.StopCPUProfile()
				stopErr = cpu.Close()
			}
			if heapPath != "" {
				stopErr = errors.Join(stopErr, writeHeapProfile(heapPath))
			}
		})
		return stopErr
	}
	return stop, nil
}

func writeHeapProfile(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("heap profile: %w", err)
	}
	runtime.GC()
	if err := pprof.WriteHeapProfile(f); err != nil {
		f.Close()
		return fmt.Errorf("heap profile: %w", err)
	}
	return f.Close()
}

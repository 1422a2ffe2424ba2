package monitor

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Sampler reads host CPU and memory utilization. Implementations must never
// block; a failed read returns an error and the monitor writes a zero-value
// snapshot instead of propagating it.
type Sampler interface {
	Sample() (cpuPercent, memPercent float64, err error)
}

// procSampler reads /proc/stat and /proc/meminfo. CPU utilization is the
// busy share of the delta since the previous sample, so the first tick
// reports 0.
type procSampler struct {
	prevIdle  uint64
	prevTotal uint64
}

// NewProcSampler returns the Linux /proc-backed sampler. No resource-sampling
// library appears anywhere in the reference stack, so this stays on the
// standard library.
func NewProcSampler() Sampler {
	return &procSampler{}
}

func (s *procSampler) Sample() (float64, float64, error) {
	cpu, err := s.sampleCPU()
	if err != nil {
		return 0, 0, err
	}
	mem, err := sampleMemory()
	if err != nil {
		return 0, 0, err
	}
	return cpu, mem, nil
}

func (s *procSampler) sampleCPU() (float64, error) {
	data, err := os.ReadFile("/proc/stat")
	if err != nil {
		return 0, fmt.Errorf("read /proc/stat: %w", err)
	}
	line, _, _ := strings.Cut(string(data), "\n")
	fields := strings.Fields(line)
	if len(fields) < 5 || fields[0] != "cpu" {
		return 0, fmt.Errorf("unexpected /proc/stat format: %q", line)
	}

	var total, idle uint64
	for i, f := range fields[1:] {
		v, err := strconv.ParseUint(f, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("parse /proc/stat field %d: %w", i+1, err)
		}
		total += v
		// fields: user nice system idle iowait ...
		if i == 3 || i == 4 {
			idle += v
		}
	}

	dTotal := total - s.prevTotal
	dIdle := idle - s.prevIdle
	first := s.prevTotal == 0
	s.prevTotal = total
	s.prevIdle = idle

	if first || dTotal == 0 {
		return 0, nil
	}
	return 100 * float64(dTotal-dIdle) / float64(dTotal), nil
}

func sampleMemory() (float64, error) {
	data, err := os.ReadFile("/proc/meminfo")
	if err != nil {
		return 0, fmt.Errorf("read /proc/meminfo: %w", err)
	}

	var totalKB, availKB uint64
	for _, line := range strings.Split(string(data), "\n") {
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}
		v, err := strconv.ParseUint(fields[1], 10, 64)
		if err != nil {
			continue
		}
		switch fields[0] {
		case "MemTotal:":
			totalKB = v
		case "MemAvailable:":
			availKB = v
		}
	}
	if totalKB == 0 {
		return 0, fmt.Errorf("MemTotal missing in /proc/meminfo")
	}
	return 100 * float64(totalKB-availKB) / float64(totalKB), nil
}

// Package monitor samples host CPU and memory on a fixed tick, writes the
// resource snapshot document, and raises operator-visible warnings when a
// threshold is exceeded. It has no control authority: it only feeds data to
// the confidence scorer and the logs.
package monitor

import (
	"context"
	"fmt"
	"log"
	"path/filepath"
	"strings"
	"time"

	"github.com/wardenhq/warden/internal/model"
	"github.com/wardenhq/warden/internal/store"
)

type LogLevel int

const (
	LogLevelDebug LogLevel = iota
	LogLevelInfo
	LogLevelWarn
	LogLevelError
)

type Monitor struct {
	stateDir     string
	interval     time.Duration
	cpuThreshold float64
	memThreshold float64
	sampler      Sampler
	logger       *log.Logger
	logLevel     LogLevel
}

func New(stateDir string, interval time.Duration, cpuThreshold, memThreshold float64, logger *log.Logger, logLevel LogLevel) *Monitor {
	return &Monitor{
		stateDir:     stateDir,
		interval:     interval,
		cpuThreshold: cpuThreshold,
		memThreshold: memThreshold,
		sampler:      NewProcSampler(),
		logger:       logger,
		logLevel:     logLevel,
	}
}

// SetSampler overrides the /proc sampler for testing.
func (m *Monitor) SetSampler(s Sampler) {
	m.sampler = s
}

// Run samples on the configured interval until the context is cancelled. The
// first sample is taken immediately so the scorer has data before the first
// full interval elapses.
func (m *Monitor) Run(ctx context.Context) error {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	m.tick()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			m.tick()
		}
	}
}

// tick samples once and writes the snapshot. A sampling failure writes a
// zero-value snapshot rather than propagating an error.
func (m *Monitor) tick() {
	cpu, mem, err := m.sampler.Sample()
	if err != nil {
		m.log(LogLevelWarn, "sample failed, writing zero snapshot: %v", err)
		cpu, mem = 0, 0
	}

	snap := BuildSnapshot(cpu, mem, m.cpuThreshold, m.memThreshold)
	path := filepath.Join(m.stateDir, "state", store.ResourcesDoc)
	if err := store.AtomicWrite(path, snap); err != nil {
		m.log(LogLevelError, "write snapshot: %v", err)
		return
	}

	if snap.Overall == "warning" {
		m.log(LogLevelWarn, "%s", snap.Warning)
	} else {
		m.log(LogLevelDebug, "resources ok cpu=%.1f%% mem=%.1f%%", cpu, mem)
	}
}

// BuildSnapshot derives per-metric and overall status from raw percentages.
// Pure, so the warning composition is directly testable.
func BuildSnapshot(cpu, mem, cpuThreshold, memThreshold float64) model.ResourceSnapshot {
	snap := model.ResourceSnapshot{
		SchemaVersion: 1,
		FileType:      "resource_snapshot",
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
		CPUPercent:    cpu,
		MemPercent:    mem,
		CPUThreshold:  cpuThreshold,
		MemThreshold:  memThreshold,
		CPUStatus:     "ok",
		MemStatus:     "ok",
		Overall:       "ok",
	}

	var high []string
	if cpu > cpuThreshold {
		snap.CPUStatus = "high"
		high = append(high, fmt.Sprintf("CPU %.1f%% exceeds %.0f%%", cpu, cpuThreshold))
	}
	if mem > memThreshold {
		snap.MemStatus = "high"
		high = append(high, fmt.Sprintf("memory %.1f%% exceeds %.0f%%", mem, memThreshold))
	}
	if len(high) > 0 {
		snap.Overall = "warning"
		snap.Warning = "resource warning: " + strings.Join(high, ", ")
	}
	return snap
}

// LoadSnapshot reads the last written snapshot. A missing document returns a
// zero-value snapshot ("no data yet").
func LoadSnapshot(stateDir string) model.ResourceSnapshot {
	var snap model.ResourceSnapshot
	path := filepath.Join(stateDir, "state", store.ResourcesDoc)
	if err := store.Load(path, &snap); err != nil {
		return model.ResourceSnapshot{SchemaVersion: 1, FileType: "resource_snapshot"}
	}
	return snap
}

func (m *Monitor) log(level LogLevel, format string, args ...any) {
	if level < m.logLevel {
		return
	}
	levelStr := "INFO"
	switch level {
	case LogLevelDebug:
		levelStr = "DEBUG"
	case LogLevelWarn:
		levelStr = "WARN"
	case LogLevelError:
		levelStr = "ERROR"
	}
	msg := fmt.Sprintf(format, args...)
	m.logger.Printf("%s %s monitor: %s", time.Now().Format(time.RFC3339), levelStr, msg)
}

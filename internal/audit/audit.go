// Package audit keeps an append-only JSONL trail of the loop's decisions:
// confidence scores, debate verdicts, routes, and terminal transitions.
// The trail answers "why did it do that" after the per-task state documents
// have been overwritten.
package audit

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

const (
	defaultMaxSize = 10 * 1024 * 1024
	archiveDir     = "archive"
)

// Entry is one recorded decision.
type Entry struct {
	Timestamp string         `json:"timestamp"`
	Kind      string         `json:"kind"`
	TaskID    string         `json:"task_id,omitempty"`
	Detail    map[string]any `json:"detail,omitempty"`
}

// Decision kinds.
const (
	KindConfidence = "confidence"
	KindDebate     = "debate"
	KindRoute      = "route"
	KindTerminal   = "terminal"
)

// Trail is an append-only, size-rotated JSONL log.
type Trail struct {
	mu      sync.Mutex
	file    *os.File
	path    string
	size    int64
	maxSize int64
}

// Open creates or appends to the trail under <stateDir>/audit/.
func Open(stateDir string) (*Trail, error) {
	path := filepath.Join(stateDir, "audit", "decisions.jsonl")
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create audit dir: %w", err)
	}

	t := &Trail{path: path, maxSize: defaultMaxSize}
	if err := t.open(); err != nil {
		return nil, err
	}
	return t, nil
}

func (t *Trail) open() error {
	file, err := os.OpenFile(t.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open audit log: %w", err)
	}
	stat, err := file.Stat()
	if err != nil {
		file.Close()
		return fmt.Errorf("stat audit log: %w", err)
	}
	t.file = file
	t.size = stat.Size()
	return nil
}

// Record appends one entry. A nil Trail is a no-op so callers can run
// without an audit trail when opening it failed.
func (t *Trail) Record(kind, taskID string, detail map[string]any) error {
	if t == nil {
		return nil
	}

	entry := Entry{
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Kind:      kind,
		TaskID:    taskID,
		Detail:    detail,
	}
	line, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal audit entry: %w", err)
	}
	line = append(line, '\n')

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.size+int64(len(line)) > t.maxSize {
		if err := t.rotate(); err != nil {
			return err
		}
	}

	n, err := t.file.Write(line)
	t.size += int64(n)
	if err != nil {
		return fmt.Errorf("append audit entry: %w", err)
	}
	return nil
}

// rotate moves the current file into audit/archive/ and reopens fresh.
func (t *Trail) rotate() error {
	if err := t.file.Close(); err != nil {
		return fmt.Errorf("close for rotation: %w", err)
	}

	dir := filepath.Join(filepath.Dir(t.path), archiveDir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create archive dir: %w", err)
	}
	archived := filepath.Join(dir, fmt.Sprintf("decisions.%d.jsonl", time.Now().UnixNano()))
	if err := os.Rename(t.path, archived); err != nil {
		return fmt.Errorf("archive audit log: %w", err)
	}
	return t.open()
}

// Close flushes and closes the trail.
func (t *Trail) Close() error {
	if t == nil {
		return nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.file.Close()
}

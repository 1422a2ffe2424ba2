// Package intake watches the tasks/ drop directory for YAML task files and
// feeds them into the queue. Files are consumed on enqueue; unreadable files
// are quarantined so a bad drop never wedges the watcher.
package intake

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	yamlv3 "gopkg.in/yaml.v3"

	"github.com/wardenhq/warden/internal/model"
	"github.com/wardenhq/warden/internal/queue"
	"github.com/wardenhq/warden/internal/store"
)

type LogLevel int

const (
	LogLevelDebug LogLevel = iota
	LogLevelInfo
	LogLevelWarn
	LogLevelError
)

const debounce = 500 * time.Millisecond

// taskFile is the on-disk shape of a drop file: either a single task document
// or a tasks list.
type taskFile struct {
	Tasks []model.Task `yaml:"tasks"`
}

// Watcher tails the tasks/ directory with fsnotify and a periodic rescan.
// fsnotify provides low latency; the rescan catches events lost across
// restarts or dropped by the kernel.
type Watcher struct {
	stateDir    string
	queue       *queue.Queue
	rescanEvery time.Duration
	logger      *log.Logger
	logLevel    LogLevel

	debounceMu    sync.Mutex
	debounceTimer *time.Timer
	scanMu        sync.Mutex
}

func NewWatcher(stateDir string, q *queue.Queue, rescanEvery time.Duration, logger *log.Logger, logLevel LogLevel) *Watcher {
	return &Watcher{
		stateDir:    stateDir,
		queue:       q,
		rescanEvery: rescanEvery,
		logger:      logger,
		logLevel:    logLevel,
	}
}

func (w *Watcher) tasksDir() string {
	return filepath.Join(w.stateDir, "tasks")
}

// Run watches until the context is cancelled. It scans once at startup so
// files dropped while the loop was down are picked up immediately.
func (w *Watcher) Run(ctx context.Context) error {
	if err := os.MkdirAll(w.tasksDir(), 0o755); err != nil {
		return fmt.Errorf("create tasks dir: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create fsnotify watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(w.tasksDir()); err != nil {
		return fmt.Errorf("watch %s: %w", w.tasksDir(), err)
	}

	w.Scan()

	ticker := time.NewTicker(w.rescanEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) {
				w.log(LogLevelDebug, "fsnotify event=%s file=%s", event.Op, event.Name)
				w.debounceScan()
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			w.log(LogLevelError, "fsnotify error=%v", err)
		case <-ticker.C:
			w.Scan()
		}
	}
}

// debounceScan coalesces bursts of file events into a single scan.
func (w *Watcher) debounceScan() {
	w.debounceMu.Lock()
	defer w.debounceMu.Unlock()

	if w.debounceTimer != nil {
		w.debounceTimer.Stop()
	}
	w.debounceTimer = time.AfterFunc(debounce, func() {
		w.log(LogLevelDebug, "debounced_scan")
		w.Scan()
	})
}

// Scan ingests every YAML file currently in the drop directory. Each file is
// removed after its tasks are enqueued, or quarantined if it cannot be
// parsed. Returns the number of tasks enqueued.
func (w *Watcher) Scan() int {
	w.scanMu.Lock()
	defer w.scanMu.Unlock()

	entries, err := os.ReadDir(w.tasksDir())
	if err != nil {
		if !os.IsNotExist(err) {
			w.log(LogLevelError, "read tasks dir: %v", err)
		}
		return 0
	}

	enqueued := 0
	for _, entry := range entries {
		if entry.IsDir() || !isTaskFile(entry.Name()) {
			continue
		}
		path := filepath.Join(w.tasksDir(), entry.Name())
		n, err := w.ingestFile(path)
		if err != nil {
			w.log(LogLevelWarn, "quarantine %s: %v", entry.Name(), err)
			if qErr := store.Quarantine(w.stateDir, path); qErr != nil {
				w.log(LogLevelError, "quarantine failed for %s: %v", entry.Name(), qErr)
			}
			continue
		}
		enqueued += n
	}
	return enqueued
}

func (w *Watcher) ingestFile(path string) (int, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("read: %w", err)
	}

	tasks, err := ParseTasks(content)
	if err != nil {
		return 0, err
	}

	for i := range tasks {
		if err := w.queue.Enqueue(tasks[i]); err != nil {
			return 0, fmt.Errorf("enqueue: %w", err)
		}
		w.log(LogLevelInfo, "enqueued type=%s priority=%d from=%s",
			tasks[i].Type, tasks[i].Priority, filepath.Base(path))
	}

	if err := os.Remove(path); err != nil {
		w.log(LogLevelWarn, "remove consumed file %s: %v", path, err)
	}
	return len(tasks), nil
}

// ParseTasks decodes a drop file: a tasks list, or a single task document.
func ParseTasks(content []byte) ([]model.Task, error) {
	var file taskFile
	if err := yamlv3.Unmarshal(content, &file); err == nil && len(file.Tasks) > 0 {
		return validateTasks(file.Tasks)
	}

	var single model.Task
	if err := yamlv3.Unmarshal(content, &single); err != nil {
		return nil, fmt.Errorf("parse yaml: %w", err)
	}
	return validateTasks([]model.Task{single})
}

func validateTasks(tasks []model.Task) ([]model.Task, error) {
	for i := range tasks {
		if strings.TrimSpace(tasks[i].Type) == "" {
			return nil, fmt.Errorf("task %d: missing type", i)
		}
		if tasks[i].Priority < 0 || tasks[i].Priority > 10 {
			return nil, fmt.Errorf("task %d: priority %d out of range", i, tasks[i].Priority)
		}
	}
	return tasks, nil
}

func isTaskFile(name string) bool {
	if strings.HasPrefix(name, ".") {
		return false
	}
	ext := filepath.Ext(name)
	return ext == ".yaml" || ext == ".yml"
}

func (w *Watcher) log(level LogLevel, format string, args ...any) {
	if level < w.logLevel {
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
	w.logger.Printf("%s %s intake: %s", time.Now().Format(time.RFC3339), levelStr, msg)
}

// Package queue implements the durable task queue: priority-ordered
// insertion, partition transitions, bounded retention of terminal entries,
// and dead-lettering. All five partitions live in one JSON document so every
// mutation is a single atomic write and a reader can never observe a task in
// two partitions, even under a crash between steps.
package queue

import (
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/wardenhq/warden/internal/lock"
	"github.com/wardenhq/warden/internal/model"
	"github.com/wardenhq/warden/internal/store"
	yamlv3 "gopkg.in/yaml.v3"
)

// Retention caps for terminal partitions, evicted oldest-first.
const (
	MaxCompletedRetained = 100
	MaxFailedRetained    = 50
)

// ErrEmpty is returned by Dequeue when no eligible pending task exists.
var ErrEmpty = errors.New("queue empty")

// ErrNotFound is returned when a task id is not in the expected partition.
var ErrNotFound = errors.New("task not found")

type LogLevel int

const (
	LogLevelDebug LogLevel = iota
	LogLevelInfo
	LogLevelWarn
	LogLevelError
)

// Queue is the task queue. The orchestrator loop, the intake watcher, and the
// control-socket handlers all call it, so every exported method holds mu
// across both the in-memory mutation and the persist.
type Queue struct {
	stateDir string
	lockMap  *lock.MutexMap
	logger   *log.Logger
	logLevel LogLevel

	mu  sync.Mutex
	doc *model.QueueDocument
}

// New loads the queue document from the state directory. A missing document
// starts empty; an unreadable or corrupt document is quarantined and treated
// as empty with a recoverable-data-loss warning, never a fatal error.
func New(stateDir string, lockMap *lock.MutexMap, logger *log.Logger, logLevel LogLevel) *Queue {
	q := &Queue{
		stateDir: stateDir,
		lockMap:  lockMap,
		logger:   logger,
		logLevel: logLevel,
	}
	q.doc = q.load()
	return q
}

func (q *Queue) docPath() string {
	return filepath.Join(q.stateDir, "state", store.QueueDoc)
}

func (q *Queue) load() *model.QueueDocument {
	doc := model.NewQueueDocument()
	path := q.docPath()
	err := store.Load(path, doc)
	if err == nil {
		return doc
	}
	if os.IsNotExist(err) {
		return model.NewQueueDocument()
	}
	q.log(LogLevelWarn, "queue document unreadable, recoverable data loss: %v", err)
	if qerr := store.Quarantine(q.stateDir, path); qerr != nil {
		q.log(LogLevelError, "quarantine queue document: %v", qerr)
	}
	return model.NewQueueDocument()
}

func (q *Queue) persist() error {
	q.lockMap.Lock("queue")
	defer q.lockMap.Unlock("queue")
	return store.AtomicWrite(q.docPath(), q.doc)
}

// Enqueue inserts a task into the pending partition in descending-priority
// order. Ties keep arrival order (stable insert).
func (q *Queue) Enqueue(task model.Task) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if task.ID == "" {
		id, err := model.GenerateID(model.IDTypeTask)
		if err != nil {
			return fmt.Errorf("generate task id: %w", err)
		}
		task.ID = id
	}
	now := time.Now().UTC().Format(time.RFC3339)
	if task.CreatedAt == "" {
		task.CreatedAt = now
	}
	task.UpdatedAt = now
	task.Status = model.StatusPending

	idx := len(q.doc.Pending)
	for i, t := range q.doc.Pending {
		if t.Priority < task.Priority {
			idx = i
			break
		}
	}
	q.doc.Pending = append(q.doc.Pending, model.Task{})
	copy(q.doc.Pending[idx+1:], q.doc.Pending[idx:])
	q.doc.Pending[idx] = task

	q.log(LogLevelInfo, "enqueue task=%s type=%s priority=%d", task.ID, task.Type, task.Priority)
	return q.persist()
}

// Dequeue removes the highest-priority pending task whose dependencies are
// satisfied, moves it to in_progress, and returns it. A dependency is
// satisfied when the dependency task has completed or when no task with that
// id is known (absent ids are treated as already satisfied). Tasks with
// unsatisfied dependencies are skipped until satisfied.
func (q *Queue) Dequeue() (model.Task, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for i := range q.doc.Pending {
		if !q.depsSatisfied(&q.doc.Pending[i]) {
			q.log(LogLevelDebug, "task_blocked task=%s deps=%s",
				q.doc.Pending[i].ID, strings.Join(q.doc.Pending[i].DependsOn, ","))
			continue
		}
		task := q.doc.Pending[i]
		task.Status = model.StatusInProgress
		task.Attempts++
		task.UpdatedAt = time.Now().UTC().Format(time.RFC3339)

		// Destination before source removal; both land in one atomic write.
		q.doc.InProgress = append(q.doc.InProgress, task)
		q.doc.Pending = append(q.doc.Pending[:i], q.doc.Pending[i+1:]...)

		if err := q.persist(); err != nil {
			return model.Task{}, err
		}
		q.log(LogLevelInfo, "dequeue task=%s type=%s priority=%d attempt=%d",
			task.ID, task.Type, task.Priority, task.Attempts)
		return task, nil
	}
	return model.Task{}, ErrEmpty
}

func (q *Queue) depsSatisfied(task *model.Task) bool {
	for _, dep := range task.DependsOn {
		known, completed := q.lookupDependency(dep)
		if known && !completed {
			return false
		}
	}
	return true
}

// lookupDependency reports whether a task id is known to any partition and
// whether it has completed.
func (q *Queue) lookupDependency(id string) (known bool, completed bool) {
	for _, t := range q.doc.Completed {
		if t.ID == id {
			return true, true
		}
	}
	for _, part := range [][]model.Task{q.doc.Pending, q.doc.InProgress, q.doc.Failed, q.doc.DeadLetter} {
		for _, t := range part {
			if t.ID == id {
				return true, false
			}
		}
	}
	return false, false
}

// MarkCompleted moves an in-progress task to the completed partition,
// recording the agent-reported result, then trims retention overflow.
func (q *Queue) MarkCompleted(id string, success bool) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	task, err := q.take(&q.doc.InProgress, id)
	if err != nil {
		return err
	}
	if err := model.ValidateQueueTransition(task.Status, model.StatusCompleted); err != nil {
		return err
	}
	task.Status = model.StatusCompleted
	task.Success = success
	task.UpdatedAt = time.Now().UTC().Format(time.RFC3339)
	q.doc.Completed = append(q.doc.Completed, *task)
	q.evictOverflow()
	q.log(LogLevelInfo, "completed task=%s success=%t", id, success)
	return q.persist()
}

// MarkFailed moves a task to the failed partition with its last error. The
// task may come from in_progress (execution failure) or pending (verification
// rejection, where the task never executed and is surfaced for human input).
func (q *Queue) MarkFailed(id string, lastError string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	task, err := q.take(&q.doc.InProgress, id)
	if errors.Is(err, ErrNotFound) {
		task, err = q.take(&q.doc.Pending, id)
	}
	if err != nil {
		return err
	}
	if err := model.ValidateQueueTransition(task.Status, model.StatusFailed); err != nil {
		return err
	}
	task.Status = model.StatusFailed
	task.Success = false
	task.LastError = &lastError
	task.UpdatedAt = time.Now().UTC().Format(time.RFC3339)
	q.doc.Failed = append(q.doc.Failed, *task)
	q.evictOverflow()
	q.log(LogLevelWarn, "failed task=%s error=%s", id, lastError)
	return q.persist()
}

// Requeue returns an in-progress task to pending after a failed run so it
// can be rescored and retried. Priority ordering is preserved.
func (q *Queue) Requeue(id string, lastError string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	task, err := q.take(&q.doc.InProgress, id)
	if err != nil {
		return err
	}
	if err := model.ValidateQueueTransition(task.Status, model.StatusPending); err != nil {
		return err
	}
	task.Status = model.StatusPending
	if lastError != "" {
		task.LastError = &lastError
	}
	task.UpdatedAt = time.Now().UTC().Format(time.RFC3339)

	idx := len(q.doc.Pending)
	for i := range q.doc.Pending {
		if q.doc.Pending[i].Priority < task.Priority {
			idx = i
			break
		}
	}
	q.doc.Pending = append(q.doc.Pending, model.Task{})
	copy(q.doc.Pending[idx+1:], q.doc.Pending[idx:])
	q.doc.Pending[idx] = *task
	q.log(LogLevelInfo, "requeued task=%s attempts=%d", id, task.Attempts)
	return q.persist()
}

// DeadLetter moves a failed or pending task to the dead-letter partition and
// archives it to dead_letters/ for offline inspection.
func (q *Queue) DeadLetter(id string, reason string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	task, err := q.take(&q.doc.Failed, id)
	if errors.Is(err, ErrNotFound) {
		task, err = q.take(&q.doc.Pending, id)
	}
	if err != nil {
		return err
	}
	if err := model.ValidateQueueTransition(task.Status, model.StatusDeadLetter); err != nil {
		return err
	}
	now := time.Now().UTC().Format(time.RFC3339)
	task.Status = model.StatusDeadLetter
	task.DeadLetteredAt = &now
	task.DeadLetterReason = &reason
	task.UpdatedAt = now
	q.doc.DeadLetter = append(q.doc.DeadLetter, *task)

	if err := q.archiveDeadLetter(task, reason); err != nil {
		q.log(LogLevelError, "archive_dead_letter task=%s error=%v", id, err)
	}
	q.log(LogLevelWarn, "dead_letter task=%s reason=%s", id, reason)
	return q.persist()
}

// archiveDeadLetter writes a standalone YAML archive entry. The task id is
// part of the filename to prevent same-second collisions.
func (q *Queue) archiveDeadLetter(task *model.Task, reason string) error {
	archiveDir := filepath.Join(q.stateDir, "dead_letters")
	if err := os.MkdirAll(archiveDir, 0755); err != nil {
		return fmt.Errorf("create dead_letters dir: %w", err)
	}

	type archiveEntry struct {
		SchemaVersion  int        `yaml:"schema_version"`
		FileType       string     `yaml:"file_type"`
		Entry          model.Task `yaml:"entry"`
		DeadLetteredAt string     `yaml:"dead_lettered_at"`
		Reason         string     `yaml:"reason"`
	}

	now := time.Now().UTC()
	archive := archiveEntry{
		SchemaVersion:  1,
		FileType:       "dead_letter",
		Entry:          *task,
		DeadLetteredAt: now.Format(time.RFC3339),
		Reason:         reason,
	}

	content, err := yamlv3.Marshal(archive)
	if err != nil {
		return fmt.Errorf("marshal archive: %w", err)
	}

	filename := fmt.Sprintf("%s_%s.yaml", now.Format("20060102T150405Z"), task.ID)
	return os.WriteFile(filepath.Join(archiveDir, filename), content, 0644)
}

// ReconcileInProgress requeues tasks left in_progress by a crash or
// interrupt. Called once at startup before the loop begins.
func (q *Queue) ReconcileInProgress() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.doc.InProgress) == 0 {
		return nil
	}
	now := time.Now().UTC().Format(time.RFC3339)
	for i := range q.doc.InProgress {
		t := q.doc.InProgress[i]
		t.Status = model.StatusPending
		t.UpdatedAt = now
		q.log(LogLevelWarn, "reconcile requeue task=%s (left in_progress)", t.ID)
		// Re-insert preserving priority order.
		idx := len(q.doc.Pending)
		for j, p := range q.doc.Pending {
			if p.Priority < t.Priority {
				idx = j
				break
			}
		}
		q.doc.Pending = append(q.doc.Pending, model.Task{})
		copy(q.doc.Pending[idx+1:], q.doc.Pending[idx:])
		q.doc.Pending[idx] = t
	}
	q.doc.InProgress = nil
	return q.persist()
}

// evictOverflow trims completed/failed partitions to their retention caps,
// oldest first. Entries are appended in completion order, so the head is
// oldest.
func (q *Queue) evictOverflow() {
	if n := len(q.doc.Completed) - MaxCompletedRetained; n > 0 {
		q.doc.Completed = append([]model.Task(nil), q.doc.Completed[n:]...)
		q.log(LogLevelDebug, "evicted %d completed entries", n)
	}
	if n := len(q.doc.Failed) - MaxFailedRetained; n > 0 {
		q.doc.Failed = append([]model.Task(nil), q.doc.Failed[n:]...)
		q.log(LogLevelDebug, "evicted %d failed entries", n)
	}
}

// History returns (successes, total) over completed tasks of the given type,
// feeding the historical_success confidence factor.
func (q *Queue) History(taskType string) (successes, total int) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for _, t := range q.doc.Completed {
		if t.Type != taskType {
			continue
		}
		total++
		if t.Success {
			successes++
		}
	}
	return successes, total
}

// Counts returns the partition sizes for the status document.
func (q *Queue) Counts() (pending, inProgress, completed, failed, deadLetter int) {
	q.mu.Lock()
	defer q.mu.Unlock()

	return len(q.doc.Pending), len(q.doc.InProgress), len(q.doc.Completed),
		len(q.doc.Failed), len(q.doc.DeadLetter)
}

// PendingLen reports how many tasks await dispatch.
func (q *Queue) PendingLen() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	return len(q.doc.Pending)
}

func (q *Queue) take(part *[]model.Task, id string) (*model.Task, error) {
	for i := range *part {
		if (*part)[i].ID == id {
			task := (*part)[i]
			*part = append((*part)[:i], (*part)[i+1:]...)
			return &task, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
}

func (q *Queue) log(level LogLevel, format string, args ...any) {
	if level < q.logLevel {
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
	q.logger.Printf("%s %s queue: %s", time.Now().Format(time.RFC3339), levelStr, msg)
}

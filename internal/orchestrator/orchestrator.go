// Package orchestrator composes the queue, scorer, verifier, runner, and
// pollers into the top-level control loop. Per iteration it pulls the next
// eligible task, scores confidence, optionally runs a debate, routes the
// task to a supervision mode, and hands it to the retry controller.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/wardenhq/warden/internal/audit"
	"github.com/wardenhq/warden/internal/config"
	"github.com/wardenhq/warden/internal/confidence"
	"github.com/wardenhq/warden/internal/dashboard"
	"github.com/wardenhq/warden/internal/debate"
	"github.com/wardenhq/warden/internal/intake"
	"github.com/wardenhq/warden/internal/lock"
	"github.com/wardenhq/warden/internal/model"
	"github.com/wardenhq/warden/internal/monitor"
	"github.com/wardenhq/warden/internal/queue"
	"github.com/wardenhq/warden/internal/runner"
	"github.com/wardenhq/warden/internal/store"
)

type LogLevel int

const (
	LogLevelDebug LogLevel = iota
	LogLevelInfo
	LogLevelWarn
	LogLevelError
)

// ParseLogLevel maps a config string to a level. Unknown strings mean info.
func ParseLogLevel(s string) LogLevel {
	switch s {
	case "debug":
		return LogLevelDebug
	case "warn":
		return LogLevelWarn
	case "error":
		return LogLevelError
	default:
		return LogLevelInfo
	}
}

// Routes a task can be sent down, by descending confidence tier.
const (
	RouteExecuteDirect     = "execute_direct"
	RouteExecuteWithReview = "execute_with_review"
	RouteSupervisorMode    = "supervisor_mode"
	RouteEscalate          = "escalate"
)

const (
	idleWait       = 10 * time.Second
	statusInterval = 5 * time.Second
)

// Loop is the top-level control loop.
type Loop struct {
	stateDir string
	cfg      config.Config
	logger   *log.Logger
	logLevel LogLevel

	lockMap    *lock.MutexMap
	queue      *queue.Queue
	scorer     *confidence.Scorer
	verifier   *debate.Verifier
	controller *runner.Controller
	monitor    *monitor.Monitor
	watcher    *intake.Watcher

	trail     *audit.Trail
	startedAt time.Time
	shutdown  context.CancelFunc
	idle      time.Duration
}

func New(cfg config.Config, logger *log.Logger) *Loop {
	level := ParseLogLevel(cfg.LogLevel)
	lockMap := lock.NewMutexMap()
	stateDir := cfg.StateDir

	q := queue.New(stateDir, lockMap, logger, queue.LogLevel(level))
	ctrl := runner.New(stateDir, runner.Config{
		MaxRetries:       cfg.MaxRetries,
		MaxIterations:    cfg.MaxIterations,
		BaseWait:         cfg.BaseWait(),
		MaxWait:          cfg.MaxWait(),
		Perpetual:        cfg.Perpetual,
		CompletionMarker: cfg.CompletionMarker,
		AgentCommand:     cfg.AgentCommand,
	}, lockMap, logger, runner.LogLevel(level))

	return &Loop{
		stateDir:   stateDir,
		cfg:        cfg,
		logger:     logger,
		logLevel:   level,
		lockMap:    lockMap,
		queue:      q,
		scorer:     confidence.New(cfg.MaxParallelAgents),
		verifier:   debate.New(),
		controller: ctrl,
		monitor: monitor.New(stateDir, cfg.ResourceCheckInterval(),
			cfg.CPUThresholdPercent, cfg.MemThresholdPercent, logger, monitor.LogLevel(level)),
		watcher:   intake.NewWatcher(stateDir, q, cfg.IntakeRescan(), logger, intake.LogLevel(level)),
		startedAt: time.Now(),
		idle:      idleWait,
	}
}

// Queue exposes the task queue for the IPC command surface.
func (l *Loop) Queue() *queue.Queue { return l.queue }

// Watcher exposes the intake watcher for the IPC command surface.
func (l *Loop) Watcher() *intake.Watcher { return l.watcher }

// Shutdown requests a graceful stop. Safe to call before Run; it becomes
// effective once the loop is running.
func (l *Loop) Shutdown() {
	if l.shutdown != nil {
		l.shutdown()
	}
}

// ExitCode maps a terminal reason to the process exit code.
func ExitCode(reason model.ExitReason) int {
	switch reason {
	case model.ReasonMaxRetries:
		return 1
	case model.ReasonInterrupted:
		return 130
	default:
		// Completion promise and max iterations are graceful stops.
		return 0
	}
}

// Run drives the loop until a terminal transition or context cancellation.
// The returned reason is always persisted in the run-state document first.
func (l *Loop) Run(ctx context.Context) (model.ExitReason, error) {
	if err := os.MkdirAll(filepath.Join(l.stateDir, "state"), 0o755); err != nil {
		return "", fmt.Errorf("create state dir: %w", err)
	}

	fileLock := lock.NewFileLock(filepath.Join(l.stateDir, "warden.lock"))
	if err := fileLock.TryLock(); err != nil {
		return "", fmt.Errorf("another control loop owns %s: %w", l.stateDir, err)
	}
	defer func() { _ = fileLock.Unlock() }()

	trail, err := audit.Open(l.stateDir)
	if err != nil {
		l.log(LogLevelWarn, "audit trail unavailable: %v", err)
	}
	l.trail = trail
	defer func() { _ = l.trail.Close() }()

	// Crash recovery: anything left in_progress by a previous run goes back
	// to pending before new work starts.
	if err := l.queue.ReconcileInProgress(); err != nil {
		l.log(LogLevelWarn, "reconcile in_progress: %v", err)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	l.shutdown = cancel

	srv := l.ipcServer()
	if err := srv.Start(); err != nil {
		return "", err
	}
	defer func() { _ = srv.Stop() }()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return swallowCancel(l.monitor.Run(gctx)) })
	g.Go(func() error { return swallowCancel(l.watcher.Run(gctx)) })
	g.Go(func() error { return swallowCancel(l.statusLoop(gctx)) })
	if l.cfg.DashboardAddr != "" {
		dash := dashboard.NewServer(l.stateDir, l.cfg.DashboardAddr, l.logger)
		g.Go(func() error { return swallowCancel(dash.Run(gctx)) })
	}

	var reason model.ExitReason
	g.Go(func() error {
		reason = l.runLoop(gctx)
		cancel()
		return nil
	})

	if err := g.Wait(); err != nil {
		return reason, err
	}
	l.writeStatus()
	return reason, nil
}

func swallowCancel(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// runLoop is the main iteration cycle. It returns the terminal reason; the
// controller has already persisted it by the time this returns.
func (l *Loop) runLoop(ctx context.Context) model.ExitReason {
	for {
		if ctx.Err() != nil {
			l.controller.Interrupt()
			return model.ReasonInterrupted
		}

		if l.controller.State().Iterations >= l.cfg.MaxIterations {
			res, _ := l.controller.Step(ctx, "", 0)
			return res.Reason
		}

		task, err := l.queue.Dequeue()
		if errors.Is(err, queue.ErrEmpty) {
			if l.cfg.Perpetual {
				l.enqueueMaintenance()
				continue
			}
			select {
			case <-ctx.Done():
				continue
			case <-time.After(l.idle):
			}
			continue
		}
		if err != nil {
			l.log(LogLevelError, "dequeue: %v", err)
			select {
			case <-ctx.Done():
			case <-time.After(l.idle):
			}
			continue
		}

		route, proceed := l.decide(task)
		if !proceed {
			// Never executed and never silently dropped: surfaced for human
			// input in the failed partition.
			if err := l.queue.MarkFailed(task.ID, "requires human review"); err != nil {
				l.log(LogLevelError, "mark failed task=%s: %v", task.ID, err)
			}
			continue
		}

		l.log(LogLevelInfo, "route task=%s type=%s route=%s", task.ID, task.Type, route)
		_ = l.trail.Record(audit.KindRoute, task.ID, map[string]any{"route": route})

		instruction := composeInstruction(task, route)
		timeout := time.Duration(task.TimeoutSec) * time.Second

		res, err := l.controller.Step(ctx, instruction, timeout)
		if err != nil {
			// Interrupted mid-run or mid-wait; the task stays in_progress and
			// startup reconciliation requeues it.
			l.controller.Interrupt()
			return model.ReasonInterrupted
		}

		switch res.Kind {
		case runner.StepTerminal:
			l.settleTerminal(task, res)
			_ = l.trail.Record(audit.KindTerminal, task.ID, map[string]any{"reason": string(res.Reason)})
			return res.Reason
		case runner.StepContinue:
			l.settleContinue(task, res)
		}
	}
}

// settleTerminal records the dequeued task's fate when the controller hit a
// terminal transition during its run.
func (l *Loop) settleTerminal(task model.Task, res runner.StepResult) {
	var err error
	switch res.Reason {
	case model.ReasonCompletionPromise:
		err = l.queue.MarkCompleted(task.ID, res.Success)
	case model.ReasonMaxRetries:
		err = l.queue.MarkFailed(task.ID, fmt.Sprintf("retry budget exhausted, last exit code %d", res.ExitCode))
	default:
		// Max iterations fired before the run started; reconciliation on the
		// next startup requeues the task.
	}
	if err != nil {
		l.log(LogLevelError, "settle task=%s: %v", task.ID, err)
	}
}

func (l *Loop) settleContinue(task model.Task, res runner.StepResult) {
	if res.ExitCode == 0 {
		if err := l.queue.MarkCompleted(task.ID, res.Success); err != nil {
			l.log(LogLevelError, "complete task=%s: %v", task.ID, err)
		}
		return
	}

	lastErr := fmt.Sprintf("exit code %d", res.ExitCode)
	if task.Attempts >= l.cfg.TaskMaxAttempts {
		if err := l.queue.MarkFailed(task.ID, lastErr); err != nil {
			l.log(LogLevelError, "fail task=%s: %v", task.ID, err)
			return
		}
		if err := l.queue.DeadLetter(task.ID, fmt.Sprintf("exceeded %d attempts", l.cfg.TaskMaxAttempts)); err != nil {
			l.log(LogLevelError, "dead letter task=%s: %v", task.ID, err)
		}
		return
	}
	if err := l.queue.Requeue(task.ID, lastErr); err != nil {
		l.log(LogLevelError, "requeue task=%s: %v", task.ID, err)
	}
}

// decide scores the task, runs the debate gate when the trigger policy
// fires, and maps the tier to a route. proceed=false means the task must not
// execute.
func (l *Loop) decide(task model.Task) (route string, proceed bool) {
	snap := monitor.LoadSnapshot(l.stateDir)
	successes, total := l.queue.History(task.Type)
	active := runner.ActiveAgents(l.stateDir)

	result := l.scorer.Calculate(task, snap, successes, total, active)
	result.ComputedAt = time.Now().UTC().Format(time.RFC3339)
	l.persistDoc(store.ConfidenceDoc, result)

	l.log(LogLevelInfo, "confidence task=%s score=%.4f tier=%s", task.ID, result.Confidence, result.Tier)
	_ = l.trail.Record(audit.KindConfidence, task.ID, map[string]any{
		"score": result.Confidence, "tier": string(result.Tier),
	})

	debated := false
	if debate.ShouldDebate(result, task.Type, l.cfg.DebateConfidenceThreshold) {
		debated = true
		dlog := l.verifier.Verify(task.Type, proposalContent(task), proposalContext(task), l.cfg.DebateMaxRounds)
		l.persistDoc(store.DebateDoc, dlog)

		_ = l.trail.Record(audit.KindDebate, task.ID, map[string]any{
			"verdict": string(debateVerdict(dlog)),
		})
		if dlog.Outcome == nil || dlog.Outcome.Verdict != model.VerdictVerified {
			l.log(LogLevelWarn, "debate blocked task=%s verdict=%s", task.ID, debateVerdict(dlog))
			return "", false
		}
		l.log(LogLevelInfo, "debate verified task=%s rounds=%d", task.ID, dlog.Outcome.RoundsCompleted)
	}

	switch result.Tier {
	case model.TierAutoApprove:
		route = RouteExecuteDirect
	case model.TierDirectReview:
		route = RouteExecuteWithReview
	case model.TierSupervisor:
		route = RouteSupervisorMode
	default:
		// Escalated tasks need human input even when the debate passed.
		return RouteEscalate, false
	}
	if debated {
		route += "+debate"
	}
	return route, true
}

func debateVerdict(dlog *model.DebateLog) model.DebateVerdict {
	if dlog.Outcome == nil {
		return model.VerdictEscalate
	}
	return dlog.Outcome.Verdict
}

func (l *Loop) enqueueMaintenance() {
	task := model.Task{
		Type:     "maintenance",
		Priority: 1,
		Goal:     "run repository maintenance: execute the test suite, fix failures, and clean up lint warnings",
	}
	if err := l.queue.Enqueue(task); err != nil {
		l.log(LogLevelError, "enqueue maintenance: %v", err)
	} else {
		l.log(LogLevelInfo, "queue empty, generated maintenance task")
	}
}

func (l *Loop) persistDoc(doc string, v any) {
	l.lockMap.Lock(doc)
	defer l.lockMap.Unlock(doc)
	if err := store.AtomicWrite(filepath.Join(l.stateDir, "state", doc), v); err != nil {
		l.log(LogLevelError, "persist %s: %v", doc, err)
	}
}

// statusLoop refreshes the status document for the dashboard and CLI.
func (l *Loop) statusLoop(ctx context.Context) error {
	ticker := time.NewTicker(statusInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			l.writeStatus()
		}
	}
}

func (l *Loop) writeStatus() {
	state := l.controller.State()
	pending, inProgress, completed, failed, deadLetter := l.queue.Counts()

	status := &model.LoopStatus{
		SchemaVersion: 1,
		FileType:      "loop_status",
		StartedAt:     l.startedAt.UTC().Format(time.RFC3339),
		UptimeSec:     int64(time.Since(l.startedAt).Seconds()),
		Iteration:     state.Iterations,
		Retries:       state.Retries,
		Status:        state.Status,
		Reason:        state.Reason,
		PendingCount:  pending,
		InProgress:    inProgress,
		Completed:     completed,
		Failed:        failed,
		DeadLetter:    deadLetter,
		UpdatedAt:     time.Now().UTC().Format(time.RFC3339),
	}
	l.persistDoc(store.StatusDoc, status)
}

func (l *Loop) log(level LogLevel, format string, args ...any) {
	if level < l.logLevel {
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
	l.logger.Printf("%s %s orchestrator: %s", time.Now().Format(time.RFC3339), levelStr, msg)
}

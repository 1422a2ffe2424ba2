// Package runner drives the supervised-subprocess loop: it invokes the
// coding agent, classifies each run by exit code and captured output,
// computes rate-limit-aware or exponential waits between failures, and
// persists run state before every wait so a crash resumes at the correct
// retry count.
package runner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/wardenhq/warden/internal/lock"
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

// Config holds the retry controller's knobs.
type Config struct {
	MaxRetries       int
	MaxIterations    int
	BaseWait         time.Duration
	MaxWait          time.Duration
	Perpetual        bool
	CompletionMarker string // empty means never auto-stop on completion text
	AgentCommand     string
}

// Invoker starts the supervised subprocess and consumes its event stream.
type Invoker interface {
	Invoke(ctx context.Context, instruction string) (exitCode int, stream StreamResult, err error)
}

// StepKind classifies the controller's decision after one iteration.
type StepKind int

const (
	StepContinue StepKind = iota
	StepTerminal
)

// StepResult is the outcome of one supervised iteration.
type StepResult struct {
	Kind        StepKind
	Reason      model.ExitReason // set when Kind == StepTerminal
	ExitCode    int
	Success     bool // exit 0 and no error-flagged result event
	ResultError bool
}

// Controller is the retry/backoff state machine. It is the sole writer of
// the run-state document.
type Controller struct {
	stateDir string
	cfg      Config
	invoker  Invoker
	consumer *StreamConsumer
	lockMap  *lock.MutexMap
	logger   *log.Logger
	logLevel LogLevel

	// mu guards state: Step's goroutine writes it while the status poller
	// and control-socket handlers read it through State.
	mu    sync.Mutex
	state *model.RunState

	jitter func() time.Duration
	now    func() time.Time
	sleep  func(ctx context.Context, d time.Duration) error
}

// New creates a controller, resuming any persisted run state so a restart
// continues at the prior retry and iteration counts.
func New(stateDir string, cfg Config, lockMap *lock.MutexMap, logger *log.Logger, logLevel LogLevel) *Controller {
	c := &Controller{
		stateDir: stateDir,
		cfg:      cfg,
		lockMap:  lockMap,
		logger:   logger,
		logLevel: logLevel,
		consumer: NewStreamConsumer(stateDir, lockMap, logger, logLevel),
		jitter:   Jitter,
		now:      time.Now,
	}
	c.invoker = &execInvoker{command: cfg.AgentCommand, consumer: c.consumer}
	c.sleep = c.visibleSleep
	c.state = c.loadState()
	return c
}

// SetInvoker overrides the subprocess invoker for testing.
func (c *Controller) SetInvoker(inv Invoker) { c.invoker = inv }

// SetJitter overrides the backoff jitter source for testing.
func (c *Controller) SetJitter(f func() time.Duration) { c.jitter = f }

// SetSleep overrides the incremental sleeper for testing.
func (c *Controller) SetSleep(f func(ctx context.Context, d time.Duration) error) { c.sleep = f }

// State returns a copy of the current run state (read-only use).
func (c *Controller) State() model.RunState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return *c.state
}

func (c *Controller) statePath() string {
	return filepath.Join(c.stateDir, "state", store.RunStateDoc)
}

func (c *Controller) loadState() *model.RunState {
	state := model.NewRunState(c.cfg.MaxRetries, c.cfg.MaxIterations)
	err := store.Load(c.statePath(), state)
	if err == nil {
		// Resume: counters survive, transient status does not.
		state.Status = model.RunStatusIdle
		state.MaxRetries = c.cfg.MaxRetries
		state.MaxIterations = c.cfg.MaxIterations
		c.log(LogLevelInfo, "resumed run state retries=%d iterations=%d", state.Retries, state.Iterations)
		return state
	}
	if !os.IsNotExist(err) {
		c.log(LogLevelWarn, "run state unreadable, starting fresh: %v", err)
	}
	state = model.NewRunState(c.cfg.MaxRetries, c.cfg.MaxIterations)
	state.StartedAt = c.now().UTC().Format(time.RFC3339)
	return state
}

// persist writes the run-state document. Callers hold c.mu so the marshal
// sees a consistent state.
func (c *Controller) persist() {
	c.lockMap.Lock("run_state")
	defer c.lockMap.Unlock("run_state")
	c.state.UpdatedAt = c.now().UTC().Format(time.RFC3339)
	if err := store.AtomicWrite(c.statePath(), c.state); err != nil {
		c.log(LogLevelError, "persist run state: %v", err)
	}
}

// Interrupt persists the interrupted status so the next startup can report
// why the loop stopped and resume counters intact.
func (c *Controller) Interrupt() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state.Status = model.RunStatusInterrupted
	c.state.Reason = model.ReasonInterrupted
	c.persist()
}

// Step runs one supervised iteration: bound check, subprocess run, outcome
// classification, and any required wait. Any wait happens inside Step, after
// run state is persisted, so the orchestrator simply sequences calls.
func (c *Controller) Step(ctx context.Context, instruction string, timeout time.Duration) (StepResult, error) {
	c.mu.Lock()
	if c.state.Iterations >= c.cfg.MaxIterations {
		c.mu.Unlock()
		c.terminal(model.ReasonMaxIterations)
		return StepResult{Kind: StepTerminal, Reason: model.ReasonMaxIterations}, nil
	}
	c.state.Iterations++
	c.state.Status = model.RunStatusRunning
	c.persist()
	c.mu.Unlock()

	runCtx := ctx
	var cancel context.CancelFunc
	if timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	c.consumer.MarkActive(1)
	exitCode, stream, err := c.invoker.Invoke(runCtx, instruction)
	c.consumer.MarkActive(-1)
	if err != nil {
		// Spawn failures and timeouts take the same path as nonzero exit.
		c.log(LogLevelWarn, "subprocess run error: %v", err)
		if exitCode == 0 {
			exitCode = -1
		}
	}
	c.mu.Lock()
	c.state.LastExitCode = exitCode
	c.mu.Unlock()

	if exitCode == 0 {
		return c.classifySuccess(stream), nil
	}
	return c.classifyFailure(ctx, stream)
}

func (c *Controller) classifySuccess(stream StreamResult) StepResult {
	success := !stream.ResultError

	// Perpetual mode loops past the completion marker; the marker only stops
	// a bounded run.
	if !c.cfg.Perpetual && c.cfg.CompletionMarker != "" && strings.Contains(stream.Log, c.cfg.CompletionMarker) {
		c.terminal(model.ReasonCompletionPromise)
		return StepResult{
			Kind:        StepTerminal,
			Reason:      model.ReasonCompletionPromise,
			Success:     success,
			ResultError: stream.ResultError,
		}
	}

	// Successful iteration: no backoff, only failures incur wait. The retry
	// counter is a monotonic run counter and advances here too.
	c.mu.Lock()
	c.state.Retries++
	c.state.Status = model.RunStatusIdle
	c.persist()
	retries, iterations := c.state.Retries, c.state.Iterations
	c.mu.Unlock()
	c.log(LogLevelInfo, "iteration ok exit=0 retries=%d iterations=%d", retries, iterations)
	return StepResult{Kind: StepContinue, Success: success, ResultError: stream.ResultError}
}

func (c *Controller) classifyFailure(ctx context.Context, stream StreamResult) (StepResult, error) {
	c.mu.Lock()
	exitCode := c.state.LastExitCode
	retries := c.state.Retries

	if retries+1 >= c.cfg.MaxRetries {
		c.state.Retries++
		c.mu.Unlock()
		c.terminal(model.ReasonMaxRetries)
		return StepResult{Kind: StepTerminal, Reason: model.ReasonMaxRetries, ExitCode: exitCode}, nil
	}
	c.mu.Unlock()

	var wait time.Duration
	if d, ok := ParseRateLimitReset(stream.Log, c.now()); ok {
		wait = d
		c.log(LogLevelWarn, "rate limited, waiting %s until provider reset", wait.Round(time.Second))
	} else {
		wait = Backoff(retries, c.cfg.BaseWait, c.cfg.MaxWait, c.jitter())
		c.log(LogLevelWarn, "run failed exit=%d, backing off %s (retry %d)",
			exitCode, wait.Round(time.Second), retries)
	}

	// Persist before the wait begins: a kill mid-wait resumes at this retry
	// count instead of double-penalizing or resetting backoff.
	c.mu.Lock()
	c.state.Status = model.RunStatusWaiting
	c.persist()
	c.mu.Unlock()

	if err := c.sleep(ctx, wait); err != nil {
		return StepResult{Kind: StepTerminal, Reason: model.ReasonInterrupted, ExitCode: exitCode}, err
	}

	c.mu.Lock()
	c.state.Retries++
	c.state.Status = model.RunStatusIdle
	c.persist()
	c.mu.Unlock()
	return StepResult{Kind: StepContinue, ExitCode: exitCode}, nil
}

func (c *Controller) terminal(reason model.ExitReason) {
	c.mu.Lock()
	c.state.Status = model.RunStatusTerminal
	c.state.Reason = reason
	c.persist()
	retries, iterations := c.state.Retries, c.state.Iterations
	c.mu.Unlock()
	c.log(LogLevelInfo, "terminal reason=%s retries=%d iterations=%d",
		reason, retries, iterations)
}

// visibleSleep sleeps in increments so elapsed/remaining time stays
// observable in the log, and returns early on context cancellation.
func (c *Controller) visibleSleep(ctx context.Context, total time.Duration) error {
	increment := 10 * time.Second
	if total > 30*time.Minute {
		increment = 60 * time.Second
	}

	remaining := total
	for remaining > 0 {
		step := increment
		if remaining < step {
			step = remaining
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(step):
		}
		remaining -= step
		if remaining > 0 {
			c.log(LogLevelInfo, "waiting, %s remaining", remaining.Round(time.Second))
		}
	}
	return nil
}

// execInvoker launches the agent CLI with the composed instruction string
// and feeds its combined output through the stream consumer.
type execInvoker struct {
	command  string
	consumer *StreamConsumer
}

func (e *execInvoker) Invoke(ctx context.Context, instruction string) (int, StreamResult, error) {
	cmd := exec.CommandContext(ctx, e.command, instruction)

	pr, pw := io.Pipe()
	cmd.Stdout = pw
	cmd.Stderr = pw

	if err := cmd.Start(); err != nil {
		pw.Close()
		pr.Close()
		return -1, StreamResult{}, fmt.Errorf("start %s: %w", e.command, err)
	}

	done := make(chan StreamResult, 1)
	go func() {
		done <- e.consumer.Consume(pr)
	}()

	waitErr := cmd.Wait()
	pw.Close()
	stream := <-done
	pr.Close()

	exitCode := 0
	if waitErr != nil {
		var exitErr *exec.ExitError
		if errors.As(waitErr, &exitErr) {
			exitCode = exitErr.ExitCode()
		} else {
			exitCode = -1
		}
		if ctx.Err() != nil {
			return exitCode, stream, fmt.Errorf("subprocess cancelled: %w", ctx.Err())
		}
		return exitCode, stream, nil
	}
	return exitCode, stream, nil
}

func (c *Controller) log(level LogLevel, format string, args ...any) {
	if level < c.logLevel {
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
	c.logger.Printf("%s %s runner: %s", time.Now().Format(time.RFC3339), levelStr, msg)
}

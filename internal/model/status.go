// Package model defines the data structures for Warden's queue entries,
// run state, resource snapshots, and verification records.
package model

import "fmt"

type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusDeadLetter Status = "dead_letter"
)

// RunStatus tracks the retry controller's state machine.
type RunStatus string

const (
	RunStatusIdle        RunStatus = "idle"
	RunStatusRunning     RunStatus = "running"
	RunStatusWaiting     RunStatus = "waiting"
	RunStatusTerminal    RunStatus = "terminal"
	RunStatusInterrupted RunStatus = "interrupted"
)

// ExitReason is the tagged loop-exit reason, persisted so "why did it stop"
// is answerable from durable state alone.
type ExitReason string

const (
	ReasonMaxIterations     ExitReason = "max_iterations_reached"
	ReasonCompletionPromise ExitReason = "completion_promise_fulfilled"
	ReasonMaxRetries        ExitReason = "failed"
	ReasonInterrupted       ExitReason = "interrupted"
)

var terminalStatuses = map[Status]bool{
	StatusCompleted:  true,
	StatusFailed:     true,
	StatusDeadLetter: true,
}

// Queue entry transitions: pending → in_progress → terminal.
// dead_letter only from pending or failed (retry budget exhausted before or
// after dispatch).
var validQueueTransitions = map[Status]map[Status]bool{
	StatusPending: {
		StatusInProgress: true,
		StatusFailed:     true, // verification rejection: task never executes
		StatusDeadLetter: true,
	},
	StatusInProgress: {
		StatusPending:   true, // interrupt reconciliation → back to pending
		StatusCompleted: true,
		StatusFailed:    true,
	},
	StatusFailed: {
		StatusDeadLetter: true,
	},
}

func IsTerminal(s Status) bool {
	return terminalStatuses[s]
}

// ValidateQueueTransition checks a partition move against the transition
// table. The table is authoritative: statuses with no outgoing edges
// (completed, dead_letter) have no entry.
func ValidateQueueTransition(from, to Status) error {
	allowed, ok := validQueueTransitions[from]
	if !ok {
		if IsTerminal(from) {
			return fmt.Errorf("cannot transition from terminal status %q", from)
		}
		return fmt.Errorf("unknown status %q", from)
	}
	if !allowed[to] {
		return fmt.Errorf("invalid queue transition: %q → %q", from, to)
	}
	return nil
}

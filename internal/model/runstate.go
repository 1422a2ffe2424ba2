package model

// RunState is the persisted bookkeeping record of the control loop's
// retry/iteration progress. It is written before every wait and on every
// transition so that a crash or kill during a wait resumes at the same retry
// count instead of resetting backoff or double-penalizing.
type RunState struct {
	SchemaVersion int        `json:"schema_version"`
	FileType      string     `json:"file_type"`
	Retries       int        `json:"retries"`
	Iterations    int        `json:"iterations"`
	LastExitCode  int        `json:"last_exit_code"`
	Status        RunStatus  `json:"status"`
	Reason        ExitReason `json:"reason,omitempty"`
	StartedAt     string     `json:"started_at"`
	UpdatedAt     string     `json:"updated_at"`
	MaxRetries    int        `json:"max_retries"`
	MaxIterations int        `json:"max_iterations"`
}

// NewRunState returns a fresh run state with schema metadata set.
func NewRunState(maxRetries, maxIterations int) *RunState {
	return &RunState{
		SchemaVersion: 1,
		FileType:      "run_state",
		Status:        RunStatusIdle,
		MaxRetries:    maxRetries,
		MaxIterations: maxIterations,
	}
}

// ResourceSnapshot is overwritten on each sampling tick. Missing or zero
// values mean "no data yet", never an error.
type ResourceSnapshot struct {
	SchemaVersion int     `json:"schema_version"`
	FileType      string  `json:"file_type"`
	Timestamp     string  `json:"timestamp"`
	CPUPercent    float64 `json:"cpu_percent"`
	MemPercent    float64 `json:"mem_percent"`
	CPUThreshold  float64 `json:"cpu_threshold"`
	MemThreshold  float64 `json:"mem_threshold"`
	CPUStatus     string  `json:"cpu_status"`
	MemStatus     string  `json:"mem_status"`
	Overall       string  `json:"overall"`
	Warning       string  `json:"warning,omitempty"`
}

// AgentEvent is one structured line from the supervised subprocess's event
// stream, recorded by the stream consumer into the agent-tracking document.
type AgentEvent struct {
	Type      string `json:"type"`
	Tool      string `json:"tool,omitempty"`
	Text      string `json:"text,omitempty"`
	IsError   bool   `json:"is_error,omitempty"`
	Timestamp string `json:"timestamp"`
}

// AgentRoster is the agent-tracking document. Active counts feed the
// resources confidence factor.
type AgentRoster struct {
	SchemaVersion int          `json:"schema_version"`
	FileType      string       `json:"file_type"`
	Active        int          `json:"active"`
	Events        []AgentEvent `json:"events"`
	UpdatedAt     string       `json:"updated_at"`
}

// LoopStatus is the human-readable status document refreshed by the
// background status poller for the dashboard and the status CLI command.
type LoopStatus struct {
	SchemaVersion int        `json:"schema_version"`
	FileType      string     `json:"file_type"`
	StartedAt     string     `json:"started_at"`
	UptimeSec     int64      `json:"uptime_sec"`
	Iteration     int        `json:"iteration"`
	Retries       int        `json:"retries"`
	Status        RunStatus  `json:"status"`
	Reason        ExitReason `json:"reason,omitempty"`
	PendingCount  int        `json:"pending_count"`
	InProgress    int        `json:"in_progress_count"`
	Completed     int        `json:"completed_count"`
	Failed        int        `json:"failed_count"`
	DeadLetter    int        `json:"dead_letter_count"`
	UpdatedAt     string     `json:"updated_at"`
}

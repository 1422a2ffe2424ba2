package model

// Task is a single unit of work handed to the supervised agent.
type Task struct {
	ID          string   `json:"id" yaml:"id"`
	Type        string   `json:"type" yaml:"type"`
	Priority    int      `json:"priority" yaml:"priority"`
	DependsOn   []string `json:"depends_on,omitempty" yaml:"depends_on,omitempty"`
	TimeoutSec  int      `json:"timeout_sec" yaml:"timeout_sec"`
	Goal        string   `json:"goal,omitempty" yaml:"goal,omitempty"`
	Constraints []string `json:"constraints,omitempty" yaml:"constraints,omitempty"`
	Target      string   `json:"target,omitempty" yaml:"target,omitempty"`
	Action      string   `json:"action,omitempty" yaml:"action,omitempty"`
	Description string   `json:"description,omitempty" yaml:"description,omitempty"`

	Status   Status `json:"status" yaml:"status"`
	Attempts int    `json:"attempts" yaml:"attempts"`
	// Success records the agent's reported result for a completed task. Exit
	// code 0 with an error-flagged result event yields a completed task with
	// Success=false; the scorer's history factor reads this, not the partition.
	Success          bool    `json:"success" yaml:"success"`
	LastError        *string `json:"last_error,omitempty" yaml:"last_error,omitempty"`
	DeadLetteredAt   *string `json:"dead_lettered_at,omitempty" yaml:"dead_lettered_at,omitempty"`
	DeadLetterReason *string `json:"dead_letter_reason,omitempty" yaml:"dead_letter_reason,omitempty"`
	CreatedAt        string  `json:"created_at" yaml:"created_at"`
	UpdatedAt        string  `json:"updated_at" yaml:"updated_at"`
}

// QueueDocument is the whole-document JSON form of the task queue. All five
// partitions live in one document so a single atomic write preserves the
// invariant that a task id appears in at most one partition.
type QueueDocument struct {
	SchemaVersion int    `json:"schema_version"`
	FileType      string `json:"file_type"`
	Pending       []Task `json:"pending"`
	InProgress    []Task `json:"in_progress"`
	Completed     []Task `json:"completed"`
	Failed        []Task `json:"failed"`
	DeadLetter    []Task `json:"dead_letter"`
}

// NewQueueDocument returns an empty queue document with schema metadata set.
func NewQueueDocument() *QueueDocument {
	return &QueueDocument{
		SchemaVersion: 1,
		FileType:      "queue",
	}
}

package model

// DebateProposal wraps a decision under review.
type DebateProposal struct {
	ID        string `json:"id"`
	Type      string `json:"type"`
	Content   string `json:"content"`
	Context   string `json:"context,omitempty"`
	CreatedAt string `json:"created_at"`
}

// Flaw is a single challenge point raised against a proposal.
type Flaw struct {
	Point    string `json:"point"`
	Severity string `json:"severity"`
	Valid    bool   `json:"valid"`
}

// Defense is the proponent side of one debate round.
type Defense struct {
	Strength  float64  `json:"strength"`
	Arguments []string `json:"arguments"`
	Addressed []string `json:"addressed,omitempty"`
}

// Challenge is the opponent side of one debate round.
type Challenge struct {
	Flaws        []Flaw `json:"flaws"`
	HasValidFlaw bool   `json:"has_valid_flaw"`
}

// DebateRound is one defense/challenge exchange.
type DebateRound struct {
	Round     int       `json:"round"`
	Defense   Defense   `json:"defense"`
	Challenge Challenge `json:"challenge"`
}

// DebateVerdict tags the caller-visible outcome of a debate.
type DebateVerdict string

const (
	VerdictVerified DebateVerdict = "verified"
	VerdictRejected DebateVerdict = "rejected"
	VerdictEscalate DebateVerdict = "escalate"
)

// DebateOutcome is attached once no valid flaw remains or the round cap is
// reached.
type DebateOutcome struct {
	Verdict         DebateVerdict `json:"verdict"`
	Verified        bool          `json:"verified"`
	Reason          string        `json:"reason"`
	RoundsCompleted int           `json:"rounds_completed"`
	UnresolvedFlaws []Flaw        `json:"unresolved_flaws,omitempty"`
}

// DebateLog is owned by exactly one proposal and accumulates its rounds. It
// is created per gated decision and overwritten after the decision completes.
type DebateLog struct {
	SchemaVersion int            `json:"schema_version"`
	FileType      string         `json:"file_type"`
	Proposal      DebateProposal `json:"proposal"`
	Rounds        []DebateRound  `json:"rounds"`
	Outcome       *DebateOutcome `json:"outcome,omitempty"`
}

package model

// Tier is the discrete supervision level assigned to a task.
type Tier string

const (
	TierAutoApprove  Tier = "auto_approve"
	TierDirectReview Tier = "direct_review"
	TierSupervisor   Tier = "supervisor"
	TierEscalate     Tier = "escalate"
)

// Factors holds the per-factor confidence breakdown, each in [0,1].
type Factors struct {
	RequirementClarity float64 `json:"requirement_clarity"`
	HistoricalSuccess  float64 `json:"historical_success"`
	Complexity         float64 `json:"complexity"`
	Resources          float64 `json:"resources"`
}

// Weights are the fixed factor weights. They sum to 1.0.
type Weights struct {
	RequirementClarity float64 `json:"requirement_clarity"`
	HistoricalSuccess  float64 `json:"historical_success"`
	Complexity         float64 `json:"complexity"`
	Resources          float64 `json:"resources"`
}

// DefaultWeights returns the fixed scoring weights.
func DefaultWeights() Weights {
	return Weights{
		RequirementClarity: 0.35,
		HistoricalSuccess:  0.25,
		Complexity:         0.25,
		Resources:          0.15,
	}
}

// ConfidenceResult is computed fresh per task and overwritten on the next
// computation; it is not a long-lived entity.
type ConfidenceResult struct {
	SchemaVersion int     `json:"schema_version"`
	FileType      string  `json:"file_type"`
	TaskID        string  `json:"task_id"`
	Confidence    float64 `json:"confidence"`
	Tier          Tier    `json:"tier"`
	Factors       Factors `json:"factors"`
	Weights       Weights `json:"weights"`
	ComputedAt    string  `json:"computed_at"`
}

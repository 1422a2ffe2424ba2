// Package confidence maps a task plus current system state to a confidence
// value in [0,1] and a discrete supervision tier. Scoring is a deterministic,
// auditable heuristic over structured task metadata.
package confidence

import (
	"strings"

	"github.com/wardenhq/warden/internal/model"
)

// TextScorer scores free text for requirement clarity. The keyword heuristic
// is the default; the interface keeps the strategy swappable without touching
// the control loop.
type TextScorer interface {
	// Score returns the clarity contribution of raw text in [0,1].
	Score(text string) float64
}

// ambiguityMarkers are the words that count against requirement clarity.
var ambiguityMarkers = []string{
	"maybe", "probably", "unclear", "possibly", "might", "unsure", "somehow",
}

const (
	ambiguityPenalty    = 0.15
	ambiguityPenaltyCap = 0.6
	payloadBonus        = 0.1
)

// keywordScorer is the default TextScorer: start at 1.0, subtract a fixed
// penalty per ambiguity-marker occurrence, capped.
type keywordScorer struct{}

func (keywordScorer) Score(text string) float64 {
	lower := strings.ToLower(text)
	count := 0
	for _, marker := range ambiguityMarkers {
		count += strings.Count(lower, marker)
	}
	penalty := ambiguityPenalty * float64(count)
	if penalty > ambiguityPenaltyCap {
		penalty = ambiguityPenaltyCap
	}
	return clamp(1.0 - penalty)
}

// Scorer computes confidence results. It is pure: identical inputs yield
// bit-identical results.
type Scorer struct {
	text      TextScorer
	weights   model.Weights
	maxAgents int
}

func New(maxAgents int) *Scorer {
	return &Scorer{
		text:      keywordScorer{},
		weights:   model.DefaultWeights(),
		maxAgents: maxAgents,
	}
}

// SetTextScorer swaps the clarity strategy.
func (s *Scorer) SetTextScorer(ts TextScorer) {
	s.text = ts
}

// Calculate scores a task against the latest resource snapshot and the
// completion history of its type. successes/total come from the queue's
// completed partition; activeAgents from the agent roster document.
func (s *Scorer) Calculate(task model.Task, snap model.ResourceSnapshot, successes, total, activeAgents int) model.ConfidenceResult {
	factors := model.Factors{
		RequirementClarity: s.requirementClarity(task),
		HistoricalSuccess:  historicalSuccess(successes, total),
		Complexity:         complexity(task),
		Resources:          s.resources(snap, activeAgents),
	}

	confidence := factors.RequirementClarity*s.weights.RequirementClarity +
		factors.HistoricalSuccess*s.weights.HistoricalSuccess +
		factors.Complexity*s.weights.Complexity +
		factors.Resources*s.weights.Resources

	return model.ConfidenceResult{
		SchemaVersion: 1,
		FileType:      "confidence_result",
		TaskID:        task.ID,
		Confidence:    confidence,
		Tier:          TierFor(confidence),
		Factors:       factors,
		Weights:       s.weights,
	}
}

// TierFor maps confidence to a supervision tier. The ladder uses inclusive
// lower bounds.
func TierFor(confidence float64) model.Tier {
	switch {
	case confidence >= 0.95:
		return model.TierAutoApprove
	case confidence >= 0.70:
		return model.TierDirectReview
	case confidence >= 0.40:
		return model.TierSupervisor
	default:
		return model.TierEscalate
	}
}

// requirementClarity scores the description for ambiguity, then credits the
// payload for each structured field it supplies (goal, constraints, target,
// action, up to +0.4).
func (s *Scorer) requirementClarity(task model.Task) float64 {
	score := s.text.Score(task.Description)
	if task.Goal != "" {
		score += payloadBonus
	}
	if len(task.Constraints) > 0 {
		score += payloadBonus
	}
	if task.Target != "" {
		score += payloadBonus
	}
	if task.Action != "" {
		score += payloadBonus
	}
	return clamp(score)
}

// historicalSuccess is the success ratio over completed tasks of the same
// type; neutral 0.6 when no history exists.
func historicalSuccess(successes, total int) float64 {
	if total == 0 {
		return 0.6
	}
	return clamp(float64(successes) / float64(total))
}

// complexity is inverse: higher means simpler.
func complexity(task model.Task) float64 {
	score := 0.8
	score -= 0.03 * float64(10-task.Priority)
	score -= 0.1 * float64(len(task.DependsOn))
	if task.TimeoutSec > 3600 {
		score -= 0.1
	}
	if task.TimeoutSec > 0 && task.TimeoutSec < 300 {
		score += 0.1
	}
	return clamp(score)
}

func (s *Scorer) resources(snap model.ResourceSnapshot, activeAgents int) float64 {
	score := 1.0

	switch {
	case snap.CPUPercent > 80:
		score -= 0.3
	case snap.CPUPercent > 60:
		score -= 0.1
	}
	switch {
	case snap.MemPercent > 80:
		score -= 0.3
	case snap.MemPercent > 60:
		score -= 0.1
	}

	if s.maxAgents > 0 {
		switch {
		case activeAgents >= s.maxAgents:
			score -= 0.4
		case float64(activeAgents) >= 0.7*float64(s.maxAgents):
			score -= 0.2
		}
	}
	return clamp(score)
}

func clamp(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

package confidence

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/wardenhq/warden/internal/model"
)

func TestTierFor_ExactBoundaries(t *testing.T) {
	tests := []struct {
		confidence float64
		want       model.Tier
	}{
		{0.95, model.TierAutoApprove},
		{0.9499, model.TierDirectReview},
		{0.70, model.TierDirectReview},
		{0.6999, model.TierSupervisor},
		{0.40, model.TierSupervisor},
		{0.3999, model.TierEscalate},
		{1.0, model.TierAutoApprove},
		{0.0, model.TierEscalate},
	}

	for _, tt := range tests {
		if got := TierFor(tt.confidence); got != tt.want {
			t.Errorf("TierFor(%v): got %s, want %s", tt.confidence, got, tt.want)
		}
	}
}

func TestRequirementClarity_AmbiguityPenalty(t *testing.T) {
	s := New(10)

	tests := []struct {
		name string
		task model.Task
		want float64
	}{
		{"clean description, no payload", model.Task{Description: "refactor the parser"}, 1.0},
		{"one marker", model.Task{Description: "maybe refactor the parser"}, 0.85},
		{"two markers", model.Task{Description: "maybe refactor, probably the parser"}, 0.70},
		{"penalty capped at 0.6", model.Task{
			Description: "maybe probably unclear possibly might unsure somehow",
		}, 0.4},
		{"full payload bonus", model.Task{
			Description: "refactor the parser",
			Goal:        "clean code",
			Constraints: []string{"no API changes"},
			Target:      "internal/parser",
			Action:      "refactor",
		}, 1.0}, // 1.0 + 0.4 clamped
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := s.requirementClarity(tt.task)
			assert.InDelta(t, tt.want, got, 1e-9)
		})
	}
}

func TestRequirementClarity_PayloadOffsetsAmbiguity(t *testing.T) {
	s := New(10)
	task := model.Task{
		Description: "maybe fix the thing, unclear scope",
		Goal:        "fix it",
		Action:      "fix",
	}
	// 1.0 - 0.30 + 0.20
	assert.InDelta(t, 0.90, s.requirementClarity(task), 1e-9)
}

func TestHistoricalSuccess(t *testing.T) {
	assert.InDelta(t, 0.6, historicalSuccess(0, 0), 1e-9, "no history is neutral")
	assert.InDelta(t, 1.0, historicalSuccess(5, 5), 1e-9)
	assert.InDelta(t, 0.5, historicalSuccess(2, 4), 1e-9)
	assert.InDelta(t, 0.0, historicalSuccess(0, 3), 1e-9)
}

func TestComplexity(t *testing.T) {
	tests := []struct {
		name string
		task model.Task
		want float64
	}{
		{"priority 10, no deps, mid timeout", model.Task{Priority: 10, TimeoutSec: 600}, 0.8},
		{"priority 5", model.Task{Priority: 5, TimeoutSec: 600}, 0.65},
		{"two dependencies", model.Task{Priority: 10, TimeoutSec: 600, DependsOn: []string{"a", "b"}}, 0.6},
		{"long timeout", model.Task{Priority: 10, TimeoutSec: 7200}, 0.7},
		{"short timeout", model.Task{Priority: 10, TimeoutSec: 60}, 0.9},
		{"floor at zero", model.Task{Priority: 0, TimeoutSec: 7200, DependsOn: []string{"a", "b", "c", "d"}}, 0.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, complexity(tt.task), 1e-9)
		})
	}
}

func TestResources(t *testing.T) {
	s := New(10)

	tests := []struct {
		name     string
		cpu, mem float64
		active   int
		want     float64
	}{
		{"all clear", 20, 20, 0, 1.0},
		{"cpu elevated", 65, 20, 0, 0.9},
		{"cpu high", 85, 20, 0, 0.7},
		{"both high", 85, 85, 0, 0.4},
		{"agents at 70% of max", 20, 20, 7, 0.8},
		{"agents at max", 20, 20, 10, 0.6},
		{"everything saturated", 90, 90, 10, 0.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			snap := model.ResourceSnapshot{CPUPercent: tt.cpu, MemPercent: tt.mem}
			assert.InDelta(t, tt.want, s.resources(snap, tt.active), 1e-9)
		})
	}
}

func TestCalculate_WeightedSum(t *testing.T) {
	s := New(10)
	task := model.Task{
		ID:          "t1",
		Type:        "lint",
		Priority:    10,
		TimeoutSec:  600,
		Description: "run the linter",
		Goal:        "clean lint",
		Action:      "lint",
	}
	snap := model.ResourceSnapshot{CPUPercent: 20, MemPercent: 20}

	result := s.Calculate(task, snap, 0, 0, 0)

	// clarity 1.0, history 0.6, complexity 0.8, resources 1.0
	want := 0.35*1.0 + 0.25*0.6 + 0.25*0.8 + 0.15*1.0
	assert.InDelta(t, want, result.Confidence, 1e-9)
	assert.Equal(t, model.TierDirectReview, result.Tier)
	assert.Equal(t, model.DefaultWeights(), result.Weights)
}

func TestCalculate_Idempotent(t *testing.T) {
	s := New(10)
	task := model.Task{
		ID: "t1", Type: "deploy", Priority: 7, TimeoutSec: 1200,
		Description: "deploy the service, maybe with canary",
		Goal:        "ship", DependsOn: []string{"build"},
	}
	snap := model.ResourceSnapshot{CPUPercent: 65, MemPercent: 82}

	first := s.Calculate(task, snap, 3, 5, 4)
	second := s.Calculate(task, snap, 3, 5, 4)
	assert.Equal(t, first, second, "identical inputs must yield bit-identical results")
}

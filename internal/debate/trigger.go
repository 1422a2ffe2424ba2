package debate

import (
	"strings"

	"github.com/wardenhq/warden/internal/model"
)

// criticalCategories always warrant a debate regardless of confidence.
var criticalCategories = map[string]bool{
	"security":       true,
	"deployment":     true,
	"database":       true,
	"infrastructure": true,
	"auth":           true,
}

// ShouldDebate is the caller-owned trigger policy: debate when confidence
// falls below the configured threshold, when the tier demands supervision, or
// when the task type is in the critical-category list. Any one condition
// suffices.
func ShouldDebate(result model.ConfidenceResult, taskType string, threshold float64) bool {
	if result.Confidence < threshold {
		return true
	}
	if result.Tier == model.TierSupervisor || result.Tier == model.TierEscalate {
		return true
	}
	return criticalCategories[strings.ToLower(taskType)]
}

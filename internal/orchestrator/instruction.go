package orchestrator

import (
	"fmt"
	"strings"

	"github.com/wardenhq/warden/internal/model"
)

// routePreambles set the supervision posture per route. The agent receives
// one composed natural-language instruction string.
var routePreambles = map[string]string{
	RouteExecuteDirect:     "Execute the following task.",
	RouteExecuteWithReview: "Execute the following task, then review your own changes before declaring it done.",
	RouteSupervisorMode:    "Execute the following task in small verified steps. After each step, check the result before continuing, and stop if anything looks wrong.",
}

// composeInstruction builds the single instruction string handed to the
// supervised subprocess.
func composeInstruction(task model.Task, route string) string {
	baseRoute := strings.TrimSuffix(route, "+debate")
	preamble, ok := routePreambles[baseRoute]
	if !ok {
		preamble = routePreambles[RouteSupervisorMode]
	}

	var b strings.Builder
	b.WriteString(preamble)
	b.WriteString("\n\n")
	b.WriteString(proposalContent(task))

	if strings.HasSuffix(route, "+debate") {
		b.WriteString("\n\nThis task passed an adversarial review; honor the stated constraints exactly.")
	}
	return b.String()
}

// proposalContent renders the task payload as the debate proposal body and
// the instruction core.
func proposalContent(task model.Task) string {
	var b strings.Builder
	if task.Goal != "" {
		fmt.Fprintf(&b, "Goal: %s\n", task.Goal)
	}
	if task.Action != "" {
		fmt.Fprintf(&b, "Action: %s\n", task.Action)
	}
	if task.Target != "" {
		fmt.Fprintf(&b, "Target: %s\n", task.Target)
	}
	if task.Description != "" {
		fmt.Fprintf(&b, "%s\n", task.Description)
	}
	for _, c := range task.Constraints {
		fmt.Fprintf(&b, "Constraint: %s\n", c)
	}
	if b.Len() == 0 {
		fmt.Fprintf(&b, "Task type: %s\n", task.Type)
	}
	return strings.TrimRight(b.String(), "\n")
}

// proposalContext gives the verifier the task's framing.
func proposalContext(task model.Task) string {
	return fmt.Sprintf("task %s type=%s priority=%d attempts=%d", task.ID, task.Type, task.Priority, task.Attempts)
}

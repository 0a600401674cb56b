package stagec

import (
	"fmt"
	"strings"

	"github.com/opsconductor/pipeline-core/internal/pipeline/catalog"
	"github.com/opsconductor/pipeline-core/internal/pipeline/types"
)

const planResponseSchema = `Respond with a single strict JSON object, no surrounding prose:
{
  "steps": [{
    "id": string,
    "name": string,
    "description": string,
    "tool": string,
    "inputs": object,
    "timeout_s": number,
    "retry_count": number,
    "depends_on": [string],
    "estimated_time_s": number,
    "destructive": boolean,
    "rollback_note": string
  }],
  "safety_checks": [string]
}
A step referencing "depends_on" must only name an earlier step's id. Every destructive step must either carry a non-empty rollback_note or explicitly state "no rollback feasible".`

// buildPlanningPrompt assembles Stage C's system prompt: one or more
// steps per selected tool, constrained by each tool's advertised input
// schema.
func buildPlanningPrompt(selection *types.Selection, cat *catalog.Catalog) string {
	var b strings.Builder
	b.WriteString("You are the planning stage of an infrastructure operations assistant. Turn the selected tools below into an ordered sequence of concrete steps.\n\n")
	b.WriteString("SELECTED TOOLS:\n")
	for _, t := range selection.SelectedTools {
		profile, ok := cat.ByName(t.ToolName)
		if !ok {
			continue
		}
		b.WriteString(fmt.Sprintf("- %s (pattern: %s): %s\n", profile.ToolName, t.PatternName, profile.Description))
		for _, cap := range profile.Capabilities {
			b.WriteString(fmt.Sprintf("    capability: %s — %s\n", cap.Name, cap.Description))
		}
	}
	b.WriteString(fmt.Sprintf("\nRisk level: %s. Requires approval: %t.\n", selection.Policy.RiskLevel, selection.Policy.RequiresApproval))
	b.WriteString("\nRESPONSE SCHEMA:\n")
	b.WriteString(planResponseSchema)
	return b.String()
}

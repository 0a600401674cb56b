package staged

import (
	"fmt"
	"strings"

	"github.com/opsconductor/pipeline-core/internal/pipeline/types"
)

// contextInsight is the structured data block handed to the LLM prompt
// so it can narrate without inventing facts.
type contextInsight struct {
	Sources         []string
	Insights        []string
	Recommendations []string
}

// analyzeFunc produces an intent-category-specific insight set.
type analyzeFunc func(selection *types.Selection, plan *types.Plan) contextInsight

// analysisPatterns dispatches by intent_category, mirroring the
// per-category analyzer table.
var analysisPatterns = map[string]analyzeFunc{
	"system_status":          analyzeSystemStatus,
	"service_management":     analyzeServiceManagement,
	"troubleshooting":        analyzeTroubleshooting,
	"configuration_management": analyzeConfiguration,
	"monitoring":              analyzeMonitoring,
	"log_analysis":            analyzeLogAnalysis,
}

// analyzeRequest dispatches to the intent-specific analyzer, falling
// back to a general analysis, then appends confidence- and
// complexity-derived general insights.
func analyzeRequest(selection *types.Selection, plan *types.Plan) contextInsight {
	analyzer, ok := analysisPatterns[selection.IntentCategory]
	if !ok {
		analyzer = analyzeGeneral
	}
	insight := analyzer(selection, plan)
	insight.Insights = append(insight.Insights, generalInsights(selection, plan)...)
	return insight
}

func toolNames(plan *types.Plan) []string {
	if plan == nil {
		return nil
	}
	names := make([]string, 0, len(plan.Steps))
	for _, s := range plan.Steps {
		names = append(names, s.Tool)
	}
	return names
}

func analyzeSystemStatus(selection *types.Selection, plan *types.Plan) contextInsight {
	tools := toolNames(plan)
	return contextInsight{
		Sources: []string{"system_monitoring", "service_registry"},
		Insights: []string{
			fmt.Sprintf("using %d monitoring tool(s)", len(tools)),
			"real-time system status will be provided",
		},
	}
}

func analyzeServiceManagement(selection *types.Selection, plan *types.Plan) contextInsight {
	impact := "low"
	if strings.Contains(strings.ToLower(selection.IntentAction), "restart") {
		impact = "medium"
	}
	safetyChecks := 0
	if plan != nil {
		safetyChecks = len(plan.SafetyChecks)
	}
	return contextInsight{
		Sources: []string{"service_registry", "deployment_configs"},
		Insights: []string{
			fmt.Sprintf("impact level assessed as %s", impact),
			fmt.Sprintf("safety checks in place: %d", safetyChecks),
		},
	}
}

func analyzeTroubleshooting(selection *types.Selection, plan *types.Plan) contextInsight {
	return contextInsight{
		Sources: []string{"error_logs", "system_diagnostics", "troubleshooting_guides"},
		Insights: []string{
			"systematic troubleshooting approach planned",
		},
	}
}

func analyzeConfiguration(selection *types.Selection, plan *types.Plan) contextInsight {
	return contextInsight{
		Sources: []string{"configuration_management", "change_logs"},
		Insights: []string{
			"configuration changes will be tracked",
			"backup and rollback procedures in place",
		},
	}
}

func analyzeMonitoring(selection *types.Selection, plan *types.Plan) contextInsight {
	return contextInsight{
		Sources: []string{"monitoring_systems", "metrics_databases"},
		Insights: []string{
			"comprehensive monitoring setup planned",
			"real-time metrics will be available",
		},
	}
}

func analyzeLogAnalysis(selection *types.Selection, plan *types.Plan) contextInsight {
	return contextInsight{
		Sources: []string{"system_logs", "application_logs", "audit_logs"},
		Insights: []string{
			"multi-source log analysis planned",
			"pattern recognition will be applied",
		},
	}
}

func analyzeGeneral(selection *types.Selection, plan *types.Plan) contextInsight {
	if plan == nil || plan.IsEmpty() {
		return contextInsight{
			Sources:  []string{"llm_knowledge"},
			Insights: []string{"information-only request, no execution plan needed"},
		}
	}
	toolSet := make(map[string]struct{})
	for _, t := range toolNames(plan) {
		toolSet[t] = struct{}{}
	}
	return contextInsight{
		Sources: []string{"execution_plan", "tool_capabilities"},
		Insights: []string{
			fmt.Sprintf("plan includes %d execution step(s)", len(plan.Steps)),
			fmt.Sprintf("using %d distinct tool(s)", len(toolSet)),
			fmt.Sprintf("safety measures include %d check(s)", len(plan.SafetyChecks)),
		},
	}
}

func confidenceLevel(confidence float64) types.ConfidenceLevel {
	switch {
	case confidence >= 0.8:
		return types.ConfidenceHigh
	case confidence >= 0.6:
		return types.ConfidenceMedium
	default:
		return types.ConfidenceLow
	}
}

// generalInsights mirrors the confidence- and plan-complexity-derived
// insights appended regardless of intent category.
func generalInsights(selection *types.Selection, plan *types.Plan) []string {
	var insights []string
	switch confidenceLevel(selection.SelectionConfidence) {
	case types.ConfidenceHigh:
		insights = append(insights, "high confidence in request understanding")
	case types.ConfidenceMedium:
		insights = append(insights, "good understanding of request with minor uncertainties")
	default:
		insights = append(insights, "request understanding has some uncertainties")
	}

	if plan != nil && !plan.IsEmpty() {
		if len(plan.Steps) > 5 {
			insights = append(insights, "complex operation with multiple steps")
		} else {
			insights = append(insights, "straightforward operation with manageable complexity")
		}
	}
	return insights
}

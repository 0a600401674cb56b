// Package stagec implements Stage C — the Planner:
// turns a Selection into an ordered, dependency-checked, rollback-aware
// execution Plan.
package stagec

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/opsconductor/pipeline-core/internal/pipeline/catalog"
	"github.com/opsconductor/pipeline-core/internal/pipeline/llmgw"
	"github.com/opsconductor/pipeline-core/internal/pipeline/types"
)

// defaultDurationCeilingSeconds caps a plan's summed estimated step
// durations before a sequentialization warning is raised.
const defaultDurationCeilingSeconds = 1800

// Stage wires the LLM Gateway and the Tool Catalog together to
// materialize and validate a Plan.
type Stage struct {
	gateway          *llmgw.Gateway
	catalog          *catalog.Catalog
	durationCeilingS float64
	logger           *zap.Logger
}

// New builds a Stage C instance.
func New(gateway *llmgw.Gateway, cat *catalog.Catalog, durationCeilingSeconds float64, logger *zap.Logger) *Stage {
	if durationCeilingSeconds <= 0 {
		durationCeilingSeconds = defaultDurationCeilingSeconds
	}
	return &Stage{gateway: gateway, catalog: cat, durationCeilingS: durationCeilingSeconds, logger: logger}
}

// llmStep is the structured per-step shape the LLM emits.
type llmStep struct {
	ID            string                 `json:"id"`
	Name          string                 `json:"name"`
	Description   string                 `json:"description"`
	Tool          string                 `json:"tool"`
	Inputs        map[string]interface{} `json:"inputs"`
	TimeoutS      int                    `json:"timeout_s"`
	RetryCount    int                    `json:"retry_count"`
	DependsOn     []string               `json:"depends_on"`
	EstimatedTimeS float64               `json:"estimated_time_s"`
	Destructive   bool                   `json:"destructive"`
	RollbackNote  string                 `json:"rollback_note"`
}

type llmPlanResponse struct {
	Steps        []llmStep `json:"steps"`
	SafetyChecks []string  `json:"safety_checks"`
}

// Execute runs the full Stage C algorithm.
func (s *Stage) Execute(ctx context.Context, selection *types.Selection, reqCtx *types.RequestContext) (*types.Plan, error) {
	if selection.IsEmpty() {
		return stamp(&types.Plan{}, selection), nil
	}

	system := buildPlanningPrompt(selection, s.catalog)
	user := ""
	if reqCtx != nil {
		user = reqCtx.OriginalRequest
	}

	result, err := s.gateway.Generate(ctx, llmgw.GenerateRequest{
		System:      system,
		Prompt:      user,
		Temperature: 0.1,
		MaxTokens:   2048,
	})
	if err != nil {
		return nil, err
	}

	var parsed llmPlanResponse
	if err := json.Unmarshal([]byte(strings.TrimSpace(result.Content)), &parsed); err != nil {
		return stamp(s.failurePlan(fmt.Sprintf("planner returned unparsable JSON: %v", err)), selection), nil
	}

	plan, err := s.validateAndBuild(parsed, selection)
	if err != nil {
		return nil, err
	}
	return stamp(plan, selection), nil
}

// stamp carries the Selection's decision identity onto the Plan.
func stamp(plan *types.Plan, selection *types.Selection) *types.Plan {
	plan.DecisionID = selection.DecisionID
	plan.Timestamp = time.Now()
	return plan
}

// failurePlan is Stage C's structured-error output: empty steps,
// risk_factors populated, so Stage D can turn it into a clarification.
func (s *Stage) failurePlan(reason string) *types.Plan {
	return &types.Plan{
		ExecutionMetadata: types.ExecutionMetadata{
			RiskFactors: []string{reason},
		},
	}
}

func (s *Stage) validateAndBuild(parsed llmPlanResponse, selection *types.Selection) (*types.Plan, error) {
	var riskFactors []string
	stepIDs := make(map[string]int)
	for i, st := range parsed.Steps {
		stepIDs[st.ID] = i
	}

	var steps []types.PlanStep
	var rollbackPlan []string
	var totalTimeS float64
	destructiveWithoutRollback := 0

	for i, st := range parsed.Steps {
		if _, ok := s.catalog.ByName(st.Tool); !ok {
			return s.failurePlan(fmt.Sprintf("step %q references unknown tool %q", st.ID, st.Tool)), nil
		}
		for _, dep := range st.DependsOn {
			depIdx, ok := stepIDs[dep]
			if !ok || depIdx >= i {
				return s.failurePlan(fmt.Sprintf("step %q depends on %q which is not an earlier step", st.ID, dep)), nil
			}
		}

		if st.Destructive {
			if st.RollbackNote == "" {
				destructiveWithoutRollback++
				riskFactors = append(riskFactors, fmt.Sprintf("destructive step %q has no rollback entry", st.ID))
			} else {
				rollbackPlan = append(rollbackPlan, fmt.Sprintf("%s: %s", st.ID, st.RollbackNote))
			}
		}

		totalTimeS += st.EstimatedTimeS
		steps = append(steps, types.PlanStep{
			ID:          st.ID,
			Name:        st.Name,
			Description: st.Description,
			Tool:        st.Tool,
			Inputs:      st.Inputs,
			TimeoutS:    st.TimeoutS,
			RetryCount:  st.RetryCount,
			DependsOn:   st.DependsOn,
		})
	}

	if destructiveWithoutRollback > 0 {
		s.logger.Warn("plan contains destructive steps without a rollback entry", zap.Int("count", destructiveWithoutRollback))
	}

	if totalTimeS > s.durationCeilingS {
		riskFactors = append(riskFactors, fmt.Sprintf("estimated total duration %.0fs exceeds ceiling %.0fs, consider sequentializing", totalTimeS, s.durationCeilingS))
	}

	approvalPoints := derivApprovalPoints(steps, selection)

	return &types.Plan{
		Steps:        steps,
		SafetyChecks: parsed.SafetyChecks,
		RollbackPlan: rollbackPlan,
		ExecutionMetadata: types.ExecutionMetadata{
			TotalEstimatedTimeS: totalTimeS,
			RiskFactors:         riskFactors,
			ApprovalPoints:      approvalPoints,
			ComplexityClass:     complexityClass(steps),
		},
	}, nil
}

// complexityClass buckets a plan by step count, distinct tools, and
// dependency edges.
func complexityClass(steps []types.PlanStep) string {
	tools := make(map[string]struct{})
	edges := 0
	for _, st := range steps {
		tools[st.Tool] = struct{}{}
		edges += len(st.DependsOn)
	}
	score := len(steps) + 2*len(tools) + edges
	switch {
	case score <= 5:
		return "low"
	case score <= 12:
		return "medium"
	default:
		return "high"
	}
}

// derivApprovalPoints attaches an ApprovalPoint to every step whose tool
// is selected under a policy requiring approval.
func derivApprovalPoints(steps []types.PlanStep, selection *types.Selection) []types.ApprovalPoint {
	if !selection.Policy.RequiresApproval {
		return nil
	}
	selectedByTool := make(map[string]types.SelectedTool, len(selection.SelectedTools))
	for _, t := range selection.SelectedTools {
		selectedByTool[t.ToolName] = t
	}

	var points []types.ApprovalPoint
	for _, step := range steps {
		if _, ok := selectedByTool[step.Tool]; !ok {
			continue
		}
		points = append(points, types.ApprovalPoint{
			StepID:        step.ID,
			RiskLevel:     selection.Policy.RiskLevel,
			OperationType: selection.IntentAction,
		})
	}
	return points
}

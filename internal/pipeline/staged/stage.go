// Package staged implements Stage D — the Answerer:
// decides a response shape (information, clarification, approval
// request, execution-ready, or plan summary) and renders it.
package staged

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/opsconductor/pipeline-core/internal/pipeline/assets"
	"github.com/opsconductor/pipeline-core/internal/pipeline/llmgw"
	"github.com/opsconductor/pipeline-core/internal/pipeline/policy"
	"github.com/opsconductor/pipeline-core/internal/pipeline/types"
)

// Response-type selection defaults.
const (
	defaultConfidenceThreshold = 0.5
	defaultMaxClarificationAttempts = 3
)

// ApprovalNotifier delivers an approval-point summary out of band
// (e.g. to the approver's Slack channel). Advisory: failures are logged,
// never returned.
type ApprovalNotifier interface {
	NotifyApproval(ctx context.Context, decisionID string, points []types.ApprovalPoint) error
}

// Stage wires the LLM Gateway, the Asset Context Provider, and the
// policy engine together.
type Stage struct {
	gateway              *llmgw.Gateway
	assetClient          *assets.Client
	policyEngine         *policy.Engine
	notifier             ApprovalNotifier
	confidenceThreshold  float64
	maxAttempts          int
	logger               *zap.Logger
}

// New builds a Stage D instance.
func New(gateway *llmgw.Gateway, assetClient *assets.Client, policyEngine *policy.Engine, confidenceThreshold float64, maxAttempts int, logger *zap.Logger) *Stage {
	if confidenceThreshold <= 0 {
		confidenceThreshold = defaultConfidenceThreshold
	}
	if maxAttempts <= 0 {
		maxAttempts = defaultMaxClarificationAttempts
	}
	return &Stage{
		gateway:             gateway,
		assetClient:         assetClient,
		policyEngine:        policyEngine,
		confidenceThreshold: confidenceThreshold,
		maxAttempts:         maxAttempts,
		logger:              logger,
	}
}

// SetNotifier attaches an out-of-band approval notifier.
func (s *Stage) SetNotifier(n ApprovalNotifier) {
	s.notifier = n
}

// ConfidenceThreshold reports the minimum selection confidence below
// which a clarification is requested instead of proceeding.
func (s *Stage) ConfidenceThreshold() float64 {
	return s.confidenceThreshold
}

// MaxAttempts reports the clarification attempt ceiling.
func (s *Stage) MaxAttempts() int {
	return s.maxAttempts
}

// Request is Stage D's input.
type Request struct {
	UserRequest string
	Selection   *types.Selection
	Plan        *types.Plan
	Context     *types.RequestContext
}

// Execute decides and renders a Response.
func (s *Stage) Execute(ctx context.Context, req Request) (*types.Response, error) {
	start := time.Now()
	resp, err := s.decide(ctx, req)
	if err != nil {
		return nil, err
	}
	resp.ResponseID = uuid.NewString()
	resp.ProcessingTimeMs = time.Since(start).Milliseconds()
	return resp, nil
}

func (s *Stage) decide(ctx context.Context, req Request) (*types.Response, error) {
	var entities []types.Entity
	if req.Context != nil {
		entities = req.Context.Entities
	}

	switch {
	case req.Selection.IsEmpty() && req.Selection.IntentCategory == "informational":
		return s.fastPath(ctx, req)

	case req.Selection.SelectionConfidence < s.confidenceThreshold && clarificationAttempts(req.Context) < s.maxAttempts:
		return s.clarify(req, entities), nil

	case req.Plan.HasApprovalPoints():
		return s.approvalRequest(ctx, req)

	case req.Plan != nil && !req.Plan.IsEmpty() && req.Selection.Policy.AutoExecute:
		return s.executionReady(req), nil

	default:
		return s.planSummary(req), nil
	}
}

func clarificationAttempts(reqCtx *types.RequestContext) int {
	if reqCtx == nil {
		return 0
	}
	return reqCtx.ClarificationAttempts
}

// fastPath bypasses planning and execution entirely: a single LLM call
// optionally enriched with asset context.
func (s *Stage) fastPath(ctx context.Context, req Request) (*types.Response, error) {
	var assetContext string
	sources := []string{"llm_knowledge"}
	if s.assetClient != nil && assets.ShouldInject(req.UserRequest) {
		inventory, err := s.assetClient.FetchAssets(ctx, "", 0)
		if err != nil {
			s.logger.Warn("fast path asset context fetch failed, proceeding without it", zap.Error(err))
		} else {
			assetContext = assets.ComprehensiveContext(inventory, 50)
			sources = append(sources, "asset_inventory")
		}
	}

	system := "You are the answering stage of an infrastructure operations assistant. Answer the user's informational question directly and concisely."
	if assetContext != "" {
		system += "\n\nINFRASTRUCTURE CONTEXT:\n" + assetContext
	}

	result, err := s.gateway.Generate(ctx, llmgw.GenerateRequest{
		System:      system,
		Prompt:      req.UserRequest,
		Temperature: 0.3,
		MaxTokens:   512,
	})
	if err != nil {
		return nil, err
	}

	return &types.Response{
		ResponseType:     types.ResponseInformation,
		Message:          result.Content,
		Confidence:       confidenceLevel(req.Selection.SelectionConfidence),
		SourcesConsulted: sources,
	}, nil
}

func (s *Stage) clarify(req Request, entities []types.Entity) *types.Response {
	questions := buildClarificationQuestions(req.UserRequest, req.Selection, entities)
	if req.Context != nil {
		req.Context.ClarificationAttempts++
	}
	return &types.Response{
		ResponseType:        types.ResponseClarification,
		Message:             "I need a bit more information before proceeding.",
		Confidence:          confidenceLevel(req.Selection.SelectionConfidence),
		ClarificationNeeded: questions,
	}
}

func (s *Stage) approvalRequest(ctx context.Context, req Request) (*types.Response, error) {
	points, lines := surfaceApprovals(ctx, s.policyEngine, req.Plan)
	insight := analyzeRequest(req.Selection, req.Plan)

	var b strings.Builder
	b.WriteString(fmt.Sprintf("This operation involves %d step(s) and requires approval before it can run.\n", len(req.Plan.Steps)))
	for _, l := range lines {
		b.WriteString("- " + l + "\n")
	}
	for _, ins := range insight.Insights {
		b.WriteString("- " + ins + "\n")
	}

	if s.notifier != nil {
		if err := s.notifier.NotifyApproval(ctx, req.Plan.DecisionID, points); err != nil {
			s.logger.Warn("approval notification failed", zap.Error(err))
		}
	}

	return &types.Response{
		ResponseType:     types.ResponseApprovalRequest,
		Message:          b.String(),
		Confidence:       confidenceLevel(req.Selection.SelectionConfidence),
		ApprovalRequired: true,
		ApprovalPoints:   points,
		SourcesConsulted: insight.Sources,
	}, nil
}

func (s *Stage) executionReady(req Request) *types.Response {
	insight := analyzeRequest(req.Selection, req.Plan)
	var b strings.Builder
	b.WriteString(fmt.Sprintf("Ready to execute a %d-step plan using %s.\n", len(req.Plan.Steps), strings.Join(dedupTools(req.Plan), ", ")))
	for _, ins := range insight.Insights {
		b.WriteString("- " + ins + "\n")
	}

	return &types.Response{
		ResponseType:     types.ResponseExecutionReady,
		Message:          b.String(),
		Confidence:       confidenceLevel(req.Selection.SelectionConfidence),
		ExecutionSummary: fmt.Sprintf("%d steps, estimated %.0fs", len(req.Plan.Steps), req.Plan.ExecutionMetadata.TotalEstimatedTimeS),
		SourcesConsulted: insight.Sources,
	}
}

func (s *Stage) planSummary(req Request) *types.Response {
	insight := analyzeRequest(req.Selection, req.Plan)
	var b strings.Builder
	if req.Plan == nil || req.Plan.IsEmpty() {
		b.WriteString("I wasn't able to build a concrete plan for this request.\n")
	} else {
		b.WriteString(fmt.Sprintf("Here is the proposed plan: %d step(s) using %s.\n", len(req.Plan.Steps), strings.Join(dedupTools(req.Plan), ", ")))
		if c := req.Plan.ExecutionMetadata.ComplexityClass; c != "" {
			b.WriteString(fmt.Sprintf("Estimated complexity: %s.\n", c))
		}
	}
	for _, ins := range insight.Insights {
		b.WriteString("- " + ins + "\n")
	}
	for _, rec := range insight.Recommendations {
		b.WriteString("recommendation: " + rec + "\n")
	}

	warnings := []string(nil)
	if req.Plan != nil {
		warnings = req.Plan.ExecutionMetadata.RiskFactors
	}

	return &types.Response{
		ResponseType:     types.ResponsePlanSummary,
		Message:          b.String(),
		Confidence:       confidenceLevel(req.Selection.SelectionConfidence),
		Warnings:         warnings,
		SourcesConsulted: insight.Sources,
	}
}

func dedupTools(plan *types.Plan) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, s := range plan.Steps {
		if _, ok := seen[s.Tool]; ok {
			continue
		}
		seen[s.Tool] = struct{}{}
		out = append(out, s.Tool)
	}
	return out
}

// Package stageab implements Stage AB — Combined Understanding +
// Selection: a single LLM turn plus deterministic
// post-processing that merges intent classification and tool selection.
package stageab

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	pipelineerrors "github.com/opsconductor/pipeline-core/internal/errors"
	"github.com/opsconductor/pipeline-core/internal/pipeline/assets"
	"github.com/opsconductor/pipeline-core/internal/pipeline/catalog"
	"github.com/opsconductor/pipeline-core/internal/pipeline/llmgw"
	"github.com/opsconductor/pipeline-core/internal/pipeline/policy"
	"github.com/opsconductor/pipeline-core/internal/pipeline/types"
)

// defaultMaxSelectedTools caps Selection.SelectedTools.
const defaultMaxSelectedTools = 8

// llmSelectionResponse is the structured JSON the LLM returns for
// the combined understanding-and-selection turn.
type llmSelectionResponse struct {
	IntentCategory string `json:"intent_category"`
	IntentAction   string `json:"intent_action"`
	Entities       []struct {
		Type  string `json:"type"`
		Value string `json:"value"`
		AdHoc bool   `json:"ad_hoc"`
	} `json:"entities"`
	RequiredCapabilities []string `json:"required_capabilities"`
	CandidateTools       []struct {
		ToolName string `json:"tool_name"`
		Why      string `json:"why"`
	} `json:"candidate_tools"`
	RiskLevel            string  `json:"risk_level"`
	RequiresApproval     bool    `json:"requires_approval"`
	SelectionConfidence  float64 `json:"selection_confidence"`
}

// Stage wires the LLM Gateway, the Tool Catalog, the Asset Context
// Provider, and the policy engine together.
type Stage struct {
	gateway        *llmgw.Gateway
	catalog        *catalog.Catalog
	assetClient    *assets.Client
	policyEngine   *policy.Engine
	maxSelected    int
	logger         *zap.Logger
}

// New builds a Stage AB instance.
func New(gateway *llmgw.Gateway, cat *catalog.Catalog, assetClient *assets.Client, policyEngine *policy.Engine, maxSelectedTools int, logger *zap.Logger) *Stage {
	if maxSelectedTools <= 0 {
		maxSelectedTools = defaultMaxSelectedTools
	}
	return &Stage{
		gateway:      gateway,
		catalog:      cat,
		assetClient:  assetClient,
		policyEngine: policyEngine,
		maxSelected:  maxSelectedTools,
		logger:       logger,
	}
}

// Request is Stage AB's input.
type Request struct {
	UserRequest string
	Context     *types.RequestContext
}

func (s *Stage) callLLM(ctx context.Context, system, user string) (llmSelectionResponse, error) {
	result, err := s.gateway.Generate(ctx, llmgw.GenerateRequest{
		System:      system,
		Prompt:      user,
		Temperature: 0.1,
		MaxTokens:   1024,
	})
	if err != nil {
		return llmSelectionResponse{}, err
	}

	var parsed llmSelectionResponse
	if err := json.Unmarshal([]byte(strings.TrimSpace(result.Content)), &parsed); err != nil {
		return llmSelectionResponse{}, pipelineerrors.NewLLMMalformedError(err.Error())
	}
	return parsed, nil
}

// Execute runs the full Stage AB algorithm.
func (s *Stage) Execute(ctx context.Context, req Request) (*types.Selection, error) {
	assetContext := ""
	if assets.ShouldInject(req.UserRequest) {
		inventory, err := s.assetClient.FetchAssets(ctx, "", 0)
		if err != nil {
			s.logger.Warn("asset context fetch failed, proceeding without it", zap.Error(err))
		} else {
			assetContext = assets.ComprehensiveContext(inventory, 50)
		}
	}

	catalogProfiles := s.catalog.LoadAll()
	system := buildSystemPrompt(req.UserRequest, catalogProfiles, assetContext)
	if req.Context != nil && req.Context.ConversationHistory != "" {
		system += "\n\nCONVERSATION HISTORY:\n" + req.Context.ConversationHistory
	}

	parsed, err := s.callLLM(ctx, system, req.UserRequest)
	if pipelineerrors.IsType(err, pipelineerrors.ErrorTypeTokenBudgetExceeded) {
		// Shrink once: compact asset schema instead of live data, and no
		// conversation history, then retry.
		s.logger.Warn("prompt over token budget, retrying with compact context")
		system = buildSystemPrompt(req.UserRequest, catalogProfiles, assets.CompactContext())
		parsed, err = s.callLLM(ctx, system, req.UserRequest)
	}
	if pipelineerrors.IsType(err, pipelineerrors.ErrorTypeLLMMalformed) {
		s.logger.Warn("stage ab received malformed JSON, retrying with stricter schema reminder")
		strict := system + "\n\nSTRICT REMINDER: your entire response must be exactly one valid JSON object matching the schema above, nothing else."
		parsed, err = s.callLLM(ctx, strict, req.UserRequest)
		if pipelineerrors.IsType(err, pipelineerrors.ErrorTypeLLMMalformed) {
			s.logger.Warn("stage ab malformed JSON on retry, returning empty selection")
			return &types.Selection{
				DecisionID: uuid.NewString(),
				Timestamp:  time.Now(),
				NextStage:  types.NextStageD,
				Warnings:   []string{"unable to parse a structured selection from the language model after one retry"},
			}, nil
		}
	}
	if err != nil {
		return nil, err
	}

	if req.Context != nil {
		req.Context.Entities = make([]types.Entity, 0, len(parsed.Entities))
		for _, e := range parsed.Entities {
			req.Context.Entities = append(req.Context.Entities, types.Entity{Type: e.Type, Value: e.Value, AdHoc: e.AdHoc})
		}
	}

	selection := s.buildSelection(ctx, req.UserRequest, parsed, catalogProfiles)
	return selection, nil
}

func (s *Stage) buildSelection(ctx context.Context, userRequest string, parsed llmSelectionResponse, catalogProfiles []types.ToolProfile) *types.Selection {
	// Gather the candidate pool: LLM-suggested names plus catalog matches
	// by required capability and by (intent_category, intent_action).
	seen := make(map[string]struct{})
	var candidates []types.ToolProfile
	var warnings []string

	addCandidate := func(name string) {
		if _, ok := seen[name]; ok {
			return
		}
		profile, ok := s.catalog.ByName(name)
		if !ok {
			warnings = append(warnings, fmt.Sprintf("tool %q suggested but not present in the catalog, dropped", name))
			return
		}
		seen[name] = struct{}{}
		candidates = append(candidates, profile)
	}

	for _, c := range parsed.CandidateTools {
		addCandidate(c.ToolName)
	}
	for _, cap := range parsed.RequiredCapabilities {
		for _, profile := range s.catalog.ByCapability(cap) {
			addCandidate(profile.ToolName)
		}
	}
	for _, profile := range s.catalog.ByIntent(parsed.IntentCategory, parsed.IntentAction) {
		addCandidate(profile.ToolName)
	}

	scored := scoreCandidates(candidates, parsed.RequiredCapabilities)
	sort.SliceStable(scored, func(i, j int) bool { return scored[i].Score > scored[j].Score })

	if topTwoAreTied(scored) {
		tieBreakPrompt := buildTieBreakPrompt(userRequest, scored[0], scored[1])
		result, err := s.gateway.Generate(ctx, llmgw.GenerateRequest{Prompt: tieBreakPrompt, Temperature: 0, MaxTokens: 32})
		if err == nil {
			choice := strings.TrimSpace(result.Content)
			if strings.Contains(choice, scored[1].Tool.ToolName) && !strings.Contains(choice, scored[0].Tool.ToolName) {
				scored[0], scored[1] = scored[1], scored[0]
			}
		}
	}

	selectedNames := make(map[string]struct{})
	var selectedTools []types.SelectedTool
	order := 0
	for _, c := range scored {
		if _, ok := selectedNames[c.Tool.ToolName]; ok {
			continue
		}
		if len(selectedTools) >= s.maxSelected {
			break
		}
		selectedNames[c.Tool.ToolName] = struct{}{}
		selectedTools = append(selectedTools, types.SelectedTool{
			ToolName:       c.Tool.ToolName,
			PatternName:    c.Pattern.Name,
			Justification:  fmt.Sprintf("score=%.3f", c.Score),
			ExecutionOrder: order,
		})
		order++
	}

	clampedRisk, requiresApproval, err := s.policyEngine.ClampRisk(ctx, policy.RiskInput{
		RiskLevel:               types.RiskLevel(parsed.RiskLevel),
		Tags:                    intentTags(parsed.RequiredCapabilities),
		DestructiveCapabilities: parsed.RequiredCapabilities,
	})
	if err != nil {
		s.logger.Warn("policy evaluation failed, using LLM-reported risk unclamped", zap.Error(err))
		clampedRisk = types.RiskLevel(parsed.RiskLevel)
		requiresApproval = parsed.RequiresApproval || hasDestructiveCapability(parsed.RequiredCapabilities)
	}

	// Low- and medium-risk selections with no approval gate run without a
	// separate go-ahead; high/critical always stop at Stage D.
	autoExecute := !requiresApproval && !clampedRisk.AtLeast(types.RiskHigh)

	nextStage := types.NextStageC
	if len(selectedTools) == 0 {
		nextStage = types.NextStageD
	}

	return &types.Selection{
		DecisionID:           uuid.NewString(),
		Timestamp:            time.Now(),
		SelectedTools:        selectedTools,
		Policy:               types.Policy{RiskLevel: clampedRisk, RequiresApproval: requiresApproval, AutoExecute: autoExecute},
		SelectionConfidence:  parsed.SelectionConfidence,
		NextStage:            nextStage,
		IntentCategory:       parsed.IntentCategory,
		IntentAction:         parsed.IntentAction,
		RequiredCapabilities: parsed.RequiredCapabilities,
		Warnings:             warnings,
	}
}

func hasDestructiveCapability(capabilities []string) bool {
	for _, c := range capabilities {
		lower := strings.ToLower(c)
		if strings.Contains(lower, "restart") || strings.Contains(lower, "delete") || strings.Contains(lower, "deploy") {
			return true
		}
	}
	return false
}

func intentTags(capabilities []string) []string {
	for _, c := range capabilities {
		if strings.Contains(strings.ToLower(c), "production") {
			return []string{"production"}
		}
	}
	return nil
}

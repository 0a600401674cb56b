// Package policy implements the risk-clamping and approval-role mapping
// rules for selection and approval surfacing, as declarative Rego policy
// (github.com/open-policy-agent/opa) rather than an if/else chain, so an
// operator can change the operation/role table without a rebuild.
package policy

import (
	"context"
	_ "embed"
	"fmt"

	"github.com/open-policy-agent/opa/rego"

	"github.com/opsconductor/pipeline-core/internal/pipeline/types"
)

//go:embed rego/policy.rego
var policySource string

// Engine evaluates the embedded Rego module. It is safe for concurrent
// use; rego.PreparedEvalQuery is immutable once compiled.
type Engine struct {
	clampQuery  rego.PreparedEvalQuery
	roleQuery   rego.PreparedEvalQuery
	approveQuery rego.PreparedEvalQuery
}

// NewEngine compiles the embedded policy module once at startup.
func NewEngine(ctx context.Context) (*Engine, error) {
	clamp, err := rego.New(
		rego.Query("data.pipeline.policy.clamped_risk"),
		rego.Module("policy.rego", policySource),
	).PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare clamped_risk policy: %w", err)
	}

	approve, err := rego.New(
		rego.Query("data.pipeline.policy.requires_approval"),
		rego.Module("policy.rego", policySource),
	).PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare requires_approval policy: %w", err)
	}

	role, err := rego.New(
		rego.Query("data.pipeline.policy.approver_role"),
		rego.Module("policy.rego", policySource),
	).PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare approver_role policy: %w", err)
	}

	return &Engine{clampQuery: clamp, roleQuery: role, approveQuery: approve}, nil
}

// RiskInput is the evaluation input for ClampRisk/RequiresApproval.
type RiskInput struct {
	RiskLevel                  types.RiskLevel
	Tags                       []string
	DestructiveCapabilities    []string
	SecurityOrCredentialChange bool
}

func (i RiskInput) toMap() map[string]interface{} {
	return map[string]interface{}{
		"risk_level":                   string(i.RiskLevel),
		"tags":                         i.Tags,
		"destructive_capabilities":     i.DestructiveCapabilities,
		"security_or_credential_change": i.SecurityOrCredentialChange,
	}
}

// ClampRisk applies the production/destructive/security clamping rules
// and reports whether the clamped risk requires approval.
func (e *Engine) ClampRisk(ctx context.Context, in RiskInput) (types.RiskLevel, bool, error) {
	input := in.toMap()

	clampResults, err := e.clampQuery.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		return "", false, fmt.Errorf("clamped_risk evaluation failed: %w", err)
	}
	risk := in.RiskLevel
	if len(clampResults) > 0 && len(clampResults[0].Expressions) > 0 {
		if s, ok := clampResults[0].Expressions[0].Value.(string); ok {
			risk = types.RiskLevel(s)
		}
	}

	approveResults, err := e.approveQuery.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		return "", false, fmt.Errorf("requires_approval evaluation failed: %w", err)
	}
	requiresApproval := len(approveResults) > 0 && len(approveResults[0].Expressions) > 0 &&
		approveResults[0].Expressions[0].Value == true

	return risk, requiresApproval, nil
}

// ApproverRole resolves the role required to approve operationType at
// riskLevel, applying the operation-specific override table before
// falling back to the plain risk-level mapping.
func (e *Engine) ApproverRole(ctx context.Context, riskLevel types.RiskLevel, operationType string) (string, error) {
	input := map[string]interface{}{
		"risk_level":     string(riskLevel),
		"operation_type": operationType,
	}

	results, err := e.roleQuery.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		return "", fmt.Errorf("approver_role evaluation failed: %w", err)
	}
	if len(results) == 0 || len(results[0].Expressions) == 0 {
		return "operations_manager", nil
	}
	role, ok := results[0].Expressions[0].Value.(string)
	if !ok {
		return "operations_manager", nil
	}
	return role, nil
}

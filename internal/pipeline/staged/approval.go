package staged

import (
	"context"
	"fmt"

	"github.com/opsconductor/pipeline-core/internal/pipeline/policy"
	"github.com/opsconductor/pipeline-core/internal/pipeline/types"
)

// surfaceApprovals converts a Plan's approval points into role-resolved
// entries and a human-readable one-liner per point.
func surfaceApprovals(ctx context.Context, engine *policy.Engine, plan *types.Plan) ([]types.ApprovalPoint, []string) {
	points := append([]types.ApprovalPoint(nil), plan.ExecutionMetadata.ApprovalPoints...)
	var lines []string

	for i, p := range points {
		role, err := engine.ApproverRole(ctx, p.RiskLevel, p.OperationType)
		if err != nil {
			role = "operations_manager"
		}
		points[i].ApproverRole = role
		lines = append(lines, fmt.Sprintf("step %s requires %s approval (risk: %s)", p.StepID, role, p.RiskLevel))
	}

	if len(points) > 5 {
		lines = append(lines, fmt.Sprintf("warning: %d approval points may slow execution", len(points)))
	}
	rolesSeen := make(map[string]struct{})
	for _, p := range points {
		rolesSeen[p.ApproverRole] = struct{}{}
	}
	if len(rolesSeen) > 3 {
		lines = append(lines, fmt.Sprintf("warning: %d distinct approver roles required, coordination may be complex", len(rolesSeen)))
	}

	return points, lines
}

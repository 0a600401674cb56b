// Package notify delivers approval-point summaries to the mapped
// approver's Slack channel. Delivery is advisory: a failed post never
// fails the pipeline request that produced the approval.
package notify

import (
	"context"
	"fmt"
	"strings"
	"time"

	goslack "github.com/slack-go/slack"
	"go.uber.org/zap"

	"github.com/opsconductor/pipeline-core/internal/pipeline/types"
)

const postTimeout = 10 * time.Second

// SlackNotifier posts approval requests to one channel.
type SlackNotifier struct {
	api       *goslack.Client
	channelID string
	logger    *zap.Logger
}

// NewSlackNotifier creates a notifier against the real Slack API.
func NewSlackNotifier(token, channelID string, logger *zap.Logger) *SlackNotifier {
	return &SlackNotifier{
		api:       goslack.New(token),
		channelID: channelID,
		logger:    logger,
	}
}

// NewSlackNotifierWithAPIURL targets a custom API URL, for tests.
func NewSlackNotifierWithAPIURL(token, channelID, apiURL string, logger *zap.Logger) *SlackNotifier {
	return &SlackNotifier{
		api:       goslack.New(token, goslack.OptionAPIURL(apiURL)),
		channelID: channelID,
		logger:    logger,
	}
}

// NotifyApproval posts a summary of the plan's approval points.
func (n *SlackNotifier) NotifyApproval(ctx context.Context, decisionID string, points []types.ApprovalPoint) error {
	ctx, cancel := context.WithTimeout(ctx, postTimeout)
	defer cancel()

	var b strings.Builder
	fmt.Fprintf(&b, "Approval required for decision %s (%d point(s)):\n", decisionID, len(points))
	for _, p := range points {
		fmt.Fprintf(&b, "• step %s — %s risk, %s operation, approver: %s\n", p.StepID, p.RiskLevel, p.OperationType, p.ApproverRole)
	}

	blocks := []goslack.Block{
		goslack.NewHeaderBlock(goslack.NewTextBlockObject(goslack.PlainTextType, "Infrastructure change awaiting approval", false, false)),
		goslack.NewSectionBlock(goslack.NewTextBlockObject(goslack.MarkdownType, b.String(), false, false), nil, nil),
	}

	_, _, err := n.api.PostMessageContext(ctx, n.channelID, goslack.MsgOptionBlocks(blocks...))
	if err != nil {
		return fmt.Errorf("chat.postMessage failed: %w", err)
	}
	n.logger.Info("approval notification posted", zap.String("decision_id", decisionID), zap.Int("points", len(points)))
	return nil
}

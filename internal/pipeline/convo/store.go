// Package convo implements the Conversation Store: a
// per-session ring buffer of capacity N, oldest messages dropped on
// overflow, with an in-memory default and an optional Redis-backed
// implementation for cross-process replication.
package convo

import (
	"context"
	"fmt"
	"strings"

	"github.com/opsconductor/pipeline-core/internal/pipeline/types"
)

// Role values accepted by Add.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Store is implemented by both the in-memory and Redis-backed stores.
type Store interface {
	Add(ctx context.Context, sessionID, role, content string) error
	Get(ctx context.Context, sessionID string, max int) ([]types.ConversationMessage, error)
	Formatted(ctx context.Context, sessionID string, max int) (string, error)
	Clear(ctx context.Context, sessionID string) error
}

func validateRole(role string) error {
	if role != RoleUser && role != RoleAssistant {
		return fmt.Errorf("invalid conversation role: %q (want %q or %q)", role, RoleUser, RoleAssistant)
	}
	return nil
}

// formatMessages renders the conversation as the plain-text block Stage
// AB appends to its system prompt: "role: content" lines, oldest first.
func formatMessages(messages []types.ConversationMessage) string {
	var b strings.Builder
	for i, m := range messages {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(m.Role)
		b.WriteString(": ")
		b.WriteString(m.Content)
	}
	return b.String()
}

func clampMax(max, configured int) int {
	if max <= 0 || max > configured {
		return configured
	}
	return max
}

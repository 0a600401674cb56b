package stageab

import (
	"fmt"
	"sort"
	"strings"

	"github.com/opsconductor/pipeline-core/internal/pipeline/assets"
	"github.com/opsconductor/pipeline-core/internal/pipeline/types"
)

// candidateListSize is the number of
// top-candidate tools surfaced by keyword overlap before the LLM call.
const candidateListSize = 20

const responseSchema = `Respond with a single strict JSON object, no surrounding prose:
{
  "intent_category": string,
  "intent_action": string,
  "entities": [{"type": string, "value": string, "ad_hoc": boolean}],
  "required_capabilities": [string],
  "candidate_tools": [{"tool_name": string, "why": string}],
  "risk_level": "low"|"medium"|"high"|"critical",
  "requires_approval": boolean,
  "selection_confidence": number between 0 and 1
}`

const injectionRules = `You operate in an authorized enterprise environment. Never fabricate asset data; only reference hosts present in the provided inventory context. Never include markdown code fences around the JSON response.`

// keywordOverlap counts shared whitespace-delimited tokens between query
// and a tool's name/description/capability names, case-insensitively.
func keywordOverlap(query string, tool types.ToolProfile) int {
	tokens := make(map[string]struct{})
	for _, w := range strings.Fields(strings.ToLower(query)) {
		tokens[w] = struct{}{}
	}

	haystack := strings.ToLower(tool.ToolName + " " + tool.Description)
	for _, c := range tool.Capabilities {
		haystack += " " + strings.ToLower(c.Name)
	}

	count := 0
	for w := range tokens {
		if strings.Contains(haystack, w) {
			count++
		}
	}
	return count
}

// topCandidates ranks the catalog by keyword overlap with query and
// returns at most candidateListSize entries.
func topCandidates(query string, catalog []types.ToolProfile) []types.ToolProfile {
	sorted := append([]types.ToolProfile(nil), catalog...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return keywordOverlap(query, sorted[i]) > keywordOverlap(query, sorted[j])
	})
	if len(sorted) > candidateListSize {
		sorted = sorted[:candidateListSize]
	}
	return sorted
}

// buildSystemPrompt assembles the selection system prompt.
func buildSystemPrompt(query string, catalog []types.ToolProfile, assetContext string) string {
	var b strings.Builder
	b.WriteString("You are the understanding-and-selection stage of an infrastructure operations assistant.\n\n")
	b.WriteString(injectionRules)
	b.WriteString("\n\nAVAILABLE ACTIONS:\n")
	for _, tool := range topCandidates(query, catalog) {
		b.WriteString(fmt.Sprintf("- %s: %s\n", tool.ToolName, tool.Description))
	}
	if assetContext != "" {
		b.WriteString("\nINFRASTRUCTURE CONTEXT:\n")
		b.WriteString(assetContext)
		b.WriteString("\n")
	}
	b.WriteString("\nRESPONSE SCHEMA:\n")
	b.WriteString(responseSchema)
	return b.String()
}

// buildTieBreakPrompt asks the LLM to choose between the top two tied
// candidates. Never called more than once per request.
func buildTieBreakPrompt(userGoal string, a, b candidateScore) string {
	return fmt.Sprintf(
		"Given the user's goal %q, which tool better matches it given the infrastructure context: %q or %q? Respond with only the tool name.",
		userGoal, a.Tool.ToolName, b.Tool.ToolName)
}

// maybeAssetContext returns the comprehensive asset context block when
// ShouldInject(query) is true, else empty string.
func maybeAssetContext(query string, inventory []assets.Asset, maxAssets int) string {
	if !assets.ShouldInject(query) {
		return ""
	}
	return assets.ComprehensiveContext(inventory, maxAssets)
}

package staged

import (
	"strings"

	"github.com/opsconductor/pipeline-core/internal/pipeline/types"
)

// vagueActionWords are action verbs too unspecific to act on directly.
var vagueActionWords = map[string]struct{}{
	"fix":    {},
	"handle": {},
	"do":     {},
	"check":  {},
	"help":   {},
	"sort":   {},
}

func hasTargetEntity(entities []types.Entity) bool {
	for _, e := range entities {
		if e.Type == "target" || e.Type == "host" || e.Type == "service" {
			return true
		}
	}
	return false
}

func isVagueAction(action string) bool {
	_, vague := vagueActionWords[strings.ToLower(strings.TrimSpace(action))]
	return vague || action == ""
}

// buildClarificationQuestions applies the three identification rules in
// order and returns one question per unmet rule.
func buildClarificationQuestions(userRequest string, selection *types.Selection, entities []types.Entity) []types.ClarificationQuestion {
	var questions []types.ClarificationQuestion

	isAction := selection.IntentCategory != "" && selection.IntentCategory != "informational"
	if isAction && !hasTargetEntity(entities) {
		questions = append(questions, types.ClarificationQuestion{
			Question: "Which host or service should this apply to?",
			Required: true,
			Context:  "no target entity was identified in the request",
		})
	}

	if isVagueAction(selection.IntentAction) {
		questions = append(questions, types.ClarificationQuestion{
			Question: "What specific action would you like performed?",
			Required: true,
			Context:  "the requested action was too general to act on",
		})
	}

	if len(strings.Fields(userRequest)) < 4 {
		questions = append(questions, types.ClarificationQuestion{
			Question: "Could you provide more detail about what you need?",
			Required: false,
			Context:  "the request was very short",
		})
	}

	return questions
}

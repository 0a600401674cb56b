package stageab

import (
	"github.com/opsconductor/pipeline-core/internal/pipeline/types"
	sharedmath "github.com/opsconductor/pipeline-core/pkg/shared/math"
)

// Score weights are fixed at design time (no operational knob exposed;
// see DESIGN.md Open Question decisions).
const (
	weightAccuracy     = 0.30
	weightCompleteness = 0.20
	weightTime         = 0.15
	weightCost         = 0.10
	weightComplexity   = 0.10
	weightMatch        = 0.35
)

// TieBreakEpsilon is the maximum score gap within which two top
// candidates are considered tied.
const TieBreakEpsilon = 0.02

// candidateScore is one tool+pattern pair's computed rank.
type candidateScore struct {
	Tool    types.ToolProfile
	Pattern types.ToolPattern
	Score   float64
}

// capabilityOverlap returns the fraction of required capabilities the
// tool advertises, in [0, 1].
func capabilityOverlap(required []string, tool types.ToolProfile) float64 {
	if len(required) == 0 {
		return 0
	}
	matched := 0
	for _, r := range required {
		if tool.HasCapability(r) {
			matched++
		}
	}
	return float64(matched) / float64(len(required))
}

// scoreCandidates computes the weighted score for every (tool, pattern)
// pair, min-max normalizing time_ms within the candidate set.
func scoreCandidates(candidates []types.ToolProfile, required []string) []candidateScore {
	var times []float64
	for _, c := range candidates {
		for _, p := range c.Patterns {
			times = append(times, p.Vector.TimeMs)
		}
	}
	minTime, maxTime := sharedmath.Min(times), sharedmath.Max(times)

	var scored []candidateScore
	for _, c := range candidates {
		overlap := capabilityOverlap(required, c)
		if len(c.Patterns) == 0 {
			scored = append(scored, candidateScore{
				Tool:  c,
				Score: weightMatch * overlap,
			})
			continue
		}
		for _, p := range c.Patterns {
			normTime := sharedmath.MinMaxNorm(p.Vector.TimeMs, minTime, maxTime)
			score := weightAccuracy*p.Vector.Accuracy +
				weightCompleteness*p.Vector.Completeness -
				weightTime*normTime -
				weightCost*p.Vector.Cost -
				weightComplexity*p.Vector.Complexity +
				weightMatch*overlap
			scored = append(scored, candidateScore{Tool: c, Pattern: p, Score: score})
		}
	}
	return scored
}

// topTwoAreTied reports whether the two highest-scored candidates in a
// descending-sorted slice are within TieBreakEpsilon.
func topTwoAreTied(sorted []candidateScore) bool {
	if len(sorted) < 2 {
		return false
	}
	return sorted[0].Score-sorted[1].Score <= TieBreakEpsilon
}

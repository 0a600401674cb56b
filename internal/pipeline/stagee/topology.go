package stagee

import (
	"fmt"

	"github.com/opsconductor/pipeline-core/internal/pipeline/types"
)

// topologicalWaves groups steps into dependency-ordered waves: every
// step in wave N depends only on steps in waves < N, so all steps
// within one wave may run concurrently.
func topologicalWaves(steps []types.PlanStep) ([][]string, error) {
	remaining := make(map[string][]string, len(steps))
	for _, s := range steps {
		remaining[s.ID] = append([]string(nil), s.DependsOn...)
	}

	var waves [][]string
	done := make(map[string]struct{}, len(steps))

	for len(done) < len(steps) {
		var wave []string
		for id, deps := range remaining {
			if _, already := done[id]; already {
				continue
			}
			if allSatisfied(deps, done) {
				wave = append(wave, id)
			}
		}
		if len(wave) == 0 {
			return nil, fmt.Errorf("plan has an unresolvable dependency cycle among remaining steps")
		}
		for _, id := range wave {
			done[id] = struct{}{}
		}
		waves = append(waves, wave)
	}
	return waves, nil
}

func allSatisfied(deps []string, done map[string]struct{}) bool {
	for _, d := range deps {
		if _, ok := done[d]; !ok {
			return false
		}
	}
	return true
}

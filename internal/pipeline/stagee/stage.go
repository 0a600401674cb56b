package stagee

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/opsconductor/pipeline-core/internal/pipeline/types"
	"github.com/opsconductor/pipeline-core/pkg/infrastructure/metrics"
)

// defaultConcurrency is the per-request cap on steps running in
// parallel.
const defaultConcurrency = 4

// ProgressEvent is emitted at the start and completion of every step.
type ProgressEvent struct {
	StepID string
	Phase  string // "start" or "complete"
	Result *types.StepResult
}

// ProgressCallback receives ProgressEvents. Must be safe for concurrent
// calls: steps in the same wave report concurrently.
type ProgressCallback func(ProgressEvent)

// Stage dispatches a Plan's steps against a Registry of tool runners.
type Stage struct {
	registry    *Registry
	concurrency int64
	logger      *zap.Logger
}

// New builds a Stage E instance.
func New(registry *Registry, concurrency int, logger *zap.Logger) *Stage {
	if concurrency <= 0 {
		concurrency = defaultConcurrency
	}
	return &Stage{registry: registry, concurrency: int64(concurrency), logger: logger}
}

// Execute runs plan's steps in dependency order, honoring the
// concurrency cap within each wave of mutually-independent steps.
func (s *Stage) Execute(ctx context.Context, plan *types.Plan, onProgress ProgressCallback) (*types.ExecutionResult, error) {
	result := &types.ExecutionResult{
		ExecutionID: uuid.NewString(),
		Status:      types.ExecutionRunning,
		TotalSteps:  len(plan.Steps),
	}
	if len(plan.Steps) == 0 {
		result.Status = types.ExecutionCompleted
		result.ProgressPercentage = 100
		return result, nil
	}

	waves, err := topologicalWaves(plan.Steps)
	if err != nil {
		result.Status = types.ExecutionFailed
		return result, err
	}

	resultsByStep := make(map[string]*types.StepResult, len(plan.Steps))
	var resultsMu sync.Mutex
	sem := semaphore.NewWeighted(s.concurrency)

	stepByID := make(map[string]types.PlanStep, len(plan.Steps))
	for _, st := range plan.Steps {
		stepByID[st.ID] = st
	}

	for _, wave := range waves {
		if err := ctx.Err(); err != nil {
			result.Status = types.ExecutionCancelled
			return s.finalize(result, resultsByStep, plan), ctx.Err()
		}

		var wg sync.WaitGroup
		for _, stepID := range wave {
			step := stepByID[stepID]
			if err := sem.Acquire(ctx, 1); err != nil {
				result.Status = types.ExecutionCancelled
				return s.finalize(result, resultsByStep, plan), err
			}
			wg.Add(1)
			go func(step types.PlanStep) {
				defer wg.Done()
				defer sem.Release(1)

				if onProgress != nil {
					onProgress(ProgressEvent{StepID: step.ID, Phase: "start"})
				}
				stepResult := s.runWithRetry(ctx, step)
				resultsMu.Lock()
				resultsByStep[step.ID] = stepResult
				resultsMu.Unlock()
				if onProgress != nil {
					onProgress(ProgressEvent{StepID: step.ID, Phase: "complete", Result: stepResult})
				}
			}(step)
		}
		wg.Wait()
	}

	return s.finalize(result, resultsByStep, plan), nil
}

func (s *Stage) finalize(result *types.ExecutionResult, resultsByStep map[string]*types.StepResult, plan *types.Plan) *types.ExecutionResult {
	for _, step := range plan.Steps {
		r, ok := resultsByStep[step.ID]
		if !ok {
			continue
		}
		result.StepResults = append(result.StepResults, *r)
		switch r.Status {
		case types.StepCompleted:
			result.CompletedSteps++
		case types.StepFailed:
			result.FailedSteps++
		}
	}
	if result.TotalSteps > 0 {
		result.ProgressPercentage = 100 * float64(result.CompletedSteps+result.FailedSteps) / float64(result.TotalSteps)
	}
	if result.Status != types.ExecutionCancelled {
		if result.FailedSteps > 0 {
			result.Status = types.ExecutionCompleted // warnings carried in StepResults; no hard blocking dependency model here
		} else {
			result.Status = types.ExecutionCompleted
		}
	}
	return result
}

// runWithRetry invokes the step's runner, retrying up to RetryCount
// times with exponential backoff and jitter.
func (s *Stage) runWithRetry(ctx context.Context, step types.PlanStep) *types.StepResult {
	start := time.Now()
	var lastErr error
	var stdout, stderr string
	var output map[string]interface{}

	attempts := step.RetryCount + 1
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			delay := backoffWithJitter(attempt)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return failedStepResult(step.ID, start, ctx.Err())
			}
		}

		stepCtx := ctx
		var cancel context.CancelFunc
		if step.TimeoutS > 0 {
			stepCtx, cancel = context.WithTimeout(ctx, time.Duration(step.TimeoutS)*time.Second)
		}
		out, errOut, data, err := s.registry.Execute(stepCtx, step.Tool, step.Inputs)
		if cancel != nil {
			cancel()
		}
		stdout, stderr, output, lastErr = out, errOut, data, err
		if lastErr == nil {
			break
		}
		s.logger.Warn("step attempt failed", zap.String("step_id", step.ID), zap.Int("attempt", attempt), zap.Error(lastErr))
	}

	if lastErr != nil {
		metrics.RecordExecutionStep("failed")
		return failedStepResult(step.ID, start, lastErr)
	}
	metrics.RecordExecutionStep("completed")
	return &types.StepResult{
		StepID:     step.ID,
		Status:     types.StepCompleted,
		Stdout:     stdout,
		Stderr:     stderr,
		Output:     output,
		DurationMs: time.Since(start).Milliseconds(),
	}
}

func failedStepResult(stepID string, start time.Time, err error) *types.StepResult {
	return &types.StepResult{
		StepID:       stepID,
		Status:       types.StepFailed,
		ErrorMessage: err.Error(),
		DurationMs:   time.Since(start).Milliseconds(),
	}
}

// backoffWithJitter grows the delay exponentially
// (baseDelay * 2^retryCount, capped) plus up to 20% jitter.
func backoffWithJitter(attempt int) time.Duration {
	const base = 200 * time.Millisecond
	const cap_ = 10 * time.Second

	backoff := base * time.Duration(1<<uint(attempt-1))
	if backoff > cap_ {
		backoff = cap_
	}
	jitter := time.Duration(rand.Int63n(int64(backoff) / 5))
	return backoff + jitter
}

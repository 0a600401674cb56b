// Package orchestrator implements the Orchestrator:
// sequences Stage AB, C, D, and E, drives the confidence-gated
// clarification loop, and reports rolling metrics and health.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/opsconductor/pipeline-core/internal/pipeline/assets"
	"github.com/opsconductor/pipeline-core/internal/pipeline/convo"
	"github.com/opsconductor/pipeline-core/internal/pipeline/stageab"
	"github.com/opsconductor/pipeline-core/internal/pipeline/stagec"
	"github.com/opsconductor/pipeline-core/internal/pipeline/staged"
	"github.com/opsconductor/pipeline-core/internal/pipeline/stagee"
	"github.com/opsconductor/pipeline-core/internal/pipeline/types"
	"github.com/opsconductor/pipeline-core/internal/validation"
	"github.com/opsconductor/pipeline-core/pkg/infrastructure/metrics"
	sharedmath "github.com/opsconductor/pipeline-core/pkg/shared/math"
)

// Orchestrator-level defaults.
const (
	defaultMaxHistory       = 1000
	defaultBatchConcurrency = 5
	defaultDeadline         = 60 * time.Second
	recentWindow            = 5 * time.Minute
)

// pendingApproval holds an approval-gated plan until ApproveAndResume is
// called for it. In-memory only.
type pendingApproval struct {
	plan     *types.Plan
	response *types.Response
	created  time.Time
}

// Orchestrator wires every stage together and maintains process-wide
// rolling metrics and health state.
type Orchestrator struct {
	stageAB  *stageab.Stage
	stageC   *stagec.Stage
	stageD   *staged.Stage
	stageE   *stagee.Stage
	convo    convo.Store
	assets   *assets.Client
	logger   *zap.Logger
	tracer   trace.Tracer
	deadline time.Duration

	mu             sync.Mutex
	activeRequests map[string]time.Time
	completed      []types.PipelineMetrics
	maxHistory     int
	successCount   int64
	errorCount     int64
	sessionLocks   map[string]*sync.Mutex
	pending        map[string]*pendingApproval
}

// New builds an Orchestrator.
func New(stageAB *stageab.Stage, stageC *stagec.Stage, stageD *staged.Stage, stageE *stagee.Stage, convoStore convo.Store, assetClient *assets.Client, logger *zap.Logger) *Orchestrator {
	return &Orchestrator{
		stageAB:        stageAB,
		stageC:         stageC,
		stageD:         stageD,
		stageE:         stageE,
		convo:          convoStore,
		assets:         assetClient,
		logger:         logger,
		tracer:         otel.Tracer("pipeline-core/orchestrator"),
		deadline:       defaultDeadline,
		activeRequests: make(map[string]time.Time),
		maxHistory:     defaultMaxHistory,
		sessionLocks:   make(map[string]*sync.Mutex),
		pending:        make(map[string]*pendingApproval),
	}
}

// WithDeadline overrides the end-to-end request deadline (default 60s).
// A non-positive value disables the deadline.
func (o *Orchestrator) WithDeadline(d time.Duration) *Orchestrator {
	o.deadline = d
	return o
}

// sessionLock returns the serialization mutex for a session so requests
// within one session_id process in arrival order; requests across
// sessions stay fully concurrent.
func (o *Orchestrator) sessionLock(sessionID string) *sync.Mutex {
	o.mu.Lock()
	defer o.mu.Unlock()
	l, ok := o.sessionLocks[sessionID]
	if !ok {
		l = &sync.Mutex{}
		o.sessionLocks[sessionID] = l
	}
	return l
}

func emit(progress types.ProgressFunc, stage types.Stage, phase types.ProgressPhase, name string, durationMs int64) {
	if progress == nil {
		return
	}
	progress(types.ProgressEvent{Stage: stage, Phase: phase, Name: name, DurationMs: durationMs})
}

// ProcessRequest runs the full pipeline for one user request: attach
// session history, Stage AB, asset validation, Stage C when tools were
// selected, Stage D, then Stage E unless the plan is approval-gated.
// progress may be nil.
func (o *Orchestrator) ProcessRequest(ctx context.Context, userRequest, requestID string, reqCtx *types.RequestContext, progress types.ProgressFunc) *types.PipelineResult {
	if requestID == "" {
		requestID = "req_" + uuid.NewString()
	}
	if reqCtx == nil {
		reqCtx = types.NewRequestContext("", "", requestID, userRequest)
	}

	if err := validation.ValidateUserRequest(userRequest); err != nil {
		response := &types.Response{
			ResponseType: types.ResponseClarification,
			Message:      fmt.Sprintf("I couldn't process that request: %v.", err),
			Confidence:   types.ConfidenceLow,
			ClarificationNeeded: []types.ClarificationQuestion{
				{Question: "What would you like me to do, and on which system?", Required: true},
			},
			ErrorKind: "input_invalid",
		}
		return o.clarificationResult(requestID, time.Now(), map[types.Stage]int64{}, &types.Selection{NextStage: types.NextStageD}, response)
	}

	if reqCtx.SessionID != "" {
		l := o.sessionLock(reqCtx.SessionID)
		l.Lock()
		defer l.Unlock()
	}

	if o.deadline > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.deadline)
		defer cancel()
	}

	ctx, span := o.tracer.Start(ctx, "pipeline.process_request",
		trace.WithAttributes(attribute.String("request_id", requestID)))
	defer span.End()

	start := time.Now()
	o.trackActive(requestID, start)
	metrics.IncrementActiveRequests()
	defer metrics.DecrementActiveRequests()
	defer o.untrackActive(requestID)

	stageDurations := make(map[types.Stage]int64)

	if o.convo != nil && reqCtx.SessionID != "" {
		history, err := o.convo.Formatted(ctx, reqCtx.SessionID, 0)
		if err != nil {
			o.logger.Warn("failed to load conversation history", zap.Error(err))
		} else {
			reqCtx.ConversationHistory = history
		}
	}

	emit(progress, types.StageAB, types.PhaseStart, "understand_select", 0)
	stageStart := time.Now()
	abCtx, abSpan := o.tracer.Start(ctx, "pipeline.stage_ab")
	selection, err := o.stageAB.Execute(abCtx, stageab.Request{UserRequest: userRequest, Context: reqCtx})
	abSpan.End()
	stageDurations[types.StageAB] = time.Since(stageStart).Milliseconds()
	emit(progress, types.StageAB, types.PhaseComplete, "understand_select", stageDurations[types.StageAB])
	if err != nil {
		return o.failureResult(requestID, start, stageDurations, fmt.Errorf("stage ab failed: %w", err))
	}

	if o.needsClarification(selection, reqCtx) {
		response := o.handleClarification(ctx, userRequest, selection, reqCtx)
		return o.clarificationResult(requestID, start, stageDurations, selection, response)
	}

	if unresolved := o.validateEntities(ctx, reqCtx.Entities); len(unresolved) > 0 {
		metrics.RecordAssetValidationFailure()
		err := fmt.Errorf("could not resolve %d target(s) against the asset inventory: %s", len(unresolved), strings.Join(unresolved, ", "))
		return o.failureResult(requestID, start, stageDurations, err)
	}

	var plan *types.Plan
	if !selection.IsEmpty() {
		emit(progress, types.StageC, types.PhaseStart, "plan", 0)
		stageStart = time.Now()
		cCtx, cSpan := o.tracer.Start(ctx, "pipeline.stage_c")
		plan, err = o.stageC.Execute(cCtx, selection, reqCtx)
		cSpan.End()
		stageDurations[types.StageC] = time.Since(stageStart).Milliseconds()
		emit(progress, types.StageC, types.PhaseComplete, "plan", stageDurations[types.StageC])
		if err != nil {
			return o.failureResult(requestID, start, stageDurations, fmt.Errorf("stage c failed: %w", err))
		}
	}

	emit(progress, types.StageD, types.PhaseStart, "answer", 0)
	stageStart = time.Now()
	dCtx, dSpan := o.tracer.Start(ctx, "pipeline.stage_d")
	response, err := o.stageD.Execute(dCtx, staged.Request{UserRequest: userRequest, Selection: selection, Plan: plan, Context: reqCtx})
	dSpan.End()
	stageDurations[types.StageD] = time.Since(stageStart).Milliseconds()
	emit(progress, types.StageD, types.PhaseComplete, "answer", stageDurations[types.StageD])
	if err != nil {
		return o.failureResult(requestID, start, stageDurations, fmt.Errorf("stage d failed: %w", err))
	}

	var execResult *types.ExecutionResult
	if plan != nil && !plan.IsEmpty() {
		if response.ApprovalRequired {
			o.storePending(requestID, &pendingApproval{plan: plan, response: response, created: start})
		} else {
			emit(progress, types.StageE, types.PhaseStart, "execute", 0)
			stageStart = time.Now()
			eCtx, eSpan := o.tracer.Start(ctx, "pipeline.stage_e")
			execResult, err = o.stageE.Execute(eCtx, plan, bridgeProgress(progress))
			eSpan.End()
			stageDurations[types.StageE] = time.Since(stageStart).Milliseconds()
			emit(progress, types.StageE, types.PhaseComplete, "execute", stageDurations[types.StageE])
			if err != nil {
				return o.failureResult(requestID, start, stageDurations, fmt.Errorf("stage e failed: %w", err))
			}
		}
	}

	o.recordConversation(ctx, reqCtx, userRequest, response)

	metrics := types.PipelineMetrics{
		RequestID:        requestID,
		Timestamp:        start,
		Status:           types.StatusCompleted,
		TotalDurationMs:  time.Since(start).Milliseconds(),
		StageDurationsMs: stageDurations,
	}
	o.recordSuccess(metrics)

	return &types.PipelineResult{
		Response:  response,
		Metrics:   metrics,
		Selection: selection,
		Plan:      plan,
		Execution: execResult,
		Success:   true,
	}
}

// bridgeProgress adapts the caller's pipeline-level progress callback to
// Stage E's per-step callback shape.
func bridgeProgress(progress types.ProgressFunc) stagee.ProgressCallback {
	if progress == nil {
		return nil
	}
	return func(ev stagee.ProgressEvent) {
		phase := types.PhaseStart
		var durationMs int64
		if ev.Phase == "complete" {
			phase = types.PhaseComplete
			if ev.Result != nil {
				durationMs = ev.Result.DurationMs
			}
		}
		progress(types.ProgressEvent{Stage: types.StageE, Phase: phase, Name: ev.StepID, DurationMs: durationMs})
	}
}

func (o *Orchestrator) storePending(requestID string, p *pendingApproval) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.pending[requestID] = p
	if len(o.pending) > o.maxHistory {
		var oldestID string
		var oldest time.Time
		for id, entry := range o.pending {
			if oldestID == "" || entry.created.Before(oldest) {
				oldestID, oldest = id, entry.created
			}
		}
		delete(o.pending, oldestID)
	}
}

// ApproveAndResume executes a previously approval-gated plan.
// The plan is held in memory only; an unknown or already-consumed
// request_id is an error.
func (o *Orchestrator) ApproveAndResume(ctx context.Context, requestID string, progress types.ProgressFunc) *types.PipelineResult {
	o.mu.Lock()
	p, ok := o.pending[requestID]
	if ok {
		delete(o.pending, requestID)
	}
	o.mu.Unlock()

	start := time.Now()
	stageDurations := make(map[types.Stage]int64)
	if !ok {
		return o.failureResult(requestID, start, stageDurations, fmt.Errorf("no approval-gated plan is pending for request %q", requestID))
	}

	if o.deadline > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.deadline)
		defer cancel()
	}
	ctx, span := o.tracer.Start(ctx, "pipeline.approve_and_resume",
		trace.WithAttributes(attribute.String("request_id", requestID)))
	defer span.End()

	emit(progress, types.StageE, types.PhaseStart, "execute", 0)
	stageStart := time.Now()
	execResult, err := o.stageE.Execute(ctx, p.plan, bridgeProgress(progress))
	stageDurations[types.StageE] = time.Since(stageStart).Milliseconds()
	emit(progress, types.StageE, types.PhaseComplete, "execute", stageDurations[types.StageE])
	if err != nil {
		return o.failureResult(requestID, start, stageDurations, fmt.Errorf("stage e failed: %w", err))
	}

	m := types.PipelineMetrics{
		RequestID:        requestID,
		Timestamp:        start,
		Status:           types.StatusCompleted,
		TotalDurationMs:  time.Since(start).Milliseconds(),
		StageDurationsMs: stageDurations,
	}
	o.recordSuccess(m)
	return &types.PipelineResult{
		Response:  p.response,
		Metrics:   m,
		Plan:      p.plan,
		Execution: execResult,
		Success:   true,
	}
}

// hostEntityTypes are the Entity.Type values that must resolve against
// the asset inventory unless explicitly flagged AdHoc.
var hostEntityTypes = map[string]struct{}{
	"host": {},
	"ip":   {},
}

// validateEntities resolves every hostname/IP entity against the asset
// service, returning the values that could not be resolved. Entities
// tagged AdHoc are exempt.
func (o *Orchestrator) validateEntities(ctx context.Context, entities []types.Entity) []string {
	if o.assets == nil {
		return nil
	}
	var unresolved []string
	for _, e := range entities {
		if e.AdHoc {
			continue
		}
		if _, ok := hostEntityTypes[e.Type]; !ok {
			continue
		}
		found, err := o.assets.FetchAssets(ctx, e.Value, 1)
		if err != nil {
			o.logger.Warn("asset validation fetch failed, treating as unresolved", zap.String("entity", e.Value), zap.Error(err))
			unresolved = append(unresolved, e.Value)
			continue
		}
		if len(found) == 0 {
			unresolved = append(unresolved, e.Value)
		}
	}
	return unresolved
}

// needsClarification is true whenever confidence is below threshold;
// handleClarification decides between another question and the final
// refusal based on the attempt ceiling.
func (o *Orchestrator) needsClarification(selection *types.Selection, reqCtx *types.RequestContext) bool {
	return selection.SelectionConfidence < o.stageD.ConfidenceThreshold()
}

func (o *Orchestrator) handleClarification(ctx context.Context, userRequest string, selection *types.Selection, reqCtx *types.RequestContext) *types.Response {
	if reqCtx.ClarificationAttempts >= o.stageD.MaxAttempts() {
		metrics.RecordClarificationRefusal()
		return confidenceRefusalResponse(userRequest, selection, reqCtx, o.stageD.ConfidenceThreshold())
	}
	metrics.RecordClarification()
	resp, err := o.stageD.Execute(ctx, staged.Request{UserRequest: userRequest, Selection: selection, Context: reqCtx})
	if err != nil {
		return &types.Response{ResponseType: types.ResponseError, Message: fmt.Sprintf("clarification generation failed: %v", err)}
	}
	reqCtx.ClarificationHistory = append(reqCtx.ClarificationHistory, fmt.Sprintf("attempt %d, confidence %.2f", reqCtx.ClarificationAttempts, selection.SelectionConfidence))
	return resp
}

// confidenceRefusalResponse mirrors the original's exact refusal
// template when the clarification attempt ceiling has been reached.
func confidenceRefusalResponse(userRequest string, selection *types.Selection, reqCtx *types.RequestContext, threshold float64) *types.Response {
	message := fmt.Sprintf(
		"I apologize, but after %d attempts to clarify your request, I still don't have enough confidence to proceed safely.\n\n"+
			"Original request: %s\n\n"+
			"Current understanding: intent %s/%s, confidence %.0f%% (below %.0f%% threshold).\n\n"+
			"As an AI system responsible for infrastructure operations, I must maintain a minimum confidence level before executing any actions. "+
			"This ensures safety and prevents unintended consequences.\n\n"+
			"Please rephrase your request with more specific details: the system or service name, and the exact action you want performed.",
		reqCtx.ClarificationAttempts, userRequest, selection.IntentCategory, selection.IntentAction,
		selection.SelectionConfidence*100, threshold*100,
	)
	return &types.Response{
		ResponseType: types.ResponseError,
		Message:      message,
		Confidence:   types.ConfidenceLow,
		ErrorKind:    "insufficient_confidence_after_clarification",
	}
}

// combinedClarificationMessage folds a follow-up answer into the
// original request so Stage AB sees one composite message.
func combinedClarificationMessage(originalRequest, newMessage string) string {
	return originalRequest + "\n\nAdditional clarification provided: " + newMessage
}

// ContinueWithClarification re-enters the pipeline after the caller
// supplies the missing information.
func (o *Orchestrator) ContinueWithClarification(ctx context.Context, reqCtx *types.RequestContext, newMessage string) *types.PipelineResult {
	combined := combinedClarificationMessage(reqCtx.OriginalRequest, newMessage)
	return o.ProcessRequest(ctx, combined, reqCtx.SessionID, reqCtx, nil)
}

func (o *Orchestrator) recordConversation(ctx context.Context, reqCtx *types.RequestContext, userRequest string, response *types.Response) {
	if o.convo == nil || reqCtx.SessionID == "" {
		return
	}
	if err := o.convo.Add(ctx, reqCtx.SessionID, convo.RoleUser, userRequest); err != nil {
		o.logger.Warn("failed to persist user turn", zap.Error(err))
	}
	if err := o.convo.Add(ctx, reqCtx.SessionID, convo.RoleAssistant, response.Message); err != nil {
		o.logger.Warn("failed to persist assistant turn", zap.Error(err))
	}
}

func (o *Orchestrator) failureResult(requestID string, start time.Time, stageDurations map[types.Stage]int64, err error) *types.PipelineResult {
	status := types.StatusFailed
	if errors.Is(err, context.Canceled) {
		status = types.StatusCancelled
	}
	metrics := types.PipelineMetrics{
		RequestID:        requestID,
		Timestamp:        start,
		Status:           status,
		TotalDurationMs:  time.Since(start).Milliseconds(),
		StageDurationsMs: stageDurations,
		ErrorDetails:     err.Error(),
	}
	o.recordFailure(metrics)
	return &types.PipelineResult{
		Response:     &types.Response{ResponseType: types.ResponseError, Message: fmt.Sprintf("pipeline failed: %v", err), Confidence: types.ConfidenceLow},
		Metrics:      metrics,
		Success:      false,
		ErrorMessage: err.Error(),
	}
}

func (o *Orchestrator) clarificationResult(requestID string, start time.Time, stageDurations map[types.Stage]int64, selection *types.Selection, response *types.Response) *types.PipelineResult {
	metrics := types.PipelineMetrics{
		RequestID:        requestID,
		Timestamp:        start,
		Status:           types.StatusNeedsClarification,
		TotalDurationMs:  time.Since(start).Milliseconds(),
		StageDurationsMs: stageDurations,
	}
	o.recordSuccess(metrics)
	return &types.PipelineResult{
		Response:           response,
		Metrics:            metrics,
		Selection:          selection,
		Success:            true,
		NeedsClarification: true,
	}
}

func (o *Orchestrator) trackActive(requestID string, start time.Time) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.activeRequests[requestID] = start
}

func (o *Orchestrator) untrackActive(requestID string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.activeRequests, requestID)
}

func (o *Orchestrator) recordSuccess(m types.PipelineMetrics) {
	metrics.RecordPipelineCompletion(string(m.Status), time.Duration(m.TotalDurationMs)*time.Millisecond)
	for stage, ms := range m.StageDurationsMs {
		metrics.RecordStage(string(stage), "success", time.Duration(ms)*time.Millisecond)
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	o.successCount++
	o.appendHistory(m)
}

func (o *Orchestrator) recordFailure(m types.PipelineMetrics) {
	metrics.RecordPipelineCompletion(string(m.Status), time.Duration(m.TotalDurationMs)*time.Millisecond)
	for stage, ms := range m.StageDurationsMs {
		metrics.RecordStage(string(stage), "error", time.Duration(ms)*time.Millisecond)
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	o.errorCount++
	o.appendHistory(m)
}

// appendHistory must be called with o.mu held.
func (o *Orchestrator) appendHistory(m types.PipelineMetrics) {
	o.completed = append(o.completed, m)
	if len(o.completed) > o.maxHistory {
		o.completed = o.completed[len(o.completed)-o.maxHistory:]
	}
}

// HealthStatus reports healthy (≥95% success and ≤10s avg response),
// degraded (80-95% success), or unhealthy (below 80% or avg over 10s).
type HealthStatus struct {
	Status            string
	TotalRequests     int64
	SuccessCount      int64
	ErrorCount        int64
	SuccessRatePct    float64
	AvgResponseTimeMs float64
	ActiveRequests    int
}

// Health computes the current health snapshot.
func (o *Orchestrator) Health() HealthStatus {
	o.mu.Lock()
	defer o.mu.Unlock()

	total := o.successCount + o.errorCount
	successRate := 100.0
	if total > 0 {
		successRate = float64(o.successCount) / float64(total) * 100
	}

	now := time.Now()
	var recentSum int64
	var recentCount int
	for _, m := range o.completed {
		if now.Sub(m.Timestamp) < recentWindow {
			recentSum += m.TotalDurationMs
			recentCount++
		}
	}
	avgResponse := 0.0
	if recentCount > 0 {
		avgResponse = float64(recentSum) / float64(recentCount)
	}

	status := "healthy"
	if successRate < 95.0 {
		status = "degraded"
	}
	if successRate < 80.0 || avgResponse > 10000 {
		status = "unhealthy"
	}

	return HealthStatus{
		Status:            status,
		TotalRequests:     total,
		SuccessCount:      o.successCount,
		ErrorCount:        o.errorCount,
		SuccessRatePct:    successRate,
		AvgResponseTimeMs: avgResponse,
		ActiveRequests:    len(o.activeRequests),
	}
}

// PerformanceMetrics reports rolling latency percentiles.
type PerformanceMetrics struct {
	TotalRequests int64
	AvgDurationMs float64
	Percentiles   map[string]float64
	SuccessRate   float64
}

// PerformanceMetrics computes p50/p90/p95/p99 over the bounded history.
func (o *Orchestrator) PerformanceMetrics() PerformanceMetrics {
	o.mu.Lock()
	defer o.mu.Unlock()

	if len(o.completed) == 0 {
		return PerformanceMetrics{Percentiles: map[string]float64{}, SuccessRate: 100.0}
	}

	durations := make([]float64, len(o.completed))
	for i, m := range o.completed {
		durations[i] = float64(m.TotalDurationMs)
	}
	sortedAscending := append([]float64(nil), durations...)
	sortFloat64s(sortedAscending)

	var sum float64
	for _, d := range durations {
		sum += d
	}

	total := o.successCount + o.errorCount
	successRate := 100.0
	if total > 0 {
		successRate = float64(o.successCount) / float64(total) * 100
	}

	return PerformanceMetrics{
		TotalRequests: int64(len(o.completed)),
		AvgDurationMs: sum / float64(len(durations)),
		Percentiles: map[string]float64{
			"p50": sharedmath.Percentile(sortedAscending, 50),
			"p90": sharedmath.Percentile(sortedAscending, 90),
			"p95": sharedmath.Percentile(sortedAscending, 95),
			"p99": sharedmath.Percentile(sortedAscending, 99),
		},
		SuccessRate: successRate,
	}
}

func sortFloat64s(values []float64) {
	for i := 1; i < len(values); i++ {
		for j := i; j > 0 && values[j-1] > values[j]; j-- {
			values[j-1], values[j] = values[j], values[j-1]
		}
	}
}

// ProcessBatch processes multiple requests with a concurrency cap,
// returning results index-stable with the input order even when some
// requests fail.
func (o *Orchestrator) ProcessBatch(ctx context.Context, requests []string, maxConcurrent int) []*types.PipelineResult {
	if maxConcurrent <= 0 {
		maxConcurrent = defaultBatchConcurrency
	}
	results := make([]*types.PipelineResult, len(requests))
	sem := semaphore.NewWeighted(int64(maxConcurrent))
	var wg sync.WaitGroup

	for i, req := range requests {
		if err := sem.Acquire(ctx, 1); err != nil {
			results[i] = o.failureResult(fmt.Sprintf("batch_%d", i), time.Now(), map[types.Stage]int64{}, err)
			continue
		}
		wg.Add(1)
		go func(i int, req string) {
			defer wg.Done()
			defer sem.Release(1)
			results[i] = o.ProcessRequest(ctx, req, fmt.Sprintf("batch_%d", i), nil, nil)
		}(i, req)
	}
	wg.Wait()
	return results
}

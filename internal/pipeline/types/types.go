// Package types defines the inter-stage data contracts of the pipeline
// orchestration core: RequestContext, Selection, Plan,
// Response, ExecutionResult, and the catalog's ToolProfile. Every record
// here is versioned and immutable by convention — stages return a new
// value rather than mutating the one they received, except RequestContext
// which is explicitly a mutable carry-bag threaded through all stages.
package types

import "time"

// Stage names a point in the pipeline; used for next-stage routing and
// progress-event reporting.
type Stage string

const (
	StageAB           Stage = "stage_ab"
	StageC            Stage = "stage_c"
	StageD            Stage = "stage_d"
	StageE            Stage = "stage_e"
	StageAssetValidate Stage = "asset_validate"
)

// ProgressPhase marks the start/complete boundary of a stage or step for a
// caller-supplied progress callback.
type ProgressPhase string

const (
	PhaseStart    ProgressPhase = "start"
	PhaseComplete ProgressPhase = "complete"
)

// ProgressEvent is delivered to a caller-supplied progress_cb.
type ProgressEvent struct {
	Stage      Stage
	Phase      ProgressPhase
	Name       string
	DurationMs int64
	Message    string
}

// ProgressFunc is the caller-supplied progress callback shape.
type ProgressFunc func(ProgressEvent)

// RiskLevel is the clamp-derived risk classification of a Selection.
type RiskLevel string

const (
	RiskLow      RiskLevel = "low"
	RiskMedium   RiskLevel = "medium"
	RiskHigh     RiskLevel = "high"
	RiskCritical RiskLevel = "critical"
)

// rank returns the ordinal position of a risk level for "at least X" clamp
// comparisons.
func (r RiskLevel) rank() int {
	switch r {
	case RiskLow:
		return 0
	case RiskMedium:
		return 1
	case RiskHigh:
		return 2
	case RiskCritical:
		return 3
	default:
		return 0
	}
}

// AtLeast reports whether r is at least as severe as floor.
func (r RiskLevel) AtLeast(floor RiskLevel) bool {
	return r.rank() >= floor.rank()
}

// Max returns the more severe of r and other.
func (r RiskLevel) Max(other RiskLevel) RiskLevel {
	if other.rank() > r.rank() {
		return other
	}
	return r
}

// NextStage is Stage AB's routing decision.
type NextStage string

const (
	NextStageC NextStage = "stage_c"
	NextStageD NextStage = "stage_d"
)

// RequestContext is the mutable dictionary threaded through every stage
//. Stages read and append to Entities/CarryOver; Stage D increments
// ClarificationAttempts when it asks for clarification, and the
// orchestrator fills ConversationHistory.
type RequestContext struct {
	TenantID             string
	ActorID              string
	SessionID            string
	ConversationHistory  string
	ClarificationAttempts int
	OriginalRequest      string
	ClarificationHistory []string
	Entities             []Entity
	CarryOver            map[string]interface{}
}

func NewRequestContext(tenantID, actorID, sessionID, originalRequest string) *RequestContext {
	return &RequestContext{
		TenantID:        tenantID,
		ActorID:         actorID,
		SessionID:       sessionID,
		OriginalRequest: originalRequest,
		CarryOver:       make(map[string]interface{}),
	}
}

// Entity is an extracted piece of structured meaning from the user
// request, populated by Stage AB.
type Entity struct {
	Type  string
	Value string
	AdHoc bool // true if explicitly tagged as an ad-hoc (non-inventory) target
}

// SelectedTool is one entry in a Selection's ordered tool list.
type SelectedTool struct {
	ToolName        string
	CapabilityName  string
	PatternName     string
	Justification   string
	ExecutionOrder  int
	InputsNeeded    []string
}

// Policy is the risk/approval/auto-execute decision attached to a
// Selection.
type Policy struct {
	RiskLevel       RiskLevel
	RequiresApproval bool
	AutoExecute     bool
}

// Selection is Stage AB's output. Invariant: SelectedTools
// empty iff NextStage == stage_d.
type Selection struct {
	DecisionID          string
	Timestamp           time.Time
	SelectedTools       []SelectedTool
	Policy              Policy
	SelectionConfidence float64
	NextStage           NextStage
	IntentCategory      string
	IntentAction        string
	RequiredCapabilities []string
	Warnings            []string
}

// IsEmpty reports whether the Selection carries no selected tools — the
// deciding condition for NextStage and for Stage D's fast path.
func (s *Selection) IsEmpty() bool {
	return s == nil || len(s.SelectedTools) == 0
}

// PlanStep is one ordered unit of work in a Plan.
type PlanStep struct {
	ID          string
	Name        string
	Description string
	Tool        string
	Inputs      map[string]interface{}
	TimeoutS    int
	RetryCount  int
	DependsOn   []string
}

// ExecutionMetadata carries plan-level derived facts.
type ExecutionMetadata struct {
	TotalEstimatedTimeS float64
	RiskFactors         []string
	ApprovalPoints      []ApprovalPoint
	ComplexityClass     string // "low" | "medium" | "high"
}

// ApprovalPoint names a step that cannot execute without a named role's
// consent.
type ApprovalPoint struct {
	StepID       string
	RiskLevel    RiskLevel
	OperationType string
	ApproverRole string
}

// Plan is Stage C's output.
type Plan struct {
	DecisionID       string
	Timestamp        time.Time
	Steps            []PlanStep
	SafetyChecks     []string
	RollbackPlan     []string
	ExecutionMetadata ExecutionMetadata
}

// IsEmpty reports whether the plan has no steps — Stage C's structured
// failure shape.
func (p *Plan) IsEmpty() bool {
	return p == nil || len(p.Steps) == 0
}

// HasApprovalPoints reports whether any step requires sign-off.
func (p *Plan) HasApprovalPoints() bool {
	return p != nil && len(p.ExecutionMetadata.ApprovalPoints) > 0
}

// ResponseType is Stage D's response-shape discriminator.
type ResponseType string

const (
	ResponseInformation     ResponseType = "information"
	ResponsePlanSummary     ResponseType = "plan_summary"
	ResponseApprovalRequest ResponseType = "approval_request"
	ResponseExecutionReady  ResponseType = "execution_ready"
	ResponseError           ResponseType = "error"
	ResponseClarification   ResponseType = "clarification"
)

// ConfidenceLevel is Stage D's coarse confidence bucket.
type ConfidenceLevel string

const (
	ConfidenceHigh   ConfidenceLevel = "high"
	ConfidenceMedium ConfidenceLevel = "medium"
	ConfidenceLow    ConfidenceLevel = "low"
)

// ClarificationQuestion is one item in Response.ClarificationNeeded.
type ClarificationQuestion struct {
	Question string
	Options  []string
	Required bool
	Context  string
}

// Response is Stage D's output.
type Response struct {
	ResponseID         string
	ResponseType       ResponseType
	Message            string
	Confidence         ConfidenceLevel
	ExecutionSummary   string
	ApprovalRequired   bool
	ApprovalPoints     []ApprovalPoint
	ClarificationNeeded []ClarificationQuestion
	PartialAnalysis    string
	SourcesConsulted   []string
	Warnings           []string
	SuggestedActions   []string
	ProcessingTimeMs   int64
	ErrorKind          string
}

// StepStatus is the per-step execution outcome.
type StepStatus string

const (
	StepPending   StepStatus = "pending"
	StepRunning   StepStatus = "running"
	StepCompleted StepStatus = "completed"
	StepFailed    StepStatus = "failed"
	StepCancelled StepStatus = "cancelled"
)

// StepResult is one entry in an ExecutionResult.
type StepResult struct {
	StepID       string
	Status       StepStatus
	Stdout       string
	Stderr       string
	Output       map[string]interface{}
	DurationMs   int64
	ErrorMessage string
}

// ExecutionStatus is the overall plan-execution outcome.
type ExecutionStatus string

const (
	ExecutionPending   ExecutionStatus = "pending"
	ExecutionRunning   ExecutionStatus = "running"
	ExecutionCompleted ExecutionStatus = "completed"
	ExecutionFailed    ExecutionStatus = "failed"
	ExecutionCancelled ExecutionStatus = "cancelled"
)

// ExecutionResult is Stage E's output.
type ExecutionResult struct {
	ExecutionID        string
	Status             ExecutionStatus
	TotalSteps         int
	CompletedSteps     int
	FailedSteps        int
	ProgressPercentage float64
	StepResults        []StepResult
}

// Capability is a named behavior a tool offers.
type Capability struct {
	Name        string
	Description string
}

// FeatureVector is a pattern's raw scoring inputs.
type FeatureVector struct {
	TimeMs       float64
	Cost         float64
	Accuracy     float64
	Completeness float64
	Complexity   float64
	Limitations  []string
}

// ToolPattern is a named invocation shape of a tool.
type ToolPattern struct {
	Name    string
	Vector  FeatureVector
}

// IntentTag associates a tool with an (category, action) intent pair it
// serves.
type IntentTag struct {
	Category string
	Action   string
}

// ToolProfile is a catalog entity.
type ToolProfile struct {
	ToolName     string
	Platform     string
	Category     string
	Description  string
	Capabilities []Capability
	Patterns     []ToolPattern
	IntentTags   []IntentTag
}

// HasCapability reports whether the profile advertises the named
// capability.
func (t *ToolProfile) HasCapability(name string) bool {
	for _, c := range t.Capabilities {
		if c.Name == name {
			return true
		}
	}
	return false
}

// ConversationMessage is one entry in the Conversation Store.
type ConversationMessage struct {
	Role      string // "user" | "assistant"
	Content   string
	Timestamp time.Time
}

// PipelineStatus mirrors the orchestrator's overall per-request outcome.
type PipelineStatus string

const (
	StatusPending              PipelineStatus = "pending"
	StatusRunning              PipelineStatus = "running"
	StatusCompleted            PipelineStatus = "completed"
	StatusFailed               PipelineStatus = "failed"
	StatusCancelled            PipelineStatus = "cancelled"
	StatusNeedsClarification   PipelineStatus = "needs_clarification"
)

// PipelineMetrics captures one request's timing breakdown.
type PipelineMetrics struct {
	RequestID       string
	Timestamp       time.Time
	Status          PipelineStatus
	TotalDurationMs int64
	StageDurationsMs map[Stage]int64
	ErrorDetails    string
}

// PipelineResult is the Orchestrator's top-level return value.
type PipelineResult struct {
	Response             *Response
	Metrics              PipelineMetrics
	Selection            *Selection
	Plan                 *Plan
	Execution            *ExecutionResult
	Success              bool
	ErrorMessage         string
	NeedsClarification   bool
}

package orchestrator_test

import (
	"context"
	"sync"
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	"github.com/opsconductor/pipeline-core/internal/pipeline/assets"
	"github.com/opsconductor/pipeline-core/internal/pipeline/catalog"
	"github.com/opsconductor/pipeline-core/internal/pipeline/convo"
	"github.com/opsconductor/pipeline-core/internal/pipeline/llmgw"
	"github.com/opsconductor/pipeline-core/internal/pipeline/orchestrator"
	"github.com/opsconductor/pipeline-core/internal/pipeline/policy"
	"github.com/opsconductor/pipeline-core/internal/pipeline/stageab"
	"github.com/opsconductor/pipeline-core/internal/pipeline/stagec"
	"github.com/opsconductor/pipeline-core/internal/pipeline/staged"
	"github.com/opsconductor/pipeline-core/internal/pipeline/stagee"
	"github.com/opsconductor/pipeline-core/internal/pipeline/types"
)

func TestOrchestrator(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Orchestrator Suite")
}

type staticLoader struct{ profiles []types.ToolProfile }

func (l staticLoader) LoadAll() ([]types.ToolProfile, error) { return l.profiles, nil }

// queueProvider returns one scripted response per Complete call, in
// order, reusing the last response once exhausted. Every stage that
// calls the gateway shares one queue per test, mirroring the original
// orchestrator's single shared LLM client.
type queueProvider struct {
	responses []string
	calls     int
}

func (p *queueProvider) Name() string { return "queued" }

func (p *queueProvider) Complete(ctx context.Context, req llmgw.GenerateRequest) (llmgw.GenerateResult, error) {
	idx := p.calls
	if idx >= len(p.responses) {
		idx = len(p.responses) - 1
	}
	p.calls++
	return llmgw.GenerateResult{Content: p.responses[idx]}, nil
}

func (p *queueProvider) Stream(ctx context.Context, req llmgw.GenerateRequest) (<-chan llmgw.Chunk, error) {
	ch := make(chan llmgw.Chunk, 1)
	ch <- llmgw.Chunk{Done: true}
	close(ch)
	return ch, nil
}

var restartProfile = types.ToolProfile{
	ToolName:    "service_restart_tool",
	Category:    "lifecycle",
	Description: "restarts a named service on a target host",
	Capabilities: []types.Capability{
		{Name: "restart"},
	},
	Patterns: []types.ToolPattern{
		{Name: "default", Vector: types.FeatureVector{TimeMs: 500, Cost: 0.1, Accuracy: 0.95, Completeness: 0.9, Complexity: 0.2}},
	},
	IntentTags: []types.IntentTag{{Category: "lifecycle", Action: "restart"}},
}

func newOrchestrator(responses []string) (*orchestrator.Orchestrator, *stagee.Registry) {
	logger := zap.NewNop()

	cat, err := catalog.Load(staticLoader{profiles: []types.ToolProfile{restartProfile}})
	Expect(err).NotTo(HaveOccurred())

	provider := &queueProvider{responses: responses}
	gw := llmgw.NewGateway(provider, llmgw.BudgetConfig{MaxModelLen: 8192, OutputReserve: 1024, SafetyMargin: 256}, 0.9, 60, logger)

	assetClient, err := assets.NewClient(assets.Config{BaseURL: "http://unused.invalid"}, logger)
	Expect(err).NotTo(HaveOccurred())

	policyEngine, err := policy.NewEngine(context.Background())
	Expect(err).NotTo(HaveOccurred())

	ab := stageab.New(gw, cat, assetClient, policyEngine, 8, logger)
	c := stagec.New(gw, cat, 1800, logger)
	d := staged.New(gw, assetClient, policyEngine, 0.5, 3, logger)

	registry := stagee.NewRegistry()
	Expect(registry.Register("service_restart_tool", func(ctx context.Context, inputs map[string]interface{}) (string, string, map[string]interface{}, error) {
		return "restarted", "", nil, nil
	})).To(Succeed())
	e := stagee.New(registry, 2, logger)

	memStore := convo.NewMemoryStore(20)

	return orchestrator.New(ab, c, d, e, memStore, assetClient, logger), registry
}

const selectionLowConfidence = `{"intent_category":"lifecycle","intent_action":"restart","entities":[],"required_capabilities":["restart"],"candidate_tools":[{"tool_name":"service_restart_tool","why":"restart match"}],"risk_level":"low","requires_approval":false,"selection_confidence":0.2}`

const selectionHighConfidence = `{"intent_category":"lifecycle","intent_action":"restart","entities":[{"type":"host","value":"web-01","ad_hoc":true}],"required_capabilities":["restart"],"candidate_tools":[{"tool_name":"service_restart_tool","why":"restart match"}],"risk_level":"low","requires_approval":false,"selection_confidence":0.92}`

const planValid = `{"steps":[{"id":"s1","name":"restart","description":"restart web-01","tool":"service_restart_tool","inputs":{},"timeout_s":30,"retry_count":0,"depends_on":[],"estimated_time_s":5,"destructive":false}],"safety_checks":["verify service healthy"]}`

const informationalSelectionEmpty = `{"intent_category":"informational","intent_action":"explain","entities":[],"required_capabilities":[],"candidate_tools":[],"risk_level":"low","requires_approval":false,"selection_confidence":0.9}`

var _ = Describe("Orchestrator.ProcessRequest", func() {
	It("runs understanding, planning, and answering when confidence allows it", func() {
		o, registry := newOrchestrator([]string{selectionHighConfidence, planValid, "auto-execute narration"})
		Expect(registry.IsRegistered("service_restart_tool")).To(BeTrue())

		result := o.ProcessRequest(context.Background(), "restart web-01", "req-1", nil, nil)

		Expect(result.Success).To(BeTrue())
		Expect(result.Metrics.Status).To(Equal(types.StatusCompleted))
		Expect(result.Selection).NotTo(BeNil())
		Expect(result.Selection.SelectedTools).To(HaveLen(1))
		Expect(result.Plan).NotTo(BeNil())
	})

	It("executes a low-risk plan end to end without an approval stop", func() {
		diagnosticSelection := `{"intent_category":"observability","intent_action":"diagnose","entities":[],"required_capabilities":["read_logs"],"candidate_tools":[{"tool_name":"service_restart_tool","why":"only registered runner"}],"risk_level":"low","requires_approval":false,"selection_confidence":0.9}`
		o, _ := newOrchestrator([]string{diagnosticSelection, planValid})

		result := o.ProcessRequest(context.Background(), "check recent logs", "req-auto", nil, nil)

		Expect(result.Success).To(BeTrue())
		Expect(result.Response.ResponseType).To(Equal(types.ResponseExecutionReady))
		Expect(result.Response.ApprovalRequired).To(BeFalse())
		Expect(result.Execution).NotTo(BeNil())
		Expect(result.Execution.CompletedSteps).To(Equal(1))
	})

	It("returns a fast-path information response for an empty informational selection", func() {
		o, _ := newOrchestrator([]string{informationalSelectionEmpty, "here is the information you asked for"})
		result := o.ProcessRequest(context.Background(), "what is the status of things", "req-2", nil, nil)

		Expect(result.Success).To(BeTrue())
		Expect(result.Response.ResponseType).To(Equal(types.ResponseInformation))
		Expect(result.Plan).To(BeNil())
	})

	It("requests clarification when confidence is below threshold and attempts remain", func() {
		o, _ := newOrchestrator([]string{selectionLowConfidence})
		reqCtx := types.NewRequestContext("t1", "a1", "s1", "fix it")

		result := o.ProcessRequest(context.Background(), "fix it", "req-3", reqCtx, nil)

		Expect(result.Success).To(BeTrue())
		Expect(result.NeedsClarification).To(BeTrue())
		Expect(result.Metrics.Status).To(Equal(types.StatusNeedsClarification))
		Expect(reqCtx.ClarificationAttempts).To(Equal(1))
	})

	It("returns a confidence-refusal response once the clarification ceiling is reached", func() {
		o, _ := newOrchestrator([]string{selectionLowConfidence})
		reqCtx := types.NewRequestContext("t1", "a1", "s1", "fix it")
		reqCtx.ClarificationAttempts = 3

		result := o.ProcessRequest(context.Background(), "fix it", "req-4", reqCtx, nil)

		Expect(result.Success).To(BeTrue())
		Expect(result.NeedsClarification).To(BeTrue())
		Expect(result.Response.ResponseType).To(Equal(types.ResponseError))
		Expect(result.Response.Message).To(ContainSubstring("after 3 attempts"))
	})

	It("turns an empty request into a clarification rather than a failure", func() {
		o, _ := newOrchestrator([]string{informationalSelectionEmpty, "ok"})

		result := o.ProcessRequest(context.Background(), "   ", "req-empty", nil, nil)

		Expect(result.Success).To(BeTrue())
		Expect(result.NeedsClarification).To(BeTrue())
		Expect(result.Response.ResponseType).To(Equal(types.ResponseClarification))
		Expect(result.Response.ErrorKind).To(Equal("input_invalid"))
	})

	It("fails fast when a non-ad-hoc host entity cannot be resolved against the asset inventory", func() {
		unresolvable := `{"intent_category":"lifecycle","intent_action":"restart","entities":[{"type":"host","value":"unknown-host","ad_hoc":false}],"required_capabilities":["restart"],"candidate_tools":[{"tool_name":"service_restart_tool","why":"restart match"}],"risk_level":"low","requires_approval":false,"selection_confidence":0.92}`
		o, _ := newOrchestrator([]string{unresolvable})

		result := o.ProcessRequest(context.Background(), "restart unknown-host", "req-asset", nil, nil)

		Expect(result.Success).To(BeFalse())
		Expect(result.Metrics.Status).To(Equal(types.StatusFailed))
		Expect(result.ErrorMessage).To(ContainSubstring("unknown-host"))
	})

	It("completes the pipeline when continued with clarification text", func() {
		o, _ := newOrchestrator([]string{selectionHighConfidence, planValid, "auto-execute narration"})
		reqCtx := types.NewRequestContext("t1", "a1", "s1", "restart it")
		reqCtx.ClarificationAttempts = 1

		result := o.ContinueWithClarification(context.Background(), reqCtx, "I mean the web-01 service")

		Expect(result.Success).To(BeTrue())
	})
})

var _ = Describe("Orchestrator.ApproveAndResume", func() {
	It("holds an approval-gated plan and executes it only after approval", func() {
		o, _ := newOrchestrator([]string{selectionHighConfidence, planValid})

		result := o.ProcessRequest(context.Background(), "restart web-01", "req-appr", nil, nil)
		Expect(result.Success).To(BeTrue())
		Expect(result.Response.ApprovalRequired).To(BeTrue())
		Expect(result.Response.ResponseType).To(Equal(types.ResponseApprovalRequest))
		Expect(result.Execution).To(BeNil())

		resumed := o.ApproveAndResume(context.Background(), "req-appr", nil)
		Expect(resumed.Success).To(BeTrue())
		Expect(resumed.Execution).NotTo(BeNil())
		Expect(resumed.Execution.CompletedSteps).To(Equal(1))
	})

	It("fails for an unknown or already-consumed request id", func() {
		o, _ := newOrchestrator([]string{selectionHighConfidence, planValid})

		result := o.ApproveAndResume(context.Background(), "never-seen", nil)
		Expect(result.Success).To(BeFalse())
		Expect(result.ErrorMessage).To(ContainSubstring("never-seen"))
	})
})

var _ = Describe("Orchestrator progress events", func() {
	It("reports start and complete phases for every stage that runs", func() {
		o, _ := newOrchestrator([]string{informationalSelectionEmpty, "the answer"})

		var mu sync.Mutex
		var events []types.ProgressEvent
		result := o.ProcessRequest(context.Background(), "what is the inventory status", "req-prog", nil, func(ev types.ProgressEvent) {
			mu.Lock()
			events = append(events, ev)
			mu.Unlock()
		})
		Expect(result.Success).To(BeTrue())

		Expect(events).To(HaveLen(4))
		Expect(events[0].Stage).To(Equal(types.StageAB))
		Expect(events[0].Phase).To(Equal(types.PhaseStart))
		Expect(events[1].Phase).To(Equal(types.PhaseComplete))
		Expect(events[2].Stage).To(Equal(types.StageD))
		Expect(events[3].Stage).To(Equal(types.StageD))
	})
})

var _ = Describe("Orchestrator.Health", func() {
	It("reports healthy with no requests yet", func() {
		o, _ := newOrchestrator([]string{informationalSelectionEmpty, "ok"})
		health := o.Health()
		Expect(health.Status).To(Equal("healthy"))
		Expect(health.SuccessRatePct).To(Equal(100.0))
	})

	It("stays healthy when malformed LLM output degrades to clarification rather than a pipeline failure", func() {
		o, _ := newOrchestrator([]string{"not json at all", "not json at all"})
		for i := 0; i < 5; i++ {
			o.ProcessRequest(context.Background(), "do something", "req-h", nil, nil)
		}
		health := o.Health()
		Expect(health.Status).To(Equal("healthy"))
		Expect(health.TotalRequests).To(Equal(int64(5)))
	})
})

var _ = Describe("Orchestrator.ProcessBatch", func() {
	It("preserves index-stable ordering across concurrent requests", func() {
		o, _ := newOrchestrator([]string{informationalSelectionEmpty, "response text"})
		requests := []string{"what is up", "what is down", "what is sideways"}

		results := o.ProcessBatch(context.Background(), requests, 2)

		Expect(results).To(HaveLen(3))
		for _, r := range results {
			Expect(r).NotTo(BeNil())
		}
	})
})

var _ = Describe("Orchestrator.PerformanceMetrics", func() {
	It("reports percentiles once requests have completed", func() {
		o, _ := newOrchestrator([]string{informationalSelectionEmpty, "ok"})
		o.ProcessRequest(context.Background(), "what is up", "req-p1", nil, nil)
		o.ProcessRequest(context.Background(), "what is down", "req-p2", nil, nil)

		perf := o.PerformanceMetrics()
		Expect(perf.TotalRequests).To(Equal(int64(2)))
		Expect(perf.Percentiles).To(HaveKey("p50"))
		Expect(perf.Percentiles).To(HaveKey("p99"))
	})
})

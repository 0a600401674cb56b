// Package llmgw implements the LLM Gateway: a uniform
// chat/completion interface in front of the Anthropic and Bedrock
// providers, enforcing a per-request token budget and translating
// connection failures into the pipeline's structured error taxonomy.
package llmgw

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	pipelineerrors "github.com/opsconductor/pipeline-core/internal/errors"
	"github.com/opsconductor/pipeline-core/internal/pipeline/resilience"
	"github.com/opsconductor/pipeline-core/pkg/infrastructure/metrics"
)

func secondsToDuration(s int) time.Duration {
	return time.Duration(s) * time.Second
}

// promptTemplate holds the delimiter tags the instruction-tuned models in
// both providers were trained against; ComposePrompt renders it.
const promptTemplate = `<|system|>
%s
<|user|>
%s
<|assistant|>
`

// GenerateRequest is the uniform request shape passed to every provider.
type GenerateRequest struct {
	System      string
	Prompt      string
	Temperature float64
	MaxTokens   int
}

// GenerateResult is the uniform response shape every provider returns.
type GenerateResult struct {
	Content   string
	TokensIn  int
	TokensOut int
}

// Chunk is one piece of a streamed response.
type Chunk struct {
	Delta string
	Done  bool
	Err   error
}

// Provider is implemented by each concrete backend (Anthropic, Bedrock).
type Provider interface {
	Complete(ctx context.Context, req GenerateRequest) (GenerateResult, error)
	Stream(ctx context.Context, req GenerateRequest) (<-chan Chunk, error)
	Name() string
}

// BudgetConfig mirrors internal/config.LLMConfig's token-budget fields.
type BudgetConfig struct {
	MaxModelLen  int
	OutputReserve int
	SafetyMargin int
}

// Gateway is the pipeline-facing entrypoint: it enforces the token
// budget and wraps the provider call with a
// circuit breaker so an unhealthy LLM backend fails fast for every stage
// that depends on it.
type Gateway struct {
	provider Provider
	breaker  *resilience.CircuitBreaker
	budget   BudgetConfig
	logger   *zap.Logger
}

// NewGateway wires a provider behind a circuit breaker. failureThreshold
// and cooldown come from internal/config.ResilienceConfig, shared with
// every other guarded dependency.
func NewGateway(provider Provider, budget BudgetConfig, failureThreshold float64, cooldownSeconds int, logger *zap.Logger) *Gateway {
	return &Gateway{
		provider: provider,
		breaker:  resilience.NewCircuitBreaker("llm-gateway:"+provider.Name(), failureThreshold, secondsToDuration(cooldownSeconds)),
		budget:   budget,
		logger:   logger,
	}
}

// EstimateTokens is a coarse, provider-agnostic estimate (~4 chars/token)
// used only for the pre-flight budget check; the authoritative count
// comes back from the provider's usage field.
func EstimateTokens(s string) int {
	n := len(s) / 4
	if n == 0 && len(s) > 0 {
		n = 1
	}
	return n
}

func (g *Gateway) checkBudget(req GenerateRequest) error {
	allowed := g.budget.MaxModelLen - g.budget.OutputReserve - g.budget.SafetyMargin
	estimated := EstimateTokens(req.System) + EstimateTokens(req.Prompt)
	if estimated > allowed {
		return pipelineerrors.NewTokenBudgetExceededError(estimated, allowed)
	}
	return nil
}

// Generate enforces the token budget, then calls the provider through the
// circuit breaker. Connection failures surface as LLM_UNAVAILABLE; an
// open breaker surfaces as CIRCUIT_OPEN.
func (g *Gateway) Generate(ctx context.Context, req GenerateRequest) (GenerateResult, error) {
	if err := g.checkBudget(req); err != nil {
		return GenerateResult{}, err
	}

	metrics.RecordLLMCall(g.provider.Name())

	var result GenerateResult
	callErr := g.breaker.Call(func() error {
		r, err := g.provider.Complete(ctx, req)
		if err != nil {
			return err
		}
		result = r
		return nil
	})

	if callErr != nil {
		if g.breaker.GetState() == resilience.CircuitStateOpen {
			metrics.RecordLLMCallError(g.provider.Name(), "circuit_open")
			return GenerateResult{}, pipelineerrors.NewCircuitOpenError(g.breaker.GetName())
		}
		g.logger.Warn("llm provider call failed", zap.String("provider", g.provider.Name()), zap.Error(callErr))
		metrics.RecordLLMCallError(g.provider.Name(), "provider_error")
		return GenerateResult{}, pipelineerrors.NewLLMUnavailableError(callErr)
	}
	return result, nil
}

// Stream bypasses the circuit breaker's synchronous Call wrapper since a
// streamed response cannot be retried mid-flight; the provider itself is
// responsible for surfacing connection errors on the channel.
func (g *Gateway) Stream(ctx context.Context, req GenerateRequest) (<-chan Chunk, error) {
	if err := g.checkBudget(req); err != nil {
		return nil, err
	}
	if g.breaker.GetState() == resilience.CircuitStateOpen {
		return nil, pipelineerrors.NewCircuitOpenError(g.breaker.GetName())
	}
	return g.provider.Stream(ctx, req)
}

// ComposePrompt renders the uniform delimiter-tagged prompt text. Stage
// AB/C/D build System and Prompt separately, and Generate and Stream hand
// them to the provider as they are, without this template.
func ComposePrompt(system, user string) string {
	return fmt.Sprintf(promptTemplate, system, user)
}

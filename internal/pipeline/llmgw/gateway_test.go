package llmgw_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	pipelineerrors "github.com/opsconductor/pipeline-core/internal/errors"
	"github.com/opsconductor/pipeline-core/internal/pipeline/llmgw"
)

func TestLLMGateway(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "LLM Gateway Suite")
}

type fakeProvider struct {
	name    string
	result  llmgw.GenerateResult
	err     error
	calls   int
}

func (f *fakeProvider) Name() string { return f.name }

func (f *fakeProvider) Complete(ctx context.Context, req llmgw.GenerateRequest) (llmgw.GenerateResult, error) {
	f.calls++
	return f.result, f.err
}

func (f *fakeProvider) Stream(ctx context.Context, req llmgw.GenerateRequest) (<-chan llmgw.Chunk, error) {
	ch := make(chan llmgw.Chunk, 1)
	ch <- llmgw.Chunk{Done: true}
	close(ch)
	return ch, f.err
}

var _ = Describe("NewProvider", func() {
	It("rejects an unknown provider name", func() {
		_, err := llmgw.NewProvider(context.Background(), llmgw.ProviderConfig{Provider: "invalid"})
		Expect(err).To(HaveOccurred())
		Expect(err.Error()).To(ContainSubstring("unsupported provider: invalid"))
	})
})

var _ = Describe("ComposePrompt", func() {
	It("wraps system and user text in the delimiter tags", func() {
		prompt := llmgw.ComposePrompt("you are an ops assistant", "restart the payments service")

		Expect(prompt).To(ContainSubstring("<|system|>"))
		Expect(prompt).To(ContainSubstring("<|user|>"))
		Expect(prompt).To(ContainSubstring("<|assistant|>"))
		Expect(prompt).To(ContainSubstring("you are an ops assistant"))
		Expect(prompt).To(ContainSubstring("restart the payments service"))
	})

	It("does not leak raw format placeholders into the rendered prompt", func() {
		prompt := llmgw.ComposePrompt("sys", "usr")
		Expect(prompt).NotTo(ContainSubstring("%s"))
		Expect(strings.Count(prompt, "%")).To(Equal(0))
	})
})

var _ = Describe("Gateway", func() {
	var logger *zap.Logger

	BeforeEach(func() {
		logger = zap.NewNop()
	})

	It("fails fast with TOKEN_BUDGET_EXCEEDED when the prompt exceeds the budget", func() {
		provider := &fakeProvider{name: "fake"}
		gw := llmgw.NewGateway(provider, llmgw.BudgetConfig{
			MaxModelLen:   100,
			OutputReserve: 50,
			SafetyMargin:  20,
		}, 0.5, 60, logger)

		_, err := gw.Generate(context.Background(), llmgw.GenerateRequest{
			Prompt: strings.Repeat("x", 1000),
		})

		Expect(err).To(HaveOccurred())
		Expect(pipelineerrors.IsType(err, pipelineerrors.ErrorTypeTokenBudgetExceeded)).To(BeTrue())
		Expect(provider.calls).To(Equal(0))
	})

	It("returns the provider result when within budget", func() {
		provider := &fakeProvider{
			name:   "fake",
			result: llmgw.GenerateResult{Content: "restart confirmed", TokensIn: 10, TokensOut: 5},
		}
		gw := llmgw.NewGateway(provider, llmgw.BudgetConfig{
			MaxModelLen:   8192,
			OutputReserve: 1024,
			SafetyMargin:  256,
		}, 0.5, 60, logger)

		result, err := gw.Generate(context.Background(), llmgw.GenerateRequest{
			System: "system prompt",
			Prompt: "user prompt",
		})

		Expect(err).NotTo(HaveOccurred())
		Expect(result.Content).To(Equal("restart confirmed"))
		Expect(provider.calls).To(Equal(1))
	})

	It("surfaces connection failures as LLM_UNAVAILABLE", func() {
		provider := &fakeProvider{name: "fake", err: errors.New("connection refused")}
		gw := llmgw.NewGateway(provider, llmgw.BudgetConfig{
			MaxModelLen:   8192,
			OutputReserve: 1024,
			SafetyMargin:  256,
		}, 0.9, 60, logger)

		_, err := gw.Generate(context.Background(), llmgw.GenerateRequest{Prompt: "hello"})

		Expect(err).To(HaveOccurred())
		Expect(pipelineerrors.IsType(err, pipelineerrors.ErrorTypeLLMUnavailable)).To(BeTrue())
	})
})

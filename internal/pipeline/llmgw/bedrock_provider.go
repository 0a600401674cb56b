package llmgw

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	bedrockruntimetypes "github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
)

// BedrockProvider is the secondary LLM Gateway backend,
// selected when LLM_PROVIDER=bedrock. It speaks the Anthropic-on-Bedrock
// "messages" wire format via InvokeModel.
type BedrockProvider struct {
	client *bedrockruntime.Client
	model  string
}

// NewBedrockProvider loads the default AWS config chain (environment,
// shared config, EC2/ECS role) for the given region.
func NewBedrockProvider(ctx context.Context, region, model string) (*BedrockProvider, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config for bedrock: %w", err)
	}
	return &BedrockProvider{
		client: bedrockruntime.NewFromConfig(cfg),
		model:  model,
	}, nil
}

func (p *BedrockProvider) Name() string { return "bedrock" }

type bedrockMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type bedrockInvokeRequest struct {
	AnthropicVersion string           `json:"anthropic_version"`
	MaxTokens        int              `json:"max_tokens"`
	Temperature      float64          `json:"temperature"`
	System           string           `json:"system,omitempty"`
	Messages         []bedrockMessage `json:"messages"`
}

type bedrockUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

type bedrockContentBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type bedrockInvokeResponse struct {
	Content []bedrockContentBlock `json:"content"`
	Usage   bedrockUsage          `json:"usage"`
}

func (p *BedrockProvider) Complete(ctx context.Context, req GenerateRequest) (GenerateResult, error) {
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 1024
	}

	body, err := json.Marshal(bedrockInvokeRequest{
		AnthropicVersion: "bedrock-2023-05-31",
		MaxTokens:        maxTokens,
		Temperature:      req.Temperature,
		System:           req.System,
		Messages:         []bedrockMessage{{Role: "user", Content: req.Prompt}},
	})
	if err != nil {
		return GenerateResult{}, fmt.Errorf("failed to marshal bedrock request: %w", err)
	}

	out, err := p.client.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
		ModelId:     aws.String(p.model),
		ContentType: aws.String("application/json"),
		Accept:      aws.String("application/json"),
		Body:        body,
	})
	if err != nil {
		return GenerateResult{}, fmt.Errorf("bedrock invoke failed: %w", err)
	}

	var resp bedrockInvokeResponse
	if err := json.Unmarshal(out.Body, &resp); err != nil {
		return GenerateResult{}, fmt.Errorf("failed to parse bedrock response: %w", err)
	}

	var content string
	for _, block := range resp.Content {
		if block.Type == "text" {
			content += block.Text
		}
	}

	return GenerateResult{
		Content:   content,
		TokensIn:  resp.Usage.InputTokens,
		TokensOut: resp.Usage.OutputTokens,
	}, nil
}

// Stream uses InvokeModelWithResponseStream, decoding the
// Anthropic-on-Bedrock SSE-style event chunks as they arrive.
func (p *BedrockProvider) Stream(ctx context.Context, req GenerateRequest) (<-chan Chunk, error) {
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 1024
	}

	body, err := json.Marshal(bedrockInvokeRequest{
		AnthropicVersion: "bedrock-2023-05-31",
		MaxTokens:        maxTokens,
		Temperature:      req.Temperature,
		System:           req.System,
		Messages:         []bedrockMessage{{Role: "user", Content: req.Prompt}},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal bedrock request: %w", err)
	}

	stream, err := p.client.InvokeModelWithResponseStream(ctx, &bedrockruntime.InvokeModelWithResponseStreamInput{
		ModelId:     aws.String(p.model),
		ContentType: aws.String("application/json"),
		Accept:      aws.String("application/json"),
		Body:        body,
	})
	if err != nil {
		return nil, fmt.Errorf("bedrock streaming invoke failed: %w", err)
	}

	out := make(chan Chunk)
	go func() {
		defer close(out)
		reader := stream.GetStream().Reader
		defer reader.Close()
		for event := range reader.Events() {
			chunkEvent, ok := event.(*bedrockruntimetypes.ResponseStreamMemberChunk)
			if !ok {
				continue
			}
			var block struct {
				Type  string `json:"type"`
				Delta struct {
					Text string `json:"text"`
				} `json:"delta"`
			}
			if err := json.Unmarshal(chunkEvent.Value.Bytes, &block); err != nil {
				continue
			}
			if block.Delta.Text != "" {
				out <- Chunk{Delta: block.Delta.Text}
			}
		}
		if err := reader.Err(); err != nil {
			out <- Chunk{Err: fmt.Errorf("bedrock stream failed: %w", err)}
			return
		}
		out <- Chunk{Done: true}
	}()

	return out, nil
}

package openai

import (
	"context"

	oa "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/rotisserie/eris"
)

// Client is the slice of the OpenAI API the valuation ensemble needs.
type Client interface {
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)
	Embed(ctx context.Context, req EmbeddingRequest) (*EmbeddingResponse, error)
}

// Message represents a single conversational message.
type Message struct {
	Role    string // "system", "user" or "assistant"
	Content string
}

// CompletionRequest is a chat request reduced to the fields the
// estimator sets.
type CompletionRequest struct {
	Model     string
	Messages  []Message
	MaxTokens int64 // 0 means provider default
}

// CompletionResponse carries the reply text and token counts.
type CompletionResponse struct {
	Text  string
	Usage TokenUsage
}

// EmbeddingRequest asks for one vector per input text.
type EmbeddingRequest struct {
	Model string
	Input []string
}

// EmbeddingResponse holds one vector per input text, in input order.
type EmbeddingResponse struct {
	Vectors [][]float64
	Usage   TokenUsage
}

// TokenUsage carries the token counts the API reported for one call.
// Pricing is the cost package's job; this type only observes.
type TokenUsage struct {
	InputTokens  int64
	OutputTokens int64
}

// sdkClient is the production Client on top of openai-go.
type sdkClient struct {
	client  oa.Client
	baseURL string
}

// Option configures the client.
type Option func(*sdkClient)

// WithBaseURL overrides the API base URL (for proxies and tests).
func WithBaseURL(u string) Option {
	return func(c *sdkClient) {
		c.baseURL = u
	}
}

// NewClient dials the OpenAI API with the given key.
func NewClient(apiKey string, opts ...Option) Client {
	c := &sdkClient{}
	for _, opt := range opts {
		opt(c)
	}

	reqOpts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if c.baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(c.baseURL))
	}
	c.client = oa.NewClient(reqOpts...)
	return c
}

func (c *sdkClient) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	params := oa.ChatCompletionNewParams{
		Model:    oa.ChatModel(req.Model),
		Messages: toSDKMessages(req.Messages),
	}
	if req.MaxTokens > 0 {
		params.MaxTokens = oa.Int(req.MaxTokens)
	}

	resp, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, eris.Wrap(err, "openai: chat completion")
	}
	if len(resp.Choices) == 0 {
		return nil, eris.New("openai: chat completion returned no choices")
	}

	return &CompletionResponse{
		Text: resp.Choices[0].Message.Content,
		Usage: TokenUsage{
			InputTokens:  resp.Usage.PromptTokens,
			OutputTokens: resp.Usage.CompletionTokens,
		},
	}, nil
}

func (c *sdkClient) Embed(ctx context.Context, req EmbeddingRequest) (*EmbeddingResponse, error) {
	if len(req.Input) == 0 {
		return nil, eris.New("openai: embed called with no input")
	}

	resp, err := c.client.Embeddings.New(ctx, oa.EmbeddingNewParams{
		Model: oa.EmbeddingModel(req.Model),
		Input: oa.EmbeddingNewParamsInputUnion{OfArrayOfStrings: req.Input},
	})
	if err != nil {
		return nil, eris.Wrap(err, "openai: embeddings")
	}
	if len(resp.Data) != len(req.Input) {
		return nil, eris.Errorf("openai: embeddings returned %d vectors for %d inputs", len(resp.Data), len(req.Input))
	}

	vectors := make([][]float64, len(resp.Data))
	for i, d := range resp.Data {
		idx := int(d.Index)
		if idx < 0 || idx >= len(vectors) {
			idx = i
		}
		vectors[idx] = d.Embedding
	}

	return &EmbeddingResponse{
		Vectors: vectors,
		Usage:   TokenUsage{InputTokens: resp.Usage.PromptTokens},
	}, nil
}

// toSDKMessages converts local messages to SDK message unions.
func toSDKMessages(msgs []Message) []oa.ChatCompletionMessageParamUnion {
	out := make([]oa.ChatCompletionMessageParamUnion, len(msgs))
	for i, m := range msgs {
		switch m.Role {
		case "system":
			out[i] = oa.SystemMessage(m.Content)
		case "assistant":
			out[i] = oa.AssistantMessage(m.Content)
		default:
			out[i] = oa.UserMessage(m.Content)
		}
	}
	return out
}

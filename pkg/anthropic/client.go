package anthropic

import (
	"context"
	"encoding/json"
	"strings"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/rotisserie/eris"
)

// Client is the slice of the Anthropic Messages API the agent loop needs.
type Client interface {
	CreateMessage(ctx context.Context, req MessageRequest) (*MessageResponse, error)
}

// MessageRequest mirrors the Messages API request, reduced to the fields
// the agent actually sets.
type MessageRequest struct {
	Model       string
	MaxTokens   int64
	System      []SystemBlock
	Messages    []Message
	Tools       []Tool
	Temperature *float64
}

// SystemBlock is one segment of the system prompt. A non-nil CacheControl
// marks the block as a prompt cache breakpoint.
type SystemBlock struct {
	Text         string
	CacheControl *CacheControl
}

// CacheControl selects the prompt cache TTL for a block.
type CacheControl struct {
	TTL string // accepts "5m" or "1h"
}

// Tool describes a capability the model may invoke during a conversation.
type Tool struct {
	Name        string
	Description string
	InputSchema InputSchema
}

// InputSchema is a JSON Schema object describing a tool's parameters.
type InputSchema struct {
	Properties map[string]Property
	Required   []string
}

// Property is a single schema property.
type Property struct {
	Type        string
	Description string
}

// Message represents a single conversational message. Assistant turns that
// requested tools and the user turns that answer them carry non-text blocks.
type Message struct {
	Role   string // "user" or "assistant"
	Blocks []ContentBlock
}

// ContentBlock is one piece of message content. Type selects the meaningful
// fields: "text" uses Text, "tool_use" uses ID, Name and Input, "tool_result"
// uses ToolUseID, Content and IsError.
type ContentBlock struct {
	Type      string
	Text      string
	ID        string
	Name      string
	Input     json.RawMessage
	ToolUseID string
	Content   string
	IsError   bool
}

// NewTextMessage builds a message holding a single text block.
func NewTextMessage(role, text string) Message {
	return Message{
		Role:   role,
		Blocks: []ContentBlock{{Type: "text", Text: text}},
	}
}

// NewToolResultMessage builds the user message that answers a tool_use block.
func NewToolResultMessage(toolUseID, content string, isError bool) Message {
	return Message{
		Role: "user",
		Blocks: []ContentBlock{{
			Type:      "tool_result",
			ToolUseID: toolUseID,
			Content:   content,
			IsError:   isError,
		}},
	}
}

// MessageResponse is the decoded Messages API reply.
type MessageResponse struct {
	ID           string
	Model        string
	Content      []ContentBlock
	StopReason   string
	Usage        TokenUsage
	StopSequence string
}

// Text returns the concatenated text blocks of the response.
func (r *MessageResponse) Text() string {
	var sb strings.Builder
	for _, b := range r.Content {
		if b.Type == "text" {
			sb.WriteString(b.Text)
		}
	}
	return sb.String()
}

// ToolUses returns the tool_use blocks of the response, in order.
func (r *MessageResponse) ToolUses() []ContentBlock {
	var uses []ContentBlock
	for _, b := range r.Content {
		if b.Type == "tool_use" {
			uses = append(uses, b)
		}
	}
	return uses
}

// TokenUsage carries the token counts the API reported for one call.
// Pricing is the cost package's job; this type only observes.
type TokenUsage struct {
	InputTokens              int64
	OutputTokens             int64
	CacheCreationInputTokens int64
	CacheReadInputTokens     int64
}

// sdkClient is the production Client on top of anthropic-sdk-go.
type sdkClient struct {
	client sdk.Client
}

// NewClient dials the Anthropic API with the given key.
func NewClient(apiKey string) Client {
	return &sdkClient{
		client: sdk.NewClient(
			option.WithAPIKey(apiKey),
		),
	}
}

func (c *sdkClient) CreateMessage(ctx context.Context, req MessageRequest) (*MessageResponse, error) {
	params := sdk.MessageNewParams{
		Model:     sdk.Model(req.Model),
		MaxTokens: req.MaxTokens,
		Messages:  toSDKMessages(req.Messages),
	}
	if len(req.System) > 0 {
		params.System = toSDKSystemBlocks(req.System)
	}
	if len(req.Tools) > 0 {
		params.Tools = toSDKTools(req.Tools)
	}
	if req.Temperature != nil {
		params.Temperature = sdk.Float(*req.Temperature)
	}

	msg, err := c.client.Messages.New(ctx, params)
	if err != nil {
		return nil, eris.Wrap(err, "anthropic: create message")
	}
	return fromSDKMessage(msg), nil
}

// --- translation to and from SDK types ---

func toSDKMessages(msgs []Message) []sdk.MessageParam {
	out := make([]sdk.MessageParam, len(msgs))
	for i, m := range msgs {
		blocks := make([]sdk.ContentBlockParamUnion, 0, len(m.Blocks))
		for _, b := range m.Blocks {
			switch b.Type {
			case "tool_use":
				var input any = map[string]any{}
				if len(b.Input) > 0 {
					input = b.Input
				}
				blocks = append(blocks, sdk.ContentBlockParamUnion{
					OfToolUse: &sdk.ToolUseBlockParam{
						ID:    b.ID,
						Name:  b.Name,
						Input: input,
					},
				})
			case "tool_result":
				result := sdk.ToolResultBlockParam{
					ToolUseID: b.ToolUseID,
				}
				// The API rejects empty text blocks, so an empty result
				// is sent as a tool_result with no content.
				if b.Content != "" {
					result.Content = []sdk.ToolResultBlockParamContentUnion{
						{OfText: &sdk.TextBlockParam{Text: b.Content}},
					}
				}
				if b.IsError {
					result.IsError = sdk.Bool(true)
				}
				blocks = append(blocks, sdk.ContentBlockParamUnion{
					OfToolResult: &result,
				})
			default:
				blocks = append(blocks, sdk.NewTextBlock(b.Text))
			}
		}
		if m.Role == "assistant" {
			out[i] = sdk.NewAssistantMessage(blocks...)
		} else {
			out[i] = sdk.NewUserMessage(blocks...)
		}
	}
	return out
}

func toSDKSystemBlocks(blocks []SystemBlock) []sdk.TextBlockParam {
	out := make([]sdk.TextBlockParam, 0, len(blocks))
	for _, b := range blocks {
		blk := sdk.TextBlockParam{Text: b.Text}
		if b.CacheControl != nil {
			cc := sdk.NewCacheControlEphemeralParam()
			if ttl := b.CacheControl.TTL; ttl != "" {
				cc.TTL = sdk.CacheControlEphemeralTTL(ttl)
			}
			blk.CacheControl = cc
		}
		out = append(out, blk)
	}
	return out
}

func toSDKTools(tools []Tool) []sdk.ToolUnionParam {
	out := make([]sdk.ToolUnionParam, len(tools))
	for i, t := range tools {
		props := make(map[string]any, len(t.InputSchema.Properties))
		for name, p := range t.InputSchema.Properties {
			props[name] = map[string]string{
				"type":        p.Type,
				"description": p.Description,
			}
		}
		tool := sdk.ToolParam{
			Name:        t.Name,
			Description: sdk.String(t.Description),
			InputSchema: sdk.ToolInputSchemaParam{
				Properties: props,
				Required:   t.InputSchema.Required,
			},
		}
		out[i] = sdk.ToolUnionParam{OfTool: &tool}
	}
	return out
}

func fromSDKMessage(msg *sdk.Message) *MessageResponse {
	blocks := make([]ContentBlock, 0, len(msg.Content))
	for _, b := range msg.Content {
		block := ContentBlock{
			Type: b.Type,
			Text: b.Text,
		}
		if b.Type == "tool_use" {
			block.ID = b.ID
			block.Name = b.Name
			block.Input = append(json.RawMessage(nil), b.Input...)
		}
		blocks = append(blocks, block)
	}

	return &MessageResponse{
		ID:           msg.ID,
		Model:        string(msg.Model),
		Content:      blocks,
		StopReason:   string(msg.StopReason),
		StopSequence: msg.StopSequence,
		Usage: TokenUsage{
			InputTokens:              msg.Usage.InputTokens,
			OutputTokens:             msg.Usage.OutputTokens,
			CacheCreationInputTokens: msg.Usage.CacheCreationInputTokens,
			CacheReadInputTokens:     msg.Usage.CacheReadInputTokens,
		},
	}
}

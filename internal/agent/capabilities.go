package agent

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/bargainlabs/dealhound/internal/model"
	"github.com/bargainlabs/dealhound/pkg/anthropic"
	"github.com/bargainlabs/dealhound/pkg/mcp"
)

const notifyAck = "notification sent"

// capability pairs a tool declaration with its handler. Handlers return
// the textual result plus an isError flag that is fed back to the model
// as a failed tool result; a non-nil error aborts the whole run.
type capability struct {
	tool anthropic.Tool
	run  func(ctx context.Context, r *run, args json.RawMessage) (result string, isError bool, err error)
}

func builtinCapabilities() []capability {
	return []capability{scanCapability(), estimateCapability(), notifyCapability()}
}

func scanCapability() capability {
	return capability{
		tool: anthropic.Tool{
			Name:        "scan_for_bargains",
			Description: "This tool scans the internet for bargains and returns a curated list of top deals",
			InputSchema: anthropic.InputSchema{
				Properties: map[string]anthropic.Property{},
			},
		},
		run: func(ctx context.Context, r *run, _ json.RawMessage) (string, bool, error) {
			zap.L().Info("scanning for bargains", zap.Int("known_urls", len(r.memory)))
			deals, err := r.scanner.Scan(ctx, r.memory)
			if err != nil {
				return "", false, err
			}
			// An empty scan is reported as an empty string so the model
			// can wind down the run instead of retrying.
			if len(deals) == 0 {
				return "", false, nil
			}
			body, err := json.Marshal(scanReply{Deals: deals})
			if err != nil {
				return "", false, eris.Wrap(err, "agent: marshal scanned deals")
			}
			return string(body), false, nil
		},
	}
}

type scanReply struct {
	Deals []model.Deal `json:"deals"`
}

func estimateCapability() capability {
	return capability{
		tool: anthropic.Tool{
			Name:        "estimate_true_value",
			Description: "This tool estimates the true value of a product based on a text description of it",
			InputSchema: anthropic.InputSchema{
				Properties: map[string]anthropic.Property{
					"description": {Type: "string", Description: "a description of the product to be estimated"},
				},
				Required: []string{"description"},
			},
		},
		run: func(ctx context.Context, r *run, raw json.RawMessage) (string, bool, error) {
			var args estimateArgs
			if err := json.Unmarshal(raw, &args); err != nil {
				return fmt.Sprintf("invalid arguments: %v", err), true, nil
			}
			zap.L().Info("estimating true value", zap.String("description", truncate(args.Description, 80)))
			estimate, err := r.estimator.Price(ctx, args.Description)
			if err != nil {
				return "", false, err
			}
			body, err := json.Marshal(estimateReply{Description: args.Description, Estimate: estimate})
			if err != nil {
				return "", false, eris.Wrap(err, "agent: marshal estimate")
			}
			return string(body), false, nil
		},
	}
}

type estimateArgs struct {
	Description string `json:"description"`
}

type estimateReply struct {
	Description string  `json:"description"`
	Estimate    float64 `json:"estimated_true_value"`
}

func notifyCapability() capability {
	return capability{
		tool: anthropic.Tool{
			Name:        "notify_user_of_deal",
			Description: "This tool notifies the user of a great deal, given a description of it, the price of the deal, and the estimated true value",
			InputSchema: anthropic.InputSchema{
				Properties: map[string]anthropic.Property{
					"description":          {Type: "string", Description: "a description of the product with the deal"},
					"deal_price":           {Type: "number", Description: "how much the product is being offered for"},
					"estimated_true_value": {Type: "number", Description: "an estimate of how much this product is actually worth"},
					"url":                  {Type: "string", Description: "the web address of the product"},
				},
				Required: []string{"description", "deal_price", "estimated_true_value", "url"},
			},
		},
		run: func(ctx context.Context, r *run, raw json.RawMessage) (string, bool, error) {
			var n model.Notification
			if err := json.Unmarshal(raw, &n); err != nil {
				return fmt.Sprintf("invalid arguments: %v", err), true, nil
			}
			// Only the first notification of a run takes effect. Later
			// attempts still report success so the model does not loop
			// retrying a "failed" send.
			if r.opportunity != nil {
				zap.L().Warn("duplicate notification attempt ignored",
					zap.String("description", truncate(n.Description, 80)))
				return notifyAck, false, nil
			}
			zap.L().Info("notifying user of deal",
				zap.String("description", truncate(n.Description, 80)),
				zap.Float64("deal_price", n.DealPrice),
				zap.Float64("estimate", n.Estimate))
			if err := r.notifier.Notify(ctx, n); err != nil {
				return "", false, err
			}
			deal := model.Deal{Description: n.Description, Price: n.DealPrice, URL: n.URL}
			opp := model.NewOpportunity(deal, n.Estimate)
			r.opportunity = &opp
			return notifyAck, false, nil
		},
	}
}

// sidecarCapabilities exposes the MCP server's tools alongside the
// built-ins. A sidecar tool whose name collides with a built-in is
// dropped so the core capabilities cannot be shadowed.
func sidecarCapabilities(client mcp.Client, tools []mcp.Tool, taken []capability) []capability {
	names := make(map[string]struct{}, len(taken))
	for _, c := range taken {
		names[c.tool.Name] = struct{}{}
	}
	out := make([]capability, 0, len(tools))
	for _, t := range tools {
		if _, dup := names[t.Name]; dup {
			zap.L().Warn("sidecar tool shadows a built-in capability, skipping", zap.String("tool", t.Name))
			continue
		}
		out = append(out, sidecarCapability(client, t))
	}
	return out
}

func sidecarCapability(client mcp.Client, t mcp.Tool) capability {
	return capability{
		tool: anthropic.Tool{
			Name:        t.Name,
			Description: t.Description,
			InputSchema: schemaFromMCP(t.InputSchema),
		},
		run: func(ctx context.Context, _ *run, raw json.RawMessage) (string, bool, error) {
			args := map[string]any{}
			if len(raw) > 0 {
				if err := json.Unmarshal(raw, &args); err != nil {
					return fmt.Sprintf("invalid arguments: %v", err), true, nil
				}
			}
			zap.L().Debug("calling sidecar tool", zap.String("tool", t.Name))
			result, err := client.CallTool(ctx, t.Name, args)
			if err != nil {
				return "", false, err
			}
			return result.Text, result.IsError, nil
		},
	}
}

// schemaFromMCP flattens a JSON-schema tool declaration into the typed
// form the Anthropic client sends. Nested schemas lose detail beyond
// each property's type and description.
func schemaFromMCP(schema map[string]any) anthropic.InputSchema {
	out := anthropic.InputSchema{Properties: map[string]anthropic.Property{}}
	props, _ := schema["properties"].(map[string]any)
	for name, raw := range props {
		spec, _ := raw.(map[string]any)
		prop := anthropic.Property{Type: "string"}
		if t, ok := spec["type"].(string); ok && t != "" {
			prop.Type = t
		}
		if d, ok := spec["description"].(string); ok {
			prop.Description = d
		}
		out.Properties[name] = prop
	}
	required, _ := schema["required"].([]any)
	for _, r := range required {
		if s, ok := r.(string); ok {
			out.Required = append(out.Required, s)
		}
	}
	return out
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

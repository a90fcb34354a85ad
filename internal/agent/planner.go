package agent

import (
	"context"
	"fmt"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/bargainlabs/dealhound/internal/cost"
	"github.com/bargainlabs/dealhound/internal/model"
	"github.com/bargainlabs/dealhound/pkg/anthropic"
	"github.com/bargainlabs/dealhound/pkg/mcp"
)

const (
	defaultMaxTurns  = 16
	defaultMaxTokens = 1024
)

// Config tunes the planning loop.
type Config struct {
	Model     string
	MaxTokens int
	MaxTurns  int
}

// SidecarFactory launches the scoped file-access sidecar for one run.
type SidecarFactory func(ctx context.Context) (mcp.Client, error)

// FilesystemSidecar returns a factory that starts the MCP filesystem
// server with access limited to dir.
func FilesystemSidecar(command, dir string, timeout time.Duration) SidecarFactory {
	return func(ctx context.Context) (mcp.Client, error) {
		args := []string{"-y", "@modelcontextprotocol/server-filesystem", dir}
		return mcp.Start(ctx, command, args, mcp.WithTimeout(timeout))
	}
}

// Planner executes one deal hunt per Plan call. A single Planner must
// not run two plans concurrently; callers serialize.
type Planner struct {
	cfg       Config
	oracle    anthropic.Client
	scanner   Scanner
	estimator Estimator
	notifier  Notifier
	sidecar   SidecarFactory
	tracker   *cost.Tracker
}

// Option configures the planner.
type Option func(*Planner)

// WithSidecar attaches a file-access sidecar factory. Without one the
// model gets only the built-in capabilities.
func WithSidecar(factory SidecarFactory) Option {
	return func(p *Planner) {
		p.sidecar = factory
	}
}

// WithTracker records token usage and spend per oracle turn.
func WithTracker(t *cost.Tracker) Option {
	return func(p *Planner) {
		p.tracker = t
	}
}

// NewPlanner wires the planning loop to its collaborators.
func NewPlanner(cfg Config, oracle anthropic.Client, scanner Scanner, estimator Estimator, notifier Notifier, opts ...Option) *Planner {
	if cfg.MaxTurns <= 0 {
		cfg.MaxTurns = defaultMaxTurns
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = defaultMaxTokens
	}
	p := &Planner{
		cfg:       cfg,
		oracle:    oracle,
		scanner:   scanner,
		estimator: estimator,
		notifier:  notifier,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

type planOutcome struct {
	reply string
	err   error
}

// Plan runs one hunt. Memory lists locators surfaced on earlier runs and
// is passed through to the scanner unmodified. The returned Opportunity
// is nil when the model finished without notifying; on error it may
// still be non-nil if the notification landed before the failure.
func (p *Planner) Plan(ctx context.Context, memory []string) (*model.Opportunity, error) {
	zap.L().Info("planner run starting", zap.Int("memory", len(memory)))
	r := &run{
		scanner:   p.scanner,
		estimator: p.estimator,
		notifier:  p.notifier,
		memory:    memory,
	}

	caps := builtinCapabilities()
	if p.sidecar != nil {
		client, err := p.sidecar(ctx)
		if err != nil {
			return nil, eris.Wrap(err, "agent: start file sidecar")
		}
		defer func() {
			if cerr := client.Close(); cerr != nil {
				zap.L().Warn("file sidecar shutdown", zap.Error(cerr))
			}
		}()
		if err := client.Initialize(ctx); err != nil {
			return nil, eris.Wrap(err, "agent: initialize file sidecar")
		}
		tools, err := client.ListTools(ctx)
		if err != nil {
			return nil, eris.Wrap(err, "agent: list sidecar tools")
		}
		caps = append(caps, sidecarCapabilities(client, tools, caps)...)
	}

	// The loop runs on its own goroutine so Plan can be called from any
	// caller context; the channel join keeps exactly one driver per run.
	done := make(chan planOutcome, 1)
	go func() {
		reply, err := p.drive(ctx, r, caps)
		done <- planOutcome{reply: reply, err: err}
	}()
	outcome := <-done

	if outcome.err != nil {
		return r.opportunity, outcome.err
	}
	zap.L().Info("planner run complete",
		zap.String("reply", truncate(outcome.reply, 120)),
		zap.Bool("opportunity", r.opportunity != nil))
	return r.opportunity, nil
}

// drive feeds the transcript to the oracle until it stops requesting
// capabilities, executing each invocation strictly in order.
func (p *Planner) drive(ctx context.Context, r *run, caps []capability) (string, error) {
	byName := make(map[string]capability, len(caps))
	tools := make([]anthropic.Tool, 0, len(caps))
	for _, c := range caps {
		byName[c.tool.Name] = c
		tools = append(tools, c.tool)
	}

	system := anthropic.BuildCachedSystemBlocks(missionPrompt)
	transcript := []anthropic.Message{anthropic.NewTextMessage("user", kickoffPrompt)}

	for turn := 0; turn < p.cfg.MaxTurns; turn++ {
		resp, err := p.oracle.CreateMessage(ctx, anthropic.MessageRequest{
			Model:     p.cfg.Model,
			MaxTokens: int64(p.cfg.MaxTokens),
			System:    system,
			Messages:  transcript,
			Tools:     tools,
		})
		if err != nil {
			return "", eris.Wrap(err, "agent: oracle turn")
		}
		p.tracker.RecordClaude(p.cfg.Model, resp.Usage.InputTokens, resp.Usage.OutputTokens)

		uses := resp.ToolUses()
		if len(uses) == 0 {
			return resp.Text(), nil
		}
		transcript = append(transcript, anthropic.Message{Role: "assistant", Blocks: resp.Content})
		for _, use := range uses {
			text, isErr, err := p.invoke(ctx, r, byName, use)
			if err != nil {
				return "", err
			}
			transcript = append(transcript, anthropic.NewToolResultMessage(use.ID, text, isErr))
		}
	}
	return "", eris.Errorf("agent: no completion after %d turns", p.cfg.MaxTurns)
}

func (p *Planner) invoke(ctx context.Context, r *run, byName map[string]capability, use anthropic.ContentBlock) (string, bool, error) {
	c, ok := byName[use.Name]
	if !ok {
		// A hallucinated tool name goes back to the model as an error
		// result rather than killing the run.
		return fmt.Sprintf("unknown capability %q", use.Name), true, nil
	}
	return c.run(ctx, r, use.Input)
}

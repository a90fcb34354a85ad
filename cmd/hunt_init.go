package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/bargainlabs/dealhound/internal/agent"
	"github.com/bargainlabs/dealhound/internal/config"
	"github.com/bargainlabs/dealhound/internal/cost"
	"github.com/bargainlabs/dealhound/internal/hunt"
	"github.com/bargainlabs/dealhound/internal/monitoring"
	"github.com/bargainlabs/dealhound/internal/notify"
	"github.com/bargainlabs/dealhound/internal/store"
	"github.com/bargainlabs/dealhound/internal/valuation"
	anthropicpkg "github.com/bargainlabs/dealhound/pkg/anthropic"
	"github.com/bargainlabs/dealhound/pkg/chroma"
	"github.com/bargainlabs/dealhound/pkg/dealfeed"
	"github.com/bargainlabs/dealhound/pkg/openai"
	"github.com/bargainlabs/dealhound/pkg/pushover"
	"github.com/bargainlabs/dealhound/pkg/specialist"
	"github.com/bargainlabs/dealhound/pkg/telegram"
)

// huntEnv holds the store, metrics, and fully wired hunt runner shared by
// the hunt and serve commands.
type huntEnv struct {
	Store   store.Store
	Runner  *hunt.Runner
	Metrics *monitoring.Metrics
	Tracker *cost.Tracker
}

// Close releases resources held by the hunt environment.
func (he *huntEnv) Close() {
	if he.Store != nil {
		_ = he.Store.Close()
	}
}

// initHunt sets up the store, all API clients, and the hunt runner.
// Callers should defer env.Close().
func initHunt(ctx context.Context, mode string, dryRun bool) (*huntEnv, error) {
	if err := cfg.Validate(mode); err != nil {
		return nil, err
	}

	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}

	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}

	oracle := anthropicpkg.NewClient(cfg.Anthropic.Key)
	openaiClient := openai.NewClient(cfg.OpenAI.Key, openai.WithBaseURL(cfg.OpenAI.BaseURL))
	chromaClient := chroma.NewClient(cfg.Chroma.BaseURL)

	collection, err := chromaClient.GetOrCreateCollection(ctx, cfg.Chroma.Collection)
	if err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "resolve chroma collection")
	}

	rates := cost.Merge(cost.DefaultRates(), pricingRates(cfg.Pricing))
	tracker := cost.NewTracker(cost.NewCalculator(rates))

	frontier := valuation.NewFrontierEstimator(openaiClient,
		valuation.NewCatalogIndex(chromaClient, collection.ID),
		valuation.FrontierConfig{
			PreprocessModel: cfg.OpenAI.PreprocessModel,
			PricingModel:    cfg.OpenAI.PricingModel,
			EmbeddingModel:  cfg.OpenAI.EmbeddingModel,
			Neighbors:       cfg.Chroma.Neighbors,
		}, tracker)
	specialistClient := specialist.NewClient(cfg.Specialist.BaseURL)
	estimator := valuation.NewEnsembleEstimator(frontier, specialistClient)

	scanner := agent.NewDealFeedScanner(
		dealfeed.NewClient(cfg.DealFeed.BaseURL, dealfeed.WithRateLimit(cfg.DealFeed.RPS)))

	notifier, err := initNotifier(dryRun)
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	opts := []agent.Option{agent.WithTracker(tracker)}
	if cfg.MCP.Enabled {
		opts = append(opts, agent.WithSidecar(agent.FilesystemSidecar(
			cfg.MCP.Command,
			cfg.MCP.SandboxDir,
			time.Duration(cfg.MCP.TimeoutSecs)*time.Second,
		)))
	} else {
		zap.L().Debug("mcp sidecar disabled, planner runs without file access")
	}

	planner := agent.NewPlanner(agent.Config{
		Model:     cfg.Anthropic.PlannerModel,
		MaxTokens: cfg.Anthropic.MaxTokens,
		MaxTurns:  cfg.Planner.MaxTurns,
	}, oracle, scanner, estimator, notifier, opts...)

	metrics := monitoring.NewMetrics()
	runner := hunt.NewRunner(st, planner, hunt.WithTracker(tracker), hunt.WithMetrics(metrics))

	return &huntEnv{
		Store:   st,
		Runner:  runner,
		Metrics: metrics,
		Tracker: tracker,
	}, nil
}

// initNotifier selects the notification transport from config. A dry run
// logs alerts instead of delivering them, regardless of transport.
func initNotifier(dryRun bool) (agent.Notifier, error) {
	if dryRun {
		zap.L().Info("dry run, notifications will be logged only")
		return notify.Discard{}, nil
	}

	switch cfg.Notify.Transport {
	case "pushover":
		return notify.NewPushover(pushover.NewClient(cfg.Pushover.Token, cfg.Pushover.User)), nil
	case "telegram":
		tg, err := telegram.NewClient(cfg.Telegram.Token, cfg.Telegram.ChatID)
		if err != nil {
			return nil, eris.Wrap(err, "init telegram client")
		}
		return notify.NewTelegram(tg), nil
	case "none":
		return notify.Discard{}, nil
	default:
		return nil, eris.Errorf("unknown notify transport %q", cfg.Notify.Transport)
	}
}

// pricingRates converts config pricing overrides into calculator rates.
func pricingRates(p config.PricingConfig) cost.Rates {
	rates := cost.Rates{Embedding: p.Embedding}
	if len(p.Anthropic) > 0 {
		rates.Anthropic = make(map[string]cost.ModelRate, len(p.Anthropic))
		for model, mp := range p.Anthropic {
			rates.Anthropic[model] = cost.ModelRate{Input: mp.Input, Output: mp.Output}
		}
	}
	if len(p.OpenAI) > 0 {
		rates.OpenAI = make(map[string]cost.ModelRate, len(p.OpenAI))
		for model, mp := range p.OpenAI {
			rates.OpenAI[model] = cost.ModelRate{Input: mp.Input, Output: mp.Output}
		}
	}
	return rates
}

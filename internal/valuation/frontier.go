// Package valuation estimates what a listed item is actually worth. The
// frontier estimator grounds a chat model on similar catalog items pulled
// from a vector index; the ensemble averages it with a specialist model.
package valuation

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/bargainlabs/dealhound/internal/cost"
	"github.com/bargainlabs/dealhound/pkg/openai"
)

// Estimator prices an item from its description.
type Estimator interface {
	Price(ctx context.Context, description string) (float64, error)
}

// Index finds catalog items similar to a query embedding. Query returns the
// matched item descriptions and their recorded prices, most similar first.
type Index interface {
	Query(ctx context.Context, embedding []float64, limit int) (documents []string, prices []float64, err error)
}

// FrontierConfig configures a FrontierEstimator.
type FrontierConfig struct {
	PreprocessModel string
	PricingModel    string
	EmbeddingModel  string
	Neighbors       int
}

// FrontierEstimator prices items by retrieval-augmented completion: the
// description is summarized, embedded, matched against the catalog index,
// and the pricing model answers with the neighbors as context.
type FrontierEstimator struct {
	client  openai.Client
	index   Index
	cfg     FrontierConfig
	tracker *cost.Tracker
}

// NewFrontierEstimator creates a FrontierEstimator. A nil tracker disables
// usage accounting.
func NewFrontierEstimator(client openai.Client, index Index, cfg FrontierConfig, tracker *cost.Tracker) *FrontierEstimator {
	if cfg.Neighbors <= 0 {
		cfg.Neighbors = 5
	}
	return &FrontierEstimator{
		client:  client,
		index:   index,
		cfg:     cfg,
		tracker: tracker,
	}
}

// Price estimates the item's true value in USD.
func (e *FrontierEstimator) Price(ctx context.Context, description string) (float64, error) {
	summary, err := e.preprocess(ctx, description)
	if err != nil {
		return 0, err
	}

	documents, prices, err := e.findSimilars(ctx, summary)
	if err != nil {
		return 0, err
	}

	zap.L().Debug("pricing with retrieved context",
		zap.String("model", e.cfg.PricingModel),
		zap.Int("similar_items", len(documents)),
	)

	resp, err := e.client.Complete(ctx, openai.CompletionRequest{
		Model:     e.cfg.PricingModel,
		Messages:  pricingMessages(description, documents, prices),
		MaxTokens: priceReplyMaxTokens,
	})
	if err != nil {
		return 0, err
	}
	e.tracker.RecordOpenAI(e.cfg.PricingModel, resp.Usage.InputTokens, resp.Usage.OutputTokens)

	if !hasNumeral(resp.Text) {
		zap.L().Warn("price reply carried no numeral, treating as zero",
			zap.String("model", e.cfg.PricingModel),
			zap.String("reply", resp.Text),
		)
	}
	return ParsePrice(resp.Text), nil
}

// preprocess condenses the raw description into a retrieval-friendly summary.
func (e *FrontierEstimator) preprocess(ctx context.Context, description string) (string, error) {
	resp, err := e.client.Complete(ctx, openai.CompletionRequest{
		Model: e.cfg.PreprocessModel,
		Messages: []openai.Message{
			{Role: "user", Content: preprocessPrompt + description},
		},
	})
	if err != nil {
		return "", err
	}
	e.tracker.RecordOpenAI(e.cfg.PreprocessModel, resp.Usage.InputTokens, resp.Usage.OutputTokens)
	return resp.Text, nil
}

// findSimilars embeds the summary and pulls the nearest catalog items.
func (e *FrontierEstimator) findSimilars(ctx context.Context, summary string) ([]string, []float64, error) {
	resp, err := e.client.Embed(ctx, openai.EmbeddingRequest{
		Model: e.cfg.EmbeddingModel,
		Input: []string{summary},
	})
	if err != nil {
		return nil, nil, err
	}
	if len(resp.Vectors) == 0 {
		return nil, nil, eris.New("valuation: embedding reply was empty")
	}
	e.tracker.RecordEmbedding(e.cfg.EmbeddingModel, resp.Usage.InputTokens)

	return e.index.Query(ctx, resp.Vectors[0], e.cfg.Neighbors)
}

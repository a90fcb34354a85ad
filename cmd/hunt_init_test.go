package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bargainlabs/dealhound/internal/config"
	"github.com/bargainlabs/dealhound/internal/cost"
	"github.com/bargainlabs/dealhound/internal/notify"
)

func stubConfig(t *testing.T) *config.Config {
	t.Helper()
	orig := cfg
	t.Cleanup(func() { cfg = orig })
	cfg = &config.Config{}
	return cfg
}

func TestPricingRates(t *testing.T) {
	p := config.PricingConfig{
		Anthropic: map[string]config.ModelPricing{
			"claude-sonnet-4-5-20250929": {Input: 1, Output: 5},
		},
		OpenAI: map[string]config.ModelPricing{
			"gpt-4o": {Input: 0.5, Output: 2},
		},
		Embedding: map[string]float64{
			"text-embedding-3-small": 0.05,
		},
	}

	rates := pricingRates(p)
	assert.Equal(t, cost.ModelRate{Input: 1, Output: 5}, rates.Anthropic["claude-sonnet-4-5-20250929"])
	assert.Equal(t, cost.ModelRate{Input: 0.5, Output: 2}, rates.OpenAI["gpt-4o"])
	assert.Equal(t, 0.05, rates.Embedding["text-embedding-3-small"])
}

func TestPricingRates_Empty(t *testing.T) {
	rates := pricingRates(config.PricingConfig{})
	assert.Nil(t, rates.Anthropic)
	assert.Nil(t, rates.OpenAI)
	assert.Nil(t, rates.Embedding)
}

func TestPricingRates_OverridesMergeOverDefaults(t *testing.T) {
	merged := cost.Merge(cost.DefaultRates(), pricingRates(config.PricingConfig{
		Anthropic: map[string]config.ModelPricing{
			"claude-sonnet-4-5-20250929": {Input: 9, Output: 99},
		},
	}))

	// The override wins, untouched defaults survive.
	assert.Equal(t, cost.ModelRate{Input: 9, Output: 99}, merged.Anthropic["claude-sonnet-4-5-20250929"])
	assert.Equal(t, cost.ModelRate{Input: 2.50, Output: 10.00}, merged.OpenAI["gpt-4o"])
}

func TestInitNotifier_Pushover(t *testing.T) {
	c := stubConfig(t)
	c.Notify.Transport = "pushover"
	c.Pushover = config.PushoverConfig{Token: "tok", User: "usr"}

	n, err := initNotifier(false)
	require.NoError(t, err)
	assert.IsType(t, &notify.Pushover{}, n)
}

func TestInitNotifier_None(t *testing.T) {
	c := stubConfig(t)
	c.Notify.Transport = "none"

	n, err := initNotifier(false)
	require.NoError(t, err)
	assert.IsType(t, notify.Discard{}, n)
}

func TestInitNotifier_DryRunWinsOverTransport(t *testing.T) {
	c := stubConfig(t)
	c.Notify.Transport = "pushover"
	c.Pushover = config.PushoverConfig{Token: "tok", User: "usr"}

	n, err := initNotifier(true)
	require.NoError(t, err)
	assert.IsType(t, notify.Discard{}, n)
}

func TestInitNotifier_UnknownTransport(t *testing.T) {
	c := stubConfig(t)
	c.Notify.Transport = "smoke-signals"

	_, err := initNotifier(false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown notify transport "smoke-signals"`)
}

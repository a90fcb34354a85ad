package cost

// Rates holds per-provider pricing configuration.
type Rates struct {
	Anthropic map[string]ModelRate `yaml:"anthropic" mapstructure:"anthropic"`
	OpenAI    map[string]ModelRate `yaml:"openai" mapstructure:"openai"`
	Embedding map[string]float64   `yaml:"embedding" mapstructure:"embedding"`
}

// ModelRate holds per-model token pricing (USD per million tokens).
type ModelRate struct {
	Input  float64 `yaml:"input" mapstructure:"input"`
	Output float64 `yaml:"output" mapstructure:"output"`
}

// Calculator computes costs for API usage.
type Calculator struct {
	rates Rates
}

// NewCalculator creates a Calculator with the given rates.
func NewCalculator(rates Rates) *Calculator {
	return &Calculator{rates: rates}
}

// Claude computes the cost for a Claude API call.
func (c *Calculator) Claude(model string, input, output int) float64 {
	rate, ok := c.rates.Anthropic[model]
	if !ok {
		return 0
	}
	return (float64(input)/1e6)*rate.Input + (float64(output)/1e6)*rate.Output
}

// OpenAI computes the cost for an OpenAI chat completion call.
func (c *Calculator) OpenAI(model string, input, output int) float64 {
	rate, ok := c.rates.OpenAI[model]
	if !ok {
		return 0
	}
	return (float64(input)/1e6)*rate.Input + (float64(output)/1e6)*rate.Output
}

// Embedding computes the cost for an embeddings call. Embedding models are
// billed on input tokens only.
func (c *Calculator) Embedding(model string, tokens int) float64 {
	perMTok, ok := c.rates.Embedding[model]
	if !ok {
		return 0
	}
	return (float64(tokens) / 1e6) * perMTok
}

// Merge overlays non-zero override rates onto the defaults.
func Merge(defaults, overrides Rates) Rates {
	out := defaults
	for model, rate := range overrides.Anthropic {
		if out.Anthropic == nil {
			out.Anthropic = map[string]ModelRate{}
		}
		out.Anthropic[model] = rate
	}
	for model, rate := range overrides.OpenAI {
		if out.OpenAI == nil {
			out.OpenAI = map[string]ModelRate{}
		}
		out.OpenAI[model] = rate
	}
	for model, perMTok := range overrides.Embedding {
		if out.Embedding == nil {
			out.Embedding = map[string]float64{}
		}
		out.Embedding[model] = perMTok
	}
	return out
}

// DefaultRates returns the default pricing rates.
func DefaultRates() Rates {
	return Rates{
		Anthropic: map[string]ModelRate{
			"claude-haiku-4-5-20251001":  {Input: 0.80, Output: 4.00},
			"claude-sonnet-4-5-20250929": {Input: 3.00, Output: 15.00},
			"claude-opus-4-6":            {Input: 15.00, Output: 75.00},
		},
		OpenAI: map[string]ModelRate{
			"gpt-4o":      {Input: 2.50, Output: 10.00},
			"gpt-4o-mini": {Input: 0.15, Output: 0.60},
			"gpt-4.1":     {Input: 2.00, Output: 8.00},
		},
		Embedding: map[string]float64{
			"text-embedding-3-small": 0.02,
			"text-embedding-3-large": 0.13,
		},
	}
}

package llm

// ModelPricing is the price of a model in USD per million tokens.
type ModelPricing struct {
	PromptPrice     float64 `mapstructure:"prompt"     json:"prompt"`
	CompletionPrice float64 `mapstructure:"completion" json:"completion"`
}

// DefaultFallbackCost is charged per call when a model has no known price.
const DefaultFallbackCost = 0.01

var defaultPrices = map[string]ModelPricing{
	"gpt-4o":                            {PromptPrice: 2.50, CompletionPrice: 10.00},
	"gpt-4o-mini":                       {PromptPrice: 0.15, CompletionPrice: 0.60},
	"gpt-4.1":                           {PromptPrice: 2.00, CompletionPrice: 8.00},
	"gpt-4.1-mini":                      {PromptPrice: 0.40, CompletionPrice: 1.60},
	"gpt-3.5-turbo":                     {PromptPrice: 0.50, CompletionPrice: 1.50},
	"openai/gpt-4o":                     {PromptPrice: 2.50, CompletionPrice: 10.00},
	"openai/gpt-4o-mini":                {PromptPrice: 0.15, CompletionPrice: 0.60},
	"anthropic/claude-3.5-sonnet":       {PromptPrice: 3.00, CompletionPrice: 15.00},
	"anthropic/claude-3-haiku":          {PromptPrice: 0.25, CompletionPrice: 1.25},
	"google/gemini-flash-1.5":           {PromptPrice: 0.075, CompletionPrice: 0.30},
	"meta-llama/llama-3.1-70b-instruct": {PromptPrice: 0.52, CompletionPrice: 0.75},
}

// Pricing turns token usage into USD.
type Pricing struct {
	prices   map[string]ModelPricing
	fallback float64
}

// NewPricing returns the built-in price table with overrides applied.
func NewPricing(overrides map[string]ModelPricing, fallback float64) *Pricing {
	prices := make(map[string]ModelPricing, len(defaultPrices)+len(overrides))
	for model, price := range defaultPrices {
		prices[model] = price
	}

	for model, price := range overrides {
		prices[model] = price
	}

	if fallback < 0 {
		fallback = 0
	}

	return &Pricing{prices: prices, fallback: fallback}
}

func DefaultPricing() *Pricing {
	return NewPricing(nil, DefaultFallbackCost)
}

// Cost returns the USD cost of one call to model.
func (p *Pricing) Cost(model string, usage Usage) float64 {
	price, ok := p.prices[model]
	if !ok {
		return p.fallback
	}

	return float64(usage.PromptTokens)/1_000_000*price.PromptPrice +
		float64(usage.CompletionTokens)/1_000_000*price.CompletionPrice
}

func (p *Pricing) Lookup(model string) (ModelPricing, bool) {
	price, ok := p.prices[model]

	return price, ok
}

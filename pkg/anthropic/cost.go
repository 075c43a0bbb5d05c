package anthropic

import "go.uber.org/zap"

// TokenUsage is the token accounting for one model call.
type TokenUsage struct {
	InputTokens              int64
	OutputTokens             int64
	CacheCreationInputTokens int64
	CacheReadInputTokens     int64
}

// modelRates is $/MTok input and output for the models the pipeline runs:
// haiku for extraction, sonnet for reasoning and drafting.
var modelRates = map[string][2]float64{
	"claude-haiku-4-5-20251001":  {0.80, 4.00},
	"claude-sonnet-4-5-20250929": {3.00, 15.00},
	"claude-opus-4-6":            {15.00, 75.00},
}

// Cache writes bill at a premium over input; cache reads at a deep discount.
const (
	cacheWriteMultiplier = 1.25
	cacheReadMultiplier  = 0.1
)

// EstimateCost converts a usage record into estimated USD for the given
// model. Unknown models estimate to zero rather than guessing a rate.
func (u TokenUsage) EstimateCost(model string) float64 {
	rates, ok := modelRates[model]
	if !ok {
		return 0
	}
	per := func(tokens int64, rate float64) float64 {
		return float64(tokens) / 1e6 * rate
	}
	return per(u.InputTokens, rates[0]) +
		per(u.OutputTokens, rates[1]) +
		per(u.CacheCreationInputTokens, rates[0]*cacheWriteMultiplier) +
		per(u.CacheReadInputTokens, rates[0]*cacheReadMultiplier)
}

// LogCost emits a cost-attribution line for one pipeline stage's call.
func (u TokenUsage) LogCost(model, stage string) {
	zap.L().Info("cost attribution",
		zap.String("model", model),
		zap.String("stage", stage),
		zap.Int64("input_tokens", u.InputTokens),
		zap.Int64("output_tokens", u.OutputTokens),
		zap.Int64("cache_write_tokens", u.CacheCreationInputTokens),
		zap.Int64("cache_read_tokens", u.CacheReadInputTokens),
		zap.Float64("estimated_cost_usd", u.EstimateCost(model)),
	)
}

package normalize

// Gemini 2.5 Flash pricing per million tokens. Cached input is billed at 11%
// of the standard input rate.
const (
	inputPricePerMillion       = 0.25
	outputPricePerMillion      = 0.75
	cachedInputPriceMultiplier = 0.11
)

// CalculateCost prices a normalization call.
func CalculateCost(tokens TokenUsage, promptCached bool) float64 {
	inputPrice := inputPricePerMillion
	if promptCached {
		inputPrice *= cachedInputPriceMultiplier
	}
	inputCost := float64(tokens.Input) / 1_000_000 * inputPrice
	outputCost := float64(tokens.Output) / 1_000_000 * outputPricePerMillion
	return inputCost + outputCost
}

// EstimateTokens approximates token count when usage metadata is missing.
// Four characters per token is the usual rule of thumb for English text.
func EstimateTokens(text string) int {
	return len(text) / 4
}

// EstimateCost predicts the USD cost of normalizing text of the given length,
// assuming output is roughly a quarter of the input.
func EstimateCost(textLen int) float64 {
	in := textLen / 4
	out := in / 4
	return CalculateCost(TokenUsage{Input: in, Output: out, Total: in + out}, false)
}

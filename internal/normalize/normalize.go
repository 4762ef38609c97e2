// Package normalize turns raw extracted resume text into the fixed schema
// via the Gemini model, with token/cost accounting and an optional
// provider-side prompt cache for the static instruction block.
package normalize

import (
	"context"
	"encoding/json"

	"github.com/jobstack/resume-parser/internal/schema"
)

// Outcome is a successful normalization with its accounting.
type Outcome struct {
	Resume     *schema.Resume
	RawJSON    json.RawMessage
	Confidence float64
	ModelName  string
	Tokens     TokenUsage
	CostUSD    float64
	// PromptCached is true when the static prompt came from the model-side
	// cache (discounted input pricing).
	PromptCached bool
}

// TokenUsage mirrors the model's usage metadata.
type TokenUsage struct {
	Input  int `json:"input_tokens"`
	Output int `json:"output_tokens"`
	Total  int `json:"total_tokens"`
}

// Normalizer is the boundary the orchestrator depends on.
type Normalizer interface {
	Normalize(ctx context.Context, rawText string) (*Outcome, error)
}

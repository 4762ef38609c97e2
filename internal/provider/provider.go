// Package provider wraps the external extraction services behind one
// capability interface. Adding a provider means adding a variant here; call
// sites never branch on concrete types.
package provider

import (
	"context"
	"encoding/json"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/jobstack/resume-parser/constants"
)

// Failure taxonomy for adapter calls. The router treats ErrTransient and
// ErrQuotaExceeded as fallback triggers; ErrUnsupportedFormat is surfaced
// immediately.
var (
	ErrTransient         = errors.New("provider transient error")
	ErrUnsupportedFormat = errors.New("unsupported format")
	ErrQuotaExceeded     = errors.New("provider quota exceeded")
)

// RawExtraction is a provider's unnormalized output.
type RawExtraction struct {
	Text       string   `json:"text"`
	Pages      int      `json:"pages"`
	Confidence float64  `json:"confidence"`
	Provider   string   `json:"provider"`
	Method     string   `json:"method"`
	Warnings   []string `json:"warnings,omitempty"`

	// Normalized is set only by the fallback adapter, which extracts and
	// normalizes in a single model call. When present the orchestrator skips
	// the separate normalization step.
	Normalized json.RawMessage `json:"normalized,omitempty"`

	// Actual billing for this call, committed against the budget reservation.
	CostUSD      float64 `json:"costUsd"`
	TokensInput  int     `json:"tokensInput,omitempty"`
	TokensOutput int     `json:"tokensOutput,omitempty"`

	Duration time.Duration `json:"-"`
}

// Adapter is the capability set every extraction provider implements.
type Adapter interface {
	Name() string
	Supports(kind constants.Kind) bool
	// EstimateCost predicts the USD cost of extracting size input bytes.
	// Called before Extract for budget authorization and routing tie-breaks.
	EstimateCost(size int) float64
	Extract(ctx context.Context, data []byte, kind constants.Kind) (*RawExtraction, error)
	Metrics() *Metrics
}

// estimatePages guesses page count from input size. Both paid providers bill
// per page; 50KB per page is the original service's working assumption.
func estimatePages(size int) int {
	pages := size / 50_000
	if pages < 1 {
		pages = 1
	}
	return pages
}

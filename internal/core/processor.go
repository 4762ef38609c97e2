// Package core orchestrates a parse request end to end: cache lookups,
// provider routing, budget accounting, normalization, and result assembly.
package core

import (
	"context"
	"encoding/json"
	"sort"
	"time"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/jobstack/resume-parser/constants"
	"github.com/jobstack/resume-parser/internal/budget"
	"github.com/jobstack/resume-parser/internal/cache"
	"github.com/jobstack/resume-parser/internal/fingerprint"
	"github.com/jobstack/resume-parser/internal/normalize"
	"github.com/jobstack/resume-parser/internal/provider"
	"github.com/jobstack/resume-parser/internal/schema"
)

// ErrExtractionFailed marks requests where every candidate provider failed.
// Handlers map it to 502.
var ErrExtractionFailed = errors.New("extraction failed")

// Cost is the billing detail attached to every result.
type Cost struct {
	EstimatedUSD float64 `json:"estimated_usd"`
	ActualUSD    float64 `json:"actual_usd"`
	TokensInput  int     `json:"tokens_input,omitempty"`
	TokensOutput int     `json:"tokens_output,omitempty"`
	PromptCached bool    `json:"prompt_cached,omitempty"`
}

// Debug explains how a result was produced.
type Debug struct {
	ServiceUsed      string   `json:"service_used"`
	Method           string   `json:"method,omitempty"`
	Cost             Cost     `json:"cost"`
	ProcessingTimeMS int64    `json:"processing_time_ms"`
	Confidence       float64  `json:"confidence_score"`
	Cached           bool     `json:"cached"`
	CacheTier        string   `json:"cache_tier,omitempty"`
	Degraded         bool     `json:"degraded"`
	Fallback         bool     `json:"fallback,omitempty"`
	Fingerprint      string   `json:"fingerprint"`
	Warnings         []string `json:"warnings,omitempty"`
}

// Result is the unified response for sync and async parses.
type Result struct {
	Resume *schema.Resume `json:"resume"`
	Debug  Debug          `json:"debug"`
}

// Degraded results never claim more confidence than the heuristic deserves.
const degradedConfidenceCap = 0.3

// Processor routes a document through extraction and normalization. One
// instance serves both the HTTP handlers and the async worker pool.
type Processor struct {
	specialized []provider.Adapter
	fallback    provider.Adapter
	normalizer  normalize.Normalizer
	cache       *cache.Cache
	budget      *budget.Guard
	log         *zap.SugaredLogger

	cacheEnabled bool
	group        singleflight.Group
}

func NewProcessor(specialized []provider.Adapter, fallback provider.Adapter,
	normalizer normalize.Normalizer, resultCache *cache.Cache, guard *budget.Guard,
	cacheEnabled bool, log *zap.SugaredLogger) *Processor {
	return &Processor{
		specialized:  specialized,
		fallback:     fallback,
		normalizer:   normalizer,
		cache:        resultCache,
		budget:       guard,
		log:          log.Named("core"),
		cacheEnabled: cacheEnabled,
	}
}

// Process parses one document. fresh bypasses cache reads but still writes
// the outcome back. Concurrent requests with the same fingerprint share one
// computation.
func (p *Processor) Process(ctx context.Context, data []byte, kind constants.Kind, fresh bool) (*Result, error) {
	start := time.Now()
	fp := fingerprint.Compute(data, kind)
	log := p.log.With("fingerprint", fp.Short(), "kind", kind)

	if p.cacheEnabled && !fresh {
		if ent := p.cache.Get(fp.NormKey()); ent != nil {
			res, err := decodeResult(ent.Payload)
			if err == nil {
				res.Debug.Cached = true
				res.Debug.CacheTier = "normalized"
				// The caller was not charged for a hit.
				res.Debug.Cost = Cost{}
				res.Debug.ProcessingTimeMS = time.Since(start).Milliseconds()
				log.Debugw("served from normalized cache")
				return res, nil
			}
			log.Warnw("discarding undecodable cache entry", "error", err)
			p.cache.Delete(fp.NormKey())
		}
	}

	v, err, shared := p.group.Do(fp.NormKey(), func() (interface{}, error) {
		return p.compute(ctx, data, kind, fp, fresh, log)
	})
	if err != nil {
		return nil, err
	}
	res := v.(*Result)
	if shared {
		// Coalesced callers get a copy so debug mutation stays local. Only
		// the leader paid for the computation.
		clone := *res
		clone.Debug.Cached = true
		clone.Debug.CacheTier = "coalesced"
		clone.Debug.Cost = Cost{}
		clone.Debug.ProcessingTimeMS = time.Since(start).Milliseconds()
		return &clone, nil
	}
	return res, nil
}

func (p *Processor) compute(ctx context.Context, data []byte, kind constants.Kind,
	fp fingerprint.Fingerprint, fresh bool, log *zap.SugaredLogger) (*Result, error) {
	start := time.Now()

	raw, estimated, fellBack, err := p.extract(ctx, data, kind, fp, fresh, log)
	if err != nil {
		return nil, err
	}

	res := &Result{
		Debug: Debug{
			ServiceUsed: raw.Provider,
			Method:      raw.Method,
			Fallback:    fellBack,
			Fingerprint: fp.String(),
			Warnings:    raw.Warnings,
			Cost: Cost{
				EstimatedUSD: estimated,
				ActualUSD:    raw.CostUSD,
				TokensInput:  raw.TokensInput,
				TokensOutput: raw.TokensOutput,
			},
			Confidence: raw.Confidence,
		},
	}

	if len(raw.Normalized) > 0 {
		// The fallback adapter already produced a normalized payload.
		var resume schema.Resume
		if uerr := json.Unmarshal(raw.Normalized, &resume); uerr != nil {
			return nil, errors.Wrap(uerr, "decode pre-normalized payload")
		}
		res.Resume = &resume
	} else if err := p.normalizeInto(ctx, res, raw.Text, log); err != nil {
		// Budget denial surfaces; the Tier A entry written in extract
		// keeps the paid extraction available for a retry.
		return nil, err
	}

	res.Debug.ProcessingTimeMS = time.Since(start).Milliseconds()

	if p.cacheEnabled {
		if payload, merr := json.Marshal(res); merr == nil {
			tokens := res.Debug.Cost.TokensInput + res.Debug.Cost.TokensOutput
			p.cache.Put(fp.NormKey(), payload, tokens, res.Debug.Cost.ActualUSD)
		}
	}
	return res, nil
}

// extract finds a raw text extraction: Tier A cache first, then the routed
// provider, then the fallback adapter at most once.
func (p *Processor) extract(ctx context.Context, data []byte, kind constants.Kind,
	fp fingerprint.Fingerprint, fresh bool, log *zap.SugaredLogger) (*provider.RawExtraction, float64, bool, error) {

	if p.cacheEnabled && !fresh {
		if ent := p.cache.Get(fp.RawKey()); ent != nil {
			var raw provider.RawExtraction
			if err := json.Unmarshal(ent.Payload, &raw); err == nil {
				log.Debugw("extraction served from raw cache", "provider", raw.Provider)
				raw.CostUSD = 0
				return &raw, 0, false, nil
			}
			p.cache.Delete(fp.RawKey())
		}
	}

	primary := p.route(kind, len(data))

	raw, estimated, err := p.callAdapter(ctx, primary, data, kind)
	fellBack := false
	if err != nil {
		if errors.Is(err, budget.ErrExceeded) || errors.Is(err, provider.ErrUnsupportedFormat) {
			return nil, 0, false, err
		}
		if primary == p.fallback {
			return nil, 0, false, errors.Mark(err, ErrExtractionFailed)
		}
		log.Warnw("primary provider failed, falling back",
			"provider", primary.Name(), "error", err)
		raw, estimated, err = p.callAdapter(ctx, p.fallback, data, kind)
		if err != nil {
			if errors.Is(err, budget.ErrExceeded) {
				return nil, 0, false, err
			}
			return nil, 0, false, errors.Mark(err, ErrExtractionFailed)
		}
		fellBack = true
	}

	if p.cacheEnabled && len(raw.Normalized) == 0 {
		if payload, merr := json.Marshal(raw); merr == nil {
			p.cache.Put(fp.RawKey(), payload, 0, raw.CostUSD)
		}
	}
	return raw, estimated, fellBack, nil
}

// route picks the cheapest specialized adapter that supports the kind, or
// the fallback when none does.
func (p *Processor) route(kind constants.Kind, size int) provider.Adapter {
	candidates := make([]provider.Adapter, 0, len(p.specialized))
	for _, a := range p.specialized {
		if a.Supports(kind) {
			candidates = append(candidates, a)
		}
	}
	if len(candidates) == 0 {
		return p.fallback
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].EstimateCost(size) < candidates[j].EstimateCost(size)
	})
	return candidates[0]
}

// callAdapter wraps one provider call in a budget reservation.
func (p *Processor) callAdapter(ctx context.Context, a provider.Adapter,
	data []byte, kind constants.Kind) (*provider.RawExtraction, float64, error) {

	estimated := a.EstimateCost(len(data))
	res, err := p.budget.Authorize(estimated)
	if err != nil {
		return nil, 0, err
	}

	raw, err := a.Extract(ctx, data, kind)
	if err != nil {
		res.Release()
		return nil, estimated, err
	}

	if cerr := res.Commit(ctx, budget.UsageRecord{
		Provider:     a.Name(),
		TokensInput:  raw.TokensInput,
		TokensOutput: raw.TokensOutput,
		CostUSD:      raw.CostUSD,
	}); cerr != nil {
		p.log.Errorw("usage commit failed", "provider", a.Name(), "error", cerr)
	}
	return raw, estimated, nil
}

// normalizeInto fills res.Resume from raw text. A normalization failure
// degrades to the heuristic extraction instead of retrying the provider;
// a budget denial is returned as-is, never converted to free processing.
func (p *Processor) normalizeInto(ctx context.Context, res *Result, text string, log *zap.SugaredLogger) error {
	estimated := normalize.EstimateCost(len(text))
	reservation, err := p.budget.Authorize(estimated)
	if err != nil {
		log.Warnw("normalization denied by budget", "error", err)
		return err
	}

	outcome, nerr := p.normalizer.Normalize(ctx, text)
	if nerr == nil {
		_ = reservation.Commit(ctx, budget.UsageRecord{
			Provider:     "gemini",
			Model:        outcome.ModelName,
			TokensInput:  outcome.Tokens.Input,
			TokensOutput: outcome.Tokens.Output,
			CostUSD:      outcome.CostUSD,
			Cached:       outcome.PromptCached,
		})
		res.Resume = outcome.Resume
		res.Debug.Confidence = outcome.Confidence
		res.Debug.Cost.EstimatedUSD += estimated
		res.Debug.Cost.ActualUSD += outcome.CostUSD
		res.Debug.Cost.TokensInput += outcome.Tokens.Input
		res.Debug.Cost.TokensOutput += outcome.Tokens.Output
		res.Debug.Cost.PromptCached = outcome.PromptCached
		return nil
	}
	reservation.Release()
	log.Warnw("normalization failed, degrading to heuristic extraction", "error", nerr)

	res.Resume = normalize.BuildFallback(text)
	res.Debug.Degraded = true
	res.Debug.Confidence = normalize.Confidence(res.Resume)
	if res.Debug.Confidence > degradedConfidenceCap {
		res.Debug.Confidence = degradedConfidenceCap
	}
	res.Debug.Warnings = append(res.Debug.Warnings,
		"normalization unavailable, heuristic extraction only")
	return nil
}

func decodeResult(payload json.RawMessage) (*Result, error) {
	var res Result
	if err := json.Unmarshal(payload, &res); err != nil {
		return nil, err
	}
	if res.Resume == nil {
		return nil, errors.New("cached result missing resume")
	}
	return &res, nil
}

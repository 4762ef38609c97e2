package normalize

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/jobstack/resume-parser/internal/config"
	"github.com/jobstack/resume-parser/internal/logger"
)

// Gemini implements Normalizer against the Gemini API.
type Gemini struct {
	client *genai.Client
	cfg    config.GeminiConfig
	log    *zap.SugaredLogger

	cacheMu   sync.Mutex
	cacheName string
}

// NewGemini creates a normalizer configured for the Gemini API backend.
func NewGemini(ctx context.Context, cfg config.GeminiConfig, log *zap.SugaredLogger) (*Gemini, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("gemini api key is required")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, errors.Wrap(err, "create genai client")
	}

	return &Gemini{client: client, cfg: cfg, log: log.Named("normalize")}, nil
}

// Normalize sends rawText to the model and decodes the structured resume.
func (g *Gemini) Normalize(ctx context.Context, rawText string) (*Outcome, error) {
	start := time.Now()

	gcfg := &genai.GenerateContentConfig{
		Temperature:      genai.Ptr(g.cfg.Temperature),
		MaxOutputTokens:  g.cfg.MaxOutputTokens,
		ResponseMIMEType: "application/json",
	}

	prompt := BuildPrompt(rawText)
	promptCached := false
	if g.cfg.PromptCaching {
		if name, err := g.ensurePromptCache(ctx); err != nil {
			g.log.Warnw("prompt cache unavailable, using standard mode", "error", err)
		} else {
			gcfg.CachedContent = name
			prompt = BuildDynamicPrompt(rawText)
			promptCached = true
		}
	}

	resp, err := g.client.Models.GenerateContent(ctx, g.cfg.Model, genai.Text(prompt), gcfg)
	if err != nil {
		return nil, errors.Wrap(err, "generate content")
	}

	output := collectText(resp)
	if output == "" {
		return nil, errors.New("gemini returned empty response")
	}

	resume, rawJSON, err := ParseModelOutput(output)
	if err != nil {
		g.log.Warnw("model output unusable",
			"error", err, "output", logger.TruncateForLog(output, 300))
		return nil, errors.Wrap(err, "parse model output")
	}

	tokens := usageFromResponse(resp, prompt, output)
	cost := CalculateCost(tokens, promptCached)

	conf := Confidence(resume)

	g.log.Infow("normalization complete",
		"model", g.cfg.Model,
		"prompt_cached", promptCached,
		"input_tokens", tokens.Input,
		"output_tokens", tokens.Output,
		"cost_usd", cost,
		"confidence", conf,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)

	return &Outcome{
		Resume:       resume,
		RawJSON:      rawJSON,
		Confidence:   conf,
		ModelName:    g.cfg.Model,
		Tokens:       tokens,
		CostUSD:      cost,
		PromptCached: promptCached,
	}, nil
}

// ensurePromptCache creates (once) a model-side cached content resource
// holding the static instruction block, and returns its name.
func (g *Gemini) ensurePromptCache(ctx context.Context) (string, error) {
	g.cacheMu.Lock()
	defer g.cacheMu.Unlock()

	if g.cacheName != "" {
		return g.cacheName, nil
	}

	cached, err := g.client.Caches.Create(ctx, g.cfg.Model, &genai.CreateCachedContentConfig{
		DisplayName: "resume-parser-static-prompt",
		TTL:         24 * time.Hour,
		Contents: []*genai.Content{{
			Role:  genai.RoleUser,
			Parts: []*genai.Part{{Text: StaticPrompt()}},
		}},
	})
	if err != nil {
		return "", errors.Wrap(err, "create prompt cache")
	}
	name := strings.TrimSpace(cached.Name)
	if name == "" {
		return "", errors.New("gemini api returned empty cache name")
	}
	g.cacheName = name
	return name, nil
}

func collectText(resp *genai.GenerateContentResponse) string {
	var sb strings.Builder
	for _, cand := range resp.Candidates {
		if cand == nil || cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			if part == nil || part.Text == "" {
				continue
			}
			sb.WriteString(part.Text)
		}
	}
	return strings.TrimSpace(sb.String())
}

func usageFromResponse(resp *genai.GenerateContentResponse, prompt, output string) TokenUsage {
	if resp.UsageMetadata != nil {
		in := int(resp.UsageMetadata.PromptTokenCount)
		out := int(resp.UsageMetadata.CandidatesTokenCount)
		return TokenUsage{Input: in, Output: out, Total: in + out}
	}
	in := EstimateTokens(prompt)
	out := EstimateTokens(output)
	return TokenUsage{Input: in, Output: out, Total: in + out}
}

// Confidence scores how much of the resume the model actually filled.
func Confidence(r interface{ DetectedSections() []string }) float64 {
	detected := len(r.DetectedSections())
	switch {
	case detected >= 5:
		return 0.95
	case detected >= 3:
		return 0.85
	case detected >= 1:
		return 0.6
	default:
		return 0.3
	}
}

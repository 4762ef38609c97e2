package provider

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/jobstack/resume-parser/constants"
	"github.com/jobstack/resume-parser/internal/config"
	"github.com/jobstack/resume-parser/internal/normalize"
)

// GeminiFallback is the generic last-resort adapter. It accepts every kind
// and performs extraction and normalization in a single multimodal model
// call, so its RawExtraction carries the normalized payload directly and the
// orchestrator skips the separate normalization step.
type GeminiFallback struct {
	client  *genai.Client
	cfg     config.GeminiConfig
	gate    callGate
	log     *zap.SugaredLogger
	metrics Metrics
}

func NewGeminiFallback(ctx context.Context, cfg config.GeminiConfig, callsPerMinute int, log *zap.SugaredLogger) (*GeminiFallback, error) {
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
	return &GeminiFallback{
		client: client,
		cfg:    cfg,
		gate:   newCallGate(callsPerMinute),
		log:    log.Named("gemini-fallback"),
	}, nil
}

func (g *GeminiFallback) Name() string { return "gemini" }

// Supports accepts every kind: the fallback is the end of every route.
func (g *GeminiFallback) Supports(constants.Kind) bool { return true }

func (g *GeminiFallback) EstimateCost(size int) float64 {
	return normalize.EstimateCost(size)
}

func (g *GeminiFallback) Metrics() *Metrics { return &g.metrics }

func (g *GeminiFallback) Extract(ctx context.Context, data []byte, kind constants.Kind) (*RawExtraction, error) {
	if err := g.gate.allow(g.Name()); err != nil {
		return nil, err
	}
	g.metrics.recordStart()
	start := time.Now()

	parts := []*genai.Part{{Text: normalize.StaticPrompt()}}
	var inputText string
	if mime := mimeFor(kind); mime != "" {
		parts = append(parts, &genai.Part{InlineData: &genai.Blob{MIMEType: mime, Data: data}})
	} else {
		if !utf8.Valid(data) {
			g.metrics.recordError()
			return nil, errors.Mark(errors.Newf("gemini fallback: %s payload is not text", kind), ErrUnsupportedFormat)
		}
		inputText = string(data)
		parts = append(parts, &genai.Part{Text: "Resume text:\n" + inputText})
	}

	contents := []*genai.Content{{Role: genai.RoleUser, Parts: parts}}
	gcfg := &genai.GenerateContentConfig{
		Temperature:      genai.Ptr(g.cfg.Temperature),
		MaxOutputTokens:  g.cfg.MaxOutputTokens,
		ResponseMIMEType: "application/json",
	}

	resp, err := g.client.Models.GenerateContent(ctx, g.cfg.Model, contents, gcfg)
	if err != nil {
		g.metrics.recordError()
		return nil, errors.Mark(errors.Wrap(err, "gemini generate"), ErrTransient)
	}

	output := collectResponseText(resp)
	if output == "" {
		g.metrics.recordError()
		return nil, errors.Mark(errors.New("gemini fallback: empty response"), ErrTransient)
	}

	resume, rawJSON, err := normalize.ParseModelOutput(output)
	if err != nil {
		g.metrics.recordError()
		return nil, errors.Mark(errors.Wrap(err, "gemini fallback: parse output"), ErrTransient)
	}

	tokens := tokenUsage(resp, len(data), output)
	cost := normalize.CalculateCost(tokens, false)
	g.metrics.recordSuccess(cost)

	g.log.Infow("single-step extraction complete", "kind", kind,
		"cost_usd", cost, "elapsed_ms", time.Since(start).Milliseconds())

	return &RawExtraction{
		Text:         inputText,
		Pages:        estimatePages(len(data)),
		Confidence:   normalize.Confidence(resume),
		Provider:     g.Name(),
		Method:       "gemini-single-step",
		Normalized:   rawJSON,
		Warnings:     []string{"generic fallback provider produced this result"},
		CostUSD:      cost,
		TokensInput:  tokens.Input,
		TokensOutput: tokens.Output,
		Duration:     time.Since(start),
	}, nil
}

func mimeFor(kind constants.Kind) string {
	switch kind {
	case constants.KindPDF:
		return "application/pdf"
	case constants.KindImage:
		return "image/png"
	case constants.KindOffice:
		return "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	default:
		return ""
	}
}

func collectResponseText(resp *genai.GenerateContentResponse) string {
	var sb strings.Builder
	for _, cand := range resp.Candidates {
		if cand == nil || cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			if part != nil && part.Text != "" {
				sb.WriteString(part.Text)
			}
		}
	}
	return strings.TrimSpace(sb.String())
}

func tokenUsage(resp *genai.GenerateContentResponse, inputLen int, output string) normalize.TokenUsage {
	if resp.UsageMetadata != nil {
		in := int(resp.UsageMetadata.PromptTokenCount)
		out := int(resp.UsageMetadata.CandidatesTokenCount)
		return normalize.TokenUsage{Input: in, Output: out, Total: in + out}
	}
	in := inputLen / 4
	out := normalize.EstimateTokens(output)
	return normalize.TokenUsage{Input: in, Output: out, Total: in + out}
}

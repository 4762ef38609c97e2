package provider

import (
	"context"
	"encoding/base64"
	"net/http"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"github.com/jobstack/resume-parser/constants"
	"github.com/jobstack/resume-parser/internal/config"
)

// Document AI bills per processed page.
const documentAICostPerPage = 0.0015

// DocumentAI extracts text from PDFs through the Google Document AI
// processor REST endpoint.
type DocumentAI struct {
	cfg     config.DocumentAIConfig
	client  *http.Client
	gate    callGate
	log     *zap.SugaredLogger
	metrics Metrics
}

func NewDocumentAI(cfg config.DocumentAIConfig, callsPerMinute int, log *zap.SugaredLogger) *DocumentAI {
	return &DocumentAI{
		cfg:    cfg,
		client: &http.Client{Timeout: 60 * time.Second},
		gate:   newCallGate(callsPerMinute),
		log:    log.Named("documentai"),
	}
}

func (d *DocumentAI) Name() string { return "documentai" }

func (d *DocumentAI) Supports(kind constants.Kind) bool {
	return kind == constants.KindPDF
}

func (d *DocumentAI) EstimateCost(size int) float64 {
	return float64(estimatePages(size)) * documentAICostPerPage
}

func (d *DocumentAI) Metrics() *Metrics { return &d.metrics }

func (d *DocumentAI) Extract(ctx context.Context, data []byte, kind constants.Kind) (*RawExtraction, error) {
	if !d.Supports(kind) {
		return nil, errors.Mark(errors.Newf("documentai: kind %s not supported", kind), ErrUnsupportedFormat)
	}
	if err := d.gate.allow(d.Name()); err != nil {
		return nil, err
	}
	d.metrics.recordStart()
	start := time.Now()

	url := strings.TrimRight(d.cfg.Endpoint, "/") + "/v1/" + d.cfg.ProcessorID + ":process"
	body := map[string]any{
		"rawDocument": map[string]any{
			"content":  base64.StdEncoding.EncodeToString(data),
			"mimeType": "application/pdf",
		},
	}
	headers := map[string]string{"Authorization": "Bearer " + d.cfg.AccessToken}

	raw, status, err := sendJSON(ctx, d.client, url, body, headers, d.log)
	if err != nil {
		d.metrics.recordError()
		return nil, classifyHTTPError(status, errors.Wrap(err, "documentai process"))
	}

	var resp struct {
		Document struct {
			Text  string `json:"text"`
			Pages []struct {
				Layout struct {
					Confidence float64 `json:"confidence"`
				} `json:"layout"`
			} `json:"pages"`
		} `json:"document"`
	}
	if err := decodeJSON(raw, &resp); err != nil {
		d.metrics.recordError()
		return nil, errors.Mark(errors.Wrap(err, "documentai decode"), ErrTransient)
	}

	pages := len(resp.Document.Pages)
	if pages == 0 {
		pages = 1
	}
	conf := 0.0
	for _, p := range resp.Document.Pages {
		conf += p.Layout.Confidence
	}
	conf /= float64(pages)

	cost := float64(pages) * documentAICostPerPage
	d.metrics.recordSuccess(cost)

	d.log.Infow("extraction complete", "pages", pages, "confidence", conf,
		"elapsed_ms", time.Since(start).Milliseconds())

	return &RawExtraction{
		Text:       resp.Document.Text,
		Pages:      pages,
		Confidence: conf,
		Provider:   d.Name(),
		Method:     "documentai-process",
		CostUSD:    cost,
		Duration:   time.Since(start),
	}, nil
}

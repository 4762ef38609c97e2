package provider

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"github.com/jobstack/resume-parser/constants"
	"github.com/jobstack/resume-parser/internal/config"
)

const (
	azureCostPerPage  = 0.0015
	azurePollInterval = 2 * time.Second
	azureMaxPolls     = 30
)

// AzureDI extracts text from scanned images through the Azure Document
// Intelligence read model. Analysis is asynchronous on the Azure side:
// submit, then poll the operation URL until it settles.
type AzureDI struct {
	cfg     config.AzureConfig
	client  *http.Client
	gate    callGate
	log     *zap.SugaredLogger
	metrics Metrics
}

func NewAzureDI(cfg config.AzureConfig, callsPerMinute int, log *zap.SugaredLogger) *AzureDI {
	return &AzureDI{
		cfg:    cfg,
		client: &http.Client{Timeout: 30 * time.Second},
		gate:   newCallGate(callsPerMinute),
		log:    log.Named("azure"),
	}
}

func (a *AzureDI) Name() string { return "azure" }

func (a *AzureDI) Supports(kind constants.Kind) bool {
	return kind == constants.KindImage
}

func (a *AzureDI) EstimateCost(size int) float64 {
	return float64(estimatePages(size)) * azureCostPerPage
}

func (a *AzureDI) Metrics() *Metrics { return &a.metrics }

func (a *AzureDI) Extract(ctx context.Context, data []byte, kind constants.Kind) (*RawExtraction, error) {
	if !a.Supports(kind) {
		return nil, errors.Mark(errors.Newf("azure: kind %s not supported", kind), ErrUnsupportedFormat)
	}
	if err := a.gate.allow(a.Name()); err != nil {
		return nil, err
	}
	a.metrics.recordStart()
	start := time.Now()

	opURL, err := a.submit(ctx, data)
	if err != nil {
		a.metrics.recordError()
		return nil, err
	}

	result, err := a.poll(ctx, opURL)
	if err != nil {
		a.metrics.recordError()
		return nil, err
	}

	pages := result.pages
	if pages == 0 {
		pages = 1
	}
	cost := float64(pages) * azureCostPerPage
	a.metrics.recordSuccess(cost)

	a.log.Infow("extraction complete", "pages", pages, "confidence", result.confidence,
		"elapsed_ms", time.Since(start).Milliseconds())

	return &RawExtraction{
		Text:       result.text,
		Pages:      pages,
		Confidence: result.confidence,
		Provider:   a.Name(),
		Method:     "azure-prebuilt-read",
		CostUSD:    cost,
		Duration:   time.Since(start),
	}, nil
}

func (a *AzureDI) submit(ctx context.Context, data []byte) (string, error) {
	url := strings.TrimRight(a.cfg.Endpoint, "/") +
		"/formrecognizer/documentModels/prebuilt-read:analyze?api-version=" + a.cfg.APIVersion

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return "", errors.Wrap(err, "azure build request")
	}
	req.Header.Set("Content-Type", "application/octet-stream")
	req.Header.Set("Ocp-Apim-Subscription-Key", a.cfg.APIKey)

	resp, err := a.client.Do(req)
	if err != nil {
		return "", errors.Mark(errors.Wrap(err, "azure analyze"), ErrTransient)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusAccepted {
		return "", classifyHTTPError(resp.StatusCode, errors.Newf("azure analyze: status %d", resp.StatusCode))
	}

	opURL := resp.Header.Get("Operation-Location")
	if opURL == "" {
		return "", errors.Mark(errors.New("azure analyze: missing Operation-Location"), ErrTransient)
	}
	return opURL, nil
}

type azureResult struct {
	text       string
	pages      int
	confidence float64
}

func (a *AzureDI) poll(ctx context.Context, opURL string) (*azureResult, error) {
	for i := 0; i < azureMaxPolls; i++ {
		select {
		case <-ctx.Done():
			return nil, errors.Mark(ctx.Err(), ErrTransient)
		case <-time.After(azurePollInterval):
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, opURL, nil)
		if err != nil {
			return nil, errors.Wrap(err, "azure build poll request")
		}
		req.Header.Set("Ocp-Apim-Subscription-Key", a.cfg.APIKey)

		resp, err := a.client.Do(req)
		if err != nil {
			return nil, errors.Mark(errors.Wrap(err, "azure poll"), ErrTransient)
		}
		raw, _ := io.ReadAll(resp.Body)
		resp.Body.Close()

		if resp.StatusCode/100 != 2 {
			return nil, classifyHTTPError(resp.StatusCode, errors.Newf("azure poll: status %d", resp.StatusCode))
		}

		var body struct {
			Status        string `json:"status"`
			AnalyzeResult struct {
				Content string `json:"content"`
				Pages   []struct {
					Words []struct {
						Confidence float64 `json:"confidence"`
					} `json:"words"`
				} `json:"pages"`
			} `json:"analyzeResult"`
		}
		if err := decodeJSON(raw, &body); err != nil {
			return nil, errors.Mark(errors.Wrap(err, "azure decode"), ErrTransient)
		}

		switch body.Status {
		case "succeeded":
			var sum float64
			var n int
			for _, p := range body.AnalyzeResult.Pages {
				for _, w := range p.Words {
					sum += w.Confidence
					n++
				}
			}
			conf := 0.0
			if n > 0 {
				conf = sum / float64(n)
			}
			return &azureResult{
				text:       body.AnalyzeResult.Content,
				pages:      len(body.AnalyzeResult.Pages),
				confidence: conf,
			}, nil
		case "failed":
			return nil, errors.Mark(errors.New("azure analysis failed"), ErrTransient)
		}
		// running / notStarted: keep polling
	}
	return nil, errors.Mark(errors.New("azure analysis timed out"), ErrTransient)
}

package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// sendJSON sends a JSON request to a full URL with optional headers and
// returns the raw response body. It does not assume any provider; callers
// decide the URL and headers.
func sendJSON(ctx context.Context, client *http.Client, url string, body any, headers map[string]string, log *zap.SugaredLogger) ([]byte, int, error) {
	if client == nil {
		client = &http.Client{Timeout: 45 * time.Second}
	}

	reqID := uuid.New().String()
	start := time.Now()

	bs, err := json.Marshal(body)
	if err != nil {
		return nil, 0, errors.Wrap(err, "encode json")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(bs))
	if err != nil {
		return nil, 0, errors.Wrap(err, "build request")
	}

	// Default headers; allow caller overrides.
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	log.Debugw("provider.http.request", "req_id", reqID, "url", url, "content_length", len(bs))

	resp, err := client.Do(req)
	if err != nil {
		log.Errorw("provider.http.send_error", "req_id", reqID, "error", err,
			"elapsed_ms", time.Since(start).Milliseconds())
		return nil, 0, err
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(resp.Body)

	log.Debugw("provider.http.response", "req_id", reqID, "status", resp.StatusCode,
		"bytes", len(raw), "elapsed_ms", time.Since(start).Milliseconds())

	if resp.StatusCode/100 != 2 {
		return raw, resp.StatusCode, errors.Newf("non-2xx status: %d", resp.StatusCode)
	}
	return raw, resp.StatusCode, nil
}

func decodeJSON(raw []byte, v any) error {
	return json.Unmarshal(raw, v)
}

// classifyHTTPError maps an HTTP failure onto the adapter failure taxonomy.
func classifyHTTPError(status int, err error) error {
	switch {
	case status == http.StatusTooManyRequests || status == http.StatusPaymentRequired:
		return errors.Mark(err, ErrQuotaExceeded)
	case status == http.StatusUnsupportedMediaType || status == http.StatusUnprocessableEntity:
		return errors.Mark(err, ErrUnsupportedFormat)
	default:
		// Network errors, 5xx, timeouts: retryable elsewhere.
		return errors.Mark(err, ErrTransient)
	}
}

// callGate bounds outbound calls per adapter. A denied reservation reports
// quota exhaustion without waiting.
type callGate struct {
	lim *rate.Limiter
}

func newCallGate(callsPerMinute int) callGate {
	if callsPerMinute <= 0 {
		callsPerMinute = 60
	}
	return callGate{lim: rate.NewLimiter(rate.Limit(float64(callsPerMinute)/60.0), callsPerMinute)}
}

func (g callGate) allow(name string) error {
	if g.lim.Allow() {
		return nil
	}
	return errors.Mark(errors.Newf("%s: outbound call rate exceeded", name), ErrQuotaExceeded)
}

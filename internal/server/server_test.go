package server

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	_ "modernc.org/sqlite"

	"github.com/jobstack/resume-parser/constants"
	"github.com/jobstack/resume-parser/internal/budget"
	"github.com/jobstack/resume-parser/internal/cache"
	"github.com/jobstack/resume-parser/internal/config"
	"github.com/jobstack/resume-parser/internal/core"
	"github.com/jobstack/resume-parser/internal/jobs"
	"github.com/jobstack/resume-parser/internal/normalize"
	"github.com/jobstack/resume-parser/internal/provider"
	"github.com/jobstack/resume-parser/internal/schema"
	"github.com/jobstack/resume-parser/internal/stream"
)

type stubAdapter struct {
	name    string
	kinds   map[constants.Kind]bool
	err     error
	metrics provider.Metrics
}

func (a *stubAdapter) Name() string                      { return a.name }
func (a *stubAdapter) Supports(kind constants.Kind) bool { return a.kinds[kind] }
func (a *stubAdapter) EstimateCost(size int) float64     { return 0.001 }
func (a *stubAdapter) Metrics() *provider.Metrics        { return &a.metrics }

func (a *stubAdapter) Extract(ctx context.Context, data []byte, kind constants.Kind) (*provider.RawExtraction, error) {
	if a.err != nil {
		return nil, a.err
	}
	return &provider.RawExtraction{
		Text:       "Jane Roe\njane@example.com",
		Pages:      1,
		Confidence: 0.92,
		Provider:   a.name,
		Method:     a.name + "-extract",
		CostUSD:    0.001,
	}, nil
}

type stubNormalizer struct{}

func (stubNormalizer) Normalize(ctx context.Context, rawText string) (*normalize.Outcome, error) {
	resume := schema.Empty()
	resume.PersonalInfo.FullName = "Jane Roe"
	resume.PersonalInfo.Email = "jane@example.com"
	return &normalize.Outcome{
		Resume:     resume,
		Confidence: 0.9,
		ModelName:  "gemini-2.5-flash",
		Tokens:     normalize.TokenUsage{Input: 100, Output: 50, Total: 150},
		CostUSD:    0.0001,
	}, nil
}

type fixture struct {
	srv      *Server
	handler  http.Handler
	pool     *jobs.Pool
	store    *jobs.Store
	notifier *stream.Notifier
	cancel   context.CancelFunc
}

func newFixture(t *testing.T, mutate func(cfg *config.Config)) *fixture {
	t.Helper()
	log := zap.NewNop().Sugar()

	cfg := &config.Config{
		Server: config.ServerConfig{
			Addr:           ":0",
			MaxUploadBytes: 1 << 20,
			RequestTimeout: 10 * time.Second,
			AllowedOrigins: []string{"http://localhost:5173"},
		},
		Cache: config.CacheConfig{Enabled: true, TTL: time.Hour, MaxEntries: 100},
		Budget: config.BudgetConfig{
			MonthlyLimitUSD: 10,
			AlertThreshold:  0.8,
		},
		Jobs: config.JobsConfig{
			Workers:           1,
			QueueSize:         8,
			ProcessTimeout:    time.Minute,
			SyncFallback:      true,
			StreamIdleTimeout: time.Minute,
		},
	}
	if mutate != nil {
		mutate(cfg)
	}

	guard, err := budget.NewGuard(context.Background(), nil, cfg.Budget.MonthlyLimitUSD, cfg.Budget.AlertThreshold, log)
	require.NoError(t, err)
	resultCache := cache.New(cfg.Cache.TTL, cfg.Cache.MaxEntries, log)

	pdf := &stubAdapter{name: "documentai", kinds: map[constants.Kind]bool{constants.KindPDF: true}}
	fallback := &stubAdapter{name: "gemini", kinds: map[constants.Kind]bool{
		constants.KindPDF: true, constants.KindImage: true,
		constants.KindOffice: true, constants.KindText: true,
	}}
	processor := core.NewProcessor([]provider.Adapter{pdf}, fallback, stubNormalizer{},
		resultCache, guard, cfg.Cache.Enabled, log)

	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "server.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	store, err := jobs.NewStore(context.Background(), db)
	require.NoError(t, err)

	notifier := stream.NewNotifier(log)
	process := func(ctx context.Context, job *jobs.Job) (json.RawMessage, error) {
		res, err := processor.Process(ctx, job.Payload, job.Kind, job.Fresh)
		if err != nil {
			return nil, err
		}
		return json.Marshal(res)
	}
	pool := jobs.NewPool(store, process, log,
		jobs.WithWorkers(cfg.Jobs.Workers),
		jobs.WithQueueSize(cfg.Jobs.QueueSize),
		jobs.WithProcessTimeout(cfg.Jobs.ProcessTimeout),
		jobs.WithTransitionFunc(notifier.Publish),
	)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	pool.Start(ctx)

	srv := New(cfg, processor, pool, store, notifier, resultCache, guard,
		[]provider.Adapter{pdf, fallback}, nil, log)
	return &fixture{srv: srv, handler: srv.Handler(), pool: pool, store: store, notifier: notifier, cancel: cancel}
}

func multipartBody(t *testing.T, filename string, content []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = fw.Write(content)
	require.NoError(t, err)
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func TestParseResumeMultipart(t *testing.T) {
	f := newFixture(t, nil)

	body, ct := multipartBody(t, "resume.pdf", []byte("%PDF-1.7 jane"))
	req := httptest.NewRequest(http.MethodPost, "/parse-resume", body)
	req.Header.Set("Content-Type", ct)
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var res core.Result
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.Equal(t, "Jane Roe", res.Resume.PersonalInfo.FullName)
	assert.Equal(t, "documentai", res.Debug.ServiceUsed)
	assert.False(t, res.Debug.Cached)
}

func TestParseResumeJSONText(t *testing.T) {
	f := newFixture(t, nil)

	req := httptest.NewRequest(http.MethodPost, "/parse-resume",
		strings.NewReader(`{"text":"Jane Roe, software engineer"}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var res core.Result
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.Equal(t, "gemini", res.Debug.ServiceUsed)
}

func TestParseResumeUnsupportedExtension(t *testing.T) {
	f := newFixture(t, nil)

	body, ct := multipartBody(t, "resume.exe", []byte("MZ"))
	req := httptest.NewRequest(http.MethodPost, "/parse-resume", body)
	req.Header.Set("Content-Type", ct)
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "unsupported file type")
}

func TestParseResumeTooLarge(t *testing.T) {
	f := newFixture(t, func(cfg *config.Config) {
		cfg.Server.MaxUploadBytes = 64
	})

	body, ct := multipartBody(t, "resume.pdf", bytes.Repeat([]byte("a"), 4096))
	req := httptest.NewRequest(http.MethodPost, "/parse-resume", body)
	req.Header.Set("Content-Type", ct)
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestParseResumeBudgetExceeded(t *testing.T) {
	f := newFixture(t, func(cfg *config.Config) {
		cfg.Budget.MonthlyLimitUSD = 0
	})

	body, ct := multipartBody(t, "resume.pdf", []byte("%PDF-1.7"))
	req := httptest.NewRequest(http.MethodPost, "/parse-resume", body)
	req.Header.Set("Content-Type", ct)
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusPaymentRequired, rec.Code)
}

func TestAsyncSubmitAndPoll(t *testing.T) {
	f := newFixture(t, nil)

	body, ct := multipartBody(t, "resume.pdf", []byte("%PDF-1.7 async"))
	req := httptest.NewRequest(http.MethodPost, "/parse-resume-async", body)
	req.Header.Set("Content-Type", ct)
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	var submitted struct {
		JobID     string `json:"jobId"`
		Status    string `json:"status"`
		Mode      string `json:"processingMode"`
		StatusURL string `json:"statusUrl"`
		StreamURL string `json:"streamUrl"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &submitted))
	assert.Equal(t, "async", submitted.Mode)
	assert.Equal(t, string(constants.JobStatusQueued), submitted.Status)
	assert.Equal(t, "/parse-resume-async/status/"+submitted.JobID, submitted.StatusURL)
	assert.Equal(t, "/parse-resume-async/stream/"+submitted.JobID, submitted.StreamURL)

	require.Eventually(t, func() bool {
		req := httptest.NewRequest(http.MethodGet, "/parse-resume-async/status/"+submitted.JobID, nil)
		rec := httptest.NewRecorder()
		f.handler.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			return false
		}
		var job jobs.Job
		if err := json.Unmarshal(rec.Body.Bytes(), &job); err != nil {
			return false
		}
		return job.Status == constants.JobStatusCompleted
	}, 5*time.Second, 20*time.Millisecond)
}

func TestUnknownJobIs404(t *testing.T) {
	f := newFixture(t, nil)

	req := httptest.NewRequest(http.MethodGet,
		"/parse-resume-async/status/6b9f2f6e-5b7a-4f1e-9c3d-1a2b3c4d5e6f", nil)
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSyncFallbackOnSaturatedQueue(t *testing.T) {
	f := newFixture(t, func(cfg *config.Config) {
		cfg.Jobs.QueueSize = 1
	})
	// Cancel the workers so the queue stays occupied.
	f.cancel()
	f.pool.Wait()
	first := jobs.NewJob("", "blocker.pdf", constants.KindPDF, []byte("%PDF-x"), false)
	accepted, err := f.pool.TryEnqueue(context.Background(), first)
	require.NoError(t, err)
	require.True(t, accepted)

	body, ct := multipartBody(t, "resume.pdf", []byte("%PDF-1.7 overflow"))
	req := httptest.NewRequest(http.MethodPost, "/parse-resume-async", body)
	req.Header.Set("Content-Type", ct)
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var res struct {
		JobID  *string     `json:"jobId"`
		Status string      `json:"status"`
		Mode   string      `json:"processingMode"`
		Result core.Result `json:"result"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.Nil(t, res.JobID)
	assert.Equal(t, string(constants.JobStatusCompleted), res.Status)
	assert.Equal(t, "sync_fallback", res.Mode)
	assert.Equal(t, "Jane Roe", res.Result.Resume.PersonalInfo.FullName)

	// The raw payload carries an explicit null jobId, not an omitted key.
	var m map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &m))
	require.Contains(t, m, "jobId")
	assert.Equal(t, "null", string(m["jobId"]))
}

func TestQueueFullWithoutSyncFallbackIs503(t *testing.T) {
	f := newFixture(t, func(cfg *config.Config) {
		cfg.Jobs.QueueSize = 1
		cfg.Jobs.SyncFallback = false
	})
	f.cancel()
	f.pool.Wait()
	first := jobs.NewJob("", "blocker.pdf", constants.KindPDF, []byte("%PDF-x"), false)
	accepted, err := f.pool.TryEnqueue(context.Background(), first)
	require.NoError(t, err)
	require.True(t, accepted)

	body, ct := multipartBody(t, "resume.pdf", []byte("%PDF-1.7 overflow"))
	req := httptest.NewRequest(http.MethodPost, "/parse-resume-async", body)
	req.Header.Set("Content-Type", ct)
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestJobStreamReplaysTerminalState(t *testing.T) {
	f := newFixture(t, nil)

	body, ct := multipartBody(t, "resume.pdf", []byte("%PDF-1.7 sse"))
	req := httptest.NewRequest(http.MethodPost, "/parse-resume-async", body)
	req.Header.Set("Content-Type", ct)
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusAccepted, rec.Code)

	var submitted struct {
		JobID string `json:"jobId"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &submitted))

	id, err := uuid.Parse(submitted.JobID)
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		job, err := f.store.Get(context.Background(), id)
		return err == nil && job.Status.Terminal()
	}, 5*time.Second, 20*time.Millisecond)

	sreq := httptest.NewRequest(http.MethodGet, "/parse-resume-async/stream/"+submitted.JobID, nil)
	srec := httptest.NewRecorder()
	f.handler.ServeHTTP(srec, sreq)

	require.Equal(t, http.StatusOK, srec.Code)
	assert.Equal(t, "text/event-stream", srec.Header().Get("Content-Type"))
	line := strings.TrimPrefix(strings.SplitN(srec.Body.String(), "\n", 2)[0], "data: ")
	var ev stream.Event
	require.NoError(t, json.Unmarshal([]byte(line), &ev))
	assert.Equal(t, constants.JobStatusCompleted, ev.Status)
	assert.NotEmpty(t, ev.Result)
}

func TestJobStreamSeesTerminalTransitionDuringSetup(t *testing.T) {
	// A job completing while the stream handler is setting up must still
	// deliver the terminal event: the subscription is registered before the
	// snapshot read, so the transition lands in the snapshot or the channel,
	// never in a gap between them. Run several rounds to exercise different
	// interleavings.
	f := newFixture(t, func(cfg *config.Config) {
		cfg.Jobs.StreamIdleTimeout = 150 * time.Millisecond
	})
	// Stop the workers; this test drives transitions by hand.
	f.cancel()
	f.pool.Wait()

	for i := 0; i < 20; i++ {
		job := jobs.NewJob("", "race.pdf", constants.KindPDF, []byte("%PDF-x"), false)
		require.NoError(t, f.store.Insert(context.Background(), job))
		_, err := f.store.MarkProcessing(context.Background(), job.ID)
		require.NoError(t, err)

		sreq := httptest.NewRequest(http.MethodGet, "/parse-resume-async/stream/"+job.ID.String(), nil)
		srec := httptest.NewRecorder()
		done := make(chan struct{})
		go func() {
			f.handler.ServeHTTP(srec, sreq)
			close(done)
		}()

		changed, err := f.store.Complete(context.Background(), job.ID, json.RawMessage(`{"ok":true}`))
		require.NoError(t, err)
		require.True(t, changed)
		final, err := f.store.Get(context.Background(), job.ID)
		require.NoError(t, err)
		f.notifier.Publish(final)

		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatal("stream did not terminate")
		}

		var last stream.Event
		for _, line := range strings.Split(srec.Body.String(), "\n") {
			if !strings.HasPrefix(line, "data: ") {
				continue
			}
			require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &last))
		}
		require.Equal(t, constants.JobStatusCompleted, last.Status,
			"stream ended without the terminal event")
	}
}

func TestHealthAndRoot(t *testing.T) {
	f := newFixture(t, nil)

	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"ok"`)

	rec = httptest.NewRecorder()
	f.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "resume-parser")
}

func TestStatsEndpoint(t *testing.T) {
	f := newFixture(t, nil)

	body, ct := multipartBody(t, "resume.pdf", []byte("%PDF-1.7 stats"))
	req := httptest.NewRequest(http.MethodPost, "/parse-resume", body)
	req.Header.Set("Content-Type", ct)
	f.handler.ServeHTTP(httptest.NewRecorder(), req)

	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/stats", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var stats map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	assert.Contains(t, stats, "budget")
	assert.Contains(t, stats, "cache")
	assert.Contains(t, stats, "providers")
	assert.Contains(t, stats, "jobs")
}

func TestCacheStatsAndClear(t *testing.T) {
	f := newFixture(t, nil)

	body, ct := multipartBody(t, "resume.pdf", []byte("%PDF-1.7 c"))
	req := httptest.NewRequest(http.MethodPost, "/parse-resume", body)
	req.Header.Set("Content-Type", ct)
	f.handler.ServeHTTP(httptest.NewRecorder(), req)

	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/cache/stats", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var stats cache.Stats
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	assert.Equal(t, 2, stats.Entries)

	rec = httptest.NewRecorder()
	f.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/cache/clear", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"removed":2`)
}

func TestCORSPreflight(t *testing.T) {
	f := newFixture(t, nil)

	req := httptest.NewRequest(http.MethodOptions, "/parse-resume", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "http://localhost:5173", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestAuthRequiredRejectsMissingToken(t *testing.T) {
	f := newFixture(t, func(cfg *config.Config) {
		cfg.Server.AuthRequired = true
	})
	f.srv.verifier = verifierFunc(func(ctx context.Context, token string) (string, error) {
		if token == "valid" {
			return "user-1", nil
		}
		return "", io.EOF
	})
	handler := f.srv.Handler()

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/stats", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/stats", nil)
	req.Header.Set("Authorization", "Bearer valid")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

type verifierFunc func(ctx context.Context, token string) (string, error)

func (f verifierFunc) Verify(ctx context.Context, token string) (string, error) {
	return f(ctx, token)
}

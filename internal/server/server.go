// Package server exposes the parsing pipeline over HTTP: synchronous and
// async parse endpoints, per-job SSE streams, a websocket firehose, and the
// cache, budget, and provider statistics surface.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/jobstack/resume-parser/internal/budget"
	"github.com/jobstack/resume-parser/internal/cache"
	"github.com/jobstack/resume-parser/internal/config"
	"github.com/jobstack/resume-parser/internal/core"
	"github.com/jobstack/resume-parser/internal/jobs"
	"github.com/jobstack/resume-parser/internal/provider"
	"github.com/jobstack/resume-parser/internal/stream"
)

type Server struct {
	cfg       *config.Config
	processor *core.Processor
	pool      *jobs.Pool
	store     *jobs.Store
	notifier  *stream.Notifier
	cache     *cache.Cache
	budget    *budget.Guard
	adapters  []provider.Adapter
	verifier  TokenVerifier
	log       *zap.SugaredLogger

	stats     requestStats
	startedAt time.Time
	upgrader  websocket.Upgrader
	httpSrv   *http.Server
}

func New(cfg *config.Config, processor *core.Processor, pool *jobs.Pool,
	store *jobs.Store, notifier *stream.Notifier, resultCache *cache.Cache,
	guard *budget.Guard, adapters []provider.Adapter, verifier TokenVerifier,
	log *zap.SugaredLogger) *Server {

	s := &Server{
		cfg:       cfg,
		processor: processor,
		pool:      pool,
		store:     store,
		notifier:  notifier,
		cache:     resultCache,
		budget:    guard,
		adapters:  adapters,
		verifier:  verifier,
		log:       log.Named("server"),
		startedAt: time.Now(),
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return origin == "" || s.originAllowed(origin)
		},
	}
	return s
}

// Handler builds the full route table with middleware applied.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleRoot)
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/stats", s.handleStats)
	mux.HandleFunc("/cache/stats", s.handleCacheStats)
	mux.HandleFunc("/cache/clear", s.handleCacheClear)
	mux.HandleFunc("/parse-resume", s.handleParse)
	mux.HandleFunc("/parse-resume-async", s.handleParseAsync)
	mux.HandleFunc("/parse-resume-async/status/", s.handleJobStatus)
	mux.HandleFunc("/parse-resume-async/stream/", s.handleJobStream)
	mux.HandleFunc("/ws", s.handleFirehose)

	return s.withLogging(s.withCORS(s.withAuth(mux)))
}

// Start serves until ctx is canceled, then drains with a grace period.
func (s *Server) Start(ctx context.Context) error {
	s.httpSrv = &http.Server{
		Addr:              s.cfg.Server.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Infow("listening", "addr", s.cfg.Server.Addr)
		if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return errors.Wrap(err, "http server")
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := s.httpSrv.Shutdown(shutdownCtx); err != nil {
		return errors.Wrap(err, "shutdown http server")
	}
	s.log.Infow("server stopped")
	return nil
}

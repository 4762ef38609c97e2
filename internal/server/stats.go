package server

import (
	"net/http"
	"time"

	"github.com/jobstack/resume-parser/constants"
)

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"service":            "resume-parser",
		"status":             "running",
		"allowed_extensions": constants.ExtensionList(),
		"providers":          s.cfg.ConfiguredProviders(),
		"endpoints": []string{
			"POST /parse-resume",
			"POST /parse-resume-async",
			"GET /parse-resume-async/status/{jobId}",
			"GET /parse-resume-async/stream/{jobId}",
			"GET /ws",
			"GET /cache/stats",
			"POST /cache/clear",
			"GET /stats",
			"GET /health",
		},
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":         "ok",
		"uptime_seconds": int64(time.Since(s.startedAt).Seconds()),
		"queue_depth":    s.pool.Depth(),
		"queue_capacity": s.pool.Capacity(),
	})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}

	providers := make(map[string]interface{}, len(s.adapters))
	for _, a := range s.adapters {
		providers[a.Name()] = a.Metrics().Load()
	}

	jobCounts, err := s.store.CountByStatus(r.Context())
	if err != nil {
		s.log.Errorw("job counts unavailable", "error", err)
		jobCounts = nil
	}
	perJob, firehose := s.notifier.Subscribers()

	spendByProvider, err := s.budget.SpendByProvider(r.Context())
	if err != nil {
		s.log.Errorw("provider spend unavailable", "error", err)
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"uptime_seconds": int64(time.Since(s.startedAt).Seconds()),
		"requests": map[string]int64{
			"total":  s.stats.total.Load(),
			"errors": s.stats.errors.Load(),
		},
		"budget":            s.budget.Status(),
		"spend_by_provider": spendByProvider,
		"cache":             s.cache.Stats(),
		"providers":         providers,
		"jobs": map[string]interface{}{
			"by_status":      jobCounts,
			"queue_depth":    s.pool.Depth(),
			"queue_capacity": s.pool.Capacity(),
		},
		"stream_subscribers": map[string]int{
			"per_job":  perJob,
			"firehose": firehose,
		},
	})
}

func (s *Server) handleCacheStats(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}
	writeJSON(w, http.StatusOK, s.cache.Stats())
}

func (s *Server) handleCacheClear(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}
	removed := s.cache.Clear()
	writeJSON(w, http.StatusOK, map[string]int{"removed": removed})
}

package server

import (
	"encoding/json"
	"net/http"

	"github.com/cockroachdb/errors"

	"github.com/jobstack/resume-parser/internal/budget"
	"github.com/jobstack/resume-parser/internal/core"
	"github.com/jobstack/resume-parser/internal/jobs"
	"github.com/jobstack/resume-parser/internal/provider"
)

func writeJSON(w http.ResponseWriter, status int, data interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		return errors.Wrap(err, "encode JSON response")
	}
	return nil
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}

// statusFor maps the domain error taxonomy onto HTTP codes. The packages
// that own the sentinels never see HTTP.
func statusFor(err error) int {
	switch {
	case errors.Is(err, provider.ErrUnsupportedFormat):
		return http.StatusBadRequest
	case errors.Is(err, budget.ErrExceeded):
		return http.StatusPaymentRequired
	case errors.Is(err, jobs.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, core.ErrExtractionFailed),
		errors.Is(err, provider.ErrTransient),
		errors.Is(err, provider.ErrQuotaExceeded):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeDomainError(w http.ResponseWriter, err error) {
	writeError(w, statusFor(err), err.Error())
}

func requireMethod(w http.ResponseWriter, r *http.Request, method string) bool {
	if r.Method != method {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return false
	}
	return true
}

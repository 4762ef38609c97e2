package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"

	"github.com/jobstack/resume-parser/constants"
	"github.com/jobstack/resume-parser/internal/jobs"
)

// document is one upload after decoding, whatever the submission shape.
type document struct {
	data     []byte
	filename string
	kind     constants.Kind
	fresh    bool
}

type textRequest struct {
	Text     string `json:"text"`
	Filename string `json:"filename,omitempty"`
	Fresh    bool   `json:"fresh,omitempty"`
}

// readDocument accepts either a multipart upload (field "file") or a JSON
// body with raw text. Returns an HTTP status alongside any error.
func (s *Server) readDocument(w http.ResponseWriter, r *http.Request) (*document, int, error) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.Server.MaxUploadBytes)
	fresh := r.URL.Query().Get("fresh") == "true"

	ct := r.Header.Get("Content-Type")
	if strings.HasPrefix(ct, "application/json") {
		var req textRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			return nil, maxBytesStatus(err), err
		}
		if strings.TrimSpace(req.Text) == "" {
			return nil, http.StatusBadRequest, errBadRequest("text must not be empty")
		}
		name := req.Filename
		if name == "" {
			name = "resume.txt"
		}
		return &document{
			data:     []byte(req.Text),
			filename: name,
			kind:     constants.KindText,
			fresh:    fresh || req.Fresh,
		}, http.StatusOK, nil
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		return nil, maxBytesStatus(err), err
	}
	defer file.Close()

	kind := constants.KindForFilename(header.Filename)
	if kind == constants.KindUnknown {
		return nil, http.StatusBadRequest,
			errBadRequest("unsupported file type, allowed: " + strings.Join(constants.ExtensionList(), ", "))
	}

	data, err := io.ReadAll(file)
	if err != nil {
		return nil, maxBytesStatus(err), err
	}
	if len(data) == 0 {
		return nil, http.StatusBadRequest, errBadRequest("uploaded file is empty")
	}
	if r.FormValue("fresh") == "true" {
		fresh = true
	}
	return &document{data: data, filename: header.Filename, kind: kind, fresh: fresh}, http.StatusOK, nil
}

func (s *Server) handleParse(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}
	doc, status, err := s.readDocument(w, r)
	if err != nil {
		writeError(w, status, err.Error())
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.Server.RequestTimeout)
	defer cancel()

	res, err := s.processor.Process(ctx, doc.data, doc.kind, doc.fresh)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleParseAsync(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}
	doc, status, err := s.readDocument(w, r)
	if err != nil {
		writeError(w, status, err.Error())
		return
	}

	job := jobs.NewJob(SubjectFrom(r.Context()), doc.filename, doc.kind, doc.data, doc.fresh)
	accepted, err := s.pool.TryEnqueue(r.Context(), job)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if accepted {
		writeJSON(w, http.StatusAccepted, map[string]interface{}{
			"jobId":          job.ID.String(),
			"status":         job.Status,
			"processingMode": "async",
			"statusUrl":      "/parse-resume-async/status/" + job.ID.String(),
			"streamUrl":      "/parse-resume-async/stream/" + job.ID.String(),
		})
		return
	}

	if !s.cfg.Jobs.SyncFallback {
		writeError(w, http.StatusServiceUnavailable, "worker queue is full, retry later")
		return
	}

	// Saturated pool: degrade to a blocking parse rather than turning
	// submissions away.
	s.log.Warnw("worker queue saturated, processing synchronously", "filename", doc.filename)
	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.Server.RequestTimeout)
	defer cancel()

	res, err := s.processor.Process(ctx, doc.data, doc.kind, doc.fresh)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"jobId":          nil,
		"status":         constants.JobStatusCompleted,
		"processingMode": "sync_fallback",
		"result":         res,
	})
}

func (s *Server) handleJobStatus(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}
	id, ok := jobIDFromPath(w, r.URL.Path, "/parse-resume-async/status/")
	if !ok {
		return
	}
	job, err := s.store.Get(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func jobIDFromPath(w http.ResponseWriter, path, prefix string) (uuid.UUID, bool) {
	raw := strings.TrimPrefix(path, prefix)
	id, err := uuid.Parse(raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid job id")
		return uuid.Nil, false
	}
	return id, true
}

type badRequestError string

func (e badRequestError) Error() string { return string(e) }

func errBadRequest(msg string) error { return badRequestError(msg) }

func maxBytesStatus(err error) int {
	var mbe *http.MaxBytesError
	if errors.As(err, &mbe) {
		return http.StatusRequestEntityTooLarge
	}
	return http.StatusBadRequest
}

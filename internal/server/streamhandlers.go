package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/jobstack/resume-parser/constants"
	"github.com/jobstack/resume-parser/internal/jobs"
	"github.com/jobstack/resume-parser/internal/stream"
)

// handleJobStream serves one job's transitions as server-sent events. The
// stream ends on the terminal event, on client disconnect, or after the
// configured idle timeout.
func (s *Server) handleJobStream(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}
	id, ok := jobIDFromPath(w, r.URL.Path, "/parse-resume-async/stream/")
	if !ok {
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	// Subscribe before reading current state so no transition falls in the
	// gap between snapshot and subscription. A terminal transition in that
	// gap would otherwise never reach this stream: Publish closes and
	// removes a job's subscriber set on the terminal event.
	events, cancel := s.notifier.Subscribe(id)
	defer cancel()

	job, err := s.store.Get(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	writeSSE(w, statusEvent(job))
	flusher.Flush()
	if job.Status.Terminal() {
		return
	}

	idle := time.NewTimer(s.cfg.Jobs.StreamIdleTimeout)
	defer idle.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-idle.C:
			s.log.Debugw("closing idle job stream", "job_id", id)
			return
		case ev, open := <-events:
			if !open {
				return
			}
			writeSSE(w, ev)
			flusher.Flush()
			if ev.Status.Terminal() {
				return
			}
			if !idle.Stop() {
				<-idle.C
			}
			idle.Reset(s.cfg.Jobs.StreamIdleTimeout)
		}
	}
}

func writeSSE(w http.ResponseWriter, ev stream.Event) {
	payload, err := json.Marshal(ev)
	if err != nil {
		return
	}
	w.Write([]byte("data: "))
	w.Write(payload)
	w.Write([]byte("\n\n"))
}

func statusEvent(job *jobs.Job) stream.Event {
	ev := stream.Event{
		Type:      "job_update",
		JobID:     job.ID.String(),
		Status:    job.Status,
		Error:     job.Error,
		Timestamp: time.Now().UTC(),
	}
	if job.Status == constants.JobStatusCompleted {
		ev.Result = job.Result
	}
	return ev
}

// handleFirehose upgrades to a websocket carrying every job transition.
func (s *Server) handleFirehose(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warnw("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	events, cancel := s.notifier.SubscribeAll()
	defer cancel()

	// Reader goroutine: the client sends nothing meaningful, but reading is
	// required to observe close frames.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(30 * time.Second)
	defer ping.Stop()

	for {
		select {
		case <-done:
			return
		case <-r.Context().Done():
			return
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second)); err != nil {
				return
			}
		case ev, open := <-events:
			if !open {
				return
			}
			if err := conn.WriteJSON(ev); err != nil {
				s.log.Debugw("websocket write failed, dropping client", "error", err)
				return
			}
		}
	}
}

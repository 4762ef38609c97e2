// Package stream fans job status transitions out to live subscribers: the
// per-job SSE streams and the firehose websocket feed.
package stream

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jobstack/resume-parser/constants"
	"github.com/jobstack/resume-parser/internal/jobs"
)

// Event is one job status update on the wire.
type Event struct {
	Type      string              `json:"type"`
	JobID     string              `json:"jobId"`
	Status    constants.JobStatus `json:"status"`
	Result    json.RawMessage     `json:"result,omitempty"`
	Error     string              `json:"error,omitempty"`
	Timestamp time.Time           `json:"timestamp"`
}

const subscriberBuffer = 16

type subscriber struct {
	ch   chan Event
	once sync.Once
}

func (s *subscriber) close() {
	s.once.Do(func() { close(s.ch) })
}

// Notifier routes events to per-job subscribers and to firehose subscribers.
// A terminal event closes that job's channels so SSE handlers can finish the
// response.
type Notifier struct {
	mu       sync.Mutex
	byJob    map[uuid.UUID]map[*subscriber]struct{}
	firehose map[*subscriber]struct{}
	log      *zap.SugaredLogger
}

func NewNotifier(log *zap.SugaredLogger) *Notifier {
	return &Notifier{
		byJob:    make(map[uuid.UUID]map[*subscriber]struct{}),
		firehose: make(map[*subscriber]struct{}),
		log:      log.Named("stream"),
	}
}

// Subscribe registers for one job's events. The returned cancel func is safe
// to call after the channel closed.
func (n *Notifier) Subscribe(jobID uuid.UUID) (<-chan Event, func()) {
	sub := &subscriber{ch: make(chan Event, subscriberBuffer)}

	n.mu.Lock()
	set, ok := n.byJob[jobID]
	if !ok {
		set = make(map[*subscriber]struct{})
		n.byJob[jobID] = set
	}
	set[sub] = struct{}{}
	n.mu.Unlock()

	cancel := func() {
		n.mu.Lock()
		if set, ok := n.byJob[jobID]; ok {
			delete(set, sub)
			if len(set) == 0 {
				delete(n.byJob, jobID)
			}
		}
		n.mu.Unlock()
		sub.close()
	}
	return sub.ch, cancel
}

// SubscribeAll registers for every job's events.
func (n *Notifier) SubscribeAll() (<-chan Event, func()) {
	sub := &subscriber{ch: make(chan Event, subscriberBuffer)}

	n.mu.Lock()
	n.firehose[sub] = struct{}{}
	n.mu.Unlock()

	cancel := func() {
		n.mu.Lock()
		delete(n.firehose, sub)
		n.mu.Unlock()
		sub.close()
	}
	return sub.ch, cancel
}

// Publish converts a job snapshot into an event and fans it out. Slow
// subscribers are skipped rather than blocking the worker.
func (n *Notifier) Publish(job *jobs.Job) {
	ev := Event{
		Type:      "job_update",
		JobID:     job.ID.String(),
		Status:    job.Status,
		Error:     job.Error,
		Timestamp: time.Now().UTC(),
	}
	if job.Status == constants.JobStatusCompleted {
		ev.Result = job.Result
	}

	terminal := job.Status.Terminal()

	n.mu.Lock()
	targets := make([]*subscriber, 0, subscriberBuffer)
	for sub := range n.byJob[job.ID] {
		targets = append(targets, sub)
	}
	for sub := range n.firehose {
		targets = append(targets, sub)
	}
	var toClose []*subscriber
	if terminal {
		for sub := range n.byJob[job.ID] {
			toClose = append(toClose, sub)
		}
		delete(n.byJob, job.ID)
	}
	n.mu.Unlock()

	for _, sub := range targets {
		select {
		case sub.ch <- ev:
		default:
			n.log.Debugw("dropping event for slow subscriber", "job_id", ev.JobID)
		}
	}
	for _, sub := range toClose {
		sub.close()
	}
}

// Subscribers reports current per-job and firehose subscriber counts.
func (n *Notifier) Subscribers() (perJob, firehose int) {
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, set := range n.byJob {
		perJob += len(set)
	}
	return perJob, len(n.firehose)
}

package jobs

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ProcessFunc runs the actual parse for a dequeued job and returns the
// result payload to persist.
type ProcessFunc func(ctx context.Context, job *Job) (json.RawMessage, error)

// TransitionFunc observes every persisted status change, including the
// initial queued insert. Used to feed live job streams.
type TransitionFunc func(job *Job)

type Option func(*Pool)

func WithWorkers(n int) Option {
	return func(p *Pool) {
		if n > 0 {
			p.workers = n
		}
	}
}

func WithQueueSize(n int) Option {
	return func(p *Pool) {
		if n > 0 {
			p.queueSize = n
		}
	}
}

func WithProcessTimeout(d time.Duration) Option {
	return func(p *Pool) {
		if d > 0 {
			p.timeout = d
		}
	}
}

func WithTransitionFunc(fn TransitionFunc) Option {
	return func(p *Pool) { p.onTransition = fn }
}

// Pool is a fixed-size worker pool over a bounded queue. When the queue is
// full, TryEnqueue reports no capacity so the caller can fall back to a
// synchronous parse instead of blocking the upload request.
type Pool struct {
	store   *Store
	process ProcessFunc
	log     *zap.SugaredLogger

	workers      int
	queueSize    int
	timeout      time.Duration
	onTransition TransitionFunc

	queue chan *Job
	wg    sync.WaitGroup
}

func NewPool(store *Store, process ProcessFunc, log *zap.SugaredLogger, opts ...Option) *Pool {
	p := &Pool{
		store:     store,
		process:   process,
		log:       log.Named("jobs"),
		workers:   4,
		queueSize: 64,
		timeout:   3 * time.Minute,
	}
	for _, opt := range opts {
		opt(p)
	}
	p.queue = make(chan *Job, p.queueSize)
	return p
}

// Start launches the workers. They drain the queue until ctx is canceled;
// Wait blocks until in-flight jobs finish.
func (p *Pool) Start(ctx context.Context) {
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.run(ctx, i)
	}
	p.log.Infow("worker pool started", "workers", p.workers, "queue_size", p.queueSize)
}

// Wait blocks until every worker has exited.
func (p *Pool) Wait() {
	p.wg.Wait()
}

// Depth reports how many jobs are waiting in the queue.
func (p *Pool) Depth() int { return len(p.queue) }

// Capacity reports the queue bound.
func (p *Pool) Capacity() int { return p.queueSize }

// TryEnqueue persists the job and hands it to a worker. It returns false
// with no error when the queue is saturated; the job row is then removed so
// the caller can process synchronously without leaving an orphan.
func (p *Pool) TryEnqueue(ctx context.Context, job *Job) (bool, error) {
	if err := p.store.Insert(ctx, job); err != nil {
		return false, err
	}
	select {
	case p.queue <- job:
		p.notify(job)
		return true, nil
	default:
		if err := p.store.Delete(ctx, job.ID); err != nil {
			p.log.Errorw("remove job after saturated queue", "job_id", job.ID, "error", err)
		}
		return false, nil
	}
}

func (p *Pool) run(ctx context.Context, worker int) {
	defer p.wg.Done()
	log := p.log.With("worker", worker)
	for {
		select {
		case <-ctx.Done():
			return
		case job := <-p.queue:
			p.handle(ctx, log, job)
		}
	}
}

func (p *Pool) handle(ctx context.Context, log *zap.SugaredLogger, job *Job) {
	changed, err := p.store.MarkProcessing(ctx, job.ID)
	if err != nil {
		log.Errorw("mark processing", "job_id", job.ID, "error", err)
		return
	}
	if !changed {
		// A terminal job reached a worker; transition rules make this a
		// no-op, but it should never happen with a single queue writer.
		log.Warnw("anomaly: dequeued job not in queued state", "job_id", job.ID)
		return
	}
	p.notifyStatus(ctx, job.ID)

	jctx, cancel := context.WithTimeout(ctx, p.timeout)
	result, perr := p.process(jctx, job)
	cancel()

	// Outcome writes use a detached context so shutdown cannot lose them.
	sctx, scancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer scancel()

	if perr != nil {
		log.Warnw("job failed", "job_id", job.ID, "filename", job.Filename, "error", perr)
		changed, err := p.store.Fail(sctx, job.ID, perr.Error())
		if err != nil {
			log.Errorw("persist job failure", "job_id", job.ID, "error", err)
			return
		}
		if !changed {
			log.Warnw("anomaly: failing an already terminal job ignored", "job_id", job.ID)
			return
		}
		p.notifyStatus(sctx, job.ID)
		return
	}

	changed, err = p.store.Complete(sctx, job.ID, result)
	if err != nil {
		log.Errorw("persist job result", "job_id", job.ID, "error", err)
		return
	}
	if !changed {
		log.Warnw("anomaly: completing an already terminal job ignored", "job_id", job.ID)
		return
	}
	log.Infow("job completed", "job_id", job.ID, "filename", job.Filename)
	p.notifyStatus(sctx, job.ID)
}

func (p *Pool) notifyStatus(ctx context.Context, id uuid.UUID) {
	if p.onTransition == nil {
		return
	}
	job, err := p.store.Get(ctx, id)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			p.log.Errorw("load job for notification", "job_id", id, "error", err)
		}
		return
	}
	p.onTransition(job)
}

func (p *Pool) notify(job *Job) {
	if p.onTransition != nil {
		p.onTransition(job)
	}
}

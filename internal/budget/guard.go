package budget

import (
	"context"
	"sync"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
)

// ErrExceeded marks denials where an operation would push spend past the
// monthly limit. Handlers map it to 402.
var ErrExceeded = errors.New("monthly budget exceeded")

// Status is a point-in-time budget snapshot.
type Status struct {
	LimitUSD     float64 `json:"limitUsd"`
	SpentUSD     float64 `json:"spentUsd"`
	ReservedUSD  float64 `json:"reservedUsd"`
	RemainingUSD float64 `json:"remainingUsd"`
	Calls        int     `json:"calls"`
	AlertActive  bool    `json:"alertActive"`
}

// Guard admits paid calls against the monthly ceiling. Callers reserve the
// estimated cost before the call and settle the actual cost after, so
// concurrent requests cannot collectively overshoot the limit.
type Guard struct {
	mu       sync.Mutex
	limit    float64
	alertAt  float64
	spent    float64
	reserved float64
	calls    int
	warned   bool

	store *Store
	log   *zap.SugaredLogger
}

// NewGuard primes the in-memory spend counter from the usage store's sliding
// 30-day window. A nil store keeps the guard purely in-memory.
func NewGuard(ctx context.Context, store *Store, limitUSD, alertThreshold float64, log *zap.SugaredLogger) (*Guard, error) {
	g := &Guard{
		limit:   limitUSD,
		alertAt: alertThreshold,
		store:   store,
		log:     log.Named("budget"),
	}
	if store != nil {
		spent, calls, err := store.MonthlySpend(ctx)
		if err != nil {
			return nil, errors.Wrap(err, "prime budget from usage history")
		}
		g.spent = spent
		g.calls = calls
		g.log.Infow("budget primed from usage history",
			"spent_usd", spent, "calls", calls, "limit_usd", limitUSD)
	}
	return g, nil
}

// Authorize reserves estimatedUSD against the limit. The returned reservation
// must be settled with Commit or Release exactly once. A denial is marked
// with ErrExceeded and reserves nothing.
func (g *Guard) Authorize(estimatedUSD float64) (*Reservation, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.spent+g.reserved+estimatedUSD > g.limit {
		g.log.Warnw("budget authorization denied",
			"estimated_usd", estimatedUSD, "spent_usd", g.spent,
			"reserved_usd", g.reserved, "limit_usd", g.limit)
		return nil, errors.Mark(
			errors.Newf("estimated $%.4f would exceed monthly limit $%.2f (spent $%.4f)",
				estimatedUSD, g.limit, g.spent),
			ErrExceeded)
	}
	g.reserved += estimatedUSD
	return &Reservation{guard: g, estimated: estimatedUSD}, nil
}

// Status reports spend under the lock.
func (g *Guard) Status() Status {
	g.mu.Lock()
	defer g.mu.Unlock()
	return Status{
		LimitUSD:     g.limit,
		SpentUSD:     g.spent,
		ReservedUSD:  g.reserved,
		RemainingUSD: g.limit - g.spent - g.reserved,
		Calls:        g.calls,
		AlertActive:  g.limit > 0 && g.spent >= g.limit*g.alertAt,
	}
}

// SpendByProvider reports per-provider cost over the sliding window. Nil
// when the guard has no usage store.
func (g *Guard) SpendByProvider(ctx context.Context) (map[string]float64, error) {
	if g.store == nil {
		return nil, nil
	}
	return g.store.SpendByProvider(ctx)
}

func (g *Guard) settle(estimated, actual float64, committed bool) {
	g.mu.Lock()
	g.reserved -= estimated
	if g.reserved < 0 {
		g.reserved = 0
	}
	if committed {
		g.spent += actual
		g.calls++
	}
	crossed := g.limit > 0 && !g.warned && g.spent >= g.limit*g.alertAt
	if crossed {
		g.warned = true
	}
	spent, limit := g.spent, g.limit
	g.mu.Unlock()

	if crossed {
		g.log.Warnw("budget alert threshold crossed",
			"spent_usd", spent, "limit_usd", limit, "threshold", g.alertAt)
	}
}

// Reservation is an in-flight hold on the budget.
type Reservation struct {
	guard     *Guard
	estimated float64
	done      bool
}

// Commit replaces the reservation with the actual cost and records the call
// in the usage store. Safe to call with ctx already canceled; the usage row
// still gets written.
func (r *Reservation) Commit(ctx context.Context, rec UsageRecord) error {
	if r.done {
		return nil
	}
	r.done = true
	r.guard.settle(r.estimated, rec.CostUSD, true)
	if r.guard.store == nil {
		return nil
	}
	if err := r.guard.store.Record(context.WithoutCancel(ctx), rec); err != nil {
		r.guard.log.Errorw("record usage failed", "error", err)
		return err
	}
	return nil
}

// Release drops the hold without spending. Used when the call failed or was
// served from cache after authorization.
func (r *Reservation) Release() {
	if r.done {
		return
	}
	r.done = true
	r.guard.settle(r.estimated, 0, false)
}

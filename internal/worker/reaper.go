package worker

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/suchetpongs-ai/lottery-ticket-engine/internal/metrics"
)

// ExpiredLister finds PENDING orders whose deadline has passed.
type ExpiredLister interface {
	ListExpiredPendingIDs(ctx context.Context, now time.Time, limit int) ([]uint64, error)
}

// Expirer releases one order.  It must be idempotent.
type Expirer interface {
	Expire(ctx context.Context, orderID uint64) (bool, error)
}

// RoundCloser closes rounds whose selling window has ended.
type RoundCloser interface {
	CloseDue(ctx context.Context, now time.Time) (int64, error)
}

// ReaperConfig tunes a Reaper.  Zero values fall back to defaults.
type ReaperConfig struct {
	Interval    time.Duration
	Batch       int
	Concurrency int
	// OrderTimeout bounds the transaction expiring a single order.
	OrderTimeout time.Duration
}

// SweepResult summarises one sweep.
type SweepResult struct {
	Found        int
	Expired      int
	Failed       int
	RoundsClosed int64
}

// Reaper periodically expires overdue orders and closes ended rounds.
// Each order is expired in its own transaction so one failure never blocks
// the rest of the batch; a failed order is picked up again next sweep.
type Reaper struct {
	lister ExpiredLister
	orders Expirer
	rounds RoundCloser
	cfg    ReaperConfig
	log    *zap.Logger
	now    func() time.Time
}

// NewReaper builds a Reaper.  rounds may be nil.
func NewReaper(lister ExpiredLister, orders Expirer, rounds RoundCloser, cfg ReaperConfig, log *zap.Logger) *Reaper {
	if cfg.Interval <= 0 {
		cfg.Interval = 30 * time.Second
	}
	if cfg.Batch <= 0 {
		cfg.Batch = 200
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	if cfg.OrderTimeout <= 0 {
		cfg.OrderTimeout = 5 * time.Second
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Reaper{
		lister: lister,
		orders: orders,
		rounds: rounds,
		cfg:    cfg,
		log:    log.Named("reaper"),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Start runs the reaper until ctx is cancelled.
func (r *Reaper) Start(ctx context.Context, wg *sync.WaitGroup) {
	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(r.cfg.Interval)
		defer ticker.Stop()
		r.log.Info("reaper started", zap.Duration("interval", r.cfg.Interval), zap.Int("batch", r.cfg.Batch))
		for {
			select {
			case <-ctx.Done():
				r.log.Info("reaper stopped")
				return
			case <-ticker.C:
				r.SweepOnce(ctx)
			}
		}
	}()
}

// SweepOnce runs a single sweep.  A full batch is followed immediately by
// another one until fewer than Batch orders are due.
func (r *Reaper) SweepOnce(ctx context.Context) SweepResult {
	started := time.Now()
	var res SweepResult
	now := r.now()

	if r.rounds != nil {
		n, err := r.rounds.CloseDue(ctx, now)
		if err != nil {
			r.log.Warn("close due rounds failed", zap.Error(err))
		}
		res.RoundsClosed = n
	}

	for ctx.Err() == nil {
		ids, err := r.lister.ListExpiredPendingIDs(ctx, now, r.cfg.Batch)
		if err != nil {
			r.log.Warn("list expired orders failed", zap.Error(err))
			res.Failed++
			break
		}
		res.Found += len(ids)
		expired, failed := r.expireAll(ctx, ids)
		res.Expired += expired
		res.Failed += failed
		// failed ids are still due; stop rather than spin on them
		if len(ids) < r.cfg.Batch || failed > 0 || expired == 0 {
			break
		}
	}

	metrics.RecordSweep(res.Failed, started)
	if res.Found > 0 || res.Failed > 0 || res.RoundsClosed > 0 {
		r.log.Info("sweep done",
			zap.Int("found", res.Found),
			zap.Int("expired", res.Expired),
			zap.Int("failed", res.Failed),
			zap.Int64("rounds_closed", res.RoundsClosed),
			zap.Duration("took", time.Since(started)))
	}
	return res
}

func (r *Reaper) expireAll(ctx context.Context, ids []uint64) (expired, failed int) {
	var (
		mu  sync.Mutex
		wg  sync.WaitGroup
		sem = make(chan struct{}, r.cfg.Concurrency)
	)
	for _, id := range ids {
		select {
		case <-ctx.Done():
			wg.Wait()
			return expired, failed
		case sem <- struct{}{}:
		}
		wg.Add(1)
		go func(id uint64) {
			defer wg.Done()
			defer func() { <-sem }()
			octx, cancel := context.WithTimeout(ctx, r.cfg.OrderTimeout)
			ok, err := r.orders.Expire(octx, id)
			cancel()
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err != nil:
				failed++
				r.log.Warn("expire order failed", zap.Uint64("order_id", id), zap.Error(err))
			case ok:
				expired++
			}
		}(id)
	}
	wg.Wait()
	return expired, failed
}

package worker

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/suchetpongs-ai/lottery-ticket-engine/internal/metrics"
	"github.com/suchetpongs-ai/lottery-ticket-engine/internal/repository"
)

// OutboxStore is the part of the outbox repository the dispatcher uses.
type OutboxStore interface {
	ListPending(ctx context.Context, limit int) ([]repository.OutboxRow, error)
	MarkSent(ctx context.Context, id int64) error
	MarkFailed(ctx context.Context, id int64, lastError string) error
}

// Publisher delivers one event body to the broker.  outboxID identifies
// the row; retries of a row pass the same id.
type Publisher interface {
	Publish(ctx context.Context, topic, key string, outboxID int64, body []byte) error
}

// OutboxDispatcher publishes committed outbox rows.  Delivery is at least
// once: a row whose MarkSent fails is published again on the next tick.
type OutboxDispatcher struct {
	store    OutboxStore
	pub      Publisher
	interval time.Duration
	batch    int
	log      *zap.Logger
}

// NewOutboxDispatcher builds an OutboxDispatcher.
func NewOutboxDispatcher(store OutboxStore, pub Publisher, interval time.Duration, batch int, log *zap.Logger) *OutboxDispatcher {
	if interval <= 0 {
		interval = time.Second
	}
	if batch <= 0 {
		batch = 100
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &OutboxDispatcher{store: store, pub: pub, interval: interval, batch: batch, log: log.Named("outbox")}
}

// Start runs the dispatcher until ctx is cancelled.
func (d *OutboxDispatcher) Start(ctx context.Context, wg *sync.WaitGroup) {
	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(d.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				d.DispatchOnce(ctx)
			}
		}
	}()
}

// DispatchOnce publishes one batch and returns the number of rows sent.
func (d *OutboxDispatcher) DispatchOnce(ctx context.Context) int {
	c, cancel := context.WithTimeout(ctx, 2*time.Second)
	rows, err := d.store.ListPending(c, d.batch)
	cancel()
	if err != nil {
		d.log.Warn("list pending failed", zap.Error(err))
		return 0
	}
	sent := 0
	for _, r := range rows {
		if err := d.pub.Publish(ctx, r.Topic, r.BizKey, r.ID, []byte(r.Payload)); err != nil {
			metrics.RecordOutboxPublish(r.Topic, false)
			if merr := d.store.MarkFailed(ctx, r.ID, truncateErr(err)); merr != nil {
				d.log.Warn("mark failed failed", zap.Int64("id", r.ID), zap.Error(merr))
			}
			continue
		}
		metrics.RecordOutboxPublish(r.Topic, true)
		if err := d.store.MarkSent(ctx, r.ID); err != nil {
			d.log.Warn("mark sent failed", zap.Int64("id", r.ID), zap.Error(err))
			continue
		}
		sent++
	}
	return sent
}

func truncateErr(err error) string {
	b, _ := json.Marshal(map[string]string{"error": err.Error()})
	if len(b) > 240 {
		return string(b[:240])
	}
	return string(b)
}

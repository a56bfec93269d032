package worker

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"bilancio/internal/amqp"
	"bilancio/internal/core"
	"bilancio/internal/log"
	"bilancio/internal/services"

	"golang.org/x/sync/errgroup"
)

// MonthEnsurer generates or syncs a month document.
type MonthEnsurer interface {
	EnsureMonth(ctx context.Context, month core.Month) (services.EnsureResult, error)
}

// MonthWorker keeps the current month and the next few materialized, and
// reacts to sync requests published when templates change.
type MonthWorker struct {
	months      MonthEnsurer
	lookahead   int
	concurrency int
	logger      *log.Logger
	now         func() time.Time
}

func NewMonthWorker(months MonthEnsurer, lookahead, concurrency int, logger *log.Logger) *MonthWorker {
	if logger == nil {
		logger = log.ForComponent(log.ComponentWorker)
	}
	if lookahead < 0 {
		lookahead = 0
	}
	if concurrency < 1 {
		concurrency = 1
	}
	return &MonthWorker{
		months:      months,
		lookahead:   lookahead,
		concurrency: concurrency,
		logger:      logger,
		now:         time.Now,
	}
}

// ProcessDue ensures the month containing now and the following lookahead
// months. It returns how many months were created or gained instances.
// Every month is attempted even when another one fails; the first error is
// returned.
func (w *MonthWorker) ProcessDue(ctx context.Context, now time.Time) (int, error) {
	first := core.MonthOf(now)

	var (
		g       errgroup.Group
		touched atomic.Int64
	)
	g.SetLimit(w.concurrency)

	for i := 0; i <= w.lookahead; i++ {
		month := first.AddMonths(i)
		g.Go(func() error {
			res, err := w.months.EnsureMonth(ctx, month)
			if err != nil {
				w.logger.ErrorContext(ctx, "Failed to ensure month", log.FieldMonth, month.String(), log.FieldError, err)
				return fmt.Errorf("ensure %s: %w", month, err)
			}
			if res.Created || res.Added > 0 {
				touched.Add(1)
			}
			return nil
		})
	}

	err := g.Wait()
	n := int(touched.Load())
	if n > 0 {
		w.logger.InfoContext(ctx, "Months processed", "touched", n, "from", first.String(), "lookahead", w.lookahead)
	}
	return n, err
}

// Run processes due months immediately and then on every tick until ctx is
// cancelled.
func (w *MonthWorker) Run(ctx context.Context, interval time.Duration) error {
	w.tick(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			w.tick(ctx)
		}
	}
}

func (w *MonthWorker) tick(ctx context.Context) {
	if _, err := w.ProcessDue(ctx, w.now()); err != nil && ctx.Err() == nil {
		w.logger.ErrorContext(ctx, "Periodic month processing failed", log.FieldError, err)
	}
}

// HandleEvent ensures the month of a sync request. Other events are
// notifications for other consumers and are ignored.
func (w *MonthWorker) HandleEvent(ctx context.Context, event amqp.MonthEvent) error {
	if event.Type != amqp.MonthSyncRequested {
		w.logger.DebugContext(ctx, "Ignoring month event", log.FieldEventType, event.Type, log.FieldMonth, event.Month.String())
		return nil
	}

	res, err := w.months.EnsureMonth(ctx, event.Month)
	if err != nil {
		return fmt.Errorf("ensure %s: %w", event.Month, err)
	}
	w.logger.InfoContext(ctx, "Sync request handled",
		log.FieldMonth, event.Month.String(),
		"created", res.Created,
		"added", res.Added)
	return nil
}

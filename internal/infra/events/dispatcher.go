package events

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"license-activation-service/internal/domain/model"
	"license-activation-service/internal/domain/ports/adapter"
	"license-activation-service/internal/infra/logging"
	"license-activation-service/internal/infra/metrics"
	"license-activation-service/internal/infra/worker"
)

var _ adapter.EventPublisher = (*Dispatcher)(nil)

// Dispatcher fans events out to subscribers on a worker pool. Publish returns
// immediately; a saturated queue drops the delivery and counts it.
type Dispatcher struct {
	pool    *worker.Pool
	subs    []adapter.EventSubscriber
	timeout time.Duration
	log     *zerolog.Logger
}

func NewDispatcher(pool *worker.Pool, timeout time.Duration, logger *zerolog.Logger, subs ...adapter.EventSubscriber) *Dispatcher {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	l := logger.With().Str("component", "EventDispatcher").Logger()
	return &Dispatcher{pool: pool, subs: subs, timeout: timeout, log: &l}
}

// Publish must not use the caller's context for delivery: the request is
// usually finished before the worker picks the task up.
func (d *Dispatcher) Publish(ctx context.Context, ev model.Event) {
	traceID := logging.TraceIDFrom(ctx)
	for _, sub := range d.subs {
		sub := sub
		err := d.pool.Submit(func(poolCtx context.Context) error {
			if traceID != "" {
				poolCtx = logging.WithTraceID(poolCtx, traceID)
			}
			ctx, cancel := context.WithTimeout(poolCtx, d.timeout)
			defer cancel()
			if err := sub.Handle(ctx, ev); err != nil {
				d.log.Warn().Err(err).Str("subscriber", sub.Name()).Str("event", string(ev.Type)).Str("event_id", ev.ID).Msg("event delivery failed")
			}
			return nil
		})
		if err != nil {
			metrics.IncEventDropped(sub.Name())
			d.log.Warn().Err(err).Str("subscriber", sub.Name()).Str("event", string(ev.Type)).Msg("event dropped")
		}
	}
}

package alerts

import (
	"context"
	"log/slog"
	"time"

	"pulsemon/internal/models"
)

const maxAttempts = 3

// Dispatcher decouples alert delivery from the monitoring cycle: events are
// enqueued without blocking and a single consumer goroutine performs the
// delivery attempts, so a slow or failing webhook can never delay a tick.
type Dispatcher struct {
	webhook *Webhook
	queue   chan models.AlertEvent
	log     *slog.Logger
	sleep   func(time.Duration)
}

func NewDispatcher(webhook *Webhook, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		webhook: webhook,
		queue:   make(chan models.AlertEvent, 64),
		log:     logger,
		sleep:   time.Sleep,
	}
}

// Enqueue hands an event to the delivery goroutine. A saturated queue drops
// the event rather than stall the caller.
func (d *Dispatcher) Enqueue(event models.AlertEvent) {
	if !d.webhook.Enabled() {
		return
	}
	select {
	case d.queue <- event:
	default:
		d.log.Warn("alert queue full, dropping event", "target", event.Target, "transition", event.Transition)
	}
}

// Run consumes the queue until ctx is cancelled.
func (d *Dispatcher) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case event := <-d.queue:
			d.deliver(ctx, event)
		}
	}
}

func (d *Dispatcher) deliver(ctx context.Context, event models.AlertEvent) {
	var err error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err = d.webhook.Send(ctx, event); err == nil {
			d.log.Info("alert delivered",
				"target", event.Target,
				"transition", event.Transition,
				"attempts", attempt,
			)
			return
		}
		if ctx.Err() != nil {
			return
		}
		d.sleep(time.Duration(attempt) * 300 * time.Millisecond)
	}
	// Delivery failure is absorbed here: logged and dropped, never
	// propagated to the cycle.
	d.log.Warn("alert delivery failed, dropping",
		"target", event.Target,
		"transition", event.Transition,
		"err", err,
	)
}

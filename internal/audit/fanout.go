package audit

import (
	"context"
	"log/slog"
)

// Sink receives committed audit events for downstream consumers.
type Sink interface {
	Publish(ctx context.Context, event Event) error
}

// Fanout decouples the authoritative commit from downstream delivery. Emit is
// called after the transaction succeeds and never blocks the caller; a full
// buffer drops the event (the store remains the source of truth).
type Fanout struct {
	inbox  chan Event
	logger *slog.Logger
}

func NewFanout(buffer int, logger *slog.Logger) *Fanout {
	if buffer <= 0 {
		buffer = 256
	}
	return &Fanout{inbox: make(chan Event, buffer), logger: logger}
}

// Emit queues a committed event for fan-out. Best-effort by contract.
func (f *Fanout) Emit(event Event) {
	select {
	case f.inbox <- event:
	default:
		f.logger.Warn("audit fan-out buffer full, dropping event",
			"case_id", event.CaseID,
			"event_type", string(event.Type),
		)
	}
}

// Run consumes queued events and delivers them to the sink until ctx is
// cancelled. Delivery failures are logged, not retried; consumers reconcile
// from the store.
func (f *Fanout) Run(ctx context.Context, sink Sink) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event := <-f.inbox:
			if err := sink.Publish(ctx, event); err != nil {
				f.logger.ErrorContext(ctx, "audit fan-out publish failed",
					"case_id", event.CaseID,
					"event_id", event.ID,
					"error", err,
				)
			}
		}
	}
}

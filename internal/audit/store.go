package audit

import "context"

// Store persists the audit trail. Append participates in the caller's atomic
// unit via the context-carried transaction; it is never called standalone for
// purely external effects.
type Store interface {
	Append(ctx context.Context, event *Event) error
	ListByCase(ctx context.Context, caseID int64, limit int) ([]*Event, error)
	CountByCase(ctx context.Context, caseID int64) (int, error)
}

package audit

import (
	"time"

	"ndsregistry/internal/domain"
)

// Event is one immutable entry in a case's audit trail. Events are
// append-only and totally ordered per case by their monotonic id. Every
// committed case mutation carries exactly one of these in the same
// transaction; no event may reference a nonexistent case.
type Event struct {
	ID        int64            `json:"id"`
	CaseID    int64            `json:"case_id"`
	Type      domain.EventType `json:"event_type"`
	Message   string           `json:"message"`
	Author    string           `json:"author"`
	CreatedAt time.Time        `json:"created_at"`
}

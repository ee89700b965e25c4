package cases

import (
	"context"
	"time"
)

// Store persists cases. Implementations return sentinel errors and honor the
// context-carried transaction so mutations commit with their audit event.
type Store interface {
	Create(ctx context.Context, c *Case) error
	FindByID(ctx context.Context, id int64) (*Case, error)
	// Update writes the mutable fields (type, platform, reason, status,
	// updated_at) of an existing case.
	Update(ctx context.Context, c *Case) error
	// AttachThread sets the mirror thread reference exactly once; a case that
	// is already linked yields sentinel.ErrConflict and stays unchanged.
	AttachThread(ctx context.Context, id int64, threadRef string, now time.Time) error
	// Touch bumps updated_at without changing any other field.
	Touch(ctx context.Context, id int64, now time.Time) error
	ListByIdentity(ctx context.Context, identityID int64, limit int) ([]*Case, error)
	List(ctx context.Context, f Filter) ([]*Case, error)
	Stats(ctx context.Context, trendStart time.Time) (*Stats, error)
}

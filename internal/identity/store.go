package identity

import (
	"context"
	"time"
)

// Stores are interface-driven to keep the domain logic testable and to allow
// swapping in-memory and Postgres persistence without rewiring business code.
// Implementations return sentinel errors; the service translates them.

// Store persists identities. Create must enforce identifier uniqueness at the
// store level so a duplicate-create race resolves to a single surviving row.
type Store interface {
	Create(ctx context.Context, ident *Identity) error
	FindByID(ctx context.Context, id int64) (*Identity, error)
	FindByIdentifier(ctx context.Context, identifier string) (*Identity, error)
	Touch(ctx context.Context, id int64, now time.Time) error
}

// IntelStore persists the append-only intel ledger.
type IntelStore interface {
	Append(ctx context.Context, rec *IntelRecord) error
	ListByIdentity(ctx context.Context, identityID int64, limit int) ([]*IntelRecord, error)
	CountByIdentity(ctx context.Context, identityID int64) (int, error)
}

package identity

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"ndsregistry/internal/domain"
	"ndsregistry/internal/platform/metrics"
	dErrors "ndsregistry/pkg/domain-errors"
	"ndsregistry/pkg/platform/sentinel"
	"ndsregistry/pkg/platform/tx"
	"ndsregistry/pkg/requestcontext"
)

// maxIntelPage caps a single ledger read.
const maxIntelPage = 200

// defaultAuthor is recorded when the caller supplies no author.
const defaultAuthor = "staff"

// Service owns identity resolution and the intel ledger.
type Service struct {
	store   Store
	intel   IntelStore
	runner  tx.Runner
	logger  *slog.Logger
	metrics *metrics.Metrics
}

func NewService(store Store, intel IntelStore, runner tx.Runner, logger *slog.Logger, m *metrics.Metrics) *Service {
	return &Service{store: store, intel: intel, runner: runner, logger: logger, metrics: m}
}

// ResolveOrCreate maps an external identifier to an identity, creating the
// record on first reference. A repeat reference bumps updated_at; a differing
// platform argument is ignored (stored platform is first-write-wins). Safe to
// call inside a caller-managed atomic unit: stores honor the context-carried
// transaction.
func (s *Service) ResolveOrCreate(ctx context.Context, identifier string, platform domain.Platform) (*Identity, error) {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "identifier is required")
	}

	now := requestcontext.Now(ctx)
	if existing, err := s.store.FindByIdentifier(ctx, identifier); err == nil {
		if err := s.store.Touch(ctx, existing.ID, now); err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to touch identity")
		}
		existing.UpdatedAt = now
		return existing, nil
	} else if !errors.Is(err, sentinel.ErrNotFound) {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to look up identity")
	}

	ident := &Identity{
		Identifier: identifier,
		Platform:   platform,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	err := s.store.Create(ctx, ident)
	if errors.Is(err, sentinel.ErrConflict) {
		// Lost a duplicate-create race; the surviving row wins.
		existing, lookupErr := s.store.FindByIdentifier(ctx, identifier)
		if lookupErr != nil {
			return nil, dErrors.Wrap(lookupErr, dErrors.CodeInternal, "failed to resolve identity after conflict")
		}
		return existing, nil
	}
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to create identity")
	}
	return ident, nil
}

// Lookup finds an identity by its external identifier.
func (s *Service) Lookup(ctx context.Context, identifier string) (*Identity, error) {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "identifier is required")
	}
	ident, err := s.store.FindByIdentifier(ctx, identifier)
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil, dErrors.New(dErrors.CodeNotFound, "identity not found")
	}
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to look up identity")
	}
	return ident, nil
}

// Get finds an identity by internal id.
func (s *Service) Get(ctx context.Context, id int64) (*Identity, error) {
	ident, err := s.store.FindByID(ctx, id)
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil, dErrors.New(dErrors.CodeNotFound, "identity not found")
	}
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load identity")
	}
	return ident, nil
}

// AddIntel appends an intel record to an identity's ledger and bumps the
// identity's updated_at, as one atomic unit.
func (s *Service) AddIntel(ctx context.Context, identityID int64, intelType domain.IntelType, value, author string) (*IntelRecord, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "value is required")
	}
	if author = strings.TrimSpace(author); author == "" {
		author = defaultAuthor
	}

	var rec *IntelRecord
	err := s.runner.RunAtomic(ctx, func(ctx context.Context) error {
		if _, err := s.store.FindByID(ctx, identityID); err != nil {
			if errors.Is(err, sentinel.ErrNotFound) {
				return dErrors.New(dErrors.CodeNotFound, "identity not found")
			}
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to load identity")
		}

		now := requestcontext.Now(ctx)
		rec = &IntelRecord{
			IdentityID: identityID,
			Type:       intelType,
			Value:      value,
			Author:     author,
			CreatedAt:  now,
		}
		if err := s.intel.Append(ctx, rec); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to append intel record")
		}
		if err := s.store.Touch(ctx, identityID, now); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to touch identity")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.IntelAppended.Inc()
	}
	s.logger.InfoContext(ctx, "intel record appended",
		"identity_id", identityID,
		"intel_type", string(intelType),
		"author", author,
	)
	return rec, nil
}

// ListIntel reads an identity's ledger newest-first, capped.
func (s *Service) ListIntel(ctx context.Context, identityID int64, limit int) ([]*IntelRecord, error) {
	if limit <= 0 || limit > maxIntelPage {
		limit = maxIntelPage
	}
	records, err := s.intel.ListByIdentity(ctx, identityID, limit)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list intel records")
	}
	return records, nil
}

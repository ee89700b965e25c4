package identity_test

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"ndsregistry/internal/domain"
	"ndsregistry/internal/identity"
	dErrors "ndsregistry/pkg/domain-errors"
	"ndsregistry/pkg/platform/sentinel"
	"ndsregistry/pkg/platform/tx"
	"ndsregistry/pkg/requestcontext"
)

func newService(t *testing.T) *identity.Service {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	return identity.NewService(
		identity.NewInMemoryStore(),
		identity.NewInMemoryIntelStore(),
		tx.NewMemoryRunner(),
		log,
		nil,
	)
}

func TestResolveOrCreateFirstReference(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()

	ident, err := svc.ResolveOrCreate(ctx, "alice#123", domain.PlatformDiscord)
	require.NoError(t, err)
	require.Equal(t, int64(1), ident.ID)
	require.Equal(t, "alice#123", ident.Identifier)
	require.Equal(t, domain.PlatformDiscord, ident.Platform)
}

// racingStore makes the first lookup miss, so the service takes the create
// path against a store that already holds the identifier. That is the losing
// side of a duplicate-create race.
type racingStore struct {
	*identity.InMemoryStore
	raced bool
}

func (s *racingStore) FindByIdentifier(ctx context.Context, identifier string) (*identity.Identity, error) {
	if !s.raced {
		s.raced = true
		return nil, sentinel.ErrNotFound
	}
	return s.InMemoryStore.FindByIdentifier(ctx, identifier)
}

func TestResolveOrCreateLosesRaceToConcurrentWriter(t *testing.T) {
	store := &racingStore{InMemoryStore: identity.NewInMemoryStore()}
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	runner := tx.NewMemoryRunner()
	svc := identity.NewService(store, identity.NewInMemoryIntelStore(), runner, log, nil)

	seeded := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	survivor := &identity.Identity{
		Identifier: "alice#123",
		Platform:   domain.PlatformDiscord,
		CreatedAt:  seeded,
		UpdatedAt:  seeded,
	}
	require.NoError(t, store.InMemoryStore.Create(context.Background(), survivor))

	// The conflicting insert must not poison the surrounding unit: the
	// same atomic unit resolves to the surviving row and keeps going.
	err := runner.RunAtomic(context.Background(), func(ctx context.Context) error {
		ident, err := svc.ResolveOrCreate(ctx, "alice#123", domain.PlatformRoblox)
		if err != nil {
			return err
		}
		require.Equal(t, survivor.ID, ident.ID)
		require.Equal(t, domain.PlatformDiscord, ident.Platform)
		return nil
	})
	require.NoError(t, err)
}

func TestResolveOrCreateRepeatKeepsPlatform(t *testing.T) {
	svc := newService(t)
	first := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	later := first.Add(48 * time.Hour)

	ident, err := svc.ResolveOrCreate(requestcontext.WithTime(context.Background(), first), "alice#123", domain.PlatformDiscord)
	require.NoError(t, err)

	// Second reference with a different platform resolves to the same row
	// and leaves the stored platform alone.
	again, err := svc.ResolveOrCreate(requestcontext.WithTime(context.Background(), later), "alice#123", domain.PlatformRoblox)
	require.NoError(t, err)
	require.Equal(t, ident.ID, again.ID)
	require.Equal(t, domain.PlatformDiscord, again.Platform)
	require.Equal(t, later, again.UpdatedAt)
	require.Equal(t, first, again.CreatedAt)
}

func TestResolveOrCreateTrimsIdentifier(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()

	ident, err := svc.ResolveOrCreate(ctx, "  alice#123  ", domain.PlatformDiscord)
	require.NoError(t, err)
	require.Equal(t, "alice#123", ident.Identifier)

	_, err = svc.ResolveOrCreate(ctx, "   ", domain.PlatformDiscord)
	require.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
}

func TestLookupUnknownIdentifier(t *testing.T) {
	svc := newService(t)

	_, err := svc.Lookup(context.Background(), "ghost#0")
	require.True(t, dErrors.HasCode(err, dErrors.CodeNotFound))
}

func TestAddIntelAppendsAndTouches(t *testing.T) {
	svc := newService(t)
	created := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	ctx := requestcontext.WithTime(context.Background(), created)

	ident, err := svc.ResolveOrCreate(ctx, "alice#123", domain.PlatformDiscord)
	require.NoError(t, err)

	later := created.Add(time.Hour)
	rec, err := svc.AddIntel(requestcontext.WithTime(context.Background(), later), ident.ID, domain.IntelAlt, "bob#456", "")
	require.NoError(t, err)
	require.Equal(t, domain.IntelAlt, rec.Type)
	require.Equal(t, "staff", rec.Author, "absent author falls back")

	after, err := svc.Get(context.Background(), ident.ID)
	require.NoError(t, err)
	require.Equal(t, later, after.UpdatedAt)
}

func TestAddIntelUnknownIdentity(t *testing.T) {
	svc := newService(t)

	_, err := svc.AddIntel(context.Background(), 7, domain.IntelNote, "anything", "mod")
	require.True(t, dErrors.HasCode(err, dErrors.CodeNotFound))
}

func TestListIntelNewestFirst(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()

	ident, err := svc.ResolveOrCreate(ctx, "alice#123", domain.PlatformDiscord)
	require.NoError(t, err)

	_, err = svc.AddIntel(ctx, ident.ID, domain.IntelNote, "first", "mod")
	require.NoError(t, err)
	_, err = svc.AddIntel(ctx, ident.ID, domain.IntelFlag, "second", "mod")
	require.NoError(t, err)

	records, err := svc.ListIntel(ctx, ident.ID, 0)
	require.NoError(t, err)
	require.Len(t, records, 2)
	require.Equal(t, "second", records[0].Value)
	require.Equal(t, "first", records[1].Value)
}

package cases_test

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"ndsregistry/internal/audit"
	"ndsregistry/internal/cases"
	"ndsregistry/internal/domain"
	"ndsregistry/internal/identity"
	dErrors "ndsregistry/pkg/domain-errors"
	"ndsregistry/pkg/platform/tx"
	"ndsregistry/pkg/requestcontext"
)

type fixture struct {
	identities *identity.InMemoryStore
	events     *audit.InMemoryStore
	caseStore  *cases.InMemoryStore
	identSvc   *identity.Service
	svc        *cases.Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	runner := tx.NewMemoryRunner()

	identities := identity.NewInMemoryStore()
	intel := identity.NewInMemoryIntelStore()
	events := audit.NewInMemoryStore()
	caseStore := cases.NewInMemoryStore()

	identSvc := identity.NewService(identities, intel, runner, log, nil)
	svc := cases.NewService(caseStore, events, identSvc, runner, log)
	return &fixture{
		identities: identities,
		events:     events,
		caseStore:  caseStore,
		identSvc:   identSvc,
		svc:        svc,
	}
}

func TestCreateOpensCaseWithCreateEvent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	details, event, err := f.svc.Create(ctx, "alice#123", "R-Individual", "Discord", "spam", "")
	require.NoError(t, err)

	require.Equal(t, int64(1), details.ID)
	require.Equal(t, domain.StatusOpen, details.Status)
	require.Equal(t, "alice#123", details.Identifier)
	require.False(t, details.Linked())

	require.Equal(t, domain.EventCreate, event.Type)
	require.Equal(t, details.ID, event.CaseID)
	require.Equal(t, "staff", event.Author)

	trail, err := f.svc.Events(ctx, details.ID, 0)
	require.NoError(t, err)
	require.Len(t, trail, 1)
	require.Equal(t, domain.EventCreate, trail[0].Type)
}

func TestCreateReusesExistingIdentity(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, _, err := f.svc.Create(ctx, "alice#123", "R-Individual", "Discord", "spam", "mod")
	require.NoError(t, err)
	second, _, err := f.svc.Create(ctx, "alice#123", "R-Discord", "ROBLOX", "ban evasion", "mod")
	require.NoError(t, err)

	require.Equal(t, first.IdentityID, second.IdentityID)

	// The stored identity keeps its original platform.
	ident, err := f.identSvc.Lookup(ctx, "alice#123")
	require.NoError(t, err)
	require.Equal(t, domain.PlatformDiscord, ident.Platform)
}

func TestCreateRejectsUnknownEnums(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, _, err := f.svc.Create(ctx, "alice#123", "R-Banana", "Discord", "spam", "")
	require.True(t, dErrors.HasCode(err, dErrors.CodeValidation))

	_, _, err = f.svc.Create(ctx, "alice#123", "R-Individual", "Atari", "spam", "")
	require.True(t, dErrors.HasCode(err, dErrors.CodeValidation))

	// A rejected create writes nothing, not even the identity.
	_, err = f.identSvc.Lookup(ctx, "alice#123")
	require.True(t, dErrors.HasCode(err, dErrors.CodeNotFound))
}

func TestSetStatusAcceptsAnyPairAndAlwaysLogs(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	details, _, err := f.svc.Create(ctx, "bob#1", "Discord", "Discord", "raid", "mod")
	require.NoError(t, err)

	transitions := []string{"CLOSED", "CLOSED", "ARCHIVED", "OPEN"}
	for _, status := range transitions {
		details, _, err = f.svc.SetStatus(ctx, details.ID, status, "mod", "")
		require.NoError(t, err)
		require.Equal(t, domain.Status(status), details.Status)
	}

	trail, err := f.svc.Events(ctx, details.ID, 0)
	require.NoError(t, err)

	// One CREATE plus one event per SetStatus call, self-transition included.
	statusLike := 0
	for _, e := range trail {
		switch e.Type {
		case domain.EventCreate, domain.EventStatus, domain.EventArchive:
			statusLike++
		}
	}
	require.Equal(t, len(transitions)+1, statusLike)

	// The ARCHIVED transition logs as ARCHIVE, not STATUS.
	archives := 0
	for _, e := range trail {
		if e.Type == domain.EventArchive {
			archives++
			require.Equal(t, "Status changed to ARCHIVED", e.Message)
		}
	}
	require.Equal(t, 1, archives)
}

func TestSetStatusRejectsUnknownStatus(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	details, _, err := f.svc.Create(ctx, "bob#1", "Discord", "Discord", "raid", "")
	require.NoError(t, err)

	_, _, err = f.svc.SetStatus(ctx, details.ID, "RESOLVED", "", "")
	require.True(t, dErrors.HasCode(err, dErrors.CodeValidation))

	trail, err := f.svc.Events(ctx, details.ID, 0)
	require.NoError(t, err)
	require.Len(t, trail, 1, "rejected status change must not log")
}

func TestUpdatePartialFields(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	details, _, err := f.svc.Create(ctx, "bob#1", "R-Individual", "Discord", "spam", "")
	require.NoError(t, err)

	updated, event, err := f.svc.Update(ctx, details.ID, cases.UpdateRequest{
		Reason: "spam and harassment",
	})
	require.NoError(t, err)
	require.Equal(t, "spam and harassment", updated.Reason)
	require.Equal(t, details.Type, updated.Type, "untouched fields survive")
	require.Equal(t, domain.EventUpdate, event.Type)
}

func TestUpdateNothingIsNoOp(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	details, _, err := f.svc.Create(ctx, "bob#1", "R-Individual", "Discord", "spam", "")
	require.NoError(t, err)

	_, _, err = f.svc.Update(ctx, details.ID, cases.UpdateRequest{})
	require.True(t, dErrors.HasCode(err, dErrors.CodeNoOp))

	trail, err := f.svc.Events(ctx, details.ID, 0)
	require.NoError(t, err)
	require.Len(t, trail, 1)
}

func TestUpdateInvalidEnumWritesNothing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	details, _, err := f.svc.Create(ctx, "bob#1", "R-Individual", "Discord", "spam", "")
	require.NoError(t, err)

	_, _, err = f.svc.Update(ctx, details.ID, cases.UpdateRequest{
		Reason:   "new reason",
		Platform: "Atari",
	})
	require.True(t, dErrors.HasCode(err, dErrors.CodeValidation))

	// The valid field was not applied either.
	after, err := f.svc.Get(ctx, details.ID)
	require.NoError(t, err)
	require.Equal(t, "spam", after.Reason)
}

func TestUpdateMissingCase(t *testing.T) {
	f := newFixture(t)

	_, _, err := f.svc.Update(context.Background(), 42, cases.UpdateRequest{Reason: "x"})
	require.True(t, dErrors.HasCode(err, dErrors.CodeNotFound))
}

func TestAddEventBumpsCase(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	created := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	details, _, err := f.svc.Create(requestcontext.WithTime(ctx, created), "bob#1", "R-Individual", "Discord", "spam", "")
	require.NoError(t, err)

	later := created.Add(time.Hour)
	event, err := f.svc.AddEvent(requestcontext.WithTime(ctx, later), details.ID, domain.EventNote, "spoke to user", "mod")
	require.NoError(t, err)
	require.Equal(t, domain.EventNote, event.Type)

	after, err := f.svc.Get(ctx, details.ID)
	require.NoError(t, err)
	require.Equal(t, later, after.UpdatedAt)
}

func TestAddEventRequiresMessage(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	details, _, err := f.svc.Create(ctx, "bob#1", "R-Individual", "Discord", "spam", "")
	require.NoError(t, err)

	_, err = f.svc.AddEvent(ctx, details.ID, domain.EventNote, "   ", "mod")
	require.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
}

func TestAttachMirrorThreadIsSetOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	details, _, err := f.svc.Create(ctx, "bob#1", "R-Individual", "Discord", "spam", "")
	require.NoError(t, err)

	event, err := f.svc.AttachMirrorThread(ctx, details.ID, "thread-1", "mod")
	require.NoError(t, err)
	require.Equal(t, domain.EventThread, event.Type)

	_, err = f.svc.AttachMirrorThread(ctx, details.ID, "thread-2", "mod")
	require.True(t, dErrors.HasCode(err, dErrors.CodeConflict))

	after, err := f.svc.Get(ctx, details.ID)
	require.NoError(t, err)
	require.Equal(t, "thread-1", after.MirrorThreadRef, "original reference survives the rejected attach")

	_, err = f.svc.AttachMirrorThread(ctx, 99, "thread-9", "mod")
	require.True(t, dErrors.HasCode(err, dErrors.CodeNotFound))
}

func TestEventsNewestFirst(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	details, _, err := f.svc.Create(ctx, "bob#1", "R-Individual", "Discord", "spam", "")
	require.NoError(t, err)
	_, err = f.svc.AddEvent(ctx, details.ID, domain.EventNote, "first note", "mod")
	require.NoError(t, err)
	_, err = f.svc.AddEvent(ctx, details.ID, domain.EventNote, "second note", "mod")
	require.NoError(t, err)

	trail, err := f.svc.Events(ctx, details.ID, 0)
	require.NoError(t, err)
	require.Len(t, trail, 3)
	require.Equal(t, "second note", trail[0].Message)
	require.Equal(t, "first note", trail[1].Message)
	require.Equal(t, domain.EventCreate, trail[2].Type)
}

func TestListFiltersByIdentifier(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, _, err := f.svc.Create(ctx, "alice#123", "R-Individual", "Discord", "spam", "")
	require.NoError(t, err)
	_, _, err = f.svc.Create(ctx, "bob#1", "Discord", "Discord", "raid", "")
	require.NoError(t, err)

	out, err := f.svc.List(ctx, cases.Filter{}, "alice#123")
	require.NoError(t, err)
	require.Len(t, out, 1)
	require.Equal(t, "alice#123", out[0].Identifier)

	out, err = f.svc.List(ctx, cases.Filter{}, "nobody#0")
	require.NoError(t, err)
	require.Empty(t, out)
}

func TestStatsZeroFillsTrend(t *testing.T) {
	f := newFixture(t)
	now := time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)
	ctx := requestcontext.WithTime(context.Background(), now)

	_, _, err := f.svc.Create(ctx, "alice#123", "R-Individual", "Discord", "spam", "")
	require.NoError(t, err)
	details, _, err := f.svc.Create(ctx, "bob#1", "Discord", "Discord", "raid", "")
	require.NoError(t, err)
	_, _, err = f.svc.SetStatus(ctx, details.ID, "CLOSED", "", "")
	require.NoError(t, err)

	stats, err := f.svc.Stats(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, stats.Total)
	require.Equal(t, 1, stats.Open)
	require.Equal(t, 1, stats.Closed)
	require.Equal(t, 0, stats.Archived)

	require.Len(t, stats.Trend, 14)
	require.Equal(t, "2026-03-02", stats.Trend[0].Day)
	require.Equal(t, "2026-03-15", stats.Trend[13].Day)
	require.Equal(t, 2, stats.Trend[13].Count)
	for _, point := range stats.Trend[:13] {
		require.Zero(t, point.Count)
	}
}

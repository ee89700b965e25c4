package audit_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"ndsregistry/internal/audit"
	"ndsregistry/internal/domain"
)

func TestMemoryStoreOrdering(t *testing.T) {
	store := audit.NewInMemoryStore()
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	// Ids are monotonic across cases, not per case.
	for i, caseID := range []int64{1, 2, 1, 1, 2} {
		event := &audit.Event{
			CaseID:    caseID,
			Type:      domain.EventNote,
			Message:   "note",
			Author:    "staff",
			CreatedAt: now,
		}
		require.NoError(t, store.Append(ctx, event))
		require.Equal(t, int64(i+1), event.ID)
	}

	events, err := store.ListByCase(ctx, 1, 10)
	require.NoError(t, err)
	require.Len(t, events, 3)
	require.Equal(t, int64(4), events[0].ID)
	require.Equal(t, int64(3), events[1].ID)
	require.Equal(t, int64(1), events[2].ID)

	events, err = store.ListByCase(ctx, 1, 2)
	require.NoError(t, err)
	require.Len(t, events, 2)
	require.Equal(t, int64(4), events[0].ID)

	count, err := store.CountByCase(ctx, 2)
	require.NoError(t, err)
	require.Equal(t, 2, count)

	events, err = store.ListByCase(ctx, 99, 10)
	require.NoError(t, err)
	require.Empty(t, events)
}

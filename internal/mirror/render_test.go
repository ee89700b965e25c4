package mirror_test

import (
	"testing"
	"time"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/require"

	"ndsregistry/internal/audit"
	"ndsregistry/internal/domain"
	"ndsregistry/internal/identity"
	"ndsregistry/internal/mirror"
)

var renderStamp = time.Date(2026, 3, 1, 14, 30, 0, 0, time.UTC)

func TestThreadTitle(t *testing.T) {
	d := sampleDetails()
	require.Equal(t, "Case #1: alice#123 [R-Individual]", mirror.ThreadTitle(d))
}

func TestRenderBootstrap(t *testing.T) {
	d := sampleDetails()
	d.CreatedAt = renderStamp

	g := goldie.New(t)
	g.Assert(t, "bootstrap", []byte(mirror.RenderBootstrap(d)))
}

func TestRenderEvent(t *testing.T) {
	event := &audit.Event{
		ID:        7,
		CaseID:    1,
		Type:      domain.EventStatus,
		Message:   "Status changed to CLOSED",
		Author:    "mod (42)",
		CreatedAt: renderStamp,
	}

	g := goldie.New(t)
	g.Assert(t, "event_status", []byte(mirror.RenderEvent(event)))
}

func TestRenderIntel(t *testing.T) {
	rec := &identity.IntelRecord{
		ID:         3,
		IdentityID: 1,
		Type:       domain.IntelAlt,
		Value:      "bob#456",
		Author:     "mod (42)",
		CreatedAt:  renderStamp,
	}

	g := goldie.New(t)
	g.Assert(t, "intel_alt", []byte(mirror.RenderIntel("alice#123", rec)))
}

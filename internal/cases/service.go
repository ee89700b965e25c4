package cases

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"ndsregistry/internal/audit"
	"ndsregistry/internal/domain"
	"ndsregistry/internal/identity"
	"ndsregistry/internal/platform/metrics"
	dErrors "ndsregistry/pkg/domain-errors"
	"ndsregistry/pkg/platform/sentinel"
	"ndsregistry/pkg/platform/tx"
	"ndsregistry/pkg/requestcontext"
)

// maxEventPage caps a single trail read.
const maxEventPage = 200

// trendDays is the dashboard creation-trend window.
const trendDays = 14

const defaultAuthor = "staff"

// IdentityResolver is the slice of the identity service the case engine
// needs. Satisfied by *identity.Service.
type IdentityResolver interface {
	ResolveOrCreate(ctx context.Context, identifier string, platform domain.Platform) (*identity.Identity, error)
	Get(ctx context.Context, id int64) (*identity.Identity, error)
	Lookup(ctx context.Context, identifier string) (*identity.Identity, error)
}

// Service enforces the case state machine. Every committed case mutation
// carries exactly one audit event in the same atomic unit; validation
// failures prevent any write, store failures abort the whole unit.
type Service struct {
	store      Store
	events     audit.Store
	identities IdentityResolver
	runner     tx.Runner
	logger     *slog.Logger
	metrics    *metrics.Metrics
	fanout     *audit.Fanout
	tracer     trace.Tracer
}

type Option func(*Service)

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func WithFanout(f *audit.Fanout) Option {
	return func(s *Service) { s.fanout = f }
}

func NewService(store Store, events audit.Store, identities IdentityResolver, runner tx.Runner, logger *slog.Logger, opts ...Option) *Service {
	s := &Service{
		store:      store,
		events:     events,
		identities: identities,
		runner:     runner,
		logger:     logger,
		tracer:     otel.Tracer("ndsregistry/cases"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create resolves (or creates) the identity, opens the case in OPEN status
// with no mirror thread, and appends the CREATE event in one atomic unit.
// A failure partway leaves no partial artifacts.
func (s *Service) Create(ctx context.Context, identifier, caseTypeRaw, platformRaw, reason, author string) (*Details, *audit.Event, error) {
	ctx, span := s.tracer.Start(ctx, "cases.Create")
	defer span.End()

	caseType, err := domain.ParseCaseType(caseTypeRaw)
	if err != nil {
		return nil, nil, err
	}
	platform, err := domain.ParsePlatform(platformRaw)
	if err != nil {
		return nil, nil, err
	}
	if reason = strings.TrimSpace(reason); reason == "" {
		return nil, nil, dErrors.New(dErrors.CodeValidation, "reason is required")
	}
	if strings.TrimSpace(identifier) == "" {
		return nil, nil, dErrors.New(dErrors.CodeValidation, "identifier is required")
	}
	author = normalizeAuthor(author)

	var (
		details Details
		event   *audit.Event
	)
	err = s.runner.RunAtomic(ctx, func(ctx context.Context) error {
		ident, err := s.identities.ResolveOrCreate(ctx, identifier, platform)
		if err != nil {
			return err
		}

		now := requestcontext.Now(ctx)
		c := &Case{
			IdentityID: ident.ID,
			Type:       caseType,
			Platform:   platform,
			Reason:     reason,
			Status:     domain.StatusOpen,
			CreatedAt:  now,
			UpdatedAt:  now,
		}
		if err := s.store.Create(ctx, c); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to create case")
		}

		message := fmt.Sprintf("Case created. Type=%s, Platform=%s", caseType, platform)
		event, err = s.appendEvent(ctx, c.ID, domain.EventCreate, message, author)
		if err != nil {
			return err
		}
		details = Details{Case: *c, Identifier: ident.Identifier}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	span.SetAttributes(attribute.Int64("case.id", details.ID))
	if s.metrics != nil {
		s.metrics.CasesCreated.Inc()
	}
	s.published(ctx, event)
	s.logger.InfoContext(ctx, "case created",
		"case_id", details.ID,
		"identity_id", details.IdentityID,
		"case_type", string(caseType),
		"platform", string(platform),
		"author", author,
	)
	return &details, event, nil
}

// Get loads a case with its owner's identifier.
func (s *Service) Get(ctx context.Context, id int64) (*Details, error) {
	c, err := s.store.FindByID(ctx, id)
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil, dErrors.New(dErrors.CodeNotFound, "case not found")
	}
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load case")
	}
	ident, err := s.identities.Get(ctx, c.IdentityID)
	if err != nil {
		return nil, err
	}
	return &Details{Case: *c, Identifier: ident.Identifier}, nil
}

// Update applies a partial field update. Only provided non-empty fields are
// touched; zero effective fields is a NoOp failure; enum validation happens
// before any mutation so a multi-field update is all-or-nothing. One UPDATE
// event documents the call.
func (s *Service) Update(ctx context.Context, caseID int64, req UpdateRequest) (*Details, *audit.Event, error) {
	var (
		caseType domain.CaseType
		platform domain.Platform
		err      error
	)
	reason := strings.TrimSpace(req.Reason)
	effective := 0
	if reason != "" {
		effective++
	}
	if strings.TrimSpace(req.CaseType) != "" {
		if caseType, err = domain.ParseCaseType(req.CaseType); err != nil {
			return nil, nil, err
		}
		effective++
	}
	if strings.TrimSpace(req.Platform) != "" {
		if platform, err = domain.ParsePlatform(req.Platform); err != nil {
			return nil, nil, err
		}
		effective++
	}
	if effective == 0 {
		return nil, nil, dErrors.New(dErrors.CodeNoOp, "nothing to update")
	}

	message := strings.TrimSpace(req.LogMessage)
	if message == "" {
		message = "Case updated"
	}
	author := normalizeAuthor(req.Author)

	var (
		details Details
		event   *audit.Event
	)
	err = s.runner.RunAtomic(ctx, func(ctx context.Context) error {
		c, err := s.loadForUpdate(ctx, caseID)
		if err != nil {
			return err
		}
		if reason != "" {
			c.Reason = reason
		}
		if caseType != "" {
			c.Type = caseType
		}
		if platform != "" {
			c.Platform = platform
		}
		c.UpdatedAt = requestcontext.Now(ctx)
		if err := s.store.Update(ctx, c); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to update case")
		}

		if event, err = s.appendEvent(ctx, c.ID, domain.EventUpdate, message, author); err != nil {
			return err
		}
		ident, err := s.identities.Get(ctx, c.IdentityID)
		if err != nil {
			return err
		}
		details = Details{Case: *c, Identifier: ident.Identifier}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	s.published(ctx, event)
	return &details, event, nil
}

// SetStatus records an operator's status decision. Any (old, new) pair is
// valid, including self-transitions: the trail records intent, not just
// change, so even a no-change call produces its event.
func (s *Service) SetStatus(ctx context.Context, caseID int64, statusRaw, author, logMessage string) (*Details, *audit.Event, error) {
	status, err := domain.ParseStatus(statusRaw)
	if err != nil {
		return nil, nil, err
	}
	author = normalizeAuthor(author)

	message := strings.TrimSpace(logMessage)
	if message == "" {
		message = "Status changed to " + string(status)
	}
	eventType := domain.EventStatus
	if status == domain.StatusArchived {
		eventType = domain.EventArchive
	}

	var (
		details Details
		event   *audit.Event
	)
	err = s.runner.RunAtomic(ctx, func(ctx context.Context) error {
		c, err := s.loadForUpdate(ctx, caseID)
		if err != nil {
			return err
		}
		c.Status = status
		c.UpdatedAt = requestcontext.Now(ctx)
		if err := s.store.Update(ctx, c); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to update case status")
		}

		if event, err = s.appendEvent(ctx, c.ID, eventType, message, author); err != nil {
			return err
		}
		ident, err := s.identities.Get(ctx, c.IdentityID)
		if err != nil {
			return err
		}
		details = Details{Case: *c, Identifier: ident.Identifier}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	s.published(ctx, event)
	s.logger.InfoContext(ctx, "case status set",
		"case_id", caseID,
		"status", string(status),
		"author", author,
	)
	return &details, event, nil
}

// AddEvent appends an operator-supplied entry to a case's trail and bumps the
// case's updated_at, as one atomic unit.
func (s *Service) AddEvent(ctx context.Context, caseID int64, eventType domain.EventType, message, author string) (*audit.Event, error) {
	if message = strings.TrimSpace(message); message == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "message is required")
	}
	author = normalizeAuthor(author)

	var event *audit.Event
	err := s.runner.RunAtomic(ctx, func(ctx context.Context) error {
		if _, err := s.loadForUpdate(ctx, caseID); err != nil {
			return err
		}
		var err error
		if event, err = s.appendEvent(ctx, caseID, eventType, message, author); err != nil {
			return err
		}
		if err := s.store.Touch(ctx, caseID, requestcontext.Now(ctx)); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to touch case")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.published(ctx, event)
	return event, nil
}

// AttachMirrorThread anchors the external mirror thread to a case, exactly
// once. A second attach fails and leaves the stored reference unchanged: a
// replacement thread would silently detach the public record from the trail.
func (s *Service) AttachMirrorThread(ctx context.Context, caseID int64, threadRef, author string) (*audit.Event, error) {
	if threadRef = strings.TrimSpace(threadRef); threadRef == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "thread_ref is required")
	}
	author = normalizeAuthor(author)

	var event *audit.Event
	err := s.runner.RunAtomic(ctx, func(ctx context.Context) error {
		err := s.store.AttachThread(ctx, caseID, threadRef, requestcontext.Now(ctx))
		if errors.Is(err, sentinel.ErrNotFound) {
			return dErrors.New(dErrors.CodeNotFound, "case not found")
		}
		if errors.Is(err, sentinel.ErrConflict) {
			return dErrors.New(dErrors.CodeConflict, "mirror thread already attached")
		}
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to attach mirror thread")
		}

		event, err = s.appendEvent(ctx, caseID, domain.EventThread, "Mirror thread created + locked", author)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.published(ctx, event)
	s.logger.InfoContext(ctx, "mirror thread attached",
		"case_id", caseID,
		"thread_ref", threadRef,
	)
	return event, nil
}

// Events reads a case's trail newest-first, capped.
func (s *Service) Events(ctx context.Context, caseID int64, limit int) ([]*audit.Event, error) {
	if limit <= 0 || limit > maxEventPage {
		limit = maxEventPage
	}
	if _, err := s.store.FindByID(ctx, caseID); err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "case not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load case")
	}
	events, err := s.events.ListByCase(ctx, caseID, limit)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list audit events")
	}
	return events, nil
}

// ListByIdentity reads an identity's cases newest-first, capped.
func (s *Service) ListByIdentity(ctx context.Context, identityID int64, limit int) ([]*Case, error) {
	if limit <= 0 || limit > maxEventPage {
		limit = maxEventPage
	}
	out, err := s.store.ListByIdentity(ctx, identityID, limit)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list cases")
	}
	return out, nil
}

// List returns filtered cases with owner identifiers, most recently updated
// first. An identifier filter that resolves to no identity yields an empty
// result rather than an error.
func (s *Service) List(ctx context.Context, f Filter, identifierQuery string) ([]*Details, error) {
	if identifierQuery = strings.TrimSpace(identifierQuery); identifierQuery != "" {
		ident, err := s.identities.Lookup(ctx, identifierQuery)
		if err != nil {
			if dErrors.HasCode(err, dErrors.CodeNotFound) {
				return []*Details{}, nil
			}
			return nil, err
		}
		f.IdentityID = ident.ID
	}
	if f.Limit <= 0 || f.Limit > 500 {
		f.Limit = 500
	}

	out, err := s.store.List(ctx, f)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list cases")
	}

	identifiers := make(map[int64]string)
	details := make([]*Details, 0, len(out))
	for _, c := range out {
		identifier, ok := identifiers[c.IdentityID]
		if !ok {
			ident, err := s.identities.Get(ctx, c.IdentityID)
			if err != nil {
				return nil, err
			}
			identifier = ident.Identifier
			identifiers[c.IdentityID] = identifier
		}
		details = append(details, &Details{Case: *c, Identifier: identifier})
	}
	return details, nil
}

// Stats aggregates the registry for dashboards, zero-filling missing trend
// days over the last two weeks.
func (s *Service) Stats(ctx context.Context) (*Stats, error) {
	now := requestcontext.Now(ctx)
	start := now.AddDate(0, 0, -(trendDays - 1)).Truncate(24 * time.Hour)

	stats, err := s.store.Stats(ctx, start)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to aggregate cases")
	}

	byDay := make(map[string]int, len(stats.Trend))
	for _, point := range stats.Trend {
		byDay[point.Day] = point.Count
	}
	filled := make([]TrendPoint, 0, trendDays)
	for i := 0; i < trendDays; i++ {
		day := now.AddDate(0, 0, -(trendDays - 1 - i)).UTC().Format("2006-01-02")
		filled = append(filled, TrendPoint{Day: day, Count: byDay[day]})
	}
	stats.Trend = filled
	return stats, nil
}

func (s *Service) loadForUpdate(ctx context.Context, caseID int64) (*Case, error) {
	c, err := s.store.FindByID(ctx, caseID)
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil, dErrors.New(dErrors.CodeNotFound, "case not found")
	}
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load case")
	}
	return c, nil
}

func (s *Service) appendEvent(ctx context.Context, caseID int64, eventType domain.EventType, message, author string) (*audit.Event, error) {
	event := &audit.Event{
		CaseID:    caseID,
		Type:      eventType,
		Message:   message,
		Author:    author,
		CreatedAt: requestcontext.Now(ctx),
	}
	if err := s.events.Append(ctx, event); err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "case not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to append audit event")
	}
	return event, nil
}

// published reports a committed event to metrics and the best-effort fan-out.
// Called only after the atomic unit succeeds.
func (s *Service) published(_ context.Context, event *audit.Event) {
	if event == nil {
		return
	}
	if s.metrics != nil {
		s.metrics.EventsAppended.WithLabelValues(string(event.Type)).Inc()
	}
	if s.fanout != nil {
		s.fanout.Emit(*event)
	}
}

func normalizeAuthor(author string) string {
	if author = strings.TrimSpace(author); author == "" {
		return defaultAuthor
	}
	return author
}

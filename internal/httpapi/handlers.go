package httpapi

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"ndsregistry/internal/access"
	"ndsregistry/internal/audit"
	"ndsregistry/internal/cases"
	"ndsregistry/internal/domain"
	"ndsregistry/internal/identity"
	"ndsregistry/internal/mirror"
	dErrors "ndsregistry/pkg/domain-errors"
)

// lookupPage bounds the per-section page size on the combined user lookup.
const lookupPage = 50

// Handler exposes the registry over JSON. Mutating handlers run the
// authoritative operation first and only then project onto the mirror;
// projection failures surface as mirror_warning on an otherwise successful
// response.
type Handler struct {
	cases      *cases.Service
	identities *identity.Service
	mirror     *mirror.Synchronizer
	gate       *access.Gate
	logger     *slog.Logger
}

func NewHandler(caseSvc *cases.Service, identitySvc *identity.Service, sync *mirror.Synchronizer, gate *access.Gate, logger *slog.Logger) *Handler {
	return &Handler{cases: caseSvc, identities: identitySvc, mirror: sync, gate: gate, logger: logger}
}

// Meta publishes the closed enumerations so clients render pickers without
// hardcoding them.
func (h *Handler) Meta(w http.ResponseWriter, r *http.Request) {
	h.writeData(w, http.StatusOK, map[string]any{
		"case_types": domain.CaseTypes(),
		"platforms":  domain.Platforms(),
		"statuses":   []domain.Status{domain.StatusOpen, domain.StatusClosed, domain.StatusArchived},
	}, nil)
}

// LookupUser resolves an external identifier to its identity, cases, and
// intel ledger.
func (h *Handler) LookupUser(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ident, err := h.identities.Lookup(ctx, r.URL.Query().Get("identifier"))
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}
	ownedCases, err := h.cases.ListByIdentity(ctx, ident.ID, lookupPage)
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}
	intel, err := h.identities.ListIntel(ctx, ident.ID, lookupPage)
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}
	h.writeData(w, http.StatusOK, map[string]any{
		"identity": ident,
		"cases":    ownedCases,
		"intel":    intel,
	}, nil)
}

type createCaseRequest struct {
	Identifier string `json:"identifier"`
	CaseType   string `json:"case_type"`
	Platform   string `json:"platform"`
	Reason     string `json:"reason"`
	Author     string `json:"author"`
}

// CreateCase opens a case, then bootstraps and attaches its mirror thread.
// The case commit is authoritative; every mirror step after it is advisory.
func (h *Handler) CreateCase(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req createCaseRequest
	if err := decode(r, &req); err != nil {
		h.writeError(ctx, w, err)
		return
	}

	details, _, err := h.cases.Create(ctx, req.Identifier, req.CaseType, req.Platform, req.Reason, author(r, req.Author))
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}

	var warning error
	if h.mirror != nil {
		threadRef, err := h.mirror.Bootstrap(ctx, details)
		if err != nil {
			warning = err
		} else if _, err := h.cases.AttachMirrorThread(ctx, details.ID, threadRef, author(r, req.Author)); err != nil {
			warning = err
		} else {
			details.MirrorThreadRef = threadRef
		}
	}
	h.writeData(w, http.StatusCreated, details, warning)
}

// ListCases filters the registry. q matches the owner's exact external
// identifier; an unknown identifier yields an empty list.
func (h *Handler) ListCases(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	query := r.URL.Query()

	var f cases.Filter
	if raw := strings.TrimSpace(query.Get("status")); raw != "" {
		status, err := domain.ParseStatus(raw)
		if err != nil {
			h.writeError(ctx, w, err)
			return
		}
		f.Status = status
	}
	if raw := strings.TrimSpace(query.Get("case_type")); raw != "" {
		caseType, err := domain.ParseCaseType(raw)
		if err != nil {
			h.writeError(ctx, w, err)
			return
		}
		f.CaseType = caseType
	}
	if raw := strings.TrimSpace(query.Get("platform")); raw != "" {
		platform, err := domain.ParsePlatform(raw)
		if err != nil {
			h.writeError(ctx, w, err)
			return
		}
		f.Platform = platform
	}
	if raw := query.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil {
			h.writeError(ctx, w, dErrors.New(dErrors.CodeValidation, "limit must be an integer"))
			return
		}
		f.Limit = limit
	}

	out, err := h.cases.List(ctx, f, query.Get("q"))
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}
	h.writeData(w, http.StatusOK, out, nil)
}

// GetCase returns a case with its audit trail, newest event first.
func (h *Handler) GetCase(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	caseID, err := pathID(r, "id")
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}

	details, err := h.cases.Get(ctx, caseID)
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}
	events, err := h.cases.Events(ctx, caseID, 0)
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}
	h.writeData(w, http.StatusOK, map[string]any{
		"case":   details,
		"events": events,
	}, nil)
}

type patchCaseRequest struct {
	Status     string `json:"status"`
	Reason     string `json:"reason"`
	CaseType   string `json:"case_type"`
	Platform   string `json:"platform"`
	LogMessage string `json:"log_message"`
	Author     string `json:"author"`
}

// PatchCase applies a partial update and/or a status change. Fields and
// status are independent mutations with their own audit events; a body
// carrying neither is rejected without writing anything.
func (h *Handler) PatchCase(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	caseID, err := pathID(r, "id")
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}
	var req patchCaseRequest
	if err := decode(r, &req); err != nil {
		h.writeError(ctx, w, err)
		return
	}

	hasFields := strings.TrimSpace(req.Reason) != "" ||
		strings.TrimSpace(req.CaseType) != "" ||
		strings.TrimSpace(req.Platform) != ""
	hasStatus := strings.TrimSpace(req.Status) != ""
	if !hasFields && !hasStatus {
		h.writeError(ctx, w, dErrors.New(dErrors.CodeNoOp, "nothing to update"))
		return
	}

	var (
		details *cases.Details
		emitted []*audit.Event
	)
	if hasFields {
		var event *audit.Event
		details, event, err = h.cases.Update(ctx, caseID, cases.UpdateRequest{
			Reason:     req.Reason,
			CaseType:   req.CaseType,
			Platform:   req.Platform,
			LogMessage: req.LogMessage,
			Author:     author(r, req.Author),
		})
		if err != nil {
			h.writeError(ctx, w, err)
			return
		}
		emitted = append(emitted, event)
	}
	if hasStatus {
		var event *audit.Event
		details, event, err = h.cases.SetStatus(ctx, caseID, req.Status, author(r, req.Author), req.LogMessage)
		if err != nil {
			h.writeError(ctx, w, err)
			return
		}
		emitted = append(emitted, event)
	}

	warning := h.project(r, details, emitted)
	h.writeData(w, http.StatusOK, details, warning)
}

type addEventRequest struct {
	EventType string `json:"event_type"`
	Message   string `json:"message"`
	Author    string `json:"author"`
}

// AddEvent appends a manual entry to a case's trail. An absent event_type
// means NOTE.
func (h *Handler) AddEvent(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	caseID, err := pathID(r, "id")
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}
	var req addEventRequest
	if err := decode(r, &req); err != nil {
		h.writeError(ctx, w, err)
		return
	}
	eventType, err := domain.ParseEventType(req.EventType)
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}

	event, err := h.cases.AddEvent(ctx, caseID, eventType, req.Message, author(r, req.Author))
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}

	details, err := h.cases.Get(ctx, caseID)
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}
	warning := h.project(r, details, []*audit.Event{event})
	h.writeData(w, http.StatusCreated, event, warning)
}

type addIntelRequest struct {
	IntelType string `json:"intel_type"`
	Value     string `json:"value"`
	Author    string `json:"author"`
}

// AddIntel appends to an identity's intel ledger.
func (h *Handler) AddIntel(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identityID, err := pathID(r, "id")
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}
	var req addIntelRequest
	if err := decode(r, &req); err != nil {
		h.writeError(ctx, w, err)
		return
	}
	intelType, err := domain.ParseIntelType(req.IntelType)
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}

	rec, err := h.identities.AddIntel(ctx, identityID, intelType, req.Value, author(r, req.Author))
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}
	h.writeData(w, http.StatusCreated, rec, h.projectIntel(r, identityID, rec))
}

// projectIntel posts a committed intel record into the identity's most
// recent linked case thread. Identities without a linked case mirror
// nowhere, and projection failures never unwind the ledger write.
func (h *Handler) projectIntel(r *http.Request, identityID int64, rec *identity.IntelRecord) error {
	if h.mirror == nil {
		return nil
	}
	ctx := r.Context()
	owned, err := h.cases.ListByIdentity(ctx, identityID, lookupPage)
	if err != nil {
		return err
	}
	for _, c := range owned {
		if !c.Linked() {
			continue
		}
		ident, err := h.identities.Get(ctx, identityID)
		if err != nil {
			return err
		}
		return h.mirror.Project(ctx, c.ID, c.MirrorThreadRef, mirror.RenderIntel(ident.Identifier, rec))
	}
	return nil
}

// ListIntel reads an identity's ledger newest-first.
func (h *Handler) ListIntel(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identityID, err := pathID(r, "id")
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}
	if _, err := h.identities.Get(ctx, identityID); err != nil {
		h.writeError(ctx, w, err)
		return
	}
	records, err := h.identities.ListIntel(ctx, identityID, 0)
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}
	h.writeData(w, http.StatusOK, records, nil)
}

// Stats serves the dashboard aggregates.
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	stats, err := h.cases.Stats(ctx)
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}
	h.writeData(w, http.StatusOK, stats, nil)
}

// project pushes committed audit events into the case's mirror thread. The
// first failure wins as the warning; remaining events are still attempted.
func (h *Handler) project(r *http.Request, details *cases.Details, events []*audit.Event) error {
	if h.mirror == nil || details == nil || !details.Linked() {
		return nil
	}
	var warning error
	for _, event := range events {
		if event == nil {
			continue
		}
		err := h.mirror.Project(r.Context(), details.ID, details.MirrorThreadRef, mirror.RenderEvent(event))
		if err != nil && warning == nil {
			warning = err
		}
	}
	return warning
}

func decode(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return dErrors.Wrap(err, dErrors.CodeValidation, "malformed JSON body")
	}
	return nil
}

func pathID(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		if err == nil {
			err = errors.New("non-positive id")
		}
		return 0, dErrors.Wrap(err, dErrors.CodeValidation, "invalid id")
	}
	return id, nil
}

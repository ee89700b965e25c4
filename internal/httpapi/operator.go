package httpapi

import (
	"net/http"
	"strings"

	"ndsregistry/internal/access"
	platformstrings "ndsregistry/pkg/platform/strings"
)

// Operator context rides in on headers set by the trusted frontend (the
// interactive bot). The API key gate has already authenticated the frontend
// itself; these headers only say who is driving it.
const (
	headerOperatorID      = "X-Operator-ID"
	headerOperatorDisplay = "X-Operator-Display"
	headerOperatorRoles   = "X-Operator-Roles"
	headerOperatorAdmin   = "X-Operator-Admin"
)

func operatorFrom(r *http.Request) (access.Operator, bool) {
	id := strings.TrimSpace(r.Header.Get(headerOperatorID))
	if id == "" {
		return access.Operator{}, false
	}
	op := access.Operator{
		ID:      id,
		Display: strings.TrimSpace(r.Header.Get(headerOperatorDisplay)),
		Admin:   r.Header.Get(headerOperatorAdmin) == "true",
	}
	if raw := strings.TrimSpace(r.Header.Get(headerOperatorRoles)); raw != "" {
		op.RoleIDs = platformstrings.DedupeAndTrim(strings.Split(raw, ","))
	}
	return op, true
}

// requireOperator rejects mutations from operators who fail the role gate.
// With no gate configured, operator headers stay advisory (attribution only).
func (h *Handler) requireOperator(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h.gate != nil {
			op, ok := operatorFrom(r)
			if !ok {
				writeJSON(w, http.StatusUnauthorized, envelope{OK: false, Error: "unauthorized", Message: "operator identity required"})
				return
			}
			if err := h.gate.Require(op); err != nil {
				h.writeError(r.Context(), w, err)
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

// author resolves audit attribution: explicit body author wins, then the
// operator headers, then the service default.
func author(r *http.Request, raw string) string {
	if strings.TrimSpace(raw) != "" {
		return raw
	}
	if op, ok := operatorFrom(r); ok {
		return op.Author()
	}
	return ""
}

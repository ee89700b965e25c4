package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	dErrors "ndsregistry/pkg/domain-errors"
	"ndsregistry/pkg/requestcontext"
)

// envelope is the uniform response shape. MirrorWarning is populated when the
// authoritative write committed but the best-effort mirror projection failed.
type envelope struct {
	OK            bool   `json:"ok"`
	Data          any    `json:"data,omitempty"`
	Error         string `json:"error,omitempty"`
	Message       string `json:"message,omitempty"`
	MirrorWarning string `json:"mirror_warning,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, body envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func (h *Handler) writeData(w http.ResponseWriter, status int, data any, mirrorWarning error) {
	body := envelope{OK: true, Data: data}
	if mirrorWarning != nil {
		body.MirrorWarning = warningMessage(mirrorWarning)
	}
	writeJSON(w, status, body)
}

func (h *Handler) writeError(ctx context.Context, w http.ResponseWriter, err error) {
	code := dErrors.CodeOf(err)
	status := dErrors.ToHTTPStatus(code)

	message := "internal error"
	var de *dErrors.Error
	if errors.As(err, &de) && code != dErrors.CodeInternal {
		message = de.Message
	}
	if status >= http.StatusInternalServerError {
		h.logger.ErrorContext(ctx, "request failed",
			"error", err,
			"request_id", requestcontext.RequestID(ctx),
		)
	}
	writeJSON(w, status, envelope{OK: false, Error: string(code), Message: message})
}

func warningMessage(err error) string {
	var de *dErrors.Error
	if errors.As(err, &de) {
		return de.Message
	}
	return err.Error()
}

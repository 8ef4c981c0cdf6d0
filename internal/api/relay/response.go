package relay

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/tjfontaine/relaycode/internal/core/domain"
	"github.com/tjfontaine/relaycode/internal/server"
)

type errorEnvelope struct {
	Error *domain.APIError `json:"error"`
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("failed to encode response", slog.String("error", err.Error()))
	}
}

// writeError renders err as an APIError envelope and records it on the request log.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	apiErr := domain.ToAPIError(err)
	server.AddError(r.Context(), err)
	h.writeJSON(w, apiErr.HTTPStatusCode(), errorEnvelope{Error: apiErr})
}

func decodeBody(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return domain.ErrInvalidRequest("Invalid request body: " + err.Error())
	}
	return nil
}

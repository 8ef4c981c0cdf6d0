package relay

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/tjfontaine/relaycode/internal/core/domain"
	"github.com/tjfontaine/relaycode/internal/core/ports"
	"github.com/tjfontaine/relaycode/internal/server"
	"github.com/tjfontaine/relaycode/internal/simulation"
	"github.com/tjfontaine/relaycode/internal/storage/memory"
)

const (
	defaultPage  = 1
	defaultLimit = 15
)

type updateStatusRequest struct {
	Status   string `json:"status"`
	Scenario string `json:"scenario,omitempty"`
}

type bulkRequest struct {
	IDs    []string `json:"ids"`
	Action string   `json:"action"`
}

type bulkResponse struct {
	Success    bool     `json:"success"`
	UpdatedIDs []string `json:"updatedIds"`
}

type reapplyFileRequest struct {
	FilePath string `json:"filePath"`
}

type reapplyFailedResponse struct {
	Success   bool     `json:"success"`
	FilePaths []string `json:"filePaths"`
}

type successResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

// HandleHealth handles GET /health
func (h *Handler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]string{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// HandleVersion handles GET /api/version
func (h *Handler) HandleVersion(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]string{
		"version":     h.version,
		"environment": h.env,
	})
}

// HandleListTransactions handles GET /api/transactions
func (h *Handler) HandleListTransactions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	limit, err := intParam(q.Get("limit"), "limit", defaultLimit)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	page, err := intParam(q.Get("page"), "page", defaultPage)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	txs := h.store.ListTransactions(memory.ListOptions{
		Limit:  limit,
		Page:   page,
		Search: q.Get("search"),
		Status: q.Get("status"),
	})
	h.writeJSON(w, http.StatusOK, txs)
}

// HandleGetTransaction handles GET /api/transactions/{id}
func (h *Handler) HandleGetTransaction(w http.ResponseWriter, r *http.Request) {
	tx, err := h.store.GetTransaction(chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, tx)
}

// HandleUpdateStatus handles PATCH /api/transactions/{id}/status.
// Moving to APPLYING starts a simulation: 202 when it started, 409 when the
// guard rejected it.
func (h *Handler) HandleUpdateStatus(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	server.AddLogField(r.Context(), "transaction_id", id)

	var req updateStatusRequest
	if err := decodeBody(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	status, ok := domain.ParseTransactionStatus(req.Status)
	if !ok {
		h.writeError(w, r, domain.ErrInvalidRequest(fmt.Sprintf("unknown status %q", req.Status)).
			WithCode(domain.ErrorCodeInvalidStatus).WithParam("status"))
		return
	}

	if status != domain.TransactionApplying {
		tx, err := h.store.UpdateStatus(id, status)
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		h.writeJSON(w, http.StatusOK, tx)
		return
	}

	scenario, err := domain.ParseScenario(req.Scenario)
	if err != nil {
		h.writeError(w, r, domain.ErrInvalidRequest(err.Error()).
			WithCode(domain.ErrorCodeInvalidScenario).WithParam("scenario"))
		return
	}
	server.AddLogField(r.Context(), "scenario", scenario.String())

	result, err := h.sim.Start(r.Context(), id, scenario)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if !result.Started {
		h.writeError(w, r, startRejection(id, result.Reason))
		return
	}
	h.writeJSON(w, http.StatusAccepted, result.Transaction)
}

func startRejection(id string, reason simulation.StartReason) *domain.APIError {
	switch reason {
	case simulation.ReasonAlreadyActive:
		return domain.ErrConflict(fmt.Sprintf("transaction %s: a simulation is already running", id)).
			WithCode(domain.ErrorCodeSimulationAlreadyActive)
	default:
		return domain.ErrConflict(fmt.Sprintf("transaction %s is not pending", id)).
			WithCode(domain.ErrorCodeTransactionNotPending)
	}
}

// HandleBulkUpdate handles POST /api/transactions/bulk
func (h *Handler) HandleBulkUpdate(w http.ResponseWriter, r *http.Request) {
	var req bulkRequest
	if err := decodeBody(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	status, ok := domain.ParseTransactionStatus(req.Action)
	if !ok {
		h.writeError(w, r, domain.ErrInvalidRequest(fmt.Sprintf("unknown action %q", req.Action)).
			WithCode(domain.ErrorCodeInvalidStatus).WithParam("action"))
		return
	}

	updated := h.store.BulkUpdateStatus(req.IDs, status)
	if updated == nil {
		updated = []string{}
	}
	server.AddLogField(r.Context(), "updated", strconv.Itoa(len(updated)))
	h.writeJSON(w, http.StatusOK, bulkResponse{Success: true, UpdatedIDs: updated})
}

// HandleReapplyFile handles POST /api/transactions/{id}/files/reapply
func (h *Handler) HandleReapplyFile(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	server.AddLogField(r.Context(), "transaction_id", id)

	var req reapplyFileRequest
	if err := decodeBody(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	if req.FilePath == "" {
		h.writeError(w, r, domain.ErrInvalidRequest("filePath is required").WithParam("filePath"))
		return
	}

	if err := h.sim.ReapplyFile(r.Context(), id, req.FilePath); err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, successResponse{Success: true})
}

// HandleReapplyFailed handles POST /api/transactions/{id}/reapply-failed
func (h *Handler) HandleReapplyFailed(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	server.AddLogField(r.Context(), "transaction_id", id)

	paths, err := h.sim.ReapplyAllFailed(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, reapplyFailedResponse{Success: true, FilePaths: paths})
}

// HandleHistory handles GET /api/transactions/{id}/history
func (h *Handler) HandleHistory(w http.ResponseWriter, r *http.Request) {
	if h.journal == nil {
		h.writeError(w, r, domain.ErrNotFound("event journal is not enabled").
			WithCode(domain.ErrorCodeJournalDisabled))
		return
	}

	id := chi.URLParam(r, "id")
	if _, err := h.store.GetTransaction(id); err != nil {
		h.writeError(w, r, err)
		return
	}

	q := r.URL.Query()
	limit, err := intParam(q.Get("limit"), "limit", 0)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	offset, err := intParam(q.Get("offset"), "offset", 0)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	entries, err := h.journal.List(r.Context(), id, ports.JournalListOptions{Limit: limit, Offset: offset})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, entries)
}

// HandleListPrompts handles GET /api/prompts
func (h *Handler) HandleListPrompts(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.store.ListPrompts())
}

// HandleReset handles POST /api/dev/reset. The seed document is reloaded and
// replaces every transaction and prompt.
func (h *Handler) HandleReset(w http.ResponseWriter, r *http.Request) {
	seed, err := h.seeds.Load(r.Context())
	if err != nil {
		h.writeError(w, r, fmt.Errorf("load seed: %w", err))
		return
	}
	if err := h.store.Reset(seed); err != nil {
		h.writeError(w, r, fmt.Errorf("reset store: %w", err))
		return
	}
	server.AddLogField(r.Context(), "transactions", strconv.Itoa(len(seed.Transactions)))
	h.writeJSON(w, http.StatusOK, successResponse{Success: true, Message: "Seed data reset"})
}

func intParam(raw, name string, def int) (int, error) {
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		var numErr *strconv.NumError
		if errors.As(err, &numErr) {
			err = numErr.Err
		}
		return 0, domain.ErrInvalidRequest(fmt.Sprintf("%s must be an integer: %v", name, err)).WithParam(name)
	}
	return n, nil
}

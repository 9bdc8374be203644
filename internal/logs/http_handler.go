package logs

import (
	"encoding/json"
	"net/http"

	"github.com/cockroachdb/errors"

	"github.com/rpattn/sheetpipe/internal/logger"
	"github.com/rpattn/sheetpipe/internal/repository"
)

// Handler exposes the outcome log lookups over HTTP.
type Handler struct {
	service *Service
}

func NewHTTPHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// Register mounts the log routes on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /logs", h.handleList)
	mux.HandleFunc("GET /logs/{uuid}", h.handleGet)
	mux.HandleFunc("DELETE /logs/{uuid}", h.handleDelete)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	order, err := repository.ParseSortOrder(r.URL.Query().Get("order"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	records, err := h.service.GetLogs(r.Context(), order)
	if err != nil {
		h.service.logger.Errorw("Failed to list outcome logs", logger.FieldError, err)
		http.Error(w, "failed to list logs", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, records)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	record, err := h.service.Lookup(r.Context(), r.PathValue("uuid"))
	switch {
	case errors.Is(err, ErrInvalidID):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, repository.ErrNotFound):
		http.Error(w, "log not found", http.StatusNotFound)
	case err != nil:
		h.service.logger.Errorw("Failed to get outcome log", logger.FieldError, err)
		http.Error(w, "failed to get log", http.StatusInternalServerError)
	default:
		writeJSON(w, http.StatusOK, record)
	}
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	id, err := ParseID(r.PathValue("uuid"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := h.service.DeleteLog(r.Context(), id); err != nil {
		h.service.logger.Errorw("Failed to delete outcome logs", logger.FieldError, err)
		http.Error(w, "failed to delete logs", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(payload)
}

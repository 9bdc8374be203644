package tasks

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/rpattn/sheetpipe/internal/domain"
	"github.com/rpattn/sheetpipe/internal/logger"
	"github.com/rpattn/sheetpipe/internal/pipeline"
	"github.com/rpattn/sheetpipe/internal/repository"
)

const (
	uploadField   = "upload_file"
	taskIDField   = "task_id"
	taskIDHeader  = "X-Task-ID"
	xlsxMediaType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

// Processor runs one submission and knows where its output lands.
type Processor interface {
	Process(ctx context.Context, sub pipeline.Submission) (domain.OutcomeLog, error)
	OutputPath(taskID uuid.UUID) string
}

// LogReader returns the most recent outcome log for a task.
type LogReader interface {
	GetLog(ctx context.Context, id uuid.UUID) (domain.OutcomeLog, error)
}

// Handler serves task submission, status polling and output download.
type Handler struct {
	orchestrator   Orchestrator
	processor      Processor
	logs           LogReader
	maxUploadBytes int64
	logger         *zap.SugaredLogger
}

func NewHTTPHandler(orchestrator Orchestrator, processor Processor, logs LogReader, maxUploadBytes int64, log *zap.SugaredLogger) *Handler {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Handler{
		orchestrator:   orchestrator,
		processor:      processor,
		logs:           logs,
		maxUploadBytes: maxUploadBytes,
		logger:         log.Named("tasks.http"),
	}
}

// Register mounts the task routes on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /task", h.handleSubmit)
	mux.HandleFunc("GET /task/check_status/{task_id}", h.handleStatus)
	mux.HandleFunc("GET /task/{task_id}", h.handleResult)
}

type statusResponse struct {
	TaskID  uuid.UUID `json:"task_id"`
	Status  Status    `json:"status"`
	Message string    `json:"message,omitempty"`
}

func (h *Handler) handleSubmit(w http.ResponseWriter, r *http.Request) {
	if h.maxUploadBytes > 0 {
		if r.ContentLength > h.maxUploadBytes {
			http.Error(w, "upload too large", http.StatusRequestEntityTooLarge)
			return
		}
		r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes)
	}
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			http.Error(w, "upload too large", http.StatusRequestEntityTooLarge)
			return
		}
		http.Error(w, fmt.Sprintf("invalid multipart form: %v", err), http.StatusBadRequest)
		return
	}

	taskID, err := requestedTaskID(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	file, header, err := r.FormFile(uploadField)
	if err != nil {
		http.Error(w, fmt.Sprintf("missing %s: %v", uploadField, err), http.StatusBadRequest)
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		http.Error(w, fmt.Sprintf("failed to read upload: %v", err), http.StatusBadRequest)
		return
	}

	sub := pipeline.Submission{
		TaskID:      taskID,
		FileName:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Data:        data,
	}
	status, err := h.orchestrator.Submit(r.Context(), taskID, func(ctx context.Context) error {
		_, err := h.processor.Process(ctx, sub)
		return err
	})
	switch {
	case errors.Is(err, ErrQueueFull), errors.Is(err, ErrStopped):
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	case err != nil:
		h.logger.Errorw("Failed to submit task", logger.FieldTaskID, taskID, logger.FieldError, err)
		http.Error(w, "failed to submit task", http.StatusInternalServerError)
		return
	}

	h.logger.Infow("Task accepted",
		logger.FieldTaskID, taskID,
		logger.FieldFileName, sub.FileName,
		"content_type", sub.ContentType,
		"size", len(data))
	writeJSON(w, http.StatusAccepted, statusResponse{TaskID: taskID, Status: status})
}

// requestedTaskID prefers the form field, then the header, and generates an id otherwise.
func requestedTaskID(r *http.Request) (uuid.UUID, error) {
	raw := strings.TrimSpace(r.FormValue(taskIDField))
	if raw == "" {
		raw = strings.TrimSpace(r.Header.Get(taskIDHeader))
	}
	if raw == "" {
		return uuid.New(), nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, errors.Newf("invalid task id %q", raw)
	}
	return id, nil
}

func (h *Handler) status(w http.ResponseWriter, r *http.Request) (uuid.UUID, Status, bool) {
	raw := r.PathValue("task_id")
	id, err := uuid.Parse(raw)
	if err != nil {
		http.Error(w, fmt.Sprintf("invalid task id %q", raw), http.StatusBadRequest)
		return uuid.Nil, "", false
	}
	status, err := h.orchestrator.Status(r.Context(), id)
	if err != nil {
		h.logger.Errorw("Failed to read task status", logger.FieldTaskID, id, logger.FieldError, err)
		http.Error(w, "failed to read task status", http.StatusInternalServerError)
		return uuid.Nil, "", false
	}
	return id, status, true
}

func (h *Handler) handleStatus(w http.ResponseWriter, r *http.Request) {
	id, status, ok := h.status(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, statusResponse{TaskID: id, Status: status})
}

func (h *Handler) handleResult(w http.ResponseWriter, r *http.Request) {
	id, status, ok := h.status(w, r)
	if !ok {
		return
	}

	switch status {
	case StatusPending, StatusRunning:
		writeJSON(w, http.StatusOK, statusResponse{TaskID: id, Status: status, Message: "processing is not complete yet"})
		return
	case StatusSucceeded:
		if h.serveOutput(w, r, id) {
			return
		}
	}

	writeJSON(w, http.StatusOK, statusResponse{TaskID: id, Status: status, Message: h.explain(r.Context(), id)})
}

func (h *Handler) serveOutput(w http.ResponseWriter, r *http.Request, id uuid.UUID) bool {
	path := h.processor.OutputPath(id)
	file, err := os.Open(path)
	if err != nil {
		if !os.IsNotExist(err) {
			h.logger.Errorw("Failed to open output file", logger.FieldTaskID, id, logger.FieldError, err)
		}
		return false
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		h.logger.Errorw("Failed to stat output file", logger.FieldTaskID, id, logger.FieldError, err)
		return false
	}

	w.Header().Set("Content-Type", xlsxMediaType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", id.String()+".xlsx"))
	http.ServeContent(w, r, info.Name(), info.ModTime(), file)
	return true
}

// explain turns the outcome log into a client-facing reason for a missing file.
func (h *Handler) explain(ctx context.Context, id uuid.UUID) string {
	record, err := h.logs.GetLog(ctx, id)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return "no outcome has been recorded for this task"
	case err != nil:
		h.logger.Errorw("Failed to read outcome log", logger.FieldTaskID, id, logger.FieldError, err)
		return "outcome log is unavailable"
	case record.Succeeded():
		return "processing succeeded but the output file is missing"
	default:
		return fmt.Sprintf("processing failed (%s): %s", record.ErrorKind, record.Message)
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(payload)
}

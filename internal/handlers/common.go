// Package handlers exposes the session orchestration API over HTTP.
package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/rs/cors"

	"github.com/AleksandrSemykin/reflow-ocr/internal/events"
	"github.com/AleksandrSemykin/reflow-ocr/internal/export"
	"github.com/AleksandrSemykin/reflow-ocr/internal/images"
	"github.com/AleksandrSemykin/reflow-ocr/internal/pipeline"
	"github.com/AleksandrSemykin/reflow-ocr/internal/storage"
)

type Handler struct {
	store     *storage.Store
	pipeline  *pipeline.Pipeline
	bus       *events.Bus
	exporters *export.Registry
	fetcher   *images.Fetcher

	// heartbeat is the SSE keepalive interval. Tests shrink it.
	heartbeat time.Duration

	// exportTimeout bounds one export rendering.
	exportTimeout time.Duration
}

func New(store *storage.Store, pipe *pipeline.Pipeline, bus *events.Bus, exporters *export.Registry, exportTimeout time.Duration) *Handler {
	if exportTimeout <= 0 {
		exportTimeout = 30 * time.Second
	}
	return &Handler{
		store:         store,
		pipeline:      pipe,
		bus:           bus,
		exporters:     exporters,
		fetcher:       images.NewFetcher(),
		heartbeat:     15 * time.Second,
		exportTimeout: exportTimeout,
	}
}

// Routes builds the API mux with permissive CORS for the local frontend.
func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/sessions", h.HandleListSessions)
	mux.HandleFunc("POST /api/sessions", h.HandleCreateSession)
	mux.HandleFunc("POST /api/sessions/import", h.HandleImportArchive)
	mux.HandleFunc("GET /api/sessions/{id}", h.HandleGetSession)
	mux.HandleFunc("PATCH /api/sessions/{id}", h.HandleUpdateSession)
	mux.HandleFunc("DELETE /api/sessions/{id}", h.HandleDeleteSession)

	mux.HandleFunc("POST /api/sessions/{id}/pages", h.HandleUploadPages)
	mux.HandleFunc("POST /api/sessions/{id}/pages/reorder", h.HandleReorderPages)
	mux.HandleFunc("DELETE /api/sessions/{id}/pages/{pageID}", h.HandleDeletePage)
	mux.HandleFunc("GET /api/sessions/{id}/pages/{pageID}/image", h.HandlePageImage)

	mux.HandleFunc("POST /api/sessions/{id}/recognize", h.HandleRecognize)
	mux.HandleFunc("POST /api/sessions/{id}/recognize/cancel", h.HandleCancelRecognition)
	mux.HandleFunc("GET /api/sessions/{id}/events", h.HandleEvents)

	mux.HandleFunc("GET /api/sessions/{id}/document", h.HandleGetDocument)
	mux.HandleFunc("POST /api/sessions/{id}/export", h.HandleExport)
	mux.HandleFunc("GET /api/sessions/{id}/archive", h.HandleDownloadArchive)

	mux.HandleFunc("GET /healthcheck", h.HandleHealthcheck)

	return cors.AllowAll().Handler(mux)
}

func (h *Handler) HandleHealthcheck(w http.ResponseWriter, r *http.Request) {
	if _, err := w.Write([]byte("OK")); err != nil {
		slog.Error("Unable to write healthcheck", "err", err)
	}
}

// Response helpers
func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("Unable to encode JSON response", "err", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, message string, code int) {
	slog.Error(message)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(map[string]string{"detail": message}); err != nil {
		slog.Error("Unable to encode error response", "err", err)
	}
}

// writeDomainError maps internal failures onto HTTP status codes.
func (h *Handler) writeDomainError(w http.ResponseWriter, err error) {
	var unsupportedFormat *export.UnsupportedFormatError
	var unsupportedImage *storage.UnsupportedImageError
	switch {
	case errors.Is(err, storage.ErrNotFound), errors.Is(err, storage.ErrPageNotFound):
		h.writeError(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, pipeline.ErrRunActive), errors.Is(err, export.ErrNoDocument):
		h.writeError(w, err.Error(), http.StatusConflict)
	case errors.Is(err, pipeline.ErrNoPages),
		errors.As(err, &unsupportedFormat),
		errors.As(err, &unsupportedImage):
		h.writeError(w, err.Error(), http.StatusBadRequest)
	default:
		h.writeError(w, "Internal server error: "+err.Error(), http.StatusInternalServerError)
	}
}

func (h *Handler) decodeBody(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		h.writeError(w, "Invalid JSON: "+err.Error(), http.StatusBadRequest)
		return false
	}
	return true
}

package handlers

import (
	"fmt"
	"io"
	"net/http"

	"github.com/AleksandrSemykin/reflow-ocr/internal/export"
)

// HandleGetDocument returns the recognized document. Before the first
// successful run there is nothing to return, which reads as 404 rather
// than an empty document.
func (h *Handler) HandleGetDocument(w http.ResponseWriter, r *http.Request) {
	session, err := h.store.Get(r.PathValue("id"))
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	if session.Document == nil {
		h.writeError(w, "Document is not ready yet.", http.StatusNotFound)
		return
	}
	h.writeJSON(w, http.StatusOK, session.Document)
}

// HandleExport renders the recognized document as a downloadable artifact.
func (h *Handler) HandleExport(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Format export.Format `json:"format"`
	}
	if !h.decodeBody(w, r, &req) {
		return
	}

	session, err := h.store.Get(r.PathValue("id"))
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	result, err := h.exporters.ExportWithTimeout(session.Document, export.Request{
		Format:       req.Format,
		FilenameHint: session.Name,
	}, h.exportTimeout)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	w.Header().Set("Content-Type", result.MediaType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", result.Filename))
	if _, err := w.Write(result.Content); err != nil {
		return
	}
}

// HandleDownloadArchive streams the session as a portable archive.
func (h *Handler) HandleDownloadArchive(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("id")
	data, err := h.store.ExportArchive(sessionID)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", sessionID+".reflow-session"))
	if _, err := w.Write(data); err != nil {
		return
	}
}

// HandleImportArchive restores a session from an uploaded archive. The
// imported session gets fresh identities, so importing the same archive
// twice yields two sessions.
func (h *Handler) HandleImportArchive(w http.ResponseWriter, r *http.Request) {
	file, _, err := r.FormFile("file")
	if err != nil {
		h.writeError(w, "Failed to read file: "+err.Error(), http.StatusBadRequest)
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, 200*1024*1024))
	if err != nil {
		h.writeError(w, "Failed to read archive contents: "+err.Error(), http.StatusInternalServerError)
		return
	}

	session, err := h.store.ImportArchive(data)
	if err != nil {
		h.writeError(w, "Invalid archive: "+err.Error(), http.StatusBadRequest)
		return
	}
	h.writeJSON(w, http.StatusCreated, session)
}

package handlers

import (
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/AleksandrSemykin/reflow-ocr/internal/models"
	"github.com/AleksandrSemykin/reflow-ocr/internal/storage"
)

// maxUploadBytes limits a single page file to 20MB.
const maxUploadBytes = 20 * 1024 * 1024

type rejectedUpload struct {
	Filename string `json:"filename"`
	Reason   string `json:"reason"`
}

type uploadResponse struct {
	Session  *models.Session  `json:"session"`
	Rejected []rejectedUpload `json:"rejected,omitempty"`
}

// HandleUploadPages accepts either a multipart form with one or more files
// or a JSON body naming an image URL. Unsupported files are reported back
// without failing the rest of the batch.
func (h *Handler) HandleUploadPages(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("id")

	contentType := r.Header.Get("Content-Type")
	if strings.Contains(contentType, "application/json") {
		h.handleURLUpload(w, r, sessionID)
		return
	}
	h.handleFileUpload(w, r, sessionID)
}

func (h *Handler) handleFileUpload(w http.ResponseWriter, r *http.Request, sessionID string) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		h.writeError(w, "Failed to parse multipart form: "+err.Error(), http.StatusBadRequest)
		return
	}
	if r.MultipartForm == nil {
		h.writeError(w, "No multipart form data", http.StatusBadRequest)
		return
	}
	fileHeaders := r.MultipartForm.File["files"]
	if len(fileHeaders) == 0 {
		fileHeaders = r.MultipartForm.File["file"]
	}
	if len(fileHeaders) == 0 {
		h.writeError(w, "No files in request", http.StatusBadRequest)
		return
	}

	uploads := make([]storage.PageUpload, 0, len(fileHeaders))
	for _, header := range fileHeaders {
		file, err := header.Open()
		if err != nil {
			h.writeError(w, "Failed to read file: "+err.Error(), http.StatusBadRequest)
			return
		}
		data, err := io.ReadAll(io.LimitReader(file, maxUploadBytes+1))
		file.Close()
		if err != nil {
			h.writeError(w, "Failed to read file contents: "+err.Error(), http.StatusInternalServerError)
			return
		}
		if len(data) > maxUploadBytes {
			h.writeError(w, fmt.Sprintf("File %s too large (max 20MB)", header.Filename), http.StatusBadRequest)
			return
		}
		uploads = append(uploads, storage.PageUpload{
			Filename: header.Filename,
			Source:   models.SourceUpload,
			Data:     data,
		})
	}

	h.addPages(w, sessionID, uploads)
}

func (h *Handler) handleURLUpload(w http.ResponseWriter, r *http.Request, sessionID string) {
	var req struct {
		ImageURL string `json:"image_url"`
	}
	if !h.decodeBody(w, r, &req) {
		return
	}
	if req.ImageURL == "" {
		h.writeError(w, "image_url is required", http.StatusBadRequest)
		return
	}

	data, _, err := h.fetcher.Fetch(r.Context(), req.ImageURL)
	if err != nil {
		h.writeError(w, "Failed to fetch image URL: "+err.Error(), http.StatusBadRequest)
		return
	}

	filename := req.ImageURL
	if idx := strings.LastIndex(filename, "/"); idx >= 0 {
		filename = filename[idx+1:]
	}
	if filename == "" {
		filename = "page"
	}

	h.addPages(w, sessionID, []storage.PageUpload{{
		Filename: filename,
		Source:   models.SourceURL,
		Data:     data,
	}})
}

func (h *Handler) addPages(w http.ResponseWriter, sessionID string, uploads []storage.PageUpload) {
	session, rejectedErrs, err := h.store.AddPages(sessionID, uploads)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	rejected := make([]rejectedUpload, 0, len(rejectedErrs))
	for _, rej := range rejectedErrs {
		rejected = append(rejected, rejectedUpload{Filename: rej.Filename, Reason: rej.Err.Error()})
	}
	if len(uploads) > 0 && len(rejected) == len(uploads) {
		h.writeJSON(w, http.StatusBadRequest, uploadResponse{Session: session, Rejected: rejected})
		return
	}
	h.writeJSON(w, http.StatusOK, uploadResponse{Session: session, Rejected: rejected})
}

func (h *Handler) HandleReorderPages(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Order []string `json:"order"`
	}
	if !h.decodeBody(w, r, &req) {
		return
	}
	session, err := h.store.ReorderPages(r.PathValue("id"), req.Order)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, session)
}

func (h *Handler) HandleDeletePage(w http.ResponseWriter, r *http.Request) {
	session, err := h.store.RemovePage(r.PathValue("id"), r.PathValue("pageID"))
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, session)
}

func (h *Handler) HandlePageImage(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("id")
	pageID := r.PathValue("pageID")

	session, err := h.store.Get(sessionID)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	page, ok := session.PageByID(pageID)
	if !ok {
		h.writeError(w, "Page not found", http.StatusNotFound)
		return
	}
	data, err := h.store.ReadPage(sessionID, pageID)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	if page.Metadata.MimeType != "" {
		w.Header().Set("Content-Type", page.Metadata.MimeType)
	}
	if _, err := w.Write(data); err != nil {
		// Client went away mid-transfer; nothing to recover.
		return
	}
}

package handlers

import (
	"net/http"

	"github.com/AleksandrSemykin/reflow-ocr/internal/storage"
)

type createSessionRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

func (h *Handler) HandleListSessions(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.store.List())
}

func (h *Handler) HandleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if !h.decodeBody(w, r, &req) {
		return
	}
	session := h.store.Create(req.Name, req.Description)
	h.writeJSON(w, http.StatusCreated, session)
}

func (h *Handler) HandleGetSession(w http.ResponseWriter, r *http.Request) {
	session, err := h.store.Get(r.PathValue("id"))
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, session)
}

func (h *Handler) HandleUpdateSession(w http.ResponseWriter, r *http.Request) {
	var req storage.UpdateRequest
	if !h.decodeBody(w, r, &req) {
		return
	}
	session, err := h.store.Update(r.PathValue("id"), req)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, session)
}

func (h *Handler) HandleDeleteSession(w http.ResponseWriter, r *http.Request) {
	if err := h.store.Delete(r.PathValue("id")); err != nil {
		h.writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

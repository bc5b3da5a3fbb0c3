package handlers

import "net/http"

// HandleRecognize starts a recognition run and hands back its id. A session
// with a run already in flight answers 409.
func (h *Handler) HandleRecognize(w http.ResponseWriter, r *http.Request) {
	runID, err := h.pipeline.Start(r.PathValue("id"))
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	h.writeJSON(w, http.StatusAccepted, map[string]string{"runId": runID})
}

// HandleCancelRecognition requests cooperative cancellation. With no run in
// flight it reports cancelled=false rather than failing, so clients can
// cancel blindly on navigation.
func (h *Handler) HandleCancelRecognition(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("id")
	if _, err := h.store.Get(sessionID); err != nil {
		h.writeDomainError(w, err)
		return
	}
	cancelled := h.pipeline.Cancel(sessionID)
	h.writeJSON(w, http.StatusOK, map[string]bool{"cancelled": cancelled})
}

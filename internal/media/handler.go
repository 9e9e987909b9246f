package media

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"
)

type Handler struct {
	service      Service
	respondJSON  func(w http.ResponseWriter, status int, payload interface{})
	respondError func(w http.ResponseWriter, status int, message string, errors ...[]string)
}

func NewHandler(
	service Service,
	respondJSON func(w http.ResponseWriter, status int, payload interface{}),
	respondError func(w http.ResponseWriter, status int, message string, errors ...[]string),
) *Handler {
	if service == nil || respondJSON == nil || respondError == nil {
		panic("Service and response functions must not be nil")
	}
	return &Handler{
		service:      service,
		respondJSON:  respondJSON,
		respondError: respondError,
	}
}

func (h *Handler) HandleRegisterMedia(w http.ResponseWriter, r *http.Request) {
	var req RegisterMediaRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	m, err := h.service.RegisterMedia(r.Context(), req)
	if err != nil {
		if errors.Is(err, ErrInvalidMediaData) {
			h.respondError(w, http.StatusBadRequest, "Media URL and storage ID are required")
			return
		}
		h.respondError(w, http.StatusInternalServerError, "Could not register media")
		return
	}

	h.respondJSON(w, http.StatusCreated, map[string]interface{}{
		"status": "success",
		"data":   m,
	})
}

func (h *Handler) HandleGetMedia(w http.ResponseWriter, r *http.Request) {
	mediaID, err := uuid.Parse(r.PathValue("mediaID"))
	if err != nil {
		h.respondError(w, http.StatusBadRequest, "Invalid media ID")
		return
	}

	m, err := h.service.GetMedia(r.Context(), mediaID)
	if err != nil {
		if errors.Is(err, ErrMediaNotFound) {
			h.respondError(w, http.StatusNotFound, "Media not found")
			return
		}
		h.respondError(w, http.StatusInternalServerError, "Could not fetch media")
		return
	}

	h.respondJSON(w, http.StatusOK, map[string]interface{}{
		"status": "success",
		"data":   m,
	})
}

// HandleResolveMedia returns the media records for a comma separated ids
// query param. Gallery clients use it to turn image ids into URLs.
func (h *Handler) HandleResolveMedia(w http.ResponseWriter, r *http.Request) {
	rawIDs := r.URL.Query().Get("ids")
	if rawIDs == "" {
		h.respondError(w, http.StatusBadRequest, "Query param 'ids' is required")
		return
	}

	var ids []uuid.UUID
	for _, raw := range strings.Split(rawIDs, ",") {
		id, err := uuid.Parse(strings.TrimSpace(raw))
		if err != nil {
			h.respondError(w, http.StatusBadRequest, "Invalid media ID: "+raw)
			return
		}
		ids = append(ids, id)
	}

	result, err := h.service.ResolveMedia(r.Context(), ids)
	if err != nil {
		h.respondError(w, http.StatusInternalServerError, "Could not fetch media")
		return
	}

	h.respondJSON(w, http.StatusOK, map[string]interface{}{
		"status": "success",
		"data":   result,
	})
}

func (h *Handler) HandleDeleteMedia(w http.ResponseWriter, r *http.Request) {
	mediaID, err := uuid.Parse(r.PathValue("mediaID"))
	if err != nil {
		h.respondError(w, http.StatusBadRequest, "Invalid media ID")
		return
	}

	if err := h.service.RemoveMedia(r.Context(), mediaID); err != nil {
		h.respondError(w, http.StatusInternalServerError, "Could not delete media")
		return
	}

	h.respondJSON(w, http.StatusOK, map[string]string{
		"status": "success",
	})
}

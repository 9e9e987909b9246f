package wallet

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
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

func (h *Handler) getUserIDReq(w http.ResponseWriter, r *http.Request) string {
	userID, ok := r.Context().Value("userID").(string)
	if !ok {
		h.respondError(w, http.StatusUnauthorized, "Unauthorized")
		return ""
	}
	return userID
}

func (h *Handler) HandleGetBalance(w http.ResponseWriter, r *http.Request) {
	userID := h.getUserIDReq(w, r)
	if userID == "" {
		return
	}

	summary, err := h.service.Balance(r.Context(), userID)
	if err != nil {
		h.respondError(w, http.StatusInternalServerError, "Failed to retrieve wallet balance")
		return
	}

	h.respondJSON(w, http.StatusOK, map[string]interface{}{
		"status": "success",
		"data":   summary,
	})
}

// HandleGetHistory returns the full ledger, or the last 3 or 6 months when
// the months query parameter is present.
func (h *Handler) HandleGetHistory(w http.ResponseWriter, r *http.Request) {
	userID := h.getUserIDReq(w, r)
	if userID == "" {
		return
	}

	var (
		entries []Entry
		err     error
	)
	if monthsParam := r.URL.Query().Get("months"); monthsParam != "" {
		months, convErr := strconv.Atoi(monthsParam)
		if convErr != nil {
			h.respondError(w, http.StatusBadRequest, "Months must be 3 or 6")
			return
		}
		entries, err = h.service.HistoryMonths(r.Context(), userID, months)
	} else {
		entries, err = h.service.History(r.Context(), userID)
	}
	if err != nil {
		if errors.Is(err, ErrInvalidPeriod) {
			h.respondError(w, http.StatusBadRequest, "Months must be 3 or 6")
			return
		}
		h.respondError(w, http.StatusInternalServerError, "Failed to retrieve wallet history")
		return
	}

	h.respondJSON(w, http.StatusOK, map[string]interface{}{
		"status": "success",
		"data":   entries,
	})
}

func (h *Handler) HandleWithdraw(w http.ResponseWriter, r *http.Request) {
	userID := h.getUserIDReq(w, r)
	if userID == "" {
		return
	}

	var req struct {
		Amount float64 `json:"amount"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	entry, err := h.service.Debit(r.Context(), userID, req.Amount)
	if err != nil {
		switch {
		case errors.Is(err, ErrInvalidAmount):
			h.respondError(w, http.StatusBadRequest, "Amount must be greater than zero")
		case errors.Is(err, ErrInsufficientFunds):
			h.respondError(w, http.StatusConflict, "Insufficient wallet funds")
		default:
			h.respondError(w, http.StatusInternalServerError, "Failed to withdraw from wallet")
		}
		return
	}

	h.respondJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "success",
		"message": "Withdrawal recorded successfully.",
		"data":    entry,
	})
}

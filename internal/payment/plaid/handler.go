package plaid

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"
)

type Handler struct {
	service      BankService
	respondJSON  func(w http.ResponseWriter, status int, payload interface{})
	respondError func(w http.ResponseWriter, status int, message string, errors ...[]string)
}

func NewHandler(
	service BankService,
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

func (h *Handler) HandleCreateLinkToken(w http.ResponseWriter, r *http.Request) {
	userID := h.getUserIDReq(w, r)
	if userID == "" {
		return
	}

	token, err := h.service.CreateLinkToken(r.Context(), userID)
	if err != nil {
		h.respondError(w, http.StatusBadGateway, "Failed to create link token")
		return
	}

	h.respondJSON(w, http.StatusOK, map[string]interface{}{
		"status": "success",
		"data":   token,
	})
}

func (h *Handler) HandleLinkBankAccount(w http.ResponseWriter, r *http.Request) {
	userID := h.getUserIDReq(w, r)
	if userID == "" {
		return
	}

	var req struct {
		PublicToken string `json:"publicToken"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.PublicToken == "" {
		h.respondError(w, http.StatusBadRequest, "Public token is required")
		return
	}

	accounts, err := h.service.LinkBankAccount(r.Context(), userID, req.PublicToken)
	if err != nil {
		h.respondError(w, http.StatusBadGateway, "Failed to link bank account")
		return
	}

	h.respondJSON(w, http.StatusCreated, map[string]interface{}{
		"status":  "success",
		"message": "Bank account linked successfully.",
		"data":    accounts,
	})
}

func (h *Handler) HandleListBankAccounts(w http.ResponseWriter, r *http.Request) {
	userID := h.getUserIDReq(w, r)
	if userID == "" {
		return
	}

	accounts, err := h.service.ListBankAccounts(r.Context(), userID)
	if err != nil {
		h.respondError(w, http.StatusInternalServerError, "Failed to retrieve bank accounts")
		return
	}

	h.respondJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "success",
		"message": "Bank accounts retrieved successfully.",
		"data":    accounts,
	})
}

func (h *Handler) HandleRemoveBankAccount(w http.ResponseWriter, r *http.Request) {
	userID := h.getUserIDReq(w, r)
	if userID == "" {
		return
	}

	accountID, err := uuid.Parse(r.PathValue("bankAccountID"))
	if err != nil {
		h.respondError(w, http.StatusNotFound, "Bank account not found")
		return
	}

	if err := h.service.RemoveBankAccount(r.Context(), accountID, userID); err != nil {
		if errors.Is(err, ErrBankAccountNotFound) {
			h.respondError(w, http.StatusNotFound, "Bank account not found")
			return
		}
		h.respondError(w, http.StatusInternalServerError, "Failed to remove bank account")
		return
	}

	h.respondJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "success",
		"message": "Bank account removed successfully.",
	})
}

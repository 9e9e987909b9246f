package orders

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"

	payments "github.com/homevest/backend/internal/payment"
	"github.com/homevest/backend/internal/payment/plaid"
	portfolios "github.com/homevest/backend/internal/portfolio"
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

func (h *Handler) HandleAddToCart(w http.ResponseWriter, r *http.Request) {
	userID := h.getUserIDReq(w, r)
	if userID == "" {
		return
	}

	var req struct {
		PortfolioID string `json:"portfolioId"`
		Shares      int    `json:"shares"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	portfolioID, err := uuid.Parse(req.PortfolioID)
	if err != nil {
		h.respondError(w, http.StatusNotFound, "Portfolio not found")
		return
	}

	cart, err := h.service.AddToCart(r.Context(), userID, portfolioID, req.Shares)
	if err != nil {
		switch {
		case errors.Is(err, ErrInvalidQuantity):
			h.respondError(w, http.StatusBadRequest, "Share quantity must be greater than 0")
		case errors.Is(err, portfolios.ErrPortfolioNotFound):
			h.respondError(w, http.StatusNotFound, "Portfolio not found")
		case errors.Is(err, portfolios.ErrInsufficientShares):
			h.respondError(w, http.StatusConflict, "Not enough remaining shares")
		default:
			h.respondError(w, http.StatusInternalServerError, "Failed to add to cart")
		}
		return
	}

	h.respondJSON(w, http.StatusCreated, map[string]interface{}{
		"status":  "success",
		"message": "Cart updated successfully.",
		"data":    cart,
	})
}

func (h *Handler) HandleUpdateQuantity(w http.ResponseWriter, r *http.Request) {
	userID := h.getUserIDReq(w, r)
	if userID == "" {
		return
	}

	var req struct {
		Action string `json:"action"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	view, err := h.service.UpdateQuantity(r.Context(), userID, req.Action)
	if err != nil {
		switch {
		case errors.Is(err, ErrCartNotFound):
			h.respondError(w, http.StatusNotFound, "Cart is empty")
		case errors.Is(err, ErrInvalidAction):
			h.respondError(w, http.StatusBadRequest, "Action must be INCREMENT or DECREMENT")
		case errors.Is(err, ErrInvalidQuantity):
			h.respondError(w, http.StatusBadRequest, "Share quantity cannot drop below 1")
		case errors.Is(err, portfolios.ErrInsufficientShares):
			h.respondError(w, http.StatusConflict, "Not enough remaining shares")
		default:
			h.respondError(w, http.StatusInternalServerError, "Failed to update cart")
		}
		return
	}

	h.respondJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "success",
		"message": "Cart updated successfully.",
		"data":    view,
	})
}

func (h *Handler) HandleGetCart(w http.ResponseWriter, r *http.Request) {
	userID := h.getUserIDReq(w, r)
	if userID == "" {
		return
	}

	view, err := h.service.GetCart(r.Context(), userID)
	if err != nil {
		if errors.Is(err, ErrCartNotFound) {
			h.respondError(w, http.StatusNotFound, "Cart is empty")
			return
		}
		h.respondError(w, http.StatusInternalServerError, "Failed to retrieve cart")
		return
	}

	h.respondJSON(w, http.StatusOK, map[string]interface{}{
		"status": "success",
		"data":   view,
	})
}

func (h *Handler) HandleAttachBankAccount(w http.ResponseWriter, r *http.Request) {
	userID := h.getUserIDReq(w, r)
	if userID == "" {
		return
	}

	var req struct {
		BankAccountID string `json:"bankAccountId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	bankAccountID, err := uuid.Parse(req.BankAccountID)
	if err != nil {
		h.respondError(w, http.StatusNotFound, "Bank account not found")
		return
	}

	if err := h.service.AttachBankAccount(r.Context(), userID, bankAccountID); err != nil {
		switch {
		case errors.Is(err, plaid.ErrBankAccountNotFound):
			h.respondError(w, http.StatusNotFound, "Bank account not found")
		case errors.Is(err, ErrCartNotFound):
			h.respondError(w, http.StatusNotFound, "Cart is empty")
		default:
			h.respondError(w, http.StatusInternalServerError, "Failed to attach bank account")
		}
		return
	}

	h.respondJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "success",
		"message": "Bank account attached successfully.",
	})
}

func (h *Handler) HandleRemoveCart(w http.ResponseWriter, r *http.Request) {
	userID := h.getUserIDReq(w, r)
	if userID == "" {
		return
	}

	if err := h.service.RemoveCart(r.Context(), userID); err != nil {
		h.respondError(w, http.StatusInternalServerError, "Failed to remove cart")
		return
	}

	h.respondJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "success",
		"message": "Cart removed successfully.",
	})
}

func (h *Handler) HandleCheckout(w http.ResponseWriter, r *http.Request) {
	userID := h.getUserIDReq(w, r)
	if userID == "" {
		return
	}

	var req struct {
		Provider string `json:"provider"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	result, err := h.service.Checkout(r.Context(), userID, req.Provider)
	if err != nil {
		switch {
		case errors.Is(err, ErrCartNotFound):
			h.respondError(w, http.StatusNotFound, "Cart is empty")
		case errors.Is(err, payments.ErrUnknownProvider):
			h.respondError(w, http.StatusBadRequest, "Provider must be PLAID or PAYPAL")
		case errors.Is(err, ErrBankAccountRequired):
			h.respondError(w, http.StatusBadRequest, "Bank account must be attached for transfers")
		case errors.Is(err, portfolios.ErrInsufficientShares):
			h.respondError(w, http.StatusConflict, "Not enough remaining shares")
		default:
			h.respondError(w, http.StatusInternalServerError, "Failed to start checkout")
		}
		return
	}

	h.respondJSON(w, http.StatusCreated, map[string]interface{}{
		"status":  "success",
		"message": "Checkout started successfully.",
		"data":    result,
	})
}

func (h *Handler) HandleCompleteOrder(w http.ResponseWriter, r *http.Request) {
	userID := h.getUserIDReq(w, r)
	if userID == "" {
		return
	}

	var req struct {
		Provider string `json:"provider"`
		IntentID string `json:"intentId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.IntentID == "" {
		h.respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	payment, err := h.service.CompleteOrder(r.Context(), userID, req.Provider, req.IntentID)
	if err != nil {
		switch {
		case errors.Is(err, ErrPaymentPending):
			h.respondJSON(w, http.StatusAccepted, map[string]interface{}{
				"status":  "success",
				"message": "Payment is still pending.",
			})
		case errors.Is(err, ErrPaymentFailed):
			h.respondError(w, http.StatusPaymentRequired, "Payment failed")
		case errors.Is(err, ErrIntentForbidden):
			h.respondError(w, http.StatusForbidden, "Forbidden")
		case errors.Is(err, payments.ErrUnknownProvider):
			h.respondError(w, http.StatusBadRequest, "Provider must be PLAID or PAYPAL")
		case errors.Is(err, ErrCartNotFound):
			h.respondError(w, http.StatusNotFound, "Cart is empty")
		case errors.Is(err, portfolios.ErrInsufficientShares):
			h.respondError(w, http.StatusConflict, "Not enough remaining shares")
		default:
			h.respondError(w, http.StatusInternalServerError, "Failed to complete order")
		}
		return
	}

	h.respondJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "success",
		"message": "Order completed successfully.",
		"data":    payment,
	})
}

func (h *Handler) HandleUserCheckouts(w http.ResponseWriter, r *http.Request) {
	userID := h.getUserIDReq(w, r)
	if userID == "" {
		return
	}

	checkouts, err := h.service.UserCheckouts(r.Context(), userID)
	if err != nil {
		h.respondError(w, http.StatusInternalServerError, "Failed to retrieve checkouts")
		return
	}

	h.respondJSON(w, http.StatusOK, map[string]interface{}{
		"status": "success",
		"data":   checkouts,
	})
}

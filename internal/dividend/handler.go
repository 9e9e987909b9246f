package dividends

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"

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

func (h *Handler) HandleDistributeDividend(w http.ResponseWriter, r *http.Request) {
	var req struct {
		PortfolioID     string  `json:"portfolioId"`
		NetRentalIncome float64 `json:"netRentalIncome"`
		Expenses        float64 `json:"expenses"`
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

	distribution, err := h.service.Distribute(r.Context(), portfolioID, req.NetRentalIncome, req.Expenses)
	if err != nil {
		switch {
		case errors.Is(err, ErrInvalidRevenue):
			h.respondError(w, http.StatusBadRequest, "Total revenue must be greater than zero")
		case errors.Is(err, portfolios.ErrPortfolioNotFound):
			h.respondError(w, http.StatusNotFound, "Portfolio not found")
		case errors.Is(err, ErrNoEligibleInvestments):
			h.respondError(w, http.StatusConflict, "No investments were found for this portfolio")
		default:
			h.respondError(w, http.StatusInternalServerError, "Failed to distribute dividend")
		}
		return
	}

	h.respondJSON(w, http.StatusCreated, map[string]interface{}{
		"status":  "success",
		"message": "Dividend distributed successfully.",
		"data":    distribution,
	})
}

func (h *Handler) HandlePortfolioDividends(w http.ResponseWriter, r *http.Request) {
	portfolioID := r.Context().Value("portfolioID").(uuid.UUID)

	dividendsList, err := h.service.PortfolioDividends(r.Context(), portfolioID)
	if err != nil {
		h.respondError(w, http.StatusInternalServerError, "Failed to retrieve dividends")
		return
	}

	h.respondJSON(w, http.StatusOK, map[string]interface{}{
		"status": "success",
		"data":   dividendsList,
	})
}

func (h *Handler) HandleUserDividendTotal(w http.ResponseWriter, r *http.Request) {
	userID := h.getUserIDReq(w, r)
	if userID == "" {
		return
	}

	total, err := h.service.UserDividendTotal(r.Context(), userID)
	if err != nil {
		h.respondError(w, http.StatusInternalServerError, "Failed to retrieve dividend total")
		return
	}

	h.respondJSON(w, http.StatusOK, map[string]interface{}{
		"status": "success",
		"data":   map[string]float64{"total_dividends": total},
	})
}

func (h *Handler) HandleUserDividends(w http.ResponseWriter, r *http.Request) {
	userID := h.getUserIDReq(w, r)
	if userID == "" {
		return
	}

	dividendsList, err := h.service.UserDividends(r.Context(), userID)
	if err != nil {
		h.respondError(w, http.StatusInternalServerError, "Failed to retrieve dividends")
		return
	}

	h.respondJSON(w, http.StatusOK, map[string]interface{}{
		"status": "success",
		"data":   dividendsList,
	})
}

package portfolios

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

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

func capitalizeFirstLetter(s string) string {
	if len(s) == 0 {
		return s
	}
	return strings.ToUpper(string(s[0])) + s[1:]
}

func (h *Handler) ValidatePortfolioPathParamsMiddleware(next http.Handler, params ...string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		for _, param := range params {
			paramValue := r.PathValue(param)
			if paramValue == "" {
				h.respondError(w, http.StatusBadRequest, capitalizeFirstLetter(fmt.Sprintf("%s is required", param)))
				return
			}

			parsedUUID, err := uuid.Parse(paramValue)
			if err != nil {
				switch param {
				case "portfolioID":
					h.respondError(w, http.StatusNotFound, "Portfolio not found")
				default:
					h.respondError(w, http.StatusBadRequest, capitalizeFirstLetter(fmt.Sprintf("Invalid %s format", param)))
				}
				return
			}
			r = r.WithContext(context.WithValue(r.Context(), param, parsedUUID))
		}
		next.ServeHTTP(w, r)
	})
}

type portfolioResponse struct {
	ID                  string     `json:"id"`
	Title               string     `json:"title"`
	Slug                string     `json:"slug"`
	Description         string     `json:"description"`
	Address             string     `json:"address"`
	Shares              int        `json:"shares"`
	SharePrice          float64    `json:"sharePrice"`
	RemainingShares     int        `json:"remainingShares"`
	RemainingInvestment float64    `json:"remainingInvestment"`
	FeaturedImageID     *uuid.UUID `json:"featuredImageId"`
	Status              string     `json:"status"`
	CreatedAt           time.Time  `json:"createdAt"`
	UpdatedAt           time.Time  `json:"updatedAt"`
}

func newPortfolioResponse(p *Portfolio) portfolioResponse {
	return portfolioResponse{
		ID:                  p.ID.String(),
		Title:               p.Title,
		Slug:                p.Slug,
		Description:         p.Description,
		Address:             p.Address,
		Shares:              p.Shares,
		SharePrice:          p.SharePrice,
		RemainingShares:     p.RemainingShares,
		RemainingInvestment: p.RemainingInvestment,
		FeaturedImageID:     p.FeaturedImageID,
		Status:              p.Status,
		CreatedAt:           p.CreatedAt,
		UpdatedAt:           p.UpdatedAt,
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

func (h *Handler) HandleCreatePortfolio(w http.ResponseWriter, r *http.Request) {
	userID := h.getUserIDReq(w, r)
	if userID == "" {
		return
	}

	var req CreatePortfolioRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	portfolio, err := h.service.CreatePortfolio(r.Context(), userID, req)
	if err != nil {
		if errors.Is(err, ErrInvalidPortfolioData) {
			h.respondError(w, http.StatusBadRequest, "Title, shares and share price are required")
			return
		}
		h.respondError(w, http.StatusInternalServerError, "Failed to create portfolio")
		return
	}

	h.respondJSON(w, http.StatusCreated, map[string]interface{}{
		"status":  "success",
		"message": "Portfolio successfully created.",
		"data":    newPortfolioResponse(portfolio),
	})
}

func (h *Handler) HandleUpdatePortfolio(w http.ResponseWriter, r *http.Request) {
	userID := h.getUserIDReq(w, r)
	if userID == "" {
		return
	}
	portfolioID := r.Context().Value("portfolioID").(uuid.UUID)

	var req UpdatePortfolioRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	portfolio, err := h.service.UpdatePortfolio(r.Context(), portfolioID, req)
	if err != nil {
		if errors.Is(err, ErrPortfolioNotFound) {
			h.respondError(w, http.StatusNotFound, "Portfolio not found")
			return
		}
		if errors.Is(err, ErrInvalidPortfolioData) {
			h.respondError(w, http.StatusBadRequest, "Title and share price are required")
			return
		}
		h.respondError(w, http.StatusInternalServerError, "Failed to update portfolio")
		return
	}

	h.respondJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "success",
		"message": "Portfolio successfully updated.",
		"data":    newPortfolioResponse(portfolio),
	})
}

func (h *Handler) HandleGetPortfolio(w http.ResponseWriter, r *http.Request) {
	portfolioID := r.Context().Value("portfolioID").(uuid.UUID)

	portfolio, err := h.service.GetPortfolioByID(r.Context(), portfolioID)
	if err != nil {
		if errors.Is(err, ErrPortfolioNotFound) {
			h.respondError(w, http.StatusNotFound, "Portfolio not found")
			return
		}
		h.respondError(w, http.StatusInternalServerError, "Failed to retrieve portfolio")
		return
	}

	h.respondJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "success",
		"message": "Portfolio retrieved successfully.",
		"data":    newPortfolioResponse(portfolio),
	})
}

func (h *Handler) HandleGetPortfolioBySlug(w http.ResponseWriter, r *http.Request) {
	slug := r.PathValue("slug")
	if slug == "" {
		h.respondError(w, http.StatusBadRequest, "Slug is required")
		return
	}

	portfolio, err := h.service.GetPortfolioBySlug(r.Context(), slug)
	if err != nil {
		if errors.Is(err, ErrPortfolioNotFound) {
			h.respondError(w, http.StatusNotFound, "Portfolio not found")
			return
		}
		h.respondError(w, http.StatusInternalServerError, "Failed to retrieve portfolio")
		return
	}

	h.respondJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "success",
		"message": "Portfolio retrieved successfully.",
		"data":    newPortfolioResponse(portfolio),
	})
}

func (h *Handler) HandleGetAllPortfolios(w http.ResponseWriter, r *http.Request) {
	portfoliosList, err := h.service.ListPortfolios(r.Context())
	if err != nil {
		h.respondError(w, http.StatusInternalServerError, "Failed to retrieve portfolios list")
		return
	}

	responses := make([]portfolioResponse, 0, len(portfoliosList))
	for i := range portfoliosList {
		responses = append(responses, newPortfolioResponse(&portfoliosList[i]))
	}

	h.respondJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "success",
		"message": "List of portfolios retrieved successfully.",
		"data":    responses,
	})
}

func (h *Handler) HandleDeletePortfolio(w http.ResponseWriter, r *http.Request) {
	userID := h.getUserIDReq(w, r)
	if userID == "" {
		return
	}
	portfolioID := r.Context().Value("portfolioID").(uuid.UUID)

	err := h.service.DeletePortfolio(r.Context(), portfolioID)
	if err != nil {
		if errors.Is(err, ErrPortfolioNotFound) {
			h.respondError(w, http.StatusNotFound, "Portfolio not found")
			return
		}
		if errors.Is(err, ErrPortfolioHasInvestors) {
			h.respondError(w, http.StatusConflict, "Portfolio with investments cannot be deleted")
			return
		}
		h.respondError(w, http.StatusInternalServerError, "Failed to delete portfolio")
		return
	}

	h.respondJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "success",
		"message": "Portfolio deleted successfully.",
	})
}

func (h *Handler) HandleGetGalleryImages(w http.ResponseWriter, r *http.Request) {
	portfolioID := r.Context().Value("portfolioID").(uuid.UUID)

	images, err := h.service.GalleryImages(r.Context(), portfolioID)
	if err != nil {
		h.respondError(w, http.StatusInternalServerError, "Failed to retrieve gallery images")
		return
	}

	h.respondJSON(w, http.StatusOK, map[string]interface{}{
		"status": "success",
		"data":   images,
	})
}

package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/finxlab/finx/internal/apperrors"
	"github.com/finxlab/finx/internal/handlers/render"
	"github.com/finxlab/finx/internal/handlers/userctx"
	"github.com/finxlab/finx/internal/logger"
	"github.com/finxlab/finx/internal/models"
	"github.com/finxlab/finx/internal/service/portfolio"
)

type portfolioService interface {
	Create(ctx context.Context, userID uuid.UUID, name string, description string, currency string) (models.Portfolio, error)
	Get(ctx context.Context, userID uuid.UUID, portfolioID uuid.UUID) (models.Portfolio, error)
	List(ctx context.Context, userID uuid.UUID) ([]models.Portfolio, error)
	RecentTrades(ctx context.Context, userID uuid.UUID, portfolioID uuid.UUID) ([]models.Trade, error)
	CreateTrade(ctx context.Context, userID uuid.UUID, portfolioID uuid.UUID, input portfolio.TradeInput) (models.Trade, error)
}

type PortfolioHandler struct {
	portfolios portfolioService
	logger     logger.Logger
}

func NewPortfolio(portfolios portfolioService, logger logger.Logger) *PortfolioHandler {
	return &PortfolioHandler{portfolios: portfolios, logger: logger}
}

func (h *PortfolioHandler) Create(w http.ResponseWriter, r *http.Request) {
	type CreateRequest struct {
		Name        string `json:"name" validate:"required,max=100"`
		Description string `json:"description" validate:"omitempty,max=500"`
		Currency    string `json:"currency" validate:"omitempty,len=3"`
	}

	user, ok := userctx.FromContext(r.Context())
	if !ok {
		render.ServiceError(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	data, err := render.BindAndValidate[CreateRequest](w, r)
	if err != nil {
		return
	}

	created, err := h.portfolios.Create(r.Context(), user.ID, data.Name, data.Description, data.Currency)
	if err != nil {
		h.logger.Error("Failed to create portfolio", "error", err, "user_id", user.ID)
		render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	render.JSONWithStatus(w, created, http.StatusCreated)
}

func (h *PortfolioHandler) List(w http.ResponseWriter, r *http.Request) {
	user, ok := userctx.FromContext(r.Context())
	if !ok {
		render.ServiceError(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	portfolios, err := h.portfolios.List(r.Context(), user.ID)
	if err != nil {
		h.logger.Error("Failed to list portfolios", "error", err, "user_id", user.ID)
		render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	render.JSON(w, portfolios)
}

func (h *PortfolioHandler) Get(w http.ResponseWriter, r *http.Request) {
	user, ok := userctx.FromContext(r.Context())
	if !ok {
		render.ServiceError(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	portfolioID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		render.ServiceError(w, "Invalid portfolio id", http.StatusBadRequest)
		return
	}

	p, err := h.portfolios.Get(r.Context(), user.ID, portfolioID)
	if err != nil {
		switch {
		case errors.Is(err, apperrors.ErrPortfolioNotFound):
			render.ServiceError(w, "Portfolio not found", http.StatusNotFound)
		default:
			h.logger.Error("Failed to fetch portfolio", "error", err, "portfolio_id", portfolioID)
			render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
		}
		return
	}

	render.JSON(w, p)
}

func (h *PortfolioHandler) RecentTrades(w http.ResponseWriter, r *http.Request) {
	user, ok := userctx.FromContext(r.Context())
	if !ok {
		render.ServiceError(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	portfolioID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		render.ServiceError(w, "Invalid portfolio id", http.StatusBadRequest)
		return
	}

	trades, err := h.portfolios.RecentTrades(r.Context(), user.ID, portfolioID)
	if err != nil {
		switch {
		case errors.Is(err, apperrors.ErrPortfolioNotFound):
			render.ServiceError(w, "Portfolio not found", http.StatusNotFound)
		default:
			h.logger.Error("Failed to list trades", "error", err, "portfolio_id", portfolioID)
			render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
		}
		return
	}

	render.JSON(w, trades)
}

func (h *PortfolioHandler) CreateTrade(w http.ResponseWriter, r *http.Request) {
	type TradeRequest struct {
		Symbol     string          `json:"symbol" validate:"required,max=10"`
		Type       string          `json:"type" validate:"required,oneof=BUY SELL"`
		Quantity   decimal.Decimal `json:"quantity" validate:"required"`
		Price      decimal.Decimal `json:"price" validate:"required"`
		Fees       decimal.Decimal `json:"fees"`
		ExecutedAt time.Time       `json:"executedAt"`
		Notes      string          `json:"notes" validate:"omitempty,max=500"`
	}

	user, ok := userctx.FromContext(r.Context())
	if !ok {
		render.ServiceError(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	portfolioID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		render.ServiceError(w, "Invalid portfolio id", http.StatusBadRequest)
		return
	}

	data, err := render.BindAndValidate[TradeRequest](w, r)
	if err != nil {
		return
	}

	// validator tags can't see inside decimal.Decimal, check signs by hand
	if !data.Quantity.IsPositive() || !data.Price.IsPositive() || data.Fees.IsNegative() {
		render.ServiceError(w, "Quantity and price must be positive, fees non-negative", http.StatusBadRequest)
		return
	}

	trade, err := h.portfolios.CreateTrade(r.Context(), user.ID, portfolioID, portfolio.TradeInput{
		Symbol:     data.Symbol,
		Type:       data.Type,
		Quantity:   data.Quantity,
		Price:      data.Price,
		Fees:       data.Fees,
		ExecutedAt: data.ExecutedAt,
		Notes:      data.Notes,
	})
	if err != nil {
		switch {
		case errors.Is(err, apperrors.ErrPortfolioNotFound):
			render.ServiceError(w, "Portfolio not found", http.StatusNotFound)
		default:
			h.logger.Error("Failed to create trade", "error", err, "portfolio_id", portfolioID)
			render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
		}
		return
	}

	render.JSONWithStatus(w, trade, http.StatusCreated)
}

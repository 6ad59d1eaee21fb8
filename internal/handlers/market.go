package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/finxlab/finx/internal/apperrors"
	"github.com/finxlab/finx/internal/handlers/render"
	"github.com/finxlab/finx/internal/logger"
	"github.com/finxlab/finx/internal/models"
)

type marketService interface {
	Quote(ctx context.Context, symbol string) (models.MarketQuote, error)
	Quotes(ctx context.Context, symbols []string) ([]models.MarketQuote, error)
	Symbols(ctx context.Context) ([]string, error)
	Search(ctx context.Context, query string) ([]models.MarketQuote, error)
}

type MarketHandler struct {
	market marketService
	logger logger.Logger
}

func NewMarket(market marketService, logger logger.Logger) *MarketHandler {
	return &MarketHandler{market: market, logger: logger}
}

// Quotes serves GET /api/market/quotes?symbols=AAPL,MSFT
func (h *MarketHandler) Quotes(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("symbols")
	if raw == "" {
		render.ServiceError(w, "Query parameter 'symbols' is required", http.StatusBadRequest)
		return
	}

	quotes, err := h.market.Quotes(r.Context(), strings.Split(raw, ","))
	if err != nil {
		h.logger.Error("Failed to fetch quotes", "error", err)
		render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	render.JSON(w, quotes)
}

// Quote serves GET /api/market/quote/{symbol}
func (h *MarketHandler) Quote(w http.ResponseWriter, r *http.Request) {
	symbol := r.PathValue("symbol")

	quote, err := h.market.Quote(r.Context(), symbol)
	if err != nil {
		switch {
		case errors.Is(err, apperrors.ErrQuoteNotFound):
			render.ServiceError(w, "Unknown symbol", http.StatusNotFound)
		default:
			h.logger.Error("Failed to fetch quote", "error", err, "symbol", symbol)
			render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
		}
		return
	}

	render.JSON(w, quote)
}

// Search serves GET /api/market/search?q=apple
func (h *MarketHandler) Search(w http.ResponseWriter, r *http.Request) {
	query := strings.TrimSpace(r.URL.Query().Get("q"))
	if query == "" {
		render.ServiceError(w, "Query parameter 'q' is required", http.StatusBadRequest)
		return
	}

	quotes, err := h.market.Search(r.Context(), query)
	if err != nil {
		h.logger.Error("Failed to search quotes", "error", err)
		render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	render.JSON(w, quotes)
}

// Symbols serves GET /api/market/symbols
func (h *MarketHandler) Symbols(w http.ResponseWriter, r *http.Request) {
	symbols, err := h.market.Symbols(r.Context())
	if err != nil {
		h.logger.Error("Failed to list symbols", "error", err)
		render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	render.JSON(w, symbols)
}

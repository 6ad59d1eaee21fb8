package portfolio

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/finxlab/finx/internal/logger"
	"github.com/finxlab/finx/internal/models"
	"github.com/finxlab/finx/internal/repository"
)

const recentTradesLimit = 5

// publisher announces portfolio changes to live subscribers
type publisher interface {
	PublishPortfolio(ctx context.Context, data any) error
}

type PortfolioService struct {
	storage repository.Storage
	events  publisher
	logger  logger.Logger
}

// PortfolioUpdate is the payload fanned out after a mutation.
// PortfolioID doubles as the routing key.
type PortfolioUpdate struct {
	PortfolioID string          `json:"portfolioId"`
	TotalValue  decimal.Decimal `json:"totalValue"`
	TradesCount int             `json:"tradesCount,omitempty"`
}

func NewService(storage repository.Storage, events publisher, log logger.Logger) *PortfolioService {
	return &PortfolioService{
		storage: storage,
		events:  events,
		logger:  log,
	}
}

func (s *PortfolioService) Create(ctx context.Context, userID uuid.UUID, name string, description string, currency string) (models.Portfolio, error) {
	if currency == "" {
		currency = "USD"
	}

	p, err := s.storage.Portfolio().CreatePortfolio(ctx, models.Portfolio{
		UserID:      userID,
		Name:        name,
		Description: description,
		Currency:    strings.ToUpper(currency),
	})
	if err != nil {
		return p, fmt.Errorf("can't create portfolio. Err: %w", err)
	}

	return p, nil
}

func (s *PortfolioService) Get(ctx context.Context, userID uuid.UUID, portfolioID uuid.UUID) (models.Portfolio, error) {
	return s.storage.Portfolio().GetPortfolio(ctx, userID, portfolioID)
}

func (s *PortfolioService) List(ctx context.Context, userID uuid.UUID) ([]models.Portfolio, error) {
	return s.storage.Portfolio().ListPortfolios(ctx, userID)
}

func (s *PortfolioService) RecentTrades(ctx context.Context, userID uuid.UUID, portfolioID uuid.UUID) ([]models.Trade, error) {
	// Ownership check first: trades must not leak across users
	if _, err := s.storage.Portfolio().GetPortfolio(ctx, userID, portfolioID); err != nil {
		return nil, err
	}

	return s.storage.Portfolio().ListTrades(ctx, portfolioID, recentTradesLimit)
}

type TradeInput struct {
	Symbol     string
	Type       string // models.TradeTypeBuy or models.TradeTypeSell
	Quantity   decimal.Decimal
	Price      decimal.Decimal
	Fees       decimal.Decimal
	ExecutedAt time.Time
	Notes      string
}

// CreateTrade records a trade and applies its value to the portfolio total
// in one transaction, then announces the change to live subscribers
func (s *PortfolioService) CreateTrade(ctx context.Context, userID uuid.UUID, portfolioID uuid.UUID, input TradeInput) (models.Trade, error) {
	var trade models.Trade
	var updated models.Portfolio

	if input.ExecutedAt.IsZero() {
		input.ExecutedAt = time.Now().UTC()
	}

	gross := input.Quantity.Mul(input.Price)

	delta := gross
	if input.Type == models.TradeTypeSell {
		delta = gross.Neg()
	}

	err := s.storage.InTx(ctx, func(st repository.Storage) error {
		// Ownership check inside the tx so the trade and the check see the
		// same snapshot
		if _, err := st.Portfolio().GetPortfolio(ctx, userID, portfolioID); err != nil {
			return err
		}

		created, err := st.Portfolio().CreateTrade(ctx, models.Trade{
			PortfolioID: portfolioID,
			Symbol:      strings.ToUpper(strings.TrimSpace(input.Symbol)),
			Type:        input.Type,
			Quantity:    input.Quantity,
			Price:       input.Price,
			Fees:        input.Fees,
			TotalValue:  gross.Add(input.Fees),
			ExecutedAt:  input.ExecutedAt,
			Notes:       input.Notes,
		})
		if err != nil {
			return err
		}

		updated, err = st.Portfolio().AddToTotalValue(ctx, portfolioID, delta)
		if err != nil {
			return err
		}

		trade = created
		return nil
	})
	if err != nil {
		return trade, fmt.Errorf("can't create trade. Err: %w", err)
	}

	update := PortfolioUpdate{
		PortfolioID: portfolioID.String(),
		TotalValue:  updated.TotalValue,
	}
	if err := s.events.PublishPortfolio(ctx, update); err != nil {
		s.logger.Error("Failed to publish portfolio update", "error", err, "portfolio_id", portfolioID)
	}

	return trade, nil
}

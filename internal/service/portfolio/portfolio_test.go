package portfolio

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/finxlab/finx/internal/apperrors"
	"github.com/finxlab/finx/internal/logger"
	"github.com/finxlab/finx/internal/models"
	"github.com/finxlab/finx/internal/repository"
)

// fakeStorage keeps portfolios and trades in memory.
// InTx just runs the function on the same storage, commit semantics are
// covered by the postgres tests.
type fakeStorage struct {
	mu         sync.Mutex
	portfolios map[uuid.UUID]models.Portfolio
	trades     map[uuid.UUID][]models.Trade
}

func newFakeStorage() *fakeStorage {
	return &fakeStorage{
		portfolios: make(map[uuid.UUID]models.Portfolio),
		trades:     make(map[uuid.UUID][]models.Trade),
	}
}

func (s *fakeStorage) User() repository.UserRepo            { panic("not used") }
func (s *fakeStorage) Refresh() repository.RefreshTokenRepo { panic("not used") }
func (s *fakeStorage) Market() repository.MarketDataRepo    { panic("not used") }
func (s *fakeStorage) Portfolio() repository.PortfolioRepo  { return s }

func (s *fakeStorage) InTx(ctx context.Context, fn func(repository.Storage) error) error {
	return fn(s)
}

func (s *fakeStorage) CreatePortfolio(ctx context.Context, p models.Portfolio) (models.Portfolio, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p.ID = uuid.New()
	p.CreatedAt = time.Now()
	p.UpdatedAt = p.CreatedAt
	s.portfolios[p.ID] = p
	return p, nil
}

func (s *fakeStorage) GetPortfolio(ctx context.Context, userID uuid.UUID, portfolioID uuid.UUID) (models.Portfolio, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.portfolios[portfolioID]
	if !ok || p.UserID != userID {
		return models.Portfolio{}, apperrors.ErrPortfolioNotFound
	}
	return p, nil
}

func (s *fakeStorage) ListPortfolios(ctx context.Context, userID uuid.UUID) ([]models.Portfolio, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var portfolios []models.Portfolio
	for _, p := range s.portfolios {
		if p.UserID == userID {
			portfolios = append(portfolios, p)
		}
	}
	sort.Slice(portfolios, func(i, j int) bool { return portfolios[i].CreatedAt.Before(portfolios[j].CreatedAt) })
	return portfolios, nil
}

func (s *fakeStorage) CreateTrade(ctx context.Context, trade models.Trade) (models.Trade, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	trade.ID = uuid.New()
	trade.CreatedAt = time.Now()
	s.trades[trade.PortfolioID] = append(s.trades[trade.PortfolioID], trade)
	return trade, nil
}

func (s *fakeStorage) ListTrades(ctx context.Context, portfolioID uuid.UUID, limit int) ([]models.Trade, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	trades := s.trades[portfolioID]
	if len(trades) > limit {
		trades = trades[len(trades)-limit:]
	}
	return trades, nil
}

func (s *fakeStorage) AddToTotalValue(ctx context.Context, portfolioID uuid.UUID, delta decimal.Decimal) (models.Portfolio, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.portfolios[portfolioID]
	if !ok {
		return models.Portfolio{}, apperrors.ErrPortfolioNotFound
	}
	p.TotalValue = p.TotalValue.Add(delta)
	p.UpdatedAt = time.Now()
	s.portfolios[portfolioID] = p
	return p, nil
}

type fakePublisher struct {
	mu      sync.Mutex
	updates []any
}

func (p *fakePublisher) PublishPortfolio(ctx context.Context, data any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.updates = append(p.updates, data)
	return nil
}

func (p *fakePublisher) last(t *testing.T) PortfolioUpdate {
	t.Helper()

	p.mu.Lock()
	defer p.mu.Unlock()
	require.NotEmpty(t, p.updates, "expected a published update")

	update, ok := p.updates[len(p.updates)-1].(PortfolioUpdate)
	require.True(t, ok, "published payload must be a PortfolioUpdate")
	return update
}

func newService(t *testing.T) (*PortfolioService, *fakeStorage, *fakePublisher) {
	t.Helper()

	storage := newFakeStorage()
	publisher := &fakePublisher{}
	return NewService(storage, publisher, logger.NewNoOpLogger()), storage, publisher
}

func TestCreate(t *testing.T) {
	t.Run("currency defaults to USD", func(t *testing.T) {
		service, _, _ := newService(t)

		p, err := service.Create(t.Context(), uuid.New(), "Growth", "", "")

		require.NoError(t, err)
		require.Equal(t, "USD", p.Currency)
	})

	t.Run("currency normalized to upper case", func(t *testing.T) {
		service, _, _ := newService(t)

		p, err := service.Create(t.Context(), uuid.New(), "Growth", "", "eur")

		require.NoError(t, err)
		require.Equal(t, "EUR", p.Currency)
	})
}

func TestCreateTrade(t *testing.T) {
	userID := uuid.New()

	setup := func(t *testing.T) (*PortfolioService, *fakePublisher, models.Portfolio) {
		service, _, publisher := newService(t)
		p, err := service.Create(t.Context(), userID, "Trading", "", "USD")
		require.NoError(t, err)
		return service, publisher, p
	}

	t.Run("buy adds to portfolio value", func(t *testing.T) {
		service, publisher, p := setup(t)

		trade, err := service.CreateTrade(t.Context(), userID, p.ID, TradeInput{
			Symbol:   "aapl",
			Type:     models.TradeTypeBuy,
			Quantity: decimal.NewFromInt(10),
			Price:    decimal.NewFromInt(150),
			Fees:     decimal.NewFromInt(5),
		})

		require.NoError(t, err)
		require.Equal(t, "AAPL", trade.Symbol, "symbol normalized to upper case")
		require.True(t, trade.TotalValue.Equal(decimal.NewFromInt(1505)), "trade value includes fees, got %s", trade.TotalValue)
		require.False(t, trade.ExecutedAt.IsZero(), "executed at defaults to now")

		update := publisher.last(t)
		require.Equal(t, p.ID.String(), update.PortfolioID)
		require.True(t, update.TotalValue.Equal(decimal.NewFromInt(1500)), "portfolio grows by the gross value, got %s", update.TotalValue)
	})

	t.Run("sell subtracts from portfolio value", func(t *testing.T) {
		service, publisher, p := setup(t)

		_, err := service.CreateTrade(t.Context(), userID, p.ID, TradeInput{
			Symbol:   "AAPL",
			Type:     models.TradeTypeBuy,
			Quantity: decimal.NewFromInt(10),
			Price:    decimal.NewFromInt(150),
		})
		require.NoError(t, err)

		_, err = service.CreateTrade(t.Context(), userID, p.ID, TradeInput{
			Symbol:   "AAPL",
			Type:     models.TradeTypeSell,
			Quantity: decimal.NewFromInt(4),
			Price:    decimal.NewFromInt(150),
		})
		require.NoError(t, err)

		update := publisher.last(t)
		require.True(t, update.TotalValue.Equal(decimal.NewFromInt(900)), "1500 - 600, got %s", update.TotalValue)
	})

	t.Run("trade on foreign portfolio rejected", func(t *testing.T) {
		service, publisher, p := setup(t)

		_, err := service.CreateTrade(t.Context(), uuid.New(), p.ID, TradeInput{
			Symbol:   "AAPL",
			Type:     models.TradeTypeBuy,
			Quantity: decimal.NewFromInt(1),
			Price:    decimal.NewFromInt(150),
		})

		require.Error(t, err)
		assert.ErrorIs(t, err, apperrors.ErrPortfolioNotFound)

		publisher.mu.Lock()
		defer publisher.mu.Unlock()
		require.Empty(t, publisher.updates, "nothing must be published on failure")
	})
}

func TestRecentTrades(t *testing.T) {
	userID := uuid.New()
	service, _, _ := newService(t)
	p, err := service.Create(t.Context(), userID, "History", "", "USD")
	require.NoError(t, err)

	for range 7 {
		_, err := service.CreateTrade(t.Context(), userID, p.ID, TradeInput{
			Symbol:   "AAPL",
			Type:     models.TradeTypeBuy,
			Quantity: decimal.NewFromInt(1),
			Price:    decimal.NewFromInt(100),
		})
		require.NoError(t, err)
	}

	t.Run("limited to recent trades", func(t *testing.T) {
		trades, err := service.RecentTrades(t.Context(), userID, p.ID)

		require.NoError(t, err)
		require.Len(t, trades, recentTradesLimit)
	})

	t.Run("foreign portfolio rejected", func(t *testing.T) {
		_, err := service.RecentTrades(t.Context(), uuid.New(), p.ID)

		assert.ErrorIs(t, err, apperrors.ErrPortfolioNotFound)
	})
}

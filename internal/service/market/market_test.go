package market

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/finxlab/finx/internal/apperrors"
	"github.com/finxlab/finx/internal/logger"
	"github.com/finxlab/finx/internal/models"
)

type fakeRepo struct {
	mu     sync.Mutex
	quotes map[string]models.MarketQuote
	calls  int
}

func newFakeRepo(quotes ...models.MarketQuote) *fakeRepo {
	repo := &fakeRepo{quotes: make(map[string]models.MarketQuote)}
	for _, q := range quotes {
		repo.quotes[q.Symbol] = q
	}
	return repo
}

func (r *fakeRepo) GetQuote(ctx context.Context, symbol string) (models.MarketQuote, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.calls++
	quote, ok := r.quotes[symbol]
	if !ok {
		return quote, apperrors.ErrQuoteNotFound
	}
	return quote, nil
}

func (r *fakeRepo) GetQuotes(ctx context.Context, symbols []string) ([]models.MarketQuote, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.calls++
	quotes := make([]models.MarketQuote, 0, len(symbols))
	for _, symbol := range symbols {
		if quote, ok := r.quotes[symbol]; ok {
			quotes = append(quotes, quote)
		}
	}
	return quotes, nil
}

func (r *fakeRepo) ListSymbols(ctx context.Context) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	symbols := make([]string, 0, len(r.quotes))
	for symbol := range r.quotes {
		symbols = append(symbols, symbol)
	}
	return symbols, nil
}

func (r *fakeRepo) SearchQuotes(ctx context.Context, query string, limit int) ([]models.MarketQuote, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	query = strings.ToUpper(query)
	quotes := make([]models.MarketQuote, 0)
	for _, q := range r.quotes {
		if len(quotes) == limit {
			break
		}
		if strings.Contains(q.Symbol, query) || strings.Contains(strings.ToUpper(q.Name), query) {
			quotes = append(quotes, q)
		}
	}
	return quotes, nil
}

func (r *fakeRepo) SaveQuote(ctx context.Context, q models.MarketQuote) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.quotes[q.Symbol] = q
	return nil
}

func (r *fakeRepo) callCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}

type fakePublisher struct {
	mu        sync.Mutex
	published []any
}

func (p *fakePublisher) PublishMarket(ctx context.Context, data any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.published = append(p.published, data)
	return nil
}

func quote(symbol string, price float64) models.MarketQuote {
	return models.MarketQuote{
		Symbol:    symbol,
		Price:     decimal.NewFromFloat(price),
		Timestamp: time.Now(),
	}
}

func TestQuote(t *testing.T) {
	t.Run("repeated reads served from cache", func(t *testing.T) {
		repo := newFakeRepo(quote("AAPL", 150))
		service := NewService(repo, &fakePublisher{}, logger.NewNoOpLogger())
		t.Cleanup(service.Stop)

		first, err := service.Quote(t.Context(), "AAPL")
		require.NoError(t, err)

		second, err := service.Quote(t.Context(), "aapl ")
		require.NoError(t, err)

		require.True(t, first.Price.Equal(second.Price))
		require.Equal(t, 1, repo.callCount(), "second read must hit the cache")
	})

	t.Run("unknown symbol", func(t *testing.T) {
		repo := newFakeRepo()
		service := NewService(repo, &fakePublisher{}, logger.NewNoOpLogger())
		t.Cleanup(service.Stop)

		_, err := service.Quote(t.Context(), "NOPE")

		require.ErrorIs(t, err, apperrors.ErrQuoteNotFound)
	})
}

func TestQuotes(t *testing.T) {
	t.Run("mixed cache hits and misses", func(t *testing.T) {
		repo := newFakeRepo(quote("AAPL", 150), quote("MSFT", 400))
		service := NewService(repo, &fakePublisher{}, logger.NewNoOpLogger())
		t.Cleanup(service.Stop)

		// Warm the cache with one symbol
		_, err := service.Quote(t.Context(), "AAPL")
		require.NoError(t, err)

		got, err := service.Quotes(t.Context(), []string{"AAPL", "MSFT", "aapl", "", "UNKNOWN"})

		require.NoError(t, err)
		require.Len(t, got, 2, "duplicates, blanks and unknowns are dropped")
		require.Equal(t, 2, repo.callCount(), "only the cold symbols reach the repo")
	})
}

func TestSearch(t *testing.T) {
	t.Run("matches symbol substring", func(t *testing.T) {
		repo := newFakeRepo(quote("AAPL", 150), quote("MSFT", 400))
		service := NewService(repo, &fakePublisher{}, logger.NewNoOpLogger())
		t.Cleanup(service.Stop)

		got, err := service.Search(t.Context(), " aap ")

		require.NoError(t, err)
		require.Len(t, got, 1)
		require.Equal(t, "AAPL", got[0].Symbol)
	})

	t.Run("blank query rejected", func(t *testing.T) {
		service := NewService(newFakeRepo(), &fakePublisher{}, logger.NewNoOpLogger())
		t.Cleanup(service.Stop)

		_, err := service.Search(t.Context(), "   ")

		require.Error(t, err)
	})
}

func TestSaveQuote(t *testing.T) {
	t.Run("persists, caches and publishes", func(t *testing.T) {
		repo := newFakeRepo()
		publisher := &fakePublisher{}
		service := NewService(repo, publisher, logger.NewNoOpLogger())
		t.Cleanup(service.Stop)

		saved, err := service.SaveQuote(t.Context(), quote("aapl", 151))
		require.NoError(t, err)
		require.Equal(t, "AAPL", saved.Symbol, "symbol is normalized")

		// Cache was primed by the write, read must not hit the repo
		_, err = service.Quote(t.Context(), "AAPL")
		require.NoError(t, err)
		require.Equal(t, 0, repo.callCount())

		publisher.mu.Lock()
		defer publisher.mu.Unlock()
		require.Len(t, publisher.published, 1)
	})

	t.Run("empty symbol rejected", func(t *testing.T) {
		service := NewService(newFakeRepo(), &fakePublisher{}, logger.NewNoOpLogger())
		t.Cleanup(service.Stop)

		_, err := service.SaveQuote(t.Context(), models.MarketQuote{})

		require.Error(t, err)
	})
}

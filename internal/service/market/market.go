package market

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jellydator/ttlcache/v3"

	"github.com/finxlab/finx/internal/logger"
	"github.com/finxlab/finx/internal/models"
	"github.com/finxlab/finx/internal/repository"
)

const (
	defaultQuoteTTL   = 15 * time.Second
	searchResultLimit = 20
)

// publisher announces quote changes to live subscribers
type publisher interface {
	PublishMarket(ctx context.Context, data any) error
}

// MarketService serves quotes with a read-through TTL cache in front of the
// repository and publishes fresh observations to the realtime bridge
type MarketService struct {
	repo   repository.MarketDataRepo
	cache  *ttlcache.Cache[string, models.MarketQuote]
	events publisher
	logger logger.Logger
}

func NewService(repo repository.MarketDataRepo, events publisher, log logger.Logger) *MarketService {
	cache := ttlcache.New(
		ttlcache.WithTTL[string, models.MarketQuote](defaultQuoteTTL),
		ttlcache.WithDisableTouchOnHit[string, models.MarketQuote](),
	)
	go cache.Start()

	return &MarketService{
		repo:   repo,
		cache:  cache,
		events: events,
		logger: log,
	}
}

// Quote returns the latest quote for the symbol
func (s *MarketService) Quote(ctx context.Context, symbol string) (models.MarketQuote, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))

	if item := s.cache.Get(symbol); item != nil {
		return item.Value(), nil
	}

	quote, err := s.repo.GetQuote(ctx, symbol)
	if err != nil {
		return quote, err
	}

	s.cache.Set(symbol, quote, ttlcache.DefaultTTL)
	return quote, nil
}

// Quotes returns the latest quote per requested symbol.
// Unknown symbols are skipped, not an error.
func (s *MarketService) Quotes(ctx context.Context, symbols []string) ([]models.MarketQuote, error) {
	quotes := make([]models.MarketQuote, 0, len(symbols))
	missing := make([]string, 0, len(symbols))

	seen := make(map[string]struct{}, len(symbols))
	for _, symbol := range symbols {
		symbol = strings.ToUpper(strings.TrimSpace(symbol))
		if symbol == "" {
			continue
		}
		if _, ok := seen[symbol]; ok {
			continue
		}
		seen[symbol] = struct{}{}

		if item := s.cache.Get(symbol); item != nil {
			quotes = append(quotes, item.Value())
			continue
		}
		missing = append(missing, symbol)
	}

	if len(missing) == 0 {
		return quotes, nil
	}

	fetched, err := s.repo.GetQuotes(ctx, missing)
	if err != nil {
		return nil, err
	}

	for _, quote := range fetched {
		s.cache.Set(quote.Symbol, quote, ttlcache.DefaultTTL)
		quotes = append(quotes, quote)
	}

	return quotes, nil
}

// Symbols lists every known instrument symbol
func (s *MarketService) Symbols(ctx context.Context) ([]string, error) {
	return s.repo.ListSymbols(ctx)
}

// Search finds instruments whose symbol or company name contains the query.
// Results bypass the cache: a search is a discovery read, the per-symbol
// cache keys would not help it anyway.
func (s *MarketService) Search(ctx context.Context, query string) ([]models.MarketQuote, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("search query must not be empty")
	}

	return s.repo.SearchQuotes(ctx, query, searchResultLimit)
}

// SaveQuote stores a fresh observation and fans it out to subscribers.
// Publish failures are logged, the write itself stays committed.
func (s *MarketService) SaveQuote(ctx context.Context, quote models.MarketQuote) (models.MarketQuote, error) {
	quote.Symbol = strings.ToUpper(strings.TrimSpace(quote.Symbol))
	if quote.Symbol == "" {
		return quote, fmt.Errorf("symbol must not be empty")
	}
	if quote.Timestamp.IsZero() {
		quote.Timestamp = time.Now().UTC()
	}

	if err := s.repo.SaveQuote(ctx, quote); err != nil {
		return quote, err
	}

	s.cache.Set(quote.Symbol, quote, ttlcache.DefaultTTL)

	if err := s.events.PublishMarket(ctx, quote); err != nil {
		s.logger.Error("Failed to publish market update", "error", err, "symbol", quote.Symbol)
	}

	return quote, nil
}

// Stop terminates the cache janitor
func (s *MarketService) Stop() {
	s.cache.Stop()
}

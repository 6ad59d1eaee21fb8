package postgres

import (
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/finxlab/finx/internal/apperrors"
	"github.com/finxlab/finx/internal/models"
	"github.com/finxlab/finx/internal/testutil"
)

func Test_MarketDataRepo(t *testing.T) {
	t.Parallel()

	pg := testutil.StartPostgresContainer(t)
	t.Cleanup(pg.Terminate)

	newQuote := func(symbol string, price float64, at time.Time) models.MarketQuote {
		return models.MarketQuote{
			Symbol:    symbol,
			Name:      symbol + " Inc.",
			Price:     decimal.NewFromFloat(price),
			Volume:    1000,
			Timestamp: at,
			Source:    "test",
		}
	}

	t.Run("save and get latest quote", func(t *testing.T) {
		testutil.WithTx(pg.Pool, t, func(tx pgx.Tx) {
			repo := MarketDataRepo{DB: tx}
			now := time.Now().Truncate(time.Microsecond)

			require.NoError(t, repo.SaveQuote(t.Context(), newQuote("AAPL", 150, now.Add(-time.Minute))))
			require.NoError(t, repo.SaveQuote(t.Context(), newQuote("AAPL", 151, now)))

			got, err := repo.GetQuote(t.Context(), "AAPL")

			require.NoError(t, err)
			require.True(t, got.Price.Equal(decimal.NewFromInt(151)), "latest observation wins, got %s", got.Price)
			require.WithinDuration(t, now, got.Timestamp, time.Microsecond)
		})
	})

	t.Run("get not existed symbol", func(t *testing.T) {
		testutil.WithTx(pg.Pool, t, func(tx pgx.Tx) {
			repo := MarketDataRepo{DB: tx}

			_, err := repo.GetQuote(t.Context(), "NOPE")

			require.Error(t, err)
			assert.ErrorIs(t, err, apperrors.ErrQuoteNotFound)
		})
	})

	t.Run("get quotes returns latest per symbol", func(t *testing.T) {
		testutil.WithTx(pg.Pool, t, func(tx pgx.Tx) {
			repo := MarketDataRepo{DB: tx}
			now := time.Now()

			require.NoError(t, repo.SaveQuote(t.Context(), newQuote("AAPL", 150, now.Add(-time.Minute))))
			require.NoError(t, repo.SaveQuote(t.Context(), newQuote("AAPL", 151, now)))
			require.NoError(t, repo.SaveQuote(t.Context(), newQuote("MSFT", 400, now)))
			require.NoError(t, repo.SaveQuote(t.Context(), newQuote("GOOG", 180, now)))

			got, err := repo.GetQuotes(t.Context(), []string{"AAPL", "MSFT", "UNKNOWN"})

			require.NoError(t, err)
			require.Len(t, got, 2, "unknown symbols are skipped")

			prices := map[string]decimal.Decimal{}
			for _, q := range got {
				prices[q.Symbol] = q.Price
			}
			require.True(t, prices["AAPL"].Equal(decimal.NewFromInt(151)))
			require.True(t, prices["MSFT"].Equal(decimal.NewFromInt(400)))
		})
	})

	t.Run("search by symbol or name", func(t *testing.T) {
		testutil.WithTx(pg.Pool, t, func(tx pgx.Tx) {
			repo := MarketDataRepo{DB: tx}
			now := time.Now()

			save := func(symbol string, name string, price float64, at time.Time) {
				q := newQuote(symbol, price, at)
				q.Name = name
				require.NoError(t, repo.SaveQuote(t.Context(), q))
			}

			save("AAPL", "Apple Inc.", 150, now.Add(-time.Minute))
			save("AAPL", "Apple Inc.", 151, now)
			save("MSFT", "Microsoft Corporation", 400, now)

			got, err := repo.SearchQuotes(t.Context(), "apple", 20)

			require.NoError(t, err)
			require.Len(t, got, 1, "name match is case insensitive, one row per symbol")
			require.Equal(t, "AAPL", got[0].Symbol)
			require.True(t, got[0].Price.Equal(decimal.NewFromInt(151)), "latest observation wins, got %s", got[0].Price)

			got, err = repo.SearchQuotes(t.Context(), "MS", 20)
			require.NoError(t, err)
			require.Len(t, got, 1, "symbol substring matches")
			require.Equal(t, "MSFT", got[0].Symbol)

			got, err = repo.SearchQuotes(t.Context(), "a", 1)
			require.NoError(t, err)
			require.Len(t, got, 1, "result count is capped")
		})
	})

	t.Run("list symbols", func(t *testing.T) {
		testutil.WithTx(pg.Pool, t, func(tx pgx.Tx) {
			repo := MarketDataRepo{DB: tx}
			now := time.Now()

			require.NoError(t, repo.SaveQuote(t.Context(), newQuote("MSFT", 400, now)))
			require.NoError(t, repo.SaveQuote(t.Context(), newQuote("AAPL", 150, now)))
			require.NoError(t, repo.SaveQuote(t.Context(), newQuote("AAPL", 151, now)))

			got, err := repo.ListSymbols(t.Context())

			require.NoError(t, err)
			require.Equal(t, []string{"AAPL", "MSFT"}, got, "sorted and deduplicated")
		})
	})
}

package postgres

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/finxlab/finx/internal/apperrors"
	"github.com/finxlab/finx/internal/models"
	"github.com/finxlab/finx/internal/testutil"
)

func mustCreatePortfolio(t *testing.T, tx pgx.Tx, userID uuid.UUID, name string) models.Portfolio {
	t.Helper()

	repo := PortfolioRepo{DB: tx}
	p, err := repo.CreatePortfolio(t.Context(), models.Portfolio{
		UserID:   userID,
		Name:     name,
		Currency: "USD",
	})
	require.NoError(t, err, "portfolio must be created for the test")
	return p
}

func Test_PortfolioRepo(t *testing.T) {
	t.Parallel()

	pg := testutil.StartPostgresContainer(t)
	t.Cleanup(pg.Terminate)

	t.Run("create portfolio ok", func(t *testing.T) {
		testutil.WithTx(pg.Pool, t, func(tx pgx.Tx) {
			repo := PortfolioRepo{DB: tx}
			user := mustCreateUser(t, tx, "portfolio@example.com")

			got, err := repo.CreatePortfolio(t.Context(), models.Portfolio{
				UserID:      user.ID,
				Name:        "Growth",
				Description: "Long term",
				Currency:    "USD",
			})

			require.NoError(t, err)
			require.NotEqual(t, uuid.Nil, got.ID)
			require.Equal(t, "Growth", got.Name)
			require.Equal(t, "USD", got.Currency)
			require.True(t, got.TotalValue.IsZero(), "fresh portfolio value must be zero")
		})
	})

	t.Run("get portfolio scoped to owner", func(t *testing.T) {
		testutil.WithTx(pg.Pool, t, func(tx pgx.Tx) {
			repo := PortfolioRepo{DB: tx}
			owner := mustCreateUser(t, tx, "owner-p@example.com")
			stranger := mustCreateUser(t, tx, "stranger@example.com")
			p := mustCreatePortfolio(t, tx, owner.ID, "Growth")

			got, err := repo.GetPortfolio(t.Context(), owner.ID, p.ID)
			require.NoError(t, err)
			require.Equal(t, p.ID, got.ID)

			_, err = repo.GetPortfolio(t.Context(), stranger.ID, p.ID)
			assert.ErrorIs(t, err, apperrors.ErrPortfolioNotFound, "other user's portfolio must look absent")
		})
	})

	t.Run("list portfolios", func(t *testing.T) {
		testutil.WithTx(pg.Pool, t, func(tx pgx.Tx) {
			repo := PortfolioRepo{DB: tx}
			user := mustCreateUser(t, tx, "list-p@example.com")
			mustCreatePortfolio(t, tx, user.ID, "First")
			mustCreatePortfolio(t, tx, user.ID, "Second")

			got, err := repo.ListPortfolios(t.Context(), user.ID)

			require.NoError(t, err)
			require.Len(t, got, 2)
			require.Equal(t, "First", got[0].Name, "oldest first")
		})
	})

	t.Run("create trade and apply delta", func(t *testing.T) {
		testutil.WithTx(pg.Pool, t, func(tx pgx.Tx) {
			repo := PortfolioRepo{DB: tx}
			user := mustCreateUser(t, tx, "trade@example.com")
			p := mustCreatePortfolio(t, tx, user.ID, "Trading")

			trade, err := repo.CreateTrade(t.Context(), models.Trade{
				PortfolioID: p.ID,
				Symbol:      "AAPL",
				Type:        models.TradeTypeBuy,
				Quantity:    decimal.NewFromInt(10),
				Price:       decimal.NewFromFloat(150.5),
				Fees:        decimal.NewFromFloat(1.5),
				TotalValue:  decimal.NewFromFloat(1506.5),
				ExecutedAt:  time.Now(),
			})

			require.NoError(t, err)
			require.NotEqual(t, uuid.Nil, trade.ID)
			require.Equal(t, "AAPL", trade.Symbol)
			require.True(t, trade.Quantity.Equal(decimal.NewFromInt(10)))

			updated, err := repo.AddToTotalValue(t.Context(), p.ID, decimal.NewFromFloat(1505))
			require.NoError(t, err)
			require.True(t, updated.TotalValue.Equal(decimal.NewFromFloat(1505)), "got %s", updated.TotalValue)

			// Sell reduces the value
			updated, err = repo.AddToTotalValue(t.Context(), p.ID, decimal.NewFromFloat(-505))
			require.NoError(t, err)
			require.True(t, updated.TotalValue.Equal(decimal.NewFromInt(1000)), "got %s", updated.TotalValue)
		})
	})

	t.Run("add delta to not existed portfolio", func(t *testing.T) {
		testutil.WithTx(pg.Pool, t, func(tx pgx.Tx) {
			repo := PortfolioRepo{DB: tx}

			_, err := repo.AddToTotalValue(t.Context(), uuid.New(), decimal.NewFromInt(1))

			assert.ErrorIs(t, err, apperrors.ErrPortfolioNotFound)
		})
	})

	t.Run("list trades newest first with limit", func(t *testing.T) {
		testutil.WithTx(pg.Pool, t, func(tx pgx.Tx) {
			repo := PortfolioRepo{DB: tx}
			user := mustCreateUser(t, tx, "trades-list@example.com")
			p := mustCreatePortfolio(t, tx, user.ID, "History")

			for i, symbol := range []string{"AAPL", "MSFT", "GOOG"} {
				_, err := repo.CreateTrade(t.Context(), models.Trade{
					PortfolioID: p.ID,
					Symbol:      symbol,
					Type:        models.TradeTypeBuy,
					Quantity:    decimal.NewFromInt(1),
					Price:       decimal.NewFromInt(int64(100 + i)),
					TotalValue:  decimal.NewFromInt(int64(100 + i)),
					ExecutedAt:  time.Now(),
				})
				require.NoError(t, err)
				time.Sleep(5 * time.Millisecond) // created_at must differ for stable order
			}

			got, err := repo.ListTrades(t.Context(), p.ID, 2)

			require.NoError(t, err)
			require.Len(t, got, 2)
			require.Equal(t, "GOOG", got[0].Symbol, "newest trade first")
			require.Equal(t, "MSFT", got[1].Symbol)
		})
	})
}

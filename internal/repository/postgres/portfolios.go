package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/finxlab/finx/internal/apperrors"
	"github.com/finxlab/finx/internal/models"
)

type PortfolioRepo struct {
	DB DBTX
}

const createPortfolio = `-- name: CreatePortfolio
INSERT INTO portfolios (id, user_id, name, description, currency)
VALUES ($1, $2, $3, $4, $5)
RETURNING id, user_id, name, description, currency, total_value, created_at, updated_at
`

func (r *PortfolioRepo) CreatePortfolio(ctx context.Context, p models.Portfolio) (models.Portfolio, error) {
	id := p.ID
	if id == uuid.Nil {
		id = uuid.New()
	}

	rows, _ := r.DB.Query(ctx, createPortfolio, id, p.UserID, p.Name, p.Description, p.Currency)
	created, err := pgx.CollectOneRow(rows, rowToPortfolio)
	if err != nil {
		return created, fmt.Errorf("db error: %w", err)
	}
	return created, nil
}

const getPortfolio = `-- name: GetPortfolio scoped to the owner
SELECT id, user_id, name, description, currency, total_value, created_at, updated_at
FROM portfolios
WHERE id = $1 AND user_id = $2
`

func (r *PortfolioRepo) GetPortfolio(ctx context.Context, userID uuid.UUID, portfolioID uuid.UUID) (models.Portfolio, error) {
	rows, _ := r.DB.Query(ctx, getPortfolio, portfolioID, userID)
	p, err := pgx.CollectOneRow(rows, rowToPortfolio)

	switch {
	case err == nil:
		return p, nil
	case errors.Is(err, pgx.ErrNoRows):
		return p, fmt.Errorf("repo error: %w", apperrors.ErrPortfolioNotFound)
	default:
		return p, fmt.Errorf("db error: %w", err)
	}
}

const listPortfolios = `-- name: ListPortfolios of the user
SELECT id, user_id, name, description, currency, total_value, created_at, updated_at
FROM portfolios
WHERE user_id = $1
ORDER BY created_at
`

func (r *PortfolioRepo) ListPortfolios(ctx context.Context, userID uuid.UUID) ([]models.Portfolio, error) {
	rows, _ := r.DB.Query(ctx, listPortfolios, userID)
	portfolios, err := pgx.CollectRows(rows, rowToPortfolio)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return portfolios, nil
}

const createTrade = `-- name: CreateTrade
INSERT INTO trades (id, portfolio_id, symbol, type, quantity, price, fees, total_value, executed_at, notes)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
RETURNING id, portfolio_id, symbol, type, quantity, price, fees, total_value, executed_at, notes, created_at
`

func (r *PortfolioRepo) CreateTrade(ctx context.Context, t models.Trade) (models.Trade, error) {
	id := t.ID
	if id == uuid.Nil {
		id = uuid.New()
	}

	rows, _ := r.DB.Query(ctx, createTrade,
		id, t.PortfolioID, t.Symbol, t.Type, t.Quantity, t.Price, t.Fees, t.TotalValue, t.ExecutedAt, t.Notes)
	created, err := pgx.CollectOneRow(rows, rowToTrade)
	if err != nil {
		return created, fmt.Errorf("db error: %w", err)
	}
	return created, nil
}

const listTrades = `-- name: ListTrades newest first
SELECT id, portfolio_id, symbol, type, quantity, price, fees, total_value, executed_at, notes, created_at
FROM trades
WHERE portfolio_id = $1
ORDER BY created_at DESC
LIMIT $2
`

func (r *PortfolioRepo) ListTrades(ctx context.Context, portfolioID uuid.UUID, limit int) ([]models.Trade, error) {
	rows, _ := r.DB.Query(ctx, listTrades, portfolioID, limit)
	trades, err := pgx.CollectRows(rows, rowToTrade)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return trades, nil
}

const addToTotalValue = `-- name: Apply trade delta to portfolio value
UPDATE portfolios
SET total_value = total_value + $2, updated_at = now()
WHERE id = $1
RETURNING id, user_id, name, description, currency, total_value, created_at, updated_at
`

func (r *PortfolioRepo) AddToTotalValue(ctx context.Context, portfolioID uuid.UUID, delta decimal.Decimal) (models.Portfolio, error) {
	rows, _ := r.DB.Query(ctx, addToTotalValue, portfolioID, delta)
	p, err := pgx.CollectOneRow(rows, rowToPortfolio)

	switch {
	case err == nil:
		return p, nil
	case errors.Is(err, pgx.ErrNoRows):
		return p, fmt.Errorf("repo error: %w", apperrors.ErrPortfolioNotFound)
	default:
		return p, fmt.Errorf("db error: %w", err)
	}
}

func rowToPortfolio(row pgx.CollectableRow) (models.Portfolio, error) {
	var p models.Portfolio
	err := row.Scan(&p.ID, &p.UserID, &p.Name, &p.Description, &p.Currency, &p.TotalValue, &p.CreatedAt, &p.UpdatedAt)
	return p, err
}

func rowToTrade(row pgx.CollectableRow) (models.Trade, error) {
	var t models.Trade
	err := row.Scan(&t.ID, &t.PortfolioID, &t.Symbol, &t.Type, &t.Quantity, &t.Price, &t.Fees, &t.TotalValue, &t.ExecutedAt, &t.Notes, &t.CreatedAt)
	return t, err
}

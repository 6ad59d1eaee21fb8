package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/finxlab/finx/internal/apperrors"
	"github.com/finxlab/finx/internal/models"
)

type MarketDataRepo struct {
	DB DBTX
}

const getQuotes = `-- name: Latest quote per symbol
SELECT DISTINCT ON (symbol)
	symbol, name, price, change, change_percent, volume, high_24h, low_24h, observed_at, source
FROM market_data
WHERE symbol = ANY($1)
ORDER BY symbol, observed_at DESC
`

func (r *MarketDataRepo) GetQuotes(ctx context.Context, symbols []string) ([]models.MarketQuote, error) {
	rows, _ := r.DB.Query(ctx, getQuotes, symbols)
	quotes, err := pgx.CollectRows(rows, rowToQuote)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return quotes, nil
}

const getQuote = `-- name: Latest quote for one symbol
SELECT symbol, name, price, change, change_percent, volume, high_24h, low_24h, observed_at, source
FROM market_data
WHERE symbol = $1
ORDER BY observed_at DESC
LIMIT 1
`

func (r *MarketDataRepo) GetQuote(ctx context.Context, symbol string) (models.MarketQuote, error) {
	rows, _ := r.DB.Query(ctx, getQuote, symbol)
	quote, err := pgx.CollectOneRow(rows, rowToQuote)

	switch {
	case err == nil:
		return quote, nil
	case errors.Is(err, pgx.ErrNoRows):
		return quote, fmt.Errorf("repo error: %w", apperrors.ErrQuoteNotFound)
	default:
		return quote, fmt.Errorf("db error: %w", err)
	}
}

const listSymbols = `-- name: All known symbols
SELECT DISTINCT symbol FROM market_data ORDER BY symbol
`

func (r *MarketDataRepo) ListSymbols(ctx context.Context) ([]string, error) {
	rows, _ := r.DB.Query(ctx, listSymbols)
	symbols, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return symbols, nil
}

const searchQuotes = `-- name: Search quotes by symbol or company name
SELECT DISTINCT ON (symbol)
	symbol, name, price, change, change_percent, volume, high_24h, low_24h, observed_at, source
FROM market_data
WHERE symbol ILIKE '%' || $1 || '%' OR name ILIKE '%' || $1 || '%'
ORDER BY symbol, observed_at DESC
LIMIT $2
`

func (r *MarketDataRepo) SearchQuotes(ctx context.Context, query string, limit int) ([]models.MarketQuote, error) {
	rows, _ := r.DB.Query(ctx, searchQuotes, query, limit)
	quotes, err := pgx.CollectRows(rows, rowToQuote)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return quotes, nil
}

const saveQuote = `-- name: Save quote observation
INSERT INTO market_data (id, symbol, name, price, change, change_percent, volume, high_24h, low_24h, observed_at, source)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
`

func (r *MarketDataRepo) SaveQuote(ctx context.Context, q models.MarketQuote) error {
	_, err := r.DB.Exec(ctx, saveQuote,
		uuid.New(), q.Symbol, q.Name, q.Price, q.Change, q.ChangePercent, q.Volume, q.High24h, q.Low24h, q.Timestamp, q.Source)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func rowToQuote(row pgx.CollectableRow) (models.MarketQuote, error) {
	var q models.MarketQuote
	err := row.Scan(&q.Symbol, &q.Name, &q.Price, &q.Change, &q.ChangePercent, &q.Volume, &q.High24h, &q.Low24h, &q.Timestamp, &q.Source)
	return q, err
}

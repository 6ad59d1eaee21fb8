package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/finxlab/finx/internal/models"
)

// Storage combines all repositories backed by one connection
type Storage interface {
	User() UserRepo
	Refresh() RefreshTokenRepo
	Market() MarketDataRepo
	Portfolio() PortfolioRepo

	// Run fn within a database transaction
	InTx(ctx context.Context, fn func(Storage) error) error
}

// User repository interface
type UserRepo interface {
	// Create user
	// If user with email exists already has to return error apperrors.ErrUserAlreadyExists
	CreateUser(ctx context.Context, user models.User) (models.User, error)

	// Get user by it's id or email
	// If user not found must return apperrors.ErrUserNotFound
	GetUserByID(ctx context.Context, userID uuid.UUID) (models.User, error)
	GetUserByEmail(ctx context.Context, email string) (models.User, error)

	// Set last login timestamp
	SetLastLogin(ctx context.Context, userID uuid.UUID, at time.Time) error
}

// RefreshToken repository interface
type RefreshTokenRepo interface {
	// Save token in repository
	Save(ctx context.Context, token models.RefreshToken) error

	// Get token by the token string itself
	// Has to return the record even if it is expired or revoked
	// If token not found must return apperrors.ErrRefreshTokenNotFound
	Get(ctx context.Context, tokenString string) (models.RefreshToken, error)

	// Mark token as revoked
	// Must not overwrite 'revokedAt' of already revoked tokens: the second
	// caller has to get apperrors.ErrRefreshTokenRevoked
	MarkRevoked(ctx context.Context, tokenString string) (revokedAt time.Time, err error)

	// Mark every active token of the user as revoked, return the count
	MarkAllRevoked(ctx context.Context, userID uuid.UUID) (int64, error)

	// Delete tokens that are expired or revoked, return the count
	DeleteExpiredOrRevoked(ctx context.Context, now time.Time) (int64, error)
}

// MarketData repository interface
type MarketDataRepo interface {
	// Latest quote per symbol, unknown symbols are silently skipped
	GetQuotes(ctx context.Context, symbols []string) ([]models.MarketQuote, error)

	// Latest quote for a single symbol
	// If no quote exists must return apperrors.ErrQuoteNotFound
	GetQuote(ctx context.Context, symbol string) (models.MarketQuote, error)

	// All known symbols in alphabetical order
	ListSymbols(ctx context.Context) ([]string, error)

	// Latest quotes whose symbol or company name contains the query,
	// case insensitive, at most limit results
	SearchQuotes(ctx context.Context, query string, limit int) ([]models.MarketQuote, error)

	// Insert a fresh quote observation
	SaveQuote(ctx context.Context, quote models.MarketQuote) error
}

// Portfolio repository interface
type PortfolioRepo interface {
	CreatePortfolio(ctx context.Context, p models.Portfolio) (models.Portfolio, error)

	// If portfolio not found or owned by another user must return apperrors.ErrPortfolioNotFound
	GetPortfolio(ctx context.Context, userID uuid.UUID, portfolioID uuid.UUID) (models.Portfolio, error)
	ListPortfolios(ctx context.Context, userID uuid.UUID) ([]models.Portfolio, error)

	CreateTrade(ctx context.Context, trade models.Trade) (models.Trade, error)
	ListTrades(ctx context.Context, portfolioID uuid.UUID, limit int) ([]models.Trade, error)

	// Add delta to portfolio total value and bump updated_at
	AddToTotalValue(ctx context.Context, portfolioID uuid.UUID, delta decimal.Decimal) (models.Portfolio, error)
}

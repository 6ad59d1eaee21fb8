package tokenmanager

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/finxlab/finx/internal/apperrors"
	"github.com/finxlab/finx/internal/models"
	"github.com/finxlab/finx/internal/repository"
)

const (
	defaultAccessTokenTTL  = 15 * time.Minute
	defaultRefreshTokenTTL = 30 * 24 * time.Hour
	defaultSigningMethod   = "HS256"
)

// Token kinds carried in the 'kind' claim.
// A token of one kind must never be accepted where the other is expected.
const (
	KindAccess  = "access"
	KindRefresh = "refresh"
)

type Claims struct {
	jwt.RegisteredClaims
	UserID uuid.UUID `json:"uid"`
	Email  string    `json:"email"`
	Kind   string    `json:"kind"`
}

// Token manager with sensible defaults
type Config struct {
	// Secret key to sign access tokens
	// Required to be set
	AccessSecret string

	// Secret key to sign refresh tokens
	// Required to be set and to differ from AccessSecret: key separation
	// keeps a stolen refresh token from masquerading as an access token
	RefreshSecret string

	// JWT MAC (Message Authentication Code) algorithm
	// If not set then default is used
	Alg string

	// Access and refresh token lifetimes
	// If not set then default is used
	AccessTTL  time.Duration
	RefreshTTL time.Duration
}

type TokenManager struct {
	accessKey  []byte
	refreshKey []byte

	// JWT MAC (Message Authentication Code) algorithm
	alg jwt.SigningMethod

	// Access and refresh token lifetimes
	accessTTL  time.Duration
	refreshTTL time.Duration

	// Refresh token repo
	refreshRepo repository.RefreshTokenRepo
}

func New(cfg Config, refreshRepo repository.RefreshTokenRepo) (*TokenManager, error) {
	if cfg.AccessSecret == "" || cfg.RefreshSecret == "" {
		return nil, errors.New("access and refresh secret keys must not be empty")
	}
	if cfg.AccessSecret == cfg.RefreshSecret {
		return nil, errors.New("access and refresh secret keys must differ")
	}

	if cfg.Alg == "" {
		cfg.Alg = defaultSigningMethod
	}

	setDefaultDuration := func(field *time.Duration, def time.Duration) {
		if *field == 0 {
			*field = def
		}
	}
	setDefaultDuration(&cfg.AccessTTL, defaultAccessTokenTTL)
	setDefaultDuration(&cfg.RefreshTTL, defaultRefreshTokenTTL)

	return &TokenManager{
		accessKey:   []byte(cfg.AccessSecret),
		refreshKey:  []byte(cfg.RefreshSecret),
		alg:         jwt.GetSigningMethod(cfg.Alg),
		accessTTL:   cfg.AccessTTL,
		refreshTTL:  cfg.RefreshTTL,
		refreshRepo: refreshRepo,
	}, nil
}

// IssuePair signs a fresh access/refresh pair and persists the refresh token.
// If the durable write fails no pair is returned.
func (m *TokenManager) IssuePair(ctx context.Context, userID uuid.UUID, email string) (models.TokenPair, error) {
	var pair models.TokenPair
	now := time.Now().Truncate(time.Second)
	accessExpiresAt := now.Add(m.accessTTL)
	refreshExpiresAt := now.Add(m.refreshTTL)

	access, err := m.sign(m.accessKey, KindAccess, userID, email, now, accessExpiresAt)
	if err != nil {
		return pair, fmt.Errorf("error while signing access token. Err: %w", err)
	}

	refresh, err := m.sign(m.refreshKey, KindRefresh, userID, email, now, refreshExpiresAt)
	if err != nil {
		return pair, fmt.Errorf("error while signing refresh token. Err: %w", err)
	}

	err = m.refreshRepo.Save(ctx, models.RefreshToken{
		ID:        uuid.New(),
		UserID:    userID,
		Token:     refresh,
		CreatedAt: now,
		ExpiresAt: refreshExpiresAt,
		RevokedAt: nil,
	})
	if err != nil {
		return pair, fmt.Errorf("error while saving refresh token. Err: %w", err)
	}

	return models.TokenPair{
		Access:    access,
		Refresh:   refresh,
		ExpiresIn: int64(m.accessTTL.Seconds()),
	}, nil
}

// Parse and validate access token: signature, expiry and kind only, no storage lookup
func (m *TokenManager) ParseAccess(ctx context.Context, access string) (Claims, error) {
	return m.parse(access, m.accessKey, KindAccess)
}

// Parse and validate refresh token with the refresh signing key
func (m *TokenManager) ParseRefresh(ctx context.Context, refresh string) (Claims, error) {
	return m.parse(refresh, m.refreshKey, KindRefresh)
}

// IsRefreshValid checks the persisted record: absent, revoked or expired
// tokens are not valid even if their signature still verifies
func (m *TokenManager) IsRefreshValid(ctx context.Context, refresh string) (bool, error) {
	token, err := m.refreshRepo.Get(ctx, refresh)

	switch {
	case err == nil:
		return token.Valid(time.Now()), nil
	case errors.Is(err, apperrors.ErrRefreshTokenNotFound):
		return false, nil
	default:
		return false, fmt.Errorf("error while looking up refresh token. Err: %w", err)
	}
}

// Rotate exchanges a refresh token for a fresh pair.
// Single use: the old token is revoked with an atomic check-and-set, so of
// two concurrent rotations of the same token exactly one succeeds. Reuse of
// an already rotated token fails with apperrors.ErrRefreshTokenRevoked.
func (m *TokenManager) Rotate(ctx context.Context, refresh string) (models.TokenPair, error) {
	var pair models.TokenPair

	claims, err := m.parse(refresh, m.refreshKey, KindRefresh)
	if err != nil {
		return pair, err
	}

	_, err = m.refreshRepo.MarkRevoked(ctx, refresh)
	if err != nil {
		return pair, fmt.Errorf("error while revoking old refresh token. Err: %w", err)
	}

	pair, err = m.IssuePair(ctx, claims.UserID, claims.Email)
	if err != nil {
		return pair, fmt.Errorf("error while issuing rotated pair. Err: %w", err)
	}

	return pair, nil
}

// Revoke invalidates a single refresh token (logout)
func (m *TokenManager) Revoke(ctx context.Context, refresh string) error {
	_, err := m.refreshRepo.MarkRevoked(ctx, refresh)
	if err != nil {
		return fmt.Errorf("error while revoking refresh token. Err: %w", err)
	}
	return nil
}

// RevokeAllForUser invalidates every active refresh token of the user
// ("log out everywhere")
func (m *TokenManager) RevokeAllForUser(ctx context.Context, userID uuid.UUID) (int64, error) {
	count, err := m.refreshRepo.MarkAllRevoked(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("error while revoking user tokens. Err: %w", err)
	}
	return count, nil
}

// PurgeExpired deletes expired or revoked refresh token records.
// Idempotent and safe to run concurrently with issuance: freshly issued
// tokens never satisfy the deletion criteria.
func (m *TokenManager) PurgeExpired(ctx context.Context) (int64, error) {
	count, err := m.refreshRepo.DeleteExpiredOrRevoked(ctx, time.Now())
	if err != nil {
		return 0, fmt.Errorf("error while purging refresh tokens. Err: %w", err)
	}
	return count, nil
}

func (m *TokenManager) sign(key []byte, kind string, userID uuid.UUID, email string, now time.Time, expiresAt time.Time) (string, error) {
	token := jwt.NewWithClaims(
		m.alg,
		Claims{
			RegisteredClaims: jwt.RegisteredClaims{
				ID:        uuid.NewString(),
				IssuedAt:  jwt.NewNumericDate(now),
				ExpiresAt: jwt.NewNumericDate(expiresAt),
			},
			UserID: userID,
			Email:  email,
			Kind:   kind,
		},
	)

	return token.SignedString(key)
}

func (m *TokenManager) parse(tokenString string, key []byte, kind string) (Claims, error) {
	claims := &Claims{}

	_, err := jwt.ParseWithClaims(
		tokenString,
		claims,
		func(t *jwt.Token) (any, error) { return key, nil },
		jwt.WithValidMethods([]string{m.alg.Alg()}),
	)

	switch {
	case err == nil && claims.Kind != kind:
		return Claims{}, fmt.Errorf("got token of kind %q: %w", claims.Kind, apperrors.ErrTokenKindMismatch)
	case err == nil:
		return *claims, nil
	case errors.Is(err, jwt.ErrTokenExpired):
		return Claims{}, fmt.Errorf("error while validating token. Err: %w", apperrors.ErrTokenExpired)
	default:
		return Claims{}, fmt.Errorf("error while parsing token: %v. Err: %w", err, apperrors.ErrTokenInvalid)
	}
}

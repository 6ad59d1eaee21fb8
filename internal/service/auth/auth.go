package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/finxlab/finx/internal/apperrors"
	"github.com/finxlab/finx/internal/logger"
	"github.com/finxlab/finx/internal/models"
	"github.com/finxlab/finx/internal/repository"
	"github.com/finxlab/finx/internal/service/auth/tokenmanager"
)

type Config struct {
	// Hasher to use during registration or login
	// Defaults to DefaultHasher
	Hasher PasswordHasher

	// Logger for security relevant events
	// Defaults to no-op
	Logger logger.Logger
}

// Auth service composes the password hasher, the token manager and the user
// repository into register/login/refresh/logout flows
type AuthService struct {
	tokens   *tokenmanager.TokenManager
	hasher   PasswordHasher
	userRepo repository.UserRepo
	logger   logger.Logger
}

func NewService(cfg Config, tokens *tokenmanager.TokenManager, userRepo repository.UserRepo) (*AuthService, error) {
	if tokens == nil || userRepo == nil {
		return nil, errors.New("token manager and user repo must not be nil")
	}

	hasher := cfg.Hasher
	if hasher == nil {
		hasher = DefaultHasher
	}

	log := cfg.Logger
	if log == nil {
		log = logger.NewNoOpLogger()
	}

	return &AuthService{
		tokens:   tokens,
		hasher:   hasher,
		userRepo: userRepo,
		logger:   log,
	}, nil
}

func (s *AuthService) Register(ctx context.Context, email string, password string, firstName string, lastName string) (models.User, models.TokenPair, error) {
	hash, err := s.hasher.Hash(password)
	if err != nil {
		return models.User{}, models.TokenPair{}, fmt.Errorf("can't use this as password. Err: %w", err)
	}

	user, err := s.userRepo.CreateUser(ctx, models.User{
		Email:          email,
		HashedPassword: hash,
		FirstName:      firstName,
		LastName:       lastName,
	})
	if err != nil {
		return models.User{}, models.TokenPair{}, err
	}

	pair, err := s.tokens.IssuePair(ctx, user.ID, user.Email)
	if err != nil {
		return models.User{}, models.TokenPair{}, fmt.Errorf("token could not be generated. Err: %w", err)
	}

	return user, pair, nil
}

// Login verifies credentials and issues a fresh pair.
// Unknown email and wrong password are indistinguishable for the caller.
func (s *AuthService) Login(ctx context.Context, email string, password string) (models.User, models.TokenPair, error) {
	user, err := s.userRepo.GetUserByEmail(ctx, email)

	switch {
	case errors.Is(err, apperrors.ErrUserNotFound):
		// Burn comparable time on a throwaway hash so unknown email is not
		// distinguishable by duration either
		_ = s.hasher.Compare("$2a$12$C6UzMDM.H6dfI/f/IKcEeO5RpLK0hOQ6M6uC5E1d7r9cT7dY5eGxW", password)
		return models.User{}, models.TokenPair{}, apperrors.ErrInvalidCredentials
	case err != nil:
		return models.User{}, models.TokenPair{}, err
	}

	if err := s.hasher.Compare(user.HashedPassword, password); err != nil {
		return models.User{}, models.TokenPair{}, apperrors.ErrInvalidCredentials
	}

	now := time.Now()
	if err := s.userRepo.SetLastLogin(ctx, user.ID, now); err != nil {
		s.logger.Warn("Failed to set last login", "error", err, "user_id", user.ID)
	} else {
		user.LastLoginAt = &now
	}

	pair, err := s.tokens.IssuePair(ctx, user.ID, user.Email)
	if err != nil {
		return models.User{}, models.TokenPair{}, fmt.Errorf("token could not be generated. Err: %w", err)
	}

	return user, pair, nil
}

// Refresh rotates the refresh token and returns a new pair.
// Reuse of an already rotated token is logged as a possible theft signal.
func (s *AuthService) Refresh(ctx context.Context, refresh string) (models.TokenPair, error) {
	pair, err := s.tokens.Rotate(ctx, refresh)
	if err != nil {
		if errors.Is(err, apperrors.ErrRefreshTokenRevoked) {
			s.logger.Warn("Revoked refresh token reused, possible credential theft")
		}
		return models.TokenPair{}, err
	}

	return pair, nil
}

// Logout revokes a single refresh token.
// Revoking a token that is gone or revoked already is not an error: the
// caller's goal state is reached either way.
func (s *AuthService) Logout(ctx context.Context, refresh string) error {
	err := s.tokens.Revoke(ctx, refresh)

	switch {
	case err == nil:
		return nil
	case errors.Is(err, apperrors.ErrRefreshTokenNotFound), errors.Is(err, apperrors.ErrRefreshTokenRevoked):
		return nil
	default:
		return err
	}
}

// LogoutAll revokes every session of the user
func (s *AuthService) LogoutAll(ctx context.Context, userID uuid.UUID) error {
	count, err := s.tokens.RevokeAllForUser(ctx, userID)
	if err != nil {
		return err
	}

	s.logger.Info("Revoked all user sessions", "user_id", userID, "count", count)
	return nil
}

// Authenticate validates an access token and resolves the user
func (s *AuthService) Authenticate(ctx context.Context, access string) (models.User, error) {
	claims, err := s.tokens.ParseAccess(ctx, access)
	if err != nil {
		return models.User{}, err
	}

	user, err := s.userRepo.GetUserByID(ctx, claims.UserID)
	if err != nil {
		return models.User{}, err
	}

	return user, nil
}

package apperrors

import (
	"errors"
)

var (
	ErrUserAlreadyExists  = errors.New("user already exists")
	ErrUserNotFound       = errors.New("user not found")
	ErrInvalidCredentials = errors.New("invalid email or password")

	ErrTokenInvalid         = errors.New("token signature or claims invalid")
	ErrTokenExpired         = errors.New("token is expired")
	ErrTokenKindMismatch    = errors.New("token kind does not match expected")
	ErrRefreshTokenNotFound = errors.New("refresh token not found")
	ErrRefreshTokenRevoked  = errors.New("refresh token is revoked")

	ErrPortfolioNotFound = errors.New("portfolio not found")
	ErrQuoteNotFound     = errors.New("market quote not found")
)

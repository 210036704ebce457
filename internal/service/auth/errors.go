// Package auth provides token issuance and password verification services.
package auth

import "errors"

// Token validation errors.
var (
	// ErrInvalidToken is returned when a token is malformed or its
	// signature does not verify.
	ErrInvalidToken = errors.New("invalid token")

	// ErrExpiredToken is returned when a token's expiry has passed.
	ErrExpiredToken = errors.New("token expired")

	// ErrTokenNotYetValid is returned when a token's not-before claim is
	// in the future.
	ErrTokenNotYetValid = errors.New("token not yet valid")

	// ErrWrongTokenType is returned when an access token is presented
	// where a refresh token is expected, or vice versa.
	ErrWrongTokenType = errors.New("wrong token type")

	// ErrInvalidRefreshToken is returned when a refresh token is malformed
	// or its signature does not verify.
	ErrInvalidRefreshToken = errors.New("invalid refresh token")

	// ErrExpiredRefreshToken is returned when a refresh token's expiry has
	// passed.
	ErrExpiredRefreshToken = errors.New("refresh token expired")
)

package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/phrazzld/matrix-api/internal/cache"
	"github.com/phrazzld/matrix-api/internal/domain"
	"github.com/phrazzld/matrix-api/internal/service/auth"
	"github.com/phrazzld/matrix-api/internal/store"
)

// UserRegistrar provisions a new user account. Implemented by
// service.AccountService in production.
type UserRegistrar interface {
	RegisterUser(ctx context.Context, email, password string) (*domain.User, error)
}

// AuthHandler handles registration, login, and token refresh. Used refresh
// token IDs are tracked in the session cache tier so each refresh token is
// redeemable once.
type AuthHandler struct {
	registrar        UserRegistrar
	userStore        store.UserStore
	jwtService       auth.JWTService
	passwordVerifier auth.PasswordVerifier
	cacheMgr         *cache.Manager
	validator        *validator.Validate
}

// NewAuthHandler creates an AuthHandler with the given dependencies.
func NewAuthHandler(
	registrar UserRegistrar,
	userStore store.UserStore,
	jwtService auth.JWTService,
	passwordVerifier auth.PasswordVerifier,
	cacheMgr *cache.Manager,
) *AuthHandler {
	return &AuthHandler{
		registrar:        registrar,
		userStore:        userStore,
		jwtService:       jwtService,
		passwordVerifier: passwordVerifier,
		cacheMgr:         cacheMgr,
		validator:        validator.New(),
	}
}

// Register handles POST /auth/register.
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := DecodeJSON(r, &req); err != nil {
		RespondWithError(w, r, http.StatusBadRequest, "Invalid request format")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		RespondWithError(w, r, http.StatusBadRequest, SanitizeValidationError(err))
		return
	}

	user, err := h.registrar.RegisterUser(r.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, store.ErrEmailExists) {
			RespondWithError(w, r, http.StatusConflict, "Email already exists")
			return
		}
		if errors.Is(err, domain.ErrValidation) {
			RespondWithError(w, r, http.StatusBadRequest, "Invalid request data")
			return
		}
		slog.Error("failed to register user", "error", err)
		RespondWithError(w, r, http.StatusInternalServerError, "Failed to create user")
		return
	}

	accessToken, refreshToken, ok := h.issueTokenPair(w, r, user.ID)
	if !ok {
		return
	}

	RespondWithJSON(w, r, http.StatusCreated, AuthResponse{
		UserID:       user.ID,
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
	})
}

// Login handles POST /auth/login.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := DecodeJSON(r, &req); err != nil {
		RespondWithError(w, r, http.StatusBadRequest, "Invalid request format")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		RespondWithError(w, r, http.StatusBadRequest, SanitizeValidationError(err))
		return
	}

	user, err := h.userStore.GetByEmail(r.Context(), req.Email)
	if err != nil {
		if errors.Is(err, store.ErrUserNotFound) {
			RespondWithError(w, r, http.StatusUnauthorized, "Invalid credentials")
			return
		}
		slog.Error("failed to get user by email", "error", err)
		RespondWithError(w, r, http.StatusInternalServerError, "Failed to authenticate user")
		return
	}

	if err := h.passwordVerifier.Compare(user.HashedPassword, req.Password); err != nil {
		RespondWithError(w, r, http.StatusUnauthorized, "Invalid credentials")
		return
	}

	accessToken, refreshToken, ok := h.issueTokenPair(w, r, user.ID)
	if !ok {
		return
	}

	RespondWithJSON(w, r, http.StatusOK, AuthResponse{
		UserID:       user.ID,
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
	})
}

// RefreshToken handles POST /auth/refresh. A valid refresh token yields a
// fresh token pair; the old refresh token is not reusable once expired.
func (h *AuthHandler) RefreshToken(w http.ResponseWriter, r *http.Request) {
	var req RefreshTokenRequest
	if err := DecodeJSON(r, &req); err != nil {
		RespondWithError(w, r, http.StatusBadRequest, "Invalid request format")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		RespondWithError(w, r, http.StatusBadRequest, SanitizeValidationError(err))
		return
	}

	claims, err := h.jwtService.ValidateRefreshToken(r.Context(), req.RefreshToken)
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	usedKey := "refresh-used:" + claims.ID
	if h.cacheMgr.Has(cache.TierSession, usedKey) {
		RespondWithError(w, r, http.StatusUnauthorized, "Invalid refresh token")
		return
	}

	accessToken, refreshToken, ok := h.issueTokenPair(w, r, claims.UserID)
	if !ok {
		return
	}

	// Retire the redeemed token for the rest of its lifetime.
	if ttl := time.Until(claims.ExpiresAt); ttl > 0 {
		if err := h.cacheMgr.Set(cache.TierSession, usedKey, true, ttl); err != nil {
			slog.Warn("failed to record used refresh token", "error", err)
		}
	}

	RespondWithJSON(w, r, http.StatusOK, RefreshTokenResponse{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
	})
}

// issueTokenPair generates an access and refresh token for the user. On
// failure it writes the error response and returns false.
func (h *AuthHandler) issueTokenPair(w http.ResponseWriter, r *http.Request, userID uuid.UUID) (string, string, bool) {
	accessToken, err := h.jwtService.GenerateToken(r.Context(), userID)
	if err != nil {
		slog.Error("failed to generate access token", "error", err, "user_id", userID)
		RespondWithError(w, r, http.StatusInternalServerError, "Failed to generate authentication token")
		return "", "", false
	}

	refreshToken, err := h.jwtService.GenerateRefreshToken(r.Context(), userID)
	if err != nil {
		slog.Error("failed to generate refresh token", "error", err, "user_id", userID)
		RespondWithError(w, r, http.StatusInternalServerError, "Failed to generate authentication token")
		return "", "", false
	}

	return accessToken, refreshToken, true
}

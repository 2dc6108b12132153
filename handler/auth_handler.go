// file: handler/auth_handler.go

package handler

import (
	"book-club-api/common"
	"book-club-api/config"
	"book-club-api/model"
	"book-club-api/service"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"time"
)

// AuthHandler exposes the credential lifecycle over HTTP. The refresh token
// travels exclusively in an HttpOnly cookie; response bodies carry only the
// access token.
type AuthHandler struct {
	authService service.IAuthService
}

// NewAuthHandler creates a new AuthHandler.
func NewAuthHandler(authService service.IAuthService) *AuthHandler {
	return &AuthHandler{authService: authService}
}

func sessionMetadataFromRequest(r *http.Request) model.SessionMetadata {
	ip := r.Header.Get("X-Forwarded-For")
	if ip == "" {
		if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
			ip = host
		} else {
			ip = r.RemoteAddr
		}
	}
	return model.SessionMetadata{
		DeviceInfo: r.UserAgent(),
		IPAddress:  ip,
	}
}

func setRefreshCookie(w http.ResponseWriter, token string, expires time.Time) {
	http.SetCookie(w, &http.Cookie{
		Name:     config.AppConfig.Refresh.CookieName,
		Value:    token,
		Path:     config.AppConfig.Refresh.CookiePath,
		Expires:  expires,
		HttpOnly: true,
		Secure:   config.AppConfig.Refresh.CookieSecure,
		SameSite: http.SameSiteStrictMode,
	})
}

func clearRefreshCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     config.AppConfig.Refresh.CookieName,
		Value:    "",
		Path:     config.AppConfig.Refresh.CookiePath,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   config.AppConfig.Refresh.CookieSecure,
		SameSite: http.SameSiteStrictMode,
	})
}

func (h *AuthHandler) refreshTokenFromCookie(r *http.Request) string {
	cookie, err := r.Cookie(config.AppConfig.Refresh.CookieName)
	if err != nil {
		return ""
	}
	return cookie.Value
}

// LogoutAll godoc
// @Summary      Close every session of the authenticated user
// @Description  Revokes all refresh credentials across devices and clears the cookie
// @Tags         auth
// @Security     BearerAuth
// @Success      204
// @Failure      401 {object} common.AppError
// @Router       /auth/logout-all [post]
func (h *AuthHandler) LogoutAll(w http.ResponseWriter, r *http.Request) *common.AppError {
	userID, ok := r.Context().Value(UserIDKey).(int)
	if !ok {
		return common.NewAppError(http.StatusUnauthorized, "Missing user identity", nil)
	}

	if err := h.authService.LogoutAll(r.Context(), userID); err != nil {
		return common.NewAppError(http.StatusInternalServerError, "Error logging out", err)
	}

	clearRefreshCookie(w)
	w.WriteHeader(http.StatusNoContent)
	return nil
}

// Register godoc
// @Summary      Register a new user
// @Description  Creates a user, opens a session and sets the refresh cookie
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        request body model.RegisterRequest true "Registration payload"
// @Success      201 {object} model.TokenResponse
// @Failure      400 {object} common.AppError
// @Router       /auth/register [post]
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) *common.AppError {
	var req model.RegisterRequest
	if !common.ValidateAndDecode(w, r, &req) {
		return nil
	}

	_, pair, err := h.authService.Register(r.Context(), req, sessionMetadataFromRequest(r))
	if err != nil {
		switch {
		case errors.Is(err, service.ErrEmailTaken), errors.Is(err, service.ErrUsernameTaken):
			return common.NewAppError(http.StatusBadRequest, err.Error(), nil)
		default:
			return common.NewAppError(http.StatusInternalServerError, "Error creating user", err)
		}
	}

	setRefreshCookie(w, pair.RefreshToken, pair.RefreshExpiresAt)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(model.TokenResponse{AccessToken: pair.AccessToken})
	return nil
}

// Login godoc
// @Summary      Authenticate a user
// @Description  Verifies credentials, opens a session and sets the refresh cookie
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        request body model.LoginRequest true "Login payload"
// @Success      200 {object} model.TokenResponse
// @Failure      401 {object} common.AppError
// @Router       /auth/login [post]
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) *common.AppError {
	var req model.LoginRequest
	if !common.ValidateAndDecode(w, r, &req) {
		return nil
	}

	_, pair, err := h.authService.Login(r.Context(), req, sessionMetadataFromRequest(r))
	if err != nil {
		if errors.Is(err, service.ErrInvalidCredentials) {
			return common.NewAppError(http.StatusUnauthorized, err.Error(), nil)
		}
		return common.NewAppError(http.StatusInternalServerError, "Error logging in", err)
	}

	setRefreshCookie(w, pair.RefreshToken, pair.RefreshExpiresAt)
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(model.TokenResponse{AccessToken: pair.AccessToken})
	return nil
}

// Refresh godoc
// @Summary      Rotate the refresh token
// @Description  Exchanges the refresh cookie for a new access token and a rotated refresh cookie
// @Tags         auth
// @Produce      json
// @Success      200 {object} model.TokenResponse
// @Failure      401 {object} common.AppError
// @Router       /auth/refresh [post]
func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) *common.AppError {
	rawToken := h.refreshTokenFromCookie(r)
	if rawToken == "" {
		return common.NewAppError(http.StatusUnauthorized, service.ErrSessionInvalid.Error(), nil)
	}

	pair, err := h.authService.Refresh(r.Context(), rawToken, sessionMetadataFromRequest(r))
	if err != nil {
		switch {
		case errors.Is(err, service.ErrSessionInvalid),
			errors.Is(err, service.ErrSessionCompromised),
			errors.Is(err, service.ErrSessionExpired):
			// Terminal for the client: the stale cookie is cleared so the
			// browser cannot keep replaying it.
			clearRefreshCookie(w)
			return common.NewAppError(http.StatusUnauthorized, err.Error(), nil)
		default:
			return common.NewAppError(http.StatusInternalServerError, "Error refreshing session", err)
		}
	}

	setRefreshCookie(w, pair.RefreshToken, pair.RefreshExpiresAt)
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(model.TokenResponse{AccessToken: pair.AccessToken})
	return nil
}

// Logout godoc
// @Summary      Close the current session
// @Description  Revokes the refresh credential and clears the cookie. Idempotent.
// @Tags         auth
// @Success      204
// @Router       /auth/logout [post]
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) *common.AppError {
	rawToken := h.refreshTokenFromCookie(r)

	if err := h.authService.Logout(r.Context(), rawToken); err != nil {
		return common.NewAppError(http.StatusInternalServerError, "Error logging out", err)
	}

	clearRefreshCookie(w)
	w.WriteHeader(http.StatusNoContent)
	return nil
}

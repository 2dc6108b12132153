// handler/auth_handler_test.go
package handler

import (
	"book-club-api/config"
	"book-club-api/model"
	"book-club-api/service"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

func TestMain(m *testing.M) {
	config.AppConfig.JWT.SecretKey = "test-secret-key"
	config.AppConfig.JWT.AccessTTL = 15 * time.Minute
	config.AppConfig.Refresh.TTL = 720 * time.Hour
	config.AppConfig.Refresh.CookieName = "refresh_token"
	config.AppConfig.Refresh.CookiePath = "/auth"
	os.Exit(m.Run())
}

type mockAuthService struct{ mock.Mock }

func (m *mockAuthService) Register(ctx context.Context, req model.RegisterRequest, meta model.SessionMetadata) (*model.User, *service.TokenPair, error) {
	args := m.Called(req)
	if args.Get(1) == nil {
		return nil, nil, args.Error(2)
	}
	return args.Get(0).(*model.User), args.Get(1).(*service.TokenPair), args.Error(2)
}
func (m *mockAuthService) Login(ctx context.Context, req model.LoginRequest, meta model.SessionMetadata) (*model.User, *service.TokenPair, error) {
	args := m.Called(req)
	if args.Get(1) == nil {
		return nil, nil, args.Error(2)
	}
	return args.Get(0).(*model.User), args.Get(1).(*service.TokenPair), args.Error(2)
}
func (m *mockAuthService) Refresh(ctx context.Context, rawToken string, meta model.SessionMetadata) (*service.TokenPair, error) {
	args := m.Called(rawToken)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.TokenPair), args.Error(1)
}
func (m *mockAuthService) Logout(ctx context.Context, rawToken string) error {
	args := m.Called(rawToken)
	return args.Error(0)
}
func (m *mockAuthService) LogoutAll(ctx context.Context, userID int) error {
	args := m.Called(userID)
	return args.Error(0)
}

func refreshCookie(rr *httptest.ResponseRecorder) *http.Cookie {
	for _, c := range rr.Result().Cookies() {
		if c.Name == config.AppConfig.Refresh.CookieName {
			return c
		}
	}
	return nil
}

func TestAuthHandler_Login(t *testing.T) {
	t.Run("success sets refresh cookie", func(t *testing.T) {
		authService := new(mockAuthService)
		pair := &service.TokenPair{
			AccessToken:      "access-1",
			RefreshToken:     "refresh-1",
			RefreshExpiresAt: time.Now().Add(time.Hour),
		}
		authService.On("Login", mock.Anything).
			Return(&model.User{ID: 7}, pair, nil).Once()

		h := NewAuthHandler(authService)
		req := httptest.NewRequest("POST", "/auth/login",
			strings.NewReader(`{"email":"reader@example.com","password":"password123"}`))
		rr := httptest.NewRecorder()

		ErrorHandlingMiddleware(h.Login).ServeHTTP(rr, req)

		assert.Equal(t, http.StatusOK, rr.Code)
		assert.JSONEq(t, `{"access_token":"access-1"}`, rr.Body.String())

		cookie := refreshCookie(rr)
		assert.NotNil(t, cookie)
		assert.Equal(t, "refresh-1", cookie.Value)
		assert.True(t, cookie.HttpOnly)
		assert.Equal(t, "/auth", cookie.Path)
	})

	t.Run("bad credentials", func(t *testing.T) {
		authService := new(mockAuthService)
		authService.On("Login", mock.Anything).
			Return(nil, nil, service.ErrInvalidCredentials).Once()

		h := NewAuthHandler(authService)
		req := httptest.NewRequest("POST", "/auth/login",
			strings.NewReader(`{"email":"reader@example.com","password":"wrongpass1"}`))
		rr := httptest.NewRecorder()

		ErrorHandlingMiddleware(h.Login).ServeHTTP(rr, req)

		assert.Equal(t, http.StatusUnauthorized, rr.Code)
		assert.Nil(t, refreshCookie(rr))
	})

	t.Run("invalid payload is rejected before the service", func(t *testing.T) {
		authService := new(mockAuthService)
		h := NewAuthHandler(authService)
		req := httptest.NewRequest("POST", "/auth/login", strings.NewReader(`{"email":"not-an-email"}`))
		rr := httptest.NewRecorder()

		ErrorHandlingMiddleware(h.Login).ServeHTTP(rr, req)

		assert.Equal(t, http.StatusBadRequest, rr.Code)
		authService.AssertNotCalled(t, "Login")
	})
}

func TestAuthHandler_Refresh(t *testing.T) {
	t.Run("missing cookie", func(t *testing.T) {
		authService := new(mockAuthService)
		h := NewAuthHandler(authService)
		req := httptest.NewRequest("POST", "/auth/refresh", nil)
		rr := httptest.NewRecorder()

		ErrorHandlingMiddleware(h.Refresh).ServeHTTP(rr, req)

		assert.Equal(t, http.StatusUnauthorized, rr.Code)
		authService.AssertNotCalled(t, "Refresh")
	})

	t.Run("success rotates the cookie", func(t *testing.T) {
		authService := new(mockAuthService)
		pair := &service.TokenPair{
			AccessToken:      "access-2",
			RefreshToken:     "refresh-2",
			RefreshExpiresAt: time.Now().Add(time.Hour),
		}
		authService.On("Refresh", "refresh-1").Return(pair, nil).Once()

		h := NewAuthHandler(authService)
		req := httptest.NewRequest("POST", "/auth/refresh", nil)
		req.AddCookie(&http.Cookie{Name: config.AppConfig.Refresh.CookieName, Value: "refresh-1"})
		rr := httptest.NewRecorder()

		ErrorHandlingMiddleware(h.Refresh).ServeHTTP(rr, req)

		assert.Equal(t, http.StatusOK, rr.Code)
		assert.JSONEq(t, `{"access_token":"access-2"}`, rr.Body.String())

		cookie := refreshCookie(rr)
		assert.NotNil(t, cookie)
		assert.Equal(t, "refresh-2", cookie.Value)
		authService.AssertExpectations(t)
	})

	t.Run("terminal session error clears the cookie", func(t *testing.T) {
		for _, terminal := range []error{
			service.ErrSessionInvalid,
			service.ErrSessionCompromised,
			service.ErrSessionExpired,
		} {
			authService := new(mockAuthService)
			authService.On("Refresh", "stale").Return(nil, terminal).Once()

			h := NewAuthHandler(authService)
			req := httptest.NewRequest("POST", "/auth/refresh", nil)
			req.AddCookie(&http.Cookie{Name: config.AppConfig.Refresh.CookieName, Value: "stale"})
			rr := httptest.NewRecorder()

			ErrorHandlingMiddleware(h.Refresh).ServeHTTP(rr, req)

			assert.Equal(t, http.StatusUnauthorized, rr.Code, terminal.Error())
			cookie := refreshCookie(rr)
			assert.NotNil(t, cookie, terminal.Error())
			assert.Empty(t, cookie.Value, terminal.Error())
			assert.Negative(t, cookie.MaxAge, terminal.Error())
		}
	})
}

func TestAuthHandler_Logout(t *testing.T) {
	t.Run("revokes and clears the cookie", func(t *testing.T) {
		authService := new(mockAuthService)
		authService.On("Logout", "refresh-1").Return(nil).Once()

		h := NewAuthHandler(authService)
		req := httptest.NewRequest("POST", "/auth/logout", nil)
		req.AddCookie(&http.Cookie{Name: config.AppConfig.Refresh.CookieName, Value: "refresh-1"})
		rr := httptest.NewRecorder()

		ErrorHandlingMiddleware(h.Logout).ServeHTTP(rr, req)

		assert.Equal(t, http.StatusNoContent, rr.Code)
		authService.AssertExpectations(t)
	})

	t.Run("idempotent without a cookie", func(t *testing.T) {
		authService := new(mockAuthService)
		authService.On("Logout", "").Return(nil).Once()

		h := NewAuthHandler(authService)
		req := httptest.NewRequest("POST", "/auth/logout", nil)
		rr := httptest.NewRecorder()

		ErrorHandlingMiddleware(h.Logout).ServeHTTP(rr, req)

		assert.Equal(t, http.StatusNoContent, rr.Code)
	})
}

func TestAuthHandler_LogoutAll(t *testing.T) {
	t.Run("revokes every session of the user", func(t *testing.T) {
		authService := new(mockAuthService)
		authService.On("LogoutAll", 7).Return(nil).Once()

		h := NewAuthHandler(authService)
		req := httptest.NewRequest("POST", "/auth/logout-all", nil)
		req = req.WithContext(context.WithValue(req.Context(), UserIDKey, 7))
		rr := httptest.NewRecorder()

		ErrorHandlingMiddleware(h.LogoutAll).ServeHTTP(rr, req)

		assert.Equal(t, http.StatusNoContent, rr.Code)
		authService.AssertExpectations(t)
	})

	t.Run("rejected without identity", func(t *testing.T) {
		authService := new(mockAuthService)
		h := NewAuthHandler(authService)
		req := httptest.NewRequest("POST", "/auth/logout-all", nil)
		rr := httptest.NewRecorder()

		ErrorHandlingMiddleware(h.LogoutAll).ServeHTTP(rr, req)

		assert.Equal(t, http.StatusUnauthorized, rr.Code)
		authService.AssertNotCalled(t, "LogoutAll")
	})
}

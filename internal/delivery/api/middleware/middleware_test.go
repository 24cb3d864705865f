package middleware

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"marketplace/config"
	"marketplace/internal/delivery/api/response"
	deliverycontext "marketplace/internal/delivery/context"
	deliverymiddleware "marketplace/internal/delivery/middleware"
	"marketplace/internal/domain/entity"
	domainerrors "marketplace/internal/domain/errors"
	"marketplace/internal/usecase"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubAuth resolves the token "good" to a company identity.
type stubAuth struct {
	usecase.AuthUsecase
	identity *entity.Identity
}

func (s *stubAuth) Authenticate(_ context.Context, token string) (*entity.Identity, error) {
	switch token {
	case "good":
		return s.identity, nil
	case "expired":
		return nil, domainerrors.ErrTokenExpired.WrapMessage("token is expired")
	default:
		return nil, domainerrors.ErrTokenInvalid.WrapMessage("bad signature")
	}
}

func newTestEcho() *echo.Echo {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	e := echo.New()
	e.Use(deliverymiddleware.NewRequestIDMiddleware(logger).Process)
	e.HTTPErrorHandler = NewErrorMiddleware(logger).HandleHTTPError

	return e
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) response.ErrorResponse {
	t.Helper()

	var body response.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.NotNil(t, body.Error)

	return body
}

func TestAuthMiddleware_Authenticate(t *testing.T) {
	identity := &entity.Identity{ID: 9, Role: entity.RoleCompany}
	mw := NewAuthMiddleware(AuthMiddlewareParams{
		AuthUC: &stubAuth{identity: identity},
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	})

	tests := []struct {
		name     string
		header   string
		wantCode int
		wantErr  string
	}{
		{"missing header", "", http.StatusUnauthorized, "UNAUTHORIZED"},
		{"wrong scheme", "Basic abc", http.StatusUnauthorized, "TOKEN_MALFORMED"},
		{"empty token", "Bearer   ", http.StatusUnauthorized, "TOKEN_MALFORMED"},
		{"expired token", "Bearer expired", http.StatusUnauthorized, "TOKEN_EXPIRED"},
		{"invalid token", "Bearer forged", http.StatusUnauthorized, "TOKEN_INVALID"},
		{"valid token", "bearer good", http.StatusOK, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newTestEcho()
			e.GET("/me", func(c echo.Context) error {
				got, ok := CurrentIdentity(c)
				require.True(t, ok)
				fromCtx, ok := deliverycontext.IdentityFromContext(c.Request().Context())
				require.True(t, ok)
				assert.Same(t, got, fromCtx)

				return c.NoContent(http.StatusOK)
			}, mw.Authenticate)

			req := httptest.NewRequest(http.MethodGet, "/me", nil)
			if tt.header != "" {
				req.Header.Set(echo.HeaderAuthorization, tt.header)
			}
			rec := httptest.NewRecorder()
			e.ServeHTTP(rec, req)

			assert.Equal(t, tt.wantCode, rec.Code)
			if tt.wantErr != "" {
				body := decodeError(t, rec)
				assert.Equal(t, tt.wantErr, body.Error.Code)
				assert.Nil(t, body.Error.Details)
			}
		})
	}
}

func TestAuthMiddleware_RequireRole(t *testing.T) {
	mw := NewAuthMiddleware(AuthMiddlewareParams{
		AuthUC: &stubAuth{identity: &entity.Identity{ID: 9, Role: entity.RoleCompany}},
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	})

	e := newTestEcho()
	ok := func(c echo.Context) error { return c.NoContent(http.StatusOK) }
	e.GET("/admin", ok, mw.Authenticate, mw.RequireRole(entity.RoleAdmin))
	e.GET("/partners", ok, mw.Authenticate, mw.RequireRole(entity.RoleCompany, entity.RoleThreePL))

	for path, want := range map[string]int{"/admin": http.StatusForbidden, "/partners": http.StatusOK} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		req.Header.Set(echo.HeaderAuthorization, "Bearer good")
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, req)
		assert.Equal(t, want, rec.Code, path)
	}
}

func TestErrorMiddleware_Rendering(t *testing.T) {
	tests := []struct {
		name        string
		err         error
		wantCode    int
		wantErrCode string
		wantDetails bool
	}{
		{
			name:        "app error keeps details",
			err:         errors.Wrap(domainerrors.ErrInvalidCode.WithDetails(map[string]any{"email": "invalid"}), "verify"),
			wantCode:    http.StatusBadRequest,
			wantErrCode: "INVALID_CODE",
			wantDetails: true,
		},
		{
			name:        "forbidden keeps details",
			err:         domainerrors.ErrNotVerified.WithDetails(map[string]any{"user_id": 1}),
			wantCode:    http.StatusForbidden,
			wantErrCode: "NOT_VERIFIED",
			wantDetails: true,
		},
		{
			name:        "server error hides details",
			err:         domainerrors.ErrStorageFailed.WithDetails("disk full"),
			wantCode:    http.StatusInternalServerError,
			wantErrCode: "STORAGE_FAILED",
		},
		{
			name:        "echo error",
			err:         echo.ErrNotFound,
			wantCode:    http.StatusNotFound,
			wantErrCode: "HTTP_ERROR",
		},
		{
			name:        "unknown error",
			err:         errors.New("boom"),
			wantCode:    http.StatusInternalServerError,
			wantErrCode: "INTERNAL_ERROR",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newTestEcho()
			e.GET("/", func(echo.Context) error { return tt.err })

			rec := httptest.NewRecorder()
			e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

			assert.Equal(t, tt.wantCode, rec.Code)
			body := decodeError(t, rec)
			assert.Equal(t, tt.wantErrCode, body.Error.Code)
			assert.Equal(t, tt.wantDetails, body.Error.Details != nil)
			assert.NotEmpty(t, body.Meta.RequestID)
		})
	}
}

func TestRateLimitMiddleware(t *testing.T) {
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	m := newRateLimitMiddleware(&config.RateLimitConfig{Enabled: true, RequestsPerSecond: 1, Burst: 2}, slog.Default())
	m.now = func() time.Time { return now }

	e := newTestEcho()
	e.GET("/", func(c echo.Context) error { return c.NoContent(http.StatusOK) }, m.Handle)

	hit := func(ip string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = ip + ":1234"
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, req)

		return rec
	}

	assert.Equal(t, http.StatusOK, hit("10.0.0.1").Code)
	assert.Equal(t, http.StatusOK, hit("10.0.0.1").Code)

	limited := hit("10.0.0.1")
	assert.Equal(t, http.StatusTooManyRequests, limited.Code)
	assert.Equal(t, "1", limited.Header().Get("Retry-After"))
	assert.Equal(t, "RATE_LIMITED", decodeError(t, limited).Error.Code)

	assert.Equal(t, http.StatusOK, hit("10.0.0.2").Code, "buckets are per IP")

	now = now.Add(time.Second)
	assert.Equal(t, http.StatusOK, hit("10.0.0.1").Code, "bucket refills")

	now = now.Add(visitorIdleTTL + time.Second)
	assert.Equal(t, 2, m.evictIdle(visitorIdleTTL))
}

func TestRateLimitMiddleware_Disabled(t *testing.T) {
	m := newRateLimitMiddleware(&config.RateLimitConfig{RequestsPerSecond: 1, Burst: 1}, slog.Default())

	e := newTestEcho()
	e.GET("/", func(c echo.Context) error { return c.NoContent(http.StatusOK) }, m.Handle)

	for range 5 {
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		assert.Equal(t, http.StatusOK, rec.Code)
	}
}

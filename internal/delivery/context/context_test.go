package context

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"marketplace/internal/domain/entity"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequestID(t *testing.T) {
	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)

	assert.Empty(t, GetRequestID(c), "no ID is invented outside the middleware")

	SetRequestID(c, "req-1")
	assert.Equal(t, "req-1", GetRequestID(c))
	assert.Equal(t, "req-1", GetRequestIDFromContext(c.Request().Context()))
	assert.Equal(t, "req-1", rec.Header().Get(HeaderXRequestID))

	// A fresh echo context over the same request still resolves the ID.
	c2 := e.NewContext(c.Request(), httptest.NewRecorder())
	assert.Equal(t, "req-1", GetRequestID(c2))
}

func TestIdentityRoundTrip(t *testing.T) {
	e := echo.New()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), httptest.NewRecorder())

	_, ok := GetIdentity(c)
	assert.False(t, ok)
	_, ok = IdentityFromContext(c.Request().Context())
	assert.False(t, ok)

	identity := &entity.Identity{ID: 42, Role: entity.RoleCompany}
	SetIdentity(c, identity)

	got, ok := GetIdentity(c)
	require.True(t, ok)
	assert.Equal(t, int64(42), got.ID)

	fromCtx, ok := IdentityFromContext(c.Request().Context())
	require.True(t, ok)
	assert.Same(t, identity, fromCtx)
}

func TestGetLoggerOrDefault(t *testing.T) {
	fallback := newTestLogger()
	assert.Same(t, fallback, GetLoggerOrDefault(context.Background(), fallback))

	scoped := newTestLogger()
	ctx := WithLogger(context.Background(), scoped)
	assert.Same(t, scoped, GetLoggerOrDefault(ctx, fallback))
}

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

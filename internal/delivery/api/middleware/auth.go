package middleware

import (
	"log/slog"
	"slices"
	"strings"

	deliverycontext "marketplace/internal/delivery/context"
	"marketplace/internal/domain/entity"
	domainerrors "marketplace/internal/domain/errors"
	"marketplace/internal/usecase"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	"go.uber.org/fx"
)

const bearerScheme = "bearer"

// AuthMiddlewareParams holds dependencies for AuthMiddleware, injected by Fx.
type AuthMiddlewareParams struct {
	fx.In

	AuthUC usecase.AuthUsecase
	Logger *slog.Logger
}

// AuthMiddleware is the session gateway for protected routes.
type AuthMiddleware struct {
	authUC usecase.AuthUsecase
	logger *slog.Logger
}

// NewAuthMiddleware is the constructor for AuthMiddleware.
func NewAuthMiddleware(params AuthMiddlewareParams) *AuthMiddleware {
	return &AuthMiddleware{
		authUC: params.AuthUC,
		logger: params.Logger,
	}
}

// Authenticate requires an "Authorization: Bearer <access token>" header,
// resolves the subject through the identity store and attaches it to the
// request. It performs no role check.
func (m *AuthMiddleware) Authenticate(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		token, err := bearerToken(c.Request().Header.Get(echo.HeaderAuthorization))
		if err != nil {
			return err
		}

		identity, err := m.authUC.Authenticate(c.Request().Context(), token)
		if err != nil {
			return err
		}

		deliverycontext.SetIdentity(c, identity)

		ctx := c.Request().Context()
		logger := deliverycontext.GetLoggerOrDefault(ctx, m.logger).With(slog.Int64("user_id", identity.ID))
		c.SetRequest(c.Request().WithContext(deliverycontext.WithLogger(ctx, logger)))

		return next(c)
	}
}

// RequireRole allows the request only when the session role is one of roles.
// It must be used after Authenticate.
func (m *AuthMiddleware) RequireRole(roles ...entity.Role) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			identity, ok := deliverycontext.GetIdentity(c)
			if !ok {
				return errors.WithStack(domainerrors.ErrUnauthorized)
			}
			if !slices.Contains(roles, identity.Role) {
				return domainerrors.ErrForbidden.WrapMessage("role " + identity.Role.String() + " not permitted")
			}

			return next(c)
		}
	}
}

// CurrentIdentity returns the identity attached by Authenticate.
func CurrentIdentity(c echo.Context) (*entity.Identity, bool) {
	return deliverycontext.GetIdentity(c)
}

// GetUserID returns the session subject.
func GetUserID(c echo.Context) (int64, bool) {
	identity, ok := deliverycontext.GetIdentity(c)
	if !ok {
		return 0, false
	}

	return identity.ID, true
}

func bearerToken(header string) (string, error) {
	if header == "" {
		return "", domainerrors.ErrUnauthorized.WrapMessage("authorization header is missing")
	}

	scheme, token, found := strings.Cut(strings.TrimSpace(header), " ")
	if !found || !strings.EqualFold(scheme, bearerScheme) {
		return "", domainerrors.ErrTokenMalformed.WrapMessage("authorization scheme must be Bearer")
	}

	token = strings.TrimSpace(token)
	if token == "" {
		return "", domainerrors.ErrTokenMalformed.WrapMessage("bearer token is empty")
	}

	return token, nil
}

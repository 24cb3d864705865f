package handler

import (
	"net/http"
	"strconv"

	"marketplace/internal/delivery/api/response"
	domainerrors "marketplace/internal/domain/errors"
	"marketplace/internal/usecase"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	"go.uber.org/fx"
)

// AdminHandlerParams holds dependencies for AdminHandler, injected by Fx.
type AdminHandlerParams struct {
	fx.In

	ProfileUC usecase.ProfileUsecase
}

// AdminHandler serves operator lookups. Routes are gated by RequireRole.
type AdminHandler struct {
	profileUC usecase.ProfileUsecase
}

// NewAdminHandler is the constructor for AdminHandler.
func NewAdminHandler(params AdminHandlerParams) *AdminHandler {
	return &AdminHandler{profileUC: params.ProfileUC}
}

// GetIdentity returns the sanitized view of any identity by ID.
func (h *AdminHandler) GetIdentity(c echo.Context) error {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		return errors.WithStack(domainerrors.ErrValidationFailed.WithDetails(map[string]string{"id": "must be a positive integer"}))
	}

	identity, err := h.profileUC.GetProfile(c.Request().Context(), id)
	if err != nil {
		return errors.WithStack(err)
	}

	return response.Success(c, http.StatusOK, toIdentityView(identity))
}

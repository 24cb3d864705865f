// Package handler contains the HTTP handlers for the identity API.
package handler

import (
	"log/slog"
	"net/http"

	"marketplace/internal/delivery/api/response"
	"marketplace/internal/usecase"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	"go.uber.org/fx"
)

const tokenTypeBearer = "Bearer"

// AuthHandlerParams holds dependencies for AuthHandler, injected by Fx.
type AuthHandlerParams struct {
	fx.In

	RegistrationUC usecase.RegistrationUsecase
	AuthUC         usecase.AuthUsecase
	PasswordUC     usecase.PasswordUsecase
	Logger         *slog.Logger
}

// AuthHandler serves registration, verification, login and password reset.
type AuthHandler struct {
	registrationUC usecase.RegistrationUsecase
	authUC         usecase.AuthUsecase
	passwordUC     usecase.PasswordUsecase
	logger         *slog.Logger
}

// NewAuthHandler is the constructor for AuthHandler.
func NewAuthHandler(params AuthHandlerParams) *AuthHandler {
	return &AuthHandler{
		registrationUC: params.RegistrationUC,
		authUC:         params.AuthUC,
		passwordUC:     params.PasswordUC,
		logger:         params.Logger,
	}
}

// bindAndValidate decodes the request into req and runs its validate tags.
func bindAndValidate(c echo.Context, req any) error {
	if err := c.Bind(req); err != nil {
		return err
	}

	return c.Validate(req)
}

// Register creates an identity and sends verification codes on both channels.
func (h *AuthHandler) Register(c echo.Context) error {
	var req RegisterRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	out, err := h.registrationUC.Register(c.Request().Context(), &usecase.RegisterInput{
		Name:          req.Name,
		Email:         req.Email,
		Password:      req.Password,
		ContactNumber: req.ContactNumber,
		Role:          req.Role,
	})
	if err != nil {
		return errors.WithStack(err)
	}

	return response.Success(c, http.StatusCreated, toRegisterResponse(out.Identity))
}

// VerifyOTP checks the submitted email and/or mobile codes.
func (h *AuthHandler) VerifyOTP(c echo.Context) error {
	var req VerifyOTPRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	out, err := h.registrationUC.VerifyOTP(c.Request().Context(), &usecase.VerifyOTPInput{
		IdentityLookup: usecase.IdentityLookup{UserID: req.UserID, Email: req.Email},
		EmailOTP:       req.EmailOTP,
		MobileOTP:      req.MobileOTP,
	})
	if err != nil {
		return errors.WithStack(err)
	}

	return response.Success(c, http.StatusOK, toVerifyOTPResponse(out))
}

// ResendOTP issues new codes for the channels that are still unverified.
func (h *AuthHandler) ResendOTP(c echo.Context) error {
	var req IdentityLookupRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	out, err := h.registrationUC.ResendOTP(c.Request().Context(), &usecase.IdentityLookup{
		UserID: req.UserID,
		Email:  req.Email,
	})
	if err != nil {
		return errors.WithStack(err)
	}

	return response.Success(c, http.StatusOK, toResendOTPResponse(out))
}

// Login handles the credential login request.
func (h *AuthHandler) Login(c echo.Context) error {
	var req LoginRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	out, err := h.authUC.Login(c.Request().Context(), &usecase.LoginInput{
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		return errors.WithStack(err)
	}

	return response.Success(c, http.StatusOK, &LoginResponse{
		AccessToken:      out.AccessToken,
		TokenType:        tokenTypeBearer,
		ExpiresIn:        int64(out.ExpiresIn.Seconds()),
		RefreshToken:     out.RefreshToken,
		RefreshExpiresAt: out.RefreshExpiresAt,
		User:             toIdentityView(out.Identity),
	})
}

// Refresh exchanges a refresh token for a new access token.
func (h *AuthHandler) Refresh(c echo.Context) error {
	var req RefreshRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	out, err := h.authUC.Refresh(c.Request().Context(), req.RefreshToken)
	if err != nil {
		return errors.WithStack(err)
	}

	return response.Success(c, http.StatusOK, &RefreshResponse{
		AccessToken: out.AccessToken,
		TokenType:   tokenTypeBearer,
		ExpiresIn:   int64(out.ExpiresIn.Seconds()),
	})
}

// Logout revokes the presented refresh token, if any. It always succeeds.
func (h *AuthHandler) Logout(c echo.Context) error {
	var req LogoutRequest
	if err := c.Bind(&req); err != nil {
		return err
	}

	if err := h.authUC.Logout(c.Request().Context(), req.RefreshToken); err != nil {
		return errors.WithStack(err)
	}

	return response.Message(c, http.StatusOK, "Logged out")
}

// ForgotPassword answers identically whether or not the email is registered.
func (h *AuthHandler) ForgotPassword(c echo.Context) error {
	var req ForgotPasswordRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	if err := h.passwordUC.ForgotPassword(c.Request().Context(), req.Email); err != nil {
		return errors.WithStack(err)
	}

	return response.Message(c, http.StatusOK, "If the email is registered, a reset code has been sent")
}

// ResetPassword consumes a reset code and sets the new password.
func (h *AuthHandler) ResetPassword(c echo.Context) error {
	var req ResetPasswordRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	if err := h.passwordUC.ResetPassword(c.Request().Context(), &usecase.ResetPasswordInput{
		Email:       req.Email,
		Code:        req.Code,
		NewPassword: req.NewPassword,
	}); err != nil {
		return errors.WithStack(err)
	}

	return response.Message(c, http.StatusOK, "Password has been reset")
}

package handler

import (
	"encoding/json"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"marketplace/internal/delivery/api/middleware"
	"marketplace/internal/delivery/api/response"
	"marketplace/internal/domain/entity"
	domainerrors "marketplace/internal/domain/errors"
	"marketplace/internal/domain/service"
	"marketplace/internal/usecase"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	"go.uber.org/fx"
)

// ProfileHandlerParams holds dependencies for ProfileHandler, injected by Fx.
type ProfileHandlerParams struct {
	fx.In

	ProfileUC usecase.ProfileUsecase
	Logger    *slog.Logger
}

// ProfileHandler serves the session owner's profile.
type ProfileHandler struct {
	profileUC usecase.ProfileUsecase
	logger    *slog.Logger
}

// NewProfileHandler is the constructor for ProfileHandler.
func NewProfileHandler(params ProfileHandlerParams) *ProfileHandler {
	return &ProfileHandler{
		profileUC: params.ProfileUC,
		logger:    params.Logger,
	}
}

// GetProfile returns the session identity. A POST body may name the caller
// with user_id, which must equal the session subject.
func (h *ProfileHandler) GetProfile(c echo.Context) error {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		return errors.WithStack(domainerrors.ErrUnauthorized)
	}

	if c.Request().Method == http.MethodPost {
		var req UserProfileRequest
		if err := bindAndValidate(c, &req); err != nil {
			return err
		}
		if req.UserID != nil && *req.UserID != userID {
			return domainerrors.ErrForbidden.WrapMessage("user_id does not match the session")
		}
	}

	identity, err := h.profileUC.GetProfile(c.Request().Context(), userID)
	if err != nil {
		return errors.WithStack(err)
	}

	return response.Success(c, http.StatusOK, toIdentityView(identity))
}

// CompleteProfile merges profile details and uploads onto the session
// identity. It accepts multipart/form-data or JSON.
func (h *ProfileHandler) CompleteProfile(c echo.Context) error {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		return errors.WithStack(domainerrors.ErrUnauthorized)
	}

	var (
		input   *usecase.CompleteProfileInput
		closers []io.Closer
		err     error
	)
	if strings.HasPrefix(c.Request().Header.Get(echo.HeaderContentType), echo.MIMEMultipartForm) {
		input, closers, err = parseMultipartProfile(c)
	} else {
		input, err = parseJSONProfile(c)
	}
	defer func() {
		for _, cl := range closers {
			_ = cl.Close()
		}
	}()
	if err != nil {
		return err
	}

	input.UserID = userID
	identity, err := h.profileUC.CompleteProfile(c.Request().Context(), input)
	if err != nil {
		return errors.WithStack(err)
	}

	return response.Success(c, http.StatusOK, toIdentityView(identity))
}

func parseJSONProfile(c echo.Context) (*usecase.CompleteProfileInput, error) {
	var req CompleteProfileRequest
	if err := bindAndValidate(c, &req); err != nil {
		return nil, err
	}

	patch := entity.ProfilePatch{
		Scalars: map[entity.ScalarField]string{
			entity.ScalarFirstName:     req.FirstName,
			entity.ScalarMiddleName:    req.MiddleName,
			entity.ScalarLastName:      req.LastName,
			entity.ScalarDesignation:   req.Designation,
			entity.ScalarContactNumber: req.ContactNumber,
		},
		Documents: map[entity.DocumentField]entity.Document{},
		FileRefs: map[entity.FileField]string{
			entity.FileVisitingCard:     req.VisitingCard,
			entity.FileDigitalSignature: req.DigitalSignature,
			entity.FileProfileImage:     req.ProfileImage,
		},
	}

	raw := map[entity.DocumentField]json.RawMessage{
		entity.DocCompanyInfo:          req.CompanyInfo,
		entity.DocRegisteredAddress:    req.RegisteredAddress,
		entity.DocCommunicationAddress: req.CommunicationAddress,
		entity.DocDirectorInfo:         req.DirectorInfo,
		entity.DocFillerInfo:           req.FillerInfo,
	}
	invalid := map[string]string{}
	for field, msg := range raw {
		if len(msg) == 0 {
			continue
		}
		doc, err := entity.ParseDocument(msg)
		if err != nil {
			invalid[string(field)] = "must be a JSON object"

			continue
		}
		if doc != nil {
			patch.Documents[field] = doc
		}
	}
	if len(invalid) > 0 {
		return nil, errors.WithStack(domainerrors.ErrValidationFailed.WithDetails(invalid))
	}

	return &usecase.CompleteProfileInput{ClaimedUserID: req.UserID, Patch: patch}, nil
}

func parseMultipartProfile(c echo.Context) (*usecase.CompleteProfileInput, []io.Closer, error) {
	form, err := c.MultipartForm()
	if err != nil {
		return nil, nil, errors.Wrap(domainerrors.ErrValidationFailed, err.Error())
	}

	value := func(key string) string {
		if vals := form.Value[key]; len(vals) > 0 {
			return vals[0]
		}

		return ""
	}

	input := &usecase.CompleteProfileInput{
		Patch: entity.ProfilePatch{
			Scalars:   map[entity.ScalarField]string{},
			Documents: map[entity.DocumentField]entity.Document{},
			FileRefs:  map[entity.FileField]string{},
		},
		Uploads: map[entity.FileField]service.Upload{},
	}
	invalid := map[string]string{}

	if raw := strings.TrimSpace(value("user_id")); raw != "" {
		claimed, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || claimed <= 0 {
			invalid["user_id"] = "must be a positive integer"
		} else {
			input.ClaimedUserID = &claimed
		}
	}

	for _, field := range []entity.ScalarField{
		entity.ScalarFirstName,
		entity.ScalarMiddleName,
		entity.ScalarLastName,
		entity.ScalarDesignation,
		entity.ScalarContactNumber,
	} {
		input.Patch.Scalars[field] = value(string(field))
	}

	for _, field := range entity.DocumentFields {
		doc, err := entity.ParseDocument(value(string(field)))
		if err != nil {
			invalid[string(field)] = "must be a JSON object"

			continue
		}
		if doc != nil {
			input.Patch.Documents[field] = doc
		}
	}

	known := make(map[string]bool, 2*len(entity.FileFields))
	for _, field := range entity.FileFields {
		known[string(field)] = true
		known[fileAliasKey(field)] = true
	}
	for key := range form.File {
		if !known[key] {
			invalid[key] = "unknown file field"
		}
	}

	var closers []io.Closer
	for _, field := range entity.FileFields {
		input.Patch.FileRefs[field] = value(string(field))

		headers := form.File[string(field)]
		if len(headers) == 0 {
			headers = form.File[fileAliasKey(field)]
		}
		if len(headers) == 0 {
			continue
		}
		upload, closer, err := openUpload(headers[0])
		if err != nil {
			invalid[string(field)] = "could not be read"

			continue
		}
		closers = append(closers, closer)
		input.Uploads[field] = upload
	}

	if len(invalid) > 0 {
		return nil, closers, errors.WithStack(domainerrors.ErrValidationFailed.WithDetails(invalid))
	}

	return input, closers, nil
}

// fileAliasKey is the alternate part name for a binary upload, so a form can
// carry both a reference string and a file for the same field.
func fileAliasKey(field entity.FileField) string {
	return string(field) + "_file"
}

func openUpload(fh *multipart.FileHeader) (service.Upload, io.Closer, error) {
	f, err := fh.Open()
	if err != nil {
		return service.Upload{}, nil, errors.Wrapf(err, "open %s", fh.Filename)
	}

	return service.Upload{
		Filename: fh.Filename,
		MIMEType: fh.Header.Get(echo.HeaderContentType),
		Size:     fh.Size,
		Content:  f,
	}, f, nil
}

package api

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"

	domainerrors "marketplace/internal/domain/errors"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
)

// strictBinder rejects unknown fields in JSON bodies and defers every other
// content type to echo's default binder.
type strictBinder struct {
	fallback echo.DefaultBinder
}

func (b *strictBinder) Bind(i any, c echo.Context) error {
	req := c.Request()
	if !strings.HasPrefix(req.Header.Get(echo.HeaderContentType), echo.MIMEApplicationJSON) {
		return b.fallback.Bind(i, c)
	}

	if err := b.fallback.BindPathParams(c, i); err != nil {
		return err
	}
	if req.ContentLength == 0 || req.Method == http.MethodGet {
		return nil
	}

	dec := json.NewDecoder(req.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(i); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}

		return errors.WithStack(domainerrors.ErrValidationFailed.WithDetails(map[string]string{
			"body": strings.TrimPrefix(err.Error(), "json: "),
		}))
	}

	return nil
}

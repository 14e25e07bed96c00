package httpapi

import (
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/drblury/reportflow/internal/runtime/jsoncodec"
)

// Serializer is an echo.JSONSerializer backed by sonic.
type Serializer struct{}

func (Serializer) Serialize(c echo.Context, i any, indent string) error {
	if indent == "" {
		return jsoncodec.Encode(c.Response(), i)
	}
	data, err := jsoncodec.MarshalIndent(i, "", indent)
	if err != nil {
		return err
	}
	_, err = c.Response().Write(append(data, '\n'))
	return err
}

func (Serializer) Deserialize(c echo.Context, i any) error {
	err := jsoncodec.Decode(c.Request().Body, i)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, io.EOF):
		return echo.NewHTTPError(http.StatusBadRequest, "request body is empty").SetInternal(err)
	default:
		return echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("request body is not valid JSON: %v", err)).SetInternal(err)
	}
}

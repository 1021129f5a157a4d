package server

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"github.com/keyward/keyward/api"
	"github.com/keyward/keyward/internal"
	"github.com/keyward/keyward/internal/access"
	"github.com/keyward/keyward/internal/logging"
	"github.com/keyward/keyward/internal/server/data"
)

// sendAPIError translates err into the appropriate HTTP status code, builds a
// response body using api.Error, then sends both as a response to the active
// request.
func sendAPIError(c *gin.Context, err error) {
	resp := &api.Error{
		Method:  c.Request.Method,
		Path:    c.Request.URL.Path,
		Code:    http.StatusInternalServerError,
		Message: "internal server error", // don't leak any info by default
	}

	var validationError access.ValidationError
	var uniqueConstraintError data.UniqueConstraintError
	var bindingErrors validator.ValidationErrors

	log := logging.L.Debug()

	switch {
	case errors.As(err, &validationError):
		resp.Code = http.StatusBadRequest
		resp.Message = validationError.Error()

	case errors.As(err, &bindingErrors):
		resp.Code = http.StatusBadRequest
		resp.Message = "request body failed validation"
		for _, fieldErr := range bindingErrors {
			resp.FieldErrors = append(resp.FieldErrors, api.FieldError{
				FieldName: fieldErr.Field(),
				Errors:    []string{fieldErr.Tag()},
			})
		}

	case errors.As(err, &uniqueConstraintError):
		resp.Code = http.StatusConflict
		resp.Message = err.Error()

	case errors.Is(err, internal.ErrNotFound):
		resp.Code = http.StatusNotFound
		resp.Message = err.Error()

	case errors.Is(err, internal.ErrBadRequest):
		resp.Code = http.StatusBadRequest
		resp.Message = err.Error()

	case errors.Is(err, context.DeadlineExceeded):
		resp.Code = http.StatusGatewayTimeout // not ideal, but StatusRequestTimeout isn't intended for this.
		resp.Message = "request timed out"

	default:
		reportToSentry(err)
		log = logging.L.Error()
	}

	log.CallerSkipFrame(1).
		Err(err).
		Str("method", c.Request.Method).
		Str("path", c.Request.URL.Path).
		Int32("statusCode", resp.Code).
		Str("remoteAddr", c.Request.RemoteAddr).
		Msg("api request error")

	c.JSON(int(resp.Code), resp)
	c.Abort()
}

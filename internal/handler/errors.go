package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/stemsi/aptitest-backend/internal/model"
	"github.com/stemsi/aptitest-backend/internal/response"
)

// classify maps a service error kind onto its HTTP status and error code.
// exposed reports whether the error text is safe to show to the caller.
func classify(err error) (status int, code response.ErrCode, exposed bool) {
	switch {
	case errors.Is(err, model.ErrValidation):
		return http.StatusBadRequest, response.ErrValidation, true
	case errors.Is(err, model.ErrInvalidAccess):
		return http.StatusForbidden, response.ErrInvalidAccess, true
	case errors.Is(err, model.ErrNotFound):
		return http.StatusNotFound, response.ErrNotFound, true
	case errors.Is(err, model.ErrDeadlinePassed):
		return http.StatusConflict, response.ErrDeadlinePassed, true
	case errors.Is(err, model.ErrPersistence):
		return http.StatusServiceUnavailable, response.ErrPersistenceRetry, false
	default:
		return http.StatusInternalServerError, response.ErrInternal, false
	}
}

// failService maps a service error onto the response envelope. The error
// text goes to fields.detail for the caller-facing kinds; persistence and
// unknown errors are logged and answered generically.
func failService(c *gin.Context, err error) {
	status, code, exposed := classify(err)
	if exposed {
		response.FailWithDetail(c, status, code, err.Error())
		return
	}
	zerolog.Ctx(c.Request.Context()).Error().Err(err).Str("code", string(code)).Msg("Service call failed")
	response.Fail(c, status, code)
}

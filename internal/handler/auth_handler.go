package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/stemsi/aptitest-backend/internal/model"
	"github.com/stemsi/aptitest-backend/internal/response"
	"github.com/stemsi/aptitest-backend/internal/service"
	"github.com/stemsi/aptitest-backend/internal/validator"
)

// AuthHandler handles authentication endpoints.
type AuthHandler struct {
	authService   *service.AuthService
	testService   *service.TestSessionService
	defaultSurvey string
}

// NewAuthHandler creates a new AuthHandler.
func NewAuthHandler(authService *service.AuthService, testService *service.TestSessionService, defaultSurvey string) *AuthHandler {
	return &AuthHandler{
		authService:   authService,
		testService:   testService,
		defaultSurvey: defaultSurvey,
	}
}

// Login godoc
// POST /api/v1/auth/login
// Validates a one-time code (or the admin code), returns a JWT and the
// test session, creating it on first login.
func (h *AuthHandler) Login(c *gin.Context) {
	var req model.LoginRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	surveyType := req.SurveyType
	if surveyType == "" {
		surveyType = h.defaultSurvey
	}

	ctx := c.Request.Context()
	result, err := h.authService.Login(ctx, req.Name, req.Code, surveyType)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidCode):
			response.Fail(c, http.StatusUnauthorized, response.ErrInvalidCode)
		case errors.Is(err, service.ErrCodeUsed):
			response.Fail(c, http.StatusUnauthorized, response.ErrCodeUsed)
		default:
			zerolog.Ctx(ctx).Error().Err(err).Msg("Login failed")
			response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		}
		return
	}

	view, err := h.testService.StartSession(ctx, model.SurveyContext{SurveyType: surveyType}, result.UserCode)
	if err != nil {
		failService(c, err)
		return
	}

	zerolog.Ctx(ctx).Info().
		Str("user_code", result.UserCode).
		Str("survey_type", surveyType).
		Bool("is_admin", result.IsAdmin).
		Msg("Login successful")

	response.Success(c, http.StatusOK, model.LoginResponse{
		Token:      result.Token,
		IsAdmin:    result.IsAdmin,
		SurveyType: surveyType,
		Session:    view,
	})
}

package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/stemsi/aptitest-backend/internal/config"
	"github.com/stemsi/aptitest-backend/internal/model"
	"github.com/stemsi/aptitest-backend/internal/response"
	"github.com/stemsi/aptitest-backend/internal/service"
)

const (
	// ContextKeySurvey is the Gin context key for the resolved survey context.
	ContextKeySurvey = "survey"

	// HeaderSurveyType selects the survey edition for admin requests.
	HeaderSurveyType = "X-Survey-Type"
)

// ResolveSurvey fixes the survey edition for the rest of the request.
// Participants are bound to the edition they logged in with. Admins may
// pick another one with X-Survey-Type or ?survey_type=.
// Must run after a JWT middleware.
func ResolveSurvey(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		surveyType := cfg.DefaultSurveyType

		claims := GetClaims(c)
		if claims != nil && claims.SurveyType != "" {
			surveyType = claims.SurveyType
		}
		if claims != nil && claims.TokenType == service.TokenTypeAdmin {
			if v := requestedSurvey(c); v != "" {
				surveyType = v
			}
		}

		if !cfg.HasSurveyType(surveyType) {
			response.AbortFailWithFields(c, http.StatusBadRequest, response.ErrUnknownSurveyType, map[string]string{
				"survey_type": surveyType,
			})
			return
		}

		c.Set(ContextKeySurvey, model.SurveyContext{SurveyType: surveyType})
		c.Next()
	}
}

// GetSurvey returns the survey context resolved by ResolveSurvey.
func GetSurvey(c *gin.Context) model.SurveyContext {
	if v, ok := c.Get(ContextKeySurvey); ok {
		if sc, ok := v.(model.SurveyContext); ok {
			return sc
		}
	}
	return model.SurveyContext{SurveyType: model.DefaultSurveyType}
}

func requestedSurvey(c *gin.Context) string {
	if v := strings.TrimSpace(c.GetHeader(HeaderSurveyType)); v != "" {
		return v
	}
	return strings.TrimSpace(c.Query("survey_type"))
}

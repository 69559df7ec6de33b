package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/stemsi/aptitest-backend/internal/middleware"
	"github.com/stemsi/aptitest-backend/internal/model"
	"github.com/stemsi/aptitest-backend/internal/response"
	"github.com/stemsi/aptitest-backend/internal/service"
	"github.com/stemsi/aptitest-backend/internal/validator"
)

// ParticipantHandler handles the demographic intake form.
type ParticipantHandler struct {
	participantService *service.ParticipantService
}

// NewParticipantHandler creates a new ParticipantHandler.
func NewParticipantHandler(participantService *service.ParticipantService) *ParticipantHandler {
	return &ParticipantHandler{participantService: participantService}
}

// SaveInfo godoc
// POST /api/v1/participant/info
func (h *ParticipantHandler) SaveInfo(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	var req model.ParticipantInfoRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	p, err := h.participantService.SaveInfo(c.Request.Context(), middleware.GetSurvey(c), claims.UserCode, &req)
	if err != nil {
		failService(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"participant": p})
}

// GetInfo godoc
// GET /api/v1/participant/info
func (h *ParticipantHandler) GetInfo(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	p, err := h.participantService.Get(c.Request.Context(), middleware.GetSurvey(c), claims.UserCode)
	if err != nil {
		failService(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"participant": p})
}

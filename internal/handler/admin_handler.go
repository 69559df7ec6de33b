package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/stemsi/aptitest-backend/internal/middleware"
	"github.com/stemsi/aptitest-backend/internal/model"
	"github.com/stemsi/aptitest-backend/internal/response"
	"github.com/stemsi/aptitest-backend/internal/service"
	"github.com/stemsi/aptitest-backend/internal/validator"
)

// AdminHandler handles the admin-only endpoints.
type AdminHandler struct {
	testService        *service.TestSessionService
	ledgerService      *service.LedgerService
	participantService *service.ParticipantService
	codeService        *service.CodeService
	questionService    *service.QuestionService
	surveyTypes        []string
}

// NewAdminHandler creates a new AdminHandler.
func NewAdminHandler(
	testService *service.TestSessionService,
	ledgerService *service.LedgerService,
	participantService *service.ParticipantService,
	codeService *service.CodeService,
	questionService *service.QuestionService,
	surveyTypes []string,
) *AdminHandler {
	return &AdminHandler{
		testService:        testService,
		ledgerService:      ledgerService,
		participantService: participantService,
		codeService:        codeService,
		questionService:    questionService,
		surveyTypes:        surveyTypes,
	}
}

// Jump godoc
// POST /api/v1/admin/jump
// Body: {"user_code":"ABC1234","target_phase":"C"}
// Fills every skipped phase with random answers and moves the session to
// the target. Jumping to a phase already reached changes nothing.
func (h *AdminHandler) Jump(c *gin.Context) {
	var req model.AdminJumpRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	ctx := c.Request.Context()
	sc := middleware.GetSurvey(c)
	resp, err := h.testService.AdminJump(ctx, sc, req.UserCode, req.TargetPhase)
	if err != nil {
		failService(c, err)
		return
	}

	zerolog.Ctx(ctx).Info().
		Str("survey_type", sc.SurveyType).
		Str("user_code", req.UserCode).
		Str("target_phase", resp.TargetPhase).
		Msg("Admin jump")
	response.Success(c, http.StatusOK, resp)
}

// GetLedger godoc
// GET /api/v1/admin/ledgers/:user_code
func (h *AdminHandler) GetLedger(c *gin.Context) {
	l, err := h.ledgerService.Get(c.Request.Context(), middleware.GetSurvey(c), c.Param("user_code"))
	if err != nil {
		failService(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"ledger": l})
}

// GetParticipant godoc
// GET /api/v1/admin/participants/:user_code
func (h *AdminHandler) GetParticipant(c *gin.Context) {
	p, err := h.participantService.Get(c.Request.Context(), middleware.GetSurvey(c), c.Param("user_code"))
	if err != nil {
		failService(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"participant": p})
}

// GetSession godoc
// GET /api/v1/admin/sessions/:user_code
func (h *AdminHandler) GetSession(c *gin.Context) {
	view, err := h.testService.GetState(c.Request.Context(), middleware.GetSurvey(c), c.Param("user_code"))
	if err != nil {
		failService(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"session": view})
}

// ListCodes godoc
// GET /api/v1/admin/codes?used=false&limit=100
func (h *AdminHandler) ListCodes(c *gin.Context) {
	var used *bool
	if raw := c.Query("used"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, map[string]string{
				"used": "used must be true or false",
			})
			return
		}
		used = &v
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))

	codes, err := h.codeService.List(c.Request.Context(), used, limit)
	if err != nil {
		failService(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"codes": codes})
}

// GenerateCodes godoc
// POST /api/v1/admin/codes
// Body: {"count":50}
func (h *AdminHandler) GenerateCodes(c *gin.Context) {
	var req model.GenerateCodesRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	codes, err := h.codeService.Generate(c.Request.Context(), req.Count)
	if err != nil {
		failService(c, err)
		return
	}
	response.Success(c, http.StatusCreated, gin.H{"codes": codes})
}

// PrewarmQuestions godoc
// POST /api/v1/admin/questions/prewarm
// Re-renders every question unit into the cache after content changes.
func (h *AdminHandler) PrewarmQuestions(c *gin.Context) {
	h.questionService.Prewarm(c.Request.Context(), h.surveyTypes)
	response.Success(c, http.StatusOK, gin.H{"status": "ok"})
}

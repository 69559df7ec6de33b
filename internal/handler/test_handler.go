package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/stemsi/aptitest-backend/internal/middleware"
	"github.com/stemsi/aptitest-backend/internal/model"
	"github.com/stemsi/aptitest-backend/internal/response"
	"github.com/stemsi/aptitest-backend/internal/service"
	"github.com/stemsi/aptitest-backend/internal/validator"
)

// TestHandler serves the test-taking endpoints.
type TestHandler struct {
	testService     *service.TestSessionService
	questionService *service.QuestionService
}

// NewTestHandler creates a new TestHandler.
func NewTestHandler(testService *service.TestSessionService, questionService *service.QuestionService) *TestHandler {
	return &TestHandler{
		testService:     testService,
		questionService: questionService,
	}
}

// GetState godoc
// GET /api/v1/test/state
// Returns the current phase, unit, remaining time and ledger progress.
func (h *TestHandler) GetState(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	view, err := h.testService.GetState(c.Request.Context(), middleware.GetSurvey(c), claims.UserCode)
	if err != nil {
		failService(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"session": view})
}

// GetQuestion godoc
// GET /api/v1/test/questions/:phase/:unit
// Returns the question content of one unit without answer keys.
func (h *TestHandler) GetQuestion(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	unit, err := strconv.Atoi(c.Param("unit"))
	if err != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, map[string]string{
			"unit": "unit must be a number",
		})
		return
	}

	ctx := c.Request.Context()
	sc := middleware.GetSurvey(c)
	phaseName := c.Param("phase")

	if claims.TokenType != service.TokenTypeAdmin {
		if err := h.testService.CheckQuestionAccess(ctx, sc, claims.UserCode, phaseName, unit); err != nil {
			failService(c, err)
			return
		}
	}

	payload, err := h.questionService.Fetch(ctx, sc, phaseName, unit)
	if err != nil {
		failService(c, err)
		return
	}
	response.Success(c, http.StatusOK, payload)
}

// SubmitAnswer godoc
// POST /api/v1/test/answers
// Body: {"phase":"B","question_number":3,"answer":"A"} for a single question,
// or {"phase":"B","question_number":null,"answer":{"8":"A","9":"C"}} for a block.
func (h *TestHandler) SubmitAnswer(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	var req model.SubmitAnswerRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	ans, err := model.DecodeAnswer(req.QuestionNumber, req.Answer)
	if err != nil {
		failService(c, err)
		return
	}

	resp, err := h.testService.SubmitAnswer(c.Request.Context(), middleware.GetSurvey(c), claims.UserCode, req.Phase, ans)
	if err != nil {
		failService(c, err)
		return
	}
	response.Success(c, http.StatusOK, resp)
}

// RetryCommit godoc
// POST /api/v1/test/retry
// Resumes a commit that failed to persist.
func (h *TestHandler) RetryCommit(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	view, err := h.testService.RetryCommit(c.Request.Context(), middleware.GetSurvey(c), claims.UserCode)
	if err != nil {
		failService(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"session": view})
}

// CompleteTest godoc
// POST /api/v1/test/complete
// Finishes the test. Safe to call more than once.
func (h *TestHandler) CompleteTest(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	result, err := h.testService.CompleteTest(c.Request.Context(), middleware.GetSurvey(c), claims.UserCode)
	if err != nil {
		failService(c, err)
		return
	}
	response.Success(c, http.StatusOK, result)
}

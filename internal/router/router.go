package router

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/stemsi/aptitest-backend/internal/config"
	"github.com/stemsi/aptitest-backend/internal/handler"
	"github.com/stemsi/aptitest-backend/internal/middleware"
	"github.com/stemsi/aptitest-backend/internal/response"
	"github.com/stemsi/aptitest-backend/internal/service"
)

// assetMaxAge is the Cache-Control max-age of question images (1 day).
const assetMaxAge = 86400

// Handlers groups all handler instances for route setup.
type Handlers struct {
	Auth        *handler.AuthHandler
	Participant *handler.ParticipantHandler
	Test        *handler.TestHandler
	Admin       *handler.AdminHandler
	WS          *handler.WSHandler
	Monitor     *handler.MonitorHandler
}

// SetupRouter configures all Gin route groups with appropriate middlewares.
func SetupRouter(
	authService *service.AuthService,
	handlers *Handlers,
	loginLimiter *middleware.RateLimiter,
	cfg *config.Config,
	log zerolog.Logger,
) *gin.Engine {
	gin.SetMode(cfg.GinMode)
	router := gin.New()
	router.Use(gin.Recovery())

	// ─── CORS ──────────────────────────────────────────────────────────
	// If AllowedOrigins is set in config, restrict to that list;
	// otherwise allow all (*) so dev works without extra config.
	corsConfig := cors.DefaultConfig()
	if len(cfg.AllowedOrigins) > 0 {
		corsConfig.AllowOrigins = cfg.AllowedOrigins
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization", response.HeaderRequestID, middleware.HeaderSurveyType}
	corsConfig.ExposeHeaders = []string{response.HeaderRequestID, "Retry-After"}
	corsConfig.MaxAge = 12 * time.Hour
	router.Use(cors.New(corsConfig))

	// Request ID + request-scoped logger on every response.
	router.Use(response.RequestIDMiddleware(log))

	router.Use(middleware.BrotliWithConfig(middleware.BrotliConfig{
		SkipPrefixes: []string{"/images", "/ws/"},
	}))

	// Question images, cached by clients for a day.
	images := router.Group("/images")
	images.Use(middleware.CacheControl(assetMaxAge))
	{
		images.Static("/", cfg.AssetDir)
	}

	// Health check.
	router.GET("/health", func(c *gin.Context) {
		response.Success(c, http.StatusOK, gin.H{"status": "ok"})
	})

	requireParticipant := middleware.RequireParticipantJWT(authService)
	resolveSurvey := middleware.ResolveSurvey(cfg)

	// ─── 1. Auth Group (Public, Rate Limited) ──────────────────────────
	auth := router.Group("/api/v1/auth")
	auth.Use(loginLimiter.Middleware())
	{
		auth.POST("/login", handlers.Auth.Login)
	}

	// ─── 2. Participant Group ──────────────────────────────────────────
	participantAPI := router.Group("/api/v1/participant")
	participantAPI.Use(requireParticipant, resolveSurvey)
	{
		participantAPI.POST("/info", handlers.Participant.SaveInfo)
		participantAPI.GET("/info", handlers.Participant.GetInfo)
	}

	// ─── 3. Test Group ─────────────────────────────────────────────────
	testAPI := router.Group("/api/v1/test")
	testAPI.Use(requireParticipant, resolveSurvey, middleware.NoStore())
	{
		testAPI.GET("/state", handlers.Test.GetState)
		testAPI.GET("/questions/:phase/:unit", handlers.Test.GetQuestion)
		testAPI.POST("/answers", handlers.Test.SubmitAnswer)
		testAPI.POST("/retry", handlers.Test.RetryCommit)
		testAPI.POST("/complete", handlers.Test.CompleteTest)
		testAPI.GET("/events", handlers.Monitor.StreamOwnSession)
	}

	// ─── 4. WebSocket Group ────────────────────────────────────────────
	ws := router.Group("/ws/v1")
	ws.Use(requireParticipant, resolveSurvey)
	{
		ws.GET("/test/stream", handlers.WS.TestStream)
	}

	// ─── 5. Admin Group ────────────────────────────────────────────────
	adminAPI := router.Group("/api/v1/admin")
	adminAPI.Use(middleware.RequireAdminJWT(authService), resolveSurvey, middleware.NoStore())
	{
		adminAPI.POST("/jump", handlers.Admin.Jump)
		adminAPI.GET("/ledgers/:user_code", handlers.Admin.GetLedger)
		adminAPI.GET("/participants/:user_code", handlers.Admin.GetParticipant)
		adminAPI.GET("/sessions/:user_code", handlers.Admin.GetSession)
		adminAPI.GET("/sessions/:user_code/events", handlers.Monitor.MonitorSession)
		adminAPI.GET("/codes", handlers.Admin.ListCodes)
		adminAPI.POST("/codes", handlers.Admin.GenerateCodes)
		adminAPI.POST("/questions/prewarm", handlers.Admin.PrewarmQuestions)
	}

	return router
}

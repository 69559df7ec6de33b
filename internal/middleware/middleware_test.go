package middleware

import (
	"bytes"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/andybalholm/brotli"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stemsi/aptitest-backend/internal/config"
	"github.com/stemsi/aptitest-backend/internal/service"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func testConfig() *config.Config {
	return &config.Config{
		JWTSecret:         "test-secret",
		JWTExpiry:         time.Hour,
		SurveyTypes:       []string{"v1", "v2"},
		DefaultSurveyType: "v1",
	}
}

func do(r http.Handler, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestRateLimiterRefills(t *testing.T) {
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	rl := NewRateLimiter(2, time.Minute)
	rl.now = func() time.Time { return now }

	r := gin.New()
	r.POST("/login", rl.Middleware(), func(c *gin.Context) { c.Status(http.StatusOK) })

	for i := 0; i < 2; i++ {
		assert.Equal(t, http.StatusOK, do(r, httptest.NewRequest(http.MethodPost, "/login", nil)).Code)
	}
	w := do(r, httptest.NewRequest(http.MethodPost, "/login", nil))
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "60", w.Header().Get("Retry-After"))
	assert.Contains(t, w.Body.String(), "RATE_LIMIT_EXCEEDED")

	now = now.Add(time.Minute)
	assert.Equal(t, http.StatusOK, do(r, httptest.NewRequest(http.MethodPost, "/login", nil)).Code)

	now = now.Add(10 * time.Minute)
	rl.cleanup()
	assert.Empty(t, rl.visitors)
}

func TestJWTMiddleware(t *testing.T) {
	cfg := testConfig()
	auth := service.NewAuthService(cfg, nil, zerolog.Nop())

	participant, err := auth.GenerateToken(service.TokenTypeParticipant, "ABC1234", "Budi", "v1")
	require.NoError(t, err)
	admin, err := auth.GenerateToken(service.TokenTypeAdmin, "ADM0000", "Admin", "v1")
	require.NoError(t, err)

	r := gin.New()
	ok := func(c *gin.Context) { c.String(http.StatusOK, GetClaims(c).UserCode) }
	r.GET("/test", RequireParticipantJWT(auth), ok)
	r.GET("/admin", RequireAdminJWT(auth), ok)

	get := func(path, token string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
		return do(r, req)
	}

	w := get("/test", participant)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ABC1234", w.Body.String())

	assert.Equal(t, http.StatusOK, get("/test", admin).Code, "admins may take the test")
	assert.Equal(t, http.StatusOK, get("/admin", admin).Code)

	w = get("/admin", participant)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Contains(t, w.Body.String(), "ADMIN_ACCESS_ONLY")

	w = get("/test", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "TOKEN_REQUIRED")

	w = get("/test", participant+"x")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "TOKEN_INVALID")

	// Query fallback for WebSocket clients.
	w = do(r, httptest.NewRequest(http.MethodGet, "/test?token="+participant, nil))
	assert.Equal(t, http.StatusOK, w.Code)

	cfg.JWTExpiry = -time.Minute
	expired, err := auth.GenerateToken(service.TokenTypeParticipant, "ABC1234", "Budi", "v1")
	require.NoError(t, err)
	w = get("/test", expired)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "TOKEN_EXPIRED")
}

func TestResolveSurvey(t *testing.T) {
	cfg := testConfig()
	auth := service.NewAuthService(cfg, nil, zerolog.Nop())

	r := gin.New()
	r.GET("/s", RequireParticipantJWT(auth), ResolveSurvey(cfg), func(c *gin.Context) {
		c.String(http.StatusOK, GetSurvey(c).SurveyType)
	})

	get := func(token, header string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/s", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		if header != "" {
			req.Header.Set(HeaderSurveyType, header)
		}
		return do(r, req)
	}

	p2, err := auth.GenerateToken(service.TokenTypeParticipant, "ABC1234", "", "v2")
	require.NoError(t, err)
	w := get(p2, "v1")
	assert.Equal(t, "v2", w.Body.String(), "participants stay on their login edition")

	admin, err := auth.GenerateToken(service.TokenTypeAdmin, "ADM0000", "", "v1")
	require.NoError(t, err)
	assert.Equal(t, "v2", get(admin, "v2").Body.String())
	assert.Equal(t, "v1", get(admin, "").Body.String())

	w = get(admin, "v9")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "UNKNOWN_SURVEY_TYPE")
}

func TestBrotliCompressesLargeResponses(t *testing.T) {
	large := strings.Repeat("soal ", 1000)
	r := gin.New()
	r.Use(BrotliWithConfig(BrotliConfig{MinLength: 512, SkipPrefixes: []string{"/images"}}))
	r.GET("/large", func(c *gin.Context) {
		// Several writes, the last one shorter than MinLength.
		c.Writer.WriteString(large[:3000])
		c.Writer.WriteString(large[3000:])
	})
	r.GET("/small", func(c *gin.Context) { c.String(http.StatusOK, "ok") })
	r.GET("/images/x.png", func(c *gin.Context) { c.String(http.StatusOK, large) })

	get := func(path string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		req.Header.Set("Accept-Encoding", "gzip, br")
		return do(r, req)
	}

	w := get("/large")
	require.Equal(t, "br", w.Header().Get("Content-Encoding"))
	body, err := io.ReadAll(brotli.NewReader(bytes.NewReader(w.Body.Bytes())))
	require.NoError(t, err)
	assert.Equal(t, large, string(body))

	w = get("/small")
	assert.Empty(t, w.Header().Get("Content-Encoding"))
	assert.Equal(t, "ok", w.Body.String())

	w = get("/images/x.png")
	assert.Empty(t, w.Header().Get("Content-Encoding"))
	assert.Equal(t, large, w.Body.String())
}

func TestCacheHeaders(t *testing.T) {
	r := gin.New()
	r.GET("/img", CacheControl(3600), func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/state", NoStore(), func(c *gin.Context) { c.Status(http.StatusOK) })

	assert.Equal(t, "public, max-age=3600, immutable", do(r, httptest.NewRequest(http.MethodGet, "/img", nil)).Header().Get("Cache-Control"))
	assert.Equal(t, "no-store", do(r, httptest.NewRequest(http.MethodGet, "/state", nil)).Header().Get("Cache-Control"))
}

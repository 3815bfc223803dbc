package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/course-calendar-api/internal/models"
	"github.com/noah-isme/course-calendar-api/internal/service"
	"github.com/noah-isme/course-calendar-api/pkg/signing"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newTokenService() *service.TokenService {
	return service.NewTokenService("secret", signing.NewFeedSigner("feed-secret", time.Hour))
}

func accessToken(t *testing.T, role models.UserRole) string {
	t.Helper()
	claims := &models.JWTClaims{
		UserID: "user-1",
		Role:   role,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("secret"))
	require.NoError(t, err)
	return token
}

func whoAmI(c *gin.Context) {
	value, _ := c.Get(ContextUserKey)
	claims := value.(*models.JWTClaims)
	c.String(http.StatusOK, claims.UserID+":"+string(claims.Role))
}

func TestJWT(t *testing.T) {
	router := gin.New()
	router.GET("/me", JWT(newTokenService()), whoAmI)

	cases := []struct {
		name   string
		header string
		status int
	}{
		{name: "valid", header: "Bearer " + accessToken(t, models.RoleStudent), status: http.StatusOK},
		{name: "lowercase scheme", header: "bearer " + accessToken(t, models.RoleStudent), status: http.StatusOK},
		{name: "missing", header: "", status: http.StatusUnauthorized},
		{name: "wrong scheme", header: "Basic abc", status: http.StatusUnauthorized},
		{name: "garbage", header: "Bearer nope", status: http.StatusUnauthorized},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/me", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)
			assert.Equal(t, tc.status, rec.Code)
		})
	}
}

func TestFeedAuth(t *testing.T) {
	tokens := newTokenService()
	router := gin.New()
	router.GET("/feed.ics", FeedAuth(tokens), whoAmI)

	feedToken, _, err := tokens.IssueFeedToken(models.Viewer{UserID: "user-9", Role: models.RoleTeacher})
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/feed.ics?token="+feedToken, nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "user-9:TEACHER", rec.Body.String())

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/feed.ics?token=tampered", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/feed.ics", nil)
	req.Header.Set("Authorization", "Bearer "+accessToken(t, models.RoleStudent))
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "user-1:STUDENT", rec.Body.String())
}

func TestRequireScheduleEditor(t *testing.T) {
	router := gin.New()
	router.POST("/slots", JWT(newTokenService()), RequireScheduleEditor(), func(c *gin.Context) {
		c.Status(http.StatusCreated)
	})

	for role, status := range map[models.UserRole]int{
		models.RoleAdmin:      http.StatusCreated,
		models.RoleSuperAdmin: http.StatusCreated,
		models.RoleTeacher:    http.StatusForbidden,
		models.RoleStudent:    http.StatusForbidden,
	} {
		req := httptest.NewRequest(http.MethodPost, "/slots", nil)
		req.Header.Set("Authorization", "Bearer "+accessToken(t, role))
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		assert.Equal(t, status, rec.Code, string(role))
	}

	bare := gin.New()
	bare.POST("/slots", RequireScheduleEditor(), func(c *gin.Context) { c.Status(http.StatusCreated) })
	rec := httptest.NewRecorder()
	bare.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/slots", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestResponseMeta(t *testing.T) {
	router := gin.New()
	router.Use(WithResponseMeta())
	var meta map[string]interface{}
	router.GET("/x", func(c *gin.Context) {
		SetCacheHit(c, true)
		SetMeta(c, "timezone", "Asia/Ulaanbaatar")
		meta = ExtractMeta(c)
		c.Status(http.StatusOK)
	})

	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/x", nil))
	require.NotNil(t, meta)
	assert.Equal(t, true, meta["cache_hit"])
	assert.Equal(t, "Asia/Ulaanbaatar", meta["timezone"])
	assert.Contains(t, meta, "processing_time_ms")
}

func TestMetricsMiddleware(t *testing.T) {
	metrics := service.NewMetricsService()
	router := gin.New()
	router.Use(Metrics(metrics))
	router.GET("/calendar/events", func(c *gin.Context) { c.Status(http.StatusOK) })

	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/calendar/events", nil))
	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/nope/123", nil))

	count, err := testutil.GatherAndCount(metrics.Registry(), "http_requests_total")
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

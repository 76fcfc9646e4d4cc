package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-attendance-api/internal/models"
	appErrors "github.com/noah-isme/sma-attendance-api/pkg/errors"
)

type tokenStub map[string]*models.JWTClaims

func (s tokenStub) ValidateToken(token string) (*models.JWTClaims, error) {
	claims, ok := s[token]
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "invalid token")
	}
	return claims, nil
}

type observerStub struct {
	paths    []string
	statuses []int
}

func (o *observerStub) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	o.paths = append(o.paths, path)
	o.statuses = append(o.statuses, status)
}

func newRouter(handlers ...gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	handlers = append(handlers, func(c *gin.Context) {
		claims, _ := c.Get(ContextUserKey)
		c.JSON(http.StatusOK, claims)
	})
	r.GET("/sessions/:id", handlers...)
	return r
}

func serve(r *gin.Engine, path, auth string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if auth != "" {
		req.Header.Set("Authorization", auth)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestJWT(t *testing.T) {
	tokens := tokenStub{"good": {UserID: "student-1", Role: models.RoleStudent}}
	r := newRouter(JWT(tokens))

	cases := map[string]int{
		"":            http.StatusUnauthorized,
		"Basic good":  http.StatusUnauthorized,
		"Bearer ":     http.StatusUnauthorized,
		"Bearer nope": http.StatusUnauthorized,
		"bearer good": http.StatusOK,
		"Bearer good": http.StatusOK,
	}
	for header, want := range cases {
		w := serve(r, "/sessions/s1", header)
		assert.Equal(t, want, w.Code, header)
	}
	w := serve(r, "/sessions/s1", "Bearer good")
	assert.Contains(t, w.Body.String(), `"user_id":"student-1"`)
}

func TestRequireRoles(t *testing.T) {
	tokens := tokenStub{
		"student": {UserID: "student-1", Role: models.RoleStudent},
		"teacher": {UserID: "teacher-1", Role: models.RoleTeacher},
		"admin":   {UserID: "admin-1", Role: models.RoleAdmin},
	}
	r := newRouter(JWT(tokens), RequireStaff())

	assert.Equal(t, http.StatusForbidden, serve(r, "/sessions/s1", "Bearer student").Code)
	assert.Equal(t, http.StatusOK, serve(r, "/sessions/s1", "Bearer teacher").Code)
	assert.Equal(t, http.StatusOK, serve(r, "/sessions/s1", "Bearer admin").Code)

	bare := newRouter(RequireRoles(models.RoleStudent))
	assert.Equal(t, http.StatusUnauthorized, serve(bare, "/sessions/s1", "").Code)
}

func TestMetricsUsesRouteTemplate(t *testing.T) {
	observer := &observerStub{}
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(Metrics(observer))
	r.GET("/sessions/:id", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	serve(r, "/sessions/abc", "")
	serve(r, "/missing", "")

	require.Len(t, observer.paths, 2)
	assert.Equal(t, []string{"/sessions/:id", "unmatched"}, observer.paths)
	assert.Equal(t, []int{http.StatusNoContent, http.StatusNotFound}, observer.statuses)
}

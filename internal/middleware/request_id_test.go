package middleware_test

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"tasks-api/internal/middleware"

	"github.com/gin-gonic/gin"
	"github.com/gofrs/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func requestIDRouter(seen *string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(middleware.RequestID())
	router.GET("/", func(c *gin.Context) {
		*seen = middleware.RequestIDFrom(c)
		c.Status(http.StatusOK)
	})
	return router
}

func TestRequestID_Generated(t *testing.T) {
	var seen string
	router := requestIDRouter(&seen)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

	header := w.Header().Get(middleware.RequestIDHeader)
	require.NotEmpty(t, header)
	assert.Equal(t, header, seen)
	_, err := uuid.FromString(header)
	assert.NoError(t, err)
}

func TestRequestID_Propagated(t *testing.T) {
	var seen string
	router := requestIDRouter(&seen)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(middleware.RequestIDHeader, "client-id")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, "client-id", seen)
	assert.Equal(t, "client-id", w.Header().Get(middleware.RequestIDHeader))
}

func TestRequestID_OversizedReplaced(t *testing.T) {
	var seen string
	router := requestIDRouter(&seen)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(middleware.RequestIDHeader, strings.Repeat("x", 200))
	router.ServeHTTP(httptest.NewRecorder(), req)

	assert.Len(t, seen, 36)
}

func TestRequestIDFrom_Missing(t *testing.T) {
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	assert.Empty(t, middleware.RequestIDFrom(c))
}

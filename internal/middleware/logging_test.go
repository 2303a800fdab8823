package middleware

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequestLogger_BodyStillReadable(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RequestLogger("/healthz"))
	r.POST("/echo", func(c *gin.Context) {
		b, err := io.ReadAll(c.Request.Body)
		require.NoError(t, err)
		c.String(http.StatusOK, string(b))
	})
	r.GET("/healthz", func(c *gin.Context) { c.String(http.StatusOK, "ok") })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/echo", strings.NewReader(`{"query":"doorbell"}`)))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, `{"query":"doorbell"}`, w.Body.String())

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, "ok", w.Body.String())
}

func TestCappedWriter_KeepsPrefixOnly(t *testing.T) {
	gin.SetMode(gin.TestMode)
	big := strings.Repeat("a", maxLoggedBody+100)
	r := gin.New()
	var captured string
	r.Use(func(c *gin.Context) {
		c.Next()
		if cw, ok := c.Writer.(cappedWriter); ok {
			captured = cw.captured.String()
		}
	})
	r.Use(RequestLogger())
	r.GET("/big", func(c *gin.Context) { c.String(http.StatusOK, big) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/big", nil))
	assert.Equal(t, big, w.Body.String(), "the client gets the full body")
	assert.Len(t, captured, maxLoggedBody)
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate([]byte("short")))
	long := strings.Repeat("x", maxLoggedBody+1)
	assert.Equal(t, strings.Repeat("x", maxLoggedBody)+"...", truncate([]byte(long)))
}

package middleware

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func TestRequestLogger_KeepsBodyForHandler(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RequestLogger())
	r.POST("/echo", func(c *gin.Context) {
		b, _ := io.ReadAll(c.Request.Body)
		c.String(http.StatusOK, string(b))
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/echo", strings.NewReader(`{"message":"hi"}`)))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, `{"message":"hi"}`, w.Body.String())
}

func TestBodyLogWriter_CapsCapturedBody(t *testing.T) {
	gin.SetMode(gin.TestMode)
	var captured int
	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Next()
		if blw, ok := c.Writer.(*bodyLogWriter); ok {
			captured = blw.body.Len()
		}
	})
	r.Use(RequestLogger())
	big := strings.Repeat("x", 3*maxLoggedBody)
	r.GET("/big", func(c *gin.Context) { c.String(http.StatusOK, big) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/big", nil))

	assert.Equal(t, big, w.Body.String())
	assert.Equal(t, maxLoggedBody, captured)
}

package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	redisc "github.com/mx-space/catalog/internal/pkg/redis"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestLoggerTagsRequests(t *testing.T) {
	gin.SetMode(gin.TestMode)
	core, logs := observer.New(zapcore.InfoLevel)
	r := gin.New()
	r.Use(Logger(zap.New(core)))
	r.GET("/ok", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/boom", func(c *gin.Context) { c.Status(http.StatusBadGateway) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ok", nil))
	assert.NotEmpty(t, w.Header().Get(RequestIDHeader))

	req := httptest.NewRequest(http.MethodGet, "/boom", nil)
	req.Header.Set(RequestIDHeader, "req-1")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, "req-1", w.Header().Get(RequestIDHeader))

	entries := logs.AllUntimed()
	require.Len(t, entries, 2)
	assert.Equal(t, zapcore.InfoLevel, entries[0].Level)
	assert.Equal(t, zapcore.WarnLevel, entries[1].Level)
	assert.Equal(t, "req-1", entries[1].ContextMap()["request_id"])
}

func TestIdempotenceBlocksRepeatedPosts(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mr := miniredis.RunT(t)
	rc := redisc.New(goredis.NewClient(&goredis.Options{Addr: mr.Addr()}))
	t.Cleanup(func() { _ = rc.Close() })

	calls := 0
	r := gin.New()
	r.Use(Idempotence(rc))
	r.POST("/push", func(c *gin.Context) {
		calls++
		c.Status(http.StatusOK)
	})
	r.POST("/fail", func(c *gin.Context) {
		calls++
		c.Status(http.StatusBadGateway)
	})

	post := func(path, body, key string) int {
		req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
		if key != "" {
			req.Header.Set(IdempotenceHeader, key)
		}
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w.Code
	}

	assert.Equal(t, http.StatusOK, post("/push", `{"a":1}`, ""))
	assert.Equal(t, http.StatusConflict, post("/push", `{"a":1}`, ""))
	assert.Equal(t, http.StatusOK, post("/push", `{"a":2}`, ""))
	assert.Equal(t, http.StatusOK, post("/push", `{"a":1}`, "k1"))
	assert.Equal(t, http.StatusConflict, post("/push", `{"b":1}`, "k1"))

	assert.Equal(t, http.StatusBadGateway, post("/fail", "", "k2"))
	assert.Equal(t, http.StatusBadGateway, post("/fail", "", "k2"))
	assert.Equal(t, 5, calls)
}

package response

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func record(fn func(c *gin.Context)) *httptest.ResponseRecorder {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	fn(c)
	return w
}

func TestOKWrapsSlices(t *testing.T) {
	w := record(func(c *gin.Context) { OK(c, []string{"a"}) })
	assert.JSONEq(t, `{"data":["a"]}`, w.Body.String())

	w = record(func(c *gin.Context) { OK(c, gin.H{"id": "x"}) })
	assert.JSONEq(t, `{"id":"x"}`, w.Body.String())
}

func TestErrorEnvelope(t *testing.T) {
	w := record(func(c *gin.Context) { Conflict(c, "already published") })
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.JSONEq(t, `{"ok":0,"code":409,"message":"already published"}`, w.Body.String())

	w = record(func(c *gin.Context) { BadGateway(c, errors.New("lms down")) })
	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.JSONEq(t, `{"ok":0,"code":502,"message":"lms down"}`, w.Body.String())
}

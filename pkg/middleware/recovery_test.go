package middleware

import (
	"bytes"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestRecovery(t *testing.T) {
	t.Parallel()

	t.Run("パニック時は500を返しログに出力すること", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		router := gin.New()
		router.Use(Recovery(zerolog.New(&buf)))
		router.GET("/panic", func(_ *gin.Context) { panic("テスト用パニック") })
		router.GET("/ok", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"success": true}) })

		w := doRequest(router, http.MethodGet, "/panic", nil)
		assert.Equal(t, http.StatusInternalServerError, w.Code)
		body := parseJSON(t, w)
		assert.Equal(t, false, body["success"])
		assert.Equal(t, "内部サーバーエラーが発生しました", body["message"])
		assert.Contains(t, buf.String(), "テスト用パニック")
		assert.Contains(t, buf.String(), `"path":"/panic"`)

		w = doRequest(router, http.MethodGet, "/ok", nil)
		assert.Equal(t, http.StatusOK, w.Code, "パニック後も次のリクエストを処理できる")
	})

	t.Run("error型のパニック値でも500を返すこと", func(t *testing.T) {
		t.Parallel()

		router := gin.New()
		router.Use(Recovery(zerolog.Nop()))
		router.POST("/panic", func(_ *gin.Context) { panic(http.ErrAbortHandler) })

		w := doRequest(router, http.MethodPost, "/panic", nil)
		assert.Equal(t, http.StatusInternalServerError, w.Code)
	})
}

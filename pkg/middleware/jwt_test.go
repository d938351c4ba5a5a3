package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateJWT(t *testing.T) {
	t.Parallel()

	t.Run("クレームと有効期限が設定されること", func(t *testing.T) {
		t.Parallel()

		before := time.Now()
		tokenStr, err := GenerateJWT(testSecret, "user-123", "test@example.com")
		require.NoError(t, err)

		claims := &JWTClaims{}
		token, err := jwt.ParseWithClaims(tokenStr, claims, func(_ *jwt.Token) (any, error) {
			return []byte(testSecret), nil
		})
		require.NoError(t, err)
		require.True(t, token.Valid)

		assert.Equal(t, "user-123", claims.UserID)
		assert.Equal(t, "user-123", claims.Subject)
		assert.Equal(t, "test@example.com", claims.Email)
		assert.Equal(t, "tasknotify", claims.Issuer)
		assert.Equal(t, "HS256", token.Method.Alg())
		assert.WithinDuration(t, before.Add(24*time.Hour), claims.ExpiresAt.Time, time.Minute)
	})

	t.Run("有効期間を指定できること", func(t *testing.T) {
		t.Parallel()

		tokenStr, err := GenerateJWTWithTTL(testSecret, "user-ttl", "", time.Hour)
		require.NoError(t, err)

		claims := &JWTClaims{}
		_, err = jwt.ParseWithClaims(tokenStr, claims, func(_ *jwt.Token) (any, error) {
			return []byte(testSecret), nil
		})
		require.NoError(t, err)
		assert.WithinDuration(t, time.Now().Add(time.Hour), claims.ExpiresAt.Time, time.Minute)
	})
}

func TestJWTAuth(t *testing.T) {
	t.Parallel()

	newRouter := func(captured *string) *gin.Engine {
		router := gin.New()
		router.Use(JWTAuth(testSecret))
		router.GET("/test", func(c *gin.Context) {
			*captured = GetUserID(c)
			c.JSON(http.StatusOK, gin.H{"success": true})
		})
		return router
	}

	t.Run("有効なトークンでuser_idが設定されること", func(t *testing.T) {
		t.Parallel()

		tokenStr, err := GenerateJWT(testSecret, "user-ok", "ok@example.com")
		require.NoError(t, err)

		var captured string
		w := doRequest(newRouter(&captured), http.MethodGet, "/test", map[string]string{"Authorization": "Bearer " + tokenStr})
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "user-ok", captured)
	})

	expired := func() string {
		claims := JWTClaims{
			RegisteredClaims: jwt.RegisteredClaims{
				ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour)),
				Issuer:    tokenIssuer,
			},
			UserID: "user-expired",
		}
		s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
		require.NoError(t, err)
		return s
	}
	otherIssuer := func() string {
		claims := JWTClaims{
			RegisteredClaims: jwt.RegisteredClaims{
				ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
				Issuer:    "someone-else",
			},
			UserID: "user-issuer",
		}
		s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
		require.NoError(t, err)
		return s
	}
	hs512 := func() string {
		claims := JWTClaims{
			RegisteredClaims: jwt.RegisteredClaims{
				ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
				Issuer:    tokenIssuer,
			},
			UserID: "user-alg",
		}
		s, err := jwt.NewWithClaims(jwt.SigningMethodHS512, claims).SignedString([]byte(testSecret))
		require.NoError(t, err)
		return s
	}
	otherSecret, err := GenerateJWT("different-secret", "user-diff", "")
	require.NoError(t, err)

	tests := []struct {
		name    string
		header  string
		wantMsg string
	}{
		{name: "Authorizationヘッダーなし", header: "", wantMsg: "Authorizationヘッダーが必要です"},
		{name: "Bearer接頭辞なし", header: otherSecret, wantMsg: "Bearer トークン形式が不正です"},
		{name: "不正な文字列", header: "Bearer invalid-token-string", wantMsg: "トークンが無効です"},
		{name: "異なるシークレット", header: "Bearer " + otherSecret, wantMsg: "トークンが無効です"},
		{name: "期限切れ", header: "Bearer " + expired(), wantMsg: "トークンが無効です"},
		{name: "発行者が異なる", header: "Bearer " + otherIssuer(), wantMsg: "トークンが無効です"},
		{name: "HS256以外のアルゴリズム", header: "Bearer " + hs512(), wantMsg: "トークンが無効です"},
	}

	for _, tt := range tests {
		t.Run(tt.name+"は401", func(t *testing.T) {
			t.Parallel()

			header := map[string]string{}
			if tt.header != "" {
				header["Authorization"] = tt.header
			}
			var captured string
			w := doRequest(newRouter(&captured), http.MethodGet, "/test", header)

			assert.Equal(t, http.StatusUnauthorized, w.Code)
			body := parseJSON(t, w)
			assert.Equal(t, false, body["success"])
			assert.Equal(t, tt.wantMsg, body["message"])
			assert.Empty(t, captured)
		})
	}
}

func TestGetUserID(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		value any
		want  string
	}{
		{name: "文字列が設定されている", value: "user-get-id", want: "user-get-id"},
		{name: "設定されていない", value: nil, want: ""},
		{name: "文字列以外", value: 123, want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			c, _ := gin.CreateTestContext(httptest.NewRecorder())
			if tt.value != nil {
				c.Set("user_id", tt.value)
			}
			assert.Equal(t, tt.want, GetUserID(c))
		})
	}
}

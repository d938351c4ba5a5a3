package server

import (
	"bytes"
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jarcoal/httpmock"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nao1215/tasknotify/internal/config"
	"github.com/nao1215/tasknotify/internal/fcm"
	"github.com/nao1215/tasknotify/internal/notification"
	"github.com/nao1215/tasknotify/internal/store"
	"github.com/nao1215/tasknotify/pkg/middleware"
)

func init() {
	gin.SetMode(gin.TestMode)
}

const (
	// testJWTSecret はテスト用のJWT署名秘密鍵。
	testJWTSecret = "test-secret-key"
	testTokenURL  = "https://oauth2.test/token"
	testEndpoint  = "https://fcm.test"
	testSendURL   = testEndpoint + "/v1/projects/demo-project/messages:send"
)

// testConfig はテスト用の設定を返す。レート制限は無効。
func testConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{Port: 0},
		Auth:   config.AuthConfig{JWTSecret: testJWTSecret, DevTokens: true},
	}
}

// newTestStore はインメモリSQLiteのストアを生成する。
func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.Open(t.Context(), store.Config{Driver: store.DriverSQLite, DSN: ":memory:"}, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return st
}

// newTestDispatcher はモックトランスポートに接続したDispatcherを生成する。
func newTestDispatcher(t *testing.T, registry prometheus.Registerer) (*fcm.Dispatcher, *httpmock.MockTransport) {
	t.Helper()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	der, err := x509.MarshalPKCS8PrivateKey(key)
	require.NoError(t, err)

	raw, err := json.Marshal(map[string]any{
		"type":           "service_account",
		"project_id":     "demo-project",
		"private_key_id": "key-id",
		"private_key":    string(pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der})),
		"client_email":   "push@demo-project.iam.gserviceaccount.com",
		"client_id":      "1234567890",
		"token_uri":      "https://oauth2.googleapis.com/token",
	})
	require.NoError(t, err)
	cred, err := fcm.ParseCredential(raw)
	require.NoError(t, err)

	metrics, err := fcm.NewMetrics(registry)
	require.NoError(t, err)

	mt := httpmock.NewMockTransport()
	mt.RegisterResponder(http.MethodPost, testTokenURL, httpmock.NewStringResponder(http.StatusOK,
		`{"access_token":"ya29.test-token","token_type":"Bearer","expires_in":3600}`))
	mt.RegisterResponder(http.MethodPost, testSendURL, httpmock.NewStringResponder(http.StatusOK,
		`{"name":"projects/demo-project/messages/0:1"}`))

	d, err := fcm.NewWithCredential(cred, fcm.Config{
		Endpoint:   testEndpoint,
		TokenURL:   testTokenURL,
		HTTPClient: &http.Client{Transport: mt},
	}, zerolog.Nop(), metrics)
	require.NoError(t, err)
	return d, mt
}

// doRequest はテスト用のHTTPリクエストを実行する。tokenが空でなければBearerトークンを付与する。
func doRequest(h http.Handler, method, path, token string, body any) *httptest.ResponseRecorder {
	var reqBody *bytes.Reader
	if body != nil {
		jsonBytes, _ := json.Marshal(body)
		reqBody = bytes.NewReader(jsonBytes)
	} else {
		reqBody = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reqBody)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

// parseJSON はレスポンスボディをmapにデコードする。
func parseJSON(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var result map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result), "body=%s", w.Body.String())
	return result
}

// issueToken は既存ユーザーのJWTを発行する。
func issueToken(t *testing.T, userID string) string {
	t.Helper()
	token, err := middleware.GenerateJWT(testJWTSecret, userID, userID+"@example.com")
	require.NoError(t, err)
	return token
}

func TestHealth(t *testing.T) {
	t.Parallel()

	t.Run("データベースに接続できればok", func(t *testing.T) {
		t.Parallel()
		s := New(testConfig(), newTestStore(t), nil, nil, zerolog.Nop())

		w := doRequest(s.Handler(), http.MethodGet, "/health", "", nil)
		require.Equal(t, http.StatusOK, w.Code)
		body := parseJSON(t, w)
		assert.Equal(t, "ok", body["status"])
		assert.Equal(t, "tasknotify", body["service"])
		assert.Equal(t, false, body["push_enabled"])
	})

	t.Run("データベースが閉じていれば503", func(t *testing.T) {
		t.Parallel()
		st := newTestStore(t)
		s := New(testConfig(), st, nil, nil, zerolog.Nop())
		require.NoError(t, st.Close())

		w := doRequest(s.Handler(), http.MethodGet, "/health", "", nil)
		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	})
}

func TestDevToken(t *testing.T) {
	t.Parallel()

	t.Run("開発用ユーザーを作成して再利用すること", func(t *testing.T) {
		t.Parallel()
		s := New(testConfig(), newTestStore(t), nil, nil, zerolog.Nop())

		first := doRequest(s.Handler(), http.MethodPost, "/auth/dev-token", "", nil)
		require.Equal(t, http.StatusOK, first.Code, first.Body.String())
		second := doRequest(s.Handler(), http.MethodPost, "/auth/dev-token", "", nil)
		require.Equal(t, http.StatusOK, second.Code)

		a, b := parseJSON(t, first), parseJSON(t, second)
		assert.Equal(t, a["user_id"], b["user_id"])
		require.NotEmpty(t, a["token"])

		w := doRequest(s.Handler(), http.MethodGet, "/api/v1/me", a["token"].(string), nil)
		require.Equal(t, http.StatusOK, w.Code)
		me := parseJSON(t, w)["user"].(map[string]any)
		assert.Equal(t, a["user_id"], me["id"])
		assert.Equal(t, "dev@localhost", me["email"])
	})

	t.Run("指定したユーザーとしてトークンを発行できること", func(t *testing.T) {
		t.Parallel()
		st := newTestStore(t)
		u := &store.User{Name: "Alice", Email: "alice@example.com"}
		require.NoError(t, st.CreateUser(t.Context(), u))
		s := New(testConfig(), st, nil, nil, zerolog.Nop())

		w := doRequest(s.Handler(), http.MethodPost, "/auth/dev-token", "", map[string]any{"user_id": u.ID})
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, u.ID, parseJSON(t, w)["user_id"])

		w = doRequest(s.Handler(), http.MethodPost, "/auth/dev-token", "", map[string]any{"user_id": "missing"})
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("無効化されていればルートが存在しないこと", func(t *testing.T) {
		t.Parallel()
		cfg := testConfig()
		cfg.Auth.DevTokens = false
		s := New(cfg, newTestStore(t), nil, nil, zerolog.Nop())

		w := doRequest(s.Handler(), http.MethodPost, "/auth/dev-token", "", nil)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}

func TestAPIRequiresAuth(t *testing.T) {
	t.Parallel()

	s := New(testConfig(), newTestStore(t), nil, nil, zerolog.Nop())
	paths := []struct{ method, path string }{
		{http.MethodGet, "/api/v1/me"},
		{http.MethodGet, "/api/v1/users"},
		{http.MethodGet, "/api/v1/tasks"},
		{http.MethodPost, "/api/v1/fcm/send-notification"},
		{http.MethodGet, "/api/v1/notifications"},
	}
	for _, p := range paths {
		w := doRequest(s.Handler(), p.method, p.path, "", nil)
		assert.Equal(t, http.StatusUnauthorized, w.Code, p.path)

		w = doRequest(s.Handler(), p.method, p.path, "not-a-jwt", nil)
		assert.Equal(t, http.StatusUnauthorized, w.Code, p.path)
	}
}

func TestPushDisabled(t *testing.T) {
	t.Parallel()

	st := newTestStore(t)
	u := &store.User{Name: "Alice", Email: "alice@example.com"}
	require.NoError(t, st.CreateUser(t.Context(), u))
	s := New(testConfig(), st, nil, nil, zerolog.Nop())

	w := doRequest(s.Handler(), http.MethodPost, "/api/v1/fcm/send-to-topic", issueToken(t, u.ID),
		map[string]any{"topic": "news", "title": "t", "body": "b"})
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, false, parseJSON(t, w)["success"])
}

func TestRateLimit(t *testing.T) {
	t.Parallel()

	st := newTestStore(t)
	alice := &store.User{Name: "Alice", Email: "alice@example.com"}
	bob := &store.User{Name: "Bob", Email: "bob@example.com"}
	require.NoError(t, st.CreateUser(t.Context(), alice))
	require.NoError(t, st.CreateUser(t.Context(), bob))

	cfg := testConfig()
	cfg.RateLimit = config.RateLimitConfig{RPS: 0.001, Burst: 1}
	d, _ := newTestDispatcher(t, prometheus.NewRegistry())
	s := New(cfg, st, d, nil, zerolog.Nop())

	send := func(userID string) *httptest.ResponseRecorder {
		return doRequest(s.Handler(), http.MethodPost, "/api/v1/fcm/send-to-topic", issueToken(t, userID),
			map[string]any{"topic": "news", "title": "t", "body": "b"})
	}

	require.Equal(t, http.StatusOK, send(alice.ID).Code)
	w := send(alice.ID)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.NotEmpty(t, w.Header().Get("Retry-After"))

	// 制限はユーザー単位
	assert.Equal(t, http.StatusOK, send(bob.ID).Code)

	// 送信系以外のルートは制限されない
	for range 3 {
		assert.Equal(t, http.StatusOK, doRequest(s.Handler(), http.MethodGet, "/api/v1/users", issueToken(t, alice.ID), nil).Code)
	}
}

func TestEndToEnd(t *testing.T) {
	t.Parallel()

	st := newTestStore(t)
	registry := prometheus.NewRegistry()
	d, mt := newTestDispatcher(t, registry)
	s := New(testConfig(), st, d, registry, zerolog.Nop())
	h := s.Handler()

	// 開発用トークンで担当者を作り、デバイストークンを登録する
	w := doRequest(h, http.MethodPost, "/auth/dev-token", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	dev := parseJSON(t, w)
	token, userID := dev["token"].(string), dev["user_id"].(string)

	deviceToken := "device-" + strings.Repeat("a", 80)
	w = doRequest(h, http.MethodPut, "/api/v1/fcm/update-device-token", token,
		map[string]any{"user_id": userID, "fcm_token": deviceToken})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	// タスクを割り当てると通知が届く
	w = doRequest(h, http.MethodPost, "/api/v1/tasks", token,
		map[string]any{"title": "Ship release", "priority": "urgent", "assigned_to": userID})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Equal(t, true, parseJSON(t, w)["notification_sent"])

	info := mt.GetCallCountInfo()
	assert.Equal(t, 1, info["POST "+testTokenURL])
	assert.Equal(t, 1, info["POST "+testSendURL])

	// 受信箱に記録されている
	w = doRequest(h, http.MethodGet, "/api/v1/notifications/unread", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	list := parseJSON(t, w)["notifications"].([]any)
	require.Len(t, list, 1)
	entry := list[0].(map[string]any)
	assert.Equal(t, "task_assigned", entry["event_type"])
	assert.Equal(t, "sent", entry["status"])
	assert.Equal(t, "projects/demo-project/messages/0:1", entry["message_name"])

	w = doRequest(h, http.MethodPut, fmt.Sprintf("/api/v1/notifications/%s/read", entry["id"]), token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	w = doRequest(h, http.MethodGet, "/api/v1/notifications/unread", token, nil)
	assert.Empty(t, parseJSON(t, w)["notifications"])

	// 送信結果がメトリクスに反映される
	w = doRequest(h, http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `fcm_messages_total{outcome="success",target="token"} 1`)
	assert.Contains(t, w.Body.String(), `fcm_token_exchanges_total{outcome="success"} 1`)
}

func TestRun(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.RateLimit = config.RateLimitConfig{RPS: 1, Burst: 1}
	s := New(cfg, newTestStore(t), nil, nil, zerolog.Nop())

	ctx, cancel := context.WithCancel(t.Context())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(15 * time.Second):
		t.Fatal("サーバーが停止しませんでした")
	}
}

var _ notification.Sender = (*fcm.Dispatcher)(nil)

package fcm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

// MessagingScope はFCM送信に必要なOAuth2スコープ。
const MessagingScope = "https://www.googleapis.com/auth/firebase.messaging"

const (
	// defaultTokenLifetime は有効期限が返されなかった場合にトークンを使い回す期間。
	defaultTokenLifetime = 50 * time.Minute
	// expirySkew は有効期限の直前に送信が失敗しないよう前倒しで再取得する幅。
	expirySkew = time.Minute
)

// exchangeFunc はサービスアカウントの認証情報をアクセストークンに交換する。
type exchangeFunc func(ctx context.Context) (*oauth2.Token, error)

// newJWTExchange はJWTアサーションによるトークン交換関数を生成する。
// tokenURLが空でなければトークンエンドポイントを差し替える。
func newJWTExchange(cred *Credential, tokenURL string, hc *http.Client) (exchangeFunc, error) {
	conf, err := google.JWTConfigFromJSON(cred.raw, MessagingScope)
	if err != nil {
		return nil, &ConfigError{Path: cred.path, Reason: "OAuth2設定の生成に失敗しました: " + err.Error()}
	}
	if tokenURL != "" {
		conf.TokenURL = tokenURL
	}

	return func(ctx context.Context) (*oauth2.Token, error) {
		if hc != nil {
			ctx = context.WithValue(ctx, oauth2.HTTPClient, hc)
		}
		return conf.TokenSource(ctx).Token()
	}, nil
}

// tokenCache はアクセストークンと有効期限を保持する。
// HTTPリクエストは並行に処理されるため、交換はミューテックスで直列化する。
type tokenCache struct {
	mu        sync.Mutex
	exchange  exchangeFunc
	now       func() time.Time
	token     string
	expiresAt time.Time
	// observe は交換のたびに結果を通知する。nilでもよい。
	observe func(err error)
}

// newTokenCache は空のトークンキャッシュを生成する。
func newTokenCache(exchange exchangeFunc, observe func(err error)) *tokenCache {
	return &tokenCache{
		exchange: exchange,
		now:      time.Now,
		observe:  observe,
	}
}

// Token は有効なアクセストークンを返す。
// キャッシュが空か now >= expiresAt の場合のみ交換を行う。
func (c *tokenCache) Token(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if c.token != "" && now.Before(c.expiresAt) {
		return c.token, nil
	}

	tok, err := c.exchange(ctx)
	if err == nil && (tok == nil || tok.AccessToken == "") {
		err = errors.New("アクセストークンが空です")
	}
	if c.observe != nil {
		c.observe(err)
	}
	if err != nil {
		c.token = ""
		c.expiresAt = time.Time{}
		return "", &AuthError{Category: classifyAuthError(err), Err: err}
	}

	c.token = tok.AccessToken
	if tok.Expiry.IsZero() {
		c.expiresAt = now.Add(defaultTokenLifetime)
	} else {
		c.expiresAt = tok.Expiry.Add(-expirySkew)
	}
	return c.token, nil
}

// classifyAuthError はトークン交換の失敗を分類する。
func classifyAuthError(err error) AuthCategory {
	var re *oauth2.RetrieveError
	if errors.As(err, &re) {
		code := re.ErrorCode
		if code == "" {
			var body struct {
				Error string `json:"error"`
			}
			if json.Unmarshal(re.Body, &body) == nil {
				code = body.Error
			}
		}
		switch code {
		case "invalid_grant", "invalid_client", "unauthorized_client":
			return CategoryInvalidGrant
		}
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "private key"), strings.Contains(msg, "pem"):
		return CategoryInvalidPrivateKey
	case strings.Contains(msg, "invalid_grant"), strings.Contains(msg, "invalid_client"):
		return CategoryInvalidGrant
	default:
		return CategoryUnknown
	}
}

package fcm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog"

	"github.com/nao1215/tasknotify/pkg/httpclient"
)

// DefaultEndpoint はFCM HTTP v1 APIのベースURL。
const DefaultEndpoint = "https://fcm.googleapis.com"

// Config はDispatcherの設定。
type Config struct {
	// ProjectID は送信先のFirebaseプロジェクトID。空の場合は認証情報のproject_idを使う。
	ProjectID string
	// CredentialsDir は認証情報ファイルを探すディレクトリ。
	CredentialsDir string
	// CredentialsFile は認証情報ファイル名。
	CredentialsFile string
	// Endpoint はFCM APIのベースURL。空の場合はDefaultEndpoint。
	Endpoint string
	// TokenURL はOAuth2トークンエンドポイント。空の場合は認証情報の値を使う。
	TokenURL string
	// Timeout はFCM APIへのリクエストのタイムアウト。
	Timeout time.Duration
	// HTTPClient はトークン交換と送信に使うHTTPクライアント。nilの場合は新しく生成する。
	HTTPClient *http.Client
}

// Response はFCMが受け付けたメッセージの情報。
type Response struct {
	// Name はFCMが採番したメッセージ名（projects/*/messages/*）。
	Name string `json:"name"`
}

// DispatchResult は複数トークン送信における1トークン分の結果。
type DispatchResult struct {
	Token    string    `json:"token"`
	Success  bool      `json:"success"`
	Response *Response `json:"response,omitempty"`
	Error    string    `json:"error,omitempty"`
}

// Summary は複数トークン送信の集計。
type Summary struct {
	Total        int `json:"total"`
	SuccessCount int `json:"success_count"`
	FailureCount int `json:"failure_count"`
}

// Summarize は送信結果を集計する。
func Summarize(results []DispatchResult) Summary {
	s := Summary{Total: len(results)}
	for _, r := range results {
		if r.Success {
			s.SuccessCount++
		} else {
			s.FailureCount++
		}
	}
	return s
}

// Dispatcher はFCM HTTP v1 APIにメッセージを送信する。
type Dispatcher struct {
	// projectID は送信先のプロジェクトID。
	projectID string
	// client はFCM APIへのHTTPクライアント。
	client *httpclient.Client
	// tokens はアクセストークンのキャッシュ。
	tokens *tokenCache
	// logger は送信処理のロガー。
	logger zerolog.Logger
	// metrics は送信メトリクス。nilでもよい。
	metrics *Metrics
}

// New は認証情報を読み込んで検証し、Dispatcherを生成する。
// 認証情報に不備がある場合は*ConfigErrorを返す。送信時に認証情報を読み直すことはない。
func New(cfg Config, logger zerolog.Logger, metrics *Metrics) (*Dispatcher, error) {
	cred, err := LoadCredential(CandidatePaths(cfg.CredentialsDir, cfg.CredentialsFile))
	if err != nil {
		return nil, err
	}
	return NewWithCredential(cred, cfg, logger, metrics)
}

// NewWithCredential は読み込み済みの認証情報からDispatcherを生成する。
func NewWithCredential(cred *Credential, cfg Config, logger zerolog.Logger, metrics *Metrics) (*Dispatcher, error) {
	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{}
	}

	exchange, err := newJWTExchange(cred, cfg.TokenURL, hc)
	if err != nil {
		return nil, err
	}

	projectID := cfg.ProjectID
	if projectID == "" {
		projectID = cred.ProjectID
	}
	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}

	logger = logger.With().Str("component", "fcm").Str("project_id", projectID).Logger()
	logger.Info().Str("credentials", cred.Path()).Str("client_email", cred.ClientEmail).Msg("FCMの認証情報を読み込みました")

	return &Dispatcher{
		projectID: projectID,
		client:    httpclient.New(endpoint, httpclient.WithHTTPClient(hc), httpclient.WithTimeout(cfg.Timeout)),
		tokens:    newTokenCache(exchange, metrics.observeExchange),
		logger:    logger,
		metrics:   metrics,
	}, nil
}

// ProjectID は送信先のプロジェクトIDを返す。
func (d *Dispatcher) ProjectID() string {
	return d.projectID
}

// BearerToken は有効なアクセストークンを返す。失敗した場合は*AuthErrorを返す。
func (d *Dispatcher) BearerToken(ctx context.Context) (string, error) {
	token, err := d.tokens.Token(ctx)
	if err != nil {
		var authErr *AuthError
		if errors.As(err, &authErr) {
			d.logger.Error().Err(authErr.Err).Str("category", string(authErr.Category)).Msg("アクセストークンの取得に失敗しました")
		}
		return "", err
	}
	return token, nil
}

// sendRequest はmessages:sendのリクエストボディ。
type sendRequest struct {
	Message *Message `json:"message"`
}

// Send はメッセージを1件送信する。
// FCMが2xx以外を返した場合はエラーボディをそのまま保持した*DeliveryErrorを返す。
func (d *Dispatcher) Send(ctx context.Context, msg *Message) (*Response, error) {
	if msg == nil {
		return nil, errors.New("メッセージがnilです")
	}
	kind := messageKind(msg)
	start := time.Now()

	token, err := d.BearerToken(ctx)
	if err != nil {
		d.metrics.observeSend(kind, start, err)
		return nil, err
	}

	path := fmt.Sprintf("/v1/projects/%s/messages:send", url.PathEscape(d.projectID))
	var resp Response
	err = d.client.PostJSON(ctx, path, sendRequest{Message: msg}, &resp, httpclient.WithBearer(token))
	d.metrics.observeSend(kind, start, err)
	if err != nil {
		var statusErr *httpclient.StatusError
		if errors.As(err, &statusErr) {
			d.logger.Error().
				Int("status", statusErr.StatusCode).
				Str("target", kind).
				Str("error", string(statusErr.Body)).
				Msg("FCMがメッセージを拒否しました")
			return nil, &DeliveryError{StatusCode: statusErr.StatusCode, Body: statusErr.Body}
		}
		d.logger.Error().Err(err).Str("target", kind).Msg("FCMへの送信に失敗しました")
		return nil, &DeliveryError{Err: err}
	}

	d.logger.Debug().Str("target", kind).Str("name", resp.Name).Msg("FCMにメッセージを送信しました")
	return &resp, nil
}

// SendTo は送信先を指定してメッセージを組み立て、送信する。
func (d *Dispatcher) SendTo(ctx context.Context, target Target, title, body string, data map[string]any, opts Options) (*Response, error) {
	msg, err := BuildMessage(target, title, body, data, opts)
	if err != nil {
		return nil, err
	}
	return d.Send(ctx, msg)
}

// SendToToken はデバイストークン宛てに送信する。
func (d *Dispatcher) SendToToken(ctx context.Context, token, title, body string, data map[string]any, opts Options) (*Response, error) {
	return d.SendTo(ctx, Token(token), title, body, data, opts)
}

// SendToTopic はトピック宛てに送信する。
func (d *Dispatcher) SendToTopic(ctx context.Context, topic, title, body string, data map[string]any, opts Options) (*Response, error) {
	return d.SendTo(ctx, Topic(topic), title, body, data, opts)
}

// SendToCondition はトピック条件式宛てに送信する。
func (d *Dispatcher) SendToCondition(ctx context.Context, condition, title, body string, data map[string]any, opts Options) (*Response, error) {
	return d.SendTo(ctx, Condition(condition), title, body, data, opts)
}

// SendToMultipleTokens は各トークンに逐次送信し、入力順の結果を返す。
// 1件の失敗は他のトークンへの送信に影響しない。
func (d *Dispatcher) SendToMultipleTokens(ctx context.Context, tokens []string, title, body string, data map[string]any, opts Options) []DispatchResult {
	results := make([]DispatchResult, 0, len(tokens))
	for _, token := range tokens {
		resp, err := d.SendToToken(ctx, token, title, body, data, opts)
		if err != nil {
			results = append(results, DispatchResult{Token: token, Success: false, Error: err.Error()})
			continue
		}
		results = append(results, DispatchResult{Token: token, Success: true, Response: resp})
	}
	return results
}

// messageKind はメトリクスとログ用に宛先の種類を返す。
func messageKind(m *Message) string {
	switch {
	case m == nil:
		return "unknown"
	case m.Token != "":
		return Token("").Kind()
	case m.Topic != "":
		return Topic("").Kind()
	case m.Condition != "":
		return Condition("").Kind()
	default:
		return "unknown"
	}
}

package fcm

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

const (
	// DefaultCredentialsDir は認証情報ファイルを探す基準ディレクトリ。
	DefaultCredentialsDir = "storage/app"
	// DefaultCredentialsFile は認証情報ファイルの既定名。
	DefaultCredentialsFile = "firebase_auth.json"

	// serviceAccountType はサービスアカウントJSONのtypeの値。
	serviceAccountType = "service_account"
	// minPrivateKeyLength はこれより短い秘密鍵をプレースホルダとみなす長さ。
	minPrivateKeyLength = 100
)

// placeholderMarkers は雛形のまま置かれた秘密鍵に含まれる文字列。
var placeholderMarkers = []string{"YOUR_PRIVATE_KEY", "PLACEHOLDER"}

// Credential はサービスアカウントの認証情報。
type Credential struct {
	Type         string `json:"type"`
	ProjectID    string `json:"project_id"`
	PrivateKeyID string `json:"private_key_id"`
	PrivateKey   string `json:"private_key"`
	ClientEmail  string `json:"client_email"`
	ClientID     string `json:"client_id"`
	TokenURI     string `json:"token_uri"`

	// path は読み込んだファイルのパス。
	path string
	// raw はファイルの内容。OAuth2設定の生成に使う。
	raw []byte
}

// Path は読み込んだファイルのパスを返す。
func (c *Credential) Path() string { return c.path }

// CandidatePaths は認証情報ファイルの探索順を返す。
// dir/json/<file>、dir/<file>、dir/firebase_auth.json の順に探し、最初に存在したファイルを使う。
func CandidatePaths(dir, file string) []string {
	if dir == "" {
		dir = DefaultCredentialsDir
	}
	if file == "" {
		file = DefaultCredentialsFile
	}
	return []string{
		filepath.Join(dir, "json", file),
		filepath.Join(dir, file),
		filepath.Join(dir, DefaultCredentialsFile),
	}
}

// LoadCredential は候補パスを順に探し、最初に存在したファイルを読み込んで検証する。
// 最初に見つかったファイルが不正な場合は後続の候補を探さずに*ConfigErrorを返す。
func LoadCredential(paths []string) (*Credential, error) {
	for _, path := range paths {
		raw, err := os.ReadFile(path)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return nil, &ConfigError{Path: path, Reason: fmt.Sprintf("認証情報ファイルを読み込めません: %v", err)}
		}

		cred, err := ParseCredential(raw)
		if err != nil {
			var cfgErr *ConfigError
			if errors.As(err, &cfgErr) {
				cfgErr.Path = path
			}
			return nil, err
		}
		cred.path = path
		return cred, nil
	}

	return nil, &ConfigError{
		Reason: fmt.Sprintf("Firebaseの認証情報ファイルが見つかりません (探索先: %s)。"+
			"Firebaseコンソールの「プロジェクトの設定 > サービスアカウント」で秘密鍵を生成して配置してください",
			strings.Join(paths, ", ")),
	}
}

// ParseCredential はサービスアカウントJSONを解析して検証する。
func ParseCredential(raw []byte) (*Credential, error) {
	var cred Credential
	if err := json.Unmarshal(raw, &cred); err != nil {
		return nil, &ConfigError{Reason: fmt.Sprintf("認証情報ファイルがJSONとして不正です: %v", err)}
	}
	if err := cred.validate(); err != nil {
		return nil, err
	}
	cred.raw = raw
	return &cred, nil
}

// validate はサービスアカウントJSONとして使えるかを検証する。
func (c *Credential) validate() error {
	if c.Type != serviceAccountType {
		return &ConfigError{Reason: fmt.Sprintf(
			`認証情報ファイルはサービスアカウントJSON（"type": "service_account"）である必要があります (type=%q)。`+
				"クライアント向けの設定ファイルは使えません", c.Type)}
	}

	if c.PrivateKey != "" && isPlaceholderKey(c.PrivateKey) {
		return &ConfigError{Reason: "認証情報ファイルの秘密鍵がプレースホルダのままです。" +
			"Firebaseコンソールで生成した本物のサービスアカウントJSONを配置してください"}
	}

	var missing []string
	if c.PrivateKey == "" {
		missing = append(missing, "private_key")
	}
	if c.ClientEmail == "" {
		missing = append(missing, "client_email")
	}
	if c.ProjectID == "" {
		missing = append(missing, "project_id")
	}
	if len(missing) > 0 {
		return &ConfigError{Reason: "認証情報ファイルに必須フィールドがありません: " + strings.Join(missing, ", ")}
	}
	return nil
}

// isPlaceholderKey は秘密鍵が雛形の値かどうかを判定する。
func isPlaceholderKey(key string) bool {
	if len(key) < minPrivateKeyLength {
		return true
	}
	for _, marker := range placeholderMarkers {
		if strings.Contains(key, marker) {
			return true
		}
	}
	return false
}

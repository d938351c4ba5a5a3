package fcm

import (
	"encoding/json"
	"fmt"
)

// ConfigError は認証情報ファイルの不備を表す。Dispatcherの生成時にのみ返る。
type ConfigError struct {
	// Path は問題のあったファイルのパス。ファイルが見つからない場合は空。
	Path string
	// Reason は人が読める原因。
	Reason string
}

// Error はerrorインターフェースを実装する。
func (e *ConfigError) Error() string {
	if e.Path == "" {
		return "FCMの設定が不正です: " + e.Reason
	}
	return fmt.Sprintf("FCMの設定が不正です (%s): %s", e.Path, e.Reason)
}

// AuthCategory はアクセストークン取得失敗の分類。
type AuthCategory string

const (
	// CategoryInvalidPrivateKey は秘密鍵を解釈できなかったことを表す。
	CategoryInvalidPrivateKey AuthCategory = "invalid_private_key"
	// CategoryInvalidGrant は認証情報が無効または失効していることを表す。
	CategoryInvalidGrant AuthCategory = "invalid_grant"
	// CategoryUnknown はその他の失敗を表す。
	CategoryUnknown AuthCategory = "unknown"
)

// Hint は分類ごとの対処方法を返す。
func (c AuthCategory) Hint() string {
	switch c {
	case CategoryInvalidPrivateKey:
		return "サービスアカウントJSONの秘密鍵が不正です。Firebaseコンソールで新しい秘密鍵を生成してファイルを置き換えてください"
	case CategoryInvalidGrant:
		return "サービスアカウントの認証情報が無効か失効しています。Firebaseコンソールから新しいJSONをダウンロードしてください"
	default:
		return "アクセストークンを取得できませんでした"
	}
}

// AuthError はアクセストークンの取得失敗を表す。
type AuthError struct {
	// Category は失敗の分類。
	Category AuthCategory
	// Err は元のエラー。
	Err error
}

// Error はerrorインターフェースを実装する。
func (e *AuthError) Error() string {
	return fmt.Sprintf("Firebaseの認証に失敗しました: %s: %v", e.Category.Hint(), e.Err)
}

// Unwrap は元のエラーを返す。
func (e *AuthError) Unwrap() error { return e.Err }

// DeliveryError はFCMがメッセージを受け付けなかったことを表す。
type DeliveryError struct {
	// StatusCode はHTTPステータスコード。通信自体に失敗した場合は0。
	StatusCode int
	// Body はFCMが返したエラーボディ（加工なし）。
	Body []byte
	// Err は通信エラー。StatusCodeが0の場合のみ設定される。
	Err error
}

// Error はerrorインターフェースを実装する。
func (e *DeliveryError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("FCMへの送信に失敗しました: %v", e.Err)
	}
	return fmt.Sprintf("FCM APIエラー: status=%d, body=%s", e.StatusCode, string(e.Body))
}

// Unwrap は通信エラーを返す。
func (e *DeliveryError) Unwrap() error { return e.Err }

// VendorError はFCMのエラーボディを返す。JSONとして妥当ならjson.RawMessage、そうでなければ文字列。
func (e *DeliveryError) VendorError() any {
	if len(e.Body) == 0 {
		return nil
	}
	if json.Valid(e.Body) {
		return json.RawMessage(e.Body)
	}
	return string(e.Body)
}

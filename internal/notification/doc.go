// Package notification はプッシュ通知の送信APIと通知受信箱APIを提供する。
//
// デバイストークンの登録、ユーザー・トークン・トピック・条件式宛ての送信、
// 複数ユーザーへの一括送信を扱う。既知のユーザーに送った通知は成否とともに
// 受信箱に記録し、一覧・既読化できるようにする。
// 送信はすべて同期的に行い、失敗はそのままレスポンスに反映する。
package notification

// Package fcm はFirebase Cloud Messaging HTTP v1 APIへの通知送信を提供する。
//
// サービスアカウントの認証情報を起動時に1度だけ読み込んで検証し、
// OAuth2のJWTアサーションで取得したアクセストークンを有効期限付きでキャッシュする。
// 送信はメッセージ1件につきHTTP POST 1回で、リトライやバッチ送信は行わない。
// 複数トークンへの送信は入力順に逐次実行し、1件の失敗が残りの送信を妨げない。
package fcm

// Package httpclient は外部APIへJSONリクエストを送信するクライアントを提供する。
//
// FCM HTTP v1 APIへの送信のように、Bearerトークン付きでJSONをPOSTし、
// 2xx以外の応答はボディを保持したStatusErrorとして呼び出し元に返す。
package httpclient

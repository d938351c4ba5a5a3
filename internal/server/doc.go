// Package server はtasknotifyのHTTPサーバーを組み立てる。
//
// 認証不要のエンドポイントとして /health、/metrics、開発用の /auth/dev-token を持ち、
// /api/v1 配下はJWT認証を必須とする。プッシュ通知とタスクのハンドラは
// それぞれ notification パッケージと task パッケージが提供する。
package server

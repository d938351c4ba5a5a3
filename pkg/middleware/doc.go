// Package middleware はGinベースのHTTP APIで使用する共通ミドルウェアを提供する。
//
// JWT認証、構造化リクエストログ、パニックリカバリ、CORS、
// ユーザー単位のレート制限を含む。エラー応答はAPI共通の
// {"success": false, "message": ...} 形式で返す。
package middleware

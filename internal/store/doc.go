// Package store はタスク管理アプリケーションの永続化層を提供する。
//
// GORMを介してSQLite（modernc.org/sqlite）またはMySQLにアクセスする。
// ユーザー（通知の受信者）とそのデバイストークン、タスク、
// 送信済み通知の受信箱を管理する。スキーマはpkg/migrationで適用する。
package store

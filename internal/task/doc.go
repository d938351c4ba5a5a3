// Package task はタスクのCRUD APIと、タスクの変化に応じたプッシュ通知の送信方針を提供する。
//
// 担当者が設定・変更されたときは割り当て通知を、完了状態に遷移したときは状態変更通知を送る。
// 通知の失敗はタスク操作を失敗させず、レスポンスのメッセージにだけ反映する。
package task

// Package config はアプリケーション設定の読み込みを提供する。
//
// 設定はデフォルト値、YAMLファイル、TASKNOTIFY_ で始まる環境変数の順に上書きされる。
// 環境変数名はキーの "." を "_" に置き換えたもの（例: fcm.project_id → TASKNOTIFY_FCM_PROJECT_ID）。
package config

// tasknotifyのエントリポイント。
// タスク管理APIとFCM HTTP v1 APIによるプッシュ通知の送信を担当する。
package main

import (
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

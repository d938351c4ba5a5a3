// Package logger はアプリケーション全体で使用するzerologロガーを生成する。
package logger

import (
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
)

// timeFormat はコンソール出力時のタイムスタンプ形式。
const timeFormat = "2006-01-02 15:04:05"

// New はサービス名を基本フィールドに持つロガーを生成する。
// consoleがtrueの場合は人間向けのコンソール形式、falseの場合はJSON形式で標準出力に書き出す。
func New(service, level string, console bool) zerolog.Logger {
	var out io.Writer = os.Stdout
	if console {
		out = zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: timeFormat}
	}
	return NewWithWriter(out, service, level)
}

// NewWithWriter は任意の出力先にロガーを生成する。テストでの出力検証に使用する。
func NewWithWriter(w io.Writer, service, level string) zerolog.Logger {
	return zerolog.New(w).
		Level(ParseLevel(level)).
		With().
		Timestamp().
		Str("service", service).
		Logger()
}

// ParseLevel はログレベル文字列をzerologのレベルに変換する。
// 不明な値はinfoとして扱う。
func ParseLevel(raw string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "disabled", "off":
		return zerolog.Disabled
	default:
		return zerolog.InfoLevel
	}
}

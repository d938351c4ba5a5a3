package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix は環境変数のプレフィックス。
const EnvPrefix = "TASKNOTIFY"

// Config はアプリケーション全体の設定。
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Auth      AuthConfig      `mapstructure:"auth"`
	FCM       FCMConfig       `mapstructure:"fcm"`
	Log       LogConfig       `mapstructure:"log"`
	RateLimit RateLimitConfig `mapstructure:"ratelimit"`
}

// ServerConfig はHTTPサーバーの設定。
type ServerConfig struct {
	// Port は待ち受けポート。
	Port int `mapstructure:"port"`
	// AllowedOrigins はCORSで許可するオリジン。
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// DatabaseConfig はデータベースの設定。
type DatabaseConfig struct {
	// Driver は "sqlite" または "mysql"。
	Driver string `mapstructure:"driver"`
	// DSN は接続文字列。
	DSN string `mapstructure:"dsn"`
}

// AuthConfig はJWT認証の設定。
type AuthConfig struct {
	// JWTSecret はJWTの署名鍵。
	JWTSecret string `mapstructure:"jwt_secret"`
	// DevTokens が真のとき、開発用のトークン発行エンドポイントを公開する。
	DevTokens bool `mapstructure:"dev_tokens"`
}

// FCMConfig はプッシュ通知の設定。
type FCMConfig struct {
	// Enabled が偽のときプッシュ通知は無効になり、送信APIは503を返す。
	Enabled         bool          `mapstructure:"enabled"`
	ProjectID       string        `mapstructure:"project_id"`
	CredentialsDir  string        `mapstructure:"credentials_dir"`
	CredentialsFile string        `mapstructure:"credentials_file"`
	Endpoint        string        `mapstructure:"endpoint"`
	TokenURL        string        `mapstructure:"token_url"`
	Timeout         time.Duration `mapstructure:"timeout"`
}

// LogConfig はログ出力の設定。
type LogConfig struct {
	// Level は debug / info / warn / error のいずれか。
	Level string `mapstructure:"level"`
	// Console が真のとき人が読みやすい形式で出力する。
	Console bool `mapstructure:"console"`
}

// RateLimitConfig は通知送信APIのレート制限の設定。
type RateLimitConfig struct {
	// RPS はユーザーごとの1秒あたりの許容リクエスト数。0以下で無効。
	RPS float64 `mapstructure:"rps"`
	// Burst はバケットの容量。
	Burst int `mapstructure:"burst"`
}

// setDefaults はデフォルト値を登録する。
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.allowed_origins", []string{"http://localhost:3000"})
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", "tasknotify.db")
	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.dev_tokens", false)
	v.SetDefault("fcm.enabled", true)
	v.SetDefault("fcm.project_id", "")
	v.SetDefault("fcm.credentials_dir", "storage/app")
	v.SetDefault("fcm.credentials_file", "firebase_auth.json")
	v.SetDefault("fcm.endpoint", "https://fcm.googleapis.com")
	v.SetDefault("fcm.token_url", "")
	v.SetDefault("fcm.timeout", 30*time.Second)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.console", false)
	v.SetDefault("ratelimit.rps", 5.0)
	v.SetDefault("ratelimit.burst", 10)
}

// Load は設定を読み込む。pathが空の場合は設定ファイルを読まない。
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("設定ファイルの読み込みに失敗: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("設定の解析に失敗: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate は設定値の整合性を検証する。
func (c *Config) Validate() error {
	var errs []error
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.portが不正です: %d", c.Server.Port))
	}
	switch c.Database.Driver {
	case "sqlite", "mysql":
	default:
		errs = append(errs, fmt.Errorf("database.driverは sqlite または mysql である必要があります: %q", c.Database.Driver))
	}
	if c.Database.DSN == "" {
		errs = append(errs, errors.New("database.dsnは必須です"))
	}
	if c.Auth.JWTSecret == "" {
		errs = append(errs, errors.New("auth.jwt_secretは必須です"))
	}
	if c.FCM.Timeout < 0 {
		errs = append(errs, fmt.Errorf("fcm.timeoutが不正です: %s", c.FCM.Timeout))
	}
	if c.RateLimit.RPS > 0 && c.RateLimit.Burst <= 0 {
		errs = append(errs, fmt.Errorf("ratelimit.burstは1以上である必要があります: %d", c.RateLimit.Burst))
	}
	return errors.Join(errs...)
}

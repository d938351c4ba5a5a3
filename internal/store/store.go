package store

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	_ "modernc.org/sqlite"

	"github.com/nao1215/tasknotify/pkg/migration"
)

// ドライバ名。
const (
	// DriverSQLite はmodernc.org/sqliteを使うSQLiteドライバ。
	DriverSQLite = "sqlite"
	// DriverMySQL はMySQLドライバ。
	DriverMySQL = "mysql"
)

//go:embed migrations
var migrationsFS embed.FS

var (
	// ErrNotFound は対象のレコードが存在しない場合のエラー。
	ErrNotFound = errors.New("レコードが見つかりません")
	// ErrNoDeviceToken はユーザーにデバイストークンが登録されていない場合のエラー。
	ErrNoDeviceToken = errors.New("デバイストークンが登録されていません")
)

// ValidationError は入力値の検証エラー。どのフィールドが不正かを保持する。
type ValidationError struct {
	// Field は不正な値を持つフィールド名（JSONのキー名）。
	Field string
	// Message は人が読めるエラー内容。
	Message string
}

// Error はerrorインターフェースを実装する。
func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Config はデータベース接続の設定。
type Config struct {
	// Driver は "sqlite" または "mysql"。
	Driver string
	// DSN は接続文字列。SQLiteの場合はファイルパスまたは ":memory:"。
	DSN string
}

// Store はGORMによるデータアクセスを提供する。
type Store struct {
	// db はGORMのデータベースハンドル。
	db *gorm.DB
	// sqlDB は下位のdatabase/sql接続プール。
	sqlDB *sql.DB
	// logger は永続化層のロガー。
	logger zerolog.Logger
}

// Open はデータベースに接続し、マイグレーションを適用したStoreを返す。
func Open(ctx context.Context, cfg Config, logger zerolog.Logger) (*Store, error) {
	logger = logger.With().Str("component", "store").Str("driver", cfg.Driver).Logger()
	gormCfg := &gorm.Config{Logger: newGormLogger(logger)}

	var (
		db  *gorm.DB
		err error
	)
	switch cfg.Driver {
	case DriverSQLite, "":
		db, err = openSQLite(cfg.DSN, gormCfg)
	case DriverMySQL:
		db, err = gorm.Open(mysql.Open(cfg.DSN), gormCfg)
	default:
		return nil, fmt.Errorf("未対応のデータベースドライバです: %q", cfg.Driver)
	}
	if err != nil {
		return nil, fmt.Errorf("データベース接続に失敗: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("database/sqlハンドルの取得に失敗: %w", err)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("データベースへの疎通確認に失敗: %w", err)
	}

	dir := "migrations/" + DriverSQLite
	if cfg.Driver == DriverMySQL {
		dir = "migrations/" + DriverMySQL
	}
	if err := migration.Run(sqlDB, migrationsFS, dir, logger); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("スキーマ初期化に失敗: %w", err)
	}

	return &Store{db: db, sqlDB: sqlDB, logger: logger}, nil
}

// openSQLite はmodernc.org/sqliteで開いた接続プールをGORMに渡す。
// インメモリDBは接続ごとに別のDBになるため、接続数を1に固定する。
func openSQLite(dsn string, gormCfg *gorm.Config) (*gorm.DB, error) {
	if dsn == "" {
		dsn = ":memory:"
	}
	if !strings.Contains(dsn, "_pragma=foreign_keys") {
		sep := "?"
		if strings.Contains(dsn, "?") {
			sep = "&"
		}
		dsn += sep + "_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
	}

	sqlDB, err := sql.Open(DriverSQLite, dsn)
	if err != nil {
		return nil, err
	}
	if strings.HasPrefix(dsn, ":memory:") || strings.Contains(dsn, "mode=memory") {
		sqlDB.SetMaxOpenConns(1)
	}

	db, err := gorm.Open(sqlite.Dialector{DriverName: DriverSQLite, Conn: sqlDB}, gormCfg)
	if err != nil {
		_ = sqlDB.Close()
		return nil, err
	}
	return db, nil
}

// Close はデータベース接続を閉じる。
func (s *Store) Close() error {
	return s.sqlDB.Close()
}

// Ping はデータベースへの疎通を確認する。ヘルスチェックで使用する。
func (s *Store) Ping(ctx context.Context) error {
	return s.sqlDB.PingContext(ctx)
}

// notFound はgorm.ErrRecordNotFoundをErrNotFoundに変換する。
func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}

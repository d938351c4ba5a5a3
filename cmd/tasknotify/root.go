package main

import (
	"context"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/nao1215/tasknotify/internal/config"
	"github.com/nao1215/tasknotify/internal/fcm"
	"github.com/nao1215/tasknotify/internal/notification"
	"github.com/nao1215/tasknotify/internal/store"
	"github.com/nao1215/tasknotify/pkg/logger"
)

// serviceName はログの基本フィールドに使うサービス名。
const serviceName = "tasknotify"

// app はサブコマンドで共有する設定とロガー。
type app struct {
	// configPath は --config で指定された設定ファイルのパス。
	configPath string
	cfg        *config.Config
	logger     zerolog.Logger
}

// newRootCmd はルートコマンドを生成する。
func newRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:           "tasknotify",
		Short:         "タスク管理とプッシュ通知のサーバー",
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(a.configPath)
			if err != nil {
				return err
			}
			a.cfg = cfg
			a.logger = logger.NewWithWriter(logWriter(cfg.Log.Console), serviceName, cfg.Log.Level)
			return nil
		},
	}
	root.PersistentFlags().StringVar(&a.configPath, "config", "", "設定ファイルのパス（YAML）")

	root.AddCommand(
		newServeCmd(a),
		newUserCmd(a),
		newTokenCmd(a),
		newNotifyCmd(a),
	)
	return root
}

// logWriter はCLI用のログ出力先を返す。標準出力はコマンドの結果に使うため標準エラーに書く。
func logWriter(console bool) zerolog.ConsoleWriter {
	return zerolog.ConsoleWriter{Out: os.Stderr, NoColor: !console, TimeFormat: "15:04:05"}
}

// openStore は設定に従ってデータベースを開く。
func (a *app) openStore(ctx context.Context) (*store.Store, error) {
	return store.Open(ctx, store.Config{Driver: a.cfg.Database.Driver, DSN: a.cfg.Database.DSN}, a.logger)
}

// newSender は設定に従ってFCMのDispatcherを生成する。
// プッシュ通知が無効な場合はnilを返す。
func (a *app) newSender(reg prometheus.Registerer) (notification.Sender, error) {
	if !a.cfg.FCM.Enabled {
		a.logger.Warn().Msg("プッシュ通知は無効です")
		return nil, nil
	}

	metrics, err := fcm.NewMetrics(reg)
	if err != nil {
		return nil, err
	}
	d, err := fcm.New(fcm.Config{
		ProjectID:       a.cfg.FCM.ProjectID,
		CredentialsDir:  a.cfg.FCM.CredentialsDir,
		CredentialsFile: a.cfg.FCM.CredentialsFile,
		Endpoint:        a.cfg.FCM.Endpoint,
		TokenURL:        a.cfg.FCM.TokenURL,
		Timeout:         a.cfg.FCM.Timeout,
	}, a.logger, metrics)
	if err != nil {
		return nil, err
	}
	return d, nil
}

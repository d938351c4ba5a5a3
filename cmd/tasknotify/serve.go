package main

import (
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/nao1215/tasknotify/internal/fcm"
	"github.com/nao1215/tasknotify/internal/server"
	"github.com/nao1215/tasknotify/pkg/logger"
)

func newServeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "HTTPサーバーを起動する",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			// サーバーはJSONログを標準出力に書く
			a.logger = logger.New(serviceName, a.cfg.Log.Level, a.cfg.Log.Console)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			st, err := a.openStore(ctx)
			if err != nil {
				a.logger.Error().Err(err).Msg("データベースの初期化に失敗しました")
				return err
			}
			defer st.Close()

			registry := prometheus.NewRegistry()
			registry.MustRegister(
				collectors.NewGoCollector(),
				collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
			)

			sender, err := a.newSender(registry)
			if err != nil {
				var cfgErr *fcm.ConfigError
				if errors.As(err, &cfgErr) {
					a.logger.Error().Err(err).Str("path", cfgErr.Path).Msg("Firebaseの認証情報を確認してください。fcm.enabled=falseで通知なしに起動できます")
				}
				return err
			}

			return server.New(a.cfg, st, sender, registry, a.logger).Run(ctx)
		},
	}
}

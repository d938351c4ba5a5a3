package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/nao1215/tasknotify/pkg/middleware"
)

func newTokenCmd(a *app) *cobra.Command {
	var (
		userID string
		ttl    time.Duration
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "ユーザーのAPIトークン（JWT）を発行する",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			st, err := a.openStore(ctx)
			if err != nil {
				return err
			}
			defer st.Close()

			u, err := st.GetUser(ctx, userID)
			if err != nil {
				return fmt.Errorf("ユーザー %s の取得に失敗: %w", userID, err)
			}
			token, err := middleware.GenerateJWTWithTTL(a.cfg.Auth.JWTSecret, u.ID, u.Email, ttl)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), token)
			return err
		},
	}
	cmd.Flags().StringVar(&userID, "user-id", "", "トークンを発行するユーザーのID")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "トークンの有効期間")
	_ = cmd.MarkFlagRequired("user-id")
	return cmd
}

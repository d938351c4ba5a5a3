package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/nao1215/tasknotify/internal/store"
)

func newUserCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "ユーザーを管理する",
	}
	cmd.AddCommand(newUserAddCmd(a), newUserListCmd(a))
	return cmd
}

func newUserAddCmd(a *app) *cobra.Command {
	var name, email, token string

	cmd := &cobra.Command{
		Use:   "add",
		Short: "ユーザーを追加する",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if token != "" {
				if err := store.ValidateDeviceToken(token); err != nil {
					return err
				}
			}

			ctx := cmd.Context()
			st, err := a.openStore(ctx)
			if err != nil {
				return err
			}
			defer st.Close()

			u := &store.User{Name: name, Email: email}
			if err := st.CreateUser(ctx, u); err != nil {
				return err
			}
			if token != "" {
				if err := st.RegisterToken(ctx, u.ID, token); err != nil {
					return err
				}
			}
			a.logger.Info().Str("user_id", u.ID).Msg("ユーザーを追加しました")
			_, err = fmt.Fprintln(cmd.OutOrStdout(), u.ID)
			return err
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "表示名")
	cmd.Flags().StringVar(&email, "email", "", "メールアドレス")
	cmd.Flags().StringVar(&token, "fcm-token", "", "登録するデバイストークン")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

func newUserListCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "ユーザー一覧を表示する",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			st, err := a.openStore(ctx)
			if err != nil {
				return err
			}
			defer st.Close()

			users, err := st.ListUsers(ctx)
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tNAME\tEMAIL\tPUSH")
			for _, u := range users {
				fmt.Fprintf(w, "%s\t%s\t%s\t%t\n", u.ID, u.Name, u.Email, u.HasDeviceToken())
			}
			return w.Flush()
		},
	}
}

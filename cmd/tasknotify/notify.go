package main

import (
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/nao1215/tasknotify/internal/fcm"
	"github.com/nao1215/tasknotify/internal/notification"
	"github.com/nao1215/tasknotify/pkg/event"
)

func newNotifyCmd(a *app) *cobra.Command {
	var (
		userID, token, topic, condition string
		title, body, image              string
		data                            map[string]string
	)

	cmd := &cobra.Command{
		Use:   "notify",
		Short: "プッシュ通知を1件送信する",
		Long: "ユーザー、デバイストークン、トピック、条件式のいずれか1つを宛先にプッシュ通知を送信する。\n" +
			"ユーザー宛ての通知は受信箱にも記録される。",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			st, err := a.openStore(ctx)
			if err != nil {
				return err
			}
			defer st.Close()

			sender, err := a.newSender(prometheus.NewRegistry())
			if err != nil {
				return err
			}
			svc := notification.NewService(st, sender, a.logger)

			content := notification.Content{
				EventType: event.TypeManual,
				Title:     title,
				Body:      body,
				Data:      make(map[string]any, len(data)),
			}
			for k, v := range data {
				content.Data[k] = v
			}
			if image != "" {
				content.Options = fcm.Options{ImageURL: image}
			}

			var resp *fcm.Response
			switch {
			case userID != "":
				resp, err = svc.NotifyUser(ctx, userID, content)
			case token != "":
				resp, err = svc.SendToToken(ctx, token, content)
			case topic != "":
				resp, err = svc.SendToTopic(ctx, topic, content)
			case condition != "":
				resp, err = svc.SendToCondition(ctx, condition, content)
			default:
				return errors.New("宛先（--user-id / --token / --topic / --condition）を指定してください")
			}
			if err != nil {
				var deliveryErr *fcm.DeliveryError
				if errors.As(err, &deliveryErr) && len(deliveryErr.Body) > 0 {
					fmt.Fprintln(cmd.ErrOrStderr(), string(deliveryErr.Body))
				}
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), resp.Name)
			return err
		},
	}
	cmd.Flags().StringVar(&userID, "user-id", "", "宛先のユーザーID")
	cmd.Flags().StringVar(&token, "token", "", "宛先のデバイストークン")
	cmd.Flags().StringVar(&topic, "topic", "", "宛先のトピック")
	cmd.Flags().StringVar(&condition, "condition", "", "宛先の条件式")
	cmd.Flags().StringVar(&title, "title", "", "通知のタイトル")
	cmd.Flags().StringVar(&body, "body", "", "通知の本文")
	cmd.Flags().StringVar(&image, "image", "", "通知に表示する画像のURL")
	cmd.Flags().StringToStringVar(&data, "data", nil, "dataペイロード（key=value、複数指定可）")
	cmd.MarkFlagsMutuallyExclusive("user-id", "token", "topic", "condition")
	_ = cmd.MarkFlagRequired("title")
	_ = cmd.MarkFlagRequired("body")
	return cmd
}

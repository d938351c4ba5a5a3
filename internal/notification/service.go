package notification

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/nao1215/tasknotify/internal/fcm"
	"github.com/nao1215/tasknotify/internal/store"
	"github.com/nao1215/tasknotify/pkg/event"
)

// Sender はFCMへの送信を行う。*fcm.Dispatcherが実装する。
type Sender interface {
	SendTo(ctx context.Context, target fcm.Target, title, body string, data map[string]any, opts fcm.Options) (*fcm.Response, error)
	SendToMultipleTokens(ctx context.Context, tokens []string, title, body string, data map[string]any, opts fcm.Options) []fcm.DispatchResult
}

// Content は送信する通知の内容。
type Content struct {
	// EventType は受信箱に記録する通知の発生源。
	EventType event.Type
	Title     string
	Body      string
	// Data はdataペイロード。値は送信時に文字列化される。
	Data    map[string]any
	Options fcm.Options
}

// BulkResult は複数ユーザーへの一括送信の結果。
type BulkResult struct {
	fcm.Summary
	Results []fcm.DispatchResult `json:"results"`
}

// Service はユーザー宛ての通知送信と受信箱を扱う。
type Service struct {
	// store はユーザーと受信箱の永続化層。
	store *store.Store
	// sender はFCMへの送信処理。プッシュ通知が無効な場合はnil。
	sender Sender
	// logger はサービスのロガー。
	logger zerolog.Logger
}

// NewService は新しいServiceを生成する。senderがnilの場合、送信系の操作はErrUnavailableを返す。
func NewService(st *store.Store, sender Sender, logger zerolog.Logger) *Service {
	return &Service{
		store:  st,
		sender: sender,
		logger: logger.With().Str("component", "notification").Logger(),
	}
}

// Available はプッシュ通知が利用可能かどうかを返す。
func (s *Service) Available() bool {
	return s.sender != nil
}

// RegisterToken はユーザーのデバイストークンを上書き登録する。
func (s *Service) RegisterToken(ctx context.Context, userID, token string) error {
	if err := s.store.RegisterToken(ctx, userID, token); err != nil {
		return err
	}
	s.logger.Info().Str("user_id", userID).Msg("デバイストークンを登録しました")
	return nil
}

// NotifyUser はユーザーのデバイスに通知を送信し、結果を受信箱に記録する。
// ユーザーが存在しない場合は*store.ValidationErrorを返す。
// デバイストークンが未登録の場合はstore.ErrNoDeviceTokenを返し、FCMには何も送信しない。
func (s *Service) NotifyUser(ctx context.Context, userID string, content Content) (*fcm.Response, error) {
	if !s.Available() {
		return nil, ErrUnavailable
	}

	token, err := s.store.DeviceToken(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, &store.ValidationError{Field: "user_id", Message: "指定されたユーザーは存在しません"}
	}
	if err != nil {
		return nil, err
	}

	resp, err := s.sender.SendTo(ctx, fcm.Token(token), content.Title, content.Body, content.Data, content.Options)
	s.record(ctx, userID, content, resp, err)
	if err != nil {
		s.logger.Warn().Err(err).Str("user_id", userID).Str("event_type", string(content.EventType)).Msg("通知の送信に失敗しました")
		return nil, err
	}
	return resp, nil
}

// NotifyUsers は複数ユーザーに逐次送信する。
// 存在しないユーザーが含まれる場合は*store.ValidationErrorを返す。
// デバイストークンがないユーザーは除外し、1人も残らない場合はErrNoRecipientsを返す。
func (s *Service) NotifyUsers(ctx context.Context, userIDs []string, content Content) (*BulkResult, error) {
	if !s.Available() {
		return nil, ErrUnavailable
	}

	users, err := s.store.FindUsers(ctx, userIDs)
	if err != nil {
		return nil, err
	}
	if missing := missingIDs(userIDs, users); len(missing) > 0 {
		return nil, &store.ValidationError{
			Field:   "user_ids",
			Message: fmt.Sprintf("存在しないユーザーが含まれています: %v", missing),
		}
	}

	var (
		recipients []store.User
		tokens     []string
	)
	for _, u := range users {
		if !u.HasDeviceToken() {
			continue
		}
		recipients = append(recipients, u)
		tokens = append(tokens, *u.FCMToken)
	}
	if len(tokens) == 0 {
		return nil, ErrNoRecipients
	}

	results := s.sender.SendToMultipleTokens(ctx, tokens, content.Title, content.Body, content.Data, content.Options)
	for i, r := range results {
		if i >= len(recipients) {
			break
		}
		var sendErr error
		if !r.Success {
			sendErr = errors.New(r.Error)
		}
		s.record(ctx, recipients[i].ID, content, r.Response, sendErr)
	}

	summary := fcm.Summarize(results)
	s.logger.Info().
		Int("total", summary.Total).
		Int("success", summary.SuccessCount).
		Int("failure", summary.FailureCount).
		Int("skipped", len(users)-len(recipients)).
		Msg("一括送信が完了しました")
	return &BulkResult{Summary: summary, Results: results}, nil
}

// SendToToken は任意のデバイストークンに送信する。受信箱には記録しない。
func (s *Service) SendToToken(ctx context.Context, token string, content Content) (*fcm.Response, error) {
	return s.sendTo(ctx, fcm.Token(token), content)
}

// SendToTopic はトピック購読者に送信する。
func (s *Service) SendToTopic(ctx context.Context, topic string, content Content) (*fcm.Response, error) {
	return s.sendTo(ctx, fcm.Topic(topic), content)
}

// SendToCondition はトピック条件式に一致する購読者に送信する。
func (s *Service) SendToCondition(ctx context.Context, condition string, content Content) (*fcm.Response, error) {
	return s.sendTo(ctx, fcm.Condition(condition), content)
}

func (s *Service) sendTo(ctx context.Context, target fcm.Target, content Content) (*fcm.Response, error) {
	if !s.Available() {
		return nil, ErrUnavailable
	}
	resp, err := s.sender.SendTo(ctx, target, content.Title, content.Body, content.Data, content.Options)
	if err != nil {
		s.logger.Warn().Err(err).Str("target", target.Kind()).Msg("通知の送信に失敗しました")
		return nil, err
	}
	return resp, nil
}

// record は送信結果を受信箱に記録する。記録の失敗はログに残すだけで呼び出し元には返さない。
func (s *Service) record(ctx context.Context, userID string, content Content, resp *fcm.Response, sendErr error) {
	n := &store.Notification{
		UserID:    userID,
		EventType: string(content.EventType),
		Title:     content.Title,
		Body:      content.Body,
		Status:    store.DeliverySent,
	}
	if n.EventType == "" {
		n.EventType = string(event.TypeManual)
	}
	if resp != nil {
		n.MessageName = resp.Name
	}
	if sendErr != nil {
		n.Status = store.DeliveryFailed
		n.Error = sendErr.Error()
	}
	if err := s.store.RecordNotification(ctx, n); err != nil {
		s.logger.Error().Err(err).Str("user_id", userID).Msg("通知の記録に失敗しました")
	}
}

// Inbox はユーザーの通知を新しい順に返す。
func (s *Service) Inbox(ctx context.Context, userID string) ([]store.Notification, error) {
	return s.store.ListNotifications(ctx, userID)
}

// Unread はユーザーの未読通知を新しい順に返す。
func (s *Service) Unread(ctx context.Context, userID string) ([]store.Notification, error) {
	return s.store.ListUnreadNotifications(ctx, userID)
}

// MarkAsRead は通知を既読にする。他のユーザーの通知の場合はErrForbiddenを返す。
func (s *Service) MarkAsRead(ctx context.Context, userID, notificationID string) error {
	n, err := s.store.GetNotification(ctx, notificationID)
	if err != nil {
		return err
	}
	if n.UserID != userID {
		return ErrForbidden
	}
	return s.store.MarkAsRead(ctx, notificationID)
}

// MarkAllAsRead はユーザーの全通知を既読にする。
func (s *Service) MarkAllAsRead(ctx context.Context, userID string) error {
	return s.store.MarkAllAsRead(ctx, userID)
}

// User はIDでユーザーを取得する。
func (s *Service) User(ctx context.Context, userID string) (*store.User, error) {
	return s.store.GetUser(ctx, userID)
}

// Users は全ユーザーを返す。
func (s *Service) Users(ctx context.Context) ([]store.User, error) {
	return s.store.ListUsers(ctx)
}

// missingIDs は存在しなかったIDを入力順で返す。
func missingIDs(ids []string, found []store.User) []string {
	exists := make(map[string]struct{}, len(found))
	for _, u := range found {
		exists[u.ID] = struct{}{}
	}
	var missing []string
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if _, ok := exists[id]; ok {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		missing = append(missing, id)
	}
	return missing
}

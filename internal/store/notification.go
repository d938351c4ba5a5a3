package store

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// RecordNotification は送信した通知を受信箱に記録する。IDが空の場合はUUIDを採番する。
func (s *Store) RecordNotification(ctx context.Context, n *Notification) error {
	if n.ID == "" {
		n.ID = uuid.New().String()
	}
	if err := s.db.WithContext(ctx).Create(n).Error; err != nil {
		return fmt.Errorf("通知の記録に失敗: %w", err)
	}
	return nil
}

// GetNotification はIDで通知を取得する。存在しない場合はErrNotFoundを返す。
func (s *Store) GetNotification(ctx context.Context, id string) (*Notification, error) {
	var n Notification
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&n).Error; err != nil {
		return nil, notFound(err)
	}
	return &n, nil
}

// ListNotifications はユーザーの通知を新しい順に返す。
func (s *Store) ListNotifications(ctx context.Context, userID string) ([]Notification, error) {
	var list []Notification
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&list).Error
	if err != nil {
		return nil, fmt.Errorf("通知一覧の取得に失敗: %w", err)
	}
	return list, nil
}

// ListUnreadNotifications はユーザーの未読通知を新しい順に返す。
func (s *Store) ListUnreadNotifications(ctx context.Context, userID string) ([]Notification, error) {
	var list []Notification
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND is_read = ?", userID, false).
		Order("created_at DESC").
		Find(&list).Error
	if err != nil {
		return nil, fmt.Errorf("未読通知一覧の取得に失敗: %w", err)
	}
	return list, nil
}

// MarkAsRead は通知を既読にする。
func (s *Store) MarkAsRead(ctx context.Context, id string) error {
	err := s.db.WithContext(ctx).Model(&Notification{}).Where("id = ?", id).Update("is_read", true).Error
	if err != nil {
		return fmt.Errorf("通知の既読処理に失敗: %w", err)
	}
	return nil
}

// MarkAllAsRead はユーザーの全通知を既読にする。
func (s *Store) MarkAllAsRead(ctx context.Context, userID string) error {
	err := s.db.WithContext(ctx).Model(&Notification{}).
		Where("user_id = ? AND is_read = ?", userID, false).
		Update("is_read", true).Error
	if err != nil {
		return fmt.Errorf("全通知の既読処理に失敗: %w", err)
	}
	return nil
}

package store

import (
	"context"
	"errors"
	"fmt"
	"unicode/utf8"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// CreateUser は新しいユーザーを作成する。IDが空の場合はUUIDを採番する。
func (s *Store) CreateUser(ctx context.Context, u *User) error {
	if u.Name == "" {
		return &ValidationError{Field: "name", Message: "名前は必須です"}
	}
	if u.Email == "" {
		return &ValidationError{Field: "email", Message: "メールアドレスは必須です"}
	}
	if u.ID == "" {
		u.ID = uuid.New().String()
	}
	if err := s.db.WithContext(ctx).Create(u).Error; err != nil {
		return fmt.Errorf("ユーザーの作成に失敗: %w", err)
	}
	return nil
}

// GetUser はIDでユーザーを取得する。存在しない場合はErrNotFoundを返す。
func (s *Store) GetUser(ctx context.Context, id string) (*User, error) {
	var u User
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&u).Error; err != nil {
		return nil, notFound(err)
	}
	return &u, nil
}

// GetUserByEmail はメールアドレスでユーザーを取得する。存在しない場合はErrNotFoundを返す。
func (s *Store) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	var u User
	if err := s.db.WithContext(ctx).Where("email = ?", email).First(&u).Error; err != nil {
		return nil, notFound(err)
	}
	return &u, nil
}

// ListUsers は全ユーザーを名前順に返す。
func (s *Store) ListUsers(ctx context.Context) ([]User, error) {
	var users []User
	if err := s.db.WithContext(ctx).Order("name ASC").Find(&users).Error; err != nil {
		return nil, fmt.Errorf("ユーザー一覧の取得に失敗: %w", err)
	}
	return users, nil
}

// FindUsers は指定IDのユーザーを入力順で返す。
// 重複したIDは1件にまとめ、存在しないIDは結果に含めない。
func (s *Store) FindUsers(ctx context.Context, ids []string) ([]User, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	var found []User
	if err := s.db.WithContext(ctx).Where("id IN ?", ids).Find(&found).Error; err != nil {
		return nil, fmt.Errorf("ユーザーの取得に失敗: %w", err)
	}

	byID := make(map[string]User, len(found))
	for _, u := range found {
		byID[u.ID] = u
	}

	users := make([]User, 0, len(found))
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		if u, ok := byID[id]; ok {
			users = append(users, u)
		}
	}
	return users, nil
}

// ValidateDeviceToken はデバイストークンの長さを文字数で検証する。
func ValidateDeviceToken(token string) error {
	if n := utf8.RuneCountInString(token); n < MinTokenLength || n > MaxTokenLength {
		return &ValidationError{
			Field:   "fcm_token",
			Message: fmt.Sprintf("デバイストークンは%d文字以上%d文字以下である必要があります", MinTokenLength, MaxTokenLength),
		}
	}
	return nil
}

// RegisterToken はユーザーのデバイストークンを無条件に上書きする。
// トークン長が不正な場合やユーザーが存在しない場合は*ValidationErrorを返し、何も変更しない。
func (s *Store) RegisterToken(ctx context.Context, userID, token string) error {
	if err := ValidateDeviceToken(token); err != nil {
		return err
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var u User
		if err := tx.Select("id").Where("id = ?", userID).First(&u).Error; err != nil {
			if errors.Is(notFound(err), ErrNotFound) {
				return &ValidationError{Field: "user_id", Message: "指定されたユーザーは存在しません"}
			}
			return fmt.Errorf("ユーザーの取得に失敗: %w", err)
		}

		if err := tx.Model(&User{}).Where("id = ?", userID).Update("fcm_token", token).Error; err != nil {
			return fmt.Errorf("デバイストークンの更新に失敗: %w", err)
		}
		return nil
	})
}

// DeviceToken はユーザーの現在のデバイストークンを返す。
// ユーザーが存在しない場合はErrNotFound、未登録の場合はErrNoDeviceTokenを返す。
func (s *Store) DeviceToken(ctx context.Context, userID string) (string, error) {
	u, err := s.GetUser(ctx, userID)
	if err != nil {
		return "", err
	}
	if !u.HasDeviceToken() {
		return "", ErrNoDeviceToken
	}
	return *u.FCMToken, nil
}

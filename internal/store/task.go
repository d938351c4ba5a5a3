package store

import (
	"context"
	"fmt"
)

// taskUpdateColumns はUpdateTaskで更新する列。作成者と作成日時は変更しない。
var taskUpdateColumns = []string{"title", "description", "status", "priority", "assigned_to", "due_date", "updated_at"}

// CreateTask はタスクを作成する。作成後のIDはt.IDに設定される。
func (s *Store) CreateTask(ctx context.Context, t *Task) error {
	if t.Status == "" {
		t.Status = StatusPending
	}
	if t.Priority == "" {
		t.Priority = PriorityMedium
	}
	if err := s.db.WithContext(ctx).Create(t).Error; err != nil {
		return fmt.Errorf("タスクの作成に失敗: %w", err)
	}
	return nil
}

// GetTask はIDでタスクを取得する。存在しない場合はErrNotFoundを返す。
func (s *Store) GetTask(ctx context.Context, id uint) (*Task, error) {
	var t Task
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&t).Error; err != nil {
		return nil, notFound(err)
	}
	return &t, nil
}

// ListTasks はタスクを新しい順に返す。
func (s *Store) ListTasks(ctx context.Context) ([]Task, error) {
	var tasks []Task
	if err := s.db.WithContext(ctx).Order("created_at DESC").Order("id DESC").Find(&tasks).Error; err != nil {
		return nil, fmt.Errorf("タスク一覧の取得に失敗: %w", err)
	}
	return tasks, nil
}

// UpdateTask はタスクの編集可能な列を上書きする。存在しない場合はErrNotFoundを返す。
func (s *Store) UpdateTask(ctx context.Context, t *Task) error {
	res := s.db.WithContext(ctx).Model(t).Select(taskUpdateColumns).Updates(t)
	if res.Error != nil {
		return fmt.Errorf("タスクの更新に失敗: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		// MySQLは値が変わらない更新を0件として返すため、存在を確認し直す。
		var n int64
		if err := s.db.WithContext(ctx).Model(&Task{}).Where("id = ?", t.ID).Count(&n).Error; err != nil {
			return fmt.Errorf("タスクの存在確認に失敗: %w", err)
		}
		if n == 0 {
			return ErrNotFound
		}
	}
	return nil
}

// DeleteTask はタスクを削除する。存在しない場合はErrNotFoundを返す。
func (s *Store) DeleteTask(ctx context.Context, id uint) error {
	res := s.db.WithContext(ctx).Where("id = ?", id).Delete(&Task{})
	if res.Error != nil {
		return fmt.Errorf("タスクの削除に失敗: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

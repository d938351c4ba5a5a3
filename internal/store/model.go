package store

import "time"

// デバイストークン長の許容範囲（両端を含む）。
const (
	MinTokenLength = 50
	MaxTokenLength = 200
)

// User は通知の受信者となるユーザー。デバイストークンは0個か1個。
type User struct {
	// ID はユーザーの一意識別子（UUID）。
	ID string `gorm:"column:id;primaryKey" json:"id"`
	// Name は表示名。
	Name string `gorm:"column:name" json:"name"`
	// Email はメールアドレス。
	Email string `gorm:"column:email" json:"email"`
	// FCMToken は現在のデバイストークン。未登録の場合はnil。
	FCMToken *string `gorm:"column:fcm_token" json:"-"`
	// CreatedAt は作成日時。
	CreatedAt time.Time `gorm:"column:created_at" json:"created_at"`
	// UpdatedAt は更新日時。
	UpdatedAt time.Time `gorm:"column:updated_at" json:"updated_at"`
}

// TableName はGORMのテーブル名を返す。
func (User) TableName() string { return "users" }

// HasDeviceToken はデバイストークンが登録済みかどうかを返す。
func (u User) HasDeviceToken() bool {
	return u.FCMToken != nil && *u.FCMToken != ""
}

// TaskStatus はタスクの状態。
type TaskStatus string

const (
	StatusPending    TaskStatus = "pending"
	StatusInProgress TaskStatus = "in_progress"
	StatusCompleted  TaskStatus = "completed"
	StatusCancelled  TaskStatus = "cancelled"
)

// TaskPriority はタスクの優先度。
type TaskPriority string

const (
	PriorityLow    TaskPriority = "low"
	PriorityMedium TaskPriority = "medium"
	PriorityHigh   TaskPriority = "high"
	PriorityUrgent TaskPriority = "urgent"
)

// Task はタスクのレコード。
type Task struct {
	ID          uint         `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	Title       string       `gorm:"column:title" json:"title"`
	Description string       `gorm:"column:description" json:"description"`
	Status      TaskStatus   `gorm:"column:status" json:"status"`
	Priority    TaskPriority `gorm:"column:priority" json:"priority"`
	// AssignedTo は担当ユーザーのID。未割り当ての場合はnil。
	AssignedTo *string `gorm:"column:assigned_to" json:"assigned_to"`
	// CreatedBy は作成したユーザーのID。
	CreatedBy string     `gorm:"column:created_by" json:"created_by"`
	DueDate   *time.Time `gorm:"column:due_date" json:"due_date"`
	CreatedAt time.Time  `gorm:"column:created_at" json:"created_at"`
	UpdatedAt time.Time  `gorm:"column:updated_at" json:"updated_at"`
}

// TableName はGORMのテーブル名を返す。
func (Task) TableName() string { return "tasks" }

// IsAssigned は担当者が設定されているかどうかを返す。
func (t Task) IsAssigned() bool {
	return t.AssignedTo != nil && *t.AssignedTo != ""
}

// DeliveryStatus は通知の送信結果。
type DeliveryStatus string

const (
	DeliverySent   DeliveryStatus = "sent"
	DeliveryFailed DeliveryStatus = "failed"
)

// Notification はユーザーに送信したプッシュ通知の受信箱エントリ。
type Notification struct {
	// ID は通知の一意識別子（UUID）。
	ID string `gorm:"column:id;primaryKey" json:"id"`
	// UserID は通知先のユーザーID。
	UserID string `gorm:"column:user_id" json:"user_id"`
	// EventType は通知の発生源。
	EventType string `gorm:"column:event_type" json:"event_type"`
	Title     string `gorm:"column:title" json:"title"`
	Body      string `gorm:"column:body" json:"body"`
	// Status は送信結果。
	Status DeliveryStatus `gorm:"column:status" json:"status"`
	// MessageName はFCMが返したメッセージ名。
	MessageName string `gorm:"column:message_name" json:"message_name"`
	// Error は送信失敗時のエラー内容。
	Error     string    `gorm:"column:error" json:"error"`
	IsRead    bool      `gorm:"column:is_read" json:"is_read"`
	CreatedAt time.Time `gorm:"column:created_at" json:"created_at"`
}

// TableName はGORMのテーブル名を返す。
func (Notification) TableName() string { return "notifications" }

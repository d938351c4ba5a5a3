package event

import (
	"encoding/json"
	"time"
)

// AggregateType はイベントの対象となるエンティティの種類を表す。
type AggregateType string

const (
	// AggregateTypeTask はタスクエンティティを表す。
	AggregateTypeTask AggregateType = "Task"
)

// Type はイベントの種類を表す。値はプッシュ通知のdata.typeとしてそのまま送信される。
type Type string

const (
	// TypeTaskAssigned はタスクがユーザーに割り当てられたことを表す。
	TypeTaskAssigned Type = "task_assigned"
	// TypeTaskStatusUpdate はタスクの状態が変わったことを表す。
	TypeTaskStatusUpdate Type = "task_status_update"
	// TypeManual はAPIから直接送信された通知を表す。
	TypeManual Type = "manual"
)

// Event は通知のきっかけとなったドメインイベント。
type Event struct {
	// ID はイベントの一意識別子（UUID）。
	ID string `json:"id"`
	// AggregateID は対象エンティティの識別子。
	AggregateID string `json:"aggregate_id"`
	// AggregateType は対象エンティティの種類。
	AggregateType AggregateType `json:"aggregate_type"`
	// EventType はイベントの種類。
	EventType Type `json:"event_type"`
	// Data はイベント固有のデータ（JSON形式）。
	Data json.RawMessage `json:"data"`
	// CreatedAt はイベントが作成された日時。
	CreatedAt time.Time `json:"created_at"`
}

// TaskAssignedData はTaskAssignedイベントのデータ。
type TaskAssignedData struct {
	// TaskID はタスクID（文字列化済み）。
	TaskID string `json:"task_id"`
	// TaskTitle はタスクのタイトル。
	TaskTitle string `json:"task_title"`
	// Priority はタスクの優先度。
	Priority string `json:"priority"`
	// DueDate は表示用の期限（例: "Jan 02, 2030" / "No due date"）。
	DueDate string `json:"due_date"`
}

// TaskStatusUpdateData はTaskStatusUpdateイベントのデータ。
type TaskStatusUpdateData struct {
	// TaskID はタスクID（文字列化済み）。
	TaskID string `json:"task_id"`
	// TaskTitle はタスクのタイトル。
	TaskTitle string `json:"task_title"`
	// Status は変更後の状態。
	Status string `json:"status"`
}

package task

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/rs/zerolog"

	"github.com/nao1215/tasknotify/internal/notification"
	"github.com/nao1215/tasknotify/internal/store"
	"github.com/nao1215/tasknotify/pkg/event"
)

// 通知の文面。端末に表示されるため英語のまま送る。
const (
	assignedTitle = "New Task Assigned"
	statusTitle   = "Task Status Updated"
	noDueDate     = "No due date"
	dueDateLayout = "Jan 02, 2006"
)

// Outcome は通知処理の結果。
type Outcome struct {
	// Sent は1件以上の通知を送信できた場合に真。
	Sent bool
	// Message はレスポンスに含める説明。
	Message string
}

// Notifier はタスクの変化に応じて担当者へ通知を送る。
type Notifier struct {
	// svc は通知サービス。
	svc *notification.Service
	// logger は通知処理のロガー。
	logger zerolog.Logger
}

// NewNotifier は新しいNotifierを生成する。
func NewNotifier(svc *notification.Service, logger zerolog.Logger) *Notifier {
	return &Notifier{svc: svc, logger: logger.With().Str("component", "task_notifier").Logger()}
}

// TaskCreated は作成されたタスクに担当者がいれば割り当て通知を送る。
func (n *Notifier) TaskCreated(ctx context.Context, t *store.Task) Outcome {
	if !t.IsAssigned() {
		return Outcome{Message: "タスクを作成しました"}
	}

	content, err := AssignmentContent(t)
	if err != nil {
		n.logger.Error().Err(err).Uint("task_id", t.ID).Msg("割り当て通知の組み立てに失敗しました")
		return Outcome{Message: "タスクを作成しましたが、通知を送信できませんでした"}
	}

	r := n.deliver(ctx, t, content)
	switch r.state {
	case stateSent:
		return Outcome{Sent: true, Message: fmt.Sprintf("タスクを作成し、%sさんに通知を送信しました", r.name)}
	case stateNoToken:
		return Outcome{Message: fmt.Sprintf("タスクを作成しました。%sさんはまだ通知を有効にしていません", r.name)}
	case stateUnavailable:
		return Outcome{Message: "タスクを作成しました（プッシュ通知は利用できません）"}
	default:
		return Outcome{Message: "タスクを作成しましたが、通知を送信できませんでした"}
	}
}

// TaskUpdated は更新前後のタスクを比べて通知を送る。
// 担当者が新たに設定・変更された場合は割り当て通知、完了状態に遷移した場合は状態変更通知を送る。
func (n *Notifier) TaskUpdated(ctx context.Context, before, after *store.Task) Outcome {
	out := Outcome{Message: "タスクを更新しました"}
	if !after.IsAssigned() {
		return out
	}

	var assignedResult, completedResult *delivery
	if assigneeChanged(before, after) {
		content, err := AssignmentContent(after)
		if err != nil {
			n.logger.Error().Err(err).Uint("task_id", after.ID).Msg("割り当て通知の組み立てに失敗しました")
			assignedResult = &delivery{state: stateFailed}
		} else {
			r := n.deliver(ctx, after, content)
			assignedResult = &r
		}
	}
	if after.Status == store.StatusCompleted && before.Status != store.StatusCompleted {
		content, err := StatusContent(after, store.StatusCompleted)
		if err != nil {
			n.logger.Error().Err(err).Uint("task_id", after.ID).Msg("状態変更通知の組み立てに失敗しました")
			completedResult = &delivery{state: stateFailed}
		} else {
			r := n.deliver(ctx, after, content)
			completedResult = &r
		}
	}

	switch {
	case assignedResult != nil && completedResult != nil:
		if assignedResult.state == stateSent && completedResult.state == stateSent {
			return Outcome{Sent: true, Message: fmt.Sprintf("タスクを更新し、%sさんに割り当てと完了の通知を送信しました", assignedResult.name)}
		}
		if assignedResult.state == stateSent || completedResult.state == stateSent {
			return Outcome{Sent: true, Message: "タスクを更新しましたが、一部の通知を送信できませんでした"}
		}
		return Outcome{Message: updatedMessage(*assignedResult)}
	case assignedResult != nil:
		if assignedResult.state == stateSent {
			return Outcome{Sent: true, Message: fmt.Sprintf("タスクを更新し、%sさんに通知を送信しました", assignedResult.name)}
		}
		return Outcome{Message: updatedMessage(*assignedResult)}
	case completedResult != nil:
		if completedResult.state == stateSent {
			return Outcome{Sent: true, Message: fmt.Sprintf("タスクを完了にし、%sさんに通知を送信しました", completedResult.name)}
		}
		return Outcome{Message: updatedMessage(*completedResult)}
	default:
		return out
	}
}

func updatedMessage(r delivery) string {
	switch r.state {
	case stateNoToken:
		return fmt.Sprintf("タスクを更新しました。%sさんはまだ通知を有効にしていません", r.name)
	case stateUnavailable:
		return "タスクを更新しました（プッシュ通知は利用できません）"
	default:
		return "タスクを更新しましたが、通知を送信できませんでした"
	}
}

// assigneeChanged は担当者が新たに設定されたか変更されたかを返す。
func assigneeChanged(before, after *store.Task) bool {
	if !after.IsAssigned() {
		return false
	}
	return !before.IsAssigned() || *before.AssignedTo != *after.AssignedTo
}

type deliveryState int

const (
	stateSent deliveryState = iota
	stateNoToken
	stateUnavailable
	stateFailed
)

// delivery は1件の通知の送信結果。
type delivery struct {
	state deliveryState
	// name は担当者の表示名。
	name string
}

// deliver は担当者に通知を送る。失敗してもエラーは返さずログに残す。
func (n *Notifier) deliver(ctx context.Context, t *store.Task, content notification.Content) delivery {
	userID := *t.AssignedTo
	logger := n.logger.With().Uint("task_id", t.ID).Str("user_id", userID).Str("event_type", string(content.EventType)).Logger()

	name := userID
	if u, err := n.svc.User(ctx, userID); err == nil {
		name = u.Name
	}

	_, err := n.svc.NotifyUser(ctx, userID, content)
	switch {
	case err == nil:
		logger.Info().Msg("タスクの通知を送信しました")
		return delivery{state: stateSent, name: name}
	case errors.Is(err, store.ErrNoDeviceToken):
		logger.Info().Msg("担当者のデバイストークンが未登録のため通知をスキップしました")
		return delivery{state: stateNoToken, name: name}
	case errors.Is(err, notification.ErrUnavailable):
		logger.Warn().Msg("プッシュ通知が無効のため通知をスキップしました")
		return delivery{state: stateUnavailable, name: name}
	default:
		logger.Error().Err(err).Msg("タスクの通知に失敗しました")
		return delivery{state: stateFailed, name: name}
	}
}

// AssignmentContent は割り当て通知の内容を組み立てる。
func AssignmentContent(t *store.Task) (notification.Content, error) {
	due := noDueDate
	if t.DueDate != nil {
		due = t.DueDate.Format(dueDateLayout)
	}

	ev, err := event.New(taskID(t), event.AggregateTypeTask, event.TypeTaskAssigned, event.TaskAssignedData{
		TaskID:    taskID(t),
		TaskTitle: t.Title,
		Priority:  string(t.Priority),
		DueDate:   due,
	})
	if err != nil {
		return notification.Content{}, err
	}
	return contentFromEvent(ev, assignedTitle, "You have been assigned a new task: "+t.Title)
}

// StatusContent は状態変更通知の内容を組み立てる。
func StatusContent(t *store.Task, status store.TaskStatus) (notification.Content, error) {
	ev, err := event.New(taskID(t), event.AggregateTypeTask, event.TypeTaskStatusUpdate, event.TaskStatusUpdateData{
		TaskID:    taskID(t),
		TaskTitle: t.Title,
		Status:    string(status),
	})
	if err != nil {
		return notification.Content{}, err
	}
	return contentFromEvent(ev, statusTitle, statusBody(status, t.Title))
}

// statusBody は状態ごとの本文を返す。
func statusBody(status store.TaskStatus, title string) string {
	switch status {
	case store.StatusCompleted:
		return "Task completed: " + title
	case store.StatusCancelled:
		return "Task cancelled: " + title
	default:
		return "Task status updated: " + title
	}
}

func contentFromEvent(ev *event.Event, title, body string) (notification.Content, error) {
	data, err := ev.PushData()
	if err != nil {
		return notification.Content{}, err
	}
	return notification.Content{EventType: ev.EventType, Title: title, Body: body, Data: data}, nil
}

func taskID(t *store.Task) string {
	return strconv.FormatUint(uint64(t.ID), 10)
}

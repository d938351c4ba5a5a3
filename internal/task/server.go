package task

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/nao1215/tasknotify/internal/notification"
	"github.com/nao1215/tasknotify/internal/store"
	"github.com/nao1215/tasknotify/pkg/middleware"
)

// dateLayout は期限日の入力形式。
const dateLayout = "2006-01-02"

// Handler はタスクのHTTPハンドラ。
type Handler struct {
	// store はタスクの永続化層。
	store *store.Store
	// notifier はタスクの変化に応じた通知を送る。
	notifier *Notifier
	// now は現在時刻を返す。期限日の検証に使う。
	now func() time.Time
}

// NewHandler は新しいHandlerを生成する。
func NewHandler(st *store.Store, notifier *Notifier) *Handler {
	return &Handler{store: st, notifier: notifier, now: time.Now}
}

// Register はルートを登録する。
func (h *Handler) Register(rg *gin.RouterGroup) {
	tasks := rg.Group("/tasks")
	{
		tasks.GET("", h.handleList())
		tasks.POST("", h.handleCreate())
		tasks.GET("/:id", h.handleGet())
		tasks.PUT("/:id", h.handleUpdate())
		tasks.DELETE("/:id", h.handleDelete())
	}
}

// createTaskRequest はタスク作成リクエスト。
type createTaskRequest struct {
	Title       string  `json:"title" binding:"required,max=255"`
	Description string  `json:"description"`
	Priority    string  `json:"priority" binding:"required,oneof=low medium high urgent"`
	AssignedTo  *string `json:"assigned_to"`
	DueDate     string  `json:"due_date"`
	Status      string  `json:"status" binding:"omitempty,oneof=pending in_progress completed cancelled"`
}

// updateTaskRequest はタスク更新リクエスト。
type updateTaskRequest struct {
	Title       string  `json:"title" binding:"required,max=255"`
	Description string  `json:"description"`
	Status      string  `json:"status" binding:"required,oneof=pending in_progress completed cancelled"`
	Priority    string  `json:"priority" binding:"required,oneof=low medium high urgent"`
	AssignedTo  *string `json:"assigned_to"`
	DueDate     string  `json:"due_date"`
}

// handleList はタスク一覧を新しい順に返すハンドラ。
func (h *Handler) handleList() gin.HandlerFunc {
	return func(c *gin.Context) {
		tasks, err := h.store.ListTasks(c.Request.Context())
		if err != nil {
			notification.RespondError(c, err)
			return
		}
		notification.OK(c, http.StatusOK, "タスク一覧を取得しました", gin.H{"tasks": tasks})
	}
}

// handleCreate はタスクを作成し、担当者がいれば通知するハンドラ。
func (h *Handler) handleCreate() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req createTaskRequest
		if !notification.BindJSON(c, &req) {
			return
		}
		ctx := c.Request.Context()

		due, err := parseDueDate(req.DueDate)
		if err != nil {
			notification.RespondError(c, err)
			return
		}
		if due != nil && due.Before(today(h.now())) {
			notification.RespondError(c, &store.ValidationError{Field: "due_date", Message: "期限日は今日以降を指定してください"})
			return
		}
		assignee, err := h.resolveAssignee(ctx, req.AssignedTo)
		if err != nil {
			notification.RespondError(c, err)
			return
		}

		t := &store.Task{
			Title:       req.Title,
			Description: req.Description,
			Status:      store.TaskStatus(req.Status),
			Priority:    store.TaskPriority(req.Priority),
			AssignedTo:  assignee,
			CreatedBy:   middleware.GetUserID(c),
			DueDate:     due,
		}
		if err := h.store.CreateTask(ctx, t); err != nil {
			notification.RespondError(c, err)
			return
		}

		outcome := h.notifier.TaskCreated(ctx, t)
		notification.OK(c, http.StatusCreated, outcome.Message, gin.H{
			"task":              t,
			"notification_sent": outcome.Sent,
		})
	}
}

// handleGet はタスクを1件返すハンドラ。
func (h *Handler) handleGet() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := taskIDParam(c)
		if !ok {
			return
		}
		t, err := h.store.GetTask(c.Request.Context(), id)
		if err != nil {
			notification.RespondError(c, err)
			return
		}
		notification.OK(c, http.StatusOK, "タスクを取得しました", gin.H{"task": t})
	}
}

// handleUpdate はタスクを更新し、担当者の変更や完了を通知するハンドラ。
func (h *Handler) handleUpdate() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := taskIDParam(c)
		if !ok {
			return
		}
		var req updateTaskRequest
		if !notification.BindJSON(c, &req) {
			return
		}
		ctx := c.Request.Context()

		before, err := h.store.GetTask(ctx, id)
		if err != nil {
			notification.RespondError(c, err)
			return
		}
		due, err := parseDueDate(req.DueDate)
		if err != nil {
			notification.RespondError(c, err)
			return
		}
		assignee, err := h.resolveAssignee(ctx, req.AssignedTo)
		if err != nil {
			notification.RespondError(c, err)
			return
		}

		after := *before
		after.Title = req.Title
		after.Description = req.Description
		after.Status = store.TaskStatus(req.Status)
		after.Priority = store.TaskPriority(req.Priority)
		after.AssignedTo = assignee
		after.DueDate = due
		if err := h.store.UpdateTask(ctx, &after); err != nil {
			notification.RespondError(c, err)
			return
		}

		outcome := h.notifier.TaskUpdated(ctx, before, &after)
		notification.OK(c, http.StatusOK, outcome.Message, gin.H{
			"task":              &after,
			"notification_sent": outcome.Sent,
		})
	}
}

// handleDelete はタスクを削除するハンドラ。
func (h *Handler) handleDelete() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := taskIDParam(c)
		if !ok {
			return
		}
		if err := h.store.DeleteTask(c.Request.Context(), id); err != nil {
			notification.RespondError(c, err)
			return
		}
		notification.OK(c, http.StatusOK, "タスクを削除しました", nil)
	}
}

// resolveAssignee は担当者IDが既存ユーザーであることを確認する。空の場合はnilを返す。
func (h *Handler) resolveAssignee(ctx context.Context, assignedTo *string) (*string, error) {
	if assignedTo == nil || *assignedTo == "" {
		return nil, nil
	}
	if _, err := h.store.GetUser(ctx, *assignedTo); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, &store.ValidationError{Field: "assigned_to", Message: "指定されたユーザーは存在しません"}
		}
		return nil, err
	}
	id := *assignedTo
	return &id, nil
}

// parseDueDate はYYYY-MM-DD形式の期限日を解析する。空の場合はnilを返す。
func parseDueDate(raw string) (*time.Time, error) {
	if raw == "" {
		return nil, nil
	}
	d, err := time.Parse(dateLayout, raw)
	if err != nil {
		return nil, &store.ValidationError{Field: "due_date", Message: "期限日はYYYY-MM-DD形式で入力してください"}
	}
	return &d, nil
}

// today はtの日付の0時（UTC）を返す。
func today(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// taskIDParam はパスパラメータのタスクIDを読む。不正な場合は404を返してfalseを返す。
func taskIDParam(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		notification.Fail(c, http.StatusNotFound, "タスクが見つかりません", nil)
		return 0, false
	}
	return uint(id), true
}

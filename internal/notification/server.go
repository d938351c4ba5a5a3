package notification

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/nao1215/tasknotify/internal/fcm"
	"github.com/nao1215/tasknotify/internal/store"
	"github.com/nao1215/tasknotify/pkg/event"
	"github.com/nao1215/tasknotify/pkg/middleware"
)

// Handler はプッシュ通知と受信箱のHTTPハンドラ。
type Handler struct {
	// svc は通知サービス。
	svc *Service
}

// NewHandler は新しいHandlerを生成する。
func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// Register はルートを登録する。limitは送信系のルートにだけ適用される。
func (h *Handler) Register(rg *gin.RouterGroup, limit gin.HandlerFunc) {
	push := rg.Group("/fcm")
	{
		// デバイストークンの登録
		push.PUT("/update-device-token", h.handleUpdateDeviceToken())

		send := push.Group("")
		if limit != nil {
			send.Use(limit)
		}
		send.POST("/send-notification", h.handleSendNotification())
		send.POST("/send-to-token", h.handleSendToToken())
		send.POST("/send-bulk", h.handleSendBulk())
		send.POST("/send-to-topic", h.handleSendToTopic())
		send.POST("/send-to-condition", h.handleSendToCondition())
	}

	notifications := rg.Group("/notifications")
	{
		notifications.GET("", h.handleList())
		notifications.GET("/unread", h.handleListUnread())
		notifications.PUT("/:id/read", h.handleMarkAsRead())
		notifications.PUT("/read-all", h.handleMarkAllAsRead())
	}

	rg.GET("/users", h.handleListUsers())
}

// messageFields は送信系リクエストに共通の項目。
type messageFields struct {
	Title string         `json:"title" binding:"required,max=255"`
	Body  string         `json:"body" binding:"required,max=500"`
	Data  map[string]any `json:"data"`
}

func (m messageFields) content(opts fcm.Options) Content {
	return Content{EventType: event.TypeManual, Title: m.Title, Body: m.Body, Data: m.Data, Options: opts}
}

// updateDeviceTokenRequest はデバイストークン登録リクエスト。
// トークン長は永続化層で検証する。
type updateDeviceTokenRequest struct {
	UserID   string `json:"user_id" binding:"required"`
	FCMToken string `json:"fcm_token" binding:"required"`
}

// handleUpdateDeviceToken はユーザーのデバイストークンを上書き登録するハンドラ。
func (h *Handler) handleUpdateDeviceToken() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req updateDeviceTokenRequest
		if !BindJSON(c, &req) {
			return
		}

		if err := h.svc.RegisterToken(c.Request.Context(), req.UserID, req.FCMToken); err != nil {
			RespondError(c, err)
			return
		}
		OK(c, http.StatusOK, "デバイストークンを更新しました", gin.H{"user_id": req.UserID})
	}
}

// sendNotificationRequest はユーザー宛ての送信リクエスト。
type sendNotificationRequest struct {
	UserID string `json:"user_id" binding:"required"`
	messageFields
	Image string `json:"image" binding:"omitempty,url"`
}

// handleSendNotification は登録済みのデバイストークンを使ってユーザーに送信するハンドラ。
func (h *Handler) handleSendNotification() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req sendNotificationRequest
		if !BindJSON(c, &req) {
			return
		}

		resp, err := h.svc.NotifyUser(c.Request.Context(), req.UserID, req.content(imageOptions(req.Image)))
		if err != nil {
			RespondError(c, err)
			return
		}
		OK(c, http.StatusOK, "通知を送信しました", gin.H{"response": resp, "user_id": req.UserID})
	}
}

// imageOptions は画像付き通知のオプションを返す。プラットフォームごとの設定はfcm.BuildMessageが行う。
func imageOptions(image string) fcm.Options {
	if image == "" {
		return fcm.Options{}
	}
	return fcm.Options{
		ImageURL: image,
		Webpush:  map[string]any{"headers": map[string]any{"Urgency": "high"}},
		Android:  map[string]any{"priority": "high"},
		APNS:     map[string]any{"headers": map[string]any{"apns-priority": "10"}},
	}
}

// sendToTokenRequest は任意のトークン宛ての送信リクエスト。
// トークン長は登録時と同じ規則で検証する。
type sendToTokenRequest struct {
	Token string `json:"token" binding:"required"`
	messageFields
}

// handleSendToToken は指定されたデバイストークンに直接送信するハンドラ。
func (h *Handler) handleSendToToken() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req sendToTokenRequest
		if !BindJSON(c, &req) {
			return
		}

		var verr *store.ValidationError
		if err := store.ValidateDeviceToken(req.Token); errors.As(err, &verr) {
			RespondError(c, &store.ValidationError{Field: "token", Message: verr.Message})
			return
		}

		resp, err := h.svc.SendToToken(c.Request.Context(), req.Token, req.content(fcm.Options{}))
		if err != nil {
			RespondError(c, err)
			return
		}
		OK(c, http.StatusOK, "通知を送信しました", gin.H{"response": resp})
	}
}

// sendBulkRequest は複数ユーザー宛ての送信リクエスト。
type sendBulkRequest struct {
	UserIDs []string `json:"user_ids" binding:"required,min=1,dive,required"`
	messageFields
}

// handleSendBulk は複数ユーザーに逐次送信し、集計を返すハンドラ。
func (h *Handler) handleSendBulk() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req sendBulkRequest
		if !BindJSON(c, &req) {
			return
		}

		result, err := h.svc.NotifyUsers(c.Request.Context(), req.UserIDs, req.content(fcm.Options{}))
		if err != nil {
			RespondError(c, err)
			return
		}
		OK(c, http.StatusOK, "一括送信が完了しました", gin.H{
			"total":         result.Total,
			"success_count": result.SuccessCount,
			"failure_count": result.FailureCount,
			"results":       result.Results,
		})
	}
}

// sendToTopicRequest はトピック宛ての送信リクエスト。
type sendToTopicRequest struct {
	Topic string `json:"topic" binding:"required,max=100"`
	messageFields
}

// handleSendToTopic はトピック購読者に送信するハンドラ。
func (h *Handler) handleSendToTopic() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req sendToTopicRequest
		if !BindJSON(c, &req) {
			return
		}

		resp, err := h.svc.SendToTopic(c.Request.Context(), req.Topic, req.content(fcm.Options{}))
		if err != nil {
			RespondError(c, err)
			return
		}
		OK(c, http.StatusOK, "トピックに送信しました", gin.H{"topic": req.Topic, "response": resp})
	}
}

// sendToConditionRequest は条件式宛ての送信リクエスト。
type sendToConditionRequest struct {
	Condition string `json:"condition" binding:"required,max=1000"`
	messageFields
}

// handleSendToCondition はトピック条件式に一致する購読者に送信するハンドラ。
func (h *Handler) handleSendToCondition() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req sendToConditionRequest
		if !BindJSON(c, &req) {
			return
		}

		resp, err := h.svc.SendToCondition(c.Request.Context(), req.Condition, req.content(fcm.Options{}))
		if err != nil {
			RespondError(c, err)
			return
		}
		OK(c, http.StatusOK, "条件式に送信しました", gin.H{"condition": req.Condition, "response": resp})
	}
}

// currentUser は認証済みユーザーのIDを返す。取得できない場合は401を返してfalseを返す。
func currentUser(c *gin.Context) (string, bool) {
	userID := middleware.GetUserID(c)
	if userID == "" {
		Fail(c, http.StatusUnauthorized, "ユーザーIDが取得できません", nil)
		return "", false
	}
	return userID, true
}

// handleList は認証済みユーザーの通知一覧を返すハンドラ。
func (h *Handler) handleList() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := currentUser(c)
		if !ok {
			return
		}

		list, err := h.svc.Inbox(c.Request.Context(), userID)
		if err != nil {
			RespondError(c, err)
			return
		}
		OK(c, http.StatusOK, "通知一覧を取得しました", gin.H{"notifications": list})
	}
}

// handleListUnread は認証済みユーザーの未読通知一覧を返すハンドラ。
func (h *Handler) handleListUnread() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := currentUser(c)
		if !ok {
			return
		}

		list, err := h.svc.Unread(c.Request.Context(), userID)
		if err != nil {
			RespondError(c, err)
			return
		}
		OK(c, http.StatusOK, "未読通知一覧を取得しました", gin.H{"notifications": list})
	}
}

// handleMarkAsRead は指定された通知を既読にするハンドラ。
func (h *Handler) handleMarkAsRead() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := currentUser(c)
		if !ok {
			return
		}

		if err := h.svc.MarkAsRead(c.Request.Context(), userID, c.Param("id")); err != nil {
			RespondError(c, err)
			return
		}
		OK(c, http.StatusOK, "通知を既読にしました", nil)
	}
}

// handleMarkAllAsRead は認証済みユーザーの全通知を既読にするハンドラ。
func (h *Handler) handleMarkAllAsRead() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := currentUser(c)
		if !ok {
			return
		}

		if err := h.svc.MarkAllAsRead(c.Request.Context(), userID); err != nil {
			RespondError(c, err)
			return
		}
		OK(c, http.StatusOK, "全通知を既読にしました", nil)
	}
}

// userResponse はユーザー一覧の要素。
type userResponse struct {
	ID               string `json:"id"`
	Name             string `json:"name"`
	Email            string `json:"email"`
	HasNotifications bool   `json:"has_notifications"`
}

// handleListUsers はユーザー一覧をデバイストークンの登録有無付きで返すハンドラ。
func (h *Handler) handleListUsers() gin.HandlerFunc {
	return func(c *gin.Context) {
		users, err := h.svc.Users(c.Request.Context())
		if err != nil {
			RespondError(c, err)
			return
		}

		resp := make([]userResponse, 0, len(users))
		for _, u := range users {
			resp = append(resp, userResponse{ID: u.ID, Name: u.Name, Email: u.Email, HasNotifications: u.HasDeviceToken()})
		}
		OK(c, http.StatusOK, "ユーザー一覧を取得しました", gin.H{"users": resp})
	}
}

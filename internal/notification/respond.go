package notification

import (
	"errors"
	"net/http"
	"reflect"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"github.com/nao1215/tasknotify/internal/fcm"
	"github.com/nao1215/tasknotify/internal/store"
)

var (
	// ErrUnavailable はプッシュ通知が無効な場合のエラー。
	ErrUnavailable = errors.New("プッシュ通知は利用できません")
	// ErrNoRecipients は一括送信の宛先にデバイストークンを持つユーザーがいない場合のエラー。
	ErrNoRecipients = errors.New("デバイストークンが登録されたユーザーが見つかりません")
	// ErrForbidden は他のユーザーの通知を操作しようとした場合のエラー。
	ErrForbidden = errors.New("この通知を操作する権限がありません")
)

var registerTagNameOnce sync.Once

// useJSONFieldNames は検証エラーのフィールド名をJSONのキー名にする。
func useJSONFieldNames() {
	registerTagNameOnce.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			return
		}
		v.RegisterTagNameFunc(func(f reflect.StructField) string {
			name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
			if name == "-" {
				return ""
			}
			if name == "" {
				return f.Name
			}
			return name
		})
	})
}

// OK は成功レスポンスを返す。fieldsの内容はenvelopeに展開される。
func OK(c *gin.Context, status int, message string, fields gin.H) {
	body := gin.H{"success": true, "message": message}
	for k, v := range fields {
		body[k] = v
	}
	c.JSON(status, body)
}

// Fail は失敗レスポンスを返す。
func Fail(c *gin.Context, status int, message string, fields gin.H) {
	body := gin.H{"success": false, "message": message}
	for k, v := range fields {
		body[k] = v
	}
	c.AbortWithStatusJSON(status, body)
}

// BindJSON はリクエストボディを検証付きで読み込む。失敗した場合は422を返してfalseを返す。
func BindJSON(c *gin.Context, req any) bool {
	useJSONFieldNames()
	if err := c.ShouldBindJSON(req); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := make(map[string]string, len(verrs))
			for _, fe := range verrs {
				fields[fe.Field()] = describe(fe)
			}
			Fail(c, http.StatusUnprocessableEntity, "入力値が不正です", gin.H{"errors": fields})
			return false
		}
		Fail(c, http.StatusUnprocessableEntity, "リクエストボディが不正です", gin.H{
			"errors": map[string]string{"body": err.Error()},
		})
		return false
	}
	return true
}

// describe は検証エラーを人が読める文にする。
func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "必須です"
	case "max":
		return fe.Param() + "文字以下で入力してください"
	case "min":
		if fe.Kind() == reflect.Slice {
			return fe.Param() + "件以上指定してください"
		}
		return fe.Param() + "文字以上で入力してください"
	case "oneof":
		return "次のいずれかを指定してください: " + fe.Param()
	case "url":
		return "URLの形式で入力してください"
	default:
		return "値が不正です (" + fe.Tag() + ")"
	}
}

// RespondError はエラーの種類に応じたステータスコードで失敗レスポンスを返す。
func RespondError(c *gin.Context, err error) {
	var (
		validationErr *store.ValidationError
		authErr       *fcm.AuthError
		deliveryErr   *fcm.DeliveryError
	)
	switch {
	case errors.As(err, &validationErr):
		Fail(c, http.StatusUnprocessableEntity, "入力値が不正です", gin.H{
			"errors": map[string]string{validationErr.Field: validationErr.Message},
		})
	case errors.Is(err, store.ErrNotFound):
		Fail(c, http.StatusNotFound, "対象が見つかりません", nil)
	case errors.Is(err, store.ErrNoDeviceToken):
		Fail(c, http.StatusBadRequest, "ユーザーのデバイストークンが登録されていません", nil)
	case errors.Is(err, ErrNoRecipients):
		Fail(c, http.StatusBadRequest, ErrNoRecipients.Error(), nil)
	case errors.Is(err, ErrForbidden):
		Fail(c, http.StatusForbidden, ErrForbidden.Error(), nil)
	case errors.Is(err, ErrUnavailable):
		Fail(c, http.StatusServiceUnavailable, ErrUnavailable.Error(), nil)
	case errors.As(err, &authErr):
		Fail(c, http.StatusInternalServerError, "通知の送信に失敗しました: "+authErr.Error(), gin.H{
			"category": authErr.Category,
		})
	case errors.As(err, &deliveryErr):
		Fail(c, http.StatusInternalServerError, "通知の送信に失敗しました: "+deliveryErr.Error(), gin.H{
			"error": deliveryErr.VendorError(),
		})
	default:
		_ = c.Error(err)
		Fail(c, http.StatusInternalServerError, "内部サーバーエラーが発生しました", nil)
	}
}

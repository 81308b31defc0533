package rest

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/JoeShih716/go-bank-api/internal/app/bank/domain"
)

// errorBody 失敗時的回應格式
type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// statusFor ResultKind 轉 HTTP status，整個 API 只有這裡做這個對應
func statusFor(kind domain.ResultKind) int {
	switch kind {
	case domain.KindNotFound:
		return http.StatusNotFound
	case domain.KindInvalidData:
		return http.StatusBadRequest
	case domain.KindDataStoreError, domain.KindDuplicate:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func writeError(c *gin.Context, err error) {
	kind := domain.KindOf(err)
	if kind == domain.KindUnknown || kind == domain.KindDataStoreError {
		_ = c.Error(err)
	}
	c.AbortWithStatusJSON(statusFor(kind), errorBody{
		Error:   kind.String(),
		Message: domain.PublicMessage(err),
	})
}

// writeBindError 請求內容缺少或格式錯誤
func writeBindError(c *gin.Context, err error) {
	c.AbortWithStatusJSON(http.StatusBadRequest, errorBody{
		Error:   domain.KindInvalidData.String(),
		Message: "invalid request body: " + err.Error(),
	})
}

// respond 成功回 200 + 結果，失敗依 ResultKind 回應
func respond[T any](c *gin.Context, value T, err error) {
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, value)
}

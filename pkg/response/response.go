package response

import (
	"errors"
	"net/http"

	"monetcore/internal/apperr"

	"github.com/gin-gonic/gin"
)

const (
	CodeSuccess       = 0
	CodeParamError    = 400
	CodeUnauthorized  = 401
	CodeForbidden     = 403
	CodeNotFound      = 404
	CodeTooMany       = 429
	CodeServerError   = 500
	CodeBusinessError = 1000
)

// 业务错误码
const (
	CodeInvalidSignature           = 1001
	CodeMisconfiguredProvider      = 1002
	CodeInvalidStateTransition     = 1003
	CodeInsufficientBalance        = 1004
	CodeInvalidAmount              = 1005
	CodeCodeNotFound               = 1101
	CodeCodeInactive               = 1102
	CodeCodeExpired                = 1103
	CodeCodeExhausted              = 1104
	CodeAlreadyRedeemed            = 1105
	CodeBelowMinimumPayout         = 1201
	CodeInsufficientPendingBalance = 1202
)

var kindCodes = map[apperr.Kind]int{
	apperr.KindInvalidSignature:           CodeInvalidSignature,
	apperr.KindMisconfiguredProvider:      CodeMisconfiguredProvider,
	apperr.KindInvalidStateTransition:     CodeInvalidStateTransition,
	apperr.KindInsufficientBalance:        CodeInsufficientBalance,
	apperr.KindInvalidAmount:              CodeInvalidAmount,
	apperr.KindCodeNotFound:               CodeCodeNotFound,
	apperr.KindCodeInactive:               CodeCodeInactive,
	apperr.KindCodeExpired:                CodeCodeExpired,
	apperr.KindCodeExhausted:              CodeCodeExhausted,
	apperr.KindAlreadyRedeemed:            CodeAlreadyRedeemed,
	apperr.KindBelowMinimumPayout:         CodeBelowMinimumPayout,
	apperr.KindInsufficientPendingBalance: CodeInsufficientPendingBalance,
	apperr.KindNotFound:                   CodeNotFound,
	apperr.KindInvalidArgument:            CodeParamError,
	apperr.KindRateLimited:                CodeTooMany,
}

type Response struct {
	Code    int         `json:"code"`
	Kind    string      `json:"kind,omitempty"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func Success(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Response{
		Code:    CodeSuccess,
		Message: "success",
		Data:    data,
	})
}

func Error(c *gin.Context, code int, message string) {
	c.JSON(http.StatusOK, Response{
		Code:    code,
		Message: message,
	})
}

func ParamError(c *gin.Context, message string) {
	Error(c, CodeParamError, message)
}

func ServerError(c *gin.Context, message string) {
	Error(c, CodeServerError, message)
}

func Unauthorized(c *gin.Context, message string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, Response{Code: CodeUnauthorized, Message: message})
}

// FromError 按错误类型返回业务码；基础设施错误不暴露内部细节
func FromError(c *gin.Context, err error) {
	kind := apperr.KindOf(err)
	code, ok := kindCodes[kind]
	if !ok {
		c.JSON(http.StatusOK, Response{
			Code:    CodeServerError,
			Kind:    string(apperr.KindInfrastructure),
			Message: "系统繁忙，请稍后重试",
		})
		return
	}

	message := err.Error()
	var e *apperr.Error
	if errors.As(err, &e) {
		message = e.Message
	}
	c.JSON(http.StatusOK, Response{
		Code:    code,
		Kind:    string(kind),
		Message: message,
	})
}

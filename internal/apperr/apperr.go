package apperr

import (
	"errors"
	"fmt"
)

// Kind 错误类型，调用方据此决定是否重试以及如何响应
type Kind string

const (
	KindInvalidSignature           Kind = "INVALID_SIGNATURE"
	KindMisconfiguredProvider      Kind = "MISCONFIGURED_PROVIDER"
	KindInvalidStateTransition     Kind = "INVALID_STATE_TRANSITION"
	KindInsufficientBalance        Kind = "INSUFFICIENT_BALANCE"
	KindInvalidAmount              Kind = "INVALID_AMOUNT"
	KindCodeNotFound               Kind = "CODE_NOT_FOUND"
	KindCodeInactive               Kind = "CODE_INACTIVE"
	KindCodeExpired                Kind = "CODE_EXPIRED"
	KindCodeExhausted              Kind = "CODE_EXHAUSTED"
	KindAlreadyRedeemed            Kind = "ALREADY_REDEEMED"
	KindBelowMinimumPayout         Kind = "BELOW_MINIMUM_PAYOUT"
	KindInsufficientPendingBalance Kind = "INSUFFICIENT_PENDING_BALANCE"
	KindInfrastructure             Kind = "INFRASTRUCTURE_ERROR"
	KindNotFound                   Kind = "NOT_FOUND"
	KindInvalidArgument            Kind = "INVALID_ARGUMENT"
	KindRateLimited                Kind = "RATE_LIMITED"
)

// Error 带类型的业务错误
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is 同 Kind 的错误视为相等，便于 errors.Is(err, apperr.ErrCodeExhausted)
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return t.Kind == e.Kind
	}
	return false
}

var (
	ErrInvalidSignature           = &Error{Kind: KindInvalidSignature, Message: "签名校验失败"}
	ErrMisconfiguredProvider      = &Error{Kind: KindMisconfiguredProvider, Message: "支付渠道未配置密钥"}
	ErrInvalidStateTransition     = &Error{Kind: KindInvalidStateTransition, Message: "状态流转不合法"}
	ErrInsufficientBalance        = &Error{Kind: KindInsufficientBalance, Message: "金币余额不足"}
	ErrInvalidAmount              = &Error{Kind: KindInvalidAmount, Message: "金额必须大于0"}
	ErrCodeNotFound               = &Error{Kind: KindCodeNotFound, Message: "兑换码不存在"}
	ErrCodeInactive               = &Error{Kind: KindCodeInactive, Message: "兑换码已停用"}
	ErrCodeExpired                = &Error{Kind: KindCodeExpired, Message: "兑换码已过期"}
	ErrCodeExhausted              = &Error{Kind: KindCodeExhausted, Message: "兑换码已被领完"}
	ErrAlreadyRedeemed            = &Error{Kind: KindAlreadyRedeemed, Message: "已兑换过该兑换码"}
	ErrBelowMinimumPayout         = &Error{Kind: KindBelowMinimumPayout, Message: "提现金额低于最低限额"}
	ErrInsufficientPendingBalance = &Error{Kind: KindInsufficientPendingBalance, Message: "可提现余额不足"}
	ErrNotFound                   = &Error{Kind: KindNotFound, Message: "记录不存在"}
	ErrRateLimited                = &Error{Kind: KindRateLimited, Message: "请求过于频繁"}
)

// New 创建指定类型的错误
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Infra 把存储/网络等底层错误包装成 InfrastructureError
// 已是 *Error 的错误原样返回
func Infra(err error, message string) error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return err
	}
	return &Error{Kind: KindInfrastructure, Message: message, Err: err}
}

// KindOf 返回错误类型；非 *Error 一律视为基础设施错误
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInfrastructure
}

// IsKind 判断错误是否为指定类型
func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

package provider

import (
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"net/url"
	"strconv"
	"strings"

	"monetcore/internal/apperr"
	"monetcore/internal/model"
)

const (
	vnpSecureHash     = "vnp_SecureHash"
	vnpSecureHashType = "vnp_SecureHashType"

	vnpCodeSuccess   = "00"
	vnpCodeCancelled = "24"
)

// VNPay HMAC-SHA512，签名比对不区分大小写
type VNPay struct {
	hashSecret string
}

func NewVNPay(hashSecret string) *VNPay {
	return &VNPay{hashSecret: hashSecret}
}

func (v *VNPay) Name() string { return model.ProviderVNPay }

// Sign 计算签名，参与签名的是除签名字段外所有非空的 vnp_ 参数
func (v *VNPay) Sign(params map[string]string) (string, error) {
	if v.hashSecret == "" {
		return "", apperr.ErrMisconfiguredProvider
	}
	signed := make(map[string]string, len(params))
	for k, val := range params {
		if k == vnpSecureHash || k == vnpSecureHashType {
			continue
		}
		if !strings.HasPrefix(k, "vnp_") || val == "" {
			continue
		}
		signed[k] = val
	}
	mac := hmac.New(sha512.New, []byte(v.hashSecret))
	mac.Write([]byte(canonicalize(signed, url.QueryEscape)))
	return hex.EncodeToString(mac.Sum(nil)), nil
}

func (v *VNPay) Verify(params map[string]string) error {
	expected, err := v.Sign(params)
	if err != nil {
		return err
	}
	supplied := params[vnpSecureHash]
	if supplied == "" {
		return apperr.ErrInvalidSignature
	}
	if !hmac.Equal([]byte(expected), []byte(strings.ToLower(supplied))) {
		return apperr.ErrInvalidSignature
	}
	return nil
}

func (v *VNPay) Parse(params map[string]string) (*Notification, error) {
	txnRef := params["vnp_TxnRef"]
	if txnRef == "" {
		return nil, apperr.New(apperr.KindInvalidArgument, "缺少 vnp_TxnRef")
	}
	// vnp_Amount 单位为 1/100 VND
	raw, err := strconv.ParseInt(params["vnp_Amount"], 10, 64)
	if err != nil || raw < 0 {
		return nil, apperr.New(apperr.KindInvalidArgument, "vnp_Amount 格式错误")
	}
	code := params["vnp_ResponseCode"]
	return &Notification{
		Provider:     model.ProviderVNPay,
		ProviderTxID: txnRef,
		ExternalRef:  params["vnp_TransactionNo"],
		Amount:       raw / 100,
		ResultCode:   code,
		Outcome:      v.MapResult(code),
		Payload:      encodePayload(params),
	}, nil
}

func (v *VNPay) MapResult(code string) Outcome {
	switch code {
	case vnpCodeSuccess:
		return OutcomeSuccess
	case vnpCodeCancelled:
		return OutcomeCancelled
	default:
		return OutcomeError
	}
}

package provider

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"strconv"

	"monetcore/internal/apperr"
	"monetcore/internal/model"
)

const (
	momoSignature = "signature"
	momoAccessKey = "accessKey"
)

// MoMo HMAC-SHA256，签名严格比对
type MoMo struct {
	accessKey string
	secretKey string
}

func NewMoMo(accessKey, secretKey string) *MoMo {
	return &MoMo{accessKey: accessKey, secretKey: secretKey}
}

func (m *MoMo) Name() string { return model.ProviderMoMo }

// Sign 回调体去掉 signature，补上 accessKey 后按 key 排序拼接
func (m *MoMo) Sign(params map[string]string) (string, error) {
	if m.secretKey == "" {
		return "", apperr.ErrMisconfiguredProvider
	}
	signed := make(map[string]string, len(params)+1)
	for k, v := range params {
		if k == momoSignature {
			continue
		}
		signed[k] = v
	}
	signed[momoAccessKey] = m.accessKey

	mac := hmac.New(sha256.New, []byte(m.secretKey))
	mac.Write([]byte(canonicalize(signed, nil)))
	return hex.EncodeToString(mac.Sum(nil)), nil
}

func (m *MoMo) Verify(params map[string]string) error {
	expected, err := m.Sign(params)
	if err != nil {
		return err
	}
	supplied := params[momoSignature]
	if supplied == "" || !hmac.Equal([]byte(expected), []byte(supplied)) {
		return apperr.ErrInvalidSignature
	}
	return nil
}

func (m *MoMo) Parse(params map[string]string) (*Notification, error) {
	orderID := params["orderId"]
	if orderID == "" {
		return nil, apperr.New(apperr.KindInvalidArgument, "缺少 orderId")
	}
	amount, err := strconv.ParseInt(params["amount"], 10, 64)
	if err != nil || amount < 0 {
		return nil, apperr.New(apperr.KindInvalidArgument, "amount 格式错误")
	}
	code := params["resultCode"]
	n := &Notification{
		Provider:     model.ProviderMoMo,
		ProviderTxID: orderID,
		ExternalRef:  params["transId"],
		Amount:       amount,
		ResultCode:   code,
		Outcome:      m.MapResult(code),
		Payload:      encodePayload(params),
	}
	n.Meta = decodeExtraData(params["extraData"])
	return n, nil
}

// decodeExtraData extraData 为 base64 编码的 JSON，解析失败视为无附加信息
func decodeExtraData(extra string) *IntentMeta {
	if extra == "" {
		return nil
	}
	data, err := base64.StdEncoding.DecodeString(extra)
	if err != nil {
		return nil
	}
	var meta IntentMeta
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil
	}
	if !validMeta(&meta) {
		return nil
	}
	return &meta
}

// EncodeExtraData 下单时生成 extraData
func EncodeExtraData(meta IntentMeta) string {
	data, _ := json.Marshal(meta)
	return base64.StdEncoding.EncodeToString(data)
}

func (m *MoMo) MapResult(code string) Outcome {
	switch code {
	case "0":
		return OutcomeSuccess
	case "1003", "1006":
		return OutcomeCancelled
	default:
		return OutcomeError
	}
}

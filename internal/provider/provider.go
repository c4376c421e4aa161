package provider

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"monetcore/internal/apperr"
	"monetcore/internal/config"
	"monetcore/internal/model"
)

// Outcome 渠道结果码归类
type Outcome int

const (
	OutcomeError Outcome = iota
	OutcomeSuccess
	OutcomeCancelled
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeCancelled:
		return "cancelled"
	default:
		return "error"
	}
}

// IntentMeta 回调自带的下单信息，用于没有预先创建 intent 的交易
type IntentMeta struct {
	UserID  int64  `json:"userId"`
	Kind    string `json:"kind"`
	Gold    int64  `json:"gold,omitempty"`
	VipDays int    `json:"vipDays,omitempty"`
	VipTier string `json:"vipTier,omitempty"`
}

// Notification 验签后的渠道回调
type Notification struct {
	Provider     string
	ProviderTxID string // 我方订单号（vnp_TxnRef / orderId）
	ExternalRef  string // 渠道流水号
	Amount       int64
	ResultCode   string
	Outcome      Outcome
	Meta         *IntentMeta
	Payload      string
}

// Provider 单个支付渠道：验签、解析、结果码映射
type Provider interface {
	Name() string
	Verify(params map[string]string) error
	Parse(params map[string]string) (*Notification, error)
	MapResult(code string) Outcome
}

// Registry 按渠道名分发
type Registry struct {
	providers map[string]Provider
}

func NewRegistry(cfg *config.ProvidersConfig) *Registry {
	return NewRegistryOf(
		NewVNPay(cfg.VNPay.HashSecret),
		NewMoMo(cfg.MoMo.AccessKey, cfg.MoMo.SecretKey),
	)
}

func NewRegistryOf(providers ...Provider) *Registry {
	r := &Registry{providers: make(map[string]Provider, len(providers))}
	for _, p := range providers {
		r.providers[p.Name()] = p
	}
	return r
}

func (r *Registry) Get(name string) (Provider, error) {
	p, ok := r.providers[strings.ToUpper(name)]
	if !ok {
		return nil, apperr.New(apperr.KindInvalidArgument, fmt.Sprintf("不支持的支付渠道: %s", name))
	}
	return p, nil
}

// VerifyAndParse 验签通过后才解析，验签失败不产生任何状态
func (r *Registry) VerifyAndParse(name string, params map[string]string) (*Notification, error) {
	p, err := r.Get(name)
	if err != nil {
		return nil, err
	}
	if err := p.Verify(params); err != nil {
		return nil, err
	}
	return p.Parse(params)
}

// MapResult 补偿任务用已记录的结果码重新结算
func (r *Registry) MapResult(name, code string) Outcome {
	p, err := r.Get(name)
	if err != nil {
		return OutcomeError
	}
	return p.MapResult(code)
}

// canonicalize 按 key 字典序拼接 k=v&k=v
func canonicalize(params map[string]string, escape func(string) string) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for i, k := range keys {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(k)
		b.WriteByte('=')
		if escape != nil {
			b.WriteString(escape(params[k]))
		} else {
			b.WriteString(params[k])
		}
	}
	return b.String()
}

func encodePayload(params map[string]string) string {
	data, err := json.Marshal(params)
	if err != nil {
		return ""
	}
	return string(data)
}

// validMeta 渠道付款只能充值金币或购买 VIP，且必须带齐发放内容
func validMeta(meta *IntentMeta) bool {
	if meta.UserID <= 0 {
		return false
	}
	switch meta.Kind {
	case model.KindBuyGold:
		return meta.Gold > 0
	case model.KindPurchaseVip:
		return meta.VipDays > 0 && model.IsValidTier(meta.VipTier)
	}
	return false
}

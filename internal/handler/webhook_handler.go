package handler

import (
	"encoding/json"
	"net/http"

	"monetcore/internal/apperr"
	"monetcore/internal/model"

	"github.com/gin-gonic/gin"
)

// VNPay IPN 应答码
const (
	vnpRspConfirmed       = "00"
	vnpRspInvalidChecksum = "97"
	vnpRspUnknownError    = "99"
)

type vnpayAck struct {
	RspCode string `json:"RspCode"`
	Message string `json:"Message"`
}

// VNPayIPN 渠道回调只告知是否已接收，不暴露内部处理结果。
// 基础设施错误返回 99 让渠道重试
// GET|POST /api/v1/webhooks/vnpay
func (h *Handler) VNPayIPN(c *gin.Context) {
	// POST 时参数可能在表单里，Form 同时包含 query
	if err := c.Request.ParseForm(); err != nil {
		c.JSON(http.StatusOK, vnpayAck{RspCode: vnpRspUnknownError, Message: "Invalid request"})
		return
	}
	params := make(map[string]string)
	for k, v := range c.Request.Form {
		if len(v) > 0 {
			params[k] = v[0]
		}
	}

	_, err := h.ledger.Ingest(c.Request.Context(), model.ProviderVNPay, params)
	switch apperr.KindOf(err) {
	case "":
		c.JSON(http.StatusOK, vnpayAck{RspCode: vnpRspConfirmed, Message: "Confirm Success"})
	case apperr.KindInvalidSignature:
		c.JSON(http.StatusOK, vnpayAck{RspCode: vnpRspInvalidChecksum, Message: "Invalid Checksum"})
	case apperr.KindInvalidArgument:
		// 验签通过但参数无法解析，重试也不会成功
		c.JSON(http.StatusOK, vnpayAck{RspCode: vnpRspConfirmed, Message: "Confirm Success"})
	default:
		c.JSON(http.StatusOK, vnpayAck{RspCode: vnpRspUnknownError, Message: "Unknown error"})
	}
}

// MoMoIPN MoMo 回调为 JSON，数字字段按原文参与签名
// POST /api/v1/webhooks/momo
func (h *Handler) MoMoIPN(c *gin.Context) {
	params, err := decodeFlatJSON(c)
	if err != nil {
		c.Status(http.StatusBadRequest)
		return
	}

	_, err = h.ledger.Ingest(c.Request.Context(), model.ProviderMoMo, params)
	switch apperr.KindOf(err) {
	case "", apperr.KindInvalidArgument:
		c.Status(http.StatusNoContent)
	case apperr.KindInvalidSignature:
		c.Status(http.StatusUnauthorized)
	default:
		c.Status(http.StatusInternalServerError)
	}
}

// decodeFlatJSON 把一层 JSON 对象转成 map[string]string，数字保持原始文本
func decodeFlatJSON(c *gin.Context) (map[string]string, error) {
	dec := json.NewDecoder(c.Request.Body)
	dec.UseNumber()

	var raw map[string]interface{}
	if err := dec.Decode(&raw); err != nil {
		return nil, err
	}

	params := make(map[string]string, len(raw))
	for k, v := range raw {
		switch val := v.(type) {
		case nil:
			params[k] = ""
		case string:
			params[k] = val
		case json.Number:
			params[k] = val.String()
		case bool:
			if val {
				params[k] = "true"
			} else {
				params[k] = "false"
			}
		default:
			data, err := json.Marshal(val)
			if err != nil {
				return nil, err
			}
			params[k] = string(data)
		}
	}
	return params, nil
}

package handler

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"

	"chatpulse-go/internal/service"
	"chatpulse-go/pkg/log"

	"github.com/gin-gonic/gin"
)

// WebhookHandler 负责处理第三方支付平台的回调。
type WebhookHandler struct {
	subService service.SubscriptionService
	secretHash string
}

// NewWebhookHandler 创建一个新的 WebhookHandler 实例。
func NewWebhookHandler(subService service.SubscriptionService, secretHash string) *WebhookHandler {
	return &WebhookHandler{subService: subService, secretHash: secretHash}
}

// flutterwavePayload 是 Flutterwave 回调的请求体结构。
type flutterwavePayload struct {
	Event string `json:"event"`
	Data  struct {
		TxRef    string  `json:"tx_ref"`
		Amount   float64 `json:"amount"`
		Currency string  `json:"currency"`
		Customer struct {
			Email string `json:"email"`
		} `json:"customer"`
	} `json:"data"`
}

// verifySignature 用 HMAC-SHA256 校验 verif-hash 请求头。
func (h *WebhookHandler) verifySignature(signature string, body []byte) bool {
	mac := hmac.New(sha256.New, []byte(h.secretHash))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(signature), []byte(expected))
}

// Flutterwave 处理 Flutterwave 支付回调。
// 签名校验失败直接拒绝；未知事件类型按成功接收处理，避免平台重试。
func (h *WebhookHandler) Flutterwave(c *gin.Context) {
	if h.secretHash == "" {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"code":    http.StatusServiceUnavailable,
			"message": "Webhook not configured",
		})
		return
	}

	signature := c.GetHeader("verif-hash")
	if signature == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"code":    http.StatusBadRequest,
			"message": "Missing signature",
		})
		return
	}

	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"code":    http.StatusBadRequest,
			"message": "无法读取请求体",
		})
		return
	}
	c.Request.Body = io.NopCloser(bytes.NewBuffer(body))

	if !h.verifySignature(signature, body) {
		log.Warnf("Flutterwave webhook: 签名校验失败, clientIP: %s", c.ClientIP())
		c.JSON(http.StatusUnauthorized, gin.H{
			"code":    http.StatusUnauthorized,
			"message": "Invalid signature",
		})
		return
	}

	var payload flutterwavePayload
	if err := json.Unmarshal(body, &payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"code":    http.StatusBadRequest,
			"message": "Invalid JSON",
		})
		return
	}

	currency := payload.Data.Currency
	if currency == "" {
		currency = "USD"
	}

	switch payload.Event {
	case "charge.completed":
		if err := h.subService.ApplySuccessfulPayment(payload.Data.TxRef, payload.Data.Amount, currency); err != nil {
			// 记录错误但仍返回 200，业务失败不应触发平台无限重试
			log.Errorf("Flutterwave webhook: 处理支付成功事件失败, reference: %s, error: %v", payload.Data.TxRef, err)
		}
	case "payment.failed":
		if err := h.subService.HandleFailedPayment(payload.Data.TxRef, payload.Data.Amount, currency); err != nil {
			log.Errorf("Flutterwave webhook: 处理支付失败事件失败, reference: %s, error: %v", payload.Data.TxRef, err)
		}
	default:
		log.Infof("Flutterwave webhook: 忽略未知事件 '%s'", payload.Event)
	}

	c.JSON(http.StatusOK, gin.H{"status": "received"})
}

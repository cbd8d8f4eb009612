package handler

import (
	"net/http"

	"chatpulse-go/internal/service"
	"chatpulse-go/pkg/log"

	"github.com/gin-gonic/gin"
)

// SubscriptionHandler 负责订阅相关的 API。
type SubscriptionHandler struct {
	subService service.SubscriptionService
}

// NewSubscriptionHandler 创建一个新的 SubscriptionHandler 实例。
func NewSubscriptionHandler(subService service.SubscriptionService) *SubscriptionHandler {
	return &SubscriptionHandler{subService: subService}
}

// ListPlans 返回可订阅的套餐列表，无需认证。
func (h *SubscriptionHandler) ListPlans(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"code":    http.StatusOK,
		"message": "success",
		"data":    gin.H{"plans": h.subService.ListPlans()},
	})
}

// Current 返回当前租户的活跃订阅，没有则返回空。
func (h *SubscriptionHandler) Current(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}

	sub, err := h.subService.Current(user.ID)
	if err != nil {
		log.Errorf("Current: failed for user %d, error: %v", user.ID, err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"code":    http.StatusInternalServerError,
			"message": "获取订阅信息失败",
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"code":    http.StatusOK,
		"message": "success",
		"data": gin.H{
			"plan":         user.SubscriptionPlan,
			"subscription": sub,
		},
	})
}

// PaymentReference 为当前租户生成一个新的支付交易引用。
// 前端用该引用发起 Flutterwave 支付，支付结果通过 webhook 回传。
func (h *SubscriptionHandler) PaymentReference(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"code":    http.StatusOK,
		"message": "success",
		"data":    gin.H{"reference": h.subService.PaymentReference(user.ID)},
	})
}

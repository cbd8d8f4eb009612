package handler

import (
	"net/http"

	"chatpulse-go/internal/engine"
	"chatpulse-go/internal/repository"
	"chatpulse-go/internal/service"
	"chatpulse-go/pkg/log"

	"github.com/gin-gonic/gin"
)

// AIHandler 负责自动回复引擎的直连 API（不经过会话）。
type AIHandler struct {
	engine      *engine.Engine
	ruleService service.RuleService
	usageRepo   repository.UsageRepository
}

// NewAIHandler 创建一个新的 AIHandler 实例。
func NewAIHandler(eng *engine.Engine, ruleService service.RuleService, usageRepo repository.UsageRepository) *AIHandler {
	return &AIHandler{
		engine:      eng,
		ruleService: ruleService,
		usageRepo:   usageRepo,
	}
}

// GenerateRequest 定义了直接生成回复 API 的请求体结构。
type GenerateRequest struct {
	Message  string        `json:"message" binding:"required"`
	Provider string        `json:"provider"`
	Context  []engine.Turn `json:"context"`
}

// GenerateResponse 处理租户面板中“测试回复”的请求。
// 引擎内部保证永远返回一条回复，因此该接口不会因 AI 提供商故障而失败。
func (h *AIHandler) GenerateResponse(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}

	var req GenerateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"code":    http.StatusBadRequest,
			"message": "无效的请求负载：message 不能为空",
		})
		return
	}

	result := h.engine.GenerateResponse(c.Request.Context(), engine.Request{
		Message:        req.Message,
		TenantID:       user.ID,
		SessionContext: req.Context,
		Provider:       req.Provider,
	})

	if err := h.usageRepo.IncrGeneration(c.Request.Context(), user.ID); err != nil {
		log.Warnf("GenerateResponse: 更新生成计数失败, user: %d, error: %v", user.ID, err)
	}

	c.JSON(http.StatusOK, gin.H{
		"code":    http.StatusOK,
		"message": "success",
		"data": gin.H{
			"response":      result.ResponseText,
			"provenance":    result.Provenance,
			"matchedRuleId": result.MatchedRuleID,
		},
	})
}

// ListProviders 返回当前配置了凭证的 AI 提供商列表。
func (h *AIHandler) ListProviders(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"code":    http.StatusOK,
		"message": "success",
		"data":    gin.H{"providers": h.engine.Providers()},
	})
}

// UsageStats 返回租户的规则用量与当日生成次数。
func (h *AIHandler) UsageStats(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}

	usage, err := h.ruleService.Usage(c.Request.Context(), user)
	if err != nil {
		log.Errorf("UsageStats: failed for user %d, error: %v", user.ID, err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"code":    http.StatusInternalServerError,
			"message": "获取用量信息失败",
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "data": usage, "message": "success"})
}

package handler

import (
	"errors"
	"net/http"
	"strconv"

	"chatpulse-go/internal/service"
	"chatpulse-go/pkg/log"

	"github.com/gin-gonic/gin"
)

// RuleHandler 负责自动回复规则的增删改查 API。
type RuleHandler struct {
	ruleService service.RuleService
}

// NewRuleHandler 创建一个新的 RuleHandler 实例。
func NewRuleHandler(ruleService service.RuleService) *RuleHandler {
	return &RuleHandler{ruleService: ruleService}
}

func ruleIDParam(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		c.JSON(http.StatusBadRequest, gin.H{
			"code":    http.StatusBadRequest,
			"message": "无效的规则 ID",
		})
		return 0, false
	}
	return uint(id), true
}

// CreateRule 创建一条新规则，超出套餐上限时返回 403。
func (h *RuleHandler) CreateRule(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}

	var input service.RuleInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"code":    http.StatusBadRequest,
			"message": "无效的请求负载：规则名称、关键词和回复模板不能为空",
		})
		return
	}

	rule, err := h.ruleService.CreateRule(user.ID, input)
	if err != nil {
		if errors.Is(err, service.ErrRuleLimitExceeded) {
			c.JSON(http.StatusForbidden, gin.H{
				"code":    http.StatusForbidden,
				"message": "当前套餐的规则数量已达上限，请升级套餐",
			})
			return
		}
		log.Errorf("CreateRule: failed for user %d, error: %v", user.ID, err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"code":    http.StatusInternalServerError,
			"message": "创建规则失败",
		})
		return
	}

	log.Infof("User %d created rule %d", user.ID, rule.ID)
	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "data": rule, "message": "success"})
}

// ListRules 返回当前租户的全部规则。
func (h *RuleHandler) ListRules(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}

	rules, err := h.ruleService.ListRules(user.ID)
	if err != nil {
		log.Errorf("ListRules: failed for user %d, error: %v", user.ID, err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"code":    http.StatusInternalServerError,
			"message": "获取规则列表失败",
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "data": rules, "message": "success"})
}

// GetRule 返回单条规则详情。
func (h *RuleHandler) GetRule(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	ruleID, ok := ruleIDParam(c)
	if !ok {
		return
	}

	rule, err := h.ruleService.GetRule(user.ID, ruleID)
	if err != nil {
		h.writeRuleError(c, user.ID, ruleID, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"code":    http.StatusOK,
		"message": "success",
		"data": gin.H{
			"rule":            rule,
			"triggerKeywords": rule.KeywordList(),
		},
	})
}

// UpdateRule 整体更新一条规则。
func (h *RuleHandler) UpdateRule(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	ruleID, ok := ruleIDParam(c)
	if !ok {
		return
	}

	var input service.RuleInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"code":    http.StatusBadRequest,
			"message": "无效的请求负载",
		})
		return
	}

	rule, err := h.ruleService.UpdateRule(user.ID, ruleID, input)
	if err != nil {
		h.writeRuleError(c, user.ID, ruleID, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "data": rule, "message": "success"})
}

// ToggleRule 翻转规则的启用状态。
func (h *RuleHandler) ToggleRule(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	ruleID, ok := ruleIDParam(c)
	if !ok {
		return
	}

	rule, err := h.ruleService.ToggleRule(user.ID, ruleID)
	if err != nil {
		h.writeRuleError(c, user.ID, ruleID, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "data": rule, "message": "success"})
}

// DeleteRule 删除一条规则。
func (h *RuleHandler) DeleteRule(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	ruleID, ok := ruleIDParam(c)
	if !ok {
		return
	}

	if err := h.ruleService.DeleteRule(user.ID, ruleID); err != nil {
		h.writeRuleError(c, user.ID, ruleID, err)
		return
	}
	log.Infof("User %d deleted rule %d", user.ID, ruleID)
	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "规则已删除"})
}

func (h *RuleHandler) writeRuleError(c *gin.Context, userID, ruleID uint, err error) {
	if errors.Is(err, service.ErrRuleNotFound) {
		c.JSON(http.StatusNotFound, gin.H{
			"code":    http.StatusNotFound,
			"message": "规则不存在",
		})
		return
	}
	log.Errorf("RuleHandler: operation failed, user: %d, rule: %d, error: %v", userID, ruleID, err)
	c.JSON(http.StatusInternalServerError, gin.H{
		"code":    http.StatusInternalServerError,
		"message": "规则操作失败",
	})
}

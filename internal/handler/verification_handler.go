package handler

import (
	"errors"
	"net/http"

	"chatpulse-go/internal/service"
	"chatpulse-go/pkg/log"

	"github.com/gin-gonic/gin"
)

// VerificationHandler 负责处理邮箱验证与密码重置相关的 API 请求。
type VerificationHandler struct {
	verificationService service.VerificationService
}

// NewVerificationHandler 创建一个新的 VerificationHandler 实例。
func NewVerificationHandler(verificationService service.VerificationService) *VerificationHandler {
	return &VerificationHandler{verificationService: verificationService}
}

// SendVerificationRequest 定义了发送验证码 API 的请求体结构。
type SendVerificationRequest struct {
	Email string `json:"email" binding:"required,email"`
}

// SendVerification 向未注册邮箱发送 6 位验证码。
func (h *VerificationHandler) SendVerification(c *gin.Context) {
	var req SendVerificationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"code":    http.StatusBadRequest,
			"message": "无效的请求负载：邮箱不能为空",
		})
		return
	}

	if err := h.verificationService.SendVerificationCode(c.Request.Context(), req.Email); err != nil {
		if errors.Is(err, service.ErrEmailRegistered) {
			c.JSON(http.StatusConflict, gin.H{
				"code":    http.StatusConflict,
				"message": err.Error(),
			})
			return
		}
		log.Error("SendVerification: failed to send code", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"code":    http.StatusInternalServerError,
			"message": "验证码发送失败",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"code":    http.StatusOK,
		"message": "验证码已发送",
	})
}

// VerifyCodeRequest 定义了校验验证码 API 的请求体结构。
type VerifyCodeRequest struct {
	Email string `json:"email" binding:"required,email"`
	Code  string `json:"code" binding:"required"`
}

// VerifyCode 校验邮箱验证码是否有效。
func (h *VerificationHandler) VerifyCode(c *gin.Context) {
	var req VerifyCodeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"code":    http.StatusBadRequest,
			"message": "无效的请求负载：邮箱和验证码不能为空",
		})
		return
	}

	if err := h.verificationService.VerifyCode(c.Request.Context(), req.Email, req.Code); err != nil {
		if errors.Is(err, service.ErrInvalidCode) {
			c.JSON(http.StatusBadRequest, gin.H{
				"code":    http.StatusBadRequest,
				"message": err.Error(),
			})
			return
		}
		log.Error("VerifyCode: failed to verify code", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"code":    http.StatusInternalServerError,
			"message": "验证码校验失败",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"code":    http.StatusOK,
		"message": "验证码有效",
	})
}

// SignupWithVerificationRequest 定义了带验证码注册 API 的请求体结构。
type SignupWithVerificationRequest struct {
	Email       string `json:"email" binding:"required,email"`
	Username    string `json:"username" binding:"required"`
	Password    string `json:"password" binding:"required,min=8"`
	CompanyName string `json:"companyName"`
	Code        string `json:"code" binding:"required"`
}

// SignupWithVerification 在验证码校验通过后完成注册。
func (h *VerificationHandler) SignupWithVerification(c *gin.Context) {
	var req SignupWithVerificationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"code":    http.StatusBadRequest,
			"message": "无效的请求负载：邮箱、用户名、密码和验证码不能为空",
		})
		return
	}

	user, err := h.verificationService.RegisterWithVerification(
		c.Request.Context(), req.Email, req.Username, req.Password, req.CompanyName, req.Code)
	if err != nil {
		if errors.Is(err, service.ErrInvalidCode) {
			c.JSON(http.StatusBadRequest, gin.H{
				"code":    http.StatusBadRequest,
				"message": err.Error(),
			})
			return
		}
		log.Warnf("SignupWithVerification: registration failed for '%s', error: %v", req.Email, err)
		c.JSON(http.StatusConflict, gin.H{
			"code":    http.StatusConflict,
			"message": err.Error(),
		})
		return
	}

	log.Infof("User '%s' registered with verified email", user.Email)
	c.JSON(http.StatusOK, gin.H{
		"code":    http.StatusOK,
		"message": "User registered successfully",
		"data":    user,
	})
}

// ForgotPasswordRequest 定义了找回密码 API 的请求体结构。
type ForgotPasswordRequest struct {
	Email string `json:"email" binding:"required,email"`
}

// ForgotPassword 发送密码重置链接。
// 无论邮箱是否注册都返回同样的提示。
func (h *VerificationHandler) ForgotPassword(c *gin.Context) {
	var req ForgotPasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"code":    http.StatusBadRequest,
			"message": "无效的请求负载：邮箱不能为空",
		})
		return
	}

	if err := h.verificationService.ForgotPassword(c.Request.Context(), req.Email); err != nil {
		log.Error("ForgotPassword: failed to send reset link", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"code":    http.StatusInternalServerError,
			"message": "重置链接发送失败",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"code":    http.StatusOK,
		"message": service.ForgotPasswordMessage,
	})
}

// ResetPasswordRequest 定义了重置密码 API 的请求体结构。
type ResetPasswordRequest struct {
	Token       string `json:"token" binding:"required"`
	NewPassword string `json:"newPassword" binding:"required,min=8"`
}

// ResetPassword 使用重置令牌设置新密码。
func (h *VerificationHandler) ResetPassword(c *gin.Context) {
	var req ResetPasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"code":    http.StatusBadRequest,
			"message": "无效的请求负载：令牌和新密码不能为空",
		})
		return
	}

	if err := h.verificationService.ResetPassword(c.Request.Context(), req.Token, req.NewPassword); err != nil {
		if errors.Is(err, service.ErrInvalidResetToken) {
			c.JSON(http.StatusBadRequest, gin.H{
				"code":    http.StatusBadRequest,
				"message": err.Error(),
			})
			return
		}
		log.Error("ResetPassword: failed to reset password", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"code":    http.StatusInternalServerError,
			"message": "密码重置失败",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"code":    http.StatusOK,
		"message": "密码重置成功",
	})
}

// VerifyResetToken 校验重置令牌并返回其绑定的邮箱。
func (h *VerificationHandler) VerifyResetToken(c *gin.Context) {
	tokenString := c.Param("token")
	email, err := h.verificationService.VerifyResetToken(c.Request.Context(), tokenString)
	if err != nil {
		if errors.Is(err, service.ErrInvalidResetToken) {
			c.JSON(http.StatusOK, gin.H{
				"code":    http.StatusOK,
				"message": "success",
				"data":    gin.H{"valid": false},
			})
			return
		}
		log.Error("VerifyResetToken: failed to verify token", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"code":    http.StatusInternalServerError,
			"message": "令牌校验失败",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"code":    http.StatusOK,
		"message": "success",
		"data":    gin.H{"valid": true, "email": email},
	})
}

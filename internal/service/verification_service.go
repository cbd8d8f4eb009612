package service

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"math/big"

	"chatpulse-go/internal/model"
	"chatpulse-go/internal/repository"
	"chatpulse-go/pkg/hash"
	"chatpulse-go/pkg/log"
	"chatpulse-go/pkg/mailer"

	"github.com/go-redis/redis/v8"
	"gorm.io/gorm"
)

var (
	ErrEmailRegistered   = errors.New("该邮箱已被注册")
	ErrInvalidCode       = errors.New("验证码错误或已过期")
	ErrInvalidResetToken = errors.New("重置链接无效或已过期")
	ErrUsernameTaken     = errors.New("用户名已存在")
)

// ForgotPasswordMessage 对未注册邮箱也返回同样的提示，避免泄露注册状态。
const ForgotPasswordMessage = "If an account with this email exists, a password reset link has been sent."

// VerificationService 接口定义了邮箱验证与密码重置的业务操作。
type VerificationService interface {
	SendVerificationCode(ctx context.Context, email string) error
	VerifyCode(ctx context.Context, email, code string) error
	RegisterWithVerification(ctx context.Context, email, username, password, companyName, code string) (*model.User, error)
	ForgotPassword(ctx context.Context, email string) error
	ResetPassword(ctx context.Context, token, newPassword string) error
	VerifyResetToken(ctx context.Context, token string) (email string, err error)
}

// verificationService 是 VerificationService 接口的实现。
type verificationService struct {
	userRepo         repository.UserRepository
	verificationRepo repository.VerificationRepository
	mail             mailer.Mailer
}

// NewVerificationService 创建一个新的 VerificationService 实例。
func NewVerificationService(userRepo repository.UserRepository, verificationRepo repository.VerificationRepository, mail mailer.Mailer) VerificationService {
	return &verificationService{
		userRepo:         userRepo,
		verificationRepo: verificationRepo,
		mail:             mail,
	}
}

// SendVerificationCode 为未注册的邮箱生成并发送 6 位验证码。
func (s *verificationService) SendVerificationCode(ctx context.Context, email string) error {
	// 已注册的邮箱不再发验证码
	_, err := s.userRepo.FindByEmail(email)
	if err == nil {
		return ErrEmailRegistered
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}

	code, err := generateVerificationCode()
	if err != nil {
		return err
	}
	if err := s.verificationRepo.StoreCode(ctx, email, code); err != nil {
		return err
	}
	if err := s.mail.SendVerificationCode(email, code); err != nil {
		return err
	}

	log.Infof("[VerificationService] 验证码已发送: %s", email)
	return nil
}

// VerifyCode 校验邮箱验证码，过期或不匹配时返回 ErrInvalidCode。
func (s *verificationService) VerifyCode(ctx context.Context, email, code string) error {
	stored, err := s.verificationRepo.GetCode(ctx, email)
	if err == redis.Nil {
		return ErrInvalidCode
	}
	if err != nil {
		return err
	}
	if stored != code {
		return ErrInvalidCode
	}
	return nil
}

// RegisterWithVerification 在验证码校验通过后创建已验证的租户账号。
// 注册成功后验证码作废。
func (s *verificationService) RegisterWithVerification(ctx context.Context, email, username, password, companyName, code string) (*model.User, error) {
	if err := s.VerifyCode(ctx, email, code); err != nil {
		return nil, err
	}

	_, err := s.userRepo.FindByEmail(email)
	if err == nil {
		return nil, ErrEmailRegistered
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	_, err = s.userRepo.FindByUsername(username)
	if err == nil {
		return nil, ErrUsernameTaken
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	hashedPassword, err := hash.HashPassword(password)
	if err != nil {
		return nil, err
	}

	newUser := &model.User{
		Email:            email,
		Username:         username,
		Password:         hashedPassword,
		Company:          companyName,
		SubscriptionPlan: model.PlanFree,
		IsVerified:       true,
	}
	if err := s.userRepo.Create(newUser); err != nil {
		return nil, err
	}

	if err := s.verificationRepo.DeleteCode(ctx, email); err != nil {
		log.Error("[VerificationService] 删除验证码失败", err)
	}
	return newUser, nil
}

// ForgotPassword 为已注册邮箱生成重置令牌并发送重置链接。
// 邮箱未注册时静默返回成功，不暴露注册状态。
func (s *verificationService) ForgotPassword(ctx context.Context, email string) error {
	user, err := s.userRepo.FindByEmail(email)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		return err
	}

	tkn, err := generateResetToken()
	if err != nil {
		return err
	}
	data := repository.ResetTokenData{UserID: user.ID, Email: user.Email}
	if err := s.verificationRepo.StoreResetToken(ctx, tkn, data); err != nil {
		return err
	}
	if err := s.mail.SendPasswordReset(user.Email, tkn); err != nil {
		return err
	}

	log.Infof("[VerificationService] 重置链接已发送: %s", email)
	return nil
}

// ResetPassword 使用重置令牌更新密码，成功后令牌立即作废。
func (s *verificationService) ResetPassword(ctx context.Context, tokenString, newPassword string) error {
	data, err := s.verificationRepo.GetResetToken(ctx, tokenString)
	if err == redis.Nil {
		return ErrInvalidResetToken
	}
	if err != nil {
		return err
	}

	user, err := s.userRepo.FindByID(data.UserID)
	if err != nil {
		return ErrInvalidResetToken
	}

	hashedPassword, err := hash.HashPassword(newPassword)
	if err != nil {
		return err
	}
	user.Password = hashedPassword
	if err := s.userRepo.Update(user); err != nil {
		return err
	}

	if err := s.verificationRepo.DeleteResetToken(ctx, tokenString); err != nil {
		log.Error("[VerificationService] 删除重置令牌失败", err)
	}
	return nil
}

// VerifyResetToken 校验令牌有效性并返回其绑定的邮箱。
func (s *verificationService) VerifyResetToken(ctx context.Context, tokenString string) (string, error) {
	data, err := s.verificationRepo.GetResetToken(ctx, tokenString)
	if err == redis.Nil {
		return "", ErrInvalidResetToken
	}
	if err != nil {
		return "", err
	}
	return data.Email, nil
}

// generateVerificationCode 生成一个 6 位数字验证码。
func generateVerificationCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1000000))
	if err != nil {
		return "", fmt.Errorf("生成验证码失败: %w", err)
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}

// generateResetToken 生成一个 URL 安全的随机重置令牌。
func generateResetToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("生成重置令牌失败: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

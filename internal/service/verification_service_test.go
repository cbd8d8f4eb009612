package service

import (
	"context"
	"testing"

	"chatpulse-go/internal/model"
	"chatpulse-go/internal/repository"
	"chatpulse-go/pkg/hash"

	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// memUserRepo 是一个带邮箱索引的内存用户仓库。
type memUserRepo struct {
	byEmail map[string]*model.User
	nextID  uint
}

func newMemUserRepo() *memUserRepo {
	return &memUserRepo{byEmail: make(map[string]*model.User), nextID: 1}
}

func (f *memUserRepo) Create(user *model.User) error {
	user.ID = f.nextID
	f.nextID++
	f.byEmail[user.Email] = user
	return nil
}

func (f *memUserRepo) FindByEmail(email string) (*model.User, error) {
	if u, ok := f.byEmail[email]; ok {
		return u, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (f *memUserRepo) FindByUsername(username string) (*model.User, error) {
	for _, u := range f.byEmail {
		if u.Username == username {
			return u, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (f *memUserRepo) FindByID(userID uint) (*model.User, error) {
	for _, u := range f.byEmail {
		if u.ID == userID {
			return u, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (f *memUserRepo) Update(user *model.User) error {
	f.byEmail[user.Email] = user
	return nil
}

// memVerificationRepo 模拟 Redis 中的验证码与重置令牌存储。
type memVerificationRepo struct {
	codes  map[string]string
	tokens map[string]repository.ResetTokenData
}

func newMemVerificationRepo() *memVerificationRepo {
	return &memVerificationRepo{
		codes:  make(map[string]string),
		tokens: make(map[string]repository.ResetTokenData),
	}
}

func (f *memVerificationRepo) StoreCode(ctx context.Context, email, code string) error {
	f.codes[email] = code
	return nil
}

func (f *memVerificationRepo) GetCode(ctx context.Context, email string) (string, error) {
	if code, ok := f.codes[email]; ok {
		return code, nil
	}
	return "", redis.Nil
}

func (f *memVerificationRepo) DeleteCode(ctx context.Context, email string) error {
	delete(f.codes, email)
	return nil
}

func (f *memVerificationRepo) StoreResetToken(ctx context.Context, token string, data repository.ResetTokenData) error {
	f.tokens[token] = data
	return nil
}

func (f *memVerificationRepo) GetResetToken(ctx context.Context, token string) (*repository.ResetTokenData, error) {
	if data, ok := f.tokens[token]; ok {
		return &data, nil
	}
	return nil, redis.Nil
}

func (f *memVerificationRepo) DeleteResetToken(ctx context.Context, token string) error {
	delete(f.tokens, token)
	return nil
}

// recordingMailer 记录发出的验证码与重置令牌。
type recordingMailer struct {
	codes  map[string]string
	tokens map[string]string
}

func newRecordingMailer() *recordingMailer {
	return &recordingMailer{codes: make(map[string]string), tokens: make(map[string]string)}
}

func (m *recordingMailer) SendVerificationCode(toEmail, code string) error {
	m.codes[toEmail] = code
	return nil
}

func (m *recordingMailer) SendPasswordReset(toEmail, token string) error {
	m.tokens[toEmail] = token
	return nil
}

func newVerificationFixture() (*memUserRepo, *memVerificationRepo, *recordingMailer, VerificationService) {
	userRepo := newMemUserRepo()
	verifRepo := newMemVerificationRepo()
	mail := newRecordingMailer()
	svc := NewVerificationService(userRepo, verifRepo, mail)
	return userRepo, verifRepo, mail, svc
}

func TestSendVerificationCode(t *testing.T) {
	_, verifRepo, mail, svc := newVerificationFixture()
	ctx := context.Background()

	err := svc.SendVerificationCode(ctx, "new@example.com")
	require.NoError(t, err)

	code, ok := verifRepo.codes["new@example.com"]
	require.True(t, ok)
	assert.Len(t, code, 6)
	assert.Equal(t, code, mail.codes["new@example.com"])
}

func TestSendVerificationCodeRejectsRegisteredEmail(t *testing.T) {
	userRepo, _, mail, svc := newVerificationFixture()
	require.NoError(t, userRepo.Create(&model.User{Email: "taken@example.com", Username: "taken"}))

	err := svc.SendVerificationCode(context.Background(), "taken@example.com")
	assert.ErrorIs(t, err, ErrEmailRegistered)
	assert.Empty(t, mail.codes)
}

func TestVerifyCodeRejectsWrongOrMissingCode(t *testing.T) {
	_, verifRepo, _, svc := newVerificationFixture()
	ctx := context.Background()
	verifRepo.codes["a@example.com"] = "123456"

	assert.NoError(t, svc.VerifyCode(ctx, "a@example.com", "123456"))
	assert.ErrorIs(t, svc.VerifyCode(ctx, "a@example.com", "654321"), ErrInvalidCode)
	assert.ErrorIs(t, svc.VerifyCode(ctx, "b@example.com", "123456"), ErrInvalidCode)
}

func TestRegisterWithVerification(t *testing.T) {
	userRepo, verifRepo, _, svc := newVerificationFixture()
	ctx := context.Background()
	verifRepo.codes["new@example.com"] = "424242"

	user, err := svc.RegisterWithVerification(ctx, "new@example.com", "newbie", "password123", "Acme", "424242")
	require.NoError(t, err)
	assert.True(t, user.IsVerified)
	assert.Equal(t, model.PlanFree, user.SubscriptionPlan)
	assert.True(t, hash.CheckPassword("password123", user.Password))

	// 注册成功后验证码作废
	_, ok := verifRepo.codes["new@example.com"]
	assert.False(t, ok)

	stored, err := userRepo.FindByEmail("new@example.com")
	require.NoError(t, err)
	assert.Equal(t, "newbie", stored.Username)
}

func TestRegisterWithVerificationRejectsBadCode(t *testing.T) {
	userRepo, verifRepo, _, svc := newVerificationFixture()
	verifRepo.codes["new@example.com"] = "424242"

	_, err := svc.RegisterWithVerification(context.Background(), "new@example.com", "newbie", "password123", "", "000000")
	assert.ErrorIs(t, err, ErrInvalidCode)
	assert.Empty(t, userRepo.byEmail)
}

func TestForgotPasswordSilentOnUnknownEmail(t *testing.T) {
	_, verifRepo, mail, svc := newVerificationFixture()

	err := svc.ForgotPassword(context.Background(), "ghost@example.com")
	assert.NoError(t, err)
	assert.Empty(t, verifRepo.tokens)
	assert.Empty(t, mail.tokens)
}

func TestResetPasswordFlow(t *testing.T) {
	userRepo, _, mail, svc := newVerificationFixture()
	ctx := context.Background()
	require.NoError(t, userRepo.Create(&model.User{Email: "u@example.com", Username: "u", Password: "old-hash"}))

	require.NoError(t, svc.ForgotPassword(ctx, "u@example.com"))
	tkn, ok := mail.tokens["u@example.com"]
	require.True(t, ok)
	require.NotEmpty(t, tkn)

	// 令牌有效期内可查出绑定邮箱
	email, err := svc.VerifyResetToken(ctx, tkn)
	require.NoError(t, err)
	assert.Equal(t, "u@example.com", email)

	require.NoError(t, svc.ResetPassword(ctx, tkn, "brand-new-pass"))
	updated, err := userRepo.FindByEmail("u@example.com")
	require.NoError(t, err)
	assert.True(t, hash.CheckPassword("brand-new-pass", updated.Password))

	// 令牌一次性，使用后立即失效
	_, err = svc.VerifyResetToken(ctx, tkn)
	assert.ErrorIs(t, err, ErrInvalidResetToken)
	err = svc.ResetPassword(ctx, tkn, "another-pass")
	assert.ErrorIs(t, err, ErrInvalidResetToken)
}

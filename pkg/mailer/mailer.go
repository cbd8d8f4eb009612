// Package mailer 负责发送验证码与密码重置邮件。
package mailer

import (
	"fmt"
	"net/smtp"
	"strings"

	"chatpulse-go/internal/config"
	"chatpulse-go/pkg/log"
)

// Mailer 定义了验证流程所需的发信操作。
type Mailer interface {
	SendVerificationCode(toEmail, code string) error
	SendPasswordReset(toEmail, token string) error
}

// smtpMailer 是 Mailer 接口的 SMTP 实现。
// 未配置账号密码时进入开发模式，邮件内容只落日志不真正发送。
type smtpMailer struct {
	cfg config.SMTPConfig
}

// NewMailer 创建一个新的 Mailer 实例。
func NewMailer(cfg config.SMTPConfig) Mailer {
	return &smtpMailer{cfg: cfg}
}

// SendVerificationCode 发送注册验证码邮件。
func (m *smtpMailer) SendVerificationCode(toEmail, code string) error {
	subject := "ChatPulse 邮箱验证码"
	body := fmt.Sprintf("您的验证码是 %s，10 分钟内有效。", code)
	if !m.configured() {
		log.Infof("[Mailer] 开发模式，验证码邮件未发送 to=%s code=%s", toEmail, code)
		return nil
	}
	return m.send(toEmail, subject, body)
}

// SendPasswordReset 发送密码重置链接邮件。
func (m *smtpMailer) SendPasswordReset(toEmail, token string) error {
	resetURL := m.cfg.ResetURL
	if resetURL == "" {
		resetURL = "http://localhost:3000/reset-password"
	}
	link := fmt.Sprintf("%s?token=%s", resetURL, token)
	subject := "ChatPulse 密码重置"
	body := fmt.Sprintf("请点击以下链接重置密码，链接 1 小时内有效：\n%s", link)
	if !m.configured() {
		log.Infof("[Mailer] 开发模式，重置邮件未发送 to=%s link=%s", toEmail, link)
		return nil
	}
	return m.send(toEmail, subject, body)
}

func (m *smtpMailer) configured() bool {
	return m.cfg.Username != "" && m.cfg.Password != ""
}

// send 通过 SMTP 发送一封纯文本邮件。
func (m *smtpMailer) send(toEmail, subject, body string) error {
	from := m.cfg.From
	if from == "" {
		from = m.cfg.Username
	}

	var msg strings.Builder
	msg.WriteString(fmt.Sprintf("From: %s\r\n", from))
	msg.WriteString(fmt.Sprintf("To: %s\r\n", toEmail))
	msg.WriteString(fmt.Sprintf("Subject: %s\r\n", subject))
	msg.WriteString("Content-Type: text/plain; charset=UTF-8\r\n")
	msg.WriteString("\r\n")
	msg.WriteString(body)

	addr := fmt.Sprintf("%s:%d", m.cfg.Host, m.cfg.Port)
	auth := smtp.PlainAuth("", m.cfg.Username, m.cfg.Password, m.cfg.Host)
	if err := smtp.SendMail(addr, auth, from, []string{toEmail}, []byte(msg.String())); err != nil {
		return fmt.Errorf("发送邮件失败: %w", err)
	}
	return nil
}

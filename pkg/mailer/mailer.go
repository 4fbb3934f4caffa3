// Package mailer 发送外部邮件（导师审批请求、学生审批结果通知）。
package mailer

import (
	"context"
	"errors"
	"fmt"
	"net/mail"

	gomail "github.com/wneessen/go-mail"
	"go.uber.org/zap"

	"nextstep/backend/config"
)

var (
	ErrNotConfigured  = errors.New("邮件服务未配置")
	ErrInvalidAddress = errors.New("收件人地址无效")
)

// Message 一封待发送的邮件
type Message struct {
	To      string
	Subject string
	Body    string
	HTML    bool
}

// Sender 邮件发送接口；失败（含超时）必须以 error 返回，调用方不做重试
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// SMTPSender 基于 SMTP 的 Sender 实现
type SMTPSender struct {
	cfg    config.MailConfig
	logger *zap.Logger
}

// NewSMTPSender 创建 SMTP 发送器
func NewSMTPSender(cfg config.MailConfig, logger *zap.Logger) *SMTPSender {
	return &SMTPSender{cfg: cfg, logger: logger}
}

// Send 实现 Sender；整个会话受 ctx 截止时间与 mail.timeout 共同约束
func (s *SMTPSender) Send(ctx context.Context, msg Message) error {
	if s.cfg.SMTPHost == "" {
		return ErrNotConfigured
	}
	m, err := buildMessage(s.cfg.From, msg)
	if err != nil {
		return err
	}

	if s.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.Timeout)
		defer cancel()
	}

	client, err := s.newClient()
	if err != nil {
		return fmt.Errorf("创建 SMTP 客户端失败: %w", err)
	}
	if err := client.DialAndSendWithContext(ctx, m); err != nil {
		return fmt.Errorf("发送邮件失败: %w", err)
	}

	s.logger.Info("邮件发送成功",
		zap.String("to", msg.To),
		zap.String("subject", msg.Subject),
	)
	return nil
}

func (s *SMTPSender) newClient() (*gomail.Client, error) {
	opts := []gomail.Option{
		gomail.WithPort(s.cfg.SMTPPort),
		gomail.WithTLSPolicy(gomail.TLSOpportunistic),
	}
	if s.cfg.Timeout > 0 {
		opts = append(opts, gomail.WithTimeout(s.cfg.Timeout))
	}
	if s.cfg.Username != "" {
		opts = append(opts,
			gomail.WithSMTPAuth(gomail.SMTPAuthPlain),
			gomail.WithUsername(s.cfg.Username),
			gomail.WithPassword(s.cfg.Password),
		)
	}
	return gomail.NewClient(s.cfg.SMTPHost, opts...)
}

// buildMessage 组装邮件；正文采用 quoted-printable 编码，长行会被折行
func buildMessage(from string, msg Message) (*gomail.Msg, error) {
	if _, err := mail.ParseAddress(msg.To); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidAddress, msg.To)
	}

	m := gomail.NewMsg()
	if err := m.From(from); err != nil {
		return nil, fmt.Errorf("发件人地址无效: %w", err)
	}
	if err := m.To(msg.To); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidAddress, msg.To)
	}
	m.Subject(msg.Subject)
	m.SetDate()
	m.SetMessageID()

	contentType := gomail.TypeTextPlain
	if msg.HTML {
		contentType = gomail.TypeTextHTML
	}
	m.SetBodyString(contentType, msg.Body)
	return m, nil
}

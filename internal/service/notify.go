package service

import (
	"bytes"
	"context"
	"embed"
	"html/template"

	"go.uber.org/zap"

	"nextstep/backend/internal/model"
	"nextstep/backend/internal/repository"
)

//go:embed templates/*.html
var templateFS embed.FS

var emailTemplates = template.Must(template.ParseFS(templateFS, "templates/*.html"))

// mentorRequestData 导师审批请求邮件数据
type mentorRequestData struct {
	StudentName string
	Month       int
	Year        int
	Weeks       []model.WeeklyEntry
	ApproveURL  string
	RejectURL   string
	ExpiresAt   string
}

// decisionData 审批结果邮件数据
type decisionData struct {
	Month           int
	Year            int
	Status          string
	Feedback        string
	RejectionReason string
	Rejected        bool
}

func renderTemplate(name string, data interface{}) (string, error) {
	var buf bytes.Buffer
	if err := emailTemplates.ExecuteTemplate(&buf, name, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// InAppNotifier 站内通知投递；失败只记录日志，不向调用方传播
type InAppNotifier interface {
	Notify(ctx context.Context, recipientID, content, severity, relatedType, relatedID string)
	NotifyRoles(ctx context.Context, content, severity, relatedType, relatedID string, roles ...string)
}

type inAppNotifier struct {
	repo   *repository.Repository
	logger *zap.Logger
}

// NewInAppNotifier 创建站内通知投递器
func NewInAppNotifier(repo *repository.Repository, logger *zap.Logger) InAppNotifier {
	return &inAppNotifier{repo: repo, logger: logger}
}

func (n *inAppNotifier) Notify(ctx context.Context, recipientID, content, severity, relatedType, relatedID string) {
	notification := &model.Notification{
		UserID:   recipientID,
		Severity: severity,
		Content:  content,
	}
	if relatedType != "" {
		notification.RelatedType = &relatedType
	}
	if relatedID != "" {
		notification.RelatedID = &relatedID
	}

	if err := n.repo.Notification.Create(ctx, notification); err != nil {
		n.logger.Warn("创建站内通知失败",
			zap.String("recipient_id", recipientID),
			zap.String("related_type", relatedType),
			zap.Error(err),
		)
	}
}

// NotifyRoles 通知指定角色的全部员工（协调员等）
func (n *inAppNotifier) NotifyRoles(ctx context.Context, content, severity, relatedType, relatedID string, roles ...string) {
	users, err := n.repo.User.ListByRole(ctx, roles...)
	if err != nil {
		n.logger.Warn("查询通知收件人失败", zap.Strings("roles", roles), zap.Error(err))
		return
	}
	if len(users) == 0 {
		n.logger.Debug("无可通知的员工", zap.Strings("roles", roles))
		return
	}
	for _, u := range users {
		n.Notify(ctx, u.UserID, content, severity, relatedType, relatedID)
	}
}

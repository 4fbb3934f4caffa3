package service

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"nextstep/backend/config"
	"nextstep/backend/internal/dto"
	"nextstep/backend/internal/model"
	"nextstep/backend/internal/repository"
	pkgerrors "nextstep/backend/pkg/errors"
	"nextstep/backend/pkg/jwt"
	"nextstep/backend/pkg/lock"
	"nextstep/backend/pkg/mailer"
)

// ── 审批流程业务错误 ──

var (
	ErrMissingMentorContact = errors.New("未找到导师邮箱，请先提交包含导师邮箱的实习登记表")
	ErrNotifierFailure      = errors.New("导师邮件发送失败")
	ErrSubmissionCancelled  = errors.New("提交已取消，请重试")
	ErrInvalidDecision      = errors.New("审批结果只能是 Approved 或 Rejected")
	ErrAlreadyFinalized     = errors.New("日志本已审批，不能重复审批")
	ErrLogbookNotPending    = errors.New("日志本不在待审批状态")
	ErrMentorLinkInvalid    = errors.New("审批链接无效")
	ErrMentorLinkExpired    = errors.New("审批链接已过期")
	ErrMentorLinkUsed       = errors.New("审批链接已使用")
)

// SubmitOutcome 提交流程的最终结果
type SubmitOutcome string

const (
	// SubmitOutcomeNotified 日志本为 Pending 且导师邮件已发出
	SubmitOutcomeNotified SubmitOutcome = "notified"
	// SubmitOutcomeReverted 邮件发送失败，日志本已回滚为 Draft
	SubmitOutcomeReverted SubmitOutcome = "reverted"
)

// SubmitResult 提交流程结果；Outcome 为 reverted 时同时返回 ErrSubmissionCancelled
type SubmitResult struct {
	Outcome     SubmitOutcome
	Logbook     *dto.LogbookResponse
	MentorEmail string
}

// MentorDecision 导师审批决定
type MentorDecision struct {
	Status          string
	Comments        string
	RejectionReason string
}

// TokenBlacklist 导师链接一次性校验存储（Redis 实现，可为空）
type TokenBlacklist interface {
	BlacklistToken(ctx context.Context, jti string, ttl time.Duration) error
	IsBlacklisted(ctx context.Context, jti string) (bool, error)
}

// ApprovalService 日志本审批流程
//
// 同一日志本的提交与审批通过 lock.Locker 串行化，状态写入均为条件更新。
// Submit 一旦开始写入便与调用方的取消解绑，必定以 notified 或 reverted 之一结束。
type ApprovalService interface {
	Submit(ctx context.Context, logbookID, studentID string) (*SubmitResult, error)
	GetForMentor(ctx context.Context, logbookID, token string) (*dto.MentorLogbookResponse, error)
	ApplyMentorDecision(ctx context.Context, logbookID, token string, decision MentorDecision) (*dto.MentorDecisionResponse, error)
}

type approvalService struct {
	repo      *repository.Repository
	locker    lock.Locker
	sender    mailer.Sender
	notifier  InAppNotifier
	jwtMgr    *jwt.Manager
	blacklist TokenBlacklist
	cfg       config.WorkflowConfig
	linkBase  string
	logger    *zap.Logger
	now       func() time.Time
}

// NewApprovalService 创建 ApprovalService 实例；blacklist 为 nil 时不做链接一次性校验
func NewApprovalService(
	cfg *config.Config,
	repo *repository.Repository,
	locker lock.Locker,
	sender mailer.Sender,
	notifier InAppNotifier,
	jwtMgr *jwt.Manager,
	blacklist TokenBlacklist,
	logger *zap.Logger,
) ApprovalService {
	return &approvalService{
		repo:      repo,
		locker:    locker,
		sender:    sender,
		notifier:  notifier,
		jwtMgr:    jwtMgr,
		blacklist: blacklist,
		cfg:       cfg.Workflow,
		linkBase:  strings.TrimRight(cfg.Server.FrontendURL, "/"),
		logger:    logger,
		now:       time.Now,
	}
}

// ═══════════════════════════════════════════════════════════
// Submit：Pending 写入 → 发送导师邮件 → 失败则补偿回 Draft
// ═══════════════════════════════════════════════════════════

func (s *approvalService) Submit(ctx context.Context, logbookID, studentID string) (*SubmitResult, error) {
	release, err := s.acquire(ctx, logbookID)
	if err != nil {
		return nil, err
	}
	defer release()

	// 持锁后不再响应调用方取消，保证流程完整结束
	ctx = context.WithoutCancel(ctx)

	logbook, err := loadLogbook(ctx, s.repo, s.logger, logbookID)
	if err != nil {
		return nil, err
	}
	if studentID != "" && logbook.StudentID != studentID {
		return nil, ErrNotLogbookOwner
	}
	if !logbook.IsEditable() {
		return nil, ErrImmutableState
	}
	if err := checkSequence(ctx, s.repo, s.logger, logbook.StudentID, logbook.Month, logbook.Year); err != nil {
		return nil, err
	}

	mentorEmail, err := s.resolveMentor(ctx, logbook.StudentID)
	if err != nil {
		return nil, err
	}
	studentName := s.studentName(ctx, logbook.StudentID)

	// 1. 乐观写入 Pending
	prevStatus := logbook.Status
	prevSubmittedAt := logbook.SubmittedAt
	prevMentorEmail := logbook.MentorEmail
	prevComments, prevReason, prevDecidedAt := logbook.MentorComments, logbook.RejectionReason, logbook.DecidedAt

	now := s.now().UTC()
	logbook.Status = model.LogbookStatusPending
	logbook.SubmittedAt = &now
	logbook.MentorEmail = mentorEmail
	logbook.MentorComments = ""
	logbook.RejectionReason = ""
	logbook.DecidedAt = nil

	if err := s.repo.Logbook.UpdateStatus(ctx, logbook, prevStatus); err != nil {
		if errors.Is(err, pkgerrors.ErrOptimisticLock) {
			return nil, ErrStateConflict
		}
		s.logger.Error("写入 Pending 状态失败", zap.String("logbook_id", logbookID), zap.Error(err))
		return nil, err
	}

	// 2. 通知导师
	notifyErr := s.notifyMentor(ctx, logbook, studentName, mentorEmail)
	if notifyErr == nil {
		s.logger.Info("日志本已提交导师审批",
			zap.String("logbook_id", logbookID),
			zap.String("student_id", logbook.StudentID),
			zap.String("mentor_email", mentorEmail),
		)
		return &SubmitResult{
			Outcome:     SubmitOutcomeNotified,
			Logbook:     toLogbookResponse(logbook),
			MentorEmail: mentorEmail,
		}, nil
	}

	// 3. 补偿：回滚为 Draft，保留上一轮导师反馈
	s.logger.Warn("导师邮件发送失败，回滚日志本状态",
		zap.String("logbook_id", logbookID),
		zap.String("mentor_email", mentorEmail),
		zap.Error(notifyErr),
	)

	logbook.Status = model.LogbookStatusDraft
	logbook.SubmittedAt = prevSubmittedAt
	logbook.MentorEmail = prevMentorEmail
	logbook.MentorComments = prevComments
	logbook.RejectionReason = prevReason
	logbook.DecidedAt = prevDecidedAt
	if err := s.repo.Logbook.UpdateStatus(ctx, logbook, model.LogbookStatusPending); err != nil {
		s.logger.Error("回滚日志本状态失败",
			zap.String("logbook_id", logbookID),
			zap.Error(err),
		)
		return nil, fmt.Errorf("回滚日志本状态失败: %w", err)
	}

	return &SubmitResult{
		Outcome: SubmitOutcomeReverted,
		Logbook: toLogbookResponse(logbook),
	}, fmt.Errorf("%w: %w: %v", ErrSubmissionCancelled, ErrNotifierFailure, notifyErr)
}

// ═══════════════════════════════════════════════════════════
// GetForMentor：导师通过邮件链接查看日志本
// ═══════════════════════════════════════════════════════════

func (s *approvalService) GetForMentor(ctx context.Context, logbookID, token string) (*dto.MentorLogbookResponse, error) {
	if _, err := s.verifyToken(ctx, logbookID, token); err != nil {
		return nil, err
	}

	logbook, err := loadLogbook(ctx, s.repo, s.logger, logbookID)
	if err != nil {
		return nil, err
	}

	result := &dto.MentorLogbookResponse{
		Logbook:     *toLogbookResponse(logbook),
		StudentName: "Student",
	}
	if student, err := s.repo.Student.GetByID(ctx, logbook.StudentID); err == nil {
		result.StudentName = student.FullName()
		result.CBNumber = student.CBNumber
	}
	if placement, err := s.repo.Placement.GetByStudent(ctx, logbook.StudentID); err == nil {
		result.CompanyName = placement.CompanyName
	}
	return result, nil
}

// ═══════════════════════════════════════════════════════════
// ApplyMentorDecision：Pending → Approved / Rejected
// ═══════════════════════════════════════════════════════════

func (s *approvalService) ApplyMentorDecision(ctx context.Context, logbookID, token string, decision MentorDecision) (*dto.MentorDecisionResponse, error) {
	if decision.Status != model.LogbookStatusApproved && decision.Status != model.LogbookStatusRejected {
		return nil, ErrInvalidDecision
	}

	claims, err := s.verifyToken(ctx, logbookID, token)
	if err != nil {
		return nil, err
	}

	release, err := s.acquire(ctx, logbookID)
	if err != nil {
		return nil, err
	}
	defer release()

	logbook, err := loadLogbook(ctx, s.repo, s.logger, logbookID)
	if err != nil {
		return nil, err
	}
	if logbook.IsFinalized() {
		return nil, ErrAlreadyFinalized
	}
	if logbook.Status != model.LogbookStatusPending {
		return nil, ErrLogbookNotPending
	}
	// 链接须签发于本轮提交之后，旧链接不能审批新一轮提交
	if logbook.SubmittedAt != nil && claims.IssuedAt != nil &&
		claims.IssuedAt.Time.Before(logbook.SubmittedAt.Truncate(time.Second)) {
		return nil, ErrMentorLinkInvalid
	}

	now := s.now().UTC()
	logbook.Status = decision.Status
	logbook.DecidedAt = &now
	if decision.Comments != "" {
		logbook.MentorComments = decision.Comments
	}
	if decision.Status == model.LogbookStatusRejected {
		logbook.RejectionReason = decision.RejectionReason
	} else {
		logbook.RejectionReason = ""
	}

	if err := s.repo.Logbook.UpdateStatus(ctx, logbook, model.LogbookStatusPending); err != nil {
		if errors.Is(err, pkgerrors.ErrOptimisticLock) {
			return nil, s.classifyConflict(ctx, logbookID)
		}
		s.logger.Error("写入审批结果失败", zap.String("logbook_id", logbookID), zap.Error(err))
		return nil, err
	}

	s.logger.Info("导师已审批日志本",
		zap.String("logbook_id", logbookID),
		zap.String("status", decision.Status),
	)

	// 决定已生效，以下步骤失败只记录日志
	bgCtx := context.WithoutCancel(ctx)
	s.consumeToken(bgCtx, claims)
	s.notifyStudent(bgCtx, logbook)

	return &dto.MentorDecisionResponse{LogbookID: logbook.LogbookID, Status: logbook.Status}, nil
}

// ── 内部辅助方法 ──

func (s *approvalService) acquire(ctx context.Context, logbookID string) (func(), error) {
	wait := s.cfg.LockWait
	if wait <= 0 {
		wait = 5 * time.Second
	}
	lockCtx, cancel := context.WithTimeout(ctx, wait)
	defer cancel()

	release, err := s.locker.Acquire(lockCtx, "logbook:"+logbookID)
	if err != nil {
		s.logger.Warn("获取日志本锁失败", zap.String("logbook_id", logbookID), zap.Error(err))
		if errors.Is(err, pkgerrors.ErrLockTimeout) {
			return nil, pkgerrors.ErrLockTimeout
		}
		return nil, err
	}
	return release, nil
}

// resolveMentor 导师邮箱只以实习登记表为准
func (s *approvalService) resolveMentor(ctx context.Context, studentID string) (string, error) {
	placement, err := s.repo.Placement.GetByStudent(ctx, studentID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", ErrMissingMentorContact
		}
		s.logger.Error("查询实习登记表失败", zap.String("student_id", studentID), zap.Error(err))
		return "", err
	}
	email := strings.TrimSpace(placement.MentorEmail)
	if email == "" {
		return "", ErrMissingMentorContact
	}
	return email, nil
}

func (s *approvalService) studentName(ctx context.Context, studentID string) string {
	student, err := s.repo.Student.GetByID(ctx, studentID)
	if err != nil {
		return "Student"
	}
	return student.FullName()
}

func (s *approvalService) notifyMentor(ctx context.Context, logbook *model.Logbook, studentName, mentorEmail string) error {
	token, claims, err := s.jwtMgr.GenerateMentorToken(logbook.LogbookID, mentorEmail)
	if err != nil {
		return fmt.Errorf("生成审批链接失败: %w", err)
	}

	body, err := renderTemplate("mentor_request.html", mentorRequestData{
		StudentName: studentName,
		Month:       logbook.Month,
		Year:        logbook.Year,
		Weeks:       logbook.Weeks,
		ApproveURL:  s.mentorLink(logbook.LogbookID, token, "approve"),
		RejectURL:   s.mentorLink(logbook.LogbookID, token, "reject"),
		ExpiresAt:   claims.ExpiresAt.Time.UTC().Format("2006-01-02"),
	})
	if err != nil {
		return fmt.Errorf("渲染导师邮件失败: %w", err)
	}

	timeout := s.cfg.NotifierTimeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	sendCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	return s.sender.Send(sendCtx, mailer.Message{
		To:      mentorEmail,
		Subject: "Logbook Approval Request - " + studentName,
		Body:    body,
		HTML:    true,
	})
}

func (s *approvalService) mentorLink(logbookID, token, action string) string {
	q := url.Values{}
	q.Set("token", token)
	q.Set("action", action)
	return fmt.Sprintf("%s/verify-logbook/%s?%s", s.linkBase, url.PathEscape(logbookID), q.Encode())
}

func (s *approvalService) verifyToken(ctx context.Context, logbookID, token string) (*jwt.MentorClaims, error) {
	if token == "" {
		return nil, ErrMentorLinkInvalid
	}
	claims, err := s.jwtMgr.ParseMentorToken(token)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrMentorLinkExpired
		}
		return nil, ErrMentorLinkInvalid
	}
	if claims.LogbookID != logbookID {
		return nil, ErrMentorLinkInvalid
	}

	if s.blacklist != nil {
		used, err := s.blacklist.IsBlacklisted(ctx, claims.ID)
		if err != nil {
			s.logger.Warn("检查审批链接状态失败，降级放行", zap.Error(err))
		} else if used {
			return nil, ErrMentorLinkUsed
		}
	}
	return claims, nil
}

func (s *approvalService) consumeToken(ctx context.Context, claims *jwt.MentorClaims) {
	if s.blacklist == nil || claims.ExpiresAt == nil {
		return
	}
	ttl := time.Until(claims.ExpiresAt.Time)
	if err := s.blacklist.BlacklistToken(ctx, claims.ID, ttl); err != nil {
		s.logger.Warn("标记审批链接已使用失败", zap.String("jti", claims.ID), zap.Error(err))
	}
}

// classifyConflict 条件更新未命中时重新读取，区分“已被审批”与其他并发修改
func (s *approvalService) classifyConflict(ctx context.Context, logbookID string) error {
	current, err := s.repo.Logbook.GetByID(ctx, logbookID)
	if err != nil {
		return ErrStateConflict
	}
	if current.IsFinalized() {
		return ErrAlreadyFinalized
	}
	return ErrStateConflict
}

func (s *approvalService) notifyStudent(ctx context.Context, logbook *model.Logbook) {
	severity := model.SeveritySuccess
	if logbook.Status == model.LogbookStatusRejected {
		severity = model.SeverityError
	}
	s.notifier.Notify(ctx, logbook.StudentID,
		fmt.Sprintf("Your logbook for %s was %s by your mentor.", periodLabel(logbook.Month, logbook.Year), logbook.Status),
		severity, "logbook", logbook.LogbookID)

	student, err := s.repo.Student.GetByID(ctx, logbook.StudentID)
	if err != nil {
		s.logger.Warn("查询学生信息失败，跳过结果邮件", zap.String("student_id", logbook.StudentID), zap.Error(err))
		return
	}
	if student.Email == "" {
		s.logger.Warn("学生无邮箱，跳过结果邮件", zap.String("student_id", logbook.StudentID))
		return
	}

	body, err := renderTemplate("decision.html", decisionData{
		Month:           logbook.Month,
		Year:            logbook.Year,
		Status:          logbook.Status,
		Feedback:        logbook.MentorComments,
		RejectionReason: logbook.RejectionReason,
		Rejected:        logbook.Status == model.LogbookStatusRejected,
	})
	if err != nil {
		s.logger.Error("渲染结果邮件失败", zap.Error(err))
		return
	}

	timeout := s.cfg.NotifierTimeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	sendCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := s.sender.Send(sendCtx, mailer.Message{
		To:      student.Email,
		Subject: fmt.Sprintf("Logbook %s by Mentor", logbook.Status),
		Body:    body,
		HTML:    true,
	}); err != nil {
		s.logger.Warn("发送审批结果邮件失败",
			zap.String("logbook_id", logbook.LogbookID),
			zap.String("student_id", logbook.StudentID),
			zap.Error(err),
		)
	}
}

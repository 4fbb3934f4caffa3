package service

import (
	"go.uber.org/zap"

	"nextstep/backend/config"
	"nextstep/backend/internal/repository"
	"nextstep/backend/pkg/jwt"
	"nextstep/backend/pkg/lock"
	"nextstep/backend/pkg/mailer"
	"nextstep/backend/pkg/redis"
	"nextstep/backend/pkg/storage"
)

// Service 所有 Service 的聚合入口
type Service struct {
	Logbook      LogbookService
	Approval     ApprovalService
	Eligibility  EligibilityService
	Submission   SubmissionService
	Placement    PlacementService
	Student      StudentService
	Notification NotificationService
	Reminder     *ReminderJob
}

// NewService 创建 Service 聚合；rdb 为 nil 时导师链接不做一次性校验
func NewService(
	cfg *config.Config,
	repo *repository.Repository,
	jwtMgr *jwt.Manager,
	locker lock.Locker,
	sender mailer.Sender,
	store storage.Store,
	rdb *redis.Client,
	logger *zap.Logger,
) *Service {
	notifier := NewInAppNotifier(repo, logger)
	eligibility := NewEligibilityService(repo, logger)

	var blacklist TokenBlacklist
	if rdb != nil {
		blacklist = rdb
	}

	return &Service{
		Logbook:      NewLogbookService(repo, logger),
		Approval:     NewApprovalService(cfg, repo, locker, sender, notifier, jwtMgr, blacklist, logger),
		Eligibility:  eligibility,
		Submission:   NewSubmissionService(cfg, repo, eligibility, locker, store, notifier, logger),
		Placement:    NewPlacementService(repo, notifier, logger),
		Student:      NewStudentService(repo, logger),
		Notification: NewNotificationService(repo, logger),
		Reminder:     NewReminderJob(repo, notifier, logger),
	}
}

package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"nextstep/backend/internal/model"
	"nextstep/backend/internal/repository"
)

// ReminderJobName 实习结束提醒任务名
const ReminderJobName = "placement-end-reminder"

// 提醒窗口
const (
	coordinatorReminderWindow = 30 * 24 * time.Hour
	studentReminderWindow     = 14 * 24 * time.Hour
)

// ReminderJob 实习即将结束时的一次性提醒：
// 结束前一个月通知协调员，结束前两周通知学生本人
type ReminderJob struct {
	repo     *repository.Repository
	notifier InAppNotifier
	logger   *zap.Logger
	now      func() time.Time
}

// NewReminderJob 创建提醒任务
func NewReminderJob(repo *repository.Repository, notifier InAppNotifier, logger *zap.Logger) *ReminderJob {
	return &ReminderJob{repo: repo, notifier: notifier, logger: logger, now: time.Now}
}

// Name 实现 scheduler.Job
func (j *ReminderJob) Name() string { return ReminderJobName }

// Run 实现 scheduler.Job；先抢占标记再发送，多实例并发执行也只提醒一次
func (j *ReminderJob) Run(ctx context.Context) error {
	now := j.now().UTC()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)

	coordinators, err := j.remind(ctx, today, coordinatorReminderWindow, repository.ReminderOneMonth, func(form *model.PlacementForm, label string) {
		j.notifier.NotifyRoles(ctx,
			fmt.Sprintf("Internship for %s ends on %s (in about one month).", label, form.EndDate.Format(dateLayout)),
			model.SeverityInfo, "placement", form.PlacementID, model.RoleCoordinator, model.RoleAdmin)
	})
	if err != nil {
		return err
	}

	students, err := j.remind(ctx, today, studentReminderWindow, repository.ReminderTwoWeeks, func(form *model.PlacementForm, _ string) {
		j.notifier.Notify(ctx, form.StudentID,
			fmt.Sprintf("Your internship ends on %s. Please make sure all logbooks are approved and prepare your final submission.", form.EndDate.Format(dateLayout)),
			model.SeverityWarning, "placement", form.PlacementID)
	})
	if err != nil {
		return err
	}

	j.logger.Info("实习结束提醒已处理",
		zap.Int("coordinator_reminders", coordinators),
		zap.Int("student_reminders", students),
	)
	return nil
}

func (j *ReminderJob) remind(ctx context.Context, today time.Time, window time.Duration, flag repository.ReminderFlag, send func(*model.PlacementForm, string)) (int, error) {
	forms, err := j.repo.Placement.ListEndingBetween(ctx, today, today.Add(window), flag)
	if err != nil {
		j.logger.Error("查询即将结束的实习失败", zap.String("flag", string(flag)), zap.Error(err))
		return 0, err
	}

	sent := 0
	for i := range forms {
		form := &forms[i]
		claimed, err := j.repo.Placement.ClaimReminder(ctx, form.PlacementID, flag)
		if err != nil {
			j.logger.Warn("抢占提醒标记失败", zap.String("placement_id", form.PlacementID), zap.Error(err))
			continue
		}
		if !claimed {
			continue
		}
		send(form, j.studentLabel(ctx, form.StudentID))
		sent++
	}
	return sent, nil
}

func (j *ReminderJob) studentLabel(ctx context.Context, studentID string) string {
	st, err := j.repo.Student.GetByID(ctx, studentID)
	if err != nil {
		return studentID
	}
	return fmt.Sprintf("%s (%s)", st.FullName(), st.CBNumber)
}

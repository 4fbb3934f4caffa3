package repository

import (
	"context"

	"gorm.io/gorm"

	"nextstep/backend/internal/model"
	pkgerrors "nextstep/backend/pkg/errors"
)

// LogbookRepository 日志本数据访问接口
//
// 所有状态变更都是条件更新：WHERE status = 期望状态 AND version = 读取时版本，
// 未命中返回 pkgerrors.ErrOptimisticLock，由 Service 层决定重新读取或报错。
type LogbookRepository interface {
	Create(ctx context.Context, logbook *model.Logbook) error
	GetByID(ctx context.Context, id string) (*model.Logbook, error)
	GetByPeriod(ctx context.Context, studentID string, month, year int) (*model.Logbook, error)
	ListByStudent(ctx context.Context, studentID string) ([]model.Logbook, error)
	CountByStatus(ctx context.Context, studentID, status string) (int64, error)
	ListLatestSubmitted(ctx context.Context) ([]model.Logbook, error)
	UpdateWeeks(ctx context.Context, logbook *model.Logbook, expectedStatus string) error
	UpdateStatus(ctx context.Context, logbook *model.Logbook, expectedStatus string) error
	DeleteByStudent(ctx context.Context, studentID string) error
}

type logbookRepo struct {
	db *gorm.DB
}

// NewLogbookRepo 创建 LogbookRepository 实例
func NewLogbookRepo(db *gorm.DB) LogbookRepository {
	return &logbookRepo{db: db}
}

func (r *logbookRepo) Create(ctx context.Context, logbook *model.Logbook) error {
	if logbook.Weeks == nil {
		logbook.Weeks = []model.WeeklyEntry{}
	}
	if logbook.Version == 0 {
		logbook.Version = 1
	}
	return r.db.WithContext(ctx).Create(logbook).Error
}

func (r *logbookRepo) GetByID(ctx context.Context, id string) (*model.Logbook, error) {
	var logbook model.Logbook
	err := r.db.WithContext(ctx).
		Where("logbook_id = ?", id).
		First(&logbook).Error
	if err != nil {
		return nil, err
	}
	return &logbook, nil
}

func (r *logbookRepo) GetByPeriod(ctx context.Context, studentID string, month, year int) (*model.Logbook, error) {
	var logbook model.Logbook
	err := r.db.WithContext(ctx).
		Where("student_id = ? AND month = ? AND year = ?", studentID, month, year).
		First(&logbook).Error
	if err != nil {
		return nil, err
	}
	return &logbook, nil
}

func (r *logbookRepo) ListByStudent(ctx context.Context, studentID string) ([]model.Logbook, error) {
	var logbooks []model.Logbook
	err := r.db.WithContext(ctx).
		Where("student_id = ?", studentID).
		Order("year ASC, month ASC").
		Find(&logbooks).Error
	return logbooks, err
}

func (r *logbookRepo) CountByStatus(ctx context.Context, studentID, status string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&model.Logbook{}).
		Where("student_id = ? AND status = ?", studentID, status).
		Count(&count).Error
	return count, err
}

// ListLatestSubmitted 每个学生最近一个月份的非草稿日志本
func (r *logbookRepo) ListLatestSubmitted(ctx context.Context) ([]model.Logbook, error) {
	var logbooks []model.Logbook
	err := r.db.WithContext(ctx).
		Raw(`SELECT DISTINCT ON (student_id) *
			FROM logbooks
			WHERE status <> ?
			ORDER BY student_id, year DESC, month DESC`, model.LogbookStatusDraft).
		Scan(&logbooks).Error
	return logbooks, err
}

// UpdateWeeks 写入周记录与状态（被驳回的日志本编辑后回到 Draft）
func (r *logbookRepo) UpdateWeeks(ctx context.Context, logbook *model.Logbook, expectedStatus string) error {
	oldVersion := logbook.Version
	result := r.db.WithContext(ctx).
		Model(&model.Logbook{}).
		Where("logbook_id = ? AND status = ? AND version = ?", logbook.LogbookID, expectedStatus, oldVersion).
		Updates(map[string]interface{}{
			"weeks":      logbook.Weeks,
			"status":     logbook.Status,
			"version":    oldVersion + 1,
			"updated_at": gorm.Expr("NOW()"),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return pkgerrors.ErrOptimisticLock
	}
	logbook.Version = oldVersion + 1
	return nil
}

// UpdateStatus 写入状态迁移相关字段（提交、补偿回滚、导师决定）
func (r *logbookRepo) UpdateStatus(ctx context.Context, logbook *model.Logbook, expectedStatus string) error {
	oldVersion := logbook.Version
	result := r.db.WithContext(ctx).
		Model(&model.Logbook{}).
		Where("logbook_id = ? AND status = ? AND version = ?", logbook.LogbookID, expectedStatus, oldVersion).
		Updates(map[string]interface{}{
			"status":           logbook.Status,
			"mentor_email":     logbook.MentorEmail,
			"mentor_comments":  logbook.MentorComments,
			"rejection_reason": logbook.RejectionReason,
			"submitted_at":     logbook.SubmittedAt,
			"decided_at":       logbook.DecidedAt,
			"version":          oldVersion + 1,
			"updated_at":       gorm.Expr("NOW()"),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return pkgerrors.ErrOptimisticLock
	}
	logbook.Version = oldVersion + 1
	return nil
}

func (r *logbookRepo) DeleteByStudent(ctx context.Context, studentID string) error {
	return r.db.WithContext(ctx).
		Where("student_id = ?", studentID).
		Delete(&model.Logbook{}).Error
}

package repository

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"nextstep/backend/internal/model"
)

// ReminderFlag 实习结束提醒的一次性标记列
type ReminderFlag string

const (
	ReminderOneMonth ReminderFlag = "one_month_notification_sent"
	ReminderTwoWeeks ReminderFlag = "two_week_notification_sent"
)

// PlacementRepository 实习登记表数据访问接口
type PlacementRepository interface {
	Create(ctx context.Context, form *model.PlacementForm) error
	GetByStudent(ctx context.Context, studentID string) (*model.PlacementForm, error)
	List(ctx context.Context, offset, limit int) ([]model.PlacementForm, int64, error)
	ListEndingBetween(ctx context.Context, from, to time.Time, flag ReminderFlag) ([]model.PlacementForm, error)
	ClaimReminder(ctx context.Context, placementID string, flag ReminderFlag) (bool, error)
	DeleteByStudent(ctx context.Context, studentID string) error
}

type placementRepo struct {
	db *gorm.DB
}

// NewPlacementRepo 创建 PlacementRepository 实例
func NewPlacementRepo(db *gorm.DB) PlacementRepository {
	return &placementRepo{db: db}
}

func (r *placementRepo) Create(ctx context.Context, form *model.PlacementForm) error {
	return r.db.WithContext(ctx).Create(form).Error
}

func (r *placementRepo) GetByStudent(ctx context.Context, studentID string) (*model.PlacementForm, error) {
	var form model.PlacementForm
	err := r.db.WithContext(ctx).
		Where("student_id = ?", studentID).
		First(&form).Error
	if err != nil {
		return nil, err
	}
	return &form, nil
}

func (r *placementRepo) List(ctx context.Context, offset, limit int) ([]model.PlacementForm, int64, error) {
	var forms []model.PlacementForm
	var total int64

	db := r.db.WithContext(ctx).Model(&model.PlacementForm{})

	if err := db.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	if err := db.Offset(offset).Limit(limit).
		Order("created_at DESC").
		Find(&forms).Error; err != nil {
		return nil, 0, err
	}

	return forms, total, nil
}

// ListEndingBetween 查询结束日期落在 [from, to] 且尚未发送指定提醒的登记表
func (r *placementRepo) ListEndingBetween(ctx context.Context, from, to time.Time, flag ReminderFlag) ([]model.PlacementForm, error) {
	if err := flag.validate(); err != nil {
		return nil, err
	}
	var forms []model.PlacementForm
	err := r.db.WithContext(ctx).
		Where("end_date >= ? AND end_date <= ?", from, to).
		Where(string(flag)+" = ?", false).
		Order("end_date ASC").
		Find(&forms).Error
	return forms, err
}

// ClaimReminder 条件更新抢占提醒标记；返回 false 表示已被其他执行抢占
func (r *placementRepo) ClaimReminder(ctx context.Context, placementID string, flag ReminderFlag) (bool, error) {
	if err := flag.validate(); err != nil {
		return false, err
	}
	result := r.db.WithContext(ctx).
		Model(&model.PlacementForm{}).
		Where("placement_id = ? AND "+string(flag)+" = ?", placementID, false).
		Updates(map[string]interface{}{
			string(flag): true,
			"updated_at":  gorm.Expr("NOW()"),
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

func (r *placementRepo) DeleteByStudent(ctx context.Context, studentID string) error {
	return r.db.WithContext(ctx).
		Where("student_id = ?", studentID).
		Delete(&model.PlacementForm{}).Error
}

func (f ReminderFlag) validate() error {
	switch f {
	case ReminderOneMonth, ReminderTwoWeeks:
		return nil
	default:
		return fmt.Errorf("未知的提醒标记: %s", string(f))
	}
}

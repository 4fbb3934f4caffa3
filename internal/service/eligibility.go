package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"nextstep/backend/internal/dto"
	"nextstep/backend/internal/model"
	"nextstep/backend/internal/repository"
)

// ExpectedMonths 实习期内应提交的日志本数量：跨越的自然月数，至少为 1
func ExpectedMonths(start, end time.Time) int {
	n := (end.Year()-start.Year())*12 + int(end.Month()) - int(start.Month()) + 1
	if n < 1 {
		return 1
	}
	return n
}

// EligibilityService 结业材料提交资格判断
type EligibilityService interface {
	// IsComplete 已批准日志本数量 >= 实习期应提交数量；无实习登记表时恒为 false
	IsComplete(ctx context.Context, studentID string) (bool, error)
	Progress(ctx context.Context, studentID string) (*dto.LogbookProgress, error)
}

type eligibilityService struct {
	repo   *repository.Repository
	logger *zap.Logger
}

// NewEligibilityService 创建 EligibilityService 实例
func NewEligibilityService(repo *repository.Repository, logger *zap.Logger) EligibilityService {
	return &eligibilityService{repo: repo, logger: logger}
}

func (s *eligibilityService) IsComplete(ctx context.Context, studentID string) (bool, error) {
	p, err := s.Progress(ctx, studentID)
	if err != nil {
		return false, err
	}
	return p.Complete, nil
}

func (s *eligibilityService) Progress(ctx context.Context, studentID string) (*dto.LogbookProgress, error) {
	logbooks, err := s.repo.Logbook.ListByStudent(ctx, studentID)
	if err != nil {
		s.logger.Error("查询日志本失败", zap.String("student_id", studentID), zap.Error(err))
		return nil, err
	}

	progress := &dto.LogbookProgress{ActualTotal: len(logbooks)}
	for i := range logbooks {
		if logbooks[i].Status == model.LogbookStatusApproved {
			progress.Approved++
		}
	}

	placement, err := s.repo.Placement.GetByStudent(ctx, studentID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return progress, nil
		}
		s.logger.Error("查询实习登记表失败", zap.String("student_id", studentID), zap.Error(err))
		return nil, err
	}

	progress.Expected = ExpectedMonths(placement.StartDate, placement.EndDate)
	progress.Complete = progress.Expected > 0 && progress.Approved >= progress.Expected
	return progress, nil
}

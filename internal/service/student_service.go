package service

import (
	"context"
	"errors"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"nextstep/backend/internal/repository"
)

// StudentService 学生档案管理
type StudentService interface {
	// Delete 删除学生及其日志本、结业材料、实习登记表与通知（同一事务）
	Delete(ctx context.Context, studentID string) error
}

type studentService struct {
	repo   *repository.Repository
	logger *zap.Logger
}

// NewStudentService 创建 StudentService 实例
func NewStudentService(repo *repository.Repository, logger *zap.Logger) StudentService {
	return &studentService{repo: repo, logger: logger}
}

func (s *studentService) Delete(ctx context.Context, studentID string) error {
	err := s.repo.Transaction(ctx, func(txRepo *repository.Repository) error {
		if _, err := txRepo.Student.GetByID(ctx, studentID); err != nil {
			return err
		}
		if err := txRepo.Logbook.DeleteByStudent(ctx, studentID); err != nil {
			return err
		}
		if err := txRepo.Artifact.DeleteByStudent(ctx, studentID); err != nil {
			return err
		}
		if err := txRepo.Placement.DeleteByStudent(ctx, studentID); err != nil {
			return err
		}
		if err := txRepo.Notification.DeleteByUser(ctx, studentID); err != nil {
			return err
		}
		return txRepo.Student.Delete(ctx, studentID)
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrStudentNotFound
		}
		s.logger.Error("删除学生失败", zap.String("student_id", studentID), zap.Error(err))
		return err
	}

	s.logger.Info("学生及其关联数据已删除", zap.String("student_id", studentID))
	return nil
}

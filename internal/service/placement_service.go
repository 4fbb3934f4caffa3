package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"nextstep/backend/internal/dto"
	"nextstep/backend/internal/model"
	"nextstep/backend/internal/repository"
)

// ── 实习登记表模块业务错误 ──

var (
	ErrPlacementNotFound  = errors.New("实习登记表不存在")
	ErrPlacementExists    = errors.New("已提交实习登记表，成为实习生后不能重新提交")
	ErrInvalidDateFormat  = errors.New("日期格式错误，应为 YYYY-MM-DD")
	ErrInvalidDateRange   = errors.New("结束日期必须晚于开始日期")
)

const dateLayout = "2006-01-02"

// PlacementService 实习登记表
type PlacementService interface {
	Submit(ctx context.Context, studentID string, req *dto.SubmitPlacementRequest) (*dto.PlacementResponse, error)
	GetMine(ctx context.Context, studentID string) (*dto.PlacementResponse, error)
	List(ctx context.Context, req *dto.PaginationRequest) ([]dto.PlacementResponse, int64, error)
}

type placementService struct {
	repo     *repository.Repository
	notifier InAppNotifier
	logger   *zap.Logger
}

// NewPlacementService 创建 PlacementService 实例
func NewPlacementService(repo *repository.Repository, notifier InAppNotifier, logger *zap.Logger) PlacementService {
	return &placementService{repo: repo, notifier: notifier, logger: logger}
}

// ────────────────────── Submit ──────────────────────

func (s *placementService) Submit(ctx context.Context, studentID string, req *dto.SubmitPlacementRequest) (*dto.PlacementResponse, error) {
	start, err := time.Parse(dateLayout, req.StartDate)
	if err != nil {
		return nil, ErrInvalidDateFormat
	}
	end, err := time.Parse(dateLayout, req.EndDate)
	if err != nil {
		return nil, ErrInvalidDateFormat
	}
	if !end.After(start) {
		return nil, ErrInvalidDateRange
	}

	form := &model.PlacementForm{
		StudentID:      studentID,
		CompanyName:    strings.TrimSpace(req.CompanyName),
		CompanyAddress: req.CompanyAddress,
		CompanyEmail:   req.CompanyEmail,
		Position:       strings.TrimSpace(req.Position),
		JobRole:        req.JobRole,
		Description:    req.Description,
		StartDate:      start,
		EndDate:        end,
		MentorName:     strings.TrimSpace(req.MentorName),
		MentorEmail:    strings.ToLower(strings.TrimSpace(req.MentorEmail)),
		MentorPhone:    req.MentorPhone,
	}

	var student *model.Student
	err = s.repo.Transaction(ctx, func(txRepo *repository.Repository) error {
		st, err := txRepo.Student.GetByID(ctx, studentID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrStudentNotFound
			}
			return err
		}
		student = st

		if _, err := txRepo.Placement.GetByStudent(ctx, studentID); err == nil {
			if !st.CanResubmitPlacement() {
				return ErrPlacementExists
			}
			if err := txRepo.Placement.DeleteByStudent(ctx, studentID); err != nil {
				return err
			}
		} else if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		if err := txRepo.Placement.Create(ctx, form); err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return ErrPlacementExists
			}
			return err
		}
		return txRepo.Student.UpdateStatus(ctx, studentID, model.StudentStatusIntern)
	})
	if err != nil {
		if errors.Is(err, ErrPlacementExists) || errors.Is(err, ErrStudentNotFound) {
			return nil, err
		}
		s.logger.Error("提交实习登记表失败", zap.String("student_id", studentID), zap.Error(err))
		return nil, err
	}

	s.logger.Info("实习登记表已提交",
		zap.String("student_id", studentID),
		zap.String("company", form.CompanyName),
	)

	s.notifier.NotifyRoles(context.WithoutCancel(ctx),
		"New placement form submitted by "+student.FullName()+" ("+student.CBNumber+").",
		model.SeverityInfo, "placement", form.PlacementID, model.RoleCoordinator, model.RoleAdmin)

	resp := toPlacementResponse(form)
	resp.StudentName = student.FullName()
	resp.CBNumber = student.CBNumber
	return resp, nil
}

// ────────────────────── GetMine ──────────────────────

// GetMine 尚未成为实习生的学生视为没有有效的登记表，返回 nil
func (s *placementService) GetMine(ctx context.Context, studentID string) (*dto.PlacementResponse, error) {
	student, err := s.repo.Student.GetByID(ctx, studentID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrStudentNotFound
		}
		s.logger.Error("查询学生失败", zap.String("student_id", studentID), zap.Error(err))
		return nil, err
	}
	if student.CanResubmitPlacement() {
		return nil, nil
	}

	form, err := s.repo.Placement.GetByStudent(ctx, studentID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrPlacementNotFound
		}
		s.logger.Error("查询实习登记表失败", zap.String("student_id", studentID), zap.Error(err))
		return nil, err
	}
	resp := toPlacementResponse(form)
	resp.StudentName = student.FullName()
	resp.CBNumber = student.CBNumber
	return resp, nil
}

// ────────────────────── List ──────────────────────

func (s *placementService) List(ctx context.Context, req *dto.PaginationRequest) ([]dto.PlacementResponse, int64, error) {
	forms, total, err := s.repo.Placement.List(ctx, req.GetOffset(), req.GetPageSize())
	if err != nil {
		s.logger.Error("查询实习登记表列表失败", zap.Error(err))
		return nil, 0, err
	}

	ids := make([]string, 0, len(forms))
	for i := range forms {
		ids = append(ids, forms[i].StudentID)
	}
	students, err := s.repo.Student.ListByIDs(ctx, ids)
	if err != nil {
		s.logger.Error("查询学生信息失败", zap.Error(err))
		return nil, 0, err
	}
	studentMap := make(map[string]*model.Student, len(students))
	for i := range students {
		studentMap[students[i].StudentID] = &students[i]
	}

	list := make([]dto.PlacementResponse, 0, len(forms))
	for i := range forms {
		resp := toPlacementResponse(&forms[i])
		if st, ok := studentMap[forms[i].StudentID]; ok {
			resp.StudentName = st.FullName()
			resp.CBNumber = st.CBNumber
		}
		list = append(list, *resp)
	}
	return list, total, nil
}

func toPlacementResponse(f *model.PlacementForm) *dto.PlacementResponse {
	return &dto.PlacementResponse{
		ID:             f.PlacementID,
		StudentID:      f.StudentID,
		CompanyName:    f.CompanyName,
		CompanyAddress: f.CompanyAddress,
		CompanyEmail:   f.CompanyEmail,
		Position:       f.Position,
		JobRole:        f.JobRole,
		Description:    f.Description,
		StartDate:      f.StartDate.Format(dateLayout),
		EndDate:        f.EndDate.Format(dateLayout),
		ExpectedMonths: ExpectedMonths(f.StartDate, f.EndDate),
		MentorName:     f.MentorName,
		MentorEmail:    f.MentorEmail,
		MentorPhone:    f.MentorPhone,
		CreatedAt:      f.CreatedAt.Format(time.RFC3339),
	}
}

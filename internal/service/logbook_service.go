package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"nextstep/backend/internal/dto"
	"nextstep/backend/internal/model"
	"nextstep/backend/internal/repository"
	pkgerrors "nextstep/backend/pkg/errors"
)

// ── 日志本模块业务错误 ──

var (
	ErrLogbookNotFound     = errors.New("日志本不存在")
	ErrSequenceViolation   = errors.New("上一个月的日志本尚未提交")
	ErrImmutableState      = errors.New("日志本审批中或已批准，不可修改")
	ErrStateConflict       = errors.New("日志本已被其他操作修改，请刷新后重试")
	ErrNotLogbookOwner     = errors.New("无权操作他人的日志本")
	ErrExportNoLogbooks    = errors.New("该学生暂无日志本")
	ErrExportGenerateFail  = errors.New("生成 Excel 文件失败")
	ErrInvalidLogbookMonth = errors.New("月份必须在 1-12 之间")
)

// saveRetries 并发保存同一日志本时的最大重试次数
const saveRetries = 3

var monthNames = [...]string{"January", "February", "March", "April", "May", "June",
	"July", "August", "September", "October", "November", "December"}

// LogbookService 日志本业务接口
type LogbookService interface {
	GetLogbook(ctx context.Context, studentID string, month, year int) (*dto.LogbookResponse, error)
	GetByID(ctx context.Context, id string) (*dto.LogbookResponse, error)
	SaveWeeklyEntry(ctx context.Context, req *dto.SaveWeeklyEntryRequest) (*dto.LogbookResponse, error)
	ListHistory(ctx context.Context, studentID string) ([]dto.LogbookResponse, error)
	ExportHistory(ctx context.Context, studentID string) (*bytes.Buffer, string, error)
}

type logbookService struct {
	repo   *repository.Repository
	logger *zap.Logger
	now    func() time.Time
}

// NewLogbookService 创建 LogbookService 实例
func NewLogbookService(repo *repository.Repository, logger *zap.Logger) LogbookService {
	return &logbookService{repo: repo, logger: logger, now: time.Now}
}

// ────────────────────── GetLogbook ──────────────────────

func (s *logbookService) GetLogbook(ctx context.Context, studentID string, month, year int) (*dto.LogbookResponse, error) {
	logbook, err := s.repo.Logbook.GetByPeriod(ctx, studentID, month, year)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrLogbookNotFound
		}
		s.logger.Error("查询日志本失败",
			zap.String("student_id", studentID),
			zap.Int("month", month),
			zap.Int("year", year),
			zap.Error(err),
		)
		return nil, err
	}
	return toLogbookResponse(logbook), nil
}

// ────────────────────── GetByID ──────────────────────

func (s *logbookService) GetByID(ctx context.Context, id string) (*dto.LogbookResponse, error) {
	logbook, err := loadLogbook(ctx, s.repo, s.logger, id)
	if err != nil {
		return nil, err
	}
	return toLogbookResponse(logbook), nil
}

// ────────────────────── SaveWeeklyEntry ──────────────────────

func (s *logbookService) SaveWeeklyEntry(ctx context.Context, req *dto.SaveWeeklyEntryRequest) (*dto.LogbookResponse, error) {
	if req.Month < 1 || req.Month > 12 {
		return nil, ErrInvalidLogbookMonth
	}
	if err := checkSequence(ctx, s.repo, s.logger, req.StudentID, req.Month, req.Year); err != nil {
		return nil, err
	}

	entry := model.WeeklyEntry{
		WeekNumber:  req.WeekNumber,
		Activities:  req.Data.Activities,
		TechSkills:  req.Data.TechSkills,
		SoftSkills:  req.Data.SoftSkills,
		Trainings:   req.Data.Trainings,
		LastUpdated: s.now().UTC(),
	}

	for attempt := 0; attempt < saveRetries; attempt++ {
		logbook, err := s.repo.Logbook.GetByPeriod(ctx, req.StudentID, req.Month, req.Year)
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			s.logger.Error("查询日志本失败", zap.String("student_id", req.StudentID), zap.Error(err))
			return nil, err
		}

		// 首次保存：创建草稿
		if logbook == nil {
			logbook = &model.Logbook{
				StudentID: req.StudentID,
				Month:     req.Month,
				Year:      req.Year,
				Status:    model.LogbookStatusDraft,
			}
			logbook.UpsertWeek(entry)
			err := s.repo.Logbook.Create(ctx, logbook)
			if err == nil {
				s.logger.Info("创建日志本草稿",
					zap.String("logbook_id", logbook.LogbookID),
					zap.String("student_id", req.StudentID),
					zap.Int("month", req.Month),
					zap.Int("year", req.Year),
				)
				return toLogbookResponse(logbook), nil
			}
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				continue // 并发创建，重新读取后走更新分支
			}
			s.logger.Error("创建日志本失败", zap.String("student_id", req.StudentID), zap.Error(err))
			return nil, err
		}

		if !logbook.IsEditable() {
			return nil, ErrImmutableState
		}

		expected := logbook.Status
		logbook.UpsertWeek(entry)
		logbook.Status = model.LogbookStatusDraft

		err = s.repo.Logbook.UpdateWeeks(ctx, logbook, expected)
		if err == nil {
			if expected == model.LogbookStatusRejected {
				s.logger.Info("被驳回的日志本重新进入草稿", zap.String("logbook_id", logbook.LogbookID))
			}
			return toLogbookResponse(logbook), nil
		}
		if !errors.Is(err, pkgerrors.ErrOptimisticLock) {
			s.logger.Error("保存周记录失败", zap.String("logbook_id", logbook.LogbookID), zap.Error(err))
			return nil, err
		}
	}

	return nil, ErrStateConflict
}

// ────────────────────── ListHistory ──────────────────────

func (s *logbookService) ListHistory(ctx context.Context, studentID string) ([]dto.LogbookResponse, error) {
	logbooks, err := s.repo.Logbook.ListByStudent(ctx, studentID)
	if err != nil {
		s.logger.Error("查询日志本历史失败", zap.String("student_id", studentID), zap.Error(err))
		return nil, err
	}

	result := make([]dto.LogbookResponse, 0, len(logbooks))
	for i := range logbooks {
		result = append(result, *toLogbookResponse(&logbooks[i]))
	}
	return result, nil
}

// ────────────────────── ExportHistory ──────────────────────
//
// 输出格式：
//   - Sheet "汇总"：每个月一行（月份、状态、提交时间、导师、导师意见、驳回原因）
//   - Sheet "周记录"：每条周记录一行

func (s *logbookService) ExportHistory(ctx context.Context, studentID string) (*bytes.Buffer, string, error) {
	logbooks, err := s.repo.Logbook.ListByStudent(ctx, studentID)
	if err != nil {
		s.logger.Error("查询日志本历史失败", zap.String("student_id", studentID), zap.Error(err))
		return nil, "", err
	}
	if len(logbooks) == 0 {
		return nil, "", ErrExportNoLogbooks
	}

	f := excelize.NewFile()
	defer f.Close()

	summary := "汇总"
	idx, _ := f.NewSheet(summary)
	f.SetActiveSheet(idx)
	f.DeleteSheet("Sheet1")

	headerStyle, _ := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#F2F2F2"}, Pattern: 1},
	})

	summaryHeaders := []string{"月份", "状态", "提交时间", "导师邮箱", "导师意见", "驳回原因"}
	for i, h := range summaryHeaders {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		f.SetCellValue(summary, cell, h)
	}
	f.SetRowStyle(summary, 1, 1, headerStyle)

	weeks := "周记录"
	f.NewSheet(weeks)
	weekHeaders := []string{"月份", "周次", "工作内容", "技术技能", "软技能", "培训", "最后更新"}
	for i, h := range weekHeaders {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		f.SetCellValue(weeks, cell, h)
	}
	f.SetRowStyle(weeks, 1, 1, headerStyle)

	weekRow := 2
	for i, lb := range logbooks {
		row := i + 2
		submitted := ""
		if lb.SubmittedAt != nil {
			submitted = lb.SubmittedAt.Format("2006-01-02 15:04")
		}
		values := []interface{}{periodLabel(lb.Month, lb.Year), lb.Status, submitted, lb.MentorEmail, lb.MentorComments, lb.RejectionReason}
		for col, v := range values {
			cell, _ := excelize.CoordinatesToCellName(col+1, row)
			f.SetCellValue(summary, cell, v)
		}

		for _, w := range lb.Weeks {
			wv := []interface{}{periodLabel(lb.Month, lb.Year), w.WeekNumber, w.Activities, w.TechSkills, w.SoftSkills, w.Trainings, w.LastUpdated.Format("2006-01-02 15:04")}
			for col, v := range wv {
				cell, _ := excelize.CoordinatesToCellName(col+1, weekRow)
				f.SetCellValue(weeks, cell, v)
			}
			weekRow++
		}
	}

	f.SetColWidth(summary, "A", "A", 16)
	f.SetColWidth(summary, "B", "C", 18)
	f.SetColWidth(summary, "D", "F", 32)
	f.SetColWidth(weeks, "C", "F", 40)

	buf, err := f.WriteToBuffer()
	if err != nil {
		s.logger.Error("生成日志本 Excel 失败", zap.String("student_id", studentID), zap.Error(err))
		return nil, "", ErrExportGenerateFail
	}

	filename := fmt.Sprintf("logbooks_%s_%s.xlsx", studentID, s.now().Format("20060102"))
	return buf, filename, nil
}

// ── 内部辅助方法 ──

func loadLogbook(ctx context.Context, repo *repository.Repository, logger *zap.Logger, id string) (*model.Logbook, error) {
	logbook, err := repo.Logbook.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrLogbookNotFound
		}
		logger.Error("查询日志本失败", zap.String("logbook_id", id), zap.Error(err))
		return nil, err
	}
	return logbook, nil
}

// checkSequence 第 N 个月（N>1）要求同一学生同一年第 N-1 个月的日志本存在且已提交过
func checkSequence(ctx context.Context, repo *repository.Repository, logger *zap.Logger, studentID string, month, year int) error {
	if month <= 1 {
		return nil
	}
	prev, err := repo.Logbook.GetByPeriod(ctx, studentID, month-1, year)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("%w: 请先提交第 %d 个月的日志本", ErrSequenceViolation, month-1)
		}
		logger.Error("查询上月日志本失败", zap.String("student_id", studentID), zap.Error(err))
		return err
	}
	if prev.Status == model.LogbookStatusDraft {
		return fmt.Errorf("%w: 请先提交第 %d 个月的日志本", ErrSequenceViolation, month-1)
	}
	return nil
}

func periodLabel(month, year int) string {
	if month < 1 || month > 12 {
		return fmt.Sprintf("%d/%d", month, year)
	}
	return fmt.Sprintf("%s %d", monthNames[month-1], year)
}

func formatTimePtr(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.UTC().Format(time.RFC3339)
	return &s
}

func toLogbookResponse(lb *model.Logbook) *dto.LogbookResponse {
	weeks := make([]dto.WeeklyEntryResponse, 0, len(lb.Weeks))
	for _, w := range lb.Weeks {
		weeks = append(weeks, dto.WeeklyEntryResponse{
			WeekNumber:  w.WeekNumber,
			Activities:  w.Activities,
			TechSkills:  w.TechSkills,
			SoftSkills:  w.SoftSkills,
			Trainings:   w.Trainings,
			LastUpdated: w.LastUpdated.UTC().Format(time.RFC3339),
		})
	}
	return &dto.LogbookResponse{
		ID:              lb.LogbookID,
		StudentID:       lb.StudentID,
		Month:           lb.Month,
		Year:            lb.Year,
		Status:          lb.Status,
		Weeks:           weeks,
		MentorEmail:     lb.MentorEmail,
		MentorComments:  lb.MentorComments,
		RejectionReason: lb.RejectionReason,
		SubmittedAt:     formatTimePtr(lb.SubmittedAt),
		DecidedAt:       formatTimePtr(lb.DecidedAt),
		Version:         lb.Version,
	}
}

package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"time"

	ics "github.com/arran4/golang-ical"
	"github.com/gabriel-vasile/mimetype"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"nextstep/backend/config"
	"nextstep/backend/internal/dto"
	"nextstep/backend/internal/model"
	"nextstep/backend/internal/repository"
	"nextstep/backend/pkg/lock"
	"nextstep/backend/pkg/storage"
)

// ── 结业材料模块业务错误 ──

var (
	ErrNotEligible               = errors.New("日志本未全部批准，暂不能提交结业材料")
	ErrAttemptLimitExceeded      = errors.New("提交次数已达上限")
	ErrInvalidFormat             = errors.New("结业答辩材料必须是 PDF 文件")
	ErrInvalidArtifactKind       = errors.New("无效的结业材料类型")
	ErrEmptyUpload               = errors.New("上传文件为空")
	ErrFinalSubmissionIncomplete = errors.New("成绩单与结业答辩材料均需至少提交一次")
	ErrArtifactNotFound          = errors.New("结业材料不存在")
	ErrNotPresentation           = errors.New("只能为结业答辩安排时间")
	ErrPresentationNotScheduled  = errors.New("结业答辩尚未安排时间")
	ErrStudentNotFound           = errors.New("学生不存在")
)

// sniffLen 用于类型识别的文件头长度
const sniffLen = 3072

// presentationDuration 日历事件默认时长
const presentationDuration = time.Hour

// ArtifactUpload 待保存的上传文件
type ArtifactUpload struct {
	Filename string
	Content  io.Reader
}

// SubmissionService 结业材料提交
type SubmissionService interface {
	SubmitArtifact(ctx context.Context, kind, studentID string, file ArtifactUpload) (*dto.ArtifactResponse, error)
	MarkStudentComplete(ctx context.Context, studentID string) error
	GetStudentSubmissions(ctx context.Context, studentID string) (*dto.StudentSubmissionsResponse, error)
	ListLatestSubmissions(ctx context.Context) ([]dto.SubmissionListItem, error)
	SchedulePresentation(ctx context.Context, artifactID string, scheduledAt time.Time) (*dto.ArtifactResponse, error)
	PresentationCalendar(ctx context.Context, studentID string) ([]byte, string, error)
}

type submissionService struct {
	repo        *repository.Repository
	eligibility EligibilityService
	locker      lock.Locker
	store       storage.Store
	notifier    InAppNotifier
	maxAttempts int
	lockWait    time.Duration
	logger      *zap.Logger
	now         func() time.Time
}

// NewSubmissionService 创建 SubmissionService 实例
func NewSubmissionService(
	cfg *config.Config,
	repo *repository.Repository,
	eligibility EligibilityService,
	locker lock.Locker,
	store storage.Store,
	notifier InAppNotifier,
	logger *zap.Logger,
) SubmissionService {
	maxAttempts := cfg.Workflow.MaxArtifactAttempts
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	return &submissionService{
		repo:        repo,
		eligibility: eligibility,
		locker:      locker,
		store:       store,
		notifier:    notifier,
		maxAttempts: maxAttempts,
		lockWait:    cfg.Workflow.LockWait,
		logger:      logger,
		now:         time.Now,
	}
}

// ────────────────────── SubmitArtifact ──────────────────────

func (s *submissionService) SubmitArtifact(ctx context.Context, kind, studentID string, file ArtifactUpload) (*dto.ArtifactResponse, error) {
	if !model.ValidArtifactKind(kind) {
		return nil, ErrInvalidArtifactKind
	}
	if file.Content == nil {
		return nil, ErrEmptyUpload
	}

	// 读取文件头做类型识别，再拼回完整内容
	head := make([]byte, sniffLen)
	n, err := io.ReadFull(file.Content, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("读取上传文件失败: %w", err)
	}
	if n == 0 {
		return nil, ErrEmptyUpload
	}
	head = head[:n]
	if kind == model.ArtifactKindPresentation && !mimetype.Detect(head).Is("application/pdf") {
		return nil, ErrInvalidFormat
	}
	content := io.MultiReader(bytes.NewReader(head), file.Content)

	eligible, err := s.eligibility.IsComplete(ctx, studentID)
	if err != nil {
		return nil, err
	}
	if !eligible {
		return nil, ErrNotEligible
	}

	release, err := s.acquire(ctx, "artifact:"+studentID+":"+kind)
	if err != nil {
		return nil, err
	}
	defer release()

	count, err := s.repo.Artifact.CountByKind(ctx, studentID, kind)
	if err != nil {
		s.logger.Error("统计结业材料失败", zap.String("student_id", studentID), zap.String("kind", kind), zap.Error(err))
		return nil, err
	}
	if count >= int64(s.maxAttempts) {
		return nil, fmt.Errorf("%w（%d 次）", ErrAttemptLimitExceeded, s.maxAttempts)
	}

	fileURL, err := s.store.Save(ctx, kind, file.Filename, content)
	if err != nil {
		s.logger.Error("保存结业材料文件失败", zap.String("student_id", studentID), zap.Error(err))
		return nil, err
	}

	artifact := &model.FinalArtifact{
		StudentID:   studentID,
		Kind:        kind,
		Attempt:     int(count) + 1,
		FileURL:     fileURL,
		FileName:    file.Filename,
		SubmittedAt: s.now().UTC(),
	}
	if err := s.repo.Artifact.Create(ctx, artifact); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, ErrAttemptLimitExceeded
		}
		s.logger.Error("创建结业材料记录失败", zap.String("student_id", studentID), zap.Error(err))
		return nil, err
	}

	s.logger.Info("结业材料已提交",
		zap.String("student_id", studentID),
		zap.String("kind", kind),
		zap.Int("attempt", artifact.Attempt),
	)

	if kind == model.ArtifactKindPresentation {
		s.notifier.NotifyRoles(context.WithoutCancel(ctx),
			fmt.Sprintf("Student %s has uploaded their Final Exit Presentation (Attempt %d).", s.studentLabel(ctx, studentID), artifact.Attempt),
			model.SeverityInfo, "artifact", artifact.ArtifactID, model.RoleCoordinator, model.RoleAdmin)
	}

	return toArtifactResponse(artifact), nil
}

// ────────────────────── MarkStudentComplete ──────────────────────

func (s *submissionService) MarkStudentComplete(ctx context.Context, studentID string) error {
	for _, kind := range []string{model.ArtifactKindGradeSheet, model.ArtifactKindPresentation} {
		count, err := s.repo.Artifact.CountByKind(ctx, studentID, kind)
		if err != nil {
			s.logger.Error("统计结业材料失败", zap.String("student_id", studentID), zap.Error(err))
			return err
		}
		if count == 0 {
			return ErrFinalSubmissionIncomplete
		}
	}

	if err := s.repo.Student.UpdateStatus(ctx, studentID, model.StudentStatusCompleted); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrStudentNotFound
		}
		s.logger.Error("更新学生状态失败", zap.String("student_id", studentID), zap.Error(err))
		return err
	}

	s.logger.Info("学生已完成结业提交", zap.String("student_id", studentID))

	s.notifier.NotifyRoles(context.WithoutCancel(ctx),
		fmt.Sprintf("Student %s has completed final submission (Grade Sheet & Presentation).", s.studentLabel(ctx, studentID)),
		model.SeveritySuccess, "student", studentID, model.RoleCoordinator, model.RoleAdmin)
	return nil
}

// ────────────────────── GetStudentSubmissions ──────────────────────

func (s *submissionService) GetStudentSubmissions(ctx context.Context, studentID string) (*dto.StudentSubmissionsResponse, error) {
	result := &dto.StudentSubmissionsResponse{StudentID: studentID, MaxAttempts: s.maxAttempts}

	var err error
	if result.GradeSheet, result.GradeSheetCount, err = s.latestOf(ctx, studentID, model.ArtifactKindGradeSheet); err != nil {
		return nil, err
	}
	if result.Presentation, result.PresentationCount, err = s.latestOf(ctx, studentID, model.ArtifactKindPresentation); err != nil {
		return nil, err
	}

	progress, err := s.eligibility.Progress(ctx, studentID)
	if err != nil {
		return nil, err
	}
	result.LogbookStatus = *progress
	return result, nil
}

// ────────────────────── ListLatestSubmissions ──────────────────────

func (s *submissionService) ListLatestSubmissions(ctx context.Context) ([]dto.SubmissionListItem, error) {
	logbooks, err := s.repo.Logbook.ListLatestSubmitted(ctx)
	if err != nil {
		s.logger.Error("查询最新日志本失败", zap.Error(err))
		return nil, err
	}
	gradeSheets, err := s.repo.Artifact.ListLatestByKind(ctx, model.ArtifactKindGradeSheet)
	if err != nil {
		s.logger.Error("查询最新成绩单失败", zap.Error(err))
		return nil, err
	}
	presentations, err := s.repo.Artifact.ListLatestByKind(ctx, model.ArtifactKindPresentation)
	if err != nil {
		s.logger.Error("查询最新结业答辩失败", zap.Error(err))
		return nil, err
	}

	idSet := make(map[string]struct{})
	for _, lb := range logbooks {
		idSet[lb.StudentID] = struct{}{}
	}
	for _, a := range gradeSheets {
		idSet[a.StudentID] = struct{}{}
	}
	for _, a := range presentations {
		idSet[a.StudentID] = struct{}{}
	}
	ids := make([]string, 0, len(idSet))
	for id := range idSet {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	students, err := s.repo.Student.ListByIDs(ctx, ids)
	if err != nil {
		s.logger.Error("查询学生信息失败", zap.Error(err))
		return nil, err
	}
	studentMap := make(map[string]*model.Student, len(students))
	for i := range students {
		studentMap[students[i].StudentID] = &students[i]
	}

	fill := func(item *dto.SubmissionListItem) {
		item.StudentName = "Unknown Student"
		item.CBNumber = "N/A"
		if st, ok := studentMap[item.StudentID]; ok {
			item.StudentName = st.FullName()
			item.CBNumber = st.CBNumber
		}
	}

	result := make([]dto.SubmissionListItem, 0, len(logbooks)+len(gradeSheets)+len(presentations))
	for _, lb := range logbooks {
		item := dto.SubmissionListItem{
			ID:        lb.LogbookID,
			Type:      "logbook",
			StudentID: lb.StudentID,
			Status:    lb.Status,
			Period:    periodLabel(lb.Month, lb.Year),
		}
		if lb.SubmittedAt != nil {
			item.Date = lb.SubmittedAt.UTC().Format(time.RFC3339)
		} else {
			item.Date = lb.CreatedAt.UTC().Format(time.RFC3339)
		}
		fill(&item)
		result = append(result, item)
	}
	for _, group := range [][]model.FinalArtifact{gradeSheets, presentations} {
		for _, a := range group {
			item := dto.SubmissionListItem{
				ID:          a.ArtifactID,
				Type:        a.Kind,
				StudentID:   a.StudentID,
				Status:      "Submitted",
				Date:        a.SubmittedAt.UTC().Format(time.RFC3339),
				ScheduledAt: formatTimePtr(a.ScheduledAt),
				FileURL:     a.FileURL,
			}
			fill(&item)
			result = append(result, item)
		}
	}
	return result, nil
}

// ────────────────────── SchedulePresentation ──────────────────────

func (s *submissionService) SchedulePresentation(ctx context.Context, artifactID string, scheduledAt time.Time) (*dto.ArtifactResponse, error) {
	artifact, err := s.repo.Artifact.GetByID(ctx, artifactID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrArtifactNotFound
		}
		s.logger.Error("查询结业材料失败", zap.String("artifact_id", artifactID), zap.Error(err))
		return nil, err
	}
	if artifact.Kind != model.ArtifactKindPresentation {
		return nil, ErrNotPresentation
	}

	at := scheduledAt.UTC()
	if err := s.repo.Artifact.UpdateSchedule(ctx, artifactID, at); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrArtifactNotFound
		}
		s.logger.Error("安排结业答辩失败", zap.String("artifact_id", artifactID), zap.Error(err))
		return nil, err
	}
	artifact.ScheduledAt = &at

	s.notifier.Notify(context.WithoutCancel(ctx), artifact.StudentID,
		fmt.Sprintf("Your final exit presentation has been scheduled for %s.", at.Format("Mon, 02 Jan 2006 15:04 MST")),
		model.SeverityInfo, "artifact", artifact.ArtifactID)

	return toArtifactResponse(artifact), nil
}

// ────────────────────── PresentationCalendar ──────────────────────

func (s *submissionService) PresentationCalendar(ctx context.Context, studentID string) ([]byte, string, error) {
	artifact, err := s.repo.Artifact.Latest(ctx, studentID, model.ArtifactKindPresentation)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, "", ErrArtifactNotFound
		}
		s.logger.Error("查询结业答辩失败", zap.String("student_id", studentID), zap.Error(err))
		return nil, "", err
	}
	if artifact.ScheduledAt == nil {
		return nil, "", ErrPresentationNotScheduled
	}

	cal := ics.NewCalendar()
	cal.SetMethod(ics.MethodPublish)
	cal.SetProductId("-//NextStep//Internship Presentation//EN")

	event := cal.AddEvent(artifact.ArtifactID + "@nextstep")
	event.SetDtStampTime(s.now().UTC())
	event.SetStartAt(artifact.ScheduledAt.UTC())
	event.SetEndAt(artifact.ScheduledAt.UTC().Add(presentationDuration))
	event.SetSummary("Final Exit Presentation - " + s.studentLabel(ctx, studentID))
	event.SetDescription(fmt.Sprintf("Presentation attempt %d", artifact.Attempt))

	filename := fmt.Sprintf("presentation_%s.ics", studentID)
	return []byte(cal.Serialize()), filename, nil
}

// ── 内部辅助方法 ──

func (s *submissionService) acquire(ctx context.Context, key string) (func(), error) {
	wait := s.lockWait
	if wait <= 0 {
		wait = 5 * time.Second
	}
	lockCtx, cancel := context.WithTimeout(ctx, wait)
	defer cancel()
	return s.locker.Acquire(lockCtx, key)
}

func (s *submissionService) latestOf(ctx context.Context, studentID, kind string) (*dto.ArtifactResponse, int64, error) {
	count, err := s.repo.Artifact.CountByKind(ctx, studentID, kind)
	if err != nil {
		s.logger.Error("统计结业材料失败", zap.String("student_id", studentID), zap.Error(err))
		return nil, 0, err
	}
	if count == 0 {
		return nil, 0, nil
	}
	latest, err := s.repo.Artifact.Latest(ctx, studentID, kind)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, 0, nil
		}
		s.logger.Error("查询最新结业材料失败", zap.String("student_id", studentID), zap.Error(err))
		return nil, 0, err
	}
	return toArtifactResponse(latest), count, nil
}

func (s *submissionService) studentLabel(ctx context.Context, studentID string) string {
	student, err := s.repo.Student.GetByID(ctx, studentID)
	if err != nil {
		return studentID
	}
	return fmt.Sprintf("%s (%s)", student.FullName(), student.CBNumber)
}

func toArtifactResponse(a *model.FinalArtifact) *dto.ArtifactResponse {
	return &dto.ArtifactResponse{
		ID:          a.ArtifactID,
		StudentID:   a.StudentID,
		Kind:        a.Kind,
		Attempt:     a.Attempt,
		FileURL:     a.FileURL,
		FileName:    a.FileName,
		SubmittedAt: a.SubmittedAt.UTC().Format(time.RFC3339),
		ScheduledAt: formatTimePtr(a.ScheduledAt),
	}
}

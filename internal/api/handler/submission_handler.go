package handler

import (
	"errors"
	"time"

	"github.com/gin-gonic/gin"

	"nextstep/backend/internal/dto"
	"nextstep/backend/internal/model"
	"nextstep/backend/internal/service"
	"nextstep/backend/pkg/response"
)

// SubmissionHandler 结业材料模块 HTTP 处理器
type SubmissionHandler struct {
	submissionSvc service.SubmissionService
}

// NewSubmissionHandler 创建 SubmissionHandler
func NewSubmissionHandler(submissionSvc service.SubmissionService) *SubmissionHandler {
	return &SubmissionHandler{submissionSvc: submissionSvc}
}

// UploadGradeSheet 上传成绩单
// POST /api/v1/submissions/grade-sheet (multipart/form-data, field="file")
func (h *SubmissionHandler) UploadGradeSheet(c *gin.Context) {
	h.upload(c, model.ArtifactKindGradeSheet)
}

// UploadPresentation 上传结业答辩材料（PDF）
// POST /api/v1/submissions/presentation (multipart/form-data, field="file")
func (h *SubmissionHandler) UploadPresentation(c *gin.Context) {
	h.upload(c, model.ArtifactKindPresentation)
}

func (h *SubmissionHandler) upload(c *gin.Context, kind string) {
	studentID, ok := MustGetUserID(c)
	if !ok {
		return
	}

	file, header, err := c.Request.FormFile("file")
	if err != nil {
		response.BadRequest(c, 22001, "请上传文件")
		return
	}
	defer file.Close()

	result, err := h.submissionSvc.SubmitArtifact(c.Request.Context(), kind, studentID, service.ArtifactUpload{
		Filename: header.Filename,
		Content:  file,
	})
	if err != nil {
		handleSubmissionError(c, err)
		return
	}
	response.Created(c, result)
}

// Complete 标记结业提交完成
// POST /api/v1/submissions/complete
// 学生只能标记本人；员工可通过 student_id 指定学生
func (h *SubmissionHandler) Complete(c *gin.Context) {
	var req dto.CompleteSubmissionRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, 10001, "参数校验失败")
			return
		}
	}

	userID, ok := MustGetUserID(c)
	if !ok {
		return
	}
	studentID := req.StudentID
	if studentID == "" {
		studentID = userID
	}
	if !MustAccessStudent(c, studentID) {
		return
	}

	if err := h.submissionSvc.MarkStudentComplete(c.Request.Context(), studentID); err != nil {
		handleSubmissionError(c, err)
		return
	}
	response.OK(c, gin.H{"student_id": studentID, "status": model.StudentStatusCompleted})
}

// ListSubmissions 员工查看各学生最新提交
// GET /api/v1/submissions
func (h *SubmissionHandler) ListSubmissions(c *gin.Context) {
	list, err := h.submissionSvc.ListLatestSubmissions(c.Request.Context())
	if err != nil {
		handleSubmissionError(c, err)
		return
	}
	response.OK(c, gin.H{"list": list})
}

// GetStudentSubmissions 学生结业提交概况
// GET /api/v1/submissions/student/:studentId
func (h *SubmissionHandler) GetStudentSubmissions(c *gin.Context) {
	studentID := c.Param("studentId")
	if !MustAccessStudent(c, studentID) {
		return
	}

	result, err := h.submissionSvc.GetStudentSubmissions(c.Request.Context(), studentID)
	if err != nil {
		handleSubmissionError(c, err)
		return
	}
	response.OK(c, result)
}

// SchedulePresentation 安排结业答辩时间
// PUT /api/v1/submissions/presentation/:id/schedule
func (h *SubmissionHandler) SchedulePresentation(c *gin.Context) {
	var req dto.ScheduleSubmissionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, 10001, "参数校验失败")
		return
	}
	at, err := time.Parse(time.RFC3339, req.ScheduledAt)
	if err != nil {
		response.BadRequest(c, 22009, "时间格式错误，应为 RFC3339")
		return
	}

	result, err := h.submissionSvc.SchedulePresentation(c.Request.Context(), c.Param("id"), at)
	if err != nil {
		handleSubmissionError(c, err)
		return
	}
	response.OK(c, result)
}

// PresentationCalendar 下载结业答辩日历（.ics）
// GET /api/v1/submissions/presentation/:id/calendar（:id 为学生 ID）
func (h *SubmissionHandler) PresentationCalendar(c *gin.Context) {
	studentID := c.Param("id")
	if !MustAccessStudent(c, studentID) {
		return
	}

	data, filename, err := h.submissionSvc.PresentationCalendar(c.Request.Context(), studentID)
	if err != nil {
		handleSubmissionError(c, err)
		return
	}
	response.File(c, "text/calendar; charset=utf-8", filename, data)
}

func handleSubmissionError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrInvalidArtifactKind):
		response.BadRequest(c, 22002, "无效的结业材料类型")
	case errors.Is(err, service.ErrEmptyUpload):
		response.BadRequest(c, 22001, "上传文件为空")
	case errors.Is(err, service.ErrInvalidFormat):
		response.BadRequest(c, 22003, "结业答辩材料必须是 PDF 文件")
	case errors.Is(err, service.ErrNotEligible):
		response.Forbidden(c, 22004, "日志本未全部批准，暂不能提交结业材料")
	case errors.Is(err, service.ErrAttemptLimitExceeded):
		response.Conflict(c, 22005, err.Error())
	case errors.Is(err, service.ErrFinalSubmissionIncomplete):
		response.BadRequest(c, 22006, "成绩单与结业答辩材料均需至少提交一次")
	case errors.Is(err, service.ErrArtifactNotFound):
		response.NotFound(c, 22007, "结业材料不存在")
	case errors.Is(err, service.ErrNotPresentation):
		response.BadRequest(c, 22008, "只能为结业答辩安排时间")
	case errors.Is(err, service.ErrPresentationNotScheduled):
		response.NotFound(c, 22010, "结业答辩尚未安排时间")
	case errors.Is(err, service.ErrStudentNotFound):
		response.NotFound(c, 24001, "学生不存在")
	default:
		handleLockError(c, err)
	}
}

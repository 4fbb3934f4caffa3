package handler

import (
	"errors"

	"github.com/gin-gonic/gin"

	"nextstep/backend/internal/dto"
	"nextstep/backend/internal/service"
	"nextstep/backend/pkg/response"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// LogbookHandler 日志本模块 HTTP 处理器
type LogbookHandler struct {
	logbookSvc  service.LogbookService
	approvalSvc service.ApprovalService
}

// NewLogbookHandler 创建 LogbookHandler
func NewLogbookHandler(logbookSvc service.LogbookService, approvalSvc service.ApprovalService) *LogbookHandler {
	return &LogbookHandler{logbookSvc: logbookSvc, approvalSvc: approvalSvc}
}

// GetLogbook 按学生与月份查询日志本
// GET /api/v1/logbooks?student_id=xxx&month=3&year=2025
func (h *LogbookHandler) GetLogbook(c *gin.Context) {
	var req dto.GetLogbookRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		response.BadRequest(c, 10001, "参数校验失败")
		return
	}
	if !MustAccessStudent(c, req.StudentID) {
		return
	}

	logbook, err := h.logbookSvc.GetLogbook(c.Request.Context(), req.StudentID, req.Month, req.Year)
	if err != nil {
		handleLogbookError(c, err)
		return
	}
	response.OK(c, logbook)
}

// GetLogbookByID 日志本详情
// GET /api/v1/logbooks/:id
func (h *LogbookHandler) GetLogbookByID(c *gin.Context) {
	logbook, err := h.logbookSvc.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		handleLogbookError(c, err)
		return
	}
	if !MustAccessStudent(c, logbook.StudentID) {
		return
	}
	response.OK(c, logbook)
}

// SaveWeeklyEntry 保存周记录（不存在时自动创建草稿）
// POST /api/v1/logbooks/entry
func (h *LogbookHandler) SaveWeeklyEntry(c *gin.Context) {
	var req dto.SaveWeeklyEntryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, 10001, "参数校验失败")
		return
	}

	studentID, ok := MustGetUserID(c)
	if !ok {
		return
	}
	req.StudentID = studentID

	logbook, err := h.logbookSvc.SaveWeeklyEntry(c.Request.Context(), &req)
	if err != nil {
		handleLogbookError(c, err)
		return
	}
	response.OK(c, logbook)
}

// SubmitLogbook 提交日志本给导师审批
// POST /api/v1/logbooks/submit
func (h *LogbookHandler) SubmitLogbook(c *gin.Context) {
	var req dto.SubmitLogbookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, 10001, "参数校验失败")
		return
	}

	studentID, ok := MustGetUserID(c)
	if !ok {
		return
	}

	result, err := h.approvalSvc.Submit(c.Request.Context(), req.LogbookID, studentID)
	if err != nil {
		handleLogbookError(c, err)
		return
	}
	response.OK(c, dto.SubmitLogbookResponse{
		Logbook:     *result.Logbook,
		MentorEmail: result.MentorEmail,
		Outcome:     string(result.Outcome),
	})
}

// ListHistory 学生全部日志本
// GET /api/v1/logbooks/history/:studentId
func (h *LogbookHandler) ListHistory(c *gin.Context) {
	studentID := c.Param("studentId")
	if !MustAccessStudent(c, studentID) {
		return
	}

	list, err := h.logbookSvc.ListHistory(c.Request.Context(), studentID)
	if err != nil {
		handleLogbookError(c, err)
		return
	}
	response.OK(c, gin.H{"list": list})
}

// ExportHistory 导出学生日志本历史（xlsx）
// GET /api/v1/logbooks/history/:studentId/export
func (h *LogbookHandler) ExportHistory(c *gin.Context) {
	studentID := c.Param("studentId")
	if !MustAccessStudent(c, studentID) {
		return
	}

	buf, filename, err := h.logbookSvc.ExportHistory(c.Request.Context(), studentID)
	if err != nil {
		handleLogbookError(c, err)
		return
	}
	response.File(c, xlsxContentType, filename, buf.Bytes())
}

// handleLogbookError 统一处理日志本与提交流程业务错误
func handleLogbookError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrLogbookNotFound):
		response.NotFound(c, 20001, "日志本不存在")
	case errors.Is(err, service.ErrInvalidLogbookMonth):
		response.BadRequest(c, 20002, "月份无效")
	case errors.Is(err, service.ErrSequenceViolation):
		response.BadRequest(c, 20003, err.Error())
	case errors.Is(err, service.ErrImmutableState):
		response.Conflict(c, 20004, "日志本已提交或已批准，不能修改")
	case errors.Is(err, service.ErrStateConflict):
		response.Conflict(c, 20005, "日志本已被并发修改，请刷新后重试")
	case errors.Is(err, service.ErrNotLogbookOwner):
		response.Forbidden(c, 20006, "只能提交自己的日志本")
	case errors.Is(err, service.ErrExportNoLogbooks):
		response.NotFound(c, 20007, "暂无日志本可导出")
	case errors.Is(err, service.ErrMissingMentorContact):
		response.BadRequest(c, 21001, "未找到导师邮箱，请先提交实习登记表")
	case errors.Is(err, service.ErrSubmissionCancelled):
		response.ServiceUnavailable(c, 21002, "导师邮件发送失败，提交已撤回，请稍后重试")
	case errors.Is(err, service.ErrExportGenerateFail):
		response.InternalError(c)
	default:
		handleLockError(c, err)
	}
}

// handleLockError 锁等待超时视为服务繁忙
func handleLockError(c *gin.Context, err error) {
	if isLockTimeout(err) {
		response.ServiceUnavailable(c, 10006, "系统繁忙，请稍后重试")
		return
	}
	response.InternalError(c)
}

package handler

import (
	"errors"

	"github.com/gin-gonic/gin"

	"nextstep/backend/internal/dto"
	"nextstep/backend/internal/service"
	"nextstep/backend/pkg/response"
)

// MentorHandler 导师审批（通过邮件中的签名链接访问，无需登录）
type MentorHandler struct {
	approvalSvc service.ApprovalService
}

// NewMentorHandler 创建 MentorHandler
func NewMentorHandler(approvalSvc service.ApprovalService) *MentorHandler {
	return &MentorHandler{approvalSvc: approvalSvc}
}

// GetLogbook 导师查看待审批日志本
// GET /api/v1/mentor/logbooks/:id?token=xxx
func (h *MentorHandler) GetLogbook(c *gin.Context) {
	result, err := h.approvalSvc.GetForMentor(c.Request.Context(), c.Param("id"), c.Query("token"))
	if err != nil {
		handleMentorError(c, err)
		return
	}
	response.OK(c, result)
}

// Decide 导师审批
// POST /api/v1/mentor/logbooks/:id/decision
func (h *MentorHandler) Decide(c *gin.Context) {
	var req dto.MentorDecisionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, 10001, "参数校验失败")
		return
	}

	result, err := h.approvalSvc.ApplyMentorDecision(c.Request.Context(), c.Param("id"), req.Token, service.MentorDecision{
		Status:          req.Status,
		Comments:        req.Feedback,
		RejectionReason: req.RejectionReason,
	})
	if err != nil {
		handleMentorError(c, err)
		return
	}
	response.OK(c, result)
}

func handleMentorError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrInvalidDecision):
		response.BadRequest(c, 21101, "审批结果只能是 Approved 或 Rejected")
	case errors.Is(err, service.ErrMentorLinkInvalid):
		response.Unauthorized(c, 21102, "审批链接无效")
	case errors.Is(err, service.ErrMentorLinkExpired):
		response.Unauthorized(c, 21103, "审批链接已过期")
	case errors.Is(err, service.ErrMentorLinkUsed):
		response.Conflict(c, 21104, "审批链接已使用")
	case errors.Is(err, service.ErrAlreadyFinalized):
		response.Conflict(c, 21105, "日志本已审批")
	case errors.Is(err, service.ErrLogbookNotPending):
		response.Conflict(c, 21106, "日志本不在待审批状态")
	case errors.Is(err, service.ErrStateConflict):
		response.Conflict(c, 20005, "日志本已被并发修改，请刷新后重试")
	case errors.Is(err, service.ErrLogbookNotFound):
		response.NotFound(c, 20001, "日志本不存在")
	default:
		handleLockError(c, err)
	}
}

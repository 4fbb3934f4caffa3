package handler

import (
	"errors"

	"github.com/gin-gonic/gin"

	"nextstep/backend/internal/dto"
	"nextstep/backend/internal/service"
	"nextstep/backend/pkg/response"
)

// PlacementHandler 实习登记表 HTTP 处理器
type PlacementHandler struct {
	placementSvc service.PlacementService
}

// NewPlacementHandler 创建 PlacementHandler
func NewPlacementHandler(placementSvc service.PlacementService) *PlacementHandler {
	return &PlacementHandler{placementSvc: placementSvc}
}

// SubmitPlacement 提交实习登记表
// POST /api/v1/placements
func (h *PlacementHandler) SubmitPlacement(c *gin.Context) {
	var req dto.SubmitPlacementRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, 10001, "参数校验失败")
		return
	}

	studentID, ok := MustGetUserID(c)
	if !ok {
		return
	}

	result, err := h.placementSvc.Submit(c.Request.Context(), studentID, &req)
	if err != nil {
		handlePlacementError(c, err)
		return
	}
	response.Created(c, result)
}

// GetMyPlacement 当前学生的实习登记表（未提交时 data 为空）
// GET /api/v1/placements/me
func (h *PlacementHandler) GetMyPlacement(c *gin.Context) {
	studentID, ok := MustGetUserID(c)
	if !ok {
		return
	}

	result, err := h.placementSvc.GetMine(c.Request.Context(), studentID)
	if err != nil {
		handlePlacementError(c, err)
		return
	}
	response.OK(c, result)
}

// ListPlacements 实习登记表列表
// GET /api/v1/placements?page=1&page_size=20
func (h *PlacementHandler) ListPlacements(c *gin.Context) {
	var req dto.PaginationRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		response.BadRequest(c, 10001, "参数校验失败")
		return
	}

	list, total, err := h.placementSvc.List(c.Request.Context(), &req)
	if err != nil {
		handlePlacementError(c, err)
		return
	}
	response.OKPage(c, list, total, req.GetPage(), req.GetPageSize())
}

func handlePlacementError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrPlacementNotFound):
		response.NotFound(c, 23001, "实习登记表不存在")
	case errors.Is(err, service.ErrPlacementExists):
		response.Conflict(c, 23002, "已提交实习登记表，不能重复提交")
	case errors.Is(err, service.ErrInvalidDateFormat):
		response.BadRequest(c, 23003, "日期格式错误，应为 YYYY-MM-DD")
	case errors.Is(err, service.ErrInvalidDateRange):
		response.BadRequest(c, 23004, "结束日期必须晚于开始日期")
	case errors.Is(err, service.ErrStudentNotFound):
		response.NotFound(c, 24001, "学生不存在")
	default:
		response.InternalError(c)
	}
}

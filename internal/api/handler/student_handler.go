package handler

import (
	"errors"

	"github.com/gin-gonic/gin"

	"nextstep/backend/internal/service"
	"nextstep/backend/pkg/response"
)

// StudentHandler 学生档案 HTTP 处理器
type StudentHandler struct {
	studentSvc service.StudentService
}

// NewStudentHandler 创建 StudentHandler
func NewStudentHandler(studentSvc service.StudentService) *StudentHandler {
	return &StudentHandler{studentSvc: studentSvc}
}

// DeleteStudent 删除学生及其全部关联数据
// DELETE /api/v1/students/:id
func (h *StudentHandler) DeleteStudent(c *gin.Context) {
	if err := h.studentSvc.Delete(c.Request.Context(), c.Param("id")); err != nil {
		if errors.Is(err, service.ErrStudentNotFound) {
			response.NotFound(c, 24001, "学生不存在")
			return
		}
		response.InternalError(c)
		return
	}
	response.OK(c, nil)
}

package handler

import (
	"github.com/gin-gonic/gin"

	"nextstep/backend/internal/model"
	"nextstep/backend/pkg/response"
)

// MustGetUserID 从 Gin 上下文中安全提取 user_id。
// 如果 JWT 中间件未正确注入 user_id，返回 false 并写入 401 响应。
// 调用方应在 ok=false 时直接 return。
func MustGetUserID(c *gin.Context) (string, bool) {
	v, exists := c.Get("user_id")
	if !exists {
		response.Unauthorized(c, 10002, "未认证")
		return "", false
	}
	s, ok := v.(string)
	if !ok || s == "" {
		response.Unauthorized(c, 10002, "未认证")
		return "", false
	}
	return s, true
}

// MustGetRole 从 Gin 上下文中安全提取 role。
func MustGetRole(c *gin.Context) (string, bool) {
	v, exists := c.Get("role")
	if !exists {
		response.Unauthorized(c, 10002, "未认证")
		return "", false
	}
	s, ok := v.(string)
	if !ok || s == "" {
		response.Unauthorized(c, 10002, "未认证")
		return "", false
	}
	return s, true
}

// isStaff 协调员与管理员可以查看任意学生的数据
func isStaff(role string) bool {
	return role == model.RoleCoordinator || role == model.RoleAdmin
}

// MustAccessStudent 学生只能访问本人数据；员工不受限。
// 无权限时写入 403 响应并返回 false。
func MustAccessStudent(c *gin.Context, studentID string) bool {
	userID, ok := MustGetUserID(c)
	if !ok {
		return false
	}
	role, ok := MustGetRole(c)
	if !ok {
		return false
	}
	if isStaff(role) || userID == studentID {
		return true
	}
	response.Forbidden(c, 10003, "无权访问该学生的数据")
	return false
}

package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"
)

// SecurityHeaders 安全 HTTP 头中间件
// API 只返回 JSON 与附件下载；/uploads 下的静态文件允许浏览器内嵌预览（PDF）
func SecurityHeaders(uploadPrefix string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")
		c.Header("Permissions-Policy", "camera=(), microphone=(), geolocation=()")

		if uploadPrefix != "" && strings.HasPrefix(c.Request.URL.Path, uploadPrefix) {
			c.Header("Content-Security-Policy", "default-src 'none'; sandbox")
		} else {
			c.Header("X-Frame-Options", "DENY")
			c.Header("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")
		}

		c.Next()
	}
}

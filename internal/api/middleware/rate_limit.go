package middleware

import (
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"nextstep/backend/pkg/redis"
	"nextstep/backend/pkg/response"
)

// RateLimitRule 限流规则
type RateLimitRule struct {
	Name   string // 规则名，作为 Redis key 的一部分
	Limit  int
	Window time.Duration
}

// RateLimit 基于 Redis 滑动窗口的按 IP 限流中间件
// 用于导师审批等无需登录的公开接口；rdb 为 nil 或 Redis 出错时降级放行
func RateLimit(rdb *redis.Client, rule RateLimitRule, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if rdb == nil {
			c.Next()
			return
		}

		key := fmt.Sprintf("rate_limit:%s:%s", rule.Name, c.ClientIP())
		allowed, err := rdb.CheckRateLimit(c.Request.Context(), key, rule.Limit, rule.Window)
		if err != nil {
			logger.Warn("限流检查失败，降级放行", zap.String("rule", rule.Name), zap.Error(err))
			c.Next()
			return
		}

		if !allowed {
			response.TooManyRequests(c, 10004, "请求过于频繁，请稍后再试")
			c.Abort()
			return
		}

		c.Next()
	}
}

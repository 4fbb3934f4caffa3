package router

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"nextstep/backend/config"
	"nextstep/backend/internal/api/handler"
	"nextstep/backend/internal/api/middleware"
	"nextstep/backend/internal/model"
	"nextstep/backend/pkg/jwt"
	"nextstep/backend/pkg/redis"
)

// 导师公开接口限流：每个 IP 每分钟 30 次
var mentorRateLimit = middleware.RateLimitRule{Name: "mentor", Limit: 30, Window: time.Minute}

// Setup 初始化并返回 Gin 路由引擎
// uploadDir 为本地上传目录，以 cfg.Storage.PublicPrefix 对外提供静态访问
func Setup(cfg *config.Config, h *handler.Handler, jwtMgr *jwt.Manager, rdb *redis.Client, db *gorm.DB, logger *zap.Logger) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()

	// ── 全局中间件 ──
	r.Use(gin.Recovery())
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger(logger))
	r.Use(middleware.SecurityHeaders(cfg.Storage.PublicPrefix))
	r.Use(middleware.CORS(cfg.Server.CORS.AllowOrigins))
	r.Use(middleware.BodyLimit(cfg.Server.MaxBodySize))

	// ── 健康检查 ──
	r.GET("/health", func(c *gin.Context) {
		status := gin.H{"status": "ok", "redis": rdb != nil}
		if db != nil {
			if sqlDB, err := db.DB(); err != nil || sqlDB.PingContext(c.Request.Context()) != nil {
				status["status"] = "degraded"
				c.JSON(http.StatusServiceUnavailable, status)
				return
			}
		}
		c.JSON(http.StatusOK, status)
	})

	// ── 上传文件 ──
	if cfg.Storage.UploadDir != "" {
		r.Static(cfg.Storage.PublicPrefix, cfg.Storage.UploadDir)
	}

	staff := middleware.RoleAuth(model.RoleCoordinator, model.RoleAdmin)

	// ── API v1 ──
	v1 := r.Group("/api/v1")
	{
		// 导师审批（签名链接，无需登录）
		mentor := v1.Group("/mentor")
		mentor.Use(middleware.RateLimit(rdb, mentorRateLimit, logger))
		{
			mentor.GET("/logbooks/:id", h.Mentor.GetLogbook)
			mentor.POST("/logbooks/:id/decision", h.Mentor.Decide)
		}

		// 需要认证的路由
		authorized := v1.Group("")
		authorized.Use(middleware.JWTAuth(jwtMgr))
		{
			// 日志本模块
			logbooks := authorized.Group("/logbooks")
			{
				logbooks.GET("", h.Logbook.GetLogbook)
				logbooks.POST("/entry", middleware.RoleAuth(model.RoleStudent), h.Logbook.SaveWeeklyEntry)
				logbooks.POST("/submit", middleware.RoleAuth(model.RoleStudent), h.Logbook.SubmitLogbook)
				logbooks.GET("/history/:studentId", h.Logbook.ListHistory) // 本人或员工（Handler 层鉴权）
				logbooks.GET("/history/:studentId/export", h.Logbook.ExportHistory)
				logbooks.GET("/:id", h.Logbook.GetLogbookByID)
			}

			// 实习登记表模块
			placements := authorized.Group("/placements")
			{
				placements.POST("", middleware.RoleAuth(model.RoleStudent), h.Placement.SubmitPlacement)
				placements.GET("/me", middleware.RoleAuth(model.RoleStudent), h.Placement.GetMyPlacement)
				placements.GET("", staff, h.Placement.ListPlacements)
			}

			// 结业材料模块
			submissions := authorized.Group("/submissions")
			{
				submissions.POST("/grade-sheet", middleware.RoleAuth(model.RoleStudent), h.Submission.UploadGradeSheet)
				submissions.POST("/presentation", middleware.RoleAuth(model.RoleStudent), h.Submission.UploadPresentation)
				submissions.POST("/complete", h.Submission.Complete)
				submissions.GET("", staff, h.Submission.ListSubmissions)
				submissions.GET("/student/:studentId", h.Submission.GetStudentSubmissions)
				submissions.PUT("/presentation/:id/schedule", staff, h.Submission.SchedulePresentation)
				submissions.GET("/presentation/:id/calendar", h.Submission.PresentationCalendar)
			}

			// 学生档案模块
			authorized.DELETE("/students/:id", middleware.RoleAuth(model.RoleAdmin), h.Student.DeleteStudent)

			// 站内通知模块
			notifications := authorized.Group("/notifications")
			{
				notifications.GET("", h.Notification.ListNotifications)
				notifications.PUT("/:id/read", h.Notification.MarkRead)
			}
		}
	}

	return r
}

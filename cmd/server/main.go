package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"nextstep/backend/config"
	"nextstep/backend/internal/api/handler"
	"nextstep/backend/internal/api/router"
	"nextstep/backend/internal/repository"
	"nextstep/backend/internal/service"
	"nextstep/backend/pkg/database"
	"nextstep/backend/pkg/jwt"
	"nextstep/backend/pkg/lock"
	applogger "nextstep/backend/pkg/logger"
	"nextstep/backend/pkg/mailer"
	"nextstep/backend/pkg/redis"
	"nextstep/backend/pkg/scheduler"
	"nextstep/backend/pkg/storage"
)

func main() {
	// 1. 加载配置
	cfg, err := config.Load(os.Getenv("NEXTSTEP_CONFIG"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "加载配置失败: %v\n", err)
		os.Exit(1)
	}

	// 2. 初始化日志
	logger, err := applogger.NewLogger(&cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "初始化日志失败: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("应用启动中...",
		zap.Int("port", cfg.Server.Port),
		zap.String("log_level", cfg.Log.Level),
	)

	// 3. 连接数据库
	db, err := database.NewDB(&cfg.Database, cfg.Log.Level, logger)
	if err != nil {
		logger.Fatal("数据库连接失败", zap.Error(err))
	}
	logger.Info("数据库连接成功")

	// 3.1 执行数据库迁移
	sqlDB, err := db.DB()
	if err != nil {
		logger.Fatal("获取底层 sql.DB 失败", zap.Error(err))
	}
	if err := database.RunMigrations(sqlDB, logger); err != nil {
		logger.Fatal("数据库迁移失败", zap.Error(err))
	}

	// 4. 连接 Redis（可选：失败时降级为进程内锁，导师链接不做一次性校验）
	var rdb *redis.Client
	var locker lock.Locker = lock.NewKeyedMutex()
	if cfg.Redis.Enabled {
		rdb, err = redis.NewClient(&cfg.Redis, logger)
		if err != nil {
			logger.Warn("Redis 连接失败，降级为进程内锁", zap.Error(err))
			rdb = nil
		} else {
			locker = rdb.NewLocker(cfg.Workflow.LockTTL)
		}
	}

	// 5. 基础组件
	jwtMgr := jwt.NewManager(&cfg.Auth)
	sender := mailer.NewSMTPSender(cfg.Mail, logger)
	store := storage.NewLocalStore(cfg.Storage)

	// 6. 依赖注入: Repository → Service → Handler
	repo := repository.NewRepository(db)
	svc := service.NewService(cfg, repo, jwtMgr, locker, sender, store, rdb, logger)
	h := handler.NewHandler(svc)

	// 7. 定时任务
	var sched *scheduler.Scheduler
	if cfg.Scheduler.Enabled {
		sched, err = scheduler.New(cfg.Scheduler.Timezone, logger)
		if err != nil {
			logger.Fatal("初始化调度器失败", zap.Error(err))
		}
		if err := sched.Register(svc.Reminder, scheduler.Interval(cfg.Scheduler.ReminderInterval)); err != nil {
			logger.Fatal("注册提醒任务失败", zap.Error(err))
		}
		// 启动时补跑一次，覆盖停机期间错过的提醒
		if err := sched.RunNow(context.Background(), svc.Reminder.Name()); err != nil {
			logger.Warn("启动补偿提醒失败", zap.Error(err))
		}
		if err := sched.Start(context.Background(), time.Minute); err != nil {
			logger.Fatal("启动调度器失败", zap.Error(err))
		}
	}

	// 8. 初始化路由
	engine := router.Setup(cfg, h, jwtMgr, rdb, db, logger)

	// 9. 启动 HTTP 服务器（优雅关闭）
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      engine,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("HTTP 服务器已启动", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("HTTP 服务器异常", zap.Error(err))
		}
	}()

	// 10. 监听系统信号，优雅关闭
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	logger.Info("收到关闭信号，开始优雅关闭...", zap.String("signal", sig.String()))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("服务器关闭异常", zap.Error(err))
	}

	if sched != nil {
		sched.Stop()
	}

	// 关闭数据库连接
	if closeDB, _ := db.DB(); closeDB != nil {
		closeDB.Close()
	}

	// 关闭 Redis 连接
	if rdb != nil {
		rdb.Close()
	}

	logger.Info("服务器已关闭")
}

// Package scheduler 周期性后台任务调度（实习结束提醒等）。
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

var (
	ErrJobAlreadyExists = errors.New("任务已注册")
	ErrAlreadyRunning   = errors.New("调度器已在运行")
)

// Job 可调度任务
type Job interface {
	Name() string
	Run(ctx context.Context) error
}

// Schedule 计算下一次运行时间
type Schedule interface {
	Next(t time.Time) time.Time
}

// Interval 固定间隔调度
type Interval time.Duration

// Next 实现 Schedule
func (i Interval) Next(t time.Time) time.Time { return t.Add(time.Duration(i)) }

// Scheduler 单进程任务调度器；同一任务不会并发执行
type Scheduler struct {
	mu       sync.Mutex
	jobs     map[string]*entry
	running  bool
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	timezone *time.Location
	logger   *zap.Logger
	now      func() time.Time
}

type entry struct {
	job      Job
	schedule Schedule
	nextRun  time.Time
	busy     bool
}

// New 创建调度器；timezone 为空时使用 UTC
func New(timezone string, logger *zap.Logger) (*Scheduler, error) {
	loc := time.UTC
	if timezone != "" {
		l, err := time.LoadLocation(timezone)
		if err != nil {
			return nil, fmt.Errorf("无效的时区 %q: %w", timezone, err)
		}
		loc = l
	}
	return &Scheduler{
		jobs:     make(map[string]*entry),
		timezone: loc,
		logger:   logger,
		now:      time.Now,
	}, nil
}

// Register 注册任务
func (s *Scheduler) Register(job Job, schedule Schedule) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.jobs[job.Name()]; ok {
		return fmt.Errorf("%w: %s", ErrJobAlreadyExists, job.Name())
	}
	next := schedule.Next(s.now().In(s.timezone))
	s.jobs[job.Name()] = &entry{job: job, schedule: schedule, nextRun: next}

	s.logger.Info("定时任务已注册",
		zap.String("job", job.Name()),
		zap.Time("next_run", next),
	)
	return nil
}

// Start 启动调度循环，ctx 取消或调用 Stop 后退出
func (s *Scheduler) Start(ctx context.Context, tick time.Duration) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return ErrAlreadyRunning
	}
	ctx, s.cancel = context.WithCancel(ctx)
	s.running = true
	s.mu.Unlock()

	if tick <= 0 {
		tick = time.Minute
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(tick)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.runDue(ctx)
			}
		}
	}()

	s.logger.Info("调度器已启动", zap.Int("jobs", len(s.jobs)))
	return nil
}

// Stop 停止调度并等待正在执行的任务结束
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.cancel()
	s.mu.Unlock()

	s.wg.Wait()
	s.logger.Info("调度器已停止")
}

// RunNow 立即同步执行指定任务（启动补偿与测试使用）
func (s *Scheduler) RunNow(ctx context.Context, name string) error {
	s.mu.Lock()
	e, ok := s.jobs[name]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("任务不存在: %s", name)
	}
	return e.job.Run(ctx)
}

func (s *Scheduler) runDue(ctx context.Context) {
	now := s.now().In(s.timezone)

	s.mu.Lock()
	var due []*entry
	for _, e := range s.jobs {
		if !e.busy && !now.Before(e.nextRun) {
			e.busy = true
			e.nextRun = e.schedule.Next(now)
			due = append(due, e)
		}
	}
	s.mu.Unlock()

	for _, e := range due {
		s.wg.Add(1)
		go func(e *entry) {
			defer s.wg.Done()
			defer func() {
				s.mu.Lock()
				e.busy = false
				s.mu.Unlock()
			}()
			s.execute(ctx, e.job)
		}(e)
	}
}

func (s *Scheduler) execute(ctx context.Context, job Job) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("定时任务 panic", zap.String("job", job.Name()), zap.Any("panic", r))
		}
	}()

	start := time.Now()
	if err := job.Run(ctx); err != nil {
		s.logger.Error("定时任务执行失败",
			zap.String("job", job.Name()),
			zap.Duration("duration", time.Since(start)),
			zap.Error(err),
		)
		return
	}
	s.logger.Info("定时任务执行完成",
		zap.String("job", job.Name()),
		zap.Duration("duration", time.Since(start)),
	)
}

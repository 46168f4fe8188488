package schedule

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"FamilyWell/config"
	"FamilyWell/internal/cache"
	"FamilyWell/internal/service"
	"FamilyWell/pkg/logger"
	"FamilyWell/pkg/metrics"
	"FamilyWell/utils"
)

const defaultJobTimeout = 5 * time.Minute

// Job 一个定时巡检；Next 返回严格晚于给定时间的下一次触发时间
type Job struct {
	Run     func(ctx context.Context, asOf time.Time) (int, error)
	Next    func(after time.Time) time.Time
	Name    string
	Timeout time.Duration
}

// DailyAt 每天 loc 下的 clock（HH:MM）触发
func DailyAt(loc *time.Location, clock string) (func(time.Time) time.Time, error) {
	if _, _, _, err := utils.ParseClock(clock); err != nil {
		return nil, fmt.Errorf("invalid clock %q: %w", clock, err)
	}
	return func(after time.Time) time.Time {
		day := utils.StartOfDay(after, loc)
		for {
			next, _ := utils.AtClock(day, clock)
			if next.After(after) {
				return next
			}
			day = day.AddDate(0, 0, 1)
		}
	}, nil
}

// WeeklyAt 每周 weekday 的 clock 触发
func WeeklyAt(loc *time.Location, weekday time.Weekday, clock string) (func(time.Time) time.Time, error) {
	daily, err := DailyAt(loc, clock)
	if err != nil {
		return nil, err
	}
	return func(after time.Time) time.Time {
		next := daily(after)
		for next.In(loc).Weekday() != weekday {
			next = daily(next)
		}
		return next
	}, nil
}

// Every 按固定间隔触发，对齐到间隔的整数倍
func Every(d time.Duration) func(time.Time) time.Time {
	return func(after time.Time) time.Time {
		return after.Truncate(d).Add(d)
	}
}

// Locker 跨副本互斥，防止多个 scheduler 同时执行同一巡检
type Locker interface {
	TryLock(ctx context.Context, key, owner string, ttl time.Duration) (bool, error)
	Unlock(ctx context.Context, key, owner string) error
}

type redisLocker struct{}

func (redisLocker) TryLock(ctx context.Context, key, owner string, ttl time.Duration) (bool, error) {
	return cache.TryLock(ctx, key, owner, ttl)
}

func (redisLocker) Unlock(ctx context.Context, key, owner string) error {
	return cache.Unlock(ctx, key, owner)
}

// Runner 单 goroutine 顺序执行巡检，同一时刻只跑一个
type Runner struct {
	locker  Locker
	clock   func() time.Time
	logger  *zap.Logger
	running map[string]bool
	jobs    []Job
	mu      sync.Mutex
}

func NewRunner(jobs []Job, locker Locker) *Runner {
	if locker == nil {
		locker = redisLocker{}
	}
	return &Runner{
		jobs:    jobs,
		locker:  locker,
		clock:   time.Now,
		logger:  logger.Named("runner"),
		running: make(map[string]bool),
	}
}

// Start 阻塞直到 ctx 取消
func (r *Runner) Start(ctx context.Context) {
	if len(r.jobs) == 0 {
		r.logger.Warn("No sweep jobs configured")
		<-ctx.Done()
		return
	}

	now := r.clock()
	next := make([]time.Time, len(r.jobs))
	for i, job := range r.jobs {
		next[i] = job.Next(now)
		r.logger.Info("Sweep scheduled",
			zap.String("job", job.Name),
			zap.Time("next_run", next[i]),
		)
	}

	for {
		earliest := next[0]
		for _, t := range next[1:] {
			if t.Before(earliest) {
				earliest = t
			}
		}

		timer := time.NewTimer(time.Until(earliest))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}

		now := r.clock()
		for i, job := range r.jobs {
			if next[i].After(now) {
				continue
			}
			r.RunOnce(ctx, job, next[i])
			next[i] = job.Next(r.clock())
		}
	}
}

// RunOnce 执行一次巡检；本进程内或其他副本正在执行时跳过
func (r *Runner) RunOnce(ctx context.Context, job Job, asOf time.Time) (int, error) {
	r.mu.Lock()
	if r.running[job.Name] {
		r.mu.Unlock()
		r.logger.Info("Sweep already running, skipping", zap.String("job", job.Name))
		return 0, nil
	}
	r.running[job.Name] = true
	r.mu.Unlock()

	defer func() {
		r.mu.Lock()
		delete(r.running, job.Name)
		r.mu.Unlock()
	}()

	timeout := job.Timeout
	if timeout <= 0 {
		timeout = defaultJobTimeout
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	runID := uuid.NewString()
	lockKey := "sweep:" + job.Name
	acquired, err := r.locker.TryLock(runCtx, lockKey, runID, timeout)
	switch {
	case err != nil:
		r.logger.Warn("Sweep lock unavailable, running without lock",
			zap.String("job", job.Name),
			zap.Error(err),
		)
	case !acquired:
		r.logger.Info("Sweep is held by another scheduler, skipping", zap.String("job", job.Name))
		metrics.RecordSweep(ctx, job.Name, "skipped", 0)
		return 0, nil
	default:
		defer func() {
			if err := r.locker.Unlock(context.Background(), lockKey, runID); err != nil {
				r.logger.Warn("Failed to release sweep lock", zap.String("job", job.Name), zap.Error(err))
			}
		}()
	}

	start := time.Now()
	r.logger.Info("Sweep started",
		zap.String("job", job.Name),
		zap.String("run_id", runID),
		zap.Time("as_of", asOf),
	)

	affected, err := job.Run(runCtx, asOf)

	outcome := "ok"
	fields := []zap.Field{
		zap.String("job", job.Name),
		zap.String("run_id", runID),
		zap.Int("affected", affected),
		zap.Duration("duration", time.Since(start)),
	}
	if err != nil {
		outcome = "error"
		r.logger.Error("Sweep finished with errors", append(fields, zap.Error(err))...)
	} else {
		r.logger.Info("Sweep finished", fields...)
	}
	metrics.RecordSweep(ctx, job.Name, outcome, affected)
	return affected, err
}

// DefaultJobs 按配置组装全部巡检
func DefaultJobs(cfg *config.Config, sweeper *Sweeper, dispatcher *service.Dispatcher, notifications *service.NotificationService) ([]Job, error) {
	loc := cfg.Location()
	var jobs []Job
	var errs []error

	daily := func(name, clock string, run func(context.Context, time.Time) (int, error)) {
		next, err := DailyAt(loc, clock)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
			return
		}
		jobs = append(jobs, Job{Name: name, Next: next, Run: run})
	}

	for _, clock := range cfg.ReminderTimes {
		daily("reminder@"+clock, clock, sweeper.RunReminders)
	}
	daily("missed", cfg.MissedTime, sweeper.RunMissedDetection)
	daily("anomaly", cfg.AnomalyTime, sweeper.DetectAnomalies)

	if next, err := WeeklyAt(loc, time.Monday, cfg.WeeklyReportTime); err != nil {
		errs = append(errs, fmt.Errorf("weekly_report: %w", err))
	} else {
		jobs = append(jobs, Job{Name: "weekly_report", Next: next, Run: sweeper.RunWeeklyReport})
	}

	retention := time.Duration(cfg.ReadRetentionDays) * 24 * time.Hour
	daily("cleanup", cfg.CleanupTime, func(ctx context.Context, asOf time.Time) (int, error) {
		n, err := notifications.CleanupRead(ctx, asOf, retention)
		return int(n), err
	})

	lateEvery := time.Duration(cfg.LateSweepMinutes) * time.Minute
	if lateEvery <= 0 {
		lateEvery = 15 * time.Minute
	}
	jobs = append(jobs, Job{Name: "late", Next: Every(lateEvery), Run: sweeper.PromoteLateCheckins})

	batch := cfg.DispatchBatchSize
	jobs = append(jobs, Job{
		Name:    "dispatch_pending",
		Next:    Every(time.Minute),
		Timeout: 2 * time.Minute,
		Run: func(ctx context.Context, _ time.Time) (int, error) {
			sent, _, err := dispatcher.DispatchPending(ctx, batch)
			return sent, err
		},
	})

	return jobs, errors.Join(errs...)
}

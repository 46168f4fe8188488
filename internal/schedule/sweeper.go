package schedule

// 巡检：迟到回填、提醒与漏打卡、情绪异常、周报
// 每个巡检都是 asOf 与库内状态的函数，由 Runner 按配置时间顺序触发

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"FamilyWell/internal/model"
	"FamilyWell/internal/repository"
	"FamilyWell/internal/service"
	"FamilyWell/pkg/logger"
	"FamilyWell/utils"
)

// Deduper 同一个 key 只放行一次；返回错误时调用方照常执行
// 领取后通知没有落库时必须 Release，否则当天的重跑会被跳过
type Deduper interface {
	Claim(ctx context.Context, key string) (bool, error)
	Release(ctx context.Context, key string) error
}

// Options 巡检依赖
type Options struct {
	Repos         *repository.Repositories
	Notifications *service.NotificationService
	Deduper       Deduper
	Location      *time.Location
	Policy        []AnomalyRule
	Grace         time.Duration
}

type Sweeper struct {
	repos         *repository.Repositories
	notifications *service.NotificationService
	deduper       Deduper
	loc           *time.Location
	policy        []AnomalyRule
	grace         time.Duration
	logger        *zap.Logger
}

func NewSweeper(opts Options) *Sweeper {
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if len(opts.Policy) == 0 {
		opts.Policy = DefaultPolicy()
	}
	if opts.Grace <= 0 {
		opts.Grace = 30 * time.Minute
	}
	return &Sweeper{
		repos:         opts.Repos,
		notifications: opts.Notifications,
		deduper:       opts.Deduper,
		loc:           opts.Location,
		policy:        opts.Policy,
		grace:         opts.Grace,
		logger:        logger.Named("sweeper"),
	}
}

// PromoteLateCheckins 把今天超出宽限期仍标记为 on_time 的记录改为 late，重复执行不会再改动
// 打卡日期按提交者时区记录，这里的“今天”也按记录所属用户的时区判断
func (s *Sweeper) PromoteLateCheckins(ctx context.Context, asOf time.Time) (int, error) {
	today := utils.StartOfDay(asOf, s.loc)
	date := today.Format(utils.DateLayout)

	// 各时区的今天都落在部署时区的前后一天之内
	records, err := s.repos.Checkins.ListOnTimeScheduled(ctx,
		today.AddDate(0, 0, -1).Format(utils.DateLayout),
		date,
		today.AddDate(0, 0, 1).Format(utils.DateLayout),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to list on-time checkins: %w", err)
	}
	locs, err := s.userLocations(ctx, records)
	if err != nil {
		return 0, err
	}

	promoted := 0
	var errs []error
	for i := range records {
		rec := &records[i]
		if rec.CheckinDate != utils.DateKey(asOf, locs[rec.UserID]) {
			continue
		}
		if !model.IsLateAt(rec.CheckinTime, rec.ScheduledTime, s.grace) {
			continue
		}
		changed, err := s.repos.Checkins.MarkLate(ctx, rec.ID)
		if err != nil {
			errs = append(errs, fmt.Errorf("record %d: %w", rec.ID, err))
			continue
		}
		if changed {
			promoted++
		}
	}

	s.logger.Info("Late checkin sweep finished",
		zap.String("date", date),
		zap.Int("scanned", len(records)),
		zap.Int("promoted", promoted),
	)
	return promoted, errors.Join(errs...)
}

// userLocations 记录所属用户的时区，查不到的用户取部署时区
func (s *Sweeper) userLocations(ctx context.Context, records []model.CheckinRecord) (map[int64]*time.Location, error) {
	locs := make(map[int64]*time.Location)
	ids := make([]int64, 0, len(records))
	for i := range records {
		if _, ok := locs[records[i].UserID]; !ok {
			locs[records[i].UserID] = s.loc
			ids = append(ids, records[i].UserID)
		}
	}
	if len(ids) == 0 {
		return locs, nil
	}

	users, err := s.repos.Users.ListByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to load users: %w", err)
	}
	for i := range users {
		locs[users[i].ID] = s.userLocation(&users[i])
	}
	return locs, nil
}

func (s *Sweeper) userLocation(u *model.User) *time.Location {
	return utils.LoadLocation(u.Timezone, s.loc)
}

// resolveTargets 显式名单限定在同一家庭的活跃用户，否则为家庭内全部活跃普通成员
func (s *Sweeper) resolveTargets(ctx context.Context, task *model.CheckinTask) ([]model.User, error) {
	if task.HasExplicitTargets() {
		return s.repos.Users.ListActiveInFamily(ctx, task.FamilyID, task.TargetMembers)
	}
	return s.repos.Users.ListActiveMembers(ctx, task.FamilyID, model.RoleFamilyMember)
}

// pendingTargets 目标成员中今天还没有打卡的，“今天”按成员自己的时区计算
func (s *Sweeper) pendingTargets(ctx context.Context, task *model.CheckinTask, asOf time.Time) ([]model.User, error) {
	targets, err := s.resolveTargets(ctx, task)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve targets: %w", err)
	}
	if len(targets) == 0 {
		return nil, nil
	}

	dates := make([]string, len(targets))
	done := make(map[string]map[int64]struct{})
	for i := range targets {
		dates[i] = utils.DateKey(asOf, s.userLocation(&targets[i]))
		if _, ok := done[dates[i]]; ok {
			continue
		}
		checked, err := s.repos.Checkins.CheckedUserIDs(ctx, task.ID, dates[i])
		if err != nil {
			return nil, fmt.Errorf("failed to query checked users: %w", err)
		}
		set := make(map[int64]struct{}, len(checked))
		for _, id := range checked {
			set[id] = struct{}{}
		}
		done[dates[i]] = set
	}

	remaining := make([]model.User, 0, len(targets))
	for i, u := range targets {
		if _, ok := done[dates[i]][u.ID]; !ok {
			remaining = append(remaining, u)
		}
	}
	return remaining, nil
}

// claim Redis 不可用时放行，退化为至少一次
func (s *Sweeper) claim(ctx context.Context, key string) bool {
	if s.deduper == nil {
		return true
	}
	ok, err := s.deduper.Claim(ctx, key)
	if err != nil {
		s.logger.Debug("Dedupe unavailable, proceeding", zap.String("key", key), zap.Error(err))
		return true
	}
	return ok
}

// release 写通知失败时归还 key
func (s *Sweeper) release(ctx context.Context, keys ...string) {
	if s.deduper == nil {
		return
	}
	for _, key := range keys {
		if err := s.deduper.Release(ctx, key); err != nil {
			s.logger.Warn("Failed to release dedupe key", zap.String("key", key), zap.Error(err))
		}
	}
}

// activeFamilies 活跃家庭 ID 集合
func (s *Sweeper) activeFamilies(ctx context.Context) (map[int64]*model.Family, error) {
	families, err := s.repos.Families.ListActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list families: %w", err)
	}
	set := make(map[int64]*model.Family, len(families))
	for i := range families {
		set[families[i].ID] = &families[i]
	}
	return set, nil
}

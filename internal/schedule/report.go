package schedule

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"FamilyWell/internal/model"
	"FamilyWell/internal/service"
	"FamilyWell/utils"
)

// lastWeek asOf 所在周的上一个周一到周日
func lastWeek(asOf time.Time, loc *time.Location) (time.Time, time.Time) {
	monday := utils.StartOfWeek(asOf, loc).AddDate(0, 0, -7)
	return monday, monday.AddDate(0, 0, 6)
}

// RunWeeklyReport 给每个有管理员的活跃家庭生成上周汇总
func (s *Sweeper) RunWeeklyReport(ctx context.Context, asOf time.Time) (int, error) {
	start, end := lastWeek(asOf, s.loc)
	from, to := start.Format(utils.DateLayout), end.Format(utils.DateLayout)

	families, err := s.repos.Families.ListActive(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list families: %w", err)
	}

	reports := 0
	var errs []error
	for i := range families {
		family := &families[i]
		admin, err := s.repos.Families.AdminOf(ctx, family)
		if err != nil {
			continue
		}
		key := fmt.Sprintf("weekly:%d:%s", family.ID, from)
		if !s.claim(ctx, key) {
			continue
		}

		n, err := s.weeklyReport(ctx, family, admin, start, end)
		if err == nil {
			err = s.notifications.Enqueue(ctx, n, "weekly_report")
		}
		if err != nil {
			s.release(ctx, key)
			s.logger.Error("Weekly report failed for family",
				zap.Int64("family_id", family.ID),
				zap.Error(err),
			)
			errs = append(errs, fmt.Errorf("family %d: %w", family.ID, err))
			continue
		}
		reports++
	}

	s.logger.Info("Weekly report sweep finished",
		zap.String("from", from),
		zap.String("to", to),
		zap.Int("reports", reports),
	)
	return reports, errors.Join(errs...)
}

func (s *Sweeper) weeklyReport(ctx context.Context, family *model.Family, admin *model.User, start, end time.Time) (*model.Notification, error) {
	from, to := start.Format(utils.DateLayout), end.Format(utils.DateLayout)

	members, err := s.repos.Users.ListActiveMembers(ctx, family.ID, "")
	if err != nil {
		return nil, fmt.Errorf("failed to list members: %w", err)
	}
	checkins, err := s.repos.Checkins.ListByFamilyDates(ctx, family.ID, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to list checkins: %w", err)
	}
	emotions, err := s.repos.Emotions.ListByFamilyRange(ctx, family.ID, start, end.AddDate(0, 0, 1))
	if err != nil {
		return nil, fmt.Errorf("failed to list emotion records: %w", err)
	}

	onTime, late := 0, 0
	for _, rec := range checkins {
		switch rec.Status {
		case model.CheckinStatusOnTime:
			onTime++
		case model.CheckinStatusLate:
			late++
		}
	}
	stats := service.ComputeEmotionStats(emotions, s.loc)

	var b strings.Builder
	fmt.Fprintf(&b, "家庭「%s」上周汇总报告\n\n", family.Name)
	fmt.Fprintf(&b, "时间范围: %s 至 %s\n", from, to)
	fmt.Fprintf(&b, "成员人数: %d\n\n", len(members))
	b.WriteString("打卡统计:\n")
	fmt.Fprintf(&b, "- 总打卡次数: %d\n", len(checkins))
	fmt.Fprintf(&b, "- 准时打卡: %d\n", onTime)
	fmt.Fprintf(&b, "- 迟到打卡: %d\n\n", late)
	b.WriteString("情绪统计:\n")
	for _, item := range stats.Distribution {
		if item.Count == 0 {
			continue
		}
		fmt.Fprintf(&b, "- %s: %d次\n", item.EmotionName, item.Count)
	}
	if stats.Total > 0 {
		fmt.Fprintf(&b, "- 负面情绪: %d次\n", stats.NegativeCount)
		fmt.Fprintf(&b, "- 平均情绪分: %.1f\n", stats.AvgScore)
	} else {
		b.WriteString("- 暂无记录\n")
	}

	related := family.ID
	return &model.Notification{
		NotificationType: model.NotificationTypeEmail,
		RecipientID:      admin.ID,
		RecipientEmail:   admin.Email,
		Subject:          fmt.Sprintf("家庭周报: %s (%s - %s)", family.Name, from, to),
		Content:          b.String(),
		RelatedType:      model.RelatedWeeklyReport,
		RelatedID:        &related,
	}, nil
}

package schedule

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"FamilyWell/config"
	"FamilyWell/internal/model"
	"FamilyWell/pkg/metrics"
	"FamilyWell/utils"
)

// AnomalyKind 异常触发类型
type AnomalyKind string

const (
	AnomalyAcute     AnomalyKind = "acute"
	AnomalySustained AnomalyKind = "sustained"
)

// AnomalyRule 一条触发规则；Window 为 0 表示只看 asOf 当天
type AnomalyRule struct {
	Kind             AnomalyKind
	MinConfidence    float64
	Window           time.Duration
	MinRecords       int
	MinNegativeRatio float64
}

// anomalyMatch 命中的规则与告警内容
type anomalyMatch struct {
	rule      AnomalyRule
	record    *model.EmotionRecord // acute 命中的记录
	total     int
	negatives int
}

type matcher func(rule AnomalyRule, records []model.EmotionRecord, asOf time.Time, loc *time.Location) *anomalyMatch

// 新的触发类型在这里注册，策略列表按顺序求值
var matchers = map[AnomalyKind]matcher{
	AnomalyAcute:     matchAcute,
	AnomalySustained: matchSustained,
}

// DefaultPolicy 先看当天的强烈负面情绪，再看近三天的负面占比
func DefaultPolicy() []AnomalyRule {
	return []AnomalyRule{
		{Kind: AnomalyAcute, MinConfidence: 0.70},
		{Kind: AnomalySustained, Window: 72 * time.Hour, MinRecords: 3, MinNegativeRatio: 0.60},
	}
}

// PolicyFromConfig 由环境变量覆盖默认阈值
func PolicyFromConfig(c *config.Config) []AnomalyRule {
	return []AnomalyRule{
		{Kind: AnomalyAcute, MinConfidence: c.AcuteMinConfidence},
		{
			Kind:             AnomalySustained,
			Window:           time.Duration(c.SustainedWindowHours) * time.Hour,
			MinRecords:       c.SustainedMinRecords,
			MinNegativeRatio: c.SustainedNegativeRatio,
		},
	}
}

func ruleSince(rule AnomalyRule, asOf time.Time, loc *time.Location) time.Time {
	if rule.Window <= 0 {
		return utils.StartOfDay(asOf, loc)
	}
	return asOf.Add(-rule.Window)
}

func matchAcute(rule AnomalyRule, records []model.EmotionRecord, asOf time.Time, loc *time.Location) *anomalyMatch {
	since := ruleSince(rule, asOf, loc)
	for i := range records {
		rec := &records[i]
		if rec.RecordedAt.Before(since) || rec.RecordedAt.After(asOf) {
			continue
		}
		if rec.IsNegative() && rec.Confidence >= rule.MinConfidence {
			return &anomalyMatch{rule: rule, record: rec}
		}
	}
	return nil
}

func matchSustained(rule AnomalyRule, records []model.EmotionRecord, asOf time.Time, loc *time.Location) *anomalyMatch {
	since := ruleSince(rule, asOf, loc)
	total, negatives := 0, 0
	for i := range records {
		rec := &records[i]
		if rec.RecordedAt.Before(since) || rec.RecordedAt.After(asOf) {
			continue
		}
		total++
		if rec.IsNegative() {
			negatives++
		}
	}
	if total == 0 || total < rule.MinRecords {
		return nil
	}
	if float64(negatives)/float64(total) < rule.MinNegativeRatio {
		return nil
	}
	return &anomalyMatch{rule: rule, total: total, negatives: negatives}
}

// evaluate 按顺序求值，第一条命中的规则生效
func evaluate(policy []AnomalyRule, records []model.EmotionRecord, asOf time.Time, loc *time.Location) *anomalyMatch {
	for _, rule := range policy {
		fn, ok := matchers[rule.Kind]
		if !ok {
			continue
		}
		if m := fn(rule, records, asOf, loc); m != nil {
			return m
		}
	}
	return nil
}

// lookback 策略中最早需要的时间点
func (s *Sweeper) lookback(asOf time.Time) time.Time {
	since := asOf
	for _, rule := range s.policy {
		if t := ruleSince(rule, asOf, s.loc); t.Before(since) {
			since = t
		}
	}
	return since
}

// DetectAnomalies 每个成员至多触发一次，告警以邮件形式发给家庭管理员
func (s *Sweeper) DetectAnomalies(ctx context.Context, asOf time.Time) (int, error) {
	families, err := s.repos.Families.ListActive(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list families: %w", err)
	}

	alerts := 0
	var errs []error
	for i := range families {
		family := &families[i]
		n, err := s.detectFamily(ctx, family, asOf)
		alerts += n
		if err != nil {
			s.logger.Error("Anomaly detection failed for family",
				zap.Int64("family_id", family.ID),
				zap.Error(err),
			)
			errs = append(errs, fmt.Errorf("family %d: %w", family.ID, err))
		}
	}

	s.logger.Info("Anomaly sweep finished",
		zap.Int("families", len(families)),
		zap.Int("alerts", alerts),
	)
	return alerts, errors.Join(errs...)
}

func (s *Sweeper) detectFamily(ctx context.Context, family *model.Family, asOf time.Time) (int, error) {
	admin, err := s.repos.Families.AdminOf(ctx, family)
	if err != nil {
		s.logger.Debug("Family has no admin, skipped", zap.Int64("family_id", family.ID))
		return 0, nil
	}

	members, err := s.repos.Users.ListActiveMembers(ctx, family.ID, model.RoleFamilyMember)
	if err != nil {
		return 0, fmt.Errorf("failed to list members: %w", err)
	}
	if len(members) == 0 {
		return 0, nil
	}

	records, err := s.repos.Emotions.ListByFamilyRange(ctx, family.ID, s.lookback(asOf), asOf.Add(time.Second))
	if err != nil {
		return 0, fmt.Errorf("failed to list emotion records: %w", err)
	}
	byUser := make(map[int64][]model.EmotionRecord)
	for _, rec := range records {
		byUser[rec.UserID] = append(byUser[rec.UserID], rec)
	}

	alerts := 0
	var errs []error
	for i := range members {
		member := &members[i]
		m := evaluate(s.policy, byUser[member.ID], asOf, s.loc)
		if m == nil {
			continue
		}
		if err := s.notifications.Enqueue(ctx, anomalyNotification(admin, member, m, s.loc), "anomaly"); err != nil {
			errs = append(errs, fmt.Errorf("member %d: %w", member.ID, err))
			continue
		}
		metrics.RecordAnomaly(ctx, string(m.rule.Kind))
		alerts++
	}
	return alerts, errors.Join(errs...)
}

func anomalyNotification(admin, member *model.User, m *anomalyMatch, loc *time.Location) *model.Notification {
	n := &model.Notification{
		NotificationType: model.NotificationTypeEmail,
		RecipientID:      admin.ID,
		RecipientEmail:   admin.Email,
	}

	switch m.rule.Kind {
	case AnomalyAcute:
		related := m.record.ID
		n.Subject = "情绪异常提醒: " + member.Name()
		n.Content = fmt.Sprintf("家庭成员 %s 检测到异常情绪:\n\n表情: %s\n置信度: %.2f%%\n时间: %s\n\n建议及时关注该成员的情绪状态。",
			member.Name(),
			m.record.Emotion.DisplayName(),
			m.record.Confidence*100,
			m.record.RecordedAt.In(loc).Format("2006-01-02 15:04"),
		)
		n.RelatedType = model.RelatedEmotionRecord
		n.RelatedID = &related
	default:
		related := member.ID
		n.Subject = "情绪趋势提醒: " + member.Name()
		n.Content = fmt.Sprintf("家庭成员 %s 最近 %d 小时情绪不佳:\n\n负面情绪占比: %.1f%%\n记录次数: %d\n\n建议及时关注该成员的情绪状态。",
			member.Name(),
			int(m.rule.Window.Hours()),
			float64(m.negatives)/float64(m.total)*100,
			m.total,
		)
		n.RelatedType = model.RelatedEmotionTrend
		n.RelatedID = &related
	}
	return n
}

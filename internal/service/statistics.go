package service

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"FamilyWell/internal/model"
	"FamilyWell/internal/model/dto"
	"FamilyWell/internal/repository"
	"FamilyWell/utils"
)

const (
	DefaultStatsWindowDays = 30
	MaxStatsWindowDays     = 365
	DefaultTrendDays       = 14

	TrendImproving = "improving"
	TrendDeclining = "declining"
	TrendStable    = "stable"

	trendWindowDays  = 7
	trendMinDays     = 3
	trendDeadband    = 5.0
	trendHistoryDays = 2 * trendWindowDays
)

var (
	statisticsService *StatisticsService
	statisticsOnce    sync.Once
)

func Statistics() *StatisticsService {
	statisticsOnce.Do(func() {
		statisticsService = NewStatisticsService(deps)
	})
	return statisticsService
}

// StatisticsService 打卡与情绪的窗口统计，只读
type StatisticsService struct {
	repos *repository.Repositories
	loc   *time.Location
}

func NewStatisticsService(d Deps) *StatisticsService {
	d = d.withDefaults()
	return &StatisticsService{repos: d.Repos, loc: d.Location}
}

// Scope 统计范围，FamilyID 非零时按家庭统计
type Scope struct {
	UserID   int64
	FamilyID int64
}

// ResolveScope 按当前用户解析统计范围与观察者时区
func (s *StatisticsService) ResolveScope(ctx context.Context, userID int64, familyWide bool) (Scope, *time.Location, error) {
	user, err := loadUser(ctx, s.repos, userID)
	if err != nil {
		return Scope{}, nil, err
	}
	loc := userLocation(user, s.loc)
	if !familyWide {
		return Scope{UserID: user.ID}, loc, nil
	}
	familyID, err := familyOf(user)
	if err != nil {
		return Scope{}, nil, err
	}
	return Scope{FamilyID: familyID}, loc, nil
}

// NormalizeWindow 窗口天数取默认值并限制上限
func NormalizeWindow(days, def int) int {
	if days <= 0 {
		return def
	}
	if days > MaxStatsWindowDays {
		return MaxStatsWindowDays
	}
	return days
}

// CheckinStatistics 最近 windowDays 天（含今天）的打卡统计
func (s *StatisticsService) CheckinStatistics(ctx context.Context, userID int64, windowDays int, asOf time.Time) (*dto.CheckinStatistics, error) {
	user, err := loadUser(ctx, s.repos, userID)
	if err != nil {
		return nil, err
	}
	windowDays = NormalizeWindow(windowDays, DefaultStatsWindowDays)
	loc := userLocation(user, s.loc)

	today := utils.StartOfDay(asOf, loc)
	windowStart := today.AddDate(0, 0, -(windowDays - 1))

	records, err := s.repos.Checkins.ListByUserDates(ctx, user.ID, windowStart.Format(utils.DateLayout), today.Format(utils.DateLayout))
	if err != nil {
		return nil, fmt.Errorf("failed to list checkin records: %w", err)
	}

	var tasks []model.CheckinTask
	if user.FamilyID != nil {
		all, err := s.repos.Tasks.ListActiveByFamily(ctx, *user.FamilyID)
		if err != nil {
			return nil, fmt.Errorf("failed to list tasks: %w", err)
		}
		for i := range all {
			if all[i].Targets(user.ID) {
				tasks = append(tasks, all[i])
			}
		}
	}

	stats := ComputeCheckinStats(records, tasks, windowStart, today, loc)
	stats.WindowDays = windowDays
	return &stats, nil
}

// ComputeCheckinStats 汇总打卡记录；missed 为应打卡次数减去实际打卡次数，今天不计入应打卡
func ComputeCheckinStats(records []model.CheckinRecord, tasks []model.CheckinTask, windowStart, today time.Time, loc *time.Location) dto.CheckinStatistics {
	var stats dto.CheckinStatistics

	observed := make(map[int64]map[string]struct{})
	for i := range records {
		rec := &records[i]
		stats.Total++
		switch rec.Status {
		case model.CheckinStatusOnTime:
			stats.OnTime++
		case model.CheckinStatusLate:
			stats.Late++
		case model.CheckinStatusMissed:
			stats.Missed++
		}
		if observed[rec.TaskID] == nil {
			observed[rec.TaskID] = make(map[string]struct{})
		}
		observed[rec.TaskID][rec.CheckinDate] = struct{}{}
	}

	for i := range tasks {
		stats.Missed += missedInstances(&tasks[i], observed[tasks[i].ID], windowStart, today, loc)
	}

	if stats.Total > 0 {
		stats.Rate = round(float64(stats.OnTime)/float64(stats.Total), 4)
	}
	return stats
}

func missedInstances(task *model.CheckinTask, seen map[string]struct{}, windowStart, today time.Time, loc *time.Location) int {
	created := utils.StartOfDay(task.CreatedAt, loc)
	has := func(day time.Time) bool {
		_, ok := seen[day.Format(utils.DateLayout)]
		return ok
	}

	missed := 0
	switch task.TaskType {
	case model.TaskTypeDaily:
		day := windowStart
		if created.After(day) {
			day = created
		}
		for ; day.Before(today); day = day.AddDate(0, 0, 1) {
			if !has(day) {
				missed++
			}
		}
	case model.TaskTypeWeekly:
		// 只计算完整落在窗口内且已经结束的自然周
		week := utils.StartOfWeek(windowStart, loc)
		if week.Before(windowStart) {
			week = week.AddDate(0, 0, 7)
		}
		for ; !week.AddDate(0, 0, 7).After(today); week = week.AddDate(0, 0, 7) {
			if week.Before(created) {
				continue
			}
			done := false
			for d := 0; d < 7 && !done; d++ {
				done = has(week.AddDate(0, 0, d))
			}
			if !done {
				missed++
			}
		}
	}
	return missed
}

// EmotionStatistics 最近 windowDays 天（含今天）的情绪统计，按观察者时区分天
func (s *StatisticsService) EmotionStatistics(ctx context.Context, scope Scope, windowDays int, asOf time.Time, loc *time.Location) (*dto.EmotionStatistics, error) {
	if loc == nil {
		loc = s.loc
	}
	windowDays = NormalizeWindow(windowDays, DefaultStatsWindowDays)

	until := utils.StartOfDay(asOf, loc).AddDate(0, 0, 1)
	since := until.AddDate(0, 0, -windowDays)

	records, err := s.emotionRecords(ctx, scope, since, until)
	if err != nil {
		return nil, err
	}

	stats := ComputeEmotionStats(records, loc)
	stats.WindowDays = windowDays
	return &stats, nil
}

// EmotionTrends 逐日平均分与最近 7 天对比前 7 天的趋势
func (s *StatisticsService) EmotionTrends(ctx context.Context, userID int64, days int, asOf time.Time, loc *time.Location) (*dto.EmotionTrend, error) {
	if loc == nil {
		loc = s.loc
	}
	days = NormalizeWindow(days, DefaultTrendDays)

	span := days
	if span < trendHistoryDays {
		span = trendHistoryDays
	}
	until := utils.StartOfDay(asOf, loc).AddDate(0, 0, 1)
	since := until.AddDate(0, 0, -span)

	records, err := s.emotionRecords(ctx, Scope{UserID: userID}, since, until)
	if err != nil {
		return nil, err
	}

	series := DailyScores(records, since, span, loc)
	direction, recent, previous := TrendDirection(series)

	return &dto.EmotionTrend{
		RecentAvg:   recent,
		PreviousAvg: previous,
		Direction:   direction,
		Series:      series[len(series)-days:],
		Days:        days,
	}, nil
}

func (s *StatisticsService) emotionRecords(ctx context.Context, scope Scope, since, until time.Time) ([]model.EmotionRecord, error) {
	var (
		records []model.EmotionRecord
		err     error
	)
	if scope.FamilyID != 0 {
		records, err = s.repos.Emotions.ListByFamilyRange(ctx, scope.FamilyID, since, until)
	} else {
		records, err = s.repos.Emotions.ListByUserRange(ctx, scope.UserID, since, until)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list emotion records: %w", err)
	}
	return records, nil
}

// ComputeEmotionStats 情绪分布、负面占比与逐日明细，records 需按记录时间升序
func ComputeEmotionStats(records []model.EmotionRecord, loc *time.Location) dto.EmotionStatistics {
	stats := dto.EmotionStatistics{
		Distribution: make([]dto.EmotionDistributionItem, 0, len(model.AllEmotions)),
		Daily:        []dto.DailyEmotionStat{},
		Total:        len(records),
	}

	counts := make(map[model.Emotion]int)
	confidence := make(map[model.Emotion]float64)
	var scoreSum float64
	for i := range records {
		rec := &records[i]
		counts[rec.Emotion]++
		confidence[rec.Emotion] += rec.Confidence
		scoreSum += rec.Score()
		if rec.IsNegative() {
			stats.NegativeCount++
		}
	}

	for _, e := range model.AllEmotions {
		item := dto.EmotionDistributionItem{
			Emotion:     string(e),
			EmotionName: e.DisplayName(),
			Count:       counts[e],
		}
		if stats.Total > 0 {
			item.Percentage = round(float64(counts[e])*100/float64(stats.Total), 2)
		}
		if counts[e] > 0 {
			item.AvgConfidence = round(confidence[e]/float64(counts[e]), 4)
		}
		stats.Distribution = append(stats.Distribution, item)
	}

	if stats.Total == 0 {
		return stats
	}

	stats.NegativeRatio = round(float64(stats.NegativeCount)/float64(stats.Total), 4)
	stats.AvgScore = round(scoreSum/float64(stats.Total), 2)
	stats.DominantEmotion = string(dominantEmotion(records))

	buckets := make(map[string][]model.EmotionRecord)
	var dates []string
	for i := range records {
		key := utils.DateKey(records[i].RecordedAt, loc)
		if _, ok := buckets[key]; !ok {
			dates = append(dates, key)
		}
		buckets[key] = append(buckets[key], records[i])
	}
	sort.Strings(dates)

	for _, date := range dates {
		day := buckets[date]
		stat := dto.DailyEmotionStat{
			Date:            date,
			DominantEmotion: string(dominantEmotion(day)),
			Count:           len(day),
		}
		var sum float64
		for i := range day {
			sum += day[i].Score()
			if day[i].IsNegative() {
				stat.NegativeCount++
			}
		}
		stat.AvgScore = round(sum/float64(len(day)), 2)
		stats.Daily = append(stats.Daily, stat)
	}
	return stats
}

// dominantEmotion 众数，并列时取最先出现的情绪
func dominantEmotion(records []model.EmotionRecord) model.Emotion {
	counts := make(map[model.Emotion]int)
	var order []model.Emotion
	for i := range records {
		e := records[i].Emotion
		if counts[e] == 0 {
			order = append(order, e)
		}
		counts[e]++
	}

	var best model.Emotion
	for _, e := range order {
		if counts[e] > counts[best] {
			best = e
		}
	}
	return best
}

// DailyScores 从 since 起连续 days 天的平均分，无记录的日期 score 为 nil
func DailyScores(records []model.EmotionRecord, since time.Time, days int, loc *time.Location) []dto.TrendPoint {
	sums := make(map[string]float64)
	counts := make(map[string]int)
	for i := range records {
		key := utils.DateKey(records[i].RecordedAt, loc)
		sums[key] += records[i].Score()
		counts[key]++
	}

	start := utils.StartOfDay(since, loc)
	series := make([]dto.TrendPoint, 0, days)
	for d := 0; d < days; d++ {
		key := start.AddDate(0, 0, d).Format(utils.DateLayout)
		point := dto.TrendPoint{Date: key, Count: counts[key]}
		if n := counts[key]; n > 0 {
			avg := round(sums[key]/float64(n), 2)
			point.Score = &avg
		}
		series = append(series, point)
	}
	return series
}

// TrendDirection 比较最近 7 天与之前 7 天的日均分；任一窗口有效天数不足 3 天时为 stable
func TrendDirection(series []dto.TrendPoint) (direction string, recentAvg, previousAvg *float64) {
	n := len(series)
	recentStart := n - trendWindowDays
	if recentStart < 0 {
		recentStart = 0
	}
	previousStart := recentStart - trendWindowDays
	if previousStart < 0 {
		previousStart = 0
	}

	recent, recentDays := meanScore(series[recentStart:])
	previous, previousDays := meanScore(series[previousStart:recentStart])

	if recentDays > 0 {
		recentAvg = &recent
	}
	if previousDays > 0 {
		previousAvg = &previous
	}

	if recentDays < trendMinDays || previousDays < trendMinDays {
		return TrendStable, recentAvg, previousAvg
	}

	switch diff := recent - previous; {
	case diff > trendDeadband:
		return TrendImproving, recentAvg, previousAvg
	case diff < -trendDeadband:
		return TrendDeclining, recentAvg, previousAvg
	default:
		return TrendStable, recentAvg, previousAvg
	}
}

func meanScore(points []dto.TrendPoint) (float64, int) {
	var sum float64
	days := 0
	for _, p := range points {
		if p.Score == nil {
			continue
		}
		sum += *p.Score
		days++
	}
	if days == 0 {
		return 0, 0
	}
	return round(sum/float64(days), 2), days
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}

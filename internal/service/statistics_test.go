package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"FamilyWell/internal/model"
	"FamilyWell/internal/model/dto"
	"FamilyWell/internal/testutil"
)

func emotionAt(e model.Emotion, at time.Time) model.EmotionRecord {
	return model.EmotionRecord{Emotion: e, Confidence: 0.8, RecordedAt: at}
}

func TestComputeEmotionStatsEmptyWindow(t *testing.T) {
	stats := ComputeEmotionStats(nil, shanghai)

	assert.Equal(t, 0, stats.Total)
	assert.Equal(t, 0.0, stats.NegativeRatio)
	assert.Equal(t, 0.0, stats.AvgScore)
	assert.Empty(t, stats.DominantEmotion)
	assert.Empty(t, stats.Daily)
	require.Len(t, stats.Distribution, len(model.AllEmotions))
	for _, item := range stats.Distribution {
		assert.Equal(t, 0.0, item.Percentage)
		assert.Equal(t, 0.0, item.AvgConfidence)
	}
}

func TestComputeEmotionStatsAggregates(t *testing.T) {
	base := time.Date(2026, 10, 14, 10, 0, 0, 0, shanghai)
	records := []model.EmotionRecord{
		emotionAt(model.EmotionHappy, base),
		emotionAt(model.EmotionSad, base.Add(time.Hour)),
		emotionAt(model.EmotionSad, base.Add(2*time.Hour)),
		emotionAt(model.EmotionNeutral, base.Add(3*time.Hour)),
	}

	stats := ComputeEmotionStats(records, shanghai)

	assert.Equal(t, 4, stats.Total)
	assert.Equal(t, 2, stats.NegativeCount)
	assert.Equal(t, 0.5, stats.NegativeRatio)
	assert.Equal(t, 58.75, stats.AvgScore) // (90+40+40+65)/4
	assert.Equal(t, "sad", stats.DominantEmotion)

	byEmotion := map[string]dto.EmotionDistributionItem{}
	for _, item := range stats.Distribution {
		byEmotion[item.Emotion] = item
	}
	assert.Equal(t, 50.0, byEmotion["sad"].Percentage)
	assert.Equal(t, 25.0, byEmotion["happy"].Percentage)
	assert.Equal(t, 0.8, byEmotion["sad"].AvgConfidence)
	assert.Equal(t, 0, byEmotion["angry"].Count)
}

func TestDailyBreakdownUsesObserverDate(t *testing.T) {
	// 2026-10-14 17:30 UTC 在上海已是 10-15
	at := time.Date(2026, 10, 14, 17, 30, 0, 0, time.UTC)
	records := []model.EmotionRecord{emotionAt(model.EmotionHappy, at)}

	local := ComputeEmotionStats(records, shanghai)
	require.Len(t, local.Daily, 1)
	assert.Equal(t, "2026-10-15", local.Daily[0].Date)

	utc := ComputeEmotionStats(records, time.UTC)
	require.Len(t, utc.Daily, 1)
	assert.Equal(t, "2026-10-14", utc.Daily[0].Date)
}

func TestDailyDominantTieGoesToFirstSeen(t *testing.T) {
	base := time.Date(2026, 10, 14, 8, 0, 0, 0, shanghai)
	records := []model.EmotionRecord{
		emotionAt(model.EmotionNeutral, base),
		emotionAt(model.EmotionHappy, base.Add(time.Hour)),
		emotionAt(model.EmotionHappy, base.Add(2*time.Hour)),
		emotionAt(model.EmotionNeutral, base.Add(3*time.Hour)),
	}

	stats := ComputeEmotionStats(records, shanghai)
	require.Len(t, stats.Daily, 1)
	assert.Equal(t, "neutral", stats.Daily[0].DominantEmotion)
	assert.Equal(t, 77.5, stats.Daily[0].AvgScore)
	assert.Equal(t, "neutral", stats.DominantEmotion)
}

func series(recent, previous []float64) []dto.TrendPoint {
	var points []dto.TrendPoint
	add := func(scores []float64) {
		for i := 0; i < trendWindowDays; i++ {
			p := dto.TrendPoint{Date: time.Date(2026, 10, 1+len(points), 0, 0, 0, 0, time.UTC).Format("2006-01-02")}
			if i < len(scores) {
				s := scores[i]
				p.Score = &s
				p.Count = 1
			}
			points = append(points, p)
		}
	}
	add(previous)
	add(recent)
	return points
}

func TestTrendDirection(t *testing.T) {
	cases := []struct {
		name     string
		recent   []float64
		previous []float64
		want     string
	}{
		{"improving", []float64{70, 70, 70}, []float64{60, 60, 60, 60}, TrendImproving},
		{"inside deadband", []float64{68, 68, 68}, []float64{65, 65, 65}, TrendStable},
		{"exactly deadband", []float64{70, 70, 70}, []float64{65, 65, 65}, TrendStable},
		{"declining", []float64{40, 40, 40}, []float64{65, 65, 65}, TrendDeclining},
		{"recent too sparse", []float64{20, 20}, []float64{90, 90, 90}, TrendStable},
		{"previous too sparse", []float64{90, 90, 90}, []float64{20}, TrendStable},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			direction, _, _ := TrendDirection(series(tc.recent, tc.previous))
			assert.Equal(t, tc.want, direction)
		})
	}
}

func TestTrendDirectionReportsAverages(t *testing.T) {
	_, recent, previous := TrendDirection(series([]float64{70, 80}, nil))
	require.NotNil(t, recent)
	assert.Equal(t, 75.0, *recent)
	assert.Nil(t, previous)
}

func TestComputeCheckinStatsDailyMissed(t *testing.T) {
	today := time.Date(2026, 10, 15, 0, 0, 0, 0, shanghai)
	windowStart := today.AddDate(0, 0, -6)

	task := model.CheckinTask{TaskType: model.TaskTypeDaily}
	task.ID = 1
	// 三天前创建：期望 10-12、10-13、10-14 三次
	task.CreatedAt = today.AddDate(0, 0, -3).Add(15 * time.Hour)

	records := []model.CheckinRecord{
		{TaskID: 1, CheckinDate: "2026-10-12", Status: model.CheckinStatusOnTime},
		{TaskID: 1, CheckinDate: "2026-10-15", Status: model.CheckinStatusLate},
	}

	stats := ComputeCheckinStats(records, []model.CheckinTask{task}, windowStart, today, shanghai)
	assert.Equal(t, 2, stats.Total)
	assert.Equal(t, 1, stats.OnTime)
	assert.Equal(t, 1, stats.Late)
	assert.Equal(t, 2, stats.Missed)
	assert.Equal(t, 0.5, stats.Rate)
}

func TestComputeCheckinStatsWeeklyMissed(t *testing.T) {
	// 2026-10-15 是周四；14 天窗口从 10-02 开始，只有 10-05 到 10-11 一整周
	today := time.Date(2026, 10, 15, 0, 0, 0, 0, shanghai)
	windowStart := today.AddDate(0, 0, -13)

	task := model.CheckinTask{TaskType: model.TaskTypeWeekly}
	task.ID = 7
	task.CreatedAt = today.AddDate(0, 0, -60)

	stats := ComputeCheckinStats(nil, []model.CheckinTask{task}, windowStart, today, shanghai)
	assert.Equal(t, 1, stats.Missed)

	done := []model.CheckinRecord{{TaskID: 7, CheckinDate: "2026-10-09", Status: model.CheckinStatusOnTime}}
	stats = ComputeCheckinStats(done, []model.CheckinTask{task}, windowStart, today, shanghai)
	assert.Equal(t, 0, stats.Missed)
	assert.Equal(t, 1.0, stats.Rate)
}

func TestComputeCheckinStatsZeroTotal(t *testing.T) {
	today := time.Date(2026, 10, 15, 0, 0, 0, 0, shanghai)
	stats := ComputeCheckinStats(nil, nil, today.AddDate(0, 0, -6), today, shanghai)
	assert.Equal(t, dto.CheckinStatistics{}, stats)
}

func TestEmotionStatisticsForFamily(t *testing.T) {
	e := newEnv(t)
	fx := testutil.SeedFamily(t, e.db, "F1", 2)
	other := testutil.SeedFamily(t, e.db, "F2", 1)

	testutil.Emotion(t, e.db, fx.Members[0], model.EmotionHappy, 0.9, e.now.Add(-time.Hour))
	testutil.Emotion(t, e.db, fx.Members[1], model.EmotionSad, 0.9, e.now.Add(-2*time.Hour))
	testutil.Emotion(t, e.db, fx.Members[1], model.EmotionSad, 0.9, e.now.AddDate(0, 0, -40))
	testutil.Emotion(t, e.db, other.Members[0], model.EmotionAngry, 0.9, e.now.Add(-time.Hour))

	svc := NewStatisticsService(e.deps())
	scope, loc, err := svc.ResolveScope(context.Background(), fx.Members[0].ID, true)
	require.NoError(t, err)
	assert.Equal(t, fx.Family.ID, scope.FamilyID)

	stats, err := svc.EmotionStatistics(context.Background(), scope, 30, e.now, loc)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Total)
	assert.Equal(t, 1, stats.NegativeCount)
	assert.Equal(t, 30, stats.WindowDays)

	mine, err := svc.EmotionStatistics(context.Background(), Scope{UserID: fx.Members[0].ID}, 30, e.now, loc)
	require.NoError(t, err)
	assert.Equal(t, 1, mine.Total)
}

func TestEmotionTrendsFromRecords(t *testing.T) {
	e := newEnv(t)
	fx := testutil.SeedFamily(t, e.db, "F1", 1)
	member := fx.Members[0]

	today := time.Date(2026, 10, 15, 12, 0, 0, 0, shanghai)
	for d := 0; d < 4; d++ {
		testutil.Emotion(t, e.db, member, model.EmotionHappy, 0.9, today.AddDate(0, 0, -d))
		testutil.Emotion(t, e.db, member, model.EmotionSad, 0.9, today.AddDate(0, 0, -7-d))
	}

	trend, err := NewStatisticsService(e.deps()).EmotionTrends(context.Background(), member.ID, 14, today, shanghai)
	require.NoError(t, err)
	assert.Equal(t, TrendImproving, trend.Direction)
	require.Len(t, trend.Series, 14)
	assert.Equal(t, "2026-10-15", trend.Series[13].Date)
	require.NotNil(t, trend.RecentAvg)
	assert.Equal(t, 90.0, *trend.RecentAvg)
	require.NotNil(t, trend.PreviousAvg)
	assert.Equal(t, 40.0, *trend.PreviousAvg)
}

func TestCheckinStatisticsCountsMissedDays(t *testing.T) {
	e := newEnv(t)
	fx := testutil.SeedFamily(t, e.db, "F1", 1)
	member := fx.Members[0]
	task := testutil.DailyTask(t, e.db, fx, "早安", "09:00")
	created := time.Date(2026, 10, 10, 8, 0, 0, 0, shanghai)
	require.NoError(t, e.db.Model(task).Update("created_at", created.UTC()).Error)

	svc := NewCheckinService(e.deps())
	for _, day := range []int{11, 13} {
		e.now = time.Date(2026, 10, day, 9, 10, 0, 0, shanghai)
		_, err := svc.Submit(context.Background(), SubmitInput{TaskID: task.ID, UserID: member.ID, Photo: testPhoto(t)})
		require.NoError(t, err)
	}

	asOf := time.Date(2026, 10, 15, 8, 0, 0, 0, shanghai)
	stats, err := NewStatisticsService(e.deps()).CheckinStatistics(context.Background(), member.ID, 7, asOf)
	require.NoError(t, err)
	// 期望 10-10 到 10-14 共 5 次，实际 2 次
	assert.Equal(t, 2, stats.Total)
	assert.Equal(t, 2, stats.OnTime)
	assert.Equal(t, 3, stats.Missed)
	assert.Equal(t, 1.0, stats.Rate)
}

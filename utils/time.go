package utils

import (
	"fmt"
	"time"
)

const DateLayout = "2006-01-02"

// ParseClock 解析 "HH:MM" 或 "HH:MM:SS"
func ParseClock(clock string) (hour, minute, second int, err error) {
	for _, layout := range []string{"15:04", "15:04:05"} {
		t, perr := time.Parse(layout, clock)
		if perr == nil {
			return t.Hour(), t.Minute(), t.Second(), nil
		}
	}
	return 0, 0, 0, fmt.Errorf("invalid time of day %q", clock)
}

// AtClock 把时刻应用到 date 所在时区的当天
func AtClock(date time.Time, clock string) (time.Time, error) {
	h, m, s, err := ParseClock(clock)
	if err != nil {
		return time.Time{}, err
	}
	return time.Date(date.Year(), date.Month(), date.Day(), h, m, s, 0, date.Location()), nil
}

// DateKey 返回 t 在 loc 下的日历日期
func DateKey(t time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	return t.In(loc).Format(DateLayout)
}

// StartOfDay 返回 t 在 loc 下当天 00:00
func StartOfDay(t time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	lt := t.In(loc)
	return time.Date(lt.Year(), lt.Month(), lt.Day(), 0, 0, 0, 0, loc)
}

// StartOfWeek 返回 t 所在周的周一 00:00
func StartOfWeek(t time.Time, loc *time.Location) time.Time {
	day := StartOfDay(t, loc)
	offset := (int(day.Weekday()) + 6) % 7
	return day.AddDate(0, 0, -offset)
}

// LoadLocation 加载时区，失败时返回 fallback
func LoadLocation(name string, fallback *time.Location) *time.Location {
	if name == "" {
		return fallback
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return fallback
	}
	return loc
}

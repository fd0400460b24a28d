package utils

import "time"

// time.go - временные утилиты
//
// Периоды комиссий и снимков производительности считаются в UTC.

// Period возвращает учетный период для времени t в формате YYYY-MM.
// В этом формате периоды хранятся в fee_income и bot_performance.
func Period(t time.Time) string {
	return t.UTC().Format("2006-01")
}

// CurrentPeriod возвращает текущий учетный период
func CurrentPeriod() string {
	return Period(time.Now())
}

// DayStart возвращает начало дня (00:00:00 UTC) для указанного времени
func DayStart(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// Package timebucket maps instants to calendar buckets in the ledger's fixed
// reporting timezone (UTC+3, no DST). All bucket math is a pure function of
// the instant and the fixed offset; the process timezone is never consulted.
package timebucket

import (
	"fmt"
	"time"
)

// Zone is the fixed reporting offset, UTC+3 with no DST transitions.
var Zone = time.FixedZone("UTC+3", 3*60*60)

// ToLocal returns t expressed in the fixed reporting offset.
func ToLocal(t time.Time) time.Time {
	return t.In(Zone)
}

// StartOfDay returns the first instant of t's local calendar day, as UTC.
func StartOfDay(t time.Time) time.Time {
	lt := t.In(Zone)
	return time.Date(lt.Year(), lt.Month(), lt.Day(), 0, 0, 0, 0, Zone).UTC()
}

// EndOfDay returns the last instant of t's local calendar day at millisecond
// resolution (23:59:59.999 local), as UTC. Day ranges are inclusive on both
// bounds, so this pairs with StartOfDay to cover a full day.
func EndOfDay(t time.Time) time.Time {
	return StartOfDay(t).Add(24*time.Hour - time.Millisecond)
}

// DailyKey formats t's local calendar date as "YYYY-MM-DD".
func DailyKey(t time.Time) string {
	return t.In(Zone).Format("2006-01-02")
}

// MonthlyKey formats t's local calendar month as "YYYY_MM".
func MonthlyKey(t time.Time) string {
	return t.In(Zone).Format("2006_01")
}

// WeeklyKey formats t as "YYYY_WW" where YYYY is the local calendar year and
// WW the ISO-8601 week number (week 1 contains the year's first Thursday).
func WeeklyKey(t time.Time) string {
	lt := t.In(Zone)
	_, week := lt.ISOWeek()
	return fmt.Sprintf("%04d_%02d", lt.Year(), week)
}

// IsAlignedFullDays reports whether [from, to] covers whole local calendar
// days exactly: from must be a local midnight and to must be a local
// 23:59:59.999. Aligned ranges may be served from precomputed daily rollups;
// anything else must be aggregated from raw transactions.
func IsAlignedFullDays(from, to time.Time) bool {
	return from.Equal(StartOfDay(from)) && to.Equal(EndOfDay(to))
}

// DayStarts returns the local-midnight instants of every day in [from, to],
// in ascending order. from and to are interpreted by their local calendar
// day, so callers can pass any instant within the first and last days.
func DayStarts(from, to time.Time) []time.Time {
	var days []time.Time
	for d := StartOfDay(from); !d.After(to); d = d.Add(24 * time.Hour) {
		days = append(days, d)
	}
	return days
}

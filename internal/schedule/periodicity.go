package schedule

import (
	"strings"
	"time"
)

type Periodicity string

const (
	OneTime Periodicity = "one_time"
	Daily   Periodicity = "daily"
	Weekly  Periodicity = "weekly"
	Custom  Periodicity = "custom"
)

// Normalize lowercases and trims p; an empty value stays empty.
func (p Periodicity) Normalize() Periodicity {
	return Periodicity(strings.ToLower(strings.TrimSpace(string(p))))
}

// Known reports whether p is one of the four stored periodicities.
func (p Periodicity) Known() bool {
	switch p.Normalize() {
	case OneTime, Daily, Weekly, Custom:
		return true
	}
	return false
}

// Recurring reports whether p repeats (daily, weekly or custom).
func (p Periodicity) Recurring() bool {
	switch p.Normalize() {
	case Daily, Weekly, Custom:
		return true
	}
	return false
}

// WeeklyAnchor is the only day a weekly task is due. Tasks carry no anchor of their own.
const WeeklyAnchor = Monday

// DuePolicy decides what an unrecognised periodicity means.
type DuePolicy int

const (
	UnknownIsNotDue DuePolicy = iota
	UnknownIsDue
)

// IsDueToday decides whether a task with periodicity p is due on today's
// weekday. Unknown periodicities are never due; see DuePolicy.IsDueToday.
func IsDueToday(p Periodicity, customDays []Weekday, today time.Time) bool {
	return UnknownIsNotDue.IsDueToday(p, customDays, today)
}

func (policy DuePolicy) IsDueToday(p Periodicity, customDays []Weekday, today time.Time) bool {
	wd := WeekdayOf(today)
	switch p.Normalize() {
	case OneTime, Daily:
		return true
	case Weekly:
		return wd == WeeklyAnchor
	case Custom:
		for _, d := range customDays {
			if d == wd {
				return true
			}
		}
		return false
	default:
		return policy == UnknownIsDue
	}
}

// IsDueTodayNames is IsDueToday over stored day names; unknown names are ignored.
func (policy DuePolicy) IsDueTodayNames(p Periodicity, customDays []string, today time.Time) bool {
	var days []Weekday
	if p.Normalize() == Custom {
		days = WeekdaysFromNames(customDays)
	}
	return policy.IsDueToday(p, days, today)
}

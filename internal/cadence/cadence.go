// Package cadence implements the reporting schedule rules: computing the
// next due date for a link's cadence and classifying compliance relative
// to a point in time. Everything here is pure; persistence and clock
// injection live in the engine.
package cadence

import (
	"fmt"
	"time"

	"reportline/internal/domain"
)

// TimeLayout is the wire format for due dates and submission timestamps.
// RFC 3339 with millisecond precision; due dates land on 23:59:59.999.
const TimeLayout = "2006-01-02T15:04:05.000Z07:00"

type Interval string

const (
	IntervalNone    Interval = "none"
	IntervalDaily   Interval = "daily"
	IntervalWeekly  Interval = "weekly"
	IntervalMonthly Interval = "monthly"
)

// Schedule is the cadence configuration of a reporting link. DayOfWeek
// (0=Sunday) applies to weekly cadences, DayOfMonth (1-31) to monthly;
// unset anchors default to 0 and 1 respectively.
type Schedule struct {
	Interval   Interval
	DayOfWeek  *int
	DayOfMonth *int
}

// InvalidScheduleError reports an out-of-range anchor day supplied when
// configuring a schedule. Unset anchors are valid; out-of-range ones are
// rejected before the schedule reaches NextDue.
type InvalidScheduleError struct {
	Field string
	Value int
}

func (e InvalidScheduleError) Error() string {
	return fmt.Sprintf("invalid schedule: %s %d out of range", e.Field, e.Value)
}

// Validate rejects malformed schedule configuration at the boundary.
func (s Schedule) Validate() error {
	switch s.Interval {
	case IntervalNone, IntervalDaily, IntervalWeekly, IntervalMonthly:
	default:
		return fmt.Errorf("invalid schedule: unknown interval %q", s.Interval)
	}
	if s.DayOfWeek != nil && (*s.DayOfWeek < 0 || *s.DayOfWeek > 6) {
		return InvalidScheduleError{Field: "day_of_week", Value: *s.DayOfWeek}
	}
	if s.DayOfMonth != nil && (*s.DayOfMonth < 1 || *s.DayOfMonth > 31) {
		return InvalidScheduleError{Field: "day_of_month", Value: *s.DayOfMonth}
	}
	return nil
}

// FromLink extracts the schedule fields of a persisted link.
func FromLink(l domain.ReportingLink) Schedule {
	return Schedule{
		Interval:   Interval(l.Interval),
		DayOfWeek:  l.DayOfWeek,
		DayOfMonth: l.DayOfMonth,
	}
}

// NextDue computes the next due date strictly from the schedule and the
// reference instant. The second return is false when no schedule is
// active. Daily: end of the day containing from. Weekly: end of the next
// occurrence of the target weekday, always strictly after from's day.
// Monthly: end of the target day in the current month if still ahead,
// otherwise the next month, clamped to that month's length.
func (s Schedule) NextDue(from time.Time) (time.Time, bool) {
	switch s.Interval {
	case IntervalDaily:
		return endOfDay(from), true
	case IntervalWeekly:
		target := 0
		if s.DayOfWeek != nil {
			target = *s.DayOfWeek
		}
		daysUntil := target - int(from.Weekday())
		if daysUntil <= 0 {
			daysUntil += 7
		}
		return endOfDay(from.AddDate(0, 0, daysUntil)), true
	case IntervalMonthly:
		target := 1
		if s.DayOfMonth != nil {
			target = *s.DayOfMonth
		}
		year, month := from.Year(), from.Month()
		if from.Day() >= target {
			// Normalized by time.Date, so December rolls into January.
			month++
		}
		day := target
		if max := daysInMonth(year, month, from.Location()); day > max {
			day = max
		}
		return time.Date(year, month, day, 23, 59, 59, 999_000_000, from.Location()), true
	default:
		return time.Time{}, false
	}
}

func endOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 23, 59, 59, 999_000_000, t.Location())
}

func daysInMonth(year int, month time.Month, loc *time.Location) int {
	// Day 0 of the following month.
	return time.Date(year, month+1, 0, 0, 0, 0, 0, loc).Day()
}

type Status string

const (
	StatusNoSchedule Status = "no-schedule"
	StatusOverdue    Status = "overdue"
	StatusDueToday   Status = "due-today"
	StatusDueSoon    Status = "due-soon"
	StatusOnTrack    Status = "on-track"
)

// Compliance is the classifier's verdict for a link at a point in time.
// DaysUntil is nil for no-schedule, negative when overdue.
type Compliance struct {
	Status    Status `json:"status" enum:"no-schedule,overdue,due-today,due-soon,on-track"`
	DaysUntil *int   `json:"days_until,omitempty"`
	Message   string `json:"message"`
}

const dayMillis = 24 * 60 * 60 * 1000

// Classify maps a link's due date to a compliance tier relative to now.
// Day counting is calendar-granular: any positive remainder rounds up
// toward the due date (1ms ahead reads as 1 day), and any partial day of
// lateness counts as a full day late, so overdue shows the instant the
// due date passes.
func Classify(link domain.ReportingLink, now time.Time) Compliance {
	if !link.HasSchedule() || link.NextDue == nil {
		return Compliance{Status: StatusNoSchedule, Message: "No schedule set"}
	}
	due, err := time.Parse(TimeLayout, *link.NextDue)
	if err != nil {
		return Compliance{Status: StatusNoSchedule, Message: "No schedule set"}
	}
	ms := due.Sub(now).Milliseconds()
	var diffDays int
	if ms >= 0 {
		diffDays = int((ms + dayMillis - 1) / dayMillis)
	} else {
		diffDays = -int((-ms + dayMillis - 1) / dayMillis)
	}
	d := diffDays
	switch {
	case diffDays < 0:
		return Compliance{
			Status:    StatusOverdue,
			DaysUntil: &d,
			Message:   fmt.Sprintf("OVERDUE by %d %s", -diffDays, pluralDays(-diffDays)),
		}
	case diffDays == 0:
		return Compliance{Status: StatusDueToday, DaysUntil: &d, Message: "Due TODAY"}
	case diffDays == 1:
		return Compliance{Status: StatusDueSoon, DaysUntil: &d, Message: "Due tomorrow"}
	case diffDays <= 3:
		return Compliance{Status: StatusDueSoon, DaysUntil: &d, Message: fmt.Sprintf("Due in %d days", diffDays)}
	default:
		return Compliance{Status: StatusOnTrack, DaysUntil: &d, Message: fmt.Sprintf("Due in %d days", diffDays)}
	}
}

func pluralDays(n int) string {
	if n == 1 {
		return "day"
	}
	return "days"
}

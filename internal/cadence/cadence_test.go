package cadence_test

import (
	"errors"
	"testing"
	"time"

	"reportline/internal/cadence"
	"reportline/internal/domain"
)

func intPtr(v int) *int { return &v }

func eod(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 23, 59, 59, 999_000_000, time.UTC)
}

func TestNextDueNoSchedule(t *testing.T) {
	s := cadence.Schedule{Interval: cadence.IntervalNone}
	if _, ok := s.NextDue(time.Now()); ok {
		t.Fatalf("expected no due date for interval none")
	}
}

func TestNextDueDailySameDay(t *testing.T) {
	s := cadence.Schedule{Interval: cadence.IntervalDaily}
	morning := time.Date(2024, 3, 14, 8, 0, 0, 0, time.UTC)
	evening := time.Date(2024, 3, 14, 22, 45, 12, 0, time.UTC)
	d1, ok := s.NextDue(morning)
	if !ok {
		t.Fatalf("expected due date")
	}
	d2, _ := s.NextDue(evening)
	if !d1.Equal(d2) {
		t.Fatalf("daily due not idempotent within day: %v vs %v", d1, d2)
	}
	if want := eod(2024, 3, 14); !d1.Equal(want) {
		t.Fatalf("daily due = %v, want %v", d1, want)
	}
	next, _ := s.NextDue(time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC))
	if !next.Equal(eod(2024, 3, 15)) {
		t.Fatalf("next day due = %v", next)
	}
}

func TestNextDueWeekly(t *testing.T) {
	monday := time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC) // a Monday
	cases := []struct {
		name   string
		target *int
		from   time.Time
		want   time.Time
	}{
		{"midweek target ahead", intPtr(3), monday, eod(2024, 1, 17)},
		{"default sunday", nil, monday, eod(2024, 1, 21)},
		{"same weekday rolls a full week", intPtr(1), monday, eod(2024, 1, 22)},
		{"target behind rolls to next week", intPtr(0), monday, eod(2024, 1, 21)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := cadence.Schedule{Interval: cadence.IntervalWeekly, DayOfWeek: tc.target}
			got, ok := s.NextDue(tc.from)
			if !ok {
				t.Fatalf("expected due date")
			}
			if !got.Equal(tc.want) {
				t.Fatalf("due = %v, want %v", got, tc.want)
			}
			if !got.After(tc.from) {
				t.Fatalf("weekly due %v not strictly after from %v", got, tc.from)
			}
			if days := got.Sub(tc.from).Hours() / 24; days > 7 {
				t.Fatalf("weekly due more than 7 days out: %v", days)
			}
		})
	}
}

func TestNextDueWeeklyAlwaysLandsOnTarget(t *testing.T) {
	for target := 0; target <= 6; target++ {
		for day := 15; day < 22; day++ {
			from := time.Date(2024, 1, day, 12, 0, 0, 0, time.UTC)
			s := cadence.Schedule{Interval: cadence.IntervalWeekly, DayOfWeek: intPtr(target)}
			got, _ := s.NextDue(from)
			if int(got.Weekday()) != target {
				t.Fatalf("target %d from %v landed on %v", target, from, got.Weekday())
			}
		}
	}
}

func TestNextDueMonthly(t *testing.T) {
	cases := []struct {
		name   string
		target *int
		from   time.Time
		want   time.Time
	}{
		{"clamp to short month", intPtr(31), time.Date(2024, 4, 15, 9, 0, 0, 0, time.UTC), eod(2024, 4, 30)},
		{"first of next month", intPtr(1), time.Date(2024, 4, 10, 9, 0, 0, 0, time.UTC), eod(2024, 5, 1)},
		{"default day one", nil, time.Date(2024, 4, 1, 9, 0, 0, 0, time.UTC), eod(2024, 5, 1)},
		{"year rollover", intPtr(5), time.Date(2023, 12, 20, 9, 0, 0, 0, time.UTC), eod(2024, 1, 5)},
		{"leap february clamp", intPtr(30), time.Date(2024, 1, 31, 9, 0, 0, 0, time.UTC), eod(2024, 2, 29)},
		{"non-leap february clamp", intPtr(30), time.Date(2023, 1, 31, 9, 0, 0, 0, time.UTC), eod(2023, 2, 28)},
		{"target still ahead this month", intPtr(20), time.Date(2024, 4, 10, 9, 0, 0, 0, time.UTC), eod(2024, 4, 20)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := cadence.Schedule{Interval: cadence.IntervalMonthly, DayOfMonth: tc.target}
			got, ok := s.NextDue(tc.from)
			if !ok {
				t.Fatalf("expected due date")
			}
			if !got.Equal(tc.want) {
				t.Fatalf("due = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestScheduleValidate(t *testing.T) {
	ok := cadence.Schedule{Interval: cadence.IntervalWeekly, DayOfWeek: intPtr(6)}
	if err := ok.Validate(); err != nil {
		t.Fatalf("valid schedule rejected: %v", err)
	}
	bad := cadence.Schedule{Interval: cadence.IntervalWeekly, DayOfWeek: intPtr(7)}
	var ise cadence.InvalidScheduleError
	if err := bad.Validate(); !errors.As(err, &ise) {
		t.Fatalf("expected InvalidScheduleError, got %v", err)
	}
	bad = cadence.Schedule{Interval: cadence.IntervalMonthly, DayOfMonth: intPtr(0)}
	if err := bad.Validate(); !errors.As(err, &ise) {
		t.Fatalf("expected InvalidScheduleError, got %v", err)
	}
	if err := (cadence.Schedule{Interval: "fortnightly"}).Validate(); err == nil {
		t.Fatalf("expected unknown interval error")
	}
	// Unset anchors are fine; NextDue substitutes defaults.
	if err := (cadence.Schedule{Interval: cadence.IntervalMonthly}).Validate(); err != nil {
		t.Fatalf("unset anchor rejected: %v", err)
	}
}

func linkDue(due time.Time) domain.ReportingLink {
	s := due.Format(cadence.TimeLayout)
	return domain.ReportingLink{
		OrgID:     "org-1",
		ProjectID: "proj-1",
		Interval:  "weekly",
		NextDue:   &s,
	}
}

func TestClassifyNoSchedule(t *testing.T) {
	c := cadence.Classify(domain.ReportingLink{Interval: "none"}, time.Now())
	if c.Status != cadence.StatusNoSchedule || c.DaysUntil != nil {
		t.Fatalf("unexpected classification %+v", c)
	}
	// Active interval but missing due date degrades the same way.
	c = cadence.Classify(domain.ReportingLink{Interval: "weekly"}, time.Now())
	if c.Status != cadence.StatusNoSchedule {
		t.Fatalf("unexpected classification %+v", c)
	}
}

func TestClassifyTiers(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	cases := []struct {
		name    string
		due     time.Time
		status  cadence.Status
		days    int
		message string
	}{
		{"one ms ahead is tomorrow", now.Add(time.Millisecond), cadence.StatusDueSoon, 1, "Due tomorrow"},
		{"one ms late is overdue", now.Add(-time.Millisecond), cadence.StatusOverdue, -1, "OVERDUE by 1 day"},
		{"exactly now is due today", now, cadence.StatusDueToday, 0, "Due TODAY"},
		{"three days out is due soon", now.Add(3 * 24 * time.Hour), cadence.StatusDueSoon, 3, "Due in 3 days"},
		{"four days out is on track", now.Add(4 * 24 * time.Hour), cadence.StatusOnTrack, 4, "Due in 4 days"},
		{"ten days late", now.Add(-10 * 24 * time.Hour), cadence.StatusOverdue, -10, "OVERDUE by 10 days"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := cadence.Classify(linkDue(tc.due), now)
			if c.Status != tc.status {
				t.Fatalf("status = %s, want %s", c.Status, tc.status)
			}
			if c.DaysUntil == nil || *c.DaysUntil != tc.days {
				t.Fatalf("days = %v, want %d", c.DaysUntil, tc.days)
			}
			if c.Message != tc.message {
				t.Fatalf("message = %q, want %q", c.Message, tc.message)
			}
		})
	}
}

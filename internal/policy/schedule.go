package policy

import (
	"time"

	"github.com/eliteGoblin/focusd/zenguard/internal/domain"
)

// ScheduleActive reports whether s is enabled and its window contains t.
//
// Windows are inclusive at both ends. When start > end the window wraps
// midnight, and the part after midnight belongs to the previous day: a
// Monday 22:00-07:00 profile is active at 03:00 on Tuesday, not on Monday.
func ScheduleActive(s domain.Schedule, t time.Time) bool {
	if !s.Enabled || len(s.Days) == 0 {
		return false
	}

	now := t.Hour()*60 + t.Minute()
	start, end := s.StartMinutes(), s.EndMinutes()
	startDay := t

	if start <= end {
		if now < start || now > end {
			return false
		}
	} else {
		switch {
		case now >= start:
		case now <= end:
			startDay = t.AddDate(0, 0, -1)
		default:
			return false
		}
	}

	return hasDay(s.Days, domain.Weekday(startDay.Weekday()))
}

// AnyActive reports whether any schedule is active at t.
func AnyActive(schedules []domain.Schedule, t time.Time) bool {
	for _, s := range schedules {
		if ScheduleActive(s, t) {
			return true
		}
	}
	return false
}

// Escalate applies focus schedules to a classification. Only SOFT is
// upgraded; ALLOW apps stay allowed even inside a focus window.
func Escalate(class domain.Classification, scheduleActive bool) domain.Classification {
	if class == domain.ClassSoft && scheduleActive {
		return domain.ClassHard
	}
	return class
}

func hasDay(days []int, day int) bool {
	for _, d := range days {
		if d == day {
			return true
		}
	}
	return false
}

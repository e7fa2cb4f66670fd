package scheduler

import (
	"time"

	"recmirror/internal/models"
)

// NextRun computes when a job should run again, evaluated at now.
//
// Interval jobs add the interval to now rather than to the previous nextRun,
// so missed runs do not pile up. Daily jobs take today's HH:MM and roll to
// tomorrow if that instant has already passed.
func NextRun(job *models.CronJob, now time.Time) time.Time {
	switch job.ScheduleKind {
	case models.ScheduleInterval:
		return now.Add(intervalDuration(job.IntervalValue, job.IntervalUnit))
	case models.ScheduleDailyTime:
		parsed, err := time.Parse("15:04", job.DailyTime)
		if err != nil {
			// Invalid time strings are rejected at creation; fall back to
			// a daily cadence rather than spinning the job every poll.
			return now.Add(24 * time.Hour)
		}
		next := time.Date(now.Year(), now.Month(), now.Day(), parsed.Hour(), parsed.Minute(), 0, 0, now.Location())
		if !next.After(now) {
			next = next.AddDate(0, 0, 1)
		}
		return next
	}
	return now.Add(24 * time.Hour)
}

func intervalDuration(value int, unit string) time.Duration {
	if value <= 0 {
		value = 1
	}
	switch unit {
	case models.UnitMinutes:
		return time.Duration(value) * time.Minute
	case models.UnitHours:
		return time.Duration(value) * time.Hour
	case models.UnitDays:
		return time.Duration(value) * 24 * time.Hour
	case models.UnitWeeks:
		return time.Duration(value) * 7 * 24 * time.Hour
	}
	return time.Duration(value) * time.Minute
}

package scheduler

import (
	"testing"
	"time"

	"recmirror/internal/models"

	"github.com/stretchr/testify/assert"
)

func TestNextRunInterval(t *testing.T) {
	now := time.Date(2025, 3, 10, 14, 30, 0, 0, time.UTC)

	tests := []struct {
		name  string
		value int
		unit  string
		want  time.Time
	}{
		{"Minutes", 15, models.UnitMinutes, now.Add(15 * time.Minute)},
		{"Hours", 2, models.UnitHours, now.Add(2 * time.Hour)},
		{"Days", 3, models.UnitDays, now.Add(72 * time.Hour)},
		{"Weeks", 1, models.UnitWeeks, now.Add(7 * 24 * time.Hour)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			job := &models.CronJob{
				ScheduleKind:  models.ScheduleInterval,
				IntervalValue: tt.value,
				IntervalUnit:  tt.unit,
			}
			assert.Equal(t, tt.want, NextRun(job, now))
		})
	}
}

func TestNextRunIntervalIgnoresStaleNextRun(t *testing.T) {
	// A job that missed several runs reschedules from now, so missed runs
	// do not pile up.
	now := time.Date(2025, 3, 10, 14, 30, 0, 0, time.UTC)
	stale := now.Add(-6 * time.Hour)
	job := &models.CronJob{
		ScheduleKind:  models.ScheduleInterval,
		IntervalValue: 30,
		IntervalUnit:  models.UnitMinutes,
		NextRun:       &stale,
	}

	next := NextRun(job, now)
	assert.True(t, next.After(now))
	assert.Equal(t, now.Add(30*time.Minute), next)
}

func TestNextRunDailyBeforeTime(t *testing.T) {
	now := time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC)
	job := &models.CronJob{ScheduleKind: models.ScheduleDailyTime, DailyTime: "09:00"}

	next := NextRun(job, now)
	assert.Equal(t, time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC), next)
}

func TestNextRunDailyRollover(t *testing.T) {
	// Evaluated one second past the scheduled instant, the next run is
	// tomorrow, not today.
	now := time.Date(2025, 3, 10, 9, 0, 1, 0, time.UTC)
	job := &models.CronJob{ScheduleKind: models.ScheduleDailyTime, DailyTime: "09:00"}

	next := NextRun(job, now)
	assert.Equal(t, time.Date(2025, 3, 11, 9, 0, 0, 0, time.UTC), next)
}

func TestNextRunDailyInvalidTime(t *testing.T) {
	now := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	job := &models.CronJob{ScheduleKind: models.ScheduleDailyTime, DailyTime: "not-a-time"}

	next := NextRun(job, now)
	assert.Equal(t, now.Add(24*time.Hour), next)
}

func TestNextRunUnknownKind(t *testing.T) {
	now := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	job := &models.CronJob{ScheduleKind: "weird"}

	assert.Equal(t, now.Add(24*time.Hour), NextRun(job, now))
}

package models

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// ErrInvalidSchedule is returned when schedule validation fails.
var ErrInvalidSchedule = errors.New("invalid schedule configuration")

// Schedule is a per-workflow cron entry with a precomputed next execution
// time, so the poller can query due schedules without keeping timers.
type Schedule struct {
	ID             string    `json:"id"              validate:"required"`
	WorkflowID     string    `json:"workflow_id"     validate:"required"`
	CronExpression string    `json:"cron_expression" validate:"required"`
	NextDueAt      time.Time `json:"next_due_at"`
	Active         bool      `json:"active"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// NewSchedule creates a schedule with its first due time computed from now.
func NewSchedule(id, workflowID, cronExpression string) (*Schedule, error) {
	now := time.Now().UTC()
	schedule := &Schedule{
		ID:             id,
		WorkflowID:     workflowID,
		CronExpression: cronExpression,
		Active:         true,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	if err := schedule.advance(now); err != nil {
		return nil, err
	}

	return schedule, nil
}

// UpdateNextDueAt recomputes the next due time from the current time,
// called after each fire.
func (s *Schedule) UpdateNextDueAt() error {
	return s.advance(time.Now().UTC())
}

func (s *Schedule) advance(from time.Time) error {
	parsed, err := cronParser().Parse(s.CronExpression)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidSchedule, err)
	}

	s.NextDueAt = parsed.Next(from)
	s.UpdatedAt = time.Now().UTC()

	return nil
}

// IsDue reports whether the schedule should fire at the given time.
func (s *Schedule) IsDue(now time.Time) bool {
	return s.Active && !s.NextDueAt.After(now)
}

func cronParser() cron.Parser {
	return cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
}

// CronExpression derives a 5-field cron line from the schedule fields of a
// trigger config. Custom schedules pass their cron expression through;
// daily/weekly/monthly are assembled from schedule_time and schedule_day.
func (c *TriggerConfig) CronExpression() (string, error) {
	if c.ScheduleType == "custom" {
		if c.ScheduleCron == "" {
			return "", ErrInvalidSchedule
		}

		if _, err := cronParser().Parse(c.ScheduleCron); err != nil {
			return "", fmt.Errorf("%w: %w", ErrInvalidSchedule, err)
		}

		return c.ScheduleCron, nil
	}

	hour, minute, err := parseClock(c.ScheduleTime)
	if err != nil {
		return "", err
	}

	switch c.ScheduleType {
	case "daily":
		return fmt.Sprintf("%d %d * * *", minute, hour), nil
	case "weekly":
		if c.ScheduleDay < 0 || c.ScheduleDay > 6 {
			return "", fmt.Errorf("%w: weekday %d out of range", ErrInvalidSchedule, c.ScheduleDay)
		}

		return fmt.Sprintf("%d %d * * %d", minute, hour, c.ScheduleDay), nil
	case "monthly":
		if c.ScheduleDay < 1 || c.ScheduleDay > 31 {
			return "", fmt.Errorf("%w: day of month %d out of range", ErrInvalidSchedule, c.ScheduleDay)
		}

		return fmt.Sprintf("%d %d %d * *", minute, hour, c.ScheduleDay), nil
	default:
		return "", fmt.Errorf("%w: unknown schedule type %q", ErrInvalidSchedule, c.ScheduleType)
	}
}

func parseClock(value string) (int, int, error) {
	parts := strings.SplitN(value, ":", 2)
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("%w: schedule time %q", ErrInvalidSchedule, value)
	}

	var hour, minute int

	if _, err := fmt.Sscanf(value, "%d:%d", &hour, &minute); err != nil {
		return 0, 0, fmt.Errorf("%w: schedule time %q", ErrInvalidSchedule, value)
	}

	if hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return 0, 0, fmt.Errorf("%w: schedule time %q", ErrInvalidSchedule, value)
	}

	return hour, minute, nil
}

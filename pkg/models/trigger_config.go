package models

import "time"

// DelayUnit is the unit for trigger delays, batch windows and delay nodes.
type DelayUnit string

const (
	DelayUnitMinutes DelayUnit = "minutes"
	DelayUnitHours   DelayUnit = "hours"
	DelayUnitDays    DelayUnit = "days"
)

// DurationIn converts a value in the given unit to a duration. Unknown
// units fall back to minutes.
func DurationIn(value int, unit DelayUnit) time.Duration {
	switch unit {
	case DelayUnitHours:
		return time.Duration(value) * time.Hour
	case DelayUnitDays:
		return time.Duration(value) * 24 * time.Hour
	default:
		return time.Duration(value) * time.Minute
	}
}

// TriggerConfig holds the persisted trigger parameters of a workflow. Which
// fields matter depends on the workflow's trigger type; unused fields are
// carried through save/load untouched.
type TriggerConfig struct {
	// Event trigger: the domain event name plus optional gating.
	Event             string       `json:"event,omitempty"`
	ConditionsEnabled bool         `json:"conditions_enabled,omitempty"`
	Conditions        []*Condition `json:"conditions,omitempty"`

	// Field-change gating: when enabled with a non-empty watch list, the
	// event must report at least one changed field in the list. An empty
	// list means any change qualifies.
	TriggerOnFieldChange bool     `json:"trigger_on_field_change,omitempty"`
	WatchFields          []string `json:"watch_fields,omitempty"`

	// Deferred start.
	DelayEnabled bool      `json:"delay_enabled,omitempty"`
	DelayValue   int       `json:"delay_value,omitempty"`
	DelayUnit    DelayUnit `json:"delay_unit,omitempty"`

	// Batching.
	BatchEnabled     bool      `json:"batch_enabled,omitempty"`
	BatchSize        int       `json:"batch_size,omitempty"         validate:"omitempty,min=1"`
	BatchWindowValue int       `json:"batch_window_value,omitempty" validate:"omitempty,min=1"`
	BatchWindowUnit  DelayUnit `json:"batch_window_unit,omitempty"`

	// Schedule trigger, consumed by the schedule poller.
	ScheduleEnabled bool   `json:"schedule_enabled,omitempty"`
	ScheduleType    string `json:"schedule_type,omitempty"` // daily, weekly, monthly, custom
	ScheduleTime    string `json:"schedule_time,omitempty"` // "HH:MM"
	ScheduleDay     int    `json:"schedule_day,omitempty"`  // weekday (weekly) or day of month (monthly)
	ScheduleDate    string `json:"schedule_date,omitempty"`
	ScheduleCron    string `json:"schedule_cron,omitempty"`

	// Webhook trigger, consumed by the HTTP ingress.
	WebhookEnabled     bool   `json:"webhook_enabled,omitempty"`
	WebhookSecret      string `json:"webhook_secret,omitempty"`
	WebhookContentType string `json:"webhook_content_type,omitempty"`
}

// DelayDuration returns how long a matched event's start is deferred.
func (c *TriggerConfig) DelayDuration() time.Duration {
	return DurationIn(c.DelayValue, c.DelayUnit)
}

// BatchWindow returns the maximum time a batch buffer waits after its first
// event before flushing regardless of size.
func (c *TriggerConfig) BatchWindow() time.Duration {
	return DurationIn(c.BatchWindowValue, c.BatchWindowUnit)
}

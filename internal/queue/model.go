// Package queue holds the queue records the dashboard reports on and the
// reconciliation engine that keeps them in line with the queues Asterisk
// actually has configured.
package queue

import (
	"time"

	"queuesync/internal/apperr"
)

// Record is a persisted queue row. QueueNumber never changes after creation;
// DisplayName, thresholds and IsMonitored belong to the administrator.
type Record struct {
	QueueNumber             string    `json:"queue_number"`
	DisplayName             string    `json:"display_name"`
	SLAThresholdSeconds     int       `json:"sla_threshold_seconds"`
	WarningThresholdSeconds int       `json:"warning_threshold_seconds"`
	IsMonitored             bool      `json:"is_monitored"`
	IsActive                bool      `json:"is_active"`
	LastSeenAt              time.Time `json:"last_seen_at"`
	CreatedAt               time.Time `json:"created_at"`
	UpdatedAt               time.Time `json:"updated_at"`
}

// LiveQueue is a queue as reported by Asterisk. Only QueueNumber takes part
// in reconciliation.
type LiveQueue struct {
	QueueNumber  string            `json:"queue_number"`
	Strategy     string            `json:"strategy,omitempty"`
	MaxCallers   int               `json:"max_callers"`
	Weight       int               `json:"weight"`
	ServiceLevel int               `json:"service_level"`
	Attributes   map[string]string `json:"attributes,omitempty"`
}

// Settings are the administrator-editable fields of a Record
type Settings struct {
	DisplayName             string `json:"display_name"`
	SLAThresholdSeconds     int    `json:"sla_threshold_seconds" validate:"min=0"`
	WarningThresholdSeconds int    `json:"warning_threshold_seconds" validate:"min=0,ltefield=SLAThresholdSeconds"`
	IsMonitored             bool   `json:"is_monitored"`
}

// SyncResult summarises one sync run
type SyncResult struct {
	Created     int       `json:"created"`
	Reactivated int       `json:"reactivated"`
	Deactivated int       `json:"deactivated"`
	Unchanged   int       `json:"unchanged"`
	Errors      []string  `json:"errors"`
	StartedAt   time.Time `json:"started_at"`
	FinishedAt  time.Time `json:"finished_at"`
}

// Validate checks the record invariants
func (r Record) Validate() error {
	if r.QueueNumber == "" {
		return apperr.Newf(apperr.KindValidation, "queue.validate", "queue number is required")
	}
	return validateThresholds(r.SLAThresholdSeconds, r.WarningThresholdSeconds)
}

// Validate checks an administrator edit against its validate tags
func (s Settings) Validate() error {
	return ValidateStruct(s)
}

// Apply copies the settings onto the record, keeping the display name
// pointed at the queue number when left blank.
func (s Settings) Apply(r *Record) {
	r.DisplayName = s.DisplayName
	if r.DisplayName == "" {
		r.DisplayName = r.QueueNumber
	}
	r.SLAThresholdSeconds = s.SLAThresholdSeconds
	r.WarningThresholdSeconds = s.WarningThresholdSeconds
	r.IsMonitored = s.IsMonitored
}

func validateThresholds(sla, warning int) error {
	switch {
	case sla < 0:
		return apperr.Newf(apperr.KindValidation, "queue.validate", "sla threshold must be >= 0, got %d", sla)
	case warning < 0:
		return apperr.Newf(apperr.KindValidation, "queue.validate", "warning threshold must be >= 0, got %d", warning)
	case warning > sla:
		return apperr.Newf(apperr.KindValidation, "queue.validate",
			"warning threshold %ds exceeds sla threshold %ds", warning, sla)
	}
	return nil
}

package ports

import (
	"context"
	"time"
)

// Notifier delivers human-readable alerts. Delivery is best-effort: the
// caller logs failures and carries on.
type Notifier interface {
	// Send delivers an ordinary notification to a recipient
	Send(ctx context.Context, to, subject, body string) error

	// SendCritical delivers an alert on the incident channel, distinct from
	// ordinary mode-change notifications
	SendCritical(ctx context.Context, subject, body string) error
}

// MetricsSink receives counter and gauge emissions
type MetricsSink interface {
	Count(name string, dimensions map[string]string, value float64)
	Gauge(name string, dimensions map[string]string, value float64)
}

// RevertPayload is carried by a scheduled auto-revert. TargetVersion pins the
// ModeRecord version the revert applies to; a fired revert that finds a newer
// version must be skipped.
type RevertPayload struct {
	OrganizationID string `json:"organization_id"`
	TargetVersion  int64  `json:"target_version"`
	Reason         string `json:"reason"`
}

// Scheduler registers fire-once actions
type Scheduler interface {
	// ScheduleOnce registers a one-shot action and returns a cancellation token
	ScheduleOnce(ctx context.Context, at time.Time, payload RevertPayload) (string, error)

	// Cancel removes a scheduled action by token
	Cancel(ctx context.Context, token string) error
}

// MFAResult is the outcome of an external MFA verification
type MFAResult string

const (
	MFAValid       MFAResult = "valid"
	MFAInvalid     MFAResult = "invalid"
	MFAUnavailable MFAResult = "unavailable"
)

// MFAVerifier checks a one-time code against the external MFA provider.
// Provider outages surface as MFAUnavailable plus an error, never as a plain
// invalid-code result.
type MFAVerifier interface {
	Check(ctx context.Context, actor, code string) (MFAResult, error)
}

// OverrideChecker validates break-glass override codes for the emergency
// rollback path
type OverrideChecker interface {
	CheckOverride(code string) bool
}

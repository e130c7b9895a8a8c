package domain

import (
	"time"

	"github.com/google/uuid"
)

// AuditEventType classifies audit log entries
type AuditEventType string

const (
	AuditRequestCreated    AuditEventType = "approval_request_created"
	AuditDecisionRecorded  AuditEventType = "approval_decision_recorded"
	AuditSwitchCompleted   AuditEventType = "mode_switch_completed"
	AuditEmergencyRollback AuditEventType = "emergency_rollback"
	AuditSecurityFailure   AuditEventType = "security_failure"
	AuditAutoRevertSkipped AuditEventType = "auto_revert_skipped"
)

// AuditSeverity indicates how an event should be triaged
type AuditSeverity string

const (
	AuditSeverityInfo     AuditSeverity = "info"
	AuditSeverityHigh     AuditSeverity = "high"
	AuditSeverityCritical AuditSeverity = "critical"
)

// AuditRetention is how long mode governance events must be kept.
const AuditRetention = 2555 * 24 * time.Hour

// AuditEvent is an immutable, append-only record of a significant action.
type AuditEvent struct {
	ID             string         `json:"id"`
	OrganizationID string         `json:"organization_id"`
	Type           AuditEventType `json:"event_type"`
	Severity       AuditSeverity  `json:"severity"`
	Actor          string         `json:"actor"`
	FromMode       Mode           `json:"from_mode,omitempty"`
	ToMode         Mode           `json:"to_mode,omitempty"`
	Detail         string         `json:"detail,omitempty"`
	OccurredAt     time.Time      `json:"occurred_at"`
	RetainUntil    time.Time      `json:"retain_until"`
}

// NewAuditEvent creates an audit event with the standard retention horizon.
func NewAuditEvent(organizationID string, eventType AuditEventType, severity AuditSeverity, actor string, from, to Mode, detail string) *AuditEvent {
	now := time.Now().UTC()
	return &AuditEvent{
		ID:             uuid.NewString(),
		OrganizationID: organizationID,
		Type:           eventType,
		Severity:       severity,
		Actor:          actor,
		FromMode:       from,
		ToMode:         to,
		Detail:         detail,
		OccurredAt:     now,
		RetainUntil:    now.Add(AuditRetention),
	}
}

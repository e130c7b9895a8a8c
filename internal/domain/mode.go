package domain

import (
	"time"
)

// Mode represents the operating mode of an organization
type Mode string

const (
	ModeDemo Mode = "demo"
	ModeLive Mode = "live"
)

// IsValid reports whether the mode is one of the known modes
func (m Mode) IsValid() bool {
	return m == ModeDemo || m == ModeLive
}

// SwitchMeta captures the metadata of the most recent mode switch
type SwitchMeta struct {
	FromMode      Mode       `json:"from_mode"`
	Actor         string     `json:"actor"`
	Justification string     `json:"justification"`
	SwitchedAt    time.Time  `json:"switched_at"`
	Approvers     []string   `json:"approvers,omitempty"`
	AutoRevertAt  *time.Time `json:"auto_revert_at,omitempty"`
}

// ModeRecord is the per-organization mode state. Version strictly increases
// on every persisted update; writers must condition on the version they read.
type ModeRecord struct {
	OrganizationID string      `json:"organization_id"`
	CurrentMode    Mode        `json:"current_mode"`
	Version        int64       `json:"version"`
	LastSwitch     *SwitchMeta `json:"last_switch,omitempty"`
	CreatedAt      time.Time   `json:"created_at"`
	UpdatedAt      time.Time   `json:"updated_at"`
}

// NewModeRecord creates the initial record for an organization. Every
// organization starts in demo mode at version 1.
func NewModeRecord(organizationID string) *ModeRecord {
	now := time.Now().UTC()
	return &ModeRecord{
		OrganizationID: organizationID,
		CurrentMode:    ModeDemo,
		Version:        1,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// Transitioned returns a copy of the record moved to the target mode with the
// version bumped. The caller persists it with a write conditioned on the
// version of the receiver.
func (r *ModeRecord) Transitioned(to Mode, actor, justification string, approvers []string, autoRevertAt *time.Time, now time.Time) *ModeRecord {
	return &ModeRecord{
		OrganizationID: r.OrganizationID,
		CurrentMode:    to,
		Version:        r.Version + 1,
		LastSwitch: &SwitchMeta{
			FromMode:      r.CurrentMode,
			Actor:         actor,
			Justification: justification,
			SwitchedAt:    now,
			Approvers:     approvers,
			AutoRevertAt:  autoRevertAt,
		},
		CreatedAt: r.CreatedAt,
		UpdatedAt: now,
	}
}

// PriorMode returns the mode the organization was in before the last switch,
// defaulting to demo when no switch has happened yet.
func (r *ModeRecord) PriorMode() Mode {
	if r.LastSwitch == nil {
		return ModeDemo
	}
	return r.LastSwitch.FromMode
}

// Custom errors
var (
	ErrInvalidMode        = NewDomainError("invalid mode")
	ErrSameMode           = NewDomainError("organization is already in the requested mode")
	ErrModeRecordNotFound = NewDomainError("mode record not found")
	ErrVersionConflict    = NewDomainError("version conflict on conditional write")
)

// DomainError represents a domain-specific error
type DomainError struct {
	Message string
}

func (e *DomainError) Error() string {
	return e.Message
}

func NewDomainError(message string) *DomainError {
	return &DomainError{Message: message}
}

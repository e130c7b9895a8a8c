package ports

import (
	"context"

	"github.com/switchguard/switchguard/internal/domain"
)

// ModeRepository defines the interface for mode record persistence.
// All mutations are version-conditioned: there is no unconditional overwrite.
type ModeRepository interface {
	// Get retrieves the mode record for an organization. Returns
	// domain.ErrModeRecordNotFound when no record exists yet.
	Get(ctx context.Context, organizationID string) (*domain.ModeRecord, error)

	// Init conditionally inserts the version-1 record. Returns false when a
	// record already exists, so concurrent first reads initialize exactly once.
	Init(ctx context.Context, record *domain.ModeRecord) (bool, error)

	// PutIfVersion persists the record only when the stored version still
	// equals expectedVersion. Returns domain.ErrVersionConflict on mismatch.
	PutIfVersion(ctx context.Context, record *domain.ModeRecord, expectedVersion int64) error
}

// ApprovalRepository defines the interface for approval request persistence
type ApprovalRepository interface {
	// Create saves a new approval request
	Create(ctx context.Context, request *domain.ApprovalRequest) error

	// FindByID retrieves a request by its ID. Returns
	// domain.ErrRequestNotFound when no such request exists.
	FindByID(ctx context.Context, id string) (*domain.ApprovalRequest, error)

	// PutIfVersion persists the request only when the stored version still
	// equals expectedVersion, serializing concurrent decisions.
	PutIfVersion(ctx context.Context, request *domain.ApprovalRequest, expectedVersion int64) error

	// ListPending retrieves pending requests for an organization
	ListPending(ctx context.Context, organizationID string) ([]*domain.ApprovalRequest, error)
}

// AuditRepository defines the interface for the append-only audit log
type AuditRepository interface {
	// Append writes an audit event. Callers treat failures as loggable,
	// never as a reason to roll back a committed transition.
	Append(ctx context.Context, event *domain.AuditEvent) error

	// ListByOrganization retrieves recent events, newest first
	ListByOrganization(ctx context.Context, organizationID string, limit int) ([]*domain.AuditEvent, error)
}

package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/switchguard/switchguard/internal/domain"
	"github.com/switchguard/switchguard/internal/ports"
)

// PostgresApprovalRepository implements ApprovalRepository using PostgreSQL
type PostgresApprovalRepository struct {
	db *sql.DB
}

// NewPostgresApprovalRepository creates a new PostgreSQL approval repository
func NewPostgresApprovalRepository(db *sql.DB) ports.ApprovalRepository {
	return &PostgresApprovalRepository{db: db}
}

// Create saves a new approval request
func (r *PostgresApprovalRepository) Create(ctx context.Context, request *domain.ApprovalRequest) error {
	rolesJSON, err := json.Marshal(request.RequiredRoles)
	if err != nil {
		return fmt.Errorf("failed to marshal required roles: %w", err)
	}
	decisionsJSON, err := json.Marshal(request.Decisions)
	if err != nil {
		return fmt.Errorf("failed to marshal decisions: %w", err)
	}

	query := `
		INSERT INTO approval_requests
			(id, organization_id, from_mode, to_mode, requested_by, justification, status, required_roles, decisions, version, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`

	_, err = r.db.ExecContext(ctx, query,
		request.ID,
		request.OrganizationID,
		string(request.FromMode),
		string(request.ToMode),
		request.RequestedBy,
		request.Justification,
		string(request.Status),
		rolesJSON,
		decisionsJSON,
		request.Version,
		request.CreatedAt,
		request.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create approval request: %w", err)
	}
	return nil
}

// FindByID retrieves an approval request by its ID
func (r *PostgresApprovalRepository) FindByID(ctx context.Context, id string) (*domain.ApprovalRequest, error) {
	query := `
		SELECT id, organization_id, from_mode, to_mode, requested_by, justification, status, required_roles, decisions, version, created_at, updated_at
		FROM approval_requests
		WHERE id = $1
	`
	return r.scanRequest(r.db.QueryRowContext(ctx, query, id))
}

// PutIfVersion persists the request only when the stored version still equals
// expectedVersion, serializing concurrent decisions
func (r *PostgresApprovalRepository) PutIfVersion(ctx context.Context, request *domain.ApprovalRequest, expectedVersion int64) error {
	decisionsJSON, err := json.Marshal(request.Decisions)
	if err != nil {
		return fmt.Errorf("failed to marshal decisions: %w", err)
	}

	query := `
		UPDATE approval_requests
		SET status = $2, decisions = $3, version = $4, updated_at = $5
		WHERE id = $1 AND version = $6
	`

	result, err := r.db.ExecContext(ctx, query,
		request.ID,
		string(request.Status),
		decisionsJSON,
		request.Version,
		request.UpdatedAt,
		expectedVersion,
	)
	if err != nil {
		return fmt.Errorf("failed to update approval request: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if rows == 0 {
		var exists bool
		if err := r.db.QueryRowContext(ctx,
			`SELECT EXISTS(SELECT 1 FROM approval_requests WHERE id = $1)`,
			request.ID).Scan(&exists); err != nil {
			return fmt.Errorf("failed to check approval request existence: %w", err)
		}
		if !exists {
			return domain.ErrRequestNotFound
		}
		return domain.ErrVersionConflict
	}
	return nil
}

// ListPending retrieves pending requests for an organization, newest first
func (r *PostgresApprovalRepository) ListPending(ctx context.Context, organizationID string) ([]*domain.ApprovalRequest, error) {
	query := `
		SELECT id, organization_id, from_mode, to_mode, requested_by, justification, status, required_roles, decisions, version, created_at, updated_at
		FROM approval_requests
		WHERE organization_id = $1 AND status = $2
		ORDER BY created_at DESC
	`

	rows, err := r.db.QueryContext(ctx, query, organizationID, string(domain.ApprovalStatusPending))
	if err != nil {
		return nil, fmt.Errorf("failed to list pending requests: %w", err)
	}
	defer rows.Close()

	var requests []*domain.ApprovalRequest
	for rows.Next() {
		request, err := r.scanRequest(rows)
		if err != nil {
			return nil, err
		}
		requests = append(requests, request)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate pending requests: %w", err)
	}
	return requests, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func (r *PostgresApprovalRepository) scanRequest(row rowScanner) (*domain.ApprovalRequest, error) {
	var request domain.ApprovalRequest
	var rolesJSON, decisionsJSON []byte

	err := row.Scan(
		&request.ID,
		&request.OrganizationID,
		&request.FromMode,
		&request.ToMode,
		&request.RequestedBy,
		&request.Justification,
		&request.Status,
		&rolesJSON,
		&decisionsJSON,
		&request.Version,
		&request.CreatedAt,
		&request.UpdatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, domain.ErrRequestNotFound
		}
		return nil, fmt.Errorf("failed to scan approval request: %w", err)
	}

	if err := json.Unmarshal(rolesJSON, &request.RequiredRoles); err != nil {
		return nil, fmt.Errorf("failed to unmarshal required roles: %w", err)
	}
	if err := json.Unmarshal(decisionsJSON, &request.Decisions); err != nil {
		return nil, fmt.Errorf("failed to unmarshal decisions: %w", err)
	}
	return &request, nil
}

package persistence

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/switchguard/switchguard/internal/domain"
	"github.com/switchguard/switchguard/internal/ports"
)

const defaultAuditLimit = 50

// PostgresAuditRepository implements the append-only audit log using
// PostgreSQL. Events are never updated or deleted by the application.
type PostgresAuditRepository struct {
	db *sql.DB
}

// NewPostgresAuditRepository creates a new PostgreSQL audit repository
func NewPostgresAuditRepository(db *sql.DB) ports.AuditRepository {
	return &PostgresAuditRepository{db: db}
}

// Append writes an audit event
func (r *PostgresAuditRepository) Append(ctx context.Context, event *domain.AuditEvent) error {
	query := `
		INSERT INTO audit_events
			(id, organization_id, event_type, severity, actor, from_mode, to_mode, detail, occurred_at, retain_until)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	_, err := r.db.ExecContext(ctx, query,
		event.ID,
		event.OrganizationID,
		string(event.Type),
		string(event.Severity),
		event.Actor,
		string(event.FromMode),
		string(event.ToMode),
		event.Detail,
		event.OccurredAt,
		event.RetainUntil,
	)
	if err != nil {
		return fmt.Errorf("failed to append audit event: %w", err)
	}
	return nil
}

// ListByOrganization retrieves recent events for an organization, newest first
func (r *PostgresAuditRepository) ListByOrganization(ctx context.Context, organizationID string, limit int) ([]*domain.AuditEvent, error) {
	if limit <= 0 || limit > 500 {
		limit = defaultAuditLimit
	}

	query := `
		SELECT id, organization_id, event_type, severity, actor, from_mode, to_mode, detail, occurred_at, retain_until
		FROM audit_events
		WHERE organization_id = $1
		ORDER BY occurred_at DESC
		LIMIT $2
	`

	rows, err := r.db.QueryContext(ctx, query, organizationID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list audit events: %w", err)
	}
	defer rows.Close()

	var events []*domain.AuditEvent
	for rows.Next() {
		var event domain.AuditEvent
		err := rows.Scan(
			&event.ID,
			&event.OrganizationID,
			&event.Type,
			&event.Severity,
			&event.Actor,
			&event.FromMode,
			&event.ToMode,
			&event.Detail,
			&event.OccurredAt,
			&event.RetainUntil,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan audit event: %w", err)
		}
		events = append(events, &event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate audit events: %w", err)
	}
	return events, nil
}

package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/switchguard/switchguard/internal/domain"
	"github.com/switchguard/switchguard/internal/ports"
)

// PostgresModeRepository implements ModeRepository using PostgreSQL. The
// version column is the optimistic-concurrency guard: updates are conditioned
// on it and a zero-row update distinguishes conflict from absence.
type PostgresModeRepository struct {
	db *sql.DB
}

// NewPostgresModeRepository creates a new PostgreSQL mode repository
func NewPostgresModeRepository(db *sql.DB) ports.ModeRepository {
	return &PostgresModeRepository{db: db}
}

// Get retrieves the mode record for an organization
func (r *PostgresModeRepository) Get(ctx context.Context, organizationID string) (*domain.ModeRecord, error) {
	query := `
		SELECT organization_id, current_mode, version, last_switch, created_at, updated_at
		FROM mode_records
		WHERE organization_id = $1
	`

	var record domain.ModeRecord
	var lastSwitchJSON []byte

	err := r.db.QueryRowContext(ctx, query, organizationID).Scan(
		&record.OrganizationID,
		&record.CurrentMode,
		&record.Version,
		&lastSwitchJSON,
		&record.CreatedAt,
		&record.UpdatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, domain.ErrModeRecordNotFound
		}
		return nil, fmt.Errorf("failed to find mode record: %w", err)
	}

	if len(lastSwitchJSON) > 0 {
		var meta domain.SwitchMeta
		if err := json.Unmarshal(lastSwitchJSON, &meta); err != nil {
			return nil, fmt.Errorf("failed to unmarshal last switch metadata: %w", err)
		}
		record.LastSwitch = &meta
	}

	return &record, nil
}

// Init conditionally inserts the version-1 record; returns false when a
// record for the organization already exists.
func (r *PostgresModeRepository) Init(ctx context.Context, record *domain.ModeRecord) (bool, error) {
	query := `
		INSERT INTO mode_records (organization_id, current_mode, version, last_switch, created_at, updated_at)
		VALUES ($1, $2, $3, NULL, $4, $5)
		ON CONFLICT (organization_id) DO NOTHING
	`

	result, err := r.db.ExecContext(ctx, query,
		record.OrganizationID,
		string(record.CurrentMode),
		record.Version,
		record.CreatedAt,
		record.UpdatedAt,
	)
	if err != nil {
		return false, fmt.Errorf("failed to initialize mode record: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read rows affected: %w", err)
	}
	return rows == 1, nil
}

// PutIfVersion persists the record only when the stored version still equals
// expectedVersion
func (r *PostgresModeRepository) PutIfVersion(ctx context.Context, record *domain.ModeRecord, expectedVersion int64) error {
	lastSwitchJSON, err := json.Marshal(record.LastSwitch)
	if err != nil {
		return fmt.Errorf("failed to marshal last switch metadata: %w", err)
	}

	query := `
		UPDATE mode_records
		SET current_mode = $2, version = $3, last_switch = $4, updated_at = $5
		WHERE organization_id = $1 AND version = $6
	`

	result, err := r.db.ExecContext(ctx, query,
		record.OrganizationID,
		string(record.CurrentMode),
		record.Version,
		lastSwitchJSON,
		record.UpdatedAt,
		expectedVersion,
	)
	if err != nil {
		return fmt.Errorf("failed to update mode record: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if rows == 0 {
		// Distinguish a lost race from a missing record
		var exists bool
		if err := r.db.QueryRowContext(ctx,
			`SELECT EXISTS(SELECT 1 FROM mode_records WHERE organization_id = $1)`,
			record.OrganizationID).Scan(&exists); err != nil {
			return fmt.Errorf("failed to check mode record existence: %w", err)
		}
		if !exists {
			return domain.ErrModeRecordNotFound
		}
		return domain.ErrVersionConflict
	}
	return nil
}

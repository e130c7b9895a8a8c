package usecase

import (
	"context"
	"errors"
	"fmt"

	"github.com/switchguard/switchguard/internal/domain"
	"github.com/switchguard/switchguard/internal/logger"
	"github.com/switchguard/switchguard/internal/ports"
)

// autoRevertActor is the identity recorded on system-initiated reverts
const autoRevertActor = "system_auto_revert"

// AutoRevert handles fired auto-revert timers. A revert applies only when
// the ModeRecord is still at the version the timer targeted; anything newer
// means the organization moved on and the revert is skipped.
type AutoRevert struct {
	modes ports.ModeRepository
	audit ports.AuditRepository
	exec  TransitionExecutor
	log   logger.Logger
}

func NewAutoRevert(modes ports.ModeRepository, audit ports.AuditRepository, exec TransitionExecutor, log logger.Logger) *AutoRevert {
	return &AutoRevert{modes: modes, audit: audit, exec: exec, log: log}
}

// HandleDue processes one fired timer. Returns nil on a skipped stale revert;
// the scheduler treats that as done.
func (a *AutoRevert) HandleDue(ctx context.Context, payload ports.RevertPayload) error {
	record, err := a.modes.Get(ctx, payload.OrganizationID)
	if err != nil {
		if errors.Is(err, domain.ErrModeRecordNotFound) {
			a.log.Warn(ctx, "Auto-revert fired for unknown organization", map[string]interface{}{
				"organization_id": payload.OrganizationID,
			})
			return nil
		}
		return fmt.Errorf("failed to read mode record for auto-revert: %w", err)
	}

	if record.Version != payload.TargetVersion || record.CurrentMode != domain.ModeLive {
		a.log.Info(ctx, "Skipping stale auto-revert", map[string]interface{}{
			"organization_id": payload.OrganizationID,
			"target_version":  payload.TargetVersion,
			"current_version": record.Version,
			"current_mode":    string(record.CurrentMode),
		})
		event := domain.NewAuditEvent(payload.OrganizationID, domain.AuditAutoRevertSkipped, domain.AuditSeverityInfo,
			autoRevertActor, record.CurrentMode, domain.ModeDemo,
			fmt.Sprintf("timer targeted version %d, record at version %d", payload.TargetVersion, record.Version))
		if err := a.audit.Append(ctx, event); err != nil {
			a.log.Error(ctx, "Failed to audit skipped auto-revert", err, nil)
		}
		return nil
	}

	_, _, err = a.exec.ExecuteTransition(ctx, TransitionParams{
		OrganizationID: payload.OrganizationID,
		To:             domain.ModeDemo,
		Actor:          autoRevertActor,
		Justification:  "automatic revert: " + payload.Reason,
	})
	if err != nil {
		if errors.Is(err, domain.ErrVersionConflict) || errors.Is(err, domain.ErrSameMode) {
			// A concurrent writer won the race between our read and write;
			// the timer now targets a stale version.
			a.log.Info(ctx, "Auto-revert lost the version race, skipping", map[string]interface{}{
				"organization_id": payload.OrganizationID,
			})
			return nil
		}
		return fmt.Errorf("auto-revert transition failed: %w", err)
	}
	return nil
}

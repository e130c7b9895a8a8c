package usecase

import (
	"context"
	"fmt"

	"github.com/switchguard/switchguard/internal/domain"
	"github.com/switchguard/switchguard/internal/logger"
	"github.com/switchguard/switchguard/internal/ports"
	"github.com/switchguard/switchguard/pkg/apperror"
)

const emergencyPrefix = "EMERGENCY ROLLBACK: "

// RollbackRequest asks for an approval-bypassing return to the prior mode
type RollbackRequest struct {
	OrganizationID string `json:"organization_id"`
	Reason         string `json:"reason"`
	Actor          string `json:"actor"`
	MFACode        string `json:"mfa_code,omitempty"`
	OverrideCode   string `json:"override_code,omitempty"`
}

// EmergencyRollback reverts an organization to its prior mode without the
// approval workflow. A critical alert is always emitted, whether or not the
// underlying write succeeds. MFA is enforced only when policy demands it;
// break-glass override codes provide an audited alternative.
type EmergencyRollback struct {
	audit    ports.AuditRepository
	notifier ports.Notifier
	gate     *MFAGate
	override ports.OverrideChecker
	exec     TransitionExecutor
	reader   modeReader
	policy   domain.SwitchPolicy
	log      logger.Logger
}

// modeReader is the slice of the orchestrator rollback needs for the
// current-state read (which also lazily initializes first-seen organizations)
type modeReader interface {
	CurrentMode(ctx context.Context, organizationID string) (*domain.ModeRecord, error)
}

func NewEmergencyRollback(
	audit ports.AuditRepository,
	notifier ports.Notifier,
	gate *MFAGate,
	override ports.OverrideChecker,
	orchestrator *Orchestrator,
	policy domain.SwitchPolicy,
	log logger.Logger,
) *EmergencyRollback {
	return &EmergencyRollback{
		audit:    audit,
		notifier: notifier,
		gate:     gate,
		override: override,
		exec:     orchestrator,
		reader:   orchestrator,
		policy:   policy,
		log:      log,
	}
}

// Rollback executes the break-glass path. The critical alert fires on every
// invocation, success or failure.
func (e *EmergencyRollback) Rollback(ctx context.Context, req RollbackRequest) (record *domain.ModeRecord, partials []string, err error) {
	defer func() {
		e.alert(ctx, req, record, err)
	}()

	if req.OrganizationID == "" {
		return nil, nil, apperror.NewValidation("organization id is required")
	}
	if req.Actor == "" {
		return nil, nil, apperror.NewValidation("actor is required")
	}
	if req.Reason == "" {
		return nil, nil, apperror.NewValidation("reason is required")
	}

	if e.policy.RequireMFAForRollback {
		if err := e.authorize(ctx, req); err != nil {
			return nil, nil, err
		}
	}

	current, err := e.reader.CurrentMode(ctx, req.OrganizationID)
	if err != nil {
		return nil, nil, err
	}
	prior := current.PriorMode()
	if prior == current.CurrentMode {
		return nil, nil, domain.ErrSameMode
	}

	record, partials, err = e.exec.ExecuteTransition(ctx, TransitionParams{
		OrganizationID: req.OrganizationID,
		To:             prior,
		Actor:          req.Actor,
		Justification:  emergencyPrefix + req.Reason,
		Emergency:      true,
	})
	if err != nil {
		return nil, nil, err
	}
	return record, partials, nil
}

func (e *EmergencyRollback) authorize(ctx context.Context, req RollbackRequest) error {
	if req.OverrideCode != "" && e.override != nil && e.override.CheckOverride(req.OverrideCode) {
		logger.LogSecurityEvent(ctx, e.log, "break_glass_override_used", "high", map[string]interface{}{
			"organization_id": req.OrganizationID,
			"actor":           req.Actor,
		})
		event := domain.NewAuditEvent(req.OrganizationID, domain.AuditSecurityFailure, domain.AuditSeverityHigh, req.Actor, "", "",
			"break-glass override code used for emergency rollback")
		if err := e.audit.Append(ctx, event); err != nil {
			e.log.Error(ctx, "Failed to audit break-glass override", err, nil)
		}
		return nil
	}

	if err := e.gate.Verify(ctx, req.Actor, req.MFACode); err != nil {
		logger.LogSecurityEvent(ctx, e.log, "rollback_mfa_failed", "high", map[string]interface{}{
			"organization_id": req.OrganizationID,
			"actor":           req.Actor,
		})
		event := domain.NewAuditEvent(req.OrganizationID, domain.AuditSecurityFailure, domain.AuditSeverityHigh, req.Actor, "", "", err.Error())
		if auditErr := e.audit.Append(ctx, event); auditErr != nil {
			e.log.Error(ctx, "Failed to audit rollback MFA failure", auditErr, nil)
		}
		return apperror.NewUnauthorized(fmt.Sprintf("MFA verification failed: %s", err.Error()))
	}
	return nil
}

// alert emits the mandatory critical notification for every rollback attempt
func (e *EmergencyRollback) alert(ctx context.Context, req RollbackRequest, record *domain.ModeRecord, cause error) {
	outcome := "succeeded"
	detail := ""
	if cause != nil {
		outcome = "FAILED"
		detail = fmt.Sprintf("\nError: %s", cause.Error())
	} else if record != nil {
		detail = fmt.Sprintf("\nNow in %s mode (version %d)", record.CurrentMode, record.Version)
	}
	subject := fmt.Sprintf("EMERGENCY ROLLBACK %s for %s", outcome, req.OrganizationID)
	body := fmt.Sprintf("Actor: %s\nReason: %s%s", req.Actor, req.Reason, detail)
	if err := e.notifier.SendCritical(ctx, subject, body); err != nil {
		e.log.Error(ctx, "Failed to send critical rollback alert", err, map[string]interface{}{
			"organization_id": req.OrganizationID,
		})
	}
}

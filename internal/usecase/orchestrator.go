package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/switchguard/switchguard/internal/domain"
	"github.com/switchguard/switchguard/internal/logger"
	"github.com/switchguard/switchguard/internal/ports"
	"github.com/switchguard/switchguard/pkg/apperror"
)

// SwitchStatus tags the outcome of a switch request
type SwitchStatus string

const (
	SwitchCompleted       SwitchStatus = "completed"
	SwitchPendingApproval SwitchStatus = "pending_approval"
)

// SwitchRequest is a caller's request to move an organization to a target mode
type SwitchRequest struct {
	OrganizationID string `json:"organization_id"`
	TargetMode     string `json:"target_mode"`
	Actor          string `json:"actor"`
	Justification  string `json:"justification"`
	MFACode        string `json:"mfa_code"`
}

// SwitchResult is the outcome of a switch request
type SwitchResult struct {
	Status          SwitchStatus       `json:"status"`
	Record          *domain.ModeRecord `json:"record,omitempty"`
	RequestID       string             `json:"request_id,omitempty"`
	PartialFailures []string           `json:"partial_failures,omitempty"`
}

// TransitionParams drives a single execute-transition step, shared by the
// immediate path, the approval resolution callback, emergency rollback, and
// the auto-revert handler.
type TransitionParams struct {
	OrganizationID string
	To             domain.Mode
	Actor          string
	Justification  string
	Approvers      []string
	Emergency      bool
}

// TransitionExecutor executes a committed mode transition. The approval
// workflow and the auto-revert handler re-enter the orchestrator through it.
type TransitionExecutor interface {
	ExecuteTransition(ctx context.Context, p TransitionParams) (*domain.ModeRecord, []string, error)
}

// approvalCreator is the slice of the approval workflow the orchestrator
// needs when a transition is approval-gated
type approvalCreator interface {
	CreateRequest(ctx context.Context, organizationID string, from, to domain.Mode, requestedBy, justification string) (*domain.ApprovalRequest, error)
}

// Orchestrator is the mode-switch state machine. It decides between immediate
// execution and the approval workflow, executes transitions with
// version-conditioned writes, and fans out the follow-up effects.
type Orchestrator struct {
	modes     ports.ModeRepository
	audit     ports.AuditRepository
	notifier  ports.Notifier
	metrics   ports.MetricsSink
	scheduler ports.Scheduler
	gate      *MFAGate
	approvals approvalCreator
	policy    domain.SwitchPolicy
	opsList   string
	log       logger.Logger
	now       func() time.Time
}

func NewOrchestrator(
	modes ports.ModeRepository,
	audit ports.AuditRepository,
	notifier ports.Notifier,
	metrics ports.MetricsSink,
	scheduler ports.Scheduler,
	gate *MFAGate,
	policy domain.SwitchPolicy,
	opsList string,
	log logger.Logger,
) *Orchestrator {
	return &Orchestrator{
		modes:     modes,
		audit:     audit,
		notifier:  notifier,
		metrics:   metrics,
		scheduler: scheduler,
		gate:      gate,
		policy:    policy,
		opsList:   opsList,
		log:       log,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// SetApprovalWorkflow wires the approval workflow in after construction; the
// workflow needs the orchestrator as its transition executor, so the two are
// connected once both exist.
func (o *Orchestrator) SetApprovalWorkflow(wf *ApprovalWorkflow) {
	o.approvals = wf
}

// CurrentMode returns the organization's mode record, lazily creating the
// version-1 demo record on first read. Concurrent first reads race on the
// conditional insert and exactly one wins; losers re-read the winner's record.
func (o *Orchestrator) CurrentMode(ctx context.Context, organizationID string) (*domain.ModeRecord, error) {
	if organizationID == "" {
		return nil, apperror.NewValidation("organization id is required")
	}

	record, err := o.modes.Get(ctx, organizationID)
	if err == nil {
		return record, nil
	}
	if !errors.Is(err, domain.ErrModeRecordNotFound) {
		return nil, fmt.Errorf("failed to get mode record: %w", err)
	}

	record = domain.NewModeRecord(organizationID)
	created, err := o.modes.Init(ctx, record)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize mode record: %w", err)
	}
	if created {
		return record, nil
	}
	record, err = o.modes.Get(ctx, organizationID)
	if err != nil {
		return nil, fmt.Errorf("failed to re-read mode record: %w", err)
	}
	return record, nil
}

// RequestSwitch validates a switch request, enforces MFA, and either executes
// the transition immediately or routes it through the approval workflow.
func (o *Orchestrator) RequestSwitch(ctx context.Context, req SwitchRequest) (*SwitchResult, error) {
	if err := validateSwitchRequest(req); err != nil {
		return nil, err
	}
	target := domain.Mode(req.TargetMode)

	record, err := o.CurrentMode(ctx, req.OrganizationID)
	if err != nil {
		return nil, err
	}
	if record.CurrentMode == target {
		return nil, domain.ErrSameMode
	}

	if err := o.gate.Verify(ctx, req.Actor, req.MFACode); err != nil {
		o.recordSecurityFailure(ctx, req.OrganizationID, req.Actor, record.CurrentMode, target, err)
		return nil, apperror.NewUnauthorized(fmt.Sprintf("MFA verification failed: %s", err.Error()))
	}

	if o.policy.NeedsApproval(record.CurrentMode, target) {
		request, err := o.approvals.CreateRequest(ctx, req.OrganizationID, record.CurrentMode, target, req.Actor, req.Justification)
		if err != nil {
			return nil, fmt.Errorf("failed to create approval request: %w", err)
		}
		return &SwitchResult{Status: SwitchPendingApproval, RequestID: request.ID}, nil
	}

	next, partials, err := o.ExecuteTransition(ctx, TransitionParams{
		OrganizationID: req.OrganizationID,
		To:             target,
		Actor:          req.Actor,
		Justification:  req.Justification,
	})
	if err != nil {
		return nil, err
	}
	return &SwitchResult{Status: SwitchCompleted, Record: next, PartialFailures: partials}, nil
}

// ExecuteTransition persists the mode change with a write conditioned on the
// version read here, then runs the follow-up effects. A failed follow-up
// never rolls back the committed record; it is reported as a partial failure.
func (o *Orchestrator) ExecuteTransition(ctx context.Context, p TransitionParams) (*domain.ModeRecord, []string, error) {
	record, err := o.CurrentMode(ctx, p.OrganizationID)
	if err != nil {
		return nil, nil, err
	}
	if record.CurrentMode == p.To {
		return nil, nil, domain.ErrSameMode
	}

	now := o.now()
	var autoRevertAt *time.Time
	if p.To == domain.ModeLive && o.policy.AutoRevertEnabled {
		t := now.Add(o.policy.AutoRevertAfter)
		autoRevertAt = &t
	}

	next := record.Transitioned(p.To, p.Actor, p.Justification, p.Approvers, autoRevertAt, now)
	if err := o.modes.PutIfVersion(ctx, next, record.Version); err != nil {
		if errors.Is(err, domain.ErrVersionConflict) {
			o.metrics.Count("mode_switch_conflicts_total", map[string]string{"organization_id": p.OrganizationID}, 1)
			return nil, nil, domain.ErrVersionConflict
		}
		return nil, nil, fmt.Errorf("failed to persist mode record: %w", err)
	}

	partials := o.fanOut(ctx, next, p, autoRevertAt)
	return next, partials, nil
}

// fanOut runs the best-effort follow-up effects after a committed transition:
// audit, metrics, notification, and auto-revert scheduling. Each failure is
// logged and named in the returned list.
func (o *Orchestrator) fanOut(ctx context.Context, next *domain.ModeRecord, p TransitionParams, autoRevertAt *time.Time) []string {
	var partials []string
	from := next.LastSwitch.FromMode

	eventType := domain.AuditSwitchCompleted
	severity := domain.AuditSeverityInfo
	if p.Emergency {
		eventType = domain.AuditEmergencyRollback
		severity = domain.AuditSeverityCritical
	}
	event := domain.NewAuditEvent(p.OrganizationID, eventType, severity, p.Actor, from, next.CurrentMode, p.Justification)
	if err := o.audit.Append(ctx, event); err != nil {
		o.log.Error(ctx, "Failed to append audit event", err, map[string]interface{}{
			"organization_id": p.OrganizationID,
			"event_type":      string(eventType),
		})
		partials = append(partials, "audit")
	}

	dims := map[string]string{
		"organization_id": p.OrganizationID,
		"from_mode":       string(from),
		"to_mode":         string(next.CurrentMode),
	}
	o.metrics.Count("mode_switches_total", dims, 1)
	o.metrics.Gauge("current_mode", map[string]string{"organization_id": p.OrganizationID}, modeGauge(next.CurrentMode))

	subject := fmt.Sprintf("Mode switched to %s for %s", next.CurrentMode, p.OrganizationID)
	body := fmt.Sprintf("Organization %s switched from %s to %s by %s (version %d).\nJustification: %s",
		p.OrganizationID, from, next.CurrentMode, p.Actor, next.Version, p.Justification)
	if err := o.notifier.Send(ctx, o.opsList, subject, body); err != nil {
		o.log.Error(ctx, "Failed to send mode switch notification", err, map[string]interface{}{
			"organization_id": p.OrganizationID,
		})
		partials = append(partials, "notification")
	}

	if autoRevertAt != nil {
		payload := ports.RevertPayload{
			OrganizationID: p.OrganizationID,
			TargetVersion:  next.Version,
			Reason:         "session window elapsed",
		}
		if _, err := o.scheduler.ScheduleOnce(ctx, *autoRevertAt, payload); err != nil {
			o.log.Error(ctx, "Failed to schedule auto-revert", err, map[string]interface{}{
				"organization_id": p.OrganizationID,
				"revert_at":       autoRevertAt.Format(time.RFC3339),
			})
			partials = append(partials, "schedule")
		}
	}

	if len(partials) > 0 {
		o.log.Warn(ctx, "Mode transition committed with partial side-effect failures", map[string]interface{}{
			"organization_id": p.OrganizationID,
			"failed_effects":  partials,
			"version":         next.Version,
		})
	}
	return partials
}

// recordSecurityFailure audits a failed MFA attempt. No other state advances.
func (o *Orchestrator) recordSecurityFailure(ctx context.Context, organizationID, actor string, from, to domain.Mode, cause error) {
	logger.LogSecurityEvent(ctx, o.log, "mfa_verification_failed", "high", map[string]interface{}{
		"organization_id": organizationID,
		"actor":           actor,
	})
	o.metrics.Count("mode_switch_failures_total", map[string]string{
		"organization_id": organizationID,
		"reason":          "mfa",
	}, 1)
	event := domain.NewAuditEvent(organizationID, domain.AuditSecurityFailure, domain.AuditSeverityHigh, actor, from, to, cause.Error())
	if err := o.audit.Append(ctx, event); err != nil {
		o.log.Error(ctx, "Failed to append security audit event", err, map[string]interface{}{
			"organization_id": organizationID,
		})
	}
}

func validateSwitchRequest(req SwitchRequest) error {
	if req.OrganizationID == "" {
		return apperror.NewValidation("organization id is required")
	}
	if req.Actor == "" {
		return apperror.NewValidation("actor is required")
	}
	if req.Justification == "" {
		return apperror.NewValidation("justification is required")
	}
	if !domain.Mode(req.TargetMode).IsValid() {
		return domain.ErrInvalidMode
	}
	return nil
}

func modeGauge(m domain.Mode) float64 {
	if m == domain.ModeLive {
		return 1
	}
	return 0
}

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

// decisionRetries bounds the read-apply-write loop when concurrent decisions
// race on the request version.
const decisionRetries = 3

// DecisionResult is the outcome of submitting a decision. Transition is set
// only when this decision reached quorum and the switch executed.
type DecisionResult struct {
	Request         *domain.ApprovalRequest `json:"request"`
	Transition      *domain.ModeRecord      `json:"transition,omitempty"`
	PartialFailures []string                `json:"partial_failures,omitempty"`
}

// ApprovalWorkflow creates, tracks, and resolves multi-approver requests.
// Once a request reaches quorum it re-enters the orchestrator's execute path.
type ApprovalWorkflow struct {
	approvals ports.ApprovalRepository
	audit     ports.AuditRepository
	notifier  ports.Notifier
	exec      TransitionExecutor
	policy    domain.SwitchPolicy
	log       logger.Logger
	now       func() time.Time
}

func NewApprovalWorkflow(
	approvals ports.ApprovalRepository,
	audit ports.AuditRepository,
	notifier ports.Notifier,
	exec TransitionExecutor,
	policy domain.SwitchPolicy,
	log logger.Logger,
) *ApprovalWorkflow {
	return &ApprovalWorkflow{
		approvals: approvals,
		audit:     audit,
		notifier:  notifier,
		exec:      exec,
		policy:    policy,
		log:       log,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// CreateRequest persists a pending request, audits it, and fans out one
// notification per required approver role. Roles come from policy, never
// from the caller.
func (w *ApprovalWorkflow) CreateRequest(ctx context.Context, organizationID string, from, to domain.Mode, requestedBy, justification string) (*domain.ApprovalRequest, error) {
	request := domain.NewApprovalRequest(organizationID, from, to, requestedBy, justification, w.policy.RequiredApproverRoles)
	if err := w.approvals.Create(ctx, request); err != nil {
		return nil, fmt.Errorf("failed to create approval request: %w", err)
	}

	event := domain.NewAuditEvent(organizationID, domain.AuditRequestCreated, domain.AuditSeverityInfo, requestedBy, from, to,
		fmt.Sprintf("request %s awaiting %d approvals", request.ID, len(request.RequiredRoles)))
	if err := w.audit.Append(ctx, event); err != nil {
		w.log.Error(ctx, "Failed to audit approval request creation", err, map[string]interface{}{
			"request_id": request.ID,
		})
	}

	subject := fmt.Sprintf("Mode switch approval required for %s", organizationID)
	body := fmt.Sprintf("Requested by: %s\nFrom: %s\nTo: %s\nJustification: %s\nRequest ID: %s",
		requestedBy, from, to, justification, request.ID)
	for _, role := range request.RequiredRoles {
		if err := w.notifier.Send(ctx, role, subject, body); err != nil {
			w.log.Error(ctx, "Failed to notify approver role", err, map[string]interface{}{
				"request_id": request.ID,
				"role":       role,
			})
		}
	}

	return request, nil
}

// GetRequest retrieves an approval request by ID
func (w *ApprovalWorkflow) GetRequest(ctx context.Context, requestID string) (*domain.ApprovalRequest, error) {
	if requestID == "" {
		return nil, apperror.NewValidation("request id is required")
	}
	request, err := w.approvals.FindByID(ctx, requestID)
	if err != nil {
		return nil, err
	}
	return request, nil
}

// ListPending retrieves the pending requests for an organization
func (w *ApprovalWorkflow) ListPending(ctx context.Context, organizationID string) ([]*domain.ApprovalRequest, error) {
	if organizationID == "" {
		return nil, apperror.NewValidation("organization id is required")
	}
	return w.approvals.ListPending(ctx, organizationID)
}

// RecordDecision appends an approver's verdict and recomputes the aggregate
// status under a version-conditioned write. Decisions on resolved requests
// return a conflict and mutate nothing. When the request reaches quorum the
// transition executes exactly once, here.
func (w *ApprovalWorkflow) RecordDecision(ctx context.Context, requestID, approver string, decision domain.DecisionValue, comment string) (*DecisionResult, error) {
	if requestID == "" {
		return nil, apperror.NewValidation("request id is required")
	}
	if approver == "" {
		return nil, apperror.NewValidation("approver is required")
	}
	if !decision.IsValid() {
		return nil, domain.ErrInvalidDecision
	}

	var request *domain.ApprovalRequest
	for attempt := 0; ; attempt++ {
		found, err := w.approvals.FindByID(ctx, requestID)
		if err != nil {
			return nil, err
		}
		expected := found.Version
		if err := found.RecordDecision(approver, decision, comment, w.now()); err != nil {
			return nil, err
		}
		found.Version++

		err = w.approvals.PutIfVersion(ctx, found, expected)
		if err == nil {
			request = found
			break
		}
		if !errors.Is(err, domain.ErrVersionConflict) {
			return nil, fmt.Errorf("failed to persist decision: %w", err)
		}
		if attempt+1 >= decisionRetries {
			return nil, domain.ErrVersionConflict
		}
	}

	event := domain.NewAuditEvent(request.OrganizationID, domain.AuditDecisionRecorded, domain.AuditSeverityInfo, approver,
		request.FromMode, request.ToMode,
		fmt.Sprintf("request %s: %s (%s)", request.ID, decision, request.Status))
	if err := w.audit.Append(ctx, event); err != nil {
		w.log.Error(ctx, "Failed to audit decision", err, map[string]interface{}{
			"request_id": request.ID,
		})
	}

	result := &DecisionResult{Request: request}
	switch request.Status {
	case domain.ApprovalStatusApproved:
		record, partials, err := w.executeApproved(ctx, request)
		if err != nil {
			w.log.Error(ctx, "Approved transition failed to execute", err, map[string]interface{}{
				"request_id": request.ID,
			})
			return nil, fmt.Errorf("approved transition failed: %w", err)
		}
		result.Transition = record
		result.PartialFailures = partials
		w.notifyRequester(ctx, request, "approved")
	case domain.ApprovalStatusRejected:
		w.notifyRequester(ctx, request, "rejected")
	}

	return result, nil
}

// executeApproved runs the transition for a request that just reached quorum.
// The request is already terminal-approved at this point, so a lost version
// race on the mode record must not strand the switch: the execute re-reads and
// retries a bounded number of times. A same-mode result means a concurrent
// writer already landed the target mode, which is completion, not failure.
func (w *ApprovalWorkflow) executeApproved(ctx context.Context, request *domain.ApprovalRequest) (*domain.ModeRecord, []string, error) {
	params := TransitionParams{
		OrganizationID: request.OrganizationID,
		To:             request.ToMode,
		Actor:          request.RequestedBy,
		Justification:  request.Justification,
		Approvers:      request.ApproverList(),
	}

	var lastErr error
	for attempt := 0; attempt < decisionRetries; attempt++ {
		record, partials, err := w.exec.ExecuteTransition(ctx, params)
		if err == nil {
			return record, partials, nil
		}
		if errors.Is(err, domain.ErrSameMode) {
			w.log.Info(ctx, "Approved transition already in effect", map[string]interface{}{
				"request_id": request.ID,
			})
			return nil, nil, nil
		}
		if !errors.Is(err, domain.ErrVersionConflict) {
			return nil, nil, err
		}
		lastErr = err
	}
	return nil, nil, lastErr
}

func (w *ApprovalWorkflow) notifyRequester(ctx context.Context, request *domain.ApprovalRequest, outcome string) {
	subject := fmt.Sprintf("Mode switch request %s", outcome)
	body := fmt.Sprintf("Your request %s to switch %s from %s to %s was %s.",
		request.ID, request.OrganizationID, request.FromMode, request.ToMode, outcome)
	if err := w.notifier.Send(ctx, request.RequestedBy, subject, body); err != nil {
		w.log.Error(ctx, "Failed to notify requester", err, map[string]interface{}{
			"request_id": request.ID,
			"outcome":    outcome,
		})
	}
}

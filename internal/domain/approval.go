package domain

import (
	"time"

	"github.com/google/uuid"
)

// ApprovalStatus represents the lifecycle status of an approval request
type ApprovalStatus string

const (
	ApprovalStatusPending  ApprovalStatus = "pending"
	ApprovalStatusApproved ApprovalStatus = "approved"
	ApprovalStatusRejected ApprovalStatus = "rejected"
)

// DecisionValue represents a single approver's verdict
type DecisionValue string

const (
	DecisionApproved DecisionValue = "approved"
	DecisionRejected DecisionValue = "rejected"
)

// IsValid reports whether the decision value is known
func (d DecisionValue) IsValid() bool {
	return d == DecisionApproved || d == DecisionRejected
}

// Decision is one approver's recorded verdict on a request
type Decision struct {
	Approver  string        `json:"approver"`
	Decision  DecisionValue `json:"decision"`
	Comment   string        `json:"comment,omitempty"`
	DecidedAt time.Time     `json:"decided_at"`
}

// ApprovalRequest tracks a pending-or-resolved mode transition that requires
// multi-party sign-off. Status is write-once-terminal: pending moves to
// approved or rejected exactly once and never back.
type ApprovalRequest struct {
	ID             string         `json:"id"`
	OrganizationID string         `json:"organization_id"`
	FromMode       Mode           `json:"from_mode"`
	ToMode         Mode           `json:"to_mode"`
	RequestedBy    string         `json:"requested_by"`
	Justification  string         `json:"justification"`
	Status         ApprovalStatus `json:"status"`
	RequiredRoles  []string       `json:"required_roles"`
	Decisions      []Decision     `json:"decisions"`
	Version        int64          `json:"version"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

// NewApprovalRequest creates a pending approval request. Required roles come
// from policy, never from the caller of the public API.
func NewApprovalRequest(organizationID string, from, to Mode, requestedBy, justification string, requiredRoles []string) *ApprovalRequest {
	now := time.Now().UTC()
	roles := make([]string, len(requiredRoles))
	copy(roles, requiredRoles)
	return &ApprovalRequest{
		ID:             uuid.NewString(),
		OrganizationID: organizationID,
		FromMode:       from,
		ToMode:         to,
		RequestedBy:    requestedBy,
		Justification:  justification,
		Status:         ApprovalStatusPending,
		RequiredRoles:  roles,
		Decisions:      []Decision{},
		Version:        1,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// RecordDecision appends a decision and recomputes the aggregate status.
// A single rejection forces the terminal rejected status regardless of other
// decisions; approval requires distinct approvals >= the required role count.
// Decisions arriving after a terminal status are refused, not swallowed.
func (r *ApprovalRequest) RecordDecision(approver string, decision DecisionValue, comment string, now time.Time) error {
	if r.Status != ApprovalStatusPending {
		return ErrRequestResolved
	}
	if approver == "" || !decision.IsValid() {
		return ErrInvalidDecision
	}

	r.Decisions = append(r.Decisions, Decision{
		Approver:  approver,
		Decision:  decision,
		Comment:   comment,
		DecidedAt: now,
	})
	r.Status = r.aggregateStatus()
	r.UpdatedAt = now
	return nil
}

func (r *ApprovalRequest) aggregateStatus() ApprovalStatus {
	approvers := make(map[string]struct{})
	for _, d := range r.Decisions {
		switch d.Decision {
		case DecisionRejected:
			return ApprovalStatusRejected
		case DecisionApproved:
			approvers[d.Approver] = struct{}{}
		}
	}
	if len(approvers) >= len(r.RequiredRoles) {
		return ApprovalStatusApproved
	}
	return ApprovalStatusPending
}

// IsTerminal reports whether the request has reached a final status
func (r *ApprovalRequest) IsTerminal() bool {
	return r.Status != ApprovalStatusPending
}

// ApproverList returns the distinct identities that approved the request, in
// decision order.
func (r *ApprovalRequest) ApproverList() []string {
	seen := make(map[string]struct{})
	var approvers []string
	for _, d := range r.Decisions {
		if d.Decision != DecisionApproved {
			continue
		}
		if _, ok := seen[d.Approver]; ok {
			continue
		}
		seen[d.Approver] = struct{}{}
		approvers = append(approvers, d.Approver)
	}
	return approvers
}

// Custom errors
var (
	ErrRequestNotFound = NewDomainError("approval request not found")
	ErrRequestResolved = NewDomainError("approval request already resolved")
	ErrInvalidDecision = NewDomainError("invalid decision")
)

package domain

import "time"

// Transition identifies one direction of a mode change
type Transition struct {
	From Mode
	To   Mode
}

// SwitchPolicy is the immutable deployment-time policy governing mode
// transitions. It is injected into the orchestrator and approval workflow so
// that policy can be swapped in tests without touching control flow.
type SwitchPolicy struct {
	// ApprovalRequired maps a transition to whether it needs multi-party
	// sign-off. Transitions absent from the map execute immediately.
	ApprovalRequired map[Transition]bool

	// RequiredApproverRoles is the fixed set of roles that must sign off
	// on approval-gated transitions. The quorum equals its length.
	RequiredApproverRoles []string

	// AutoRevertEnabled schedules a forced return to demo after
	// AutoRevertAfter whenever an organization switches to live.
	AutoRevertEnabled bool
	AutoRevertAfter   time.Duration

	// RequireMFAForRollback closes the break-glass asymmetry: when set,
	// emergency rollback demands MFA or a configured override code.
	RequireMFAForRollback bool
}

// DefaultSwitchPolicy returns the stock policy: switching to live requires
// approval from security and operations, switching back does not, and live
// sessions auto-revert after four hours.
func DefaultSwitchPolicy() SwitchPolicy {
	return SwitchPolicy{
		ApprovalRequired: map[Transition]bool{
			{From: ModeDemo, To: ModeLive}: true,
			{From: ModeLive, To: ModeDemo}: false,
		},
		RequiredApproverRoles: []string{"security_team", "operations_team"},
		AutoRevertEnabled:     true,
		AutoRevertAfter:       4 * time.Hour,
		RequireMFAForRollback: false,
	}
}

// NeedsApproval reports whether the given transition is approval-gated.
func (p SwitchPolicy) NeedsApproval(from, to Mode) bool {
	return p.ApprovalRequired[Transition{From: from, To: to}]
}

package usecase

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/switchguard/switchguard/internal/domain"
	"github.com/switchguard/switchguard/internal/ports"
)

func TestRollback_ReturnsToPriorMode(t *testing.T) {
	f := newFixture(domain.DefaultSwitchPolicy())
	ctx := context.Background()

	_, err := f.goLive(ctx, "org-1")
	require.NoError(t, err)

	record, _, err := f.rollback.Rollback(ctx, RollbackRequest{
		OrganizationID: "org-1",
		Reason:         "payment provider outage",
		Actor:          "alice",
	})
	require.NoError(t, err)
	assert.Equal(t, domain.ModeDemo, record.CurrentMode)
	assert.Contains(t, record.LastSwitch.Justification, "EMERGENCY ROLLBACK")

	assert.Contains(t, f.auditTypes(), domain.AuditEmergencyRollback)
	assert.Len(t, f.notifier.criticalSubjects(), 1)
}

func TestRollback_AlertFiresEvenOnFailure(t *testing.T) {
	f := newFixture(domain.DefaultSwitchPolicy())
	ctx := context.Background()

	// Fresh org: prior mode equals current mode, so the rollback fails
	_, _, err := f.rollback.Rollback(ctx, RollbackRequest{
		OrganizationID: "org-1",
		Reason:         "drill",
		Actor:          "alice",
	})
	require.Error(t, err)

	subjects := f.notifier.criticalSubjects()
	require.Len(t, subjects, 1)
	assert.Contains(t, subjects[0], "FAILED")
}

func TestRollback_ValidatesInput(t *testing.T) {
	f := newFixture(domain.DefaultSwitchPolicy())
	ctx := context.Background()

	cases := []RollbackRequest{
		{Reason: "outage", Actor: "alice"},
		{OrganizationID: "org-1", Actor: "alice"},
		{OrganizationID: "org-1", Reason: "outage"},
	}
	for _, req := range cases {
		_, _, err := f.rollback.Rollback(ctx, req)
		assert.Error(t, err)
	}
}

func TestRollback_MFAEnforcedWhenPolicyDemandsIt(t *testing.T) {
	policy := domain.DefaultSwitchPolicy()
	policy.RequireMFAForRollback = true
	f := newFixture(policy)
	f.verifier.result = ports.MFAInvalid
	ctx := context.Background()

	_, err := f.goLive(ctx, "org-1")
	require.NoError(t, err)

	_, _, err = f.rollback.Rollback(ctx, RollbackRequest{
		OrganizationID: "org-1",
		Reason:         "outage",
		Actor:          "alice",
		MFACode:        "123456",
	})
	require.Error(t, err)

	record, err := f.orchestrator.CurrentMode(ctx, "org-1")
	require.NoError(t, err)
	assert.Equal(t, domain.ModeLive, record.CurrentMode)
}

func TestRollback_OverrideCodeBypassesMFA(t *testing.T) {
	policy := domain.DefaultSwitchPolicy()
	policy.RequireMFAForRollback = true
	f := newFixture(policy)
	f.verifier.result = ports.MFAInvalid
	f.rollback.override = stubOverride{ok: true}
	ctx := context.Background()

	_, err := f.goLive(ctx, "org-1")
	require.NoError(t, err)

	record, _, err := f.rollback.Rollback(ctx, RollbackRequest{
		OrganizationID: "org-1",
		Reason:         "outage",
		Actor:          "alice",
		OverrideCode:   "break-glass-1",
	})
	require.NoError(t, err)
	assert.Equal(t, domain.ModeDemo, record.CurrentMode)

	// The override use itself is audited
	assert.Contains(t, f.auditTypes(), domain.AuditSecurityFailure)
}

package usecase

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/switchguard/switchguard/internal/adapter/memory"
	"github.com/switchguard/switchguard/internal/domain"
	"github.com/switchguard/switchguard/internal/ports"
)

func TestCurrentMode_LazyInit(t *testing.T) {
	f := newFixture(domain.DefaultSwitchPolicy())
	ctx := context.Background()

	record, err := f.orchestrator.CurrentMode(ctx, "org-1")
	require.NoError(t, err)
	assert.Equal(t, domain.ModeDemo, record.CurrentMode)
	assert.Equal(t, int64(1), record.Version)

	// A second read returns the same record, not a fresh one
	again, err := f.orchestrator.CurrentMode(ctx, "org-1")
	require.NoError(t, err)
	assert.Equal(t, record.Version, again.Version)
	assert.Equal(t, record.CreatedAt, again.CreatedAt)
}

func TestCurrentMode_ConcurrentFirstReadsInitializeOnce(t *testing.T) {
	modes := &initCountingModeRepo{ModeRepository: memory.NewModeRepository()}
	f := newFixtureWithModes(domain.DefaultSwitchPolicy(), modes)
	ctx := context.Background()

	const readers = 16
	var wg sync.WaitGroup
	records := make([]*domain.ModeRecord, readers)
	errs := make([]error, readers)

	for i := 0; i < readers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			records[i], errs[i] = f.orchestrator.CurrentMode(ctx, "org-1")
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, modes.createdCount(), "exactly one reader must create the record")
	for i := 0; i < readers; i++ {
		require.NoError(t, errs[i])
		require.NotNil(t, records[i])
		assert.Equal(t, domain.ModeDemo, records[i].CurrentMode)
		assert.Equal(t, int64(1), records[i].Version)
		assert.Equal(t, records[0].CreatedAt, records[i].CreatedAt)
	}
}

func TestCurrentMode_RequiresOrganization(t *testing.T) {
	f := newFixture(domain.DefaultSwitchPolicy())

	_, err := f.orchestrator.CurrentMode(context.Background(), "")
	assert.Error(t, err)
}

func TestRequestSwitch_SameModeRejected(t *testing.T) {
	f := newFixture(domain.DefaultSwitchPolicy())

	_, err := f.orchestrator.RequestSwitch(context.Background(), SwitchRequest{
		OrganizationID: "org-1",
		TargetMode:     "demo",
		Actor:          "alice",
		Justification:  "no-op",
		MFACode:        "123456",
	})
	assert.ErrorIs(t, err, domain.ErrSameMode)
}

func TestRequestSwitch_ValidatesInput(t *testing.T) {
	f := newFixture(domain.DefaultSwitchPolicy())
	ctx := context.Background()

	cases := []SwitchRequest{
		{TargetMode: "live", Actor: "alice", Justification: "x", MFACode: "123456"},
		{OrganizationID: "org-1", TargetMode: "live", Justification: "x", MFACode: "123456"},
		{OrganizationID: "org-1", TargetMode: "live", Actor: "alice", MFACode: "123456"},
		{OrganizationID: "org-1", TargetMode: "staging", Actor: "alice", Justification: "x", MFACode: "123456"},
	}
	for _, req := range cases {
		_, err := f.orchestrator.RequestSwitch(ctx, req)
		assert.Error(t, err)
	}

	// Nothing was initialized or audited for the malformed requests with no org
	assert.Empty(t, f.auditTypes())
}

func TestRequestSwitch_MFAFailure(t *testing.T) {
	f := newFixture(domain.DefaultSwitchPolicy())
	f.verifier.result = ports.MFAInvalid
	ctx := context.Background()

	_, err := f.orchestrator.RequestSwitch(ctx, SwitchRequest{
		OrganizationID: "org-1",
		TargetMode:     "live",
		Actor:          "alice",
		Justification:  "launch",
		MFACode:        "123456",
	})
	require.Error(t, err)

	// Mode did not change and the failure is audited
	record, err := f.orchestrator.CurrentMode(ctx, "org-1")
	require.NoError(t, err)
	assert.Equal(t, domain.ModeDemo, record.CurrentMode)
	assert.Contains(t, f.auditTypes(), domain.AuditSecurityFailure)
}

func TestRequestSwitch_DemoToLiveNeedsApproval(t *testing.T) {
	f := newFixture(domain.DefaultSwitchPolicy())
	ctx := context.Background()

	result, err := f.orchestrator.RequestSwitch(ctx, SwitchRequest{
		OrganizationID: "org-1",
		TargetMode:     "live",
		Actor:          "alice",
		Justification:  "launch day",
		MFACode:        "123456",
	})
	require.NoError(t, err)
	assert.Equal(t, SwitchPendingApproval, result.Status)
	assert.NotEmpty(t, result.RequestID)
	assert.Nil(t, result.Record)

	// Still in demo until the request resolves
	record, err := f.orchestrator.CurrentMode(ctx, "org-1")
	require.NoError(t, err)
	assert.Equal(t, domain.ModeDemo, record.CurrentMode)

	// Required roles come from policy
	request, err := f.approvals.FindByID(ctx, result.RequestID)
	require.NoError(t, err)
	assert.Equal(t, []string{"security_team", "operations_team"}, request.RequiredRoles)
	assert.Equal(t, domain.ApprovalStatusPending, request.Status)
}

func TestRequestSwitch_LiveToDemoImmediate(t *testing.T) {
	f := newFixture(domain.DefaultSwitchPolicy())
	ctx := context.Background()

	_, err := f.goLive(ctx, "org-1")
	require.NoError(t, err)

	result, err := f.orchestrator.RequestSwitch(ctx, SwitchRequest{
		OrganizationID: "org-1",
		TargetMode:     "demo",
		Actor:          "alice",
		Justification:  "done for the day",
		MFACode:        "123456",
	})
	require.NoError(t, err)
	assert.Equal(t, SwitchCompleted, result.Status)
	require.NotNil(t, result.Record)
	assert.Equal(t, domain.ModeDemo, result.Record.CurrentMode)
	assert.Equal(t, int64(3), result.Record.Version)
}

func TestExecuteTransition_SchedulesRevertForLiveOnly(t *testing.T) {
	f := newFixture(domain.DefaultSwitchPolicy())
	ctx := context.Background()

	record, err := f.goLive(ctx, "org-1")
	require.NoError(t, err)

	timers := f.scheduler.timers()
	require.Len(t, timers, 1)
	assert.Equal(t, "org-1", timers[0].Payload.OrganizationID)
	assert.Equal(t, record.Version, timers[0].Payload.TargetVersion)
	require.NotNil(t, record.LastSwitch.AutoRevertAt)
	assert.Equal(t, *record.LastSwitch.AutoRevertAt, timers[0].At)

	// Switching back to demo schedules nothing new
	_, _, err = f.orchestrator.ExecuteTransition(ctx, TransitionParams{
		OrganizationID: "org-1",
		To:             domain.ModeDemo,
		Actor:          "alice",
		Justification:  "back to demo",
	})
	require.NoError(t, err)
	assert.Len(t, f.scheduler.timers(), 1)
}

func TestExecuteTransition_NoRevertWhenDisabled(t *testing.T) {
	policy := domain.DefaultSwitchPolicy()
	policy.AutoRevertEnabled = false
	f := newFixture(policy)

	record, err := f.goLive(context.Background(), "org-1")
	require.NoError(t, err)
	assert.Nil(t, record.LastSwitch.AutoRevertAt)
	assert.Empty(t, f.scheduler.timers())
}

func TestExecuteTransition_PartialFailuresDoNotRollBack(t *testing.T) {
	f := newFixture(domain.DefaultSwitchPolicy())
	f.notifier.failSend = true
	f.scheduler.fail = true
	ctx := context.Background()

	record, partials, err := f.orchestrator.ExecuteTransition(ctx, TransitionParams{
		OrganizationID: "org-1",
		To:             domain.ModeLive,
		Actor:          "alice",
		Justification:  "launch",
	})
	require.NoError(t, err)
	assert.Equal(t, domain.ModeLive, record.CurrentMode)
	assert.ElementsMatch(t, []string{"notification", "schedule"}, partials)

	// The committed record is visible despite the failed effects
	current, err := f.orchestrator.CurrentMode(ctx, "org-1")
	require.NoError(t, err)
	assert.Equal(t, domain.ModeLive, current.CurrentMode)
	assert.Equal(t, record.Version, current.Version)
}

func TestExecuteTransition_ConcurrentWriterAlreadyLandedTarget(t *testing.T) {
	f := newFixture(domain.DefaultSwitchPolicy())
	ctx := context.Background()

	seed, err := f.orchestrator.CurrentMode(ctx, "org-1")
	require.NoError(t, err)

	// Another writer bumps the version between read and write
	stale := seed.Transitioned(domain.ModeLive, "other", "concurrent", nil, nil, seed.UpdatedAt)
	require.NoError(t, f.modes.PutIfVersion(ctx, stale, seed.Version))

	// The in-flight transition targeting live now collides on same-mode
	_, _, err = f.orchestrator.ExecuteTransition(ctx, TransitionParams{
		OrganizationID: "org-1",
		To:             domain.ModeLive,
		Actor:          "alice",
		Justification:  "launch",
	})
	assert.ErrorIs(t, err, domain.ErrSameMode)
}

func TestExecuteTransition_VersionConflict(t *testing.T) {
	modes := &conflictingModeRepo{ModeRepository: memory.NewModeRepository(), conflicts: 1}
	f := newFixtureWithModes(domain.DefaultSwitchPolicy(), modes)
	ctx := context.Background()

	_, _, err := f.orchestrator.ExecuteTransition(ctx, TransitionParams{
		OrganizationID: "org-1",
		To:             domain.ModeLive,
		Actor:          "alice",
		Justification:  "launch",
	})
	assert.ErrorIs(t, err, domain.ErrVersionConflict)
	assert.Equal(t, float64(1), f.metrics.count("mode_switch_conflicts_total"))

	// No side effects fired for the failed write
	assert.Empty(t, f.scheduler.timers())
	assert.Empty(t, f.auditTypes())
	assert.Empty(t, f.notifier.sentMessages())
}

func TestExecuteTransition_AuditsSwitch(t *testing.T) {
	f := newFixture(domain.DefaultSwitchPolicy())

	_, err := f.goLive(context.Background(), "org-1")
	require.NoError(t, err)

	events := f.audit.Events()
	require.NotEmpty(t, events)
	last := events[len(events)-1]
	assert.Equal(t, domain.AuditSwitchCompleted, last.Type)
	assert.Equal(t, domain.AuditSeverityInfo, last.Severity)
	assert.Equal(t, domain.ModeDemo, last.FromMode)
	assert.Equal(t, domain.ModeLive, last.ToMode)
}

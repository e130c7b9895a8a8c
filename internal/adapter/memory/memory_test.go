package memory

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/switchguard/switchguard/internal/domain"
)

func TestModeRepository_InitIsCreateOnce(t *testing.T) {
	repo := NewModeRepository()
	ctx := context.Background()

	created, err := repo.Init(ctx, domain.NewModeRecord("org-1"))
	require.NoError(t, err)
	assert.True(t, created)

	created, err = repo.Init(ctx, domain.NewModeRecord("org-1"))
	require.NoError(t, err)
	assert.False(t, created)
}

func TestModeRepository_ConcurrentInitOneWinner(t *testing.T) {
	repo := NewModeRepository()
	ctx := context.Background()

	const initializers = 16
	var wg sync.WaitGroup
	var mu sync.Mutex
	var winners int

	for i := 0; i < initializers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			created, err := repo.Init(ctx, domain.NewModeRecord("org-1"))
			assert.NoError(t, err)
			if created {
				mu.Lock()
				winners++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, winners, "exactly one concurrent initializer must create the record")

	record, err := repo.Get(ctx, "org-1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), record.Version)
	assert.Equal(t, domain.ModeDemo, record.CurrentMode)
}

func TestModeRepository_PutIfVersion(t *testing.T) {
	repo := NewModeRepository()
	ctx := context.Background()

	record := domain.NewModeRecord("org-1")
	_, err := repo.Init(ctx, record)
	require.NoError(t, err)

	now := time.Now().UTC()
	next := record.Transitioned(domain.ModeLive, "alice", "launch", nil, nil, now)

	require.NoError(t, repo.PutIfVersion(ctx, next, record.Version))

	// A write conditioned on the old version now conflicts
	stale := record.Transitioned(domain.ModeLive, "bob", "concurrent", nil, nil, now)
	err = repo.PutIfVersion(ctx, stale, record.Version)
	assert.ErrorIs(t, err, domain.ErrVersionConflict)

	err = repo.PutIfVersion(ctx, next, next.Version)
	assert.NoError(t, err)

	err = repo.PutIfVersion(ctx, domain.NewModeRecord("ghost"), 1)
	assert.ErrorIs(t, err, domain.ErrModeRecordNotFound)
}

func TestModeRepository_ConcurrentWritersOneWinner(t *testing.T) {
	repo := NewModeRepository()
	ctx := context.Background()

	record := domain.NewModeRecord("org-1")
	_, err := repo.Init(ctx, record)
	require.NoError(t, err)

	const writers = 16
	var wg sync.WaitGroup
	wins := make(chan int, writers)

	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			next := record.Transitioned(domain.ModeLive, "writer", "race", nil, nil, time.Now().UTC())
			if repo.PutIfVersion(ctx, next, record.Version) == nil {
				wins <- i
			}
		}(i)
	}
	wg.Wait()
	close(wins)

	var winners int
	for range wins {
		winners++
	}
	assert.Equal(t, 1, winners, "exactly one conditioned write must succeed")
}

func TestApprovalRepository_CloneIsolation(t *testing.T) {
	repo := NewApprovalRepository()
	ctx := context.Background()

	request := domain.NewApprovalRequest("org-1", domain.ModeDemo, domain.ModeLive, "alice", "launch", []string{"security_team"})
	require.NoError(t, repo.Create(ctx, request))

	// Mutating a fetched copy must not leak into the store
	fetched, err := repo.FindByID(ctx, request.ID)
	require.NoError(t, err)
	require.NoError(t, fetched.RecordDecision("bob", domain.DecisionApproved, "", time.Now().UTC()))

	stored, err := repo.FindByID(ctx, request.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ApprovalStatusPending, stored.Status)
	assert.Empty(t, stored.Decisions)
}

func TestAuditRepository_NewestFirstWithLimit(t *testing.T) {
	repo := NewAuditRepository()
	ctx := context.Background()

	for _, detail := range []string{"first", "second", "third"} {
		event := domain.NewAuditEvent("org-1", domain.AuditSwitchCompleted, domain.AuditSeverityInfo, "alice", domain.ModeDemo, domain.ModeLive, detail)
		require.NoError(t, repo.Append(ctx, event))
	}
	other := domain.NewAuditEvent("org-2", domain.AuditSwitchCompleted, domain.AuditSeverityInfo, "bob", domain.ModeDemo, domain.ModeLive, "elsewhere")
	require.NoError(t, repo.Append(ctx, other))

	events, err := repo.ListByOrganization(ctx, "org-1", 2)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "third", events[0].Detail)
	assert.Equal(t, "second", events[1].Detail)
}

package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/switchguard/switchguard/internal/adapter/memory"
	"github.com/switchguard/switchguard/internal/domain"
	"github.com/switchguard/switchguard/internal/logger"
	"github.com/switchguard/switchguard/internal/ports"
)

type nopLogger struct{}

func (nopLogger) Info(ctx context.Context, message string, fields map[string]interface{})             {}
func (nopLogger) Warn(ctx context.Context, message string, fields map[string]interface{})             {}
func (nopLogger) Error(ctx context.Context, message string, err error, fields map[string]interface{}) {}
func (nopLogger) Debug(ctx context.Context, message string, fields map[string]interface{})            {}
func (l nopLogger) WithFields(fields map[string]interface{}) logger.Logger                            { return l }

// stubVerifier returns a fixed MFA result and counts how often it is called
type stubVerifier struct {
	mu     sync.Mutex
	result ports.MFAResult
	err    error
	calls  int
}

func (v *stubVerifier) Check(ctx context.Context, actor, code string) (ports.MFAResult, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.calls++
	return v.result, v.err
}

func (v *stubVerifier) callCount() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.calls
}

type sentMessage struct {
	To      string
	Subject string
}

// recordingNotifier captures deliveries; failSend makes ordinary sends fail
type recordingNotifier struct {
	mu        sync.Mutex
	sent      []sentMessage
	criticals []string
	failSend  bool
}

func (n *recordingNotifier) Send(ctx context.Context, to, subject, body string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.failSend {
		return errors.New("delivery failed")
	}
	n.sent = append(n.sent, sentMessage{To: to, Subject: subject})
	return nil
}

func (n *recordingNotifier) SendCritical(ctx context.Context, subject, body string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.criticals = append(n.criticals, subject)
	return nil
}

func (n *recordingNotifier) sentMessages() []sentMessage {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]sentMessage(nil), n.sent...)
}

func (n *recordingNotifier) criticalSubjects() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.criticals...)
}

type scheduledTimer struct {
	At      time.Time
	Payload ports.RevertPayload
}

// recordingScheduler captures scheduled timers instead of firing them
type recordingScheduler struct {
	mu        sync.Mutex
	scheduled []scheduledTimer
	fail      bool
}

func (s *recordingScheduler) ScheduleOnce(ctx context.Context, at time.Time, payload ports.RevertPayload) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail {
		return "", errors.New("scheduler unavailable")
	}
	s.scheduled = append(s.scheduled, scheduledTimer{At: at, Payload: payload})
	return fmt.Sprintf("token-%d", len(s.scheduled)), nil
}

func (s *recordingScheduler) Cancel(ctx context.Context, token string) error { return nil }

func (s *recordingScheduler) timers() []scheduledTimer {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]scheduledTimer(nil), s.scheduled...)
}

type stubOverride struct{ ok bool }

func (s stubOverride) CheckOverride(code string) bool { return s.ok }

// recordingMetrics counts metric emissions by name
type recordingMetrics struct {
	mu     sync.Mutex
	counts map[string]float64
}

func (m *recordingMetrics) Count(name string, dimensions map[string]string, value float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.counts == nil {
		m.counts = make(map[string]float64)
	}
	m.counts[name] += value
}

func (m *recordingMetrics) Gauge(name string, dimensions map[string]string, value float64) {}

func (m *recordingMetrics) count(name string) float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.counts[name]
}

// conflictingModeRepo fails the next N conditioned writes with a version
// conflict, simulating a concurrent writer winning the race
type conflictingModeRepo struct {
	ports.ModeRepository
	mu        sync.Mutex
	conflicts int
}

func (r *conflictingModeRepo) PutIfVersion(ctx context.Context, record *domain.ModeRecord, expectedVersion int64) error {
	r.mu.Lock()
	if r.conflicts > 0 {
		r.conflicts--
		r.mu.Unlock()
		return domain.ErrVersionConflict
	}
	r.mu.Unlock()
	return r.ModeRepository.PutIfVersion(ctx, record, expectedVersion)
}

// initCountingModeRepo counts how many Init calls actually created the record
type initCountingModeRepo struct {
	ports.ModeRepository
	mu      sync.Mutex
	created int
}

func (r *initCountingModeRepo) Init(ctx context.Context, record *domain.ModeRecord) (bool, error) {
	created, err := r.ModeRepository.Init(ctx, record)
	if created {
		r.mu.Lock()
		r.created++
		r.mu.Unlock()
	}
	return created, err
}

func (r *initCountingModeRepo) createdCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.created
}

// fixture wires the use cases over in-memory repositories
type fixture struct {
	modes     ports.ModeRepository
	approvals *memory.ApprovalRepository
	audit     *memory.AuditRepository
	notifier  *recordingNotifier
	scheduler *recordingScheduler
	verifier  *stubVerifier
	metrics   *recordingMetrics
	policy    domain.SwitchPolicy

	orchestrator *Orchestrator
	workflow     *ApprovalWorkflow
	rollback     *EmergencyRollback
}

func newFixture(policy domain.SwitchPolicy) *fixture {
	return newFixtureWithModes(policy, memory.NewModeRepository())
}

// newFixtureWithModes lets a test swap the mode repository, e.g. to inject
// version conflicts
func newFixtureWithModes(policy domain.SwitchPolicy, modes ports.ModeRepository) *fixture {
	f := &fixture{
		modes:     modes,
		approvals: memory.NewApprovalRepository(),
		audit:     memory.NewAuditRepository(),
		notifier:  &recordingNotifier{},
		scheduler: &recordingScheduler{},
		verifier:  &stubVerifier{result: ports.MFAValid},
		metrics:   &recordingMetrics{},
		policy:    policy,
	}

	gate := NewMFAGate(f.verifier)
	f.orchestrator = NewOrchestrator(f.modes, f.audit, f.notifier, f.metrics, f.scheduler, gate, policy, "ops-list", nopLogger{})
	f.workflow = NewApprovalWorkflow(f.approvals, f.audit, f.notifier, f.orchestrator, policy, nopLogger{})
	f.orchestrator.SetApprovalWorkflow(f.workflow)
	f.rollback = NewEmergencyRollback(f.audit, f.notifier, gate, stubOverride{}, f.orchestrator, policy, nopLogger{})
	return f
}

// goLive moves an organization to live through the execute path, bypassing
// approval, and returns the resulting record
func (f *fixture) goLive(ctx context.Context, organizationID string) (*domain.ModeRecord, error) {
	record, _, err := f.orchestrator.ExecuteTransition(ctx, TransitionParams{
		OrganizationID: organizationID,
		To:             domain.ModeLive,
		Actor:          "setup",
		Justification:  "test setup",
	})
	return record, err
}

func (f *fixture) auditTypes() []domain.AuditEventType {
	var types []domain.AuditEventType
	for _, event := range f.audit.Events() {
		types = append(types, event.Type)
	}
	return types
}

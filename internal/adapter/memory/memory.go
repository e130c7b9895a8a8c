// Package memory provides in-memory repository implementations with the same
// version-conditioned write semantics as the Postgres adapters. Used by tests
// and local development without a database.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/switchguard/switchguard/internal/domain"
	"github.com/switchguard/switchguard/internal/ports"
)

// ModeRepository is an in-memory ports.ModeRepository
type ModeRepository struct {
	mu      sync.Mutex
	records map[string]domain.ModeRecord
}

func NewModeRepository() *ModeRepository {
	return &ModeRepository{records: make(map[string]domain.ModeRecord)}
}

func (r *ModeRepository) Get(ctx context.Context, organizationID string) (*domain.ModeRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	record, ok := r.records[organizationID]
	if !ok {
		return nil, domain.ErrModeRecordNotFound
	}
	copied := record
	return &copied, nil
}

func (r *ModeRepository) Init(ctx context.Context, record *domain.ModeRecord) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.records[record.OrganizationID]; ok {
		return false, nil
	}
	r.records[record.OrganizationID] = *record
	return true, nil
}

func (r *ModeRepository) PutIfVersion(ctx context.Context, record *domain.ModeRecord, expectedVersion int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	existing, ok := r.records[record.OrganizationID]
	if !ok {
		return domain.ErrModeRecordNotFound
	}
	if existing.Version != expectedVersion {
		return domain.ErrVersionConflict
	}
	r.records[record.OrganizationID] = *record
	return nil
}

// ApprovalRepository is an in-memory ports.ApprovalRepository
type ApprovalRepository struct {
	mu       sync.Mutex
	requests map[string]domain.ApprovalRequest
}

func NewApprovalRepository() *ApprovalRepository {
	return &ApprovalRepository{requests: make(map[string]domain.ApprovalRequest)}
}

func (r *ApprovalRepository) Create(ctx context.Context, request *domain.ApprovalRequest) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.requests[request.ID] = cloneRequest(request)
	return nil
}

func (r *ApprovalRepository) FindByID(ctx context.Context, id string) (*domain.ApprovalRequest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	request, ok := r.requests[id]
	if !ok {
		return nil, domain.ErrRequestNotFound
	}
	copied := cloneRequest(&request)
	return &copied, nil
}

func (r *ApprovalRepository) PutIfVersion(ctx context.Context, request *domain.ApprovalRequest, expectedVersion int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	existing, ok := r.requests[request.ID]
	if !ok {
		return domain.ErrRequestNotFound
	}
	if existing.Version != expectedVersion {
		return domain.ErrVersionConflict
	}
	r.requests[request.ID] = cloneRequest(request)
	return nil
}

func (r *ApprovalRepository) ListPending(ctx context.Context, organizationID string) ([]*domain.ApprovalRequest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var pending []*domain.ApprovalRequest
	for id := range r.requests {
		request := r.requests[id]
		if request.OrganizationID == organizationID && request.Status == domain.ApprovalStatusPending {
			copied := cloneRequest(&request)
			pending = append(pending, &copied)
		}
	}
	sort.Slice(pending, func(i, j int) bool {
		return pending[i].CreatedAt.After(pending[j].CreatedAt)
	})
	return pending, nil
}

func cloneRequest(request *domain.ApprovalRequest) domain.ApprovalRequest {
	copied := *request
	copied.RequiredRoles = append([]string(nil), request.RequiredRoles...)
	copied.Decisions = append([]domain.Decision(nil), request.Decisions...)
	return copied
}

// AuditRepository is an in-memory ports.AuditRepository
type AuditRepository struct {
	mu     sync.Mutex
	events []domain.AuditEvent
}

func NewAuditRepository() *AuditRepository {
	return &AuditRepository{}
}

func (r *AuditRepository) Append(ctx context.Context, event *domain.AuditEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, *event)
	return nil
}

func (r *AuditRepository) ListByOrganization(ctx context.Context, organizationID string, limit int) ([]*domain.AuditEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var events []*domain.AuditEvent
	for i := len(r.events) - 1; i >= 0; i-- {
		if r.events[i].OrganizationID != organizationID {
			continue
		}
		copied := r.events[i]
		events = append(events, &copied)
		if limit > 0 && len(events) >= limit {
			break
		}
	}
	return events, nil
}

// Events returns a snapshot of everything appended, oldest first
func (r *AuditRepository) Events() []domain.AuditEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.AuditEvent(nil), r.events...)
}

var (
	_ ports.ModeRepository     = (*ModeRepository)(nil)
	_ ports.ApprovalRepository = (*ApprovalRepository)(nil)
	_ ports.AuditRepository    = (*AuditRepository)(nil)
)

// Package store persists document aggregates and revision requests. The
// in-memory implementation backs unit tests and local development; the
// postgres implementation is the production store. Both enforce optimistic
// concurrency through the aggregate version.
package store

import (
	"context"
	"sync"

	"bordereau/internal/bsd/models"
	id "bordereau/pkg/domain"
	"bordereau/pkg/platform/sentinel"
)

type Memory struct {
	mu        sync.RWMutex
	documents map[id.DocumentID]*models.Document
	revisions map[id.RevisionID]*models.RevisionRequest
	codes     map[id.Siret]string
}

func NewMemory() *Memory {
	return &Memory{
		documents: make(map[id.DocumentID]*models.Document),
		revisions: make(map[id.RevisionID]*models.RevisionRequest),
		codes:     make(map[id.Siret]string),
	}
}

func (m *Memory) Create(_ context.Context, d *models.Document) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.documents[d.ID]; ok {
		return sentinel.ErrVersionConflict
	}
	d.Version = 1
	m.documents[d.ID] = d.Clone()
	return nil
}

func (m *Memory) Get(_ context.Context, docID id.DocumentID) (*models.Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.documents[docID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return d.Clone(), nil
}

func (m *Memory) GetByReadableID(_ context.Context, readableID string) (*models.Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, d := range m.documents {
		if d.ReadableID == readableID {
			return d.Clone(), nil
		}
	}
	return nil, sentinel.ErrNotFound
}

func (m *Memory) Save(_ context.Context, d *models.Document) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.documents[d.ID]
	if !ok {
		return sentinel.ErrNotFound
	}
	if stored.Version != d.Version {
		return sentinel.ErrVersionConflict
	}
	d.Version++
	m.documents[d.ID] = d.Clone()
	return nil
}

func (m *Memory) ListChildren(_ context.Context, parentID id.DocumentID) ([]*models.Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*models.Document
	for _, d := range m.documents {
		if d.GroupedInID != nil && *d.GroupedInID == parentID {
			out = append(out, d.Clone())
		}
	}
	return out, nil
}

func (m *Memory) ListBySiret(_ context.Context, siret id.Siret) ([]*models.Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*models.Document
	for _, d := range m.documents {
		for _, s := range d.Participants() {
			if s == siret {
				out = append(out, d.Clone())
				break
			}
		}
	}
	return out, nil
}

func cloneRevision(r *models.RevisionRequest) *models.RevisionRequest {
	c := *r
	c.Approvals = append([]models.RevisionApproval(nil), r.Approvals...)
	return &c
}

func (m *Memory) CreateRevision(_ context.Context, r *models.RevisionRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.revisions[r.ID]; ok {
		return sentinel.ErrVersionConflict
	}
	m.revisions[r.ID] = cloneRevision(r)
	return nil
}

func (m *Memory) GetRevision(_ context.Context, revID id.RevisionID) (*models.RevisionRequest, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.revisions[revID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return cloneRevision(r), nil
}

func (m *Memory) SaveRevision(_ context.Context, r *models.RevisionRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.revisions[r.ID]; !ok {
		return sentinel.ErrNotFound
	}
	m.revisions[r.ID] = cloneRevision(r)
	return nil
}

func (m *Memory) ListRevisionsByDocument(_ context.Context, docID id.DocumentID) ([]*models.RevisionRequest, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*models.RevisionRequest
	for _, r := range m.revisions {
		if r.DocumentID == docID {
			out = append(out, cloneRevision(r))
		}
	}
	return out, nil
}

// Revisions exposes the revision side of the store under the
// ports.RevisionStore contract.
func (m *Memory) Revisions() *MemoryRevisions { return &MemoryRevisions{m: m} }

type MemoryRevisions struct{ m *Memory }

func (r *MemoryRevisions) Create(ctx context.Context, req *models.RevisionRequest) error {
	return r.m.CreateRevision(ctx, req)
}

func (r *MemoryRevisions) Get(ctx context.Context, revID id.RevisionID) (*models.RevisionRequest, error) {
	return r.m.GetRevision(ctx, revID)
}

func (r *MemoryRevisions) Save(ctx context.Context, req *models.RevisionRequest) error {
	return r.m.SaveRevision(ctx, req)
}

func (r *MemoryRevisions) ListByDocument(ctx context.Context, docID id.DocumentID) ([]*models.RevisionRequest, error) {
	return r.m.ListRevisionsByDocument(ctx, docID)
}

// SetCodeHash provisions an establishment's security code hash.
func (m *Memory) SetCodeHash(_ context.Context, siret id.Siret, hash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.codes[siret] = hash
	return nil
}

func (m *Memory) GetCodeHash(_ context.Context, siret id.Siret) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	hash, ok := m.codes[siret]
	if !ok {
		return "", sentinel.ErrNotFound
	}
	return hash, nil
}

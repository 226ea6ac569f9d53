package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"bordereau/internal/bsd/models"
	id "bordereau/pkg/domain"
	"bordereau/pkg/platform/sentinel"
)

type MemoryStoreSuite struct {
	suite.Suite
	store *Memory
	ctx   context.Context
}

func (s *MemoryStoreSuite) SetupTest() {
	s.store = NewMemory()
	s.ctx = context.Background()
}

func TestMemoryStoreSuite(t *testing.T) {
	suite.Run(t, new(MemoryStoreSuite))
}

func (s *MemoryStoreSuite) newDoc() *models.Document {
	return &models.Document{
		ID:             id.NewDocumentID(),
		ReadableID:     models.NewReadableID(models.BSDD, time.Now()),
		Type:           models.BSDD,
		Status:         models.StatusInitial,
		EmitterCompany: models.CompanyRef{Siret: "11111111111111"},
	}
}

func (s *MemoryStoreSuite) TestCreateAndGet() {
	s.Run("create sets version one", func() {
		d := s.newDoc()
		s.Require().NoError(s.store.Create(s.ctx, d))
		s.Equal(1, d.Version)

		got, err := s.store.Get(s.ctx, d.ID)
		s.Require().NoError(err)
		s.Equal(d.ReadableID, got.ReadableID)
	})

	s.Run("get by readable ID", func() {
		d := s.newDoc()
		s.Require().NoError(s.store.Create(s.ctx, d))
		got, err := s.store.GetByReadableID(s.ctx, d.ReadableID)
		s.Require().NoError(err)
		s.Equal(d.ID, got.ID)
	})

	s.Run("unknown document", func() {
		_, err := s.store.Get(s.ctx, id.NewDocumentID())
		s.Require().ErrorIs(err, sentinel.ErrNotFound)
	})

	s.Run("duplicate create", func() {
		d := s.newDoc()
		s.Require().NoError(s.store.Create(s.ctx, d))
		s.Require().ErrorIs(s.store.Create(s.ctx, d), sentinel.ErrVersionConflict)
	})
}

// TestOptimisticConcurrency verifies the compare-and-swap on version.
func (s *MemoryStoreSuite) TestOptimisticConcurrency() {
	d := s.newDoc()
	s.Require().NoError(s.store.Create(s.ctx, d))

	first, err := s.store.Get(s.ctx, d.ID)
	s.Require().NoError(err)
	second, err := s.store.Get(s.ctx, d.ID)
	s.Require().NoError(err)

	first.WasteCode = "17 06 05*"
	s.Require().NoError(s.store.Save(s.ctx, first))
	s.Equal(2, first.Version)

	// The stale snapshot loses.
	second.WasteCode = "16 01 04*"
	s.Require().ErrorIs(s.store.Save(s.ctx, second), sentinel.ErrVersionConflict)

	got, err := s.store.Get(s.ctx, d.ID)
	s.Require().NoError(err)
	s.Equal("17 06 05*", got.WasteCode)
}

// TestSnapshotIsolation verifies the store hands out deep copies.
func (s *MemoryStoreSuite) TestSnapshotIsolation() {
	d := s.newDoc()
	d.Transporters = []models.TransporterSlot{{Number: 1, Company: models.CompanyRef{Siret: "22222222222222"}}}
	s.Require().NoError(s.store.Create(s.ctx, d))

	got, err := s.store.Get(s.ctx, d.ID)
	s.Require().NoError(err)
	got.Transporters[0].Signature = &models.Signature{Author: "Paul"}

	fresh, err := s.store.Get(s.ctx, d.ID)
	s.Require().NoError(err)
	s.False(fresh.Transporters[0].Signed())
}

func (s *MemoryStoreSuite) TestListChildren() {
	parent := s.newDoc()
	s.Require().NoError(s.store.Create(s.ctx, parent))
	child := s.newDoc()
	child.GroupedInID = &parent.ID
	s.Require().NoError(s.store.Create(s.ctx, child))
	other := s.newDoc()
	s.Require().NoError(s.store.Create(s.ctx, other))

	children, err := s.store.ListChildren(s.ctx, parent.ID)
	s.Require().NoError(err)
	s.Require().Len(children, 1)
	s.Equal(child.ID, children[0].ID)
}

func (s *MemoryStoreSuite) TestListBySiret() {
	d := s.newDoc()
	d.Transporters = []models.TransporterSlot{{Number: 1, Company: models.CompanyRef{Siret: "33333333333333"}}}
	s.Require().NoError(s.store.Create(s.ctx, d))

	byEmitter, err := s.store.ListBySiret(s.ctx, "11111111111111")
	s.Require().NoError(err)
	s.Len(byEmitter, 1)

	byTransporter, err := s.store.ListBySiret(s.ctx, "33333333333333")
	s.Require().NoError(err)
	s.Len(byTransporter, 1)

	none, err := s.store.ListBySiret(s.ctx, "99999999999999")
	s.Require().NoError(err)
	s.Empty(none)
}

func (s *MemoryStoreSuite) TestSecurityCodes() {
	s.Require().NoError(s.store.SetCodeHash(s.ctx, "11111111111111", "hash"))
	hash, err := s.store.GetCodeHash(s.ctx, "11111111111111")
	s.Require().NoError(err)
	s.Equal("hash", hash)

	_, err = s.store.GetCodeHash(s.ctx, "22222222222222")
	s.Require().ErrorIs(err, sentinel.ErrNotFound)
}

func (s *MemoryStoreSuite) TestRevisions() {
	d := s.newDoc()
	s.Require().NoError(s.store.Create(s.ctx, d))
	revisions := s.store.Revisions()

	cap := "CAP-2"
	req := &models.RevisionRequest{
		ID:         id.NewRevisionID(),
		DocumentID: d.ID,
		Content:    models.RevisionContent{DestinationCap: &cap},
		Status:     models.RevisionPending,
		Approvals:  []models.RevisionApproval{{ApproverSiret: "22222222222222", Status: models.ApprovalPending}},
	}
	s.Require().NoError(revisions.Create(s.ctx, req))

	got, err := revisions.Get(s.ctx, req.ID)
	s.Require().NoError(err)
	s.Equal(models.RevisionPending, got.Status)

	// The store hands out copies of the approvals slice.
	got.Approvals[0].Status = models.ApprovalAccepted
	fresh, err := revisions.Get(s.ctx, req.ID)
	s.Require().NoError(err)
	s.Equal(models.ApprovalPending, fresh.Approvals[0].Status)

	listed, err := revisions.ListByDocument(s.ctx, d.ID)
	s.Require().NoError(err)
	s.Len(listed, 1)
}

//go:build integration

package store_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"bordereau/internal/bsd/models"
	"bordereau/internal/bsd/store"
	id "bordereau/pkg/domain"
	"bordereau/pkg/platform/sentinel"
	"bordereau/pkg/testutil/containers"
)

type PostgresStoreSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	store    *store.Postgres
}

func TestPostgresStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresStoreSuite))
}

func (s *PostgresStoreSuite) SetupSuite() {
	s.postgres = containers.NewPostgresContainer(s.T())
	s.store = store.NewPostgres(s.postgres.DB)
	s.Require().NoError(s.store.EnsureSchema(context.Background()))
}

func (s *PostgresStoreSuite) SetupTest() {
	ctx := context.Background()
	// Truncate in dependency order
	err := s.postgres.TruncateTables(ctx, "revision_requests", "company_security_codes", "documents")
	s.Require().NoError(err)
}

func newStoredDocument() *models.Document {
	now := time.Now().UTC().Truncate(time.Microsecond)
	return &models.Document{
		ID:                 id.NewDocumentID(),
		ReadableID:         models.NewReadableID(models.BSDD, now),
		Type:               models.BSDD,
		Status:             models.StatusInitial,
		EmitterCompany:     models.CompanyRef{Siret: "11111111111111", Name: "Producteur SA"},
		DestinationCompany: models.CompanyRef{Siret: "22222222222222", Name: "Exutoire SARL"},
		WasteCode:          "17 06 05*",
		CreatedAt:          now,
		UpdatedAt:          now,
	}
}

func (s *PostgresStoreSuite) TestRoundTrip() {
	ctx := context.Background()
	d := newStoredDocument()
	d.Transporters = []models.TransporterSlot{{Number: 1, Company: models.CompanyRef{Siret: "33333333333333"}}}

	s.Require().NoError(s.store.Create(ctx, d))
	s.Equal(1, d.Version)

	got, err := s.store.Get(ctx, d.ID)
	s.Require().NoError(err)
	s.Equal(d.ReadableID, got.ReadableID)
	s.Equal(d.WasteCode, got.WasteCode)
	s.Require().Len(got.Transporters, 1)
	s.Equal(id.Siret("33333333333333"), got.Transporters[0].Company.Siret)

	byReadable, err := s.store.GetByReadableID(ctx, d.ReadableID)
	s.Require().NoError(err)
	s.Equal(d.ID, byReadable.ID)

	_, err = s.store.Get(ctx, id.NewDocumentID())
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *PostgresStoreSuite) TestDuplicateCreate() {
	ctx := context.Background()
	d := newStoredDocument()
	s.Require().NoError(s.store.Create(ctx, d))
	s.ErrorIs(s.store.Create(ctx, d), sentinel.ErrVersionConflict)
}

// TestConcurrentSave verifies that concurrent saves of the same snapshot
// leave exactly one winner.
func (s *PostgresStoreSuite) TestConcurrentSave() {
	ctx := context.Background()
	d := newStoredDocument()
	s.Require().NoError(s.store.Create(ctx, d))

	const goroutines = 20
	snapshots := make([]*models.Document, goroutines)
	for i := range snapshots {
		got, err := s.store.Get(ctx, d.ID)
		s.Require().NoError(err)
		snapshots[i] = got
	}

	var wg sync.WaitGroup
	var successCount, conflictCount atomic.Int32
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func(snap *models.Document) {
			defer wg.Done()
			snap.Status = models.StatusSignedByProducer
			if err := s.store.Save(ctx, snap); err == nil {
				successCount.Add(1)
			} else {
				conflictCount.Add(1)
			}
		}(snapshots[i])
	}
	wg.Wait()

	s.Equal(int32(1), successCount.Load(), "exactly one save should win")
	s.Equal(int32(goroutines-1), conflictCount.Load(), "all others should conflict")

	got, err := s.store.Get(ctx, d.ID)
	s.Require().NoError(err)
	s.Equal(2, got.Version)
}

func (s *PostgresStoreSuite) TestStaleSaveRejected() {
	ctx := context.Background()
	d := newStoredDocument()
	s.Require().NoError(s.store.Create(ctx, d))

	stale, err := s.store.Get(ctx, d.ID)
	s.Require().NoError(err)

	fresh, err := s.store.Get(ctx, d.ID)
	s.Require().NoError(err)
	fresh.WasteCode = "16 01 04*"
	s.Require().NoError(s.store.Save(ctx, fresh))

	stale.WasteCode = "15 01 10*"
	s.ErrorIs(s.store.Save(ctx, stale), sentinel.ErrVersionConflict)

	got, err := s.store.Get(ctx, d.ID)
	s.Require().NoError(err)
	s.Equal("16 01 04*", got.WasteCode)
}

func (s *PostgresStoreSuite) TestListChildren() {
	ctx := context.Background()
	parent := newStoredDocument()
	s.Require().NoError(s.store.Create(ctx, parent))

	child := newStoredDocument()
	child.GroupedInID = &parent.ID
	s.Require().NoError(s.store.Create(ctx, child))

	unrelated := newStoredDocument()
	s.Require().NoError(s.store.Create(ctx, unrelated))

	children, err := s.store.ListChildren(ctx, parent.ID)
	s.Require().NoError(err)
	s.Require().Len(children, 1)
	s.Equal(child.ID, children[0].ID)
}

func (s *PostgresStoreSuite) TestListBySiret() {
	ctx := context.Background()
	d := newStoredDocument()
	s.Require().NoError(s.store.Create(ctx, d))

	byEmitter, err := s.store.ListBySiret(ctx, "11111111111111")
	s.Require().NoError(err)
	s.Len(byEmitter, 1)

	none, err := s.store.ListBySiret(ctx, "99999999999999")
	s.Require().NoError(err)
	s.Empty(none)
}

func (s *PostgresStoreSuite) TestRevisions() {
	ctx := context.Background()
	d := newStoredDocument()
	s.Require().NoError(s.store.Create(ctx, d))

	revisions := s.store.Revisions()
	cap := "CAP-2"
	now := time.Now().UTC().Truncate(time.Microsecond)
	req := &models.RevisionRequest{
		ID:             id.NewRevisionID(),
		DocumentID:     d.ID,
		AuthoringSiret: "11111111111111",
		Content:        models.RevisionContent{DestinationCap: &cap},
		Status:         models.RevisionPending,
		Approvals:      []models.RevisionApproval{{ApproverSiret: "22222222222222", Status: models.ApprovalPending}},
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	s.Require().NoError(revisions.Create(ctx, req))

	got, err := revisions.Get(ctx, req.ID)
	s.Require().NoError(err)
	s.Equal(models.RevisionPending, got.Status)
	s.Require().NotNil(got.Content.DestinationCap)
	s.Equal("CAP-2", *got.Content.DestinationCap)

	got.Status = models.RevisionAccepted
	got.UpdatedAt = time.Now().UTC()
	s.Require().NoError(revisions.Save(ctx, got))

	listed, err := revisions.ListByDocument(ctx, d.ID)
	s.Require().NoError(err)
	s.Require().Len(listed, 1)
	s.Equal(models.RevisionAccepted, listed[0].Status)

	_, err = revisions.Get(ctx, id.NewRevisionID())
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *PostgresStoreSuite) TestSecurityCodes() {
	ctx := context.Background()
	s.Require().NoError(s.store.SetCodeHash(ctx, "11111111111111", "hash-a"))
	s.Require().NoError(s.store.SetCodeHash(ctx, "11111111111111", "hash-b"))

	hash, err := s.store.GetCodeHash(ctx, "11111111111111")
	s.Require().NoError(err)
	s.Equal("hash-b", hash)

	_, err = s.store.GetCodeHash(ctx, "22222222222222")
	s.ErrorIs(err, sentinel.ErrNotFound)
}

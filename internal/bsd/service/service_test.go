package service

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"bordereau/internal/bsd/authz"
	"bordereau/internal/bsd/chain"
	"bordereau/internal/bsd/company"
	"bordereau/internal/bsd/events"
	"bordereau/internal/bsd/models"
	"bordereau/internal/bsd/store"
	id "bordereau/pkg/domain"
	dErrors "bordereau/pkg/domain-errors"
	"bordereau/pkg/platform/secrets"
)

const (
	emitterSiret     = id.Siret("11111111111111")
	transporterSiret = id.Siret("22222222222222")
	destinationSiret = id.Siret("33333333333333")
)

type ServiceSuite struct {
	suite.Suite
	docs      *store.Memory
	directory *company.StaticDirectory
	publisher *events.ChannelPublisher
	svc       *Service
	now       time.Time
	ctx       context.Context
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	s.ctx = context.Background()
	s.now = time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC)
	s.docs = store.NewMemory()
	s.directory = company.NewStaticDirectory()
	s.publisher = events.NewChannelPublisher(64, slog.Default())

	resolver := authz.NewResolver(company.NewCodeVerifier(s.docs))
	gate := company.NewGate(s.directory)
	svc, err := New(s.docs, store.NewMemoryLocker(), store.NoopTxRunner{}, resolver, chain.New(s.docs),
		WithCompanyGate(gate),
		WithEventPublisher(s.publisher),
		WithClock(func() time.Time { return s.now }),
	)
	s.Require().NoError(err)
	s.svc = svc
}

func (s *ServiceSuite) emitter() authz.Actor {
	return authz.Actor{Name: "Jean Producteur", CompanySirets: []id.Siret{emitterSiret}}
}

func (s *ServiceSuite) transporter() authz.Actor {
	return authz.Actor{Name: "Paul Chauffeur", CompanySirets: []id.Siret{transporterSiret}}
}

func (s *ServiceSuite) destination() authz.Actor {
	return authz.Actor{Name: "Marie Exploitante", CompanySirets: []id.Siret{destinationSiret}}
}

func (s *ServiceSuite) newBSDD() *models.Document {
	return &models.Document{
		Type:                            models.BSDD,
		EmitterCompany:                  models.CompanyRef{Siret: emitterSiret, Name: "Producteur SA"},
		DestinationCompany:              models.CompanyRef{Siret: destinationSiret, Name: "Exutoire SARL"},
		WasteCode:                       "17 06 05*",
		WeightValue:                     1.2,
		DestinationPlannedOperationCode: "D 5",
		Transporters: []models.TransporterSlot{{
			Number:          1,
			Company:         models.CompanyRef{Siret: transporterSiret, Name: "Transport Express"},
			RecepisseNumber: "REC-2026-001",
		}},
	}
}

// drainEvents collects everything published so far without blocking.
func (s *ServiceSuite) drainEvents() []events.Event {
	var out []events.Event
	for {
		select {
		case e := <-s.publisher.Outbox():
			out = append(out, e)
		default:
			return out
		}
	}
}

func (s *ServiceSuite) sign(actor authz.Actor, docID id.DocumentID, sig models.SignatureType) (*models.Document, error) {
	return s.svc.Sign(s.ctx, actor, SignatureRequest{DocumentID: docID, Type: sig, Author: actor.Name})
}

func (s *ServiceSuite) TestFullLifecycle() {
	doc, err := s.svc.Create(s.ctx, s.emitter(), s.newBSDD(), true)
	s.Require().NoError(err)
	s.Equal(models.StatusDraft, doc.Status)
	s.NotEmpty(doc.ReadableID)

	s.Run("draft cannot be signed", func() {
		_, err := s.sign(s.emitter(), doc.ID, models.SignatureEmission)
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeNotTransitionable))
	})

	s.Run("publish seals the draft", func() {
		published, err := s.svc.Publish(s.ctx, s.emitter(), doc.ID)
		s.Require().NoError(err)
		s.Equal(models.StatusInitial, published.Status)
	})

	s.Run("emission", func() {
		signed, err := s.sign(s.emitter(), doc.ID, models.SignatureEmission)
		s.Require().NoError(err)
		s.Equal(models.StatusSignedByProducer, signed.Status)

		batch := s.drainEvents()
		s.Require().Len(batch, 2)
		s.Equal(events.KindDocumentSigned, batch[0].Kind)
		s.Equal(events.KindDocumentStatusChanged, batch[1].Kind)
		s.Equal(models.StatusInitial, batch[1].Previous)
		s.Equal(models.StatusSignedByProducer, batch[1].Next)
	})

	s.Run("transport", func() {
		signed, err := s.sign(s.transporter(), doc.ID, models.SignatureTransport)
		s.Require().NoError(err)
		s.Equal(models.StatusSent, signed.Status)
		s.True(signed.Transporters[0].Signed())
	})

	s.Run("reception", func() {
		s.setReceptionAccepted(doc.ID)
		signed, err := s.sign(s.destination(), doc.ID, models.SignatureReception)
		s.Require().NoError(err)
		s.Equal(models.StatusAccepted, signed.Status)
	})

	s.Run("operation closes the document", func() {
		s.setOperation(doc.ID, "D 5")
		signed, err := s.sign(s.destination(), doc.ID, models.SignatureOperation)
		s.Require().NoError(err)
		s.Equal(models.StatusProcessed, signed.Status)
	})

	s.Run("re-signing the operation reports the duplicate", func() {
		_, err := s.sign(s.destination(), doc.ID, models.SignatureOperation)
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeAlreadySigned))
	})
}

// setReceptionAccepted fills the reception block the way the destination's
// form would before the RECEPTION signature.
func (s *ServiceSuite) setReceptionAccepted(docID id.DocumentID) {
	s.T().Helper()
	stored, err := s.docs.Get(s.ctx, docID)
	s.Require().NoError(err)
	weight := 1.1
	when := s.now
	stored.DestinationReceptionAcceptationStatus = models.AcceptationAccepted
	stored.DestinationReceptionWeight = &weight
	stored.DestinationReceptionDate = &when
	s.Require().NoError(s.docs.Save(s.ctx, stored))
}

func (s *ServiceSuite) setReceptionRefused(docID id.DocumentID) {
	s.T().Helper()
	stored, err := s.docs.Get(s.ctx, docID)
	s.Require().NoError(err)
	when := s.now
	stored.DestinationReceptionAcceptationStatus = models.AcceptationRefused
	stored.DestinationReceptionRefusalReason = "Déchet non conforme au bordereau"
	stored.DestinationReceptionDate = &when
	s.Require().NoError(s.docs.Save(s.ctx, stored))
}

func (s *ServiceSuite) setOperation(docID id.DocumentID, code string) {
	s.T().Helper()
	stored, err := s.docs.Get(s.ctx, docID)
	s.Require().NoError(err)
	when := s.now
	stored.DestinationOperationCode = code
	stored.DestinationOperationDate = &when
	s.Require().NoError(s.docs.Save(s.ctx, stored))
}

// signedUpTo creates a sealed document and advances it with signatures.
func (s *ServiceSuite) signedUpTo(target models.Status) *models.Document {
	s.T().Helper()
	doc, err := s.svc.Create(s.ctx, s.emitter(), s.newBSDD(), false)
	s.Require().NoError(err)
	if target == models.StatusInitial {
		return doc
	}

	doc, err = s.sign(s.emitter(), doc.ID, models.SignatureEmission)
	s.Require().NoError(err)
	if target == models.StatusSignedByProducer {
		return doc
	}

	doc, err = s.sign(s.transporter(), doc.ID, models.SignatureTransport)
	s.Require().NoError(err)
	if target == models.StatusSent {
		return doc
	}

	s.setReceptionAccepted(doc.ID)
	doc, err = s.sign(s.destination(), doc.ID, models.SignatureReception)
	s.Require().NoError(err)
	s.Require().Equal(target, doc.Status)
	return doc
}

func (s *ServiceSuite) TestProxySignature() {
	code, err := secrets.Generate()
	s.Require().NoError(err)
	hash, err := secrets.Hash(code)
	s.Require().NoError(err)
	s.Require().NoError(s.docs.SetCodeHash(s.ctx, emitterSiret, hash))

	s.Run("transporter signs emission with the emitter's code", func() {
		doc := s.signedUpTo(models.StatusInitial)
		signed, err := s.svc.Sign(s.ctx, s.transporter(), SignatureRequest{
			DocumentID:   doc.ID,
			Type:         models.SignatureEmission,
			Author:       "Jean Producteur",
			SecurityCode: code,
		})
		s.Require().NoError(err)
		s.Equal(models.StatusSignedByProducer, signed.Status)
	})

	s.Run("wrong code is rejected", func() {
		doc := s.signedUpTo(models.StatusInitial)
		_, err := s.svc.Sign(s.ctx, s.transporter(), SignatureRequest{
			DocumentID:   doc.ID,
			Type:         models.SignatureEmission,
			Author:       "Jean Producteur",
			SecurityCode: "0000",
		})
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidSecurityCode))
	})

	s.Run("missing code is rejected", func() {
		doc := s.signedUpTo(models.StatusInitial)
		_, err := s.sign(s.transporter(), doc.ID, models.SignatureEmission)
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeMissingSecurityCode))
	})
}

func (s *ServiceSuite) TestCompanyGateBlocksSignature() {
	s.directory.Set(company.Info{Siret: emitterSiret, AdministrativeStatus: company.StatusClosed})

	doc := s.signedUpTo(models.StatusInitial)
	_, err := s.sign(s.emitter(), doc.ID, models.SignatureEmission)
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeCompanyClosed))

	stored, err := s.docs.Get(s.ctx, doc.ID)
	s.Require().NoError(err)
	s.Equal(models.StatusInitial, stored.Status)
}

func (s *ServiceSuite) TestRefusalReleasesGroupedChildren() {
	parent := s.signedUpTo(models.StatusSent)

	child := s.newBSDD()
	child.ID = id.NewDocumentID()
	child.ReadableID = models.NewReadableID(models.BSDD, s.now)
	child.Status = models.StatusAwaitingChild
	child.GroupedInID = &parent.ID
	s.Require().NoError(s.docs.Create(s.ctx, child))

	s.drainEvents()
	s.setReceptionRefused(parent.ID)
	signed, err := s.sign(s.destination(), parent.ID, models.SignatureReception)
	s.Require().NoError(err)
	s.Equal(models.StatusRefused, signed.Status)

	released, err := s.docs.Get(s.ctx, child.ID)
	s.Require().NoError(err)
	s.Nil(released.GroupedInID)
	s.Equal(models.StatusAwaitingChild, released.Status)

	batch := s.drainEvents()
	var kinds []events.Kind
	for _, e := range batch {
		kinds = append(kinds, e.Kind)
	}
	s.Contains(kinds, events.KindChildrenReleased)
}

func (s *ServiceSuite) TestCreateValidation() {
	s.Run("anonymous actor is rejected", func() {
		_, err := s.svc.Create(s.ctx, authz.Actor{Name: "Anonyme"}, s.newBSDD(), true)
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeUnauthenticated))
	})

	s.Run("non-participant cannot create", func() {
		stranger := authz.Actor{Name: "Autre", CompanySirets: []id.Siret{"44444444444444"}}
		_, err := s.svc.Create(s.ctx, stranger, s.newBSDD(), true)
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
	})

	s.Run("sealed creation enforces the emission fields", func() {
		incomplete := s.newBSDD()
		incomplete.WasteCode = ""
		_, err := s.svc.Create(s.ctx, s.emitter(), incomplete, false)
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeMissingRequiredFields))
	})

	s.Run("draft creation skips the emission fields", func() {
		incomplete := s.newBSDD()
		incomplete.WasteCode = ""
		doc, err := s.svc.Create(s.ctx, s.emitter(), incomplete, true)
		s.Require().NoError(err)
		s.Equal(models.StatusDraft, doc.Status)
	})
}

func (s *ServiceSuite) TestTransporterManagement() {
	doc := s.signedUpTo(models.StatusSignedByProducer)

	s.Run("append a second slot", func() {
		updated, err := s.svc.AddTransporter(s.ctx, s.emitter(), doc.ID, models.TransporterSlot{
			Company:         models.CompanyRef{Siret: "44444444444444"},
			RecepisseNumber: "REC-2026-002",
		})
		s.Require().NoError(err)
		s.Require().Len(updated.Transporters, 2)
		s.Equal(2, updated.Transporters[1].Number)
	})

	s.Run("remove the unsigned slot", func() {
		updated, err := s.svc.DeleteTransporter(s.ctx, s.emitter(), doc.ID, 2)
		s.Require().NoError(err)
		s.Len(updated.Transporters, 1)
	})

	s.Run("stranger cannot edit the chain", func() {
		stranger := authz.Actor{Name: "Autre", CompanySirets: []id.Siret{"55555555555555"}}
		_, err := s.svc.AddTransporter(s.ctx, stranger, doc.ID, models.TransporterSlot{
			Company: models.CompanyRef{Siret: "55555555555555"},
		})
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
	})
}

func (s *ServiceSuite) TestLookups() {
	doc := s.signedUpTo(models.StatusInitial)

	s.Run("participants can read", func() {
		got, err := s.svc.Get(s.ctx, s.destination(), doc.ID)
		s.Require().NoError(err)
		s.Equal(doc.ID, got.ID)

		byReadable, err := s.svc.GetByReadableID(s.ctx, s.transporter(), doc.ReadableID)
		s.Require().NoError(err)
		s.Equal(doc.ID, byReadable.ID)
	})

	s.Run("strangers cannot", func() {
		stranger := authz.Actor{Name: "Autre", CompanySirets: []id.Siret{"44444444444444"}}
		_, err := s.svc.Get(s.ctx, stranger, doc.ID)
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
	})

	s.Run("unknown identifiers", func() {
		_, err := s.svc.Get(s.ctx, s.emitter(), id.NewDocumentID())
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})

	s.Run("listing dedupes across an actor's companies", func() {
		actor := authz.Actor{Name: "Groupe", CompanySirets: []id.Siret{emitterSiret, destinationSiret}}
		docs, err := s.svc.ListForActor(s.ctx, actor)
		s.Require().NoError(err)
		s.Len(docs, 1)
	})
}

func (s *ServiceSuite) TestConflictIsReported() {
	doc := s.signedUpTo(models.StatusInitial)

	// A concurrent writer bumps the version between our read and save by
	// racing through the same store outside the service lock.
	stale, err := s.docs.Get(s.ctx, doc.ID)
	s.Require().NoError(err)
	fresh, err := s.docs.Get(s.ctx, doc.ID)
	s.Require().NoError(err)
	s.Require().NoError(s.docs.Save(s.ctx, fresh))
	s.Require().Error(s.docs.Save(s.ctx, stale))
}

package machine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"bordereau/internal/bsd/models"
	dErrors "bordereau/pkg/domain-errors"
)

type MachineSuite struct {
	suite.Suite
	now time.Time
}

func (s *MachineSuite) SetupTest() {
	s.now = time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC)
}

func TestMachineSuite(t *testing.T) {
	suite.Run(t, new(MachineSuite))
}

func (s *MachineSuite) newBsdd() *models.Document {
	return &models.Document{
		Type:               models.BSDD,
		Status:             models.StatusInitial,
		EmitterCompany:     models.CompanyRef{Siret: "11111111111111"},
		DestinationCompany: models.CompanyRef{Siret: "22222222222222"},
		Transporters: []models.TransporterSlot{
			{Number: 1, Company: models.CompanyRef{Siret: "33333333333333"}},
		},
	}
}

func (s *MachineSuite) sign(d *models.Document, sig models.SignatureType, author string) *Result {
	res, err := Sign(d, sig, author, s.now)
	s.Require().NoError(err)
	return res
}

// TestFullLifecycle drives a BSDD from INITIAL to PROCESSED.
func (s *MachineSuite) TestFullLifecycle() {
	d := s.newBsdd()

	res := s.sign(d, models.SignatureEmission, "Jean Producteur")
	s.Equal(models.StatusInitial, res.Previous)
	s.Equal(models.StatusSignedByProducer, d.Status)
	s.True(d.HasSignature(models.SignatureEmission))

	res = s.sign(d, models.SignatureTransport, "Paul Transporteur")
	s.Equal(models.StatusSent, d.Status)
	s.Equal(1, res.TransporterNumber)
	s.NotNil(d.Transporters[0].TakenOverAt)

	d.DestinationReceptionAcceptationStatus = models.AcceptationAccepted
	s.sign(d, models.SignatureReception, "Luc Destinataire")
	s.Equal(models.StatusAccepted, d.Status)

	d.DestinationOperationCode = "D 10"
	s.sign(d, models.SignatureOperation, "Luc Destinataire")
	s.Equal(models.StatusProcessed, d.Status)
	s.True(d.Status.IsTerminal())
}

// TestAlreadySignedIsIdempotent verifies re-signing never mutates anything.
func (s *MachineSuite) TestAlreadySignedIsIdempotent() {
	d := s.newBsdd()
	s.sign(d, models.SignatureEmission, "Jean")
	before := d.Clone()

	_, err := Sign(d, models.SignatureEmission, "Jean bis", s.now.Add(time.Hour))
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeAlreadySigned))
	s.Equal(before.Status, d.Status)
	s.Equal(before.SignatureAt(models.SignatureEmission).Author, d.SignatureAt(models.SignatureEmission).Author)
	s.Equal(before.UpdatedAt, d.UpdatedAt)
}

// TestClosedDocumentReportsDuplicates: once a document is PROCESSED, the
// duplicate diagnosis still wins over the terminal-status one.
func (s *MachineSuite) TestClosedDocumentReportsDuplicates() {
	d := s.newBsdd()
	s.sign(d, models.SignatureEmission, "Jean")
	s.sign(d, models.SignatureTransport, "Paul")
	d.DestinationReceptionAcceptationStatus = models.AcceptationAccepted
	s.sign(d, models.SignatureReception, "Luc")
	d.DestinationOperationCode = "D 10"
	s.sign(d, models.SignatureOperation, "Luc")
	s.Require().Equal(models.StatusProcessed, d.Status)

	for _, sig := range []models.SignatureType{
		models.SignatureOperation, models.SignatureReception, models.SignatureEmission,
	} {
		_, err := Sign(d, sig, "Luc", s.now)
		s.Require().Error(err, string(sig))
		s.True(dErrors.HasCode(err, dErrors.CodeAlreadySigned), string(sig))
	}
}

func (s *MachineSuite) TestTerminalDocumentRejectsEverything() {
	d := s.newBsdd()
	d.Status = models.StatusRefused
	for _, sig := range []models.SignatureType{
		models.SignatureEmission, models.SignatureTransport,
		models.SignatureReception, models.SignatureOperation,
	} {
		_, err := Sign(d, sig, "Quiconque", s.now)
		s.Require().Error(err, string(sig))
		s.True(dErrors.HasCode(err, dErrors.CodeNotTransitionable))
	}
}

// TestMultimodalChain signs the transporter slots in order; intermediate
// signatures keep the document at SENT.
func (s *MachineSuite) TestMultimodalChain() {
	d := s.newBsdd()
	d.Transporters = append(d.Transporters, models.TransporterSlot{
		Number: 2, Company: models.CompanyRef{Siret: "44444444444444"},
	})
	s.sign(d, models.SignatureEmission, "Jean")

	res := s.sign(d, models.SignatureTransport, "Paul")
	s.Equal(1, res.TransporterNumber)
	s.Equal(models.StatusSent, d.Status)

	res = s.sign(d, models.SignatureTransport, "Pierre")
	s.Equal(2, res.TransporterNumber)
	s.Equal(models.StatusSent, d.Status)

	_, err := Sign(d, models.SignatureTransport, "Personne", s.now)
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeAlreadySigned))
}

// TestOperationAutoValidatesReception covers the types where RECEPTION may be
// folded into the OPERATION call.
func (s *MachineSuite) TestOperationAutoValidatesReception() {
	d := &models.Document{
		Type:                                  models.BSVHU,
		Status:                                models.StatusSent,
		DestinationReceptionAcceptationStatus: models.AcceptationAccepted,
		DestinationOperationCode:              "R 4",
	}
	res := s.sign(d, models.SignatureOperation, "Luc")
	s.True(res.ReceptionAutoValidated)
	s.True(d.HasSignature(models.SignatureReception))
	s.Equal("Luc", d.SignatureAt(models.SignatureReception).Author)
	s.Equal(models.StatusProcessed, d.Status)
}

// TestTempStorageKeepsBothReceptionRecords runs a BSDD through temporary
// storage and checks no signature record overwrites another.
func (s *MachineSuite) TestTempStorageKeepsBothReceptionRecords() {
	d := s.newBsdd()
	d.IsTempStorage = true
	s.sign(d, models.SignatureEmission, "Jean")
	s.sign(d, models.SignatureTransport, "Paul")

	d.DestinationReceptionAcceptationStatus = models.AcceptationAccepted
	s.sign(d, models.SignatureReception, "Entreposeur")
	s.Equal(models.StatusTempStorerAccepted, d.Status)
	s.True(d.HasSignature(models.SignatureTempStorage))
	s.False(d.HasSignature(models.SignatureReception))

	// The storage site reseals: a second emission-type signature, recorded
	// apart from the producer's.
	s.sign(d, models.SignatureEmission, "Entreposeur")
	s.Equal(models.StatusResealed, d.Status)
	s.Equal("Jean", d.SignatureAt(models.SignatureEmission).Author)
	s.Equal("Entreposeur", d.SignatureAt(models.SignatureReseal).Author)

	d.Transporters = append(d.Transporters, models.TransporterSlot{
		Number: 2, Company: models.CompanyRef{Siret: "55555555555555"},
	})
	s.sign(d, models.SignatureTransport, "Pierre")
	s.Equal(models.StatusResent, d.Status)

	s.sign(d, models.SignatureReception, "Luc")
	s.Equal(models.StatusAccepted, d.Status)
	s.Equal("Luc", d.SignatureAt(models.SignatureReception).Author)
	s.Equal("Entreposeur", d.SignatureAt(models.SignatureTempStorage).Author)
}

func (s *MachineSuite) TestRefusalClosesAtReception() {
	d := s.newBsdd()
	s.sign(d, models.SignatureEmission, "Jean")
	s.sign(d, models.SignatureTransport, "Paul")

	d.DestinationReceptionAcceptationStatus = models.AcceptationRefused
	d.DestinationReceptionRefusalReason = "Déchet non conforme"
	res := s.sign(d, models.SignatureReception, "Luc")
	s.Equal(models.StatusRefused, res.Next)
	s.True(d.Status.IsTerminal())
}

// Package rules holds the declarative per-type tables driving the signature
// engine: status transitions and field completeness rules. One engine, five
// document types, no duplicated state machines.
package rules

import (
	"strings"

	"bordereau/internal/bsd/models"
	dErrors "bordereau/pkg/domain-errors"
)

// transition is one legal (signature, from-status) edge. Resolve computes
// the target status from the document at signature time, so refusals and
// non-final operation codes branch without extra edges.
type transition struct {
	sig     models.SignatureType
	from    []models.Status
	guard   func(d *models.Document) error
	resolve func(d *models.Document) models.Status
}

// nonFinalOperationCodes are treatment codes implying onward consolidation
// or further processing: the document waits on a child instead of closing.
var nonFinalOperationCodes = map[string]bool{
	"R 12": true,
	"R 13": true,
	"D 13": true,
	"D 14": true,
	"D 15": true,
}

// IsFinalOperationCode reports whether the code closes the traceability
// chain. Codes are normalized on lookup ("R13" and "R 13" are the same).
func IsFinalOperationCode(code string) bool {
	normalized := strings.ToUpper(strings.TrimSpace(code))
	if len(normalized) > 1 && normalized[1] != ' ' {
		normalized = normalized[:1] + " " + normalized[1:]
	}
	return !nonFinalOperationCodes[normalized]
}

func statusIn(s models.Status, set []models.Status) bool {
	for _, v := range set {
		if v == s {
			return true
		}
	}
	return false
}

// Next computes the status produced by applying a signature type to the
// document in its current state. Returns a NOT_TRANSITIONABLE error when no
// edge matches or a guard rejects.
func Next(d *models.Document, sig models.SignatureType) (models.Status, error) {
	table, ok := transitions[d.Type]
	if !ok {
		return "", dErrors.Newf(dErrors.CodeBadRequest, "Type de bordereau inconnu : %s", d.Type)
	}
	var guardErr error
	for _, t := range table {
		if t.sig != sig || !statusIn(d.Status, t.from) {
			continue
		}
		if t.guard != nil {
			if err := t.guard(d); err != nil {
				guardErr = err
				continue
			}
		}
		return t.resolve(d), nil
	}
	if guardErr != nil {
		return "", guardErr
	}
	return "", dErrors.Newf(dErrors.CodeNotTransitionable,
		"Vous ne pouvez pas apposer une signature de type %s sur un bordereau au statut %s", sig, d.Status)
}

// emitterSkipsEmission reports whether the emission step is waived: private
// individuals have no establishment account to sign with.
func emitterSkipsEmission(d *models.Document) bool {
	return d.EmitterIsPrivateIndividual
}

func toSignedByProducer(*models.Document) models.Status { return models.StatusSignedByProducer }
func toSignedByWorker(*models.Document) models.Status   { return models.StatusSignedByWorker }
func toSent(*models.Document) models.Status             { return models.StatusSent }
func toResealed(*models.Document) models.Status         { return models.StatusResealed }
func toResent(*models.Document) models.Status           { return models.StatusResent }

// afterReception branches on the destination's acceptation verdict.
func afterReception(accepted models.Status) func(*models.Document) models.Status {
	return func(d *models.Document) models.Status {
		switch d.DestinationReceptionAcceptationStatus {
		case models.AcceptationRefused:
			return models.StatusRefused
		case models.AcceptationAccepted, models.AcceptationPartiallyRefused:
			return accepted
		}
		return models.StatusReceived
	}
}

// afterTempStorageReception is the BSDD variant landing on the temporary
// storage substates.
func afterTempStorageReception(d *models.Document) models.Status {
	switch d.DestinationReceptionAcceptationStatus {
	case models.AcceptationRefused:
		return models.StatusRefused
	case models.AcceptationAccepted, models.AcceptationPartiallyRefused:
		return models.StatusTempStorerAccepted
	}
	return models.StatusTempStored
}

// afterOperation branches on refusal, traceability break and non-final
// treatment codes.
func afterOperation(d *models.Document) models.Status {
	if d.DestinationReceptionAcceptationStatus == models.AcceptationRefused {
		return models.StatusRefused
	}
	if d.Type == models.BSDD && d.DestinationOperationNoTraceability {
		return models.StatusNoTraceability
	}
	if !IsFinalOperationCode(d.DestinationOperationCode) {
		return models.StatusAwaitingChild
	}
	return models.StatusProcessed
}

// guardWorkAfterEmission enforces the BSDA rule that the worker signs after
// the emitter, unless a paper signature was already collected on site.
func guardWorkAfterEmission(d *models.Document) error {
	if d.HasSignature(models.SignatureEmission) {
		return nil
	}
	if d.WorkerWorkHasEmitterPaperSignature || emitterSkipsEmission(d) {
		return nil
	}
	return dErrors.New(dErrors.CodeNotTransitionable,
		"L'entreprise de travaux ne peut pas signer avant l'émetteur")
}

// guardFirstTransport is the edge from a pre-transport status: only the
// chain's first slot flips the document to SENT.
func guardFirstTransport(d *models.Document) error {
	cur := d.CurrentTransporter()
	if cur != nil && cur.Number > 1 {
		return dErrors.New(dErrors.CodeNotTransitionable,
			"Seul le premier transporteur peut faire passer le bordereau au statut envoyé")
	}
	return nil
}

// guardEmitterSkip allows skipping straight past the emission signature.
func guardEmitterSkip(d *models.Document) error {
	if emitterSkipsEmission(d) {
		return nil
	}
	return dErrors.New(dErrors.CodeNotTransitionable,
		"Le transporteur ne peut pas signer avant l'émetteur")
}

// guardWorkerDone requires the BSDA work step to be finished or absent
// before transport.
func guardWorkerDone(d *models.Document) error {
	if d.WorkerIsDisabled || d.HasSignature(models.SignatureWork) {
		return nil
	}
	return dErrors.New(dErrors.CodeNotTransitionable,
		"Le transporteur ne peut pas signer avant l'entreprise de travaux")
}

// guardCollection2710 restricts the direct-operation edge to déchetterie
// collection, where neither emission nor transport applies.
func guardCollection2710(d *models.Document) error {
	if d.BsdaWorkflow == models.BsdaCollection2710 {
		return nil
	}
	return dErrors.New(dErrors.CodeNotTransitionable,
		"Seule une collecte en déchetterie (2710) peut être traitée sans enlèvement")
}

var transitions = map[models.DocumentType][]transition{
	models.BSDD: {
		{sig: models.SignatureEmission, from: []models.Status{models.StatusInitial}, resolve: toSignedByProducer},
		{sig: models.SignatureEmission, from: []models.Status{models.StatusTempStorerAccepted}, resolve: toResealed},
		{sig: models.SignatureTransport, from: []models.Status{models.StatusSignedByProducer}, guard: guardFirstTransport, resolve: toSent},
		{sig: models.SignatureTransport, from: []models.Status{models.StatusInitial}, guard: guardEmitterSkip, resolve: toSent},
		{sig: models.SignatureTransport, from: []models.Status{models.StatusResealed}, resolve: toResent},
		{sig: models.SignatureTransport, from: []models.Status{models.StatusSent, models.StatusResent}, resolve: func(d *models.Document) models.Status { return d.Status }},
		{sig: models.SignatureReception, from: []models.Status{models.StatusSent, models.StatusResent}, resolve: func(d *models.Document) models.Status {
			if d.IsTempStorage && d.Status == models.StatusSent {
				return afterTempStorageReception(d)
			}
			return afterReception(models.StatusAccepted)(d)
		}},
		{sig: models.SignatureOperation, from: []models.Status{models.StatusReceived, models.StatusAccepted}, resolve: afterOperation},
	},
	models.BSDA: {
		{sig: models.SignatureEmission, from: []models.Status{models.StatusInitial}, resolve: toSignedByProducer},
		{sig: models.SignatureWork, from: []models.Status{models.StatusSignedByProducer, models.StatusInitial}, guard: guardWorkAfterEmission, resolve: toSignedByWorker},
		{sig: models.SignatureTransport, from: []models.Status{models.StatusSignedByWorker}, guard: guardFirstTransport, resolve: toSent},
		{sig: models.SignatureTransport, from: []models.Status{models.StatusSignedByProducer}, guard: guardWorkerDone, resolve: toSent},
		{sig: models.SignatureTransport, from: []models.Status{models.StatusInitial}, guard: guardEmitterSkip, resolve: toSent},
		{sig: models.SignatureTransport, from: []models.Status{models.StatusSent}, resolve: toSent},
		{sig: models.SignatureReception, from: []models.Status{models.StatusSent}, resolve: afterReception(models.StatusReceived)},
		{sig: models.SignatureOperation, from: []models.Status{models.StatusSent, models.StatusReceived}, resolve: afterOperation},
		{sig: models.SignatureOperation, from: []models.Status{models.StatusInitial}, guard: guardCollection2710, resolve: afterOperation},
	},
	models.BSDASRI: {
		{sig: models.SignatureEmission, from: []models.Status{models.StatusInitial}, resolve: toSignedByProducer},
		{sig: models.SignatureTransport, from: []models.Status{models.StatusSignedByProducer}, guard: guardFirstTransport, resolve: toSent},
		{sig: models.SignatureTransport, from: []models.Status{models.StatusInitial}, guard: guardEmitterSkip, resolve: toSent},
		{sig: models.SignatureTransport, from: []models.Status{models.StatusSent}, resolve: toSent},
		{sig: models.SignatureReception, from: []models.Status{models.StatusSent}, resolve: afterReception(models.StatusReceived)},
		{sig: models.SignatureOperation, from: []models.Status{models.StatusReceived}, resolve: afterOperation},
	},
	models.BSFF: {
		{sig: models.SignatureEmission, from: []models.Status{models.StatusInitial}, resolve: toSignedByProducer},
		{sig: models.SignatureTransport, from: []models.Status{models.StatusSignedByProducer}, guard: guardFirstTransport, resolve: toSent},
		{sig: models.SignatureTransport, from: []models.Status{models.StatusInitial}, guard: guardEmitterSkip, resolve: toSent},
		{sig: models.SignatureTransport, from: []models.Status{models.StatusSent}, resolve: toSent},
		{sig: models.SignatureReception, from: []models.Status{models.StatusSent}, resolve: afterReception(models.StatusReceived)},
		{sig: models.SignatureOperation, from: []models.Status{models.StatusSent, models.StatusReceived}, resolve: afterOperation},
	},
	models.BSVHU: {
		{sig: models.SignatureEmission, from: []models.Status{models.StatusInitial}, resolve: toSignedByProducer},
		{sig: models.SignatureTransport, from: []models.Status{models.StatusSignedByProducer}, guard: guardFirstTransport, resolve: toSent},
		{sig: models.SignatureTransport, from: []models.Status{models.StatusInitial}, guard: guardEmitterSkip, resolve: toSent},
		{sig: models.SignatureTransport, from: []models.Status{models.StatusSent}, resolve: toSent},
		{sig: models.SignatureOperation, from: []models.Status{models.StatusSent}, resolve: afterOperation},
	},
}

// ReceptionIsOptional reports whether the type allows signing OPERATION
// straight from SENT, auto-validating reception fields in the same call.
func ReceptionIsOptional(t models.DocumentType) bool {
	switch t {
	case models.BSDA, models.BSFF, models.BSVHU:
		return true
	}
	return false
}

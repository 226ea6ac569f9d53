// Package machine is the status transition engine. It is the only code that
// writes signature records and document status; everything upstream only
// decides whether it may run.
package machine

import (
	"time"

	"bordereau/internal/bsd/models"
	"bordereau/internal/bsd/rules"
	dErrors "bordereau/pkg/domain-errors"
)

// Result describes an applied transition.
type Result struct {
	Previous models.Status
	Next     models.Status
	// TransporterNumber is set for TRANSPORT signatures.
	TransporterNumber int
	// ReceptionAutoValidated is set when an OPERATION signature validated the
	// skipped reception step in the same call.
	ReceptionAutoValidated bool
}

// Sign applies a signature of the given type to the document, mutating its
// status and signature records. The caller has already authorized the actor
// and validated field completeness.
func Sign(d *models.Document, sig models.SignatureType, author string, now time.Time) (*Result, error) {
	// Idempotency wins over finality: re-signing a type that is already
	// recorded reports AlreadySigned even on a closed document.
	if err := checkAlreadySigned(d, sig); err != nil {
		return nil, err
	}
	if d.Status.IsTerminal() {
		return nil, dErrors.Newf(dErrors.CodeNotTransitionable,
			"Ce bordereau a atteint le statut %s et ne peut plus être signé", d.Status)
	}

	next, err := rules.Next(d, sig)
	if err != nil {
		return nil, err
	}

	res := &Result{Previous: d.Status, Next: next}
	record := models.Signature{Author: author, Date: now}

	switch sig {
	case models.SignatureTransport:
		cur := d.CurrentTransporter()
		if cur == nil {
			return nil, dErrors.New(dErrors.CodeAlreadySigned,
				"Tous les transporteurs ont déjà signé l'enlèvement")
		}
		cur.Signature = &record
		if cur.TakenOverAt == nil {
			at := now
			cur.TakenOverAt = &at
		}
		res.TransporterNumber = cur.Number
	case models.SignatureOperation:
		if rules.ReceptionIsOptional(d.Type) && !d.HasSignature(models.SignatureReception) {
			// One call validates both steps: the reception record carries the
			// same author and timestamp as the operation record.
			d.SetSignature(models.SignatureReception, record)
			res.ReceptionAutoValidated = true
		}
		d.SetSignature(sig, record)
	case models.SignatureEmission:
		if res.Previous == models.StatusTempStorerAccepted {
			d.SetSignature(models.SignatureReseal, record)
		} else {
			d.SetSignature(sig, record)
		}
	case models.SignatureReception:
		if next == models.StatusTempStored || next == models.StatusTempStorerAccepted {
			d.SetSignature(models.SignatureTempStorage, record)
		} else {
			d.SetSignature(sig, record)
		}
	default:
		d.SetSignature(sig, record)
	}

	d.Status = next
	d.UpdatedAt = now
	return res, nil
}

// checkAlreadySigned is the idempotency guard: re-signing a signature type
// always fails and never changes the document.
func checkAlreadySigned(d *models.Document, sig models.SignatureType) error {
	switch sig {
	case models.SignatureTransport:
		// Per-slot records: the chain is exhausted only when every slot has
		// signed. Sign resolves the current slot itself.
		if len(d.Transporters) > 0 && d.CurrentTransporter() == nil {
			return dErrors.New(dErrors.CodeAlreadySigned,
				"Tous les transporteurs ont déjà signé l'enlèvement")
		}
		return nil
	case models.SignatureEmission:
		// Resealing temp-stored waste is a second emission-type signature by
		// the storage site, recorded separately from the original.
		if d.Status == models.StatusTempStorerAccepted {
			return nil
		}
	}
	if d.HasSignature(sig) {
		return dErrors.Newf(dErrors.CodeAlreadySigned,
			"Une signature de type %s a déjà été apposée sur ce bordereau", sig)
	}
	return nil
}

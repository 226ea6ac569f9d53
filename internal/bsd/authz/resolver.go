// Package authz decides which actor may apply which signature. Entitlement
// is by company: the actor must control the slot that naturally signs the
// step, or hold that company's security code for the delegable steps.
package authz

import (
	"context"

	"bordereau/internal/bsd/models"
	id "bordereau/pkg/domain"
	dErrors "bordereau/pkg/domain-errors"
)

// Actor is the authenticated requester: a person plus the set of companies
// they belong to.
type Actor struct {
	Name          string
	CompanySirets []id.Siret
	// SecurityCode, when supplied, requests a proxy signature on behalf of
	// the natural signer.
	SecurityCode string
}

// Controls reports whether the actor belongs to the establishment.
func (a Actor) Controls(siret id.Siret) bool {
	if siret.IsZero() {
		return false
	}
	for _, s := range a.CompanySirets {
		if s == siret {
			return true
		}
	}
	return false
}

// SecurityCodeVerifier checks a security code against an establishment's
// stored code. Implementations return INVALID_SECURITY_CODE on mismatch.
type SecurityCodeVerifier interface {
	Verify(ctx context.Context, siret id.Siret, code string) error
}

// Resolver applies the entitlement rules.
type Resolver struct {
	codes SecurityCodeVerifier
}

func NewResolver(codes SecurityCodeVerifier) *Resolver {
	return &Resolver{codes: codes}
}

// Authorize decides whether the actor may apply the signature type to the
// document in its current state.
func (r *Resolver) Authorize(ctx context.Context, d *models.Document, actor Actor, sig models.SignatureType) error {
	if actor.Name == "" && len(actor.CompanySirets) == 0 {
		return dErrors.New(dErrors.CodeUnauthenticated, "Vous n'êtes pas connecté")
	}

	signer, err := naturalSigner(d, sig)
	if err != nil {
		return err
	}
	if actor.Controls(signer.Siret) {
		return nil
	}
	if sig == models.SignatureEmission && actor.Controls(d.EcoOrganisme.Siret) {
		// An eco-organisme managing the waste stream signs emission in the
		// producer's stead.
		return nil
	}

	if sig != models.SignatureEmission && sig != models.SignatureTransport {
		return dErrors.Newf(dErrors.CodeForbidden,
			"Vous ne pouvez pas signer ce bordereau pour le compte de l'établissement %s", signer.Siret)
	}

	// Delegation path: any authenticated actor may sign EMISSION or
	// TRANSPORT with the natural signer's security code.
	if actor.SecurityCode == "" {
		return dErrors.Newf(dErrors.CodeMissingSecurityCode,
			"Le code de signature de l'établissement %s est requis pour signer pour son compte", signer.Siret)
	}
	if err := r.codes.Verify(ctx, signer.Siret, actor.SecurityCode); err != nil {
		if dErrors.HasCode(err, dErrors.CodeInvalidSecurityCode) {
			return err
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "La vérification du code de signature a échoué")
	}
	return nil
}

// naturalSigner resolves the company slot expected to apply the signature.
func naturalSigner(d *models.Document, sig models.SignatureType) (models.CompanyRef, error) {
	switch sig {
	case models.SignatureEmission:
		if d.Status == models.StatusTempStorerAccepted {
			// Resealing is signed by the temporary storage site, which is
			// the destination of the first leg.
			return d.DestinationCompany, nil
		}
		return d.EmitterCompany, nil
	case models.SignatureWork:
		return d.WorkerCompany, nil
	case models.SignatureTransport:
		cur := d.CurrentTransporter()
		if cur == nil {
			return models.CompanyRef{}, dErrors.New(dErrors.CodeAlreadySigned,
				"Tous les transporteurs ont déjà signé l'enlèvement")
		}
		return cur.Company, nil
	case models.SignatureReception, models.SignatureOperation:
		return d.DestinationCompany, nil
	}
	return models.CompanyRef{}, dErrors.Newf(dErrors.CodeBadRequest, "Type de signature inconnu : %s", sig)
}

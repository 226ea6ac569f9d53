package service

import (
	"context"
	"errors"

	"bordereau/internal/bsd/authz"
	"bordereau/internal/bsd/models"
	"bordereau/internal/bsd/validation"
	id "bordereau/pkg/domain"
	dErrors "bordereau/pkg/domain-errors"
	"bordereau/pkg/platform/sentinel"
)

// Create registers a new bordereau. Drafts skip field validation entirely;
// sealed documents must already satisfy the EMISSION field rules.
func (s *Service) Create(ctx context.Context, actor authz.Actor, doc *models.Document, asDraft bool) (*models.Document, error) {
	if len(actor.CompanySirets) == 0 {
		return nil, dErrors.New(dErrors.CodeUnauthenticated, "Vous n'êtes pas connecté")
	}
	if !doc.Type.IsValid() {
		return nil, dErrors.Newf(dErrors.CodeBadRequest, "Type de bordereau inconnu : %s", doc.Type)
	}
	if !s.actorParticipates(doc, actor) {
		return nil, dErrors.New(dErrors.CodeForbidden,
			"Vous ne pouvez pas créer un bordereau sur lequel votre entreprise n'apparaît pas")
	}
	if err := doc.ValidateTransporters(); err != nil {
		return nil, err
	}

	now := s.now()
	doc.ID = id.NewDocumentID()
	doc.ReadableID = models.NewReadableID(doc.Type, now)
	doc.Status = models.StatusDraft
	doc.CreatedAt = now
	doc.UpdatedAt = now
	if !asDraft {
		if err := validation.Check(doc, models.SignatureEmission); err != nil {
			return nil, err
		}
		doc.Status = models.StatusInitial
	}

	if err := s.docs.Create(ctx, doc); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "impossible de créer le bordereau")
	}
	s.logger.InfoContext(ctx, "document created",
		"document", doc.ReadableID, "type", doc.Type, "status", doc.Status)
	return doc, nil
}

// Publish seals a draft: the EMISSION field rules must pass before the
// document becomes signable.
func (s *Service) Publish(ctx context.Context, actor authz.Actor, docID id.DocumentID) (*models.Document, error) {
	return s.mutate(ctx, actor, docID, func(doc *models.Document) error {
		if doc.Status != models.StatusDraft {
			return dErrors.Newf(dErrors.CodeNotTransitionable,
				"Le bordereau %s n'est pas un brouillon", doc.ReadableID)
		}
		if err := validation.Check(doc, models.SignatureEmission); err != nil {
			return err
		}
		doc.Status = models.StatusInitial
		return nil
	})
}

// AddTransporter appends a slot to the transporter chain. Signed slots are
// never displaced: the new slot always takes the next ordinal.
func (s *Service) AddTransporter(ctx context.Context, actor authz.Actor, docID id.DocumentID, slot models.TransporterSlot) (*models.Document, error) {
	return s.mutate(ctx, actor, docID, func(doc *models.Document) error {
		if doc.Status.IsTerminal() {
			return dErrors.Newf(dErrors.CodeNotTransitionable,
				"Le bordereau %s est clôturé", doc.ReadableID)
		}
		return doc.AppendTransporter(slot)
	})
}

// DeleteTransporter removes an unsigned slot and renumbers the remainder.
func (s *Service) DeleteTransporter(ctx context.Context, actor authz.Actor, docID id.DocumentID, number int) (*models.Document, error) {
	return s.mutate(ctx, actor, docID, func(doc *models.Document) error {
		return doc.RemoveTransporter(number)
	})
}

// mutate loads a document under its lock, applies the edit if the actor
// appears on it, and saves with the optimistic version check.
func (s *Service) mutate(ctx context.Context, actor authz.Actor, docID id.DocumentID, edit func(doc *models.Document) error) (*models.Document, error) {
	if len(actor.CompanySirets) == 0 {
		return nil, dErrors.New(dErrors.CodeUnauthenticated, "Vous n'êtes pas connecté")
	}
	var out *models.Document
	err := s.locker.WithLock(ctx, docID, func(ctx context.Context) error {
		return s.tx.RunInTx(ctx, func(ctx context.Context) error {
			doc, err := s.getDocument(ctx, docID)
			if err != nil {
				return err
			}
			if !s.actorParticipates(doc, actor) {
				return dErrors.Newf(dErrors.CodeForbidden,
					"Vous n'êtes pas autorisé à modifier le bordereau %s", doc.ReadableID)
			}
			if err := edit(doc); err != nil {
				return err
			}
			doc.UpdatedAt = s.now()
			if err := s.docs.Save(ctx, doc); err != nil {
				if errors.Is(err, sentinel.ErrVersionConflict) {
					return dErrors.New(dErrors.CodeConflict,
						"Ce bordereau a été modifié par une autre opération, veuillez réessayer")
				}
				return dErrors.Wrap(err, dErrors.CodeInternal, "impossible d'enregistrer le bordereau")
			}
			out = doc
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Service) actorParticipates(doc *models.Document, actor authz.Actor) bool {
	for _, siret := range doc.Participants() {
		if actor.Controls(siret) {
			return true
		}
	}
	return false
}

// Get returns a document the actor participates in.
func (s *Service) Get(ctx context.Context, actor authz.Actor, docID id.DocumentID) (*models.Document, error) {
	doc, err := s.docs.Get(ctx, docID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "Ce bordereau n'existe pas")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "impossible de charger le bordereau")
	}
	if !s.actorParticipates(doc, actor) {
		return nil, dErrors.Newf(dErrors.CodeForbidden,
			"Vous n'êtes pas autorisé à consulter le bordereau %s", doc.ReadableID)
	}
	return doc, nil
}

// GetByReadableID resolves the printed identifier, e.g. BSDA-20260901-4KJ7F2M9X.
func (s *Service) GetByReadableID(ctx context.Context, actor authz.Actor, readableID string) (*models.Document, error) {
	doc, err := s.docs.GetByReadableID(ctx, readableID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "Ce bordereau n'existe pas")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "impossible de charger le bordereau")
	}
	if !s.actorParticipates(doc, actor) {
		return nil, dErrors.Newf(dErrors.CodeForbidden,
			"Vous n'êtes pas autorisé à consulter le bordereau %s", doc.ReadableID)
	}
	return doc, nil
}

// ListForActor returns every document naming one of the actor's companies.
func (s *Service) ListForActor(ctx context.Context, actor authz.Actor) ([]*models.Document, error) {
	if len(actor.CompanySirets) == 0 {
		return nil, dErrors.New(dErrors.CodeUnauthenticated, "Vous n'êtes pas connecté")
	}
	seen := make(map[id.DocumentID]bool)
	var out []*models.Document
	for _, siret := range actor.CompanySirets {
		docs, err := s.docs.ListBySiret(ctx, siret)
		if err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "impossible de lister les bordereaux")
		}
		for _, doc := range docs {
			if seen[doc.ID] {
				continue
			}
			seen[doc.ID] = true
			out = append(out, doc)
		}
	}
	return out, nil
}

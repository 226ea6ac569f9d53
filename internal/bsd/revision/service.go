// Package revision governs post-signature corrections: a small state
// machine (PENDING then ACCEPTED, REFUSED or CANCELLED) with one approval
// per counter-party, applying diffs only to fields no signature has locked.
package revision

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"bordereau/internal/bsd/authz"
	"bordereau/internal/bsd/events"
	"bordereau/internal/bsd/models"
	"bordereau/internal/bsd/ports"
	"bordereau/internal/bsd/validation"
	id "bordereau/pkg/domain"
	dErrors "bordereau/pkg/domain-errors"
	"bordereau/pkg/platform/sentinel"
)

type Service struct {
	docs      ports.DocumentStore
	revisions ports.RevisionStore
	locker    ports.Locker
	tx        ports.TxRunner
	events    ports.EventPublisher
	logger    *slog.Logger
	now       func() time.Time
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func WithEventPublisher(pub ports.EventPublisher) Option {
	return func(s *Service) { s.events = pub }
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func New(docs ports.DocumentStore, revisions ports.RevisionStore, locker ports.Locker, tx ports.TxRunner, opts ...Option) (*Service, error) {
	if docs == nil {
		return nil, fmt.Errorf("document store is required")
	}
	if revisions == nil {
		return nil, fmt.Errorf("revision store is required")
	}
	if locker == nil {
		return nil, fmt.Errorf("locker is required")
	}
	if tx == nil {
		return nil, fmt.Errorf("tx runner is required")
	}
	svc := &Service{docs: docs, revisions: revisions, locker: locker, tx: tx, logger: slog.Default(), now: time.Now}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// Create opens a revision request on a document. Only the emitter or the
// destination may author one, and only while the document's status allows
// revision at all.
func (s *Service) Create(ctx context.Context, actor authz.Actor, docID id.DocumentID, content models.RevisionContent, comment string) (*models.RevisionRequest, error) {
	if actor.Name == "" && len(actor.CompanySirets) == 0 {
		return nil, dErrors.New(dErrors.CodeUnauthenticated, "Vous n'êtes pas connecté")
	}
	if content.IsEmpty() {
		return nil, dErrors.New(dErrors.CodeBadRequest, "La révision ne modifie aucun champ")
	}

	doc, err := s.getDocument(ctx, docID)
	if err != nil {
		return nil, err
	}
	if err := revisableStatus(doc.Status); err != nil {
		return nil, err
	}

	authoring, err := authoringSiret(doc, actor)
	if err != nil {
		return nil, err
	}

	// Early feedback; the binding check re-runs at application time.
	if err := validation.CheckLocked(doc, content.Fields()); err != nil {
		return nil, err
	}

	now := s.now()
	req := &models.RevisionRequest{
		ID:             id.NewRevisionID(),
		DocumentID:     doc.ID,
		AuthoringSiret: authoring,
		Content:        content,
		Comment:        comment,
		Status:         models.RevisionPending,
		Approvals:      buildApprovals(doc, authoring),
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if len(req.Approvals) == 0 {
		return nil, dErrors.New(dErrors.CodeBadRequest,
			"Aucun autre établissement n'est concerné par cette révision")
	}
	if err := s.revisions.Create(ctx, req); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "impossible de créer la demande de révision")
	}

	s.publish(ctx, events.Event{
		Kind:       events.KindRevisionRequestCreated,
		DocumentID: doc.ID,
		ReadableID: doc.ReadableID,
		DocType:    doc.Type,
		RevisionID: req.ID,
		Actor:      actor.Name,
		Timestamp:  now,
	})
	return req, nil
}

// Approve records one counter-party's verdict. A single refusal settles the
// request; unanimous acceptance applies the diff to the document.
func (s *Service) Approve(ctx context.Context, actor authz.Actor, revID id.RevisionID, accept bool, comment string) (*models.RevisionRequest, error) {
	req, err := s.getRevision(ctx, revID)
	if err != nil {
		return nil, err
	}
	if req.Status != models.RevisionPending {
		return nil, dErrors.New(dErrors.CodeRevisionNotPending,
			"Cette demande de révision a déjà été traitée")
	}

	var approval *models.RevisionApproval
	for _, siret := range actor.CompanySirets {
		if a := req.ApprovalFor(siret); a != nil {
			approval = a
			break
		}
	}
	if approval == nil {
		return nil, dErrors.New(dErrors.CodeForbidden,
			"Vous n'êtes pas destinataire de cette demande de révision")
	}
	if approval.Status != models.ApprovalPending {
		return nil, dErrors.New(dErrors.CodeRevisionNotPending,
			"Vous avez déjà répondu à cette demande de révision")
	}

	now := s.now()
	approval.Comment = comment
	if !accept {
		approval.Status = models.ApprovalRefused
		req.Status = models.RevisionRefused
		req.UpdatedAt = now
		if err := s.revisions.Save(ctx, req); err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "impossible d'enregistrer la réponse")
		}
		s.publishResolved(ctx, req, actor, string(models.RevisionRefused), now)
		return req, nil
	}

	approval.Status = models.ApprovalAccepted
	req.UpdatedAt = now
	if !req.AllApprovalsAccepted() {
		if err := s.revisions.Save(ctx, req); err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "impossible d'enregistrer la réponse")
		}
		return req, nil
	}

	// Unanimous: apply the diff under the document lock. One locked field
	// rejects the whole revision; the refusal is recorded outside the
	// transaction so it survives the abort. The document write and the
	// request resolution commit together or not at all.
	err = s.locker.WithLock(ctx, req.DocumentID, func(ctx context.Context) error {
		doc, err := s.getDocument(ctx, req.DocumentID)
		if err != nil {
			return err
		}
		if lockErr := validation.CheckLocked(doc, req.Content.Fields()); lockErr != nil {
			req.Status = models.RevisionRefused
			if saveErr := s.revisions.Save(ctx, req); saveErr != nil {
				return dErrors.Wrap(saveErr, dErrors.CodeInternal, "impossible d'enregistrer la révision")
			}
			return lockErr
		}
		return s.tx.RunInTx(ctx, func(ctx context.Context) error {
			req.Content.ApplyTo(doc)
			doc.UpdatedAt = s.now()
			if err := s.docs.Save(ctx, doc); err != nil {
				return dErrors.Wrap(err, dErrors.CodeInternal, "impossible d'appliquer la révision")
			}
			req.Status = models.RevisionAccepted
			return s.revisions.Save(ctx, req)
		})
	})
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeFieldLocked) {
			s.publishResolved(ctx, req, actor, string(models.RevisionRefused), now)
		}
		return nil, err
	}

	s.publishResolved(ctx, req, actor, string(models.RevisionAccepted), now)
	return req, nil
}

// Cancel withdraws a pending request. Only the authoring company may cancel.
func (s *Service) Cancel(ctx context.Context, actor authz.Actor, revID id.RevisionID) (*models.RevisionRequest, error) {
	req, err := s.getRevision(ctx, revID)
	if err != nil {
		return nil, err
	}
	if !actor.Controls(req.AuthoringSiret) {
		return nil, dErrors.New(dErrors.CodeNotRevisionAuthor,
			"Seul l'établissement auteur de la demande peut l'annuler")
	}
	if req.Status != models.RevisionPending {
		return nil, dErrors.New(dErrors.CodeRevisionNotPending,
			"Cette demande de révision a déjà été traitée")
	}
	now := s.now()
	req.Status = models.RevisionCancelled
	req.UpdatedAt = now
	if err := s.revisions.Save(ctx, req); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "impossible d'annuler la demande de révision")
	}
	s.publishResolved(ctx, req, actor, string(models.RevisionCancelled), now)
	return req, nil
}

// ListByDocument returns every revision request opened on a document.
func (s *Service) ListByDocument(ctx context.Context, docID id.DocumentID) ([]*models.RevisionRequest, error) {
	return s.revisions.ListByDocument(ctx, docID)
}

func (s *Service) getDocument(ctx context.Context, docID id.DocumentID) (*models.Document, error) {
	doc, err := s.docs.Get(ctx, docID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotTransitionable, "Ce bordereau n'existe pas")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "impossible de charger le bordereau")
	}
	return doc, nil
}

func (s *Service) getRevision(ctx context.Context, revID id.RevisionID) (*models.RevisionRequest, error) {
	req, err := s.revisions.Get(ctx, revID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeRevisionNotFound, "Cette demande de révision n'existe pas")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "impossible de charger la demande de révision")
	}
	return req, nil
}

// revisableStatus rejects statuses where revision makes no sense: nothing is
// signed on a draft or sealed document, and a refused document is settled.
func revisableStatus(status models.Status) error {
	switch status {
	case models.StatusDraft, models.StatusInitial:
		return dErrors.New(dErrors.CodeForbidden,
			"Impossible de créer une révision sur un bordereau non signé, modifiez-le directement")
	case models.StatusRefused:
		return dErrors.New(dErrors.CodeForbidden,
			"Impossible de créer une révision sur un bordereau refusé")
	}
	return nil
}

// authoringSiret resolves which authorized requester company the actor acts
// for. Emitter and destination are the authorized requester set.
func authoringSiret(doc *models.Document, actor authz.Actor) (id.Siret, error) {
	if actor.Controls(doc.EmitterCompany.Siret) {
		return doc.EmitterCompany.Siret, nil
	}
	if actor.Controls(doc.DestinationCompany.Siret) {
		return doc.DestinationCompany.Siret, nil
	}
	if doc.Type == models.BSDA && actor.Controls(doc.WorkerCompany.Siret) {
		return doc.WorkerCompany.Siret, nil
	}
	return "", dErrors.New(dErrors.CodeForbidden,
		"Seuls l'émetteur et la destination peuvent demander une révision de ce bordereau")
}

// buildApprovals creates one pending approval per principal actor other than
// the authoring company.
func buildApprovals(doc *models.Document, authoring id.Siret) []models.RevisionApproval {
	principals := []id.Siret{doc.EmitterCompany.Siret, doc.DestinationCompany.Siret}
	if doc.Type == models.BSDA && !doc.WorkerCompany.Siret.IsZero() && !doc.WorkerIsDisabled {
		principals = append(principals, doc.WorkerCompany.Siret)
	}
	var approvals []models.RevisionApproval
	seen := map[id.Siret]bool{authoring: true}
	for _, siret := range principals {
		if siret.IsZero() || seen[siret] {
			continue
		}
		seen[siret] = true
		approvals = append(approvals, models.RevisionApproval{
			ApproverSiret: siret,
			Status:        models.ApprovalPending,
		})
	}
	return approvals
}

func (s *Service) publish(ctx context.Context, event events.Event) {
	if s.events == nil {
		return
	}
	if err := s.events.Publish(ctx, event); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish revision event", "kind", event.Kind, "error", err)
	}
}

func (s *Service) publishResolved(ctx context.Context, req *models.RevisionRequest, actor authz.Actor, outcome string, now time.Time) {
	s.publish(ctx, events.Event{
		Kind:       events.KindRevisionRequestResolved,
		DocumentID: req.DocumentID,
		RevisionID: req.ID,
		Actor:      actor.Name,
		Outcome:    outcome,
		Timestamp:  now,
	})
}

// Package service orchestrates the signature lifecycle: authorization,
// company status gate, field completeness, transition, chain propagation.
// Every operation runs under the per-document lock and one storage
// transaction; a failure at any step leaves the document untouched.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"bordereau/internal/bsd/authz"
	"bordereau/internal/bsd/chain"
	"bordereau/internal/bsd/company"
	"bordereau/internal/bsd/events"
	"bordereau/internal/bsd/machine"
	"bordereau/internal/bsd/models"
	"bordereau/internal/bsd/ports"
	"bordereau/internal/bsd/validation"
	"bordereau/internal/platform/metrics"
	id "bordereau/pkg/domain"
	dErrors "bordereau/pkg/domain-errors"
	"bordereau/pkg/platform/sentinel"
)

// SignatureRequest is one signature attempt on one document.
type SignatureRequest struct {
	DocumentID id.DocumentID
	Type       models.SignatureType
	// Author is the signatory name written on the bordereau.
	Author string
	// SecurityCode requests a proxy signature on behalf of the natural
	// signer (EMISSION and TRANSPORT only).
	SecurityCode string
}

type Service struct {
	docs       ports.DocumentStore
	locker     ports.Locker
	tx         ports.TxRunner
	resolver   *authz.Resolver
	gate       *company.Gate
	propagator *chain.Propagator
	events     ports.EventPublisher
	metrics    *metrics.Metrics
	tracer     trace.Tracer
	logger     *slog.Logger
	now        func() time.Time
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func WithEventPublisher(pub ports.EventPublisher) Option {
	return func(s *Service) { s.events = pub }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func WithCompanyGate(gate *company.Gate) Option {
	return func(s *Service) { s.gate = gate }
}

func New(docs ports.DocumentStore, locker ports.Locker, tx ports.TxRunner, resolver *authz.Resolver, propagator *chain.Propagator, opts ...Option) (*Service, error) {
	if docs == nil {
		return nil, fmt.Errorf("document store is required")
	}
	if locker == nil {
		return nil, fmt.Errorf("locker is required")
	}
	if tx == nil {
		return nil, fmt.Errorf("tx runner is required")
	}
	if resolver == nil {
		return nil, fmt.Errorf("authorization resolver is required")
	}
	if propagator == nil {
		return nil, fmt.Errorf("chain propagator is required")
	}
	svc := &Service{
		docs:       docs,
		locker:     locker,
		tx:         tx,
		resolver:   resolver,
		propagator: propagator,
		tracer:     otel.Tracer("bordereau/bsd"),
		logger:     slog.Default(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// Sign applies one signature. Control flow: authorization resolver, company
// status gate, field completeness validator, transition engine, chain
// propagator. Events are published only after the transaction commits.
func (s *Service) Sign(ctx context.Context, actor authz.Actor, req SignatureRequest) (*models.Document, error) {
	ctx, span := s.tracer.Start(ctx, "bsd.sign", trace.WithAttributes(
		attribute.String("document.id", req.DocumentID.String()),
		attribute.String("signature.type", string(req.Type)),
	))
	defer span.End()

	if !req.Type.IsValid() {
		return nil, dErrors.Newf(dErrors.CodeBadRequest, "Type de signature inconnu : %s", req.Type)
	}
	actor.SecurityCode = req.SecurityCode

	var signed *models.Document
	var pending []events.Event

	err := s.locker.WithLock(ctx, req.DocumentID, func(ctx context.Context) error {
		return s.tx.RunInTx(ctx, func(ctx context.Context) error {
			doc, err := s.getDocument(ctx, req.DocumentID)
			if err != nil {
				return err
			}

			if err := s.resolver.Authorize(ctx, doc, actor, req.Type); err != nil {
				return err
			}
			if err := s.checkCompanies(ctx, doc); err != nil {
				return err
			}
			if err := validation.Check(doc, req.Type); err != nil {
				return err
			}

			now := s.now()
			res, err := machine.Sign(doc, req.Type, req.Author, now)
			if err != nil {
				return err
			}

			affected, err := s.propagator.Apply(ctx, doc, res, now)
			if err != nil {
				return err
			}
			if err := s.docs.Save(ctx, doc); err != nil {
				if errors.Is(err, sentinel.ErrVersionConflict) {
					return dErrors.New(dErrors.CodeConflict,
						"Ce bordereau a été modifié par une autre opération, veuillez réessayer")
				}
				return dErrors.Wrap(err, dErrors.CodeInternal, "impossible d'enregistrer le bordereau")
			}

			signed = doc
			pending = signatureEvents(doc, res, req.Type, actor.Name, affected, now)
			return nil
		})
	})
	if err != nil {
		s.countSignature(req.Type, err)
		return nil, err
	}

	s.countSignature(req.Type, nil)
	s.publishAll(ctx, pending)
	s.logger.InfoContext(ctx, "signature applied",
		"document", signed.ReadableID, "type", req.Type, "status", signed.Status)
	return signed, nil
}

// signatureEvents builds the post-commit event batch for one signature.
func signatureEvents(doc *models.Document, res *machine.Result, sig models.SignatureType, actorName string, affected []*models.Document, now time.Time) []events.Event {
	batch := []events.Event{{
		Kind:       events.KindDocumentSigned,
		DocumentID: doc.ID,
		ReadableID: doc.ReadableID,
		DocType:    doc.Type,
		Signature:  sig,
		Actor:      actorName,
		Timestamp:  now,
	}}
	if res.Previous != doc.Status {
		batch = append(batch, events.Event{
			Kind:       events.KindDocumentStatusChanged,
			DocumentID: doc.ID,
			ReadableID: doc.ReadableID,
			DocType:    doc.Type,
			Previous:   res.Previous,
			Next:       doc.Status,
			Actor:      actorName,
			Timestamp:  now,
		})
	}
	for _, other := range affected {
		kind := events.KindDocumentStatusChanged
		if other.Status == models.StatusAwaitingChild {
			kind = events.KindChildrenReleased
		}
		batch = append(batch, events.Event{
			Kind:       kind,
			DocumentID: other.ID,
			ReadableID: other.ReadableID,
			DocType:    other.Type,
			Next:       other.Status,
			Timestamp:  now,
		})
	}
	return batch
}

func (s *Service) checkCompanies(ctx context.Context, doc *models.Document) error {
	if s.gate == nil {
		return nil
	}
	err := s.gate.CheckSignature(ctx, doc)
	if err != nil && s.metrics != nil {
		reason := "lookup_failed"
		switch {
		case dErrors.HasCode(err, dErrors.CodeCompanyClosed):
			reason = "closed"
		case dErrors.HasCode(err, dErrors.CodeCompanyDormant):
			reason = "dormant"
		}
		s.metrics.CompanyGateBlocked.WithLabelValues(reason).Inc()
	}
	return err
}

func (s *Service) countSignature(sig models.SignatureType, err error) {
	if s.metrics == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = string(dErrors.CodeOf(err))
	}
	s.metrics.SignaturesTotal.WithLabelValues(string(sig), outcome).Inc()
}

func (s *Service) publishAll(ctx context.Context, batch []events.Event) {
	if s.events == nil {
		return
	}
	for _, event := range batch {
		if err := s.events.Publish(ctx, event); err != nil {
			s.logger.ErrorContext(ctx, "failed to publish event", "kind", event.Kind, "error", err)
		}
	}
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

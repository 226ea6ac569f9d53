// Package ports defines shared interfaces for the bsd module. Interfaces are
// placed here when consumed by multiple services to avoid duplication.
package ports

import (
	"context"

	"bordereau/internal/bsd/events"
	"bordereau/internal/bsd/models"
	id "bordereau/pkg/domain"
)

// DocumentStore persists document aggregates with optimistic concurrency:
// Save fails with sentinel.ErrVersionConflict when the stored version moved.
type DocumentStore interface {
	Create(ctx context.Context, d *models.Document) error
	Get(ctx context.Context, docID id.DocumentID) (*models.Document, error)
	GetByReadableID(ctx context.Context, readableID string) (*models.Document, error)
	// Save writes the aggregate when d.Version matches the stored version,
	// then increments it.
	Save(ctx context.Context, d *models.Document) error
	// ListChildren returns documents grouped into the given parent.
	ListChildren(ctx context.Context, parentID id.DocumentID) ([]*models.Document, error)
	// ListBySiret returns documents naming the establishment on any slot.
	ListBySiret(ctx context.Context, siret id.Siret) ([]*models.Document, error)
}

// RevisionStore persists revision requests.
type RevisionStore interface {
	Create(ctx context.Context, r *models.RevisionRequest) error
	Get(ctx context.Context, revID id.RevisionID) (*models.RevisionRequest, error)
	Save(ctx context.Context, r *models.RevisionRequest) error
	ListByDocument(ctx context.Context, docID id.DocumentID) ([]*models.RevisionRequest, error)
}

// Locker serializes operations on one document. Two signatures on the same
// document must not interleave.
type Locker interface {
	WithLock(ctx context.Context, docID id.DocumentID, fn func(ctx context.Context) error) error
}

// EventPublisher hands events to the notification pipeline. Implementations
// must not block on downstream delivery.
type EventPublisher interface {
	Publish(ctx context.Context, event events.Event) error
}

// TxRunner brackets a function in one storage transaction so a signature's
// document write and its cascade writes commit or roll back together.
type TxRunner interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

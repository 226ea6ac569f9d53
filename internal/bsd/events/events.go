// Package events defines the domain events emitted after successful
// operations. The core never waits on delivery: publishers buffer or fan out
// to external consumers (mailer, PDF trigger, registries).
package events

import (
	"time"

	"bordereau/internal/bsd/models"
	id "bordereau/pkg/domain"
)

// Kind classifies an event for routing.
type Kind string

const (
	KindDocumentStatusChanged   Kind = "document_status_changed"
	KindDocumentSigned          Kind = "document_signed"
	KindChildrenReleased        Kind = "children_released"
	KindRevisionRequestCreated  Kind = "revision_request_created"
	KindRevisionRequestResolved Kind = "revision_request_resolved"
)

// Event is emitted from domain logic after a committed state change. Keep it
// transport-agnostic so channel, Kafka and test publishers can fan out.
type Event struct {
	Kind       Kind                 `json:"kind"`
	DocumentID id.DocumentID        `json:"documentId"`
	ReadableID string               `json:"readableId,omitempty"`
	DocType    models.DocumentType  `json:"docType,omitempty"`
	Previous   models.Status        `json:"previous,omitempty"`
	Next       models.Status        `json:"next,omitempty"`
	Signature  models.SignatureType `json:"signature,omitempty"`
	Actor      string               `json:"actor,omitempty"`
	RevisionID id.RevisionID        `json:"revisionId,omitempty"`
	Outcome    string               `json:"outcome,omitempty"`
	Timestamp  time.Time            `json:"timestamp"`
}

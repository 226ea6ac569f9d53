// Package domain holds shared value types used across bordereau modules.
// Typed identifiers prevent cross-assignment mistakes at compile time.
package domain

import (
	"github.com/google/uuid"

	dErrors "bordereau/pkg/domain-errors"
)

// DocumentID identifies one bordereau across all document types.
type DocumentID uuid.UUID

// RevisionID identifies one revision request.
type RevisionID uuid.UUID

func (id DocumentID) String() string { return uuid.UUID(id).String() }
func (id DocumentID) IsNil() bool    { return uuid.UUID(id) == uuid.Nil }

func (id RevisionID) String() string { return uuid.UUID(id).String() }
func (id RevisionID) IsNil() bool    { return uuid.UUID(id) == uuid.Nil }

// The identifiers serialize as canonical UUID strings.
func (id DocumentID) MarshalText() ([]byte, error) { return []byte(id.String()), nil }
func (id RevisionID) MarshalText() ([]byte, error) { return []byte(id.String()), nil }

func (id *DocumentID) UnmarshalText(b []byte) error {
	parsed, err := ParseDocumentID(string(b))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

func (id *RevisionID) UnmarshalText(b []byte) error {
	parsed, err := ParseRevisionID(string(b))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

// NewDocumentID returns a fresh random document identifier.
func NewDocumentID() DocumentID { return DocumentID(uuid.New()) }

// NewRevisionID returns a fresh random revision identifier.
func NewRevisionID() RevisionID { return RevisionID(uuid.New()) }

// ParseDocumentID validates and converts a string into a DocumentID.
// IDs must be valid, non-nil UUIDs.
func ParseDocumentID(s string) (DocumentID, error) {
	u, err := parseUUID(s)
	if err != nil {
		return DocumentID{}, err
	}
	return DocumentID(u), nil
}

// ParseRevisionID validates and converts a string into a RevisionID.
func ParseRevisionID(s string) (RevisionID, error) {
	u, err := parseUUID(s)
	if err != nil {
		return RevisionID{}, err
	}
	return RevisionID(u), nil
}

func parseUUID(s string) (uuid.UUID, error) {
	if s == "" {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "id cannot be empty")
	}
	u, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, dErrors.Wrap(err, dErrors.CodeInvalidInput, "id is not a valid UUID")
	}
	if u == uuid.Nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "id cannot be the nil UUID")
	}
	return u, nil
}

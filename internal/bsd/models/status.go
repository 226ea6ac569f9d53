package models

// DocumentType tags the bordereau variant. All variants share one engine,
// parameterized by per-type rule tables in internal/bsd/rules.
type DocumentType string

const (
	BSDD    DocumentType = "BSDD"
	BSDA    DocumentType = "BSDA"
	BSDASRI DocumentType = "BSDASRI"
	BSFF    DocumentType = "BSFF"
	BSVHU   DocumentType = "BSVHU"
)

// IsValid checks if the document type is one of the supported variants.
func (t DocumentType) IsValid() bool {
	switch t {
	case BSDD, BSDA, BSDASRI, BSFF, BSVHU:
		return true
	}
	return false
}

// ReadableIDPrefix returns the human-facing identifier prefix for the type.
func (t DocumentType) ReadableIDPrefix() string {
	switch t {
	case BSDD:
		return "BSD"
	case BSDA:
		return "BSDA"
	case BSDASRI:
		return "DASRI"
	case BSFF:
		return "FF"
	case BSVHU:
		return "VHU"
	}
	return "BSD"
}

// Status is the document lifecycle state. Not every type reaches every
// status; the per-type transition tables define which are reachable.
type Status string

const (
	StatusDraft              Status = "DRAFT"
	StatusInitial            Status = "INITIAL"
	StatusSignedByProducer   Status = "SIGNED_BY_PRODUCER"
	StatusSignedByWorker     Status = "SIGNED_BY_WORKER"
	StatusSent               Status = "SENT"
	StatusReceived           Status = "RECEIVED"
	StatusAccepted           Status = "ACCEPTED"
	StatusProcessed          Status = "PROCESSED"
	StatusAwaitingChild      Status = "AWAITING_CHILD"
	StatusRefused            Status = "REFUSED"
	StatusNoTraceability     Status = "NO_TRACEABILITY"
	StatusTempStored         Status = "TEMP_STORED"
	StatusTempStorerAccepted Status = "TEMP_STORER_ACCEPTED"
	StatusResealed           Status = "RESEALED"
	StatusResent             Status = "RESENT"
)

// IsTerminal reports whether no further signature can apply.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusProcessed, StatusRefused, StatusNoTraceability:
		return true
	}
	return false
}

// SignatureType identifies a step of the legal signature lifecycle.
type SignatureType string

const (
	SignatureEmission  SignatureType = "EMISSION"
	SignatureWork      SignatureType = "WORK"
	SignatureTransport SignatureType = "TRANSPORT"
	SignatureReception SignatureType = "RECEPTION"
	SignatureOperation SignatureType = "OPERATION"

	// SignatureReseal is a record key only, never requested directly: the
	// temporary storage site's re-seal is an EMISSION request recorded apart
	// from the original emitter's signature so neither overwrites the other.
	SignatureReseal SignatureType = "RESEAL"

	// SignatureTempStorage records the temporary storage site's reception so
	// the final destination's RECEPTION signature stays distinct.
	SignatureTempStorage SignatureType = "TEMP_STORAGE_RECEPTION"
)

// IsValid checks if the signature type is one of the supported steps.
func (t SignatureType) IsValid() bool {
	switch t {
	case SignatureEmission, SignatureWork, SignatureTransport, SignatureReception, SignatureOperation:
		return true
	}
	return false
}

// AcceptationStatus is the destination's verdict on the received waste.
type AcceptationStatus string

const (
	AcceptationNotSet           AcceptationStatus = ""
	AcceptationAccepted         AcceptationStatus = "ACCEPTED"
	AcceptationRefused          AcceptationStatus = "REFUSED"
	AcceptationPartiallyRefused AcceptationStatus = "PARTIALLY_REFUSED"
)

package models

// Field names a mutable document field for locking and revision purposes.
// Lock state is derived from the signatures present on the document; there is
// no separate flag to drift out of sync.
type Field string

const (
	FieldEmitterCompany   Field = "emitterCompany"
	FieldWorkerCompany    Field = "workerCompany"
	FieldWasteCode        Field = "wasteCode"
	FieldWasteAdrMention  Field = "wasteAdrMention"
	FieldWastePackagings  Field = "wastePackagings"
	FieldWasteSealNumbers Field = "wasteSealNumbers"
	FieldWeight           Field = "weightValue"

	FieldTransporterCompany   Field = "transporterCompany"
	FieldTransporterRecepisse Field = "transporterRecepisse"

	FieldDestinationCompany              Field = "destinationCompany"
	FieldDestinationCap                  Field = "destinationCap"
	FieldDestinationPlannedOperationCode Field = "destinationPlannedOperationCode"
	FieldDestinationReceptionWeight      Field = "destinationReceptionWeight"
	FieldDestinationReceptionAcceptation Field = "destinationReceptionAcceptationStatus"
	FieldDestinationOperationCode        Field = "destinationOperationCode"
	FieldDestinationOperationMode        Field = "destinationOperationMode"
	FieldDestinationOperationDate        Field = "destinationOperationDate"
	FieldBrokerCompany                   Field = "brokerCompany"
	FieldTraderCompany                   Field = "traderCompany"
)

// lockingSignature maps each field to the signature step that freezes it.
// A field is locked as soon as that signature record exists.
var lockingSignature = map[Field]SignatureType{
	FieldEmitterCompany:   SignatureEmission,
	FieldWasteCode:        SignatureEmission,
	FieldWasteAdrMention:  SignatureEmission,
	FieldWasteSealNumbers: SignatureEmission,
	FieldWeight:           SignatureEmission,

	FieldWorkerCompany:   SignatureWork,
	FieldWastePackagings: SignatureWork,

	FieldTransporterCompany:   SignatureTransport,
	FieldTransporterRecepisse: SignatureTransport,

	FieldDestinationCompany:              SignatureTransport,
	FieldDestinationCap:                  SignatureTransport,
	FieldDestinationPlannedOperationCode: SignatureTransport,
	FieldDestinationReceptionWeight:      SignatureOperation,
	FieldDestinationReceptionAcceptation: SignatureOperation,
	FieldDestinationOperationCode:        SignatureOperation,
	FieldDestinationOperationMode:        SignatureOperation,
	FieldDestinationOperationDate:        SignatureOperation,
	FieldBrokerCompany:                   SignatureEmission,
	FieldTraderCompany:                   SignatureEmission,
}

// FieldLockedBy returns the signature step that freezes the field. Fields
// without an entry never lock (free-text contact fields).
func FieldLockedBy(f Field) (SignatureType, bool) {
	t, ok := lockingSignature[f]
	return t, ok
}

// IsFieldLocked reports whether the field is frozen on this document. On
// BSDA documents without a worker, packagings lock at transport instead of
// the absent WORK step.
func (d *Document) IsFieldLocked(f Field) bool {
	sig, ok := lockingSignature[f]
	if !ok {
		return false
	}
	if sig == SignatureWork && (d.Type != BSDA || d.WorkerIsDisabled) {
		sig = SignatureTransport
	}
	return d.HasSignature(sig)
}

// IsSlotLocked reports whether the company slot naturally signing the given
// step is frozen. Used by the company status gate to skip establishments
// that closed after they validly signed.
func (d *Document) IsSlotLocked(t SignatureType) bool {
	return d.HasSignature(t)
}

package models

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"time"

	id "bordereau/pkg/domain"
)

// BsdaWorkflow distinguishes BSDA collection workflows. COLLECTION_2710
// (déchetterie drop-off) skips the emission and transport steps: the waste
// collection centre signs the operation directly.
type BsdaWorkflow string

const (
	BsdaOtherCollections BsdaWorkflow = "OTHER_COLLECTIONS"
	BsdaCollection2710   BsdaWorkflow = "COLLECTION_2710"
	BsdaGathering        BsdaWorkflow = "GATHERING"
	BsdaReshipment       BsdaWorkflow = "RESHIPMENT"
)

// Signature is immutable once set. The fields it locks become read-only
// except through the revision engine.
type Signature struct {
	Author string    `json:"author"`
	Date   time.Time `json:"date"`
}

// CompanyRef names an establishment on a role slot plus its contact fields.
type CompanyRef struct {
	Siret   id.Siret `json:"siret"`
	Name    string   `json:"name,omitempty"`
	Address string   `json:"address,omitempty"`
	Contact string   `json:"contact,omitempty"`
	Phone   string   `json:"phone,omitempty"`
	Mail    string   `json:"mail,omitempty"`
}

// Packaging describes one packaging line of the waste.
type Packaging struct {
	Type     string `json:"type"`
	Quantity int    `json:"quantity"`
}

// Document is the bordereau aggregate shared by the five BSD variants.
// Role slots not used by a variant stay zero-valued; the rule tables decide
// which ones matter.
type Document struct {
	ID         id.DocumentID `json:"id"`
	ReadableID string        `json:"readableId"`
	Type       DocumentType  `json:"type"`
	Status     Status        `json:"status"`
	// Version backs the optimistic concurrency check in stores.
	Version int `json:"version"`

	EmitterCompany             CompanyRef `json:"emitterCompany"`
	EmitterIsPrivateIndividual bool       `json:"emitterIsPrivateIndividual,omitempty"`

	// Worker slot, BSDA only.
	WorkerCompany                      CompanyRef `json:"workerCompany"`
	WorkerIsDisabled                   bool       `json:"workerIsDisabled,omitempty"`
	WorkerWorkHasEmitterPaperSignature bool       `json:"workerWorkHasEmitterPaperSignature,omitempty"`

	DestinationCompany CompanyRef   `json:"destinationCompany"`
	BrokerCompany      CompanyRef   `json:"brokerCompany"`
	TraderCompany      CompanyRef   `json:"traderCompany"`
	EcoOrganisme       CompanyRef   `json:"ecoOrganisme"`
	Intermediaries     []CompanyRef `json:"intermediaries,omitempty"`

	// Ordered transporter chain, numbers 1..MaxTransporters without gaps.
	Transporters []TransporterSlot `json:"transporters"`

	BsdaWorkflow BsdaWorkflow `json:"bsdaWorkflow,omitempty"`

	WasteCode           string      `json:"wasteCode"`
	WasteIsSubjectToADR *bool       `json:"wasteIsSubjectToAdr,omitempty"`
	WasteAdrMention     string      `json:"wasteAdrMention,omitempty"`
	WastePackagings     []Packaging `json:"wastePackagings,omitempty"`
	WasteSealNumbers    []string    `json:"wasteSealNumbers,omitempty"`

	// Weight declared by the emitter, in tonnes.
	WeightValue float64 `json:"weightValue,omitempty"`

	DestinationCap                        string            `json:"destinationCap,omitempty"`
	DestinationPlannedOperationCode       string            `json:"destinationPlannedOperationCode,omitempty"`
	DestinationReceptionDate              *time.Time        `json:"destinationReceptionDate,omitempty"`
	DestinationReceptionWeight            *float64          `json:"destinationReceptionWeight,omitempty"`
	DestinationReceptionAcceptationStatus AcceptationStatus `json:"destinationReceptionAcceptationStatus,omitempty"`
	DestinationReceptionRefusalReason     string            `json:"destinationReceptionRefusalReason,omitempty"`
	DestinationOperationCode              string            `json:"destinationOperationCode,omitempty"`
	DestinationOperationMode              string            `json:"destinationOperationMode,omitempty"`
	DestinationOperationDate              *time.Time        `json:"destinationOperationDate,omitempty"`
	DestinationOperationNoTraceability    bool              `json:"destinationOperationNoTraceability,omitempty"`

	// BSDD temporary storage flow.
	IsTempStorage bool `json:"isTempStorage,omitempty"`

	// Document-level signature records. TRANSPORT signatures live on the
	// transporter slots; SignatureAt folds them in.
	Signatures map[SignatureType]Signature `json:"signatures,omitempty"`

	// Relations. GroupedInID points at the consolidation parent,
	// ForwardingID at the original this document re-expeditions,
	// ForwardedInID at the continuation of this document.
	GroupedInID   *id.DocumentID `json:"groupedInId,omitempty"`
	ForwardingID  *id.DocumentID `json:"forwardingId,omitempty"`
	ForwardedInID *id.DocumentID `json:"forwardedInId,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// NewReadableID builds the human-facing identifier printed on the bordereau,
// e.g. BSDA-20260901-4KJ7F2M9X.
func NewReadableID(t DocumentType, now time.Time) string {
	const alphabet = "0123456789ABCDEFGHJKMNPQRSTVWXYZ"
	suffix := make([]byte, 9)
	for i := range suffix {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(len(alphabet))))
		if err != nil {
			// crypto/rand only fails when the platform entropy source is
			// broken; a constant suffix is still unique enough with the date.
			suffix[i] = alphabet[i%len(alphabet)]
			continue
		}
		suffix[i] = alphabet[n.Int64()]
	}
	return fmt.Sprintf("%s-%s-%s", t.ReadableIDPrefix(), now.Format("20060102"), suffix)
}

// SignatureAt returns the signature record for a type, folding per-slot
// transporter signatures into the first slot's record.
func (d *Document) SignatureAt(t SignatureType) *Signature {
	if t == SignatureTransport {
		if len(d.Transporters) > 0 && d.Transporters[0].Signature != nil {
			sig := *d.Transporters[0].Signature
			return &sig
		}
		return nil
	}
	if sig, ok := d.Signatures[t]; ok {
		return &sig
	}
	return nil
}

// HasSignature reports whether the signature type has already been applied.
func (d *Document) HasSignature(t SignatureType) bool {
	return d.SignatureAt(t) != nil
}

// SetSignature records a document-level signature. Transport signatures go
// through the transporter slot instead.
func (d *Document) SetSignature(t SignatureType, sig Signature) {
	if d.Signatures == nil {
		d.Signatures = make(map[SignatureType]Signature)
	}
	d.Signatures[t] = sig
}

// NaturalSigner returns the company expected to apply a signature type. For
// TRANSPORT the caller resolves the current transporter slot instead.
func (d *Document) NaturalSigner(t SignatureType) CompanyRef {
	switch t {
	case SignatureEmission:
		return d.EmitterCompany
	case SignatureWork:
		return d.WorkerCompany
	case SignatureReception, SignatureOperation:
		return d.DestinationCompany
	}
	return CompanyRef{}
}

// Participants lists every SIRET named on the document, for access listing.
func (d *Document) Participants() []id.Siret {
	var out []id.Siret
	add := func(c CompanyRef) {
		if !c.Siret.IsZero() {
			out = append(out, c.Siret)
		}
	}
	add(d.EmitterCompany)
	add(d.WorkerCompany)
	add(d.DestinationCompany)
	add(d.BrokerCompany)
	add(d.TraderCompany)
	add(d.EcoOrganisme)
	for _, c := range d.Intermediaries {
		add(c)
	}
	for _, t := range d.Transporters {
		add(t.Company)
	}
	return out
}

// Clone deep-copies the aggregate so in-memory stores hand out snapshots.
func (d *Document) Clone() *Document {
	c := *d
	c.Transporters = make([]TransporterSlot, len(d.Transporters))
	for i, t := range d.Transporters {
		c.Transporters[i] = t
		if t.Signature != nil {
			sig := *t.Signature
			c.Transporters[i].Signature = &sig
		}
		if t.TakenOverAt != nil {
			at := *t.TakenOverAt
			c.Transporters[i].TakenOverAt = &at
		}
	}
	if d.Signatures != nil {
		c.Signatures = make(map[SignatureType]Signature, len(d.Signatures))
		for k, v := range d.Signatures {
			c.Signatures[k] = v
		}
	}
	c.Intermediaries = append([]CompanyRef(nil), d.Intermediaries...)
	c.WastePackagings = append([]Packaging(nil), d.WastePackagings...)
	c.WasteSealNumbers = append([]string(nil), d.WasteSealNumbers...)
	c.WasteIsSubjectToADR = clonePtr(d.WasteIsSubjectToADR)
	c.DestinationReceptionDate = clonePtr(d.DestinationReceptionDate)
	c.DestinationReceptionWeight = clonePtr(d.DestinationReceptionWeight)
	c.DestinationOperationDate = clonePtr(d.DestinationOperationDate)
	c.GroupedInID = clonePtr(d.GroupedInID)
	c.ForwardingID = clonePtr(d.ForwardingID)
	c.ForwardedInID = clonePtr(d.ForwardedInID)
	return &c
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

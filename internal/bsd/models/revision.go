package models

import (
	"time"

	id "bordereau/pkg/domain"
)

// RevisionStatus is the lifecycle of a post-signature correction request.
type RevisionStatus string

const (
	RevisionPending   RevisionStatus = "PENDING"
	RevisionAccepted  RevisionStatus = "ACCEPTED"
	RevisionRefused   RevisionStatus = "REFUSED"
	RevisionCancelled RevisionStatus = "CANCELLED"
)

// ApprovalStatus is one counter-party's verdict on a revision request.
type ApprovalStatus string

const (
	ApprovalPending  ApprovalStatus = "PENDING"
	ApprovalAccepted ApprovalStatus = "ACCEPTED"
	ApprovalRefused  ApprovalStatus = "REFUSED"
)

// RevisionApproval is one approval row. Exactly one exists per principal
// actor other than the authoring company.
type RevisionApproval struct {
	ApproverSiret id.Siret       `json:"approverSiret"`
	Status        ApprovalStatus `json:"status"`
	Comment       string         `json:"comment,omitempty"`
}

// RevisionContent is the structured diff of a revision request. Nil fields
// are untouched; non-nil fields replace the document's values when the
// request is accepted.
type RevisionContent struct {
	WasteCode                  *string      `json:"wasteCode,omitempty"`
	WasteSealNumbers           *[]string    `json:"wasteSealNumbers,omitempty"`
	WastePackagings            *[]Packaging `json:"wastePackagings,omitempty"`
	WeightValue                *float64     `json:"weightValue,omitempty"`
	DestinationCap             *string      `json:"destinationCap,omitempty"`
	DestinationReceptionWeight *float64     `json:"destinationReceptionWeight,omitempty"`
	DestinationOperationCode   *string      `json:"destinationOperationCode,omitempty"`
	DestinationOperationMode   *string      `json:"destinationOperationMode,omitempty"`
	BrokerCompany              *CompanyRef  `json:"brokerCompany,omitempty"`
	TraderCompany              *CompanyRef  `json:"traderCompany,omitempty"`
}

// IsEmpty reports whether the diff touches nothing.
func (c RevisionContent) IsEmpty() bool {
	return len(c.Fields()) == 0
}

// Fields lists the document fields the diff targets, for lock checking.
func (c RevisionContent) Fields() []Field {
	var out []Field
	if c.WasteCode != nil {
		out = append(out, FieldWasteCode)
	}
	if c.WasteSealNumbers != nil {
		out = append(out, FieldWasteSealNumbers)
	}
	if c.WastePackagings != nil {
		out = append(out, FieldWastePackagings)
	}
	if c.WeightValue != nil {
		out = append(out, FieldWeight)
	}
	if c.DestinationCap != nil {
		out = append(out, FieldDestinationCap)
	}
	if c.DestinationReceptionWeight != nil {
		out = append(out, FieldDestinationReceptionWeight)
	}
	if c.DestinationOperationCode != nil {
		out = append(out, FieldDestinationOperationCode)
	}
	if c.DestinationOperationMode != nil {
		out = append(out, FieldDestinationOperationMode)
	}
	if c.BrokerCompany != nil {
		out = append(out, FieldBrokerCompany)
	}
	if c.TraderCompany != nil {
		out = append(out, FieldTraderCompany)
	}
	return out
}

// ApplyTo writes the diff onto the document. The caller has already verified
// that none of the targeted fields is signature-locked.
func (c RevisionContent) ApplyTo(d *Document) {
	if c.WasteCode != nil {
		d.WasteCode = *c.WasteCode
	}
	if c.WasteSealNumbers != nil {
		d.WasteSealNumbers = append([]string(nil), *c.WasteSealNumbers...)
	}
	if c.WastePackagings != nil {
		d.WastePackagings = append([]Packaging(nil), *c.WastePackagings...)
	}
	if c.WeightValue != nil {
		d.WeightValue = *c.WeightValue
	}
	if c.DestinationCap != nil {
		d.DestinationCap = *c.DestinationCap
	}
	if c.DestinationReceptionWeight != nil {
		w := *c.DestinationReceptionWeight
		d.DestinationReceptionWeight = &w
	}
	if c.DestinationOperationCode != nil {
		d.DestinationOperationCode = *c.DestinationOperationCode
	}
	if c.DestinationOperationMode != nil {
		d.DestinationOperationMode = *c.DestinationOperationMode
	}
	if c.BrokerCompany != nil {
		d.BrokerCompany = *c.BrokerCompany
	}
	if c.TraderCompany != nil {
		d.TraderCompany = *c.TraderCompany
	}
}

// RevisionRequest is one correction request over a signed document.
type RevisionRequest struct {
	ID             id.RevisionID      `json:"id"`
	DocumentID     id.DocumentID      `json:"documentId"`
	AuthoringSiret id.Siret           `json:"authoringSiret"`
	Content        RevisionContent    `json:"content"`
	Comment        string             `json:"comment"`
	Status         RevisionStatus     `json:"status"`
	Approvals      []RevisionApproval `json:"approvals"`
	CreatedAt      time.Time          `json:"createdAt"`
	UpdatedAt      time.Time          `json:"updatedAt"`
}

// ApprovalFor returns the approval row for an establishment, or nil.
func (r *RevisionRequest) ApprovalFor(siret id.Siret) *RevisionApproval {
	for i := range r.Approvals {
		if r.Approvals[i].ApproverSiret == siret {
			return &r.Approvals[i]
		}
	}
	return nil
}

// AllApprovalsAccepted reports unanimous acceptance.
func (r *RevisionRequest) AllApprovalsAccepted() bool {
	for _, a := range r.Approvals {
		if a.Status != ApprovalAccepted {
			return false
		}
	}
	return len(r.Approvals) > 0
}

package models

import (
	"time"

	dErrors "bordereau/pkg/domain-errors"
)

// MaxTransporters caps the multimodal chain length.
const MaxTransporters = 5

// TransporterSlot is one entry of the ordered transporter chain. A slot with
// no signature may be edited or removed; once signed it is immutable and can
// only be followed by appended slots.
type TransporterSlot struct {
	Number              int        `json:"number"`
	Company             CompanyRef `json:"company"`
	RecepisseNumber     string     `json:"recepisseNumber,omitempty"`
	RecepisseIsExempted bool       `json:"recepisseIsExempted,omitempty"`
	TransportMode       string     `json:"transportMode,omitempty"`
	TakenOverAt         *time.Time `json:"takenOverAt,omitempty"`
	Signature           *Signature `json:"signature,omitempty"`
}

// Signed reports whether the slot already carries its TRANSPORT signature.
func (t TransporterSlot) Signed() bool { return t.Signature != nil }

// CurrentTransporter returns the first slot without a TRANSPORT signature,
// i.e. the one entitled to sign next, or nil when every slot has signed.
func (d *Document) CurrentTransporter() *TransporterSlot {
	for i := range d.Transporters {
		if !d.Transporters[i].Signed() {
			return &d.Transporters[i]
		}
	}
	return nil
}

// TransporterAt returns the slot with the given ordinal, or nil.
func (d *Document) TransporterAt(number int) *TransporterSlot {
	for i := range d.Transporters {
		if d.Transporters[i].Number == number {
			return &d.Transporters[i]
		}
	}
	return nil
}

// AppendTransporter adds a slot at the end of the chain, assigning the next
// ordinal.
func (d *Document) AppendTransporter(slot TransporterSlot) error {
	if len(d.Transporters) >= MaxTransporters {
		return dErrors.Newf(dErrors.CodeTooManyTransporters,
			"Un bordereau ne peut pas compter plus de %d transporteurs", MaxTransporters)
	}
	slot.Number = len(d.Transporters) + 1
	slot.Signature = nil
	d.Transporters = append(d.Transporters, slot)
	return d.ValidateTransporters()
}

// RemoveTransporter deletes an unsigned slot and compacts ordinals so the
// chain keeps numbers 1..N without gaps.
func (d *Document) RemoveTransporter(number int) error {
	idx := -1
	for i := range d.Transporters {
		if d.Transporters[i].Number == number {
			idx = i
			break
		}
	}
	if idx < 0 {
		return dErrors.Newf(dErrors.CodeNotFound, "Le transporteur n°%d n'existe pas sur ce bordereau", number)
	}
	if d.Transporters[idx].Signed() {
		return dErrors.Newf(dErrors.CodeFieldLocked,
			"Le transporteur n°%d a déjà signé l'enlèvement et ne peut pas être supprimé", number)
	}
	d.Transporters = append(d.Transporters[:idx], d.Transporters[idx+1:]...)
	for i := range d.Transporters {
		d.Transporters[i].Number = i + 1
	}
	return nil
}

// ValidateTransporters enforces the structural invariants of the chain:
// bounded length, contiguous ordinals, no company appearing twice.
func (d *Document) ValidateTransporters() error {
	if len(d.Transporters) > MaxTransporters {
		return dErrors.Newf(dErrors.CodeTooManyTransporters,
			"Un bordereau ne peut pas compter plus de %d transporteurs", MaxTransporters)
	}
	seen := make(map[string]bool, len(d.Transporters))
	for i, t := range d.Transporters {
		if t.Number != i+1 {
			return dErrors.New(dErrors.CodeConflictingTransporterData,
				"La numérotation des transporteurs doit être continue et commencer à 1")
		}
		if t.Company.Siret.IsZero() {
			continue
		}
		key := t.Company.Siret.String()
		if seen[key] {
			return dErrors.Newf(dErrors.CodeDuplicateTransporterUsage,
				"L'établissement %s apparaît plusieurs fois dans la chaîne de transport", key)
		}
		seen[key] = true
	}
	return nil
}

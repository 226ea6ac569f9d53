package rules

import (
	"bordereau/internal/bsd/models"
)

// FieldRule is one declarative completeness rule. When (nil means always)
// scopes the rule to documents it applies to; Ok reports satisfaction. The
// validator walks rules in declaration order and reports every violation,
// so error text is stable and reproducible.
type FieldRule struct {
	Field   models.Field
	Message string
	When    func(d *models.Document) bool
	Ok      func(d *models.Document) bool
}

func adrSubject(d *models.Document) bool {
	return d.WasteIsSubjectToADR != nil && *d.WasteIsSubjectToADR
}

func adrNotSubject(d *models.Document) bool {
	return d.WasteIsSubjectToADR != nil && !*d.WasteIsSubjectToADR
}

func wasteRefused(d *models.Document) bool {
	return d.DestinationReceptionAcceptationStatus == models.AcceptationRefused ||
		d.DestinationReceptionAcceptationStatus == models.AcceptationPartiallyRefused
}

// emissionRules gate the EMISSION signature (and draft publication, which
// runs the same set).
var emissionRules = []FieldRule{
	{
		Field:   models.FieldEmitterCompany,
		Message: "L'établissement émetteur doit être renseigné",
		Ok:      func(d *models.Document) bool { return d.EmitterIsPrivateIndividual || !d.EmitterCompany.Siret.IsZero() },
	},
	{
		Field:   models.FieldDestinationCompany,
		Message: "L'établissement de destination doit être renseigné",
		Ok:      func(d *models.Document) bool { return !d.DestinationCompany.Siret.IsZero() },
	},
	{
		Field:   models.FieldWasteCode,
		Message: "Le code déchet doit être renseigné",
		Ok:      func(d *models.Document) bool { return d.WasteCode != "" },
	},
	{
		Field:   models.FieldWeight,
		Message: "Le poids du déchet doit être renseigné et non nul",
		Ok:      func(d *models.Document) bool { return d.WeightValue > 0 },
	},
	{
		Field:   models.FieldWasteAdrMention,
		Message: "La mention ADR doit être renseignée",
		When:    adrSubject,
		Ok:      func(d *models.Document) bool { return d.WasteAdrMention != "" },
	},
	{
		Field:   models.FieldWasteAdrMention,
		Message: "Le déchet n'est pas soumis à l'ADR. Vous ne pouvez pas préciser de mention ADR",
		When:    adrNotSubject,
		Ok:      func(d *models.Document) bool { return d.WasteAdrMention == "" },
	},
	{
		Field:   models.FieldDestinationPlannedOperationCode,
		Message: "L'opération prévue doit être renseignée",
		Ok:      func(d *models.Document) bool { return d.DestinationPlannedOperationCode != "" },
	},
	{
		Field:   models.FieldDestinationCap,
		Message: "Le numéro de CAP doit être renseigné",
		When: func(d *models.Document) bool {
			return d.Type == models.BSDA && d.BsdaWorkflow != models.BsdaCollection2710
		},
		Ok: func(d *models.Document) bool { return d.DestinationCap != "" },
	},
}

// workRules gate the BSDA WORK signature. Packagings are filled by the works
// company except for déchetterie collection.
var workRules = []FieldRule{
	{
		Field:   models.FieldWorkerCompany,
		Message: "L'entreprise de travaux doit être renseignée",
		When:    func(d *models.Document) bool { return !d.WorkerIsDisabled },
		Ok:      func(d *models.Document) bool { return !d.WorkerCompany.Siret.IsZero() },
	},
	{
		Field:   models.FieldWastePackagings,
		Message: "Le conditionnement doit être renseigné",
		When:    func(d *models.Document) bool { return d.BsdaWorkflow != models.BsdaCollection2710 },
		Ok:      func(d *models.Document) bool { return len(d.WastePackagings) > 0 },
	},
}

// transportRules gate each transporter slot's TRANSPORT signature. They read
// the current (first unsigned) slot.
var transportRules = []FieldRule{
	{
		Field:   models.FieldTransporterCompany,
		Message: "L'établissement transporteur doit être renseigné",
		Ok: func(d *models.Document) bool {
			t := d.CurrentTransporter()
			return t != nil && !t.Company.Siret.IsZero()
		},
	},
	{
		Field:   models.FieldTransporterRecepisse,
		Message: "Le numéro de récépissé du transporteur est obligatoire. L'établissement doit renseigner son récépissé ou déclarer une exemption",
		When: func(d *models.Document) bool {
			t := d.CurrentTransporter()
			return t != nil && !t.RecepisseIsExempted
		},
		Ok: func(d *models.Document) bool {
			t := d.CurrentTransporter()
			return t != nil && t.RecepisseNumber != ""
		},
	},
}

// receptionRules gate RECEPTION, and are re-run by OPERATION when reception
// was skipped (auto-validation).
var receptionRules = []FieldRule{
	{
		Field:   models.FieldDestinationReceptionAcceptation,
		Message: "Le statut d'acceptation du déchet doit être renseigné",
		Ok: func(d *models.Document) bool {
			return d.DestinationReceptionAcceptationStatus != models.AcceptationNotSet
		},
	},
	{
		Field:   models.FieldDestinationReceptionWeight,
		Message: "Le poids du déchet reçu doit être renseigné et non nul",
		When:    func(d *models.Document) bool { return !wasteRefused(d) },
		Ok: func(d *models.Document) bool {
			return d.DestinationReceptionWeight != nil && *d.DestinationReceptionWeight > 0
		},
	},
	{
		Field:   models.FieldDestinationReceptionAcceptation,
		Message: "Le motif du refus doit être renseigné",
		When:    wasteRefused,
		Ok:      func(d *models.Document) bool { return d.DestinationReceptionRefusalReason != "" },
	},
	{
		Field:   models.FieldDestinationReceptionAcceptation,
		Message: "La date de réception doit être renseignée",
		Ok:      func(d *models.Document) bool { return d.DestinationReceptionDate != nil },
	},
}

// operationRules gate OPERATION. A refused reception carries no treatment,
// so the code and mode rules only apply to accepted waste.
var operationRules = []FieldRule{
	{
		Field:   models.FieldDestinationOperationCode,
		Message: "Le code de l'opération de traitement doit être renseigné",
		When:    func(d *models.Document) bool { return !isFullyRefused(d) },
		Ok:      func(d *models.Document) bool { return d.DestinationOperationCode != "" },
	},
	{
		Field:   models.FieldDestinationOperationDate,
		Message: "La date de l'opération doit être renseignée",
		When:    func(d *models.Document) bool { return !isFullyRefused(d) },
		Ok:      func(d *models.Document) bool { return d.DestinationOperationDate != nil },
	},
}

func isFullyRefused(d *models.Document) bool {
	return d.DestinationReceptionAcceptationStatus == models.AcceptationRefused
}

// RequiredFor returns the completeness rules gating a signature type on a
// document type, in declaration order. OPERATION prepends the reception
// rules when the type allows skipping RECEPTION, so a single OPERATION call
// validates both steps.
func RequiredFor(d *models.Document, sig models.SignatureType) []FieldRule {
	switch sig {
	case models.SignatureEmission:
		return emissionRules
	case models.SignatureWork:
		if d.Type != models.BSDA {
			return nil
		}
		return workRules
	case models.SignatureTransport:
		return transportRules
	case models.SignatureReception:
		return receptionRules
	case models.SignatureOperation:
		if ReceptionIsOptional(d.Type) && !d.HasSignature(models.SignatureReception) {
			combined := make([]FieldRule, 0, len(receptionRules)+len(operationRules))
			combined = append(combined, receptionRules...)
			combined = append(combined, operationRules...)
			return combined
		}
		return operationRules
	}
	return nil
}

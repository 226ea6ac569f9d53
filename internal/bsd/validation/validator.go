// Package validation implements the field completeness check gating each
// signature. Pure domain logic: document snapshot in, violations out, no I/O.
package validation

import (
	"bordereau/internal/bsd/models"
	"bordereau/internal/bsd/rules"
	dErrors "bordereau/pkg/domain-errors"
)

// MissingFields collects every violated completeness rule for the target
// signature type, in rule declaration order. It never stops at the first
// violation: a user fixing a bordereau must see the whole list at once.
func MissingFields(d *models.Document, sig models.SignatureType) []string {
	var violations []string
	for _, rule := range rules.RequiredFor(d, sig) {
		if rule.When != nil && !rule.When(d) {
			continue
		}
		if !rule.Ok(d) {
			violations = append(violations, rule.Message)
		}
	}
	return violations
}

// Check returns a MISSING_REQUIRED_FIELDS error aggregating every violation,
// newline-joined, or nil when the document is complete for the signature.
func Check(d *models.Document, sig models.SignatureType) error {
	violations := MissingFields(d, sig)
	if len(violations) == 0 {
		return nil
	}
	return dErrors.Aggregate(dErrors.CodeMissingRequiredFields, violations)
}

// CheckLocked rejects a set of targeted fields when any of them is already
// frozen by a signature. All-or-nothing: one locked field invalidates the
// whole set, so revision diffs apply atomically or not at all.
func CheckLocked(d *models.Document, fields []models.Field) error {
	var locked []string
	for _, f := range fields {
		if d.IsFieldLocked(f) {
			locked = append(locked, "Le champ "+string(f)+" a été verrouillé via signature et ne peut pas être modifié")
		}
	}
	if len(locked) == 0 {
		return nil
	}
	return dErrors.Aggregate(dErrors.CodeFieldLocked, locked)
}

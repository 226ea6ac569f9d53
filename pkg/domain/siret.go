package domain

import (
	"strings"

	dErrors "bordereau/pkg/domain-errors"
)

// Siret is a 14-digit French establishment identifier. The zero value means
// "no company set on this slot".
type Siret string

func (s Siret) String() string { return string(s) }

// IsZero reports whether the slot carries no company.
func (s Siret) IsZero() bool { return s == "" }

// ParseSiret validates a SIRET: exactly 14 digits passing the Luhn check.
// La Poste establishments (prefix 356000000) do not satisfy Luhn and are
// accepted on digit-sum parity instead, matching INSEE's published rule.
func ParseSiret(raw string) (Siret, error) {
	s := strings.ReplaceAll(raw, " ", "")
	if len(s) != 14 {
		return "", dErrors.Newf(dErrors.CodeInvalidInput, "Le SIRET %q doit comporter 14 chiffres", raw)
	}
	sum := 0
	luhn := 0
	for i, r := range s {
		if r < '0' || r > '9' {
			return "", dErrors.Newf(dErrors.CodeInvalidInput, "Le SIRET %q doit comporter 14 chiffres", raw)
		}
		d := int(r - '0')
		sum += d
		if (len(s)-i)%2 == 0 {
			d *= 2
			if d > 9 {
				d -= 9
			}
		}
		luhn += d
	}
	if strings.HasPrefix(s, "356000000") {
		if sum%5 != 0 {
			return "", dErrors.Newf(dErrors.CodeInvalidInput, "Le SIRET %q n'est pas valide", raw)
		}
		return Siret(s), nil
	}
	if luhn%10 != 0 {
		return "", dErrors.Newf(dErrors.CodeInvalidInput, "Le SIRET %q n'est pas valide", raw)
	}
	return Siret(s), nil
}

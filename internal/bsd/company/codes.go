package company

import (
	"context"
	"errors"

	id "bordereau/pkg/domain"
	dErrors "bordereau/pkg/domain-errors"
	"bordereau/pkg/platform/secrets"
	"bordereau/pkg/platform/sentinel"
)

// SecurityCodeStore holds the bcrypt hash of each establishment's signature
// code. Returns sentinel.ErrNotFound when no code was provisioned.
type SecurityCodeStore interface {
	GetCodeHash(ctx context.Context, siret id.Siret) (string, error)
}

// CodeVerifier implements authz.SecurityCodeVerifier on top of the store.
type CodeVerifier struct {
	store SecurityCodeStore
}

func NewCodeVerifier(store SecurityCodeStore) *CodeVerifier {
	return &CodeVerifier{store: store}
}

// Verify checks a plaintext code against the establishment's stored hash.
// An unknown establishment yields the same error as a wrong code, so the
// response does not leak which establishments have provisioned codes.
func (v *CodeVerifier) Verify(ctx context.Context, siret id.Siret, code string) error {
	hash, err := v.store.GetCodeHash(ctx, siret)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return dErrors.New(dErrors.CodeInvalidSecurityCode, "Le code de signature est invalide.")
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "La vérification du code de signature a échoué")
	}
	return secrets.Verify(code, hash)
}

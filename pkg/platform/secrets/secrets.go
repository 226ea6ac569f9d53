// Package secrets handles security codes used for proxy signatures. Codes are
// stored as bcrypt hashes; plaintext only exists in the incoming request.
package secrets

import (
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"

	"golang.org/x/crypto/bcrypt"

	dErrors "bordereau/pkg/domain-errors"
)

// Generate creates a random 4-digit security code, the format printed on the
// paper bordereau handed to transporters.
func Generate() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(9000))
	if err != nil {
		return "", fmt.Errorf("could not generate security code: %w", err)
	}
	return fmt.Sprintf("%04d", n.Int64()+1000), nil
}

// Hash creates a bcrypt hash of the provided code for storage.
func Hash(code string) (string, error) {
	if code == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, "security code cannot be empty")
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(code), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("could not hash security code: %w", err)
	}
	return string(hashed), nil
}

// Verify checks a plaintext code against a stored hash.
func Verify(code, hash string) error {
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(code)); err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return dErrors.New(dErrors.CodeInvalidSecurityCode, "Le code de signature est invalide.")
		}
		return fmt.Errorf("could not verify security code: %w", err)
	}
	return nil
}

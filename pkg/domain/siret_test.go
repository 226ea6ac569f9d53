package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "bordereau/pkg/domain-errors"
)

func TestParseSiret(t *testing.T) {
	t.Run("accepts a valid SIRET", func(t *testing.T) {
		siret, err := ParseSiret("44306184100013")
		require.NoError(t, err)
		assert.Equal(t, Siret("44306184100013"), siret)
	})

	t.Run("accepts spaces in the input", func(t *testing.T) {
		siret, err := ParseSiret("443 061 841 00013")
		require.NoError(t, err)
		assert.Equal(t, Siret("44306184100013"), siret)
	})

	t.Run("rejects a wrong length", func(t *testing.T) {
		_, err := ParseSiret("4430618410001")
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	t.Run("rejects non-digit characters", func(t *testing.T) {
		_, err := ParseSiret("4430618410001X")
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	t.Run("rejects a failed Luhn check", func(t *testing.T) {
		_, err := ParseSiret("44306184100014")
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	t.Run("accepts La Poste establishments on digit-sum parity", func(t *testing.T) {
		// 356000000 prefixed SIRETs do not satisfy Luhn.
		siret, err := ParseSiret("35600000000001")
		require.NoError(t, err)
		assert.Equal(t, Siret("35600000000001"), siret)
	})

	t.Run("rejects a La Poste SIRET with a wrong digit sum", func(t *testing.T) {
		_, err := ParseSiret("35600000000002")
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})
}

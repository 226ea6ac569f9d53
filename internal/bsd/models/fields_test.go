package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// TestFieldLocking verifies locks are derived from the signatures present on
// the document, with the BSDA worker fallback.
func TestFieldLocking(t *testing.T) {
	now := time.Now()

	t.Run("nothing locked before any signature", func(t *testing.T) {
		d := &Document{Type: BSDD}
		assert.False(t, d.IsFieldLocked(FieldWasteCode))
		assert.False(t, d.IsFieldLocked(FieldDestinationOperationCode))
	})

	t.Run("emission freezes the emitter block", func(t *testing.T) {
		d := &Document{Type: BSDD}
		d.SetSignature(SignatureEmission, Signature{Author: "Jean", Date: now})
		assert.True(t, d.IsFieldLocked(FieldWasteCode))
		assert.True(t, d.IsFieldLocked(FieldEmitterCompany))
		assert.False(t, d.IsFieldLocked(FieldDestinationReceptionWeight))
	})

	t.Run("packagings lock at work on a BSDA with a worker", func(t *testing.T) {
		d := &Document{Type: BSDA}
		d.SetSignature(SignatureWork, Signature{Author: "Marie", Date: now})
		assert.True(t, d.IsFieldLocked(FieldWastePackagings))
	})

	t.Run("packagings fall back to transport when the worker step is absent", func(t *testing.T) {
		d := &Document{Type: BSDD, Transporters: []TransporterSlot{{Number: 1}}}
		assert.False(t, d.IsFieldLocked(FieldWastePackagings))
		d.Transporters[0].Signature = &Signature{Author: "Paul", Date: now}
		assert.True(t, d.IsFieldLocked(FieldWastePackagings))
	})

	t.Run("operation freezes treatment fields", func(t *testing.T) {
		d := &Document{Type: BSVHU}
		d.SetSignature(SignatureOperation, Signature{Author: "Luc", Date: now})
		assert.True(t, d.IsFieldLocked(FieldDestinationOperationCode))
		assert.True(t, d.IsFieldLocked(FieldDestinationReceptionWeight))
	})

	t.Run("unmapped fields never lock", func(t *testing.T) {
		d := &Document{Type: BSDD}
		d.SetSignature(SignatureEmission, Signature{Author: "Jean", Date: now})
		assert.False(t, d.IsFieldLocked(Field("emitterContact")))
	})
}

func TestSlotLocking(t *testing.T) {
	now := time.Now()
	d := &Document{Type: BSDD}

	assert.False(t, d.IsSlotLocked(SignatureEmission))
	d.SetSignature(SignatureEmission, Signature{Author: "Jean", Date: now})
	assert.True(t, d.IsSlotLocked(SignatureEmission))
	assert.False(t, d.IsSlotLocked(SignatureReception))
}

func TestSignatureAtFoldsTransport(t *testing.T) {
	now := time.Now()
	d := &Document{Type: BSDD, Transporters: []TransporterSlot{{Number: 1}, {Number: 2}}}

	assert.Nil(t, d.SignatureAt(SignatureTransport))
	d.Transporters[0].Signature = &Signature{Author: "Paul", Date: now}
	sig := d.SignatureAt(SignatureTransport)
	assert.NotNil(t, sig)
	assert.Equal(t, "Paul", sig.Author)
}

func TestCloneIsDeep(t *testing.T) {
	now := time.Now()
	weight := 1.5
	d := &Document{
		Type:                       BSDA,
		Transporters:               []TransporterSlot{{Number: 1, TakenOverAt: &now}},
		WasteSealNumbers:           []string{"A1"},
		DestinationReceptionWeight: &weight,
	}
	d.SetSignature(SignatureEmission, Signature{Author: "Jean", Date: now})

	c := d.Clone()
	c.Transporters[0].Number = 9
	*c.DestinationReceptionWeight = 9.9
	c.WasteSealNumbers[0] = "B2"
	c.Signatures[SignatureWork] = Signature{Author: "Marie", Date: now}

	assert.Equal(t, 1, d.Transporters[0].Number)
	assert.Equal(t, 1.5, *d.DestinationReceptionWeight)
	assert.Equal(t, "A1", d.WasteSealNumbers[0])
	assert.False(t, d.HasSignature(SignatureWork))
}

package certificate

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRecord(t *testing.T) {
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	data := Payload{
		KeyClientName:          "Acme Ltd",
		KeyInstallationAddress: "1 High Street",
		KeyCertificateNumber:   "EICR-0001",
	}

	rec := NewRecord(TypeEICR, data, now)

	assert.NotEmpty(t, rec.ID)
	assert.Equal(t, StatusDraft, rec.Status)
	assert.Equal(t, "Acme Ltd", rec.ClientName)
	assert.Equal(t, "1 High Street", rec.InstallationAddress)
	assert.Equal(t, "EICR-0001", rec.CertificateNumber)
	assert.Equal(t, now, rec.CreatedAt)
	assert.Equal(t, now, rec.UpdatedAt)
	require.NoError(t, rec.Validate())

	other := NewRecord(TypeEICR, nil, now)
	assert.NotEqual(t, rec.ID, other.ID)
	assert.NotNil(t, other.Data)
}

func TestRecord_Validate(t *testing.T) {
	rec := NewRecord(TypeMWC, Payload{}, time.Now())
	rec.CertificateType = "PAT"
	assert.ErrorIs(t, rec.Validate(), ErrInvalidData)

	rec = NewRecord(TypeMWC, Payload{}, time.Now())
	rec.ID = ""
	assert.ErrorIs(t, rec.Validate(), ErrInvalidData)
}

func TestRecord_ComputeChecksum(t *testing.T) {
	a := NewRecord(TypeEIC, Payload{"b": "2", "a": "1"}, time.Now())
	b := NewRecord(TypeEIC, Payload{"a": "1", "b": "2"}, time.Now())

	sumA, err := a.ComputeChecksum()
	require.NoError(t, err)
	sumB, err := b.ComputeChecksum()
	require.NoError(t, err)
	assert.Equal(t, sumA, sumB)
	assert.Len(t, sumA, 64)

	b.Data["a"] = "changed"
	sumB, err = b.ComputeChecksum()
	require.NoError(t, err)
	assert.NotEqual(t, sumA, sumB)
}

func TestRecord_Clone(t *testing.T) {
	rec := NewRecord(TypeEICR, Payload{"supply": map[string]any{"ze": "0.35"}}, time.Now())
	c := rec.Clone()

	require.NoError(t, c.Data.Set("supply.ze", "0.8"))

	v, _ := rec.Data.Get("supply.ze")
	assert.Equal(t, "0.35", v)
}

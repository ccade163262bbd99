package certificate

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"golang.org/x/crypto/blake2b"
)

// Record is a persisted certificate. ID and CertificateType never change once set.
type Record struct {
	ID                  string    `json:"id" validate:"required"`
	CertificateType     Type      `json:"certificate_type" validate:"required,oneof=EIC EICR MWC FIRE EML"`
	Status              Status    `json:"status" validate:"required,oneof=draft in_progress complete issued"`
	ClientName          string    `json:"client_name"`
	InstallationAddress string    `json:"installation_address"`
	CertificateNumber   string    `json:"certificate_number"`
	Data                Payload   `json:"data"`
	Checksum            string    `json:"checksum,omitempty"`
	CreatedAt           time.Time `json:"created_at"`
	UpdatedAt           time.Time `json:"updated_at"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// NewRecord promotes an in-memory payload to a record with a fresh id.
func NewRecord(typ Type, data Payload, now time.Time) *Record {
	if data == nil {
		data = Payload{}
	}
	rec := &Record{
		ID:              uuid.NewString(),
		CertificateType: typ,
		Status:          StatusDraft,
		Data:            data,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	rec.SyncDisplayFields()
	return rec
}

// SyncDisplayFields copies the denormalised listing fields out of Data.
func (r *Record) SyncDisplayFields() {
	r.ClientName = r.Data.String(KeyClientName)
	r.InstallationAddress = r.Data.String(KeyInstallationAddress)
	r.CertificateNumber = r.Data.String(KeyCertificateNumber)
}

func (r *Record) Validate() error {
	if err := validate.Struct(r); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidData, err)
	}
	return nil
}

// ComputeChecksum hashes the canonical JSON of Data. encoding/json sorts map
// keys, so equal payloads hash equally.
func (r *Record) ComputeChecksum() (string, error) {
	raw, err := json.Marshal(r.Data)
	if err != nil {
		return "", fmt.Errorf("marshal data: %w", err)
	}
	sum := blake2b.Sum256(raw)
	return hex.EncodeToString(sum[:]), nil
}

// Editable reports whether the record still accepts data writes.
func (r *Record) Editable() bool {
	return r.Status.Editable()
}

func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	c := *r
	c.Data = r.Data.Clone()
	return &c
}

package certificate

import (
	"fmt"
	"strings"

	"github.com/danielgtaylor/huma/v2"
)

type Type string

const (
	TypeEIC  Type = "EIC"
	TypeEICR Type = "EICR"
	TypeMWC  Type = "MWC"
	TypeFire Type = "FIRE"
	TypeEML  Type = "EML"
)

// Types lists every supported certificate type in display order.
var Types = []Type{TypeEICR, TypeEIC, TypeMWC, TypeFire, TypeEML}

func (Type) Schema(_ huma.Registry) *huma.Schema {
	enum := make([]any, 0, len(Types))
	for _, t := range Types {
		enum = append(enum, string(t))
	}
	return &huma.Schema{
		Type:        huma.TypeString,
		Enum:        enum,
		Description: "Certificate type",
		Examples:    []any{TypeEICR},
	}
}

// Validate rejects unknown values.
func (t Type) Validate() error {
	switch t {
	case TypeEIC, TypeEICR, TypeMWC, TypeFire, TypeEML:
		return nil
	}
	return fmt.Errorf("%w: %q", ErrInvalidType, string(t))
}

func (t Type) String() string {
	return string(t)
}

// DisplayName returns the name printed on the certificate.
func (t Type) DisplayName() string {
	switch t {
	case TypeEIC:
		return "Electrical Installation Certificate"
	case TypeEICR:
		return "Electrical Installation Condition Report"
	case TypeMWC:
		return "Minor Electrical Installation Works Certificate"
	case TypeFire:
		return "Fire Detection and Alarm System Certificate (BS 5839)"
	case TypeEML:
		return "Emergency Lighting Certificate (BS 5266)"
	default:
		return "Unknown certificate"
	}
}

// ParseType accepts the canonical code in any case.
func ParseType(s string) (Type, error) {
	t := Type(strings.ToUpper(strings.TrimSpace(s)))
	if err := t.Validate(); err != nil {
		return "", err
	}
	return t, nil
}

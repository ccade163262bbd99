package certificate

import (
	"strings"
	"time"
)

type SignatureMethod string

const (
	SignatureDrawn  SignatureMethod = "drawn"
	SignatureTyped  SignatureMethod = "typed"
	SignaturePreset SignatureMethod = "preset"
)

// Well-known signer roles.
const (
	RoleInspector  = "inspector"
	RoleClient     = "client"
	RoleEngineer   = "engineer"
	RoleContractor = "contractor"
	RoleDesigner   = "designer"
	RoleInstaller  = "installer"
)

var Roles = []string{RoleInspector, RoleClient, RoleEngineer, RoleContractor, RoleDesigner, RoleInstaller}

// Signature is one signer's mark. SignedAtISO is set if and only if the role
// counts as signed.
type Signature struct {
	Method       SignatureMethod `json:"method"`
	Payload      string          `json:"payload"`
	SignedAtISO  string          `json:"signedAtISO,omitempty"`
	SignedByName string          `json:"signedByName,omitempty"`
}

func (s Signature) Signed() bool {
	return s.SignedAtISO != ""
}

// InferMethod guesses how a bare signature value was captured.
func InferMethod(value string) SignatureMethod {
	if strings.HasPrefix(value, "data:image/") {
		return SignatureDrawn
	}
	return SignatureTyped
}

func (s Signature) toMap() map[string]any {
	m := map[string]any{
		"method":  string(s.Method),
		"payload": s.Payload,
	}
	if s.SignedAtISO != "" {
		m["signedAtISO"] = s.SignedAtISO
	}
	if s.SignedByName != "" {
		m["signedByName"] = s.SignedByName
	}
	return m
}

// SignatureFromMap decodes a stored entry; ok is false for anything that is not an object.
func SignatureFromMap(v any) (Signature, bool) {
	m, ok := AsMap(v)
	if !ok {
		return Signature{}, false
	}
	str := func(k string) string {
		s, _ := m[k].(string)
		return s
	}
	return Signature{
		Method:       SignatureMethod(str("method")),
		Payload:      str("payload"),
		SignedAtISO:  str("signedAtISO"),
		SignedByName: str("signedByName"),
	}, true
}

// Signatures decodes the _signatures section, skipping malformed entries.
func (p Payload) Signatures() map[string]Signature {
	out := map[string]Signature{}
	raw, ok := AsMap(p[KeySignatures])
	if !ok {
		return out
	}
	for role, v := range raw {
		if sig, ok := SignatureFromMap(v); ok {
			out[role] = sig
		}
	}
	return out
}

// SetSignature records a signature for role. A non-empty payload is stamped
// with now; an empty one is stored unsigned.
func (p Payload) SetSignature(role string, sig Signature, now time.Time) {
	if sig.Method == "" {
		sig.Method = InferMethod(sig.Payload)
	}
	if sig.Payload == "" {
		sig.SignedAtISO = ""
	} else if sig.SignedAtISO == "" {
		sig.SignedAtISO = now.UTC().Format(time.RFC3339)
	}
	sigs, ok := AsMap(p[KeySignatures])
	if !ok {
		sigs = map[string]any{}
	}
	sigs[role] = sig.toMap()
	p[KeySignatures] = sigs
}

func (p Payload) ClearSignature(role string) {
	if sigs, ok := AsMap(p[KeySignatures]); ok {
		delete(sigs, role)
	}
}

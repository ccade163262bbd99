// Package legacy upgrades certificate payloads written by older releases to the
// current shape. Every function is pure, never panics on unexpected input and
// is idempotent: Migrate(Migrate(p)) equals Migrate(p).
package legacy

import (
	"strconv"
	"time"

	"certkeeper/internal/domain/certificate"
)

// Apply runs every migration in order on a copy of p. ref stamps signatures
// that were captured before signing times were recorded; pass the record's
// updated_at.
func Apply(p certificate.Payload, ref time.Time) certificate.Payload {
	out := MigrateDisplayFields(p)
	out = MigrateSignatures(out, ref)
	out = MigrateSupply(out)
	out = MigrateCircuits(out)
	out = MigrateObservations(out)
	return out
}

var displayAliases = map[string][]string{
	certificate.KeyClientName:          {"client_name"},
	certificate.KeyInstallationAddress: {"installation_address", "address", "siteAddress"},
	certificate.KeyCertificateNumber:   {"certificate_number", "certNumber", "cert_number"},
}

// MigrateDisplayFields moves old spellings of the listing fields onto the
// current keys and defaults them to "".
func MigrateDisplayFields(p certificate.Payload) certificate.Payload {
	out := p.Clone()
	if out == nil {
		out = certificate.Payload{}
	}
	for key, aliases := range displayAliases {
		current, _ := out[key].(string)
		for _, alias := range aliases {
			v, exists := out[alias]
			if !exists {
				continue
			}
			if s, ok := v.(string); ok && current == "" {
				current = s
			}
			delete(out, alias)
		}
		out[key] = current
	}
	return out
}

// MigrateSignatures lifts signatures stored directly on the payload
// (<role>Signature, <role>SignedBy, <role>SignedAt) into _signatures and
// repairs existing entries so signedAtISO is present iff there is a payload.
func MigrateSignatures(p certificate.Payload, ref time.Time) certificate.Payload {
	out := p.Clone()
	if out == nil {
		out = certificate.Payload{}
	}

	current := certificate.Payload{}
	if raw, ok := certificate.AsMap(out[certificate.KeySignatures]); ok {
		for role, v := range raw {
			sig, ok := certificate.SignatureFromMap(v)
			if !ok {
				continue
			}
			current.SetSignature(role, normalizeMethod(sig), ref)
		}
	}
	if _, ok := current[certificate.KeySignatures]; !ok {
		current[certificate.KeySignatures] = map[string]any{}
	}

	existing := current.Signatures()
	for _, role := range certificate.Roles {
		valueKey := role + "Signature"
		byKey := role + "SignedBy"
		atKey := role + "SignedAt"

		raw, hasLegacy := out[valueKey]
		value, _ := raw.(string)
		by, _ := out[byKey].(string)
		at, _ := out[atKey].(string)
		delete(out, valueKey)
		delete(out, byKey)
		delete(out, atKey)

		if !hasLegacy {
			continue
		}
		if _, ok := existing[role]; ok {
			continue
		}
		current.SetSignature(role, certificate.Signature{
			Method:       certificate.InferMethod(value),
			Payload:      value,
			SignedAtISO:  at,
			SignedByName: by,
		}, ref)
	}

	out[certificate.KeySignatures] = current[certificate.KeySignatures]
	return out
}

func normalizeMethod(sig certificate.Signature) certificate.Signature {
	switch sig.Method {
	case certificate.SignatureDrawn, certificate.SignatureTyped, certificate.SignaturePreset:
	default:
		sig.Method = certificate.InferMethod(sig.Payload)
	}
	return sig
}

type rename struct{ from, to string }

// Earlier spellings come first so they lose to the current name.
var supplyFields = []rename{
	{"earthing", "earthingArrangement"},
	{"earthingArrangement", "earthingArrangement"},
	{"ze", "ze"},
	{"pfc", "pfc"},
}

// MigrateSupply folds the flat supply readings into the supply section.
func MigrateSupply(p certificate.Payload) certificate.Payload {
	out := p.Clone()
	if out == nil {
		out = certificate.Payload{}
	}
	_, hasSection := out["supply"]
	supply, ok := certificate.AsMap(out["supply"])
	if !ok {
		supply = map[string]any{}
	}
	moved := false
	for _, f := range supplyFields {
		v, exists := out[f.from]
		if !exists || !isScalar(v) {
			continue
		}
		delete(out, f.from)
		moved = true
		if s := scalarString(v); s != "" {
			supply[f.to] = s
		}
	}
	if hasSection || moved {
		for _, f := range supplyFields {
			supply[f.to] = scalarString(supply[f.to])
		}
		out["supply"] = supply
	}
	return out
}

var circuitDefaults = []string{
	"circuitNumber", "description", "typeOfWiring", "referenceMethod",
	"points", "liveCsa", "cpcCsa", "ocpdType", "ocpdRating", "rcdRating", "remarks",
}

var circuitFlags = []string{"polarity", "rcdTestButton", "afddTestButton"}

var testResultFields = []rename{
	{"r1r2", "r1PlusR2"},
	{"r1PlusR2", "r1PlusR2"},
	{"r2", "r2"},
	{"zs", "zs"},
	{"irLiveEarth", "irLiveEarth"},
	{"irLiveLive", "irLiveLive"},
	{"rcdTime", "rcdDisconnectionTime"},
}

// MigrateCircuits rewrites the circuit schedule: pass/fail booleans become
// "pass"/"fail", flat readings move under testResults and every expected
// field exists.
func MigrateCircuits(p certificate.Payload) certificate.Payload {
	out := p.Clone()
	if out == nil {
		out = certificate.Payload{}
	}
	raw, exists := out["circuits"]
	if !exists {
		return out
	}
	list, _ := raw.([]any)
	circuits := make([]any, 0, len(list))
	for _, item := range list {
		c, ok := certificate.AsMap(item)
		if !ok {
			continue
		}
		circuits = append(circuits, migrateCircuit(c))
	}
	out["circuits"] = circuits
	return out
}

func migrateCircuit(c map[string]any) map[string]any {
	for _, k := range circuitDefaults {
		c[k] = scalarString(c[k])
	}
	for _, k := range circuitFlags {
		c[k] = passFail(c[k])
	}

	results, ok := certificate.AsMap(c["testResults"])
	if !ok {
		results = map[string]any{}
	}
	for _, f := range testResultFields {
		v, exists := c[f.from]
		if !exists || !isScalar(v) {
			continue
		}
		delete(c, f.from)
		if s := scalarString(v); s != "" {
			results[f.to] = s
		}
	}
	for _, f := range testResultFields {
		results[f.to] = scalarString(results[f.to])
	}
	c["testResults"] = results
	return c
}

// MigrateObservations turns the free-text observations field into a list and
// defaults every entry.
func MigrateObservations(p certificate.Payload) certificate.Payload {
	out := p.Clone()
	if out == nil {
		out = certificate.Payload{}
	}
	raw, exists := out["observations"]
	if !exists {
		return out
	}
	var list []any
	switch t := raw.(type) {
	case string:
		if t != "" {
			list = []any{map[string]any{"description": t}}
		}
	case []any:
		list = t
	}

	observations := make([]any, 0, len(list))
	for i, item := range list {
		var o map[string]any
		switch t := item.(type) {
		case string:
			o = map[string]any{"description": t}
		default:
			m, ok := certificate.AsMap(t)
			if !ok {
				continue
			}
			o = m
		}
		n := scalarString(o["itemNumber"])
		if n == "" {
			n = strconv.Itoa(i + 1)
		}
		o["itemNumber"] = n
		for _, k := range []string{"code", "description", "location"} {
			o[k] = scalarString(o[k])
		}
		observations = append(observations, o)
	}
	out["observations"] = observations
	return out
}

func isScalar(v any) bool {
	switch v.(type) {
	case nil, string, float64, int, bool:
		return true
	}
	return false
}

// scalarString renders legacy scalars (numbers, bools, nil) as form strings.
func scalarString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int:
		return strconv.Itoa(t)
	case bool:
		return passFail(t)
	default:
		return ""
	}
}

func passFail(v any) string {
	switch t := v.(type) {
	case bool:
		if t {
			return "pass"
		}
		return "fail"
	case string:
		return t
	default:
		return ""
	}
}

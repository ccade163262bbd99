package certificate

import (
	"fmt"
	"strings"
)

// Payload is the nested, type-specific certificate body as it travels between
// the form layer and the store. Values are JSON-compatible: strings, bools,
// float64, []any and map[string]any.
type Payload map[string]any

// Keys mirrored onto the record for listing.
const (
	KeyClientName          = "clientName"
	KeyInstallationAddress = "installationAddress"
	KeyCertificateNumber   = "certificateNumber"
	KeySignatures          = "_signatures"
)

// Clone returns a deep copy. Nested maps of either Payload or map[string]any
// come back as map[string]any.
func (p Payload) Clone() Payload {
	if p == nil {
		return nil
	}
	out := make(Payload, len(p))
	for k, v := range p {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case Payload:
		return map[string]any(t.Clone())
	case map[string]any:
		return map[string]any(Payload(t).Clone())
	case []any:
		out := make([]any, len(t))
		for i := range t {
			out[i] = cloneValue(t[i])
		}
		return out
	case []string:
		out := make([]any, len(t))
		for i := range t {
			out[i] = t[i]
		}
		return out
	case []map[string]any:
		out := make([]any, len(t))
		for i := range t {
			out[i] = map[string]any(Payload(t[i]).Clone())
		}
		return out
	default:
		return v
	}
}

// String returns the top-level string at key, or "" when absent or not a string.
func (p Payload) String(key string) string {
	s, _ := p[key].(string)
	return s
}

// Get resolves a dotted path such as "supply.ze".
func (p Payload) Get(path string) (any, bool) {
	parts := strings.Split(path, ".")
	var cur any = map[string]any(p)
	for _, part := range parts {
		m, ok := AsMap(cur)
		if !ok {
			return nil, false
		}
		cur, ok = m[part]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

// Set writes value at a dotted path, creating intermediate maps. It fails when
// an intermediate segment already holds a non-map value.
func (p Payload) Set(path string, value any) error {
	if path == "" {
		return fmt.Errorf("%w: empty field path", ErrInvalidData)
	}
	parts := strings.Split(path, ".")
	cur := map[string]any(p)
	for i, part := range parts[:len(parts)-1] {
		next, exists := cur[part]
		if !exists || next == nil {
			m := map[string]any{}
			cur[part] = m
			cur = m
			continue
		}
		m, ok := AsMap(next)
		if !ok {
			return fmt.Errorf("%w: %s is not an object", ErrInvalidData, strings.Join(parts[:i+1], "."))
		}
		cur[part] = m
		cur = m
	}
	cur[parts[len(parts)-1]] = value
	return nil
}

// AsMap accepts both map flavours found in decoded payloads.
func AsMap(v any) (map[string]any, bool) {
	switch t := v.(type) {
	case map[string]any:
		return t, true
	case Payload:
		return map[string]any(t), true
	default:
		return nil, false
	}
}

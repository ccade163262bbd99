package certificate

import (
	"embed"
	"fmt"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

//go:embed templates/*.yaml
var templateFS embed.FS

var (
	templatesOnce sync.Once
	templates     map[Type]Payload
	templatesErr  error
)

func loadTemplates() {
	templates = make(map[Type]Payload, len(Types))
	for _, t := range Types {
		name := "templates/" + strings.ToLower(t.String()) + ".yaml"
		raw, err := templateFS.ReadFile(name)
		if err != nil {
			templatesErr = fmt.Errorf("read template %s: %w", name, err)
			return
		}
		var p map[string]any
		if err := yaml.Unmarshal(raw, &p); err != nil {
			templatesErr = fmt.Errorf("parse template %s: %w", name, err)
			return
		}
		templates[t] = normalize(Payload(p))
	}
}

// NewPayload returns a defaulted payload for a new certificate of the given type.
func NewPayload(t Type) (Payload, error) {
	if err := t.Validate(); err != nil {
		return nil, err
	}
	templatesOnce.Do(loadTemplates)
	if templatesErr != nil {
		return nil, templatesErr
	}
	return templates[t].Clone(), nil
}

// normalize turns YAML scalars into their JSON equivalents so a template looks
// exactly like a payload that went through the store.
func normalize(p Payload) Payload {
	for k, v := range p {
		p[k] = normalizeValue(v)
	}
	if _, ok := p[KeySignatures]; !ok {
		p[KeySignatures] = map[string]any{}
	}
	return p
}

func normalizeValue(v any) any {
	switch t := v.(type) {
	case nil:
		return ""
	case int:
		return float64(t)
	case map[string]any:
		for k, inner := range t {
			t[k] = normalizeValue(inner)
		}
		return t
	case []any:
		for i := range t {
			t[i] = normalizeValue(t[i])
		}
		return t
	default:
		return v
	}
}

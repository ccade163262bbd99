package certificate

import (
	"fmt"

	"github.com/danielgtaylor/huma/v2"
)

// Status is the lifecycle state of a certificate. It only ever moves forward.
type Status string

const (
	StatusDraft      Status = "draft"
	StatusInProgress Status = "in_progress"
	StatusComplete   Status = "complete"
	StatusIssued     Status = "issued"
)

var statusRank = map[Status]int{
	StatusDraft:      0,
	StatusInProgress: 1,
	StatusComplete:   2,
	StatusIssued:     3,
}

func (Status) Schema(_ huma.Registry) *huma.Schema {
	return &huma.Schema{
		Type: huma.TypeString,
		Enum: []any{
			string(StatusDraft),
			string(StatusInProgress),
			string(StatusComplete),
			string(StatusIssued),
		},
		Description: "Certificate lifecycle status",
		Examples:    []any{StatusDraft},
	}
}

// Validate rejects unknown values.
func (s Status) Validate() error {
	if _, ok := statusRank[s]; !ok {
		return fmt.Errorf("%w: unknown status %q", ErrInvalidData, string(s))
	}
	return nil
}

func (s Status) String() string {
	return string(s)
}

// Editable reports whether autosave may still write to a record in this status.
func (s Status) Editable() bool {
	return s == StatusDraft || s == StatusInProgress
}

// CanTransitionTo allows forward moves (skipping is fine) and the no-op move.
func (s Status) CanTransitionTo(next Status) error {
	from, ok := statusRank[s]
	if !ok {
		return fmt.Errorf("%w: unknown status %q", ErrInvalidTransition, string(s))
	}
	to, ok := statusRank[next]
	if !ok {
		return fmt.Errorf("%w: unknown status %q", ErrInvalidTransition, string(next))
	}
	if to < from {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, s, next)
	}
	return nil
}

func ParseStatus(s string) (Status, error) {
	st := Status(s)
	if err := st.Validate(); err != nil {
		return "", err
	}
	return st, nil
}

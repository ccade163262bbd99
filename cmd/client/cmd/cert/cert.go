package cert

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"certkeeper/internal/app/client"
)

// NewCmd is the parent of every certificate command.
func NewCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cert",
		Short: "Manage certificates",
		Long:  `Create, edit, sign, list and finalize certificates.`,
	}
	cmd.AddCommand(
		newCreateCmd(),
		newListCmd(),
		newGetCmd(),
		newEditCmd(),
		newStatusCmd(),
		newSignCmd(),
		newDeleteCmd(),
		newMigrateCmd(),
	)
	return cmd
}

type assignment struct {
	path  string
	value any
}

// parseAssignments reads path=value pairs. Values that parse as JSON keep
// their JSON type; anything else is a string.
func parseAssignments(raw []string) ([]assignment, error) {
	out := make([]assignment, 0, len(raw))
	for _, r := range raw {
		path, value, ok := strings.Cut(r, "=")
		path = strings.TrimSpace(path)
		if !ok || path == "" {
			return nil, fmt.Errorf("expected path=value, got %q", r)
		}
		out = append(out, assignment{path: path, value: parseValue(value)})
	}
	return out, nil
}

func parseValue(s string) any {
	var v any
	if err := json.Unmarshal([]byte(s), &v); err == nil {
		return v
	}
	return s
}

func apply(s *client.Session, assignments []assignment) error {
	for _, a := range assignments {
		if err := s.Set(a.path, a.value); err != nil {
			return fmt.Errorf("set %s: %w", a.path, err)
		}
	}
	return nil
}

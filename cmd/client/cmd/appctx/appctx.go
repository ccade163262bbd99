// Package appctx carries the client application and output settings from the
// root command to its subcommands.
package appctx

import (
	"context"
	"encoding/json"
	"errors"
	"io"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"certkeeper/internal/app/client"
	"certkeeper/internal/autosave"
	"certkeeper/internal/domain/certificate"
)

type Env struct {
	App  *client.App
	JSON bool
}

type key struct{}

func With(ctx context.Context, env *Env) context.Context {
	return context.WithValue(ctx, key{}, env)
}

// From returns the Env installed by the root command.
func From(cmd *cobra.Command) (*Env, error) {
	env, ok := cmd.Context().Value(key{}).(*Env)
	if !ok || env == nil || env.App == nil {
		return nil, errors.New("application is not initialized")
	}
	return env, nil
}

func PrintJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// Status colours a lifecycle status for terminal output.
func Status(s certificate.Status) string {
	switch s {
	case certificate.StatusDraft:
		return color.YellowString(s.String())
	case certificate.StatusInProgress:
		return color.CyanString(s.String())
	case certificate.StatusComplete:
		return color.BlueString(s.String())
	case certificate.StatusIssued:
		return color.GreenString(s.String())
	default:
		return s.String()
	}
}

// Autosave colours an autosave status.
func Autosave(s autosave.Status) string {
	switch s {
	case autosave.StatusSaved, autosave.StatusIdle:
		return color.GreenString(string(s))
	case autosave.StatusOffline:
		return color.YellowString(string(s))
	case autosave.StatusError:
		return color.RedString(string(s))
	default:
		return string(s)
	}
}

package cmd

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"golang.org/x/exp/slog"
	"golang.org/x/term"

	"certkeeper/cmd/client/cmd/appctx"
	"certkeeper/cmd/client/cmd/cert"
	"certkeeper/cmd/client/cmd/queue"
	"certkeeper/internal/app/client"
	"certkeeper/internal/app/client/config"
	"certkeeper/internal/utils/logger"
)

type rootOptions struct {
	cfgFile    string
	storage    string
	serverAddr string
	offline    bool
	jsonOutput bool
	debug      bool

	app *client.App
}

// NewRootCmd builds the certkeeper command tree.
func NewRootCmd() *cobra.Command {
	root, _ := newRootCmd()
	return root
}

func newRootCmd() (*cobra.Command, *rootOptions) {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:   "certkeeper",
		Short: "certkeeper - electrical certificate drafts with autosave",
		Long: `certkeeper edits electrical installation certificates (EIC, EICR, MWC,
fire alarm and emergency lighting) and keeps every edit in a local store.

With the remote driver, edits made after the server stops answering are
queued and replayed once it answers again; the server must be reachable at
start. --offline queues every save to a local store until a later online run
flushes it. Complete and issued certificates are never modified.`,
		PersistentPreRunE:  opts.setup,
		PersistentPostRunE: opts.teardown,
		SilenceUsage:       true,
		SilenceErrors:      true,
	}

	flags := root.PersistentFlags()
	flags.StringVar(&opts.cfgFile, "config", "", "env file with client settings")
	flags.StringVar(&opts.storage, "storage", "", "storage driver: sqlite, badger, memory or remote")
	flags.StringVar(&opts.serverAddr, "server", "", "server address for the remote driver")
	flags.BoolVar(&opts.offline, "offline", false, "start offline and queue every save (local drivers only)")
	flags.BoolVar(&opts.jsonOutput, "json", false, "print JSON")
	flags.BoolVar(&opts.debug, "debug", false, "log to stderr")

	root.AddCommand(cert.NewCmd(), queue.NewCmd())
	return root, opts
}

func Execute() {
	root, opts := newRootCmd()
	err := root.Execute()
	// PersistentPostRunE is skipped when a command fails.
	if cerr := opts.teardown(root, nil); err == nil {
		err = cerr
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func (o *rootOptions) setup(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(o.cfgFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if o.storage != "" {
		cfg.StorageDriver = o.storage
	}
	if o.serverAddr != "" {
		cfg.ServerAddress = o.serverAddr
	}
	if o.offline {
		cfg.Offline = true
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	if err := cfg.EnsureDirs(); err != nil {
		return err
	}

	if !term.IsTerminal(int(os.Stdout.Fd())) {
		color.NoColor = true
	}

	var log *slog.Logger
	if o.debug {
		log = logger.New(cfg.Env)
	} else {
		log = logger.Discard()
	}

	o.app, err = client.New(cmd.Context(), cfg, log)
	if err != nil {
		return fmt.Errorf("start client: %w", err)
	}
	o.app.Start()

	cmd.SetContext(appctx.With(cmd.Context(), &appctx.Env{
		App:  o.app,
		JSON: o.jsonOutput,
	}))
	return nil
}

func (o *rootOptions) teardown(_ *cobra.Command, _ []string) error {
	if o.app == nil {
		return nil
	}
	app := o.app
	o.app = nil
	return app.Close()
}

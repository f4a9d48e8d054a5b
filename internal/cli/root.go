// Package cli implements the lineagectl command tree.
package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"lineagecore/internal/blob"
	"lineagecore/internal/core"
)

// RootOptions holds global flags and the dependencies commands share.
type RootOptions struct {
	LogLevel string
	Strict   bool

	logger *slog.Logger
}

// NewRootCommand creates the lineagectl root command.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "lineagectl",
		Short: "Record and query provenance of lab artifacts",
		Long: `lineagectl records protocol runs and answers lineage queries.

Storage and blob backends are selected through LINEAGECORE_* environment
variables (see LINEAGECORE_STORAGE_DRIVER and LINEAGECORE_BLOB_DRIVER).`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			var level slog.Level
			if err := level.UnmarshalText([]byte(opts.LogLevel)); err != nil {
				return NewExitError(ExitCommandError, fmt.Sprintf("invalid log level %q", opts.LogLevel))
			}
			opts.logger = slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&opts.LogLevel, "log-level", "warn", "log level (debug|info|warn|error)")
	cmd.PersistentFlags().BoolVar(&opts.Strict, "strict", false, "block writes that would orphan artifacts")

	cmd.AddCommand(NewTypeCommand(opts))
	cmd.AddCommand(NewArtifactCommand(opts))
	cmd.AddCommand(NewProtocolCommand(opts))
	cmd.AddCommand(NewRunCommand(opts))
	cmd.AddCommand(NewClosureCommand(opts))
	cmd.AddCommand(NewLookupCommand(opts))
	cmd.AddCommand(NewArchiveCommand(opts))
	cmd.AddCommand(NewIndexCommand(opts))

	return cmd
}

// session is one command's view of the configured backends.
type session struct {
	svc   *core.Service
	store core.PersistentStore
}

func (o *RootOptions) engine() *core.RulesEngine {
	if o.Strict {
		return core.NewStrictRulesEngine()
	}
	return core.NewDefaultRulesEngine()
}

// open builds a service over the store chosen by the environment. The
// returned close func releases the store.
func (o *RootOptions) open() (*session, func(), error) {
	cfg, err := core.ConfigFromEnv()
	if err != nil {
		return nil, nil, NewExitError(ExitCommandError, err.Error())
	}
	store, err := core.OpenPersistentStore(o.engine())
	if err != nil {
		return nil, nil, WrapExitError(ExitCommandError, "open store", err)
	}
	logger := o.logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	svc := core.NewService(store, core.WithConfig(cfg), core.WithLogger(logger))
	closeFn := func() {
		if c, ok := store.(io.Closer); ok {
			if err := c.Close(); err != nil {
				logger.Warn("close store", "error", err)
			}
		}
	}
	return &session{svc: svc, store: store}, closeFn, nil
}

func (o *RootOptions) openBlobs(ctx context.Context) (blob.Store, error) {
	store, err := blob.Open(ctx)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "open blob store", err)
	}
	return store, nil
}

// withSession runs fn against a freshly opened session.
func (o *RootOptions) withSession(fn func(*session) error) error {
	s, closeFn, err := o.open()
	if err != nil {
		return err
	}
	defer closeFn()
	return fn(s)
}

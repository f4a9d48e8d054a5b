package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"lineagecore/internal/adapters/archive"
)

// NewArchiveCommand creates the archive command group.
func NewArchiveCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{Use: "archive", Short: "Export and import runs through blob storage"}

	var timeout time.Duration
	export := &cobra.Command{
		Use:   "export <run-id>...",
		Short: "Export runs as JSON bundles",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			blobs, err := opts.openBlobs(cmd.Context())
			if err != nil {
				return err
			}
			return opts.withSession(func(s *session) error {
				worker := archive.NewWorker(archive.NewExporter(s.store, blobs), opts.logger)
				worker.Start()
				defer func() { _ = worker.Stop(context.Background()) }()

				ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
				defer cancel()
				queued := make([]archive.ExportRecord, 0, len(args))
				for _, runID := range args {
					rec, err := worker.EnqueueExport(ctx, runID)
					if err != nil {
						return err
					}
					queued = append(queued, rec)
				}
				records := make([]archive.ExportRecord, 0, len(queued))
				failed := 0
				for _, rec := range queued {
					done, err := worker.Wait(ctx, rec.ID)
					if err != nil {
						return err
					}
					if done.Status == archive.ExportStatusFailed {
						failed++
					}
					records = append(records, done)
				}
				if err := writeJSON(cmd.OutOrStdout(), records); err != nil {
					return err
				}
				if failed > 0 {
					return NewExitError(ExitFailure, fmt.Sprintf("%d of %d exports failed", failed, len(records)))
				}
				return nil
			})
		},
	}
	export.Flags().DurationVar(&timeout, "timeout", 5*time.Minute, "give up waiting after this long")

	imp := &cobra.Command{
		Use:   "import <key>",
		Short: "Replay an exported run bundle",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			blobs, err := opts.openBlobs(cmd.Context())
			if err != nil {
				return err
			}
			return opts.withSession(func(s *session) error {
				run, res, err := archive.NewImporter(s.svc, blobs).ImportRun(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				return writeJSON(cmd.OutOrStdout(), map[string]any{"run": run, "violations": violations(res)})
			})
		},
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List exported run bundles",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			blobs, err := opts.openBlobs(cmd.Context())
			if err != nil {
				return err
			}
			infos, err := blobs.List(cmd.Context(), "runs/")
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), infos)
		},
	}
	cmd.AddCommand(export, imp, list)
	return cmd
}

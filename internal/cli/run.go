package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"lineagecore/internal/core"
)

// parseInput reads role=artifact or role=artifact@action.
func parseInput(s string) (core.SuppliedInput, error) {
	role, rest, ok := strings.Cut(s, "=")
	if !ok || role == "" || rest == "" {
		return core.SuppliedInput{}, NewExitError(ExitCommandError, fmt.Sprintf("invalid --input %q: want role=artifact[@action]", s))
	}
	artifact, action, _ := strings.Cut(rest, "@")
	return core.SuppliedInput{ArtifactID: artifact, Role: role, ActionID: action}, nil
}

// parseOutput reads action=id or action=id:role. The id may be empty to let
// the service mint one.
func parseOutput(s string) (string, core.ArtifactDraft, error) {
	action, rest, ok := strings.Cut(s, "=")
	if !ok || action == "" {
		return "", core.ArtifactDraft{}, NewExitError(ExitCommandError, fmt.Sprintf("invalid --output %q: want action=[id][:role]", s))
	}
	id, role, _ := strings.Cut(rest, ":")
	return action, core.ArtifactDraft{ID: id, Name: id, Role: role}, nil
}

// NewRunCommand creates the run command group.
func NewRunCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{Use: "run", Short: "Record and inspect protocol runs"}

	var (
		id, name, scope, user string
		inputs, outputs       []string
	)
	instantiate := &cobra.Command{
		Use:   "instantiate <protocol-id>",
		Short: "Record a run of a protocol",
		Long: `Record a run of a protocol.

Inputs bind existing artifacts to roles (--input Source=blood-1, or
--input Aliquot=plasma-1@assay to target one action). Outputs declare the
artifacts each action produces (--output split=plasma-1, or
--output split=plasma-1:Aliquot when the action has several output roles).`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req := core.RunRequest{ID: id, Name: name, ProtocolID: args[0], ScopeID: scope, User: user, Outputs: map[string][]core.ArtifactDraft{}}
			for _, in := range inputs {
				supplied, err := parseInput(in)
				if err != nil {
					return err
				}
				req.Inputs = append(req.Inputs, supplied)
			}
			for _, out := range outputs {
				action, draft, err := parseOutput(out)
				if err != nil {
					return err
				}
				req.Outputs[action] = append(req.Outputs[action], draft)
			}
			return opts.withSession(func(s *session) error {
				outcome, res, err := s.svc.InstantiateRun(cmd.Context(), req)
				if err != nil {
					return err
				}
				created := make([]string, 0, len(outcome.Created))
				for _, a := range outcome.Created {
					created = append(created, a.ID)
				}
				return writeJSON(cmd.OutOrStdout(), map[string]any{
					"run":          outcome.Run,
					"applications": outcome.Applications,
					"created":      created,
					"edges":        len(outcome.Edges),
					"violations":   violations(res),
				})
			})
		},
	}
	instantiate.Flags().StringVar(&id, "id", "", "run id (generated when empty)")
	instantiate.Flags().StringVar(&name, "name", "", "run name")
	instantiate.Flags().StringVar(&scope, "scope", "", "owning scope")
	instantiate.Flags().StringVar(&user, "user", "", "user recording the run")
	instantiate.Flags().StringArrayVar(&inputs, "input", nil, "role=artifact[@action], repeatable")
	instantiate.Flags().StringArrayVar(&outputs, "output", nil, "action=[id][:role], repeatable")

	show := &cobra.Command{
		Use:   "show <id>",
		Short: "Print a run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withSession(func(s *session) error {
				run, err := s.svc.GetRun(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				return writeJSON(cmd.OutOrStdout(), run)
			})
		},
	}

	del := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a run with its applications and edges",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withSession(func(s *session) error {
				res, err := s.svc.DeleteRun(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				return writeJSON(cmd.OutOrStdout(), map[string]any{"deleted": args[0], "violations": violations(res)})
			})
		},
	}
	cmd.AddCommand(instantiate, show, del)
	return cmd
}

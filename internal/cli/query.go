package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"lineagecore/internal/core"
)

func parseDirection(s string) (core.Direction, error) {
	d := core.Direction(s)
	if !d.Valid() {
		return "", NewExitError(ExitCommandError, fmt.Sprintf("invalid direction %q: must be ancestors or descendants", s))
	}
	return d, nil
}

// NewClosureCommand creates the closure command.
func NewClosureCommand(opts *RootOptions) *cobra.Command {
	var target, direction, role string
	var maxDepth int
	cmd := &cobra.Command{
		Use:   "closure <artifact-id>",
		Short: "List every artifact of a type reachable from an artifact",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ref, err := parseTarget(target)
			if err != nil {
				return err
			}
			dir, err := parseDirection(direction)
			if err != nil {
				return err
			}
			return opts.withSession(func(s *session) error {
				res, err := s.svc.Closure(cmd.Context(), core.ClosureQuery{Root: args[0], Target: ref, Direction: dir, MaxDepth: maxDepth, Role: role})
				if err != nil {
					return err
				}
				return writeJSON(cmd.OutOrStdout(), map[string]any{"matches": res.Matches, "count": res.Count, "depth": res.Depth})
			})
		},
	}
	cmd.Flags().StringVar(&target, "target", string(core.KindMaterial), "Kind or Kind:type of the artifacts to collect")
	cmd.Flags().StringVar(&direction, "direction", string(core.Ancestors), "ancestors or descendants")
	cmd.Flags().IntVar(&maxDepth, "max-depth", 0, "generations to walk (0 uses LINEAGECORE_CLOSURE_MAX_DEPTH)")
	cmd.Flags().StringVar(&role, "role", "", "only follow edges carrying this role")
	return cmd
}

// NewLookupCommand creates the lookup command. Several --target flags walk
// a path of types, each hop starting from the previous hop's single match.
func NewLookupCommand(opts *RootOptions) *cobra.Command {
	var targets []string
	var direction string
	cmd := &cobra.Command{
		Use:   "lookup <artifact-id>",
		Short: "Resolve the single artifact of a type reachable from an artifact",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(targets) == 0 {
				return NewExitError(ExitCommandError, "at least one --target required")
			}
			hops := make([]core.TypeRef, 0, len(targets))
			for _, t := range targets {
				ref, err := parseTarget(t)
				if err != nil {
					return err
				}
				hops = append(hops, ref)
			}
			dir, err := parseDirection(direction)
			if err != nil {
				return err
			}
			return opts.withSession(func(s *session) error {
				var l core.Lookup
				var err error
				if len(hops) == 1 {
					l, err = s.svc.ScalarLookup(cmd.Context(), args[0], hops[0], dir)
				} else {
					l, err = s.svc.LookupPath(cmd.Context(), args[0], dir, hops...)
				}
				if err != nil {
					return err
				}
				return writeJSON(cmd.OutOrStdout(), map[string]any{
					"kind":     l.Kind.String(),
					"id":       l.ID,
					"count":    l.Count,
					"sentinel": l.Sentinel(),
				})
			})
		},
	}
	cmd.Flags().StringArrayVar(&targets, "target", nil, "Kind:type to resolve, repeatable for a path")
	cmd.Flags().StringVar(&direction, "direction", string(core.Ancestors), "ancestors or descendants")
	return cmd
}

package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"lineagecore/internal/protocoldef"
	"lineagecore/pkg/domain"
)

func parseKind(s string) (domain.ArtifactKind, error) {
	for _, k := range []domain.ArtifactKind{domain.KindMaterial, domain.KindData} {
		if strings.EqualFold(s, string(k)) {
			return k, nil
		}
	}
	return "", NewExitError(ExitCommandError, fmt.Sprintf("invalid kind %q: must be Material or Data", s))
}

// parseTarget reads "Kind" or "Kind:type".
func parseTarget(s string) (domain.TypeRef, error) {
	kind, typeID, _ := strings.Cut(s, ":")
	k, err := parseKind(kind)
	if err != nil {
		return domain.TypeRef{}, err
	}
	return domain.TypeRef{Kind: k, TypeID: typeID}, nil
}

// NewTypeCommand creates the type command group.
func NewTypeCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{Use: "type", Short: "Manage sample types and data classes"}

	var name, kind string
	register := &cobra.Command{
		Use:   "register <id>",
		Short: "Register an artifact type",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			k, err := parseKind(kind)
			if err != nil {
				return err
			}
			return opts.withSession(func(s *session) error {
				created, _, err := s.svc.RegisterType(cmd.Context(), domain.ArtifactType{ID: args[0], Name: name, Kind: k})
				if err != nil {
					return err
				}
				return writeJSON(cmd.OutOrStdout(), created)
			})
		},
	}
	register.Flags().StringVar(&name, "name", "", "display name")
	register.Flags().StringVar(&kind, "kind", string(domain.KindMaterial), "Material or Data")
	cmd.AddCommand(register)
	return cmd
}

// NewArtifactCommand creates the artifact command group.
func NewArtifactCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{Use: "artifact", Short: "Manage samples and data objects"}

	var name, kind, typeID, scope, user string
	create := &cobra.Command{
		Use:   "create [id]",
		Short: "Create an artifact; an LSID is minted when id is omitted",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			k, err := parseKind(kind)
			if err != nil {
				return err
			}
			a := domain.Artifact{Name: name, Kind: k, TypeID: domain.StringPtr(typeID), ScopeID: scope, CreatedBy: user}
			if len(args) == 1 {
				a.ID = args[0]
			}
			return opts.withSession(func(s *session) error {
				created, res, err := s.svc.CreateArtifact(cmd.Context(), a)
				if err != nil {
					return err
				}
				return writeJSON(cmd.OutOrStdout(), map[string]any{"artifact": created, "violations": violations(res)})
			})
		},
	}
	create.Flags().StringVar(&name, "name", "", "display name")
	create.Flags().StringVar(&kind, "kind", string(domain.KindMaterial), "Material or Data")
	create.Flags().StringVar(&typeID, "type", "", "sample type or data class id")
	create.Flags().StringVar(&scope, "scope", "", "owning scope")
	create.Flags().StringVar(&user, "user", "", "creating user")

	show := &cobra.Command{
		Use:   "show <id>",
		Short: "Print an artifact",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withSession(func(s *session) error {
				a, err := s.svc.GetArtifact(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				return writeJSON(cmd.OutOrStdout(), a)
			})
		},
	}
	cmd.AddCommand(create, show)
	return cmd
}

// NewProtocolCommand creates the protocol command group.
func NewProtocolCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{Use: "protocol", Short: "Manage protocol graphs"}

	load := &cobra.Command{
		Use:   "load <file>",
		Short: "Create the protocols defined in a YAML file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			graphs, err := protocoldef.LoadFile(args[0])
			if err != nil {
				return WrapExitError(ExitCommandError, "load definitions", err)
			}
			return opts.withSession(func(s *session) error {
				ids := make([]string, 0, len(graphs))
				for _, g := range graphs {
					created, _, err := s.svc.CreateProtocol(cmd.Context(), g)
					if err != nil {
						return fmt.Errorf("protocol %s: %w", g.ID, err)
					}
					ids = append(ids, created.ID)
				}
				return writeJSON(cmd.OutOrStdout(), map[string]any{"created": ids})
			})
		},
	}

	show := &cobra.Command{
		Use:   "show <id>",
		Short: "Print a protocol graph",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withSession(func(s *session) error {
				p, err := s.svc.GetProtocol(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				return writeJSON(cmd.OutOrStdout(), p)
			})
		},
	}

	del := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a protocol no run references",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withSession(func(s *session) error {
				res, err := s.svc.DeleteProtocol(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				return writeJSON(cmd.OutOrStdout(), map[string]any{"deleted": args[0], "violations": violations(res)})
			})
		},
	}
	cmd.AddCommand(load, show, del)
	return cmd
}

// NewIndexCommand creates the ancestor index command group.
func NewIndexCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{Use: "index", Short: "Maintain the ancestor index"}
	var show []string
	rebuild := &cobra.Command{
		Use:   "rebuild",
		Short: "Recompute every cached ancestor lookup",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return opts.withSession(func(s *session) error {
				if err := s.svc.RebuildAncestorIndex(cmd.Context()); err != nil {
					return err
				}
				out := map[string]any{"entries": 0}
				idx := s.svc.AncestorIndex()
				if idx == nil {
					return writeJSON(cmd.OutOrStdout(), out)
				}
				out["entries"] = idx.Len()
				if len(show) > 0 {
					shown := map[string][]map[string]any{}
					for _, id := range show {
						rows := []map[string]any{}
						for _, e := range idx.Entries(id) {
							rows = append(rows, map[string]any{
								"direction": e.Direction,
								"target":    e.Target.Key(),
								"kind":      e.Lookup.Kind.String(),
								"id":        e.Lookup.ID,
								"sentinel":  e.Lookup.Sentinel(),
							})
						}
						shown[id] = rows
					}
					out["artifacts"] = shown
				}
				return writeJSON(cmd.OutOrStdout(), out)
			})
		},
	}
	rebuild.Flags().StringArrayVar(&show, "show", nil, "print the rebuilt lookups of this artifact, repeatable")
	cmd.AddCommand(rebuild)
	return cmd
}

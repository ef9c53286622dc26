package main

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kingrea/archspec/internal/config"
	"github.com/kingrea/archspec/internal/report"
	"github.com/kingrea/archspec/internal/spec"
)

func newInitCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Create .archspec/ with a commented config.yaml",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := config.InitArchspecDir(c.workspace); err != nil {
				return fmt.Errorf("init: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "initialized %s\n", c.cfg.ArchspecProjectDir)
			return nil
		},
	}
}

func newListCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List registered architecture specs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			reg, err := c.registry(cmd.Context())
			if err != nil {
				return err
			}
			specs := reg.Specs()
			if c.jsonOut {
				type entry struct {
					ID     string   `json:"id"`
					Name   string   `json:"name"`
					Layers []string `json:"layers"`
				}
				out := make([]entry, 0, len(specs))
				for _, s := range specs {
					out = append(out, entry{ID: s.ID, Name: s.Name, Layers: s.Base.Layers})
				}
				return report.WriteJSON(cmd.OutOrStdout(), out)
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tNAME\tLAYERS")
			for _, s := range specs {
				fmt.Fprintf(tw, "%s\t%s\t%s\n", s.ID, s.Name, strings.Join(s.Base.Layers, " → "))
			}
			if names := c.cfg.ComponentNames(); len(names) > 0 {
				fmt.Fprintln(tw)
				fmt.Fprintln(tw, "COMPONENT\tARCHITECTURE\t")
				for _, name := range names {
					comp, _ := c.cfg.Component(name)
					fmt.Fprintf(tw, "%s\t%s\t\n", name, comp.Architecture)
				}
			}
			return tw.Flush()
		},
	}
}

func newShowCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "show <spec|component>",
		Short: "Describe an architecture spec",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := c.resolveTarget(cmd.Context(), args[0], nil)
			if err != nil {
				return err
			}
			if c.jsonOut {
				return report.WriteJSON(cmd.OutOrStdout(), t.spec)
			}
			_, err = fmt.Fprint(cmd.OutOrStdout(), report.SpecDetail(t.spec))
			return err
		},
	}
}

func newOptionCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "option <spec|component> [key=value...]",
		Short: "Validate option choices and print the effective options",
		Long: `Validates each key=value against the spec's option choices and prints
the effective option set, defaults filled in.

Example:
  archspec option controller-service-repository servicePattern=functional`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			overrides, err := parsePairs(args[1:])
			if err != nil {
				return err
			}
			t, err := c.resolveTarget(cmd.Context(), args[0], overrides)
			if err != nil {
				return err
			}
			if c.jsonOut {
				return report.WriteJSON(cmd.OutOrStdout(), t.options)
			}
			keys := make([]string, 0, len(t.options))
			for k := range t.options {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			for _, k := range keys {
				fmt.Fprintf(cmd.OutOrStdout(), "%s=%s\n", k, t.options[k])
			}
			return nil
		},
	}
}

type validation struct {
	File     string   `json:"file"`
	ID       string   `json:"id,omitempty"`
	Problems []string `json:"problems,omitempty"`
}

func newValidateCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "validate <file...>",
		Short: "Check spec files for structural problems",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var out []validation
			failed := false
			for _, file := range args {
				specs, err := readSpecs(c.path(file))
				if err != nil {
					out = append(out, validation{File: file, Problems: []string{err.Error()}})
					failed = true
					continue
				}
				for _, s := range specs {
					v := validation{File: file, ID: s.ID}
					if err := s.Validate(c.validateOptions()...); err != nil {
						failed = true
						var verr *spec.ValidationError
						if errors.As(err, &verr) {
							v.Problems = verr.Problems
						} else {
							v.Problems = []string{err.Error()}
						}
					}
					out = append(out, v)
				}
			}
			if c.jsonOut {
				if err := report.WriteJSON(cmd.OutOrStdout(), out); err != nil {
					return err
				}
			} else {
				for _, v := range out {
					if len(v.Problems) == 0 {
						fmt.Fprintf(cmd.OutOrStdout(), "ok      %s (%s)\n", v.File, v.ID)
						continue
					}
					fmt.Fprintf(cmd.OutOrStdout(), "invalid %s (%s)\n", v.File, v.ID)
					for _, p := range v.Problems {
						fmt.Fprintf(cmd.OutOrStdout(), "  - %s\n", p)
					}
				}
			}
			if failed {
				return errCheckFailed
			}
			return nil
		},
	}
}

func newImportCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "import <file...>",
		Short: "Store spec files in the SQLite catalog",
		Long: `Parses and validates each file, then upserts every spec it contains
into the catalog database (catalog.database in .archspec/config.yaml).
Nothing is stored when any spec is invalid.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var pending []spec.ArchitectureSpec
			for _, file := range args {
				specs, err := readSpecs(c.path(file))
				if err != nil {
					return fmt.Errorf("import %s: %w", file, err)
				}
				for _, s := range specs {
					if err := s.Validate(c.validateOptions()...); err != nil {
						return fmt.Errorf("import %s: %w", file, err)
					}
				}
				pending = append(pending, specs...)
			}
			store, err := c.openStore(true)
			if err != nil {
				return err
			}
			for _, s := range pending {
				if err := store.Put(cmd.Context(), s); err != nil {
					return err
				}
				c.logger().Info("spec imported", zap.String("id", s.ID), zap.String("store", store.String()))
				fmt.Fprintf(cmd.OutOrStdout(), "imported %s\n", s.ID)
			}
			return nil
		},
	}
}

func newRemoveCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "remove <id...>",
		Short: "Delete specs from the SQLite catalog",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := c.openStore(false)
			if err != nil {
				return err
			}
			if store == nil {
				return fmt.Errorf("remove: no catalog database at %s", c.cfg.DatabasePath())
			}
			for _, id := range args {
				if err := store.Delete(cmd.Context(), id); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "removed %s\n", id)
			}
			return nil
		},
	}
}

func readSpecs(path string) ([]spec.ArchitectureSpec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return spec.ParseYAML(data)
}

// parsePairs parses key=value arguments.
func parsePairs(args []string) (map[string]string, error) {
	out := make(map[string]string, len(args))
	for _, arg := range args {
		key, value, ok := strings.Cut(arg, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("expected key=value, got %q", arg)
		}
		out[key] = strings.TrimSpace(value)
	}
	return out, nil
}

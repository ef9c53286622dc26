package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kingrea/archspec/internal/depcheck"
	"github.com/kingrea/archspec/internal/placeholder"
	"github.com/kingrea/archspec/internal/planner"
	"github.com/kingrea/archspec/internal/report"
	"github.com/kingrea/archspec/internal/scaffold"
)

func addBindingFlags(cmd *cobra.Command, b *bindingFlags) {
	cmd.Flags().StringVarP(&b.resource, "resource", "r", "", "Resource name bound to ResourceName, e.g. Order")
	cmd.Flags().StringToStringVar(&b.set, "set", nil, "Extra placeholder values, e.g. --set QueueName=email")
}

func newResolveCmd(c *cli) *cobra.Command {
	var b bindingFlags
	cmd := &cobra.Command{
		Use:   "resolve <template>",
		Short: "Substitute placeholders in a template string",
		Long: `Resolves {{Name}} and {name} placeholders, including derived forms such as
{{resourceNamePlural}} or {resourceNameKebab}.

Example:
  archspec resolve "/{{resourceNamePluralKebab}}" --resource OrderItem`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			text, err := placeholder.Resolve(args[0], b.binding())
			if err != nil {
				return err
			}
			if c.jsonOut {
				return report.WriteJSON(cmd.OutOrStdout(), map[string]string{"text": text})
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), text)
			return err
		},
	}
	addBindingFlags(cmd, &b)
	return cmd
}

func newRenderCmd(c *cli) *cobra.Command {
	var (
		b         bindingFlags
		options   map[string]string
		variant   string
		pattern   string
		structure string
		root      string
		write     bool
		force     bool
	)
	cmd := &cobra.Command{
		Use:   "render <spec|component> [layer]",
		Short: "Instantiate layer templates",
		Long: `Renders the template of one layer, or of every layer when none is given.
Variant and pattern default to the effective options (dataAccess or
queueBackend, and *Pattern options); a component also supplies its file
structure and naming.

Example:
  archspec render controller-service-repository --resource Order --option dataAccess=prisma --write`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := c.resolveTarget(cmd.Context(), args[0], options)
			if err != nil {
				return err
			}
			opts := scaffold.Options{
				Variant:   t.variant(),
				Pattern:   t.pattern(),
				Structure: t.structure,
				Root:      t.root,
				FileNames: t.fileNames,
			}
			if variant != "" {
				opts.Variant = variant
			}
			if pattern != "" {
				opts.Pattern = pattern
			}
			if structure != "" {
				opts.Structure = scaffold.Structure(structure)
			}
			if root != "" {
				opts.Root = root
			}
			for k, v := range t.options {
				opts.Conditions = append(opts.Conditions, k+"="+v)
			}

			var files []scaffold.File
			if len(args) == 2 {
				f, err := scaffold.Render(t.spec, args[1], b.binding(), opts)
				if err != nil {
					return err
				}
				files = []scaffold.File{f}
			} else {
				files, err = scaffold.RenderAll(t.spec, b.binding(), opts)
				if err != nil {
					return err
				}
			}

			if write {
				written, err := scaffold.Write(c.workspace, files, force)
				for _, p := range written {
					fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", p)
				}
				if err != nil {
					return err
				}
				c.logger().Info("templates written", zap.String("spec", t.spec.ID), zap.Int("files", len(written)))
				return nil
			}
			if c.jsonOut {
				return report.WriteJSON(cmd.OutOrStdout(), files)
			}
			for i, f := range files {
				if i > 0 {
					fmt.Fprintln(cmd.OutOrStdout())
				}
				fmt.Fprintf(cmd.OutOrStdout(), "// %s\n%s", f.Path, f.Content)
			}
			return nil
		},
	}
	addBindingFlags(cmd, &b)
	cmd.Flags().StringToStringVar(&options, "option", nil, "Architecture option overrides, e.g. --option servicePattern=functional")
	cmd.Flags().StringVar(&variant, "variant", "", "Data access variant (default from options)")
	cmd.Flags().StringVar(&pattern, "pattern", "", "Template pattern, e.g. functional (default from options)")
	cmd.Flags().StringVar(&structure, "structure", "", "File structure: domain-grouped, layer-grouped or feature-grouped")
	cmd.Flags().StringVar(&root, "root", "", "Directory generated files are placed under")
	cmd.Flags().BoolVar(&write, "write", false, "Write files into the workspace instead of printing them")
	cmd.Flags().BoolVar(&force, "force", false, "Overwrite existing files with --write")
	return cmd
}

func newPlanCmd(c *cli) *cobra.Command {
	var (
		b   bindingFlags
		dir string
	)
	cmd := &cobra.Command{
		Use:   "plan <spec|component> <task>",
		Short: "Decompose a task template into resolved steps",
		Long: `Resolves every step of a task template. With --dir the workspace is
scanned and steps whose layer has failing rules or dependency violations are
marked blocked.

Example:
  archspec plan controller-service-repository add-crud-endpoint --resource Order --dir src`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := c.resolveTarget(cmd.Context(), args[0], nil)
			if err != nil {
				return err
			}
			steps, err := planner.PlanByID(t.spec, args[1], b.binding())
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("dir") {
				set, err := c.scan(cmd.Context(), t.spec, dir)
				if err != nil {
					return err
				}
				graph := depcheck.CheckGraph(t.spec, set.Edges())
				steps = planner.Annotate(steps, evaluate(t.spec, set), graph.Violations)
			}
			format := report.FormatText
			if c.jsonOut {
				format = report.FormatJSON
			}
			return report.WritePlan(cmd.OutOrStdout(), args[1], steps, format)
		},
	}
	addBindingFlags(cmd, &b)
	cmd.Flags().StringVar(&dir, "dir", "", "Scan this directory and mark blocked steps")
	return cmd
}

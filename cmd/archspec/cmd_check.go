package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kingrea/archspec/internal/depcheck"
	"github.com/kingrea/archspec/internal/logbook"
	"github.com/kingrea/archspec/internal/report"
	"github.com/kingrea/archspec/internal/rules"
	"github.com/kingrea/archspec/internal/spec"
	"github.com/kingrea/archspec/internal/watch"
)

func evaluate(s spec.ArchitectureSpec, f rules.Facts) []rules.Result {
	return rules.Builtin().Evaluate(s, f)
}

func newCheckCmd(c *cli) *cobra.Command {
	var (
		watchMode bool
		failOn    string
	)
	cmd := &cobra.Command{
		Use:   "check <spec|component> [dir]",
		Short: "Scan a directory and evaluate the architecture's rules",
		Long: `Scans dir (default: the workspace), derives layer edges from imports and
evaluates every required and forbidden rule. Exits non-zero when a rule at
or above --fail-on fails or any dependency violation is found.

With --watch the check re-runs whenever a source file changes.`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			threshold := spec.Severity(failOn)
			if !threshold.Valid() {
				return fmt.Errorf("check: --fail-on must be error, warning or info")
			}
			t, err := c.resolveTarget(cmd.Context(), args[0], nil)
			if err != nil {
				return err
			}
			dir := ""
			if len(args) == 2 {
				dir = args[1]
			}
			run := func(ctx context.Context) error {
				return c.runCheck(ctx, cmd.OutOrStdout(), t.spec, dir, threshold)
			}
			if !watchMode {
				return run(cmd.Context())
			}
			return c.watchCheck(cmd, dir, run)
		},
	}
	cmd.Flags().BoolVar(&watchMode, "watch", false, "Re-run the check when files change")
	cmd.Flags().StringVar(&failOn, "fail-on", string(spec.SeverityError), "Lowest failing severity that fails the check")
	return cmd
}

func (c *cli) runCheck(ctx context.Context, out io.Writer, s spec.ArchitectureSpec, dir string, threshold spec.Severity) error {
	set, err := c.scan(ctx, s, dir)
	if err != nil {
		return err
	}
	results := evaluate(s, set)
	check := report.NewCheck(s.ID, c.path(dir), results, depcheck.CheckGraph(s, set.Edges()))
	format := report.FormatText
	if c.jsonOut {
		format = report.FormatJSON
	}
	if err := report.WriteCheck(out, check, format); err != nil {
		return err
	}
	c.logger().Info("check finished",
		zap.String("spec", s.ID),
		zap.Int("passed", check.Summary.Passed),
		zap.Int("failed", check.Summary.Failed),
		zap.Int("unevaluable", check.Summary.Unevaluable),
		zap.Int("violations", len(check.Graph.Violations)),
	)
	failing := check.Failing(threshold)
	entry := logbook.Entry{
		Outcome:     logbook.OutcomePass,
		SpecID:      s.ID,
		Root:        check.Root,
		Passed:      check.Summary.Passed,
		Failed:      check.Summary.Failed,
		Unevaluable: check.Summary.Unevaluable,
		Violations:  len(check.Graph.Violations),
	}
	if failing {
		entry.Outcome = logbook.OutcomeFail
	}
	if err := c.history().Record(entry); err != nil {
		c.logger().Warn("check history not recorded", zap.Error(err))
	}
	if failing {
		return errCheckFailed
	}
	return nil
}

func newHistoryCmd(c *cli) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history [spec|component]",
		Short: "Show recent check runs",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			specID := ""
			if len(args) == 1 {
				specID = args[0]
				if comp, ok := c.cfg.Component(specID); ok {
					specID = comp.Architecture
				}
			}
			lines, total := c.history().Tail(specID, limit)
			if c.jsonOut {
				return report.WriteJSON(cmd.OutOrStdout(), struct {
					Total   int      `json:"total"`
					Entries []string `json:"entries"`
				}{total, lines})
			}
			if total == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no check runs recorded")
				return nil
			}
			for _, line := range lines {
				fmt.Fprintln(cmd.OutOrStdout(), line)
			}
			if total > len(lines) {
				fmt.Fprintf(cmd.OutOrStdout(), "(%d of %d runs)\n", len(lines), total)
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Number of runs to show")
	return cmd
}

// watchCheck runs once, then again after every debounced batch of changes
// until interrupted.
func (c *cli) watchCheck(cmd *cobra.Command, dir string, run func(context.Context) error) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rerun := func(ctx context.Context) {
		if err := run(ctx); err != nil && !errors.Is(err, errCheckFailed) {
			fmt.Fprintln(cmd.ErrOrStderr(), err)
		}
	}
	rerun(ctx)

	cfg := watch.DefaultConfig()
	cfg.Ignore = append(cfg.Ignore, c.cfg.Project.Scan.Ignore...)
	w, err := watch.New(c.path(dir), cfg, func(ctx context.Context, paths []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "\n%d file(s) changed\n", len(paths))
		rerun(ctx)
	}, c.logger())
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), "watching for changes (ctrl+c to stop)")
	return w.Run(ctx)
}

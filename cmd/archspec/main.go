// cmd/archspec/main.go
//
// This is the entry point for the archspec CLI.
//
// Flow:
// 1. Resolve the workspace and load .archspec/config.yaml
// 2. Open the log file and load the spec catalog on demand
// 3. Run the requested subcommand

package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
)

// errCheckFailed marks a completed check that found violations; the report
// has already been printed.
var errCheckFailed = errors.New("check failed")

func newRootCmd() (*cobra.Command, *cli) {
	c := &cli{}
	root := &cobra.Command{
		Use:   "archspec",
		Short: "Architecture specifications for layered codebases",
		Long: `archspec turns declarative architecture specs into concrete guidance:
which layer may import which, what code a layer starts from, which rules a
codebase must satisfy and how a common task decomposes into steps.

Specs come from the built-in catalog, .archspec/specs, ARCHSPEC_HOME,
catalog.dirs in .archspec/config.yaml and the SQLite catalog.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return c.setup()
		},
	}

	root.PersistentFlags().StringVarP(&c.workspace, "workspace", "w", "", "Workspace directory (default: current)")
	root.PersistentFlags().BoolVarP(&c.verbose, "verbose", "v", false, "Log at debug level")
	root.PersistentFlags().BoolVar(&c.jsonOut, "json", false, "Print machine-readable JSON")

	root.AddCommand(
		newInitCmd(c),
		newListCmd(c),
		newShowCmd(c),
		newOptionCmd(c),
		newValidateCmd(c),
		newImportCmd(c),
		newRemoveCmd(c),
		newResolveCmd(c),
		newRenderCmd(c),
		newPlanCmd(c),
		newCheckCmd(c),
		newServeCmd(c),
		newBrowseCmd(c),
		newHistoryCmd(c),
	)
	return root, c
}

// execute runs the command tree with args and releases the log file and
// catalog database afterwards, whether or not the command failed.
func execute(args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	root, c := newRootCmd()
	defer c.close()
	root.SetArgs(args)
	root.SetIn(stdin)
	root.SetOut(stdout)
	root.SetErr(stderr)
	return root.Execute()
}

func main() {
	if err := execute(os.Args[1:], os.Stdin, os.Stdout, os.Stderr); err != nil {
		if !errors.Is(err, errCheckFailed) {
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(1)
	}
}

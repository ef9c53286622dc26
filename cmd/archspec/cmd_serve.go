package main

import (
	"errors"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/kingrea/archspec/internal/rpc"
	"github.com/kingrea/archspec/internal/rules"
	"github.com/kingrea/archspec/internal/spec"
	"github.com/kingrea/archspec/internal/tui"
)

// stdioConn joins stdin and stdout into the stream the JSON-RPC server reads.
type stdioConn struct {
	io.Reader
	io.Writer
}

func (stdioConn) Close() error { return nil }

func newServeCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the catalog over JSON-RPC on stdin/stdout",
		Long: `Starts a JSON-RPC 2.0 server with Content-Length framing on stdin and
stdout so editors and agents can query specs, resolve templates, check
imports, evaluate rules and build plans. Logs go to .archspec/logs.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			reg, err := c.registry(cmd.Context())
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			server := rpc.NewServer(reg,
				rpc.WithLogger(c.logger()),
				rpc.WithScanOptions(c.scanOptions()...),
			)
			err = server.Serve(ctx, stdioConn{Reader: cmd.InOrStdin(), Writer: cmd.OutOrStdout()})
			if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
				return nil
			}
			return err
		},
	}
}

func newBrowseCmd(c *cli) *cobra.Command {
	var dir string
	cmd := &cobra.Command{
		Use:   "browse",
		Short: "Browse the catalog in a terminal UI",
		Long: `Opens an interactive browser over every registered spec. With --dir the
directory is scanned for the selected spec and the rules tab shows each
rule's status.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			reg, err := c.registry(cmd.Context())
			if err != nil {
				return err
			}
			opts := []tui.AppOption{tui.WithLogger(c.logger())}
			if cmd.Flags().Changed("dir") {
				opts = append(opts, tui.WithFacts(func(s spec.ArchitectureSpec) (rules.Facts, error) {
					return c.scan(cmd.Context(), s, dir)
				}))
			}
			return tui.Run(tui.NewApp(reg, opts...))
		},
	}
	cmd.Flags().StringVar(&dir, "dir", "", "Scan this directory and show rule status")
	return cmd
}

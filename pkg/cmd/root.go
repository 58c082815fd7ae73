// Package cmd wires the demo CLI (run/status/stop) that exercises the
// sampling runtime end to end, adapted from the teacher's daemonizing
// run/status/stop command tree. The CLI is a thin harness, not part of
// the core per spec.md §1's explicit exclusion of process-launch/CLI
// orchestration.
package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	log "github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/maxgio92/xsamp/internal/settings"
	"github.com/maxgio92/xsamp/pkg/cmd/common"
	"github.com/maxgio92/xsamp/pkg/cmd/run"
	"github.com/maxgio92/xsamp/pkg/cmd/status"
	"github.com/maxgio92/xsamp/pkg/cmd/stop"
)

// NewRootCmd builds the xsamp command tree.
func NewRootCmd(opts *common.CommonOptions) *cobra.Command {
	var logLevel string

	cmd := &cobra.Command{
		Use: settings.CmdName,
		Short: fmt.Sprintf(
			"%s is an embedded sampling profiler", settings.CmdName,
		),
		Long: fmt.Sprintf(`%s periodically samples the native call stack of a running
process, deduplicates identical stacks in a bounded in-memory buffer, and
ships completed batches to a transport seam.`, settings.CmdName),
		DisableAutoGenTag: true,
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			lvl, err := log.ParseLevel(logLevel)
			if err != nil {
				return err
			}
			opts.Logger = opts.Logger.Level(lvl)

			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&logLevel, "log-level", "info",
		"Log level (trace, debug, info, warn, error, fatal, panic)")

	cmd.AddCommand(run.NewCommand(opts))
	cmd.AddCommand(status.NewCommand(opts))
	cmd.AddCommand(stop.NewCommand(opts))

	return cmd
}

// Execute is the main.go entry point: it wires a signal-cancellable
// context and a console logger, then runs the command tree.
func Execute() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger := log.New(log.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()

	opts := common.NewCommonOptions(
		common.WithContext(ctx),
		common.WithLogger(logger),
	)

	if err := NewRootCmd(opts).Execute(); err != nil {
		os.Exit(1)
	}
}

// Package common holds the demo CLI state shared by the root command
// and its subcommands, kept separate from package cmd so subcommand
// packages can depend on it without an import cycle back through cmd.
package common

import (
	"context"
	"os"
	"strconv"
	"syscall"

	log "github.com/rs/zerolog"

	"github.com/maxgio92/xsamp/internal/settings"
)

// CommonOptions is the state every subcommand needs: a cancellation
// context tied to process signals and a structured logger.
type CommonOptions struct {
	Ctx    context.Context
	Logger log.Logger
}

type Option func(o *CommonOptions)

func NewCommonOptions(opts ...Option) *CommonOptions {
	o := new(CommonOptions)
	for _, f := range opts {
		f(o)
	}

	return o
}

func WithContext(ctx context.Context) Option {
	return func(o *CommonOptions) {
		o.Ctx = ctx
	}
}

func WithLogger(logger log.Logger) Option {
	return func(o *CommonOptions) {
		o.Logger = logger
	}
}

// IsDaemonRunning reports whether a detached run has a live process
// recorded in settings.PidFile.
func IsDaemonRunning() bool {
	pidData, err := os.ReadFile(settings.PidFile)
	if err != nil {
		return false
	}

	pid, err := strconv.Atoi(string(pidData))
	if err != nil {
		return false
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}

	return process.Signal(syscall.Signal(0)) == nil
}

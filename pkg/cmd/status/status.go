package status

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/maxgio92/xsamp/internal/settings"
	"github.com/maxgio92/xsamp/pkg/cmd/common"
)

// Options holds the state the status subcommand needs; it carries no
// flags of its own today but embeds CommonOptions for the logger.
type Options struct {
	*common.CommonOptions
}

func NewCommand(opts *common.CommonOptions) *cobra.Command {
	o := &Options{CommonOptions: opts}

	return &cobra.Command{
		Use:               "status",
		Short:             fmt.Sprintf("Check the %s collector daemon status", settings.CmdName),
		DisableAutoGenTag: true,
		SilenceUsage:      true,
		Run:               o.Run,
	}
}

func (o *Options) Run(_ *cobra.Command, _ []string) {
	if common.IsDaemonRunning() {
		pidData, _ := os.ReadFile(settings.PidFile)
		fmt.Printf("%s is running (PID %s)\n", settings.CmdName, pidData)
	} else {
		fmt.Printf("%s is not running\n", settings.CmdName)
	}
}

package stop

import (
	"fmt"
	"os"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/maxgio92/xsamp/internal/settings"
	"github.com/maxgio92/xsamp/pkg/cmd/common"
)

// Options holds the state the stop subcommand needs; it carries no
// flags of its own today but embeds CommonOptions for the logger.
type Options struct {
	*common.CommonOptions
}

func NewCommand(opts *common.CommonOptions) *cobra.Command {
	o := &Options{CommonOptions: opts}

	return &cobra.Command{
		Use:               "stop",
		Short:             fmt.Sprintf("Stop the %s collector daemon", settings.CmdName),
		DisableAutoGenTag: true,
		SilenceUsage:      true,
		Run:               o.Run,
	}
}

func (o *Options) Run(_ *cobra.Command, _ []string) {
	pidData, err := os.ReadFile(settings.PidFile)
	if err != nil {
		fmt.Printf("%s not running or PID file not found\n", settings.CmdName)
		return
	}

	pid, err := strconv.Atoi(string(pidData))
	if err != nil {
		fmt.Println("Invalid PID file")
		return
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		fmt.Println("Process not found")
		return
	}

	if err := process.Signal(syscall.SIGTERM); err != nil {
		fmt.Printf("Failed to stop daemon: %v\n", err)
		return
	}

	for i := 0; i < 50; i++ {
		if !common.IsDaemonRunning() {
			fmt.Printf("%s stopped (PID %d)\n", settings.CmdName, pid)
			os.Remove(settings.PidFile)
			return
		}
		time.Sleep(100 * time.Millisecond)
	}

	process.Kill()
	os.Remove(settings.PidFile)
	fmt.Printf("%s force killed (PID %d)\n", settings.CmdName, pid)
}

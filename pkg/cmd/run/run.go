package run

import (
	"context"
	"fmt"
	"math"
	"os"
	"os/exec"
	"runtime"
	"strconv"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/maxgio92/xsamp/internal/output"
	"github.com/maxgio92/xsamp/internal/settings"
	"github.com/maxgio92/xsamp/pkg/cmd/common"
	"github.com/maxgio92/xsamp/pkg/collector"
	"github.com/maxgio92/xsamp/pkg/healthcheck"
	"github.com/maxgio92/xsamp/pkg/sample"
	"github.com/maxgio92/xsamp/pkg/transport"
	"github.com/maxgio92/xsamp/pkg/wire"
)

const CmdName = "run"

// closableSink is the subset of transport.Sink implementations run uses
// directly: both FileSink and UDSSink own a resource that must be
// released on shutdown, but transport.Sink itself stays Close-free so
// the sampling core never needs to know about teardown.
type closableSink interface {
	transport.Sink
	Close() error
}

// healthcheckSocketPath returns the UDS path run's healthcheck server
// listens on, namespaced by PID so concurrent runs don't collide.
func healthcheckSocketPath() string {
	return fmt.Sprintf("/tmp/%s-%d.healthcheck.sock", settings.CmdName, os.Getpid())
}

// dataSocketPath returns the default UDS path for --transport=uds when
// --uds-path is left unset, namespaced by PID like healthcheckSocketPath.
func dataSocketPath() string {
	return fmt.Sprintf("/tmp/%s-%d.data.sock", settings.CmdName, os.Getpid())
}

// Options holds the run subcommand's flags plus the shared CLI state.
type Options struct {
	variant   string
	rate      int
	event     string
	outDir    string
	transport string
	udsPath   string
	duration  time.Duration
	detach    bool
	status    bool

	*common.CommonOptions
}

func NewCommand(opts *common.CommonOptions) *cobra.Command {
	o := &Options{CommonOptions: opts}

	cmd := &cobra.Command{
		Use:   CmdName,
		Short: fmt.Sprintf("Run the %s sampling collector against a synthetic workload", settings.CmdName),
		Long: fmt.Sprintf(`
%s starts one collector on the calling thread, drives a synthetic
CPU-bound workload for the configured duration, and flushes
deduplicated stack samples to cbtf-data files under --output, or to a
Unix domain socket peer with --transport=uds.
`, settings.CmdName),
		DisableAutoGenTag: true,
		SilenceUsage:      true,
		RunE:              o.Run,
	}

	cmd.Flags().StringVarP(&o.variant, "variant", "k", "timer", "Event source: timer or counter")
	cmd.Flags().IntVarP(&o.rate, "rate", "r", settings.DefaultUsertimeRateHz, "Timer variant sample rate, in Hz")
	cmd.Flags().StringVarP(&o.event, "event", "e", settings.DefaultHwctimeEvent, "Counter variant overflow event")
	cmd.Flags().StringVarP(&o.outDir, "output", "o", "/tmp", "Directory to write cbtf-data files to")
	cmd.Flags().StringVarP(&o.transport, "transport", "t", "file", "Batch transport: file or uds")
	cmd.Flags().StringVar(&o.udsPath, "uds-path", "", fmt.Sprintf("Unix domain socket path for --transport=uds (default /tmp/%s-<pid>.data.sock)", settings.CmdName))
	cmd.Flags().DurationVar(&o.duration, "duration", 10*time.Second, "How long to run the workload")
	cmd.Flags().BoolVarP(&o.detach, "detach", "d", false, fmt.Sprintf("Run %s as a daemon", settings.CmdName))
	cmd.Flags().BoolVar(&o.status, "status", true, "Periodically print a status line")

	return cmd
}

// newSink builds the transport the collector flushes batches to,
// per --transport: "file" (the default, one cbtf-data file per thread)
// or "uds" (a networked Unix domain socket peer).
func (o *Options) newSink() (closableSink, error) {
	switch o.transport {
	case "", "file":
		return transport.NewFileSink(o.outDir, o.Logger), nil
	case "uds":
		udsPath := o.udsPath
		if udsPath == "" {
			udsPath = dataSocketPath()
		}
		return transport.NewUDSSink(udsPath, o.Logger), nil
	default:
		return nil, errors.Errorf("unknown transport %q, want file or uds", o.transport)
	}
}

func (o *Options) Run(_ *cobra.Command, _ []string) error {
	if o.detach {
		return o.daemonize()
	}

	if err := os.MkdirAll(o.outDir, 0o755); err != nil {
		return errors.Wrapf(err, "failed to create output dir %s", o.outDir)
	}

	if err := os.WriteFile(settings.PidFile, []byte(strconv.Itoa(os.Getpid())), 0o644); err != nil {
		o.Logger.Warn().Err(err).Msg("failed to write PID file")
	}
	defer os.Remove(settings.PidFile)

	variant := collector.IntervalTimer
	if o.variant == "counter" {
		variant = collector.CounterOverflow
	}

	sink, err := o.newSink()
	if err != nil {
		return err
	}
	defer sink.Close()

	c := collector.New(
		collector.WithVariant(variant),
		collector.WithSink(sink),
		collector.WithLogger(o.Logger),
		collector.WithSettings(settings.Collector{
			UsertimeRateHz:   o.rate,
			HwctimeEvent:     o.event,
			HwctimeThreshold: settings.DefaultHwctimeThreshold,
			DebugCollector:   os.Getenv(settings.EnvDebugCollector) != "",
		}),
	)

	host, _ := os.Hostname()
	header := wire.DataHeader{
		Experiment: 1,
		Collector:  settings.CmdName,
		Host:       host,
		PID:        uint32(os.Getpid()),
	}

	hc := healthcheck.NewHealthCheckServer(healthcheckSocketPath(), o.Logger)
	if err := hc.InitializeListener(o.Ctx); err != nil {
		o.Logger.Warn().Err(err).Msg("failed to start healthcheck listener")
	}
	defer hc.ShutdownListener()

	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	if err := c.Start(header); err != nil {
		return errors.Wrap(err, "failed to start collector")
	}
	hc.NotifyReadiness()

	ctx := o.Ctx
	var cancel context.CancelFunc
	if o.duration > 0 {
		ctx, cancel = context.WithTimeout(ctx, o.duration)
		defer cancel()
	}

	if o.status {
		go output.StatusBar(ctx, time.Second, func() {
			used := (c.TLS().Used() * 100) / sample.BufferCapacity
			output.PrintRight(fmt.Sprintf(
				"state=%-8s collectors=%d buffer: [%s] %3d%%",
				c.State(), collector.ActiveCount(), output.ProgressBar(used, 20), used,
			))
		})
	}

	workload(ctx)

	if o.status {
		fmt.Println()
	}

	return errors.Wrap(c.Stop(), "failed to stop collector")
}

// workload is a synthetic CPU-bound call stack generator: it drives
// nested Newton's-method square root refinements so samples land at a
// handful of distinct, recognizable frames.
func workload(ctx context.Context) {
	var x float64 = 2

	for i := 0; ; i++ {
		select {
		case <-ctx.Done():
			return
		default:
		}

		x = sqrtBatch(x, 997+i%101)
		if x > 1e6 || x < 1e-6 {
			x = 2
		}
	}
}

func sqrtBatch(seed float64, n int) float64 {
	acc := seed
	for i := 0; i < n; i++ {
		acc = refine(acc + 1)
	}

	return acc
}

func refine(v float64) float64 {
	return newton(v, v/2, 12)
}

func newton(v, guess float64, iterations int) float64 {
	if iterations == 0 || guess == 0 {
		return guess
	}

	next := guess - (guess*guess-v)/(2*guess)
	if math.Abs(next-guess) < 1e-9 {
		return next
	}

	return newton(v, next, iterations-1)
}

func (o *Options) daemonize() error {
	if common.IsDaemonRunning() {
		fmt.Println("Daemon already running")
		return nil
	}

	args := []string{CmdName}
	args = append(args, fmt.Sprintf("--variant=%s", o.variant))
	args = append(args, fmt.Sprintf("--rate=%d", o.rate))
	args = append(args, fmt.Sprintf("--event=%s", o.event))
	args = append(args, fmt.Sprintf("--output=%s", o.outDir))
	args = append(args, fmt.Sprintf("--transport=%s", o.transport))
	if o.udsPath != "" {
		args = append(args, fmt.Sprintf("--uds-path=%s", o.udsPath))
	}
	args = append(args, fmt.Sprintf("--duration=%s", o.duration))
	args = append(args, fmt.Sprintf("--status=%s", strconv.FormatBool(o.status)))

	cmd := exec.Command(os.Args[0], args...)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}

	if settings.LogFile != "" {
		f, err := os.OpenFile(settings.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o666)
		if err != nil {
			o.Logger.Error().Err(err).Msg("failed to open log file")
			return err
		}
		cmd.Stdout = f
		cmd.Stderr = f
	}

	if err := cmd.Start(); err != nil {
		o.Logger.Error().Err(err).Msgf("failed to start %s", settings.CmdName)
		return err
	}

	if err := os.WriteFile(settings.PidFile, []byte(strconv.Itoa(cmd.Process.Pid)), 0o644); err != nil {
		o.Logger.Error().Err(err).Msg("failed to write PID file")
		return err
	}

	return nil
}

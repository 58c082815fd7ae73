package settings

import (
	"fmt"
	"os"
	"strconv"

	"github.com/pkg/errors"
)

const CmdName = "xsamp"

var (
	PidFile = fmt.Sprintf("/tmp/%s.pid", CmdName)
	LogFile = fmt.Sprintf("/tmp/%s.log", CmdName)
)

// Environment variable names consumed by the collector lifecycle, named
// after the CBTF_* variables the original implementation reads.
const (
	EnvUsertimeRate     = "CBTF_USERTIME_RATE"
	EnvHwctimeEvent     = "CBTF_HWCTIME_EVENT"
	EnvHwctimeThreshold = "CBTF_HWCTIME_THRESHOLD"
	EnvDebugCollector   = "CBTF_DEBUG_COLLECTOR"
)

const (
	DefaultUsertimeRateHz   = 35
	DefaultHwctimeEvent     = "cycles"
	DefaultHwctimeThreshold = 10000000
)

// Collector holds the environment-derived configuration read once at
// Start, per spec.md §4.4.
type Collector struct {
	UsertimeRateHz   int
	HwctimeEvent     string
	HwctimeThreshold int64
	DebugCollector   bool
}

// LoadCollector reads the CBTF_* environment variables, applying the
// documented defaults for anything unset or empty.
func LoadCollector() (Collector, error) {
	s := Collector{
		UsertimeRateHz:   DefaultUsertimeRateHz,
		HwctimeEvent:     DefaultHwctimeEvent,
		HwctimeThreshold: DefaultHwctimeThreshold,
	}

	if v := os.Getenv(EnvUsertimeRate); v != "" {
		rate, err := strconv.Atoi(v)
		if err != nil || rate <= 0 {
			return s, errors.Wrapf(errBadRate, "%s=%q", EnvUsertimeRate, v)
		}
		s.UsertimeRateHz = rate
	}

	if v := os.Getenv(EnvHwctimeEvent); v != "" {
		s.HwctimeEvent = v
	}

	if v := os.Getenv(EnvHwctimeThreshold); v != "" {
		threshold, err := strconv.ParseInt(v, 10, 64)
		if err != nil || threshold <= 0 {
			return s, errors.Wrapf(errBadThreshold, "%s=%q", EnvHwctimeThreshold, v)
		}
		s.HwctimeThreshold = threshold
	}

	if v := os.Getenv(EnvDebugCollector); v != "" {
		s.DebugCollector = true
	}

	return s, nil
}

var (
	errBadRate      = errors.New("settings: invalid sample rate")
	errBadThreshold = errors.New("settings: invalid overflow threshold")
)

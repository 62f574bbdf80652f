// Package executor runs the behavior script on every configured device at
// once, one session per device.
package executor

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/devicelab-dev/shopper-runner/pkg/config"
	"github.com/devicelab-dev/shopper-runner/pkg/core"
	"github.com/devicelab-dev/shopper-runner/pkg/metrics"
	"github.com/devicelab-dev/shopper-runner/pkg/session"
)

// DefaultCloseTimeout bounds session teardown after a run ends.
const DefaultCloseTimeout = 30 * time.Second

// ScriptFunc is the work done on one opened session.
type ScriptFunc func(ctx context.Context, sess *session.Session) error

// Selector chooses the script to run on a device.
type Selector func(dev config.DeviceConfig) ScriptFunc

// RunnerConfig configures the pool runner.
type RunnerConfig struct {
	Config  *config.Config
	Layout  *config.Layout     // nil uses the built-in layout
	Logger  *zap.Logger        // nil discards logs
	Metrics *metrics.Collector // nil records nothing

	// NewDriver builds the driver for a device. nil dials Appium.
	NewDriver func(dev config.DeviceConfig) core.Driver

	// Seed makes per-device randomness reproducible. 0 = time-based.
	Seed int64

	// PollInterval overrides the home marker poll interval.
	PollInterval time.Duration

	// CloseTimeout bounds Close after the script ends. 0 = DefaultCloseTimeout.
	CloseTimeout time.Duration

	// OnStateChange is called on every device state transition.
	OnStateChange func(device string, from, to core.RunState)
}

// RunResult contains the outcome of a pool run.
type RunResult struct {
	RunID     string
	Devices   []DeviceResult
	Completed int
	Failed    int
	Duration  time.Duration
}

// Success reports whether every device completed.
func (r *RunResult) Success() bool {
	return r.Failed == 0
}

// DeviceResult contains the outcome of one device run.
type DeviceResult struct {
	Device    string
	Outcome   core.RunState  // StateCompleted or StateFailed
	Final     core.RunState  // StateClosed once the session is released
	Opened    bool           // a session was established
	Readiness core.Readiness // meaningful only when Opened
	Error     error
	Duration  time.Duration
}

// Runner runs scripts on a pool of devices.
type Runner struct {
	config RunnerConfig
	log    *zap.Logger
}

// New creates a new Runner.
func New(cfg RunnerConfig) *Runner {
	if cfg.Config == nil {
		cfg.Config = config.Default()
	}
	if cfg.Layout == nil {
		cfg.Layout = config.DefaultLayout()
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.CloseTimeout <= 0 {
		cfg.CloseTimeout = DefaultCloseTimeout
	}
	return &Runner{config: cfg, log: cfg.Logger}
}

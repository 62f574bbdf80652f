package cli

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/samber/lo"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/devicelab-dev/shopper-runner/pkg/config"
	"github.com/devicelab-dev/shopper-runner/pkg/device"
	"github.com/devicelab-dev/shopper-runner/pkg/executor"
	"github.com/devicelab-dev/shopper-runner/pkg/humanize"
	"github.com/devicelab-dev/shopper-runner/pkg/logger"
	"github.com/devicelab-dev/shopper-runner/pkg/metrics"
	"github.com/devicelab-dev/shopper-runner/pkg/script"
)

// metricsNamespace prefixes every exported metric.
const metricsNamespace = "shopper"

// scriptSleep overrides the pacing sleep; nil waits for real.
var scriptSleep humanize.SleepFunc

var runCommand = &cli.Command{
	Name:      "run",
	Usage:     "Run the browsing routine on every device",
	ArgsUsage: " ",
	Description: `Opens one session per device and runs the routine until it is
stopped with Ctrl+C or a configured limit is reached.

Devices come from --device, then the "devices" list in the config file,
then whatever "adb devices" reports.

Examples:
  shopper-runner run
  shopper-runner run --device ABCD1234 --keyword hello
  shopper-runner run --max-iterations 50 --metrics-addr :9090`,
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:    "device",
			Aliases: []string{"udid"},
			Usage:   "Device serial to run on (can be comma-separated)",
			EnvVars: []string{"SHOPPER_DEVICE"},
		},
		&cli.StringFlag{
			Name:    "keyword",
			Aliases: []string{"k"},
			Usage:   "Search keyword (overrides config)",
			EnvVars: []string{"SHOPPER_KEYWORD"},
		},
		&cli.StringFlag{
			Name:  "layout",
			Usage: "Screen layout file (YAML)",
		},
		&cli.BoolFlag{
			Name:  "quick",
			Usage: "Short reading pauses on product pages",
		},
		&cli.IntFlag{
			Name:  "max-iterations",
			Usage: "Stop product scrolling after N iterations (0 = until stopped)",
		},
		&cli.DurationFlag{
			Name:  "max-duration",
			Usage: "Stop product scrolling after this long (0 = until stopped)",
		},
		&cli.StringFlag{
			Name:    "metrics-addr",
			Usage:   "Serve prometheus metrics on this address",
			EnvVars: []string{"SHOPPER_METRICS_ADDR"},
		},
		&cli.Int64Flag{
			Name:  "seed",
			Usage: "Random seed for reproducible pacing (0 = random)",
		},
	},
	Action: runRun,
}

func runRun(c *cli.Context) error {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return err
	}
	applyOverrides(c, cfg)
	if err := cfg.Validate(); err != nil {
		return err
	}

	layout, err := config.LoadLayout(cfg.LayoutFile)
	if err != nil {
		return fmt.Errorf("failed to load layout: %w", err)
	}

	log, err := logger.New(cfg.Logger)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	// Closed last, after every worker has returned.
	defer func() {
		_ = log.Close()
	}()

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	collector := metrics.NewCollector(metricsNamespace)
	if cfg.MetricsAddr != "" {
		shutdown, err := serveMetrics(cfg.MetricsAddr, collector, log.Logger)
		if err != nil {
			return err
		}
		defer shutdown()
	}

	devices := resolveDevices(ctx, c.String("device"), cfg, log.Logger)
	if len(devices) == 0 {
		return errors.New("no devices: pass --device, list devices in the config file, or connect one over adb")
	}

	runner := executor.New(executor.RunnerConfig{
		Config:  cfg,
		Layout:  layout,
		Logger:  log.Logger,
		Metrics: collector,
		Seed:    c.Int64("seed"),
	})
	result := runner.RunAll(ctx, devices, executor.BrowseSelector(cfg, script.Options{
		Sleep:   scriptSleep,
		Metrics: collector,
	}))
	if ctx.Err() != nil && c.Context.Err() == nil {
		log.Info("Stopped by signal")
	}

	printSummary(c, result)
	if !result.Success() {
		return fmt.Errorf("%d of %d devices failed", result.Failed, len(result.Devices))
	}
	return nil
}

// applyOverrides copies explicitly set flags over the file configuration.
func applyOverrides(c *cli.Context, cfg *config.Config) {
	if c.IsSet("log-dir") {
		cfg.Logger.Dir = c.String("log-dir")
	}
	if c.Bool("verbose") {
		cfg.Logger.Level = "debug"
	}
	if c.IsSet("keyword") {
		cfg.Keyword = c.String("keyword")
	}
	if c.IsSet("layout") {
		cfg.LayoutFile = c.String("layout")
	}
	if c.IsSet("quick") {
		cfg.Quick = c.Bool("quick")
	}
	if c.IsSet("max-iterations") {
		cfg.MaxIterations = c.Int("max-iterations")
	}
	if c.IsSet("max-duration") {
		cfg.MaxDuration = c.Duration("max-duration")
	}
	if c.IsSet("metrics-addr") {
		cfg.MetricsAddr = c.String("metrics-addr")
	}
}

// resolveDevices picks the device list: flag, then config, then adb.
func resolveDevices(ctx context.Context, flag string, cfg *config.Config, log *zap.Logger) []config.DeviceConfig {
	if flag != "" {
		return serialsToDevices(strings.Split(flag, ","))
	}
	if len(cfg.Devices) > 0 {
		return cfg.Devices
	}
	log.Info("No devices configured, asking adb")
	return serialsToDevices(device.ListDevices(ctx, log))
}

func serialsToDevices(serials []string) []config.DeviceConfig {
	serials = lo.Uniq(lo.Compact(lo.Map(serials, func(s string, _ int) string {
		return strings.TrimSpace(s)
	})))
	return lo.Map(serials, func(s string, _ int) config.DeviceConfig {
		return config.DeviceConfig{DeviceName: s, UDID: s}
	})
}

// serveMetrics starts the /metrics endpoint and returns its shutdown func.
func serveMetrics(addr string, collector *metrics.Collector, log *zap.Logger) (func(), error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("metrics listener: %w", err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", collector.Handler())
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("Metrics server stopped", zap.Error(err))
		}
	}()
	log.Info("Serving metrics", zap.String("addr", ln.Addr().String()))

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}, nil
}

func printSummary(c *cli.Context, result *executor.RunResult) {
	w := c.App.Writer
	fmt.Fprintf(w, "\nRun %s finished in %s\n", result.RunID, result.Duration.Round(time.Millisecond))
	for _, d := range result.Devices {
		readiness := "-"
		if d.Opened {
			readiness = d.Readiness.String()
		}
		line := fmt.Sprintf("  %-20s %-10s %-8s", d.Device, d.Outcome, readiness)
		if d.Error != nil {
			line += "  " + d.Error.Error()
		}
		fmt.Fprintln(w, line)
	}
	fmt.Fprintf(w, "%d completed, %d failed\n", result.Completed, result.Failed)
}

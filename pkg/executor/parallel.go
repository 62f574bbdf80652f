package executor

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/devicelab-dev/shopper-runner/pkg/config"
	"github.com/devicelab-dev/shopper-runner/pkg/core"
)

// RunAll starts one worker per device and waits for all of them. Devices
// sharing an id are run once. Worker failures, panics included, are
// recorded in the result and never stop the other workers.
func (r *Runner) RunAll(ctx context.Context, devices []config.DeviceConfig, selector Selector) *RunResult {
	runID := uuid.NewString()
	log := r.log.With(zap.String("run_id", runID))

	unique := lo.UniqBy(devices, func(d config.DeviceConfig) string { return d.ID() })
	if dropped := len(devices) - len(unique); dropped > 0 {
		log.Warn("Duplicate devices ignored", zap.Int("count", dropped))
	}

	result := &RunResult{RunID: runID, Devices: make([]DeviceResult, len(unique))}
	if len(unique) == 0 {
		log.Warn("No devices to run")
		return result
	}

	log.Info("Starting run",
		zap.Int("devices", len(unique)),
		zap.Strings("ids", lo.Map(unique, func(d config.DeviceConfig, _ int) string { return d.ID() })))
	start := time.Now()

	// Pool size equals device count; workers report through results, never
	// through the group error.
	var g errgroup.Group
	for i, dev := range unique {
		g.Go(func() error {
			result.Devices[i] = r.runDevice(ctx, runID, i, dev, selector)
			return nil
		})
	}
	_ = g.Wait()

	result.Duration = time.Since(start)
	result.Completed = lo.CountBy(result.Devices, func(d DeviceResult) bool { return d.Outcome == core.StateCompleted })
	result.Failed = len(result.Devices) - result.Completed

	log.Info("Run finished",
		zap.Int("completed", result.Completed),
		zap.Int("failed", result.Failed),
		zap.Duration("duration", result.Duration))
	return result
}

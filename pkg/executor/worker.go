package executor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/devicelab-dev/shopper-runner/pkg/config"
	"github.com/devicelab-dev/shopper-runner/pkg/core"
	"github.com/devicelab-dev/shopper-runner/pkg/humanize"
	"github.com/devicelab-dev/shopper-runner/pkg/session"
)

// errDegraded aborts a device whose home marker never showed when
// proceedOnDegraded is off.
var errDegraded = errors.New("home marker not found and proceedOnDegraded is disabled")

// deviceRun tracks the lifecycle of one device.
type deviceRun struct {
	id       string
	state    core.RunState
	log      *zap.Logger
	onChange func(device string, from, to core.RunState)
}

func (d *deviceRun) transition(to core.RunState) {
	from := d.state
	if !from.CanTransition(to) {
		d.log.Warn("Unexpected state transition", zap.Stringer("from", from), zap.Stringer("to", to))
	}
	d.state = to
	d.log.Info("State transition", zap.Stringer("from", from), zap.Stringer("to", to))
	if d.onChange != nil {
		d.onChange(d.id, from, to)
	}
}

// runDevice drives one device from CREATED to CLOSED.
func (r *Runner) runDevice(ctx context.Context, runID string, index int, dev config.DeviceConfig, selector Selector) (res DeviceResult) {
	log := r.log.With(zap.String("device", dev.ID()), zap.String("run_id", runID))
	run := &deviceRun{id: dev.ID(), state: core.StateCreated, log: log, onChange: r.config.OnStateChange}
	log.Info("State transition", zap.Stringer("to", core.StateCreated))

	res = DeviceResult{Device: dev.ID()}
	start := time.Now()
	var sess *session.Session

	defer func() {
		if p := recover(); p != nil {
			log.Error("Device worker panicked", zap.Any("panic", p), zap.Stack("stack"))
			res.Error = fmt.Errorf("panic: %v", p)
			if !run.state.IsTerminal() {
				run.transition(core.StateFailed)
			}
		}
		res.Outcome = run.state

		if sess != nil {
			closeCtx, cancel := context.WithTimeout(context.Background(), r.config.CloseTimeout)
			if err := sess.Close(closeCtx); err != nil {
				log.Warn("Failed to close session", zap.Error(err))
			}
			cancel()
		}
		run.transition(core.StateClosed)
		res.Final = run.state
		res.Duration = time.Since(start)
		r.config.Metrics.RunFinished(res.Outcome.String(), res.Duration.Seconds())
	}()

	fail := func(err error) DeviceResult {
		log.Error("Device run failed",
			zap.String("category", core.CategoryOf(err).String()),
			zap.Error(err))
		res.Error = err
		run.transition(core.StateFailed)
		return res
	}

	run.transition(core.StateConnecting)
	sess, readiness, err := session.Open(ctx, r.config.Config, dev, r.sessionOptions(index, dev, log))
	if err != nil {
		if stopped(ctx, err) {
			log.Info("Run stopped before the session was ready", zap.Error(ctx.Err()))
			run.transition(core.StateCompleted)
			return res
		}
		return fail(err)
	}
	res.Opened = true
	res.Readiness = readiness

	if readiness == core.DegradedReady {
		run.transition(core.StateDegradedReady)
		if !r.config.Config.ProceedOnDegraded {
			return fail(errDegraded)
		}
		log.Warn("Proceeding without home marker")
	} else {
		run.transition(core.StateReady)
	}

	run.transition(core.StateRunning)
	script := selector(dev)
	if err := script(ctx, sess); err != nil && !stopped(ctx, err) {
		return fail(err)
	}
	if ctx.Err() != nil {
		log.Info("Run stopped", zap.Error(ctx.Err()))
	}
	run.transition(core.StateCompleted)
	return res
}

// stopped reports whether err only reflects the run being cancelled.
func stopped(ctx context.Context, err error) bool {
	return ctx.Err() != nil && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded))
}

func (r *Runner) sessionOptions(index int, dev config.DeviceConfig, log *zap.Logger) session.Options {
	opts := session.Options{
		Layout:       r.config.Layout,
		Logger:       log,
		Metrics:      r.config.Metrics,
		PollInterval: r.config.PollInterval,
	}
	if r.config.NewDriver != nil {
		opts.Driver = r.config.NewDriver(dev)
	}
	if r.config.Seed != 0 {
		opts.Rand = humanize.NewRand(r.config.Seed + int64(index))
	}
	return opts
}

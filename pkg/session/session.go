// Package session wraps one automation session on one device: readiness
// wait, jittered gestures, element lookup, and screenshot artifacts.
package session

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/devicelab-dev/shopper-runner/pkg/config"
	"github.com/devicelab-dev/shopper-runner/pkg/core"
	"github.com/devicelab-dev/shopper-runner/pkg/driver/appium"
	"github.com/devicelab-dev/shopper-runner/pkg/humanize"
	"github.com/devicelab-dev/shopper-runner/pkg/metrics"
)

// DefaultPollInterval is how often the home marker is looked up while waiting.
const DefaultPollInterval = 500 * time.Millisecond

// closeTimeout bounds session teardown when Open has to abandon a session.
const closeTimeout = 10 * time.Second

// Options holds the collaborators of a session. Zero values get defaults.
type Options struct {
	Driver       core.Driver        // nil dials Appium at cfg.ServerURL(dev)
	Layout       *config.Layout     // nil uses the built-in layout
	Logger       *zap.Logger        // nil discards logs
	Metrics      *metrics.Collector // nil records nothing
	Rand         *humanize.Rand     // nil seeds from the clock
	PollInterval time.Duration
	Now          func() time.Time
}

// Session is a live automation session bound to one device. It is not
// shared between goroutines other than for Close.
type Session struct {
	driver  core.Driver
	cfg     *config.Config
	device  config.DeviceConfig
	layout  *config.Layout
	log     *zap.Logger
	metrics *metrics.Collector
	rand    *humanize.Rand
	poll    time.Duration
	now     func() time.Time

	mu     sync.Mutex
	closed bool
}

// Open creates the remote session for dev and waits for the home marker.
// A connection failure returns ErrConnection. A marker timeout is not an
// error: the session is returned with DegradedReady.
func Open(ctx context.Context, cfg *config.Config, dev config.DeviceConfig, opts Options) (*Session, core.Readiness, error) {
	s := newSession(cfg, dev, opts)

	s.log.Debug("Opening session",
		zap.String("server", cfg.ServerURL(dev)),
		zap.String("app", cfg.AppPackage))

	if err := s.driver.Connect(ctx, cfg.Capabilities(dev)); err != nil {
		if ctx.Err() != nil {
			return nil, core.DegradedReady, ctx.Err()
		}
		return nil, core.DegradedReady, core.ErrConnection.
			WithMessage(fmt.Sprintf("could not open session on %s", cfg.ServerURL(dev))).
			WithCause(err)
	}
	s.metrics.SessionOpened()
	s.log.Debug("Session initialized")

	found, err := s.WaitFor(ctx, s.layout.HomeMarker, cfg.HomeMarkerTimeout)
	if err != nil {
		closeCtx, cancel := context.WithTimeout(context.Background(), closeTimeout)
		defer cancel()
		_ = s.Close(closeCtx)
		return nil, core.DegradedReady, err
	}
	if !found {
		s.log.Error("Home marker not found",
			zap.String("locator", s.layout.HomeMarker.String()),
			zap.Duration("timeout", cfg.HomeMarkerTimeout))
		s.Screenshot(ctx, core.TagReadinessWait)
		return s, core.DegradedReady, nil
	}
	return s, core.Ready, nil
}

func newSession(cfg *config.Config, dev config.DeviceConfig, opts Options) *Session {
	s := &Session{
		driver:  opts.Driver,
		cfg:     cfg,
		device:  dev,
		layout:  opts.Layout,
		log:     opts.Logger,
		metrics: opts.Metrics,
		rand:    opts.Rand,
		poll:    opts.PollInterval,
		now:     opts.Now,
	}
	if s.driver == nil {
		s.driver = appium.NewClient(cfg.ServerURL(dev))
	}
	if s.layout == nil {
		s.layout = config.DefaultLayout()
	}
	if s.log == nil {
		s.log = zap.NewNop()
	}
	if s.rand == nil {
		s.rand = humanize.NewRand(0)
	}
	if s.poll <= 0 {
		s.poll = DefaultPollInterval
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// Device returns the device this session runs on.
func (s *Session) Device() config.DeviceConfig { return s.device }

// Layout returns the screen layout used for gestures.
func (s *Session) Layout() *config.Layout { return s.layout }

// Rand returns the session's random source.
func (s *Session) Rand() *humanize.Rand { return s.rand }

// Logger returns the session logger.
func (s *Session) Logger() *zap.Logger { return s.log }

// WaitFor polls loc until it is found or timeout elapses. It reports false
// on timeout and returns an error only when ctx ends.
func (s *Session) WaitFor(ctx context.Context, loc core.Locator, timeout time.Duration) (bool, error) {
	deadline := s.now().Add(timeout)
	for {
		if _, err := s.driver.FindElement(ctx, loc.Strategy, loc.Value); err == nil {
			return true, nil
		}
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		if !s.now().Before(deadline) {
			return false, nil
		}
		if err := humanize.Sleep(ctx, s.poll); err != nil {
			return false, err
		}
	}
}

// Tap presses near p, offset by a random jitter.
func (s *Session) Tap(ctx context.Context, p core.Point) error {
	dx, dy := s.rand.Jitter()
	return s.press(ctx, p.Offset(dx, dy), s.layout.TapHold())
}

// TapExact presses exactly at p for hold.
func (s *Session) TapExact(ctx context.Context, p core.Point, hold time.Duration) error {
	return s.press(ctx, p, hold)
}

func (s *Session) press(ctx context.Context, p core.Point, hold time.Duration) error {
	err := s.driver.Press(ctx, p.X, p.Y, hold)
	s.metrics.Gesture("tap", err)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return core.ErrGesture.WithMessage("tap failed").
			WithDetails(map[string]interface{}{"x": p.X, "y": p.Y}).
			WithCause(err)
	}
	return nil
}

// Swipe drags from one point to another. One random offset is drawn and
// applied to both endpoints, so the drag vector is preserved.
func (s *Session) Swipe(ctx context.Context, from, to core.Point, duration time.Duration) error {
	dx, dy := s.rand.Jitter()
	start, end := from.Offset(dx, dy), to.Offset(dx, dy)

	err := s.driver.Swipe(ctx, start, end, duration)
	s.metrics.Gesture("swipe", err)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return core.ErrGesture.WithMessage("swipe failed").
			WithDetails(map[string]interface{}{"from": start, "to": end}).
			WithCause(err)
	}
	return nil
}

// SwipeGesture performs a layout swipe.
func (s *Session) SwipeGesture(ctx context.Context, g config.Swipe) error {
	return s.Swipe(ctx, g.From, g.To, g.Duration())
}

// FindElement looks loc up once.
func (s *Session) FindElement(ctx context.Context, loc core.Locator) (*Element, error) {
	id, err := s.driver.FindElement(ctx, loc.Strategy, loc.Value)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, core.ErrElementNotFound.
			WithMessage("element not found: " + loc.String()).
			WithCause(err)
	}
	return &Element{session: s, id: id, locator: loc}, nil
}

// Back presses the system back button.
func (s *Session) Back(ctx context.Context) error {
	if err := s.driver.Back(ctx); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return core.ErrGesture.WithMessage("back failed").WithCause(err)
	}
	return nil
}

// Screenshot saves the current screen as {date}_{tag}_{hash}.png in the
// screenshot dir and returns the path. Failures are logged and yield "".
func (s *Session) Screenshot(ctx context.Context, tag string) string {
	path, err := s.saveScreenshot(ctx, tag)
	s.metrics.Screenshot(err)
	if err != nil {
		s.log.Error("Failed to take screenshot", zap.String("tag", tag), zap.Error(err))
		return ""
	}
	s.log.Debug("Screenshot saved", zap.String("path", path))
	return path
}

func (s *Session) saveScreenshot(ctx context.Context, tag string) (string, error) {
	if s.isClosed() {
		return "", core.ErrSessionClosed
	}
	data, err := s.driver.Screenshot(ctx)
	if err != nil {
		return "", err
	}
	att := core.NewScreenshotAttachment(core.ScreenshotPath(s.cfg.ScreenshotDir, s.now(), tag), data)
	if s.cfg.ScreenshotDir != "" {
		if err := os.MkdirAll(s.cfg.ScreenshotDir, 0o755); err != nil {
			return "", err
		}
	}
	if err := os.WriteFile(att.Path, att.Body, 0o644); err != nil { //#nosec G306 -- debug artifact
		return "", err
	}
	return att.Path, nil
}

// Close releases the remote session. Calling it again returns ErrSessionClosed.
func (s *Session) Close(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return core.ErrSessionClosed
	}
	s.closed = true
	s.mu.Unlock()

	s.log.Debug("Closing the session")
	err := s.driver.Disconnect(ctx)
	s.metrics.SessionClosed()
	if err != nil {
		return fmt.Errorf("close session: %w", err)
	}
	return nil
}

func (s *Session) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

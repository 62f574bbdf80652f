// Package script implements the human-like browsing routine run on each
// device: go home, browse the feed, search, then scroll a product page.
//
// Every step is fail-soft. A failed step is logged, a screenshot tagged with
// the step name is saved, and the routine moves on. Only context
// cancellation ends a run early.
package script

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/devicelab-dev/shopper-runner/pkg/core"
	"github.com/devicelab-dev/shopper-runner/pkg/humanize"
	"github.com/devicelab-dev/shopper-runner/pkg/metrics"
	"github.com/devicelab-dev/shopper-runner/pkg/session"
)

// Pause ranges between actions.
var (
	PauseAfterHome    = humanize.Seconds(3, 4)
	PauseAfterBrowse  = humanize.Seconds(5, 6)
	PauseSearchOpen   = humanize.Seconds(4, 5)
	PauseDefault      = humanize.Seconds(0.5, 2.5)
	PauseDetailSettle = humanize.Seconds(3, 4)
	PauseReadQuick    = humanize.Seconds(0.5, 1.5)
	PauseReadSlow     = humanize.Seconds(2, 4)
)

// swipeUpThreshold: a draw above it scrolls back up, so P(up) = 0.4.
const swipeUpThreshold = 0.6

// Limits bounds the product detail loop. Zero values mean unbounded.
type Limits struct {
	MaxIterations int
	MaxDuration   time.Duration
}

// Options configures a Script.
type Options struct {
	Keyword string
	Quick   bool
	Limits  Limits
	Sleep   humanize.SleepFunc // nil uses humanize.Sleep
	Metrics *metrics.Collector
	Now     func() time.Time
}

// Script drives one session through the browsing routine.
type Script struct {
	sess    *session.Session
	opts    Options
	pacer   *humanize.Pacer
	log     *zap.Logger
	metrics *metrics.Collector
	now     func() time.Time
}

// New creates a script bound to sess.
func New(sess *session.Session, opts Options) *Script {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Script{
		sess:    sess,
		opts:    opts,
		pacer:   humanize.NewPacer(sess.Rand(), opts.Sleep),
		log:     sess.Logger(),
		metrics: opts.Metrics,
		now:     now,
	}
}

// Run executes the routine: home, popups, search, product detail. It only
// returns an error when ctx ends.
func (s *Script) Run(ctx context.Context) error {
	if err := s.NavigateHome(ctx); err != nil {
		return err
	}
	if err := s.HandlePopupsAndCaptcha(ctx); err != nil {
		if !errors.Is(err, core.ErrNotImplemented) {
			return err
		}
		s.log.Warn("Popup and captcha handling skipped", zap.Error(err))
	}
	if err := s.SearchKeyword(ctx, s.opts.Keyword); err != nil {
		return err
	}
	return s.BrowseProductDetail(ctx, s.opts.Quick, s.opts.Limits)
}

// NavigateHome taps the home tab and browses the feed with three swipes.
// Failures are logged and swallowed; the returned error is ctx.Err().
func (s *Script) NavigateHome(ctx context.Context) error {
	s.log.Debug("Handling popups and navigating to home.")
	layout := s.sess.Layout()

	err := s.step(ctx, core.TagNavigate, "Failed to find home icon", func() error {
		home, err := s.sess.FindElement(ctx, layout.HomeIcon)
		if err != nil {
			return err
		}
		if err := home.Click(ctx); err != nil {
			return err
		}
		s.log.Debug("Navigated to home successfully.")
		return s.pacer.Pause(ctx, PauseAfterHome)
	})
	if err != nil {
		return err
	}

	return s.step(ctx, core.TagNavigate, "Error occurred while handling popups and navigate", func() error {
		for _, g := range layout.HomeBrowse {
			if err := s.sess.SwipeGesture(ctx, g); err != nil {
				return err
			}
		}
		return s.pacer.Pause(ctx, PauseAfterBrowse)
	})
}

// SearchKeyword opens the search box, types keyword and submits it.
func (s *Script) SearchKeyword(ctx context.Context, keyword string) error {
	layout := s.sess.Layout()

	return s.step(ctx, core.TagSearch, "Error occurred while searching keyword", func() error {
		s.log.Debug("Searching for keyword", zap.String("keyword", keyword))

		if err := s.sess.TapExact(ctx, layout.SearchEntry, layout.TapHold()); err != nil {
			return err
		}
		if err := s.pacer.Pause(ctx, PauseSearchOpen); err != nil {
			return err
		}

		field, err := s.sess.FindElement(ctx, layout.SearchField)
		if err != nil {
			return err
		}
		if err := field.SendKeys(ctx, keyword); err != nil {
			return err
		}
		if err := s.pacer.Pause(ctx, PauseDefault); err != nil {
			return err
		}

		if err := s.sess.TapExact(ctx, layout.SearchSubmit, layout.TapHold()); err != nil {
			return err
		}
		return s.pacer.Pause(ctx, PauseDefault)
	})
}

// BrowseProductDetail scrolls the product page until ctx ends or a limit
// is reached. Each pass swipes down quickly, reads, then either scrolls
// back up (40%) or keeps going down slowly.
func (s *Script) BrowseProductDetail(ctx context.Context, quick bool, limits Limits) error {
	s.log.Debug("Handling product detail", zap.Bool("quick", quick))
	layout := s.sess.Layout()

	read := PauseReadSlow
	if quick {
		read = PauseReadQuick
	}

	if err := s.pacer.Pause(ctx, PauseDetailSettle); err != nil {
		return err
	}

	start := s.now()
	for i := 1; ; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if limits.MaxIterations > 0 && i > limits.MaxIterations {
			s.log.Debug("Product detail iteration limit reached", zap.Int("iterations", limits.MaxIterations))
			return nil
		}
		if limits.MaxDuration > 0 && s.now().Sub(start) >= limits.MaxDuration {
			s.log.Debug("Product detail duration limit reached", zap.Duration("elapsed", s.now().Sub(start)))
			return nil
		}

		s.log.Debug(fmt.Sprintf("Product detail iteration %d", i))
		s.metrics.Iteration()

		err := s.step(ctx, core.TagProductDetail, "Error occurred while handling product detail", func() error {
			if err := s.sess.SwipeGesture(ctx, layout.DetailDownQuick); err != nil {
				return err
			}
			if err := s.pacer.Pause(ctx, read); err != nil {
				return err
			}

			if s.pacer.Rand().Float64() > swipeUpThreshold {
				if err := s.sess.SwipeGesture(ctx, layout.DetailUp); err != nil {
					return err
				}
			} else if err := s.sess.SwipeGesture(ctx, layout.DetailDownSlow); err != nil {
				return err
			}
			return s.pacer.Pause(ctx, PauseDefault)
		})
		if err != nil {
			return err
		}
	}
}

// ClickAndReturn opens el, lingers, then navigates back.
func (s *Script) ClickAndReturn(ctx context.Context, el *session.Element) error {
	return s.step(ctx, core.TagClickAndReturn, "Error occurred while visiting element", func() error {
		if err := el.Click(ctx); err != nil {
			return err
		}
		if err := s.pacer.Pause(ctx, PauseDefault); err != nil {
			return err
		}
		if err := s.sess.Back(ctx); err != nil {
			return err
		}
		return s.pacer.Pause(ctx, PauseDefault)
	})
}

// HandlePopupsAndCaptcha is a placeholder for dismissing popups and solving
// slider captchas. It always returns ErrNotImplemented.
func (s *Script) HandlePopupsAndCaptcha(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return core.ErrNotImplemented.WithMessage("popup and captcha handling is not implemented")
}

// step runs fn and applies the fail-soft policy: a non-context error is
// logged, counted and screenshotted under tag, then dropped after a
// PauseDefault wait so a dead session cannot make the caller spin.
func (s *Script) step(ctx context.Context, tag, msg string, fn func() error) error {
	err := fn()
	if err == nil {
		return nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	s.log.Error(msg,
		zap.String("step", tag),
		zap.String("category", core.CategoryOf(err).String()),
		zap.Error(err))
	s.metrics.StepFailed(tag)
	s.sess.Screenshot(ctx, tag)
	return s.pacer.Pause(ctx, PauseDefault)
}

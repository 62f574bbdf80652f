package executor

import (
	"context"

	"github.com/devicelab-dev/shopper-runner/pkg/config"
	"github.com/devicelab-dev/shopper-runner/pkg/script"
	"github.com/devicelab-dev/shopper-runner/pkg/session"
)

// BrowseSelector runs the browsing routine on every device, using the
// device keyword when set and the configured one otherwise. base supplies
// the pacing, metrics and clock; keyword, mode and limits come from cfg.
func BrowseSelector(cfg *config.Config, base script.Options) Selector {
	return func(dev config.DeviceConfig) ScriptFunc {
		opts := base
		opts.Keyword = cfg.KeywordFor(dev)
		opts.Quick = cfg.Quick
		opts.Limits = script.Limits{
			MaxIterations: cfg.MaxIterations,
			MaxDuration:   cfg.MaxDuration,
		}
		return func(ctx context.Context, sess *session.Session) error {
			return script.New(sess, opts).Run(ctx)
		}
	}
}

package session

import (
	"context"

	"github.com/devicelab-dev/shopper-runner/pkg/core"
)

// Element is a handle to a UI element found in a session.
type Element struct {
	session *Session
	id      string
	locator core.Locator
}

// ID returns the server-side element id.
func (e *Element) ID() string { return e.id }

// Locator returns the locator the element was found with.
func (e *Element) Locator() core.Locator { return e.locator }

// Click clicks the element.
func (e *Element) Click(ctx context.Context) error {
	err := e.session.driver.ClickElement(ctx, e.id)
	e.session.metrics.Gesture("click", err)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return core.ErrGesture.WithMessage("click failed: " + e.locator.String()).WithCause(err)
	}
	return nil
}

// SendKeys types text into the element.
func (e *Element) SendKeys(ctx context.Context, text string) error {
	if err := e.session.driver.SendKeysToElement(ctx, e.id, text); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return core.ErrGesture.WithMessage("send keys failed: " + e.locator.String()).WithCause(err)
	}
	return nil
}

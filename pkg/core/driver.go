package core

import (
	"context"
	"time"
)

// Driver is the opaque UI-automation capability a session is built on.
// Implementations: Appium (W3C WebDriver over HTTP).
// The session layer adds jitter, readiness and artifact policy on top.
type Driver interface {
	// Connect opens a remote session with the given capability payload.
	Connect(ctx context.Context, capabilities map[string]interface{}) error

	// Disconnect releases the remote session.
	Disconnect(ctx context.Context) error

	// FindElement returns an element handle or an error when nothing matches.
	FindElement(ctx context.Context, strategy, value string) (string, error)

	// ClickElement clicks a previously found element.
	ClickElement(ctx context.Context, elementID string) error

	// SendKeysToElement types text into a previously found element.
	SendKeysToElement(ctx context.Context, elementID, text string) error

	// Press performs a single-finger press at x,y held for the given duration.
	Press(ctx context.Context, x, y int, hold time.Duration) error

	// Swipe performs a single-finger down/move/release between two points.
	Swipe(ctx context.Context, from, to Point, duration time.Duration) error

	// Back presses the platform back button.
	Back(ctx context.Context) error

	// Screenshot captures the current screen as PNG
	Screenshot(ctx context.Context) ([]byte, error)
}

// Point is a screen coordinate in device pixels.
type Point struct {
	X int `yaml:"x" json:"x"`
	Y int `yaml:"y" json:"y"`
}

// Offset returns p moved by dx,dy.
func (p Point) Offset(dx, dy int) Point {
	return Point{X: p.X + dx, Y: p.Y + dy}
}

// Locator identifies an element on screen. Strategy uses W3C names ("xpath", "id",
// "accessibility id").
type Locator struct {
	Strategy string `yaml:"strategy" json:"strategy"`
	Value    string `yaml:"value" json:"value"`
}

// String renders the locator for logs.
func (l Locator) String() string {
	return l.Strategy + "=" + l.Value
}

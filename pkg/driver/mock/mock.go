// Package mock provides a mock driver for testing without a real device.
package mock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/devicelab-dev/shopper-runner/pkg/core"
)

// PNG is a minimal valid PNG (1x1 transparent pixel) returned by Screenshot.
var PNG = []byte{
	0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A, // PNG signature
	0x00, 0x00, 0x00, 0x0D, 0x49, 0x48, 0x44, 0x52, // IHDR chunk
	0x00, 0x00, 0x00, 0x01, 0x00, 0x00, 0x00, 0x01,
	0x08, 0x06, 0x00, 0x00, 0x00, 0x1F, 0x15, 0xC4,
	0x89, 0x00, 0x00, 0x00, 0x0A, 0x49, 0x44, 0x41,
	0x54, 0x78, 0x9C, 0x63, 0x00, 0x01, 0x00, 0x00,
	0x05, 0x00, 0x01, 0x0D, 0x0A, 0x2D, 0xB4, 0x00,
	0x00, 0x00, 0x00, 0x49, 0x45, 0x4E, 0x44, 0xAE,
	0x42, 0x60, 0x82,
}

// Call is one recorded driver invocation.
type Call struct {
	Method string
	Args   []interface{}
}

// Config configures mock driver behavior.
type Config struct {
	// ConnectErr is returned by Connect.
	ConnectErr error
	// Missing lists locator values FindElement reports as not found.
	Missing map[string]bool
	// MissingUntil makes FindElement fail for a value until it has been
	// looked up that many times.
	MissingUntil map[string]int
	// FailSwipeOn makes swipe N fail (1-indexed). 0 = never fail.
	FailSwipeOn int
	// FailAllSwipes makes every swipe fail.
	FailAllSwipes bool
	// ScreenshotErr is returned by Screenshot.
	ScreenshotErr error
	// DisconnectErr is returned by Disconnect.
	DisconnectErr error
	// PanicOn panics when the named method is called.
	PanicOn string
	// StepDelay adds artificial delay per gesture
	StepDelay time.Duration
}

// Driver is a mock implementation of core.Driver for testing.
type Driver struct {
	// Configuration
	Config Config

	mu         sync.Mutex
	calls      []Call
	lookups    map[string]int
	swipeCount int
	connected  bool
	nextID     int
}

var _ core.Driver = (*Driver)(nil)

// New creates a new mock driver.
func New(cfg Config) *Driver {
	return &Driver{Config: cfg, lookups: make(map[string]int)}
}

func (d *Driver) record(method string, args ...interface{}) {
	d.mu.Lock()
	d.calls = append(d.calls, Call{Method: method, Args: args})
	d.mu.Unlock()
	if d.Config.PanicOn == method {
		panic(fmt.Sprintf("mock panic in %s", method))
	}
}

// Calls returns a copy of all recorded calls.
func (d *Driver) Calls() []Call {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]Call, len(d.calls))
	copy(out, d.calls)
	return out
}

// Count returns how many times method was called.
func (d *Driver) Count(method string) int {
	n := 0
	for _, c := range d.Calls() {
		if c.Method == method {
			n++
		}
	}
	return n
}

// Swipes returns the endpoints of every recorded swipe, in order.
func (d *Driver) Swipes() [][2]core.Point {
	var out [][2]core.Point
	for _, c := range d.Calls() {
		if c.Method == "Swipe" {
			out = append(out, [2]core.Point{c.Args[0].(core.Point), c.Args[1].(core.Point)})
		}
	}
	return out
}

// Connected reports whether a session is open.
func (d *Driver) Connected() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.connected
}

// Connect simulates session creation.
func (d *Driver) Connect(ctx context.Context, caps map[string]interface{}) error {
	d.record("Connect", caps)
	if d.Config.ConnectErr != nil {
		return d.Config.ConnectErr
	}
	d.mu.Lock()
	d.connected = true
	d.mu.Unlock()
	return nil
}

// Disconnect simulates session deletion.
func (d *Driver) Disconnect(ctx context.Context) error {
	d.record("Disconnect")
	d.mu.Lock()
	d.connected = false
	d.mu.Unlock()
	return d.Config.DisconnectErr
}

// FindElement returns a fresh element id unless the value is configured missing.
func (d *Driver) FindElement(ctx context.Context, strategy, value string) (string, error) {
	d.record("FindElement", strategy, value)
	if err := ctx.Err(); err != nil {
		return "", err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	d.lookups[value]++
	if d.Config.Missing[value] || d.lookups[value] <= d.Config.MissingUntil[value] {
		return "", fmt.Errorf("no such element: %s=%s", strategy, value)
	}
	d.nextID++
	return fmt.Sprintf("mock-element-%d", d.nextID), nil
}

// ClickElement records the click.
func (d *Driver) ClickElement(ctx context.Context, elementID string) error {
	d.record("ClickElement", elementID)
	return ctx.Err()
}

// SendKeysToElement records the typed text.
func (d *Driver) SendKeysToElement(ctx context.Context, elementID, text string) error {
	d.record("SendKeysToElement", elementID, text)
	return ctx.Err()
}

// Press records a tap.
func (d *Driver) Press(ctx context.Context, x, y int, hold time.Duration) error {
	d.record("Press", core.Point{X: x, Y: y}, hold)
	d.delay()
	return ctx.Err()
}

// Swipe records a swipe, failing when configured to.
func (d *Driver) Swipe(ctx context.Context, from, to core.Point, duration time.Duration) error {
	d.record("Swipe", from, to, duration)
	d.delay()
	if err := ctx.Err(); err != nil {
		return err
	}

	d.mu.Lock()
	d.swipeCount++
	n := d.swipeCount
	d.mu.Unlock()
	if d.Config.FailAllSwipes || n == d.Config.FailSwipeOn {
		return fmt.Errorf("mock swipe %d rejected", n)
	}
	return nil
}

// Back records a back press.
func (d *Driver) Back(ctx context.Context) error {
	d.record("Back")
	return ctx.Err()
}

// Screenshot returns a mock PNG image.
func (d *Driver) Screenshot(ctx context.Context) ([]byte, error) {
	d.record("Screenshot")
	if d.Config.ScreenshotErr != nil {
		return nil, d.Config.ScreenshotErr
	}
	return PNG, nil
}

func (d *Driver) delay() {
	if d.Config.StepDelay > 0 {
		time.Sleep(d.Config.StepDelay)
	}
}

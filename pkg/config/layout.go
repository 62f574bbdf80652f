package config

import (
	_ "embed"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/devicelab-dev/shopper-runner/pkg/core"
)

//go:embed layout.yaml
var defaultLayout []byte

// Layout is the fixed screen geometry the behavior script drives.
type Layout struct {
	HomeIcon    core.Locator `yaml:"homeIcon"`
	HomeMarker  core.Locator `yaml:"homeMarker"`
	SearchField core.Locator `yaml:"searchField"`

	SearchEntry  core.Point `yaml:"searchEntry"`
	SearchSubmit core.Point `yaml:"searchSubmit"`
	TapHoldMs    int        `yaml:"tapHoldMs"`

	HomeBrowse      []Swipe `yaml:"homeBrowse"`
	DetailDownQuick Swipe   `yaml:"detailDownQuick"`
	DetailDownSlow  Swipe   `yaml:"detailDownSlow"`
	DetailUp        Swipe   `yaml:"detailUp"`
}

// Swipe is a single-finger drag between two points.
type Swipe struct {
	From       core.Point `yaml:"from"`
	To         core.Point `yaml:"to"`
	DurationMs int        `yaml:"durationMs"`
}

// Duration returns the move duration of the swipe.
func (s Swipe) Duration() time.Duration {
	return time.Duration(s.DurationMs) * time.Millisecond
}

// TapHold returns the press duration for exact taps.
func (l *Layout) TapHold() time.Duration {
	return time.Duration(l.TapHoldMs) * time.Millisecond
}

// DefaultLayout returns the built-in layout.
func DefaultLayout() *Layout {
	l, err := ParseLayout(defaultLayout)
	if err != nil {
		panic(fmt.Sprintf("embedded layout is invalid: %v", err))
	}
	return l
}

// LoadLayout reads a layout file. An empty path yields the built-in layout.
func LoadLayout(path string) (*Layout, error) {
	if path == "" {
		return DefaultLayout(), nil
	}
	data, err := os.ReadFile(path) //#nosec G304 -- user-provided layout file
	if err != nil {
		return nil, err
	}
	return ParseLayout(data)
}

// ParseLayout decodes YAML layout data on top of the built-in defaults, so a
// file only needs the keys it changes.
func ParseLayout(data []byte) (*Layout, error) {
	var l Layout
	if err := yaml.Unmarshal(defaultLayout, &l); err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(data, &l); err != nil {
		return nil, fmt.Errorf("parse layout: %w", err)
	}
	if err := l.Validate(); err != nil {
		return nil, err
	}
	return &l, nil
}

// Validate checks that every element and gesture the script needs is present.
func (l *Layout) Validate() error {
	for name, loc := range map[string]core.Locator{
		"homeIcon":    l.HomeIcon,
		"homeMarker":  l.HomeMarker,
		"searchField": l.SearchField,
	} {
		if loc.Strategy == "" || loc.Value == "" {
			return core.ErrInvalidConfig.WithMessage("layout: " + name + " locator is incomplete")
		}
	}
	if len(l.HomeBrowse) == 0 {
		return core.ErrInvalidConfig.WithMessage("layout: homeBrowse needs at least one swipe")
	}
	if l.TapHoldMs < 0 {
		return core.ErrInvalidConfig.WithMessage("layout: tapHoldMs must not be negative")
	}
	return nil
}

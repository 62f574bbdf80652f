// Package device enumerates Android devices attached to the host via ADB.
package device

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"

	"go.uber.org/zap"
)

// Listing is one line of `adb devices` output.
type Listing struct {
	Serial string
	State  string // "device", "offline", "unauthorized", ...
}

// Available reports whether the device accepts commands.
func (l Listing) Available() bool {
	return l.State == "device"
}

// RunFunc executes a command and returns its standard output.
type RunFunc func(ctx context.Context, name string, args ...string) ([]byte, error)

// Lister queries ADB for attached devices.
type Lister struct {
	adbPath string // looked up in PATH when empty
	run     RunFunc
	log     *zap.Logger
}

// NewLister creates a lister using adb from PATH.
func NewLister(log *zap.Logger) *Lister {
	if log == nil {
		log = zap.NewNop()
	}
	return &Lister{run: runCommand, log: log}
}

// WithADB pins the adb binary instead of searching PATH.
func (l *Lister) WithADB(path string) *Lister {
	l.adbPath = path
	return l
}

// WithRunner replaces the command runner.
func (l *Lister) WithRunner(run RunFunc) *Lister {
	l.run = run
	return l
}

// ListDevices returns the serial of every attached device, whatever its
// state. When adb is missing or fails the error is logged and an empty
// slice returned.
func ListDevices(ctx context.Context, log *zap.Logger) []string {
	return NewLister(log).Serials(ctx)
}

// Serials returns the serial of every listed device.
func (l *Lister) Serials(ctx context.Context) []string {
	listings, err := l.List(ctx)
	if err != nil {
		l.log.Error("Failed to list devices", zap.Error(err))
		return []string{}
	}
	serials := make([]string, 0, len(listings))
	for _, d := range listings {
		serials = append(serials, d.Serial)
	}
	return serials
}

// List runs `adb devices` and parses its output.
func (l *Lister) List(ctx context.Context) ([]Listing, error) {
	path, err := l.findADB()
	if err != nil {
		return nil, err
	}
	out, err := l.run(ctx, path, "devices")
	if err != nil {
		return nil, fmt.Errorf("adb devices: %w", err)
	}
	listings := ParseDevices(out)
	l.log.Debug("Devices listed", zap.Int("count", len(listings)))
	return listings, nil
}

func (l *Lister) findADB() (string, error) {
	if l.adbPath != "" {
		return l.adbPath, nil
	}
	if path, err := exec.LookPath("adb"); err == nil {
		return path, nil
	}
	return "", fmt.Errorf("adb not found in PATH; ensure Android SDK is installed")
}

// ParseDevices parses `adb devices` output. The header line, blank lines and
// daemon notices ("* daemon started ...") are skipped; the first field of
// every other line is the serial.
func ParseDevices(out []byte) []Listing {
	var listings []Listing
	scanner := bufio.NewScanner(bytes.NewReader(out))
	header := true
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "*") {
			continue
		}
		if header {
			header = false
			if strings.HasPrefix(line, "List of") {
				continue
			}
		}
		parts := strings.Fields(line)
		listing := Listing{Serial: parts[0]}
		if len(parts) > 1 {
			listing.State = parts[1]
		}
		listings = append(listings, listing)
	}
	return listings
}

func runCommand(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		errMsg := strings.TrimSpace(stderr.String())
		if errMsg == "" {
			errMsg = strings.TrimSpace(stdout.String())
		}
		return nil, fmt.Errorf("%w: %s", err, errMsg)
	}
	return stdout.Bytes(), nil
}

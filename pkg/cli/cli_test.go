package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/devicelab-dev/shopper-runner/pkg/config"
	"github.com/devicelab-dev/shopper-runner/pkg/core"
	"github.com/devicelab-dev/shopper-runner/pkg/device"
	"github.com/devicelab-dev/shopper-runner/pkg/driver/appium/appiumtest"
)

// noPacing makes the routine run without real pauses for the test's duration.
func noPacing(t *testing.T) {
	t.Helper()
	scriptSleep = func(ctx context.Context, _ time.Duration) error { return ctx.Err() }
	t.Cleanup(func() { scriptSleep = nil })
}

// writeConfig writes a config.json pointing at server and returns its path.
func writeConfig(t *testing.T, dir string, values map[string]interface{}) string {
	t.Helper()
	base := map[string]interface{}{
		"homeMarkerTimeout": "1s",
		"screenshotDir":     filepath.Join(dir, "shots"),
		"maxIterations":     2,
		"logger": map[string]interface{}{
			"dir":   filepath.Join(dir, "logs"),
			"level": "debug",
		},
	}
	for k, v := range values {
		base[k] = v
	}
	data, err := json.Marshal(base)
	require.NoError(t, err)

	path := filepath.Join(dir, "config.json")
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func runApp(t *testing.T, args ...string) (string, error) {
	t.Helper()
	return runAppContext(t, context.Background(), args...)
}

func runAppContext(t *testing.T, ctx context.Context, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	app := NewApp()
	app.Writer = &out
	app.ErrWriter = &out
	err := app.RunContext(ctx, append([]string{"shopper-runner"}, args...))
	return out.String(), err
}

// summaryLine returns the fields of the summary row for device.
func summaryLine(t *testing.T, out, device string) []string {
	t.Helper()
	for _, line := range strings.Split(out, "\n") {
		fields := strings.Fields(line)
		if len(fields) >= 3 && fields[0] == device {
			return fields
		}
	}
	t.Fatalf("no summary line for %s in:\n%s", device, out)
	return nil
}

func TestRun_ConfigMissing(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "nope.json")

	_, err := runApp(t, "--config", missing, "run", "--device", "ABCD1234")
	require.Error(t, err)
	assert.True(t, errors.Is(err, core.ErrConfigMissing))
	assert.True(t, errors.Is(err, fs.ErrNotExist))
}

func TestRun_EndToEnd(t *testing.T) {
	noPacing(t)
	server := appiumtest.NewServer()
	defer server.Close()

	dir := t.TempDir()
	cfgPath := writeConfig(t, dir, map[string]interface{}{
		"server":  server.Host(),
		"port":    server.Port(),
		"keyword": "hello",
		"devices": []map[string]interface{}{{"device_name": "device1", "udid": "ABCD1234"}},
	})

	out, err := runApp(t, "--config", cfgPath, "run", "--seed", "5")
	require.NoError(t, err, out)
	assert.Contains(t, out, "1 completed, 0 failed")
	assert.Equal(t, []string{"hello"}, server.Typed())
	assert.Equal(t, 0, server.OpenSessions())

	logFile := filepath.Join(dir, "logs", time.Now().Format("2006-01-02")+".log")
	data, err := os.ReadFile(logFile)
	require.NoError(t, err)
	logs := string(data)
	assert.Contains(t, logs, "Navigated to home successfully.")
	assert.Contains(t, logs, `"keyword":"hello"`)
	assert.Contains(t, logs, "Product detail iteration 2")
	assert.Contains(t, logs, `"device":"ABCD1234"`)
}

func TestRun_FlagOverrides(t *testing.T) {
	noPacing(t)
	server := appiumtest.NewServer()
	defer server.Close()

	dir := t.TempDir()
	cfgPath := writeConfig(t, dir, map[string]interface{}{
		"server": server.Host(),
		"port":   server.Port(),
	})

	out, err := runApp(t, "--config", cfgPath, "run",
		"--device", "A1, B2,A1", "--keyword", "鞋子", "--max-iterations", "1")
	require.NoError(t, err, out)
	assert.Contains(t, out, "2 completed, 0 failed")
	assert.Equal(t, []string{"鞋子", "鞋子"}, server.Typed())
	assert.Equal(t, 2, server.Count("session"))
}

func TestRun_UnreachableServerFails(t *testing.T) {
	noPacing(t)
	server := appiumtest.NewServer()
	host, port := server.Host(), server.Port()
	server.Close()

	dir := t.TempDir()
	cfgPath := writeConfig(t, dir, map[string]interface{}{"server": host, "port": port})

	out, err := runApp(t, "--config", cfgPath, "run", "--device", "ABCD1234")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 of 1 devices failed")
	fields := summaryLine(t, out, "ABCD1234")
	assert.Equal(t, []string{"ABCD1234", "FAILED", "-"}, fields[:3])
	assert.NotContains(t, out, "degraded")
}

func TestRun_CancelledRunShutsDownCleanly(t *testing.T) {
	noPacing(t)
	server := appiumtest.NewServer()
	defer server.Close()

	dir := t.TempDir()
	cfgPath := writeConfig(t, dir, map[string]interface{}{
		"server":        server.Host(),
		"port":          server.Port(),
		"maxIterations": 0,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		deadline := time.After(10 * time.Second)
		for server.Count("actions") < 5 {
			select {
			case <-deadline:
				cancel()
				return
			case <-time.After(5 * time.Millisecond):
			}
		}
		cancel()
	}()

	out, err := runAppContext(t, ctx, "--config", cfgPath, "run",
		"--device", "ABCD1234", "--metrics-addr", "127.0.0.1:0")
	require.NoError(t, err, out)
	assert.Equal(t, []string{"ABCD1234", "COMPLETED", "ready"}, summaryLine(t, out, "ABCD1234")[:3])
	assert.Equal(t, 0, server.OpenSessions())

	logFile := filepath.Join(dir, "logs", time.Now().Format("2006-01-02")+".log")
	data, err := os.ReadFile(logFile)
	require.NoError(t, err)
	logs := string(data)

	assert.Contains(t, logs, "Serving metrics")
	stopped := strings.Index(logs, "Run stopped")
	finished := strings.LastIndex(logs, "Run finished")
	require.GreaterOrEqual(t, stopped, 0, "worker logs the stop")
	require.GreaterOrEqual(t, finished, 0, "pool summary reaches the file before it is closed")
	assert.Less(t, stopped, finished)
}

func TestRun_InvalidOverride(t *testing.T) {
	dir := t.TempDir()
	cfgPath := writeConfig(t, dir, nil)

	_, err := runApp(t, "--config", cfgPath, "run", "--device", "x", "--max-iterations", "-1")
	require.Error(t, err)
	assert.True(t, errors.Is(err, core.ErrInvalidConfig))
}

func TestDevices(t *testing.T) {
	newLister = func(log *zap.Logger) *device.Lister {
		return device.NewLister(log).WithADB("/fake/adb").WithRunner(
			func(ctx context.Context, name string, args ...string) ([]byte, error) {
				return []byte("List of devices attached\nABCD1234\tdevice\nEFGH5678\tunauthorized\n"), nil
			})
	}
	t.Cleanup(func() { newLister = device.NewLister })

	out, err := runApp(t, "devices")
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, []string{"SERIAL", "STATE", "READY"}, strings.Fields(lines[0]))
	assert.Equal(t, []string{"ABCD1234", "device", "yes"}, strings.Fields(lines[1]))
	assert.Equal(t, []string{"EFGH5678", "unauthorized", "no"}, strings.Fields(lines[2]))
}

func TestDevices_AdbFailure(t *testing.T) {
	newLister = func(log *zap.Logger) *device.Lister {
		return device.NewLister(log).WithADB("/fake/adb").WithRunner(
			func(ctx context.Context, name string, args ...string) ([]byte, error) {
				return nil, errors.New("daemon not running")
			})
	}
	t.Cleanup(func() { newLister = device.NewLister })

	_, err := runApp(t, "devices")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "daemon not running")
}

func TestSerialsToDevices(t *testing.T) {
	got := serialsToDevices([]string{" A1", "", "B2", "A1 "})
	assert.Equal(t, []config.DeviceConfig{
		{DeviceName: "A1", UDID: "A1"},
		{DeviceName: "B2", UDID: "B2"},
	}, got)
}

package config

import (
	"io/fs"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/devicelab-dev/shopper-runner/pkg/core"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoad_ValidConfig(t *testing.T) {
	path := writeConfig(t, `{
  "server": "10.0.0.5",
  "port": 4800,
  "appPackage": "com.example.shop",
  "keyword": "shoes",
  "quick": false,
  "maxIterations": 25,
  "maxDuration": "10m",
  "homeMarkerTimeout": "20s",
  "devices": [
    {"device_name": "device1", "udid": "ABCD1234"},
    {"device_name": "device2", "udid": "EFGH5678", "keyword": "socks"}
  ],
  "logger": {"level": "info", "dir": "logs"}
}`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "10.0.0.5", cfg.Server)
	assert.Equal(t, 4800, cfg.Port)
	assert.Equal(t, "com.example.shop", cfg.AppPackage)
	assert.False(t, cfg.Quick)
	assert.Equal(t, 25, cfg.MaxIterations)
	assert.Equal(t, 10*time.Minute, cfg.MaxDuration)
	assert.Equal(t, 20*time.Second, cfg.HomeMarkerTimeout)
	require.Len(t, cfg.Devices, 2)
	assert.Equal(t, "socks", cfg.Devices[1].Keyword)
	assert.Equal(t, "info", cfg.Logger.Level)
	assert.Equal(t, "logs", cfg.Logger.Dir)

	// untouched keys keep their defaults
	assert.Equal(t, "UiAutomator2", cfg.AutomationName)
	assert.Equal(t, "shopper-runner", cfg.Logger.ServiceName)
}

func TestLoad_NumericDurationsAreSeconds(t *testing.T) {
	cfg, err := Load(writeConfig(t, `{"homeMarkerTimeout": 15, "maxDuration": 600}`))
	require.NoError(t, err)

	assert.Equal(t, 15*time.Second, cfg.HomeMarkerTimeout)
	assert.Equal(t, 10*time.Minute, cfg.MaxDuration)

	cfg, err = Load(writeConfig(t, `{"homeMarkerTimeout": 1.5}`))
	require.NoError(t, err)
	assert.Equal(t, 1500*time.Millisecond, cfg.HomeMarkerTimeout)
}

func TestLoad_NumericDurationFromEnv(t *testing.T) {
	t.Setenv("SHOPPER_HOMEMARKERTIMEOUT", "30")

	cfg, err := Load(writeConfig(t, `{}`))
	require.NoError(t, err)
	assert.Equal(t, 30*time.Second, cfg.HomeMarkerTimeout)
}

func TestLoad_DefaultDurationsUnchanged(t *testing.T) {
	cfg, err := Load(writeConfig(t, `{}`))
	require.NoError(t, err)

	assert.Equal(t, 15*time.Second, cfg.HomeMarkerTimeout)
	assert.Zero(t, cfg.MaxDuration)
}

func TestLoad_InvalidDuration(t *testing.T) {
	_, err := Load(writeConfig(t, `{"homeMarkerTimeout": "soon"}`))
	assert.ErrorIs(t, err, core.ErrInvalidConfig)
}

func TestLoad_NonExistentFile(t *testing.T) {
	cfg, err := Load("/nonexistent/config.json")
	require.Error(t, err)
	assert.Nil(t, cfg, "no partial config should be returned")
	assert.ErrorIs(t, err, fs.ErrNotExist)
	assert.ErrorIs(t, err, core.ErrConfigMissing)
}

func TestLoad_InvalidJSON(t *testing.T) {
	cfg, err := Load(writeConfig(t, `{"server": `))
	require.Error(t, err)
	assert.Nil(t, cfg, "no partial config should be returned")
}

func TestLoad_EmptyObjectUsesDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, `{}`))
	require.NoError(t, err)

	def := Default()
	assert.Equal(t, def.Server, cfg.Server)
	assert.Equal(t, def.Port, cfg.Port)
	assert.Equal(t, def.Keyword, cfg.Keyword)
}

func TestLoad_InvalidPort(t *testing.T) {
	_, err := Load(writeConfig(t, `{"port": 0}`))
	assert.ErrorIs(t, err, core.ErrInvalidConfig)
}

func TestLoad_DeviceWithoutIdentity(t *testing.T) {
	_, err := Load(writeConfig(t, `{"devices": [{"keyword": "x"}]}`))
	assert.ErrorIs(t, err, core.ErrInvalidConfig)
}

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, "localhost", cfg.Server)
	assert.Equal(t, 4723, cfg.Port)
	assert.Equal(t, 15*time.Second, cfg.HomeMarkerTimeout)
	assert.True(t, cfg.ProceedOnDegraded)
	assert.Zero(t, cfg.MaxIterations, "scroll loop should be unbounded by default")
	assert.Zero(t, cfg.MaxDuration, "scroll loop should be unbounded by default")
}

func TestCapabilities(t *testing.T) {
	cfg := Default()

	caps := cfg.Capabilities(DeviceConfig{})
	assert.NotContains(t, caps, "appium:deviceName", "deviceName should not be pinned when empty")
	assert.NotContains(t, caps, "appium:udid", "udid should not be pinned when empty")
	assert.Equal(t, "Android", caps["platformName"])
	for _, key := range []string{
		"appium:automationName", "appium:appPackage", "appium:appActivity",
		"appium:forceAppLaunch", "appium:noReset", "appium:printPageSourceOnFindFailure",
		"appium:skipDeviceInitialization", "appium:unicodeKeyboard",
	} {
		assert.Contains(t, caps, key)
	}

	caps = cfg.Capabilities(DeviceConfig{DeviceName: "device1", UDID: "ABCD1234"})
	assert.Equal(t, "device1", caps["appium:deviceName"])
	assert.Equal(t, "ABCD1234", caps["appium:udid"])
}

func TestServerURL(t *testing.T) {
	cfg := Default()

	assert.Equal(t, "http://localhost:4723", cfg.ServerURL(DeviceConfig{}))
	assert.Equal(t, "http://farm:5000", cfg.ServerURL(DeviceConfig{Server: "farm", Port: 5000}))
}

func TestKeywordFor(t *testing.T) {
	cfg := Default()
	assert.Equal(t, "hello", cfg.KeywordFor(DeviceConfig{}))
	assert.Equal(t, "tea", cfg.KeywordFor(DeviceConfig{Keyword: "tea"}))
}

func TestDeviceConfig_ID(t *testing.T) {
	assert.Equal(t, "u", DeviceConfig{DeviceName: "d", UDID: "u"}.ID())
	assert.Equal(t, "d", DeviceConfig{DeviceName: "d"}.ID())
}

// Package config handles configuration for shopper-runner.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"github.com/devicelab-dev/shopper-runner/pkg/core"
)

// DefaultConfigFile is the file looked up when no --config flag is given.
const DefaultConfigFile = "config.json"

// Config represents the session configuration (config.json).
type Config struct {
	// Automation server endpoint
	Server string `mapstructure:"server"`
	Port   int    `mapstructure:"port"`

	// Capability payload
	PlatformName                 string `mapstructure:"platformName"`
	AutomationName               string `mapstructure:"automationName"`
	AppPackage                   string `mapstructure:"appPackage"`
	AppActivity                  string `mapstructure:"appActivity"`
	ForceAppLaunch               bool   `mapstructure:"forceAppLaunch"`
	NoReset                      bool   `mapstructure:"noReset"`
	PrintPageSourceOnFindFailure bool   `mapstructure:"printPageSourceOnFindFailure"`
	SkipDeviceInitialization     bool   `mapstructure:"skipDeviceInitialization"`
	UnicodeKeyboard              bool   `mapstructure:"unicodeKeyboard"`

	// Session behavior
	HomeMarkerTimeout time.Duration `mapstructure:"homeMarkerTimeout"`
	ProceedOnDegraded bool          `mapstructure:"proceedOnDegraded"`
	ScreenshotDir     string        `mapstructure:"screenshotDir"`
	LayoutFile        string        `mapstructure:"layoutFile"`

	// Script behavior
	Keyword       string        `mapstructure:"keyword"`
	Quick         bool          `mapstructure:"quick"`
	MaxIterations int           `mapstructure:"maxIterations"` // 0 = scroll until stopped
	MaxDuration   time.Duration `mapstructure:"maxDuration"`   // 0 = scroll until stopped

	Devices     []DeviceConfig `mapstructure:"devices"`
	MetricsAddr string         `mapstructure:"metricsAddr"`
	Logger      LoggerConfig   `mapstructure:"logger"`
}

// DeviceConfig identifies one device and the search term to use on it.
type DeviceConfig struct {
	DeviceName string `mapstructure:"device_name" json:"device_name"`
	UDID       string `mapstructure:"udid" json:"udid"`
	Keyword    string `mapstructure:"keyword" json:"keyword,omitempty"`

	// Optional per-device endpoint override
	Server string `mapstructure:"server" json:"server,omitempty"`
	Port   int    `mapstructure:"port" json:"port,omitempty"`
}

// ID returns the identifier used in logs: udid when known, else the device name.
func (d DeviceConfig) ID() string {
	if d.UDID != "" {
		return d.UDID
	}
	return d.DeviceName
}

// LoggerConfig controls the console and file log sinks.
type LoggerConfig struct {
	Level       string `mapstructure:"level"`
	Format      string `mapstructure:"format"` // console or json (console sink only)
	Dir         string `mapstructure:"dir"`    // "" disables the file sink
	ServiceName string `mapstructure:"serviceName"`
	MaxSizeMB   int    `mapstructure:"maxSizeMB"`
	MaxBackups  int    `mapstructure:"maxBackups"`
	Compress    bool   `mapstructure:"compress"`
}

// SetDefaults registers every default value on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("server", "localhost")
	v.SetDefault("port", 4723)

	v.SetDefault("platformName", "Android")
	v.SetDefault("automationName", "UiAutomator2")
	v.SetDefault("appPackage", "com.xunmeng.pinduoduo")
	v.SetDefault("appActivity", ".ui.activity.MainFrameActivity")
	v.SetDefault("forceAppLaunch", true)
	v.SetDefault("noReset", true)
	v.SetDefault("printPageSourceOnFindFailure", true)
	v.SetDefault("skipDeviceInitialization", true)
	v.SetDefault("unicodeKeyboard", true)

	v.SetDefault("homeMarkerTimeout", 15*time.Second)
	v.SetDefault("proceedOnDegraded", true)
	v.SetDefault("screenshotDir", ".")
	v.SetDefault("layoutFile", "")

	v.SetDefault("keyword", "hello")
	v.SetDefault("quick", true)
	v.SetDefault("maxIterations", 0)
	v.SetDefault("maxDuration", time.Duration(0))

	v.SetDefault("metricsAddr", "")

	v.SetDefault("logger.level", "debug")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.dir", ".")
	v.SetDefault("logger.serviceName", "shopper-runner")
	v.SetDefault("logger.maxSizeMB", 100)
	v.SetDefault("logger.maxBackups", 7)
	v.SetDefault("logger.compress", false)
}

// Default returns a configuration made only of defaults.
func Default() *Config {
	v := viper.New()
	SetDefaults(v)
	cfg, err := fromViper(v)
	if err != nil {
		// Defaults are static; failing here is a programming error.
		panic(err)
	}
	return cfg
}

// Load loads configuration from a JSON file. A missing file is fatal and
// returns ErrConfigMissing wrapping fs.ErrNotExist; no partial config is returned.
func Load(path string) (*Config, error) {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, core.ErrConfigMissing.WithMessage("configuration file not found: " + path).WithCause(err)
		}
		return nil, err
	}

	v := viper.New()
	SetDefaults(v)
	v.SetConfigFile(path)
	v.SetConfigType("json")
	v.SetEnvPrefix("SHOPPER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, core.ErrInvalidConfig.WithMessage("failed to read " + path).WithCause(err)
	}

	return fromViper(v)
}

func fromViper(v *viper.Viper) (*Config, error) {
	var cfg Config
	hooks := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		secondsToDurationHook(),
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	))
	if err := v.Unmarshal(&cfg, hooks); err != nil {
		return nil, core.ErrInvalidConfig.WithMessage("failed to decode configuration").WithCause(err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

var durationType = reflect.TypeOf(time.Duration(0))

// secondsToDurationHook decodes bare numbers into durations as seconds, so
// "homeMarkerTimeout": 15 means 15s. Strings with a unit ("15s", "2m")
// fall through to the standard duration hook; unitless numeric strings
// (from environment variables) are seconds too.
func secondsToDurationHook() mapstructure.DecodeHookFuncType {
	return func(from, to reflect.Type, data interface{}) (interface{}, error) {
		if to != durationType || from == durationType {
			return data, nil
		}
		switch from.Kind() {
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
			return time.Duration(reflect.ValueOf(data).Int()) * time.Second, nil
		case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
			return time.Duration(reflect.ValueOf(data).Uint()) * time.Second, nil
		case reflect.Float32, reflect.Float64:
			return time.Duration(reflect.ValueOf(data).Float() * float64(time.Second)), nil
		case reflect.String:
			if secs, err := strconv.ParseFloat(strings.TrimSpace(reflect.ValueOf(data).String()), 64); err == nil {
				return time.Duration(secs * float64(time.Second)), nil
			}
		}
		return data, nil
	}
}

// Validate checks the fields a session cannot start without.
func (c *Config) Validate() error {
	switch {
	case c.Server == "":
		return core.ErrInvalidConfig.WithMessage("server must not be empty")
	case c.Port <= 0 || c.Port > 65535:
		return core.ErrInvalidConfig.WithMessage(fmt.Sprintf("port out of range: %d", c.Port))
	case c.AppPackage == "":
		return core.ErrInvalidConfig.WithMessage("appPackage must not be empty")
	case c.HomeMarkerTimeout < 0:
		return core.ErrInvalidConfig.WithMessage("homeMarkerTimeout must not be negative")
	case c.MaxIterations < 0:
		return core.ErrInvalidConfig.WithMessage("maxIterations must not be negative")
	case c.MaxDuration < 0:
		return core.ErrInvalidConfig.WithMessage("maxDuration must not be negative")
	}
	for i, d := range c.Devices {
		if d.ID() == "" {
			return core.ErrInvalidConfig.WithMessage(fmt.Sprintf("devices[%d] needs device_name or udid", i))
		}
	}
	return nil
}

// ServerURL returns the automation endpoint for dev, honoring its overrides.
func (c *Config) ServerURL(dev DeviceConfig) string {
	server, port := c.Server, c.Port
	if dev.Server != "" {
		server = dev.Server
	}
	if dev.Port > 0 {
		port = dev.Port
	}
	return "http://" + server + ":" + strconv.Itoa(port)
}

// Capabilities builds the capability payload for dev. Device name and udid
// are pinned only when provided.
func (c *Config) Capabilities(dev DeviceConfig) map[string]interface{} {
	caps := map[string]interface{}{
		"platformName":                        c.PlatformName,
		"appium:automationName":               c.AutomationName,
		"appium:appPackage":                   c.AppPackage,
		"appium:appActivity":                  c.AppActivity,
		"appium:forceAppLaunch":               c.ForceAppLaunch,
		"appium:noReset":                      c.NoReset,
		"appium:printPageSourceOnFindFailure": c.PrintPageSourceOnFindFailure,
		"appium:skipDeviceInitialization":     c.SkipDeviceInitialization,
		"appium:unicodeKeyboard":              c.UnicodeKeyboard,
	}
	if dev.DeviceName != "" {
		caps["appium:deviceName"] = dev.DeviceName
	}
	if dev.UDID != "" {
		caps["appium:udid"] = dev.UDID
	}
	return caps
}

// KeywordFor returns the device keyword, falling back to the global one.
func (c *Config) KeywordFor(dev DeviceConfig) string {
	if dev.Keyword != "" {
		return dev.Keyword
	}
	return c.Keyword
}

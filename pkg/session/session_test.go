package session

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/devicelab-dev/shopper-runner/pkg/config"
	"github.com/devicelab-dev/shopper-runner/pkg/core"
	"github.com/devicelab-dev/shopper-runner/pkg/driver/mock"
	"github.com/devicelab-dev/shopper-runner/pkg/humanize"
)

var testDevice = config.DeviceConfig{DeviceName: "device1", UDID: "ABCD1234"}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.ScreenshotDir = t.TempDir()
	cfg.HomeMarkerTimeout = 30 * time.Millisecond
	return cfg
}

func openTest(t *testing.T, cfg *config.Config, drv *mock.Driver) (*Session, core.Readiness, *observer.ObservedLogs, error) {
	t.Helper()
	zc, logs := observer.New(zapcore.DebugLevel)
	s, r, err := Open(context.Background(), cfg, testDevice, Options{
		Driver:       drv,
		Logger:       zap.New(zc),
		Rand:         humanize.NewRand(42),
		PollInterval: 5 * time.Millisecond,
	})
	return s, r, logs, err
}

func TestOpen_Ready(t *testing.T) {
	drv := mock.New(mock.Config{})
	s, readiness, _, err := openTest(t, testConfig(t), drv)
	require.NoError(t, err)
	require.NotNil(t, s)

	assert.Equal(t, core.Ready, readiness)
	assert.True(t, drv.Connected())

	calls := drv.Calls()
	require.NotEmpty(t, calls)
	caps := calls[0].Args[0].(map[string]interface{})
	assert.Equal(t, "ABCD1234", caps["appium:udid"])
	assert.Equal(t, "com.xunmeng.pinduoduo", caps["appium:appPackage"])
}

func TestOpen_WaitsForHomeMarker(t *testing.T) {
	cfg := testConfig(t)
	cfg.HomeMarkerTimeout = time.Second
	marker := config.DefaultLayout().HomeMarker.Value
	drv := mock.New(mock.Config{MissingUntil: map[string]int{marker: 3}})

	_, readiness, _, err := openTest(t, cfg, drv)
	require.NoError(t, err)
	assert.Equal(t, core.Ready, readiness)
	assert.Equal(t, 4, drv.Count("FindElement"))
}

func TestOpen_DegradedOnTimeout(t *testing.T) {
	cfg := testConfig(t)
	marker := config.DefaultLayout().HomeMarker.Value
	drv := mock.New(mock.Config{Missing: map[string]bool{marker: true}})

	s, readiness, logs, err := openTest(t, cfg, drv)
	require.NoError(t, err)
	require.NotNil(t, s, "degraded session must stay usable")
	assert.Equal(t, core.DegradedReady, readiness)

	errs := logs.FilterLevelExact(zapcore.ErrorLevel).FilterMessage("Home marker not found")
	assert.Equal(t, 1, errs.Len())

	want := core.ScreenshotPath(cfg.ScreenshotDir, time.Now(), core.TagReadinessWait)
	_, statErr := os.Stat(want)
	assert.NoError(t, statErr, "readiness screenshot should be written")
}

func TestOpen_ConnectionFailure(t *testing.T) {
	drv := mock.New(mock.Config{ConnectErr: errors.New("connection refused")})
	s, _, _, err := openTest(t, testConfig(t), drv)

	assert.Nil(t, s)
	require.Error(t, err)
	assert.True(t, errors.Is(err, core.ErrConnection))
	assert.Equal(t, core.ErrCategoryConnection, core.CategoryOf(err))
	assert.Contains(t, err.Error(), "connection refused")
}

func TestOpen_CancelledDuringWaitClosesSession(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	drv := mock.New(mock.Config{})

	s, _, err := Open(ctx, testConfig(t), testDevice, Options{Driver: drv})
	assert.Nil(t, s)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, drv.Count("Disconnect"))
}

func TestSwipe_SameJitterOnBothEnds(t *testing.T) {
	drv := mock.New(mock.Config{})
	s, _, _, err := openTest(t, testConfig(t), drv)
	require.NoError(t, err)

	from, to := core.Point{X: 531, Y: 2110}, core.Point{X: 544, Y: 754}
	for i := 0; i < 200; i++ {
		require.NoError(t, s.Swipe(context.Background(), from, to, 250*time.Millisecond))
	}

	swipes := drv.Swipes()
	require.Len(t, swipes, 200)
	for _, sw := range swipes {
		dx, dy := sw[0].X-from.X, sw[0].Y-from.Y
		assert.Equal(t, dx, sw[1].X-to.X)
		assert.Equal(t, dy, sw[1].Y-to.Y)
		assert.True(t, dx >= -humanize.MaxJitterX && dx <= humanize.MaxJitterX, "dx=%d", dx)
		assert.True(t, dy >= -humanize.MaxJitterY && dy <= humanize.MaxJitterY, "dy=%d", dy)
	}
}

func TestSwipe_FailureIsGestureError(t *testing.T) {
	drv := mock.New(mock.Config{FailAllSwipes: true})
	s, _, _, err := openTest(t, testConfig(t), drv)
	require.NoError(t, err)

	err = s.SwipeGesture(context.Background(), s.Layout().DetailUp)
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrGesture)
}

func TestTapExact_NoJitter(t *testing.T) {
	drv := mock.New(mock.Config{})
	s, _, _, err := openTest(t, testConfig(t), drv)
	require.NoError(t, err)

	p := core.Point{X: 508, Y: 150}
	require.NoError(t, s.TapExact(context.Background(), p, 100*time.Millisecond))

	var press mock.Call
	for _, c := range drv.Calls() {
		if c.Method == "Press" {
			press = c
		}
	}
	assert.Equal(t, p, press.Args[0])
	assert.Equal(t, 100*time.Millisecond, press.Args[1])
}

func TestTap_Jittered(t *testing.T) {
	drv := mock.New(mock.Config{})
	s, _, _, err := openTest(t, testConfig(t), drv)
	require.NoError(t, err)

	p := core.Point{X: 500, Y: 1000}
	for i := 0; i < 50; i++ {
		require.NoError(t, s.Tap(context.Background(), p))
	}
	for _, c := range drv.Calls() {
		if c.Method != "Press" {
			continue
		}
		got := c.Args[0].(core.Point)
		assert.LessOrEqual(t, abs(got.X-p.X), humanize.MaxJitterX)
		assert.LessOrEqual(t, abs(got.Y-p.Y), humanize.MaxJitterY)
	}
}

func TestFindElement_NotFound(t *testing.T) {
	drv := mock.New(mock.Config{Missing: map[string]bool{"//missing": true}})
	s, _, _, err := openTest(t, testConfig(t), drv)
	require.NoError(t, err)

	el, err := s.FindElement(context.Background(), core.Locator{Strategy: "xpath", Value: "//missing"})
	assert.Nil(t, el)
	assert.ErrorIs(t, err, core.ErrElementNotFound)
	assert.Equal(t, core.ErrCategoryElement, core.CategoryOf(err))
}

func TestElement_ClickAndSendKeys(t *testing.T) {
	drv := mock.New(mock.Config{})
	s, _, _, err := openTest(t, testConfig(t), drv)
	require.NoError(t, err)

	el, err := s.FindElement(context.Background(), s.Layout().SearchField)
	require.NoError(t, err)
	require.NoError(t, el.Click(context.Background()))
	require.NoError(t, el.SendKeys(context.Background(), "hello"))

	assert.Equal(t, 1, drv.Count("ClickElement"))
	calls := drv.Calls()
	last := calls[len(calls)-1]
	assert.Equal(t, "SendKeysToElement", last.Method)
	assert.Equal(t, []interface{}{el.ID(), "hello"}, last.Args)
}

func TestScreenshot_WritesTaggedFile(t *testing.T) {
	cfg := testConfig(t)
	drv := mock.New(mock.Config{})
	s, _, _, err := openTest(t, cfg, drv)
	require.NoError(t, err)

	path := s.Screenshot(context.Background(), core.TagSearch)
	require.NotEmpty(t, path)
	assert.Equal(t, cfg.ScreenshotDir, filepath.Dir(path))
	assert.Equal(t, core.ScreenshotName(time.Now(), core.TagSearch), filepath.Base(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, mock.PNG, data)
}

func TestScreenshot_FailureIsLoggedNotRaised(t *testing.T) {
	drv := mock.New(mock.Config{ScreenshotErr: errors.New("device offline")})
	s, _, logs, err := openTest(t, testConfig(t), drv)
	require.NoError(t, err)

	path := s.Screenshot(context.Background(), core.TagProductDetail)
	assert.Empty(t, path)
	assert.Equal(t, 1, logs.FilterMessage("Failed to take screenshot").Len())
}

func TestClose_Twice(t *testing.T) {
	drv := mock.New(mock.Config{})
	s, _, _, err := openTest(t, testConfig(t), drv)
	require.NoError(t, err)

	require.NoError(t, s.Close(context.Background()))
	assert.False(t, drv.Connected())

	err = s.Close(context.Background())
	assert.ErrorIs(t, err, core.ErrSessionClosed)
	assert.Equal(t, 1, drv.Count("Disconnect"))

	assert.Empty(t, s.Screenshot(context.Background(), "after_close"))
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}

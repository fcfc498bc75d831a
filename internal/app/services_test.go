package app

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dokzlo13/cubehook/internal/config"
	"github.com/dokzlo13/cubehook/internal/device/sim"
	"github.com/dokzlo13/cubehook/internal/ledger"
	"github.com/dokzlo13/cubehook/internal/scripts"
)

func testConfig(t *testing.T, body string) (*config.Config, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	cfg, err := config.Load(path)
	require.NoError(t, err)
	return cfg, path
}

func TestNewServicesWiresLedgerAndScript(t *testing.T) {
	cfg, path := testConfig(t, `
device:
  driver: sim
  sim:
    step_delay: 1ms
sequences:
  light_hold: 10ms
  script: seq.lua
ledger:
  enabled: true
shutdown_timeout: 1s
`)
	cfg.Ledger.Path = filepath.Join(t.TempDir(), "runs.sqlite")
	require.NoError(t, os.WriteFile(filepath.Join(filepath.Dir(path), "seq.lua"), []byte(`
local robot = require("robot")
robot.define("wave", "/wave", {steps = {robot.lift(1)}, cleanup = robot.lift(0)})
`), 0o600))

	s, err := NewServices(cfg, path)
	require.NoError(t, err)

	_, ok := s.Registry.Get("wave")
	require.True(t, ok)
	_, ok = s.Registry.Get(scripts.KindBuildNotification)
	require.True(t, ok)

	_, err = s.Dispatcher.Handle(context.Background(), "wave", nil)
	require.NoError(t, err)

	var runs []*ledger.Entry
	require.Eventually(t, func() bool {
		runs, err = s.Ledger.Recent(context.Background(), 10)
		return err == nil && len(runs) == 1
	}, 2*time.Second, 10*time.Millisecond)
	require.Equal(t, "wave", runs[0].Kind)
	require.Equal(t, "completed", runs[0].Result)

	robot, ok := s.Device.(*sim.Robot)
	require.True(t, ok)
	require.Zero(t, robot.LiftHeight())

	require.NoError(t, s.Stop())
}

func TestHealthReady(t *testing.T) {
	cfg, _ := testConfig(t, "healthcheck:\n  enabled: true\n")
	robot := sim.New(sim.Config{})
	h := NewHealthService(cfg, robot).Handler()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	robot.Close()
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestNewDeviceUnknownDriver(t *testing.T) {
	_, err := NewDevice(config.DeviceConfig{Driver: "serial"})
	require.Error(t, err)
}

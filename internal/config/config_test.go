package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseEnvDefaults(t *testing.T) {
	cfg, err := ParseEnv()

	require.NoError(t, err)
	assert.True(t, cfg.HubBase64)
	assert.Equal(t, 2, cfg.SimPods)
	assert.Equal(t, 10*time.Second, cfg.ConnectTimeout)
}

func TestParseEnvOverrides(t *testing.T) {
	t.Setenv("NX_HUB_URL", "ws://hub.local:8080/ble")
	t.Setenv("NX_HUB_BASE64", "false")
	t.Setenv("NX_SIMULATE", "true")
	t.Setenv("NX_SIM_PODS", "4")
	t.Setenv("NX_CONNECT_TIMEOUT", "3s")

	cfg, err := ParseEnv()

	require.NoError(t, err)
	assert.Equal(t, Env{
		HubURL:         "ws://hub.local:8080/ble",
		Simulate:       true,
		SimPods:        4,
		ConnectTimeout: 3 * time.Second,
	}, cfg)
}

func TestParseEnvError(t *testing.T) {
	t.Setenv("NX_SIM_PODS", "lots")

	_, err := ParseEnv()

	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse env:")
}

func TestLoadDefaults(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	cfg, err := Load(nil)
	require.NoError(t, err)

	presets, err := Path(cfg, PresetsPathKey)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, ".neoxalle", "presets.toml"), presets)
	assert.Equal(t, "warn", cfg.GetString(LogLevelKey))
}

func TestLoadReadsConfigFile(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	dir := filepath.Join(home, ".neoxalle")
	require.NoError(t, os.MkdirAll(dir, 0o700))
	body := "[history]\npath = \"/var/lib/nx/history.db\"\n\n[log]\nlevel = \"debug\"\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.toml"), []byte(body), 0o600))

	cfg, err := Load(viper.New())
	require.NoError(t, err)

	history, err := Path(cfg, HistoryPathKey)
	require.NoError(t, err)
	assert.Equal(t, "/var/lib/nx/history.db", history)
	assert.Equal(t, "debug", cfg.GetString(LogLevelKey))
}

func TestLoadRejectsBrokenConfig(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	dir := filepath.Join(home, ".neoxalle")
	require.NoError(t, os.MkdirAll(dir, 0o700))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.toml"), []byte("[history\n"), 0o600))

	_, err := Load(nil)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "read config file")
}

func TestPathRejectsEmptyValue(t *testing.T) {
	cfg := viper.New()
	cfg.Set(PresetsPathKey, "")

	_, err := Path(cfg, PresetsPathKey)

	require.Error(t, err)
}

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// TestValidateServer checks required fields and format validations for the server.
func TestValidateServer(t *testing.T) {
	t.Parallel()

	// Missing listen address.
	err := ValidateServer(new(Config))
	require.ErrorIs(t, err, errListenAddressRequired)

	// Bad listen address.
	err = ValidateServer(&Config{ListenAddress: "bad:address"})
	require.Error(t, err)

	// Bad admin address.
	err = ValidateServer(&Config{ListenAddress: ":7070", AdminAddress: "nope"})
	require.Error(t, err)

	// Okay, defaults applied.
	cfg := &Config{ListenAddress: "127.0.0.1:0"}
	require.NoError(t, ValidateServer(cfg))
	require.Equal(t, DefaultInterval, cfg.Interval)
	require.Equal(t, DefaultMaxClients, cfg.MaxClients)
	require.Equal(t, DefaultAlarmsFilename, cfg.AlarmsFile)
}

// TestValidateClient checks required fields for the client.
func TestValidateClient(t *testing.T) {
	t.Parallel()

	require.ErrorIs(t, ValidateClient(new(Config)), errServerAddressRequired)
	require.Error(t, ValidateClient(&Config{ServerAddress: "localhost"}))
	require.ErrorIs(t, ValidateClient(&Config{ServerAddress: "localhost:7070"}), errIdentityRequired)
	require.NoError(t, ValidateClient(&Config{ServerAddress: "localhost:7070", Identity: "bob"}))
}

// TestParseIntervalSeconds covers positive, zero, negative and invalid inputs.
func TestParseIntervalSeconds(t *testing.T) {
	t.Parallel()

	d, err := ParseIntervalSeconds("5")
	require.NoError(t, err)
	require.Equal(t, 5*time.Second, d)

	d, err = ParseIntervalSeconds("-3")
	require.NoError(t, err)
	require.Equal(t, DefaultInterval, d)

	d, err = ParseIntervalSeconds("0")
	require.NoError(t, err)
	require.Equal(t, DefaultInterval, d)

	_, err = ParseIntervalSeconds("soon")
	require.ErrorIs(t, err, errInvalidInterval)
}

// TestPortListenAddress converts a port argument into a listen address.
func TestPortListenAddress(t *testing.T) {
	t.Parallel()

	addr, err := PortListenAddress("7070")
	require.NoError(t, err)
	require.Equal(t, ":7070", addr)

	_, err = PortListenAddress("70000")
	require.ErrorIs(t, err, errInvalidPort)
}

// TestSaveLoadRoundtrip ensures settings are persisted and loaded back correctly.
func TestSaveLoadRoundtrip(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "settings.yaml")

	settings := &Config{
		ListenAddress: ":7070",
		Interval:      10 * time.Second,
		AlarmsFile:    "/etc/alarm-push/alarms.conf",
		MaxClients:    3,
		AdminAddress:  "127.0.0.1:7071",
		WatchAlarms:   true,
	}

	require.NoError(t, Save(path, settings))

	loaded, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, settings.ListenAddress, loaded.ListenAddress)
	require.Equal(t, settings.Interval, loaded.Interval)
	require.Equal(t, settings.AlarmsFile, loaded.AlarmsFile)
	require.Equal(t, settings.MaxClients, loaded.MaxClients)
	require.True(t, loaded.WatchAlarms)
	require.Equal(t, DefaultWriteTimeout, loaded.WriteTimeout)

	// File exists.
	_, err = os.Stat(path)
	require.NoError(t, err)
}

// TestLoadOptional falls back to defaults for a missing file.
func TestLoadOptional(t *testing.T) {
	t.Parallel()

	cfg, err := LoadOptional(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	require.Equal(t, DefaultInterval, cfg.Interval)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

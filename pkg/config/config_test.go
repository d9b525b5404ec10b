package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/Stefanor62/racebox-v/pkg/protocol"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, []string{"RaceBox Mini", "RaceBox Micro"}, cfg.Device.NamePrefixes)
	assert.Equal(t, 10, cfg.Device.SamplingRate)
	assert.Equal(t, 5, cfg.Device.MaxRetryAttempts)
	assert.Equal(t, 3*time.Second, cfg.Device.RetryDelay)

	assert.Equal(t, "6E400001-B5A3-F393-E0A9-E50E24DCCA9E", cfg.Bluetooth.ServiceUUID)
	assert.Equal(t, "6E400002-B5A3-F393-E0A9-E50E24DCCA9E", cfg.Bluetooth.RxCharUUID)
	assert.Equal(t, "6E400003-B5A3-F393-E0A9-E50E24DCCA9E", cfg.Bluetooth.TxCharUUID)
	assert.Equal(t, 247, cfg.Bluetooth.DesiredMTU)
	assert.Equal(t, 30*time.Second, cfg.Bluetooth.ScanTimeout)
	assert.Equal(t, 20*time.Second, cfg.Bluetooth.ConnectionTimeout)
	assert.Equal(t, 5*time.Second, cfg.Bluetooth.DeviceTimeout)

	assert.Equal(t, protocol.PacketSize, cfg.Parser.PacketSize)
	assert.Equal(t, []int{0xB5, 0x62}, cfg.Parser.PacketStart)
	assert.Equal(t, protocol.DefaultScalingTable(), cfg.Parser.Scaling)

	assert.True(t, cfg.Display.ClearScreen)
	assert.True(t, cfg.Display.ShowControls)
	assert.False(t, cfg.Debug.RawDataLogging)

	require.NoError(t, cfg.Validate())
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()

	writeConfig := func(t *testing.T, body string) string {
		t.Helper()
		path := filepath.Join(dir, "config.yaml")
		require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
		return path
	}

	t.Run("overrides defaults", func(t *testing.T) {
		path := writeConfig(t, `
device:
  name_prefixes: ["RaceBox Micro"]
  max_retry_attempts: 2
  retry_delay: 500ms
bluetooth:
  scan_timeout: 12s
debug:
  raw_data_logging: true
mqtt:
  broker_url: tcp://127.0.0.1:1883
`)

		cfg, err := Load(path)
		require.NoError(t, err)

		assert.Equal(t, []string{"RaceBox Micro"}, cfg.Device.NamePrefixes)
		assert.Equal(t, 2, cfg.Device.MaxRetryAttempts)
		assert.Equal(t, 500*time.Millisecond, cfg.Device.RetryDelay)
		assert.Equal(t, 12*time.Second, cfg.Bluetooth.ScanTimeout)
		assert.True(t, cfg.Debug.RawDataLogging)
		assert.Equal(t, "tcp://127.0.0.1:1883", cfg.MQTT.BrokerURL)

		// Untouched sections keep their defaults.
		assert.Equal(t, 20*time.Second, cfg.Bluetooth.ConnectionTimeout)
		assert.Equal(t, "racebox/readings", cfg.MQTT.Topic)
	})

	t.Run("rejects unsupported packet size", func(t *testing.T) {
		path := writeConfig(t, `
parser:
  packet_size: 64
`)
		_, err := Load(path)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "packet_size")
	})

	t.Run("rejects wrong start marker", func(t *testing.T) {
		path := writeConfig(t, `
parser:
  packet_start: [1, 2]
`)
		_, err := Load(path)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "packet_start")
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := Load(filepath.Join(dir, "nope.yaml"))
		require.Error(t, err)
	})

	t.Run("malformed yaml", func(t *testing.T) {
		path := writeConfig(t, "device: [not a map")
		_, err := Load(path)
		require.Error(t, err)
	})
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty prefixes", func(c *Config) { c.Device.NamePrefixes = nil }},
		{"zero retry attempts", func(c *Config) { c.Device.MaxRetryAttempts = 0 }},
		{"zero scan timeout", func(c *Config) { c.Bluetooth.ScanTimeout = 0 }},
		{"zero device timeout", func(c *Config) { c.Bluetooth.DeviceTimeout = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestConfig_NewLogger(t *testing.T) {
	cfg := DefaultConfig()
	cfg.LogLevel = logrus.DebugLevel

	logger := cfg.NewLogger()

	require.NotNil(t, logger)
	assert.Equal(t, logrus.DebugLevel, logger.GetLevel())

	formatter, ok := logger.Formatter.(*logrus.TextFormatter)
	require.True(t, ok)
	assert.True(t, formatter.FullTimestamp)
	assert.Equal(t, time.RFC3339, formatter.TimestampFormat)
}

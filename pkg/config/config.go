// Package config loads the client configuration from a YAML file into
// an immutable Config shared read-only by every component.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/Stefanor62/racebox-v/pkg/protocol"
	"github.com/mcuadros/go-defaults"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// DeviceConfig selects compatible devices and bounds reconnect behavior.
type DeviceConfig struct {
	// NamePrefixes are matched against advertised device names.
	NamePrefixes     []string      `yaml:"name_prefixes"`
	SamplingRate     int           `yaml:"sampling_rate" default:"10"` // Hz
	MaxRetryAttempts int           `yaml:"max_retry_attempts" default:"5"`
	RetryDelay       time.Duration `yaml:"retry_delay" default:"3s"`
}

// BluetoothConfig carries the UART service layout and transport timeouts.
type BluetoothConfig struct {
	ServiceUUID string `yaml:"service_uuid" default:"6E400001-B5A3-F393-E0A9-E50E24DCCA9E"`
	RxCharUUID  string `yaml:"rx_char_uuid" default:"6E400002-B5A3-F393-E0A9-E50E24DCCA9E"`
	TxCharUUID  string `yaml:"tx_char_uuid" default:"6E400003-B5A3-F393-E0A9-E50E24DCCA9E"`

	DesiredMTU        int           `yaml:"desired_mtu" default:"247"`
	ScanTimeout       time.Duration `yaml:"scan_timeout" default:"30s"`
	ConnectionTimeout time.Duration `yaml:"connection_timeout" default:"20s"`
	// DeviceTimeout is the silent period after which the link is
	// considered lost.
	DeviceTimeout time.Duration `yaml:"device_timeout" default:"5s"`
}

// ParserConfig configures the frame decoder.
type ParserConfig struct {
	PacketStart []int                 `yaml:"packet_start"`
	PacketSize  int                   `yaml:"packet_size" default:"80"`
	Scaling     protocol.ScalingTable `yaml:"scaling"`
}

// DisplayConfig controls the live terminal view.
type DisplayConfig struct {
	ClearScreen  bool          `yaml:"clear_screen" default:"true"`
	ShowControls bool          `yaml:"show_controls" default:"true"`
	RefreshRate  time.Duration `yaml:"refresh_rate" default:"100ms"`
}

// DebugConfig enables diagnostics that are off in normal operation.
type DebugConfig struct {
	Enabled        bool   `yaml:"enabled"`
	RawDataLogging bool   `yaml:"raw_data_logging"`
	RawLogDir      string `yaml:"raw_log_dir" default:"."`
}

// MQTTConfig configures the optional reading publisher. Publishing is
// disabled while BrokerURL is empty.
type MQTTConfig struct {
	BrokerURL string `yaml:"broker_url"`
	Topic     string `yaml:"topic" default:"racebox/readings"`
	ClientID  string `yaml:"client_id"`
}

// Config is the full application configuration. Loaded once at startup
// and treated as immutable for the process lifetime.
type Config struct {
	LogLevel  logrus.Level    `yaml:"-"`
	Device    DeviceConfig    `yaml:"device"`
	Bluetooth BluetoothConfig `yaml:"bluetooth"`
	Parser    ParserConfig    `yaml:"parser"`
	Display   DisplayConfig   `yaml:"display"`
	Debug     DebugConfig     `yaml:"debug"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
}

// DefaultConfig returns the configuration used when no file is given.
func DefaultConfig() *Config {
	cfg := &Config{}
	defaults.SetDefaults(cfg)

	cfg.LogLevel = logrus.InfoLevel
	cfg.Device.NamePrefixes = []string{"RaceBox Mini", "RaceBox Micro"}
	cfg.Parser.PacketStart = []int{protocol.Sync1, protocol.Sync2}
	cfg.Parser.Scaling = protocol.DefaultScalingTable()
	return cfg
}

// Load reads a YAML configuration file over the defaults.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects configurations the pipeline cannot run with.
func (c *Config) Validate() error {
	if len(c.Device.NamePrefixes) == 0 {
		return fmt.Errorf("device.name_prefixes must not be empty")
	}
	if c.Parser.PacketSize != protocol.PacketSize {
		return fmt.Errorf("parser.packet_size must be %d, got %d", protocol.PacketSize, c.Parser.PacketSize)
	}
	if len(c.Parser.PacketStart) != 2 || c.Parser.PacketStart[0] != protocol.Sync1 || c.Parser.PacketStart[1] != protocol.Sync2 {
		return fmt.Errorf("parser.packet_start must be [0x%02X, 0x%02X]", protocol.Sync1, protocol.Sync2)
	}
	if c.Device.MaxRetryAttempts < 1 {
		return fmt.Errorf("device.max_retry_attempts must be at least 1")
	}
	if c.Bluetooth.ScanTimeout <= 0 || c.Bluetooth.ConnectionTimeout <= 0 || c.Bluetooth.DeviceTimeout <= 0 {
		return fmt.Errorf("bluetooth timeouts must be positive")
	}
	return nil
}

// NewLogger creates a configured logger instance.
func (c *Config) NewLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(c.LogLevel)

	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: time.RFC3339,
	})

	return logger
}

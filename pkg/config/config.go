package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/jwoglom/fakebulb/pkg/bluetooth"
	"github.com/jwoglom/fakebulb/pkg/pairing"
)

// Config holds the emulator configuration
type Config struct {
	Device  DeviceConfig  `yaml:"device"`
	Storage StorageConfig `yaml:"storage"`
	OTA     OTAConfig     `yaml:"ota"`
	Boot    BootConfig    `yaml:"boot"`
	API     APIConfig     `yaml:"api"`
	NATS    NATSConfig    `yaml:"nats"`
	Log     LogConfig     `yaml:"log"`
}

// DeviceConfig describes the emulated bulb
type DeviceConfig struct {
	Adapter         string `yaml:"adapter"`
	FactoryName     string `yaml:"factory_name"`
	FactoryPassword string `yaml:"factory_password"`
}

// StorageConfig locates the keyring and firmware partitions
type StorageConfig struct {
	Dir             string `yaml:"dir"`
	KeyringPassword string `yaml:"keyring_password"`
	PartitionSize   int64  `yaml:"partition_size"`
}

type OTAConfig struct {
	MaxErrors         int           `yaml:"max_errors"`
	InactivityTimeout time.Duration `yaml:"inactivity_timeout"`
	RebootDelay       time.Duration `yaml:"reboot_delay"`
}

// BootConfig controls the power-cycle factory reset
type BootConfig struct {
	FactoryResetBoots int           `yaml:"factory_reset_boots"`
	Settle            time.Duration `yaml:"settle"`
}

// APIConfig is the monitoring HTTP server; Port 0 disables it
type APIConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// NATSConfig enables event publishing when URL is set
type NATSConfig struct {
	URL     string `yaml:"url"`
	Subject string `yaml:"subject"`
}

type LogConfig struct {
	Level string `yaml:"level"`
}

// Default returns the configuration used when no file is given
func Default() *Config {
	return &Config{
		Device: DeviceConfig{
			Adapter:         "hci0",
			FactoryName:     "telink_m",
			FactoryPassword: "123",
		},
		Storage: StorageConfig{
			Dir:           "./fakebulb-data",
			PartitionSize: 512 * 1024,
		},
		OTA: OTAConfig{
			MaxErrors:         5,
			InactivityTimeout: 10 * time.Second,
			RebootDelay:       500 * time.Millisecond,
		},
		Boot: BootConfig{
			FactoryResetBoots: 5,
			Settle:            10 * time.Second,
		},
		API: APIConfig{
			Host: "127.0.0.1",
			Port: 8080,
		},
		NATS: NATSConfig{
			Subject: "fakebulb.events",
		},
	}
}

// Load reads filename over the defaults. An empty filename yields the defaults.
// Environment overrides are applied last.
func Load(filename string) (*Config, error) {
	cfg := Default()

	if filename != "" {
		data, err := os.ReadFile(filename)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("unmarshal config: %w", err)
		}
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func (c *Config) applyEnvOverrides() {
	if dir := os.Getenv("FAKEBULB_STORAGE_DIR"); dir != "" {
		c.Storage.Dir = dir
	}

	if adapter := os.Getenv("FAKEBULB_ADAPTER"); adapter != "" {
		c.Device.Adapter = adapter
	}

	if natsURL := os.Getenv("NATS_URL"); natsURL != "" {
		c.NATS.URL = natsURL
	}

	if logLevel := os.Getenv("LOG_LEVEL"); logLevel != "" {
		c.Log.Level = logLevel
	}
}

// Validate checks the configuration for values the emulator cannot run with
func (c *Config) Validate() error {
	if _, err := bluetooth.ParseAdapterID(c.Device.Adapter); err != nil {
		return err
	}
	if _, err := c.FactoryCredential(); err != nil {
		return err
	}
	if c.Storage.Dir == "" {
		return errors.New("storage dir is required")
	}
	if c.Storage.PartitionSize <= 0 {
		return fmt.Errorf("partition size must be positive, got %d", c.Storage.PartitionSize)
	}
	if c.OTA.MaxErrors < 1 || c.OTA.MaxErrors > 255 {
		return fmt.Errorf("ota max_errors must be in [1, 255], got %d", c.OTA.MaxErrors)
	}
	if c.OTA.InactivityTimeout <= 0 {
		return errors.New("ota inactivity_timeout must be positive")
	}
	if c.OTA.RebootDelay < 0 {
		return errors.New("ota reboot_delay must not be negative")
	}
	if c.Boot.FactoryResetBoots < 0 {
		return errors.New("boot factory_reset_boots must not be negative")
	}
	if c.API.Port < 0 || c.API.Port > 65535 {
		return fmt.Errorf("invalid api port %d", c.API.Port)
	}
	if c.NATS.URL != "" && c.NATS.Subject == "" {
		return errors.New("nats subject is required when nats url is set")
	}
	if c.Log.Level != "" {
		if _, err := log.ParseLevel(c.Log.Level); err != nil {
			return err
		}
	}
	return nil
}

// FactoryCredential returns the credential of a never-paired bulb
func (c *Config) FactoryCredential() (pairing.Credential, error) {
	return pairing.NewCredential(c.Device.FactoryName, c.Device.FactoryPassword, pairing.FlagFactory)
}

// APIAddr returns the listen address of the monitoring API
func (c *Config) APIAddr() string {
	return fmt.Sprintf("%s:%d", c.API.Host, c.API.Port)
}

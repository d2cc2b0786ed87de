package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Default file locations, overridable through the environment.
const (
	defaultSecretsPath = "secrets.env"

	// EnvSecretsPath names the variable holding the secrets file path.
	EnvSecretsPath = "MKR_SECRETS"
)

// Network driver names accepted by network.driver.
const (
	NetworkDriverHost  = "host"
	NetworkDriverNmcli = "nmcli"
)

// Config is the root configuration structure for the telemetry agent.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Device        DeviceConfig        `yaml:"device"`
	Network       NetworkConfig       `yaml:"network"`
	MQTT          MQTTConfig          `yaml:"mqtt"`
	SecureElement SecureElementConfig `yaml:"secure_element"`
	Telemetry     TelemetryConfig     `yaml:"telemetry"`
	InfluxDB      InfluxDBConfig      `yaml:"influxdb"`
	Logging       LoggingConfig       `yaml:"logging"`
}

// DeviceConfig contains main loop settings.
type DeviceConfig struct {
	// TickInterval is the pause between two loop iterations.
	TickInterval time.Duration `yaml:"tick_interval"`
}

// NetworkConfig contains network join settings.
type NetworkConfig struct {
	// Driver selects the link implementation: "host" or "nmcli".
	Driver     string      `yaml:"driver"`
	Interface  string      `yaml:"interface"`
	SSID       string      `yaml:"ssid"`
	Passphrase string      `yaml:"passphrase"`
	Retry      RetryConfig `yaml:"retry"`
}

// RetryConfig describes a bounded or unbounded retry loop.
type RetryConfig struct {
	// MaxAttempts caps the number of attempts. 0 means unlimited.
	MaxAttempts int `yaml:"max_attempts"`

	// Delay is the wait between attempts.
	Delay time.Duration `yaml:"delay"`

	// MaxDelay enables exponential backoff from Delay up to MaxDelay.
	// Zero (or a value not above Delay) keeps the delay constant.
	MaxDelay time.Duration `yaml:"max_delay"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Broker         MQTTBrokerConfig `yaml:"broker"`
	Auth           MQTTAuthConfig   `yaml:"auth"`
	Topics         MQTTTopicsConfig `yaml:"topics"`
	QoS            int              `yaml:"qos"`
	KeepAlive      time.Duration    `yaml:"keep_alive"`
	ConnectTimeout time.Duration    `yaml:"connect_timeout"`
	InboundQueue   int              `yaml:"inbound_queue"`
	Retry          RetryConfig      `yaml:"retry"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTTopicsConfig contains the topics the agent talks on.
type MQTTTopicsConfig struct {
	Incoming string `yaml:"incoming"`
	Outgoing string `yaml:"outgoing"`

	// Status enables online/offline presence messages and a Last Will
	// when non-empty.
	Status string `yaml:"status"`
}

// SecureElementConfig locates the TLS client identity.
type SecureElementConfig struct {
	// Path is the directory holding one private key per slot (slot0.pem, ...).
	Path string `yaml:"path"`
	Slot int    `yaml:"slot"`

	// Certificate is the device certificate in PEM form. CertificateFile is
	// read when Certificate is empty.
	Certificate     string `yaml:"certificate"`
	CertificateFile string `yaml:"certificate_file"`

	// CAFile optionally pins the broker's root certificates.
	CAFile string `yaml:"ca_file"`
}

// TelemetryConfig contains the synthetic sample settings.
type TelemetryConfig struct {
	Interval    time.Duration `yaml:"interval"`
	DeviceModel string        `yaml:"device_model"`
	VehicleID   string        `yaml:"vehicle_id"`
	Temperature RangeConfig   `yaml:"temperature"`
	Humidity    RangeConfig   `yaml:"humidity"`
}

// RangeConfig is a half-open integer range [Min, Max).
type RangeConfig struct {
	Min int `yaml:"min"`
	Max int `yaml:"max"`
}

// InfluxDBConfig contains InfluxDB connection settings.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`

	// HealthInterval is how often a paused or running mirror re-pings the server.
	HealthInterval time.Duration `yaml:"health_interval"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Secrets file (KEY=value lines, loaded into the environment)
//  4. Environment variables (override file values)
//
// The secrets file path comes from MKR_SECRETS and defaults to secrets.env.
// A missing secrets file is not an error.
//
// Parameters:
//   - path: Path to the YAML configuration file
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If file cannot be read, parsed, or validation fails
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := LoadSecrets(secretsPath()); err != nil {
		return nil, err
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// LoadSecrets loads KEY=value pairs from a dotenv-style file into the
// process environment. Variables already set are left untouched.
func LoadSecrets(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("loading secrets file: %w", err)
	}
	return nil
}

func secretsPath() string {
	if v := os.Getenv(EnvSecretsPath); v != "" {
		return v
	}
	return defaultSecretsPath
}

// defaultConfig returns a Config with the stock sketch values.
func defaultConfig() *Config {
	return &Config{
		Device: DeviceConfig{
			TickInterval: 10 * time.Millisecond,
		},
		Network: NetworkConfig{
			Driver: NetworkDriverHost,
			Retry: RetryConfig{
				MaxAttempts: 10,
				Delay:       time.Second,
			},
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Port: 8883,
				TLS:  true,
			},
			Topics: MQTTTopicsConfig{
				Incoming: "arduino/incoming",
				Outgoing: "arduino/outgoing",
			},
			QoS:            0,
			KeepAlive:      60 * time.Second,
			ConnectTimeout: 10 * time.Second,
			InboundQueue:   64,
			Retry: RetryConfig{
				MaxAttempts: 0,
				Delay:       3 * time.Second,
			},
		},
		SecureElement: SecureElementConfig{
			Path: "./secure-element",
			Slot: 0,
		},
		Telemetry: TelemetryConfig{
			Interval:    time.Second,
			DeviceModel: "MKR 1010",
			VehicleID:   "MKR1010-1",
			Temperature: RangeConfig{Min: 15, Max: 30},
			Humidity:    RangeConfig{Min: 1, Max: 500},
		},
		InfluxDB: InfluxDBConfig{
			BatchSize:      100,
			FlushInterval:  10,
			HealthInterval: 30 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: "stderr",
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// The SECRET_* names match the keys of the device secrets file.
func applyEnvOverrides(cfg *Config) {
	// Network
	if v := os.Getenv("SECRET_SSID"); v != "" {
		cfg.Network.SSID = v
	}
	if v := os.Getenv("SECRET_PASS"); v != "" {
		cfg.Network.Passphrase = v
	}

	// MQTT
	if v := os.Getenv("SECRET_BROKER"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("MKR_MQTT_CLIENT_ID"); v != "" {
		cfg.MQTT.Broker.ClientID = v
	}
	if v := os.Getenv("MKR_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("MKR_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// Secure element
	if v := os.Getenv("SECRET_CERTIFICATE"); v != "" {
		cfg.SecureElement.Certificate = v
	}

	// InfluxDB
	if v := os.Getenv("MKR_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	// Logging
	if v := os.Getenv("MKR_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}

// Validate checks the configuration for errors.
//
// Returns:
//   - error: Description of every validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	// Device validation
	if c.Device.TickInterval < 0 {
		errs = append(errs, "device.tick_interval must not be negative")
	}

	// Network validation
	switch c.Network.Driver {
	case NetworkDriverHost:
	case NetworkDriverNmcli:
		if c.Network.SSID == "" {
			errs = append(errs, "network.ssid is required for the nmcli driver (set SECRET_SSID)")
		}
	default:
		errs = append(errs, fmt.Sprintf("network.driver %q must be %q or %q",
			c.Network.Driver, NetworkDriverHost, NetworkDriverNmcli))
	}
	errs = append(errs, c.Network.Retry.validate("network.retry")...)
	if c.Network.Retry.MaxAttempts == 0 {
		errs = append(errs, "network.retry.max_attempts must be at least 1")
	}

	// MQTT validation
	if c.MQTT.Broker.Host == "" {
		errs = append(errs, "mqtt.broker.host is required (set SECRET_BROKER)")
	}
	if c.MQTT.Broker.Port < 1 || c.MQTT.Broker.Port > 65535 {
		errs = append(errs, "mqtt.broker.port must be between 1 and 65535")
	}
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}
	if c.MQTT.Topics.Incoming == "" {
		errs = append(errs, "mqtt.topics.incoming is required")
	}
	if c.MQTT.Topics.Outgoing == "" {
		errs = append(errs, "mqtt.topics.outgoing is required")
	}
	if c.MQTT.ConnectTimeout <= 0 {
		errs = append(errs, "mqtt.connect_timeout must be positive")
	}
	if c.MQTT.InboundQueue < 1 {
		errs = append(errs, "mqtt.inbound_queue must be at least 1")
	}
	errs = append(errs, c.MQTT.Retry.validate("mqtt.retry")...)

	// Secure element validation
	if c.MQTT.Broker.TLS {
		if c.SecureElement.Path == "" {
			errs = append(errs, "secure_element.path is required when mqtt.broker.tls is enabled")
		}
		if c.SecureElement.Certificate == "" && c.SecureElement.CertificateFile == "" {
			errs = append(errs, "secure_element.certificate or certificate_file is required when mqtt.broker.tls is enabled (set SECRET_CERTIFICATE)")
		}
	}
	if c.SecureElement.Slot < 0 {
		errs = append(errs, "secure_element.slot must not be negative")
	}

	// Telemetry validation
	if c.Telemetry.Interval <= 0 {
		errs = append(errs, "telemetry.interval must be positive")
	}
	if c.Telemetry.Temperature.Min >= c.Telemetry.Temperature.Max {
		errs = append(errs, "telemetry.temperature.min must be below max")
	}
	if c.Telemetry.Humidity.Min >= c.Telemetry.Humidity.Max {
		errs = append(errs, "telemetry.humidity.min must be below max")
	}

	// InfluxDB validation
	if c.InfluxDB.Enabled && c.InfluxDB.URL == "" {
		errs = append(errs, "influxdb.url is required when influxdb is enabled")
	}
	if c.InfluxDB.HealthInterval < 0 {
		errs = append(errs, "influxdb.health_interval must not be negative")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

func (r RetryConfig) validate(prefix string) []string {
	var errs []string
	if r.MaxAttempts < 0 {
		errs = append(errs, prefix+".max_attempts must not be negative")
	}
	if r.Delay < 0 {
		errs = append(errs, prefix+".delay must not be negative")
	}
	if r.MaxDelay < 0 {
		errs = append(errs, prefix+".max_delay must not be negative")
	}
	return errs
}

// CertificatePEM returns the device certificate, reading CertificateFile
// when no inline certificate is configured.
func (s SecureElementConfig) CertificatePEM() ([]byte, error) {
	if s.Certificate != "" {
		return []byte(s.Certificate), nil
	}
	if s.CertificateFile == "" {
		return nil, errors.New("no device certificate configured")
	}
	data, err := os.ReadFile(s.CertificateFile)
	if err != nil {
		return nil, fmt.Errorf("reading device certificate: %w", err)
	}
	return data, nil
}

// BrokerAddress returns host:port, bracketing IPv6 literals.
func (c MQTTConfig) BrokerAddress() string {
	return net.JoinHostPort(c.Broker.Host, strconv.Itoa(c.Broker.Port))
}

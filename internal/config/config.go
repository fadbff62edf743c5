package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// Config represents the main configuration for a qc device.
type Config struct {
	DeviceID     string             `toml:"device_id"`
	BaseDir      string             `toml:"base_dir"`
	LogDir       string             `toml:"log_dir"`
	Queue        QueueConfig        `toml:"queue"`
	Sync         SyncConfig         `toml:"sync"`
	Remote       RemoteConfig       `toml:"remote"`
	Connectivity ConnectivityConfig `toml:"connectivity"`
	Encryption   EncryptionConfig   `toml:"encryption"`
	Log          LogConfig          `toml:"log"`
}

// QueueConfig represents configuration for the local durable queue.
// This uses a tagged union pattern - the Type field determines which other fields are relevant.
type QueueConfig struct {
	Type    string `toml:"type"`               // "sqlite" or "memory"
	DataDir string `toml:"data_dir,omitempty"` // only used for type=sqlite
}

// SyncConfig controls the sync coordinator and its scheduler.
type SyncConfig struct {
	BatchSize     int    `toml:"batch_size"`
	RetryInterval string `toml:"retry_interval"` // e.g. "30s"; "0s" disables the retry timer
	Timeout       string `toml:"timeout"`        // per-request timeout for remote calls
}

// RemoteConfig represents configuration for the remote sync endpoint.
// This uses a tagged union pattern - the Type field determines which other fields are relevant.
type RemoteConfig struct {
	Type string `toml:"type"` // "http", "s3", "filesystem", or "memory"

	// HTTP-specific fields (only used when Type == "http")
	URL string `toml:"url,omitempty"`

	// S3-specific fields (only used when Type == "s3")
	S3Bucket string `toml:"s3_bucket,omitempty"`
	S3Prefix string `toml:"s3_prefix,omitempty"`
	S3Region string `toml:"s3_region,omitempty"`
	// S3Endpoint overrides the AWS endpoint, for S3-compatible stores.
	S3Endpoint        string `toml:"s3_endpoint,omitempty"`
	S3AccessKeyID     string `toml:"s3_access_key_id,omitempty"`
	S3SecretAccessKey string `toml:"s3_secret_access_key,omitempty"`

	// FileSystem-specific fields (only used when Type == "filesystem")
	FSRoot string `toml:"fs_root,omitempty"`
}

// ConnectivityConfig selects the reachability signal feeding the monitor.
// This uses a tagged union pattern - the Type field determines which other fields are relevant.
type ConnectivityConfig struct {
	Type string `toml:"type"` // "probe", "file", or "static"

	// Probe-specific fields (only used when Type == "probe")
	ProbeURL      string `toml:"probe_url,omitempty"`
	ProbeInterval string `toml:"probe_interval,omitempty"`

	// File-specific fields (only used when Type == "file")
	StateFile string `toml:"state_file,omitempty"`

	// Static-specific fields (only used when Type == "static")
	State string `toml:"state,omitempty"` // "online" or "offline"
}

// EncryptionConfig holds paths to the age key pair used to seal queued entries.
type EncryptionConfig struct {
	Type           string `toml:"type"` // "none" (default), "age", or "test"
	PublicKeyPath  string `toml:"public_key_path,omitempty"`
	PrivateKeyPath string `toml:"private_key_path,omitempty"`
}

// LogConfig controls the log level and rotation of the log file.
type LogConfig struct {
	Level      string `toml:"level"` // "debug", "info", "warn", "error"
	MaxSizeMB  int    `toml:"max_size_mb"`
	MaxBackups int    `toml:"max_backups"`
	MaxAgeDays int    `toml:"max_age_days"`
}

const (
	DefaultBatchSize     = 25
	DefaultRetryInterval = 30 * time.Second
	DefaultTimeout       = 15 * time.Second
	DefaultProbeInterval = 10 * time.Second
)

// NewConfig creates a new Config with the provided values and default paths.
func NewConfig(deviceID, baseDir string) *Config {
	return &Config{
		DeviceID: deviceID,
		BaseDir:  baseDir,
		LogDir:   filepath.Join(baseDir, "log"),
		Queue: QueueConfig{
			Type:    "sqlite",
			DataDir: filepath.Join(baseDir, "queue"),
		},
		Sync: SyncConfig{
			BatchSize:     DefaultBatchSize,
			RetryInterval: DefaultRetryInterval.String(),
			Timeout:       DefaultTimeout.String(),
		},
		Remote: RemoteConfig{
			Type: "http",
			URL:  "http://localhost:8080",
		},
		Connectivity: ConnectivityConfig{
			Type:          "probe",
			ProbeURL:      "http://localhost:8080/health",
			ProbeInterval: DefaultProbeInterval.String(),
		},
		Encryption: EncryptionConfig{Type: "none"},
		Log: LogConfig{
			Level:      "info",
			MaxSizeMB:  10,
			MaxBackups: 5,
			MaxAgeDays: 30,
		},
	}
}

// EnableEncryption switches the config to age sealing with keys under base_dir.
func (c *Config) EnableEncryption() {
	c.Encryption = EncryptionConfig{
		Type:           "age",
		PublicKeyPath:  filepath.Join(c.BaseDir, "keys", "qc.pub"),
		PrivateKeyPath: filepath.Join(c.BaseDir, "keys", "qc.key"),
	}
}

// BatchSizeOrDefault returns the configured batch size, or the default when unset.
func (s SyncConfig) BatchSizeOrDefault() int {
	if s.BatchSize <= 0 {
		return DefaultBatchSize
	}
	return s.BatchSize
}

// RetryIntervalDuration parses retry_interval. Empty means the default.
func (s SyncConfig) RetryIntervalDuration() (time.Duration, error) {
	return parseDuration("sync.retry_interval", s.RetryInterval, DefaultRetryInterval)
}

// TimeoutDuration parses timeout. Empty means the default.
func (s SyncConfig) TimeoutDuration() (time.Duration, error) {
	return parseDuration("sync.timeout", s.Timeout, DefaultTimeout)
}

// ProbeIntervalDuration parses probe_interval. Empty means the default.
func (c ConnectivityConfig) ProbeIntervalDuration() (time.Duration, error) {
	d, err := parseDuration("connectivity.probe_interval", c.ProbeInterval, DefaultProbeInterval)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return 0, fmt.Errorf("connectivity.probe_interval must be positive, got %s", d)
	}
	return d, nil
}

func parseDuration(name, value string, def time.Duration) (time.Duration, error) {
	if value == "" {
		return def, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", name, value, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s must not be negative, got %s", name, d)
	}
	return d, nil
}

// Manager handles reading and writing configuration.
type Manager struct{}

// Read decodes a Config from the provided reader.
func (m *Manager) Read(r io.Reader) (*Config, error) {
	var cfg Config
	if _, err := toml.NewDecoder(r).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	return &cfg, nil
}

// Write encodes a Config to the provided writer.
func (m *Manager) Write(w io.Writer, cfg *Config) error {
	if err := toml.NewEncoder(w).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return nil
}

// ReadFromFile reads a Config from the specified file path.
func ReadFromFile(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	m := &Manager{}
	cfg, err := m.Read(f)
	if err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}
	return cfg, nil
}

func writeToFile(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0600)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer f.Close()

	m := &Manager{}
	if err := m.Write(f, cfg); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}
	return nil
}

// Init writes a new config file at path. It refuses to overwrite an existing file.
func Init(path string, cfg *Config) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if err := writeToFile(path, cfg); err != nil {
		return fmt.Errorf("initializing config: %w", err)
	}
	return nil
}

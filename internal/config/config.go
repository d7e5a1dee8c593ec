package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the settings of both binaries.
type Config struct {
	// ListenAddress is the TCP address the server accepts clients on.
	ListenAddress string `yaml:"listen_addr"`
	// Interval is the server tick and restart delay, and the client heartbeat and reconnect delay.
	Interval time.Duration `yaml:"interval"`
	// AlarmsFile is the path of the alarm definitions.
	AlarmsFile string `yaml:"alarms_file"`
	// MaxClients caps concurrent client connections.
	MaxClients int `yaml:"max_clients"`
	// WriteTimeout bounds a single alert write so one stuck client cannot stall a tick.
	WriteTimeout time.Duration `yaml:"write_timeout"`
	// AdminAddress enables the gRPC admin endpoint when set.
	AdminAddress string `yaml:"admin_addr"`
	// JournalFile enables the SQLite delivery journal when set.
	JournalFile string `yaml:"journal_file"`
	// WatchAlarms rebuilds the schedule when the alarms file changes.
	WatchAlarms bool `yaml:"watch_alarms"`
	// LogLevel is the minimum level written to the log.
	LogLevel string `yaml:"log_level"`
	// ServerAddress is the host:port the client connects to.
	ServerAddress string `yaml:"server_addr"`
	// Identity is the name the client announces in HELLO.
	Identity string `yaml:"identity"`
}

const (
	// DefaultConfigFilename is the default filename for settings.
	DefaultConfigFilename = "alarm-push-settings.yaml"

	// DefaultAlarmsFilename is the default alarm definitions file.
	DefaultAlarmsFilename = "alarms.conf"

	// DefaultInterval is used when no interval is set or a negative one is given.
	DefaultInterval = 60 * time.Second

	// DefaultWriteTimeout bounds alert writes.
	DefaultWriteTimeout = 5 * time.Second

	// DefaultMaxClients is the registry capacity.
	DefaultMaxClients = 5

	// DefaultFilePermissions is the default file permission for config files.
	DefaultFilePermissions = 0o600
)

var (
	// errConfigIsNotSet is returned when a nil configuration is provided.
	errConfigIsNotSet = errors.New("configuration is not set")
	// errListenAddressRequired is returned when the server has nowhere to listen.
	errListenAddressRequired = errors.New("listen address must be provided")
	// errServerAddressRequired is returned when the client has nowhere to connect.
	errServerAddressRequired = errors.New("server address must be provided")
	// errIdentityRequired is returned when the client has no identity.
	errIdentityRequired = errors.New("client identity must be provided")
	// errInvalidPort is returned for a port argument outside 0-65535.
	errInvalidPort = errors.New("invalid port")
	// errInvalidInterval is returned for a non-numeric interval argument.
	errInvalidInterval = errors.New("invalid interval")
)

// Default returns settings populated with defaults only.
func Default() *Config {
	cfg := new(Config)
	applyDefaults(cfg)

	return cfg
}

// Load reads configuration from the provided path and applies defaults.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultConfigFilename
	}

	contents, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("read settings: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(contents, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal settings: %w", err)
	}

	applyDefaults(&cfg)

	return &cfg, nil
}

// LoadOptional behaves like Load but returns Default when the file does not exist.
func LoadOptional(path string) (*Config, error) {
	cfg, err := Load(path)
	if errors.Is(err, fs.ErrNotExist) {
		return Default(), nil
	}

	return cfg, err
}

// Save writes settings to the provided path.
func Save(path string, cfg *Config) error {
	if cfg == nil {
		return errConfigIsNotSet
	}

	if path == "" {
		path = DefaultConfigFilename
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}

	// Restrict permissions.
	if err := os.WriteFile(filepath.Clean(path), data, DefaultFilePermissions); err != nil {
		return fmt.Errorf("write settings: %w", err)
	}

	return nil
}

// ValidateServer checks the fields alarm-server needs.
func ValidateServer(cfg *Config) error {
	if cfg.ListenAddress == "" {
		return errListenAddressRequired
	}

	if _, err := net.ResolveTCPAddr("tcp", cfg.ListenAddress); err != nil {
		return fmt.Errorf("invalid listen address: %w", err)
	}

	if cfg.AdminAddress != "" {
		if _, err := net.ResolveTCPAddr("tcp", cfg.AdminAddress); err != nil {
			return fmt.Errorf("invalid admin address: %w", err)
		}
	}

	applyDefaults(cfg)

	return nil
}

// ValidateClient checks the fields alarm-client needs.
func ValidateClient(cfg *Config) error {
	if cfg.ServerAddress == "" {
		return errServerAddressRequired
	}

	if _, _, err := net.SplitHostPort(cfg.ServerAddress); err != nil {
		return fmt.Errorf("invalid server address: %w", err)
	}

	if strings.TrimSpace(cfg.Identity) == "" {
		return errIdentityRequired
	}

	applyDefaults(cfg)

	return nil
}

// ParseIntervalSeconds converts an interval argument in seconds.
// Non-positive values select DefaultInterval.
func ParseIntervalSeconds(s string) (time.Duration, error) {
	seconds, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("%w %q: %w", errInvalidInterval, s, err)
	}

	if seconds <= 0 {
		return DefaultInterval, nil
	}

	return time.Duration(seconds) * time.Second, nil
}

// PortListenAddress returns a listen address binding port on all interfaces.
func PortListenAddress(port string) (string, error) {
	p, err := strconv.ParseUint(strings.TrimSpace(port), 10, 16)
	if err != nil {
		return "", fmt.Errorf("%w %q: %w", errInvalidPort, port, err)
	}

	return ":" + strconv.FormatUint(p, 10), nil
}

func applyDefaults(cfg *Config) {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}

	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = DefaultWriteTimeout
	}

	if cfg.MaxClients <= 0 {
		cfg.MaxClients = DefaultMaxClients
	}

	if cfg.AlarmsFile == "" {
		cfg.AlarmsFile = DefaultAlarmsFilename
	}
}

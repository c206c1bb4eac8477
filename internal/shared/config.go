package shared

import (
	_ "embed"
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
)

//go:embed config.example.toml
var exampleConf []byte

// Config represents the application configuration loaded from a TOML file.
type Config struct {
	Database DatabaseConfig `toml:"database"`
	Server   ServerConfig   `toml:"server"`
	Remote   RemoteConfig   `toml:"remote"`
	Identity IdentityConfig `toml:"identity"`
	Engine   EngineConfig   `toml:"engine"`
}

// DatabaseConfig contains database connection settings.
//
// On a client the database only holds draft slots; when serving it also holds lists and catalogs.
type DatabaseConfig struct {
	Path         string `toml:"path"`
	MaxOpenConns int    `toml:"max_open_conns"`
	MaxIdleConns int    `toml:"max_idle_conns"`
}

// ServerConfig contains HTTP server settings for `setlist serve`.
type ServerConfig struct {
	Host string `toml:"host"`
	Port int    `toml:"port"`
}

// Addr returns the host:port listen address.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// RemoteConfig points the engine at a remote store server.
//
// An empty URL means the remote store is the local database.
type RemoteConfig struct {
	URL       string  `toml:"url"`
	RateLimit float64 `toml:"rate_limit"`
	Burst     int     `toml:"burst"`
	TimeoutMS int     `toml:"timeout_ms"`
}

// Timeout returns the HTTP client timeout.
func (r RemoteConfig) Timeout() time.Duration {
	if r.TimeoutMS <= 0 {
		return 10 * time.Second
	}
	return time.Duration(r.TimeoutMS) * time.Millisecond
}

// IdentityConfig names the principal the CLI acts as. Empty means anonymous.
type IdentityConfig struct {
	User string `toml:"user"`
}

// EngineConfig tunes the list synchronization engine.
type EngineConfig struct {
	FlushDelayMS int    `toml:"flush_delay_ms"`
	DraftsPrefix string `toml:"drafts_prefix"`
}

// FlushDelay returns the debounce window before a persisted list is written to the remote store.
func (e EngineConfig) FlushDelay() time.Duration {
	if e.FlushDelayMS <= 0 {
		return 5 * time.Second
	}
	return time.Duration(e.FlushDelayMS) * time.Millisecond
}

// LoadConfig reads and parses a TOML configuration file from the specified path.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read config file: %v", ErrMissingConfig, err)
	}

	config := DefaultConfig()
	if err := toml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("%w: failed to parse config: %v", ErrInvalidConfig, err)
	}

	return config, nil
}

// DefaultConfig returns a Config with sensible defaults loaded from the embedded example config.
func DefaultConfig() *Config {
	var config Config
	if err := toml.Unmarshal(exampleConf, &config); err != nil {
		panic(fmt.Sprintf("failed to parse embedded default config: %v", err))
	}
	return &config
}

// CreateConfigFile creates a config.toml file at the specified path using the embedded example config.
func CreateConfigFile(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if err := os.WriteFile(path, exampleConf, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

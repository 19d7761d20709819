package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/artpar/relaunch/internal/core/deployment"
	"github.com/artpar/relaunch/internal/core/engine"
	"github.com/artpar/relaunch/internal/shell/callback"
	"github.com/artpar/relaunch/internal/shell/deploy"
	"github.com/artpar/relaunch/internal/shell/docker"
)

// Lock backends.
const (
	LockBackendMemory = "memory"
	LockBackendRedis  = "redis"
)

// =============================================================================
// Config Types
// =============================================================================

// Config holds all application configuration.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Docker   DockerConfig   `mapstructure:"docker"`
	Registry RegistryConfig `mapstructure:"registry"`
	Deploy   DeployConfig   `mapstructure:"deploy"`
	Callback CallbackConfig `mapstructure:"callback"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Log      LogConfig      `mapstructure:"log"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// Address returns the server address in host:port format.
func (c ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// DatabaseConfig holds database configuration.
type DatabaseConfig struct {
	DSN string `mapstructure:"dsn"`

	// Retention is how long deployment history is kept. Zero keeps it forever.
	Retention         time.Duration `mapstructure:"retention"`
	RetentionInterval time.Duration `mapstructure:"retention_interval"`
}

// DockerConfig holds container engine connection configuration.
// Host accepts unix://, tcp:// and ssh:// URIs or a bare hostname; empty
// selects the local socket.
type DockerConfig struct {
	SocketPath    string        `mapstructure:"socket_path"`
	Host          string        `mapstructure:"host"`
	Port          int           `mapstructure:"port"`
	TLS           bool          `mapstructure:"tls"`
	CertDir       string        `mapstructure:"cert_dir"`
	SSHUser       string        `mapstructure:"ssh_user"`
	SSHKeyPath    string        `mapstructure:"ssh_key_path"`
	SSHKnownHosts string        `mapstructure:"ssh_known_hosts"`
	SSHTimeout    time.Duration `mapstructure:"ssh_timeout"`
	APIVersion    string        `mapstructure:"api_version"`
	PingInterval  time.Duration `mapstructure:"ping_interval"`
}

// EngineSettings returns the raw settings resolved into a connection.
func (c DockerConfig) EngineSettings() engine.Settings {
	return engine.Settings{
		SocketPath: c.SocketPath,
		Address:    c.Host,
		Port:       c.Port,
		TLS:        c.TLS,
		CertDir:    c.CertDir,
		SSHUser:    c.SSHUser,
		SSHKeyPath: c.SSHKeyPath,
	}
}

// ConnectionConfig returns the client options for the resolved connection.
func (c DockerConfig) ConnectionConfig(logger *slog.Logger) docker.ConnectionConfig {
	return docker.ConnectionConfig{
		APIVersion:    c.APIVersion,
		SSHKnownHosts: c.SSHKnownHosts,
		SSHTimeout:    c.SSHTimeout,
		Logger:        logger,
	}
}

// RegistryConfig holds image registry configuration.
//
// A Host without '.' or ':' (and not "localhost") is read as a Docker Hub
// namespace, not a registry: "myregistry/app" pulls from Docker Hub and the
// pull credentials carry no server address.
type RegistryConfig struct {
	Host     string `mapstructure:"host"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	Platform string `mapstructure:"platform"`
}

// NamespaceOnly reports whether Host is set but would be read as a Docker Hub
// namespace rather than a registry address.
func (c RegistryConfig) NamespaceOnly() bool {
	return c.Host != "" && deployment.RegistryServer(c.Host+"/_") == ""
}

// DeployConfig holds deployment behaviour configuration.
// A zero Timeout disables the overall deadline.
type DeployConfig struct {
	PruneImages     bool          `mapstructure:"prune_images"`
	StopGracePeriod time.Duration `mapstructure:"stop_grace_period"`
	Timeout         time.Duration `mapstructure:"timeout"`

	// LockBackend is "memory" for a single instance or "redis" when several
	// instances share one engine.
	LockBackend   string        `mapstructure:"lock_backend"`
	LockTTL       time.Duration `mapstructure:"lock_ttl"`
	RedisAddr     string        `mapstructure:"redis_addr"`
	RedisPassword string        `mapstructure:"redis_password"`
	RedisDB       int           `mapstructure:"redis_db"`
}

// DeployerConfig returns the deployer settings.
func (c *Config) DeployerConfig() deploy.Config {
	return deploy.Config{
		Registry: deploy.RegistryConfig{
			Host:     c.Registry.Host,
			Username: c.Registry.Username,
			Password: c.Registry.Password,
			Platform: c.Registry.Platform,
		},
		PruneImages:     c.Deploy.PruneImages,
		StopGracePeriod: c.Deploy.StopGracePeriod,
		Timeout:         c.Deploy.Timeout,
	}
}

// CallbackConfig holds completion callback configuration.
type CallbackConfig struct {
	URL          string            `mapstructure:"url"`
	Secret       string            `mapstructure:"secret"`
	Headers      map[string]string `mapstructure:"headers"`
	Timeout      time.Duration     `mapstructure:"timeout"`
	MaxAttempts  int               `mapstructure:"max_attempts"`
	RetryWaitMin time.Duration     `mapstructure:"retry_wait_min"`
	RetryWaitMax time.Duration     `mapstructure:"retry_wait_max"`
	QueueSize    int               `mapstructure:"queue_size"`
	DrainTimeout time.Duration     `mapstructure:"drain_timeout"`
}

// NotifierConfig returns the delivery settings.
func (c CallbackConfig) NotifierConfig() callback.Config {
	return callback.Config{
		URL:          c.URL,
		Secret:       c.Secret,
		Headers:      c.Headers,
		Timeout:      c.Timeout,
		MaxAttempts:  c.MaxAttempts,
		RetryWaitMin: c.RetryWaitMin,
		RetryWaitMax: c.RetryWaitMax,
	}
}

// AuthConfig holds API authentication configuration.
// With neither a secret nor tokens the API is open.
type AuthConfig struct {
	SharedSecret string   `mapstructure:"shared_secret"`
	APITokens    []string `mapstructure:"api_tokens"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// =============================================================================
// Config Loading
// =============================================================================

// LoadConfig loads configuration from file and environment.
func LoadConfig(configPath string) (*Config, error) {
	v := viper.New()

	// Set defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "15m")
	v.SetDefault("server.shutdown_timeout", "30s")
	v.SetDefault("database.dsn", "./data/relaunch.db")
	v.SetDefault("database.retention", "720h")
	v.SetDefault("database.retention_interval", "1h")

	v.SetDefault("docker.socket_path", engine.DefaultSocketPath)
	v.SetDefault("docker.host", "")
	v.SetDefault("docker.port", 0)
	v.SetDefault("docker.tls", false)
	v.SetDefault("docker.cert_dir", "")
	v.SetDefault("docker.ssh_user", "")
	v.SetDefault("docker.ssh_key_path", "")
	v.SetDefault("docker.ssh_known_hosts", "")
	v.SetDefault("docker.ssh_timeout", "10s")
	v.SetDefault("docker.api_version", "") // negotiate with the daemon
	v.SetDefault("docker.ping_interval", "30s")

	v.SetDefault("registry.host", "") // dotless hosts are Docker Hub namespaces
	v.SetDefault("registry.username", "")
	v.SetDefault("registry.password", "")
	v.SetDefault("registry.platform", "")

	v.SetDefault("deploy.prune_images", false)
	v.SetDefault("deploy.stop_grace_period", "10s")
	v.SetDefault("deploy.timeout", "0s")
	v.SetDefault("deploy.lock_backend", LockBackendMemory)
	v.SetDefault("deploy.lock_ttl", "15m")
	v.SetDefault("deploy.redis_addr", "localhost:6379")
	v.SetDefault("deploy.redis_password", "")
	v.SetDefault("deploy.redis_db", 0)

	v.SetDefault("callback.url", "")    // no callback by default
	v.SetDefault("callback.secret", "") // unsigned when empty
	v.SetDefault("callback.headers", map[string]string{})
	v.SetDefault("callback.timeout", "10s")
	v.SetDefault("callback.max_attempts", 3)
	v.SetDefault("callback.retry_wait_min", "500ms")
	v.SetDefault("callback.retry_wait_max", "5s")
	v.SetDefault("callback.queue_size", 100)
	v.SetDefault("callback.drain_timeout", "30s")

	v.SetDefault("auth.shared_secret", "")
	v.SetDefault("auth.api_tokens", []string{})

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Load from file if provided
	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			// Only return error if file was explicitly specified and is invalid
			if _, ok := err.(viper.ConfigParseError); ok {
				return nil, fmt.Errorf("failed to parse config file: %w", err)
			}
			// File not found is OK, we'll use defaults
		}
	}

	// Enable environment variable overrides
	v.SetEnvPrefix("RELAUNCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Unmarshal config
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks settings that cannot be defaulted.
func (c *Config) Validate() error {
	switch c.Deploy.LockBackend {
	case LockBackendMemory:
	case LockBackendRedis:
		if c.Deploy.RedisAddr == "" {
			return fmt.Errorf("deploy.redis_addr is required for the redis lock backend")
		}
	default:
		return fmt.Errorf("deploy.lock_backend must be %q or %q, got %q", LockBackendMemory, LockBackendRedis, c.Deploy.LockBackend)
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535, got %d", c.Server.Port)
	}
	if c.Deploy.Timeout < 0 {
		return fmt.Errorf("deploy.timeout must not be negative")
	}
	return nil
}

// =============================================================================
// Logger Setup
// =============================================================================

// SetupLogger creates a logger with the configured level and format.
func SetupLogger(cfg *Config) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(cfg.Log.Level) {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn", "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	var handler slog.Handler
	if strings.ToLower(cfg.Log.Format) == "text" {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}

// Package config loads scriptbox settings from defaults, an optional YAML
// file, a .env file and SCRIPTBOX_* environment variables, in increasing
// order of precedence.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/sakif/scriptbox/internal/executor"
	"github.com/sakif/scriptbox/internal/observability"
	"github.com/sakif/scriptbox/internal/repository/postgres"
)

// EnvPrefix prefixes every environment override: sandbox.pool_size is
// read from SCRIPTBOX_SANDBOX_POOL_SIZE.
const EnvPrefix = "SCRIPTBOX"

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Sandbox   SandboxConfig   `mapstructure:"sandbox"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Retention RetentionConfig `mapstructure:"retention"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
	Tracing   TracingConfig   `mapstructure:"tracing"`
	MCP       MCPConfig       `mapstructure:"mcp"`
}

type ServerConfig struct {
	Addr            string        `mapstructure:"addr"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type SandboxConfig struct {
	MaxCodeLength int `mapstructure:"max_code_length"`
	MaxArgsLength int `mapstructure:"max_args_length"`
	// CodeExecutionTimeout is in seconds; fractions are allowed.
	CodeExecutionTimeout float64             `mapstructure:"code_execution_timeout"`
	PoolSize             int                 `mapstructure:"pool_size"`
	MaxOutputBytes       int                 `mapstructure:"max_output_bytes"`
	MaxSteps             uint64              `mapstructure:"max_steps"`
	Isolation            string              `mapstructure:"isolation"`
	Policy               executor.PolicySpec `mapstructure:"policy"`
}

type StorageConfig struct {
	Driver       string `mapstructure:"driver"`
	SQLitePath   string `mapstructure:"sqlite_path"`
	PostgresDSN  string `mapstructure:"postgres_dsn"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
}

type RetentionConfig struct {
	// MaxAge of zero keeps entries forever.
	MaxAge   time.Duration `mapstructure:"max_age"`
	Schedule string        `mapstructure:"schedule"`
}

type AuthConfig struct {
	// JWTSecret enables bearer-token identity when set.
	JWTSecret string        `mapstructure:"jwt_secret"`
	TokenTTL  time.Duration `mapstructure:"token_ttl"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

type MCPConfig struct {
	// HTTPEnabled mounts the streamable-HTTP transport at /mcp on serve.
	HTTPEnabled bool   `mapstructure:"http_enabled"`
	Identity    string `mapstructure:"identity"`
}

type TracingConfig struct {
	Enabled     bool    `mapstructure:"enabled"`
	Endpoint    string  `mapstructure:"endpoint"`
	Protocol    string  `mapstructure:"protocol"`
	Insecure    bool    `mapstructure:"insecure"`
	ServiceName string  `mapstructure:"service_name"`
	SampleRate  float64 `mapstructure:"sample_rate"`
}

func setDefaults(v *viper.Viper) {
	exec := executor.DefaultConfig()
	policy := executor.DefaultPolicySpec()

	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.read_timeout", 15*time.Second)
	// Must outlast the longest script plus queueing.
	v.SetDefault("server.write_timeout", 60*time.Second)
	v.SetDefault("server.shutdown_timeout", 15*time.Second)

	v.SetDefault("sandbox.max_code_length", exec.MaxCodeLength)
	v.SetDefault("sandbox.max_args_length", exec.MaxArgsLength)
	v.SetDefault("sandbox.code_execution_timeout", exec.Timeout.Seconds())
	v.SetDefault("sandbox.pool_size", exec.PoolSize)
	v.SetDefault("sandbox.max_output_bytes", exec.MaxOutputBytes)
	v.SetDefault("sandbox.max_steps", exec.MaxSteps)
	v.SetDefault("sandbox.isolation", exec.Isolation)
	v.SetDefault("sandbox.policy.primitives", policy.Primitives)
	v.SetDefault("sandbox.policy.modules", policy.Modules)
	v.SetDefault("sandbox.policy.acknowledge_unsafe_primitives", false)

	v.SetDefault("storage.driver", "sqlite")
	v.SetDefault("storage.sqlite_path", "data/scriptbox.db")
	v.SetDefault("storage.postgres_dsn", "")
	v.SetDefault("storage.max_open_conns", 10)

	v.SetDefault("retention.max_age", 720*time.Hour)
	v.SetDefault("retention.schedule", "@daily")

	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.token_ttl", 24*time.Hour)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")

	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.endpoint", "localhost:4318")
	v.SetDefault("tracing.protocol", "http")
	v.SetDefault("tracing.insecure", true)
	v.SetDefault("tracing.service_name", "scriptbox")
	v.SetDefault("tracing.sample_rate", 1.0)

	v.SetDefault("mcp.http_enabled", false)
	v.SetDefault("mcp.identity", "mcp")
}

// Load reads configuration. path names a YAML file; when empty,
// scriptbox.yaml is looked up in . and ./config and may be absent.
func Load(path string) (*Config, error) {
	// A missing .env is normal outside development.
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("loading .env: %w", err)
	}

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("scriptbox")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	s := c.Sandbox
	if s.MaxCodeLength <= 0 {
		return fmt.Errorf("sandbox.max_code_length must be positive, got: %d", s.MaxCodeLength)
	}
	if s.MaxArgsLength <= 0 {
		return fmt.Errorf("sandbox.max_args_length must be positive, got: %d", s.MaxArgsLength)
	}
	if s.CodeExecutionTimeout <= 0 {
		return fmt.Errorf("sandbox.code_execution_timeout must be positive, got: %g", s.CodeExecutionTimeout)
	}
	// A zero write timeout means none; otherwise the response must outlive the script.
	scriptTimeout := time.Duration(s.CodeExecutionTimeout * float64(time.Second))
	if w := c.Server.WriteTimeout; w > 0 && w <= scriptTimeout {
		return fmt.Errorf("server.write_timeout (%s) must exceed sandbox.code_execution_timeout (%s)", w, scriptTimeout)
	}
	if s.PoolSize <= 0 {
		return fmt.Errorf("sandbox.pool_size must be positive, got: %d", s.PoolSize)
	}
	if s.Isolation != executor.IsolationInProcess && s.Isolation != executor.IsolationProcess {
		return fmt.Errorf("invalid sandbox.isolation: %s, must be %q or %q",
			s.Isolation, executor.IsolationInProcess, executor.IsolationProcess)
	}
	if err := executor.PolicyFromSpec(s.Policy).Validate(); err != nil {
		return fmt.Errorf("sandbox.policy: %w", err)
	}

	switch c.Storage.Driver {
	case "sqlite":
		if c.Storage.SQLitePath == "" {
			return errors.New("storage.sqlite_path is required for the sqlite driver")
		}
	case "postgres":
		if c.Storage.PostgresDSN == "" {
			return errors.New("storage.postgres_dsn is required for the postgres driver")
		}
	default:
		return fmt.Errorf("unsupported storage.driver: %s", c.Storage.Driver)
	}

	if c.Retention.MaxAge < 0 {
		return fmt.Errorf("retention.max_age must not be negative, got: %s", c.Retention.MaxAge)
	}
	if c.Retention.MaxAge > 0 && c.Retention.Schedule == "" {
		return errors.New("retention.schedule is required when retention.max_age is set")
	}

	if c.Auth.JWTSecret != "" && len(c.Auth.JWTSecret) < 16 {
		return errors.New("auth.jwt_secret must be at least 16 characters")
	}

	switch strings.ToLower(c.Logging.Format) {
	case "text", "json":
	default:
		return fmt.Errorf("invalid logging.format: %s, must be 'text' or 'json'", c.Logging.Format)
	}

	if c.Tracing.Enabled && c.Tracing.Protocol != "http" && c.Tracing.Protocol != "grpc" {
		return fmt.Errorf("invalid tracing.protocol: %s, must be 'http' or 'grpc'", c.Tracing.Protocol)
	}
	return nil
}

// Executor converts the sandbox section into engine limits.
func (c *Config) Executor() executor.Config {
	s := c.Sandbox
	return executor.Config{
		MaxCodeLength:  s.MaxCodeLength,
		MaxArgsLength:  s.MaxArgsLength,
		Timeout:        time.Duration(s.CodeExecutionTimeout * float64(time.Second)),
		PoolSize:       s.PoolSize,
		MaxOutputBytes: s.MaxOutputBytes,
		MaxSteps:       s.MaxSteps,
		Isolation:      s.Isolation,
		Policy:         executor.PolicyFromSpec(s.Policy),
	}
}

func (c *Config) Postgres() postgres.Config {
	return postgres.Config{
		DSN:          c.Storage.PostgresDSN,
		MaxOpenConns: c.Storage.MaxOpenConns,
	}
}

func (c *Config) TracerConfig() observability.TracingConfig {
	t := c.Tracing
	return observability.TracingConfig{
		Enabled:     t.Enabled,
		Endpoint:    t.Endpoint,
		Protocol:    t.Protocol,
		Insecure:    t.Insecure,
		ServiceName: t.ServiceName,
		SampleRate:  t.SampleRate,
	}
}

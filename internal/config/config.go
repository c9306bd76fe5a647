package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v2"
)

// Config represents the complete worker configuration
type Config struct {
	Host       string `yaml:"host" envconfig:"HOST"`
	Port       int    `yaml:"port" envconfig:"PORT"`
	BundlePath string `yaml:"bundle" envconfig:"BUNDLE"`
	// Kind restricts the accepted archive kind: speller, grammar or any.
	Kind string `yaml:"kind" envconfig:"KIND"`

	Server    ServerConfig    `yaml:"server" envconfig:"SERVER"`
	Engine    EngineConfig    `yaml:"engine" envconfig:"ENGINE"`
	Security  SecurityConfig  `yaml:"security" envconfig:"SECURITY"`
	Logging   LoggingConfig   `yaml:"logging" envconfig:"LOGGING"`
	Telemetry TelemetryConfig `yaml:"telemetry" envconfig:"TELEMETRY"`
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	ReadTimeout     time.Duration `yaml:"read_timeout" envconfig:"READ_TIMEOUT"`
	WriteTimeout    time.Duration `yaml:"write_timeout" envconfig:"WRITE_TIMEOUT"`
	IdleTimeout     time.Duration `yaml:"idle_timeout" envconfig:"IDLE_TIMEOUT"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" envconfig:"SHUTDOWN_TIMEOUT"`
	MaxHeaderBytes  int           `yaml:"max_header_bytes" envconfig:"MAX_HEADER_BYTES"`
	MaxBodyBytes    int64         `yaml:"max_body_bytes" envconfig:"MAX_BODY_BYTES"`
}

// EngineConfig bounds access to the analysis engine
type EngineConfig struct {
	MaxInFlight    int           `yaml:"max_in_flight" envconfig:"MAX_IN_FLIGHT"`
	QueueTimeout   time.Duration `yaml:"queue_timeout" envconfig:"QUEUE_TIMEOUT"`
	CallTimeout    time.Duration `yaml:"call_timeout" envconfig:"CALL_TIMEOUT"`
	MaxQueue       int           `yaml:"max_queue" envconfig:"MAX_QUEUE"`
	MaxTextBytes   int           `yaml:"max_text_bytes" envconfig:"MAX_TEXT_BYTES"`
	MaxSuggestions int           `yaml:"max_suggestions" envconfig:"MAX_SUGGESTIONS"`
}

// SecurityConfig contains security-related configuration
type SecurityConfig struct {
	AllowedOrigins []string        `yaml:"allowed_origins" envconfig:"ALLOWED_ORIGINS"`
	EnableCORS     bool            `yaml:"enable_cors" envconfig:"ENABLE_CORS"`
	RateLimit      RateLimitConfig `yaml:"rate_limit" envconfig:"RATE_LIMIT"`
}

// RateLimitConfig contains rate limiting configuration
type RateLimitConfig struct {
	Enabled bool    `yaml:"enabled" envconfig:"ENABLED"`
	RPS     float64 `yaml:"rps" envconfig:"RPS"`
	Burst   int     `yaml:"burst" envconfig:"BURST"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level    string `yaml:"level" envconfig:"LEVEL"`
	Format   string `yaml:"format" envconfig:"FORMAT"`
	Output   string `yaml:"output" envconfig:"OUTPUT"`
	FilePath string `yaml:"file_path" envconfig:"FILE_PATH"`
}

// TelemetryConfig contains OpenTelemetry configuration
type TelemetryConfig struct {
	EnableTracing bool    `yaml:"enable_tracing" envconfig:"ENABLE_TRACING"`
	EnableMetrics bool    `yaml:"enable_metrics" envconfig:"ENABLE_METRICS"`
	TraceExporter string  `yaml:"trace_exporter" envconfig:"TRACE_EXPORTER"`
	SampleRatio   float64 `yaml:"sample_ratio" envconfig:"SAMPLE_RATIO"`
	Environment   string  `yaml:"environment" envconfig:"ENVIRONMENT"`
}

// Default returns the configuration used when nothing overrides it
func Default() *Config {
	return &Config{
		Host: DefaultHost,
		Port: DefaultPort,
		Kind: "any",
		Server: ServerConfig{
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    30 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 30 * time.Second,
			MaxHeaderBytes:  1 << 20,
			MaxBodyBytes:    1 << 20,
		},
		Engine: EngineConfig{
			MaxInFlight:    1,
			QueueTimeout:   5 * time.Second,
			CallTimeout:    10 * time.Second,
			MaxTextBytes:   64 << 10,
			MaxSuggestions: 10,
		},
		Security: SecurityConfig{
			AllowedOrigins: []string{"*"},
			EnableCORS:     true,
			RateLimit: RateLimitConfig{
				Enabled: false,
				RPS:     100,
				Burst:   50,
			},
		},
		Logging: LoggingConfig{
			Level:    "info",
			Format:   "json",
			Output:   "console",
			FilePath: "logs/langworker.log",
		},
		Telemetry: TelemetryConfig{
			EnableTracing: false,
			EnableMetrics: true,
			TraceExporter: "stdout",
			SampleRatio:   1.0,
			Environment:   "development",
		},
	}
}

// Load builds the configuration from defaults, the YAML file at path and the
// environment, in that order. An empty path falls back to DefaultConfigFile
// in the working directory when it exists.
func Load(path string) (*Config, error) {
	cfg := Default()

	explicit := path != ""
	if !explicit {
		path = DefaultConfigFile
	}
	if err := cfg.loadFile(path, explicit); err != nil {
		return nil, err
	}

	if err := envconfig.Process(EnvPrefix, cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// loadFile overlays the YAML file onto c. A missing file is only an error
// when it was asked for explicitly.
func (c *Config) loadFile(path string, explicit bool) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) && !explicit {
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.UnmarshalStrict(data, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

// Validate checks the configuration for consistency
func (c *Config) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Port)
	}
	if strings.TrimSpace(c.Host) == "" {
		return errors.New("host must not be empty")
	}
	switch strings.ToLower(c.Kind) {
	case "", "any", "auto", "speller", "grammar":
	default:
		return fmt.Errorf("invalid kind %q: want speller, grammar or any", c.Kind)
	}

	if c.Server.ReadTimeout <= 0 || c.Server.WriteTimeout <= 0 || c.Server.IdleTimeout <= 0 {
		return errors.New("server timeouts must be positive")
	}
	if c.Server.ShutdownTimeout <= 0 {
		return errors.New("shutdown timeout must be positive")
	}
	if c.Server.MaxBodyBytes <= 0 {
		return errors.New("max body bytes must be positive")
	}

	if c.Engine.MaxInFlight < 1 {
		return fmt.Errorf("engine max in flight must be at least 1, got %d", c.Engine.MaxInFlight)
	}
	if c.Engine.QueueTimeout <= 0 || c.Engine.CallTimeout <= 0 {
		return errors.New("engine timeouts must be positive")
	}
	if c.Engine.MaxQueue < 0 {
		return errors.New("engine max queue must not be negative")
	}
	if c.Engine.MaxTextBytes <= 0 {
		return errors.New("engine max text bytes must be positive")
	}
	if c.Engine.MaxSuggestions < 0 {
		return errors.New("engine max suggestions must not be negative")
	}

	if c.Security.RateLimit.Enabled {
		if c.Security.RateLimit.RPS <= 0 {
			return errors.New("rate limit RPS must be positive")
		}
		if c.Security.RateLimit.Burst <= 0 {
			return errors.New("rate limit burst must be positive")
		}
	}

	switch strings.ToLower(c.Logging.Output) {
	case "console", "stdout", "stderr", "file", "both":
	default:
		return fmt.Errorf("invalid log output %q", c.Logging.Output)
	}
	switch strings.ToLower(c.Logging.Format) {
	case "json", "text":
	default:
		return fmt.Errorf("invalid log format %q", c.Logging.Format)
	}

	switch c.Telemetry.TraceExporter {
	case "stdout", "none":
	default:
		return fmt.Errorf("unsupported trace exporter %q", c.Telemetry.TraceExporter)
	}
	return nil
}

// Address returns the host:port the server listens on
func (c *Config) Address() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

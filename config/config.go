// Package config loads runtime configuration for the visual script runner.
//
// Configuration is layered: Default values first, then each file passed to
// Loader.AddLayer in order, then VISUALSCRIPT_* environment variables. Files may
// be JSON, YAML (.yaml, .yml) or TOML (.toml); nested sections merge key by key so
// an override file only needs the values it changes.
//
//	loader := config.NewLoader()
//	loader.AddLayer("configs/base.yaml")
//	loader.AddLayer("configs/local.toml")
//	cfg, err := loader.Load()
//
// Durations are written as strings ("16ms", "2s", "1d").
package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"github.com/c360/visualscript/errors"
	"github.com/c360/visualscript/pkg/tlsutil"
)

// Config is the complete runner configuration
type Config struct {
	Log     LogConfig     `json:"log" yaml:"log" toml:"log"`
	Engine  EngineConfig  `json:"engine" yaml:"engine" toml:"engine"`
	NATS    NATSConfig    `json:"nats" yaml:"nats" toml:"nats"`
	Metrics MetricsConfig `json:"metrics" yaml:"metrics" toml:"metrics"`
	Graph   GraphConfig   `json:"graph" yaml:"graph" toml:"graph"`
}

// LogConfig selects the slog handler
type LogConfig struct {
	Level  string `json:"level" yaml:"level" toml:"level"`    // debug, info, warn, error
	Format string `json:"format" yaml:"format" toml:"format"` // json, text
}

// EngineConfig bounds engine execution
type EngineConfig struct {
	MaxSteps     int      `json:"max_steps" yaml:"max_steps" toml:"max_steps"`
	TickInterval Duration `json:"tick_interval" yaml:"tick_interval" toml:"tick_interval"`

	// ScriptTimeout bounds one JavaScript evaluation; zero disables the bound
	ScriptTimeout   Duration `json:"script_timeout" yaml:"script_timeout" toml:"script_timeout"`
	ScriptCacheSize int      `json:"script_cache_size" yaml:"script_cache_size" toml:"script_cache_size"`
}

// NATSConfig defines the optional NATS connection used for graph storage and log publication
type NATSConfig struct {
	Enabled       bool     `json:"enabled" yaml:"enabled" toml:"enabled"`
	URL           string   `json:"url" yaml:"url" toml:"url"`
	Bucket        string   `json:"bucket" yaml:"bucket" toml:"bucket"`
	PublishLogs   bool     `json:"publish_logs" yaml:"publish_logs" toml:"publish_logs"`
	PublishRate   float64  `json:"publish_rate" yaml:"publish_rate" toml:"publish_rate"` // entries per second, zero is unlimited
	PublishBurst  int      `json:"publish_burst" yaml:"publish_burst" toml:"publish_burst"`
	MaxReconnects int      `json:"max_reconnects" yaml:"max_reconnects" toml:"max_reconnects"`
	ReconnectWait Duration `json:"reconnect_wait" yaml:"reconnect_wait" toml:"reconnect_wait"`
	Username      string   `json:"username,omitempty" yaml:"username,omitempty" toml:"username,omitempty"`
	Password      string   `json:"password,omitempty" yaml:"password,omitempty" toml:"password,omitempty"`
	Token         string   `json:"token,omitempty" yaml:"token,omitempty" toml:"token,omitempty"`

	TLS tlsutil.ClientConfig `json:"tls" yaml:"tls" toml:"tls"`
}

// MetricsConfig controls the Prometheus endpoint
type MetricsConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled" toml:"enabled"`
	Port    int    `json:"port" yaml:"port" toml:"port"`
	Path    string `json:"path" yaml:"path" toml:"path"`
}

// GraphConfig names the graph to run: a file path or a graph store id
type GraphConfig struct {
	Path    string `json:"path,omitempty" yaml:"path,omitempty" toml:"path,omitempty"`
	StoreID string `json:"store_id,omitempty" yaml:"store_id,omitempty" toml:"store_id,omitempty"`
	Watch   bool   `json:"watch" yaml:"watch" toml:"watch"`
}

// Default returns a configuration that runs a local graph file without NATS
func Default() *Config {
	return &Config{
		Log: LogConfig{Level: "info", Format: "text"},
		Engine: EngineConfig{
			MaxSteps:        10000,
			TickInterval:    Duration(16 * time.Millisecond),
			ScriptTimeout:   Duration(100 * time.Millisecond),
			ScriptCacheSize: 256,
		},
		NATS: NATSConfig{
			URL:           "nats://localhost:4222",
			Bucket:        "visualscript_graphs",
			MaxReconnects: -1,
			ReconnectWait: Duration(2 * time.Second),
			PublishRate:   200,
			PublishBurst:  50,
		},
		Metrics: MetricsConfig{Port: 9090, Path: "/metrics"},
	}
}

var (
	logLevels  = []string{"debug", "info", "warn", "error"}
	logFormats = []string{"json", "text"}
)

// Validate normalizes c in place and reports the first invalid value
func (c *Config) Validate() error {
	c.Log.Level = strings.ToLower(strings.TrimSpace(c.Log.Level))
	c.Log.Format = strings.ToLower(strings.TrimSpace(c.Log.Format))
	if c.Log.Level == "warning" {
		c.Log.Level = "warn"
	}

	switch {
	case !slices.Contains(logLevels, c.Log.Level):
		return invalid("log.level %q must be one of %s", c.Log.Level, strings.Join(logLevels, ", "))
	case !slices.Contains(logFormats, c.Log.Format):
		return invalid("log.format %q must be one of %s", c.Log.Format, strings.Join(logFormats, ", "))
	case c.Engine.MaxSteps <= 0:
		return invalid("engine.max_steps must be positive, got %d", c.Engine.MaxSteps)
	case c.Engine.TickInterval <= 0:
		return invalid("engine.tick_interval must be positive, got %s", c.Engine.TickInterval)
	case c.Engine.ScriptTimeout < 0:
		return invalid("engine.script_timeout cannot be negative")
	case c.Engine.ScriptCacheSize <= 0:
		return invalid("engine.script_cache_size must be positive, got %d", c.Engine.ScriptCacheSize)
	}

	if c.NATS.Enabled {
		switch {
		case c.NATS.URL == "":
			return invalid("nats.url is required when nats is enabled")
		case !validBucket(c.NATS.Bucket):
			return invalid("nats.bucket %q must be alphanumeric with dashes or underscores", c.NATS.Bucket)
		case c.NATS.ReconnectWait < 0:
			return invalid("nats.reconnect_wait cannot be negative")
		}
		if err := c.NATS.TLS.Validate(); err != nil {
			return err
		}
	}
	if c.NATS.PublishLogs && !c.NATS.Enabled {
		return invalid("nats.publish_logs requires nats.enabled")
	}
	if c.NATS.PublishRate < 0 || c.NATS.PublishBurst < 0 {
		return invalid("nats.publish_rate and nats.publish_burst cannot be negative")
	}

	if c.Metrics.Enabled {
		if c.Metrics.Port <= 0 || c.Metrics.Port > 65535 {
			return invalid("metrics.port %d out of range", c.Metrics.Port)
		}
		if !strings.HasPrefix(c.Metrics.Path, "/") {
			return invalid("metrics.path %q must start with /", c.Metrics.Path)
		}
	}

	if c.Graph.Path != "" && c.Graph.StoreID != "" {
		return invalid("graph.path and graph.store_id are mutually exclusive")
	}
	if c.Graph.StoreID != "" && !c.NATS.Enabled {
		return invalid("graph.store_id requires nats.enabled")
	}
	return nil
}

func invalid(format string, args ...any) error {
	return errors.WrapInvalid(
		fmt.Errorf("%w: %s", errors.ErrInvalidConfig, fmt.Sprintf(format, args...)),
		"Config", "Validate", "validate configuration")
}

func validBucket(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if !(r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' || r == '-' || r == '_') {
			return false
		}
	}
	return true
}

// Clone returns a deep copy of c
func (c *Config) Clone() *Config {
	if c == nil {
		return Default()
	}
	copied := *c
	copied.NATS.TLS.CAFiles = slices.Clone(c.NATS.TLS.CAFiles)
	return &copied
}

// Write encodes c in format: json, yaml or toml
func (c *Config) Write(w io.Writer, format string) error {
	var (
		data []byte
		err  error
	)
	switch format {
	case "json":
		data, err = json.MarshalIndent(c, "", "  ")
		data = append(data, '\n')
	case "yaml", "yml":
		var buf bytes.Buffer
		enc := yaml.NewEncoder(&buf)
		enc.SetIndent(2)
		err = enc.Encode(c)
		data = buf.Bytes()
	case "toml":
		data, err = toml.Marshal(c)
	default:
		return errors.WrapInvalid(fmt.Errorf("%w: unknown format %q", errors.ErrInvalidConfig, format),
			"Config", "Write", "select encoder")
	}
	if err != nil {
		return errors.WrapInvalid(err, "Config", "Write", "encode "+format)
	}
	_, err = w.Write(data)
	return err
}

// Duration is a time.Duration that reads and writes as a string
type Duration time.Duration

// Std returns d as a time.Duration
func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d Duration) String() string { return time.Duration(d).String() }

// MarshalText encodes d as a Go duration string
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// UnmarshalText parses a Go duration string, also accepting a whole number of days ("14d")
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := parseDuration(string(text))
	if err != nil {
		return errors.WrapInvalid(fmt.Errorf("%w: duration %q", errors.ErrInvalidConfig, text),
			"Duration", "UnmarshalText", "parse duration")
	}
	*d = Duration(v)
	return nil
}

// UnmarshalJSON accepts a duration string or a number of nanoseconds
func (d *Duration) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		return d.UnmarshalText([]byte(s))
	}
	var n int64
	if err := json.Unmarshal(data, &n); err != nil {
		return errors.WrapInvalid(fmt.Errorf("%w: duration %s", errors.ErrInvalidConfig, data),
			"Duration", "UnmarshalJSON", "parse duration")
	}
	*d = Duration(n)
	return nil
}

func parseDuration(s string) (time.Duration, error) {
	if days, ok := strings.CutSuffix(s, "d"); ok {
		n, err := strconv.Atoi(days)
		if err != nil {
			return 0, err
		}
		return time.Duration(n) * 24 * time.Hour, nil
	}
	return time.ParseDuration(s)
}

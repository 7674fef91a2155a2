package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/cast"
	"gopkg.in/yaml.v3"

	"github.com/c360/visualscript/errors"
)

const (
	maxConfigSize = 10 << 20
	maxEnvVarLen  = 10000
)

// DefaultEnvPrefix prefixes environment overrides, as in VISUALSCRIPT_NATS_URL
const DefaultEnvPrefix = "VISUALSCRIPT"

// Loader merges configuration layers over Default
type Loader struct {
	layers    []string
	envPrefix string
	lookupEnv func(string) (string, bool)
}

// NewLoader creates a loader reading overrides from the process environment
func NewLoader() *Loader {
	return &Loader{envPrefix: DefaultEnvPrefix, lookupEnv: os.LookupEnv}
}

// AddLayer appends a configuration file. Later layers win.
func (l *Loader) AddLayer(path string) {
	l.layers = append(l.layers, path)
}

// SetEnv replaces the environment lookup, mainly for tests
func (l *Loader) SetEnv(lookup func(string) (string, bool)) {
	l.lookupEnv = lookup
}

// LoadFile loads Default, path and the environment
func (l *Loader) LoadFile(path string) (*Config, error) {
	l.layers = []string{path}
	return l.Load()
}

// Load merges every layer and environment override and validates the result
func (l *Loader) Load() (*Config, error) {
	merged, err := toMap(Default())
	if err != nil {
		return nil, err
	}
	for _, path := range l.layers {
		layer, err := readLayer(path)
		if err != nil {
			return nil, errors.Wrap(err, "Loader", "Load", "read "+path)
		}
		merged = deepMerge(merged, layer)
	}

	data, err := json.Marshal(merged)
	if err != nil {
		return nil, errors.WrapInvalid(err, "Loader", "Load", "encode merged layers")
	}
	cfg := &Config{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, errors.WrapInvalid(fmt.Errorf("%w: %v", errors.ErrInvalidConfig, err),
			"Loader", "Load", "decode merged layers")
	}

	if err := l.applyEnv(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func toMap(cfg *Config) (map[string]any, error) {
	data, err := json.Marshal(cfg)
	if err != nil {
		return nil, errors.WrapFatal(err, "Loader", "toMap", "encode defaults")
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, errors.WrapFatal(err, "Loader", "toMap", "decode defaults")
	}
	return m, nil
}

// Parse decodes one configuration document by the extension of path
func Parse(path string, data []byte) (map[string]any, error) {
	var m map[string]any
	var err error
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &m)
	case ".toml":
		err = toml.Unmarshal(data, &m)
	case ".json":
		dec := json.NewDecoder(bytes.NewReader(data))
		err = dec.Decode(&m)
	default:
		return nil, errors.WrapInvalid(
			fmt.Errorf("%w: unsupported config file %s (want .json, .yaml, .yml or .toml)", errors.ErrInvalidConfig, path),
			"Loader", "Parse", "select decoder")
	}
	if err != nil {
		return nil, errors.WrapInvalid(fmt.Errorf("%w: %v", errors.ErrParsingFailed, err),
			"Loader", "Parse", "decode "+path)
	}
	if m == nil {
		m = map[string]any{}
	}
	return m, nil
}

func readLayer(path string) (map[string]any, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, errors.WrapInvalid(err, "Loader", "readLayer", "stat config file")
	}
	if !info.Mode().IsRegular() {
		return nil, errors.WrapInvalid(fmt.Errorf("%w: not a regular file: %s", errors.ErrInvalidConfig, path),
			"Loader", "readLayer", "stat config file")
	}
	if info.Size() > maxConfigSize {
		return nil, errors.WrapInvalid(
			fmt.Errorf("%w: config file too large: %d bytes > %d", errors.ErrInvalidConfig, info.Size(), maxConfigSize),
			"Loader", "readLayer", "size check")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.WrapTransient(err, "Loader", "readLayer", "read config file")
	}
	return Parse(path, data)
}

// deepMerge returns base with override applied, merging nested maps key by key
func deepMerge(base, override map[string]any) map[string]any {
	result := make(map[string]any, len(base))
	for k, v := range base {
		result[k] = v
	}
	for k, v := range override {
		if v == nil {
			continue
		}
		if bm, ok := base[k].(map[string]any); ok {
			if om, ok := v.(map[string]any); ok {
				result[k] = deepMerge(bm, om)
				continue
			}
		}
		result[k] = v
	}
	return result
}

// envOverride binds one environment variable suffix to a field setter
type envOverride struct {
	suffix string
	apply  func(cfg *Config, value string) error
}

var envOverrides = []envOverride{
	{"LOG_LEVEL", func(c *Config, v string) error { c.Log.Level = v; return nil }},
	{"LOG_FORMAT", func(c *Config, v string) error { c.Log.Format = v; return nil }},
	{"ENGINE_MAX_STEPS", func(c *Config, v string) (err error) { c.Engine.MaxSteps, err = cast.ToIntE(v); return }},
	{"ENGINE_TICK_INTERVAL", func(c *Config, v string) error { return c.Engine.TickInterval.UnmarshalText([]byte(v)) }},
	{"ENGINE_SCRIPT_TIMEOUT", func(c *Config, v string) error { return c.Engine.ScriptTimeout.UnmarshalText([]byte(v)) }},
	{"ENGINE_SCRIPT_CACHE_SIZE", func(c *Config, v string) (err error) { c.Engine.ScriptCacheSize, err = cast.ToIntE(v); return }},
	{"NATS_ENABLED", func(c *Config, v string) (err error) { c.NATS.Enabled, err = cast.ToBoolE(v); return }},
	{"NATS_URL", func(c *Config, v string) error { c.NATS.URL = v; return nil }},
	{"NATS_BUCKET", func(c *Config, v string) error { c.NATS.Bucket = v; return nil }},
	{"NATS_PUBLISH_LOGS", func(c *Config, v string) (err error) { c.NATS.PublishLogs, err = cast.ToBoolE(v); return }},
	{"NATS_PUBLISH_RATE", func(c *Config, v string) (err error) { c.NATS.PublishRate, err = cast.ToFloat64E(v); return }},
	{"NATS_PUBLISH_BURST", func(c *Config, v string) (err error) { c.NATS.PublishBurst, err = cast.ToIntE(v); return }},
	{"NATS_USERNAME", func(c *Config, v string) error { c.NATS.Username = v; return nil }},
	{"NATS_PASSWORD", func(c *Config, v string) error { c.NATS.Password = v; return nil }},
	{"NATS_TOKEN", func(c *Config, v string) error { c.NATS.Token = v; return nil }},
	{"NATS_TLS_ENABLED", func(c *Config, v string) (err error) { c.NATS.TLS.Enabled, err = cast.ToBoolE(v); return }},
	{"NATS_TLS_CA_FILES", func(c *Config, v string) error { c.NATS.TLS.CAFiles = strings.Split(v, ","); return nil }},
	{"NATS_TLS_CERT_FILE", func(c *Config, v string) error { c.NATS.TLS.CertFile = v; return nil }},
	{"NATS_TLS_KEY_FILE", func(c *Config, v string) error { c.NATS.TLS.KeyFile = v; return nil }},
	{"METRICS_ENABLED", func(c *Config, v string) (err error) { c.Metrics.Enabled, err = cast.ToBoolE(v); return }},
	{"METRICS_PORT", func(c *Config, v string) (err error) { c.Metrics.Port, err = cast.ToIntE(v); return }},
	{"GRAPH_PATH", func(c *Config, v string) error { c.Graph.Path = v; return nil }},
	{"GRAPH_STORE_ID", func(c *Config, v string) error { c.Graph.StoreID = v; return nil }},
}

func (l *Loader) applyEnv(cfg *Config) error {
	for _, o := range envOverrides {
		key := l.envPrefix + "_" + o.suffix
		value, ok := l.lookupEnv(key)
		if !ok || value == "" {
			continue
		}
		if len(value) > maxEnvVarLen || strings.ContainsRune(value, 0) {
			return errors.WrapInvalid(fmt.Errorf("%w: malformed %s", errors.ErrInvalidConfig, key),
				"Loader", "applyEnv", "check environment")
		}
		if err := o.apply(cfg, value); err != nil {
			return errors.WrapInvalid(fmt.Errorf("%w: %s=%q: %v", errors.ErrInvalidConfig, key, value, err),
				"Loader", "applyEnv", "apply environment")
		}
	}
	return nil
}

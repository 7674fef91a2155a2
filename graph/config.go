package graph

import (
	"maps"

	"github.com/spf13/cast"
)

// Configuration holds per-node settings that shape sockets and behavior
type Configuration map[string]any

// ConfigSpec declares one configuration key of a node type
type ConfigSpec struct {
	ValueType string `json:"valueType"`
	Default   any    `json:"defaultValue"`
	// Choices lists the allowed values against a graph, which may be nil
	Choices func(g *Graph) []Choice `json:"-"`
}

// Int returns key as an int, or def when missing or not numeric
func (c Configuration) Int(key string, def int) int {
	v, ok := c[key]
	if !ok || v == nil {
		return def
	}
	i, err := cast.ToIntE(v)
	if err != nil {
		return def
	}
	return i
}

// Float returns key as a float64, or def
func (c Configuration) Float(key string, def float64) float64 {
	v, ok := c[key]
	if !ok || v == nil {
		return def
	}
	f, err := cast.ToFloat64E(v)
	if err != nil {
		return def
	}
	return f
}

// String returns key as a string, or def
func (c Configuration) String(key, def string) string {
	v, ok := c[key]
	if !ok || v == nil {
		return def
	}
	s, err := cast.ToStringE(v)
	if err != nil {
		return def
	}
	return s
}

// Bool returns key as a bool, or def
func (c Configuration) Bool(key string, def bool) bool {
	v, ok := c[key]
	if !ok || v == nil {
		return def
	}
	b, err := cast.ToBoolE(v)
	if err != nil {
		return def
	}
	return b
}

// Strings returns key as a string slice, or def
func (c Configuration) Strings(key string, def []string) []string {
	v, ok := c[key]
	if !ok || v == nil {
		return def
	}
	s, err := cast.ToStringSliceE(v)
	if err != nil {
		return def
	}
	return s
}

// Clone returns a shallow copy
func (c Configuration) Clone() Configuration {
	if c == nil {
		return Configuration{}
	}
	return maps.Clone(c)
}

// withDefaults fills keys missing from cfg with the declared defaults
func withDefaults(cfg Configuration, specs map[string]ConfigSpec) Configuration {
	out := cfg.Clone()
	for key, spec := range specs {
		if _, ok := out[key]; !ok && spec.Default != nil {
			out[key] = spec.Default
		}
	}
	return out
}

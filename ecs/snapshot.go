package ecs

import (
	"encoding/json"
	"maps"
	"path/filepath"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/c360/visualscript/errors"
)

// Snapshot is the serialized form of a world: component declarations with
// their defaults, and entities with their component data
type Snapshot struct {
	Components map[string]map[string]any `json:"components" yaml:"components"`
	Entities   []EntitySnapshot          `json:"entities" yaml:"entities"`
}

// EntitySnapshot is one serialized entity
type EntitySnapshot struct {
	Components map[string]map[string]any `json:"components" yaml:"components"`
}

// ParseSnapshot decodes a snapshot as YAML when path ends in .yaml or .yml and
// as JSON otherwise
func ParseSnapshot(path string, data []byte) (Snapshot, error) {
	var s Snapshot
	var err error
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &s)
	default:
		err = json.Unmarshal(data, &s)
	}
	if err != nil {
		return Snapshot{}, errors.WrapInvalid(err, "ecs", "ParseSnapshot", "decode "+path)
	}
	return s, nil
}

// Load registers the snapshot components missing from w and creates its
// entities. Entities get new ids in snapshot order.
func (w *World) Load(s Snapshot) ([]Entity, error) {
	known := w.ComponentNames()
	for _, name := range slices.Sorted(maps.Keys(s.Components)) {
		if slices.Contains(known, name) {
			continue
		}
		if err := w.RegisterComponent(name, s.Components[name]); err != nil {
			return nil, errors.Wrap(err, "World", "Load", "register components")
		}
	}

	created := make([]Entity, 0, len(s.Entities))
	for _, es := range s.Entities {
		e := w.CreateEntity()
		created = append(created, e)
		for _, name := range slices.Sorted(maps.Keys(es.Components)) {
			if err := w.SetComponent(e, name, es.Components[name]); err != nil {
				return created, errors.Wrap(err, "World", "Load", "set components")
			}
		}
	}
	return created, nil
}

// Snapshot captures the components and live entities of w
func (w *World) Snapshot() Snapshot {
	w.mu.RLock()
	defer w.mu.RUnlock()
	s := Snapshot{Components: make(map[string]map[string]any, len(w.schemas))}
	for name, defaults := range w.schemas {
		s.Components[name] = maps.Clone(defaults)
	}
	for _, e := range slices.Sorted(maps.Keys(w.entities)) {
		es := EntitySnapshot{Components: map[string]map[string]any{}}
		for name, store := range w.components {
			if data, ok := store[e]; ok {
				es.Components[name] = maps.Clone(data)
			}
		}
		s.Entities = append(s.Entities, es)
	}
	return s
}

// Package ecs is an in-memory entity component system world. Entities are
// integer ids carrying named components whose data is a JSON-shaped object.
// Queries track the entities that carry a set of components, systems run once per
// Execute in ordered groups, and reported collisions are visible to systems during
// the next Execute.
//
// World methods are safe for concurrent use. Systems run without the world lock
// held and may call back into the world.
package ecs

import (
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/c360/visualscript/errors"
)

// Entity identifies an entity in a World. Zero is never assigned.
type Entity int64

// System groups in their default execution order
const (
	InputGroup        = "input"
	SimulationGroup   = "simulation"
	PresentationGroup = "presentation"
)

// Frame describes one Execute call to the systems it runs
type Frame struct {
	Number       uint64
	DeltaSeconds float64
	Elapsed      float64
}

// Collision is an unordered contact between two entities
type Collision struct {
	A, B Entity
}

// Query matches entities carrying every listed component
type Query struct {
	id         uint64
	components []string
	world      *World
}

// Components returns the component names the query requires
func (q *Query) Components() []string { return slices.Clone(q.components) }

// Entities returns the matching entities in ascending order
func (q *Query) Entities() []Entity {
	q.world.mu.RLock()
	defer q.world.mu.RUnlock()
	return q.world.match(q.components)
}

// Matches reports whether e carries every component of the query
func (q *Query) Matches(e Entity) bool {
	q.world.mu.RLock()
	defer q.world.mu.RUnlock()
	return q.world.carries(e, q.components)
}

// System is a registered per-frame callback
type System struct {
	id    uint64
	name  string
	group string
	fn    func(Frame)
}

// Name returns the system name
func (s *System) Name() string { return s.name }

// Group returns the group the system runs in
func (s *System) Group() string { return s.group }

// World holds entities, components, queries and systems
type World struct {
	logger *slog.Logger
	groups []string

	mu         sync.RWMutex
	nextID     uint64
	nextEntity Entity
	entities   map[Entity]struct{}
	schemas    map[string]map[string]any
	components map[string]map[Entity]map[string]any
	queries    map[uint64]*Query
	systems    map[string][]*System
	pending    []Collision
	current    []Collision
	frame      Frame
}

// Option configures a World
type Option func(*World)

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(w *World) {
		if logger != nil {
			w.logger = logger
		}
	}
}

// WithGroups replaces the system group order
func WithGroups(groups ...string) Option {
	return func(w *World) { w.groups = slices.Clone(groups) }
}

// NewWorld creates an empty world
func NewWorld(opts ...Option) *World {
	w := &World{
		logger:     slog.Default(),
		groups:     []string{InputGroup, SimulationGroup, PresentationGroup},
		entities:   make(map[Entity]struct{}),
		schemas:    make(map[string]map[string]any),
		components: make(map[string]map[Entity]map[string]any),
		queries:    make(map[uint64]*Query),
		systems:    make(map[string][]*System),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Groups returns the system groups in execution order
func (w *World) Groups() []string { return slices.Clone(w.groups) }

// RegisterComponent declares a component with default field values
func (w *World) RegisterComponent(name string, defaults map[string]any) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, ok := w.schemas[name]; ok {
		return errors.WrapInvalid(fmt.Errorf("%w: component %q", errors.ErrDuplicateID, name),
			"World", "RegisterComponent", "name check")
	}
	if defaults == nil {
		defaults = map[string]any{}
	}
	w.schemas[name] = maps.Clone(defaults)
	w.components[name] = make(map[Entity]map[string]any)
	return nil
}

// ComponentNames returns the registered component names in sorted order
func (w *World) ComponentNames() []string {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return slices.Sorted(maps.Keys(w.schemas))
}

// CreateEntity allocates a new entity without components
func (w *World) CreateEntity() Entity {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.nextEntity++
	w.entities[w.nextEntity] = struct{}{}
	return w.nextEntity
}

// RemoveEntity deletes e and all of its components
func (w *World) RemoveEntity(e Entity) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.entities, e)
	for _, store := range w.components {
		delete(store, e)
	}
}

// Exists reports whether e is alive
func (w *World) Exists(e Entity) bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	_, ok := w.entities[e]
	return ok
}

// Entities returns every live entity in ascending order
func (w *World) Entities() []Entity {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return slices.Sorted(maps.Keys(w.entities))
}

// SetComponent adds or replaces component name on e. Fields missing from value
// take the component defaults.
func (w *World) SetComponent(e Entity, name string, value map[string]any) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, ok := w.entities[e]; !ok {
		return errors.WrapInvalid(fmt.Errorf("%w: entity %d", errors.ErrKeyNotFound, e),
			"World", "SetComponent", "entity lookup")
	}
	defaults, ok := w.schemas[name]
	if !ok {
		return errors.WrapInvalid(fmt.Errorf("%w: component %q", errors.ErrKeyNotFound, name),
			"World", "SetComponent", "component lookup")
	}
	data := maps.Clone(defaults)
	maps.Copy(data, value)
	w.components[name][e] = data
	return nil
}

// GetComponent returns a copy of component name on e
func (w *World) GetComponent(e Entity, name string) (map[string]any, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	data, ok := w.components[name][e]
	if !ok {
		return nil, false
	}
	return maps.Clone(data), true
}

// RemoveComponent deletes component name from e
func (w *World) RemoveComponent(e Entity, name string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.components[name], e)
}

// DefineQuery registers a query over entities carrying every component. Unknown
// component names are an error.
func (w *World) DefineQuery(components ...string) (*Query, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, name := range components {
		if _, ok := w.schemas[name]; !ok {
			return nil, errors.WrapInvalid(fmt.Errorf("%w: component %q", errors.ErrKeyNotFound, name),
				"World", "DefineQuery", "component lookup")
		}
	}
	w.nextID++
	q := &Query{id: w.nextID, components: slices.Clone(components), world: w}
	w.queries[q.id] = q
	return q, nil
}

// RemoveQuery unregisters q
func (w *World) RemoveQuery(q *Query) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.queries, q.id)
}

// QueryCount returns the number of registered queries
func (w *World) QueryCount() int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return len(w.queries)
}

// AddSystem registers fn to run every Execute in group, after the systems
// already in that group
func (w *World) AddSystem(group, name string, fn func(Frame)) (*System, error) {
	if !slices.Contains(w.groups, group) {
		return nil, errors.WrapInvalid(fmt.Errorf("%w: system group %q", errors.ErrKeyNotFound, group),
			"World", "AddSystem", "group lookup")
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.nextID++
	s := &System{id: w.nextID, name: name, group: group, fn: fn}
	w.systems[group] = append(w.systems[group], s)
	return s, nil
}

// RemoveSystem unregisters s. A system removed during Execute does not run
// later in that frame.
func (w *World) RemoveSystem(s *System) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.systems[s.group] = slices.DeleteFunc(w.systems[s.group], func(x *System) bool { return x.id == s.id })
}

// SystemCount returns the number of registered systems
func (w *World) SystemCount() int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	n := 0
	for _, list := range w.systems {
		n += len(list)
	}
	return n
}

// ReportCollision records a contact that systems observe during the next Execute
func (w *World) ReportCollision(a, b Entity) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.pending = append(w.pending, Collision{A: a, B: b})
}

// Collisions returns the contacts of the executing frame that involve e, as the
// other entity of each contact in report order
func (w *World) Collisions(e Entity) []Entity {
	w.mu.RLock()
	defer w.mu.RUnlock()
	var others []Entity
	for _, c := range w.current {
		switch e {
		case c.A:
			others = append(others, c.B)
		case c.B:
			others = append(others, c.A)
		}
	}
	return others
}

// Execute advances the world by delta and runs every system group in order
func (w *World) Execute(delta time.Duration) {
	w.mu.Lock()
	w.frame.Number++
	w.frame.DeltaSeconds = delta.Seconds()
	w.frame.Elapsed += delta.Seconds()
	w.current, w.pending = w.pending, nil
	frame := w.frame
	w.mu.Unlock()

	for _, group := range w.groups {
		for _, s := range w.snapshot(group) {
			if !w.registered(s) {
				continue
			}
			w.run(s, frame)
		}
	}

	w.mu.Lock()
	w.current = nil
	w.mu.Unlock()
}

func (w *World) run(s *System, frame Frame) {
	defer func() {
		if r := recover(); r != nil {
			w.logger.Error("System panicked",
				"system", s.name, "group", s.group, "frame", frame.Number, "error", r)
		}
	}()
	s.fn(frame)
}

func (w *World) snapshot(group string) []*System {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return slices.Clone(w.systems[group])
}

func (w *World) registered(s *System) bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return slices.ContainsFunc(w.systems[s.group], func(x *System) bool { return x.id == s.id })
}

// match returns the entities carrying every component. Callers hold w.mu.
func (w *World) match(components []string) []Entity {
	var out []Entity
	for e := range w.entities {
		if w.carries(e, components) {
			out = append(out, e)
		}
	}
	slices.Sort(out)
	return out
}

func (w *World) carries(e Entity, components []string) bool {
	if _, ok := w.entities[e]; !ok {
		return false
	}
	for _, name := range components {
		if _, ok := w.components[name][e]; !ok {
			return false
		}
	}
	return true
}

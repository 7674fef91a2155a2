// Package visualscript is a node-based visual scripting engine: graphs of typed
// nodes connected by flow and data links, executed by a fiber scheduler over
// registries of value types and node descriptions composed from profiles.
//
// # Architecture
//
//	values      value type registry (serialize, deserialize, equality, lerp)
//	graph       sockets, links, node descriptions, nodes, variables, custom events
//	flowgraph   structural validation (flow cycles, link integrity)
//	graphio     graph JSON read/write and node-spec export
//	engine      fibers and the engine that schedules them
//	profiles    core, scene, struct, script and ECS node catalogs
//	ecs         in-memory entity-component-system world
//
// Hosts build a registry with profiles.RegisterAll, load a graph with
// graphio.Load, and drive an engine.Engine from one goroutine, typically a
// clock.Loop:
//
//	reg, _ := profiles.RegisterAll(nil, profiles.Options{Core: []core.Option{core.WithLifecycle(lc)}})
//	g, result, _ := graphio.Load(data, reg, logger)
//	if !result.Valid() { ... }
//	eng, _ := engine.New(g)
//	eng.Start()
//	lc.Start(time.Now())
//	eng.ExecuteAllSync(engine.DefaultMaxSteps)
//
// # Infrastructure
//
// Graph documents persist in a NATS JetStream key-value bucket (graphstore over
// natsclient). Node log output goes to slog and can be published to NATS
// subjects logs.<graph>.<source> (logging). Engine and store metrics are
// exported through Prometheus (metric). cmd/visualscript runs graphs with hot
// reload; cmd/nodespec-exporter writes node specs for editors.
package visualscript

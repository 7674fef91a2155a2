// Package script provides the script profile: function nodes whose body is an
// expr-lang expression or a JavaScript function body evaluated by goja.
//
// Both node types take config numInputs (inputs a, b, c...) and valueType, the
// type of every input and of the result output. Inputs reach the script in their
// serialized JSON shape and the result is deserialized back into valueType, so a
// vec3 arrives as a three element array. Compile and runtime failures panic with a
// wrapped error, which the engine reports as a node error for the running fiber.
package script

import (
	"fmt"
	"sync"
	"time"

	"github.com/dop251/goja"
	"github.com/dop251/goja_nodejs/console"
	"github.com/dop251/goja_nodejs/require"
	"github.com/expr-lang/expr/vm"

	"github.com/c360/visualscript/errors"
	"github.com/c360/visualscript/graph"
	"github.com/c360/visualscript/pkg/cache"
	"github.com/c360/visualscript/profiles/core"
	"github.com/c360/visualscript/values"
)

// HostDependency is the dependency id of the script Host
const HostDependency = "IScriptHost"

// DefaultTimeout bounds a single JavaScript evaluation
const DefaultTimeout = 100 * time.Millisecond

// DefaultCacheSize is the number of compiled programs kept per language
const DefaultCacheSize = 256

// maxInputs is the number of single letter input names
const maxInputs = 26

// Host compiles and caches script programs and owns the JavaScript runtime.
// It is safe for concurrent use; evaluations are serialized.
type Host struct {
	timeout   time.Duration
	cacheSize int

	mu        sync.Mutex
	programs  *cache.LRU[*vm.Program]
	functions *cache.LRU[goja.Callable]
	runtime   *goja.Runtime
	logger    core.Logger
	source    string
}

// Option configures the script profile
type Option func(*Host)

// WithTimeout bounds each JavaScript evaluation. Zero disables the bound.
func WithTimeout(d time.Duration) Option {
	return func(h *Host) { h.timeout = d }
}

// WithCacheSize bounds the compiled expression and JavaScript caches. Values
// below one use DefaultCacheSize.
func WithCacheSize(n int) Option {
	return func(h *Host) { h.cacheSize = n }
}

// NewHost creates a Host with a fresh JavaScript runtime. console.log and
// friends inside scripts go to the ILogger of the evaluating graph.
func NewHost(opts ...Option) *Host {
	h := &Host{
		timeout:   DefaultTimeout,
		cacheSize: DefaultCacheSize,
		runtime:   goja.New(),
	}
	for _, opt := range opts {
		opt(h)
	}
	if h.cacheSize < 1 {
		h.cacheSize = DefaultCacheSize
	}
	h.programs = newLRU[*vm.Program](h.cacheSize)
	h.functions = newLRU[goja.Callable](h.cacheSize)

	registry := require.NewRegistry()
	registry.RegisterNativeModule(console.ModuleName, console.RequireWithPrinter(printer{h}))
	registry.Enable(h.runtime)
	console.Enable(h.runtime)
	return h
}

func newLRU[V any](size int) *cache.LRU[V] {
	c, err := cache.NewLRU[V](size)
	if err != nil {
		panic(err) // size is positive
	}
	return c
}

// CacheStats returns the compiled expression and JavaScript cache statistics
func (h *Host) CacheStats() (expressions, scripts cache.Summary) {
	return h.programs.Stats().Summary(), h.functions.Stats().Summary()
}

// printer routes console output to the logger of the current evaluation
type printer struct{ h *Host }

func (p printer) Log(s string) {
	if p.h.logger != nil {
		p.h.logger.Info(p.h.source, s)
	}
}

func (p printer) Warn(s string) {
	if p.h.logger != nil {
		p.h.logger.Warn(p.h.source, s)
	}
}

func (p printer) Error(s string) {
	if p.h.logger != nil {
		p.h.logger.Error(p.h.source, s)
	}
}

// Register returns a copy of reg extended with the script nodes and a Host
// dependency. Core value types are added when missing.
func Register(reg *graph.Registry, opts ...Option) (*graph.Registry, error) {
	out := reg.Clone()
	for _, vt := range values.Core() {
		if out.Values.Has(vt.Name()) {
			continue
		}
		if err := out.Values.Register(vt); err != nil {
			return nil, errors.Wrap(err, "script", "Register", "value types")
		}
	}
	if err := out.Nodes.Register(Nodes()...); err != nil {
		return nil, errors.Wrap(err, "script", "Register", "node descriptions")
	}
	out.Dependencies[HostDependency] = NewHost(opts...)
	return out, nil
}

// Nodes returns every script node description
func Nodes() []*graph.Description {
	return []*graph.Description{expressionNode(), javascriptNode()}
}

// inputNames returns a, b, c... clamped to the supported range
func inputNames(n int) []string {
	n = max(0, min(n, maxInputs))
	names := make([]string, n)
	for i := range names {
		names[i] = string(rune('a' + i))
	}
	return names
}

func scriptConfig(sourceKey, sourceDefault string) map[string]graph.ConfigSpec {
	return map[string]graph.ConfigSpec{
		sourceKey:   {ValueType: values.StringTypeName, Default: sourceDefault},
		"numInputs": {ValueType: values.IntegerTypeName, Default: 2},
		"valueType": {ValueType: values.StringTypeName, Default: values.FloatTypeName},
	}
}

func valueType(cfg graph.Configuration) string {
	return cfg.String("valueType", values.FloatTypeName)
}

func inputSockets(cfg graph.Configuration, _ *graph.Graph) []graph.SocketSpec {
	vt := valueType(cfg)
	names := inputNames(cfg.Int("numInputs", 2))
	specs := make([]graph.SocketSpec, len(names))
	for i, name := range names {
		specs[i] = graph.Data(name, vt)
	}
	return specs
}

func resultSocket(cfg graph.Configuration, _ *graph.Graph) []graph.SocketSpec {
	return []graph.SocketSpec{graph.Data("result", valueType(cfg))}
}

// binding carries what a script evaluation needs from its node
type binding struct {
	host   *Host
	vt     values.ValueType
	names  []string
	env    map[string]any
	logger core.Logger
	source string
}

func bind(ctx graph.Context, method string) binding {
	g := ctx.Graph()
	host, ok := graph.Dependency[*Host](g, HostDependency)
	if !ok {
		panic(errors.WrapFatal(
			fmt.Errorf("%w: %s", errors.ErrMissingDependency, HostDependency),
			"script", method, "host lookup"))
	}
	vt, err := g.Registry().Values.Get(valueType(ctx.Configuration()))
	if err != nil {
		panic(errors.WrapInvalid(err, "script", method, "value type lookup"))
	}

	b := binding{
		host:   host,
		vt:     vt,
		names:  inputNames(ctx.Configuration().Int("numInputs", 2)),
		source: ctx.Node().TypeName() + "#" + ctx.Node().ID,
	}
	if ctx.Node().Label != "" {
		b.source = ctx.Node().Label
	}
	if l, ok := g.Registry().Dependencies[core.LoggerDependency].(core.Logger); ok {
		b.logger = l
	}
	b.env = make(map[string]any, len(b.names))
	for _, name := range b.names {
		b.env[name] = vt.Serialize(ctx.Read(name))
	}
	return b
}

// result converts a script result into the bound value type
func (b binding) result(method string, raw any) any {
	if raw == nil {
		return b.vt.Creator()
	}
	v, err := b.vt.Deserialize(raw)
	if err != nil {
		panic(errors.WrapInvalid(
			fmt.Errorf("%w: result %v is not a %s", errors.ErrInvalidData, raw, b.vt.Name()),
			"script", method, "result conversion"))
	}
	return v
}

// cacheKey identifies a compiled program by everything its compilation depends on
func cacheKey(source string, names []string, vt values.ValueType) string {
	return fmt.Sprintf("%s|%d|%s", vt.Name(), len(names), source)
}

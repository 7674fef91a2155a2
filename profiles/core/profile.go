// Package core provides the core visual-script profile: the boolean, integer,
// float and string value types; lifecycle, custom event, variable, flow control,
// time, debug and math nodes; and the Logger, LifecycleEventEmitter and Scheduler
// dependencies those nodes use.
package core

import (
	"github.com/c360/visualscript/errors"
	"github.com/c360/visualscript/graph"
	"github.com/c360/visualscript/logging"
	"github.com/c360/visualscript/pkg/clock"
	"github.com/c360/visualscript/values"
)

// Dependency ids registered by the core profile
const (
	LoggerDependency    = "ILogger"
	LifecycleDependency = "ILifecycleEventEmitter"
	SchedulerDependency = "IScheduler"
)

// Logger is the logging dependency nodes report to
type Logger interface {
	Verbose(source, text string)
	Info(source, text string)
	Warn(source, text string)
	Error(source, text string)
}

var _ Logger = (*logging.Logger)(nil)

// Option configures the core profile
type Option func(*options)

type options struct {
	logger    Logger
	lifecycle *LifecycleEventEmitter
	scheduler clock.Scheduler
}

// WithLogger sets the ILogger dependency. Defaults to a logging.Logger on slog.Default.
func WithLogger(l Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithLifecycle sets the ILifecycleEventEmitter dependency
func WithLifecycle(l *LifecycleEventEmitter) Option {
	return func(o *options) { o.lifecycle = l }
}

// WithScheduler sets the IScheduler dependency used by time nodes. Without one,
// delay, debounce and throttle nodes report a missing dependency when triggered.
func WithScheduler(s clock.Scheduler) Option {
	return func(o *options) { o.scheduler = s }
}

// Register returns a copy of reg extended with the core value types, nodes and
// dependencies
func Register(reg *graph.Registry, opts ...Option) (*graph.Registry, error) {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = logging.NewLogger(nil)
	}
	if o.lifecycle == nil {
		o.lifecycle = NewLifecycleEventEmitter()
	}

	out := reg.Clone()
	for _, vt := range values.Core() {
		if out.Values.Has(vt.Name()) {
			continue
		}
		if err := out.Values.Register(vt); err != nil {
			return nil, errors.Wrap(err, "core", "Register", "value types")
		}
	}
	if err := out.Nodes.Register(Nodes()...); err != nil {
		return nil, errors.Wrap(err, "core", "Register", "node descriptions")
	}

	out.Dependencies[LoggerDependency] = o.logger
	out.Dependencies[LifecycleDependency] = o.lifecycle
	if o.scheduler != nil {
		out.Dependencies[SchedulerDependency] = o.scheduler
	}
	return out, nil
}

// Nodes returns every core node description
func Nodes() []*graph.Description {
	var descs []*graph.Description
	for _, group := range [][]*graph.Description{
		lifecycleNodes(),
		customEventNodes(),
		variableNodes(),
		flowControlNodes(),
		timeNodes(),
		debugNodes(),
		constantNodes(),
		floatNodes(),
		integerNodes(),
		booleanNodes(),
		stringNodes(),
		easingNodes(),
	} {
		descs = append(descs, group...)
	}
	return descs
}

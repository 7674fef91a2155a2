package core

import (
	"github.com/c360/visualscript/graph"
)

// Log severities offered by debug/log
const (
	SeverityVerbose = "verbose"
	SeverityInfo    = "info"
	SeverityWarning = "warning"
	SeverityError   = "error"
)

func logger(ctx graph.Context) Logger {
	if l, ok := graph.Dependency[Logger](ctx.Graph(), LoggerDependency); ok {
		return l
	}
	return nil
}

func source(ctx graph.Context) string {
	if n := ctx.Node(); n.Label != "" {
		return n.Label
	}
	return ctx.Node().TypeName() + "#" + ctx.Node().ID
}

func debugNodes() []*graph.Description {
	return []*graph.Description{
		graph.MakeFlowNode(graph.FlowDefinition{
			Meta: graph.Meta{TypeName: "debug/log", Category: "Action", Label: "Log"},
			In: graph.Sockets(
				graph.Flow("flow"),
				graph.Data("text", strT),
				graph.Data("severity", strT).WithDefault(SeverityInfo).WithChoices(
					graph.Choice{Text: "Verbose", Value: SeverityVerbose},
					graph.Choice{Text: "Info", Value: SeverityInfo},
					graph.Choice{Text: "Warning", Value: SeverityWarning},
					graph.Choice{Text: "Error", Value: SeverityError},
				),
			),
			Out: graph.Sockets(graph.Flow("flow")),
			Triggered: func(ctx graph.Context, _ string) {
				if l := logger(ctx); l != nil {
					text := graph.ReadAs[string](ctx, "text")
					switch graph.ReadAs[string](ctx, "severity") {
					case SeverityVerbose:
						l.Verbose(source(ctx), text)
					case SeverityWarning:
						l.Warn(source(ctx), text)
					case SeverityError:
						l.Error(source(ctx), text)
					default:
						l.Info(source(ctx), text)
					}
				}
				ctx.Commit("flow")
			},
		}),
		graph.MakeFlowNode(graph.FlowDefinition{
			Meta: graph.Meta{
				TypeName: "debug/expectTrue", Category: "Action", Label: "Assert",
				Help: "Logs an error with description when condition is false",
			},
			In: graph.Sockets(
				graph.Flow("flow"),
				graph.Data("condition", boolT),
				graph.Data("description", strT),
			),
			Out: graph.Sockets(graph.Flow("flow")),
			Triggered: func(ctx graph.Context, _ string) {
				if !graph.ReadAs[bool](ctx, "condition") {
					if l := logger(ctx); l != nil {
						l.Error(source(ctx), "assertion failed: "+graph.ReadAs[string](ctx, "description"))
					}
				}
				ctx.Commit("flow")
			},
		}),
	}
}

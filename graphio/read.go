package graphio

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"

	"github.com/c360/visualscript/errors"
	"github.com/c360/visualscript/flowgraph"
	"github.com/c360/visualscript/graph"
)

// Decode parses a graph document. Numbers are kept as json.Number so integers
// survive without float rounding.
func Decode(r io.Reader) (*Document, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()
	var doc Document
	if err := dec.Decode(&doc); err != nil {
		return nil, errors.WrapInvalid(
			fmt.Errorf("%w: %v", errors.ErrParsingFailed, err),
			"graphio", "Decode", "decode graph document")
	}
	return &doc, nil
}

// ReadGraph decodes data and builds a graph from it
func ReadGraph(data []byte, registry *graph.Registry, opts ...graph.Option) (*graph.Graph, error) {
	doc, err := Decode(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	return Build(doc, registry, opts...)
}

// Build constructs a graph from a decoded document. Custom events and variables are
// created before nodes so configuration-driven sockets can enumerate them. Links
// are stored as written; structural problems are left to the flowgraph validators.
func Build(doc *Document, registry *graph.Registry, opts ...graph.Option) (*graph.Graph, error) {
	if doc.Name != "" {
		opts = append([]graph.Option{graph.WithName(doc.Name)}, opts...)
	}
	g := graph.New(registry, opts...)
	for k, v := range doc.Metadata {
		g.Metadata[k] = normalize(v)
	}

	for _, ce := range doc.CustomEvents {
		specs := make([]graph.SocketSpec, 0, len(ce.Parameters))
		for _, p := range ce.Parameters {
			vt, err := registry.Values.Get(p.ValueTypeName)
			if err != nil {
				return nil, errors.Wrap(err, "graphio", "Build", "custom event "+ce.ID+" parameter "+p.Name)
			}
			def, err := vt.Deserialize(p.DefaultValue)
			if err != nil {
				return nil, errors.Wrap(err, "graphio", "Build", "custom event "+ce.ID+" parameter "+p.Name)
			}
			specs = append(specs, graph.Data(p.Name, p.ValueTypeName).WithDefault(def))
		}
		event, err := g.CreateCustomEvent(ce.ID, ce.Name, specs)
		if err != nil {
			return nil, errors.Wrap(err, "graphio", "Build", "custom event "+ce.ID)
		}
		event.Label = ce.Label
		copyMetadata(event.Metadata, ce.Metadata)
	}

	for _, vj := range doc.Variables {
		vt, err := registry.Values.Get(vj.ValueTypeName)
		if err != nil {
			return nil, errors.Wrap(err, "graphio", "Build", "variable "+vj.ID)
		}
		initial, err := vt.Deserialize(vj.InitialValue)
		if err != nil {
			return nil, errors.Wrap(err, "graphio", "Build", "variable "+vj.ID)
		}
		v, err := g.CreateVariable(vj.ID, vj.Name, vj.ValueTypeName, initial)
		if err != nil {
			return nil, errors.Wrap(err, "graphio", "Build", "variable "+vj.ID)
		}
		v.Label = vj.Label
		copyMetadata(v.Metadata, vj.Metadata)
	}

	for _, nj := range doc.Nodes {
		cfg := make(graph.Configuration, len(nj.Configuration))
		for k, v := range nj.Configuration {
			cfg[k] = normalize(v)
		}
		node, err := g.CreateNode(nj.Type, nj.ID, cfg)
		if err != nil {
			return nil, errors.Wrap(err, "graphio", "Build", "node "+nj.ID)
		}
		node.Label = nj.Label
		copyMetadata(node.Metadata, nj.Metadata)

		if err := applyParameters(registry, node, nj.Parameters); err != nil {
			return nil, err
		}
		if err := applyFlows(node, nj.Flows); err != nil {
			return nil, err
		}
	}
	return g, nil
}

func applyParameters(registry *graph.Registry, node *graph.Node, params map[string]ParameterJSON) error {
	for name, p := range params {
		socket, ok := node.Input(name)
		if !ok || socket.IsFlow() {
			return errors.WrapInvalid(
				fmt.Errorf("%w: node %s (%s) has no data input %q", errors.ErrUnknownSocket, node.ID, node.TypeName(), name),
				"graphio", "Build", "parameter lookup")
		}
		if p.Link != nil {
			socket.Links = []graph.Link{*p.Link}
			continue
		}
		vt, err := registry.Values.Get(socket.ValueTypeName)
		if err != nil {
			return errors.Wrap(err, "graphio", "Build", "parameter "+node.ID+"."+name)
		}
		v, err := vt.Deserialize(p.Value)
		if err != nil {
			return errors.Wrap(err, "graphio", "Build", "parameter "+node.ID+"."+name)
		}
		socket.Value = v
	}
	return nil
}

func applyFlows(node *graph.Node, flows map[string]FlowTargets) error {
	for name, targets := range flows {
		socket, ok := node.Output(name)
		if !ok || !socket.IsFlow() {
			return errors.WrapInvalid(
				fmt.Errorf("%w: node %s (%s) has no flow output %q", errors.ErrUnknownSocket, node.ID, node.TypeName(), name),
				"graphio", "Build", "flow lookup")
		}
		socket.Links = append(socket.Links, targets...)
	}
	return nil
}

func copyMetadata(dst, src map[string]any) {
	for k, v := range src {
		dst[k] = normalize(v)
	}
}

// Load reads a graph and validates its structure. The graph is returned even when
// validation reports errors; callers decide whether it may run.
func Load(data []byte, registry *graph.Registry, logger *slog.Logger, opts ...graph.Option) (*graph.Graph, *flowgraph.ValidationResult, error) {
	if logger != nil {
		opts = append(opts, graph.WithLogger(logger))
	}
	g, err := ReadGraph(data, registry, opts...)
	if err != nil {
		return nil, nil, err
	}
	result := flowgraph.NewValidator(logger, nil).Validate(g)
	return g, result, nil
}

// normalize replaces json.Number values with int64 when integral and float64
// otherwise, descending into maps and slices
func normalize(v any) any {
	switch x := v.(type) {
	case json.Number:
		if i, err := x.Int64(); err == nil {
			return i
		}
		if f, err := x.Float64(); err == nil {
			return f
		}
		return x.String()
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, e := range x {
			out[k] = normalize(e)
		}
		return out
	case []any:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = normalize(e)
		}
		return out
	default:
		return v
	}
}

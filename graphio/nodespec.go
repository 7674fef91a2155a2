package graphio

import (
	"fmt"
	"sort"

	"github.com/c360/visualscript/errors"
	"github.com/c360/visualscript/graph"
)

// InputSpec describes an input socket for editors
type InputSpec struct {
	Name         string         `json:"name"`
	ValueType    string         `json:"valueType"`
	Label        string         `json:"label,omitempty"`
	DefaultValue any            `json:"defaultValue,omitempty"`
	Choices      []graph.Choice `json:"choices,omitempty"`
}

// OutputSpec describes an output socket for editors
type OutputSpec struct {
	Name      string `json:"name"`
	ValueType string `json:"valueType"`
	Label     string `json:"label,omitempty"`
}

// ConfigurationSpec describes one configuration entry of a node type
type ConfigurationSpec struct {
	Name         string         `json:"name"`
	ValueType    string         `json:"valueType"`
	DefaultValue any            `json:"defaultValue,omitempty"`
	Choices      []graph.Choice `json:"choices,omitempty"`
}

// NodeSpec is what an external editor needs to render a node type without the runtime
type NodeSpec struct {
	Type            string              `json:"type"`
	Category        string              `json:"category,omitempty"`
	Label           string              `json:"label,omitempty"`
	HelpDescription string              `json:"helpDescription,omitempty"`
	Kind            string              `json:"kind"`
	Inputs          []InputSpec         `json:"inputs"`
	Outputs         []OutputSpec        `json:"outputs"`
	Configuration   []ConfigurationSpec `json:"configuration"`
}

// WriteNodeSpec instantiates typeName on a scratch graph with cfg and reports its
// sockets. ctx supplies the variables and custom events dynamic sockets enumerate;
// nil uses an empty graph.
func WriteNodeSpec(registry *graph.Registry, typeName string, cfg graph.Configuration, ctx *graph.Graph) (spec NodeSpec, err error) {
	desc, err := registry.Nodes.Get(typeName)
	if err != nil {
		return NodeSpec{}, err
	}
	if ctx == nil {
		ctx = graph.New(registry)
	}

	defer func() {
		if r := recover(); r != nil {
			err = errors.WrapFatal(fmt.Errorf("%v", r), "graphio", "WriteNodeSpec", "instantiate "+typeName)
		}
	}()
	node, err := ctx.CreateNode(typeName, "spec-"+graph.NewID(), cfg)
	if err != nil {
		return NodeSpec{}, err
	}
	defer func() { _ = ctx.RemoveNode(node.ID) }()

	spec = NodeSpec{
		Type:            desc.TypeName,
		Category:        desc.Category,
		Label:           desc.Label,
		HelpDescription: desc.Help,
		Kind:            desc.Kind().String(),
		Inputs:          []InputSpec{},
		Outputs:         []OutputSpec{},
		Configuration:   []ConfigurationSpec{},
	}
	for _, in := range node.Inputs {
		is := InputSpec{Name: in.Name, ValueType: in.ValueTypeName, Label: in.Label, Choices: in.Choices}
		if !in.IsFlow() {
			if vt, err := registry.Values.Get(in.ValueTypeName); err == nil {
				is.DefaultValue = vt.Serialize(in.Value)
			}
		}
		spec.Inputs = append(spec.Inputs, is)
	}
	for _, out := range node.Outputs {
		spec.Outputs = append(spec.Outputs, OutputSpec{Name: out.Name, ValueType: out.ValueTypeName, Label: out.Label})
	}

	names := make([]string, 0, len(desc.Configuration))
	for name := range desc.Configuration {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		c := desc.Configuration[name]
		cs := ConfigurationSpec{Name: name, ValueType: c.ValueType, DefaultValue: c.Default}
		if c.Choices != nil {
			cs.Choices = c.Choices(ctx)
		}
		spec.Configuration = append(spec.Configuration, cs)
	}
	return spec, nil
}

// WriteNodeSpecs reports every registered node type with its default configuration,
// sorted by type name
func WriteNodeSpecs(registry *graph.Registry) ([]NodeSpec, error) {
	var specs []NodeSpec
	for _, typeName := range registry.Nodes.TypeNames() {
		spec, err := WriteNodeSpec(registry, typeName, nil, nil)
		if err != nil {
			return nil, errors.Wrap(err, "graphio", "WriteNodeSpecs", "node type "+typeName)
		}
		specs = append(specs, spec)
	}
	return specs, nil
}

package graphio

import (
	"encoding/json"
	"maps"

	"github.com/c360/visualscript/errors"
	"github.com/c360/visualscript/graph"
)

// ToDocument converts g into its JSON document form. Values are serialized through
// their value types; linked inputs are written as links.
func ToDocument(g *graph.Graph) (*Document, error) {
	reg := g.Registry()
	doc := &Document{
		Name:     g.Name,
		Metadata: cloneMap(g.Metadata),
		Nodes:    []NodeJSON{},
	}

	for _, ce := range g.CustomEvents() {
		cj := CustomEventJSON{
			ID:       ce.ID,
			Name:     ce.Name,
			Label:    ce.Label,
			Metadata: cloneMap(ce.Metadata),
		}
		for _, p := range ce.Parameters {
			vt, err := reg.Values.Get(p.ValueTypeName)
			if err != nil {
				return nil, errors.Wrap(err, "graphio", "ToDocument", "custom event "+ce.ID)
			}
			cj.Parameters = append(cj.Parameters, ParameterSpec{
				Name:          p.Name,
				ValueTypeName: p.ValueTypeName,
				DefaultValue:  vt.Serialize(p.Value),
			})
		}
		doc.CustomEvents = append(doc.CustomEvents, cj)
	}

	for _, v := range g.Variables() {
		doc.Variables = append(doc.Variables, VariableJSON{
			ID:            v.ID,
			Name:          v.Name,
			Label:         v.Label,
			ValueTypeName: v.ValueTypeName,
			InitialValue:  v.ValueType().Serialize(v.InitialValue),
			Metadata:      cloneMap(v.Metadata),
		})
	}

	for _, n := range g.Nodes() {
		nj := NodeJSON{
			Type:          n.TypeName(),
			ID:            n.ID,
			Label:         n.Label,
			Metadata:      cloneMap(n.Metadata),
			Configuration: cloneMap(n.Configuration),
		}
		for _, in := range n.Inputs {
			if in.IsFlow() {
				continue
			}
			if nj.Parameters == nil {
				nj.Parameters = make(map[string]ParameterJSON)
			}
			if len(in.Links) > 0 {
				l := in.Links[0]
				nj.Parameters[in.Name] = ParameterJSON{Link: &l}
				continue
			}
			vt, err := reg.Values.Get(in.ValueTypeName)
			if err != nil {
				return nil, errors.Wrap(err, "graphio", "ToDocument", "node "+n.ID+" input "+in.Name)
			}
			nj.Parameters[in.Name] = ParameterJSON{Value: vt.Serialize(in.Value)}
		}
		for _, out := range n.Outputs {
			if !out.IsFlow() || len(out.Links) == 0 {
				continue
			}
			if nj.Flows == nil {
				nj.Flows = make(map[string]FlowTargets)
			}
			nj.Flows[out.Name] = FlowTargets(append([]graph.Link(nil), out.Links...))
		}
		doc.Nodes = append(doc.Nodes, nj)
	}
	return doc, nil
}

// WriteGraph serializes g as indented JSON
func WriteGraph(g *graph.Graph) ([]byte, error) {
	doc, err := ToDocument(g)
	if err != nil {
		return nil, err
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, errors.WrapInvalid(err, "graphio", "WriteGraph", "marshal graph document")
	}
	return data, nil
}

func cloneMap[M ~map[string]any](m M) map[string]any {
	if len(m) == 0 {
		return nil
	}
	return maps.Clone(map[string]any(m))
}

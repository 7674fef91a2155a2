// Package graphio reads and writes visual-script graphs as JSON documents and
// exports node specifications for external editors.
//
// Documents follow the graph JSON layout:
//
//	{
//	  "metadata": {},
//	  "customEvents": [{"id": "...", "name": "...", "parameters": [{"name": "...", "valueTypeName": "float", "defaultValue": 0}]}],
//	  "variables": [{"id": "...", "name": "...", "valueTypeName": "float", "initialValue": 0}],
//	  "nodes": [{
//	    "type": "debug/log", "id": "1",
//	    "configuration": {},
//	    "parameters": {"text": {"value": "hi"}, "count": {"link": {"nodeId": "2", "socket": "result"}}},
//	    "flows": {"flow": {"nodeId": "3", "socket": "flow"}}
//	  }]
//	}
//
// A flows entry holds a single link object or an array of them when one output
// fans out to several inputs.
package graphio

import (
	"bytes"
	"encoding/json"

	"github.com/c360/visualscript/graph"
)

// Document is the JSON form of a graph
type Document struct {
	Name         string            `json:"name,omitempty"`
	Metadata     map[string]any    `json:"metadata,omitempty"`
	CustomEvents []CustomEventJSON `json:"customEvents,omitempty"`
	Variables    []VariableJSON    `json:"variables,omitempty"`
	Nodes        []NodeJSON        `json:"nodes"`
}

// CustomEventJSON is the JSON form of a custom event
type CustomEventJSON struct {
	ID         string          `json:"id"`
	Name       string          `json:"name"`
	Label      string          `json:"label,omitempty"`
	Parameters []ParameterSpec `json:"parameters,omitempty"`
	Metadata   map[string]any  `json:"metadata,omitempty"`
}

// ParameterSpec declares one custom event parameter
type ParameterSpec struct {
	Name          string `json:"name"`
	ValueTypeName string `json:"valueTypeName"`
	DefaultValue  any    `json:"defaultValue,omitempty"`
}

// VariableJSON is the JSON form of a variable
type VariableJSON struct {
	ID            string         `json:"id"`
	Name          string         `json:"name"`
	Label         string         `json:"label,omitempty"`
	ValueTypeName string         `json:"valueTypeName"`
	InitialValue  any            `json:"initialValue"`
	Metadata      map[string]any `json:"metadata,omitempty"`
}

// NodeJSON is the JSON form of a node
type NodeJSON struct {
	Type          string                   `json:"type"`
	ID            string                   `json:"id"`
	Label         string                   `json:"label,omitempty"`
	Metadata      map[string]any           `json:"metadata,omitempty"`
	Configuration map[string]any           `json:"configuration,omitempty"`
	Parameters    map[string]ParameterJSON `json:"parameters,omitempty"`
	Flows         map[string]FlowTargets   `json:"flows,omitempty"`
}

// ParameterJSON sets an input socket either to a literal value or to an upstream link
type ParameterJSON struct {
	Value any         `json:"value,omitempty"`
	Link  *graph.Link `json:"link,omitempty"`
}

// FlowTargets are the inputs a flow output enters, in link order
type FlowTargets []graph.Link

// MarshalJSON writes a single link as an object and several as an array
func (f FlowTargets) MarshalJSON() ([]byte, error) {
	if len(f) == 1 {
		return json.Marshal(f[0])
	}
	return json.Marshal([]graph.Link(f))
}

// UnmarshalJSON accepts a link object or an array of link objects
func (f *FlowTargets) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '[' {
		var links []graph.Link
		if err := json.Unmarshal(data, &links); err != nil {
			return err
		}
		*f = links
		return nil
	}
	var l graph.Link
	if err := json.Unmarshal(data, &l); err != nil {
		return err
	}
	*f = FlowTargets{l}
	return nil
}

// Package graphstore persists graph documents in a NATS JetStream key-value bucket.
//
// Each Document carries a Version that Update compares before writing, so two
// editors saving the same graph cannot silently overwrite each other. The
// comparison is backed by the bucket revision, which makes the check atomic.
package graphstore

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"time"

	"github.com/c360/visualscript/errors"
	"github.com/c360/visualscript/flowgraph"
	"github.com/c360/visualscript/graph"
	"github.com/c360/visualscript/graphio"
)

// Document is a stored graph with its metadata
type Document struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`

	// Version for optimistic concurrency control
	Version int64 `json:"version"`

	// Graph is the graph JSON document
	Graph json.RawMessage `json:"graph"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

var validID = regexp.MustCompile(`^[-_=a-zA-Z0-9]+$`)

// Validate checks the metadata and the graph JSON against the document schema
func (d *Document) Validate() error {
	if d.ID != "" && !validID.MatchString(d.ID) {
		return errors.WrapInvalid(fmt.Errorf("%w: id %q", errors.ErrInvalidData, d.ID),
			"graphstore", "Validate", "id check")
	}
	if d.Name == "" {
		return errors.WrapInvalid(fmt.Errorf("%w: name is required", errors.ErrInvalidData),
			"graphstore", "Validate", "name check")
	}
	if len(d.Graph) == 0 {
		return errors.WrapInvalid(fmt.Errorf("%w: graph is required", errors.ErrInvalidData),
			"graphstore", "Validate", "graph check")
	}
	return graphio.ValidateDocument(d.Graph)
}

// FromGraph serializes g into a new unsaved document named after the graph
func FromGraph(g *graph.Graph, description string) (*Document, error) {
	data, err := graphio.WriteGraph(g)
	if err != nil {
		return nil, errors.Wrap(err, "graphstore", "FromGraph", "write graph")
	}
	name := g.Name
	if name == "" {
		name = "untitled"
	}
	return &Document{Name: name, Description: description, Graph: data}, nil
}

// Build instantiates the stored graph against registry and runs the structural
// validators. The graph is returned even when validation reports errors.
func (d *Document) Build(registry *graph.Registry, logger *slog.Logger, opts ...graph.Option) (*graph.Graph, *flowgraph.ValidationResult, error) {
	g, result, err := graphio.Load(d.Graph, registry, logger, opts...)
	if err != nil {
		return nil, nil, errors.Wrap(err, "graphstore", "Build", "load graph "+d.ID)
	}
	if g.Name == "" {
		g.Name = d.Name
	}
	return g, result, nil
}

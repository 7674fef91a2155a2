package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/c360/visualscript/graphio"
)

// combinedFile holds every spec in one array
const combinedFile = "nodespecs.json"

// Index lists the exported node types for tools that only need the catalog
type Index struct {
	Version string       `yaml:"version"`
	Count   int          `yaml:"count"`
	Nodes   []IndexEntry `yaml:"nodes"`
}

// IndexEntry is one node type in the index
type IndexEntry struct {
	Type     string `yaml:"type"`
	Kind     string `yaml:"kind"`
	Category string `yaml:"category,omitempty"`
	Label    string `yaml:"label,omitempty"`
	File     string `yaml:"file"`
}

// specFileName maps a type name such as math/add/float to math.add.float.v1.json
func specFileName(typeName string) string {
	return strings.ReplaceAll(typeName, "/", ".") + ".v1.json"
}

// export validates and writes specs. It returns the files written.
func export(specs []graphio.NodeSpec, outDir, indexPath string) ([]string, error) {
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	var files []string
	index := Index{Version: "v1", Count: len(specs), Nodes: make([]IndexEntry, 0, len(specs))}
	for _, spec := range specs {
		if err := validateSpec(spec); err != nil {
			return nil, err
		}
		name := specFileName(spec.Type)
		path := filepath.Join(outDir, name)
		if err := writeJSON(path, spec); err != nil {
			return nil, fmt.Errorf("failed to write spec for %s: %w", spec.Type, err)
		}
		files = append(files, path)
		index.Nodes = append(index.Nodes, IndexEntry{
			Type: spec.Type, Kind: spec.Kind, Category: spec.Category, Label: spec.Label, File: name,
		})
	}

	combined := filepath.Join(outDir, combinedFile)
	if err := writeJSON(combined, specs); err != nil {
		return nil, fmt.Errorf("failed to write combined specs: %w", err)
	}
	files = append(files, combined)

	if indexPath != "" {
		if err := os.MkdirAll(filepath.Dir(indexPath), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create index directory: %w", err)
		}
		data, err := yaml.Marshal(index)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal index: %w", err)
		}
		if err := os.WriteFile(indexPath, data, 0o644); err != nil {
			return nil, fmt.Errorf("failed to write index: %w", err)
		}
		files = append(files, indexPath)
	}
	return files, nil
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

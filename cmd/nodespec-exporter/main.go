// Package main writes the node specs of every registered node type for external
// editors: one JSON file per type, a combined JSON file and a YAML index.
package main

import (
	"flag"
	"log"

	"github.com/c360/visualscript/graphio"
	"github.com/c360/visualscript/profiles"
)

func main() {
	outDir := flag.String("out", "./nodespecs", "Output directory for node spec files")
	indexOut := flag.String("index", "./nodespecs/index.yaml", "Output path for the YAML index, empty to skip")
	flag.Parse()

	log.Printf("Node Spec Exporter")
	log.Printf("  Output dir: %s", *outDir)
	log.Printf("  Index: %s", *indexOut)

	registry, err := profiles.RegisterAll(nil, profiles.Options{})
	if err != nil {
		log.Fatalf("Failed to register profiles: %v", err)
	}
	specs, err := graphio.WriteNodeSpecs(registry)
	if err != nil {
		log.Fatalf("Failed to describe node types: %v", err)
	}
	log.Printf("Found %d node types", len(specs))

	files, err := export(specs, *outDir, *indexOut)
	if err != nil {
		log.Fatalf("Export failed: %v", err)
	}
	for _, f := range files {
		log.Printf("  Generated: %s", f)
	}
	log.Printf("Node spec generation complete")
}

package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/c360/visualscript/config"
)

// CLIConfig holds command-line configuration
type CLIConfig struct {
	ConfigPath  string
	GraphPath   string
	GraphID     string
	WorldPath   string
	LogLevel    string
	LogFormat   string
	MaxSteps    int
	Tick        time.Duration
	RunFor      time.Duration
	NATSURL     string
	MetricsPort int
	Watch       bool
	Validate    bool
	Save        bool
	PrintConfig string
	ShowVersion bool

	set map[string]bool
}

func parseFlags(args []string, stderr io.Writer) (*CLIConfig, error) {
	cfg := &CLIConfig{}
	fs := flag.NewFlagSet(appName, flag.ContinueOnError)
	fs.SetOutput(stderr)

	fs.StringVar(&cfg.ConfigPath, "config", getEnv("VISUALSCRIPT_CONFIG", ""),
		"Path to a JSON, YAML or TOML configuration file (env: VISUALSCRIPT_CONFIG)")
	fs.StringVar(&cfg.ConfigPath, "c", getEnv("VISUALSCRIPT_CONFIG", ""), "Shorthand for --config")
	fs.StringVar(&cfg.GraphPath, "graph", "", "Graph JSON file to run")
	fs.StringVar(&cfg.GraphID, "graph-id", "", "Graph store id to run (requires NATS)")
	fs.StringVar(&cfg.WorldPath, "world", "", "ECS world snapshot (JSON or YAML) loaded before the graph starts")
	fs.StringVar(&cfg.LogLevel, "log-level", "", "Log level: debug, info, warn, error")
	fs.StringVar(&cfg.LogFormat, "log-format", "", "Log format: json, text")
	fs.IntVar(&cfg.MaxSteps, "max-steps", 0, "Maximum fiber steps per execution burst")
	fs.DurationVar(&cfg.Tick, "tick", 0, "Lifecycle tick interval")
	fs.DurationVar(&cfg.RunFor, "run-for", 0, "Stop after this long, 0 runs until interrupted")
	fs.StringVar(&cfg.NATSURL, "nats-url", "", "NATS server URL; setting it enables NATS")
	fs.IntVar(&cfg.MetricsPort, "metrics-port", 0, "Serve Prometheus metrics on this port")
	fs.BoolVar(&cfg.Watch, "watch", false, "Reload the graph when its source changes")
	fs.BoolVar(&cfg.Validate, "validate", false, "Validate the graph and exit")
	fs.BoolVar(&cfg.Save, "save", false, "Store --graph in the graph store (updating --graph-id if given) and exit")
	fs.StringVar(&cfg.PrintConfig, "print-config", "", "Print the effective configuration as json, yaml or toml and exit")
	fs.BoolVar(&cfg.ShowVersion, "version", false, "Show version information")
	fs.BoolVar(&cfg.ShowVersion, "v", false, "Show version information")

	fs.Usage = func() { printHelp(fs, stderr) }
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if fs.NArg() > 0 && cfg.GraphPath == "" {
		cfg.GraphPath = fs.Arg(0)
	}

	cfg.set = map[string]bool{}
	fs.Visit(func(f *flag.Flag) { cfg.set[f.Name] = true })
	if cfg.GraphPath != "" {
		cfg.set["graph"] = true
	}
	return cfg, nil
}

// apply overrides cfg with every flag given on the command line
func (c *CLIConfig) apply(cfg *config.Config) {
	if c.set["graph"] {
		cfg.Graph.Path, cfg.Graph.StoreID = c.GraphPath, ""
	}
	if c.set["graph-id"] {
		cfg.Graph.StoreID = c.GraphID
		if !c.Save {
			cfg.Graph.Path = ""
		}
	}
	if c.set["log-level"] {
		cfg.Log.Level = c.LogLevel
	}
	if c.set["log-format"] {
		cfg.Log.Format = c.LogFormat
	}
	if c.set["max-steps"] {
		cfg.Engine.MaxSteps = c.MaxSteps
	}
	if c.set["tick"] {
		cfg.Engine.TickInterval = config.Duration(c.Tick)
	}
	if c.set["nats-url"] {
		cfg.NATS.URL, cfg.NATS.Enabled = c.NATSURL, true
	}
	if c.set["metrics-port"] {
		cfg.Metrics.Port, cfg.Metrics.Enabled = c.MetricsPort, true
	}
	if c.set["watch"] {
		cfg.Graph.Watch = c.Watch
	}
}

func printHelp(fs *flag.FlagSet, w io.Writer) {
	_, _ = fmt.Fprintf(w, `%s - visual script graph runner

Usage: %s [options] [graph.json]

Options:
`, appName, appName)
	fs.PrintDefaults()
	_, _ = fmt.Fprintf(w, `
Examples:
  # Run a graph file and reload it on save
  %s --watch examples/hello.json

  # Run a stored graph with metrics
  %s --nats-url nats://localhost:4222 --graph-id 6f1c... --metrics-port 9090

  # Store a graph file
  %s --nats-url nats://localhost:4222 --save examples/hello.json

Version: %s
`, appName, appName, appName, Version)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// Package main implements the visualscript runner. It loads a graph from a file
// or the graph store, validates it and runs it on an event loop with lifecycle
// ticks until interrupted.
package main

import (
	"context"
	stderrors "errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/c360/visualscript/config"
	"github.com/c360/visualscript/errors"
)

// Build information constants
const (
	Version   = "0.1.0"
	BuildTime = "dev"
	appName   = "visualscript"
)

func main() {
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			_, _ = fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]))
			os.Exit(2)
		}
	}()

	if err := run(os.Args[1:], os.Stdout, os.Stderr); err != nil {
		if stderrors.Is(err, flag.ErrHelp) {
			return
		}
		slog.Error("Application failed", "error", err, "exit_code", 1)
		os.Exit(1)
	}
}

func run(args []string, stdout, stderr io.Writer) error {
	cli, err := parseFlags(args, stderr)
	if err != nil {
		return err
	}
	if cli.ShowVersion {
		_, _ = fmt.Fprintf(stdout, "%s version %s (built %s)\n", appName, Version, BuildTime)
		return nil
	}

	cfg, err := loadConfig(cli)
	if err != nil {
		return err
	}
	if cli.PrintConfig != "" {
		return cfg.Write(stdout, cli.PrintConfig)
	}

	logger := setupLogger(cfg.Log.Level, cfg.Log.Format, stderr)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if cli.RunFor > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cli.RunFor)
		defer cancel()
	}

	runner := NewRunner(cfg, logger)
	if err := runner.Setup(ctx, cli.WorldPath); err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := runner.Close(closeCtx); err != nil {
			logger.Warn("Closing NATS connection failed", "error", err)
		}
	}()

	switch {
	case cli.Validate:
		return validate(ctx, runner, stdout)
	case cli.Save:
		doc, err := runner.Save(ctx, cfg.Graph.Path, cfg.Graph.StoreID)
		if err != nil {
			return err
		}
		_, _ = fmt.Fprintf(stdout, "%s version %d\n", doc.ID, doc.Version)
		return nil
	}

	logger.Info("Starting visualscript", "version", Version, "tick", cfg.Engine.TickInterval.String())
	if err := runner.Run(ctx); err != nil {
		return err
	}
	logger.Info("Shutdown complete")
	return nil
}

// loadConfig layers the config file, VISUALSCRIPT_* environment and explicit
// flags, in that order of precedence
func loadConfig(cli *CLIConfig) (*config.Config, error) {
	loader := config.NewLoader()
	if cli.ConfigPath != "" {
		loader.AddLayer(cli.ConfigPath)
	}
	cfg, err := loader.Load()
	if err != nil {
		return nil, err
	}
	cli.apply(cfg)
	if cli.Save {
		if cfg.Graph.Path == "" || !cfg.NATS.Enabled {
			return nil, errors.WrapInvalid(
				fmt.Errorf("%w: --save needs a graph file and nats", errors.ErrInvalidConfig),
				"main", "loadConfig", "flag check")
		}
		// the store id names the document to update, the path is what gets written
		id := cfg.Graph.StoreID
		cfg.Graph.StoreID = ""
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
		cfg.Graph.StoreID = id
		return cfg, nil
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func validate(ctx context.Context, runner *Runner, w io.Writer) error {
	result, err := runner.Validate(ctx)
	if err != nil {
		return err
	}
	for _, issue := range result.Issues() {
		_, _ = fmt.Fprintf(w, "%s %s: %s\n", issue.Severity, issue.Type, issue.Message)
	}
	if !result.Valid() {
		return errors.WrapInvalid(
			fmt.Errorf("%w: %d validation errors", errors.ErrInvalidData, len(result.Errors)),
			"main", "validate", "graph check")
	}
	_, _ = fmt.Fprintln(w, "graph is valid")
	return nil
}

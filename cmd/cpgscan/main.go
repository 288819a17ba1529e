// Command cpgscan builds a code property graph from Python source and
// writes it to any combination of JSON, YAML, DOT, and SQLite outputs.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/cpgscan/cpgscan/internal/analysis"
	"github.com/cpgscan/cpgscan/internal/builder"
	"github.com/cpgscan/cpgscan/internal/config"
	"github.com/cpgscan/cpgscan/internal/export"
	"github.com/cpgscan/cpgscan/internal/graph"
	"github.com/cpgscan/cpgscan/internal/project"
	"github.com/cpgscan/cpgscan/internal/store"
)

var version = "dev"

func main() {
	flags := config.Flags()
	showVersion := flags.Bool("version", false, "print version and exit")

	if err := flags.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	if *showVersion {
		fmt.Println("cpgscan", version)
		return
	}

	cfg, err := config.Load(flags)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	level := slog.LevelInfo
	if cfg.Verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("scan failed", "err", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	nodes, edges, err := buildGraph(ctx, cfg, logger)
	if err != nil {
		return err
	}

	if cfg.Findings != "" {
		f, err := os.Open(cfg.Findings)
		if err != nil {
			return fmt.Errorf("open findings %s: %w", cfg.Findings, err)
		}
		issues, err := analysis.ReadIssues(f)
		f.Close()
		if err != nil {
			return err
		}
		edges = append(edges, analysis.Enrich(nodes, issues, logger)...)
	}

	if err := graph.Validate(nodes, edges); err != nil {
		logger.Warn("graph references nodes outside the scanned set", "err", err)
	}

	return writeOutputs(cfg, nodes, edges, logger)
}

// buildGraph dispatches on the target: a directory gets the full project
// build, a single file gets a standalone one.
func buildGraph(ctx context.Context, cfg *config.Config, logger *slog.Logger) (map[graph.ID]graph.Node, []graph.Edge, error) {
	info, err := os.Stat(cfg.Target)
	if err != nil {
		return nil, nil, fmt.Errorf("stat target: %w", err)
	}

	if info.IsDir() {
		opts := project.Options{
			Root:           cfg.Target,
			Recursive:      cfg.Recursive,
			FollowSymlinks: cfg.FollowSymlinks,
			OnError:        cfg.OnError,
			LinkImports:    cfg.LinkImports,
			Workers:        cfg.Workers,
			Logger:         logger,
		}
		b, err := project.NewBuilder(opts)
		if err != nil {
			return nil, nil, err
		}
		return b.Build(ctx)
	}

	source, err := os.ReadFile(cfg.Target)
	if err != nil {
		return nil, nil, fmt.Errorf("read target: %w", err)
	}
	base := filepath.Base(cfg.Target)
	result, err := builder.New(source, builder.Config{
		Path:       base,
		ModuleName: strings.TrimSuffix(base, ".py"),
		Logger:     logger,
	}).Build()
	if err != nil {
		return nil, nil, fmt.Errorf("build %s: %w", cfg.Target, err)
	}
	return result.Nodes, result.Edges, nil
}

func writeOutputs(cfg *config.Config, nodes map[graph.ID]graph.Node, edges []graph.Edge, logger *slog.Logger) error {
	if !cfg.HasOutput() {
		return writeStdout(nodes, edges)
	}

	if cfg.JSONOut != "" {
		if err := export.NewJSON(cfg.JSONOut).Load(nodes, edges); err != nil {
			return err
		}
		logger.Info("wrote JSON graph", "path", cfg.JSONOut)
	}
	if cfg.YAMLOut != "" {
		if err := export.NewYAML(cfg.YAMLOut).Load(nodes, edges); err != nil {
			return err
		}
		logger.Info("wrote YAML graph", "path", cfg.YAMLOut)
	}
	if cfg.DOTOut != "" {
		if err := export.NewDOT(cfg.DOTOut).Load(nodes, edges); err != nil {
			return err
		}
		logger.Info("wrote DOT graph", "path", cfg.DOTOut)
	}
	if cfg.SQLiteOut != "" {
		s, err := store.Open(cfg.SQLiteOut)
		if err != nil {
			return err
		}
		loadErr := s.Load(nodes, edges)
		closeErr := s.Close()
		if loadErr != nil {
			return loadErr
		}
		if closeErr != nil {
			return closeErr
		}
		logger.Info("wrote SQLite graph", "path", cfg.SQLiteOut)
	}
	return nil
}

// writeStdout emits the JSON document when no sink was configured.
func writeStdout(nodes map[graph.ID]graph.Node, edges []graph.Edge) error {
	nodeRows, edgeRows := export.Rows(nodes, edges)
	enc := json.NewEncoder(os.Stdout)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	return enc.Encode(map[string]any{"nodes": nodeRows, "edges": edgeRows})
}

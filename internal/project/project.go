// Package project builds a merged code property graph for a directory of
// source files.
//
// With import linking enabled the build runs in two phases. Phase one
// builds every file independently to index its exported top-level symbols;
// files are independent, so this phase runs in parallel. Phase two re-scans
// each file's from-imports against the index, pre-binds the resolved
// identifiers into that file's builder, and runs the real builds
// sequentially in sorted path order so output is deterministic.
package project

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/zeebo/xxh3"
	"golang.org/x/sync/errgroup"

	"github.com/cpgscan/cpgscan/internal/builder"
	"github.com/cpgscan/cpgscan/internal/graph"
)

// Error policies for per-file read and parse failures.
const (
	OnErrorRaise = "raise"
	OnErrorSkip  = "skip"
)

// Options configures a project build.
type Options struct {
	Root            string
	Recursive       bool
	FollowSymlinks  bool
	ExcludeDirNames map[string]bool
	OnError         string
	LinkImports     bool

	// Workers bounds phase-one parallelism. Zero means GOMAXPROCS.
	Workers int

	Logger *slog.Logger
}

// DefaultOptions returns the documented defaults for root.
func DefaultOptions(root string) Options {
	return Options{
		Root:        root,
		Recursive:   true,
		OnError:     OnErrorRaise,
		LinkImports: true,
	}
}

// Builder merges per-file graphs for one directory tree.
type Builder struct {
	opts Options
	log  *slog.Logger
}

// NewBuilder validates options and returns a project builder.
func NewBuilder(opts Options) (*Builder, error) {
	switch opts.OnError {
	case "", OnErrorRaise, OnErrorSkip:
	default:
		return nil, fmt.Errorf("invalid on_error policy %q", opts.OnError)
	}
	if opts.OnError == "" {
		opts.OnError = OnErrorRaise
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Workers <= 0 {
		opts.Workers = runtime.GOMAXPROCS(0)
	}
	return &Builder{opts: opts, log: opts.Logger}, nil
}

// fileRecord is one discovered file's state across the build phases.
type fileRecord struct {
	absPath    string
	relPath    string
	moduleName string
	source     []byte
	hash       uint64
	skipped    bool

	exports  map[string]graph.ID
	prebound map[string]graph.ID
}

// Build discovers, links, and merges the whole tree.
func (p *Builder) Build(ctx context.Context) (map[graph.ID]graph.Node, []graph.Edge, error) {
	start := time.Now()

	paths, err := Discover(ctx, p.opts.Root, DiscoverOptions{
		Recursive:       p.opts.Recursive,
		FollowSymlinks:  p.opts.FollowSymlinks,
		ExcludeDirNames: p.opts.ExcludeDirNames,
	})
	if err != nil {
		return nil, nil, err
	}

	records, err := p.loadFiles(ctx, paths)
	if err != nil {
		return nil, nil, err
	}

	if p.opts.LinkImports {
		index, err := p.buildSymbolIndex(ctx, records)
		if err != nil {
			return nil, nil, err
		}
		p.linkImports(records, index)
	}

	nodes := make(map[graph.ID]graph.Node)
	var edges []graph.Edge

	for _, rec := range records {
		if rec.skipped {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}

		result, err := builder.New(rec.source, builder.Config{
			Path:       rec.relPath,
			ModuleName: rec.moduleName,
			Prebound:   rec.prebound,
			Logger:     p.log,
		}).Build()
		if err != nil {
			if p.skippable(err, rec.relPath, "build") {
				continue
			}
			return nil, nil, fmt.Errorf("build %s: %w", rec.relPath, err)
		}

		if err := graph.Merge(nodes, result.Nodes); err != nil {
			return nil, nil, err
		}
		edges = append(edges, result.Edges...)
	}

	p.log.Info("project build finished",
		"root", p.opts.Root,
		"files", len(records),
		"nodes", len(nodes),
		"edges", len(edges),
		"elapsed", time.Since(start))
	return nodes, edges, nil
}

func (p *Builder) loadFiles(ctx context.Context, paths []string) ([]*fileRecord, error) {
	records := make([]*fileRecord, 0, len(paths))
	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		rel, err := filepath.Rel(p.opts.Root, path)
		if err != nil {
			return nil, fmt.Errorf("relativize %s: %w", path, err)
		}
		rel = filepath.ToSlash(rel)

		source, err := os.ReadFile(path)
		if err != nil {
			if p.skippable(err, rel, "read") {
				continue
			}
			return nil, fmt.Errorf("read %s: %w", path, err)
		}

		records = append(records, &fileRecord{
			absPath:    path,
			relPath:    rel,
			moduleName: p.moduleNameFor(rel),
			source:     source,
			hash:       xxh3.Hash(source),
		})
	}
	return records, nil
}

// moduleNameFor maps a root-relative path to a dotted module name,
// collapsing package index files to their package.
func (p *Builder) moduleNameFor(rel string) string {
	parts := strings.Split(rel, "/")
	last := parts[len(parts)-1]
	if last == "__init__.py" {
		parts = parts[:len(parts)-1]
	} else {
		parts[len(parts)-1] = strings.TrimSuffix(last, ".py")
	}

	var kept []string
	for _, part := range parts {
		if part != "" {
			kept = append(kept, part)
		}
	}
	if len(kept) == 0 {
		return filepath.Base(p.opts.Root)
	}
	return strings.Join(kept, ".")
}

// buildSymbolIndex runs phase one: a full build of every file purely to
// capture its exported symbol identifiers. Per-file builds share no state,
// so they run concurrently; the index is assembled afterwards from the
// records slice, whose order never changes.
func (p *Builder) buildSymbolIndex(ctx context.Context, records []*fileRecord) (map[string]map[string]graph.ID, error) {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(p.opts.Workers)

	for _, rec := range records {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			result, err := builder.New(rec.source, builder.Config{
				Path:       rec.relPath,
				ModuleName: rec.moduleName,
				Logger:     p.log,
			}).Build()
			if err != nil {
				if p.skippable(err, rec.relPath, "index") {
					rec.skipped = true
					return nil
				}
				return fmt.Errorf("index %s: %w", rec.relPath, err)
			}
			rec.exports = result.Exports
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	index := make(map[string]map[string]graph.ID, len(records))
	for _, rec := range records {
		if rec.skipped {
			continue
		}
		index[rec.moduleName] = rec.exports
	}
	p.log.Info("symbol index built", "modules", len(index))
	return index, nil
}

// skippable logs and reports true when the error policy allows dropping
// the file.
func (p *Builder) skippable(err error, rel, phase string) bool {
	if p.opts.OnError != OnErrorSkip {
		return false
	}
	p.log.Warn("skipping file", "path", rel, "phase", phase, "error", err)
	return true
}

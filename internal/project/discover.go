package project

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// DefaultExcludeDirNames are directory basenames pruned during discovery:
// version control, virtualenvs, caches, and build output.
var DefaultExcludeDirNames = map[string]bool{
	".git": true, ".hg": true, ".svn": true,
	".idea": true, ".vscode": true,
	".mypy_cache": true, ".pytest_cache": true, ".ruff_cache": true,
	".tox": true, ".nox": true, ".eggs": true,
	".venv": true, "venv": true, ".env": true, "env": true,
	"__pycache__": true, "site-packages": true,
	"node_modules": true, "build": true, "dist": true,
}

// DiscoverOptions controls the directory walk.
type DiscoverOptions struct {
	Recursive       bool
	FollowSymlinks  bool
	ExcludeDirNames map[string]bool
}

// Discover returns the source files under root, sorted for deterministic
// processing order. Root must exist and be a directory.
func Discover(ctx context.Context, root string, opts DiscoverOptions) ([]string, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("stat root %s: %w", root, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("root %s is not a directory", root)
	}

	exclude := opts.ExcludeDirNames
	if exclude == nil {
		exclude = DefaultExcludeDirNames
	}

	// Resolved paths already descended into, so symlink cycles terminate.
	visited := make(map[string]bool)

	var files []string
	if err := walkDir(ctx, root, opts, exclude, visited, &files); err != nil {
		return nil, err
	}
	sort.Strings(files)
	return files, nil
}

func walkDir(ctx context.Context, dir string, opts DiscoverOptions, exclude map[string]bool, visited map[string]bool, files *[]string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	resolved, err := filepath.EvalSymlinks(dir)
	if err != nil {
		resolved = dir
	}
	if visited[resolved] {
		return nil
	}
	visited[resolved] = true

	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("read dir %s: %w", dir, err)
	}

	for _, entry := range entries {
		path := filepath.Join(dir, entry.Name())

		isDir := entry.IsDir()
		if !isDir && entry.Type()&os.ModeSymlink != 0 {
			if !opts.FollowSymlinks {
				continue
			}
			if target, err := os.Stat(path); err == nil && target.IsDir() {
				isDir = true
			}
		}

		if isDir {
			if !opts.Recursive || exclude[entry.Name()] {
				continue
			}
			if err := walkDir(ctx, path, opts, exclude, visited, files); err != nil {
				return err
			}
			continue
		}

		if strings.HasSuffix(entry.Name(), ".py") {
			*files = append(*files, path)
		}
	}
	return nil
}

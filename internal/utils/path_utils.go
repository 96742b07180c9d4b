package utils

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/funvibe/sigcheck/internal/ast"
	"github.com/funvibe/sigcheck/internal/astio"
	"github.com/funvibe/sigcheck/internal/config"
)

// ExtractFileName derives a display name from a file path by taking the base
// name and removing any recognized source extension.
func ExtractFileName(path string) string {
	return config.TrimSourceExt(filepath.Base(path))
}

// GetSourceDir returns the directory context for a path: the file's
// directory for a source file, the path itself otherwise.
func GetSourceDir(path string) string {
	if config.HasSourceExt(path) {
		return filepath.Dir(path)
	}
	return path
}

// Ignored reports whether rel, a slash-separated path relative to the
// project root, matches one of the ignore patterns. Patterns are matched
// against the whole path and against the base name.
func Ignored(rel string, patterns []string) bool {
	base := filepath.Base(rel)
	for _, p := range patterns {
		if ok, _ := filepath.Match(p, rel); ok {
			return true
		}
		if ok, _ := filepath.Match(p, base); ok {
			return true
		}
	}
	return false
}

// DiscoverFiles returns the AST interchange files named by args, in sorted
// order. Directories are walked recursively; files given explicitly are kept
// even without a recognized extension. Paths relative to root that match an
// ignore pattern are skipped.
func DiscoverFiles(root string, args []string, ignore []string) ([]string, error) {
	seen := make(map[string]bool)
	var out []string
	add := func(path string) {
		if !seen[path] {
			seen[path] = true
			out = append(out, path)
		}
	}
	for _, arg := range args {
		info, err := os.Stat(arg)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			add(filepath.Clean(arg))
			continue
		}
		err = filepath.WalkDir(arg, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			rel := relativeTo(root, path)
			if d.IsDir() {
				if path != arg && Ignored(rel, ignore) {
					return filepath.SkipDir
				}
				return nil
			}
			if config.HasSourceExt(path) && !Ignored(rel, ignore) {
				add(path)
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("walking %s: %w", arg, err)
		}
	}
	sort.Strings(out)
	return out, nil
}

func relativeTo(root, path string) string {
	if root == "" {
		return filepath.ToSlash(path)
	}
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return filepath.ToSlash(path)
	}
	return filepath.ToSlash(rel)
}

// LoadFiles decodes paths concurrently. The result is in the order of paths;
// the first decode error cancels the rest.
func LoadFiles(ctx context.Context, paths []string, workers int) ([]*ast.Program, error) {
	progs := make([]*ast.Program, len(paths))
	g, gctx := errgroup.WithContext(ctx)
	if workers > 0 {
		g.SetLimit(workers)
	}
	for i, path := range paths {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			prog, err := astio.DecodeFile(path)
			if err != nil {
				return err
			}
			progs[i] = prog
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return progs, nil
}

// Package catalog provides the sources architecture specs are loaded from:
// the embedded built-in catalog, YAML files on disk and a SQLite store.
package catalog

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/kingrea/archspec/internal/registry"
	"github.com/kingrea/archspec/internal/spec"
)

//go:embed builtin/*.yaml
var builtinFS embed.FS

// SpecPattern matches spec definition files below a catalog directory.
const SpecPattern = "**/*.{yaml,yml,json}"

// Builtin returns the embedded catalog.
func Builtin() registry.Source { return builtinSource{} }

type builtinSource struct{}

func (builtinSource) String() string { return "builtin catalog" }

func (builtinSource) Load(ctx context.Context) ([]spec.ArchitectureSpec, error) {
	return loadFS(ctx, builtinFS, "builtin/*.yaml")
}

// BuiltinIDs returns the ids of the embedded specs.
func BuiltinIDs() []string {
	specs, err := Builtin().Load(context.Background())
	if err != nil {
		return nil
	}
	ids := make([]string, 0, len(specs))
	for _, s := range specs {
		ids = append(ids, s.ID)
	}
	sort.Strings(ids)
	return ids
}

// DirSource loads every spec file below Path. A missing directory yields no
// specs.
type DirSource struct {
	Path string
}

// Dir returns a source reading spec files below path.
func Dir(path string) *DirSource { return &DirSource{Path: path} }

func (d *DirSource) String() string { return "dir " + d.Path }

func (d *DirSource) Load(ctx context.Context) ([]spec.ArchitectureSpec, error) {
	info, err := os.Stat(d.Path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("catalog: stat %s: %w", d.Path, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("catalog: %s is not a directory", d.Path)
	}
	return loadFS(ctx, os.DirFS(d.Path), SpecPattern)
}

// FileSource loads the specs of a single file. A file may hold several YAML
// documents.
type FileSource struct {
	Path string
}

// File returns a source reading path.
func File(path string) *FileSource { return &FileSource{Path: path} }

func (f *FileSource) String() string { return "file " + f.Path }

func (f *FileSource) Load(ctx context.Context) ([]spec.ArchitectureSpec, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(f.Path)
	if err != nil {
		return nil, fmt.Errorf("catalog: read %s: %w", f.Path, err)
	}
	specs, err := spec.ParseYAML(data)
	if err != nil {
		return nil, fmt.Errorf("catalog: %s: %w", filepath.Base(f.Path), err)
	}
	return specs, nil
}

func loadFS(ctx context.Context, fsys fs.FS, pattern string) ([]spec.ArchitectureSpec, error) {
	matches, err := doublestar.Glob(fsys, pattern, doublestar.WithFilesOnly())
	if err != nil {
		return nil, fmt.Errorf("catalog: glob %s: %w", pattern, err)
	}
	sort.Strings(matches)
	var specs []spec.ArchitectureSpec
	for _, name := range matches {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		data, err := fs.ReadFile(fsys, name)
		if err != nil {
			return nil, fmt.Errorf("catalog: read %s: %w", name, err)
		}
		parsed, err := spec.ParseYAML(data)
		if err != nil {
			return nil, fmt.Errorf("catalog: %s: %w", name, err)
		}
		specs = append(specs, parsed...)
	}
	return specs, nil
}

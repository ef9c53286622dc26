// Package scaffold instantiates layer templates into files.
package scaffold

import (
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/kingrea/archspec/internal/placeholder"
	"github.com/kingrea/archspec/internal/spec"
)

var (
	ErrNoTemplate     = errors.New("scaffold: no template for layer")
	ErrUnknownVariant = errors.New("scaffold: unknown data access variant")
	ErrFileExists     = errors.New("scaffold: file exists")
)

// Structure is a project file layout.
type Structure string

const (
	DomainGrouped  Structure = "domain-grouped"
	LayerGrouped   Structure = "layer-grouped"
	FeatureGrouped Structure = "feature-grouped"
)

// Valid reports whether the structure is known. The empty structure places
// files directly under the root.
func (s Structure) Valid() bool {
	switch s {
	case "", DomainGrouped, LayerGrouped, FeatureGrouped:
		return true
	}
	return false
}

// Options tune rendering.
type Options struct {
	// Variant selects a dataAccessVariants body, e.g. prisma. Templates that
	// declare variants must offer it; templates without any ignore it.
	Variant string
	// Pattern selects the "<layer>-<pattern>" template when one exists,
	// e.g. functional for consumer-functional.
	Pattern string
	// Structure and Root decide where files are placed.
	Structure Structure
	Root      string
	// Conditions enables conditional imports. The variant is always enabled.
	Conditions []string
	// FileNames overrides the file name pattern per layer. An override
	// without an extension takes the template's.
	FileNames map[string]string
}

// File is a rendered template.
type File struct {
	Layer       string `json:"layer"`
	TemplateKey string `json:"templateKey"`
	Path        string `json:"path"`
	Content     string `json:"content"`
}

// TemplateKey returns the template key used for layer: "<layer>-<pattern>"
// when the spec defines it, otherwise the layer itself.
func TemplateKey(s spec.ArchitectureSpec, layer, pattern string) (string, bool) {
	if pattern != "" {
		key := layer + "-" + pattern
		if _, ok := s.Templates[key]; ok {
			return key, true
		}
	}
	if _, ok := s.Templates[layer]; ok {
		return layer, true
	}
	return "", false
}

// Render instantiates the template for layer.
func Render(s spec.ArchitectureSpec, layer string, binding placeholder.Binding, opts Options) (File, error) {
	if !opts.Structure.Valid() {
		return File{}, fmt.Errorf("scaffold: unknown file structure %q", opts.Structure)
	}
	key, ok := TemplateKey(s, layer, opts.Pattern)
	if !ok {
		return File{}, fmt.Errorf("%w: %s has no template for %s", ErrNoTemplate, s.ID, layer)
	}
	tpl := s.Templates[key]
	variant := opts.Variant
	if len(tpl.DataAccessVariants) == 0 {
		// Templates without variants do not depend on the backend.
		variant = ""
	}
	body, ok := tpl.Body(variant)
	if !ok {
		return File{}, fmt.Errorf("%w: %s (template %s offers %s)", ErrUnknownVariant, opts.Variant, key, strings.Join(variants(tpl), ", "))
	}
	content, err := placeholder.Resolve(withImports(body, tpl.Imports, opts), binding)
	if err != nil {
		return File{}, fmt.Errorf("scaffold: template %s: %w", key, err)
	}
	name, err := placeholder.Resolve(fileNamePattern(tpl.FileNamePattern, opts.FileNames[layer]), binding)
	if err != nil {
		return File{}, fmt.Errorf("scaffold: file name for %s: %w", key, err)
	}
	dir, err := directory(layer, binding, opts)
	if err != nil {
		return File{}, err
	}
	return File{
		Layer:       layer,
		TemplateKey: key,
		Path:        path.Join(dir, name),
		Content:     content,
	}, nil
}

func fileNamePattern(pattern, override string) string {
	if override == "" {
		return pattern
	}
	if path.Ext(override) == "" {
		return override + path.Ext(pattern)
	}
	return override
}

// RenderAll renders every layer of base.layers that has a template. It is
// all or nothing: the first error aborts with no files.
func RenderAll(s spec.ArchitectureSpec, binding placeholder.Binding, opts Options) ([]File, error) {
	var files []File
	for _, layer := range s.Base.Layers {
		if _, ok := TemplateKey(s, layer, opts.Pattern); !ok {
			continue
		}
		f, err := Render(s, layer, binding, opts)
		if err != nil {
			return nil, err
		}
		files = append(files, f)
	}
	return files, nil
}

// Write persists files below root. Without force it refuses to overwrite:
// on any conflict nothing is written and ErrFileExists names every
// conflicting path.
func Write(root string, files []File, force bool) ([]string, error) {
	if !force {
		var conflicts []string
		for _, f := range files {
			if _, err := os.Stat(filepath.Join(root, filepath.FromSlash(f.Path))); err == nil {
				conflicts = append(conflicts, f.Path)
			}
		}
		if len(conflicts) > 0 {
			return nil, fmt.Errorf("%w: %s", ErrFileExists, strings.Join(conflicts, ", "))
		}
	}
	written := make([]string, 0, len(files))
	for _, f := range files {
		full := filepath.Join(root, filepath.FromSlash(f.Path))
		if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
			return written, fmt.Errorf("scaffold: create dir for %s: %w", f.Path, err)
		}
		if err := os.WriteFile(full, []byte(f.Content), 0o644); err != nil {
			return written, fmt.Errorf("scaffold: write %s: %w", f.Path, err)
		}
		written = append(written, f.Path)
	}
	return written, nil
}

func withImports(body string, imports []spec.ImportTemplate, opts Options) string {
	enabled := map[string]struct{}{}
	for _, c := range opts.Conditions {
		enabled[c] = struct{}{}
	}
	if opts.Variant != "" {
		enabled[opts.Variant] = struct{}{}
	}
	var lines []string
	for _, imp := range imports {
		if imp.Condition != "" && imp.Condition != "always" {
			if _, ok := enabled[imp.Condition]; !ok {
				continue
			}
		}
		if imp.Statement == "" || strings.Contains(body, imp.Statement) {
			continue
		}
		lines = append(lines, imp.Statement)
	}
	if len(lines) == 0 {
		return body
	}
	return strings.Join(lines, "\n") + "\n\n" + strings.TrimLeft(body, "\n")
}

// directory returns the slash-separated directory a layer's file goes in.
func directory(layer string, binding placeholder.Binding, opts Options) (string, error) {
	root := strings.Trim(filepath.ToSlash(opts.Root), "/")
	if root == "" {
		root = "."
	}
	switch opts.Structure {
	case LayerGrouped:
		return path.Join(root, spec.LayerDirectory(layer)), nil
	case DomainGrouped, FeatureGrouped:
		group, err := groupName(binding)
		if err != nil {
			return "", err
		}
		if opts.Structure == FeatureGrouped {
			return path.Join(root, "features", group), nil
		}
		return path.Join(root, group), nil
	}
	return root, nil
}

var groupKeys = []string{"resourceNamePluralKebab", "queueNamePluralKebab", "jobNamePluralKebab"}

// groupName names the directory of a resource in grouped layouts, e.g.
// order-items for ResourceName=OrderItem.
func groupName(binding placeholder.Binding) (string, error) {
	for _, key := range groupKeys {
		if v, ok := binding.Lookup(key); ok && v != "" {
			return v, nil
		}
	}
	keys := make([]string, 0, len(binding))
	for k := range binding {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if v, ok := binding.Lookup(k + "PluralKebab"); ok && v != "" {
			return v, nil
		}
	}
	return "", fmt.Errorf("scaffold: grouped layouts need a resource name in the binding")
}

func variants(tpl spec.LayerTemplate) []string {
	out := make([]string, 0, len(tpl.DataAccessVariants))
	for k := range tpl.DataAccessVariants {
		out = append(out, k)
	}
	sort.Strings(out)
	if len(out) == 0 {
		return []string{"none"}
	}
	return out
}

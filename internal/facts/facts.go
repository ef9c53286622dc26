// Package facts describes a codebase in the terms the rule evaluator
// understands: files assigned to layers, the layer edges their imports
// imply, and host-supplied values.
package facts

import (
	"encoding/json"
	"path"
	"sort"
	"strings"

	"github.com/kingrea/archspec/internal/depcheck"
	"github.com/kingrea/archspec/internal/spec"
)

// Pattern names recorded in File.Patterns.
const (
	PatternSecret        = "secret"
	PatternErrorHandling = "error-handling"
	PatternCatchAll      = "catch-all"
	PatternDocComment    = "doc-comment"
	PatternValidation    = "validation"
	PatternDataAccess    = "data-access"
	PatternSQLConcat     = "sql-concat"
)

// Well-known value keys.
const (
	ValueMaxFileLines = "maxFileLines"
	ValueRoot         = "root"
)

// File is what the scanner learned about one source file.
type File struct {
	Path     string         `json:"path"`
	Layer    string         `json:"layer,omitempty"`
	Lines    int            `json:"lines"`
	Test     bool           `json:"test,omitempty"`
	Imports  []string       `json:"imports,omitempty"`
	Symbols  []string       `json:"symbols,omitempty"`
	Patterns map[string]int `json:"patterns,omitempty"`
}

// Count returns the number of hits for a pattern.
func (f File) Count(pattern string) int {
	return f.Patterns[pattern]
}

// Stem returns the base name without any extension, e.g. order.service for
// src/order.service.ts.
func (f File) Stem() string {
	base := path.Base(f.Path)
	if idx := strings.LastIndex(base, "."); idx > 0 {
		base = base[:idx]
	}
	return base
}

// Set is an in-memory fact collection.
type Set struct {
	files  []File
	edges  []depcheck.Edge
	values map[string]any
}

// NewSet returns a set holding the given files.
func NewSet(files ...File) *Set {
	s := &Set{values: map[string]any{}}
	for _, f := range files {
		s.AddFile(f)
	}
	return s
}

// AddFile records a file.
func (s *Set) AddFile(f File) {
	f.Path = path.Clean(strings.ReplaceAll(f.Path, "\\", "/"))
	s.files = append(s.files, f)
}

// AddEdge records a layer edge.
func (s *Set) AddEdge(from, to string) {
	s.edges = append(s.edges, depcheck.Edge{From: from, To: to})
}

// SetValue records a host-supplied fact.
func (s *Set) SetValue(key string, value any) {
	if s.values == nil {
		s.values = map[string]any{}
	}
	s.values[key] = value
}

// Layers returns the distinct layers that own at least one file.
func (s *Set) Layers() []string {
	seen := map[string]struct{}{}
	var out []string
	for _, f := range s.files {
		if f.Layer == "" {
			continue
		}
		if _, ok := seen[f.Layer]; ok {
			continue
		}
		seen[f.Layer] = struct{}{}
		out = append(out, f.Layer)
	}
	sort.Strings(out)
	return out
}

// Files returns the files of a layer in path order. The wildcard layer
// returns every file, including unassigned ones.
func (s *Set) Files(layer string) []File {
	var out []File
	for _, f := range s.files {
		if layer == spec.WildcardLayer || f.Layer == layer {
			out = append(out, f)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out
}

// Edges returns the de-duplicated layer edges in sorted order.
func (s *Set) Edges() []depcheck.Edge {
	return depcheck.Normalize(s.edges)
}

// Value returns a host-supplied fact.
func (s *Set) Value(key string) (any, bool) {
	v, ok := s.values[key]
	return v, ok
}

// Snapshot is the serialized form of a Set.
type Snapshot struct {
	Files  []File          `json:"files"`
	Edges  []depcheck.Edge `json:"edges,omitempty"`
	Values map[string]any  `json:"values,omitempty"`
}

// Snapshot returns a serializable copy of the set.
func (s *Set) Snapshot() Snapshot {
	values := make(map[string]any, len(s.values))
	for k, v := range s.values {
		values[k] = v
	}
	return Snapshot{Files: s.Files(spec.WildcardLayer), Edges: s.Edges(), Values: values}
}

// FromSnapshot rebuilds a Set.
func FromSnapshot(snap Snapshot) *Set {
	s := NewSet(snap.Files...)
	s.edges = append(s.edges, snap.Edges...)
	for k, v := range snap.Values {
		s.values[k] = v
	}
	return s
}

func (s *Set) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Snapshot())
}

func (s *Set) UnmarshalJSON(data []byte) error {
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return err
	}
	*s = *FromSnapshot(snap)
	return nil
}

package facts

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"runtime"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kingrea/archspec/internal/placeholder"
	"github.com/kingrea/archspec/internal/spec"
)

// DefaultIgnore lists paths never scanned.
var DefaultIgnore = []string{
	"**/node_modules/**",
	"**/.git/**",
	"**/dist/**",
	"**/build/**",
	"**/coverage/**",
	"**/vendor/**",
	"**/.archspec/**",
}

// DefaultExtensions lists the source extensions the scanner reads.
var DefaultExtensions = []string{".ts", ".tsx", ".js", ".jsx", ".mjs", ".cjs", ".go"}

// DefaultCategories maps bare import paths to dependency categories. Only
// imports that resolve to a layer or a category produce edges.
var DefaultCategories = map[string]string{
	"pg":                          "database",
	"mysql":                       "database",
	"mysql2":                      "database",
	"sqlite3":                     "database",
	"better-sqlite3":              "database",
	"mongodb":                     "database",
	"mongoose":                    "database",
	"typeorm":                     "database",
	"sequelize":                   "database",
	"knex":                        "database",
	"prisma":                      "database",
	"@prisma/client":              "database",
	"database/sql":                "database",
	"gorm.io/gorm":                "database",
	"github.com/jackc/pgx/v5":     "database",
	"modernc.org/sqlite":          "database",
	"github.com/lib/pq":           "database",
	"go.mongodb.org/mongo-driver": "database",
}

// ScanOption configures a Scanner.
type ScanOption func(*Scanner)

// WithLayerGlobs assigns files to layers by doublestar pattern. Configured
// globs take precedence over globs derived from the spec.
func WithLayerGlobs(globs map[string][]string) ScanOption {
	return func(s *Scanner) {
		for layer, patterns := range globs {
			s.explicit[layer] = append(s.explicit[layer], patterns...)
		}
	}
}

// WithIgnore adds doublestar ignore patterns.
func WithIgnore(patterns ...string) ScanOption {
	return func(s *Scanner) { s.ignore = append(s.ignore, patterns...) }
}

// WithCategories adds or overrides import categories.
func WithCategories(categories map[string]string) ScanOption {
	return func(s *Scanner) {
		for k, v := range categories {
			s.categories[k] = v
		}
	}
}

// WithPatterns counts additional regular expressions per file.
func WithPatterns(extra map[string]*regexp.Regexp) ScanOption {
	return func(s *Scanner) {
		for k, v := range extra {
			s.patterns[k] = v
		}
	}
}

// WithMaxFileLines records the file length limit as a fact.
func WithMaxFileLines(n int) ScanOption {
	return func(s *Scanner) { s.maxFileLines = n }
}

// WithConcurrency bounds the number of files read in parallel.
func WithConcurrency(n int) ScanOption {
	return func(s *Scanner) {
		if n > 0 {
			s.concurrency = n
		}
	}
}

// WithScanLogger attaches a logger.
func WithScanLogger(logger *zap.Logger) ScanOption {
	return func(s *Scanner) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// Scanner builds a fact Set from a source tree.
type Scanner struct {
	spec         spec.ArchitectureSpec
	explicit     map[string][]string
	ignore       []string
	categories   map[string]string
	patterns     map[string]*regexp.Regexp
	maxFileLines int
	concurrency  int
	logger       *zap.Logger
	tiers        [][]layerGlob
}

type layerGlob struct {
	layer   string
	pattern string
}

// NewScanner returns a scanner for projects following s.
func NewScanner(s spec.ArchitectureSpec, opts ...ScanOption) *Scanner {
	sc := &Scanner{
		spec:        s,
		explicit:    map[string][]string{},
		ignore:      append([]string(nil), DefaultIgnore...),
		categories:  map[string]string{},
		patterns:    map[string]*regexp.Regexp{},
		concurrency: runtime.GOMAXPROCS(0),
		logger:      zap.NewNop(),
	}
	for k, v := range DefaultCategories {
		sc.categories[k] = v
	}
	for _, opt := range opts {
		opt(sc)
	}
	sc.tiers = sc.buildTiers()
	return sc
}

// Scan walks root and returns the facts it found.
func (sc *Scanner) Scan(ctx context.Context, root string) (*Set, error) {
	paths, err := sc.collect(ctx, root)
	if err != nil {
		return nil, err
	}
	files := make([]File, len(paths))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(sc.concurrency)
	for i, rel := range paths {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			data, err := os.ReadFile(filepath.Join(root, filepath.FromSlash(rel)))
			if err != nil {
				return fmt.Errorf("facts: read %s: %w", rel, err)
			}
			f := Extract(rel, data, sc.patterns)
			f.Layer = sc.LayerFor(rel)
			files[i] = f
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	set := NewSet(files...)
	set.SetValue(ValueRoot, root)
	if sc.maxFileLines > 0 {
		set.SetValue(ValueMaxFileLines, sc.maxFileLines)
	}
	sc.deriveEdges(set, files)
	sc.logger.Debug("scanned project",
		zap.String("root", root),
		zap.Int("files", len(files)),
		zap.Int("edges", len(set.Edges())),
	)
	return set, nil
}

// LayerFor returns the layer a slash-separated relative path belongs to, or
// "" when no layer glob matches.
func (sc *Scanner) LayerFor(rel string) string {
	rel = filepath.ToSlash(rel)
	for _, tier := range sc.tiers {
		for _, lg := range tier {
			if ok, _ := doublestar.Match(lg.pattern, rel); ok {
				return lg.layer
			}
		}
	}
	return ""
}

// Ignored reports whether a relative path matches an ignore pattern.
func (sc *Scanner) Ignored(rel string) bool {
	rel = filepath.ToSlash(rel)
	for _, pattern := range sc.ignore {
		if ok, _ := doublestar.Match(pattern, rel); ok {
			return true
		}
	}
	return false
}

// GlobForPattern turns a template file name pattern such as
// {resource}.controller.ts into the glob **/*.controller.ts.
func GlobForPattern(fileNamePattern string) string {
	pattern := strings.TrimSpace(fileNamePattern)
	if pattern == "" {
		return ""
	}
	tokens := placeholder.Tokens(pattern)
	for i := len(tokens) - 1; i >= 0; i-- {
		tok := tokens[i]
		pattern = pattern[:tok.Start] + "*" + pattern[tok.End:]
	}
	if !strings.Contains(pattern, "/") {
		pattern = strings.ReplaceAll(pattern, "**", "*")
	}
	if !strings.HasPrefix(pattern, "**/") {
		pattern = "**/" + strings.TrimPrefix(pattern, "/")
	}
	return pattern
}

func (sc *Scanner) collect(ctx context.Context, root string) ([]string, error) {
	var paths []string
	exts := map[string]struct{}{}
	for _, ext := range DefaultExtensions {
		exts[ext] = struct{}{}
	}
	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		rel, relErr := filepath.Rel(root, p)
		if relErr != nil || rel == "." {
			return nil
		}
		rel = filepath.ToSlash(rel)
		if d.IsDir() {
			if sc.Ignored(rel) || sc.Ignored(rel+"/_") {
				return filepath.SkipDir
			}
			return nil
		}
		if _, ok := exts[path.Ext(rel)]; !ok || sc.Ignored(rel) {
			return nil
		}
		if strings.HasSuffix(rel, ".d.ts") {
			return nil
		}
		paths = append(paths, rel)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("facts: walk %s: %w", root, err)
	}
	sort.Strings(paths)
	return paths, nil
}

// buildTiers orders layer globs by specificity: configured globs, then file
// name globs from templates, then directory conventions.
func (sc *Scanner) buildTiers() [][]layerGlob {
	layers := sc.orderedLayers()
	var explicit, names, dirs []layerGlob
	for _, layer := range layers {
		for _, pattern := range sc.explicit[layer] {
			explicit = append(explicit, layerGlob{layer: layer, pattern: pattern})
		}
		if len(sc.explicit[layer]) > 0 {
			continue
		}
		if tpl, ok := sc.spec.Templates[layer]; ok {
			if glob := GlobForPattern(tpl.FileNamePattern); glob != "" {
				names = append(names, layerGlob{layer: layer, pattern: glob})
			}
		}
		dirs = append(dirs,
			layerGlob{layer: layer, pattern: "**/" + layer + "/**"},
			layerGlob{layer: layer, pattern: "**/" + spec.LayerDirectory(layer) + "/**"},
		)
	}
	return [][]layerGlob{explicit, names, dirs}
}

func (sc *Scanner) orderedLayers() []string {
	seen := map[string]struct{}{}
	var out []string
	add := func(name string) {
		if name == "" {
			return
		}
		if _, ok := seen[name]; ok {
			return
		}
		seen[name] = struct{}{}
		out = append(out, name)
	}
	for _, name := range sc.spec.Base.Layers {
		add(name)
	}
	for _, name := range sc.spec.LayerNames() {
		add(name)
	}
	extra := make([]string, 0, len(sc.explicit))
	for name := range sc.explicit {
		extra = append(extra, name)
	}
	sort.Strings(extra)
	for _, name := range extra {
		add(name)
	}
	return out
}

func (sc *Scanner) deriveEdges(set *Set, files []File) {
	byStem := make(map[string]string, len(files))
	for _, f := range files {
		if f.Layer == "" {
			continue
		}
		byStem[trimExt(f.Path)] = f.Layer
	}
	for _, f := range files {
		if f.Layer == "" || f.Test {
			continue
		}
		for _, imp := range f.Imports {
			if target := sc.resolveImport(byStem, f.Path, imp); target != "" {
				set.AddEdge(f.Layer, target)
			}
		}
	}
}

func (sc *Scanner) resolveImport(byStem map[string]string, from, imp string) string {
	switch {
	case strings.HasPrefix(imp, "."):
		target := path.Clean(path.Join(path.Dir(from), imp))
		return lookupStem(byStem, trimExt(target))
	case strings.HasPrefix(imp, "@/") || strings.HasPrefix(imp, "~/"):
		rest := imp[2:]
		if layer := lookupStem(byStem, "src/"+trimExt(rest)); layer != "" {
			return layer
		}
		return lookupStem(byStem, trimExt(rest))
	}
	return sc.category(imp)
}

func (sc *Scanner) category(imp string) string {
	best, bestLen := "", -1
	for prefix, category := range sc.categories {
		if imp == prefix || strings.HasPrefix(imp, prefix+"/") {
			if len(prefix) > bestLen {
				best, bestLen = category, len(prefix)
			}
		}
	}
	return best
}

func lookupStem(byStem map[string]string, stem string) string {
	if layer, ok := byStem[stem]; ok {
		return layer
	}
	if layer, ok := byStem[stem+"/index"]; ok {
		return layer
	}
	return ""
}

func trimExt(p string) string {
	for _, ext := range DefaultExtensions {
		if strings.HasSuffix(p, ext) {
			return strings.TrimSuffix(p, ext)
		}
	}
	return p
}

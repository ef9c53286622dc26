package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/kingrea/archspec/internal/catalog"
	"github.com/kingrea/archspec/internal/config"
	"github.com/kingrea/archspec/internal/facts"
	"github.com/kingrea/archspec/internal/logbook"
	"github.com/kingrea/archspec/internal/logging"
	"github.com/kingrea/archspec/internal/placeholder"
	"github.com/kingrea/archspec/internal/registry"
	"github.com/kingrea/archspec/internal/scaffold"
	"github.com/kingrea/archspec/internal/spec"
)

// cli carries global flags and the lazily opened resources shared by every
// subcommand.
type cli struct {
	workspace string
	verbose   bool
	jsonOut   bool

	cfg   *config.Config
	log   *logging.Logger
	reg   *registry.Registry
	store *catalog.SQLiteStore
	book  *logbook.Logbook
}

func (c *cli) setup() error {
	if c.cfg != nil {
		return nil
	}
	ws := c.workspace
	if ws == "" {
		cwd, err := os.Getwd()
		if err != nil {
			return fmt.Errorf("resolve working directory: %w", err)
		}
		ws = cwd
	}
	ws, err := filepath.Abs(ws)
	if err != nil {
		return fmt.Errorf("resolve workspace: %w", err)
	}
	cfg, err := config.NewConfig(ws)
	if err != nil {
		return err
	}
	level := cfg.LogLevel()
	if c.verbose {
		level = "debug"
	}
	log, err := logging.New(cfg.LogsDir(), level)
	if err != nil {
		return err
	}
	c.workspace = ws
	c.cfg = cfg
	c.log = log
	c.logger().Debug("session started", zap.String("workspace", ws), zap.String("level", level))
	return nil
}

func (c *cli) close() {
	if c.store != nil {
		if err := c.store.Close(); err != nil {
			c.logger().Warn("close catalog database", zap.Error(err))
		}
		c.store = nil
	}
	if c.log != nil {
		_ = c.log.Close()
		c.log = nil
	}
}

func (c *cli) logger() *zap.Logger {
	return c.log.Zap()
}

// history returns the check-run logbook. A logbook that cannot be created
// is reported once and replaced by nil, which records nothing.
func (c *cli) history() *logbook.Logbook {
	if c.book == nil {
		book, err := logbook.New(c.cfg.HistoryPath())
		if err != nil {
			c.logger().Warn("open check history", zap.Error(err))
			return nil
		}
		c.book = book
	}
	return c.book
}

// openStore opens the SQLite catalog, creating it when create is set. A
// missing database without create yields nil.
func (c *cli) openStore(create bool) (*catalog.SQLiteStore, error) {
	if c.store != nil {
		return c.store, nil
	}
	path := c.cfg.DatabasePath()
	if path != ":memory:" {
		if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
			if !create {
				return nil, nil
			}
			if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
				return nil, fmt.Errorf("create catalog directory: %w", err)
			}
		}
	}
	store, err := catalog.OpenSQLite(path)
	if err != nil {
		return nil, err
	}
	c.store = store
	return store, nil
}

// registry loads every configured spec source once per invocation.
func (c *cli) registry(ctx context.Context) (*registry.Registry, error) {
	if c.reg != nil {
		return c.reg, nil
	}
	var sources []registry.Source
	if !c.cfg.Project.Catalog.DisableBuiltin {
		sources = append(sources, catalog.Builtin())
	}
	for _, dir := range c.cfg.CatalogDirs() {
		sources = append(sources, catalog.Dir(dir))
	}
	store, err := c.openStore(false)
	if err != nil {
		return nil, err
	}
	if store != nil {
		sources = append(sources, store)
	}
	reg, err := registry.Load(ctx, sources,
		registry.WithLogger(c.logger()),
		registry.WithExternalCategories(c.cfg.Project.Catalog.ExternalCategories...),
	)
	if err != nil {
		return nil, err
	}
	c.logger().Info("catalog loaded", zap.Int("specs", reg.Len()), zap.Int("sources", len(sources)))
	c.reg = reg
	return reg, nil
}

// validateOptions returns the spec validation options from config.
func (c *cli) validateOptions() []spec.ValidateOption {
	return []spec.ValidateOption{spec.WithExternalCategories(c.cfg.Project.Catalog.ExternalCategories...)}
}

// scanOptions translates the scan section of the project config.
func (c *cli) scanOptions() []facts.ScanOption {
	sc := c.cfg.Project.Scan
	opts := []facts.ScanOption{
		facts.WithScanLogger(c.logger()),
		facts.WithMaxFileLines(sc.MaxFileLines),
	}
	if len(sc.Layers) > 0 {
		opts = append(opts, facts.WithLayerGlobs(sc.Layers))
	}
	if len(sc.Ignore) > 0 {
		opts = append(opts, facts.WithIgnore(sc.Ignore...))
	}
	if patterns := c.cfg.Project.CompiledPatterns(); patterns != nil {
		opts = append(opts, facts.WithPatterns(patterns))
	}
	return opts
}

func (c *cli) scan(ctx context.Context, s spec.ArchitectureSpec, dir string) (*facts.Set, error) {
	return facts.NewScanner(s, c.scanOptions()...).Scan(ctx, c.path(dir))
}

// path resolves p against the workspace.
func (c *cli) path(p string) string {
	if p == "" {
		return c.workspace
	}
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(c.workspace, p)
}

// target is a spec plus the project choices that apply to it.
type target struct {
	spec      spec.ArchitectureSpec
	component string
	options   map[string]string
	structure scaffold.Structure
	root      string
	fileNames map[string]string
}

// resolveTarget accepts a spec id or the name of a configured component.
// Components contribute their architecture options, data access, file
// structure and naming; overrides win over the options.
func (c *cli) resolveTarget(ctx context.Context, name string, overrides map[string]string) (target, error) {
	reg, err := c.registry(ctx)
	if err != nil {
		return target{}, err
	}
	t := target{}
	specID := name
	merged := map[string]string{}
	if comp, ok := c.cfg.Component(name); ok {
		t.component = name
		specID = comp.Architecture
		for k, v := range comp.Options {
			merged[k] = v
		}
		if comp.FileStructure != nil {
			t.structure = scaffold.Structure(comp.FileStructure.Pattern)
			t.root = comp.FileStructure.Root
		}
		t.fileNames = comp.Naming.FileNames()
		if comp.DataAccess != "" {
			if s, err := reg.Get(specID); err == nil {
				if _, ok := s.Options["dataAccess"]; ok {
					merged["dataAccess"] = comp.DataAccess
				}
			}
		}
	}
	for k, v := range overrides {
		merged[k] = v
	}
	s, err := reg.Get(specID)
	if err != nil {
		return target{}, err
	}
	options, err := reg.ResolveOptions(specID, merged)
	if err != nil {
		return target{}, err
	}
	t.spec = s
	t.options = options
	return t, nil
}

// variant picks the data access variant implied by the options: dataAccess,
// then queueBackend. "none" selects the default template.
func (t target) variant() string {
	for _, key := range []string{"dataAccess", "queueBackend"} {
		if v, ok := t.options[key]; ok && v != "none" {
			return v
		}
	}
	return ""
}

// pattern picks the template pattern implied by options ending in "Pattern",
// e.g. servicePattern=functional.
func (t target) pattern() string {
	keys := make([]string, 0, len(t.options))
	for k := range t.options {
		if strings.HasSuffix(k, "Pattern") {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	for _, k := range keys {
		if v := t.options[k]; v != "" {
			return v
		}
	}
	return ""
}

// bindingFlags collects placeholder values from --resource and --set.
type bindingFlags struct {
	resource string
	set      map[string]string
}

func (b bindingFlags) binding() placeholder.Binding {
	out := placeholder.Binding{}
	for k, v := range b.set {
		out[k] = v
	}
	if b.resource != "" {
		out["ResourceName"] = b.resource
	}
	return out
}

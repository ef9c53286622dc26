// internal/config/config.go
//
// This package handles configuration and the .archspec directory structure.
// Every project that adopts an architecture gets a .archspec/ folder in its root.

package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"gopkg.in/yaml.v3"
)

const (
	// ArchspecDir is the name of the directory we create in each project
	ArchspecDir = ".archspec"

	// HomeEnv names an extra catalog directory shared across projects.
	HomeEnv = "ARCHSPEC_HOME"
	// LogLevelEnv overrides log.level.
	LogLevelEnv = "ARCHSPEC_LOG_LEVEL"

	defaultLogLevel     = "info"
	defaultMaxFileLines = 500
	defaultDatabase     = "catalog.db"
)

const defaultProjectConfigYAML = `# archspec project configuration
version: 1

# Human-readable project name.
project: ""

# Components map a part of the codebase to an architecture in the catalog.
components: {}
#  api:
#    language: typescript
#    framework: express
#    architecture: controller-service-repository
#    architectureOptions:
#      servicePattern: class
#    dataAccess: prisma
#    fileStructure:
#      root: src
#      pattern: domain-grouped

catalog:
  # Extra directories holding *.yaml / *.yml / *.json architecture specs.
  dirs: []
  # SQLite store filled by "archspec import", relative to .archspec/.
  database: catalog.db
  disable_builtin: false
  # Import categories accepted in canImport besides the defaults.
  external_categories: []

scan:
  ignore: []
  # Explicit layer globs; layers without globs are derived from templates.
  layers: {}
  max_file_lines: 500
  # Extra regex patterns counted per file.
  patterns: {}

log:
  level: info
`

// NamingConventions overrides the generated file names of a component, e.g.
// controllers: "{{ResourceName}}Controller". A pattern without an extension
// keeps the template's extension.
type NamingConventions struct {
	Controllers  string `yaml:"controllers,omitempty"`
	Services     string `yaml:"services,omitempty"`
	Repositories string `yaml:"repositories,omitempty"`
	Models       string `yaml:"models,omitempty"`
	Interfaces   string `yaml:"interfaces,omitempty"`
}

// FileNames maps layer names to their file name patterns.
func (n *NamingConventions) FileNames() map[string]string {
	if n == nil {
		return nil
	}
	out := map[string]string{}
	for layer, pattern := range map[string]string{
		"controller": n.Controllers,
		"service":    n.Services,
		"repository": n.Repositories,
		"model":      n.Models,
		"interface":  n.Interfaces,
	} {
		if pattern = strings.TrimSpace(pattern); pattern != "" {
			out[layer] = pattern
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// FileStructure declares where generated files go.
type FileStructure struct {
	Root    string `yaml:"root,omitempty"`
	Pattern string `yaml:"pattern,omitempty"`
}

// ComponentConfig binds one component of the project to an architecture.
type ComponentConfig struct {
	Language      string             `yaml:"language,omitempty"`
	Framework     string             `yaml:"framework,omitempty"`
	Architecture  string             `yaml:"architecture"`
	Options       map[string]string  `yaml:"architectureOptions,omitempty"`
	DataAccess    string             `yaml:"dataAccess,omitempty"`
	Naming        *NamingConventions `yaml:"naming,omitempty"`
	FileStructure *FileStructure     `yaml:"fileStructure,omitempty"`
}

// CatalogConfig controls where specs are loaded from.
type CatalogConfig struct {
	Dirs               []string `yaml:"dirs,omitempty"`
	Database           string   `yaml:"database,omitempty"`
	DisableBuiltin     bool     `yaml:"disable_builtin,omitempty"`
	ExternalCategories []string `yaml:"external_categories,omitempty"`
}

// ScanConfig tunes the fact scanner.
type ScanConfig struct {
	Ignore       []string            `yaml:"ignore,omitempty"`
	Layers       map[string][]string `yaml:"layers,omitempty"`
	MaxFileLines int                 `yaml:"max_file_lines,omitempty"`
	Patterns     map[string]string   `yaml:"patterns,omitempty"`
}

// LogConfig controls the log file.
type LogConfig struct {
	Level string `yaml:"level,omitempty"`
}

// ProjectConfig models .archspec/config.yaml.
type ProjectConfig struct {
	Version    int                        `yaml:"version"`
	Project    string                     `yaml:"project,omitempty"`
	Components map[string]ComponentConfig `yaml:"components"`
	Catalog    CatalogConfig              `yaml:"catalog"`
	Scan       ScanConfig                 `yaml:"scan"`
	Log        LogConfig                  `yaml:"log"`
}

// Config holds the runtime configuration for archspec.
type Config struct {
	// ProjectDir is the directory archspec runs against
	ProjectDir string

	// Home is an optional catalog directory shared across projects,
	// taken from ARCHSPEC_HOME.
	Home string

	// ArchspecProjectDir is ProjectDir/.archspec
	ArchspecProjectDir string

	Project ProjectConfig
}

// InitArchspecDir creates the .archspec directory structure in the given
// project directory and writes a commented config.yaml if none exists.
//
// Structure created:
// .archspec/
// ├── config.yaml
// ├── specs/   <- project-local architecture specs
// └── logs/    <- archspec.log
func InitArchspecDir(projectDir string) error {
	archspecDir := filepath.Join(projectDir, ArchspecDir)

	dirs := []string{
		filepath.Join(archspecDir, "specs"),
		filepath.Join(archspecDir, "logs"),
	}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}

	return ensureProjectConfig(filepath.Join(archspecDir, "config.yaml"))
}

// NewConfig creates a new Config instance populated with project settings.
// A missing config.yaml yields the defaults.
func NewConfig(projectDir string) (*Config, error) {
	cfg := &Config{
		ProjectDir:         projectDir,
		Home:               resolvePath(projectDir, os.Getenv(HomeEnv)),
		ArchspecProjectDir: filepath.Join(projectDir, ArchspecDir),
		Project:            defaultProjectConfig(),
	}
	cfg.Project.normalize(cfg.ArchspecProjectDir)

	if err := cfg.loadProjectConfig(); err != nil {
		return nil, err
	}
	if level := strings.TrimSpace(os.Getenv(LogLevelEnv)); level != "" {
		level = strings.ToLower(level)
		if !validLogLevel(level) {
			return nil, fmt.Errorf("config: %s: unknown log level %q", LogLevelEnv, level)
		}
		cfg.Project.Log.Level = level
	}

	return cfg, nil
}

// LogsDir returns the path to the logs directory
func (c *Config) LogsDir() string {
	return filepath.Join(c.ArchspecProjectDir, "logs")
}

// HistoryPath returns the check-run logbook file.
func (c *Config) HistoryPath() string {
	return filepath.Join(c.LogsDir(), "checks.log")
}

// SpecsDir returns the project-local spec directory
func (c *Config) SpecsDir() string {
	return filepath.Join(c.ArchspecProjectDir, "specs")
}

// ProjectConfigPath returns the on-disk location for the project config file.
func (c *Config) ProjectConfigPath() string {
	return filepath.Join(c.ArchspecProjectDir, "config.yaml")
}

// DatabasePath returns the SQLite catalog location.
func (c *Config) DatabasePath() string {
	return c.Project.Catalog.Database
}

// CatalogDirs returns the spec directories to load, in precedence order:
// ARCHSPEC_HOME, the project's .archspec/specs, then catalog.dirs.
func (c *Config) CatalogDirs() []string {
	var dirs []string
	if c.Home != "" {
		dirs = append(dirs, c.Home)
	}
	dirs = append(dirs, c.SpecsDir())
	for _, dir := range c.Project.Catalog.Dirs {
		if !contains(dirs, dir) {
			dirs = append(dirs, dir)
		}
	}
	return dirs
}

// LogLevel returns the configured log level.
func (c *Config) LogLevel() string {
	return c.Project.Log.Level
}

// Component returns a configured component.
func (c *Config) Component(name string) (ComponentConfig, bool) {
	comp, ok := c.Project.Components[name]
	return comp, ok
}

// ComponentNames returns the configured component names, sorted.
func (c *Config) ComponentNames() []string {
	names := make([]string, 0, len(c.Project.Components))
	for name := range c.Project.Components {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// SetComponent records a component and persists the value back to
// .archspec/config.yaml.
func (c *Config) SetComponent(name string, comp ComponentConfig) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("config: component name is required")
	}
	comp.normalize()
	if err := comp.validate(); err != nil {
		return fmt.Errorf("config: components[%s]: %w", name, err)
	}
	if c.Project.Components == nil {
		c.Project.Components = map[string]ComponentConfig{}
	}
	c.Project.Components[name] = comp
	return c.saveProjectConfig()
}

func (c *Config) loadProjectConfig() error {
	path := c.ProjectConfigPath()
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("config: read %s: %w", path, err)
	}

	var parsed ProjectConfig
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return fmt.Errorf("config: parse %s: %w", path, err)
	}

	parsed.applyDefaults()
	parsed.normalize(c.ArchspecProjectDir)
	if err := parsed.validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}

	c.Project = parsed
	return nil
}

func defaultProjectConfig() ProjectConfig {
	pc := ProjectConfig{}
	pc.applyDefaults()
	return pc
}

func (pc *ProjectConfig) applyDefaults() {
	if pc.Version == 0 {
		pc.Version = 1
	}
	if pc.Components == nil {
		pc.Components = map[string]ComponentConfig{}
	}
	if pc.Catalog.Database == "" {
		pc.Catalog.Database = defaultDatabase
	}
	if pc.Scan.MaxFileLines == 0 {
		pc.Scan.MaxFileLines = defaultMaxFileLines
	}
	if pc.Log.Level == "" {
		pc.Log.Level = defaultLogLevel
	}
}

// normalize trims values and resolves paths. Catalog paths are relative to
// the .archspec directory.
func (pc *ProjectConfig) normalize(base string) {
	pc.Project = strings.TrimSpace(pc.Project)
	for name, comp := range pc.Components {
		comp.normalize()
		pc.Components[name] = comp
	}
	for i, dir := range pc.Catalog.Dirs {
		pc.Catalog.Dirs[i] = resolvePath(base, dir)
	}
	if pc.Catalog.Database != ":memory:" {
		pc.Catalog.Database = resolvePath(base, pc.Catalog.Database)
	}
	pc.Catalog.ExternalCategories = trimAll(pc.Catalog.ExternalCategories)
	pc.Scan.Ignore = trimAll(pc.Scan.Ignore)
	for layer, globs := range pc.Scan.Layers {
		pc.Scan.Layers[layer] = trimAll(globs)
	}
	pc.Log.Level = strings.ToLower(strings.TrimSpace(pc.Log.Level))
}

func (pc *ProjectConfig) validate() error {
	if pc.Version < 1 {
		return fmt.Errorf("config version must be >= 1")
	}
	for _, name := range sortedKeys(pc.Components) {
		if err := pc.Components[name].validate(); err != nil {
			return fmt.Errorf("components[%s]: %w", name, err)
		}
	}
	for i, pattern := range pc.Scan.Ignore {
		if !doublestar.ValidatePattern(pattern) {
			return fmt.Errorf("scan.ignore[%d]: invalid glob %q", i, pattern)
		}
	}
	for layer, globs := range pc.Scan.Layers {
		for _, glob := range globs {
			if !doublestar.ValidatePattern(glob) {
				return fmt.Errorf("scan.layers[%s]: invalid glob %q", layer, glob)
			}
		}
	}
	if pc.Scan.MaxFileLines < 0 {
		return fmt.Errorf("scan.max_file_lines must be positive")
	}
	for name, expr := range pc.Scan.Patterns {
		if _, err := regexp.Compile(expr); err != nil {
			return fmt.Errorf("scan.patterns[%s]: %w", name, err)
		}
	}
	if !validLogLevel(pc.Log.Level) {
		return fmt.Errorf("log.level must be debug, info, warn or error")
	}
	return nil
}

// CompiledPatterns returns scan.patterns compiled. Patterns are validated on
// load so compilation cannot fail here.
func (pc ProjectConfig) CompiledPatterns() map[string]*regexp.Regexp {
	if len(pc.Scan.Patterns) == 0 {
		return nil
	}
	out := make(map[string]*regexp.Regexp, len(pc.Scan.Patterns))
	for name, expr := range pc.Scan.Patterns {
		out[name] = regexp.MustCompile(expr)
	}
	return out
}

func (comp *ComponentConfig) normalize() {
	comp.Language = strings.ToLower(strings.TrimSpace(comp.Language))
	comp.Framework = strings.TrimSpace(comp.Framework)
	comp.Architecture = strings.TrimSpace(comp.Architecture)
	comp.DataAccess = strings.TrimSpace(comp.DataAccess)
	if comp.FileStructure != nil {
		comp.FileStructure.Root = strings.TrimSpace(comp.FileStructure.Root)
		comp.FileStructure.Pattern = strings.ToLower(strings.TrimSpace(comp.FileStructure.Pattern))
	}
}

func (comp ComponentConfig) validate() error {
	if comp.Architecture == "" {
		return fmt.Errorf("architecture is required")
	}
	switch comp.Language {
	case "", "nodejs", "typescript", "python", "java", "go":
	default:
		return fmt.Errorf("language must be nodejs, typescript, python, java or go")
	}
	if comp.FileStructure != nil {
		switch comp.FileStructure.Pattern {
		case "", "domain-grouped", "layer-grouped", "feature-grouped":
		default:
			return fmt.Errorf("fileStructure.pattern must be domain-grouped, layer-grouped or feature-grouped")
		}
	}
	return nil
}

func validLogLevel(level string) bool {
	switch level {
	case "debug", "info", "warn", "error":
		return true
	}
	return false
}

func contains(values []string, target string) bool {
	for _, v := range values {
		if v == target {
			return true
		}
	}
	return false
}

func trimAll(values []string) []string {
	out := values[:0]
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func resolvePath(base, candidate string) string {
	trimmed := strings.TrimSpace(candidate)
	if trimmed == "" {
		return ""
	}
	if filepath.IsAbs(trimmed) {
		return filepath.Clean(trimmed)
	}
	return filepath.Clean(filepath.Join(base, trimmed))
}

func ensureProjectConfig(path string) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	} else if !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return os.WriteFile(path, []byte(defaultProjectConfigYAML), 0644)
}

func (c *Config) saveProjectConfig() error {
	if c == nil {
		return fmt.Errorf("config: nil receiver")
	}
	c.Project.applyDefaults()
	c.Project.normalize(c.ArchspecProjectDir)
	if err := c.Project.validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if err := os.MkdirAll(c.ArchspecProjectDir, 0o755); err != nil {
		return fmt.Errorf("config: ensure archspec dir: %w", err)
	}
	data, err := yaml.Marshal(c.Project)
	if err != nil {
		return fmt.Errorf("config: encode config: %w", err)
	}
	if err := os.WriteFile(c.ProjectConfigPath(), data, 0644); err != nil {
		return fmt.Errorf("config: write project config: %w", err)
	}
	return nil
}

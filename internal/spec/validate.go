package spec

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrInvalidSpec is wrapped by every structural validation failure.
var ErrInvalidSpec = errors.New("spec: invalid specification")

// ValidationError lists every problem found in a single spec.
type ValidationError struct {
	SpecID   string
	Problems []string
}

func (e *ValidationError) Error() string {
	id := e.SpecID
	if id == "" {
		id = "<unnamed>"
	}
	return fmt.Sprintf("spec %s: invalid: %s", id, strings.Join(e.Problems, "; "))
}

func (e *ValidationError) Unwrap() error { return ErrInvalidSpec }

// defaultExternalCategories are dependency targets that are not layers of any
// spec but commonly appear in allow-lists.
var defaultExternalCategories = []string{
	"config",
	"database",
	"database-direct",
	"dto",
	"errors",
	"express",
	"http",
	"logging",
	"middleware",
	"model",
	"models",
	"monitoring",
	"orm",
	"other-consumers",
	"producer",
	"request",
	"response",
	"types",
	"utils",
	"validation",
}

// DefaultExternalCategories returns a copy of the built-in category list.
func DefaultExternalCategories() []string {
	out := make([]string, len(defaultExternalCategories))
	copy(out, defaultExternalCategories)
	return out
}

// ValidateOption customizes validation.
type ValidateOption func(*validateConfig)

type validateConfig struct {
	categories map[string]struct{}
}

// WithExternalCategories adds recognized external dependency categories on top
// of the defaults.
func WithExternalCategories(names ...string) ValidateOption {
	return func(cfg *validateConfig) {
		for _, name := range names {
			trimmed := strings.TrimSpace(name)
			if trimmed == "" {
				continue
			}
			cfg.categories[trimmed] = struct{}{}
		}
	}
}

// Validate checks the structural invariants of the spec and returns a
// *ValidationError describing every violation, or nil.
func (s ArchitectureSpec) Validate(opts ...ValidateOption) error {
	cfg := validateConfig{categories: make(map[string]struct{}, len(defaultExternalCategories))}
	for _, name := range defaultExternalCategories {
		cfg.categories[name] = struct{}{}
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	n := s.Normalized()
	v := &validator{specID: n.ID}

	if n.ID == "" {
		v.add("id is required")
	}
	if n.Name == "" {
		v.add("name is required")
	}

	layers := make(map[string]struct{}, len(n.Layers))
	for idx, layer := range n.Layers {
		if layer.Name == "" {
			v.add("layers[%d]: name is required", idx)
			continue
		}
		if _, exists := layers[layer.Name]; exists {
			v.add("layers[%d]: duplicate layer %s", idx, layer.Name)
			continue
		}
		layers[layer.Name] = struct{}{}
	}

	v.validateBase(n.Base, layers)
	for _, layer := range n.Layers {
		if layer.Name == "" {
			continue
		}
		v.validateDependencies(layer, layers, cfg.categories)
	}
	v.validateOptions(n.Options)
	v.validateTemplates(n.Templates, layers, cfg.categories)
	v.validateRules("required", n.Rules.Required, layers)
	v.validateRules("forbidden", n.Rules.Forbidden, layers)
	for idx, conv := range n.Rules.Conventions {
		if conv.Aspect != "" && !validAspect(conv.Aspect) {
			v.add("rules.conventions[%d]: unknown aspect %q", idx, conv.Aspect)
		}
	}
	v.validateTasks(n.TaskTemplates)

	return v.err()
}

type validator struct {
	specID   string
	problems []string
}

func (v *validator) add(format string, args ...any) {
	v.problems = append(v.problems, fmt.Sprintf(format, args...))
}

func (v *validator) err() error {
	if len(v.problems) == 0 {
		return nil
	}
	return &ValidationError{SpecID: v.specID, Problems: v.problems}
}

func (v *validator) validateBase(base Base, layers map[string]struct{}) {
	if len(base.Layers) == 0 {
		v.add("base.layers must list at least one layer")
	}
	seen := make(map[string]struct{}, len(base.Layers))
	for _, name := range base.Layers {
		if _, dup := seen[name]; dup {
			v.add("base.layers: duplicate layer %s", name)
			continue
		}
		seen[name] = struct{}{}
		if _, ok := layers[name]; !ok {
			v.add("base.layers references %s but no layer spec declares it", name)
		}
	}
	if !base.DependencyFlow.Valid() {
		v.add("base.dependencyFlow must be 'unidirectional' or 'bidirectional', got %q", base.DependencyFlow)
	}
	if base.ErrorHandling != "" && !base.ErrorHandling.Valid() {
		v.add("base.errorHandling %q is not recognized", base.ErrorHandling)
	}
}

func (v *validator) validateDependencies(layer LayerSpec, layers, categories map[string]struct{}) {
	for _, target := range layer.Dependencies.CanImport {
		_, isLayer := layers[target]
		_, isCategory := categories[target]
		if !isLayer && !isCategory {
			v.add("layer %s: canImport references unknown layer or category %s", layer.Name, target)
		}
		if layer.Dependencies.Forbids(target) {
			v.add("layer %s: %s is listed in both canImport and cannotImport", layer.Name, target)
		}
	}
	for _, target := range layer.Dependencies.CannotImport {
		_, isLayer := layers[target]
		_, isCategory := categories[target]
		if !isLayer && !isCategory {
			v.add("layer %s: cannotImport references unknown layer or category %s", layer.Name, target)
		}
	}
}

func (v *validator) validateOptions(options map[string]Option) {
	keys := sortedKeys(options)
	for _, key := range keys {
		opt := options[key]
		if len(opt.Choices) == 0 {
			v.add("options.%s: at least one choice is required", key)
			continue
		}
		seen := make(map[string]struct{}, len(opt.Choices))
		for _, choice := range opt.Choices {
			if _, dup := seen[choice]; dup {
				v.add("options.%s: duplicate choice %s", key, choice)
			}
			seen[choice] = struct{}{}
		}
		if opt.Default == "" {
			v.add("options.%s: default is required", key)
		} else if !opt.Allows(opt.Default) {
			v.add("options.%s: default %s is not one of the choices", key, opt.Default)
		}
	}
}

// validateTemplates accepts keys naming a layer, a layer with a pattern suffix
// such as service-functional, or an auxiliary category such as producer.
func (v *validator) validateTemplates(templates map[string]LayerTemplate, layers, categories map[string]struct{}) {
	for _, key := range sortedKeys(templates) {
		tmpl := templates[key]
		if !templateKeyKnown(key, layers, categories) {
			v.add("templates.%s: key is not a layer, a <layer>-<pattern> variant or a known category", key)
		}
		if tmpl.FileNamePattern == "" {
			v.add("templates.%s: fileNamePattern is required", key)
		}
		if strings.TrimSpace(tmpl.Template) == "" {
			v.add("templates.%s: template body is required", key)
		}
	}
}

func templateKeyKnown(key string, layers, categories map[string]struct{}) bool {
	for _, known := range []map[string]struct{}{layers, categories} {
		if _, ok := known[key]; ok {
			return true
		}
		for name := range known {
			if suffix, ok := strings.CutPrefix(key, name+"-"); ok && suffix != "" {
				return true
			}
		}
	}
	return false
}

func (v *validator) validateRules(label string, rules []Rule, layers map[string]struct{}) {
	seen := make(map[string]struct{}, len(rules))
	for idx, rule := range rules {
		if rule.Rule == "" {
			v.add("rules.%s[%d]: rule text is required", label, idx)
		}
		if !rule.Severity.Valid() {
			v.add("rules.%s[%d]: severity must be error, warning or info, got %q", label, idx, rule.Severity)
		}
		if rule.Layer == "" {
			v.add("rules.%s[%d]: layer is required", label, idx)
		} else if rule.Layer != WildcardLayer {
			if _, ok := layers[rule.Layer]; !ok {
				v.add("rules.%s[%d]: unknown layer %s", label, idx, rule.Layer)
			}
		}
		if rule.ID == "" {
			continue
		}
		key := rule.ID + "@" + rule.Layer
		if _, dup := seen[key]; dup {
			v.add("rules.%s[%d]: duplicate rule %s for layer %s", label, idx, rule.ID, rule.Layer)
		}
		seen[key] = struct{}{}
	}
}

func (v *validator) validateTasks(tasks []TaskTemplate) {
	seen := make(map[string]struct{}, len(tasks))
	for idx, task := range tasks {
		if task.ID == "" {
			v.add("taskTemplates[%d]: id is required", idx)
		} else {
			if _, dup := seen[task.ID]; dup {
				v.add("taskTemplates[%d]: duplicate id %s", idx, task.ID)
			}
			seen[task.ID] = struct{}{}
		}
		if len(task.Steps) == 0 {
			v.add("taskTemplates[%d]: at least one step is required", idx)
			continue
		}
		if err := task.CheckOrder(); err != nil {
			v.add("taskTemplates[%d]: %v", idx, err)
		}
		for sidx, step := range task.Steps {
			if step.Description == "" {
				v.add("taskTemplates[%d].steps[%d]: description is required", idx, sidx)
			}
			if step.Layer == "" {
				v.add("taskTemplates[%d].steps[%d]: layer is required", idx, sidx)
			}
		}
	}
}

// CheckOrder verifies that step orders are strictly increasing.
func (t TaskTemplate) CheckOrder() error {
	for i := 1; i < len(t.Steps); i++ {
		if t.Steps[i].Order <= t.Steps[i-1].Order {
			return fmt.Errorf("step orders must be strictly increasing: %d follows %d", t.Steps[i].Order, t.Steps[i-1].Order)
		}
	}
	return nil
}

func validAspect(a ConventionAspect) bool {
	switch a {
	case AspectNaming, AspectStructure, AspectPatterns, AspectDependencies:
		return true
	}
	return false
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// Package spec models architecture specifications: named, layered
// code-organization patterns with dependency rules, code templates, rule sets
// and task decomposition templates.
//
// Values in this package are plain data. Normalized returns a trimmed deep
// copy and Validate reports every structural problem at once so catalogs can be
// fixed in a single pass.
package spec

import "strings"

// DependencyFlow declares whether layers may only depend "downwards".
type DependencyFlow string

const (
	FlowUnidirectional DependencyFlow = "unidirectional"
	FlowBidirectional  DependencyFlow = "bidirectional"
)

// Valid reports whether the flow is a known value.
func (f DependencyFlow) Valid() bool {
	switch f {
	case FlowUnidirectional, FlowBidirectional:
		return true
	}
	return false
}

// ErrorHandling declares where errors are expected to be handled.
type ErrorHandling string

const (
	ErrorHandlingPerLayer   ErrorHandling = "per-layer"
	ErrorHandlingMiddleware ErrorHandling = "centralized-middleware"
	ErrorHandlingHybrid     ErrorHandling = "hybrid"
)

// Valid reports whether the strategy is a known value.
func (e ErrorHandling) Valid() bool {
	switch e {
	case ErrorHandlingPerLayer, ErrorHandlingMiddleware, ErrorHandlingHybrid:
		return true
	}
	return false
}

// Severity ranks rule failures.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
	SeverityInfo    Severity = "info"
)

// Valid reports whether the severity is a known value.
func (s Severity) Valid() bool {
	switch s {
	case SeverityError, SeverityWarning, SeverityInfo:
		return true
	}
	return false
}

// Rank orders severities so callers can filter by a minimum level. Unknown
// severities rank below info.
func (s Severity) Rank() int {
	switch s {
	case SeverityError:
		return 3
	case SeverityWarning:
		return 2
	case SeverityInfo:
		return 1
	}
	return 0
}

// WildcardLayer scopes a rule to every layer.
const WildcardLayer = "*"

// ArchitectureSpec is a complete architecture description.
type ArchitectureSpec struct {
	ID            string                   `json:"id" yaml:"id"`
	Name          string                   `json:"name" yaml:"name"`
	Description   string                   `json:"description,omitempty" yaml:"description,omitempty"`
	Version       string                   `json:"version,omitempty" yaml:"version,omitempty"`
	Base          Base                     `json:"base" yaml:"base"`
	Options       map[string]Option        `json:"options,omitempty" yaml:"options,omitempty"`
	Layers        []LayerSpec              `json:"layers" yaml:"layers"`
	Templates     map[string]LayerTemplate `json:"templates,omitempty" yaml:"templates,omitempty"`
	Rules         Rules                    `json:"rules" yaml:"rules"`
	Style         *StyleGuide              `json:"style,omitempty" yaml:"style,omitempty"`
	AIGuidance    *AIGuidance              `json:"aiGuidance,omitempty" yaml:"aiGuidance,omitempty"`
	TaskTemplates []TaskTemplate           `json:"taskTemplates,omitempty" yaml:"taskTemplates,omitempty"`
}

// Base captures the architecture's layer order and global policies.
type Base struct {
	Layers         []string       `json:"layers" yaml:"layers"`
	DependencyFlow DependencyFlow `json:"dependencyFlow" yaml:"dependencyFlow"`
	ErrorHandling  ErrorHandling  `json:"errorHandling,omitempty" yaml:"errorHandling,omitempty"`
}

// Option is a named choice the adopting project makes (e.g. servicePattern).
type Option struct {
	Choices     []string `json:"choices" yaml:"choices"`
	Default     string   `json:"default" yaml:"default"`
	Description string   `json:"description,omitempty" yaml:"description,omitempty"`
}

// Allows reports whether value is one of the option's choices.
func (o Option) Allows(value string) bool {
	for _, choice := range o.Choices {
		if choice == value {
			return true
		}
	}
	return false
}

// LayerSpec describes one responsibility boundary.
type LayerSpec struct {
	Name             string                     `json:"name" yaml:"name"`
	Purpose          string                     `json:"purpose,omitempty" yaml:"purpose,omitempty"`
	Responsibilities []string                   `json:"responsibilities,omitempty" yaml:"responsibilities,omitempty"`
	Restrictions     []string                   `json:"restrictions,omitempty" yaml:"restrictions,omitempty"`
	Dependencies     Dependencies               `json:"dependencies" yaml:"dependencies"`
	Interface        *Interface                 `json:"interface,omitempty" yaml:"interface,omitempty"`
	Conventions      map[string]LayerConvention `json:"conventions,omitempty" yaml:"conventions,omitempty"`
	AIHints          []string                   `json:"aiHints,omitempty" yaml:"aiHints,omitempty"`
}

// Dependencies lists what a layer may and may not import.
type Dependencies struct {
	CanImport    []string `json:"canImport,omitempty" yaml:"canImport,omitempty"`
	CannotImport []string `json:"cannotImport,omitempty" yaml:"cannotImport,omitempty"`
}

// Allows reports whether target is on the allow-list.
func (d Dependencies) Allows(target string) bool {
	return containsString(d.CanImport, target)
}

// Forbids reports whether target is on the deny-list.
func (d Dependencies) Forbids(target string) bool {
	return containsString(d.CannotImport, target)
}

// Interface is the contract a layer exposes to its callers.
type Interface struct {
	Methods       []MethodPattern `json:"methods,omitempty" yaml:"methods,omitempty"`
	ReturnTypes   string          `json:"returnTypes,omitempty" yaml:"returnTypes,omitempty"`
	ErrorHandling string          `json:"errorHandling,omitempty" yaml:"errorHandling,omitempty"`
}

// MethodPattern is a method naming pattern such as get{Resource}ById.
type MethodPattern struct {
	Pattern    string `json:"pattern" yaml:"pattern"`
	Parameters string `json:"parameters,omitempty" yaml:"parameters,omitempty"`
	ReturnType string `json:"returnType,omitempty" yaml:"returnType,omitempty"`
	Async      bool   `json:"async,omitempty" yaml:"async,omitempty"`
}

// LayerConvention documents a naming or structural convention for a layer.
type LayerConvention struct {
	Pattern     string `json:"pattern" yaml:"pattern"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
	Example     string `json:"example,omitempty" yaml:"example,omitempty"`
}

// LayerTemplate holds the code template for one layer (or helper such as a
// producer) of the architecture.
type LayerTemplate struct {
	FileNamePattern    string            `json:"fileNamePattern" yaml:"fileNamePattern"`
	Template           string            `json:"template" yaml:"template"`
	ContextHints       []string          `json:"contextHints,omitempty" yaml:"contextHints,omitempty"`
	Constraints        []string          `json:"constraints,omitempty" yaml:"constraints,omitempty"`
	Imports            []ImportTemplate  `json:"imports,omitempty" yaml:"imports,omitempty"`
	DataAccessVariants map[string]string `json:"dataAccessVariants,omitempty" yaml:"dataAccessVariants,omitempty"`
}

// Body returns the template body for the given data access variant. An empty
// variant selects the default template.
func (t LayerTemplate) Body(variant string) (string, bool) {
	if variant == "" {
		return t.Template, true
	}
	body, ok := t.DataAccessVariants[variant]
	return body, ok
}

// ImportTemplate is an import statement emitted with a template.
type ImportTemplate struct {
	Condition string `json:"condition,omitempty" yaml:"condition,omitempty"`
	Statement string `json:"statement" yaml:"statement"`
}

// Rules groups the architecture's rule sets.
type Rules struct {
	Required    []Rule       `json:"required,omitempty" yaml:"required,omitempty"`
	Forbidden   []Rule       `json:"forbidden,omitempty" yaml:"forbidden,omitempty"`
	Conventions []Convention `json:"conventions,omitempty" yaml:"conventions,omitempty"`
}

// Rule is a single required or forbidden constraint.
type Rule struct {
	ID       string   `json:"id" yaml:"id"`
	Layer    string   `json:"layer" yaml:"layer"`
	Rule     string   `json:"rule" yaml:"rule"`
	Severity Severity `json:"severity" yaml:"severity"`
	Category string   `json:"category,omitempty" yaml:"category,omitempty"`
}

// AppliesTo reports whether the rule is scoped to layer.
func (r Rule) AppliesTo(layer string) bool {
	return r.Layer == WildcardLayer || r.Layer == layer
}

// ConventionAspect classifies conventions.
type ConventionAspect string

const (
	AspectNaming       ConventionAspect = "naming"
	AspectStructure    ConventionAspect = "structure"
	AspectPatterns     ConventionAspect = "patterns"
	AspectDependencies ConventionAspect = "dependencies"
)

// Convention is descriptive guidance that is carried but not evaluated.
type Convention struct {
	Aspect      ConventionAspect `json:"aspect" yaml:"aspect"`
	Description string           `json:"description" yaml:"description"`
	Examples    []string         `json:"examples,omitempty" yaml:"examples,omitempty"`
}

// StyleGuide references the code style the architecture expects.
type StyleGuide struct {
	Language    string   `json:"language" yaml:"language"`
	Guide       string   `json:"guide" yaml:"guide"`
	CustomRules []string `json:"customRules,omitempty" yaml:"customRules,omitempty"`
	LintConfig  string   `json:"lintConfig,omitempty" yaml:"lintConfig,omitempty"`
}

// AIGuidance is free-form context handed to coding agents.
type AIGuidance struct {
	Memories           []string          `json:"memories,omitempty" yaml:"memories,omitempty"`
	Conventions        []string          `json:"conventions,omitempty" yaml:"conventions,omitempty"`
	PreferredLibraries map[string]string `json:"preferredLibraries,omitempty" yaml:"preferredLibraries,omitempty"`
	AntiPatterns       []string          `json:"antiPatterns,omitempty" yaml:"antiPatterns,omitempty"`
	ExamplePaths       map[string]string `json:"examplePaths,omitempty" yaml:"examplePaths,omitempty"`
}

// TaskTemplate decomposes a common operation into ordered steps.
type TaskTemplate struct {
	ID              string     `json:"id" yaml:"id"`
	TaskType        string     `json:"taskType,omitempty" yaml:"taskType,omitempty"`
	Description     string     `json:"description,omitempty" yaml:"description,omitempty"`
	Steps           []TaskStep `json:"steps" yaml:"steps"`
	Constraints     []string   `json:"constraints,omitempty" yaml:"constraints,omitempty"`
	RequiredContext []string   `json:"requiredContext,omitempty" yaml:"requiredContext,omitempty"`
}

// TaskStep is one step of a task template.
type TaskStep struct {
	Order       int    `json:"order" yaml:"order"`
	Description string `json:"description" yaml:"description"`
	Layer       string `json:"layer" yaml:"layer"`
	Template    string `json:"template,omitempty" yaml:"template,omitempty"`
	Validation  string `json:"validation,omitempty" yaml:"validation,omitempty"`
}

// Layer returns the named layer spec.
func (s ArchitectureSpec) Layer(name string) (LayerSpec, bool) {
	for _, layer := range s.Layers {
		if layer.Name == name {
			return layer, true
		}
	}
	return LayerSpec{}, false
}

// LayerNames returns layer names in declaration order.
func (s ArchitectureSpec) LayerNames() []string {
	names := make([]string, 0, len(s.Layers))
	for _, layer := range s.Layers {
		names = append(names, layer.Name)
	}
	return names
}

// LayerIndex returns the position of name in base.layers, or -1.
func (s ArchitectureSpec) LayerIndex(name string) int {
	for idx, layer := range s.Base.Layers {
		if layer == name {
			return idx
		}
	}
	return -1
}

// TaskTemplate returns the task template with the given id.
func (s ArchitectureSpec) TaskTemplate(id string) (TaskTemplate, bool) {
	for _, task := range s.TaskTemplates {
		if task.ID == id {
			return task, true
		}
	}
	return TaskTemplate{}, false
}

// AllRules returns required rules followed by forbidden rules.
func (r Rules) AllRules() []Rule {
	out := make([]Rule, 0, len(r.Required)+len(r.Forbidden))
	out = append(out, r.Required...)
	out = append(out, r.Forbidden...)
	return out
}

func containsString(values []string, target string) bool {
	for _, v := range values {
		if v == target {
			return true
		}
	}
	return false
}

func trimAll(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	out := make([]string, 0, len(values))
	for _, v := range values {
		trimmed := strings.TrimSpace(v)
		if trimmed == "" {
			continue
		}
		out = append(out, trimmed)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// LayerDirectory returns the conventional directory for a layer in
// layer-grouped projects, e.g. controllers or repositories.
func LayerDirectory(layer string) string {
	layer = strings.TrimSpace(layer)
	n := len(layer)
	switch {
	case n == 0:
		return ""
	case n > 1 && layer[n-1] == 'y' && !strings.ContainsRune("aeiou", rune(layer[n-2])):
		return layer[:n-1] + "ies"
	case strings.HasSuffix(layer, "s"), strings.HasSuffix(layer, "x"), strings.HasSuffix(layer, "ch"), strings.HasSuffix(layer, "sh"):
		return layer + "es"
	}
	return layer + "s"
}

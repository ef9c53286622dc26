package spec

import "strings"

// Normalized returns a trimmed deep copy of the spec. Enum values are
// lower-cased and blank map keys dropped; template bodies are kept verbatim.
func (s ArchitectureSpec) Normalized() ArchitectureSpec {
	clone := ArchitectureSpec{
		ID:          strings.TrimSpace(s.ID),
		Name:        strings.TrimSpace(s.Name),
		Description: strings.TrimSpace(s.Description),
		Version:     strings.TrimSpace(s.Version),
		Base: Base{
			Layers:         trimAll(s.Base.Layers),
			DependencyFlow: DependencyFlow(normalizeEnum(string(s.Base.DependencyFlow))),
			ErrorHandling:  ErrorHandling(normalizeEnum(string(s.Base.ErrorHandling))),
		},
		Rules: s.Rules.normalized(),
	}
	if len(s.Options) > 0 {
		clone.Options = make(map[string]Option, len(s.Options))
		for key, opt := range s.Options {
			trimmed := strings.TrimSpace(key)
			if trimmed == "" {
				continue
			}
			clone.Options[trimmed] = Option{
				Choices:     trimAll(opt.Choices),
				Default:     strings.TrimSpace(opt.Default),
				Description: strings.TrimSpace(opt.Description),
			}
		}
	}
	if len(s.Layers) > 0 {
		clone.Layers = make([]LayerSpec, len(s.Layers))
		for i, layer := range s.Layers {
			clone.Layers[i] = layer.normalized()
		}
	}
	if len(s.Templates) > 0 {
		clone.Templates = make(map[string]LayerTemplate, len(s.Templates))
		for key, tmpl := range s.Templates {
			trimmed := strings.TrimSpace(key)
			if trimmed == "" {
				continue
			}
			clone.Templates[trimmed] = tmpl.clone()
		}
	}
	if s.Style != nil {
		style := StyleGuide{
			Language:    strings.TrimSpace(s.Style.Language),
			Guide:       normalizeEnum(s.Style.Guide),
			CustomRules: trimAll(s.Style.CustomRules),
			LintConfig:  strings.TrimSpace(s.Style.LintConfig),
		}
		clone.Style = &style
	}
	if s.AIGuidance != nil {
		guidance := AIGuidance{
			Memories:           trimAll(s.AIGuidance.Memories),
			Conventions:        trimAll(s.AIGuidance.Conventions),
			PreferredLibraries: trimMap(s.AIGuidance.PreferredLibraries),
			AntiPatterns:       trimAll(s.AIGuidance.AntiPatterns),
			ExamplePaths:       trimMap(s.AIGuidance.ExamplePaths),
		}
		clone.AIGuidance = &guidance
	}
	if len(s.TaskTemplates) > 0 {
		clone.TaskTemplates = make([]TaskTemplate, len(s.TaskTemplates))
		for i, task := range s.TaskTemplates {
			clone.TaskTemplates[i] = task.normalized()
		}
	}
	return clone
}

func (l LayerSpec) normalized() LayerSpec {
	clone := LayerSpec{
		Name:             strings.TrimSpace(l.Name),
		Purpose:          strings.TrimSpace(l.Purpose),
		Responsibilities: trimAll(l.Responsibilities),
		Restrictions:     trimAll(l.Restrictions),
		Dependencies: Dependencies{
			CanImport:    trimAll(l.Dependencies.CanImport),
			CannotImport: trimAll(l.Dependencies.CannotImport),
		},
		AIHints: trimAll(l.AIHints),
	}
	if l.Interface != nil {
		iface := Interface{
			ReturnTypes:   strings.TrimSpace(l.Interface.ReturnTypes),
			ErrorHandling: strings.TrimSpace(l.Interface.ErrorHandling),
		}
		if len(l.Interface.Methods) > 0 {
			iface.Methods = make([]MethodPattern, len(l.Interface.Methods))
			for i, m := range l.Interface.Methods {
				iface.Methods[i] = MethodPattern{
					Pattern:    strings.TrimSpace(m.Pattern),
					Parameters: strings.TrimSpace(m.Parameters),
					ReturnType: strings.TrimSpace(m.ReturnType),
					Async:      m.Async,
				}
			}
		}
		clone.Interface = &iface
	}
	if len(l.Conventions) > 0 {
		clone.Conventions = make(map[string]LayerConvention, len(l.Conventions))
		for key, conv := range l.Conventions {
			trimmed := strings.TrimSpace(key)
			if trimmed == "" {
				continue
			}
			clone.Conventions[trimmed] = LayerConvention{
				Pattern:     strings.TrimSpace(conv.Pattern),
				Description: strings.TrimSpace(conv.Description),
				Example:     strings.TrimSpace(conv.Example),
			}
		}
	}
	return clone
}

func (t LayerTemplate) clone() LayerTemplate {
	clone := LayerTemplate{
		FileNamePattern: strings.TrimSpace(t.FileNamePattern),
		Template:        t.Template,
		ContextHints:    trimAll(t.ContextHints),
		Constraints:     trimAll(t.Constraints),
	}
	if len(t.Imports) > 0 {
		clone.Imports = make([]ImportTemplate, len(t.Imports))
		for i, imp := range t.Imports {
			clone.Imports[i] = ImportTemplate{
				Condition: strings.TrimSpace(imp.Condition),
				Statement: strings.TrimSpace(imp.Statement),
			}
		}
	}
	if len(t.DataAccessVariants) > 0 {
		clone.DataAccessVariants = make(map[string]string, len(t.DataAccessVariants))
		for key, body := range t.DataAccessVariants {
			trimmed := strings.TrimSpace(key)
			if trimmed == "" {
				continue
			}
			clone.DataAccessVariants[trimmed] = body
		}
	}
	return clone
}

func (r Rules) normalized() Rules {
	clone := Rules{
		Required:  normalizeRules(r.Required),
		Forbidden: normalizeRules(r.Forbidden),
	}
	if len(r.Conventions) > 0 {
		clone.Conventions = make([]Convention, len(r.Conventions))
		for i, conv := range r.Conventions {
			clone.Conventions[i] = Convention{
				Aspect:      ConventionAspect(normalizeEnum(string(conv.Aspect))),
				Description: strings.TrimSpace(conv.Description),
				Examples:    trimAll(conv.Examples),
			}
		}
	}
	return clone
}

func normalizeRules(rules []Rule) []Rule {
	if len(rules) == 0 {
		return nil
	}
	out := make([]Rule, len(rules))
	for i, rule := range rules {
		out[i] = Rule{
			ID:       strings.TrimSpace(rule.ID),
			Layer:    strings.TrimSpace(rule.Layer),
			Rule:     strings.TrimSpace(rule.Rule),
			Severity: Severity(normalizeEnum(string(rule.Severity))),
			Category: strings.TrimSpace(rule.Category),
		}
	}
	return out
}

func (t TaskTemplate) normalized() TaskTemplate {
	clone := TaskTemplate{
		ID:              strings.TrimSpace(t.ID),
		TaskType:        strings.TrimSpace(t.TaskType),
		Description:     strings.TrimSpace(t.Description),
		Constraints:     trimAll(t.Constraints),
		RequiredContext: trimAll(t.RequiredContext),
	}
	if len(t.Steps) > 0 {
		clone.Steps = make([]TaskStep, len(t.Steps))
		for i, step := range t.Steps {
			clone.Steps[i] = TaskStep{
				Order:       step.Order,
				Description: strings.TrimSpace(step.Description),
				Layer:       strings.TrimSpace(step.Layer),
				Template:    strings.TrimSpace(step.Template),
				Validation:  strings.TrimSpace(step.Validation),
			}
		}
	}
	return clone
}

func normalizeEnum(value string) string {
	return strings.ToLower(strings.TrimSpace(value))
}

func trimMap(values map[string]string) map[string]string {
	if len(values) == 0 {
		return nil
	}
	out := make(map[string]string, len(values))
	for key, value := range values {
		trimmed := strings.TrimSpace(key)
		if trimmed == "" {
			continue
		}
		out[trimmed] = strings.TrimSpace(value)
	}
	return out
}

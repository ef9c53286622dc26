// Package planner turns a task template into an ordered checklist of
// concrete steps for a given binding. It never executes anything.
package planner

import (
	"errors"
	"fmt"
	"strings"

	"github.com/kingrea/archspec/internal/depcheck"
	"github.com/kingrea/archspec/internal/placeholder"
	"github.com/kingrea/archspec/internal/rules"
	"github.com/kingrea/archspec/internal/spec"
)

var (
	// ErrBindingMissing is wrapped by *BindingMissingError.
	ErrBindingMissing = errors.New("planner: binding missing")
	// ErrStepOrder reports step orders that are not strictly increasing.
	ErrStepOrder = errors.New("planner: step orders must be strictly increasing")
	// ErrUnknownTask reports a task id the spec does not define.
	ErrUnknownTask = errors.New("planner: unknown task template")
)

// BindingMissingError names the first placeholder the binding cannot
// resolve and the step it appears in.
type BindingMissingError struct {
	TaskID    string
	StepOrder int
	Field     string
	Token     string
	Missing   []string
}

func (e *BindingMissingError) Error() string {
	return fmt.Sprintf("planner: task %s step %d %s references unbound placeholder %s", e.TaskID, e.StepOrder, e.Field, e.Token)
}

func (e *BindingMissingError) Unwrap() error { return ErrBindingMissing }

// PlannedStep is one resolved step.
type PlannedStep struct {
	Order       int                  `json:"order"`
	Layer       string               `json:"layer"`
	Description string               `json:"description"`
	Template    string               `json:"template,omitempty"`
	Validation  string               `json:"validation,omitempty"`
	Failures    []rules.Result       `json:"failures,omitempty"`
	Violations  []depcheck.Violation `json:"violations,omitempty"`
}

// Done reports whether nothing blocks the step.
func (s PlannedStep) Done() bool {
	return len(s.Failures) == 0 && len(s.Violations) == 0
}

// Plan resolves every step of task against binding. It is all or nothing:
// on any unresolved placeholder no steps are returned.
func Plan(task spec.TaskTemplate, binding placeholder.Binding) ([]PlannedStep, error) {
	if err := task.CheckOrder(); err != nil {
		return nil, fmt.Errorf("%w: task %s: %v", ErrStepOrder, task.ID, err)
	}
	steps := make([]PlannedStep, 0, len(task.Steps))
	for _, step := range task.Steps {
		planned := PlannedStep{Order: step.Order, Layer: step.Layer}
		fields := []struct {
			name string
			in   string
			out  *string
		}{
			{"description", step.Description, &planned.Description},
			{"template", step.Template, &planned.Template},
			{"validation", step.Validation, &planned.Validation},
		}
		for _, field := range fields {
			resolved, err := placeholder.Resolve(field.in, binding)
			if err != nil {
				return nil, bindingError(task.ID, step.Order, field.name, err)
			}
			*field.out = resolved
		}
		steps = append(steps, planned)
	}
	return steps, nil
}

// PlanByID looks up a task template on s and plans it.
func PlanByID(s spec.ArchitectureSpec, taskID string, binding placeholder.Binding) ([]PlannedStep, error) {
	task, ok := s.TaskTemplate(taskID)
	if !ok {
		return nil, fmt.Errorf("%w: %s has no task template %s", ErrUnknownTask, s.ID, taskID)
	}
	return Plan(task, binding)
}

// Annotate attaches failed rule results and dependency violations to the
// steps of the layer they concern. Wildcard rule failures attach to every
// step. The input slice is not modified.
func Annotate(steps []PlannedStep, results []rules.Result, violations []depcheck.Violation) []PlannedStep {
	out := make([]PlannedStep, len(steps))
	for i, step := range steps {
		step.Failures = nil
		step.Violations = nil
		for _, r := range results {
			if r.Status == rules.StatusFail && (r.Layer == step.Layer || r.Layer == spec.WildcardLayer) {
				step.Failures = append(step.Failures, r)
			}
		}
		for _, v := range violations {
			if v.From == step.Layer {
				step.Violations = append(step.Violations, v)
			}
		}
		out[i] = step
	}
	return out
}

// Checklist renders steps as a markdown task list.
func Checklist(steps []PlannedStep) string {
	var sb strings.Builder
	for _, step := range steps {
		suffix := ""
		if !step.Done() {
			suffix = " (blocked)"
		}
		fmt.Fprintf(&sb, "- [ ] %d. [%s] %s%s\n", step.Order, step.Layer, step.Description, suffix)
		if step.Template != "" {
			fmt.Fprintf(&sb, "  - template: %s\n", step.Template)
		}
		if step.Validation != "" {
			fmt.Fprintf(&sb, "  - validate: %s\n", step.Validation)
		}
		for _, r := range step.Failures {
			fmt.Fprintf(&sb, "  - %s %s: %s\n", r.Severity, r.RuleID, r.Detail)
		}
		for _, v := range step.Violations {
			fmt.Fprintf(&sb, "  - %s\n", v)
		}
	}
	return sb.String()
}

func bindingError(taskID string, order int, field string, err error) error {
	var uerr *placeholder.UnresolvedError
	if errors.As(err, &uerr) {
		return &BindingMissingError{TaskID: taskID, StepOrder: order, Field: field, Token: uerr.Token, Missing: uerr.Missing}
	}
	return fmt.Errorf("planner: task %s step %d: %w", taskID, order, err)
}

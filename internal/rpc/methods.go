package rpc

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/kingrea/archspec/internal/depcheck"
	"github.com/kingrea/archspec/internal/facts"
	"github.com/kingrea/archspec/internal/placeholder"
	"github.com/kingrea/archspec/internal/planner"
	"github.com/kingrea/archspec/internal/rules"
	"github.com/kingrea/archspec/internal/scaffold"
)

// SpecSummary is one entry of spec.list.
type SpecSummary struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Layers      []string `json:"layers"`
	Options     []string `json:"options,omitempty"`
	Tasks       []string `json:"tasks,omitempty"`
}

type idParams struct {
	ID string `json:"id"`
}

type optionParams struct {
	ID    string `json:"id"`
	Key   string `json:"key"`
	Value string `json:"value"`
}

type resolveOptionsParams struct {
	ID        string            `json:"id"`
	Overrides map[string]string `json:"overrides,omitempty"`
}

type resolveParams struct {
	Template string              `json:"template"`
	Binding  placeholder.Binding `json:"binding"`
}

type renderParams struct {
	ID         string              `json:"id"`
	Layer      string              `json:"layer,omitempty"`
	Binding    placeholder.Binding `json:"binding"`
	Variant    string              `json:"variant,omitempty"`
	Pattern    string              `json:"pattern,omitempty"`
	Structure  string              `json:"structure,omitempty"`
	Root       string              `json:"root,omitempty"`
	Conditions []string            `json:"conditions,omitempty"`
	FileNames  map[string]string   `json:"fileNames,omitempty"`
}

type importParams struct {
	ID   string `json:"id"`
	From string `json:"from"`
	To   string `json:"to"`
}

type graphParams struct {
	ID    string          `json:"id"`
	Edges []depcheck.Edge `json:"edges"`
}

type scanParams struct {
	ID   string `json:"id"`
	Root string `json:"root"`
}

type evaluateParams struct {
	ID    string          `json:"id"`
	Facts *facts.Snapshot `json:"facts,omitempty"`
}

type planParams struct {
	ID      string              `json:"id"`
	Task    string              `json:"task"`
	Binding placeholder.Binding `json:"binding"`
	Facts   *facts.Snapshot     `json:"facts,omitempty"`
}

// ImportResult answers deps.checkImport.
type ImportResult struct {
	Allowed    bool                 `json:"allowed"`
	Violations []depcheck.Violation `json:"violations,omitempty"`
}

// EvaluateResult answers rules.evaluate.
type EvaluateResult struct {
	Results []rules.Result `json:"results"`
	Summary rules.Summary  `json:"summary"`
}

// PlanResult answers plan.build.
type PlanResult struct {
	Steps     []planner.PlannedStep `json:"steps"`
	Checklist string                `json:"checklist"`
}

func (s *Server) specList(context.Context, json.RawMessage) (any, error) {
	specs := s.reg.Specs()
	out := make([]SpecSummary, 0, len(specs))
	for _, as := range specs {
		summary := SpecSummary{ID: as.ID, Name: as.Name, Description: as.Description, Layers: as.Base.Layers}
		for key := range as.Options {
			summary.Options = append(summary.Options, key)
		}
		sortStrings(summary.Options)
		for _, task := range as.TaskTemplates {
			summary.Tasks = append(summary.Tasks, task.ID)
		}
		out = append(out, summary)
	}
	return out, nil
}

func (s *Server) specGet(_ context.Context, raw json.RawMessage) (any, error) {
	var p idParams
	if err := decode(raw, &p); err != nil {
		return nil, err
	}
	return s.reg.Get(p.ID)
}

func (s *Server) specValidateOption(_ context.Context, raw json.RawMessage) (any, error) {
	var p optionParams
	if err := decode(raw, &p); err != nil {
		return nil, err
	}
	if err := s.reg.ValidateOption(p.ID, p.Key, p.Value); err != nil {
		return nil, err
	}
	return map[string]bool{"valid": true}, nil
}

func (s *Server) specResolveOptions(_ context.Context, raw json.RawMessage) (any, error) {
	var p resolveOptionsParams
	if err := decode(raw, &p); err != nil {
		return nil, err
	}
	return s.reg.ResolveOptions(p.ID, p.Overrides)
}

func (s *Server) templateResolve(_ context.Context, raw json.RawMessage) (any, error) {
	var p resolveParams
	if err := decode(raw, &p); err != nil {
		return nil, err
	}
	text, err := placeholder.Resolve(p.Template, p.Binding)
	if err != nil {
		return nil, err
	}
	return map[string]string{"text": text}, nil
}

func (s *Server) templateRender(_ context.Context, raw json.RawMessage) (any, error) {
	var p renderParams
	if err := decode(raw, &p); err != nil {
		return nil, err
	}
	as, err := s.reg.Get(p.ID)
	if err != nil {
		return nil, err
	}
	opts := scaffold.Options{
		Variant:    p.Variant,
		Pattern:    p.Pattern,
		Structure:  scaffold.Structure(p.Structure),
		Root:       p.Root,
		Conditions: p.Conditions,
		FileNames:  p.FileNames,
	}
	if p.Layer == "" {
		return scaffold.RenderAll(as, p.Binding, opts)
	}
	f, err := scaffold.Render(as, p.Layer, p.Binding, opts)
	if err != nil {
		return nil, err
	}
	return []scaffold.File{f}, nil
}

func (s *Server) depsCheckImport(_ context.Context, raw json.RawMessage) (any, error) {
	var p importParams
	if err := decode(raw, &p); err != nil {
		return nil, err
	}
	as, err := s.reg.Get(p.ID)
	if err != nil {
		return nil, err
	}
	violations := depcheck.CheckImport(as, p.From, p.To)
	return ImportResult{Allowed: len(violations) == 0, Violations: violations}, nil
}

func (s *Server) depsCheckGraph(_ context.Context, raw json.RawMessage) (any, error) {
	var p graphParams
	if err := decode(raw, &p); err != nil {
		return nil, err
	}
	as, err := s.reg.Get(p.ID)
	if err != nil {
		return nil, err
	}
	return depcheck.CheckGraph(as, p.Edges), nil
}

func (s *Server) factsScan(ctx context.Context, raw json.RawMessage) (any, error) {
	var p scanParams
	if err := decode(raw, &p); err != nil {
		return nil, err
	}
	if p.Root == "" {
		return nil, invalidParamsError{errors.New("root is required")}
	}
	as, err := s.reg.Get(p.ID)
	if err != nil {
		return nil, err
	}
	opts := append([]facts.ScanOption{facts.WithScanLogger(s.logger)}, s.scan...)
	set, err := facts.NewScanner(as, opts...).Scan(ctx, p.Root)
	if err != nil {
		return nil, err
	}
	return set.Snapshot(), nil
}

func (s *Server) rulesEvaluate(_ context.Context, raw json.RawMessage) (any, error) {
	var p evaluateParams
	if err := decode(raw, &p); err != nil {
		return nil, err
	}
	as, err := s.reg.Get(p.ID)
	if err != nil {
		return nil, err
	}
	results := s.table.Evaluate(as, factSet(p.Facts))
	return EvaluateResult{Results: results, Summary: rules.Summarize(results)}, nil
}

func (s *Server) planBuild(_ context.Context, raw json.RawMessage) (any, error) {
	var p planParams
	if err := decode(raw, &p); err != nil {
		return nil, err
	}
	as, err := s.reg.Get(p.ID)
	if err != nil {
		return nil, err
	}
	steps, err := planner.PlanByID(as, p.Task, p.Binding)
	if err != nil {
		return nil, err
	}
	if p.Facts != nil {
		set := factSet(p.Facts)
		report := depcheck.CheckGraph(as, set.Edges())
		steps = planner.Annotate(steps, s.table.Evaluate(as, set), report.Violations)
	}
	return PlanResult{Steps: steps, Checklist: planner.Checklist(steps)}, nil
}

func factSet(snap *facts.Snapshot) *facts.Set {
	if snap == nil {
		return facts.NewSet()
	}
	return facts.FromSnapshot(*snap)
}

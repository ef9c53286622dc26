package catalog

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/kingrea/archspec/internal/depcheck"
	"github.com/kingrea/archspec/internal/placeholder"
	"github.com/kingrea/archspec/internal/planner"
	"github.com/kingrea/archspec/internal/registry"
	"github.com/kingrea/archspec/internal/rules"
	"github.com/kingrea/archspec/internal/scaffold"
	"github.com/kingrea/archspec/internal/spec"
)

const miniSpec = `id: mini
name: Mini
base:
  layers: [handler, store]
  dependencyFlow: unidirectional
layers:
  - name: handler
    dependencies:
      canImport: [store]
  - name: store
    dependencies:
      canImport: [database]
rules:
  required:
    - id: dependency-direction
      layer: "*"
      rule: Handlers call stores, never the reverse
      severity: error
`

func loadBuiltin(t *testing.T) *registry.Registry {
	t.Helper()
	reg, err := registry.Load(context.Background(), []registry.Source{Builtin()})
	if err != nil {
		t.Fatalf("load builtin catalog: %v", err)
	}
	return reg
}

func TestBuiltinCatalogValidates(t *testing.T) {
	reg := loadBuiltin(t)
	want := []string{"controller-service-repository", "queue-architecture"}
	if diff := cmp.Diff(want, reg.IDs()); diff != "" {
		t.Fatalf("ids (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(want, BuiltinIDs()); diff != "" {
		t.Fatalf("builtin ids (-want +got):\n%s", diff)
	}
	queue, err := reg.Get("queue-architecture")
	if err != nil {
		t.Fatalf("get queue: %v", err)
	}
	if queue.Options["queueBackend"].Default != "bullmq" || len(queue.Options) != 5 {
		t.Fatalf("unexpected queue options: %+v", queue.Options)
	}
	if got := len(queue.TaskTemplates); got != 2 {
		t.Fatalf("expected two queue task templates, got %d", got)
	}
}

func TestBuiltinCSRDependencies(t *testing.T) {
	csr, err := loadBuiltin(t).Get("controller-service-repository")
	if err != nil {
		t.Fatalf("get csr: %v", err)
	}
	cases := []struct {
		from, to string
		want     []depcheck.Kind
	}{
		{"controller", "service", nil},
		{"service", "repository", nil},
		{"controller", "repository", []depcheck.Kind{depcheck.KindForbidden}},
		{"repository", "service", []depcheck.Kind{depcheck.KindForbidden, depcheck.KindDirection}},
		{"service", "express", []depcheck.Kind{depcheck.KindForbidden}},
		{"repository", "database", nil},
	}
	for _, tc := range cases {
		var got []depcheck.Kind
		for _, v := range depcheck.CheckImport(csr, tc.from, tc.to) {
			got = append(got, v.Kind)
		}
		if diff := cmp.Diff(tc.want, got); diff != "" {
			t.Fatalf("%s -> %s (-want +got):\n%s", tc.from, tc.to, diff)
		}
	}
}

func TestBuiltinTemplatesAndTasksResolve(t *testing.T) {
	reg := loadBuiltin(t)
	csr, _ := reg.Get("controller-service-repository")
	files, err := scaffold.RenderAll(csr, placeholder.Binding{"ResourceName": "Order"}, scaffold.Options{Variant: "prisma"})
	if err != nil {
		t.Fatalf("render csr: %v", err)
	}
	var paths []string
	for _, f := range files {
		paths = append(paths, f.Path)
	}
	if diff := cmp.Diff([]string{"order.controller.ts", "order.service.ts", "order.repository.ts"}, paths); diff != "" {
		t.Fatalf("paths (-want +got):\n%s", diff)
	}
	if !strings.HasPrefix(files[0].Content, "import { Request, Response, NextFunction } from 'express';") {
		t.Fatalf("controller should start with the express import:\n%s", files[0].Content)
	}
	if !strings.Contains(files[2].Content, "PrismaOrderRepository") {
		t.Fatalf("repository should use the prisma variant:\n%s", files[2].Content)
	}

	steps, err := planner.PlanByID(csr, "add-crud-endpoint", placeholder.Binding{"ResourceName": "Order"})
	if err != nil {
		t.Fatalf("plan csr: %v", err)
	}
	if steps[4].Description != "Create /orders controller endpoints" {
		t.Fatalf("unexpected step 5: %q", steps[4].Description)
	}

	queue, _ := reg.Get("queue-architecture")
	f, err := scaffold.Render(queue, "consumer", placeholder.Binding{"QueueName": "email"}, scaffold.Options{Pattern: "functional"})
	if err != nil {
		t.Fatalf("render consumer: %v", err)
	}
	if f.Path != "email.consumer.ts" || !strings.Contains(f.Content, "processEmailMessage") {
		t.Fatalf("unexpected functional consumer: %s\n%s", f.Path, f.Content)
	}
	if _, err := planner.PlanByID(queue, "add-scheduled-job", placeholder.Binding{"JobName": "nightly-report"}); err != nil {
		t.Fatalf("plan queue: %v", err)
	}
}

func TestBuiltinTemplatesRenderEveryBackendChoice(t *testing.T) {
	reg := loadBuiltin(t)
	binding := placeholder.Binding{"ResourceName": "Order", "QueueName": "email", "JobName": "nightly-report"}
	for _, s := range reg.Specs() {
		var backend spec.Option
		for _, key := range []string{"dataAccess", "queueBackend"} {
			if opt, ok := s.Options[key]; ok {
				backend = opt
			}
		}
		if len(backend.Choices) == 0 {
			t.Fatalf("%s: no backend option", s.ID)
		}
		for key, tpl := range s.Templates {
			if len(tpl.DataAccessVariants) == 0 {
				continue
			}
			for variant := range tpl.DataAccessVariants {
				if !backend.Allows(variant) {
					t.Fatalf("%s: template %s offers %s, which is not a backend choice", s.ID, key, variant)
				}
			}
		}
		for _, choice := range backend.Choices {
			variant := choice
			if variant == "none" {
				variant = ""
			}
			layers := append([]string{}, s.Base.Layers...)
			if _, ok := s.Templates["producer"]; ok {
				layers = append(layers, "producer")
			}
			for _, layer := range layers {
				f, err := scaffold.Render(s, layer, binding, scaffold.Options{Variant: variant})
				if errors.Is(err, scaffold.ErrNoTemplate) {
					continue
				}
				if err != nil {
					t.Fatalf("%s: render %s with %q: %v", s.ID, layer, choice, err)
				}
				if strings.Contains(f.Content, "{{") {
					t.Fatalf("%s: %s with %q left a token:\n%s", s.ID, layer, choice, f.Content)
				}
			}
			if _, err := scaffold.RenderAll(s, binding, scaffold.Options{Variant: variant}); err != nil {
				t.Fatalf("%s: render all with %q: %v", s.ID, choice, err)
			}
		}
	}

	queue, _ := reg.Get("queue-architecture")
	f, err := scaffold.Render(queue, "queue-manager", binding, scaffold.Options{Variant: "rabbitmq"})
	if err != nil {
		t.Fatalf("render queue-manager: %v", err)
	}
	if !strings.Contains(f.Content, "RabbitMQQueueManager") {
		t.Fatalf("queue-manager should use the rabbitmq variant:\n%s", f.Content)
	}
	csr, _ := reg.Get("controller-service-repository")
	f, err = scaffold.Render(csr, "repository", binding, scaffold.Options{Variant: "knex"})
	if err != nil || !strings.Contains(f.Content, "KnexOrderRepository") {
		t.Fatalf("repository should use the knex variant (%v):\n%s", err, f.Content)
	}
}

func TestBuiltinRulesEvaluateWithoutFacts(t *testing.T) {
	reg := loadBuiltin(t)
	for _, s := range reg.Specs() {
		results := rules.Evaluate(s, nil)
		if len(results) != len(s.Rules.AllRules()) {
			t.Fatalf("%s: expected one result per rule", s.ID)
		}
		for _, r := range results {
			if r.Status != rules.StatusUnevaluable {
				t.Fatalf("%s: %s should be unevaluable without facts, got %s", s.ID, r.RuleID, r.Status)
			}
		}
	}
}

func TestDirAndFileSources(t *testing.T) {
	missing := Dir(filepath.Join(t.TempDir(), "absent"))
	specs, err := missing.Load(context.Background())
	if err != nil || specs != nil {
		t.Fatalf("missing dir should yield no specs, got %v, %v", specs, err)
	}

	root := t.TempDir()
	nested := filepath.Join(root, "team", "mini.yml")
	if err := os.MkdirAll(filepath.Dir(nested), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(nested, []byte(miniSpec), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := os.WriteFile(filepath.Join(root, "README.md"), []byte("# not a spec"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	reg, err := registry.Load(context.Background(), []registry.Source{Builtin(), Dir(root)})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !reg.Has("mini") || reg.Len() != 3 {
		t.Fatalf("expected builtin plus mini, got %v", reg.IDs())
	}

	_, err = registry.Load(context.Background(), []registry.Source{Dir(root), File(nested)})
	if !errors.Is(err, registry.ErrDuplicateSpecID) {
		t.Fatalf("expected duplicate id, got %v", err)
	}

	broken := filepath.Join(root, "broken.yaml")
	if err := os.WriteFile(broken, []byte("id: [unterminated"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := File(broken).Load(context.Background()); err == nil {
		t.Fatalf("expected parse error")
	}
}

func TestSQLiteStore(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "specs.db")
	store, err := OpenSQLite(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	mini, err := spec.ParseOneYAML([]byte(miniSpec))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	builtin, err := Builtin().Load(ctx)
	if err != nil {
		t.Fatalf("builtin: %v", err)
	}
	for _, s := range append(builtin, mini) {
		if err := store.Put(ctx, s); err != nil {
			t.Fatalf("put %s: %v", s.ID, err)
		}
	}
	mini.Name = "Mini v2"
	if err := store.Put(ctx, mini); err != nil {
		t.Fatalf("replace: %v", err)
	}
	got, err := store.Get(ctx, "mini")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Name != "Mini v2" {
		t.Fatalf("expected replaced document, got %q", got.Name)
	}
	if err := store.Delete(ctx, "queue-architecture"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := store.Delete(ctx, "queue-architecture"); !errors.Is(err, ErrNotStored) {
		t.Fatalf("expected ErrNotStored, got %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	reopened, err := OpenSQLite(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()
	reg, err := registry.Load(ctx, []registry.Source{reopened})
	if err != nil {
		t.Fatalf("load from store: %v", err)
	}
	if diff := cmp.Diff([]string{"controller-service-repository", "mini"}, reg.IDs()); diff != "" {
		t.Fatalf("ids (-want +got):\n%s", diff)
	}
	csr, _ := reg.Get("controller-service-repository")
	if diff := cmp.Diff(builtin[0], csr); diff != "" {
		t.Fatalf("stored spec differs (-want +got):\n%s", diff)
	}
}

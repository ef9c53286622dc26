package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/sourcegraph/jsonrpc2"

	"github.com/kingrea/archspec/internal/catalog"
	"github.com/kingrea/archspec/internal/depcheck"
	"github.com/kingrea/archspec/internal/facts"
	"github.com/kingrea/archspec/internal/placeholder"
	"github.com/kingrea/archspec/internal/registry"
	"github.com/kingrea/archspec/internal/rules"
	"github.com/kingrea/archspec/internal/scaffold"
)

const csrID = "controller-service-repository"

func newServer(t *testing.T) *Server {
	t.Helper()
	reg, err := registry.Load(context.Background(), []registry.Source{catalog.Builtin()})
	if err != nil {
		t.Fatalf("load catalog: %v", err)
	}
	return NewServer(reg)
}

func callError(t *testing.T, s *Server, method string, params any) *jsonrpc2.Error {
	t.Helper()
	_, err := s.Call(context.Background(), method, params)
	var rpcErr *jsonrpc2.Error
	if !errors.As(err, &rpcErr) {
		t.Fatalf("%s: expected *jsonrpc2.Error, got %v", method, err)
	}
	return rpcErr
}

func TestMethodsRegistered(t *testing.T) {
	want := []string{
		"deps.checkGraph", "deps.checkImport", "facts.scan", "plan.build", "rules.evaluate",
		"spec.get", "spec.list", "spec.resolveOptions", "spec.validateOption", "template.render", "template.resolve",
	}
	if diff := cmp.Diff(want, newServer(t).Methods()); diff != "" {
		t.Fatalf("methods (-want +got):\n%s", diff)
	}
}

func TestSpecMethods(t *testing.T) {
	s := newServer(t)
	out, err := s.Call(context.Background(), "spec.list", struct{}{})
	if err != nil {
		t.Fatalf("spec.list: %v", err)
	}
	list := out.([]SpecSummary)
	if len(list) != 2 || list[0].ID != csrID {
		t.Fatalf("unexpected list: %+v", list)
	}
	if diff := cmp.Diff([]string{"dataAccess", "repositoryReturns", "servicePattern"}, list[0].Options); diff != "" {
		t.Fatalf("options (-want +got):\n%s", diff)
	}

	if code := callError(t, s, "spec.get", idParams{ID: "hexagonal"}).Code; code != CodeSpecNotFound {
		t.Fatalf("expected CodeSpecNotFound, got %d", code)
	}
	if code := callError(t, s, "spec.validateOption", optionParams{ID: csrID, Key: "servicePattern", Value: "actor"}).Code; code != CodeInvalidOption {
		t.Fatalf("expected CodeInvalidOption, got %d", code)
	}
	if _, err := s.Call(context.Background(), "spec.validateOption", optionParams{ID: csrID, Key: "servicePattern", Value: "functional"}); err != nil {
		t.Fatalf("valid option rejected: %v", err)
	}
	out, err = s.Call(context.Background(), "spec.resolveOptions", resolveOptionsParams{ID: csrID, Overrides: map[string]string{"dataAccess": "prisma"}})
	if err != nil {
		t.Fatalf("resolve options: %v", err)
	}
	if got := out.(map[string]string); got["dataAccess"] != "prisma" || got["servicePattern"] != "class" {
		t.Fatalf("unexpected resolved options: %v", got)
	}
}

func TestProtocolErrors(t *testing.T) {
	s := newServer(t)
	if code := callError(t, s, "spec.delete", idParams{ID: csrID}).Code; code != jsonrpc2.CodeMethodNotFound {
		t.Fatalf("expected method not found, got %d", code)
	}
	if code := callError(t, s, "spec.get", []string{"not", "an", "object"}).Code; code != jsonrpc2.CodeInvalidParams {
		t.Fatalf("expected invalid params, got %d", code)
	}
}

func TestTemplateMethods(t *testing.T) {
	s := newServer(t)
	rpcErr := callError(t, s, "template.resolve", resolveParams{Template: "{{ResourceName}}Controller for {{Owner}}", Binding: placeholder.Binding{"ResourceName": "Order"}})
	if rpcErr.Code != CodeUnresolvedBinding {
		t.Fatalf("expected CodeUnresolvedBinding, got %d", rpcErr.Code)
	}
	var data unresolvedData
	if rpcErr.Data == nil || json.Unmarshal(*rpcErr.Data, &data) != nil || data.Token != "Owner" {
		t.Fatalf("expected token data, got %+v", rpcErr.Data)
	}

	out, err := s.Call(context.Background(), "template.render", renderParams{ID: csrID, Layer: "repository", Binding: placeholder.Binding{"ResourceName": "Invoice"}, Variant: "typeorm", Structure: "layer-grouped", Root: "src"})
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	files := out.([]scaffold.File)
	if len(files) != 1 || files[0].Path != "src/repositories/invoice.repository.ts" || !strings.Contains(files[0].Content, "TypeOrmInvoiceRepository") {
		t.Fatalf("unexpected render: %+v", files)
	}
	if code := callError(t, s, "template.render", renderParams{ID: csrID, Layer: "repository", Binding: placeholder.Binding{"ResourceName": "Invoice"}, Variant: "sequelize"}).Code; code != CodeNoTemplate {
		t.Fatalf("expected CodeNoTemplate, got %d", code)
	}
}

func TestRulesAndPlan(t *testing.T) {
	s := newServer(t)
	snap := facts.Snapshot{
		Files: []facts.File{
			{Path: "src/order.controller.ts", Layer: "controller", Lines: 30, Imports: []string{"./order.repository"}, Patterns: map[string]int{facts.PatternErrorHandling: 1, facts.PatternValidation: 1}},
			{Path: "src/order.repository.ts", Layer: "repository", Lines: 30},
		},
		Edges:  []depcheck.Edge{{From: "controller", To: "repository"}},
		Values: map[string]any{"rule.dto-returns": true},
	}
	out, err := s.Call(context.Background(), "rules.evaluate", evaluateParams{ID: csrID, Facts: &snap})
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	res := out.(EvaluateResult)
	if res.Summary.Total != 17 || res.Summary.Failed == 0 {
		t.Fatalf("unexpected summary: %+v", res.Summary)
	}
	byID := map[string]rules.Status{}
	for _, r := range res.Results {
		byID[r.RuleID+"@"+r.Layer] = r.Status
	}
	if byID["layer-dependencies@*"] != rules.StatusFail || byID["dto-returns@service"] != rules.StatusPass {
		t.Fatalf("unexpected statuses: %v", byID)
	}

	out, err = s.Call(context.Background(), "plan.build", planParams{ID: csrID, Task: "add-crud-endpoint", Binding: placeholder.Binding{"ResourceName": "Order"}, Facts: &snap})
	if err != nil {
		t.Fatalf("plan: %v", err)
	}
	plan := out.(PlanResult)
	if len(plan.Steps) != 6 || plan.Steps[4].Done() {
		t.Fatalf("controller step should be blocked: %+v", plan.Steps)
	}
	if !strings.Contains(plan.Checklist, "5. [controller] Create /orders controller endpoints (blocked)") {
		t.Fatalf("unexpected checklist:\n%s", plan.Checklist)
	}
	if code := callError(t, s, "plan.build", planParams{ID: csrID, Task: "add-graphql"}).Code; code != CodeInvalidTask {
		t.Fatalf("expected CodeInvalidTask, got %d", code)
	}
	if code := callError(t, s, "plan.build", planParams{ID: csrID, Task: "add-crud-endpoint"}).Code; code != CodeUnresolvedBinding {
		t.Fatalf("expected CodeUnresolvedBinding, got %d", code)
	}
}

func TestServeOverConnection(t *testing.T) {
	s := newServer(t)
	serverSide, clientSide := net.Pipe()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx, serverSide) }()

	client := jsonrpc2.NewConn(ctx, jsonrpc2.NewBufferedStream(clientSide, jsonrpc2.VSCodeObjectCodec{}),
		jsonrpc2.HandlerWithError(func(context.Context, *jsonrpc2.Conn, *jsonrpc2.Request) (any, error) { return nil, nil }))

	var result ImportResult
	if err := client.Call(ctx, "deps.checkImport", importParams{ID: csrID, From: "repository", To: "service"}, &result); err != nil {
		t.Fatalf("call: %v", err)
	}
	var kinds []depcheck.Kind
	for _, v := range result.Violations {
		kinds = append(kinds, v.Kind)
	}
	if result.Allowed || !cmp.Equal([]depcheck.Kind{depcheck.KindForbidden, depcheck.KindDirection}, kinds) {
		t.Fatalf("unexpected result: %+v", result)
	}

	err := client.Call(ctx, "spec.get", idParams{ID: "missing"}, &json.RawMessage{})
	var rpcErr *jsonrpc2.Error
	if !errors.As(err, &rpcErr) || rpcErr.Code != CodeSpecNotFound {
		t.Fatalf("expected remote CodeSpecNotFound, got %v", err)
	}

	client.Close()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("serve: %v", err)
		}
	case <-ctx.Done():
		t.Fatalf("server did not notice the disconnect")
	}
}

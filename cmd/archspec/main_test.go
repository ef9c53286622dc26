package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/kingrea/archspec/internal/config"
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

func newWorkspace(t *testing.T) string {
	t.Helper()
	t.Setenv(config.HomeEnv, "")
	t.Setenv(config.LogLevelEnv, "")
	return t.TempDir()
}

func run(t *testing.T, ws string, args ...string) (string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	err := execute(append([]string{"-w", ws}, args...), strings.NewReader(""), &out, &errOut)
	return out.String(), err
}

func mustRun(t *testing.T, ws string, args ...string) string {
	t.Helper()
	out, err := run(t, ws, args...)
	if err != nil {
		t.Fatalf("archspec %s: %v\n%s", strings.Join(args, " "), err, out)
	}
	return out
}

func writeFile(t *testing.T, path, body string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestInitAndList(t *testing.T) {
	ws := newWorkspace(t)
	mustRun(t, ws, "init")
	if _, err := os.Stat(filepath.Join(ws, config.ArchspecDir, "config.yaml")); err != nil {
		t.Fatalf("config.yaml not created: %v", err)
	}
	out := mustRun(t, ws, "list")
	for _, want := range []string{"controller-service-repository", "queue-architecture"} {
		if !strings.Contains(out, want) {
			t.Fatalf("list missing %s:\n%s", want, out)
		}
	}
	if _, err := os.Stat(filepath.Join(ws, config.ArchspecDir, "logs", "archspec.log")); err != nil {
		t.Fatalf("log file not created: %v", err)
	}
}

func TestShowAndOption(t *testing.T) {
	ws := newWorkspace(t)
	out := mustRun(t, ws, "show", "queue-architecture", "--json")
	var shown spec.ArchitectureSpec
	if err := json.Unmarshal([]byte(out), &shown); err != nil || shown.ID != "queue-architecture" || len(shown.Base.Layers) == 0 {
		t.Fatalf("unexpected show output (%v):\n%s", err, out)
	}

	out = mustRun(t, ws, "option", "controller-service-repository", "servicePattern=functional")
	if !strings.Contains(out, "servicePattern=functional") || !strings.Contains(out, "dataAccess=none") {
		t.Fatalf("unexpected options:\n%s", out)
	}
	if _, err := run(t, ws, "option", "controller-service-repository", "servicePattern=actor"); err == nil {
		t.Fatalf("invalid choice should fail")
	}
	if _, err := run(t, ws, "show", "hexagonal"); err == nil {
		t.Fatalf("unknown spec should fail")
	}
}

func TestResolve(t *testing.T) {
	ws := newWorkspace(t)
	out := mustRun(t, ws, "resolve", "/{{resourceNamePluralKebab}} via {{ResourceName}}Controller", "--resource", "Order")
	if strings.TrimSpace(out) != "/orders via OrderController" {
		t.Fatalf("unexpected resolution: %q", out)
	}
	if _, err := run(t, ws, "resolve", "{{Owner}}", "--resource", "Order"); err == nil {
		t.Fatalf("unresolved placeholder should fail")
	}
}

func TestRenderWritesFiles(t *testing.T) {
	ws := newWorkspace(t)
	out := mustRun(t, ws, "render", "controller-service-repository", "--resource", "Order", "--option", "dataAccess=prisma", "--root", "src", "--write")
	if !strings.Contains(out, "wrote src/order.repository.ts") {
		t.Fatalf("unexpected render output:\n%s", out)
	}
	data, err := os.ReadFile(filepath.Join(ws, "src", "order.repository.ts"))
	if err != nil {
		t.Fatalf("read rendered repository: %v", err)
	}
	if !strings.Contains(string(data), "PrismaOrderRepository") {
		t.Fatalf("prisma variant not used:\n%s", data)
	}
	if _, err := run(t, ws, "render", "controller-service-repository", "--resource", "Order", "--root", "src", "--write"); !errors.Is(err, scaffold.ErrFileExists) {
		t.Fatalf("expected ErrFileExists without --force, got %v", err)
	}
	mustRun(t, ws, "render", "controller-service-repository", "--resource", "Order", "--root", "src", "--write", "--force")
}

func TestRenderQueueLayersWithBackendOptions(t *testing.T) {
	ws := newWorkspace(t)
	out := mustRun(t, ws, "render", "queue-architecture", "queue-manager", "--set", "QueueName=Email")
	if !strings.Contains(out, "// queue-manager.ts") || !strings.Contains(out, "BullMQQueueManager") {
		t.Fatalf("default backend should render the bullmq queue manager:\n%s", out)
	}
	out = mustRun(t, ws, "render", "queue-architecture", "consumer", "--set", "QueueName=Email", "--option", "queueBackend=aws-sqs")
	if !strings.Contains(out, "EmailSQSConsumer") {
		t.Fatalf("aws-sqs consumer not rendered:\n%s", out)
	}
	out = mustRun(t, ws, "render", "queue-architecture", "--set", "QueueName=Email", "--option", "queueBackend=rabbitmq")
	if !strings.Contains(out, "EmailRabbitMQConsumer") || !strings.Contains(out, "RabbitMQQueueManager") {
		t.Fatalf("rabbitmq variants not rendered:\n%s", out)
	}
}

func TestRenderUsesComponentConfig(t *testing.T) {
	ws := newWorkspace(t)
	writeFile(t, filepath.Join(ws, config.ArchspecDir, "config.yaml"), `
version: 1
components:
  api:
    language: typescript
    architecture: controller-service-repository
    architectureOptions:
      servicePattern: functional
    dataAccess: typeorm
    naming:
      controllers: "{{ResourceName}}Controller"
    fileStructure:
      root: src
      pattern: layer-grouped
`)
	out := mustRun(t, ws, "--json", "render", "api", "--resource", "Invoice")
	var files []scaffold.File
	if err := json.Unmarshal([]byte(out), &files); err != nil {
		t.Fatalf("decode files: %v\n%s", err, out)
	}
	got := map[string]scaffold.File{}
	for _, f := range files {
		got[f.Layer] = f
	}
	if got["service"].TemplateKey != "service-functional" || got["service"].Path != "src/services/invoice.service.ts" {
		t.Fatalf("unexpected service file: %+v", got["service"])
	}
	if got["controller"].Path != "src/controllers/InvoiceController.ts" {
		t.Fatalf("component naming ignored: %+v", got["controller"].Path)
	}
	if !strings.Contains(got["repository"].Content, "TypeOrmInvoiceRepository") {
		t.Fatalf("component data access ignored:\n%s", got["repository"].Content)
	}
}

func TestValidateImportRemove(t *testing.T) {
	ws := newWorkspace(t)
	good := filepath.Join(ws, "mini.yaml")
	bad := filepath.Join(ws, "bad.yaml")
	writeFile(t, good, miniSpec)
	writeFile(t, bad, strings.Replace(miniSpec, "canImport: [store]", "canImport: [cache]", 1))

	out := mustRun(t, ws, "validate", good)
	if !strings.Contains(out, "ok") {
		t.Fatalf("unexpected validate output:\n%s", out)
	}
	out, err := run(t, ws, "validate", good, bad)
	if !errors.Is(err, errCheckFailed) || !strings.Contains(out, "invalid") || !strings.Contains(out, "cache") {
		t.Fatalf("expected invalid report, got %v:\n%s", err, out)
	}
	if _, err := run(t, ws, "import", bad); err == nil {
		t.Fatalf("importing an invalid spec should fail")
	}

	mustRun(t, ws, "import", good)
	if out := mustRun(t, ws, "list"); !strings.Contains(out, "mini") {
		t.Fatalf("imported spec not listed:\n%s", out)
	}
	mustRun(t, ws, "remove", "mini")
	if out := mustRun(t, ws, "list"); strings.Contains(out, "mini ") {
		t.Fatalf("removed spec still listed:\n%s", out)
	}
}

func seedViolation(t *testing.T, ws string) {
	t.Helper()
	writeFile(t, filepath.Join(ws, "src", "order.controller.ts"), "import { OrderRepository } from './order.repository';\n\nexport class OrderController {}\n")
	writeFile(t, filepath.Join(ws, "src", "order.repository.ts"), "export class OrderRepository {}\n")
}

func TestCheckReportsViolations(t *testing.T) {
	ws := newWorkspace(t)
	seedViolation(t, ws)
	out, err := run(t, ws, "check", "controller-service-repository", "src")
	if !errors.Is(err, errCheckFailed) {
		t.Fatalf("expected failing check, got %v:\n%s", err, out)
	}
	if !strings.Contains(out, "FAIL") || !strings.Contains(out, "controller -> repository") {
		t.Fatalf("unexpected check output:\n%s", out)
	}

	out, _ = run(t, ws, "--json", "check", "controller-service-repository", "src")
	var decoded struct {
		Summary struct {
			Total  int `json:"total"`
			Failed int `json:"failed"`
		} `json:"summary"`
	}
	if err := json.Unmarshal([]byte(out), &decoded); err != nil || decoded.Summary.Total != 17 || decoded.Summary.Failed == 0 {
		t.Fatalf("unexpected json check (%v):\n%s", err, out)
	}
	if _, err := run(t, ws, "check", "controller-service-repository", "--fail-on", "fatal"); err == nil {
		t.Fatalf("unknown severity should fail")
	}

	out = mustRun(t, ws, "history", "controller-service-repository")
	if got := strings.Count(out, " FAIL controller-service-repository "); got != 2 {
		t.Fatalf("history shows %d failing runs, want 2:\n%s", got, out)
	}
	if out := mustRun(t, ws, "history", "queue-architecture"); !strings.Contains(out, "no check runs recorded") {
		t.Fatalf("unexpected queue history:\n%s", out)
	}
}

func TestPlanMarksBlockedSteps(t *testing.T) {
	ws := newWorkspace(t)
	out := mustRun(t, ws, "plan", "controller-service-repository", "add-crud-endpoint", "--resource", "Order")
	if !strings.Contains(out, "- [ ] 5. [controller] Create /orders controller endpoints\n") {
		t.Fatalf("unexpected plan:\n%s", out)
	}
	seedViolation(t, ws)
	out = mustRun(t, ws, "plan", "controller-service-repository", "add-crud-endpoint", "--resource", "Order", "--dir", "src")
	if !strings.Contains(out, "5. [controller] Create /orders controller endpoints (blocked)") {
		t.Fatalf("controller step should be blocked:\n%s", out)
	}
	if _, err := run(t, ws, "plan", "controller-service-repository", "add-crud-endpoint"); err == nil {
		t.Fatalf("missing resource should fail")
	}
}

func TestServeAnswersOverStdio(t *testing.T) {
	ws := newWorkspace(t)
	body := `{"jsonrpc":"2.0","id":1,"method":"spec.list","params":{}}`
	in := fmt.Sprintf("Content-Length: %d\r\n\r\n%s", len(body), body)
	var out, errOut bytes.Buffer
	if err := execute([]string{"-w", ws, "serve"}, strings.NewReader(in), &out, &errOut); err != nil {
		t.Fatalf("serve: %v", err)
	}
	if !strings.Contains(out.String(), "Content-Length:") || !strings.Contains(out.String(), `"controller-service-repository"`) {
		t.Fatalf("unexpected serve output:\n%s", out.String())
	}
}

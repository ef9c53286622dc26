package watch

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"go.uber.org/goleak"
)

func TestDebouncerDedupesAndSorts(t *testing.T) {
	d := newDebouncer(3)
	if d.add("src/b.ts") || d.add("src/a.ts") || d.add("src/b.ts") {
		t.Fatalf("batch should not be full after two distinct paths")
	}
	if !d.add("src/c.ts") {
		t.Fatalf("batch should be full after three distinct paths")
	}
	if diff := cmp.Diff([]string{"src/a.ts", "src/b.ts", "src/c.ts"}, d.take()); diff != "" {
		t.Fatalf("batch (-want +got):\n%s", diff)
	}
	if got := d.take(); got != nil {
		t.Fatalf("expected empty batch after take, got %v", got)
	}
}

func TestIgnored(t *testing.T) {
	w := &Watcher{cfg: DefaultConfig()}
	cases := map[string]bool{
		"src/order.controller.ts":  false,
		"node_modules/x/index.js":  true,
		"node_modules":             true,
		"packages/a/dist/index.js": true,
		".git/HEAD":                true,
		"src/.cache/a.ts":          true,
		"debug.log":                true,
	}
	for rel, want := range cases {
		if got := w.ignored(rel); got != want {
			t.Fatalf("ignored(%q) = %v, want %v", rel, got, want)
		}
	}
}

func TestWatcherReportsChangedFiles(t *testing.T) {
	defer goleak.VerifyNone(t)

	root := t.TempDir()
	for _, dir := range []string{"src", "node_modules"} {
		if err := os.MkdirAll(filepath.Join(root, dir), 0o755); err != nil {
			t.Fatalf("mkdir: %v", err)
		}
	}
	batches := make(chan []string, 16)
	cfg := DefaultConfig()
	cfg.Debounce = 20 * time.Millisecond
	w, err := New(root, cfg, func(_ context.Context, paths []string) { batches <- paths }, nil)
	if err != nil {
		t.Fatalf("new watcher: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	write := func(rel string) {
		t.Helper()
		full := filepath.Join(root, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
			t.Fatalf("mkdir: %v", err)
		}
		if err := os.WriteFile(full, []byte("export const x = 1;\n"), 0o644); err != nil {
			t.Fatalf("write %s: %v", rel, err)
		}
	}
	write("node_modules/lib/index.js")
	write("src/order.service.ts")
	write("src/orders/order.repository.ts")

	want := map[string]bool{"src/order.service.ts": false, "src/orders/order.repository.ts": false}
	deadline := time.After(5 * time.Second)
	for remaining := len(want); remaining > 0; {
		select {
		case batch := <-batches:
			for _, p := range batch {
				if strings.HasPrefix(p, "node_modules") {
					t.Fatalf("ignored path reported: %v", batch)
				}
				if seen, ok := want[p]; ok && !seen {
					want[p] = true
					remaining--
				}
			}
		case <-deadline:
			t.Fatalf("timed out waiting for changes, still missing %v", want)
		}
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("run: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("watcher did not stop")
	}
}

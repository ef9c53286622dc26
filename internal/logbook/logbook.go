// Package logbook keeps a plain-text history of check runs under
// .archspec/logs so a project can see how its architecture drifted.
package logbook

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// Outcome is the verdict recorded for one check run.
type Outcome string

const (
	OutcomePass Outcome = "PASS"
	OutcomeFail Outcome = "FAIL"
)

// Entry summarizes one check run.
type Entry struct {
	Time        time.Time
	Outcome     Outcome
	SpecID      string
	Root        string
	Passed      int
	Failed      int
	Unevaluable int
	Violations  int
}

func (e Entry) String() string {
	return fmt.Sprintf("%s %-4s %s %s passed=%d failed=%d unevaluable=%d violations=%d",
		e.Time.UTC().Format(time.RFC3339),
		string(e.Outcome),
		e.SpecID,
		e.Root,
		e.Passed, e.Failed, e.Unevaluable, e.Violations,
	)
}

// Logbook appends entries to a single file.
type Logbook struct {
	path  string
	clock func() time.Time
	mu    sync.Mutex
}

// Option configures a Logbook.
type Option func(*Logbook)

// WithClock overrides the time source.
func WithClock(clock func() time.Time) Option {
	return func(l *Logbook) {
		if clock != nil {
			l.clock = clock
		}
	}
}

// New creates a logbook that writes to path, creating its directory.
func New(path string, opts ...Option) (*Logbook, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("logbook: %w", err)
	}
	l := &Logbook{path: path, clock: time.Now}
	for _, opt := range opts {
		opt(l)
	}
	return l, nil
}

// Path returns the file backing this logbook.
func (l *Logbook) Path() string {
	if l == nil {
		return ""
	}
	return l.path
}

// Record appends e, stamping it when Time is zero. Paths containing
// whitespace are quoted so each entry stays on one parseable line.
func (l *Logbook) Record(e Entry) error {
	if l == nil {
		return nil
	}
	if e.Time.IsZero() {
		e.Time = l.clock()
	}
	if strings.ContainsAny(e.Root, " \t\n") {
		e.Root = fmt.Sprintf("%q", e.Root)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	file, err := os.OpenFile(l.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("logbook: %w", err)
	}
	defer file.Close()
	if _, err := file.WriteString(e.String() + "\n"); err != nil {
		return fmt.Errorf("logbook: %w", err)
	}
	return nil
}

// Tail returns up to maxLines of the most recent entries for specID (all
// specs when empty) along with how many matching entries exist.
func (l *Logbook) Tail(specID string, maxLines int) ([]string, int) {
	if l == nil || maxLines <= 0 {
		return nil, 0
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	file, err := os.Open(l.path)
	if err != nil {
		return nil, 0
	}
	defer file.Close()

	var lines []string
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := scanner.Text()
		if specID != "" && entrySpec(line) != specID {
			continue
		}
		lines = append(lines, line)
	}
	total := len(lines)
	if total > maxLines {
		lines = lines[total-maxLines:]
	}
	return lines, total
}

func entrySpec(line string) string {
	fields := strings.Fields(line)
	if len(fields) < 3 {
		return ""
	}
	return fields[2]
}

// Package testharness holds shared test utilities: golden-file snapshots
// used to pin run summaries, recorder event logs and other serialized
// orchestrator output against accidental drift.
package testharness

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/haasonsaas/orcha/internal/recorder"
)

// update rewrites snapshot files instead of comparing when set.
var update = os.Getenv("UPDATE_SNAPSHOTS") == "1"

// Snapshot compares actual output against files under testdata/golden,
// one file per (test, name) pair.
type Snapshot struct {
	t   *testing.T
	dir string
}

// NewSnapshot returns a Snapshot rooted at testdata/golden relative to the
// calling package.
func NewSnapshot(t *testing.T) *Snapshot {
	t.Helper()
	dir := filepath.Join("testdata", "golden")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("testharness: create snapshot dir: %v", err)
	}
	return &Snapshot{t: t, dir: dir}
}

// Assert compares actual against this test's snapshot file, creating or
// rewriting it when UPDATE_SNAPSHOTS=1 is set.
func (s *Snapshot) Assert(actual string) {
	s.t.Helper()
	s.AssertNamed("", actual)
}

// AssertNamed compares actual against a named snapshot, for tests that pin
// more than one artifact.
func (s *Snapshot) AssertNamed(name, actual string) {
	s.t.Helper()
	path := s.path(name, ".golden")

	if update {
		if err := os.WriteFile(path, []byte(actual), 0o644); err != nil {
			s.t.Fatalf("testharness: write snapshot %s: %v", path, err)
		}
		s.t.Logf("testharness: rewrote %s", path)
		return
	}

	expected, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			s.t.Fatalf("testharness: snapshot %s missing; rerun with UPDATE_SNAPSHOTS=1\n\nactual:\n%s", path, actual)
		}
		s.t.Fatalf("testharness: read snapshot %s: %v", path, err)
	}
	if string(expected) != actual {
		s.t.Errorf("testharness: snapshot mismatch %s\n%s", path, unifiedDiff(string(expected), actual))
	}
}

// AssertJSON marshals v with stable indentation and compares it against a
// .json snapshot.
func (s *Snapshot) AssertJSON(v any) {
	s.t.Helper()
	s.AssertJSONNamed("", v)
}

// AssertJSONNamed is AssertJSON with an explicit artifact name.
func (s *Snapshot) AssertJSONNamed(name string, v any) {
	s.t.Helper()
	pretty, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		s.t.Fatalf("testharness: marshal snapshot value: %v", err)
	}
	path := s.path(name, ".json.golden")

	if update {
		if err := os.WriteFile(path, pretty, 0o644); err != nil {
			s.t.Fatalf("testharness: write snapshot %s: %v", path, err)
		}
		s.t.Logf("testharness: rewrote %s", path)
		return
	}

	expected, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			s.t.Fatalf("testharness: snapshot %s missing; rerun with UPDATE_SNAPSHOTS=1\n\nactual:\n%s", path, pretty)
		}
		s.t.Fatalf("testharness: read snapshot %s: %v", path, err)
	}
	if string(expected) != string(pretty) {
		s.t.Errorf("testharness: snapshot mismatch %s\n%s", path, unifiedDiff(string(expected), string(pretty)))
	}
}

func (s *Snapshot) path(name, ext string) string {
	base := strings.NewReplacer("/", "_", " ", "_", ":", "_").Replace(s.t.Name())
	if name != "" {
		base += "_" + name
	}
	return filepath.Join(s.dir, base+ext)
}

// EventTrace flattens recorder records down to their event names, one per
// line — the stable projection run-ordering snapshots pin. Timestamps and
// payloads vary per run and are deliberately excluded.
func EventTrace(records []recorder.Record) string {
	var b strings.Builder
	for _, rec := range records {
		b.WriteString(rec.Event)
		b.WriteByte('\n')
	}
	return b.String()
}

func unifiedDiff(expected, actual string) string {
	expectedLines := strings.Split(expected, "\n")
	actualLines := strings.Split(actual, "\n")
	n := len(expectedLines)
	if len(actualLines) > n {
		n = len(actualLines)
	}

	var b strings.Builder
	for i := 0; i < n; i++ {
		var exp, act string
		if i < len(expectedLines) {
			exp = expectedLines[i]
		}
		if i < len(actualLines) {
			act = actualLines[i]
		}
		if exp != act {
			fmt.Fprintf(&b, "- %s\n+ %s\n", exp, act)
		}
	}
	return b.String()
}

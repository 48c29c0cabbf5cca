package testharness

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/haasonsaas/orcha/internal/recorder"
)

func snapshotInDir(t *testing.T, dir string) *Snapshot {
	t.Helper()
	require.NoError(t, os.MkdirAll(dir, 0o755))
	return &Snapshot{t: t, dir: dir}
}

func TestAssertMatchesExistingSnapshot(t *testing.T) {
	dir := t.TempDir()
	s := snapshotInDir(t, dir)

	path := filepath.Join(dir, "TestAssertMatchesExistingSnapshot.golden")
	require.NoError(t, os.WriteFile(path, []byte("hello\n"), 0o644))

	s.Assert("hello\n")
}

func TestAssertNamedUsesDistinctFiles(t *testing.T) {
	dir := t.TempDir()
	s := snapshotInDir(t, dir)

	require.NoError(t, os.WriteFile(
		filepath.Join(dir, "TestAssertNamedUsesDistinctFiles_a.golden"), []byte("a"), 0o644))
	require.NoError(t, os.WriteFile(
		filepath.Join(dir, "TestAssertNamedUsesDistinctFiles_b.golden"), []byte("b"), 0o644))

	s.AssertNamed("a", "a")
	s.AssertNamed("b", "b")
}

func TestAssertJSONStableFormatting(t *testing.T) {
	dir := t.TempDir()
	s := snapshotInDir(t, dir)

	expected := "{\n  \"count\": 2,\n  \"name\": \"x\"\n}"
	require.NoError(t, os.WriteFile(
		filepath.Join(dir, "TestAssertJSONStableFormatting.json.golden"), []byte(expected), 0o644))

	s.AssertJSON(map[string]any{"name": "x", "count": 2})
}

func TestEventTrace(t *testing.T) {
	records := []recorder.Record{
		{Timestamp: time.Now(), Event: recorder.EventRunStart},
		{Timestamp: time.Now(), Event: recorder.EventStepStart, Data: map[string]any{"step": 1}},
		{Timestamp: time.Now(), Event: recorder.EventRunEnd},
	}
	require.Equal(t, "run_start\nstep_start\nrun_end\n", EventTrace(records))
}

func TestUnifiedDiff(t *testing.T) {
	d := unifiedDiff("a\nb", "a\nc")
	require.Contains(t, d, "- b")
	require.Contains(t, d, "+ c")
	require.Empty(t, unifiedDiff("same", "same"))
}

package recorder

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRecorderOrdersRunStartStepsRunEnd(t *testing.T) {
	dir := t.TempDir()
	r, err := Open(dir, "run-1")
	require.NoError(t, err)

	require.NoError(t, r.RunStart(nil))
	require.NoError(t, r.StepStart(map[string]any{"step": 1}))
	require.NoError(t, r.StepEnd(map[string]any{"step": 1}))
	require.NoError(t, r.RunEnd(map[string]any{"steps": 1}))
	require.NoError(t, r.Close())

	records, err := ReadAll(dir, "run-1")
	require.NoError(t, err)
	require.Len(t, records, 4)

	require.Equal(t, EventRunStart, records[0].Event)
	require.Equal(t, EventStepStart, records[1].Event)
	require.Equal(t, EventStepEnd, records[2].Event)
	require.Equal(t, EventRunEnd, records[3].Event)

	for i := 1; i < len(records); i++ {
		require.True(t, !records[i].Timestamp.Before(records[i-1].Timestamp))
	}
}

func TestRecorderSubscribeDeliversInFileOrder(t *testing.T) {
	dir := t.TempDir()
	r, err := Open(dir, "run-3")
	require.NoError(t, err)

	var seen []string
	cancel := r.Subscribe(func(rec Record) {
		seen = append(seen, rec.Event)
	})

	require.NoError(t, r.RunStart(nil))
	require.NoError(t, r.StepStart(map[string]any{"step": 1}))

	cancel()
	require.NoError(t, r.StepEnd(map[string]any{"step": 1}))
	require.NoError(t, r.Close())

	require.Equal(t, []string{EventRunStart, EventStepStart}, seen)

	// The file still carries every event, including the one emitted after
	// the subscription was cancelled.
	records, err := ReadAll(dir, "run-3")
	require.NoError(t, err)
	require.Len(t, records, 3)
}

func TestRecorderEmitAfterCloseErrors(t *testing.T) {
	dir := t.TempDir()
	r, err := Open(dir, "run-2")
	require.NoError(t, err)
	require.NoError(t, r.Close())

	err = r.Emit(EventMessage, nil)
	require.Error(t, err)
}

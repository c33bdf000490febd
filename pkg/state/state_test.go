package state

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nightwatch-dev/nightwatch/pkg/model"
)

func TestInitializeStateStartsAtIngestion(t *testing.T) {
	m := NewManager()
	st := m.InitializeState("s1")
	assert.Equal(t, model.PhaseIngestion, st.CurrentPhase)
	assert.False(t, st.Timestamps.Started.IsZero())
}

func TestGetStateUnknownSessionReturnsFalse(t *testing.T) {
	m := NewManager()
	_, ok := m.GetState("missing")
	assert.False(t, ok)
}

func TestUpdateAdvancesLastUpdatedMonotonically(t *testing.T) {
	m := NewManager()
	m.InitializeState("s1")
	first, err := m.Update("s1", func(st *model.PipelineState) { st.IterationCount = 1 })
	require.NoError(t, err)

	time.Sleep(time.Millisecond)
	second, err := m.Update("s1", func(st *model.PipelineState) { st.IterationCount = 2 })
	require.NoError(t, err)

	assert.True(t, !second.Timestamps.LastUpdated.Before(first.Timestamps.LastUpdated))
}

func TestUpdateOnlyChangesRequestedFields(t *testing.T) {
	m := NewManager()
	m.InitializeState("s1")
	m.Update("s1", func(st *model.PipelineState) { st.Metadata["key"] = "value" })

	updated, err := m.Update("s1", func(st *model.PipelineState) { st.IterationCount = 5 })
	require.NoError(t, err)

	assert.Equal(t, 5, updated.IterationCount)
	assert.Equal(t, "value", updated.Metadata["key"])
}

func TestOlderSnapshotUnaffectedByLaterUpdate(t *testing.T) {
	m := NewManager()
	old := m.InitializeState("s1")
	m.Update("s1", func(st *model.PipelineState) { st.IterationCount = 99 })

	assert.Equal(t, 0, old.IterationCount, "snapshots are values — the old handle must not see later updates")
}

func TestSetPhaseUpdatesPhaseStarted(t *testing.T) {
	m := NewManager()
	m.InitializeState("s1")
	st, err := m.SetPhase("s1", model.PhaseAnalysis)
	require.NoError(t, err)
	assert.Equal(t, model.PhaseAnalysis, st.CurrentPhase)
}

func TestIncrementIteration(t *testing.T) {
	m := NewManager()
	m.InitializeState("s1")
	m.IncrementIteration("s1")
	st, err := m.IncrementIteration("s1")
	require.NoError(t, err)
	assert.Equal(t, 2, st.IterationCount)
}

func TestCompleteSetsTerminalPhase(t *testing.T) {
	m := NewManager()
	m.InitializeState("s1")
	st, err := m.Complete("s1")
	require.NoError(t, err)
	assert.Equal(t, model.PhaseComplete, st.CurrentPhase)
	assert.False(t, st.Timestamps.Completed.IsZero())
}

func TestRemoveState(t *testing.T) {
	m := NewManager()
	m.InitializeState("s1")
	m.RemoveState("s1")
	_, ok := m.GetState("s1")
	assert.False(t, ok)
}

func TestUpdateUnknownSessionErrors(t *testing.T) {
	m := NewManager()
	_, err := m.Update("missing", func(st *model.PipelineState) {})
	assert.Error(t, err)
}

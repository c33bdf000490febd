// Package state implements NightWatch's per-session immutable pipeline
// state: a keyed store of value-type snapshots. Grounded on the original
// implementation's StateManager (initialize_state/get_state/
// update_state/set_phase/increment_iteration/complete/remove_state).
package state

import (
	"fmt"
	"sync"
	"time"

	"github.com/nightwatch-dev/nightwatch/pkg/model"
)

// Manager keys model.PipelineState snapshots by session id. Because
// PipelineState is a value type, readers holding an older snapshot never
// observe a later mutation — they simply hold a different, valid value
// (§4.2 invariant).
type Manager struct {
	mu    sync.Mutex
	store map[string]model.PipelineState
	now   func() time.Time
}

// NewManager creates an empty state manager.
func NewManager() *Manager {
	return &Manager{store: make(map[string]model.PipelineState), now: time.Now}
}

// InitializeState creates a new snapshot for session in PhaseIngestion
// with Started = now.
func (m *Manager) InitializeState(session string) model.PipelineState {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	st := model.PipelineState{
		SessionID:    session,
		CurrentPhase: model.PhaseIngestion,
		Metadata:     make(map[string]any),
		Timestamps: model.Timestamps{
			Started:      now,
			PhaseStarted: now,
			LastUpdated:  now,
		},
	}
	m.store[session] = st
	return st
}

// GetState returns the current snapshot for session. The second return
// value is false if no snapshot exists (mirrors the original's KeyError
// on an unknown session).
func (m *Manager) GetState(session string) (model.PipelineState, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.store[session]
	return st, ok
}

// Update applies fn to a copy of the current snapshot and stores the
// result with LastUpdated advanced to now. fn must mutate only the
// fields it intends to change — everything else carries over unchanged,
// matching the "no field outside those passed in updates changes"
// invariant (§8).
func (m *Manager) Update(session string, fn func(st *model.PipelineState)) (model.PipelineState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.store[session]
	if !ok {
		return model.PipelineState{}, fmt.Errorf("state: unknown session %q", session)
	}
	fn(&st)
	st.Timestamps.LastUpdated = m.now()
	m.store[session] = st
	return st, nil
}

// SetPhase transitions session to phase and records PhaseStarted = now.
func (m *Manager) SetPhase(session string, phase model.Phase) (model.PipelineState, error) {
	now := m.now()
	return m.Update(session, func(st *model.PipelineState) {
		st.CurrentPhase = phase
		st.Timestamps.PhaseStarted = now
	})
}

// IncrementIteration bumps the iteration counter by 1.
func (m *Manager) IncrementIteration(session string) (model.PipelineState, error) {
	return m.Update(session, func(st *model.PipelineState) {
		st.IterationCount++
	})
}

// Complete transitions session to the terminal PhaseComplete and sets
// Completed = now.
func (m *Manager) Complete(session string) (model.PipelineState, error) {
	now := m.now()
	return m.Update(session, func(st *model.PipelineState) {
		st.CurrentPhase = model.PhaseComplete
		st.Timestamps.Completed = now
	})
}

// RemoveState discards the snapshot for session.
func (m *Manager) RemoveState(session string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.store, session)
}

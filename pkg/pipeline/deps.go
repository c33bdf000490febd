// Package pipeline implements NightWatch's seven-phase orchestrator:
// INGESTION → ENRICHMENT → ANALYSIS → SYNTHESIS → REPORTING → ACTION →
// LEARNING. Grounded on the platform's orchestration/pipeline.py for
// phase sequencing and fallback semantics, and on the platform's
// pkg/queue/executor.go for the Go shape of a phased executor driving
// per-item fan-out with a bounded worker pool.
package pipeline

import (
	"log/slog"

	"github.com/nightwatch-dev/nightwatch/pkg/agent"
	"github.com/nightwatch-dev/nightwatch/pkg/batch"
	"github.com/nightwatch-dev/nightwatch/pkg/bus"
	"github.com/nightwatch-dev/nightwatch/pkg/capability"
	"github.com/nightwatch-dev/nightwatch/pkg/config"
	"github.com/nightwatch-dev/nightwatch/pkg/knowledge"
	"github.com/nightwatch-dev/nightwatch/pkg/recorder"
	"github.com/nightwatch-dev/nightwatch/pkg/state"
	"github.com/nightwatch-dev/nightwatch/pkg/workflow"
)

// Deps bundles every external collaborator and internal engine piece
// the pipeline wires together. Chat, Knowledge and Recorder may be nil
// (e.g. a nil Recorder simply skips history persistence); Bus, State,
// Agents and Config are used without nil checks and must be set.
// Observability, CodeHost, and Provider are load-bearing for any
// non-trivial run.
type Deps struct {
	Observability capability.ObservabilityClient
	CodeHost      capability.CodeHost
	Provider      capability.LLMProvider
	Chat          capability.ChatNotifier

	Knowledge *knowledge.Store
	Recorder  *recorder.Recorder
	Batch     *batch.Analyzer
	Workflows *workflow.Registry

	Bus    *bus.Bus
	State  *state.Manager
	Agents *agent.Registry

	Config *config.Config
	Log    *slog.Logger
}

// RunParams are the per-invocation overrides a caller (the CLI) may
// supply on top of Deps.Config.
type RunParams struct {
	DryRun bool
	Since  string
}

func (d *Deps) logger() *slog.Logger {
	if d.Log != nil {
		return d.Log
	}
	return slog.Default()
}

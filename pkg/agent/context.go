package agent

import (
	"github.com/nightwatch-dev/nightwatch/pkg/model"
)

// Context carries everything an agent needs for one execution: identity,
// the data to operate on, and the capabilities it's allowed to reach.
// Built fresh per execution by the pipeline — never shared between
// sessions.
type Context struct {
	SessionID string
	AgentName string

	Error  model.ErrorGroup
	Traces model.TraceData

	RunContext *model.RunContext

	// Extra carries component-specific input (e.g. prior analyses,
	// research context) without widening this struct for every agent
	// type; concrete agents type-assert the key they expect.
	Extra map[string]any
}

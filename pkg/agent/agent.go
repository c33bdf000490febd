// Package agent provides NightWatch's agent abstraction: a registered
// type tag, a config, a status machine, and a timeout-bounded execute
// contract. Grounded on spec §4.3 and structurally on the platform's
// pkg/agent/agent.go (Agent interface, ExecutionStatus enum) adapted
// from a chat-alert investigator to a batch error-triage worker.
package agent

import (
	"context"
	"time"

	"github.com/nightwatch-dev/nightwatch/pkg/model"
)

// Status is an agent's lifecycle state.
type Status string

const (
	StatusIdle      Status = "IDLE"
	StatusRunning   Status = "RUNNING"
	StatusWaiting   Status = "WAITING"
	StatusCompleted Status = "COMPLETED"
	StatusFailed    Status = "FAILED"
)

// ErrorCode classifies an agent-level failure.
type ErrorCode string

const (
	ErrorCodeTimeout        ErrorCode = "TIMEOUT"
	ErrorCodeExecutionError ErrorCode = "EXECUTION_ERROR"
)

// Config is an agent's construction-time configuration.
type Config struct {
	Name           string
	Model          string
	ThinkingBudget int
	MaxTokens      int
	MaxIterations  int
	TimeoutSeconds int
	Retries        int
	Tools          []string
}

// Result is returned by Agent.Execute and by ExecuteWithTimeout.
type Result struct {
	Success       bool
	Output        any
	ErrorCode     ErrorCode
	Err           error
	Recoverable   bool
	ExecutionTime time.Duration
}

// Agent is a named component that participates in the registry and
// lifecycle/timeout protocol.
type Agent interface {
	Execute(ctx context.Context, execCtx *Context) (*Result, error)
}

// MessageSender is the narrow bus capability an agent needs: publish a
// message if (and only if) a bus is attached.
type MessageSender interface {
	Publish(msg model.AgentMessage)
}

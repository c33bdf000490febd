package agent

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/nightwatch-dev/nightwatch/pkg/model"
)

// BaseAgent supplies the lifecycle and timeout protocol shared by every
// concrete agent: status tracking, an optional bus attachment, and the
// execute_with_timeout contract. Concrete agents embed BaseAgent and
// implement Agent.Execute by calling ExecuteWithTimeout around their
// own logic.
type BaseAgent struct {
	Config Config
	Log    *slog.Logger

	mu     sync.Mutex
	status Status
	bus    MessageSender
}

// NewBaseAgent returns a BaseAgent in IDLE status, not yet attached to
// a bus.
func NewBaseAgent(cfg Config, log *slog.Logger) *BaseAgent {
	return &BaseAgent{Config: cfg, Log: log, status: StatusIdle}
}

// Initialize attaches bus (which may be nil) and resets status to IDLE.
func (a *BaseAgent) Initialize(bus MessageSender) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.bus = bus
	a.status = StatusIdle
}

// Cleanup detaches the bus and resets status to IDLE.
func (a *BaseAgent) Cleanup() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.bus = nil
	a.status = StatusIdle
}

// Status returns the agent's current lifecycle state.
func (a *BaseAgent) Status() Status {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.status
}

func (a *BaseAgent) setStatus(s Status) {
	a.mu.Lock()
	a.status = s
	a.mu.Unlock()
}

// SendMessage publishes msg on the attached bus. If no bus is attached
// the message is silently dropped — agents run standalone in tests and
// in single-error ad-hoc invocations without a pipeline bus.
func (a *BaseAgent) SendMessage(msg model.AgentMessage) {
	a.mu.Lock()
	bus := a.bus
	a.mu.Unlock()

	if bus == nil {
		return
	}
	bus.Publish(msg)
}

// ExecuteWithTimeout runs op under a deadline of Config.TimeoutSeconds,
// transitioning status RUNNING → COMPLETED on success or RUNNING →
// FAILED on timeout/error. It never returns a non-nil error itself —
// failures are reported through Result so callers get a uniform
// success/failure shape regardless of cause.
func (a *BaseAgent) ExecuteWithTimeout(ctx context.Context, op func(ctx context.Context) (any, error)) *Result {
	a.setStatus(StatusRunning)
	start := time.Now()

	timeout := time.Duration(a.Config.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 300 * time.Second
	}
	opCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type outcome struct {
		out any
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- outcome{err: fmt.Errorf("agent panic: %v", r)}
			}
		}()
		out, err := op(opCtx)
		done <- outcome{out: out, err: err}
	}()

	select {
	case <-opCtx.Done():
		a.setStatus(StatusFailed)
		return &Result{
			Success:       false,
			ErrorCode:     ErrorCodeTimeout,
			Err:           opCtx.Err(),
			Recoverable:   true,
			ExecutionTime: time.Since(start),
		}
	case res := <-done:
		if res.err != nil {
			a.setStatus(StatusFailed)
			return &Result{
				Success:       false,
				ErrorCode:     ErrorCodeExecutionError,
				Err:           res.err,
				Recoverable:   true,
				ExecutionTime: time.Since(start),
			}
		}
		a.setStatus(StatusCompleted)
		return &Result{
			Success:       true,
			Output:        res.out,
			ExecutionTime: time.Since(start),
		}
	}
}

package agent

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/nightwatch-dev/nightwatch/pkg/model"
)

type recordingBus struct {
	received []model.AgentMessage
}

func (b *recordingBus) Publish(msg model.AgentMessage) {
	b.received = append(b.received, msg)
}

func TestBaseAgentInitializeSetsIdleAndAttachesBus(t *testing.T) {
	a := NewBaseAgent(Config{TimeoutSeconds: 1}, nil)
	bus := &recordingBus{}
	a.Initialize(bus)
	assert.Equal(t, StatusIdle, a.Status())

	a.SendMessage(model.AgentMessage{ID: "m1"})
	assert.Len(t, bus.received, 1)
}

func TestBaseAgentSendMessageWithoutBusIsNoop(t *testing.T) {
	a := NewBaseAgent(Config{}, nil)
	assert.NotPanics(t, func() {
		a.SendMessage(model.AgentMessage{ID: "m1"})
	})
}

func TestBaseAgentCleanupDetachesBusAndResetsStatus(t *testing.T) {
	a := NewBaseAgent(Config{TimeoutSeconds: 1}, nil)
	bus := &recordingBus{}
	a.Initialize(bus)
	a.Cleanup()

	a.SendMessage(model.AgentMessage{ID: "m1"})
	assert.Empty(t, bus.received)
	assert.Equal(t, StatusIdle, a.Status())
}

func TestExecuteWithTimeoutSucceeds(t *testing.T) {
	a := NewBaseAgent(Config{TimeoutSeconds: 5}, nil)
	res := a.ExecuteWithTimeout(context.Background(), func(ctx context.Context) (any, error) {
		return "done", nil
	})
	assert.True(t, res.Success)
	assert.Equal(t, "done", res.Output)
	assert.Equal(t, StatusCompleted, a.Status())
}

func TestExecuteWithTimeoutReturnsExecutionErrorOnFailure(t *testing.T) {
	a := NewBaseAgent(Config{TimeoutSeconds: 5}, nil)
	res := a.ExecuteWithTimeout(context.Background(), func(ctx context.Context) (any, error) {
		return nil, errors.New("boom")
	})
	assert.False(t, res.Success)
	assert.Equal(t, ErrorCodeExecutionError, res.ErrorCode)
	assert.True(t, res.Recoverable)
	assert.Equal(t, StatusFailed, a.Status())
}

func TestExecuteWithTimeoutReturnsTimeoutOnDeadlineExceeded(t *testing.T) {
	a := NewBaseAgent(Config{TimeoutSeconds: 0}, nil)
	a.Config.TimeoutSeconds = 0
	// force a short deadline by wrapping context ourselves
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	res := a.ExecuteWithTimeout(ctx, func(ctx context.Context) (any, error) {
		select {
		case <-time.After(2 * time.Second):
			return "too slow", nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	})
	assert.False(t, res.Success)
	assert.Equal(t, ErrorCodeTimeout, res.ErrorCode)
	assert.True(t, res.Recoverable)
	assert.Equal(t, StatusFailed, a.Status())
}

package bus

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nightwatch-dev/nightwatch/pkg/model"
)

type stringPayload struct{ Value string }

func (p *stringPayload) Clone() model.Payload {
	cp := *p
	return &cp
}

func TestPublishDeliversToMatchingRecipient(t *testing.T) {
	b := New(nil)
	var received *model.AgentMessage
	b.Subscribe("analyzer", "", func(msg model.AgentMessage) { received = &msg })

	b.Publish(model.AgentMessage{
		ID: "1", ToAgent: "analyzer", Type: "FOO", SessionID: "s1",
		Payload: &stringPayload{Value: "hi"},
	})

	require.NotNil(t, received)
	assert.Equal(t, "FOO", received.Type)
}

func TestPublishSkipsNonMatchingRecipient(t *testing.T) {
	b := New(nil)
	called := false
	b.Subscribe("reporter", "", func(msg model.AgentMessage) { called = true })

	b.Publish(model.AgentMessage{ID: "1", ToAgent: "analyzer", SessionID: "s1"})

	assert.False(t, called)
}

func TestBroadcastClearsToAgent(t *testing.T) {
	b := New(nil)
	var got model.AgentMessage
	b.Subscribe("anyone", "", func(msg model.AgentMessage) { got = msg })

	b.Broadcast(model.AgentMessage{ID: "1", ToAgent: "someone-else", SessionID: "s1"})

	assert.Equal(t, "", got.ToAgent)
}

func TestHandlerMutationDoesNotAffectStoreOrOtherSubscribers(t *testing.T) {
	b := New(nil)
	var seenA, seenB *stringPayload

	b.Subscribe("a", "", func(msg model.AgentMessage) {
		p := msg.Payload.(*stringPayload)
		p.Value = "mutated-by-a"
		seenA = p
	})
	b.Subscribe("b", "", func(msg model.AgentMessage) {
		seenB = msg.Payload.(*stringPayload)
	})

	b.Publish(model.AgentMessage{ID: "1", SessionID: "s1", Payload: &stringPayload{Value: "original"}})

	assert.Equal(t, "mutated-by-a", seenA.Value)
	assert.Equal(t, "original", seenB.Value)

	stored := b.GetMessages("s1")
	require.Len(t, stored, 1)
	assert.Equal(t, "original", stored[0].Payload.(*stringPayload).Value)
}

func TestHandlerPanicDoesNotBlockOtherHandlers(t *testing.T) {
	b := New(nil)
	secondCalled := false

	b.Subscribe("a", "", func(msg model.AgentMessage) { panic("boom") })
	b.Subscribe("b", "", func(msg model.AgentMessage) { secondCalled = true })

	assert.NotPanics(t, func() {
		b.Publish(model.AgentMessage{ID: "1", SessionID: "s1"})
	})
	assert.True(t, secondCalled)
}

func TestGetMessagesByPriorityOrdersHighFirst(t *testing.T) {
	b := New(nil)
	b.Publish(model.AgentMessage{ID: "1", SessionID: "s1", Priority: model.PriorityLow})
	b.Publish(model.AgentMessage{ID: "2", SessionID: "s1", Priority: model.PriorityHigh})
	b.Publish(model.AgentMessage{ID: "3", SessionID: "s1", Priority: model.PriorityMedium})

	msgs := b.GetMessagesByPriority("s1")
	require.Len(t, msgs, 3)
	assert.Equal(t, "2", msgs[0].ID)
	assert.Equal(t, "3", msgs[1].ID)
	assert.Equal(t, "1", msgs[2].ID)
}

func TestClearSessionOnlyAffectsThatSession(t *testing.T) {
	b := New(nil)
	b.Publish(model.AgentMessage{ID: "1", SessionID: "s1"})
	b.Publish(model.AgentMessage{ID: "2", SessionID: "s2"})

	b.ClearSession("s1")

	assert.Empty(t, b.GetMessages("s1"))
	assert.Len(t, b.GetMessages("s2"), 1)
}

func TestClearAll(t *testing.T) {
	b := New(nil)
	b.Publish(model.AgentMessage{ID: "1", SessionID: "s1"})
	b.Publish(model.AgentMessage{ID: "2", SessionID: "s2"})

	b.ClearAll()

	assert.Empty(t, b.GetMessages("s1"))
	assert.Empty(t, b.GetMessages("s2"))
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	b := New(nil)
	called := false
	id := b.Subscribe("a", "", func(msg model.AgentMessage) { called = true })
	b.Unsubscribe(id)

	b.Publish(model.AgentMessage{ID: "1", ToAgent: "a", SessionID: "s1"})

	assert.False(t, called)
}

func TestInsertionOrderWithinSession(t *testing.T) {
	b := New(nil)
	for i := 0; i < 5; i++ {
		b.Publish(model.AgentMessage{ID: string(rune('a' + i)), SessionID: "s1", Timestamp: time.Now()})
	}
	msgs := b.GetMessages("s1")
	require.Len(t, msgs, 5)
	for i, m := range msgs {
		assert.Equal(t, string(rune('a'+i)), m.ID)
	}
}

// Package bus implements NightWatch's in-process message bus: typed
// pub/sub for inter-agent events with per-session isolation. Grounded on
// the original implementation's MessageBus (subscribe/publish/broadcast/
// get_messages/get_messages_by_priority/clear_session/clear_all) and
// structured like the platform's events package (a typed publisher with
// a subscriber map guarded by one mutex).
package bus

import (
	"log/slog"
	"sort"
	"sync"

	"github.com/nightwatch-dev/nightwatch/pkg/model"
)

// Handler receives a delivered copy of a message. It must not block on
// network I/O — if a handler needs to do that, it should enqueue the
// work elsewhere and return promptly (§5 concurrency model).
type Handler func(msg model.AgentMessage)

type subscription struct {
	id        int64
	recipient string
	msgType   string // empty = all types
	handler   Handler
}

// Bus is a single-process, in-memory, typed pub/sub dispatcher with
// session-scoped message backlogs. Publish and handler dispatch are
// synchronous and single-threaded: invariant (ii) of §4.1 ("a handler
// that raises must not prevent delivery to other handlers") is enforced
// by recovering from handler panics and logging them.
type Bus struct {
	mu            sync.Mutex
	log           *slog.Logger
	nextSubID     int64
	subscriptions []subscription
	bySession     map[string][]model.AgentMessage
}

// New creates an empty Bus.
func New(log *slog.Logger) *Bus {
	if log == nil {
		log = slog.Default()
	}
	return &Bus{log: log, bySession: make(map[string][]model.AgentMessage)}
}

// Subscribe registers a handler for messages addressed to recipient
// (an agent-type tag). msgType == "" subscribes to all types. Returns a
// subscription id usable with Unsubscribe.
func (b *Bus) Subscribe(recipient, msgType string, handler Handler) int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextSubID++
	id := b.nextSubID
	b.subscriptions = append(b.subscriptions, subscription{
		id: id, recipient: recipient, msgType: msgType, handler: handler,
	})
	return id
}

// Unsubscribe removes a previously registered subscription. No-op if the
// id is unknown.
func (b *Bus) Unsubscribe(id int64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, s := range b.subscriptions {
		if s.id == id {
			b.subscriptions = append(b.subscriptions[:i], b.subscriptions[i+1:]...)
			return
		}
	}
}

// Publish stores a deep copy of msg under its session backlog
// (append-only) and delivers deep copies to every subscription whose
// recipient matches msg.ToAgent (or whose recipient subscribed to
// broadcast, i.e. ToAgent == "") and whose type filter matches.
func (b *Bus) Publish(msg model.AgentMessage) {
	b.mu.Lock()
	stored := cloneMessage(msg)
	b.bySession[msg.SessionID] = append(b.bySession[msg.SessionID], stored)

	// Snapshot subscriptions under the lock, then dispatch after
	// releasing it: handlers must never be able to deadlock against a
	// concurrent Subscribe/Publish on the same bus.
	subs := make([]subscription, len(b.subscriptions))
	copy(subs, b.subscriptions)
	b.mu.Unlock()

	for _, s := range subs {
		if !matches(s, msg) {
			continue
		}
		b.dispatch(s, cloneMessage(msg))
	}
}

// Broadcast publishes msg with ToAgent cleared, delivering to every
// subscriber regardless of recipient.
func (b *Bus) Broadcast(msg model.AgentMessage) {
	msg.ToAgent = ""
	b.Publish(msg)
}

func matches(s subscription, msg model.AgentMessage) bool {
	if msg.ToAgent != "" && msg.ToAgent != s.recipient {
		return false
	}
	if s.msgType != "" && s.msgType != msg.Type {
		return false
	}
	return true
}

func (b *Bus) dispatch(s subscription, msg model.AgentMessage) {
	defer func() {
		if r := recover(); r != nil {
			b.log.Error("message bus handler panicked", "recipient", s.recipient, "type", msg.Type, "panic", r)
		}
	}()
	s.handler(msg)
}

// GetMessages returns deep copies of every message published in session,
// in insertion order.
func (b *Bus) GetMessages(session string) []model.AgentMessage {
	b.mu.Lock()
	defer b.mu.Unlock()
	return cloneAll(b.bySession[session])
}

// GetMessagesByPriority returns deep copies sorted ascending by priority
// value (HIGH=0 first), stable with respect to insertion order within
// equal priority.
func (b *Bus) GetMessagesByPriority(session string) []model.AgentMessage {
	msgs := b.GetMessages(session)
	sort.SliceStable(msgs, func(i, j int) bool { return msgs[i].Priority < msgs[j].Priority })
	return msgs
}

// ClearSession discards the message backlog for one session.
func (b *Bus) ClearSession(session string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.bySession, session)
}

// ClearAll discards every session's backlog.
func (b *Bus) ClearAll() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.bySession = make(map[string][]model.AgentMessage)
}

func cloneMessage(msg model.AgentMessage) model.AgentMessage {
	clone := msg
	if msg.Payload != nil {
		clone.Payload = msg.Payload.Clone()
	}
	return clone
}

func cloneAll(msgs []model.AgentMessage) []model.AgentMessage {
	out := make([]model.AgentMessage, len(msgs))
	for i, m := range msgs {
		out[i] = cloneMessage(m)
	}
	return out
}

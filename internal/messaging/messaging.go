// Package messaging implements inter-agent messaging (§4.8): typed
// AgentMessages with priority-derived expiration, delivered over in-process
// per-agent mailboxes; broadcasts are also mirrored through a Streamer to
// out-of-process subscribers.
package messaging

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ajitpratap0/cryptofunk/internal/errs"
)

// Priority drives a message's expiration window (§3).
type Priority string

const (
	PriorityCritical Priority = "critical"
	PriorityHigh     Priority = "high"
	PriorityMedium   Priority = "medium"
	PriorityLow      Priority = "low"
)

func ttlFor(p Priority) time.Duration {
	switch p {
	case PriorityCritical:
		return 5 * time.Second
	case PriorityHigh:
		return 30 * time.Second
	case PriorityMedium:
		return 5 * time.Minute
	default:
		return 15 * time.Minute
	}
}

// Kind identifies a message's semantic type (§4.8, all values required).
type Kind string

const (
	KindTaskAssignment Kind = "task_assignment"
	KindTaskResult     Kind = "task_result"
	KindHeartbeat      Kind = "heartbeat"
	KindSystemCommand  Kind = "system_command"
	KindBroadcast      Kind = "broadcast"
	KindAgentToAgent   Kind = "agent_to_agent"
	KindStatusUpdate   Kind = "status_update"
	KindError          Kind = "error"
)

// Message is an AgentMessage (§3).
type Message struct {
	ID          string
	Kind        Kind
	Priority    Priority
	Sender      string
	Recipient   string // empty for broadcast
	Payload     any
	CreatedAt   time.Time
	ExpiresAt   time.Time
	RequiresAck bool
	ReplyTo     string
}

func (m Message) expired(now time.Time) bool {
	return now.After(m.ExpiresAt)
}

// Streamer mirrors broadcasts to out-of-process agents. cmd/orchestrator backs
// it with a core NATS publish, which does not persist messages, so a late
// subscriber does not receive earlier broadcasts.
type Streamer interface {
	Publish(subject string, payload []byte) error
}

const mailboxBuffer = 256

// Bus is the in-process mailbox layer plus Streamer mirroring of broadcasts.
type Bus struct {
	log      zerolog.Logger
	streamer Streamer

	mu        sync.RWMutex
	mailboxes map[string]chan Message
}

// New creates a Bus. streamer may be nil to disable broadcast mirroring
// (useful for unit tests that only exercise the in-process path).
func New(log zerolog.Logger, streamer Streamer) *Bus {
	return &Bus{
		log:       log.With().Str("component", "messaging").Logger(),
		streamer:  streamer,
		mailboxes: make(map[string]chan Message),
	}
}

// Register creates a mailbox for agentID, returning the channel the agent
// should range over to receive directed messages.
func (b *Bus) Register(agentID string) <-chan Message {
	b.mu.Lock()
	defer b.mu.Unlock()
	ch, ok := b.mailboxes[agentID]
	if !ok {
		ch = make(chan Message, mailboxBuffer)
		b.mailboxes[agentID] = ch
	}
	return ch
}

// Unregister closes and removes agentID's mailbox.
func (b *Bus) Unregister(agentID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if ch, ok := b.mailboxes[agentID]; ok {
		close(ch)
		delete(b.mailboxes, agentID)
	}
}

// NewMessage stamps id/created_at/expires_at from kind and priority.
func NewMessage(kind Kind, priority Priority, sender, recipient string, payload any) Message {
	now := time.Now()
	return Message{
		ID:        uuid.NewString(),
		Kind:      kind,
		Priority:  priority,
		Sender:    sender,
		Recipient: recipient,
		Payload:   payload,
		CreatedAt: now,
		ExpiresAt: now.Add(ttlFor(priority)),
	}
}

// Send delivers a directed message to its recipient's mailbox. A message
// already past expires_at is rejected at send time with ErrExpired (§4.8).
// Send never blocks: a full mailbox drops its oldest message to make room,
// and that dropped message is not delivered.
func (b *Bus) Send(msg Message) error {
	if msg.expired(time.Now()) {
		return errs.ErrExpired
	}

	b.mu.RLock()
	ch, ok := b.mailboxes[msg.Recipient]
	b.mu.RUnlock()
	if !ok {
		return errs.ErrNoAgent
	}

	select {
	case ch <- msg:
		return nil
	default:
		// Mailbox full: drop the oldest message to bound memory, then deliver this one.
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- msg:
		default:
		}
		return nil
	}
}

// Broadcast fans a message out to every registered mailbox and mirrors it
// through the Streamer, if configured.
func (b *Bus) Broadcast(msg Message) error {
	if msg.expired(time.Now()) {
		return errs.ErrExpired
	}

	b.mu.RLock()
	targets := make([]chan Message, 0, len(b.mailboxes))
	for _, ch := range b.mailboxes {
		targets = append(targets, ch)
	}
	b.mu.RUnlock()

	for _, ch := range targets {
		select {
		case ch <- msg:
		default:
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- msg:
			default:
			}
		}
	}

	if b.streamer != nil {
		payload, err := encodeMessage(msg)
		if err != nil {
			return errs.Wrap(errs.KindInput, "messaging", "encode broadcast", err)
		}
		if err := b.streamer.Publish("agents.broadcast", payload); err != nil {
			return errs.Wrap(errs.KindExternal, "messaging", "publish to durable stream", err)
		}
	}
	return nil
}

// Receive pulls the next message for agentID from ch, silently dropping any
// already-expired message (§4.8 receive-time expiration).
func Receive(ch <-chan Message) (Message, bool) {
	for msg := range ch {
		if msg.expired(time.Now()) {
			continue
		}
		return msg, true
	}
	return Message{}, false
}

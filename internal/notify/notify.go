package notify

import (
	"log"
	"time"
)

// Event is a noteworthy occurrence surfaced by the engine: a degraded
// stage, a finished consolidation run, a maintenance job outcome.
type Event struct {
	Stage   string
	Topic   string
	Message string
	Err     error
	Time    time.Time
}

// Notifier receives engine events. Implementations must not block.
type Notifier interface {
	Notify(ev Event)
}

// LogNotifier writes every event to the standard logger.
type LogNotifier struct{}

func (LogNotifier) Notify(ev Event) {
	msg := ev.Message
	if ev.Topic != "" {
		msg = ev.Topic + ": " + msg
	}
	if ev.Err != nil {
		log.Printf("[%s] %s: %v", ev.Stage, msg, ev.Err)
		return
	}
	log.Printf("[%s] %s", ev.Stage, msg)
}

// ChannelNotifier buffers events for an embedding host to drain. When the
// buffer is full new events are dropped instead of blocking the engine.
type ChannelNotifier struct {
	ch chan Event
}

func NewChannelNotifier(size int) *ChannelNotifier {
	if size <= 0 {
		size = 16
	}
	return &ChannelNotifier{ch: make(chan Event, size)}
}

func (n *ChannelNotifier) Notify(ev Event) {
	if ev.Time.IsZero() {
		ev.Time = time.Now()
	}
	select {
	case n.ch <- ev:
	default:
		log.Printf("[notify] buffer full, dropping %s event", ev.Stage)
	}
}

// Events exposes the buffered stream for the host to consume.
func (n *ChannelNotifier) Events() <-chan Event {
	return n.ch
}

// Nop discards all events.
type Nop struct{}

func (Nop) Notify(Event) {}

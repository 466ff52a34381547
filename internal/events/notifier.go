package events

import "sync"

// Notification is the in-process refresh signal published after a
// mutation commits. Delivery is fire-and-forget: a slow subscriber
// drops notifications rather than blocking the workflow, and any view
// that misses one can re-read from the durable log.
type Notification struct {
	Type       string
	EntityKind string
	EntityID   string
	ActorID    string
}

type Notifier struct {
	mu   sync.Mutex
	subs map[int]chan Notification
	next int
}

func NewNotifier() *Notifier {
	return &Notifier{subs: make(map[int]chan Notification)}
}

// Subscribe returns a buffered channel of notifications and a cancel
// function. The channel is closed on cancel.
func (n *Notifier) Subscribe() (<-chan Notification, func()) {
	n.mu.Lock()
	defer n.mu.Unlock()
	id := n.next
	n.next++
	ch := make(chan Notification, 16)
	n.subs[id] = ch
	cancel := func() {
		n.mu.Lock()
		defer n.mu.Unlock()
		if c, ok := n.subs[id]; ok {
			delete(n.subs, id)
			close(c)
		}
	}
	return ch, cancel
}

// Publish delivers to every subscriber without blocking.
func (n *Notifier) Publish(note Notification) {
	if n == nil {
		return
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, ch := range n.subs {
		select {
		case ch <- note:
		default:
		}
	}
}

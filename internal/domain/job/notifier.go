package job

import (
	"sync"
)

// Notifier manages subscriptions for "work may be available" signals.
type Notifier interface {
	Subscribe() (func(), <-chan struct{})
	Notify()
	StopAll()
}

// DefaultNotifier is the default in-process implementation of Notifier.
// Each subscriber channel buffers a single signal; repeated notifications coalesce.
type DefaultNotifier struct {
	mu      sync.Mutex
	subs    map[chan struct{}]struct{}
	stopped bool
}

// NewNotifier constructs the default notifier implementation.
func NewNotifier() *DefaultNotifier {
	return &DefaultNotifier{
		subs: make(map[chan struct{}]struct{}),
	}
}

func (n *DefaultNotifier) Subscribe() (func(), <-chan struct{}) {
	n.mu.Lock()
	defer n.mu.Unlock()

	ch := make(chan struct{}, 1)
	if n.stopped {
		close(ch)
		return func() {}, ch
	}
	n.subs[ch] = struct{}{}

	unsub := func() {
		n.mu.Lock()
		defer n.mu.Unlock()
		if _, ok := n.subs[ch]; !ok {
			return
		}
		delete(n.subs, ch)
		drainAndClose(ch)
	}

	return unsub, ch
}

// Notify wakes every subscriber without blocking.
func (n *DefaultNotifier) Notify() {
	n.mu.Lock()
	defer n.mu.Unlock()

	for ch := range n.subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

func (n *DefaultNotifier) StopAll() {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.stopped = true
	for ch := range n.subs {
		drainAndClose(ch)
		delete(n.subs, ch)
	}
}

// drainAndClose removes any buffered notifications before closing the channel so
// receivers observe a closed channel immediately.
func drainAndClose(ch chan struct{}) {
	for {
		select {
		case <-ch:
		default:
			close(ch)
			return
		}
	}
}

var _ Notifier = (*DefaultNotifier)(nil)

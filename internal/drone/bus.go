package drone

import (
	"sync"

	"HumaGCS/internal/link"
)

const subscriptionBuffer = 64

type subscription struct {
	ch  chan link.Frame
	all bool // every component, not just the autopilot
}

// frameBus fans received frames out to waiters. publish never blocks: a waiter
// that falls behind loses frames.
type frameBus struct {
	mu   sync.Mutex
	next int
	subs map[int]subscription
}

func newFrameBus() *frameBus {
	return &frameBus{subs: make(map[int]subscription)}
}

// subscribe delivers frames from the autopilot component only.
func (b *frameBus) subscribe() (<-chan link.Frame, func()) {
	return b.add(false)
}

func (b *frameBus) add(all bool) (<-chan link.Frame, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.next
	b.next++
	ch := make(chan link.Frame, subscriptionBuffer)
	b.subs[id] = subscription{ch: ch, all: all}

	var once sync.Once
	unsubscribe := func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
		})
	}
	return ch, unsubscribe
}

func (b *frameBus) publish(f link.Frame, fromAutopilot bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, sub := range b.subs {
		if !fromAutopilot && !sub.all {
			continue
		}
		select {
		case sub.ch <- f:
		default:
		}
	}
}

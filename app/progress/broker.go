// Package progress fans session progress out to live subscribers (SSE clients).
package progress

import (
	"sync"

	"github.com/draiimon/PanicSense-Final-sub000/app/models"
)

const subscriberBuffer = 16

type Broker struct {
	mu   sync.Mutex
	subs map[string]map[chan models.Progress]struct{}
	last map[string]models.Progress
}

func NewBroker() *Broker {
	return &Broker{
		subs: make(map[string]map[chan models.Progress]struct{}),
		last: make(map[string]models.Progress),
	}
}

// Subscribe returns a channel of progress updates for one session. The most
// recent update, if any, is delivered first. The channel is closed once the
// session finishes or the returned cancel func is called.
func (b *Broker) Subscribe(sessionID string) (<-chan models.Progress, func()) {
	ch := make(chan models.Progress, subscriberBuffer)

	b.mu.Lock()
	if b.subs[sessionID] == nil {
		b.subs[sessionID] = make(map[chan models.Progress]struct{})
	}
	b.subs[sessionID][ch] = struct{}{}
	if p, ok := b.last[sessionID]; ok {
		ch <- p
	}
	b.mu.Unlock()

	return ch, func() { b.unsubscribe(sessionID, ch) }
}

func (b *Broker) unsubscribe(sessionID string, ch chan models.Progress) {
	b.mu.Lock()
	defer b.mu.Unlock()
	set := b.subs[sessionID]
	if _, ok := set[ch]; !ok {
		return
	}
	delete(set, ch)
	close(ch)
	if len(set) == 0 {
		delete(b.subs, sessionID)
	}
}

// Publish never blocks. A slow subscriber loses its oldest queued update.
func (b *Broker) Publish(sessionID string, p models.Progress) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for ch := range b.subs[sessionID] {
		offer(ch, p)
	}
	if !p.Done() {
		b.last[sessionID] = p
		return
	}

	delete(b.last, sessionID)
	for ch := range b.subs[sessionID] {
		close(ch)
	}
	delete(b.subs, sessionID)
}

func (b *Broker) Subscribers(sessionID string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs[sessionID])
}

func offer(ch chan models.Progress, p models.Progress) {
	select {
	case ch <- p:
		return
	default:
	}
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- p:
	default:
	}
}

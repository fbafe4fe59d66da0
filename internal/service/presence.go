package service

import (
	"sync"

	"github.com/betahouse/betahouse/internal/domain"
)

// presenceBuffer is the per-subscriber channel depth. A subscriber that
// falls further behind starts dropping pushes; the durable record in the
// store is the source of truth anyway.
const presenceBuffer = 16

// Presence tracks which accounts currently hold a live event stream. One
// stream per account: a newer connection replaces the older one, matching
// how a user moving between tabs expects pushes to follow them.
type Presence struct {
	mu   sync.Mutex
	subs map[string]chan domain.Notification
}

func NewPresence() *Presence {
	return &Presence{subs: make(map[string]chan domain.Notification)}
}

// Subscribe registers the account and returns its push channel plus a
// cancel func. Cancel only removes the registration if it still belongs to
// this subscriber, so a replaced connection cannot tear down its successor.
func (p *Presence) Subscribe(accountID string) (<-chan domain.Notification, func()) {
	ch := make(chan domain.Notification, presenceBuffer)

	p.mu.Lock()
	if old, ok := p.subs[accountID]; ok {
		close(old)
	}
	p.subs[accountID] = ch
	p.mu.Unlock()

	cancel := func() {
		p.mu.Lock()
		if p.subs[accountID] == ch {
			delete(p.subs, accountID)
			close(ch)
		}
		p.mu.Unlock()
	}
	return ch, cancel
}

// Publish pushes a notification to the account's live stream, if any.
// Non-blocking: a full buffer drops the push. The send happens under the
// lock so a concurrent reconnect cannot close the channel mid-send; it
// never blocks, so holding the lock is safe.
func (p *Presence) Publish(accountID string, n domain.Notification) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	ch, ok := p.subs[accountID]
	if !ok {
		return false
	}
	select {
	case ch <- n:
		return true
	default:
		return false
	}
}

// Online reports whether the account has a live stream.
func (p *Presence) Online(accountID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.subs[accountID]
	return ok
}

// Count returns the number of accounts currently connected.
func (p *Presence) Count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.subs)
}

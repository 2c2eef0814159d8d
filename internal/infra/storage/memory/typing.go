package memory

import (
	"context"
	"sync"
	"time"

	appchat "pingme/internal/app/services/chat"
	domainchat "pingme/internal/domain/chat"
)

// Presence is the in-memory typing tracker. Each signal schedules its own
// clear after domainchat.TypingTTL, mirroring the TTL the Redis tracker
// gets for free.
type Presence struct {
	mu       sync.Mutex
	signals  map[string]map[string]domainchat.TypingSignal // conversation -> user -> signal
	timers   map[string]map[string]*time.Timer
	watchers map[int]*typingWatcher
	nextID   int
}

type typingWatcher struct {
	conversationID string
	fn             func([]domainchat.TypingSignal)
}

func NewPresence() *Presence {
	return &Presence{
		signals:  make(map[string]map[string]domainchat.TypingSignal),
		timers:   make(map[string]map[string]*time.Timer),
		watchers: make(map[int]*typingWatcher),
	}
}

func (p *Presence) SetTyping(ctx context.Context, conversationID string, signal domainchat.TypingSignal) error {
	p.mu.Lock()
	if p.signals[conversationID] == nil {
		p.signals[conversationID] = make(map[string]domainchat.TypingSignal)
		p.timers[conversationID] = make(map[string]*time.Timer)
	}
	p.signals[conversationID][signal.UserID] = signal
	if timer := p.timers[conversationID][signal.UserID]; timer != nil {
		timer.Stop()
	}
	userID := signal.UserID
	p.timers[conversationID][userID] = time.AfterFunc(domainchat.TypingTTL, func() {
		p.expire(conversationID, userID)
	})
	notify := p.pending(conversationID)
	p.mu.Unlock()

	for _, fn := range notify {
		fn()
	}
	return nil
}

func (p *Presence) ClearTyping(ctx context.Context, conversationID, userID string) error {
	p.mu.Lock()
	notify := p.removeLocked(conversationID, userID)
	p.mu.Unlock()

	for _, fn := range notify {
		fn()
	}
	return nil
}

func (p *Presence) WatchTyping(ctx context.Context, conversationID string, fn func([]domainchat.TypingSignal)) appchat.CancelFunc {
	p.mu.Lock()
	id := p.nextID
	p.nextID++
	p.watchers[id] = &typingWatcher{conversationID: conversationID, fn: fn}
	snapshot := p.snapshot(conversationID)
	p.mu.Unlock()

	fn(snapshot)
	return func() {
		p.mu.Lock()
		delete(p.watchers, id)
		p.mu.Unlock()
	}
}

func (p *Presence) expire(conversationID, userID string) {
	p.mu.Lock()
	notify := p.removeLocked(conversationID, userID)
	p.mu.Unlock()

	for _, fn := range notify {
		fn()
	}
}

// removeLocked tolerates already-absent records: clearing twice or clearing
// after expiry is success, and watchers are only poked when something
// actually changed.
func (p *Presence) removeLocked(conversationID, userID string) []func() {
	users := p.signals[conversationID]
	if _, ok := users[userID]; !ok {
		return nil
	}
	delete(users, userID)
	if timer := p.timers[conversationID][userID]; timer != nil {
		timer.Stop()
		delete(p.timers[conversationID], userID)
	}
	return p.pending(conversationID)
}

func (p *Presence) pending(conversationID string) []func() {
	var notify []func()
	for _, w := range p.watchers {
		if w.conversationID != conversationID {
			continue
		}
		fn, snapshot := w.fn, p.snapshot(conversationID)
		notify = append(notify, func() { fn(snapshot) })
	}
	return notify
}

func (p *Presence) snapshot(conversationID string) []domainchat.TypingSignal {
	users := p.signals[conversationID]
	out := make([]domainchat.TypingSignal, 0, len(users))
	for _, s := range users {
		out = append(out, s)
	}
	return out
}

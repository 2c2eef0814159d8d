package chat

import (
	"context"
	"sync"
	"time"

	domainchat "pingme/internal/domain/chat"
)

// TypingSession watches a conversation's typing records for one viewer.
// Raw records are filtered client-side: the viewer's own signal and
// anything older than domainchat.TypingTTL never reach Updates, even when
// the publisher's explicit clear was lost.
type TypingSession struct {
	mu      sync.Mutex
	closed  bool
	updates chan []domainchat.TypingSignal
	cancel  CancelFunc
}

// WatchTyping starts a filtered typing watch for the viewer.
func WatchTyping(ctx context.Context, presence Presence, conversationID, viewerID string) *TypingSession {
	s := &TypingSession{
		updates: make(chan []domainchat.TypingSignal, 4),
	}
	s.cancel = presence.WatchTyping(ctx, conversationID, func(signals []domainchat.TypingSignal) {
		s.push(domainchat.ActiveTypists(signals, viewerID, time.Now()))
	})
	return s
}

// Updates yields the active set of other currently-typing users.
func (s *TypingSession) Updates() <-chan []domainchat.TypingSignal {
	return s.updates
}

// Close stops deliveries and releases the watch.
func (s *TypingSession) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	cancel := s.cancel
	close(s.updates)
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

func (s *TypingSession) push(active []domainchat.TypingSignal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	for {
		select {
		case s.updates <- active:
			return
		default:
			select {
			case <-s.updates:
			default:
			}
		}
	}
}

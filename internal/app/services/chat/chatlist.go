package chat

import (
	"context"
	"log/slog"
	"sync"

	domainchat "pingme/internal/domain/chat"
)

// ListSnapshot is one fully-replaced delivery of a user's conversation
// list. FromCache marks a locally cached result still awaiting network
// confirmation; Loading stays true until the first live snapshot (or
// immediately false when the live result is empty, so a user with zero
// conversations never spins forever).
type ListSnapshot struct {
	Entries   []domainchat.ListEntry
	Unread    int
	FromCache bool
	Loading   bool
}

// ListCache keeps the last confirmed snapshot per user so a reopened list
// renders instantly while the live subscription reconnects.
type ListCache struct {
	mu      sync.RWMutex
	entries map[string][]domainchat.ListEntry
}

// NewListCache builds an empty cache.
func NewListCache() *ListCache {
	return &ListCache{entries: make(map[string][]domainchat.ListEntry)}
}

// Get returns the cached list for the user, if any.
func (c *ListCache) Get(userID string) ([]domainchat.ListEntry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	entries, ok := c.entries[userID]
	if !ok {
		return nil, false
	}
	out := make([]domainchat.ListEntry, len(entries))
	copy(out, entries)
	return out, true
}

// Put replaces the cached list for the user.
func (c *ListCache) Put(userID string, entries []domainchat.ListEntry) {
	stored := make([]domainchat.ListEntry, len(entries))
	copy(stored, entries)
	c.mu.Lock()
	c.entries[userID] = stored
	c.mu.Unlock()
}

// ListSession is one user's live conversation list. Each delivery replaces
// the previous one entirely; ordering comes from the store (last-message
// timestamp descending) and is never re-corrected client-side between
// snapshots.
type ListSession struct {
	userID string
	dir    Directory
	cache  *ListCache
	logger *slog.Logger

	mu      sync.Mutex
	closed  bool
	live    bool
	updates chan ListSnapshot
	cancel  CancelFunc
}

// OpenList emits the cached snapshot immediately when present, then
// subscribes to live chat updates for the user. Close releases the
// subscription.
func OpenList(ctx context.Context, store ListStore, dir Directory, cache *ListCache, userID string, limit int64, logger *slog.Logger) *ListSession {
	s := &ListSession{
		userID:  userID,
		dir:     dir,
		cache:   cache,
		logger:  logger,
		updates: make(chan ListSnapshot, 8),
	}
	if cache != nil {
		if cached, ok := cache.Get(userID); ok {
			s.push(ListSnapshot{
				Entries:   cached,
				Unread:    domainchat.UnreadCount(cached, userID),
				FromCache: true,
			})
		}
	}
	s.cancel = store.SubscribeChats(ctx, userID, limit, func(conversations []domainchat.Conversation) {
		s.onLive(ctx, conversations)
	})
	return s
}

// Updates yields list snapshots, cached first when available.
func (s *ListSession) Updates() <-chan ListSnapshot {
	return s.updates
}

// Close stops deliveries and releases the live subscription.
func (s *ListSession) Close() {
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

func (s *ListSession) onLive(ctx context.Context, conversations []domainchat.Conversation) {
	entries := s.enrich(ctx, conversations)
	if s.cache != nil {
		s.cache.Put(s.userID, entries)
	}
	s.mu.Lock()
	s.live = true
	s.mu.Unlock()
	s.push(ListSnapshot{
		Entries: entries,
		Unread:  domainchat.UnreadCount(entries, s.userID),
	})
}

// enrich resolves the peer profile for each conversation. A failed lookup
// drops that entry only; the rest of the list still goes out.
func (s *ListSession) enrich(ctx context.Context, conversations []domainchat.Conversation) []domainchat.ListEntry {
	entries := make([]domainchat.ListEntry, 0, len(conversations))
	for _, conv := range conversations {
		peerID, ok := conv.Peer(s.userID)
		if !ok {
			continue
		}
		profile, err := s.dir.Lookup(ctx, peerID)
		if err != nil {
			if s.logger != nil {
				s.logger.Warn("peer lookup failed, conversation skipped",
					"conversation_id", conv.ID, "peer_id", peerID, "error", err)
			}
			continue
		}
		seen := conv.LastMessage.Seen || conv.LastMessage.SenderID == s.userID
		entries = append(entries, domainchat.ListEntry{
			ConversationID: conv.ID,
			Peer:           profile,
			LastText:       conv.LastMessage.Text,
			LastSenderID:   conv.LastMessage.SenderID,
			LastAt:         conv.LastMessage.SentAt,
			Seen:           seen,
		})
	}
	return entries
}

func (s *ListSession) push(snapshot ListSnapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	snapshot.Loading = snapshot.FromCache && !s.live
	for {
		select {
		case s.updates <- snapshot:
			return
		default:
			select {
			case <-s.updates:
			default:
			}
		}
	}
}

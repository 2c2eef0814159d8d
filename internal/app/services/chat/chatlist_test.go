package chat

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	domainchat "pingme/internal/domain/chat"
)

type fakeListStore struct {
	mu       sync.Mutex
	fn       func([]domainchat.Conversation)
	canceled bool
}

func (s *fakeListStore) SubscribeChats(ctx context.Context, userID string, limit int64, fn func([]domainchat.Conversation)) CancelFunc {
	s.mu.Lock()
	s.fn = fn
	s.mu.Unlock()
	return func() {
		s.mu.Lock()
		s.canceled = true
		s.mu.Unlock()
	}
}

func (s *fakeListStore) deliver(conversations []domainchat.Conversation) {
	s.mu.Lock()
	fn := s.fn
	s.mu.Unlock()
	if fn != nil {
		fn(conversations)
	}
}

type fakeDirectory struct {
	profiles map[string]domainchat.Profile
	broken   map[string]bool
}

func (d *fakeDirectory) Lookup(ctx context.Context, userID string) (domainchat.Profile, error) {
	if d.broken[userID] {
		return domainchat.Profile{}, errors.New("directory unavailable")
	}
	p, ok := d.profiles[userID]
	if !ok {
		return domainchat.Profile{}, errors.New("profile not found")
	}
	return p, nil
}

func awaitSnapshot(t *testing.T, s *ListSession, cond func(ListSnapshot) bool) ListSnapshot {
	t.Helper()
	deadline := time.After(2 * time.Second)
	var last ListSnapshot
	for {
		select {
		case snap, ok := <-s.Updates():
			if !ok {
				t.Fatalf("updates closed before condition, last %+v", last)
			}
			last = snap
			if cond(snap) {
				return snap
			}
		case <-deadline:
			t.Fatalf("condition never met, last %+v", last)
		}
	}
}

func conversationWith(id, peer, lastSender, text string, seen bool, at time.Time) domainchat.Conversation {
	return domainchat.Conversation{
		ID:           id,
		Participants: []string{"alice", peer},
		LastMessage: domainchat.Summary{
			Text:     text,
			SenderID: lastSender,
			SentAt:   at,
			Seen:     seen,
		},
	}
}

func TestListSessionCacheThenLive(t *testing.T) {
	store := &fakeListStore{}
	dir := &fakeDirectory{profiles: map[string]domainchat.Profile{
		"bob": {ID: "bob", Username: "bob", DisplayName: "Bob"},
	}}
	cache := NewListCache()
	cache.Put("alice", []domainchat.ListEntry{{
		ConversationID: "alice_bob",
		Peer:           domainchat.Profile{ID: "bob", Username: "bob"},
		LastText:       "stale hello",
	}})

	session := OpenList(context.Background(), store, dir, cache, "alice", 50, nil)
	defer session.Close()

	cached := awaitSnapshot(t, session, func(s ListSnapshot) bool { return s.FromCache })
	if !cached.Loading {
		t.Error("cached snapshot should still be loading")
	}
	if len(cached.Entries) != 1 || cached.Entries[0].LastText != "stale hello" {
		t.Fatalf("cached entries = %+v", cached.Entries)
	}

	now := time.Now()
	store.deliver([]domainchat.Conversation{
		conversationWith("alice_bob", "bob", "bob", "fresh hello", false, now),
	})
	live := awaitSnapshot(t, session, func(s ListSnapshot) bool { return !s.FromCache })
	if live.Loading {
		t.Error("live snapshot still marked loading")
	}
	if len(live.Entries) != 1 || live.Entries[0].LastText != "fresh hello" {
		t.Fatalf("live entries = %+v", live.Entries)
	}
	if live.Unread != 1 {
		t.Errorf("unread = %d, want 1", live.Unread)
	}

	// The confirmed result replaces the cache for the next mount.
	refreshed, ok := cache.Get("alice")
	if !ok || len(refreshed) != 1 || refreshed[0].LastText != "fresh hello" {
		t.Fatalf("cache not refreshed: %+v", refreshed)
	}
}

func TestListSessionEmptyLiveResultClearsLoading(t *testing.T) {
	store := &fakeListStore{}
	session := OpenList(context.Background(), store, &fakeDirectory{}, NewListCache(), "alice", 50, nil)
	defer session.Close()

	store.deliver(nil)
	snap := awaitSnapshot(t, session, func(s ListSnapshot) bool { return !s.FromCache })
	if snap.Loading || len(snap.Entries) != 0 || snap.Unread != 0 {
		t.Fatalf("empty live snapshot = %+v", snap)
	}
}

func TestListSessionSkipsEntriesWithBrokenLookup(t *testing.T) {
	store := &fakeListStore{}
	dir := &fakeDirectory{
		profiles: map[string]domainchat.Profile{"bob": {ID: "bob"}},
		broken:   map[string]bool{"carol": true},
	}
	session := OpenList(context.Background(), store, dir, nil, "alice", 50, nil)
	defer session.Close()

	now := time.Now()
	store.deliver([]domainchat.Conversation{
		conversationWith("alice_carol", "carol", "carol", "lost", false, now),
		conversationWith("alice_bob", "bob", "bob", "kept", false, now.Add(-time.Minute)),
	})
	snap := awaitSnapshot(t, session, func(s ListSnapshot) bool { return !s.FromCache })
	if len(snap.Entries) != 1 || snap.Entries[0].ConversationID != "alice_bob" {
		t.Fatalf("entries = %+v, want only alice_bob", snap.Entries)
	}
}

func TestListSessionSeenFlagFollowsViewer(t *testing.T) {
	store := &fakeListStore{}
	dir := &fakeDirectory{profiles: map[string]domainchat.Profile{"bob": {ID: "bob"}}}
	session := OpenList(context.Background(), store, dir, nil, "alice", 50, nil)
	defer session.Close()

	// Last message sent by the viewer counts as seen even without an
	// explicit mark-read.
	store.deliver([]domainchat.Conversation{
		conversationWith("alice_bob", "bob", "alice", "mine", false, time.Now()),
	})
	snap := awaitSnapshot(t, session, func(s ListSnapshot) bool { return !s.FromCache })
	if !snap.Entries[0].Seen || snap.Unread != 0 {
		t.Fatalf("snapshot = %+v, viewer's own message must read as seen", snap)
	}
}

// brokenListStore behaves like a failed change-stream watch: one empty
// delivery, no live updates afterwards.
type brokenListStore struct{}

func (brokenListStore) SubscribeChats(ctx context.Context, userID string, limit int64, fn func([]domainchat.Conversation)) CancelFunc {
	fn(nil)
	return func() {}
}

func TestListSessionSubscriptionErrorDegradesToEmptyList(t *testing.T) {
	session := OpenList(context.Background(), brokenListStore{}, &fakeDirectory{}, NewListCache(), "alice", 50, nil)
	defer session.Close()

	// Same shape as a user with no conversations: empty list, loading
	// cleared, no error surfaced.
	snap := awaitSnapshot(t, session, func(s ListSnapshot) bool { return !s.FromCache })
	if snap.Loading || len(snap.Entries) != 0 || snap.Unread != 0 {
		t.Fatalf("degraded snapshot = %+v, want an empty settled list", snap)
	}
}

func TestListSessionCloseReleasesSubscription(t *testing.T) {
	store := &fakeListStore{}
	session := OpenList(context.Background(), store, &fakeDirectory{}, nil, "alice", 50, nil)
	session.Close()
	session.Close()

	store.mu.Lock()
	canceled := store.canceled
	store.mu.Unlock()
	if !canceled {
		t.Fatal("Close did not cancel the list subscription")
	}
}

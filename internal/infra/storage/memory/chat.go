package memory

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	appchat "pingme/internal/app/services/chat"
	domainchat "pingme/internal/domain/chat"
)

// ErrProfileNotFound is returned when a directory lookup misses.
var ErrProfileNotFound = errors.New("memory: profile not found")

// ChatStore is an in-memory implementation of the chat gateway and both
// live subscriptions, used when no database is configured and as the
// substrate for tests. Writes follow the same all-or-nothing rule as the
// transactional store: the message append and the summary update commit
// together or not at all.
type ChatStore struct {
	mu       sync.Mutex
	messages map[string][]domainchat.Message
	chats    map[string]domainchat.Conversation
	msgSubs  map[int]*messageSub
	chatSubs map[int]*chatSub
	nextSub  int

	// BeforeSummaryWrite, when set, runs between the message append and the
	// summary upsert. An error aborts the whole write with no partial state.
	BeforeSummaryWrite func() error

	// SubscribeFailure, when set, makes subscriptions behave like a broken
	// change stream: one empty delivery, no further updates.
	SubscribeFailure error
}

type messageSub struct {
	conversationID string
	limit          int64
	fn             func([]domainchat.Message)
}

type chatSub struct {
	userID string
	limit  int64
	fn     func([]domainchat.Conversation)
}

// NewChatStore builds an empty store.
func NewChatStore() *ChatStore {
	return &ChatStore{
		messages: make(map[string][]domainchat.Message),
		chats:    make(map[string]domainchat.Conversation),
		msgSubs:  make(map[int]*messageSub),
		chatSubs: make(map[int]*chatSub),
	}
}

// SendMessage appends the message and updates the conversation summary
// atomically, then notifies affected subscribers.
func (s *ChatStore) SendMessage(ctx context.Context, draft domainchat.Draft) (string, error) {
	if err := draft.Validate(); err != nil {
		return "", err
	}
	draft = draft.Normalized()
	now := time.Now().UTC()
	msg := domainchat.Message{
		ID:             uuid.NewString(),
		ConversationID: draft.ConversationID,
		SenderID:       draft.SenderID,
		ReceiverID:     draft.ReceiverID,
		Text:           draft.Text,
		MediaURL:       draft.MediaURL,
		Type:           draft.Type,
		Status:         domainchat.StatusSent,
		CreatedAt:      now,
		ClientID:       draft.ClientID,
	}

	s.mu.Lock()
	if s.BeforeSummaryWrite != nil {
		// The append is staged but not visible yet; an abort here must leave
		// both collections untouched.
		if err := s.BeforeSummaryWrite(); err != nil {
			s.mu.Unlock()
			return "", fmt.Errorf("memory: send message: %w", err)
		}
	}
	s.messages[draft.ConversationID] = append(s.messages[draft.ConversationID], msg)

	conv, ok := s.chats[draft.ConversationID]
	if !ok {
		participants := []string{draft.SenderID, draft.ReceiverID}
		sort.Strings(participants)
		conv = domainchat.Conversation{
			ID:           draft.ConversationID,
			Participants: participants,
			CreatedAt:    now,
		}
	}
	conv.LastMessage = domainchat.Summary{
		Text:     draft.Text,
		SenderID: draft.SenderID,
		SentAt:   now,
		Seen:     false,
	}
	s.chats[draft.ConversationID] = conv
	notify := s.pendingNotifications(draft.ConversationID, conv.Participants)
	s.mu.Unlock()

	for _, fn := range notify {
		fn()
	}
	return msg.ID, nil
}

// MarkMessagesAsSeen flips unseen messages addressed to the viewer and the
// summary flag when the last message came from the other side. Idempotent.
func (s *ChatStore) MarkMessagesAsSeen(ctx context.Context, conversationID, viewerID string) error {
	s.mu.Lock()
	changed := false
	log := s.messages[conversationID]
	for i := range log {
		if log[i].ReceiverID == viewerID && !log[i].Seen {
			log[i].Seen = true
			log[i].Status = domainchat.StatusSeen
			changed = true
		}
	}
	conv, ok := s.chats[conversationID]
	if ok && conv.LastMessage.SenderID != viewerID && !conv.LastMessage.Seen {
		conv.LastMessage.Seen = true
		s.chats[conversationID] = conv
		changed = true
	}
	var notify []func()
	if changed {
		notify = s.pendingNotifications(conversationID, conv.Participants)
	}
	s.mu.Unlock()

	for _, fn := range notify {
		fn()
	}
	return nil
}

// SubscribeMessages delivers the conversation window now and after every
// write touching it.
func (s *ChatStore) SubscribeMessages(ctx context.Context, conversationID string, limit int64, fn func([]domainchat.Message)) appchat.CancelFunc {
	s.mu.Lock()
	if s.SubscribeFailure != nil {
		s.mu.Unlock()
		fn(nil)
		return func() {}
	}
	id := s.nextSub
	s.nextSub++
	s.msgSubs[id] = &messageSub{conversationID: conversationID, limit: limit, fn: fn}
	snapshot := s.window(conversationID, limit)
	s.mu.Unlock()

	fn(snapshot)
	return func() {
		s.mu.Lock()
		delete(s.msgSubs, id)
		s.mu.Unlock()
	}
}

// SubscribeChats delivers the user's conversation list now and after every
// write to any of their conversations.
func (s *ChatStore) SubscribeChats(ctx context.Context, userID string, limit int64, fn func([]domainchat.Conversation)) appchat.CancelFunc {
	s.mu.Lock()
	if s.SubscribeFailure != nil {
		s.mu.Unlock()
		fn(nil)
		return func() {}
	}
	id := s.nextSub
	s.nextSub++
	s.chatSubs[id] = &chatSub{userID: userID, limit: limit, fn: fn}
	snapshot := s.userChats(userID, limit)
	s.mu.Unlock()

	fn(snapshot)
	return func() {
		s.mu.Lock()
		delete(s.chatSubs, id)
		s.mu.Unlock()
	}
}

// Messages returns a copy of the conversation log, oldest first.
func (s *ChatStore) Messages(conversationID string) []domainchat.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	log := s.messages[conversationID]
	out := make([]domainchat.Message, len(log))
	copy(out, log)
	return out
}

// Conversation returns the summary record, if present.
func (s *ChatStore) Conversation(conversationID string) (domainchat.Conversation, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	conv, ok := s.chats[conversationID]
	return conv, ok
}

// pendingNotifications snapshots the deliveries owed to subscribers of the
// touched conversation. Callbacks run outside the lock.
func (s *ChatStore) pendingNotifications(conversationID string, participants []string) []func() {
	var notify []func()
	for _, sub := range s.msgSubs {
		if sub.conversationID != conversationID {
			continue
		}
		fn, snapshot := sub.fn, s.window(conversationID, sub.limit)
		notify = append(notify, func() { fn(snapshot) })
	}
	for _, sub := range s.chatSubs {
		member := false
		for _, p := range participants {
			if p == sub.userID {
				member = true
				break
			}
		}
		if !member {
			continue
		}
		fn, snapshot := sub.fn, s.userChats(sub.userID, sub.limit)
		notify = append(notify, func() { fn(snapshot) })
	}
	return notify
}

func (s *ChatStore) window(conversationID string, limit int64) []domainchat.Message {
	log := s.messages[conversationID]
	start := 0
	if limit > 0 && int64(len(log)) > limit {
		start = len(log) - int(limit)
	}
	out := make([]domainchat.Message, len(log)-start)
	copy(out, log[start:])
	return out
}

func (s *ChatStore) userChats(userID string, limit int64) []domainchat.Conversation {
	var out []domainchat.Conversation
	for _, conv := range s.chats {
		for _, p := range conv.Participants {
			if p == userID {
				out = append(out, conv)
				break
			}
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].LastMessage.SentAt.After(out[j].LastMessage.SentAt)
	})
	if limit > 0 && int64(len(out)) > limit {
		out = out[:limit]
	}
	return out
}

// Directory is an in-memory profile lookup seeded by tests and the dev
// harness.
type Directory struct {
	mu       sync.RWMutex
	profiles map[string]domainchat.Profile
}

func NewDirectory() *Directory {
	return &Directory{profiles: make(map[string]domainchat.Profile)}
}

func (d *Directory) Seed(profile domainchat.Profile) {
	d.mu.Lock()
	d.profiles[profile.ID] = profile
	d.mu.Unlock()
}

func (d *Directory) Lookup(ctx context.Context, userID string) (domainchat.Profile, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	profile, ok := d.profiles[userID]
	if !ok {
		return domainchat.Profile{}, fmt.Errorf("%w: %s", ErrProfileNotFound, userID)
	}
	return profile, nil
}

package chat

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// OptimisticMessage is a locally created, not-yet-confirmed projection of a
// Message. It lives only in the sending client's buffer and is never
// persisted remotely.
type OptimisticMessage struct {
	Message
	TempID string
	Failed bool
}

// OptimisticPatch carries partial updates for a buffered entry. Nil fields
// are left untouched.
type OptimisticPatch struct {
	Status   *MessageStatus
	Failed   *bool
	Text     *string
	MediaURL *string
}

// OptimisticBuffer holds pending sends keyed by temporary id, in insertion
// order. Safe for concurrent use.
type OptimisticBuffer struct {
	mu      sync.Mutex
	entries []OptimisticMessage
}

// NewOptimisticBuffer builds an empty buffer.
func NewOptimisticBuffer() *OptimisticBuffer {
	return &OptimisticBuffer{}
}

// Add inserts a pending entry for the draft and returns its temporary id
// synchronously. The id combines wall-clock millis with a random suffix so
// rapid sends never collide.
func (b *OptimisticBuffer) Add(d Draft) string {
	n := d.Normalized()
	tempID := fmt.Sprintf("tmp-%d-%s", time.Now().UnixMilli(), uuid.NewString()[:8])
	entry := OptimisticMessage{
		Message: Message{
			ID:             tempID,
			ConversationID: n.ConversationID,
			SenderID:       n.SenderID,
			ReceiverID:     n.ReceiverID,
			Text:           n.Text,
			MediaURL:       n.MediaURL,
			Type:           n.Type,
			Status:         StatusSending,
			CreatedAt:      time.Now().UTC(),
			ClientID:       tempID,
		},
		TempID: tempID,
	}
	b.mu.Lock()
	b.entries = append(b.entries, entry)
	b.mu.Unlock()
	return tempID
}

// Update merges patch fields into the entry matched by tempID. Returns false
// when no such entry is buffered.
func (b *OptimisticBuffer) Update(tempID string, patch OptimisticPatch) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i := range b.entries {
		if b.entries[i].TempID != tempID {
			continue
		}
		if patch.Status != nil {
			b.entries[i].Status = *patch.Status
		}
		if patch.Failed != nil {
			b.entries[i].Failed = *patch.Failed
		}
		if patch.Text != nil {
			b.entries[i].Text = *patch.Text
		}
		if patch.MediaURL != nil {
			b.entries[i].MediaURL = *patch.MediaURL
		}
		return true
	}
	return false
}

// Remove deletes the entry matched by tempID, typically once the confirmed
// message has superseded it.
func (b *OptimisticBuffer) Remove(tempID string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i := range b.entries {
		if b.entries[i].TempID == tempID {
			b.entries = append(b.entries[:i], b.entries[i+1:]...)
			return true
		}
	}
	return false
}

// Get returns a buffered entry by temporary id.
func (b *OptimisticBuffer) Get(tempID string) (OptimisticMessage, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, e := range b.entries {
		if e.TempID == tempID {
			return e, true
		}
	}
	return OptimisticMessage{}, false
}

// Pending returns a copy of the buffered entries in insertion order.
func (b *OptimisticBuffer) Pending() []OptimisticMessage {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]OptimisticMessage, len(b.entries))
	copy(out, b.entries)
	return out
}

// DisplayMessage is one row of a rendered conversation: a confirmed message
// or a still-pending optimistic one.
type DisplayMessage struct {
	Message
	TempID  string
	Pending bool
	Failed  bool
}

// MergeForDisplay combines the confirmed log with pending optimistic
// entries. Confirmed messages keep their backend order; optimistic entries
// always trail them in insertion order, so history never reorders once a
// send is confirmed. A confirmed message supersedes the optimistic entry
// carrying the same client id: the pending copy is suppressed, so no
// snapshot ever shows a message twice while the two sides race.
func MergeForDisplay(confirmed []Message, pending []OptimisticMessage) []DisplayMessage {
	out := make([]DisplayMessage, 0, len(confirmed)+len(pending))
	superseded := make(map[string]bool, len(confirmed))
	for _, m := range confirmed {
		if m.ClientID != "" {
			superseded[m.ClientID] = true
		}
		out = append(out, DisplayMessage{Message: m, TempID: m.ClientID})
	}
	for _, p := range pending {
		if superseded[p.TempID] {
			continue
		}
		out = append(out, DisplayMessage{
			Message: p.Message,
			TempID:  p.TempID,
			Pending: !p.Failed,
			Failed:  p.Failed,
		})
	}
	return out
}

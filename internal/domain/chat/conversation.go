package chat

import (
	"fmt"
	"strings"
	"time"
)

// ConversationIDFor derives the canonical id for a participant pair by
// sorting the two ids lexicographically and joining them. Either side of a
// conversation computes the same id without coordination.
func ConversationIDFor(a, b string) (string, error) {
	a = strings.TrimSpace(a)
	b = strings.TrimSpace(b)
	if a == "" || b == "" {
		return "", fmt.Errorf("%w: both participant ids are required", ErrInvalidArgument)
	}
	if b < a {
		a, b = b, a
	}
	return a + "_" + b, nil
}

// Summary mirrors the most recent message of a conversation for list views.
type Summary struct {
	Text     string
	SenderID string
	SentAt   time.Time
	Seen     bool
}

// Conversation is the per-pair chat channel and its summary metadata.
type Conversation struct {
	ID           string
	Participants []string
	CreatedAt    time.Time
	LastMessage  Summary
}

// Peer returns the participant that is not the viewer. The second result is
// false when the viewer is not part of the conversation.
func (c Conversation) Peer(viewerID string) (string, bool) {
	for _, p := range c.Participants {
		if p != viewerID {
			return p, true
		}
	}
	return "", false
}

// Profile carries the directory fields needed to render a chat list entry.
type Profile struct {
	ID          string
	Username    string
	DisplayName string
	AvatarURL   string
}

// ListEntry is one row of a user's conversation list: the other
// participant's profile plus the last-message summary scoped to the viewer.
type ListEntry struct {
	ConversationID string
	Peer           Profile
	LastText       string
	LastSenderID   string
	LastAt         time.Time
	Seen           bool
}

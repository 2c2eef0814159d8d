package chat

import (
	"context"
	"io"

	domainchat "pingme/internal/domain/chat"
)

// CancelFunc releases a live subscription. Safe to call more than once.
type CancelFunc func()

// Gateway appends messages and updates the conversation summary in one
// atomic write, and flips seen flags. Backed by the document database.
type Gateway interface {
	// SendMessage commits the message and the summary update together, or
	// neither, and returns the new message id.
	SendMessage(ctx context.Context, draft domainchat.Draft) (string, error)
	// MarkMessagesAsSeen flips every unseen message addressed to the viewer
	// and the summary's seen flag when the last sender is someone else.
	// Idempotent.
	MarkMessagesAsSeen(ctx context.Context, conversationID, viewerID string) error
}

// MessageStream delivers the full ordered window of a conversation on every
// remote change. A subscription error degrades to an empty delivery rather
// than an error return; the returned cancel must be called on every exit
// path.
type MessageStream interface {
	SubscribeMessages(ctx context.Context, conversationID string, limit int64, fn func([]domainchat.Message)) CancelFunc
}

// ListStore delivers a user's conversations, last-message timestamp
// descending, capped at the configured limit, on every change.
type ListStore interface {
	SubscribeChats(ctx context.Context, userID string, limit int64, fn func([]domainchat.Conversation)) CancelFunc
}

// Directory resolves a participant's profile for chat list enrichment.
type Directory interface {
	Lookup(ctx context.Context, userID string) (domainchat.Profile, error)
}

// Presence publishes and watches short-lived typing records. Records expire
// on their own after domainchat.TypingTTL; ClearTyping of an absent record
// is success.
type Presence interface {
	SetTyping(ctx context.Context, conversationID string, signal domainchat.TypingSignal) error
	ClearTyping(ctx context.Context, conversationID, userID string) error
	WatchTyping(ctx context.Context, conversationID string, fn func([]domainchat.TypingSignal)) CancelFunc
}

// Notifier fans a confirmed message out to the notification pipeline.
// Best-effort: callers log failures and never propagate them.
type Notifier interface {
	MessageSent(ctx context.Context, messageID string, draft domainchat.Draft) error
}

// Uploader stores a media attachment and returns its retrievable URL.
type Uploader interface {
	Upload(ctx context.Context, key string, reader io.Reader, contentType string) (string, error)
}

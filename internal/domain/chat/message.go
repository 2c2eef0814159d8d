package chat

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	// ErrInvalidArgument marks malformed input rejected before any backend call.
	ErrInvalidArgument = errors.New("chat: invalid argument")
	// ErrSendFailed marks a message write that reached the backend and failed.
	ErrSendFailed = errors.New("chat: send failed")
)

// MessageType describes the payload kind of a message.
type MessageType string

const (
	MessageText  MessageType = "text"
	MessageVoice MessageType = "voice"
	MessageImage MessageType = "image"
	MessageVideo MessageType = "video"
)

// MessageStatus tracks delivery progress. Confirmed messages move
// monotonically sent -> delivered -> seen and never regress.
type MessageStatus string

const (
	StatusSending   MessageStatus = "sending"
	StatusSent      MessageStatus = "sent"
	StatusDelivered MessageStatus = "delivered"
	StatusSeen      MessageStatus = "seen"
	StatusFailed    MessageStatus = "failed"
)

// Message is one confirmed entry of a conversation's ordered log. Immutable
// once written except for Seen and Status. ClientID echoes the sender's
// temporary id, so the sending client can match the confirmed message to
// its optimistic copy; other participants see it empty or ignore it.
type Message struct {
	ID             string
	ConversationID string
	SenderID       string
	ReceiverID     string
	Text           string
	MediaURL       string
	Type           MessageType
	Status         MessageStatus
	Seen           bool
	CreatedAt      time.Time
	ClientID       string
}

// Draft is the caller-supplied part of a message before it is persisted.
// ClientID carries the optimistic temporary id when the send originates
// from a live view; stores persist it verbatim.
type Draft struct {
	ConversationID string
	SenderID       string
	ReceiverID     string
	Text           string
	MediaURL       string
	Type           MessageType
	ClientID       string
}

// Normalized returns a copy with trimmed fields and a defaulted type.
func (d Draft) Normalized() Draft {
	d.ConversationID = strings.TrimSpace(d.ConversationID)
	d.SenderID = strings.TrimSpace(d.SenderID)
	d.ReceiverID = strings.TrimSpace(d.ReceiverID)
	d.Text = strings.TrimSpace(d.Text)
	d.MediaURL = strings.TrimSpace(d.MediaURL)
	if d.Type == "" {
		d.Type = MessageText
	}
	return d
}

// Validate rejects drafts that must not reach the backend: missing ids, or
// neither text nor a media reference.
func (d Draft) Validate() error {
	n := d.Normalized()
	if n.ConversationID == "" {
		return fmt.Errorf("%w: conversation id is required", ErrInvalidArgument)
	}
	if n.SenderID == "" || n.ReceiverID == "" {
		return fmt.Errorf("%w: sender and receiver ids are required", ErrInvalidArgument)
	}
	if n.Text == "" && n.MediaURL == "" {
		return fmt.Errorf("%w: message needs text or media", ErrInvalidArgument)
	}
	switch n.Type {
	case MessageText, MessageVoice, MessageImage, MessageVideo:
	default:
		return fmt.Errorf("%w: unknown message type %q", ErrInvalidArgument, n.Type)
	}
	return nil
}

package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	domainchat "pingme/internal/domain/chat"
)

// Publisher is the slice of Producer the notifier needs.
type Publisher interface {
	Publish(ctx context.Context, topic string, key string, payload []byte, headers map[string]string) error
}

// Notifier fans confirmed messages out to the push-notification pipeline as
// CloudEvents-style records keyed by conversation, so one conversation's
// events stay ordered within a partition. Delivery is best-effort: message
// durability never depends on it.
type Notifier struct {
	Producer Publisher
	Topic    string
	Source   string
}

func (n *Notifier) MessageSent(ctx context.Context, messageID string, draft domainchat.Draft) error {
	if n.Producer == nil {
		return nil
	}
	evt := map[string]any{
		"specversion":     "1.0",
		"id":              uuid.NewString(),
		"type":            "chat.message.sent.v1",
		"source":          n.source(),
		"time":            time.Now().UTC().Format(time.RFC3339Nano),
		"datacontenttype": "application/json",
		"data": map[string]any{
			"message_id":      messageID,
			"conversation_id": draft.ConversationID,
			"sender_id":       draft.SenderID,
			"receiver_id":     draft.ReceiverID,
			"preview":         preview(draft),
			"type":            string(draft.Type),
		},
	}
	payload, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("kafka: encode notification: %w", err)
	}
	headers := map[string]string{"content-type": "application/cloudevents+json"}
	return n.Producer.Publish(ctx, n.topic(), draft.ConversationID, payload, headers)
}

func (n *Notifier) topic() string {
	if n.Topic != "" {
		return n.Topic
	}
	return "chat.messages.v1"
}

func (n *Notifier) source() string {
	if n.Source != "" {
		return n.Source
	}
	return "pingme"
}

// preview truncates message text for the notification body; media-only
// messages fall back to a type label. Truncation lands on a rune boundary
// so multi-byte text never ends in a mangled sequence.
func preview(draft domainchat.Draft) string {
	text := draft.Text
	if text == "" {
		return "[" + string(draft.Type) + "]"
	}
	const max = 120
	if len(text) <= max {
		return text
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(text[cut]) {
		cut--
	}
	return text[:cut]
}

// NoopNotifier drops events when no broker is configured.
type NoopNotifier struct{}

func (NoopNotifier) MessageSent(context.Context, string, domainchat.Draft) error { return nil }

package chat

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"

	domainchat "pingme/internal/domain/chat"
)

var ErrNotConfigured = errors.New("chat: service missing gateway")

// Service is the server-side chat core: validated transactional sends,
// seen transitions, typing publication and media attachment. Live views are
// built on top of it by View and ListSession.
type Service struct {
	Gateway  Gateway
	Presence Presence
	Notifier Notifier
	Uploader Uploader
	Logger   *slog.Logger
}

// Send validates the draft, commits it through the gateway and fans out a
// best-effort notification. Returns the confirmed message id.
func (s *Service) Send(ctx context.Context, draft domainchat.Draft) (string, error) {
	if s.Gateway == nil {
		return "", ErrNotConfigured
	}
	if err := draft.Validate(); err != nil {
		return "", err
	}
	draft = draft.Normalized()
	id, err := s.Gateway.SendMessage(ctx, draft)
	if err != nil {
		return "", fmt.Errorf("%w: %v", domainchat.ErrSendFailed, err)
	}
	if s.Notifier != nil {
		if err := s.Notifier.MessageSent(ctx, id, draft); err != nil && s.Logger != nil {
			s.Logger.Warn("message notification dropped",
				"conversation_id", draft.ConversationID, "message_id", id, "error", err)
		}
	}
	return id, nil
}

// MarkSeen transitions everything addressed to the viewer in the
// conversation to seen. Calling it with nothing unseen is a no-op.
func (s *Service) MarkSeen(ctx context.Context, conversationID, viewerID string) error {
	if s.Gateway == nil {
		return ErrNotConfigured
	}
	conversationID = strings.TrimSpace(conversationID)
	viewerID = strings.TrimSpace(viewerID)
	if conversationID == "" || viewerID == "" {
		return fmt.Errorf("%w: conversation and viewer ids are required", domainchat.ErrInvalidArgument)
	}
	return s.Gateway.MarkMessagesAsSeen(ctx, conversationID, viewerID)
}

// SetTyping publishes or clears the caller's typing signal. Clearing an
// absent signal is success.
func (s *Service) SetTyping(ctx context.Context, conversationID, userID, username string, isTyping bool) error {
	if s.Presence == nil {
		return nil
	}
	conversationID = strings.TrimSpace(conversationID)
	userID = strings.TrimSpace(userID)
	if conversationID == "" || userID == "" {
		return fmt.Errorf("%w: conversation and user ids are required", domainchat.ErrInvalidArgument)
	}
	if !isTyping {
		return s.Presence.ClearTyping(ctx, conversationID, userID)
	}
	return s.Presence.SetTyping(ctx, conversationID, domainchat.TypingSignal{
		UserID:   userID,
		Username: username,
		At:       time.Now().UTC(),
	})
}

// AttachMedia uploads an attachment under a conversation-scoped key and
// returns the URL to use as the message's media reference.
func (s *Service) AttachMedia(ctx context.Context, conversationID, filename string, reader io.Reader, contentType string) (string, error) {
	if s.Uploader == nil {
		return "", errors.New("chat: media uploads are not configured")
	}
	conversationID = strings.TrimSpace(conversationID)
	if conversationID == "" {
		return "", fmt.Errorf("%w: conversation id is required", domainchat.ErrInvalidArgument)
	}
	key := mediaKey(conversationID, filename)
	return s.Uploader.Upload(ctx, key, reader, contentType)
}

func mediaKey(conversationID, filename string) string {
	ext := path.Ext(filename)
	return fmt.Sprintf("chat/%s/%s%s", conversationID, uuid.NewString(), ext)
}

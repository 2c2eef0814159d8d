package ginserver

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	gin "github.com/gin-gonic/gin"

	"pingme/internal/app/dto"
	chatservice "pingme/internal/app/services/chat"
	domainchat "pingme/internal/domain/chat"
)

// ChatHandler bridges the REST surface with the chat service. Identity
// arrives in the X-User-ID header, set by the auth layer in front of this
// process; the gateway itself never validates credentials.
type ChatHandler struct {
	Service *chatservice.Service
	Logger  *slog.Logger
}

// ResolveConversation returns the canonical conversation id for the current
// user and a peer.
func (h ChatHandler) ResolveConversation(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	peer := strings.TrimSpace(c.Query("peer"))
	conversationID, err := domainchat.ConversationIDFor(userID, peer)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "peer is required"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"conversation_id": conversationID})
}

// SendMessage posts a message to a conversation and returns the confirmed
// message id.
func (h ChatHandler) SendMessage(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	conversationID := strings.TrimSpace(c.Param("id"))
	var req struct {
		ReceiverID string `json:"receiver_id"`
		Text       string `json:"text"`
		MediaURL   string `json:"media_url"`
		Type       string `json:"type"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	draft := domainchat.Draft{
		ConversationID: conversationID,
		SenderID:       userID,
		ReceiverID:     req.ReceiverID,
		Text:           req.Text,
		MediaURL:       req.MediaURL,
		Type:           domainchat.MessageType(req.Type),
	}
	id, err := h.Service.Send(c.Request.Context(), draft)
	if err != nil {
		h.respondError(c, err, "send message", conversationID, userID)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message_id": id})
}

// MarkSeen transitions everything addressed to the caller in the
// conversation to seen.
func (h ChatHandler) MarkSeen(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	conversationID := strings.TrimSpace(c.Param("id"))
	if err := h.Service.MarkSeen(c.Request.Context(), conversationID, userID); err != nil {
		h.respondError(c, err, "mark seen", conversationID, userID)
		return
	}
	c.Status(http.StatusNoContent)
}

// SetTyping publishes or clears the caller's typing signal.
func (h ChatHandler) SetTyping(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	conversationID := strings.TrimSpace(c.Param("id"))
	var req struct {
		Username string `json:"username"`
		IsTyping bool   `json:"is_typing"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	if err := h.Service.SetTyping(c.Request.Context(), conversationID, userID, req.Username, req.IsTyping); err != nil {
		h.respondError(c, err, "set typing", conversationID, userID)
		return
	}
	c.Status(http.StatusNoContent)
}

// UploadMedia stores an attachment and returns the URL to reference from a
// subsequent send.
func (h ChatHandler) UploadMedia(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	conversationID := strings.TrimSpace(c.Param("id"))
	file, header, err := c.Request.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file is required"})
		return
	}
	defer file.Close()

	url, err := h.Service.AttachMedia(c.Request.Context(), conversationID, header.Filename, file, header.Header.Get("Content-Type"))
	if err != nil {
		h.respondError(c, err, "upload media", conversationID, userID)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"media_url": url})
}

func (h ChatHandler) respondError(c *gin.Context, err error, action, conversationID, userID string) {
	if h.Logger != nil {
		h.Logger.Error("chat request failed", "action", action, "conversation_id", conversationID, "user_id", userID, "error", err)
	}
	switch {
	case errors.Is(err, domainchat.ErrInvalidArgument):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, domainchat.ErrSendFailed):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "message could not be delivered"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

// requireUser extracts the authenticated user id injected by the identity
// layer. Requests without it are rejected.
func requireUser(c *gin.Context) (string, bool) {
	userID := strings.TrimSpace(c.GetHeader("X-User-ID"))
	if userID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing identity"})
		return "", false
	}
	return userID, true
}

func toMessageDTO(m domainchat.DisplayMessage) dto.Message {
	return dto.Message{
		ID:             m.ID,
		ConversationID: m.ConversationID,
		SenderID:       m.SenderID,
		ReceiverID:     m.ReceiverID,
		Text:           m.Text,
		MediaURL:       m.MediaURL,
		Type:           string(m.Type),
		Status:         string(m.Status),
		Seen:           m.Seen,
		CreatedAt:      m.CreatedAt,
		TempID:         m.TempID,
		Pending:        m.Pending,
		Failed:         m.Failed,
	}
}

func toChatListDTO(s chatservice.ListSnapshot) dto.ChatList {
	out := dto.ChatList{
		Entries:   make([]dto.ChatListEntry, 0, len(s.Entries)),
		Unread:    s.Unread,
		FromCache: s.FromCache,
		Loading:   s.Loading,
	}
	for _, e := range s.Entries {
		out.Entries = append(out.Entries, dto.ChatListEntry{
			ConversationID: e.ConversationID,
			PeerID:         e.Peer.ID,
			PeerUsername:   e.Peer.Username,
			PeerName:       e.Peer.DisplayName,
			PeerAvatarURL:  e.Peer.AvatarURL,
			LastText:       e.LastText,
			LastSenderID:   e.LastSenderID,
			LastAt:         e.LastAt,
			Seen:           e.Seen,
		})
	}
	return out
}

var _ ChatHTTP = (*ChatHandler)(nil)

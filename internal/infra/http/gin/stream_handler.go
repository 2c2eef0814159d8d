package ginserver

import (
	"log/slog"
	"net/http"
	"strings"
	"sync"

	gin "github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"pingme/internal/app/dto"
	chatservice "pingme/internal/app/services/chat"
	domainchat "pingme/internal/domain/chat"
)

// StreamHandler carries the push side of the gateway over WebSockets. A
// conversation socket owns a live View (confirmed stream merged with the
// optimistic buffer) plus a typing watch; the chat list socket owns a
// ListSession. Everything is torn down when the socket closes.
type StreamHandler struct {
	Service       *chatservice.Service
	Stream        chatservice.MessageStream
	Chats         chatservice.ListStore
	Directory     chatservice.Directory
	Cache         *chatservice.ListCache
	Presence      chatservice.Presence
	MessageWindow int64
	ChatListLimit int64
	Logger        *slog.Logger

	upgrader websocket.Upgrader
	initOnce sync.Once
}

func (h *StreamHandler) init() {
	h.initOnce.Do(func() {
		h.upgrader = websocket.Upgrader{
			ReadBufferSize:  4 << 10,
			WriteBufferSize: 4 << 10,
			// The SPA is served from a different origin in every deployment.
			CheckOrigin: func(*http.Request) bool { return true },
		}
	})
}

// wsConn serializes writes; gorilla connections allow one writer at a time.
type wsConn struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (w *wsConn) writeJSON(v any) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.conn.WriteJSON(v)
}

type inboundFrame struct {
	Type       string `json:"type"`
	ReceiverID string `json:"receiver_id,omitempty"`
	Text       string `json:"text,omitempty"`
	MediaURL   string `json:"media_url,omitempty"`
	Kind       string `json:"message_type,omitempty"`
	TempID     string `json:"temp_id,omitempty"`
	Username   string `json:"username,omitempty"`
	IsTyping   bool   `json:"is_typing,omitempty"`
}

// ConversationSocket streams the merged display list and the typing set for
// one conversation, and accepts send/retry/discard/seen/typing frames.
func (h *StreamHandler) ConversationSocket(c *gin.Context) {
	h.init()
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	conversationID := strings.TrimSpace(c.Param("id"))
	if conversationID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "conversation id is required"})
		return
	}
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}
	socket := &wsConn{conn: conn}
	defer conn.Close()

	ctx := c.Request.Context()
	view := chatservice.OpenView(ctx, h.Service, h.Stream, conversationID, h.MessageWindow)
	defer view.Close()
	typing := chatservice.WatchTyping(ctx, h.Presence, conversationID, userID)
	defer typing.Close()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			select {
			case list, ok := <-view.Updates():
				if !ok {
					return
				}
				items := make([]dto.Message, 0, len(list))
				for _, m := range list {
					items = append(items, toMessageDTO(m))
				}
				if err := socket.writeJSON(gin.H{"type": "messages", "items": items}); err != nil {
					return
				}
			case active, ok := <-typing.Updates():
				if !ok {
					return
				}
				users := make([]dto.TypingUser, 0, len(active))
				for _, s := range active {
					users = append(users, dto.TypingUser{UserID: s.UserID, Username: s.Username})
				}
				if err := socket.writeJSON(gin.H{"type": "typing", "users": users}); err != nil {
					return
				}
			}
		}
	}()

	for {
		var frame inboundFrame
		if err := conn.ReadJSON(&frame); err != nil {
			break
		}
		h.handleFrame(c, socket, view, conversationID, userID, frame)
	}
	view.Close()
	typing.Close()
	<-done
}

func (h *StreamHandler) handleFrame(c *gin.Context, socket *wsConn, view *chatservice.View, conversationID, userID string, frame inboundFrame) {
	ctx := c.Request.Context()
	switch frame.Type {
	case "send":
		draft := domainchat.Draft{
			ConversationID: conversationID,
			SenderID:       userID,
			ReceiverID:     frame.ReceiverID,
			Text:           frame.Text,
			MediaURL:       frame.MediaURL,
			Type:           domainchat.MessageType(frame.Kind),
		}
		if err := draft.Validate(); err != nil {
			_ = socket.writeJSON(gin.H{"type": "error", "error": err.Error()})
			return
		}
		tempID := view.Send(ctx, draft)
		_ = socket.writeJSON(gin.H{"type": "accepted", "temp_id": tempID})
	case "retry":
		if !view.Retry(ctx, frame.TempID) {
			_ = socket.writeJSON(gin.H{"type": "error", "error": "nothing to retry"})
		}
	case "discard":
		view.Discard(frame.TempID)
	case "seen":
		if err := h.Service.MarkSeen(ctx, conversationID, userID); err != nil && h.Logger != nil {
			h.Logger.Warn("mark seen over socket failed", "conversation_id", conversationID, "user_id", userID, "error", err)
		}
	case "typing":
		if err := h.Service.SetTyping(ctx, conversationID, userID, frame.Username, frame.IsTyping); err != nil && h.Logger != nil {
			h.Logger.Warn("typing over socket failed", "conversation_id", conversationID, "user_id", userID, "error", err)
		}
	default:
		_ = socket.writeJSON(gin.H{"type": "error", "error": "unknown frame type"})
	}
}

// ChatListSocket streams full chat list replacements for the current user,
// cached snapshot first when one exists.
func (h *StreamHandler) ChatListSocket(c *gin.Context) {
	h.init()
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}
	socket := &wsConn{conn: conn}
	defer conn.Close()

	session := chatservice.OpenList(c.Request.Context(), h.Chats, h.Directory, h.Cache, userID, h.ChatListLimit, h.Logger)
	defer session.Close()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for snapshot := range session.Updates() {
			if err := socket.writeJSON(toChatListDTO(snapshot)); err != nil {
				return
			}
		}
	}()

	// Drain control frames until the client goes away.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
	session.Close()
	<-done
}

var _ StreamHTTP = (*StreamHandler)(nil)

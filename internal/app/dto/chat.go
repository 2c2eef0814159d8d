package dto

import "time"

// Message is one row of a conversation as rendered by a client: a confirmed
// message, or a pending/failed optimistic one identified by temp_id.
type Message struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversation_id"`
	SenderID       string    `json:"sender_id"`
	ReceiverID     string    `json:"receiver_id"`
	Text           string    `json:"text,omitempty"`
	MediaURL       string    `json:"media_url,omitempty"`
	Type           string    `json:"type"`
	Status         string    `json:"status"`
	Seen           bool      `json:"seen"`
	CreatedAt      time.Time `json:"created_at"`
	TempID         string    `json:"temp_id,omitempty"`
	Pending        bool      `json:"pending,omitempty"`
	Failed         bool      `json:"failed,omitempty"`
}

// ChatListEntry summarizes one conversation for the viewing user.
type ChatListEntry struct {
	ConversationID string    `json:"conversation_id"`
	PeerID         string    `json:"peer_id"`
	PeerUsername   string    `json:"peer_username"`
	PeerName       string    `json:"peer_name,omitempty"`
	PeerAvatarURL  string    `json:"peer_avatar_url,omitempty"`
	LastText       string    `json:"last_text,omitempty"`
	LastSenderID   string    `json:"last_sender_id,omitempty"`
	LastAt         time.Time `json:"last_at"`
	Seen           bool      `json:"seen"`
}

// ChatList is one full replacement of the conversation list.
type ChatList struct {
	Entries   []ChatListEntry `json:"entries"`
	Unread    int             `json:"unread"`
	FromCache bool            `json:"from_cache"`
	Loading   bool            `json:"loading"`
}

// TypingUser is one currently-composing participant.
type TypingUser struct {
	UserID   string `json:"user_id"`
	Username string `json:"username,omitempty"`
}

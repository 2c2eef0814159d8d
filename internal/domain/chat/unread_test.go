package chat

import "testing"

func TestUnreadCount(t *testing.T) {
	entries := []ListEntry{
		{ConversationID: "alice_bob", LastSenderID: "bob", Seen: false},   // unread
		{ConversationID: "alice_carol", LastSenderID: "carol", Seen: true}, // already seen
		{ConversationID: "alice_dave", LastSenderID: "alice", Seen: false}, // viewer's own message
	}
	unread := UnreadConversations(entries, "alice")
	if len(unread) != 1 || unread[0].ConversationID != "alice_bob" {
		t.Fatalf("unread = %+v, want only alice_bob", unread)
	}
	if got := UnreadCount(entries, "alice"); got != 1 {
		t.Errorf("UnreadCount = %d, want 1", got)
	}
	if got := UnreadCount(nil, "alice"); got != 0 {
		t.Errorf("UnreadCount(nil) = %d, want 0", got)
	}
}

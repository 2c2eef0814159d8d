package chat

// UnreadConversations returns the list entries whose last message is unseen
// and was not sent by the viewer.
func UnreadConversations(entries []ListEntry, viewerID string) []ListEntry {
	unread := make([]ListEntry, 0, len(entries))
	for _, e := range entries {
		if e.Seen || e.LastSenderID == viewerID {
			continue
		}
		unread = append(unread, e)
	}
	return unread
}

// UnreadCount derives the badge total from a chat list snapshot. Pure
// recomputation, no storage.
func UnreadCount(entries []ListEntry, viewerID string) int {
	return len(UnreadConversations(entries, viewerID))
}

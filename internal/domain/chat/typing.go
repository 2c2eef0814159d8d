package chat

import "time"

// TypingTTL is how long a typing signal stays valid without refresh. Signals
// older than this are stale even when the explicit clear never arrived.
const TypingTTL = 3 * time.Second

// TypingSignal is an ephemeral per-conversation record of a composing user.
type TypingSignal struct {
	UserID   string
	Username string
	At       time.Time
}

// ActiveTypists filters raw typing records down to the set worth showing:
// other users only, newer than TypingTTL as of now.
func ActiveTypists(signals []TypingSignal, viewerID string, now time.Time) []TypingSignal {
	active := make([]TypingSignal, 0, len(signals))
	for _, s := range signals {
		if s.UserID == viewerID {
			continue
		}
		if now.Sub(s.At) > TypingTTL {
			continue
		}
		active = append(active, s)
	}
	return active
}

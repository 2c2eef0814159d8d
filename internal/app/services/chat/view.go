package chat

import (
	"context"
	"sync"

	domainchat "pingme/internal/domain/chat"
)

// View is one client's live session on a single conversation. It bridges
// the confirmed message stream with the local optimistic buffer and emits
// the merged display list on every change from either side.
//
// Close must be called on every exit path (conversation switch, teardown),
// otherwise the underlying stream subscription leaks.
type View struct {
	svc    *Service
	buffer *domainchat.OptimisticBuffer

	mu        sync.Mutex
	confirmed []domainchat.Message
	closed    bool

	updates chan []domainchat.DisplayMessage
	cancel  CancelFunc
}

// OpenView subscribes to the conversation's message window and returns the
// live view. The first delivery arrives on Updates once the initial
// snapshot (possibly empty) is known.
func OpenView(ctx context.Context, svc *Service, stream MessageStream, conversationID string, window int64) *View {
	v := &View{
		svc:     svc,
		buffer:  domainchat.NewOptimisticBuffer(),
		updates: make(chan []domainchat.DisplayMessage, 16),
	}
	v.cancel = stream.SubscribeMessages(ctx, conversationID, window, func(confirmed []domainchat.Message) {
		v.mu.Lock()
		v.confirmed = confirmed
		v.mu.Unlock()
		// An optimistic entry settles only once its confirmed counterpart is
		// observed here, identified by the echoed client id. Until then the
		// merge suppresses whichever copy would duplicate it.
		for _, m := range confirmed {
			if m.ClientID != "" {
				v.buffer.Remove(m.ClientID)
			}
		}
		v.emit()
	})
	return v
}

// Updates yields the merged display list. Deliveries are full replacements,
// never diffs; slow consumers only ever miss intermediate states.
func (v *View) Updates() <-chan []domainchat.DisplayMessage {
	return v.updates
}

// Send buffers the draft and returns its temporary id immediately; the
// write happens in the background. The optimistic entry is removed only
// when the confirmed message comes back through the stream carrying the
// same client id; on failure it stays, marked failed, for manual retry or
// discard.
func (v *View) Send(ctx context.Context, draft domainchat.Draft) string {
	tempID := v.buffer.Add(draft)
	draft.ClientID = tempID
	v.emit()
	go v.deliver(ctx, tempID, draft)
	return tempID
}

// Retry re-submits a failed optimistic entry under the same temporary id.
func (v *View) Retry(ctx context.Context, tempID string) bool {
	entry, ok := v.buffer.Get(tempID)
	if !ok || !entry.Failed {
		return false
	}
	sending := domainchat.StatusSending
	notFailed := false
	v.buffer.Update(tempID, domainchat.OptimisticPatch{Status: &sending, Failed: &notFailed})
	v.emit()
	go v.deliver(ctx, tempID, domainchat.Draft{
		ConversationID: entry.ConversationID,
		SenderID:       entry.SenderID,
		ReceiverID:     entry.ReceiverID,
		Text:           entry.Text,
		MediaURL:       entry.MediaURL,
		Type:           entry.Type,
		ClientID:       tempID,
	})
	return true
}

// Discard drops a failed optimistic entry.
func (v *View) Discard(tempID string) {
	if v.buffer.Remove(tempID) {
		v.emit()
	}
}

// Close stops deliveries and releases the stream subscription.
func (v *View) Close() {
	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return
	}
	v.closed = true
	cancel := v.cancel
	close(v.updates)
	v.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// deliver commits the draft through the service. Success does not touch the
// buffer: the entry settles when the stream observes the confirmed message.
func (v *View) deliver(ctx context.Context, tempID string, draft domainchat.Draft) {
	if _, err := v.svc.Send(ctx, draft); err != nil {
		failed := true
		status := domainchat.StatusFailed
		v.buffer.Update(tempID, domainchat.OptimisticPatch{Status: &status, Failed: &failed})
		if v.svc.Logger != nil {
			v.svc.Logger.Warn("optimistic send failed",
				"conversation_id", draft.ConversationID, "temp_id", tempID, "error", err)
		}
		v.emit()
	}
}

// emit pushes the current merged list, dropping the oldest queued snapshot
// when the consumer lags.
func (v *View) emit() {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed {
		return
	}
	merged := domainchat.MergeForDisplay(v.confirmed, v.buffer.Pending())
	for {
		select {
		case v.updates <- merged:
			return
		default:
			select {
			case <-v.updates:
			default:
			}
		}
	}
}

package chat

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	domainchat "pingme/internal/domain/chat"
)

type fakeStream struct {
	mu       sync.Mutex
	fn       func([]domainchat.Message)
	canceled bool
}

func (s *fakeStream) SubscribeMessages(ctx context.Context, conversationID string, limit int64, fn func([]domainchat.Message)) CancelFunc {
	s.mu.Lock()
	s.fn = fn
	s.mu.Unlock()
	return func() {
		s.mu.Lock()
		s.canceled = true
		s.mu.Unlock()
	}
}

func (s *fakeStream) deliver(messages []domainchat.Message) {
	s.mu.Lock()
	fn := s.fn
	s.mu.Unlock()
	if fn != nil {
		fn(messages)
	}
}

// awaitDisplay drains view updates until the condition holds.
func awaitDisplay(t *testing.T, v *View, cond func([]domainchat.DisplayMessage) bool) []domainchat.DisplayMessage {
	t.Helper()
	deadline := time.After(2 * time.Second)
	var last []domainchat.DisplayMessage
	for {
		select {
		case list, ok := <-v.Updates():
			if !ok {
				t.Fatalf("updates closed before condition, last %+v", last)
			}
			last = list
			if cond(list) {
				return list
			}
		case <-deadline:
			t.Fatalf("condition never met, last %+v", last)
		}
	}
}

func TestViewOptimisticThenConfirmed(t *testing.T) {
	gw := &fakeGateway{gate: make(chan struct{})}
	stream := &fakeStream{}
	svc := &Service{Gateway: gw}
	v := OpenView(context.Background(), svc, stream, "alice_bob", 50)
	defer v.Close()

	stream.deliver(nil)

	tempID := v.Send(context.Background(), validDraft())
	if tempID == "" {
		t.Fatal("Send did not return a temp id")
	}

	// Before confirmation: exactly one optimistic entry, status sending.
	list := awaitDisplay(t, v, func(l []domainchat.DisplayMessage) bool { return len(l) == 1 })
	if !list[0].Pending || list[0].Status != domainchat.StatusSending || list[0].TempID != tempID {
		t.Fatalf("optimistic entry = %+v", list[0])
	}

	// Release the write. The ack alone settles nothing: the entry stays
	// pending until the stream observes the confirmed message, recognized by
	// the echoed client id, and replaces it in place.
	close(gw.gate)
	confirmed := domainchat.Message{
		ID: "m1", ConversationID: "alice_bob", SenderID: "alice",
		Text: "hello", Status: domainchat.StatusSent, CreatedAt: time.Now(),
		ClientID: tempID,
	}
	stream.deliver([]domainchat.Message{confirmed})
	list = awaitDisplay(t, v, func(l []domainchat.DisplayMessage) bool {
		return len(l) == 1 && !l[0].Pending
	})
	if list[0].ID != "m1" || list[0].TempID != tempID {
		t.Fatalf("confirmed entry = %+v", list[0])
	}
}

// The stream can observe the confirmed message before the gateway ack
// returns. The still-buffered optimistic copy must be suppressed, never
// rendered alongside its confirmed twin — and the message never blinks out
// between first display and settlement.
func TestViewConfirmedBeforeAckShowsSingleCopy(t *testing.T) {
	gw := &fakeGateway{gate: make(chan struct{})}
	stream := &fakeStream{}
	svc := &Service{Gateway: gw}
	v := OpenView(context.Background(), svc, stream, "alice_bob", 50)
	defer v.Close()

	stream.deliver(nil)
	tempID := v.Send(context.Background(), validDraft())

	// Confirmed copy arrives while the ack is still gated, then the ack
	// lands and the stream redelivers.
	confirmed := domainchat.Message{
		ID: "m1", ConversationID: "alice_bob", SenderID: "alice",
		Text: "hello", Status: domainchat.StatusSent, CreatedAt: time.Now(),
		ClientID: tempID,
	}
	stream.deliver([]domainchat.Message{confirmed})
	close(gw.gate)
	stream.deliver([]domainchat.Message{confirmed})

	// Drain until settled, checking every snapshot along the way: once the
	// text has appeared it shows exactly once in each subsequent snapshot.
	appeared := false
	list := awaitDisplay(t, v, func(l []domainchat.DisplayMessage) bool {
		count := 0
		settled := false
		for _, m := range l {
			if m.Text == "hello" {
				count++
				settled = !m.Pending && !m.Failed
			}
		}
		if count > 1 {
			t.Fatalf("snapshot shows %d copies of the message: %+v", count, l)
		}
		if appeared && count == 0 {
			t.Fatalf("message vanished mid-confirmation: %+v", l)
		}
		appeared = appeared || count == 1
		return count == 1 && settled
	})
	if list[0].ID != "m1" || list[0].TempID != tempID {
		t.Fatalf("confirmed entry = %+v", list[0])
	}
}

func TestViewFailedSendRetained(t *testing.T) {
	gw := &fakeGateway{failWith: errors.New("backend down")}
	stream := &fakeStream{}
	svc := &Service{Gateway: gw}
	v := OpenView(context.Background(), svc, stream, "alice_bob", 50)
	defer v.Close()

	stream.deliver(nil)
	tempID := v.Send(context.Background(), validDraft())

	list := awaitDisplay(t, v, func(l []domainchat.DisplayMessage) bool {
		return len(l) == 1 && l[0].Failed
	})
	if list[0].TempID != tempID || list[0].Status != domainchat.StatusFailed {
		t.Fatalf("failed entry = %+v", list[0])
	}

	// Manual retry after the backend recovers: the entry goes back to
	// sending, and settles once the stream echoes its client id.
	gw.mu.Lock()
	gw.failWith = nil
	gw.mu.Unlock()
	if !v.Retry(context.Background(), tempID) {
		t.Fatal("Retry refused a failed entry")
	}
	awaitDisplay(t, v, func(l []domainchat.DisplayMessage) bool {
		return len(l) == 1 && l[0].Status == domainchat.StatusSending
	})
	stream.deliver([]domainchat.Message{{
		ID: "m1", ConversationID: "alice_bob", SenderID: "alice",
		Text: "hello", Status: domainchat.StatusSent, CreatedAt: time.Now(),
		ClientID: tempID,
	}})
	awaitDisplay(t, v, func(l []domainchat.DisplayMessage) bool {
		return len(l) == 1 && !l[0].Pending && l[0].ID == "m1"
	})
	// The resend happens on a background goroutine; poll with a deadline
	// rather than asserting instantly.
	sentDeadline := time.After(2 * time.Second)
	for gw.sentCount() != 1 {
		select {
		case <-sentDeadline:
			t.Fatalf("sent = %d, want 1", gw.sentCount())
		default:
			time.Sleep(time.Millisecond)
		}
	}
}

func TestViewOptimisticAlwaysTrailsConfirmed(t *testing.T) {
	gw := &fakeGateway{gate: make(chan struct{})}
	stream := &fakeStream{}
	svc := &Service{Gateway: gw}
	v := OpenView(context.Background(), svc, stream, "alice_bob", 50)
	defer v.Close()

	history := []domainchat.Message{
		{ID: "m1", Text: "old", CreatedAt: time.Now().Add(-time.Hour)},
		{ID: "m2", Text: "older news", CreatedAt: time.Now().Add(-time.Minute)},
	}
	stream.deliver(history)
	v.Send(context.Background(), validDraft())

	list := awaitDisplay(t, v, func(l []domainchat.DisplayMessage) bool { return len(l) == 3 })
	if list[0].ID != "m1" || list[1].ID != "m2" {
		t.Fatalf("confirmed history reordered: %+v", list)
	}
	if !list[2].Pending {
		t.Fatalf("optimistic entry not trailing: %+v", list[2])
	}
	close(gw.gate)
}

// brokenStream behaves like a failed change-stream watch: one empty
// delivery, no live updates afterwards.
type brokenStream struct{}

func (brokenStream) SubscribeMessages(ctx context.Context, conversationID string, limit int64, fn func([]domainchat.Message)) CancelFunc {
	fn(nil)
	return func() {}
}

func TestViewSubscriptionErrorDegradesToEmptyWindow(t *testing.T) {
	gw := &fakeGateway{gate: make(chan struct{})}
	defer close(gw.gate)
	v := OpenView(context.Background(), &Service{Gateway: gw}, brokenStream{}, "alice_bob", 50)
	defer v.Close()

	// The consumer gets an empty window, not an error and not silence.
	list := awaitDisplay(t, v, func(l []domainchat.DisplayMessage) bool { return len(l) == 0 })
	if list == nil {
		t.Fatal("expected an empty delivery, got none")
	}

	// Optimistic sends still render on top of the degraded window.
	tempID := v.Send(context.Background(), validDraft())
	awaitDisplay(t, v, func(l []domainchat.DisplayMessage) bool {
		return len(l) == 1 && l[0].TempID == tempID && l[0].Pending
	})
}

func TestViewCloseReleasesSubscription(t *testing.T) {
	stream := &fakeStream{}
	v := OpenView(context.Background(), &Service{Gateway: &fakeGateway{}}, stream, "alice_bob", 50)
	v.Close()
	v.Close() // idempotent

	stream.mu.Lock()
	canceled := stream.canceled
	stream.mu.Unlock()
	if !canceled {
		t.Fatal("Close did not cancel the stream subscription")
	}
	if _, ok := <-v.Updates(); ok {
		t.Fatal("updates channel still open after Close")
	}
}

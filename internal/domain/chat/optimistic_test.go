package chat

import (
	"testing"
	"time"
)

func draftFor(text string) Draft {
	return Draft{ConversationID: "alice_bob", SenderID: "alice", ReceiverID: "bob", Text: text}
}

func TestOptimisticBufferTempIDsUniqueUnderRapidSends(t *testing.T) {
	b := NewOptimisticBuffer()
	seen := make(map[string]struct{})
	for i := 0; i < 200; i++ {
		id := b.Add(draftFor("m"))
		if _, dup := seen[id]; dup {
			t.Fatalf("duplicate temp id %q", id)
		}
		seen[id] = struct{}{}
	}
	if got := len(b.Pending()); got != 200 {
		t.Fatalf("pending = %d, want 200", got)
	}
}

func TestOptimisticBufferUpdateAndRemove(t *testing.T) {
	b := NewOptimisticBuffer()
	id := b.Add(draftFor("hello"))

	failed := true
	status := StatusFailed
	if !b.Update(id, OptimisticPatch{Status: &status, Failed: &failed}) {
		t.Fatal("Update returned false for buffered entry")
	}
	entry, ok := b.Get(id)
	if !ok || !entry.Failed || entry.Status != StatusFailed {
		t.Fatalf("entry after patch = %+v, ok=%v", entry, ok)
	}

	if !b.Remove(id) {
		t.Fatal("Remove returned false for buffered entry")
	}
	if b.Remove(id) {
		t.Fatal("Remove of absent entry returned true")
	}
	if b.Update(id, OptimisticPatch{Failed: &failed}) {
		t.Fatal("Update of absent entry returned true")
	}
}

func TestMergeForDisplayKeepsOptimisticTrailing(t *testing.T) {
	b := NewOptimisticBuffer()
	first := b.Add(draftFor("first"))
	second := b.Add(draftFor("second"))

	confirmed := []Message{
		{ID: "m1", Text: "old", CreatedAt: time.Now().Add(-time.Minute)},
		{ID: "m2", Text: "first", CreatedAt: time.Now()},
	}
	// First send confirmed: its optimistic entry is superseded.
	b.Remove(first)

	display := MergeForDisplay(confirmed, b.Pending())
	if len(display) != 3 {
		t.Fatalf("display length = %d, want 3", len(display))
	}
	for i, m := range confirmed {
		if display[i].ID != m.ID || display[i].Pending {
			t.Errorf("confirmed entry %d out of place: %+v", i, display[i])
		}
	}
	last := display[2]
	if last.TempID != second || !last.Pending || last.Text != "second" {
		t.Errorf("optimistic entry not trailing: %+v", last)
	}
}

func TestMergeForDisplaySuppressesSupersededPending(t *testing.T) {
	b := NewOptimisticBuffer()
	first := b.Add(draftFor("hello"))
	second := b.Add(draftFor("still pending"))

	// The confirmed log already carries first's message, echoed client id
	// and all, while the buffer still holds the optimistic copy. The merge
	// must show it once, as confirmed.
	confirmed := []Message{
		{ID: "m1", Text: "hello", ClientID: first, CreatedAt: time.Now()},
	}
	display := MergeForDisplay(confirmed, b.Pending())
	if len(display) != 2 {
		t.Fatalf("display = %+v, want confirmed hello plus the pending send", display)
	}
	if display[0].ID != "m1" || display[0].Pending || display[0].TempID != first {
		t.Errorf("confirmed entry = %+v", display[0])
	}
	if display[1].TempID != second || !display[1].Pending {
		t.Errorf("unrelated pending entry = %+v", display[1])
	}
}

func TestMergeForDisplayMarksFailedEntries(t *testing.T) {
	b := NewOptimisticBuffer()
	id := b.Add(draftFor("lost"))
	failed := true
	status := StatusFailed
	b.Update(id, OptimisticPatch{Failed: &failed, Status: &status})

	display := MergeForDisplay(nil, b.Pending())
	if len(display) != 1 {
		t.Fatalf("display length = %d, want 1", len(display))
	}
	if !display[0].Failed || display[0].Pending {
		t.Errorf("failed entry flags wrong: %+v", display[0])
	}
}

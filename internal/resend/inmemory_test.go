package resend

import (
	"context"
	"testing"

	"frameworks/network/internal/message"
	"frameworks/network/internal/streamkey"
)

func ref(ts int64, seq int64) message.Ref { return message.Ref{Timestamp: ts, SequenceNumber: seq} }

func appendMsg(t *testing.T, store *InMemoryStore, key streamkey.Key, ts int64) message.StreamMessage {
	t.Helper()
	msg := message.StreamMessage{ID: message.ID{
		Key: key, Timestamp: ts, SequenceNumber: 0, PublisherID: "p", MsgChainID: "c",
	}}
	store.Append(msg)
	return msg
}

func drain(t *testing.T, seq *Sequence) []message.StreamMessage {
	t.Helper()
	var out []message.StreamMessage
	for {
		msg, err, ok := seq.Next(context.Background())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !ok {
			return out
		}
		out = append(out, msg)
	}
}

func TestInMemoryStore_ResendLast(t *testing.T) {
	store := NewInMemoryStore()
	key := testKey(t)
	for ts := int64(1); ts <= 5; ts++ {
		appendMsg(t, store, key, ts)
	}

	seq, err := store.Resend(context.Background(), Request{Kind: KindLast, Key: key, Count: 2})
	if err != nil {
		t.Fatalf("Resend: %v", err)
	}
	got := drain(t, seq)
	if len(got) != 2 || got[0].ID.Timestamp != 4 || got[1].ID.Timestamp != 5 {
		t.Fatalf("unexpected last-2 result: %+v", got)
	}
}

func TestInMemoryStore_ResendFrom(t *testing.T) {
	store := NewInMemoryStore()
	key := testKey(t)
	for ts := int64(1); ts <= 5; ts++ {
		appendMsg(t, store, key, ts)
	}

	seq, err := store.Resend(context.Background(), Request{Kind: KindFrom, Key: key, From: ref(3, 0)})
	if err != nil {
		t.Fatalf("Resend: %v", err)
	}
	got := drain(t, seq)
	if len(got) != 3 || got[0].ID.Timestamp != 3 {
		t.Fatalf("unexpected from-3 result: %+v", got)
	}
}

func TestInMemoryStore_ResendRange(t *testing.T) {
	store := NewInMemoryStore()
	key := testKey(t)
	for ts := int64(1); ts <= 5; ts++ {
		appendMsg(t, store, key, ts)
	}

	seq, err := store.Resend(context.Background(), Request{Kind: KindRange, Key: key, From: ref(2, 0), To: ref(4, 0)})
	if err != nil {
		t.Fatalf("Resend: %v", err)
	}
	got := drain(t, seq)
	if len(got) != 3 || got[0].ID.Timestamp != 2 || got[2].ID.Timestamp != 4 {
		t.Fatalf("unexpected range result: %+v", got)
	}
}

func TestInMemoryStore_EmptyForUnknownKey(t *testing.T) {
	store := NewInMemoryStore()
	other, err := streamkey.New("other", 0)
	if err != nil {
		t.Fatalf("streamkey.New: %v", err)
	}

	seq, err := store.Resend(context.Background(), Request{Kind: KindLast, Key: other, Count: 5})
	if err != nil {
		t.Fatalf("Resend: %v", err)
	}
	if got := drain(t, seq); len(got) != 0 {
		t.Fatalf("expected no messages for an unknown key, got %+v", got)
	}
}

package resend

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"

	"frameworks/network/internal/message"
	"frameworks/network/internal/streamkey"
)

func newRedisStore(t *testing.T) *RedisStore {
	t.Helper()
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisStore(client, "test")
}

func redisAppend(t *testing.T, store *RedisStore, key streamkey.Key, ts int64) message.StreamMessage {
	t.Helper()
	msg := message.StreamMessage{ID: message.ID{
		Key: key, Timestamp: ts, SequenceNumber: 0, PublisherID: "p", MsgChainID: "c",
	}}
	if err := store.Append(context.Background(), msg); err != nil {
		t.Fatalf("Append: %v", err)
	}
	return msg
}

func drainRedis(t *testing.T, seq *Sequence) []message.StreamMessage {
	t.Helper()
	var out []message.StreamMessage
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	for {
		msg, err, ok := seq.Next(ctx)
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		if !ok {
			return out
		}
		out = append(out, msg)
	}
}

func TestRedisStore_ResendLast(t *testing.T) {
	store := newRedisStore(t)
	key := testKey(t)
	for ts := int64(1); ts <= 5; ts++ {
		redisAppend(t, store, key, ts)
	}

	seq, err := store.Resend(context.Background(), Request{Kind: KindLast, Key: key, Count: 2})
	if err != nil {
		t.Fatalf("Resend: %v", err)
	}
	got := drainRedis(t, seq)
	if len(got) != 2 || got[0].ID.Timestamp != 4 || got[1].ID.Timestamp != 5 {
		t.Fatalf("unexpected last-2 result: %+v", got)
	}
}

func TestRedisStore_ResendFrom(t *testing.T) {
	store := newRedisStore(t)
	key := testKey(t)
	for ts := int64(1); ts <= 5; ts++ {
		redisAppend(t, store, key, ts)
	}

	seq, err := store.Resend(context.Background(), Request{Kind: KindFrom, Key: key, From: ref(3, 0)})
	if err != nil {
		t.Fatalf("Resend: %v", err)
	}
	got := drainRedis(t, seq)
	if len(got) != 3 || got[0].ID.Timestamp != 3 {
		t.Fatalf("unexpected from-3 result: %+v", got)
	}
}

func TestRedisStore_ResendRange(t *testing.T) {
	store := newRedisStore(t)
	key := testKey(t)
	for ts := int64(1); ts <= 5; ts++ {
		redisAppend(t, store, key, ts)
	}

	seq, err := store.Resend(context.Background(), Request{
		Kind: KindRange, Key: key, From: ref(2, 0), To: ref(4, 0),
	})
	if err != nil {
		t.Fatalf("Resend: %v", err)
	}
	got := drainRedis(t, seq)
	if len(got) != 3 || got[0].ID.Timestamp != 2 || got[2].ID.Timestamp != 4 {
		t.Fatalf("unexpected range result: %+v", got)
	}
}

func TestRedisStore_EmptyForUnknownKey(t *testing.T) {
	store := newRedisStore(t)
	other, err := streamkey.New("other", 0)
	if err != nil {
		t.Fatalf("streamkey.New: %v", err)
	}

	seq, err := store.Resend(context.Background(), Request{Kind: KindLast, Key: other, Count: 5})
	if err != nil {
		t.Fatalf("Resend: %v", err)
	}
	if got := drainRedis(t, seq); len(got) != 0 {
		t.Fatalf("expected no messages for an unknown key, got %+v", got)
	}
}

package resend

import (
	"context"
	"testing"
	"time"

	"frameworks/network/internal/message"
)

func TestSequence_EmitAndNext(t *testing.T) {
	seq := NewSequence()
	msg := message.StreamMessage{ID: message.ID{Timestamp: 1}}

	go func() {
		seq.Emit(msg)
		seq.Close()
	}()

	got, err, ok := seq.Next(context.Background())
	if err != nil || !ok {
		t.Fatalf("expected one item, err=%v ok=%v", err, ok)
	}
	if got.ID.Timestamp != 1 {
		t.Fatalf("unexpected message: %+v", got)
	}

	_, err, ok = seq.Next(context.Background())
	if err != nil || ok {
		t.Fatalf("expected clean end of sequence, err=%v ok=%v", err, ok)
	}
}

func TestSequence_Fail(t *testing.T) {
	seq := NewSequence()
	boom := errFixture
	seq.Fail(boom)

	_, err, ok := seq.Next(context.Background())
	if ok || err != boom {
		t.Fatalf("expected the fail error, got err=%v ok=%v", err, ok)
	}
}

func TestSequence_PauseBlocksEmit(t *testing.T) {
	seq := NewSequence()
	seq.Pause()

	emitted := make(chan bool, 1)
	go func() { emitted <- seq.Emit(message.StreamMessage{}) }()

	select {
	case <-emitted:
		t.Fatalf("expected Emit to block while paused")
	case <-time.After(20 * time.Millisecond):
	}

	seq.Resume()

	select {
	case ok := <-emitted:
		if !ok {
			t.Fatalf("expected Emit to succeed after Resume")
		}
	case <-time.After(time.Second):
		t.Fatalf("Emit did not unblock after Resume")
	}
}

func TestSequence_CancelUnblocksEmit(t *testing.T) {
	seq := NewSequence()
	seq.Pause()

	emitted := make(chan bool, 1)
	go func() { emitted <- seq.Emit(message.StreamMessage{}) }()

	seq.Cancel()

	select {
	case ok := <-emitted:
		if ok {
			t.Fatalf("expected Emit to report failure after Cancel")
		}
	case <-time.After(time.Second):
		t.Fatalf("Emit did not unblock after Cancel")
	}
}

var errFixture = fixtureErr{}

type fixtureErr struct{}

func (fixtureErr) Error() string { return "fixture error" }

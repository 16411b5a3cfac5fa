package peer

import "testing"

func TestNew_RejectsUnknownType(t *testing.T) {
	if _, err := New("p1", Type("bogus")); err == nil {
		t.Fatalf("expected error for invalid type")
	}
}

func TestNew_Valid(t *testing.T) {
	info, err := New("p1", TypeStorage)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !info.IsNode() || !info.IsStorage() {
		t.Fatalf("storage peer should be a node and storage")
	}
	if info.IsTracker() {
		t.Fatalf("storage peer should not be a tracker")
	}
}

func TestInfo_EqualByID(t *testing.T) {
	a, _ := New("p1", TypeNode)
	b, _ := New("p1", TypeTracker)
	if !a.Equal(b) {
		t.Fatalf("expected equality by id regardless of type")
	}
}

func TestBook_PutAndLookup(t *testing.T) {
	b := NewBook()
	b.Put("p1", "ws://host:1/p1")

	addr, err := b.AddressOf("p1")
	if err != nil || addr != "ws://host:1/p1" {
		t.Fatalf("unexpected address lookup: %v %v", addr, err)
	}

	id, err := b.IDOf("ws://host:1/p1")
	if err != nil || id != "p1" {
		t.Fatalf("unexpected id lookup: %v %v", id, err)
	}
}

func TestBook_MissingLookupFails(t *testing.T) {
	b := NewBook()
	if _, err := b.AddressOf("nope"); err == nil {
		t.Fatalf("expected error for missing peer")
	}
	if _, err := b.IDOf("ws://nope"); err == nil {
		t.Fatalf("expected error for missing address")
	}
}

func TestBook_PutReplacesBijection(t *testing.T) {
	b := NewBook()
	b.Put("p1", "ws://a")
	b.Put("p1", "ws://b")

	if _, err := b.IDOf("ws://a"); err == nil {
		t.Fatalf("old address should no longer resolve")
	}
	addr, err := b.AddressOf("p1")
	if err != nil || addr != "ws://b" {
		t.Fatalf("expected updated address, got %v %v", addr, err)
	}
}

func TestBook_Remove(t *testing.T) {
	b := NewBook()
	b.Put("p1", "ws://a")
	b.Remove("p1")
	if _, err := b.AddressOf("p1"); err == nil {
		t.Fatalf("expected removal to clear lookup")
	}
}

package streamkey

import "testing"

func TestNew_RejectsNegativePartition(t *testing.T) {
	if _, err := New("s", -1); err == nil {
		t.Fatalf("expected error for negative partition")
	}
}

func TestString_CanonicalForm(t *testing.T) {
	k, err := New("stream-1", 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got, want := k.String(), "stream-1::0"; got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestKey_UsableAsMapKey(t *testing.T) {
	a, _ := New("s", 1)
	b, _ := New("s", 1)
	m := map[Key]int{a: 1}
	if _, ok := m[b]; !ok {
		t.Fatalf("expected equal keys to collide in a map")
	}
}

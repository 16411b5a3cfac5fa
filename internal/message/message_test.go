package message

import "testing"

func TestRef_Less(t *testing.T) {
	a := Ref{Timestamp: 1, SequenceNumber: 5}
	b := Ref{Timestamp: 1, SequenceNumber: 6}
	c := Ref{Timestamp: 2, SequenceNumber: 0}

	if !a.Less(b) {
		t.Fatalf("expected a < b by sequence number")
	}
	if !b.Less(c) {
		t.Fatalf("expected b < c by timestamp")
	}
	if a.Less(a) {
		t.Fatalf("ref should not be less than itself")
	}
}

func TestRef_Equal(t *testing.T) {
	a := Ref{Timestamp: 1, SequenceNumber: 5}
	b := Ref{Timestamp: 1, SequenceNumber: 5}
	if !a.Equal(b) {
		t.Fatalf("expected equal refs")
	}
}

func TestID_RefAndChain(t *testing.T) {
	id := ID{
		Timestamp:      10,
		SequenceNumber: 2,
		PublisherID:    "pub-1",
		MsgChainID:     "chain-1",
	}
	if id.Ref() != (Ref{Timestamp: 10, SequenceNumber: 2}) {
		t.Fatalf("unexpected ref: %+v", id.Ref())
	}
	if id.Chain() != (ChainKey{PublisherID: "pub-1", MsgChainID: "chain-1"}) {
		t.Fatalf("unexpected chain: %+v", id.Chain())
	}
}

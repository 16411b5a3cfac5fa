package streammanager

import (
	"testing"

	"frameworks/network/internal/message"
	"frameworks/network/internal/streamkey"
)

func key(t *testing.T, id string, p int) streamkey.Key {
	t.Helper()
	k, err := streamkey.New(id, p)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return k
}

func TestEnsure_Idempotent(t *testing.T) {
	m := New()
	k := key(t, "s", 0)

	if added := m.Ensure(k); !added {
		t.Fatalf("expected first Ensure to add")
	}
	if added := m.Ensure(k); added {
		t.Fatalf("expected second Ensure to be a no-op")
	}
	if !m.Has(k) {
		t.Fatalf("expected key to be present")
	}
}

func TestInboundOutbound(t *testing.T) {
	m := New()
	k := key(t, "s", 0)
	m.Ensure(k)

	m.AddInbound(k, "peerA")
	if !m.IsInbound(k, "peerA") {
		t.Fatalf("expected peerA to be inbound")
	}
	m.RemoveInbound(k, "peerA")
	if m.IsInbound(k, "peerA") {
		t.Fatalf("expected peerA to no longer be inbound")
	}

	m.AddOutbound(k, "peerB")
	m.AddOutbound(k, "peerC")
	except := m.OutboundExcept(k, "peerB")
	if len(except) != 1 || except[0] != "peerC" {
		t.Fatalf("unexpected outbound-except result: %v", except)
	}
}

func TestAcceptCounter_Monotone(t *testing.T) {
	m := New()
	k := key(t, "s", 0)

	if !m.AcceptCounter(k, 5) {
		t.Fatalf("expected counter 5 to be accepted")
	}
	if m.AcceptCounter(k, 3) {
		t.Fatalf("expected regression counter 3 to be rejected")
	}
	if m.Counter(k) != 5 {
		t.Fatalf("expected counter to remain 5, got %d", m.Counter(k))
	}
	if !m.AcceptCounter(k, 5) {
		t.Fatalf("expected equal counter to be accepted (not strictly smaller)")
	}
}

func TestDedup_MonotoneChain(t *testing.T) {
	m := New()
	k := key(t, "s", 0)
	chain := message.ChainKey{PublisherID: "pub", MsgChainID: "chain"}

	id1 := message.ID{Key: k, Timestamp: 1, SequenceNumber: 0, PublisherID: chain.PublisherID, MsgChainID: chain.MsgChainID}
	id2 := message.ID{Key: k, Timestamp: 1, SequenceNumber: 1, PublisherID: chain.PublisherID, MsgChainID: chain.MsgChainID}

	if !m.Dedup(k, id1) {
		t.Fatalf("expected first message to be fresh")
	}
	if m.Dedup(k, id1) {
		t.Fatalf("expected duplicate message to be rejected")
	}
	if !m.Dedup(k, id2) {
		t.Fatalf("expected strictly later message to be fresh")
	}
	if m.Dedup(k, id1) {
		t.Fatalf("expected out-of-order (earlier) message to be rejected")
	}
}

func TestRemovePeer(t *testing.T) {
	m := New()
	k1 := key(t, "s", 1)
	k2 := key(t, "s", 2)
	m.Ensure(k1)
	m.Ensure(k2)
	m.AddOutbound(k1, "peerA")
	m.AddInbound(k2, "peerA")

	affected := m.RemovePeer("peerA")
	if len(affected) != 2 {
		t.Fatalf("expected peer removal to affect 2 keys, got %d", len(affected))
	}
	if m.SharesStream("peerA") {
		t.Fatalf("expected no shared streams after removal")
	}
}

func TestSharesStream(t *testing.T) {
	m := New()
	k := key(t, "s", 0)
	m.Ensure(k)
	if m.SharesStream("peerA") {
		t.Fatalf("expected no shared stream before any neighbour added")
	}
	m.AddOutbound(k, "peerA")
	if !m.SharesStream("peerA") {
		t.Fatalf("expected shared stream after outbound add")
	}
}

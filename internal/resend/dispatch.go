package resend

import (
	"frameworks/network/internal/protocol"
)

// RequestFromWire converts a decoded node↔node resend request into the
// strategy-facing Request, so a process entrypoint can wire
// node.Engine's resend callback straight into Handler.Handle without
// depending on the protocol package itself.
func RequestFromWire(msg any) (Request, bool) {
	switch m := msg.(type) {
	case protocol.ResendLastRequest:
		return Request{Kind: KindLast, RequestID: m.RequestID, Key: m.Key, Count: m.Count}, true
	case protocol.ResendFromRequest:
		return Request{Kind: KindFrom, RequestID: m.RequestID, Key: m.Key, From: m.From}, true
	case protocol.ResendRangeRequest:
		return Request{Kind: KindRange, RequestID: m.RequestID, Key: m.Key, From: m.From, To: m.To}, true
	default:
		return Request{}, false
	}
}
